package order

import (
	"math"
	"testing"
)

func TestInt64PreservesOrder(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for i := 1; i < len(values); i++ {
		if Int64(values[i-1]) >= Int64(values[i]) {
			t.Fatalf("order(%d) >= order(%d)", values[i-1], values[i])
		}
	}
}

func TestFloat64PreservesOrder(t *testing.T) {
	values := []float64{
		math.Inf(-1), -1e300, -1.5, -math.SmallestNonzeroFloat64 * (1 << 10),
		-0.0, 0.0, math.SmallestNonzeroFloat64 * (1 << 10), 1.5, 1e300, math.Inf(1),
	}
	ordered := make([]uint64, len(values))
	for i, v := range values {
		o, err := Float64(v)
		if err != nil {
			t.Fatalf("Float64(%v): %v", v, err)
		}
		ordered[i] = o
	}
	for i := 1; i < len(values); i++ {
		if ordered[i-1] > ordered[i] || (values[i-1] < values[i] && ordered[i-1] == ordered[i]) {
			t.Fatalf("ordered values not monotonic: %v for inputs %v", ordered, values)
		}
	}
}

func TestFloat64RejectsNaN(t *testing.T) {
	if _, err := Float64(math.NaN()); err != ErrNaN {
		t.Fatalf("expected ErrNaN, got %v", err)
	}
}

func TestFloat64ZeroIsMidpoint(t *testing.T) {
	pos, _ := Float64(0.0)
	neg, _ := Float64(math.Copysign(0, -1))
	if pos != neg {
		t.Fatalf("+0 and -0 should order identically, got %x vs %x", pos, neg)
	}
}
