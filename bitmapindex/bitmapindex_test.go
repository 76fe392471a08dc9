package bitmapindex

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/corvid/schema"
)

func addrValue(t *testing.T, s string) schema.Value {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	require.NoError(t, err)
	return schema.Value{Kind: schema.KindAddress, Addr: addr}
}

func subnetValue(t *testing.T, s string) schema.Value {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return schema.Value{Kind: schema.KindSubnet, Subnet: p}
}

// TestAddressIndexSubnetQuery is spec.md §8 scenario 3: insert source
// addresses at ids 1..4 and check both a /24 and a /16 subnet query.
func TestAddressIndexSubnetQuery(t *testing.T) {
	idx := NewAddress()
	ids := []string{"10.0.0.1", "10.0.0.2", "10.0.1.1", "192.168.1.1"}
	for i, s := range ids {
		require.NoError(t, idx.Append(uint64(i+1), addrValue(t, s)))
	}

	bits, err := idx.Lookup(In, subnetValue(t, "10.0.0.0/24"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), bits.Count())
	for _, id := range []uint64{1, 2} {
		b, err := bits.At(id)
		require.NoError(t, err)
		require.True(t, b, "expected id %d set", id)
	}

	bits, err = idx.Lookup(In, subnetValue(t, "10.0.0.0/16"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), bits.Count())
	for _, id := range []uint64{1, 2, 3} {
		b, err := bits.At(id)
		require.NoError(t, err)
		require.True(t, b, "expected id %d set", id)
	}
	b4, err := bits.At(4)
	require.NoError(t, err)
	require.False(t, b4)
}

func TestAddressIndexExactAndNeq(t *testing.T) {
	idx := NewAddress()
	require.NoError(t, idx.Append(0, addrValue(t, "10.0.0.1")))
	require.NoError(t, idx.Append(1, addrValue(t, "10.0.0.2")))

	eq, err := idx.Lookup(Eq, addrValue(t, "10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), eq.Count())

	neq, err := idx.Lookup(Neq, addrValue(t, "10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), neq.Count())
	b, err := neq.At(1)
	require.NoError(t, err)
	require.True(t, b)
}

func TestAddressIndexRejectsOutOfOrderAppend(t *testing.T) {
	idx := NewAddress()
	require.NoError(t, idx.Append(5, addrValue(t, "10.0.0.1")))
	err := idx.Append(5, addrValue(t, "10.0.0.2"))
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func intValue(n int64) schema.Value  { return schema.Value{Kind: schema.KindInt, Int: n} }
func realValue(f float64) schema.Value { return schema.Value{Kind: schema.KindReal, Real: f} }

// TestNumericIndexRangeQueries exercises the bit-sliced order-preserving
// range scan spec.md §4.2 describes: insert a spread of signed integers
// and check every relational operator against the middle value.
func TestNumericIndexRangeQueries(t *testing.T) {
	idx := NewNumeric(schema.KindInt)
	values := []int64{-5, -1, 0, 3, 7, 7, 10}
	for i, v := range values {
		require.NoError(t, idx.Append(uint64(i), intValue(v)))
	}

	lt, err := idx.Lookup(Lt, intValue(3))
	require.NoError(t, err)
	require.Equal(t, uint64(3), lt.Count()) // -5, -1, 0

	lte, err := idx.Lookup(Lte, intValue(3))
	require.NoError(t, err)
	require.Equal(t, uint64(4), lte.Count())

	gt, err := idx.Lookup(Gt, intValue(7))
	require.NoError(t, err)
	require.Equal(t, uint64(1), gt.Count()) // only 10

	gte, err := idx.Lookup(Gte, intValue(7))
	require.NoError(t, err)
	require.Equal(t, uint64(3), gte.Count()) // 7, 7, 10

	eq, err := idx.Lookup(Eq, intValue(7))
	require.NoError(t, err)
	require.Equal(t, uint64(2), eq.Count())
}

func TestNumericIndexOrderingPreservesRealComparisons(t *testing.T) {
	idx := NewNumeric(schema.KindReal)
	values := []float64{-3.5, -0.001, 0, 0.001, 2.25}
	for i, v := range values {
		require.NoError(t, idx.Append(uint64(i), realValue(v)))
	}
	lt, err := idx.Lookup(Lt, realValue(0))
	require.NoError(t, err)
	require.Equal(t, uint64(2), lt.Count())

	gte, err := idx.Lookup(Gte, realValue(0))
	require.NoError(t, err)
	require.Equal(t, uint64(3), gte.Count())
}

func strValue(s string) schema.Value { return schema.Value{Kind: schema.KindString, Str: s} }

func TestStringIndexSubstringAndRegex(t *testing.T) {
	idx := NewString()
	values := []string{"www.mozilla.org", "example.com", "cdn.mozilla.net"}
	for i, v := range values {
		require.NoError(t, idx.Append(uint64(i), strValue(v)))
	}

	in, err := idx.Lookup(In, strValue("mozilla"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), in.Count())

	re, err := idx.Lookup(RegexMatch, schema.Value{Kind: schema.KindPattern, Pattern: `^www\..*`})
	require.NoError(t, err)
	require.Equal(t, uint64(1), re.Count())
	b0, err := re.At(0)
	require.NoError(t, err)
	require.True(t, b0)
}

func portValue(p uint16) schema.Value { return schema.Value{Kind: schema.KindPort, Port: p} }

func TestPortIndexEqAndRange(t *testing.T) {
	idx := NewPort()
	ports := []uint16{80, 443, 995, 995, 22}
	for i, p := range ports {
		require.NoError(t, idx.Append(uint64(i), portValue(p)))
	}
	eq, err := idx.Lookup(Eq, portValue(995))
	require.NoError(t, err)
	require.Equal(t, uint64(2), eq.Count())

	gt, err := idx.Lookup(Gt, portValue(443))
	require.NoError(t, err)
	require.Equal(t, uint64(2), gt.Count())
}
