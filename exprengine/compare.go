package exprengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/coregx/coregex"

	"github.com/corvidlabs/corvid/schema"
)

// compareValues orders two values of compatible kind, returning -1, 0, 1
// and ok=false when the kinds cannot be compared.
func compareValues(a, b schema.Value) (int, bool) {
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case schema.KindInt:
		return cmpOrdered(a.Int, b.Int), true
	case schema.KindCount:
		return cmpOrdered(a.Count, b.Count), true
	case schema.KindReal:
		return cmpOrdered(a.Real, b.Real), true
	case schema.KindTimePoint:
		switch {
		case a.Time.Before(b.Time):
			return -1, true
		case a.Time.After(b.Time):
			return 1, true
		default:
			return 0, true
		}
	case schema.KindTimeDuration:
		return cmpOrdered(a.Duration, b.Duration), true
	case schema.KindString:
		return strings.Compare(a.Str, b.Str), true
	case schema.KindPort:
		return cmpOrdered(a.Port, b.Port), true
	case schema.KindBool:
		return cmpOrdered(b2i(a.Bool), b2i(b.Bool)), true
	default:
		return 0, false
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpOrdered[T int | uint64 | int64 | float64 | uint16 | time.Duration](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// valueContains implements the `in` operator: substring containment for
// strings, and §4.2's address-in-subnet membership via netip.Prefix.Contains.
func valueContains(actual, want schema.Value) bool {
	if actual.Kind == schema.KindAddress && want.Kind == schema.KindSubnet {
		return want.Subnet.Contains(actual.Addr)
	}
	if actual.Kind != schema.KindString || want.Kind != schema.KindString {
		return false
	}
	return strings.Contains(actual.Str, want.Str)
}

func regexMatches(actual, want schema.Value) (bool, error) {
	if actual.Kind != schema.KindString {
		return false, nil
	}
	pattern := want.Pattern
	if want.Kind == schema.KindString {
		pattern = want.Str
	}
	re, err := coregex.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("exprengine: compile regex %q: %w", pattern, err)
	}
	return re.Match([]byte(actual.Str)), nil
}
