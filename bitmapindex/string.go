package bitmapindex

import (
	"fmt"
	"strings"

	"github.com/coregx/coregex"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/schema"
)

// StringIndex maps exact string values to the identifiers holding them,
// plus a fallback unsorted value list that supports substring and
// prefix queries without a trie, and ad hoc regex-match queries compiled
// on demand via coregex.
type StringIndex struct {
	highest uint64
	hasAny  bool

	exact map[string]*bitstream.Ewah
	// order lists each distinct value once, in first-append order; In,
	// RegexMatch and Save iterate it instead of the exact map's keys and
	// look each value's bitstream up in exact.
	order []string
}

// NewString constructs an empty string bitmap index.
func NewString() *StringIndex {
	return &StringIndex{exact: make(map[string]*bitstream.Ewah)}
}

func (s *StringIndex) HighestID() uint64 {
	if !s.hasAny {
		return bitstream.Npos
	}
	return s.highest
}

func (s *StringIndex) Append(id uint64, v schema.Value) error {
	if s.hasAny && id <= s.highest {
		return outOfOrder(id, s.highest)
	}
	bs, existed := s.exact[v.Str]
	s.exact[v.Str] = growAppend(bs, id)
	if !existed {
		s.order = append(s.order, v.Str)
	}
	s.highest = id
	s.hasAny = true
	return nil
}

func (s *StringIndex) Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error) {
	switch op {
	case Eq:
		if bs, ok := s.exact[v.Str]; ok {
			return bs.Clone(), nil
		}
		return &bitstream.Ewah{}, nil
	case Neq:
		result := s.sizedZero()
		for val, bs := range s.exact {
			if val != v.Str {
				result.Or(bs)
			}
		}
		return result, nil
	case In:
		result := s.sizedZero()
		for _, val := range s.order {
			if strings.Contains(val, v.Str) {
				result.Or(s.exact[val])
			}
		}
		return result, nil
	case RegexMatch:
		re, err := coregex.Compile(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bitmapindex: compile pattern %q: %w", v.Pattern, err)
		}
		result := s.sizedZero()
		for _, val := range s.order {
			if re.Match([]byte(val)) {
				result.Or(s.exact[val])
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

// sizedZero returns an all-zero bitstream the size of the index, the
// identity element for the Or-accumulation Neq/In/RegexMatch perform.
func (s *StringIndex) sizedZero() *bitstream.Ewah {
	if !s.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(s.highest+1, false)
}
