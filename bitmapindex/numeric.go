package bitmapindex

import (
	"fmt"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/order"
	"github.com/corvidlabs/corvid/schema"
)

const numericBitDepth = 64

// NumericIndex is an order-preserving, bit-sliced index: every appended
// value is permuted through order.Order into an unsigned 64-bit key, and
// one bitstream per key bit (a "plane") records which identifiers have
// that bit set. Range queries reduce to the standard bit-sliced-index
// range algorithm, ORing and ANDing whole planes rather than touching
// individual values.
type NumericIndex struct {
	highest uint64
	hasAny  bool

	kind    schema.Kind
	present *bitstream.Ewah // every appended id, the EBM of the BSI literature
	planes  [numericBitDepth]*bitstream.Ewah
	exact   map[uint64]*bitstream.Ewah
}

// NewNumeric constructs an empty numeric bitmap index for the given kind,
// which must be one of KindInt, KindCount, or KindReal.
func NewNumeric(kind schema.Kind) *NumericIndex {
	return &NumericIndex{kind: kind, present: &bitstream.Ewah{}, exact: make(map[uint64]*bitstream.Ewah)}
}

func (n *NumericIndex) HighestID() uint64 {
	if !n.hasAny {
		return bitstream.Npos
	}
	return n.highest
}

func orderOf(kind schema.Kind, v schema.Value) (uint64, error) {
	switch kind {
	case schema.KindInt:
		return order.Int64(v.Int), nil
	case schema.KindCount:
		return order.Unsigned(v.Count), nil
	case schema.KindReal:
		return order.Float64(v.Real)
	default:
		return 0, fmt.Errorf("bitmapindex: numeric index does not support kind %s", kind)
	}
}

func (n *NumericIndex) Append(id uint64, v schema.Value) error {
	if n.hasAny && id <= n.highest {
		return outOfOrder(id, n.highest)
	}
	ord, err := orderOf(n.kind, v)
	if err != nil {
		return err
	}
	n.present = growAppend(n.present, id)
	bs, existed := n.exact[ord]
	n.exact[ord] = growAppend(bs, id)
	_ = existed
	for i := 0; i < numericBitDepth; i++ {
		if ord&(uint64(1)<<(numericBitDepth-1-i)) != 0 {
			n.planes[i] = growAppend(n.planes[i], id)
		} else if n.planes[i] != nil {
			gap := id + 1 - n.planes[i].Size()
			n.planes[i].Append(gap, false)
		}
	}
	n.highest = id
	n.hasAny = true
	return nil
}

func newZeroEwah() *bitstream.Ewah { return &bitstream.Ewah{} }

func (n *NumericIndex) sizedZero() *bitstream.Ewah {
	if !n.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(n.highest+1, false)
}

func (n *NumericIndex) plane(i int) *bitstream.Ewah {
	if n.planes[i] != nil {
		return n.planes[i]
	}
	return n.sizedZero()
}

// rangeLT implements the bit-sliced-index "less than" (or "less than or
// equal", when allowEquality is set) range scan: walk the key's bits from
// most to least significant, accumulating identifiers that diverge below
// the predicate while narrowing the still-possibly-equal set.
func (n *NumericIndex) rangeLT(predicate uint64, allowEquality bool) *bitstream.Ewah {
	eq := n.present.Clone()
	ret := n.sizedZero()
	for i := 0; i < numericBitDepth; i++ {
		bit := (predicate >> uint(numericBitDepth-1-i)) & 1
		plane := n.plane(i)
		if bit == 1 {
			diff := eq.Clone()
			diff.Subtract(plane)
			ret.Or(diff)
			eq.And(plane)
		} else {
			eq.Subtract(plane)
		}
	}
	if allowEquality {
		ret.Or(eq)
	}
	return ret
}

func (n *NumericIndex) Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error) {
	ord, err := orderOf(n.kind, v)
	if err != nil {
		return nil, err
	}
	switch op {
	case Eq:
		if bs, ok := n.exact[ord]; ok {
			return bs.Clone(), nil
		}
		return &bitstream.Ewah{}, nil
	case Neq:
		result := n.present.Clone()
		if bs, ok := n.exact[ord]; ok {
			result.Subtract(bs)
		}
		return result, nil
	case Lt:
		return n.rangeLT(ord, false), nil
	case Lte:
		return n.rangeLT(ord, true), nil
	case Gt:
		result := n.present.Clone()
		result.Subtract(n.rangeLT(ord, true))
		return result, nil
	case Gte:
		result := n.present.Clone()
		result.Subtract(n.rangeLT(ord, false))
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}
