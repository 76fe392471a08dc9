// Package bitmapindex implements the bitmap index family: a mapping from
// attribute value to a bitstream of the event identifiers holding that
// value, specialized per semantic type. Every variant enforces that
// appended identifiers are strictly increasing, and every variant
// serializes to a compact append-only on-disk form (persist.go) grounded
// on the teacher's compactindexsized bucket-hash format.
package bitmapindex

import (
	"errors"
	"fmt"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/schema"
)

// Operator is a relational operator a Lookup can be asked to evaluate.
type Operator int

const (
	Eq Operator = iota
	Neq
	Lt
	Lte
	Gt
	Gte
	In // substring for strings, subnet for addresses
	RegexMatch
)

func (op Operator) String() string {
	switch op {
	case Eq:
		return "=="
	case Neq:
		return "!="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case In:
		return "in"
	case RegexMatch:
		return "~"
	default:
		return "?"
	}
}

// ErrOutOfOrder is returned by Append when id is not strictly greater than
// the index's current highest identifier.
var ErrOutOfOrder = errors.New("bitmapindex: identifiers must be strictly increasing")

// ErrUnsupportedOperator is returned by Lookup when op has no meaning for
// the index variant.
var ErrUnsupportedOperator = errors.New("bitmapindex: unsupported operator for this index variant")

// Index maps attribute values to bitstreams of the identifiers holding
// them. Every concrete variant below implements it.
type Index interface {
	// Append records that the event at id holds value v. id must be
	// strictly greater than HighestID(), or ErrOutOfOrder is returned.
	Append(id uint64, v schema.Value) error
	// Lookup returns the bitstream of identifiers satisfying op(attr, v).
	Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error)
	// HighestID returns the greatest identifier appended so far, or
	// bitstream.Npos if the index is empty.
	HighestID() uint64
}

func outOfOrder(id, highest uint64) error {
	return fmt.Errorf("%w: id=%d highest=%d", ErrOutOfOrder, id, highest)
}

// growAppend extends bs (creating it if nil) with zeros up to id, then sets
// bit id. Used by every variant's per-value bitstream maintenance.
func growAppend(bs *bitstream.Ewah, id uint64) *bitstream.Ewah {
	if bs == nil {
		bs = &bitstream.Ewah{}
	}
	if gap := id - bs.Size(); gap > 0 {
		bs.Append(gap, false)
	}
	bs.PushBack(true)
	return bs
}
