package bitmapindex

import (
	"fmt"
	"time"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/schema"
)

// TimeIndex bins timestamps into buckets of a configurable granularity and
// tracks, per bucket, the identifiers whose timestamp falls in it. Range
// queries (<, <=, >, >=) OR together every bucket on the matching side of
// the threshold bucket.
type TimeIndex struct {
	granularity time.Duration
	highest     uint64
	hasAny      bool

	buckets   map[int64]*bitstream.Ewah
	bucketSeq []int64 // buckets in ascending first-seen order
}

// NewTime constructs a time bitmap index binning to the given granularity
// (e.g. time.Second, time.Minute).
func NewTime(granularity time.Duration) *TimeIndex {
	if granularity <= 0 {
		granularity = time.Second
	}
	return &TimeIndex{granularity: granularity, buckets: make(map[int64]*bitstream.Ewah)}
}

func (t *TimeIndex) bucket(ts time.Time) int64 {
	return ts.UnixNano() / int64(t.granularity)
}

func (t *TimeIndex) HighestID() uint64 {
	if !t.hasAny {
		return bitstream.Npos
	}
	return t.highest
}

func (t *TimeIndex) Append(id uint64, v schema.Value) error {
	if t.hasAny && id <= t.highest {
		return outOfOrder(id, t.highest)
	}
	b := t.bucket(v.Time)
	bs, existed := t.buckets[b]
	t.buckets[b] = growAppend(bs, id)
	if !existed {
		t.bucketSeq = append(t.bucketSeq, b)
	}
	t.highest = id
	t.hasAny = true
	return nil
}

func (t *TimeIndex) Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error) {
	target := t.bucket(v.Time)
	result := t.sizedZero()
	switch op {
	case Eq:
		if bs, ok := t.buckets[target]; ok {
			return bs.Clone(), nil
		}
		return &bitstream.Ewah{}, nil
	case Neq:
		for b, bs := range t.buckets {
			if b != target {
				result.Or(bs)
			}
		}
	case Lt:
		for b, bs := range t.buckets {
			if b < target {
				result.Or(bs)
			}
		}
	case Lte:
		for b, bs := range t.buckets {
			if b <= target {
				result.Or(bs)
			}
		}
	case Gt:
		for b, bs := range t.buckets {
			if b > target {
				result.Or(bs)
			}
		}
	case Gte:
		for b, bs := range t.buckets {
			if b >= target {
				result.Or(bs)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
	return result, nil
}

func (t *TimeIndex) sizedZero() *bitstream.Ewah {
	if !t.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(t.highest+1, false)
}
