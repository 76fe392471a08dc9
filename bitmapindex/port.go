package bitmapindex

import (
	"fmt"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/schema"
)

// PortIndex maps 16-bit port numbers to identifiers via a direct array of
// per-value bitstreams; ports form a small enough domain that this beats
// bit-slicing for range queries too.
type PortIndex struct {
	highest uint64
	hasAny  bool

	byPort map[uint16]*bitstream.Ewah
}

// NewPort constructs an empty port bitmap index.
func NewPort() *PortIndex {
	return &PortIndex{byPort: make(map[uint16]*bitstream.Ewah)}
}

func (p *PortIndex) HighestID() uint64 {
	if !p.hasAny {
		return bitstream.Npos
	}
	return p.highest
}

func (p *PortIndex) Append(id uint64, v schema.Value) error {
	if p.hasAny && id <= p.highest {
		return outOfOrder(id, p.highest)
	}
	bs, existed := p.byPort[v.Port]
	p.byPort[v.Port] = growAppend(bs, id)
	_ = existed
	p.highest = id
	p.hasAny = true
	return nil
}

func (p *PortIndex) sizedZero() *bitstream.Ewah {
	if !p.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(p.highest+1, false)
}

func (p *PortIndex) Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error) {
	switch op {
	case Eq:
		if bs, ok := p.byPort[v.Port]; ok {
			return bs.Clone(), nil
		}
		return &bitstream.Ewah{}, nil
	case Neq:
		result := p.sizedZero()
		for port, bs := range p.byPort {
			if port != v.Port {
				result.Or(bs)
			}
		}
		return result, nil
	case Lt, Lte, Gt, Gte:
		result := p.sizedZero()
		for port, bs := range p.byPort {
			if portMatches(op, port, v.Port) {
				result.Or(bs)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

func portMatches(op Operator, port, target uint16) bool {
	switch op {
	case Lt:
		return port < target
	case Lte:
		return port <= target
	case Gt:
		return port > target
	case Gte:
		return port >= target
	default:
		return false
	}
}
