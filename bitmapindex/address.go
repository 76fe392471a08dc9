package bitmapindex

import (
	"fmt"
	"net/netip"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/schema"
)

// addressBits is the width, in bits, of an IPv6 address (IPv4 addresses are
// indexed as their v4-mapped-within-v6 bit pattern so a single bit-plane
// array covers both families).
const addressBits = 128

// AddressIndex maps IPv4/IPv6 addresses to identifiers, supporting exact
// equality via a hash map and subnet containment via a bit-plane
// decomposition: one bitstream per address bit recording which
// identifiers have that bit set, so that `in <subnet>` reduces to ANDing
// together one bitstream (or its complement) per fixed prefix bit.
type AddressIndex struct {
	highest uint64
	hasAny  bool

	exact map[netip.Addr]*bitstream.Ewah
	// planes[i] is the bitstream of identifiers whose address has bit i
	// set, scanning from the most significant bit (plane 0) to least.
	planes [addressBits]*bitstream.Ewah
}

// NewAddress constructs an empty address bitmap index.
func NewAddress() *AddressIndex {
	return &AddressIndex{exact: make(map[netip.Addr]*bitstream.Ewah)}
}

func (a *AddressIndex) HighestID() uint64 {
	if !a.hasAny {
		return bitstream.Npos
	}
	return a.highest
}

// bitsOf returns addr's 128-bit representation (IPv4 addresses are widened
// via Addr.As16, which is the standard IPv4-in-IPv6 mapped form).
func bitsOf(addr netip.Addr) [16]byte {
	return addr.As16()
}

func bitAt(bytes [16]byte, i int) bool {
	return bytes[i/8]&(1<<(7-uint(i%8))) != 0
}

func (a *AddressIndex) Append(id uint64, v schema.Value) error {
	if a.hasAny && id <= a.highest {
		return outOfOrder(id, a.highest)
	}
	bs, existed := a.exact[v.Addr]
	a.exact[v.Addr] = growAppend(bs, id)
	_ = existed
	bits := bitsOf(v.Addr)
	for i := 0; i < addressBits; i++ {
		if bitAt(bits, i) {
			a.planes[i] = growAppend(a.planes[i], id)
		} else if a.planes[i] != nil {
			// Keep every plane's logical size in step with the index so
			// later zero-extension in boolean ops lines up by identifier.
			a.planes[i].Append(id-a.planes[i].Size()+1, false)
		}
	}
	a.highest = id
	a.hasAny = true
	return nil
}

func (a *AddressIndex) sizedZero() *bitstream.Ewah {
	if !a.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(a.highest+1, false)
}

func (a *AddressIndex) sizedOne() *bitstream.Ewah {
	if !a.hasAny {
		return &bitstream.Ewah{}
	}
	return bitstream.NewEwah(a.highest+1, true)
}

func (a *AddressIndex) Lookup(op Operator, v schema.Value) (*bitstream.Ewah, error) {
	switch op {
	case Eq:
		if bs, ok := a.exact[v.Addr]; ok {
			return bs.Clone(), nil
		}
		return &bitstream.Ewah{}, nil
	case Neq:
		result := a.sizedZero()
		for addr, bs := range a.exact {
			if addr != v.Addr {
				result.Or(bs)
			}
		}
		return result, nil
	case In:
		return a.lookupSubnet(v.Subnet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

// lookupSubnet ANDs together, for every fixed prefix bit of subnet, the
// plane matching that bit's value (or the plane's complement), yielding
// the identifiers whose address falls within subnet.
func (a *AddressIndex) lookupSubnet(subnet netip.Prefix) (*bitstream.Ewah, error) {
	if !subnet.IsValid() {
		return nil, fmt.Errorf("bitmapindex: invalid subnet")
	}
	base := subnet.Addr()
	// IPv4 prefixes are expressed in 32-bit terms; offset into the
	// 128-bit plane array at the IPv4-mapped position.
	bits := bitsOf(base)
	prefixLen := subnet.Bits()
	offset := 0
	if base.Is4() {
		offset = addressBits - 32
	}
	result := a.sizedOne()
	for i := 0; i < prefixLen; i++ {
		plane := a.planes[offset+i]
		if plane == nil {
			plane = a.sizedZero()
		}
		if bitAt(bits, offset+i) {
			result.And(plane)
		} else {
			complement := plane.Clone()
			complement.Not()
			result.And(complement)
		}
	}
	return result, nil
}
