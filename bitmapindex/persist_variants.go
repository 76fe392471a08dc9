package bitmapindex

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/corvidlabs/corvid/schema"
)

// variantKindTag marks the non-numeric, non-string variants (address, port,
// time): they reuse the kind byte's low bits for the schema.Kind and set
// this high bit to disambiguate the on-disk variant, the same trick
// NumericIndex.Save uses with 0x80.
const variantKindTag = 0x40

// Save persists the string index's exact-match table.
func (s *StringIndex) Save(w io.Writer) error {
	entries := make([]Entry, 0, len(s.order))
	for _, val := range s.order {
		entries = append(entries, Entry{Key: []byte(val), Value: s.exact[val]})
	}
	return WriteEntries(w, uint8(schema.KindString), s.HighestID(), entries)
}

// LoadString reopens a string index previously written by Save, restoring
// the highest-id invariant.
func LoadString(r io.Reader) (*StringIndex, error) {
	header, entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	if header.Kind != uint8(schema.KindString) {
		return nil, fmt.Errorf("bitmapindex: expected string index, got kind %d", header.Kind)
	}
	s := NewString()
	for _, e := range entries {
		val := string(e.Key)
		s.exact[val] = e.Value
		s.order = append(s.order, val)
	}
	s.highest = header.HighestID
	s.hasAny = header.NumEntries > 0 || header.HighestID != 0
	return s, nil
}

// Save persists the numeric index's bit-plane and exact-match state.
// Planes are reconstructed from the exact entries on load, so only the
// exact table and the value kind need to round-trip.
func (n *NumericIndex) Save(w io.Writer) error {
	entries := make([]Entry, 0, len(n.exact))
	for ord, bs := range n.exact {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, ord)
		entries = append(entries, Entry{Key: key, Value: bs})
	}
	return WriteEntries(w, uint8(n.kind)|0x80, n.HighestID(), entries)
}

// LoadNumeric reopens a numeric index previously written by Save.
func LoadNumeric(r io.Reader) (*NumericIndex, error) {
	header, entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	if header.Kind&0x80 == 0 {
		return nil, fmt.Errorf("bitmapindex: expected numeric index, got kind %d", header.Kind)
	}
	n := NewNumeric(schema.Kind(header.Kind &^ 0x80))
	n.present = nil
	for _, e := range entries {
		ord := binary.BigEndian.Uint64(e.Key)
		n.exact[ord] = e.Value
		for i := 0; i < numericBitDepth; i++ {
			if ord&(uint64(1)<<(numericBitDepth-1-i)) == 0 {
				continue
			}
			if n.planes[i] == nil {
				n.planes[i] = e.Value.Clone()
			} else {
				n.planes[i].Or(e.Value)
			}
		}
		if n.present == nil {
			n.present = e.Value.Clone()
		} else {
			n.present.Or(e.Value)
		}
	}
	if n.present == nil {
		n.present = newZeroEwah()
	}
	n.highest = header.HighestID
	n.hasAny = header.NumEntries > 0 || header.HighestID != 0
	return n, nil
}

// Save persists the address index's exact-match table; bit planes are
// reconstructed from it on load, exactly as NumericIndex.Save does for its
// bit-sliced planes.
func (a *AddressIndex) Save(w io.Writer) error {
	entries := make([]Entry, 0, len(a.exact))
	for addr, bs := range a.exact {
		entries = append(entries, Entry{Key: addr.AsSlice(), Value: bs})
	}
	return WriteEntries(w, uint8(schema.KindAddress)|variantKindTag, a.HighestID(), entries)
}

// LoadAddress reopens an address index previously written by Save.
func LoadAddress(r io.Reader) (*AddressIndex, error) {
	header, entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	if header.Kind != uint8(schema.KindAddress)|variantKindTag {
		return nil, fmt.Errorf("bitmapindex: expected address index, got kind %d", header.Kind)
	}
	a := NewAddress()
	for _, e := range entries {
		addr, ok := netip.AddrFromSlice(e.Key)
		if !ok {
			return nil, fmt.Errorf("bitmapindex: corrupt address entry of length %d", len(e.Key))
		}
		a.exact[addr] = e.Value
		bits := bitsOf(addr)
		for i := 0; i < addressBits; i++ {
			if !bitAt(bits, i) {
				continue
			}
			if a.planes[i] == nil {
				a.planes[i] = e.Value.Clone()
			} else {
				a.planes[i].Or(e.Value)
			}
		}
	}
	a.highest = header.HighestID
	a.hasAny = header.NumEntries > 0 || header.HighestID != 0
	return a, nil
}

// Save persists the port index's per-value table.
func (p *PortIndex) Save(w io.Writer) error {
	entries := make([]Entry, 0, len(p.byPort))
	for port, bs := range p.byPort {
		key := make([]byte, 2)
		binary.BigEndian.PutUint16(key, port)
		entries = append(entries, Entry{Key: key, Value: bs})
	}
	return WriteEntries(w, uint8(schema.KindPort)|variantKindTag, p.HighestID(), entries)
}

// LoadPort reopens a port index previously written by Save.
func LoadPort(r io.Reader) (*PortIndex, error) {
	header, entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	if header.Kind != uint8(schema.KindPort)|variantKindTag {
		return nil, fmt.Errorf("bitmapindex: expected port index, got kind %d", header.Kind)
	}
	p := NewPort()
	for _, e := range entries {
		if len(e.Key) != 2 {
			return nil, fmt.Errorf("bitmapindex: corrupt port entry of length %d", len(e.Key))
		}
		p.byPort[binary.BigEndian.Uint16(e.Key)] = e.Value
	}
	p.highest = header.HighestID
	p.hasAny = header.NumEntries > 0 || header.HighestID != 0
	return p, nil
}

// Save persists the time index's bucket table, prefixed by the
// granularity it was binned with since reopening must bin future appends
// identically.
func (t *TimeIndex) Save(w io.Writer) error {
	var granBuf [8]byte
	binary.LittleEndian.PutUint64(granBuf[:], uint64(t.granularity))
	if _, err := w.Write(granBuf[:]); err != nil {
		return fmt.Errorf("bitmapindex: write time granularity: %w", err)
	}
	entries := make([]Entry, 0, len(t.bucketSeq))
	for _, b := range t.bucketSeq {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(b))
		entries = append(entries, Entry{Key: key, Value: t.buckets[b]})
	}
	return WriteEntries(w, uint8(schema.KindTimePoint)|variantKindTag, t.HighestID(), entries)
}

// LoadTime reopens a time index previously written by Save.
func LoadTime(r io.Reader) (*TimeIndex, error) {
	var granBuf [8]byte
	if _, err := io.ReadFull(r, granBuf[:]); err != nil {
		return nil, fmt.Errorf("bitmapindex: read time granularity: %w", err)
	}
	granularity := time.Duration(binary.LittleEndian.Uint64(granBuf[:]))
	header, entries, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	if header.Kind != uint8(schema.KindTimePoint)|variantKindTag {
		return nil, fmt.Errorf("bitmapindex: expected time index, got kind %d", header.Kind)
	}
	t := NewTime(granularity)
	for _, e := range entries {
		if len(e.Key) != 8 {
			return nil, fmt.Errorf("bitmapindex: corrupt time bucket entry of length %d", len(e.Key))
		}
		b := int64(binary.BigEndian.Uint64(e.Key))
		t.buckets[b] = e.Value
		t.bucketSeq = append(t.bucketSeq, b)
	}
	t.highest = header.HighestID
	t.hasAny = header.NumEntries > 0 || header.HighestID != 0
	return t, nil
}
