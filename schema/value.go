package schema

import (
	"bytes"
	"fmt"
	"net/netip"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Value is a typed attribute value: the Kind discriminates which field of
// the payload is meaningful, following the tagged-sum style the original
// specification calls for instead of per-kind Go interfaces.
type Value struct {
	Kind Kind

	Bool     bool
	Int      int64
	Count    uint64
	Real     float64
	Time     time.Time
	Duration time.Duration
	Str      string
	Pattern  string
	Addr     netip.Addr
	Subnet   netip.Prefix
	Port     uint16
	Enum     string
	Vector   []Value
	Set      []Value
	Table    map[string]Value
	Record   map[string]Value
}

func cborEncMode() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
}

// Marshal encodes v as canonical CBOR, the wire format used for record
// payloads inside a sealed chunk.
func (v Value) Marshal() ([]byte, error) {
	em, err := cborEncMode()
	if err != nil {
		return nil, fmt.Errorf("schema: cbor encode mode: %w", err)
	}
	var buf bytes.Buffer
	enc := em.NewEncoder(&buf)
	if err := enc.Encode(wireValue(v)); err != nil {
		return nil, fmt.Errorf("schema: encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a Value of the given Kind from canonical CBOR produced
// by Marshal.
func Unmarshal(data []byte, kind Kind) (Value, error) {
	var w wire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Value{}, fmt.Errorf("schema: decode value: %w", err)
	}
	return w.toValue(kind)
}

// wire is the CBOR-friendly projection of Value: netip and time types do
// not round-trip cleanly through cbor's reflection-based codec, so they are
// narrowed to strings/int64 on the wire.
type wire struct {
	Bool     bool             `cbor:"1,keyasint,omitempty"`
	Int      int64            `cbor:"2,keyasint,omitempty"`
	Count    uint64           `cbor:"3,keyasint,omitempty"`
	Real     float64          `cbor:"4,keyasint,omitempty"`
	TimeUnix int64            `cbor:"5,keyasint,omitempty"`
	Duration int64            `cbor:"6,keyasint,omitempty"`
	Str      string           `cbor:"7,keyasint,omitempty"`
	Pattern  string           `cbor:"8,keyasint,omitempty"`
	Addr     string           `cbor:"9,keyasint,omitempty"`
	Subnet   string           `cbor:"10,keyasint,omitempty"`
	Port     uint16           `cbor:"11,keyasint,omitempty"`
	Enum     string           `cbor:"12,keyasint,omitempty"`
	Vector   []wire           `cbor:"13,keyasint,omitempty"`
	Set      []wire           `cbor:"14,keyasint,omitempty"`
	Table    map[string]wire  `cbor:"15,keyasint,omitempty"`
	Record   map[string]wire  `cbor:"16,keyasint,omitempty"`
}

func wireValue(v Value) wire {
	w := wire{
		Bool:     v.Bool,
		Int:      v.Int,
		Count:    v.Count,
		Real:     v.Real,
		Duration: int64(v.Duration),
		Str:      v.Str,
		Pattern:  v.Pattern,
		Port:     v.Port,
		Enum:     v.Enum,
	}
	if !v.Time.IsZero() {
		w.TimeUnix = v.Time.UnixNano()
	}
	if v.Addr.IsValid() {
		w.Addr = v.Addr.String()
	}
	if v.Subnet.IsValid() {
		w.Subnet = v.Subnet.String()
	}
	for _, e := range v.Vector {
		w.Vector = append(w.Vector, wireValue(e))
	}
	for _, e := range v.Set {
		w.Set = append(w.Set, wireValue(e))
	}
	if v.Table != nil {
		w.Table = make(map[string]wire, len(v.Table))
		for k, e := range v.Table {
			w.Table[k] = wireValue(e)
		}
	}
	if v.Record != nil {
		w.Record = make(map[string]wire, len(v.Record))
		for k, e := range v.Record {
			w.Record[k] = wireValue(e)
		}
	}
	return w
}

func (w wire) toValue(kind Kind) (Value, error) {
	v := Value{
		Kind:     kind,
		Bool:     w.Bool,
		Int:      w.Int,
		Count:    w.Count,
		Real:     w.Real,
		Duration: time.Duration(w.Duration),
		Str:      w.Str,
		Pattern:  w.Pattern,
		Port:     w.Port,
		Enum:     w.Enum,
	}
	if w.TimeUnix != 0 {
		v.Time = time.Unix(0, w.TimeUnix).UTC()
	}
	if w.Addr != "" {
		addr, err := netip.ParseAddr(w.Addr)
		if err != nil {
			return Value{}, fmt.Errorf("schema: decode address: %w", err)
		}
		v.Addr = addr
	}
	if w.Subnet != "" {
		prefix, err := netip.ParsePrefix(w.Subnet)
		if err != nil {
			return Value{}, fmt.Errorf("schema: decode subnet: %w", err)
		}
		v.Subnet = prefix
	}
	for _, e := range w.Vector {
		ev, err := e.toValue(KindVector)
		if err != nil {
			return Value{}, err
		}
		v.Vector = append(v.Vector, ev)
	}
	for _, e := range w.Set {
		ev, err := e.toValue(KindSet)
		if err != nil {
			return Value{}, err
		}
		v.Set = append(v.Set, ev)
	}
	if w.Table != nil {
		v.Table = make(map[string]Value, len(w.Table))
		for k, e := range w.Table {
			ev, err := e.toValue(KindTable)
			if err != nil {
				return Value{}, err
			}
			v.Table[k] = ev
		}
	}
	if w.Record != nil {
		v.Record = make(map[string]Value, len(w.Record))
		for k, e := range w.Record {
			ev, err := e.toValue(KindRecord)
			if err != nil {
				return Value{}, err
			}
			v.Record[k] = ev
		}
	}
	return v, nil
}
