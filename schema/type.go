// Package schema defines corvid's type system: the variant of value kinds
// an event's fields can hold, congruence checking between types discovered
// from different sources, and the ordered/hashed lookup a Schema offers by
// type name. Grounded on the ipldbindcode variant-over-any style in the
// teacher repo, adapted from an IPLD codec variant to a security-event
// attribute type system.
package schema

import "fmt"

// Kind enumerates the semantic types an event attribute can carry.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindCount // unsigned 64-bit
	KindReal
	KindTimePoint
	KindTimeDuration
	KindString
	KindPattern
	KindAddress // IPv4 or IPv6
	KindSubnet
	KindPort
	KindEnum
	KindVector
	KindSet
	KindTable
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindCount:
		return "count"
	case KindReal:
		return "real"
	case KindTimePoint:
		return "time"
	case KindTimeDuration:
		return "duration"
	case KindString:
		return "string"
	case KindPattern:
		return "pattern"
	case KindAddress:
		return "address"
	case KindSubnet:
		return "subnet"
	case KindPort:
		return "port"
	case KindEnum:
		return "enum"
	case KindVector:
		return "vector"
	case KindSet:
		return "set"
	case KindTable:
		return "table"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is one named, typed member of a record type.
type Field struct {
	Name string
	Type Type
}

// Type is a named variant over corvid's value kinds. Two types are
// congruent when their Kind and structural components match regardless of
// Name: this is what lets a schema discovered from one event source be
// matched against a schema declared ahead of time by the operator.
type Type struct {
	Name string
	Kind Kind

	// Elem is the element type for Vector and Set.
	Elem *Type
	// Key/Value are the component types for Table.
	Key   *Type
	Value *Type
	// Fields holds the members of a Record, in declaration order.
	Fields []Field
	// Enum holds the permitted symbol names of an Enum.
	Enum []string
}

// Congruent reports whether t and other share the same structure,
// ignoring their Name.
func (t Type) Congruent(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindVector, KindSet:
		return elemCongruent(t.Elem, other.Elem)
	case KindTable:
		return elemCongruent(t.Key, other.Key) && elemCongruent(t.Value, other.Value)
	case KindRecord:
		if len(t.Fields) != len(other.Fields) {
			return false
		}
		for i, f := range t.Fields {
			g := other.Fields[i]
			if f.Name != g.Name || !f.Type.Congruent(g.Type) {
				return false
			}
		}
		return true
	case KindEnum:
		if len(t.Enum) != len(other.Enum) {
			return false
		}
		for i, s := range t.Enum {
			if s != other.Enum[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func elemCongruent(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Congruent(*b)
}

// Record constructs a named record type from its fields.
func Record(name string, fields ...Field) Type {
	return Type{Name: name, Kind: KindRecord, Fields: fields}
}

// F is shorthand for constructing a Field.
func F(name string, t Type) Field { return Field{Name: name, Type: t} }
