// Package exprengine implements the EXPRESSION engine: parsing a query
// string into an AST, normalizing it, resolving schema and type references
// against a concrete record type, and evaluating it either against bitmap
// indexes (producing a candidate bitstream) or against a single event
// (short-circuit boolean check). Grounded on vast/expr's visitor-based AST
// in original_source, reworked as a tagged-variant Node the way the
// teacher's ipldbindcode package represents IPLD kinds.
package exprengine

import (
	"fmt"
	"strings"

	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/schema"
)

// NodeKind distinguishes the variants of an expression AST node.
type NodeKind int

const (
	NodeConjunction NodeKind = iota
	NodeDisjunction
	NodeNegation
	NodePredicate
	NodeLiteral // constant true/false, produced by pruning
)

func (k NodeKind) String() string {
	switch k {
	case NodeConjunction:
		return "and"
	case NodeDisjunction:
		return "or"
	case NodeNegation:
		return "not"
	case NodePredicate:
		return "predicate"
	case NodeLiteral:
		return "literal"
	default:
		return "?"
	}
}

// ExtractorKind distinguishes what a Predicate's left-hand side names.
type ExtractorKind int

const (
	// TypeExtractor matches events whose record type has the given name.
	TypeExtractor ExtractorKind = iota
	// SchemaExtractor names a field by dotted path (e.g. "id.orig_h"),
	// resolved against a schema into a concrete DataExtractor per type.
	SchemaExtractor
	// EventExtractor names event metadata (currently "timestamp").
	EventExtractor
	// DataExtractor names a field directly by its resolved name; this is
	// what SchemaExtractors become after schema resolution.
	DataExtractor
)

func (k ExtractorKind) String() string {
	switch k {
	case TypeExtractor:
		return "type"
	case SchemaExtractor:
		return "schema"
	case EventExtractor:
		return "event"
	case DataExtractor:
		return "data"
	default:
		return "?"
	}
}

// Extractor names the left-hand side of a Predicate.
type Extractor struct {
	Kind ExtractorKind
	Name string // type name, field path, event field, or resolved field name
}

func (e Extractor) String() string { return e.Name }

// Predicate is a single (extractor, operator, value) comparison.
type Predicate struct {
	Extractor Extractor
	Op        bitmapindex.Operator
	Value     schema.Value
}

// Node is a tagged-variant expression AST node.
type Node struct {
	Kind      NodeKind
	Children  []*Node    // Conjunction, Disjunction
	Operand   *Node      // Negation
	Predicate *Predicate // Predicate
	Bool      bool       // Literal
}

// And builds a conjunction of the given children.
func And(children ...*Node) *Node { return &Node{Kind: NodeConjunction, Children: children} }

// Or builds a disjunction of the given children.
func Or(children ...*Node) *Node { return &Node{Kind: NodeDisjunction, Children: children} }

// Not negates operand.
func Not(operand *Node) *Node { return &Node{Kind: NodeNegation, Operand: operand} }

// Pred builds a predicate leaf.
func Pred(extractor Extractor, op bitmapindex.Operator, v schema.Value) *Node {
	return &Node{Kind: NodePredicate, Predicate: &Predicate{Extractor: extractor, Op: op, Value: v}}
}

// Literal builds a constant true/false leaf, used by pruning passes.
func Literal(b bool) *Node { return &Node{Kind: NodeLiteral, Bool: b} }

// String renders n as an s-expression-like form, useful for tests and logs.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case NodeConjunction, NodeDisjunction:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("(%s %s)", n.Kind, strings.Join(parts, " "))
	case NodeNegation:
		return fmt.Sprintf("(not %s)", n.Operand.String())
	case NodePredicate:
		p := n.Predicate
		return fmt.Sprintf("(%s %s %v)", p.Extractor, p.Op, valueRepr(p.Value))
	case NodeLiteral:
		return fmt.Sprintf("%v", n.Bool)
	default:
		return "?"
	}
}

func valueRepr(v schema.Value) any {
	switch v.Kind {
	case schema.KindString:
		return v.Str
	case schema.KindInt:
		return v.Int
	case schema.KindCount:
		return v.Count
	case schema.KindReal:
		return v.Real
	case schema.KindBool:
		return v.Bool
	default:
		return v.Kind.String()
	}
}
