package exprengine

import (
	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/schema"
)

// ResolveTypes walks a schema-resolved AST (DataExtractors only) and casts
// each predicate's value to the field's declared kind, pruning predicates
// that cannot be cast. Per spec, pruning a required clause of a
// conjunction prunes the conjunction — handled by the simplify pass.
func ResolveTypes(n *Node, t schema.Type) *Node {
	return simplify(resolveTypes(n, t))
}

func resolveTypes(n *Node, t schema.Type) *Node {
	switch n.Kind {
	case NodeConjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = resolveTypes(c, t)
		}
		return And(children...)
	case NodeDisjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = resolveTypes(c, t)
		}
		return Or(children...)
	case NodeNegation:
		return Not(resolveTypes(n.Operand, t))
	case NodePredicate:
		p := n.Predicate
		if p.Extractor.Kind != DataExtractor {
			return Pred(p.Extractor, p.Op, p.Value)
		}
		field, ok := fieldByName(t, p.Extractor.Name)
		if !ok {
			return Literal(false)
		}
		cast, ok := castValue(p.Value, field.Type.Kind, p.Op)
		if !ok {
			return Literal(false)
		}
		return Pred(p.Extractor, p.Op, cast)
	default:
		return n
	}
}

func fieldByName(t schema.Type, name string) (schema.Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.Field{}, false
}

// castValue attempts to convert v to the target kind without loss of
// meaning; numeric kinds interconvert, string and pattern interconvert, and
// everything else requires an exact kind match. op carries the relational operator the predicate uses a
// field's value under, since §4.2's `in <subnet>` compares an address field
// against a subnet operand rather than two values of the same kind.
func castValue(v schema.Value, target schema.Kind, op bitmapindex.Operator) (schema.Value, bool) {
	if v.Kind == target {
		return v, true
	}
	if target == schema.KindAddress && v.Kind == schema.KindSubnet && op == bitmapindex.In {
		return v, true
	}
	switch target {
	case schema.KindInt:
		switch v.Kind {
		case schema.KindCount:
			return schema.Value{Kind: schema.KindInt, Int: int64(v.Count)}, true
		case schema.KindReal:
			return schema.Value{Kind: schema.KindInt, Int: int64(v.Real)}, true
		}
	case schema.KindCount:
		switch v.Kind {
		case schema.KindInt:
			if v.Int < 0 {
				return schema.Value{}, false
			}
			return schema.Value{Kind: schema.KindCount, Count: uint64(v.Int)}, true
		case schema.KindReal:
			if v.Real < 0 {
				return schema.Value{}, false
			}
			return schema.Value{Kind: schema.KindCount, Count: uint64(v.Real)}, true
		}
	case schema.KindReal:
		switch v.Kind {
		case schema.KindInt:
			return schema.Value{Kind: schema.KindReal, Real: float64(v.Int)}, true
		case schema.KindCount:
			return schema.Value{Kind: schema.KindReal, Real: float64(v.Count)}, true
		}
	case schema.KindString:
		if v.Kind == schema.KindPattern {
			return schema.Value{Kind: schema.KindString, Str: v.Pattern}, true
		}
	case schema.KindPattern:
		if v.Kind == schema.KindString {
			return schema.Value{Kind: schema.KindPattern, Pattern: v.Str}, true
		}
	}
	return schema.Value{}, false
}
