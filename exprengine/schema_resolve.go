package exprengine

import "github.com/corvidlabs/corvid/schema"

// ResolveSchema substitutes every SchemaExtractor in n with a concrete
// DataExtractor for the given record type, by walking the dotted field
// path through t's fields. A path that does not resolve against t prunes
// the predicate to Literal(false) — the schema-resolved AST is meant to be
// evaluated only against events of this exact type, and a field that
// doesn't exist on it can never match. Per spec, pruning a required clause
// of a conjunction prunes the conjunction; that absorption happens in the
// simplify pass applied at the end.
func ResolveSchema(n *Node, t schema.Type) *Node {
	return simplify(resolveSchema(n, t))
}

func resolveSchema(n *Node, t schema.Type) *Node {
	switch n.Kind {
	case NodeConjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = resolveSchema(c, t)
		}
		return And(children...)
	case NodeDisjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = resolveSchema(c, t)
		}
		return Or(children...)
	case NodeNegation:
		return Not(resolveSchema(n.Operand, t))
	case NodePredicate:
		p := n.Predicate
		switch p.Extractor.Kind {
		case SchemaExtractor:
			if field, ok := resolveField(t, p.Extractor.Name); ok {
				return Pred(Extractor{Kind: DataExtractor, Name: field.Name}, p.Op, p.Value)
			}
			return Literal(false)
		case TypeExtractor:
			return Literal(p.Extractor.Name == t.Name)
		default:
			return Pred(p.Extractor, p.Op, p.Value)
		}
	default:
		return n
	}
}

// resolveField walks a dotted path (e.g. "id.orig_h") through t's nested
// Record fields, returning the innermost matching Field.
func resolveField(t schema.Type, path string) (schema.Field, bool) {
	segments := splitPath(path)
	current := t
	var field schema.Field
	for i, seg := range segments {
		found := false
		for _, f := range current.Fields {
			if f.Name == seg {
				field = f
				found = true
				break
			}
		}
		if !found {
			return schema.Field{}, false
		}
		if i < len(segments)-1 {
			if field.Type.Kind != schema.KindRecord {
				return schema.Field{}, false
			}
			current = field.Type
		}
	}
	return field, true
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}
