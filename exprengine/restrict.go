package exprengine

import (
	"time"

	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/schema"
)

// Window is a closed time interval used by the time-restriction pre-pass
// to prune sub-expressions that cannot match, e.g. to skip chunks whose
// [FirstTS, LastTS] lies outside the query window.
type Window struct {
	From, To time.Time
}

// Restrict prunes sub-expressions of n that a "timestamp" EventExtractor
// predicate can statically prove false over w, mirroring the conjunction/
// disjunction absorption rules of simplify.
func Restrict(n *Node, w Window) *Node {
	return simplify(restrict(n, w))
}

func restrict(n *Node, w Window) *Node {
	switch n.Kind {
	case NodeConjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = restrict(c, w)
		}
		return And(children...)
	case NodeDisjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = restrict(c, w)
		}
		return Or(children...)
	case NodeNegation:
		return Not(restrict(n.Operand, w))
	case NodePredicate:
		p := n.Predicate
		if p.Extractor.Kind == EventExtractor && p.Extractor.Name == "timestamp" && p.Value.Kind == schema.KindTimePoint {
			if provablyFalse(p.Op, p.Value.Time, w) {
				return Literal(false)
			}
		}
		return Pred(p.Extractor, p.Op, p.Value)
	default:
		return n
	}
}

// provablyFalse reports whether no timestamp within w can satisfy
// op(timestamp, target).
func provablyFalse(op bitmapindex.Operator, target time.Time, w Window) bool {
	switch op {
	case bitmapindex.Eq:
		return target.Before(w.From) || target.After(w.To)
	case bitmapindex.Lt:
		// timestamp < target can only hold within w if w.From < target.
		return !w.From.Before(target)
	case bitmapindex.Lte:
		return w.From.After(target)
	case bitmapindex.Gt:
		return !w.To.After(target)
	case bitmapindex.Gte:
		return w.To.Before(target)
	default:
		return false
	}
}
