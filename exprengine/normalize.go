package exprengine

import "github.com/corvidlabs/corvid/bitmapindex"

// negateOp returns the operator that negates op where a pure relational
// inverse exists; ok is false for operators without one (In, RegexMatch),
// in which case the caller must keep the Negation node rather than push it
// into the predicate.
func negateOp(op bitmapindex.Operator) (bitmapindex.Operator, bool) {
	switch op {
	case bitmapindex.Eq:
		return bitmapindex.Neq, true
	case bitmapindex.Neq:
		return bitmapindex.Eq, true
	case bitmapindex.Lt:
		return bitmapindex.Gte, true
	case bitmapindex.Lte:
		return bitmapindex.Gt, true
	case bitmapindex.Gt:
		return bitmapindex.Lte, true
	case bitmapindex.Gte:
		return bitmapindex.Lt, true
	default:
		return op, false
	}
}

// ToNNF pushes negations down to the leaves (De Morgan), collapsing double
// negation and rewriting negated predicates to their relational inverse
// where one exists.
func ToNNF(n *Node) *Node {
	return toNNF(n, false)
}

func toNNF(n *Node, negated bool) *Node {
	switch n.Kind {
	case NodeLiteral:
		if negated {
			return Literal(!n.Bool)
		}
		return Literal(n.Bool)
	case NodePredicate:
		if !negated {
			return Pred(n.Predicate.Extractor, n.Predicate.Op, n.Predicate.Value)
		}
		if inv, ok := negateOp(n.Predicate.Op); ok {
			return Pred(n.Predicate.Extractor, inv, n.Predicate.Value)
		}
		return Not(Pred(n.Predicate.Extractor, n.Predicate.Op, n.Predicate.Value))
	case NodeNegation:
		return toNNF(n.Operand, !negated)
	case NodeConjunction:
		children := mapNNF(n.Children, negated)
		if negated {
			return Or(children...)
		}
		return And(children...)
	case NodeDisjunction:
		children := mapNNF(n.Children, negated)
		if negated {
			return And(children...)
		}
		return Or(children...)
	default:
		return n
	}
}

func mapNNF(children []*Node, negated bool) []*Node {
	out := make([]*Node, len(children))
	for i, c := range children {
		out[i] = toNNF(c, negated)
	}
	return out
}

// ToDNF converts n to disjunctive normal form: it first applies ToNNF, then
// distributes conjunctions over disjunctions.
func ToDNF(n *Node) *Node {
	n = ToNNF(n)
	return distribute(n)
}

func distribute(n *Node) *Node {
	switch n.Kind {
	case NodeNegation:
		return Not(distribute(n.Operand))
	case NodeDisjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = distribute(c)
		}
		return Or(children...)
	case NodeConjunction:
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = distribute(c)
		}
		return distributeConjunction(children)
	default:
		return n
	}
}

// distributeConjunction rewrites AND(c1, c2, ...) into an OR of ANDs when
// any ci is itself a disjunction, by repeatedly cross-multiplying pairs.
func distributeConjunction(children []*Node) *Node {
	terms := [][]*Node{{}}
	for _, c := range children {
		var alternatives []*Node
		if c.Kind == NodeDisjunction {
			alternatives = c.Children
		} else {
			alternatives = []*Node{c}
		}
		var next [][]*Node
		for _, term := range terms {
			for _, alt := range alternatives {
				combined := make([]*Node, len(term), len(term)+1)
				copy(combined, term)
				combined = append(combined, alt)
				next = append(next, combined)
			}
		}
		terms = next
	}
	if len(terms) == 1 {
		return And(terms[0]...)
	}
	disjuncts := make([]*Node, len(terms))
	for i, term := range terms {
		disjuncts[i] = And(term...)
	}
	return Or(disjuncts...)
}

// simplify applies the absorbing/identity rules for Literal children
// produced by pruning passes: a false conjunct makes its whole conjunction
// false (a required clause pruning its conjunction, per the candidate-check
// semantics); a false disjunct is dropped; an empty conjunction is
// vacuously true, an empty disjunction vacuously false.
func simplify(n *Node) *Node {
	switch n.Kind {
	case NodeNegation:
		operand := simplify(n.Operand)
		if operand.Kind == NodeLiteral {
			return Literal(!operand.Bool)
		}
		return Not(operand)
	case NodeConjunction:
		var kept []*Node
		for _, c := range n.Children {
			c = simplify(c)
			if c.Kind == NodeLiteral {
				if !c.Bool {
					return Literal(false)
				}
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			return Literal(true)
		}
		if len(kept) == 1 {
			return kept[0]
		}
		return And(kept...)
	case NodeDisjunction:
		var kept []*Node
		for _, c := range n.Children {
			c = simplify(c)
			if c.Kind == NodeLiteral {
				if c.Bool {
					return Literal(true)
				}
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			return Literal(false)
		}
		if len(kept) == 1 {
			return kept[0]
		}
		return Or(kept...)
	default:
		return n
	}
}
