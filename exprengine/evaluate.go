package exprengine

import (
	"fmt"

	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/schema"
)

// IndexSource resolves a DataExtractor field name to the bitmap index
// responsible for it. INDEX actors implement this directly over their
// per-field shards.
type IndexSource interface {
	Index(field string) (bitmapindex.Index, bool)
}

// EvaluateIndex walks a type-resolved AST, delegating each predicate to its
// field's bitmap index and combining results via the node operator. universe
// bounds the identifier space for Negation, since a bitstream can only be
// inverted relative to a known size (the archive's highest known id + 1).
func EvaluateIndex(n *Node, src IndexSource, universe uint64) (*bitstream.Ewah, error) {
	switch n.Kind {
	case NodeLiteral:
		if n.Bool {
			return bitstream.NewEwah(universe, true), nil
		}
		return &bitstream.Ewah{}, nil
	case NodePredicate:
		p := n.Predicate
		if p.Extractor.Kind != DataExtractor {
			return nil, fmt.Errorf("exprengine: predicate on %s extractor cannot be evaluated by index, resolve schema first", p.Extractor.Kind)
		}
		idx, ok := src.Index(p.Extractor.Name)
		if !ok {
			return &bitstream.Ewah{}, nil
		}
		return idx.Lookup(p.Op, p.Value)
	case NodeNegation:
		child, err := EvaluateIndex(n.Operand, src, universe)
		if err != nil {
			return nil, err
		}
		result := child.Clone()
		if result.Size() < universe {
			result.Append(universe-result.Size(), false)
		}
		result.Not()
		return result, nil
	case NodeConjunction:
		return combineIndex(n.Children, src, universe, (*bitstream.Ewah).And, true)
	case NodeDisjunction:
		return combineIndex(n.Children, src, universe, (*bitstream.Ewah).Or, false)
	default:
		return nil, fmt.Errorf("exprengine: cannot evaluate node kind %s against index", n.Kind)
	}
}

func combineIndex(children []*Node, src IndexSource, universe uint64, combine func(*bitstream.Ewah, bitstream.Bitstream), identityAllOnes bool) (*bitstream.Ewah, error) {
	if len(children) == 0 {
		if identityAllOnes {
			return bitstream.NewEwah(universe, true), nil
		}
		return &bitstream.Ewah{}, nil
	}
	acc, err := EvaluateIndex(children[0], src, universe)
	if err != nil {
		return nil, err
	}
	acc = acc.Clone()
	for _, c := range children[1:] {
		next, err := EvaluateIndex(c, src, universe)
		if err != nil {
			return nil, err
		}
		combine(acc, next)
	}
	return acc, nil
}

// EventSource resolves an Extractor against a concrete event, for the
// candidate check performed after index lookups (which may yield
// supersets of the true answer).
type EventSource interface {
	Value(extractor Extractor, ev event.Event) (schema.Value, bool)
}

// defaultEventSource reads DataExtractor/SchemaExtractor fields straight
// out of event.Event.Fields, and EventExtractor("timestamp") from the
// event's Timestamp.
type defaultEventSource struct{}

// DefaultEventSource is the EventSource used when no custom resolver is
// needed: schema- and data-extractors read event.Fields by name, and the
// "timestamp" event extractor reads event.Timestamp as a time.Time value.
var DefaultEventSource EventSource = defaultEventSource{}

func (defaultEventSource) Value(extractor Extractor, ev event.Event) (schema.Value, bool) {
	switch extractor.Kind {
	case EventExtractor:
		if extractor.Name == "timestamp" {
			return schema.Value{Kind: schema.KindTimePoint, Time: ev.Timestamp}, true
		}
		return schema.Value{}, false
	case TypeExtractor:
		return schema.Value{Kind: schema.KindBool, Bool: extractor.Name == ev.Type}, true
	default:
		v, ok := ev.Get(extractor.Name)
		return v, ok
	}
}

// EvaluateEvent evaluates a type-resolved AST against a single event with
// short-circuit boolean logic.
func EvaluateEvent(n *Node, ev event.Event, src EventSource) (bool, error) {
	switch n.Kind {
	case NodeLiteral:
		return n.Bool, nil
	case NodeNegation:
		v, err := EvaluateEvent(n.Operand, ev, src)
		return !v, err
	case NodeConjunction:
		for _, c := range n.Children {
			v, err := EvaluateEvent(c, ev, src)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case NodeDisjunction:
		for _, c := range n.Children {
			v, err := EvaluateEvent(c, ev, src)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case NodePredicate:
		p := n.Predicate
		if p.Extractor.Kind == TypeExtractor {
			return p.Extractor.Name == ev.Type, nil
		}
		actual, ok := src.Value(p.Extractor, ev)
		if !ok {
			return false, nil
		}
		return predicateMatches(p.Op, actual, p.Value)
	default:
		return false, fmt.Errorf("exprengine: cannot evaluate node kind %s against an event", n.Kind)
	}
}

func predicateMatches(op bitmapindex.Operator, actual, want schema.Value) (bool, error) {
	cmp, ok := compareValues(actual, want)
	switch op {
	case bitmapindex.Eq:
		return ok && cmp == 0, nil
	case bitmapindex.Neq:
		return !ok || cmp != 0, nil
	case bitmapindex.Lt:
		return ok && cmp < 0, nil
	case bitmapindex.Lte:
		return ok && cmp <= 0, nil
	case bitmapindex.Gt:
		return ok && cmp > 0, nil
	case bitmapindex.Gte:
		return ok && cmp >= 0, nil
	case bitmapindex.In:
		return valueContains(actual, want), nil
	case bitmapindex.RegexMatch:
		return regexMatches(actual, want)
	default:
		return false, fmt.Errorf("%w: %s", bitmapindex.ErrUnsupportedOperator, op)
	}
}
