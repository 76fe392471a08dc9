package exprengine

import (
	"net/netip"
	"testing"
	"time"

	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/schema"
)

var flowType = schema.Record("net.flow",
	schema.F("proto", schema.Type{Kind: schema.KindString}),
	schema.F("bytes", schema.Type{Kind: schema.KindCount}),
)

func TestParseSimplePredicate(t *testing.T) {
	n, err := Parse(`proto == "tcp"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Kind != NodePredicate {
		t.Fatalf("Kind = %v, want NodePredicate", n.Kind)
	}
	if n.Predicate.Op != bitmapindex.Eq || n.Predicate.Value.Str != "tcp" {
		t.Fatalf("unexpected predicate: %+v", n.Predicate)
	}
}

func TestParseConjunctionAndDisjunction(t *testing.T) {
	n, err := Parse(`proto == "tcp" && bytes > 100`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Kind != NodeConjunction || len(n.Children) != 2 {
		t.Fatalf("got %s, want a 2-child conjunction", n)
	}

	n2, err := Parse(`proto == "tcp" || proto == "udp"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n2.Kind != NodeDisjunction {
		t.Fatalf("got %s, want a disjunction", n2)
	}
}

func TestParseNegationAndParens(t *testing.T) {
	n, err := Parse(`!(proto == "tcp")`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Kind != NodeNegation {
		t.Fatalf("got %s, want negation", n)
	}
}

func TestToNNFPushesNegationToLeaves(t *testing.T) {
	n, err := Parse(`!(proto == "tcp" && bytes > 100)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nnf := ToNNF(n)
	if nnf.Kind != NodeDisjunction {
		t.Fatalf("got %s, want a disjunction after De Morgan", nnf)
	}
	for _, c := range nnf.Children {
		if c.Kind != NodePredicate {
			t.Fatalf("child %s is not a bare predicate", c)
		}
	}
}

func TestSchemaResolvePrunesUnknownField(t *testing.T) {
	n, err := Parse(`nonexistent == "x" && proto == "tcp"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resolved := ResolveSchema(n, flowType)
	if resolved.Kind != NodeLiteral || resolved.Bool != false {
		t.Fatalf("expected conjunction to be pruned to false, got %s", resolved)
	}
}

func TestSchemaResolveTypeExtractor(t *testing.T) {
	n := And(Pred(Extractor{Kind: TypeExtractor, Name: "net.flow"}, bitmapindex.Eq, schema.Value{}),
		Pred(Extractor{Kind: SchemaExtractor, Name: "proto"}, bitmapindex.Eq, schema.Value{Kind: schema.KindString, Str: "tcp"}))
	resolved := ResolveSchema(n, flowType)
	if resolved.Kind != NodePredicate {
		t.Fatalf("expected TypeExtractor(true) to be absorbed, got %s", resolved)
	}
}

func TestTypeResolveCastsIntToCount(t *testing.T) {
	n := Pred(Extractor{Kind: DataExtractor, Name: "bytes"}, bitmapindex.Gt, schema.Value{Kind: schema.KindInt, Int: 100})
	resolved := ResolveTypes(n, flowType)
	if resolved.Kind != NodePredicate {
		t.Fatalf("got %s, want predicate survives cast", resolved)
	}
	if resolved.Predicate.Value.Kind != schema.KindCount {
		t.Fatalf("value kind = %v, want count", resolved.Predicate.Value.Kind)
	}
}

func TestEvaluateEventShortCircuits(t *testing.T) {
	n, err := Parse(`proto == "tcp" && bytes > 100`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resolved := ResolveTypes(ResolveSchema(n, flowType), flowType)

	matching := event.Event{Type: "net.flow", Fields: map[string]schema.Value{
		"proto": {Kind: schema.KindString, Str: "tcp"},
		"bytes": {Kind: schema.KindCount, Count: 500},
	}}
	ok, err := EvaluateEvent(resolved, matching, DefaultEventSource)
	if err != nil {
		t.Fatalf("EvaluateEvent: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	nonMatching := event.Event{Type: "net.flow", Fields: map[string]schema.Value{
		"proto": {Kind: schema.KindString, Str: "udp"},
		"bytes": {Kind: schema.KindCount, Count: 500},
	}}
	ok, err = EvaluateEvent(resolved, nonMatching, DefaultEventSource)
	if err != nil {
		t.Fatalf("EvaluateEvent: %v", err)
	}
	if ok {
		t.Fatalf("expected no match")
	}
}

type fakeIndex struct {
	idx map[string]bitmapindex.Index
}

func (f fakeIndex) Index(field string) (bitmapindex.Index, bool) {
	i, ok := f.idx[field]
	return i, ok
}

func TestEvaluateIndexCombinesBitstreams(t *testing.T) {
	proto := bitmapindex.NewString()
	proto.Append(0, schema.Value{Kind: schema.KindString, Str: "tcp"})
	proto.Append(1, schema.Value{Kind: schema.KindString, Str: "udp"})
	proto.Append(2, schema.Value{Kind: schema.KindString, Str: "tcp"})

	bytesIdx := bitmapindex.NewNumeric(schema.KindCount)
	bytesIdx.Append(0, schema.Value{Kind: schema.KindCount, Count: 50})
	bytesIdx.Append(1, schema.Value{Kind: schema.KindCount, Count: 500})
	bytesIdx.Append(2, schema.Value{Kind: schema.KindCount, Count: 900})

	src := fakeIndex{idx: map[string]bitmapindex.Index{"proto": proto, "bytes": bytesIdx}}

	n, err := Parse(`proto == "tcp" && bytes > 100`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resolved := ResolveTypes(ResolveSchema(n, flowType), flowType)

	result, err := EvaluateIndex(resolved, src, 3)
	if err != nil {
		t.Fatalf("EvaluateIndex: %v", err)
	}
	for id, want := range map[uint64]bool{0: false, 1: false, 2: true} {
		got, _ := result.At(id)
		if got != want {
			t.Fatalf("id %d: got %v, want %v", id, got, want)
		}
	}
}

// TestParseSubnetLiteral covers spec.md §8 scenario 3's query string,
// "src in 10.0.0.0/24", which a plain number parse would mangle into
// Real(10.0) followed by a trailing-input error.
func TestParseSubnetLiteral(t *testing.T) {
	n, err := Parse(`src in 10.0.0.0/24`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Predicate.Op != bitmapindex.In || n.Predicate.Value.Kind != schema.KindSubnet {
		t.Fatalf("unexpected predicate: %+v", n.Predicate)
	}
	if n.Predicate.Value.Subnet.String() != "10.0.0.0/24" {
		t.Fatalf("Subnet = %s, want 10.0.0.0/24", n.Predicate.Value.Subnet)
	}
}

// TestParsePortLiteral covers spec.md §8 scenario 5's "995/?" literal.
func TestParsePortLiteral(t *testing.T) {
	n, err := Parse(`id.resp_p == 995/?`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Predicate.Value.Kind != schema.KindPort || n.Predicate.Value.Port != 995 {
		t.Fatalf("unexpected predicate: %+v", n.Predicate)
	}
}

// TestAddressInSubnetCastAndContainment covers the §4.2 requirement that
// castValue preserve a KindSubnet operand against an address field under
// In, and that valueContains confirm membership via netip.Prefix.Contains.
func TestAddressInSubnetCastAndContainment(t *testing.T) {
	srcType := schema.Record("net.flow", schema.F("src", schema.Type{Kind: schema.KindAddress}))
	n, err := Parse(`src in 10.0.0.0/24`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resolved := ResolveTypes(ResolveSchema(n, srcType), srcType)
	if resolved.Kind != NodePredicate {
		t.Fatalf("got %s, want predicate to survive cast", resolved)
	}

	inside := event.Event{Type: "net.flow", Fields: map[string]schema.Value{
		"src": {Kind: schema.KindAddress, Addr: mustAddr(t, "10.0.0.17")},
	}}
	ok, err := EvaluateEvent(resolved, inside, DefaultEventSource)
	if err != nil {
		t.Fatalf("EvaluateEvent: %v", err)
	}
	if !ok {
		t.Fatalf("expected 10.0.0.17 to match 10.0.0.0/24")
	}

	outside := event.Event{Type: "net.flow", Fields: map[string]schema.Value{
		"src": {Kind: schema.KindAddress, Addr: mustAddr(t, "192.168.1.1")},
	}}
	ok, err = EvaluateEvent(resolved, outside, DefaultEventSource)
	if err != nil {
		t.Fatalf("EvaluateEvent: %v", err)
	}
	if ok {
		t.Fatalf("expected 192.168.1.1 not to match 10.0.0.0/24")
	}
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

func TestRestrictPrunesOutOfWindowTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := And(
		Pred(Extractor{Kind: EventExtractor, Name: "timestamp"}, bitmapindex.Lt, schema.Value{Kind: schema.KindTimePoint, Time: base}),
		Pred(Extractor{Kind: SchemaExtractor, Name: "proto"}, bitmapindex.Eq, schema.Value{Kind: schema.KindString, Str: "tcp"}),
	)
	window := Window{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}
	restricted := Restrict(n, window)
	if restricted.Kind != NodeLiteral || restricted.Bool {
		t.Fatalf("expected conjunction pruned to false, got %s", restricted)
	}
}
