package exprengine

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/schema"
)

// Parser is a composable parsing primitive over a byte cursor: given input,
// it returns the bytes it matched, the remaining input, and whether it
// matched at all. Composing Parser values with the combinators below
// (instead of dispatching on a grammar via an interface hierarchy) mirrors
// vast/concept/parseable/core's operator-based parser composition.
type Parser func(in []byte) (matched []byte, rest []byte, ok bool)

// lit matches a literal string exactly.
func lit(s string) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		if len(in) < len(s) || string(in[:len(s)]) != s {
			return nil, in, false
		}
		return in[:len(s)], in[len(s):], true
	}
}

// charClass matches a single byte satisfying pred.
func charClass(pred func(byte) bool) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		if len(in) == 0 || !pred(in[0]) {
			return nil, in, false
		}
		return in[:1], in[1:], true
	}
}

// seq matches each parser in order, concatenating their matched bytes.
func seq(ps ...Parser) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		start := in
		var matched []byte
		for _, p := range ps {
			m, rest, ok := p(in)
			if !ok {
				return nil, start, false
			}
			matched = append(matched, m...)
			in = rest
		}
		return matched, in, true
	}
}

// alt tries each parser in order, returning the first that matches.
func alt(ps ...Parser) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		for _, p := range ps {
			if m, rest, ok := p(in); ok {
				return m, rest, true
			}
		}
		return nil, in, false
	}
}

// repeat matches p one or more times.
func repeat(p Parser) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		m, rest, ok := p(in)
		if !ok {
			return nil, in, false
		}
		matched := append([]byte{}, m...)
		for {
			m2, rest2, ok2 := p(rest)
			if !ok2 {
				break
			}
			matched = append(matched, m2...)
			rest = rest2
		}
		return matched, rest, true
	}
}

// optional matches p zero or one times, always succeeding.
func optional(p Parser) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		if m, rest, ok := p(in); ok {
			return m, rest, true
		}
		return nil, in, true
	}
}

// ignore matches p but discards its matched bytes, used to skip whitespace
// between meaningful tokens without it polluting the caller's match.
func ignore(p Parser) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		_, rest, ok := p(in)
		return nil, rest, ok
	}
}

// guard matches p only when pred accepts its matched bytes.
func guard(p Parser, pred func([]byte) bool) Parser {
	return func(in []byte) ([]byte, []byte, bool) {
		m, rest, ok := p(in)
		if !ok || !pred(m) {
			return nil, in, false
		}
		return m, rest, true
	}
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentCont(b byte) bool { return isIdentStart(b) || isDigit(b) || b == '.' }

var ws = ignore(optional(repeat(charClass(isSpace))))

func skipWS(in []byte) []byte {
	_, rest, _ := ws(in)
	return rest
}

// cursor drives the hand-written recursive-descent grammar on top of the
// combinator primitives above; each grammar rule is a method rather than a
// Parser value purely because the grammar is recursive (expr -> term ->
// factor -> expr), which a value-level composition can't express without a
// forward-declared pointer indirection.
type cursor struct {
	in  []byte
	err error
}

// Parse compiles a query string into an expression AST. Grammar:
//
//	expr    := term (("&&" | "and") term)* | term (("||" | "or") term)*
//	term    := ("!" | "not ") factor | factor
//	factor  := "(" expr ")" | predicate
//	predicate := ident op value
//	op      := "==" | "!=" | "<=" | ">=" | "<" | ">" | "in" | "~"
//	value   := quoted-string | address | subnet | rfc3339-time | port | number | bare-ident
//
// One expr chains either conjunctions or disjunctions; mixing the two needs
// parentheses, and an unparenthesized mix is rejected as trailing input.
func Parse(query string) (*Node, error) {
	c := &cursor{in: []byte(query)}
	n := c.parseExpr()
	if c.err != nil {
		return nil, c.err
	}
	rest := skipWS(c.in)
	if len(rest) != 0 {
		return nil, fmt.Errorf("exprengine: unexpected trailing input %q", rest)
	}
	return n, nil
}

func (c *cursor) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("exprengine: "+format, args...)
	}
}

func (c *cursor) parseExpr() *Node {
	left := c.parseTerm()
	if c.err != nil {
		return nil
	}
	children := []*Node{left}
	kind := NodeKind(-1)
	for {
		rest := skipWS(c.in)
		if m, r, ok := alt(lit("&&"), lit("and"))(rest); ok {
			_ = m
			if kind == NodeDisjunction {
				break
			}
			kind = NodeConjunction
			c.in = r
			children = append(children, c.parseTerm())
			continue
		}
		if m, r, ok := alt(lit("||"), lit("or"))(rest); ok {
			_ = m
			if kind == NodeConjunction {
				break
			}
			kind = NodeDisjunction
			c.in = r
			children = append(children, c.parseTerm())
			continue
		}
		break
	}
	if c.err != nil {
		return nil
	}
	if len(children) == 1 {
		return children[0]
	}
	if kind == NodeDisjunction {
		return Or(children...)
	}
	return And(children...)
}

func (c *cursor) parseTerm() *Node {
	rest := skipWS(c.in)
	if m, r, ok := alt(lit("!"), lit("not "))(rest); ok {
		_ = m
		c.in = r
		return Not(c.parseFactor())
	}
	return c.parseFactor()
}

func (c *cursor) parseFactor() *Node {
	rest := skipWS(c.in)
	if _, r, ok := lit("(")(rest); ok {
		c.in = r
		n := c.parseExpr()
		rest = skipWS(c.in)
		if _, r2, ok := lit(")")(rest); ok {
			c.in = r2
		} else {
			c.fail("expected ) at %q", rest)
		}
		return n
	}
	return c.parsePredicate()
}

func (c *cursor) parsePredicate() *Node {
	rest := skipWS(c.in)
	ident, r, ok := seq(charClass(isIdentStart), optional(repeat(charClass(isIdentCont))))(rest)
	if !ok {
		c.fail("expected field identifier at %q", rest)
		return nil
	}
	c.in = r
	extractor := classifyExtractor(string(ident))

	rest = skipWS(c.in)
	op, r2, ok := parseOperator(rest)
	if !ok {
		c.fail("expected operator at %q", rest)
		return nil
	}
	c.in = r2

	rest = skipWS(c.in)
	v, r3, ok := c.parseValueTokens(rest)
	if !ok {
		c.fail("expected value at %q", rest)
		return nil
	}
	c.in = r3
	return Pred(extractor, op, v)
}

// classifyExtractor chooses SchemaExtractor for dotted/bare field paths and
// EventExtractor for the one recognized event-metadata name.
func classifyExtractor(name string) Extractor {
	if name == "timestamp" {
		return Extractor{Kind: EventExtractor, Name: name}
	}
	return Extractor{Kind: SchemaExtractor, Name: name}
}

func parseOperator(in []byte) (bitmapindex.Operator, []byte, bool) {
	type entry struct {
		text string
		op   bitmapindex.Operator
	}
	// Longest-match-first so "<=" isn't swallowed by "<".
	entries := []entry{
		{"==", bitmapindex.Eq}, {"!=", bitmapindex.Neq},
		{"<=", bitmapindex.Lte}, {">=", bitmapindex.Gte},
		{"<", bitmapindex.Lt}, {">", bitmapindex.Gt},
		{"in", bitmapindex.In}, {"~", bitmapindex.RegexMatch},
	}
	for _, e := range entries {
		if m, rest, ok := lit(e.text)(in); ok {
			_ = m
			return e.op, rest, true
		}
	}
	return 0, in, false
}

func (c *cursor) parseValueTokens(in []byte) (schema.Value, []byte, bool) {
	if len(in) > 0 && in[0] == '"' {
		return parseQuotedString(in)
	}
	if v, rest, ok := parseAddrOrSubnet(in); ok {
		return v, rest, true
	}
	if v, rest, ok := parseTimestamp(in); ok {
		return v, rest, true
	}
	if v, rest, ok := parsePortLiteral(in); ok {
		return v, rest, true
	}
	if len(in) > 0 && (isDigit(in[0]) || in[0] == '-') {
		return parseNumber(in)
	}
	m, rest, ok := seq(charClass(isIdentStart), optional(repeat(charClass(isIdentCont))))(in)
	if !ok {
		return schema.Value{}, in, false
	}
	return schema.Value{Kind: schema.KindString, Str: string(m)}, rest, true
}

func isHexDigit(b byte) bool { return (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') }
func isAddrChar(b byte) bool { return isDigit(b) || isHexDigit(b) || b == '.' || b == ':' }

// parseAddrOrSubnet recognizes the §3 address and subnet literals a
// predicate's right-hand side needs for "src in 10.0.0.0/24" (scenario 3)
// and bare address equality: a run of digit/hex/dot/colon characters,
// optionally followed by "/<prefix-length>" for a CIDR subnet.
func parseAddrOrSubnet(in []byte) (schema.Value, []byte, bool) {
	token, rest, ok := repeat(charClass(isAddrChar))(in)
	if !ok {
		return schema.Value{}, in, false
	}
	if len(rest) > 0 && rest[0] == '/' {
		if plen, r2, ok2 := repeat(charClass(isDigit))(rest[1:]); ok2 {
			if prefix, err := netip.ParsePrefix(string(token) + "/" + string(plen)); err == nil {
				return schema.Value{Kind: schema.KindSubnet, Subnet: prefix}, r2, true
			}
		}
	}
	if addr, err := netip.ParseAddr(string(token)); err == nil {
		return schema.Value{Kind: schema.KindAddress, Addr: addr}, rest, true
	}
	return schema.Value{}, in, false
}

// parsePortLiteral recognizes scenario 5's "995/?" port-with-protocol
// syntax: a bare port number followed by "/" and either a protocol name or
// the "?" wildcard, the latter discarded since this engine has no
// transport-protocol attribute distinct from the port value itself.
func parsePortLiteral(in []byte) (schema.Value, []byte, bool) {
	digits, rest, ok := repeat(charClass(isDigit))(in)
	if !ok || len(rest) == 0 || rest[0] != '/' {
		return schema.Value{}, in, false
	}
	rest = rest[1:]
	if len(rest) > 0 && rest[0] == '?' {
		rest = rest[1:]
	} else if _, r2, ok2 := repeat(charClass(isIdentStart))(rest); ok2 {
		rest = r2
	}
	port, err := strconv.ParseUint(string(digits), 10, 16)
	if err != nil {
		return schema.Value{}, in, false
	}
	return schema.Value{Kind: schema.KindPort, Port: uint16(port)}, rest, true
}

func isTimeChar(b byte) bool {
	switch b {
	case '-', ':', 'T', 'Z', '+', '.':
		return true
	default:
		return isDigit(b)
	}
}

// parseTimestamp recognizes RFC3339 time-point literals for EventExtractor
// ("timestamp") predicates.
func parseTimestamp(in []byte) (schema.Value, []byte, bool) {
	token, rest, ok := repeat(charClass(isTimeChar))(in)
	if !ok {
		return schema.Value{}, in, false
	}
	t, err := time.Parse(time.RFC3339, string(token))
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, string(token))
		if err != nil {
			return schema.Value{}, in, false
		}
	}
	return schema.Value{Kind: schema.KindTimePoint, Time: t}, rest, true
}

func parseQuotedString(in []byte) (schema.Value, []byte, bool) {
	if len(in) == 0 || in[0] != '"' {
		return schema.Value{}, in, false
	}
	for i := 1; i < len(in); i++ {
		if in[i] == '"' && in[i-1] != '\\' {
			raw := string(in[1:i])
			raw = strings.ReplaceAll(raw, `\"`, `"`)
			return schema.Value{Kind: schema.KindString, Str: raw}, in[i+1:], true
		}
	}
	return schema.Value{}, in, false
}

var numberToken = guard(
	seq(
		optional(lit("-")),
		repeat(charClass(isDigit)),
		optional(seq(lit("."), repeat(charClass(isDigit)))),
	),
	func(m []byte) bool {
		s := strings.TrimPrefix(string(m), "-")
		return s != "" && s != "."
	},
)

func parseNumber(in []byte) (schema.Value, []byte, bool) {
	m, rest, ok := numberToken(in)
	if !ok {
		return schema.Value{}, in, false
	}
	text := string(m)
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return schema.Value{}, in, false
		}
		return schema.Value{Kind: schema.KindReal, Real: f}, rest, true
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return schema.Value{}, in, false
	}
	return schema.Value{Kind: schema.KindInt, Int: n}, rest, true
}
