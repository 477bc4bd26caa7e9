// Package expr evaluates the subset of workflow `${{ }}` expressions needed to
// resolve steps against a matrix assignment.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Context maps a context name (matrix, env) to its values.
type Context map[string]map[string]string

// Kind enumerates value types produced by evaluation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
)

// Value is the result of evaluating an expression.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
}

// Truthy follows workflow semantics: false, 0, "", and null are falsy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case KindString:
		return v.Str != ""
	default:
		return false
	}
}

// String renders the value the way it is substituted into step text.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

func (v Value) number() float64 {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindNumber:
		return v.Num
	case KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return 0
	}
}

// Evaluator resolves expressions against a fixed context and records
// references it could not resolve.
type Evaluator struct {
	ctx      Context
	warnings []string
}

// New returns an Evaluator bound to ctx.
func New(ctx Context) *Evaluator {
	return &Evaluator{ctx: ctx}
}

// Warnings returns the unresolved-reference messages collected so far.
func (e *Evaluator) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// Evaluate parses and evaluates a bare expression (without the ${{ }} wrapper).
func (e *Evaluator) Evaluate(expression string) (Value, error) {
	toks, err := lex(expression)
	if err != nil {
		return Value{}, err
	}
	p := &parser{toks: toks, eval: e}
	v, err := p.or()
	if err != nil {
		return Value{}, err
	}
	if p.peek().kind != tokEOF {
		return Value{}, fmt.Errorf("unexpected %q in expression %q", p.peek().text, expression)
	}
	return v, nil
}

// Interpolate replaces every ${{ expr }} in s with its evaluated value.
func (e *Evaluator) Interpolate(s string) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		body := rest[start+3:]
		end := closeIndex(body)
		if end < 0 {
			return "", fmt.Errorf("unterminated expression in %q", s)
		}
		b.WriteString(rest[:start])
		v, err := e.Evaluate(body[:end])
		if err != nil {
			return "", err
		}
		b.WriteString(v.String())
		rest = body[end+2:]
	}
}

// closeIndex returns the offset of the "}}" ending an expression body,
// skipping single-quoted literals. A doubled quote toggles twice, so
// escaped quotes need no special case.
func closeIndex(body string) int {
	quoted := false
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '\'':
			quoted = !quoted
		case !quoted && strings.HasPrefix(body[i:], "}}"):
			return i
		}
	}
	return -1
}

// InterpolateMap applies Interpolate to every value of m.
func (e *Evaluator) InterpolateMap(m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := e.Interpolate(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (e *Evaluator) lookup(path []string) Value {
	values, ok := e.ctx[path[0]]
	if !ok {
		e.warn(fmt.Sprintf("context %q is not available locally", path[0]))
		return Value{}
	}
	if len(path) == 1 || len(path) > 2 {
		return Value{}
	}
	v, ok := values[path[1]]
	if !ok {
		return Value{}
	}
	return Value{Kind: KindString, Str: v}
}

func (e *Evaluator) warn(msg string) {
	for _, w := range e.warnings {
		if w == msg {
			return
		}
	}
	e.warnings = append(e.warnings, msg)
}

type parser struct {
	toks []token
	pos  int
	eval *Evaluator
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, text string) error {
	t := p.next()
	if t.kind != kind || (text != "" && t.text != text) {
		return fmt.Errorf("expected %q, found %q", text, t.text)
	}
	return nil
}

func (p *parser) or() (Value, error) {
	left, err := p.and()
	if err != nil {
		return Value{}, err
	}
	for p.peek().is(tokOp, "||") {
		p.next()
		right, err := p.and()
		if err != nil {
			return Value{}, err
		}
		if !left.Truthy() {
			left = right
		}
	}
	return left, nil
}

func (p *parser) and() (Value, error) {
	left, err := p.compare()
	if err != nil {
		return Value{}, err
	}
	for p.peek().is(tokOp, "&&") {
		p.next()
		right, err := p.compare()
		if err != nil {
			return Value{}, err
		}
		if left.Truthy() {
			left = right
		}
	}
	return left, nil
}

func (p *parser) compare() (Value, error) {
	left, err := p.unary()
	if err != nil {
		return Value{}, err
	}
	t := p.peek()
	if t.kind != tokOp {
		return left, nil
	}
	switch t.text {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		return left, nil
	}
	p.next()
	right, err := p.unary()
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindBool, Bool: compareValues(t.text, left, right)}, nil
}

func (p *parser) unary() (Value, error) {
	if p.peek().is(tokOp, "!") {
		p.next()
		v, err := p.unary()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBool, Bool: !v.Truthy()}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Value, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Value{Kind: KindString, Str: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", t.text)
		}
		return Value{Kind: KindNumber, Num: f}, nil
	case tokPunct:
		if t.text == "(" {
			v, err := p.or()
			if err != nil {
				return Value{}, err
			}
			return v, p.expect(tokPunct, ")")
		}
	case tokIdent:
		switch t.text {
		case "true", "false":
			return Value{Kind: KindBool, Bool: t.text == "true"}, nil
		case "null":
			return Value{}, nil
		}
		if p.peek().is(tokPunct, "(") {
			return Value{}, fmt.Errorf("function %s() is not supported", t.text)
		}
		return p.reference(t.text)
	}
	return Value{}, fmt.Errorf("unexpected %q", t.text)
}

func (p *parser) reference(root string) (Value, error) {
	path := []string{root}
	for {
		switch {
		case p.peek().is(tokPunct, "."):
			p.next()
			t := p.next()
			if t.kind != tokIdent {
				return Value{}, fmt.Errorf("expected property name after %q", strings.Join(path, "."))
			}
			path = append(path, t.text)
		case p.peek().is(tokPunct, "["):
			p.next()
			t := p.next()
			if t.kind != tokString {
				return Value{}, fmt.Errorf("expected string index after %q", strings.Join(path, "."))
			}
			if err := p.expect(tokPunct, "]"); err != nil {
				return Value{}, err
			}
			path = append(path, t.text)
		default:
			return p.eval.lookup(path), nil
		}
	}
}

func compareValues(op string, a, b Value) bool {
	var cmp int
	switch {
	case a.Kind == KindNull && b.Kind == KindNull:
		cmp = 0
	case a.Kind == KindString && b.Kind == KindString:
		cmp = strings.Compare(strings.ToLower(a.Str), strings.ToLower(b.Str))
	default:
		x, y := a.number(), b.number()
		if math.IsNaN(x) || math.IsNaN(y) {
			return op == "!="
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	}
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}
