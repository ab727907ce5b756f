package filter

import (
	"fmt"

	"github.com/arcforge/bundlehost/system/props"
	"github.com/arcforge/bundlehost/system/version"
)

type parser struct {
	input string
	pos   int
}

func (p *parser) parseFilter() (*Filter, error) {
	if p.pos >= len(p.input) || p.input[p.pos] != '(' {
		return nil, fmt.Errorf("expected '(' at %d", p.pos)
	}
	p.pos++ // consume '('

	switch {
	case p.peek() == '&' || p.peek() == '|':
		op := OpAnd
		if p.peek() == '|' {
			op = OpOr
		}
		p.pos++
		var children []*Filter
		for p.peek() == '(' {
			child, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return &Filter{op: op, children: children}, nil
	case p.peek() == '!':
		p.pos++
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return &Filter{op: OpNot, children: []*Filter{child}}, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (*Filter, error) {
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '=' && p.input[p.pos] != '~' &&
		p.input[p.pos] != '>' && p.input[p.pos] != '<' && p.input[p.pos] != ')' {
		p.pos++
	}
	attr := p.input[start:p.pos]
	if attr == "" {
		return nil, fmt.Errorf("empty attribute at %d", start)
	}

	op := OpEqual
	switch {
	case p.pos < len(p.input) && p.input[p.pos] == '~':
		if !p.hasAt(p.pos, "~=") {
			return nil, fmt.Errorf("malformed operator at %d", p.pos)
		}
		op = OpApprox
		p.pos += 2
	case p.pos < len(p.input) && p.input[p.pos] == '>':
		if !p.hasAt(p.pos, ">=") {
			return nil, fmt.Errorf("malformed operator at %d", p.pos)
		}
		op = OpGreaterEqual
		p.pos += 2
	case p.pos < len(p.input) && p.input[p.pos] == '<':
		if !p.hasAt(p.pos, "<=") {
			return nil, fmt.Errorf("malformed operator at %d", p.pos)
		}
		op = OpLessEqual
		p.pos += 2
	case p.pos < len(p.input) && p.input[p.pos] == '=':
		op = OpEqual
		p.pos++
	default:
		return nil, fmt.Errorf("expected operator at %d", p.pos)
	}

	valStart := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != ')' {
		p.pos++
	}
	value := p.input[valStart:p.pos]
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	if op == OpEqual && value == "*" {
		return &Filter{op: OpPresent, attr: attr}, nil
	}
	return &Filter{op: op, attr: attr, value: value}, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) hasAt(pos int, s string) bool {
	if pos+len(s) > len(p.input) {
		return false
	}
	return p.input[pos:pos+len(s)] == s
}

func (p *parser) expect(c byte) error {
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

// tryLong, tryDouble and tryVersion gate on the attribute's actual stored
// Kind, not on whether its string form happens to re-parse as a number or
// version. A props.String("9") is compared with (count>=10) under plain
// string ordering, where "9" >= "10" holds, not numerically, where 9 >= 10
// would fail — spec.md
// §4.1's "compare as the attribute's declared type, else as a string"
// rule only applies to attributes declared with that type.
func tryLong(v props.Value) (int64, bool) {
	return v.Long()
}

func tryDouble(v props.Value) (float64, bool) {
	return v.Double()
}

func tryVersion(v props.Value) (version.Version, bool) {
	return v.Version()
}

func tryParseLong(s string) (int64, bool)     { return parseLongExact(s) }
func tryParseDouble(s string) (float64, bool) { return parseDoubleExact(s) }

func parseLongExact(s string) (int64, bool) {
	var n int64
	var neg bool
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	if i == len(s) {
		return 0, false
	}
	start := i
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func parseDoubleExact(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	var intPart, fracPart string
	neg := false
	i := 0
	if s[i] == '+' || s[i] == '-' {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	intPart = s[start:i]
	if i < len(s) && s[i] == '.' {
		i++
		fstart := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		fracPart = s[fstart:i]
	}
	if i != len(s) || (intPart == "" && fracPart == "") {
		return 0, false
	}
	var val float64
	for _, c := range intPart {
		val = val*10 + float64(c-'0')
	}
	frac := 0.0
	scale := 1.0
	for _, c := range fracPart {
		scale /= 10
		frac += float64(c-'0') * scale
	}
	val += frac
	if neg {
		val = -val
	}
	return val, true
}
