// Package filter implements the LDAP-style predicate language used by the
// service registry: comparisons, presence tests and the &, |, ! composites.
//
// This is a small hand-written recursive-descent parser, in the idiom the
// corpus reaches for internal DSLs of this size rather than an external
// parser-combinator dependency (see DESIGN.md).
package filter

import (
	"fmt"
	"strings"

	"github.com/arcforge/bundlehost/system/props"
	"github.com/arcforge/bundlehost/system/version"
)

// Op is a tagged operator variant; comparisons dispatch on Op rather than
// on operator strings.
type Op int

const (
	OpEqual Op = iota
	OpApprox
	OpGreaterEqual
	OpLessEqual
	OpPresent
	OpAnd
	OpOr
	OpNot
)

// Filter is an immutable parsed predicate tree.
type Filter struct {
	op       Op
	attr     string
	value    string
	children []*Filter
}

// Parse compiles an LDAP-style filter string into an immutable tree. An
// empty or whitespace-only string yields a Filter whose Match always
// returns true.
func Parse(s string) (*Filter, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return &Filter{op: OpAnd}, nil // empty composite matches everything
	}
	p := &parser{input: trimmed}
	f, err := p.parseFilter()
	if err != nil {
		return nil, fmt.Errorf("filter: parse %q: %w", s, err)
	}
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("filter: parse %q: trailing input at %d", s, p.pos)
	}
	return f, nil
}

// MustParse panics on a malformed filter; reserved for literal constants.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String renders the filter back into LDAP syntax.
func (f *Filter) String() string {
	switch f.op {
	case OpAnd, OpOr, OpNot:
		var b strings.Builder
		b.WriteByte('(')
		b.WriteByte(opChar(f.op))
		for _, c := range f.children {
			b.WriteString(c.String())
		}
		b.WriteByte(')')
		return b.String()
	case OpPresent:
		return fmt.Sprintf("(%s=*)", f.attr)
	default:
		return fmt.Sprintf("(%s%s%s)", f.attr, opString(f.op), f.value)
	}
}

func opChar(op Op) byte {
	switch op {
	case OpAnd:
		return '&'
	case OpOr:
		return '|'
	case OpNot:
		return '!'
	}
	return 0
}

func opString(op Op) string {
	switch op {
	case OpEqual:
		return "="
	case OpApprox:
		return "~="
	case OpGreaterEqual:
		return ">="
	case OpLessEqual:
		return "<="
	}
	return "="
}

// Match evaluates the filter against p. A nil filter matches everything.
func (f *Filter) Match(p *props.Properties) bool {
	if f == nil {
		return true
	}
	switch f.op {
	case OpAnd:
		for _, c := range f.children {
			if !c.Match(p) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.children {
			if c.Match(p) {
				return true
			}
		}
		return len(f.children) == 0
	case OpNot:
		return !f.children[0].Match(p)
	case OpPresent:
		return p.Has(f.attr)
	case OpApprox:
		v, ok := p.Get(f.attr)
		if !ok {
			return false
		}
		return collapse(v.String()) == collapse(f.value)
	case OpEqual:
		return matchEqual(p, f.attr, f.value)
	case OpGreaterEqual:
		return matchOrdered(p, f.attr, f.value, func(c int) bool { return c >= 0 })
	case OpLessEqual:
		return matchOrdered(p, f.attr, f.value, func(c int) bool { return c <= 0 })
	}
	return false
}

func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func matchEqual(p *props.Properties, attr, value string) bool {
	v, ok := p.Get(attr)
	if !ok {
		return false
	}
	if strings.Contains(value, "*") {
		return wildcardMatch(v.String(), value)
	}
	// Type-aware equality: try the attribute's own typed representation.
	if lv, ok2 := tryLong(v); ok2 {
		if rv, ok3 := tryParseLong(value); ok3 {
			return lv == rv
		}
	}
	if dv, ok2 := tryDouble(v); ok2 {
		if rv, ok3 := tryParseDouble(value); ok3 {
			return dv == rv
		}
	}
	if vv, ok2 := tryVersion(v); ok2 {
		if rv, err := version.Parse(value); err == nil {
			return vv.Equal(rv)
		}
	}
	return v.String() == value
}

func matchOrdered(p *props.Properties, attr, value string, ok func(cmp int) bool) bool {
	v, present := p.Get(attr)
	if !present {
		return false
	}
	if lv, isLong := tryLong(v); isLong {
		if rv, good := tryParseLong(value); good {
			return ok(compareInt64(lv, rv))
		}
	}
	if dv, isDouble := tryDouble(v); isDouble {
		if rv, good := tryParseDouble(value); good {
			return ok(compareFloat64(dv, rv))
		}
	}
	if vv, isVer := tryVersion(v); isVer {
		if rv, err := version.Parse(value); err == nil {
			return ok(vv.Compare(rv))
		}
	}
	return ok(strings.Compare(v.String(), value))
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// wildcardMatch implements literal-with-any-run-wildcard substring matching.
func wildcardMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	last := parts[len(parts)-1]
	return strings.HasSuffix(s, last)
}
