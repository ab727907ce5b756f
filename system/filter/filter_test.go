package filter

import (
	"testing"

	"github.com/arcforge/bundlehost/system/props"
)

func propsWith(kv map[string]string) *props.Properties {
	p := props.New()
	for k, v := range kv {
		p.SetString(k, v)
	}
	return p
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f, err := Parse("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Match(propsWith(nil)) {
		t.Fatalf("expected empty filter to match")
	}
}

func TestPresenceTest(t *testing.T) {
	f := MustParse("(foo=*)")
	if !f.Match(propsWith(map[string]string{"foo": "bar"})) {
		t.Fatalf("expected presence match")
	}
	if f.Match(propsWith(nil)) {
		t.Fatalf("expected no match when attribute absent")
	}
}

func TestCompositeAndOr(t *testing.T) {
	f := MustParse("(&(a=1)(b=2))")
	if !f.Match(propsWith(map[string]string{"a": "1", "b": "2"})) {
		t.Fatalf("expected AND match")
	}
	if f.Match(propsWith(map[string]string{"a": "1", "b": "3"})) {
		t.Fatalf("expected AND mismatch")
	}
	g := MustParse("(|(a=1)(b=2))")
	if !g.Match(propsWith(map[string]string{"b": "2"})) {
		t.Fatalf("expected OR match")
	}
}

func TestNot(t *testing.T) {
	f := MustParse("(!(a=1))")
	if f.Match(propsWith(map[string]string{"a": "1"})) {
		t.Fatalf("expected NOT to exclude matching value")
	}
	if !f.Match(propsWith(map[string]string{"a": "2"})) {
		t.Fatalf("expected NOT to admit non-matching value")
	}
}

func TestWildcardSubstring(t *testing.T) {
	f := MustParse("(name=foo*bar)")
	if !f.Match(propsWith(map[string]string{"name": "foobazbar"})) {
		t.Fatalf("expected wildcard match")
	}
	if f.Match(propsWith(map[string]string{"name": "foobaz"})) {
		t.Fatalf("expected wildcard mismatch")
	}
}

func TestApproxCollapsesWhitespaceAndCase(t *testing.T) {
	f := MustParse("(name~=Hello   World)")
	if !f.Match(propsWith(map[string]string{"name": "hello world"})) {
		t.Fatalf("expected approx match")
	}
}

func TestOrderedComparisonNumeric(t *testing.T) {
	p := props.New()
	p.Set("service.ranking", props.Long(100))
	f := MustParse("(service.ranking>=50)")
	if !f.Match(p) {
		t.Fatalf("expected numeric >= match")
	}
	g := MustParse("(service.ranking<=50)")
	if g.Match(p) {
		t.Fatalf("expected numeric <= mismatch")
	}
}

// TestOrderedComparisonFallsBackToStringForStringTypedAttribute guards
// against inferring numeric-ness from an attribute's string form: "9" only
// reads as smaller than "10" under numeric comparison; a string-typed "9"
// is compared under Go's byte ordering instead, where it sorts after "10",
// since the attribute was never declared numeric.
func TestOrderedComparisonFallsBackToStringForStringTypedAttribute(t *testing.T) {
	p := props.New()
	p.Set("count", props.String("9"))
	f := MustParse("(count>=10)")
	if !f.Match(p) {
		t.Fatalf("expected string-typed \"9\" >= \"10\" under byte ordering")
	}

	q := props.New()
	q.Set("count", props.Long(9))
	g := MustParse("(count>=10)")
	if g.Match(q) {
		t.Fatalf("expected long-typed 9 >= 10 to fail under numeric comparison")
	}
}

func TestMalformedFilterParseError(t *testing.T) {
	if _, err := Parse("(a="); err == nil {
		t.Fatalf("expected parse error for malformed filter")
	}
	if _, err := Parse("not-a-filter"); err == nil {
		t.Fatalf("expected parse error for missing parens")
	}
}

func TestFilterIdempotence(t *testing.T) {
	f := MustParse("(&(a=1)(b=2*))")
	g := MustParse(f.String())
	p := propsWith(map[string]string{"a": "1", "b": "2x"})
	if f.Match(p) != g.Match(p) {
		t.Fatalf("expected round-tripped filter to match identically")
	}
}
