package version

import "testing"

func TestParseValid(t *testing.T) {
	v, err := Parse("1.2.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Major != 1 || v.Minor != 2 || v.Micro != 3 || v.Qualifier != "" {
		t.Fatalf("unexpected parse: %+v", v)
	}
}

func TestParseWithQualifier(t *testing.T) {
	v, err := Parse("1.2.3.beta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Qualifier != "beta" {
		t.Fatalf("expected qualifier beta, got %q", v.Qualifier)
	}
	if v.String() != "1.2.3.beta" {
		t.Fatalf("unexpected string form: %s", v.String())
	}
}

func TestParseRejectsShortForms(t *testing.T) {
	for _, s := range []string{"1", "1.2", "", "a.b.c"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("expected error parsing %q", s)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	a := MustParse("1.0.0")
	b := MustParse("1.0.1")
	c := MustParse("1.1.0")
	d := MustParse("2.0.0")
	if !a.Less(b) || !b.Less(c) || !c.Less(d) {
		t.Fatalf("expected strictly increasing order")
	}
	if !a.Equal(MustParse("1.0.0")) {
		t.Fatalf("expected equal versions to compare equal")
	}
}

func TestCompareQualifierTiebreak(t *testing.T) {
	a := MustParse("1.0.0.alpha")
	b := MustParse("1.0.0.beta")
	if !a.Less(b) {
		t.Fatalf("expected alpha < beta lexically")
	}
}
