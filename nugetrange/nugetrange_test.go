package nugetrange

import (
	"testing"

	"github.com/nugetdepot/nugetdepot/semver"
)

func matches(t *testing.T, rangeStr, version string) bool {
	t.Helper()
	r, err := Parse(rangeStr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", rangeStr, err)
	}
	v, err := semver.Parse(version)
	if err != nil {
		t.Fatalf("semver.Parse(%q) failed: %v", version, err)
	}
	return r.Matches(v)
}

func TestSolo(t *testing.T) {
	if matches(t, "1.0", "0.9.0") {
		t.Error("expected 0.9.0 not to match 1.0")
	}
	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0", "2.0.4"} {
		if !matches(t, "1.0", v) {
			t.Errorf("expected %s to match 1.0", v)
		}
	}
	if matches(t, "1.0", "3.0.0-alpha1") {
		t.Error("expected 3.0.0-alpha1 not to match 1.0")
	}
}

func TestPre(t *testing.T) {
	if matches(t, "1.0.0-alpha1", "0.9.0") {
		t.Error("expected 0.9.0 not to match 1.0.0-alpha1")
	}
	for _, v := range []string{"1.0.0", "1.1.0", "1.0.0-prealpha0", "1.0.0-alpha1", "1.0.0-alpha2", "1.0.0-beta1"} {
		if !matches(t, "1.0.0-alpha1", v) {
			t.Errorf("expected %s to match 1.0.0-alpha1", v)
		}
	}
}

func TestSoloTwo(t *testing.T) {
	if matches(t, "[1.0,)", "0.9.0") {
		t.Error("expected 0.9.0 not to match [1.0,)")
	}
	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0", "2.0.4"} {
		if !matches(t, "[1.0,)", v) {
			t.Errorf("expected %s to match [1.0,)", v)
		}
	}
	if matches(t, "[1.0,)", "3.0.0-alpha1") {
		t.Error("expected 3.0.0-alpha1 not to match [1.0,)")
	}
}

func TestSoloThree(t *testing.T) {
	if !matches(t, "(,1.0]", "0.9.0") {
		t.Error("expected 0.9.0 to match (,1.0]")
	}
	if !matches(t, "(,1.0]", "1.0.0") {
		t.Error("expected 1.0.0 to match (,1.0]")
	}
	if matches(t, "(,1.0]", "1.1.0") {
		t.Error("expected 1.1.0 not to match (,1.0]")
	}
}

func TestSoloFour(t *testing.T) {
	if !matches(t, "(,1.0)", "0.9.0") {
		t.Error("expected 0.9.0 to match (,1.0)")
	}
	if matches(t, "(,1.0)", "1.0.0") {
		t.Error("expected 1.0.0 not to match (,1.0)")
	}
	if matches(t, "(,1.0)", "1.1.0") {
		t.Error("expected 1.1.0 not to match (,1.0)")
	}
}

func TestMinimum(t *testing.T) {
	if matches(t, "(1.0,)", "0.9.0") || matches(t, "(1.0,)", "1.0.0") {
		t.Error("expected (1.0,) to exclude 0.9.0 and 1.0.0")
	}
	for _, v := range []string{"1.1.0", "2.0.0", "2.0.4"} {
		if !matches(t, "(1.0,)", v) {
			t.Errorf("expected %s to match (1.0,)", v)
		}
	}
	if matches(t, "(1.0,)", "3.0.0-alpha1") {
		t.Error("expected 3.0.0-alpha1 not to match (1.0,)")
	}
}

func TestFull(t *testing.T) {
	const r = "(1.0.0,3.0.1]"
	for v, want := range map[string]bool{
		"0.9.0":         false,
		"1.0.0":         false,
		"1.1.0":         true,
		"2.0.0":         true,
		"2.0.4":         true,
		"3.0.0-alpha1":  false,
		"3.0.1":         true,
		"3.0.2":         false,
		"3.1.0":         false,
		"4.0.0":         false,
	} {
		if got := matches(t, r, v); got != want {
			t.Errorf("%s matches %s = %v, want %v", r, v, got, want)
		}
	}
}

func TestExact(t *testing.T) {
	if !matches(t, "[1.0.0]", "1.0.0") {
		t.Error("expected [1.0.0] to match 1.0.0")
	}
	if matches(t, "[1.0.0]", "1.0.1") {
		t.Error("expected [1.0.0] not to match 1.0.1")
	}
}

func TestBracketDisagreementRejected(t *testing.T) {
	if _, err := Parse("[1.0.0"); err == nil {
		t.Error("expected mismatched bracket to be rejected")
	}
	if _, err := Parse("1.0.0]"); err == nil {
		t.Error("expected mismatched bracket to be rejected")
	}
}

func TestMissingInnerVersionIsError(t *testing.T) {
	if _, err := Parse("[,1.0.0]"); err == nil {
		t.Error("expected missing lower version on open bracket with comma to be rejected")
	}
	if _, err := Parse("[1.0.0,]"); err == nil {
		t.Error("expected missing upper version on close bracket with comma to be rejected")
	}
}

func TestToNuGetRoundTrip(t *testing.T) {
	tests := []string{"1.0.0", "[1.0.0,)", "(,1.0.0]", "[1.0.0]", "(1.0.0,3.0.1]"}
	for _, s := range tests {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		out, err := ToNuGet(r)
		if err != nil {
			t.Fatalf("ToNuGet(%q) failed: %v", s, err)
		}
		r2, err := Parse(out)
		if err != nil {
			t.Fatalf("re-parse of %q (from %q) failed: %v", out, s, err)
		}
		if len(r.Predicates) != len(r2.Predicates) {
			t.Fatalf("round trip of %q: predicate count changed, got %q", s, out)
		}
	}
}

func TestToNuGetUnconstrained(t *testing.T) {
	out, err := ToNuGet(Any())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty string for unconstrained range, got %q", out)
	}
}

func TestToNuGetTooManyPredicates(t *testing.T) {
	r := Range{Predicates: []Predicate{
		{Op: GtEq, Version: semver.MustParse("1.0.0")},
		{Op: LtEq, Version: semver.MustParse("2.0.0")},
		{Op: Ex, Version: semver.MustParse("1.5.0")},
	}}
	if _, err := ToNuGet(r); err != ErrMultiPredicate {
		t.Errorf("expected ErrMultiPredicate, got %v", err)
	}
}
