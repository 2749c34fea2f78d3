// Package nugetrange translates between NuGet's interval version-range
// syntax and a pair of SemVer predicates, and back.
//
// Grammar: `[a,b]`, `[a,b)`, `(a,b]`, `(a,b)`, `[a,)`, `(a,)`, `(,b]`, `(,b)`,
// `[a]` (exact), or a bare `a` (minimum, inclusive). A `[` before an empty
// lower side (`[,b]`, `[,b)`) is rejected, and so is `[a,]`.
package nugetrange

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nugetdepot/nugetdepot/semver"
)

// Op identifies the comparison a Predicate performs.
type Op int

const (
	// GtEq is "greater than or equal to".
	GtEq Op = iota
	// Gt is "greater than".
	Gt
	// LtEq is "less than or equal to".
	LtEq
	// Lt is "less than".
	Lt
	// Ex is "exactly equal to".
	Ex
)

func (op Op) String() string {
	switch op {
	case GtEq:
		return ">="
	case Gt:
		return ">"
	case LtEq:
		return "<="
	case Lt:
		return "<"
	case Ex:
		return "=="
	default:
		return "?"
	}
}

// Predicate is a single comparison against a version.
type Predicate struct {
	Op      Op
	Version semver.Version
}

// Matches reports whether v satisfies the predicate.
func (p Predicate) Matches(v semver.Version) bool {
	c := v.Compare(p.Version)
	switch p.Op {
	case GtEq:
		return c >= 0
	case Gt:
		return c > 0
	case LtEq:
		return c <= 0
	case Lt:
		return c < 0
	case Ex:
		return c == 0
	default:
		return false
	}
}

// Range is a set of 0, 1, or 2 predicates that together describe a
// dependency's acceptable version interval. A Range with no predicates
// matches anything ("unconstrained").
type Range struct {
	Predicates []Predicate
}

// Matches reports whether v satisfies every predicate in r. A pre-release
// v additionally matches only when some predicate's version is itself a
// pre-release of the same major.minor.patch; an unconstrained range
// matches every version.
func (r Range) Matches(v semver.Version) bool {
	for _, p := range r.Predicates {
		if !p.Matches(v) {
			return false
		}
	}
	if !v.IsPrerelease() || len(r.Predicates) == 0 {
		return true
	}
	for _, p := range r.Predicates {
		pv := p.Version
		if pv.IsPrerelease() && pv.Major() == v.Major() && pv.Minor() == v.Minor() && pv.Patch() == v.Patch() {
			return true
		}
	}
	return false
}

// Any is the unconstrained range: it matches every version.
func Any() Range { return Range{} }

var rangePattern = regexp.MustCompile(
	`^(\[|\()?\s*((\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z.-]+))?)?\s*(,?)\s*((\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z.-]+))?)?\s*(\]|\))?$`,
)

// ErrInvalidVersionRequirement is returned when the input does not conform
// to NuGet's interval grammar.
var ErrInvalidVersionRequirement = fmt.Errorf("invalid version requirement")

// Parse converts a NuGet interval string into a Range. The default for an
// empty string is "any".
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Any(), nil
	}

	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return Range{}, ErrInvalidVersionRequirement
	}

	open, ver1, comma, ver2, close := m[1], m[2], m[7], m[8], m[13]

	if (open != "") != (close != "") {
		return Range{}, ErrInvalidVersionRequirement
	}

	// Missing inner version on the open side of "[" combined with a comma.
	if comma != "" && ver1 == "" && ver2 != "" && open == "[" {
		return Range{}, ErrInvalidVersionRequirement
	}
	if comma != "" && ver1 != "" && ver2 == "" && close == "]" && open == "[" {
		return Range{}, ErrInvalidVersionRequirement
	}

	// Bare version, no brackets at all: minimum-inclusive.
	if open == "" && close == "" {
		if ver1 == "" {
			return Any(), nil
		}
		v, err := semver.Parse(ver1)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s", ErrInvalidVersionRequirement, err)
		}
		return Range{Predicates: []Predicate{{Op: GtEq, Version: v}}}, nil
	}

	// "[a]" with no comma: exact match.
	if open == "[" && comma == "" {
		if close != "]" {
			return Range{}, ErrInvalidVersionRequirement
		}
		if ver1 == "" {
			return Any(), nil
		}
		v, err := semver.Parse(ver1)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s", ErrInvalidVersionRequirement, err)
		}
		return Range{Predicates: []Predicate{{Op: Ex, Version: v}}}, nil
	}

	// "(a)" with no comma makes no sense in NuGet's grammar (open-open exact
	// is undefined); treat as invalid.
	if open == "(" && comma == "" {
		return Range{}, ErrInvalidVersionRequirement
	}

	var preds []Predicate
	if ver1 != "" {
		v, err := semver.Parse(ver1)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s", ErrInvalidVersionRequirement, err)
		}
		op := GtEq
		if open == "(" {
			op = Gt
		}
		preds = append(preds, Predicate{Op: op, Version: v})
	}
	if ver2 != "" {
		v, err := semver.Parse(ver2)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s", ErrInvalidVersionRequirement, err)
		}
		op := LtEq
		if close == ")" {
			op = Lt
		}
		preds = append(preds, Predicate{Op: op, Version: v})
	}

	return Range{Predicates: preds}, nil
}

// Errors returned by ToNuGet for shapes that can't be losslessly serialized.
var (
	ErrInvalidLowerBoundOp = fmt.Errorf("invalid lower bound operator")
	ErrInvalidUpperBoundOp = fmt.Errorf("invalid upper bound operator")
	ErrMultiPredicate      = fmt.Errorf("too many predicates to serialize")
)

// ToNuGet serializes r back into NuGet interval notation, the inverse of
// Parse. An unconstrained range serializes to "" (the spec's
// "unconstrained").
func ToNuGet(r Range) (string, error) {
	switch len(r.Predicates) {
	case 0:
		return "", nil
	case 1:
		p := r.Predicates[0]
		v := p.Version.String()
		switch p.Op {
		case Ex:
			return fmt.Sprintf("[%s]", v), nil
		case Gt:
			return fmt.Sprintf("(%s,)", v), nil
		case GtEq:
			return v, nil
		case Lt:
			return fmt.Sprintf("(,%s)", v), nil
		case LtEq:
			return fmt.Sprintf("(,%s]", v), nil
		default:
			return "", fmt.Errorf("unsupported single predicate operator %v", p.Op)
		}
	case 2:
		lower, upper := r.Predicates[0], r.Predicates[1]
		if lower.Op != Gt && lower.Op != GtEq {
			return "", ErrInvalidLowerBoundOp
		}
		if upper.Op != Lt && upper.Op != LtEq {
			return "", ErrInvalidUpperBoundOp
		}
		open := "["
		if lower.Op == Gt {
			open = "("
		}
		close := "]"
		if upper.Op == Lt {
			close = ")"
		}
		return fmt.Sprintf("%s%s,%s%s", open, lower.Version.String(), upper.Version.String(), close), nil
	default:
		return "", ErrMultiPredicate
	}
}
