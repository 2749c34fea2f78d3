// Package semver provides best-effort parsing of package versions into
// well-formed SemVer, following the relaxed rules NuGet clients expect:
// a bare major, major.minor, or major.minor.patch are all accepted, an
// optional fourth numeric component is preserved as build metadata rather
// than rejected, and a pre-release tag may follow a hyphen.
package semver

import (
	"fmt"
	"regexp"

	mmsemver "github.com/Masterminds/semver/v3"
)

var relaxedPattern = regexp.MustCompile(`^\s*v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?\s*$`)

// Version wraps a parsed, normalized SemVer value. The zero value is not
// valid; construct one with Parse.
type Version struct {
	v   *mmsemver.Version
	raw string
}

// Parse best-effort parses s into a Version. Missing minor/patch components
// default to zero. A fourth numeric component (common in NuGet package
// versions, e.g. "1.2.3.4") is folded into build metadata so that it
// round-trips through storage without affecting ordering or range matching.
func Parse(s string) (Version, error) {
	m := relaxedPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	major, minor, patch := m[1], m[2], m[3]
	if minor == "" {
		minor = "0"
	}
	if patch == "" {
		patch = "0"
	}
	pre := m[5]
	build := m[6]

	// A fourth component with no explicit build metadata becomes the build
	// metadata; an explicit "+build" suffix is unusual for NuGet versions
	// but is honored if present.
	if m[4] != "" && build == "" {
		build = m[4]
	}

	canonical := fmt.Sprintf("%s.%s.%s", major, minor, patch)
	if pre != "" {
		canonical += "-" + pre
	}
	if build != "" {
		canonical += "+" + build
	}

	v, err := mmsemver.StrictNewVersion(canonical)
	if err != nil {
		// Masterminds/semver is strict about pre-release/build charset;
		// fall back to a plain numeric version if decoration is malformed.
		v, err = mmsemver.StrictNewVersion(fmt.Sprintf("%s.%s.%s", major, minor, patch))
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
	}

	return Version{v: v, raw: s}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// compile-time constants, not request handling.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized "major.minor.patch[-pre][+build]" form.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Original returns the exact string that was parsed.
func (v Version) Original() string {
	return v.raw
}

// Major, Minor, and Patch return the numeric components.
func (v Version) Major() uint64 { return v.v.Major() }
func (v Version) Minor() uint64 { return v.v.Minor() }
func (v Version) Patch() uint64 { return v.v.Patch() }

// Prerelease returns the pre-release tag, or "" if this is a release version.
func (v Version) Prerelease() string { return v.v.Prerelease() }

// Metadata returns the build metadata component, e.g. the preserved fourth
// NuGet version component.
func (v Version) Metadata() string { return v.v.Metadata() }

// IsPrerelease reports whether v carries a pre-release tag.
func (v Version) IsPrerelease() bool { return v.Prerelease() != "" }

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater than
// other, ordering pre-release versions below the release of the same
// major.minor.patch, per SemVer precedence rules.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// LessThan reports whether v orders before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other are the same version, ignoring build
// metadata (which SemVer precedence never considers).
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// Sort sorts versions ascending in place.
func Sort(versions []Version) {
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j].LessThan(versions[j-1]); j-- {
			versions[j], versions[j-1] = versions[j-1], versions[j]
		}
	}
}

// IsValid reports whether s can be parsed as a version, without returning
// the parsed value. Useful for request validation.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ComponentCount exposes the component counts actually present in the original
// string, since NuGet tooling sometimes cares whether a version was written
// as "1.2" vs "1.2.0". Returns the number of numeric components found
// (1 to 4).
func ComponentCount(s string) int {
	m := relaxedPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n := 1
	for _, g := range []string{m[2], m[3], m[4]} {
		if g == "" {
			break
		}
		n++
	}
	return n
}
