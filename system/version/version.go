// Package version implements the MAJOR.MINOR.MICRO[.QUALIFIER] version type
// used throughout bundle manifests, archive state files and filter
// comparisons.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable MAJOR.MINOR.MICRO version with an optional
// qualifier. Zero value is 0.0.0.
type Version struct {
	Major, Minor, Micro int
	Qualifier           string
}

// Parse requires MAJOR.MINOR.MICRO with an optional ".QUALIFIER". Shorter
// forms ("1", "1.2") are rejected.
func Parse(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 4)
	if len(parts) < 3 {
		return Version{}, fmt.Errorf("version: %q requires MAJOR.MINOR.MICRO", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid major in %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid minor in %q: %w", s, err)
	}
	micro, err := strconv.Atoi(parts[2])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid micro in %q: %w", s, err)
	}
	qualifier := ""
	if len(parts) == 4 {
		qualifier = parts[3]
	}
	return Version{Major: major, Minor: minor, Micro: micro, Qualifier: qualifier}, nil
}

// MustParse panics on a malformed version string; reserved for literal
// constants in tests and defaults.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Qualifier == "" {
		return base
	}
	return base + "." + v.Qualifier
}

// Compare returns -1, 0 or 1 following MAJOR, then MINOR, then MICRO, then a
// lexical comparison of the qualifier.
func (v Version) Compare(o Version) int {
	if d := v.Major - o.Major; d != 0 {
		return sign(d)
	}
	if d := v.Minor - o.Minor; d != 0 {
		return sign(d)
	}
	if d := v.Micro - o.Micro; d != 0 {
		return sign(d)
	}
	return strings.Compare(v.Qualifier, o.Qualifier)
}

func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }
func (v Version) Less(o Version) bool  { return v.Compare(o) < 0 }

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}
