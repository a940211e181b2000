// Package registry tracks every extractor class/version pair ever deployed,
// the quality snapshot recorded for it, and which single version is the
// production one for each class. Promotion and rollback are explicit
// operations; nothing in this package changes production status as a side
// effect of registration.
package registry

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/quality"
)

// ErrInvalidVersion is returned when a version string does not parse as a
// dotted numeric version of at most three components.
var ErrInvalidVersion = eris.New("registry: invalid version")

// ErrNotFound is returned when no entry matches the requested class/version.
var ErrNotFound = eris.New("registry: version not found")

// ErrInvariant is returned when the store holds more than one production
// version for a class. The caller must surface it; the registry never
// auto-corrects.
var ErrInvariant = eris.New("registry: invariant violation")

// VersionEntry is one registered extractor version. Metrics is the quality
// snapshot recorded at registration time, stored verbatim; the registry does
// not interpret it.
type VersionEntry struct {
	Class        string
	Version      string
	DeployedAt   time.Time
	IsProduction bool
	Metrics      *quality.Metrics
	Changelog    string
}

// SemVer is a parsed three-part version. Missing components parse as zero,
// so "2" and "2.0.0" compare equal.
type SemVer struct {
	Major, Minor, Patch int
}

// ParseSemVer parses a dotted numeric version string. A leading "v" is
// accepted. More than three components, empty components, or non-numeric
// components fail with ErrInvalidVersion.
func ParseSemVer(s string) (SemVer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if trimmed == "" {
		return SemVer{}, eris.Wrapf(ErrInvalidVersion, "empty version %q", s)
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return SemVer{}, eris.Wrapf(ErrInvalidVersion, "too many components in %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SemVer{}, eris.Wrapf(ErrInvalidVersion, "component %q in %q", p, s)
		}
		nums[i] = n
	}
	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0, or 1 as v sorts before, equal to, or after other.
func (v SemVer) Compare(other SemVer) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	case v.Patch != other.Patch:
		return sign(v.Patch - other.Patch)
	}
	return 0
}

func (v SemVer) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
