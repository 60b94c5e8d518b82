package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion is returned when a string is not three dot-separated
// non-negative integers.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a (major, minor, patch) triple ordered by precedence.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// Parse reads a dotted decimal version such as "1.2.3". A leading "v",
// surrounding whitespace, prerelease identifiers and build metadata are
// rejected.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}
	if strings.TrimSpace(s) != s {
		return Version{}, fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidVersion, s)
	}

	sv, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Version{}, fmt.Errorf("%w: %q carries prerelease or build metadata", ErrInvalidVersion, s)
	}

	return fromSemver(sv), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fromSemver(sv *semver.Version) Version {
	return Version{Major: sv.Major(), Minor: sv.Minor(), Patch: sv.Patch()}
}

func (v Version) semver() *semver.Version {
	return semver.New(v.Major, v.Minor, v.Patch, "", "")
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or higher than o.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

func (v Version) Equal(o Version) bool {
	return v == o
}

func (v Version) IncMajor() Version {
	return fromSemver(ptr(v.semver().IncMajor()))
}

func (v Version) IncMinor() Version {
	return fromSemver(ptr(v.semver().IncMinor()))
}

func (v Version) IncPatch() Version {
	return fromSemver(ptr(v.semver().IncPatch()))
}

func ptr(sv semver.Version) *semver.Version {
	return &sv
}
