package project

import (
	"strings"

	"github.com/versionize/internal/version"
)

// Release tags are named "<scope>/v<major>.<minor>.<patch>". The same format
// is used when creating tags and when looking them up.
const tagVersionPrefix = "v"

// TagName is the release tag for scope at v.
func TagName(scope string, v version.Version) string {
	return scope + "/" + tagVersionPrefix + v.String()
}

// ParseTag splits a release tag into scope and version. Tags in any other
// shape are reported as not ok.
func ParseTag(name string) (string, version.Version, bool) {
	scope, rest, found := strings.Cut(name, "/")
	if !found || scope == "" || !strings.HasPrefix(rest, tagVersionPrefix) {
		return "", version.Version{}, false
	}
	v, err := version.Parse(strings.TrimPrefix(rest, tagVersionPrefix))
	if err != nil {
		return "", version.Version{}, false
	}
	return scope, v, true
}

// IsReleaseTag reports whether name follows the release tag format.
func IsReleaseTag(name string) bool {
	_, _, ok := ParseTag(name)
	return ok
}
