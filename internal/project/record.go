package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/versionize/internal/version"
)

// Record is the contents of a version.json file.
type Record struct {
	VersionString string   `json:"version"`
	ScopeName     string   `json:"scopeName"`
	ParentScopes  []string `json:"parentScopes"`

	// Version is derived from VersionString.
	Version version.Version `json:"-"`
}

// ParseRecord decodes and validates a version record. The version string
// must be a plain "major.minor.patch" and the scope must be a single path
// segment.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidVersionRecord, err)
	}

	if strings.TrimSpace(r.VersionString) == "" {
		return Record{}, fmt.Errorf("%w: no or empty \"version\" field, add one such as \"1.0.0\"", ErrInvalidVersionRecord)
	}
	v, err := version.Parse(r.VersionString)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidVersionRecord, err)
	}
	r.Version = v

	if err := validateScope(r.ScopeName); err != nil {
		return Record{}, fmt.Errorf("%w: scopeName: %v", ErrInvalidVersionRecord, err)
	}
	for _, parent := range r.ParentScopes {
		if err := validateScope(parent); err != nil {
			return Record{}, fmt.Errorf("%w: parentScopes: %v", ErrInvalidVersionRecord, err)
		}
	}
	if r.ParentScopes == nil {
		r.ParentScopes = []string{}
	}

	return r, nil
}

func validateScope(scope string) error {
	if scope == "" {
		return fmt.Errorf("scope is required")
	}
	if strings.Contains(scope, "/") {
		return fmt.Errorf("scope %q must not contain '/'", scope)
	}
	if strings.IndexFunc(scope, unicode.IsSpace) >= 0 {
		return fmt.Errorf("scope %q must not contain whitespace", scope)
	}
	return nil
}

// WithVersion returns a copy of r carrying v, with VersionString re-derived.
func (r Record) WithVersion(v version.Version) Record {
	out := r
	out.Version = v
	out.VersionString = v.String()
	out.ParentScopes = append([]string{}, r.ParentScopes...)
	return out
}

// HasParent reports whether scope is one of the record's ancestor scopes.
func (r Record) HasParent(scope string) bool {
	for _, p := range r.ParentScopes {
		if p == scope {
			return true
		}
	}
	return false
}

// Marshal renders the record as two-space indented JSON with a trailing
// newline.
func (r Record) Marshal() ([]byte, error) {
	if r.ParentScopes == nil {
		r.ParentScopes = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
