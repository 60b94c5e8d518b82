package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/version"
)

// Project is one versionable unit: a version record, the manifest beside it,
// and what this run learned about it.
type Project struct {
	ManifestPath string
	VersionPath  string
	Record       Record

	// Commits are the commits attributed to this project for the run.
	Commits []conventional.Commit
	// Releases are the release tags already cut for this project's scope.
	Releases []string

	newVersion *version.Version
}

// New wires a project from an already parsed record.
func New(versionPath, manifestPath string, record Record) *Project {
	return &Project{
		ManifestPath: manifestPath,
		VersionPath:  versionPath,
		Record:       record,
	}
}

// Load reads the version record at versionPath and locates the project
// manifest next to it. Errors are *ExclusionError values wrapping
// ErrInvalidVersionRecord or ErrMissingManifest.
func Load(versionPath string, manifests []string) (*Project, error) {
	data, err := os.ReadFile(versionPath)
	if err != nil {
		return nil, exclude(versionPath, ErrInvalidVersionRecord, "read: %v", err)
	}

	record, err := ParseRecord(data)
	if err != nil {
		return nil, &ExclusionError{Path: versionPath, Err: err}
	}

	manifest, err := findManifest(filepath.Dir(versionPath), manifests)
	if err != nil {
		return nil, &ExclusionError{Path: versionPath, Err: err}
	}

	return New(versionPath, manifest, record), nil
}

func findManifest(dir string, patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", fmt.Errorf("%w: bad manifest pattern %q: %v", ErrMissingManifest, pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			info, err := os.Stat(m)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrMissingManifest, err)
			}
			if info.Mode().IsRegular() {
				return m, nil
			}
		}
	}
	return "", fmt.Errorf("%w: none of %v found in %s", ErrMissingManifest, patterns, dir)
}

// Scope is the project's scope name.
func (p *Project) Scope() string {
	return p.Record.ScopeName
}

// Version is the version currently declared in the record.
func (p *Project) Version() version.Version {
	return p.Record.Version
}

// ManifestFile is the base name of the project manifest.
func (p *Project) ManifestFile() string {
	return filepath.Base(p.ManifestPath)
}

// Owns reports whether a commit counts toward this project: its scope is the
// project's own scope or one of its parent scopes.
func (p *Project) Owns(c conventional.Commit) bool {
	return c.Scope == p.Record.ScopeName || p.Record.HasParent(c.Scope)
}

// HasRelease reports whether a release tag exists for this scope.
func (p *Project) HasRelease() bool {
	return len(p.Releases) > 0
}

// NewVersion returns the version computed for this run, if any.
func (p *Project) NewVersion() (version.Version, bool) {
	if p.newVersion == nil {
		return version.Version{}, false
	}
	return *p.newVersion, true
}

// Updated reports whether the project is part of this release.
func (p *Project) Updated() bool {
	return p.newVersion != nil
}

// SetNewVersion marks the project updated. It can only be called once per run.
func (p *Project) SetNewVersion(v version.Version) error {
	if p.newVersion != nil {
		return fmt.Errorf("%w: %s is already at %s", ErrVersionAlreadySet, p.Scope(), p.newVersion)
	}
	p.newVersion = &v
	return nil
}

// UpdatedRecord is the record to persist for an updated project.
func (p *Project) UpdatedRecord() (Record, bool) {
	v, ok := p.NewVersion()
	if !ok {
		return Record{}, false
	}
	return p.Record.WithVersion(v), true
}
