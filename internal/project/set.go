package project

import (
	"fmt"
	"sort"

	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/version"
)

// Set is every project discovered in a working tree. Attribution and version
// computation run over the whole set because parent scopes link projects.
type Set struct {
	projects []*Project
}

// NewSet orders projects by scope and rejects two projects sharing a scope.
func NewSet(projects []*Project) (*Set, error) {
	seen := make(map[string]string, len(projects))
	sorted := make([]*Project, 0, len(projects))
	for _, p := range projects {
		if prev, ok := seen[p.Scope()]; ok {
			return nil, fmt.Errorf("%w: %q declared by %s and %s", ErrDuplicateScope, p.Scope(), prev, p.VersionPath)
		}
		seen[p.Scope()] = p.VersionPath
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Scope() < sorted[j].Scope()
	})
	return &Set{projects: sorted}, nil
}

func (s *Set) IsEmpty() bool {
	return len(s.projects) == 0
}

func (s *Set) Len() int {
	return len(s.projects)
}

// Projects returns the projects ordered by scope.
func (s *Set) Projects() []*Project {
	return s.projects
}

// Lookup finds the project for scope.
func (s *Set) Lookup(scope string) (*Project, bool) {
	for _, p := range s.projects {
		if p.Scope() == scope {
			return p, true
		}
	}
	return nil, false
}

// Updated returns the projects that received a new version this run.
func (s *Set) Updated() []*Project {
	var out []*Project
	for _, p := range s.projects {
		if p.Updated() {
			out = append(out, p)
		}
	}
	return out
}

// Attribute hands each project the commits it owns and the release tags of
// its scope. A commit carries a single scope; it is matched verbatim against
// each project's scope and parent scopes. Commits no project owns are
// returned so callers can report them.
func (s *Set) Attribute(commits []conventional.Commit, tags []string) []conventional.Commit {
	owned := make([]bool, len(commits))
	for _, p := range s.projects {
		p.Commits = nil
		for i, c := range commits {
			if p.Owns(c) {
				p.Commits = append(p.Commits, c)
				owned[i] = true
			}
		}

		p.Releases = nil
		for _, tag := range tags {
			if scope, _, ok := ParseTag(tag); ok && scope == p.Scope() {
				p.Releases = append(p.Releases, tag)
			}
		}
		sort.Strings(p.Releases)
	}

	var unattributed []conventional.Commit
	for i, c := range commits {
		if !owned[i] {
			unattributed = append(unattributed, c)
		}
	}
	return unattributed
}

// ComputeVersions decides each project's new version. A project is on its
// initial version when the tree has no release tag at all or its own scope
// has none; it keeps its declared version but is still released. Otherwise
// the increment rules run over its attributed commits and the project is
// released only when the version moves.
func (s *Set) ComputeVersions(treeHasReleaseTag, ignoreInsignificant bool) error {
	for _, p := range s.projects {
		isInitial := !treeHasReleaseTag || !p.HasRelease()

		next := p.Version()
		if !isInitial {
			next = version.Next(p.Version(), p.Commits, ignoreInsignificant)
		}

		if isInitial || !next.Equal(p.Version()) {
			if err := p.SetNewVersion(next); err != nil {
				return err
			}
		}
	}
	return nil
}
