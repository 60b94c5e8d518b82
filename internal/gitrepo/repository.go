// Package gitrepo is the narrow version-control surface the release flow
// needs: tags, commit ranges, staging, committing and tagging.
package gitrepo

import (
	"errors"
	"time"
)

var (
	// ErrRepositoryNotFound is returned when no git working copy exists at or
	// above the requested directory.
	ErrRepositoryNotFound = errors.New("git working copy not found")
	// ErrTagNotFound is returned for a tag name the repository does not know.
	ErrTagNotFound = errors.New("tag not found")
	// ErrTagExists is returned when creating a tag whose name is taken.
	ErrTagExists = errors.New("tag already exists")
	// ErrNoIdentity is returned when neither configuration nor git config
	// supply a user name and email.
	ErrNoIdentity = errors.New("no git identity configured")
)

// Signature identifies an author, committer or tagger at a point in time.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is a raw commit as stored in history.
type Commit struct {
	SHA     string
	Message string
	When    time.Time
}

// Repository is implemented by GitRepository and by in-memory fakes in tests.
type Repository interface {
	// Root is the absolute path of the working tree.
	Root() string
	// Tags lists every tag name.
	Tags() ([]string, error)
	// NearestTag finds the accepted tag closest to HEAD in history.
	NearestTag(accept func(name string) bool) (string, bool, error)
	// CommitsSince lists commits reachable from HEAD but not from tag, newest
	// first. An empty tag means the whole history.
	CommitsSince(tag string) ([]Commit, error)
	// Head returns the commit HEAD points at; false on an unborn branch.
	Head() (string, bool, error)
	// ResetHead moves the current branch to sha, leaving index and working
	// tree alone. An empty sha makes the branch unborn again.
	ResetHead(sha string) error
	// Stage adds a file under Root to the index.
	Stage(path string) error
	// Unstage puts the index entry of a file back to its HEAD content, or
	// drops it when HEAD does not have the file.
	Unstage(path string) error
	// Signature resolves the identity used for commits and tags.
	Signature(when time.Time) (Signature, error)
	// Commit records the index and returns the new commit id.
	Commit(message string, sig Signature) (string, error)
	// CreateTag creates an annotated tag on target.
	CreateTag(name, target string, tagger Signature, message string) error
	// DeleteTag removes a tag.
	DeleteTag(name string) error
}
