// Package gitrepotest provides an in-memory gitrepo.Repository with a linear
// history for tests.
package gitrepotest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/versionize/internal/gitrepo"
)

// RecordedCommit is a commit made through the fake.
type RecordedCommit struct {
	SHA       string
	Message   string
	Signature gitrepo.Signature
	Staged    []string
}

// Repo is a fake repository. History is newest first.
type Repo struct {
	RootDir  string
	History  []gitrepo.Commit
	TagRefs  map[string]string
	TagNotes map[string]string
	Identity gitrepo.Signature

	Staged   []string
	Unstaged []string
	Commits  []RecordedCommit
	Deleted  []string
	Resets   []string

	// Fail makes the named operation ("stage", "unstage", "commit", "tag",
	// "reset", "signature", "tags", "log") return the error.
	Fail map[string]error
	// FailTag makes CreateTag fail only for that tag name.
	FailTag string
	// FailStage makes Stage fail only for that slash separated path.
	FailStage string

	seq int
}

// New returns an empty fake rooted at dir.
func New(dir string) *Repo {
	return &Repo{
		RootDir:  dir,
		TagRefs:  map[string]string{},
		TagNotes: map[string]string{},
		Identity: gitrepo.Signature{Name: "Release Bot", Email: "release@example.com"},
		Fail:     map[string]error{},
	}
}

// AddCommit appends a commit on top of history and returns its id.
func (r *Repo) AddCommit(message string) string {
	r.seq++
	sha := fmt.Sprintf("%040d", r.seq)
	r.History = append([]gitrepo.Commit{{SHA: sha, Message: message, When: time.Unix(int64(r.seq), 0).UTC()}}, r.History...)
	return sha
}

// Tag points name at the current HEAD.
func (r *Repo) Tag(name string) {
	if len(r.History) == 0 {
		panic("gitrepotest: tag on empty history")
	}
	r.TagRefs[name] = r.History[0].SHA
}

func (r *Repo) Root() string {
	return r.RootDir
}

func (r *Repo) Tags() ([]string, error) {
	if err := r.Fail["tags"]; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(r.TagRefs))
	for name := range r.TagRefs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repo) NearestTag(accept func(string) bool) (string, bool, error) {
	names, err := r.Tags()
	if err != nil {
		return "", false, err
	}
	for _, c := range r.History {
		for _, name := range names {
			if r.TagRefs[name] == c.SHA && (accept == nil || accept(name)) {
				return name, true, nil
			}
		}
	}
	return "", false, nil
}

func (r *Repo) CommitsSince(tag string) ([]gitrepo.Commit, error) {
	if err := r.Fail["log"]; err != nil {
		return nil, err
	}
	stop := ""
	if tag != "" {
		sha, ok := r.TagRefs[tag]
		if !ok {
			return nil, fmt.Errorf("%w: %s", gitrepo.ErrTagNotFound, tag)
		}
		stop = sha
	}
	var out []gitrepo.Commit
	for _, c := range r.History {
		if c.SHA == stop {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repo) Stage(path string) error {
	if err := r.Fail["stage"]; err != nil {
		return err
	}
	rel, err := filepath.Rel(r.RootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("stage %s: outside working tree", path)
	}
	rel = filepath.ToSlash(rel)
	if rel == r.FailStage {
		return fmt.Errorf("stage %s: injected failure", rel)
	}
	r.Staged = append(r.Staged, rel)
	return nil
}

func (r *Repo) Unstage(path string) error {
	if err := r.Fail["unstage"]; err != nil {
		return err
	}
	rel, err := filepath.Rel(r.RootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("unstage %s: outside working tree", path)
	}
	rel = filepath.ToSlash(rel)
	var kept []string
	for _, p := range r.Staged {
		if p != rel {
			kept = append(kept, p)
		}
	}
	r.Staged = kept
	r.Unstaged = append(r.Unstaged, rel)
	return nil
}

func (r *Repo) Head() (string, bool, error) {
	if len(r.History) == 0 {
		return "", false, nil
	}
	return r.History[0].SHA, true, nil
}

// ResetHead drops commits above sha from History.
func (r *Repo) ResetHead(sha string) error {
	if err := r.Fail["reset"]; err != nil {
		return err
	}
	for i, c := range r.History {
		if c.SHA == sha {
			r.History = r.History[i:]
			r.Resets = append(r.Resets, sha)
			return nil
		}
	}
	if sha != "" {
		return fmt.Errorf("reset to %s: unknown commit", sha)
	}
	r.History = nil
	r.Resets = append(r.Resets, sha)
	return nil
}

func (r *Repo) Signature(when time.Time) (gitrepo.Signature, error) {
	if err := r.Fail["signature"]; err != nil {
		return gitrepo.Signature{}, err
	}
	sig := r.Identity
	sig.When = when
	return sig, nil
}

func (r *Repo) Commit(message string, sig gitrepo.Signature) (string, error) {
	if err := r.Fail["commit"]; err != nil {
		return "", err
	}
	sha := r.AddCommit(message)
	r.History[0].When = sig.When
	r.Commits = append(r.Commits, RecordedCommit{SHA: sha, Message: message, Signature: sig, Staged: r.Staged})
	r.Staged = nil
	return sha, nil
}

func (r *Repo) CreateTag(name, target string, _ gitrepo.Signature, message string) error {
	if err := r.Fail["tag"]; err != nil {
		return err
	}
	if r.FailTag == name {
		return fmt.Errorf("create tag %s: injected failure", name)
	}
	if _, ok := r.TagRefs[name]; ok {
		return fmt.Errorf("%w: %s", gitrepo.ErrTagExists, name)
	}
	r.TagRefs[name] = target
	r.TagNotes[name] = message
	return nil
}

func (r *Repo) DeleteTag(name string) error {
	if _, ok := r.TagRefs[name]; !ok {
		return fmt.Errorf("%w: %s", gitrepo.ErrTagNotFound, name)
	}
	delete(r.TagRefs, name)
	delete(r.TagNotes, name)
	r.Deleted = append(r.Deleted, name)
	return nil
}

var _ gitrepo.Repository = (*Repo)(nil)
