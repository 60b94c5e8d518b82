package release

import (
	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/project"
	"github.com/versionize/internal/version"
)

// CommitPrefix starts every release commit message.
const CommitPrefix = "chore(release): "

// Stage is a step of a release run.
type Stage string

const (
	StageDiscover Stage = "discover"
	StageAnalyze  Stage = "analyze"
	StageCompute  Stage = "compute"
	StagePersist  Stage = "persist"
	StageCommit   Stage = "commit"
	StageTag      Stage = "tag"
	StageDone     Stage = "done"
)

// Release describes one project being released.
type Release struct {
	Scope       string                `json:"scope" yaml:"scope"`
	Previous    version.Version       `json:"-" yaml:"-"`
	Next        version.Version       `json:"-" yaml:"-"`
	From        string                `json:"from" yaml:"from"`
	To          string                `json:"to" yaml:"to"`
	Initial     bool                  `json:"initial" yaml:"initial"`
	Tag         string                `json:"tag" yaml:"tag"`
	VersionPath string                `json:"versionPath" yaml:"versionPath"`
	Manifest    string                `json:"manifest" yaml:"manifest"`
	Changelog   string                `json:"changelog" yaml:"changelog"`
	Commits     []conventional.Commit `json:"-" yaml:"-"`
	CommitCount int                   `json:"commits" yaml:"commits"`
}

// Transaction is what one run did to history. It is never persisted.
type Transaction struct {
	// PreviousTag is the release tag the run started from; empty when the
	// tree has never been released.
	PreviousTag string                `json:"previousTag" yaml:"previousTag"`
	Commits     []conventional.Commit `json:"-" yaml:"-"`
	Commit      string                `json:"commit,omitempty" yaml:"commit,omitempty"`
	Tags        []string              `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Result is returned by Plan and Versionize.
type Result struct {
	Stage       Stage        `json:"stage" yaml:"stage"`
	Releases    []Release    `json:"releases" yaml:"releases"`
	Transaction Transaction  `json:"transaction" yaml:"transaction"`
	Projects    *project.Set `json:"-" yaml:"-"`
}

// Changed reports whether any project is released.
func (r *Result) Changed() bool {
	return r != nil && len(r.Releases) > 0
}
