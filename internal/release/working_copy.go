// Package release runs one release of a multi-project working tree: find the
// projects, read history since the last release, compute versions, rewrite
// version records and changelogs, then commit and tag in one go.
package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/versionize/internal/atomicfile"
	"github.com/versionize/internal/changelog"
	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/gitrepo"
	"github.com/versionize/internal/project"
)

// Options tune a release run.
type Options struct {
	// IgnoreInsignificant keeps a version unchanged when its commits are
	// neither breaking changes, features nor fixes.
	IgnoreInsignificant bool
	// IncludeAllCommits adds an "Other" block to changelog sections.
	IncludeAllCommits bool
	// ChangelogFile is the changelog document name.
	ChangelogFile string
	// PerScopeChangelog writes one changelog next to each version record
	// instead of one at the working tree root.
	PerScopeChangelog bool
	// Identity signs the release commit and tags. Empty fields fall back to
	// the git configuration.
	Identity gitrepo.Signature
}

// DefaultOptions match the behaviour of a plain release.
func DefaultOptions() Options {
	return Options{
		IgnoreInsignificant: true,
		ChangelogFile:       changelog.DefaultFileName,
	}
}

// WorkingCopy is a git working tree prepared for a release. A WorkingCopy
// must not run twice at the same time; callers serialize runs.
type WorkingCopy struct {
	repo       gitrepo.Repository
	discoverer project.Discoverer
	classifier conventional.Classifier
	logger     zerolog.Logger
	opts       Options

	// Now stamps the release commit, tags and changelog sections.
	Now func() time.Time
}

// New assembles a WorkingCopy from its collaborators.
func New(repo gitrepo.Repository, discoverer project.Discoverer, classifier conventional.Classifier, logger zerolog.Logger, opts Options) *WorkingCopy {
	if opts.ChangelogFile == "" {
		opts.ChangelogFile = changelog.DefaultFileName
	}
	return &WorkingCopy{
		repo:       repo,
		discoverer: discoverer,
		classifier: classifier,
		logger:     logger,
		opts:       opts,
		Now:        time.Now,
	}
}

// Discover opens the git working copy containing dir.
func Discover(dir string, discoverer project.Discoverer, classifier conventional.Classifier, logger zerolog.Logger, opts Options) (*WorkingCopy, error) {
	repo, err := gitrepo.Open(dir)
	if err != nil {
		if errors.Is(err, gitrepo.ErrRepositoryNotFound) {
			logger.Error().Err(err).Str("dir", dir).Msg("directory or any parent directory does not contain a git working copy")
		}
		return nil, err
	}
	repo.Identity = opts.Identity
	return New(repo, discoverer, classifier, logger, opts), nil
}

// Root is the working tree root.
func (w *WorkingCopy) Root() string {
	return w.repo.Root()
}

// Plan runs discovery, history analysis and version computation without
// touching files or history.
func (w *WorkingCopy) Plan(ctx context.Context) (*Result, error) {
	result, err := w.plan()
	if err != nil {
		return result, err
	}
	if !result.Changed() {
		w.logNoChange(result)
	}
	result.Stage = StageDone
	return result, ctx.Err()
}

// Versionize releases every project whose version moved. When nothing moved
// it returns a Result without releases and changes nothing.
func (w *WorkingCopy) Versionize(ctx context.Context) (*Result, error) {
	result, err := w.plan()
	if err != nil {
		return result, err
	}
	if !result.Changed() {
		w.logNoChange(result)
		result.Stage = StageDone
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	prepared, err := w.prepare(result)
	if err != nil {
		return result, err
	}

	w.enter(result, StagePersist)
	if err := w.persist(prepared); err != nil {
		return result, err
	}
	for _, r := range result.Releases {
		w.logger.Info().
			Str("scope", r.Scope).
			Msgf("bumping version from %s to %s in %s", r.From, r.To, r.Manifest)
	}

	w.enter(result, StageCommit)
	sha, err := w.repo.Commit(commitMessage(result.Releases), prepared.signature)
	if err != nil {
		w.rollback(prepared.snapshots)
		return result, fmt.Errorf("%w: commit: %v", ErrPersist, err)
	}
	result.Transaction.Commit = sha
	w.logger.Info().Str("commit", sha).Msg("created release commit")

	w.enter(result, StageTag)
	if err := w.tag(result, prepared); err != nil {
		return result, err
	}

	w.enter(result, StageDone)
	return result, nil
}

func (w *WorkingCopy) plan() (*Result, error) {
	result := &Result{Releases: []Release{}}

	w.enter(result, StageDiscover)
	set, err := w.discover()
	if err != nil {
		return result, err
	}
	result.Projects = set

	w.enter(result, StageAnalyze)
	treeHasRelease, err := w.analyze(result)
	if err != nil {
		return result, err
	}

	w.enter(result, StageCompute)
	if err := set.ComputeVersions(treeHasRelease, w.opts.IgnoreInsignificant); err != nil {
		return result, err
	}

	for _, p := range set.Updated() {
		next, _ := p.NewVersion()
		result.Releases = append(result.Releases, Release{
			Scope:       p.Scope(),
			Previous:    p.Version(),
			Next:        next,
			From:        p.Version().String(),
			To:          next.String(),
			Initial:     !treeHasRelease || !p.HasRelease(),
			Tag:         project.TagName(p.Scope(), next),
			VersionPath: p.VersionPath,
			Manifest:    p.ManifestFile(),
			Changelog:   w.changelogPath(p),
			Commits:     p.Commits,
			CommitCount: len(p.Commits),
		})
	}
	return result, nil
}

func (w *WorkingCopy) discover() (*project.Set, error) {
	root := w.repo.Root()
	projects, err := w.discoverer.Discover(root)
	if err != nil {
		w.logger.Error().Err(err).Str("root", root).Msg("project discovery failed")
		return nil, fmt.Errorf("discover projects in %s: %w", root, err)
	}

	set, err := project.NewSet(projects)
	if err != nil {
		w.logger.Error().Err(err).Msg("invalid project set")
		return nil, err
	}
	if set.IsEmpty() {
		w.logger.Error().Str("root", root).Msg("could not find any project with a valid version record")
		return nil, fmt.Errorf("%w in %s", ErrNoVersionableProjects, root)
	}

	w.logger.Info().Int("projects", set.Len()).Msg("discovered projects")
	return set, nil
}

func (w *WorkingCopy) analyze(result *Result) (bool, error) {
	previous, found, err := w.repo.NearestTag(project.IsReleaseTag)
	if err != nil {
		return false, fmt.Errorf("find last release tag: %w", err)
	}
	result.Transaction.PreviousTag = previous

	raws, err := w.repo.CommitsSince(previous)
	if err != nil {
		return false, fmt.Errorf("list commits since %q: %w", previous, err)
	}

	input := make([]conventional.Raw, 0, len(raws))
	for _, c := range raws {
		input = append(input, conventional.Raw{SHA: c.SHA, Message: c.Message})
	}
	commits, rejected := conventional.ClassifyAll(w.classifier, input)
	for _, reason := range rejected {
		w.logger.Debug().Err(reason).Msg("ignoring commit")
	}
	result.Transaction.Commits = commits

	tags, err := w.repo.Tags()
	if err != nil {
		return false, fmt.Errorf("list tags: %w", err)
	}
	unattributed := result.Projects.Attribute(commits, tags)

	w.logger.Info().
		Str("since", previous).
		Int("commits", len(raws)).
		Int("conventional", len(commits)).
		Int("unattributed", len(unattributed)).
		Msg("analyzed history")
	return found, nil
}

type pendingFile struct {
	path string
	data []byte
}

type prepared struct {
	// head is the commit the release is made on; empty on an unborn branch.
	head      string
	signature gitrepo.Signature
	files     []pendingFile
	snapshots []atomicfile.Snapshot
	at        time.Time
}

// prepare does everything that can fail before the first write: tag
// collisions, identity, and rendering every file in memory.
func (w *WorkingCopy) prepare(result *Result) (*prepared, error) {
	existing, err := w.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[t] = true
	}
	for _, r := range result.Releases {
		if taken[r.Tag] {
			w.logger.Error().Str("tag", r.Tag).Msg("release tag already exists")
			return nil, fmt.Errorf("%w: %s", ErrTagExists, r.Tag)
		}
	}

	at := w.Now()
	sig, err := w.repo.Signature(at)
	if err != nil {
		return nil, fmt.Errorf("resolve release identity: %w", err)
	}
	head, _, err := w.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	out := &prepared{head: head, signature: sig, at: at}

	docs := map[string]*changelog.Document{}
	var docOrder []string
	for _, r := range result.Releases {
		p, _ := result.Projects.Lookup(r.Scope)
		record, _ := p.UpdatedRecord()
		data, err := record.Marshal()
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", p.VersionPath, err)
		}
		out.files = append(out.files, pendingFile{path: p.VersionPath, data: data})

		writer := &changelog.Writer{Path: r.Changelog, IncludeAllCommits: w.opts.IncludeAllCommits}
		doc, ok := docs[writer.Path]
		if !ok {
			doc, err = writer.Load()
			if err != nil {
				return nil, err
			}
			docs[writer.Path] = doc
			docOrder = append(docOrder, writer.Path)
		}
		doc.Add(writer.Section(r.Scope, r.Next, at, r.Commits))
	}
	for _, path := range docOrder {
		out.files = append(out.files, pendingFile{path: path, data: docs[path].Bytes()})
	}
	return out, nil
}

// persist writes and stages every prepared file. On failure the files are
// put back as they were.
func (w *WorkingCopy) persist(p *prepared) error {
	for _, f := range p.files {
		snap, err := atomicfile.Take(f.path)
		if err != nil {
			w.rollback(p.snapshots)
			return fmt.Errorf("%w: snapshot %s: %v", ErrPersist, f.path, err)
		}
		p.snapshots = append(p.snapshots, snap)

		if err := atomicfile.Write(f.path, f.data, 0o644); err != nil {
			w.rollback(p.snapshots)
			return fmt.Errorf("%w: write %s: %v", ErrPersist, f.path, err)
		}
	}

	for _, f := range p.files {
		if err := w.repo.Stage(f.path); err != nil {
			w.rollback(p.snapshots)
			return fmt.Errorf("%w: stage %s: %v", ErrPersist, f.path, err)
		}
	}
	return nil
}

// rollback puts files back as they were and resets their index entries to
// HEAD, so a file the run created is neither on disk nor staged afterwards.
func (w *WorkingCopy) rollback(snapshots []atomicfile.Snapshot) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		if err := s.Restore(); err != nil {
			w.logger.Error().Err(err).Str("path", s.Path).Msg("could not restore file")
		}
		if err := w.repo.Unstage(s.Path); err != nil {
			w.logger.Error().Err(err).Str("path", s.Path).Msg("could not unstage file")
		}
	}
}

// tag creates the release tags. If one fails, the run is undone: tags of
// this run are removed, the branch goes back to the release base and files
// and index are restored.
func (w *WorkingCopy) tag(result *Result, p *prepared) error {
	sha := result.Transaction.Commit
	for _, r := range result.Releases {
		if err := w.repo.CreateTag(r.Tag, sha, p.signature, r.To); err != nil {
			w.untag(result.Transaction.Tags)
			result.Transaction.Tags = nil

			if resetErr := w.repo.ResetHead(p.head); resetErr != nil {
				w.logger.Error().Err(resetErr).Str("commit", sha).Msg("could not undo release commit")
				return fmt.Errorf("%w: %s: %v (release commit %s remains: %v)", ErrTagging, r.Tag, err, sha, resetErr)
			}
			w.rollback(p.snapshots)
			result.Transaction.Commit = ""

			w.logger.Error().Err(err).Str("commit", sha).Msg("tagging failed; release commit and files rolled back")
			return fmt.Errorf("%w: %s: %v (release commit %s undone)", ErrTagging, r.Tag, err, sha)
		}
		result.Transaction.Tags = append(result.Transaction.Tags, r.Tag)
		w.logger.Info().Str("tag", r.Tag).Msgf("tagged release as %s", r.To)
	}
	return nil
}

func (w *WorkingCopy) untag(tags []string) {
	for _, t := range tags {
		if err := w.repo.DeleteTag(t); err != nil {
			w.logger.Error().Err(err).Str("tag", t).Msg("could not remove tag")
		}
	}
}

func (w *WorkingCopy) changelogPath(p *project.Project) string {
	if w.opts.PerScopeChangelog {
		return filepath.Join(filepath.Dir(p.VersionPath), w.opts.ChangelogFile)
	}
	return filepath.Join(w.repo.Root(), w.opts.ChangelogFile)
}

func (w *WorkingCopy) enter(result *Result, stage Stage) {
	result.Stage = stage
	w.logger.Debug().Str("stage", string(stage)).Msg("release stage")
}

func (w *WorkingCopy) logNoChange(result *Result) {
	since := result.Transaction.PreviousTag
	if since == "" {
		since = "the beginning of history"
	}
	w.logger.Info().
		Str("since", since).
		Msgf("version was not affected by commits since last release (%s); insignificant changes are ignored, no action will be performed", since)
}

// commitMessage lists every release as "<scope>/ <version>", one per line.
func commitMessage(releases []Release) string {
	lines := make([]string, 0, len(releases))
	for _, r := range releases {
		lines = append(lines, fmt.Sprintf("%s/ %s", r.Scope, r.To))
	}
	return CommitPrefix + strings.Join(lines, "\n")
}
