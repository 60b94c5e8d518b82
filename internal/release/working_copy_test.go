package release

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/gitrepo/gitrepotest"
	"github.com/versionize/internal/project"
)

var releaseTime = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

type harness struct {
	t    *testing.T
	root string
	repo *gitrepotest.Repo
	logs *bytes.Buffer
	wc   *WorkingCopy
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// newHarness lays out two projects: core at 1.0.0 and web at 0.3.1 with
// core as a parent scope.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "core", "version.json"), `{"version":"1.0.0","scopeName":"core"}`)
	writeFile(t, filepath.Join(root, "core", "go.mod"), "module core\n")
	writeFile(t, filepath.Join(root, "apps", "web", "version.json"), `{"version":"0.3.1","scopeName":"web","parentScopes":["core"]}`)
	writeFile(t, filepath.Join(root, "apps", "web", "package.json"), "{}\n")

	logs := &bytes.Buffer{}
	logger := zerolog.New(logs).Level(zerolog.DebugLevel)
	repo := gitrepotest.New(root)
	wc := New(repo, project.NewFileDiscoverer(logger), conventional.NewParser(conventional.TypesConventional), logger, opts)
	wc.Now = func() time.Time { return releaseTime }
	return &harness{t: t, root: root, repo: repo, logs: logs, wc: wc}
}

// released tags both projects at their declared versions.
func (h *harness) released() {
	h.repo.AddCommit("chore(release): core/ 1.0.0\nweb/ 0.3.1")
	h.repo.Tag("core/v1.0.0")
	h.repo.Tag("web/v0.3.1")
}

func (h *harness) path(parts ...string) string {
	return filepath.Join(append([]string{h.root}, parts...)...)
}

func TestVersionizeFirstRelease(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.repo.AddCommit("chore: bootstrap")
	h.repo.AddCommit("feat(core): add cache")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageDone, result.Stage)
	require.Len(t, result.Releases, 2)
	assert.Equal(t, "core", result.Releases[0].Scope)
	assert.Equal(t, "1.0.0", result.Releases[0].To)
	assert.True(t, result.Releases[0].Initial)
	assert.Equal(t, "web", result.Releases[1].Scope)
	assert.Equal(t, "0.3.1", result.Releases[1].To)

	assert.Equal(t, "1.0.0", h.repo.TagNotes["core/v1.0.0"])
	assert.Equal(t, "0.3.1", h.repo.TagNotes["web/v0.3.1"])
	assert.Equal(t, []string{"core/v1.0.0", "web/v0.3.1"}, result.Transaction.Tags)

	require.Len(t, h.repo.Commits, 1)
	assert.Equal(t, "chore(release): core/ 1.0.0\nweb/ 0.3.1", h.repo.Commits[0].Message)
	assert.Equal(t, h.repo.Commits[0].SHA, result.Transaction.Commit)
	assert.Equal(t, h.repo.TagRefs["core/v1.0.0"], result.Transaction.Commit)

	assert.Contains(t, readFile(t, h.path("CHANGELOG.md")), "## core: 1.0.0 (2024-3-5)\n#### Features\n* **core:** Add cache\n")
}

func TestVersionizeBumpsFromCommits(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	h.repo.AddCommit("fix(web): handle empty form")
	h.repo.AddCommit("docs(unknown): typo")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Releases, 2)

	assert.Equal(t, "core/v1.0.0", result.Transaction.PreviousTag)
	assert.Equal(t, "1.0.0", result.Releases[0].From)
	assert.Equal(t, "1.1.0", result.Releases[0].To)
	assert.False(t, result.Releases[0].Initial)
	assert.Equal(t, "0.3.1", result.Releases[1].From)
	assert.Equal(t, "0.4.0", result.Releases[1].To)
	assert.Equal(t, 2, result.Releases[1].CommitCount)

	assert.Equal(t, "{\n  \"version\": \"1.1.0\",\n  \"scopeName\": \"core\",\n  \"parentScopes\": []\n}\n", readFile(t, h.path("core", "version.json")))
	assert.Contains(t, readFile(t, h.path("apps", "web", "version.json")), `"version": "0.4.0"`)

	wantChangelog := "# Changelog\n" +
		"\n## web: 0.4.0 (2024-3-5)\n" +
		"#### Bug Fixes\n* **web:** Handle empty form\n\n" +
		"#### Features\n* **core:** Add cache\n\n" +
		"\n## core: 1.1.0 (2024-3-5)\n" +
		"#### Features\n* **core:** Add cache\n\n"
	assert.Equal(t, wantChangelog, readFile(t, h.path("CHANGELOG.md")))

	require.Len(t, h.repo.Commits, 1)
	commit := h.repo.Commits[0]
	assert.Equal(t, "chore(release): core/ 1.1.0\nweb/ 0.4.0", commit.Message)
	assert.Equal(t, []string{"core/version.json", "apps/web/version.json", "CHANGELOG.md"}, commit.Staged)
	assert.Equal(t, "Release Bot", commit.Signature.Name)
	assert.Equal(t, releaseTime, commit.Signature.When)

	assert.Equal(t, commit.SHA, h.repo.TagRefs["core/v1.1.0"])
	assert.Equal(t, commit.SHA, h.repo.TagRefs["web/v0.4.0"])
	assert.Contains(t, h.logs.String(), "bumping version from 1.0.0 to 1.1.0 in go.mod")
	assert.Contains(t, h.logs.String(), "tagged release as 0.4.0")
}

func TestVersionizeOnlyParentAffected(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("fix(web): handle empty form")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Releases, 1)
	assert.Equal(t, "web", result.Releases[0].Scope)
	assert.Equal(t, "0.3.2", result.Releases[0].To)
	assert.Contains(t, readFile(t, h.path("core", "version.json")), `"version":"1.0.0"`)
	assert.Equal(t, "chore(release): web/ 0.3.2", h.repo.Commits[0].Message)
}

func TestVersionizeBreakingChange(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core)!: drop v1 API")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Releases, 2)
	assert.Equal(t, "2.0.0", result.Releases[0].To)
	assert.Equal(t, "1.0.0", result.Releases[1].To)
	assert.Contains(t, readFile(t, h.path("CHANGELOG.md")), "#### Breaking Changes\n* **core:** Drop v1 API\n")
}

func TestVersionizeNothingToRelease(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("chore(core): tidy imports")
	h.repo.AddCommit("not a conventional commit")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Changed())
	assert.Equal(t, StageDone, result.Stage)
	assert.Empty(t, h.repo.Commits)
	assert.Len(t, h.repo.TagRefs, 2)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
	assert.Contains(t, h.logs.String(), "version was not affected by commits since last release (core/v1.0.0)")
}

func TestVersionizeIncludesInsignificantWhenConfigured(t *testing.T) {
	opts := DefaultOptions()
	opts.IgnoreInsignificant = false
	opts.IncludeAllCommits = true
	h := newHarness(t, opts)
	h.released()
	h.repo.AddCommit("chore(core): tidy imports")

	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Releases, 2)
	assert.Equal(t, "1.0.1", result.Releases[0].To)
	assert.Contains(t, readFile(t, h.path("CHANGELOG.md")), "#### Other\n* **core:** Tidy imports\n")
}

func TestVersionizePerScopeChangelog(t *testing.T) {
	opts := DefaultOptions()
	opts.PerScopeChangelog = true
	h := newHarness(t, opts)
	h.released()
	h.repo.AddCommit("fix(web): handle empty form")

	_, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, h.path("CHANGELOG.md"))
	assert.NoFileExists(t, h.path("core", "CHANGELOG.md"))
	assert.Equal(t, "# Changelog\n\n## web: 0.3.2 (2024-3-5)\n#### Bug Fixes\n* **web:** Handle empty form\n\n",
		readFile(t, h.path("apps", "web", "CHANGELOG.md")))
	assert.Equal(t, []string{"apps/web/version.json", "apps/web/CHANGELOG.md"}, h.repo.Commits[0].Staged)
}

func TestVersionizeNoProjects(t *testing.T) {
	root := t.TempDir()
	repo := gitrepotest.New(root)
	repo.AddCommit("feat: something")
	wc := New(repo, project.NewFileDiscoverer(zerolog.Nop()), conventional.NewParser(conventional.TypesConventional), zerolog.Nop(), DefaultOptions())

	result, err := wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrNoVersionableProjects)
	assert.Equal(t, StageDiscover, result.Stage)
	assert.Empty(t, repo.Commits)
}

func TestVersionizeDuplicateScope(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	writeFile(t, h.path("lib", "version.json"), `{"version":"1.0.0","scopeName":"core"}`)
	writeFile(t, h.path("lib", "go.mod"), "module lib\n")
	h.repo.AddCommit("feat(core): add cache")

	_, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, project.ErrDuplicateScope)
	assert.Empty(t, h.repo.Commits)
}

func TestVersionizeExistingTagAbortsBeforeWriting(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	// a tag for the next version on a side branch
	h.repo.TagRefs["core/v1.1.0"] = "ffffffffffffffffffffffffffffffffffffffff"

	result, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrTagExists)
	assert.Equal(t, StageCompute, result.Stage)
	assert.Empty(t, h.repo.Commits)
	assert.Empty(t, h.repo.Staged)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
	assert.Contains(t, readFile(t, h.path("core", "version.json")), `"version":"1.0.0"`)
}

func TestVersionizeMissingIdentity(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.repo.AddCommit("feat(core): add cache")
	h.repo.Fail["signature"] = errors.New("no identity")

	_, err := h.wc.Versionize(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.repo.Commits)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
}

func TestVersionizeRestoresFilesWhenStagingFails(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	h.repo.Fail["stage"] = errors.New("index locked")

	result, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, StagePersist, result.Stage)

	assert.Equal(t, `{"version":"1.0.0","scopeName":"core"}`, readFile(t, h.path("core", "version.json")))
	assert.Equal(t, `{"version":"0.3.1","scopeName":"web","parentScopes":["core"]}`, readFile(t, h.path("apps", "web", "version.json")))
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
	assert.Empty(t, h.repo.Commits)
	assert.Empty(t, h.repo.Staged)
}

func TestVersionizeUnstagesWhenStagingFailsPartway(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	h.repo.FailStage = "CHANGELOG.md"

	_, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrPersist)

	assert.Empty(t, h.repo.Staged)
	assert.ElementsMatch(t, []string{"core/version.json", "apps/web/version.json", "CHANGELOG.md"}, h.repo.Unstaged)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
}

func TestVersionizeRestoresFilesWhenCommitFails(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	writeFile(t, h.path("CHANGELOG.md"), "# Changelog\n\n## core: 1.0.0 (2024-1-1)\n")
	h.repo.AddCommit("fix(core): close handles")
	h.repo.Fail["commit"] = errors.New("hook rejected")

	result, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, StageCommit, result.Stage)
	assert.Equal(t, "# Changelog\n\n## core: 1.0.0 (2024-1-1)\n", readFile(t, h.path("CHANGELOG.md")))
	assert.Contains(t, readFile(t, h.path("core", "version.json")), `"version":"1.0.0"`)
	assert.Len(t, h.repo.TagRefs, 2)
	assert.Empty(t, h.repo.Staged)
	assert.ElementsMatch(t, []string{"core/version.json", "apps/web/version.json", "CHANGELOG.md"}, h.repo.Unstaged)
}

func TestVersionizeUndoesReleaseWhenTaggingFails(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	base := h.repo.AddCommit("feat(core): add cache")
	h.repo.FailTag = "web/v0.4.0"

	result, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrTagging)
	assert.Equal(t, StageTag, result.Stage)

	require.Len(t, h.repo.Commits, 1)
	assert.Contains(t, err.Error(), h.repo.Commits[0].SHA+" undone")
	assert.Equal(t, []string{"core/v1.1.0"}, h.repo.Deleted)
	assert.NotContains(t, h.repo.TagRefs, "core/v1.1.0")
	assert.Empty(t, result.Transaction.Tags)
	assert.Empty(t, result.Transaction.Commit)

	assert.Equal(t, []string{base}, h.repo.Resets)
	head, _, err := h.repo.Head()
	require.NoError(t, err)
	assert.Equal(t, base, head)
	assert.Equal(t, `{"version":"1.0.0","scopeName":"core"}`, readFile(t, h.path("core", "version.json")))
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
	assert.ElementsMatch(t, []string{"core/version.json", "apps/web/version.json", "CHANGELOG.md"}, h.repo.Unstaged)
}

func TestVersionizeRerunAfterTaggingFailure(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	h.repo.FailTag = "web/v0.4.0"

	_, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrTagging)

	h.repo.FailTag = ""
	result, err := h.wc.Versionize(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Releases, 2)
	assert.Equal(t, "1.0.0", result.Releases[0].From)
	assert.Equal(t, "1.1.0", result.Releases[0].To)
	assert.Equal(t, "0.3.1", result.Releases[1].From)
	assert.Equal(t, "0.4.0", result.Releases[1].To)

	tags, err := h.repo.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"core/v1.0.0", "core/v1.1.0", "web/v0.3.1", "web/v0.4.0"}, tags)
	assert.Equal(t, 1, strings.Count(readFile(t, h.path("CHANGELOG.md")), "## core: 1.1.0"))
}

func TestVersionizeUndoFailureKeepsCommit(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")
	h.repo.FailTag = "core/v1.1.0"
	h.repo.Fail["reset"] = errors.New("ref locked")

	_, err := h.wc.Versionize(context.Background())
	require.ErrorIs(t, err, ErrTagging)
	assert.Contains(t, err.Error(), "remains")
	assert.Contains(t, readFile(t, h.path("core", "version.json")), `"version": "1.1.0"`)
}

func TestVersionizeCancelledBeforePersist(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.repo.AddCommit("feat(core): add cache")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.wc.Versionize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.repo.Commits)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
}

func TestPlanChangesNothing(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.released()
	h.repo.AddCommit("feat(core): add cache")

	result, err := h.wc.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Releases, 2)
	assert.Equal(t, "core/v1.1.0", result.Releases[0].Tag)
	assert.Equal(t, h.path("CHANGELOG.md"), result.Releases[0].Changelog)
	assert.Equal(t, "go.mod", result.Releases[0].Manifest)
	assert.Empty(t, h.repo.Commits)
	assert.Empty(t, h.repo.Staged)
	assert.Len(t, h.repo.TagRefs, 2)
	assert.NoFileExists(t, h.path("CHANGELOG.md"))
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "chore(release): api/ 1.2.3", commitMessage([]Release{{Scope: "api", To: "1.2.3"}}))
	assert.Equal(t, "chore(release): a/ 1.0.0\nb/ 2.0.0", commitMessage([]Release{{Scope: "a", To: "1.0.0"}, {Scope: "b", To: "2.0.0"}}))
}
