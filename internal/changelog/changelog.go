// Package changelog renders release notes into a markdown document that
// grows from the top: each release prepends one section below a fixed
// preamble and never touches older sections.
package changelog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/version"
)

// Preamble heads every changelog document exactly once.
const Preamble = "# Changelog"

// DefaultFileName is the changelog document name.
const DefaultFileName = "CHANGELOG.md"

const bom = "\uFEFF"

// Writer renders release sections for one changelog document.
type Writer struct {
	Path string
	// IncludeAllCommits adds an "Other" block for commits that are neither
	// fixes, features nor breaking changes.
	IncludeAllCommits bool
}

// Load reads the document on disk. A missing file loads as empty.
func (w *Writer) Load() (*Document, error) {
	existing, err := os.ReadFile(w.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read changelog %s: %w", w.Path, err)
	}
	return &Document{text: string(existing)}, nil
}

// Section renders one release with the writer's options.
func (w *Writer) Section(scope string, v version.Version, at time.Time, commits []conventional.Commit) string {
	return Section(scope, v, at, commits, w.IncludeAllCommits)
}

// Document is a changelog held in memory so several releases can be added
// before anything is written.
type Document struct {
	text string
}

// Add prepends a rendered section.
func (d *Document) Add(section string) {
	d.text = Prepend(d.text, section)
}

func (d *Document) String() string {
	return d.text
}

func (d *Document) Bytes() []byte {
	return []byte(d.text)
}

// Prepend places section directly under the preamble of document. The
// preamble is written once even when document already starts with it, with
// or without a trailing line break. A byte order mark is kept and a CRLF
// document stays CRLF.
func Prepend(document, section string) string {
	body, hasBOM := strings.CutPrefix(document, bom)

	newline := "\n"
	if strings.Contains(body, "\r\n") {
		newline = "\r\n"
		section = strings.ReplaceAll(section, "\n", "\r\n")
	}

	first, rest, _ := strings.Cut(body, "\n")
	if strings.TrimRight(first, "\r") == Preamble {
		body = rest
	}

	out := Preamble + newline + section + body
	if hasBOM {
		out = bom + out
	}
	return out
}

// Section renders one release: a header followed by Bug Fixes, Features and
// Breaking Changes blocks and, when includeAll is set, an Other block.
// Empty blocks are omitted.
func Section(scope string, v version.Version, at time.Time, commits []conventional.Commit, includeAll bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s: %s (%d-%d-%d)\n", scope, v, at.Year(), int(at.Month()), at.Day())

	writeBlock(&b, "Bug Fixes", filter(commits, conventional.Commit.IsFix))
	writeBlock(&b, "Features", filter(commits, conventional.Commit.IsFeature))
	writeBlock(&b, "Breaking Changes", filter(commits, conventional.Commit.IsBreakingChange))
	if includeAll {
		writeBlock(&b, "Other", filter(commits, conventional.Commit.IsOther))
	}
	return b.String()
}

func writeBlock(b *strings.Builder, header string, commits []conventional.Commit) {
	if len(commits) == 0 {
		return
	}
	sort.SliceStable(commits, func(i, j int) bool {
		if commits[i].Scope != commits[j].Scope {
			return commits[i].Scope < commits[j].Scope
		}
		return commits[i].Subject < commits[j].Subject
	})

	fmt.Fprintf(b, "#### %s\n", header)
	for _, c := range commits {
		b.WriteString(Line(c))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

// Line renders a single commit, e.g. "* **api:** Handle null body".
func Line(c conventional.Commit) string {
	if strings.TrimSpace(c.Scope) == "" {
		return "* " + capitalize(c.Subject)
	}
	return fmt.Sprintf("* **%s:** %s", c.Scope, capitalize(c.Subject))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func filter(commits []conventional.Commit, keep func(conventional.Commit) bool) []conventional.Commit {
	var out []conventional.Commit
	for _, c := range commits {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
