// Package conventional holds the classified view of commits written in the
// Conventional Commits style and the classifier that produces it.
package conventional

import "strings"

// BreakingChangeTitle is the note title that marks a breaking change.
const BreakingChangeTitle = "BREAKING CHANGE"

// Note is a footer of a conventional commit, e.g. "BREAKING CHANGE: drop v1 API".
type Note struct {
	Title string
	Text  string
}

// Commit is an immutable classified commit. Scope is empty when the message
// declares none.
type Commit struct {
	SHA     string
	Scope   string
	Type    string
	Subject string
	Notes   []Note
}

func (c Commit) IsFeature() bool {
	return c.Type == "feat"
}

func (c Commit) IsFix() bool {
	return c.Type == "fix"
}

// IsBreakingChange reports whether any note is titled "BREAKING CHANGE",
// ignoring case.
func (c Commit) IsBreakingChange() bool {
	for _, n := range c.Notes {
		if strings.EqualFold(n.Title, BreakingChangeTitle) {
			return true
		}
	}
	return false
}

// IsOther reports whether the commit is neither a fix, a feature nor a
// breaking change.
func (c Commit) IsOther() bool {
	return !c.IsFix() && !c.IsFeature() && !c.IsBreakingChange()
}
