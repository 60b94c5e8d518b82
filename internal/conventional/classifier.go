package conventional

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	cc "github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// ErrNotConventional is returned for messages that do not follow the
// Conventional Commits grammar.
var ErrNotConventional = errors.New("not a conventional commit")

// Classifier turns a raw commit message into a Commit.
type Classifier interface {
	Classify(sha, message string) (Commit, error)
}

// Raw is an unclassified commit as read from version control.
type Raw struct {
	SHA     string
	Message string
}

// TypeSet selects which commit types the parser accepts.
type TypeSet string

const (
	TypesMinimal      TypeSet = "minimal"
	TypesConventional TypeSet = "conventional"
	TypesFalco        TypeSet = "falco"
)

// ParseTypeSet validates a configured type set name.
func ParseTypeSet(name string) (TypeSet, error) {
	switch ts := TypeSet(strings.ToLower(strings.TrimSpace(name))); ts {
	case TypesMinimal, TypesConventional, TypesFalco:
		return ts, nil
	case "":
		return TypesConventional, nil
	default:
		return "", fmt.Errorf("unknown commit type set %q (want minimal, conventional or falco)", name)
	}
}

func (t TypeSet) config() cc.TypeConfig {
	switch t {
	case TypesMinimal:
		return cc.TypesMinimal
	case TypesFalco:
		return cc.TypesFalco
	default:
		return cc.TypesConventional
	}
}

// Parser classifies messages with the go-conventionalcommits state machine.
type Parser struct {
	machine cc.Machine
}

// NewParser builds a Parser accepting the given type set. Parsing runs in
// best-effort mode so a malformed footer does not discard an otherwise valid
// header.
func NewParser(types TypeSet) *Parser {
	return &Parser{
		machine: parser.NewMachine(
			parser.WithTypes(types.config()),
			parser.WithBestEffort(),
		),
	}
}

// Classify parses message. Footers become notes ordered by token; a "!"
// marker or a breaking-change footer yields a "BREAKING CHANGE" note.
func (p *Parser) Classify(sha, message string) (Commit, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return Commit{}, fmt.Errorf("%w: empty message", ErrNotConventional)
	}

	msg, err := p.machine.Parse([]byte(text))
	if msg == nil || !msg.Ok() {
		if err == nil {
			err = errors.New("incomplete header")
		}
		return Commit{}, fmt.Errorf("%w: %s: %v", ErrNotConventional, shortSHA(sha), err)
	}

	parsed, ok := msg.(*cc.ConventionalCommit)
	if !ok {
		return Commit{}, fmt.Errorf("%w: %s: unexpected message type %T", ErrNotConventional, shortSHA(sha), msg)
	}

	commit := Commit{
		SHA:     sha,
		Type:    strings.ToLower(parsed.Type),
		Subject: strings.TrimSpace(parsed.Description),
	}
	if parsed.Scope != nil {
		commit.Scope = strings.TrimSpace(*parsed.Scope)
	}
	if commit.Subject == "" {
		return Commit{}, fmt.Errorf("%w: %s: empty subject", ErrNotConventional, shortSHA(sha))
	}

	commit.Notes = notesFrom(parsed.Footers)
	if parsed.Exclamation && !commit.IsBreakingChange() {
		commit.Notes = append(commit.Notes, Note{Title: BreakingChangeTitle, Text: commit.Subject})
	}

	return commit, nil
}

func notesFrom(footers map[string][]string) []Note {
	tokens := make([]string, 0, len(footers))
	for token := range footers {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var notes []Note
	for _, token := range tokens {
		title := token
		if isBreakingToken(token) {
			title = BreakingChangeTitle
		}
		for _, text := range footers[token] {
			notes = append(notes, Note{Title: title, Text: strings.TrimSpace(text)})
		}
	}
	return notes
}

func isBreakingToken(token string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(token)), " ", "-")
	return normalized == "breaking-change"
}

// ClassifyAll classifies every commit, dropping those the classifier rejects.
// Rejections are returned alongside so callers can log them.
func ClassifyAll(c Classifier, raws []Raw) ([]Commit, []error) {
	commits := make([]Commit, 0, len(raws))
	var rejected []error
	for _, raw := range raws {
		commit, err := c.Classify(raw.SHA, raw.Message)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		commits = append(commits, commit)
	}
	return commits, rejected
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
