package gitrepo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepository implements Repository on go-git.
type GitRepository struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string

	// Identity overrides the user name and email from git config when set.
	Identity Signature
}

// Open finds the working copy containing dir, walking up the directory tree
// like git itself does.
func Open(dir string) (*GitRepository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s or any parent directory", ErrRepositoryNotFound, abs)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", abs, err)
	}

	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return nil, fmt.Errorf("%w: %s is a bare repository", ErrRepositoryNotFound, abs)
	}
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	return &GitRepository{repo: repo, worktree: wt, root: wt.Filesystem.Root()}, nil
}

func (r *GitRepository) Root() string {
	return r.root
}

func (r *GitRepository) Tags() ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// NearestTag walks history breadth first from HEAD and returns the first
// accepted tag found. Ties on one commit resolve to the lowest name.
func (r *GitRepository) NearestTag(accept func(name string) bool) (string, bool, error) {
	head, ok, err := r.head()
	if err != nil || !ok {
		return "", false, err
	}

	targets, err := r.tagTargets(accept)
	if err != nil {
		return "", false, err
	}
	if len(targets) == 0 {
		return "", false, nil
	}

	queue := []*object.Commit{head}
	seen := map[plumbing.Hash]bool{head.Hash: true}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if names := targets[c.Hash]; len(names) > 0 {
			sort.Strings(names)
			return names[0], true, nil
		}

		err := c.Parents().ForEach(func(parent *object.Commit) error {
			if !seen[parent.Hash] {
				seen[parent.Hash] = true
				queue = append(queue, parent)
			}
			return nil
		})
		if err != nil {
			return "", false, fmt.Errorf("walk parents of %s: %w", c.Hash, err)
		}
	}
	return "", false, nil
}

func (r *GitRepository) CommitsSince(tag string) ([]Commit, error) {
	head, ok, err := r.head()
	if err != nil || !ok {
		return nil, err
	}

	excluded := map[plumbing.Hash]bool{}
	if tag != "" {
		target, err := r.resolveTag(tag)
		if err != nil {
			return nil, err
		}
		if err := r.walk(target, func(c *object.Commit) { excluded[c.Hash] = true }); err != nil {
			return nil, err
		}
	}

	var commits []Commit
	err = r.walk(head.Hash, func(c *object.Commit) {
		if excluded[c.Hash] {
			return
		}
		commits = append(commits, Commit{SHA: c.Hash.String(), Message: c.Message, When: c.Committer.When})
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (r *GitRepository) Stage(path string) error {
	rel, err := r.relative(path)
	if err != nil {
		return err
	}
	if _, err := r.worktree.Add(rel); err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	return nil
}

func (r *GitRepository) Unstage(path string) error {
	rel, err := r.relative(path)
	if err != nil {
		return err
	}

	var file *object.File
	head, ok, err := r.head()
	if err != nil {
		return err
	}
	if ok {
		tree, err := head.Tree()
		if err != nil {
			return fmt.Errorf("read HEAD tree: %w", err)
		}
		file, err = tree.File(rel)
		if errors.Is(err, object.ErrFileNotFound) {
			file = nil
		} else if err != nil {
			return fmt.Errorf("read %s at HEAD: %w", rel, err)
		}
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if file == nil {
		if _, err := idx.Remove(rel); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("unstage %s: %w", rel, err)
		}
	} else {
		entry, err := idx.Entry(rel)
		if errors.Is(err, index.ErrEntryNotFound) {
			entry = idx.Add(rel)
		} else if err != nil {
			return fmt.Errorf("unstage %s: %w", rel, err)
		}
		entry.Hash = file.Hash
		entry.Mode = file.Mode
		entry.Size = uint32(file.Size)
	}
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (r *GitRepository) Head() (string, bool, error) {
	c, ok, err := r.head()
	if err != nil || !ok {
		return "", false, err
	}
	return c.Hash.String(), true, nil
}

func (r *GitRepository) ResetHead(sha string) error {
	headRef, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}
	name := plumbing.HEAD
	if headRef.Type() == plumbing.SymbolicReference {
		name = headRef.Target()
	}

	if sha == "" {
		if name == plumbing.HEAD {
			return fmt.Errorf("reset detached HEAD: no commit to reset to")
		}
		if err := r.repo.Storer.RemoveReference(name); err != nil {
			return fmt.Errorf("reset %s: %w", name.Short(), err)
		}
		return nil
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, plumbing.NewHash(sha))); err != nil {
		return fmt.Errorf("reset %s to %s: %w", name.Short(), sha, err)
	}
	return nil
}

// relative turns a path under Root into a slash separated index path.
func (r *GitRepository) relative(path string) (string, error) {
	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(r.root, path)
		if err != nil {
			return "", fmt.Errorf("relative path of %s: %w", path, err)
		}
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside working tree %s", path, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// Signature prefers Identity and falls back to user.name and user.email from
// the repository and global git config.
func (r *GitRepository) Signature(when time.Time) (Signature, error) {
	sig := Signature{Name: r.Identity.Name, Email: r.Identity.Email, When: when}
	if sig.Name != "" && sig.Email != "" {
		return sig, nil
	}

	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return Signature{}, fmt.Errorf("read git config: %w", err)
	}
	if sig.Name == "" {
		sig.Name = cfg.User.Name
	}
	if sig.Email == "" {
		sig.Email = cfg.User.Email
	}
	if sig.Name == "" || sig.Email == "" {
		return Signature{}, fmt.Errorf("%w: set user.name and user.email", ErrNoIdentity)
	}
	return sig, nil
}

func (r *GitRepository) Commit(message string, sig Signature) (string, error) {
	author := toObjectSignature(sig)
	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author:    author,
		Committer: author,
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

func (r *GitRepository) CreateTag(name, target string, tagger Signature, message string) error {
	_, err := r.repo.CreateTag(name, plumbing.NewHash(target), &git.CreateTagOptions{
		Tagger:  toObjectSignature(tagger),
		Message: message,
	})
	if errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("%w: %s", ErrTagExists, name)
	}
	if err != nil {
		return fmt.Errorf("create tag %s: %w", name, err)
	}
	return nil
}

func (r *GitRepository) DeleteTag(name string) error {
	err := r.repo.DeleteTag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("delete tag %s: %w", name, err)
	}
	return nil
}

func (r *GitRepository) head() (*object.Commit, bool, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolve HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, false, fmt.Errorf("read HEAD commit: %w", err)
	}
	return c, true, nil
}

// tagTargets maps commit hashes to the accepted tags pointing at them,
// peeling annotated tags.
func (r *GitRepository) tagTargets(accept func(name string) bool) (map[plumbing.Hash][]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	targets := map[plumbing.Hash][]string{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if accept != nil && !accept(name) {
			return nil
		}
		hash, ok, err := r.peel(ref.Hash())
		if err != nil || !ok {
			return err
		}
		targets[hash] = append(targets[hash], name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}
	return targets, nil
}

func (r *GitRepository) resolveTag(name string) (plumbing.Hash, error) {
	ref, err := r.repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve tag %s: %w", name, err)
	}
	hash, ok, err := r.peel(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("tag %s does not point at a commit", name)
	}
	return hash, nil
}

// peel returns the commit a tag reference ends up at. Lightweight tags point
// at the commit directly.
func (r *GitRepository) peel(hash plumbing.Hash) (plumbing.Hash, bool, error) {
	tagObj, err := r.repo.TagObject(hash)
	switch {
	case err == nil:
		c, err := tagObj.Commit()
		if errors.Is(err, object.ErrUnsupportedObject) {
			return plumbing.ZeroHash, false, nil
		}
		if err != nil {
			return plumbing.ZeroHash, false, fmt.Errorf("peel tag %s: %w", tagObj.Name, err)
		}
		return c.Hash, true, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return hash, true, nil
	default:
		return plumbing.ZeroHash, false, fmt.Errorf("read tag object %s: %w", hash, err)
	}
}

func (r *GitRepository) walk(from plumbing.Hash, visit func(*object.Commit)) error {
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return fmt.Errorf("log from %s: %w", from, err)
	}
	defer iter.Close()
	return iter.ForEach(func(c *object.Commit) error {
		visit(c)
		return nil
	})
}

func toObjectSignature(sig Signature) *object.Signature {
	return &object.Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
}
