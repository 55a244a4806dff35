package update

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/charliek/minerd/internal/domain"
)

// Git pulls the working tree the node is built from.
type Git struct {
	Path   string
	Remote string
	Branch string // empty follows the remote HEAD
}

// NewGit creates a git checker for the repository containing path
func NewGit(path, remote, branch string) *Git {
	if remote == "" {
		remote = "origin"
	}
	return &Git{Path: path, Remote: remote, Branch: branch}
}

// Check fast-forwards the working tree. Local modifications to tracked files
// are reported as an error and left in place.
func (g *Git) Check(ctx context.Context) (bool, error) {
	updated, err := g.pull(ctx)
	if err != nil {
		return false, &domain.UpdateCheckError{Source: "git", Err: err}
	}
	return updated, nil
}

func (g *Git) pull(ctx context.Context) (bool, error) {
	repo, err := git.PlainOpenWithOptions(g.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false, fmt.Errorf("opening repository %s: %w", g.Path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}

	if dirty, err := modifiedFiles(wt); err != nil {
		return false, err
	} else if len(dirty) > 0 {
		return false, fmt.Errorf("working tree has local changes: %s", strings.Join(dirty, ", "))
	}

	opts := &git.PullOptions{RemoteName: g.Remote}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		opts.SingleBranch = true
	}

	err = wt.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pulling %s: %w", g.Remote, err)
	}
	return true, nil
}

// modifiedFiles lists tracked files with staged or unstaged changes.
// Untracked files do not block a pull.
func modifiedFiles(wt *git.Worktree) ([]string, error) {
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}

	var files []string
	for path, fs := range status {
		if fs.Worktree == git.Untracked && fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree == git.Unmodified && fs.Staging == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
