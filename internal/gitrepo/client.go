// Package gitrepo wraps the go-git operations relbuilder needs: resolving
// repository heads, deriving the deterministic source date epoch, polling a
// branch for new commits and publishing a generated site to a dedicated
// branch.
package gitrepo

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Client handles git operations against a local project checkout.
type Client struct {
	repoPath string
}

// NewClient creates a client for the repository at repoPath.
func NewClient(repoPath string) *Client { return &Client{repoPath: repoPath} }

// Path returns the repository path this client operates on.
func (c *Client) Path() string { return c.repoPath }

// Head returns the current HEAD commit hash.
func (c *Client) Head() (string, error) {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return "", &OpenError{Path: c.repoPath, Err: err}
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// HeadEpoch returns the committer timestamp of the HEAD commit as a Unix
// epoch. The value is a pure function of repository history, so re-running
// against the same history yields the same epoch. It feeds
// SOURCE_DATE_EPOCH for reproducible site archives.
func (c *Client) HeadEpoch() (int64, error) {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return 0, &OpenError{Path: c.repoPath, Err: err}
	}
	ref, err := repo.Head()
	if err != nil {
		return 0, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return 0, fmt.Errorf("load HEAD commit: %w", err)
	}
	return commit.Committer.When.Unix(), nil
}

// BranchHead resolves the tip of a local branch, falling back to the
// remote-tracking ref when the branch has no local head.
func (c *Client) BranchHead(remote, branch string) (string, error) {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return "", &OpenError{Path: c.repoPath, Err: err}
	}
	if ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true); err == nil {
		return ref.Hash().String(), nil
	}
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		return "", &BranchNotFoundError{Branch: branch, Err: err}
	}
	return ref.Hash().String(), nil
}

// CommitTime returns the committer timestamp of the given commit.
func (c *Client) CommitTime(hash string) (time.Time, error) {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return time.Time{}, &OpenError{Path: c.repoPath, Err: err}
	}
	commit, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return time.Time{}, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return commit.Committer.When, nil
}

// RemoteURL returns the first URL configured for the named remote.
func (c *Client) RemoteURL(name string) (string, error) {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return "", &OpenError{Path: c.repoPath, Err: err}
	}
	remote, err := repo.Remote(name)
	if err != nil {
		return "", &RemoteNotFoundError{Remote: name, Err: err}
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", &RemoteNotFoundError{Remote: name, Err: fmt.Errorf("remote has no URLs")}
	}
	return urls[0], nil
}
