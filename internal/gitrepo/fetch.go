package gitrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Fetch updates remote-tracking refs from the named remote. An up-to-date or
// still-empty remote is not an error. The daemon calls this before reading a
// branch head so pushed commits become visible.
func (c *Client) Fetch(ctx context.Context, remote string) error {
	repo, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return &OpenError{Path: c.repoPath, Err: err}
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remote})
	if err != nil &&
		!errors.Is(err, git.NoErrAlreadyUpToDate) &&
		!errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("fetch %s: %w", remote, err)
	}
	return nil
}
