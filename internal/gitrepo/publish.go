package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// PublishOptions describe a site publication.
type PublishOptions struct {
	RemoteURL string    // repository URL to publish to
	Branch    string    // publishing branch, e.g. gh-pages
	SiteDir   string    // generated site tree to publish
	Message   string    // commit message
	When      time.Time // commit timestamp; zero means now
}

// PublishResult reports what a publication did.
type PublishResult struct {
	Commit string // new commit hash, empty when nothing changed
	Pushed bool
}

// PublishSite replaces the content of the publishing branch with the
// generated site tree as a single commit and pushes it. The push is the only
// externally visible mutation: every failure before it leaves the remote
// branch untouched, so a publication is either complete or absent.
func PublishSite(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	workDir, err := os.MkdirTemp("", "relbuilder-publish-")
	if err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "clone", Err: err}
	}
	defer os.RemoveAll(workDir)

	repo, err := cloneForPublish(ctx, workDir, opts.RemoteURL, opts.Branch)
	if err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "clone", Err: err}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "stage", Err: err}
	}
	if err := clearWorktree(workDir); err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "stage", Err: err}
	}
	if err := copyTree(opts.SiteDir, workDir); err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "stage", Err: err}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "stage", Err: err}
	}

	status, err := wt.Status()
	if err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "commit", Err: err}
	}
	if status.IsClean() {
		slog.Info("Site unchanged, nothing to publish", logfields.Branch(opts.Branch))
		return &PublishResult{}, nil
	}

	when := opts.When
	if when.IsZero() {
		when = time.Now()
	}
	sig := &object.Signature{Name: "relbuilder", Email: "relbuilder@localhost", When: when}
	commit, err := wt.Commit(opts.Message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return nil, &PublishError{Branch: opts.Branch, Stage: "commit", Err: err}
	}

	refSpec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", opts.Branch, opts.Branch))
	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", RefSpecs: []gitcfg.RefSpec{refSpec}})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, &PublishError{Branch: opts.Branch, Stage: "push", Err: err}
	}

	slog.Info("Published site",
		logfields.Branch(opts.Branch),
		logfields.Commit(commit.String()[:8]),
		logfields.URL(opts.RemoteURL))
	return &PublishResult{Commit: commit.String(), Pushed: true}, nil
}

// cloneForPublish checks out the publishing branch into workDir. A missing
// branch (or a completely empty remote) starts a fresh branch history.
func cloneForPublish(ctx context.Context, workDir, remoteURL, branch string) (*git.Repository, error) {
	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}
	if !isMissingBranch(err) {
		return nil, err
	}

	// Branch does not exist yet: initialize a repository whose first commit
	// will create it.
	repo, err = git.PlainInit(workDir, false)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: "origin", URLs: []string{remoteURL}}); err != nil {
		return nil, err
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, err
	}
	return repo, nil
}

// ExportBranch copies the tree of a remote branch into destDir, without git
// metadata. A missing branch (or empty remote) leaves destDir untouched so a
// first deployment starts from an empty site.
func ExportBranch(ctx context.Context, remoteURL, branch, destDir string) error {
	workDir, err := os.MkdirTemp("", "relbuilder-export-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	_, err = git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		if isMissingBranch(err) {
			return nil
		}
		return err
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == git.GitDirName {
			continue
		}
		src := filepath.Join(workDir, e.Name())
		if e.IsDir() {
			if err := copyTree(src, filepath.Join(destDir, e.Name())); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(src, filepath.Join(destDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	in, err := os.Open(src) // #nosec G304 - path comes from the export clone
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func isMissingBranch(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}

// clearWorktree removes everything in dir except the .git directory.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyTree copies the regular files and directories under src into dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		in, err := os.Open(path) // #nosec G304 - path comes from walking the generated site
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
