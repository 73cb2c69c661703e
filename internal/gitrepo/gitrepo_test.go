package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with a single commit at a fixed committer time.
func initRepo(t *testing.T, when time.Time) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o600))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: when}
	hash, err := wt.Commit("initial", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestHeadAndEpoch(t *testing.T) {
	when := time.Unix(1700000000, 0)
	dir, hash := initRepo(t, when)

	c := NewClient(dir)
	head, err := c.Head()
	require.NoError(t, err)
	assert.Equal(t, hash, head)

	epoch, err := c.HeadEpoch()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), epoch)
}

// The epoch is a function of history: reading it twice must agree.
func TestHeadEpochDeterministic(t *testing.T) {
	dir, _ := initRepo(t, time.Unix(1690000000, 0))
	c := NewClient(dir)

	first, err := c.HeadEpoch()
	require.NoError(t, err)
	second, err := c.HeadEpoch()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeadEpochMissingRepo(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "absent"))
	_, err := c.HeadEpoch()
	var oerr *OpenError
	require.ErrorAs(t, err, &oerr)
}

func TestBranchHead(t *testing.T) {
	dir, hash := initRepo(t, time.Unix(1700000000, 0))
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)

	c := NewClient(dir)
	got, err := c.BranchHead("origin", head.Name().Short())
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	_, err = c.BranchHead("origin", "no-such-branch")
	var berr *BranchNotFoundError
	require.ErrorAs(t, err, &berr)
}

func TestRemoteURL(t *testing.T) {
	dir, _ := initRepo(t, time.Unix(1700000000, 0))
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitcfg.RemoteConfig{Name: "origin", URLs: []string{"https://example.com/repo.git"}})
	require.NoError(t, err)

	c := NewClient(dir)
	url, err := c.RemoteURL("origin")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/repo.git", url)

	_, err = c.RemoteURL("upstream")
	var rerr *RemoteNotFoundError
	require.ErrorAs(t, err, &rerr)
}

func TestPublishSiteCreatesBranchOnBareRemote(t *testing.T) {
	bare := t.TempDir()
	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	site := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(site, "v1.0.0"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte("<html></html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(site, "v1.0.0", "index.html"), []byte("<html>v1</html>"), 0o600))

	res, err := PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare,
		Branch:    "gh-pages",
		SiteDir:   site,
		Message:   "deploy docs v1.0.0",
		When:      time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	assert.True(t, res.Pushed)
	require.NotEmpty(t, res.Commit)

	// The bare remote must now contain the branch with the published tree.
	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	assert.Equal(t, res.Commit, ref.Hash().String())

	commit, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	_, err = tree.File("v1.0.0/index.html")
	assert.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).Unix(), commit.Committer.When.Unix())
}

func TestPublishSiteReplacesPreviousContent(t *testing.T) {
	bare := t.TempDir()
	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	site1 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(site1, "old.html"), []byte("old"), 0o600))
	_, err = PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare, Branch: "gh-pages", SiteDir: site1, Message: "deploy old",
	})
	require.NoError(t, err)

	site2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(site2, "new.html"), []byte("new"), 0o600))
	res, err := PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare, Branch: "gh-pages", SiteDir: site2, Message: "deploy new",
	})
	require.NoError(t, err)

	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	commit, err := remote.CommitObject(plumbing.NewHash(res.Commit))
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	_, err = tree.File("new.html")
	assert.NoError(t, err)
	_, err = tree.File("old.html")
	assert.Error(t, err, "previous content must be replaced")

	// History is preserved: the second deploy has the first as parent.
	assert.Equal(t, 1, commit.NumParents())
}

func TestPublishSiteNoChangesSkipsPush(t *testing.T) {
	bare := t.TempDir()
	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	site := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte("same"), 0o600))

	_, err = PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare, Branch: "gh-pages", SiteDir: site, Message: "deploy",
	})
	require.NoError(t, err)

	res, err := PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare, Branch: "gh-pages", SiteDir: site, Message: "deploy again",
	})
	require.NoError(t, err)
	assert.False(t, res.Pushed)
	assert.Empty(t, res.Commit)
}

func TestPublishSiteFailsWithoutTouchingRemote(t *testing.T) {
	bare := t.TempDir()
	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	// Site directory does not exist: staging must fail before any push.
	_, err = PublishSite(context.Background(), PublishOptions{
		RemoteURL: bare, Branch: "gh-pages", SiteDir: filepath.Join(t.TempDir(), "absent"),
		Message: "deploy",
	})
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "stage", perr.Stage)

	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	_, err = remote.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	assert.Error(t, err, "failed publish must not create the branch")
}

func TestFetchMissingRemote(t *testing.T) {
	dir, _ := initRepo(t, time.Unix(1700000000, 0))
	c := NewClient(dir)
	assert.Error(t, c.Fetch(context.Background(), "origin"))
}
