// Package deploy publishes versioned documentation. A deployment runs as a
// fixed sequence of stages (checkout, epoch, render, index, verify, publish);
// the first failing stage aborts the run before the publish stage, so the
// published branch never sees a partial deployment.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/config"
	"git.home.luguber.info/inful/relbuilder/internal/gitrepo"
	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"git.home.luguber.info/inful/relbuilder/internal/metrics"
	"git.home.luguber.info/inful/relbuilder/internal/site"
	"git.home.luguber.info/inful/relbuilder/internal/workspace"
)

// State carries deployment data between stages.
type State struct {
	Version   string
	Title     string
	Aliases   []string
	SourceDir string
	SiteDir   string // staging directory holding the full site tree
	RemoteURL string
	Branch    string
	Epoch     time.Time

	Result *gitrepo.PublishResult
}

// Stage is one step of the deployment pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, st *State) error
}

// StageError reports which stage failed a deployment.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Deployer runs documentation deployments for a configured project.
type Deployer struct {
	cfg      *config.Config
	git      *gitrepo.Client
	recorder metrics.Recorder
}

// NewDeployer creates a deployer for the given project configuration.
func NewDeployer(cfg *config.Config, git *gitrepo.Client) *Deployer {
	return &Deployer{cfg: cfg, git: git, recorder: metrics.NoopRecorder{}}
}

// SetRecorder injects a metrics recorder (optional).
func (d *Deployer) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	d.recorder = r
}

// Deploy publishes the documentation under the given version label. When no
// aliases are passed the configured default alias is applied, so the newest
// deployment is always reachable under a stable name.
func (d *Deployer) Deploy(ctx context.Context, version string, aliases []string) (*gitrepo.PublishResult, error) {
	if version == "" {
		return nil, &StageError{Stage: "validate", Err: fmt.Errorf("version label is required")}
	}
	if len(aliases) == 0 && d.cfg.Docs.DefaultAlias != "" {
		aliases = []string{d.cfg.Docs.DefaultAlias}
	}

	remoteURL, err := d.git.RemoteURL(d.cfg.Docs.Remote)
	if err != nil {
		return nil, &StageError{Stage: "validate", Err: err}
	}

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return nil, &StageError{Stage: "stage", Err: err}
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to clean up deploy workspace", logfields.Error(err))
		}
	}()
	siteDir, err := ws.CreateSubdir("site")
	if err != nil {
		return nil, &StageError{Stage: "stage", Err: err}
	}

	srcDir := d.cfg.Docs.SourceDir
	if !filepath.IsAbs(srcDir) {
		srcDir = filepath.Join(d.cfg.Project.Path, srcDir)
	}

	st := &State{
		Version:   version,
		Title:     d.cfg.Docs.Title,
		Aliases:   aliases,
		SourceDir: srcDir,
		SiteDir:   siteDir,
		RemoteURL: remoteURL,
		Branch:    d.cfg.Docs.PublishBranch,
	}

	stages := []Stage{
		&computeEpochStage{git: d.git},
		&checkoutSiteStage{},
		&renderStage{},
		&versionIndexStage{},
		&verifyStage{},
		&publishStage{},
	}

	for _, stage := range stages {
		start := time.Now()
		slog.Info("Starting deploy stage", logfields.Stage(stage.Name()), logfields.Version(version))
		err := stage.Execute(ctx, st)
		d.recorder.ObserveDeployStageDuration(stage.Name(), time.Since(start))
		if err != nil {
			d.recorder.IncDeployOutcome(metrics.OutcomeFailed)
			slog.Error("Deploy stage failed", logfields.Stage(stage.Name()), logfields.Error(err))
			return nil, &StageError{Stage: stage.Name(), Err: err}
		}
	}

	d.recorder.IncDeployOutcome(metrics.OutcomeSuccess)
	slog.Info("Documentation deployed",
		logfields.Version(version),
		logfields.Branch(st.Branch),
		slog.String("aliases", strings.Join(aliases, ",")))
	return st.Result, nil
}

// computeEpochStage derives the deployment timestamp from the project's HEAD
// commit, so two deployments of the same commit produce identical output.
type computeEpochStage struct {
	git *gitrepo.Client
}

func (s *computeEpochStage) Name() string { return "compute-epoch" }

func (s *computeEpochStage) Execute(_ context.Context, st *State) error {
	epoch, err := s.git.HeadEpoch()
	if err != nil {
		return err
	}
	st.Epoch = time.Unix(epoch, 0).UTC()
	return nil
}

// checkoutSiteStage seeds the staging directory with the currently published
// site, so earlier versions survive the branch replacement on publish.
type checkoutSiteStage struct{}

func (s *checkoutSiteStage) Name() string { return "checkout-site" }

func (s *checkoutSiteStage) Execute(ctx context.Context, st *State) error {
	return gitrepo.ExportBranch(ctx, st.RemoteURL, st.Branch, st.SiteDir)
}

// renderStage renders the markdown sources into the version directory.
type renderStage struct{}

func (s *renderStage) Name() string { return "render-site" }

func (s *renderStage) Execute(_ context.Context, st *State) error {
	gen := site.NewGenerator(st.Title)
	return gen.GenerateVersion(st.SourceDir, st.SiteDir, st.Version, st.Epoch)
}

// versionIndexStage updates versions.json, materializes aliases and rewrites
// the root redirect.
type versionIndexStage struct{}

func (s *versionIndexStage) Name() string { return "version-index" }

func (s *versionIndexStage) Execute(_ context.Context, st *State) error {
	entries, err := site.LoadVersions(st.SiteDir)
	if err != nil {
		return err
	}
	entries = site.ApplyVersion(entries, st.Version, st.Version, st.Aliases)
	if err := site.WriteVersions(st.SiteDir, entries); err != nil {
		return err
	}
	for _, alias := range st.Aliases {
		if err := site.CopyAlias(st.SiteDir, st.Version, alias); err != nil {
			return err
		}
	}
	if len(st.Aliases) > 0 {
		return site.WriteRootRedirect(st.SiteDir, st.Aliases[0])
	}
	return nil
}

// verifyStage rejects the staged site when any internal link is broken.
type verifyStage struct{}

func (s *verifyStage) Name() string { return "verify-site" }

func (s *verifyStage) Execute(_ context.Context, st *State) error {
	broken, err := site.Verify(st.SiteDir)
	if err != nil {
		return err
	}
	if len(broken) == 0 {
		return nil
	}
	refs := make([]string, 0, len(broken))
	for _, b := range broken {
		refs = append(refs, fmt.Sprintf("%s -> %s", b.Page, b.Href))
	}
	return fmt.Errorf("%d broken internal links: %s", len(broken), strings.Join(refs, "; "))
}

// publishStage replaces the publishing branch with the staged tree. It is
// the only stage with an externally visible effect.
type publishStage struct{}

func (s *publishStage) Name() string { return "publish" }

func (s *publishStage) Execute(ctx context.Context, st *State) error {
	result, err := gitrepo.PublishSite(ctx, gitrepo.PublishOptions{
		RemoteURL: st.RemoteURL,
		Branch:    st.Branch,
		SiteDir:   st.SiteDir,
		Message:   fmt.Sprintf("Deployed %s with %s", st.Version, strings.Join(st.Aliases, ", ")),
		When:      st.Epoch,
	})
	if err != nil {
		return err
	}
	st.Result = result
	return nil
}
