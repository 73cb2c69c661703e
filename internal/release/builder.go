package release

import (
	"context"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/buildqueue"
	"git.home.luguber.info/inful/relbuilder/internal/config"
	"git.home.luguber.info/inful/relbuilder/internal/toolchain"
)

// BinaryBuilder builds one matrix entry: it invokes the toolchain for the
// entry's target triple and stores the resulting binary from the
// conventional output path.
type BinaryBuilder struct {
	mu         sync.RWMutex
	projectDir string
	binary     string
	tc         config.ToolchainConfig

	runner toolchain.Runner
	store  *artifact.Store
}

// NewBinaryBuilder wires a builder against the configured project checkout
// and artifact store.
func NewBinaryBuilder(cfg *config.Config, runner toolchain.Runner, store *artifact.Store) *BinaryBuilder {
	return &BinaryBuilder{
		projectDir: cfg.Project.Path,
		binary:     cfg.Project.Binary,
		tc:         cfg.Toolchain,
		runner:     runner,
		store:      store,
	}
}

// UpdateConfig swaps the project and toolchain settings, so configuration
// reloads apply to the next release without rebuilding the queue.
func (b *BinaryBuilder) UpdateConfig(cfg *config.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projectDir = cfg.Project.Path
	b.binary = cfg.Project.Binary
	b.tc = cfg.Toolchain
}

// Build implements buildqueue.Builder.
func (b *BinaryBuilder) Build(ctx context.Context, job *buildqueue.Job) (*artifact.Record, error) {
	b.mu.RLock()
	projectDir := b.projectDir
	binary := b.binary
	tc := b.tc
	b.mu.RUnlock()

	inv := toolchain.Invocation{
		Command: tc.Command,
		Args:    tc.Args,
		Env:     tc.Env,
		Dir:     projectDir,
		Entry:   job.Entry,
	}
	if err := b.runner.Run(ctx, inv); err != nil {
		return nil, err
	}

	src := filepath.Join(projectDir, job.Entry.BinaryPath(binary))
	rec, err := b.store.Put(ctx, job.ReleaseID, job.Entry.ArtifactName(binary), job.Entry.Name, job.Entry.Target, src)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
