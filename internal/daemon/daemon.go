// Package daemon runs relbuilder as a long-lived service: it polls the
// project's main branch and starts a release for every new head, exposes
// Prometheus metrics, persists release events, and reloads its configuration
// on file changes.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/buildqueue"
	"git.home.luguber.info/inful/relbuilder/internal/config"
	"git.home.luguber.info/inful/relbuilder/internal/eventstore"
	"git.home.luguber.info/inful/relbuilder/internal/gitrepo"
	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"git.home.luguber.info/inful/relbuilder/internal/metrics"
	"git.home.luguber.info/inful/relbuilder/internal/notify"
	"git.home.luguber.info/inful/relbuilder/internal/release"
	"git.home.luguber.info/inful/relbuilder/internal/toolchain"
	"git.home.luguber.info/inful/relbuilder/internal/workspace"
)

// Option customizes daemon construction.
type Option func(*Daemon)

// WithRunner replaces the toolchain runner (used by tests).
func WithRunner(r toolchain.Runner) Option {
	return func(d *Daemon) { d.runner = r }
}

// Daemon wires the release pipeline into a polling service.
type Daemon struct {
	mu         sync.Mutex
	cfg        *config.Config
	configPath string

	runner    toolchain.Runner
	queue     *buildqueue.Queue
	builder   *release.BinaryBuilder
	releases  *release.Service
	git       *gitrepo.Client
	store     *eventstore.Store
	publisher *notify.Publisher
	recorder  *metrics.PrometheusRecorder
	registry  *prom.Registry

	scheduler  gocron.Scheduler
	watcher    *ConfigWatcher
	httpServer *http.Server

	lastBuilt string
	releasing bool
}

// New builds a daemon from configuration. configPath is watched for changes.
func New(cfg *config.Config, configPath string, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		runner:     toolchain.NewExecRunner(),
		git:        gitrepo.NewClient(cfg.Project.Path),
	}
	for _, opt := range opts {
		opt(d)
	}

	// The data directory persists across releases.
	ws := workspace.NewPersistentManager(cfg.Daemon.DataDir, "state")
	if err := ws.Create(); err != nil {
		return nil, err
	}

	store, err := eventstore.Open(filepath.Join(ws.Path(), "events.db"))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	d.store = store

	if cfg.Daemon.NATSURL != "" {
		pub, err := notify.NewPublisher(cfg.Daemon.NATSURL, cfg.Daemon.NATSSubject)
		if err != nil {
			store.Close()
			return nil, err
		}
		d.publisher = pub
	}

	d.registry = prom.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(d.registry)

	artStore, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		d.closeStores()
		return nil, err
	}

	var pubSink release.Sink
	if d.publisher != nil {
		pubSink = d.publisher
	}
	router := NewEventRouter(d.store, pubSink)

	d.builder = release.NewBinaryBuilder(cfg, d.runner, artStore)
	d.queue = buildqueue.New(cfg.Build.QueueSize, cfg.Build.Workers, d.builder)
	d.queue.SetRetryPolicy(cfg.RetryPolicy())
	d.queue.SetRecorder(d.recorder)
	d.queue.SetEventEmitter(router)

	d.releases = release.NewService(cfg, d.queue, artStore, d.git)
	d.releases.SetRecorder(d.recorder)
	d.releases.SetSink(router)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		d.closeStores()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = scheduler

	return d, nil
}

// Start launches the queue, the poll schedule, the metrics endpoint and the
// configuration watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.queue.Start(ctx)

	interval := d.cfg.PollInterval()
	_, err := d.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { d.pollOnce(ctx) }),
		gocron.WithName("poll-main-branch"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule branch poll: %w", err)
	}
	d.scheduler.Start()

	if listen := d.cfg.Daemon.MetricsListen; listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
		d.httpServer = &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", listen))
			if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return err
		}
		d.watcher = watcher
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	slog.Info("Daemon started",
		logfields.Branch(d.cfg.Project.Branch),
		slog.Duration("poll_interval", interval))
	return nil
}

// Stop shuts the daemon down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			slog.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}
	if d.httpServer != nil {
		if err := d.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
	}
	d.queue.Stop(ctx)
	d.closeStores()
	slog.Info("Daemon stopped")
}

func (d *Daemon) closeStores() {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			slog.Warn("Failed to close NATS publisher", logfields.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("Failed to close event store", logfields.Error(err))
		}
	}
}

// pollOnce checks the watched branch for a new head and runs one release for
// it. Overlapping polls are serialized; a poll that lands while a release is
// still running does nothing.
func (d *Daemon) pollOnce(ctx context.Context) {
	// Reload rewrites d.cfg in place, so the fields this poll needs are
	// copied under the lock instead of holding on to the config pointer.
	d.mu.Lock()
	if d.releasing {
		d.mu.Unlock()
		return
	}
	remote := d.cfg.Project.Remote
	branch := d.cfg.Project.Branch
	last := d.lastBuilt
	d.mu.Unlock()

	if err := d.git.Fetch(ctx, remote); err != nil {
		slog.Warn("Branch fetch failed", logfields.Error(err))
		return
	}
	head, err := d.git.BranchHead(remote, branch)
	if err != nil {
		slog.Warn("Branch head resolution failed",
			logfields.Branch(branch),
			logfields.Error(err))
		return
	}
	if head == last {
		return
	}

	d.mu.Lock()
	d.releasing = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.releasing = false
		d.mu.Unlock()
	}()

	slog.Info("New head detected, starting release",
		logfields.Branch(branch),
		logfields.Commit(head))

	result, err := d.releases.Run(ctx)
	if err != nil {
		slog.Error("Scheduled release failed", logfields.Commit(head), logfields.Error(err))
		return
	}

	d.mu.Lock()
	d.lastBuilt = head
	d.mu.Unlock()
	slog.Info("Scheduled release completed",
		logfields.ReleaseID(result.ReleaseID),
		logfields.Commit(head))
}

// Reload applies a changed configuration. Matrix, toolchain and retry
// changes take effect for the next release; worker and queue sizing require
// a restart.
func (d *Daemon) Reload(newCfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.releasing {
		return fmt.Errorf("release in progress, retry reload later")
	}
	if newCfg.Build.Workers != d.cfg.Build.Workers || newCfg.Build.QueueSize != d.cfg.Build.QueueSize {
		slog.Warn("Worker and queue size changes require a restart")
	}

	*d.cfg = *newCfg
	d.queue.SetRetryPolicy(newCfg.RetryPolicy())
	d.builder.UpdateConfig(newCfg)
	slog.Info("Configuration reloaded", logfields.Path(d.configPath))
	return nil
}

// Events exposes the recent release event history.
func (d *Daemon) Events(ctx context.Context, limit int) ([]eventstore.Event, error) {
	return d.store.Recent(ctx, limit)
}
