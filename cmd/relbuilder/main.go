package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/buildqueue"
	"git.home.luguber.info/inful/relbuilder/internal/config"
	"git.home.luguber.info/inful/relbuilder/internal/daemon"
	"git.home.luguber.info/inful/relbuilder/internal/deploy"
	"git.home.luguber.info/inful/relbuilder/internal/eventstore"
	"git.home.luguber.info/inful/relbuilder/internal/gitrepo"
	"git.home.luguber.info/inful/relbuilder/internal/release"
	"git.home.luguber.info/inful/relbuilder/internal/toolchain"
	"git.home.luguber.info/inful/relbuilder/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"relbuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Release struct {
	} `cmd:"" help:"Run one release: build every matrix entry and store the artifacts"`

	DeployDocs struct {
		Label   string   `arg:"" help:"Version label to deploy under, e.g. v1.2"`
		Aliases []string `arg:"" optional:"" help:"Aliases for this version (default: configured default alias)"`
	} `cmd:"" help:"Render and publish versioned documentation"`

	Validate struct {
	} `cmd:"" help:"Validate the configuration and build matrix"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Daemon struct {
	} `cmd:"" help:"Watch the project branch and release every new head"`

	Status struct {
		Limit int `short:"n" help:"Number of events to show" default:"20"`
	} `cmd:"" help:"Show recent release events from the daemon's event store"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cmd := ctx.Command()
	switch {
	case cmd == "release":
		cfg, err := loadConfig()
		if err != nil {
			fail("Failed to load configuration", err)
		}
		if err := runRelease(cfg); err != nil {
			fail("Release failed", err)
		}
	case strings.HasPrefix(cmd, "deploy-docs"):
		cfg, err := loadConfig()
		if err != nil {
			fail("Failed to load configuration", err)
		}
		if err := runDeployDocs(cfg, CLI.DeployDocs.Label, CLI.DeployDocs.Aliases); err != nil {
			fail("Docs deployment failed", err)
		}
	case cmd == "validate":
		if _, err := loadConfig(); err != nil {
			fail("Configuration is invalid", err)
		}
		fmt.Println("Configuration OK")
	case cmd == "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			fail("Init failed", err)
		}
		slog.Info("Wrote configuration file", "path", CLI.Config)
	case cmd == "daemon":
		cfg, err := loadConfig()
		if err != nil {
			fail("Failed to load configuration", err)
		}
		if err := runDaemon(cfg); err != nil {
			fail("Daemon failed", err)
		}
	case cmd == "status":
		cfg, err := loadConfig()
		if err != nil {
			fail("Failed to load configuration", err)
		}
		if err := runStatus(cfg, CLI.Status.Limit); err != nil {
			fail("Status failed", err)
		}
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(CLI.Config)
}

func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func runRelease(cfg *config.Config) error {
	ctx := context.Background()

	store, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}

	queue := buildqueue.New(cfg.Build.QueueSize, cfg.Build.Workers,
		release.NewBinaryBuilder(cfg, toolchain.NewExecRunner(), store))
	queue.SetRetryPolicy(cfg.RetryPolicy())
	queue.Start(ctx)
	defer queue.Stop(ctx)

	svc := release.NewService(cfg, queue, store, gitrepo.NewClient(cfg.Project.Path))
	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Release %s complete: %d artifacts for commit %s\n",
		result.ReleaseID, len(result.Artifacts), result.Commit)
	for _, rec := range result.Artifacts {
		fmt.Printf("  %s  %s\n", rec.SHA256[:12], rec.Name)
	}
	return nil
}

func runDeployDocs(cfg *config.Config, label string, aliases []string) error {
	d := deploy.NewDeployer(cfg, gitrepo.NewClient(cfg.Project.Path))
	result, err := d.Deploy(context.Background(), label, aliases)
	if err != nil {
		return err
	}
	if !result.Pushed {
		fmt.Println("Site unchanged, nothing deployed")
		return nil
	}
	fmt.Printf("Deployed %s as %s\n", label, result.Commit[:8])
	return nil
}

func runStatus(cfg *config.Config, limit int) error {
	dbPath := filepath.Join(cfg.Daemon.DataDir, "state", "events.db")
	store, err := eventstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No release events recorded")
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %-16s  %s\n",
			e.Timestamp.Format(time.RFC3339), e.Type, e.ReleaseID)
	}
	return nil
}

func runDaemon(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		d.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	d.Stop(context.Background())
	return nil
}
