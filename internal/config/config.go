// Package config defines the relbuilder configuration surface: the project
// under release, the build matrix, toolchain invocation, artifact storage,
// docs deployment and daemon settings.
package config

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Matrix    []matrix.Entry  `yaml:"matrix"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Docs      DocsConfig      `yaml:"docs"`
	Build     BuildConfig     `yaml:"build"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// ProjectConfig identifies the repository whose binary is released.
type ProjectConfig struct {
	Path   string `yaml:"path"`   // local checkout of the project
	Remote string `yaml:"remote"` // remote name for publishing, defaults to origin
	Branch string `yaml:"branch"` // main branch watched for releases
	Binary string `yaml:"binary"` // binary name, e.g. "jj"
}

// ToolchainConfig controls the compiler invocation per matrix entry.
type ToolchainConfig struct {
	// Command is the toolchain executable, e.g. "cargo".
	Command string `yaml:"command"`
	// Args are the arguments before per-entry flags, e.g. [build, --release].
	Args []string `yaml:"args,omitempty"`
	// Env is extra environment for every invocation (KEY=VALUE).
	Env []string `yaml:"env,omitempty"`
}

// ArtifactsConfig controls artifact storage and packaging.
type ArtifactsConfig struct {
	Dir     string `yaml:"dir"`     // artifact store root
	Archive bool   `yaml:"archive"` // package binaries into tar.gz/zip archives
}

// DocsConfig controls versioned documentation deployment.
type DocsConfig struct {
	SourceDir     string `yaml:"source_dir"`     // markdown sources, defaults to "docs"
	Title         string `yaml:"title"`          // site title
	PublishBranch string `yaml:"publish_branch"` // publishing branch, defaults to gh-pages
	Remote        string `yaml:"remote"`         // remote to push the site to
	DefaultAlias  string `yaml:"default_alias"`  // alias for the newest version, defaults to "latest"
}

// BuildConfig controls job execution and retry behavior.
type BuildConfig struct {
	Workers           int    `yaml:"workers"`             // parallel build jobs
	QueueSize         int    `yaml:"queue_size"`          // max queued jobs
	MaxRetries        int    `yaml:"max_retries"`         // retries for transient failures
	RetryBackoff      string `yaml:"retry_backoff"`       // fixed|linear|exponential
	RetryInitialDelay string `yaml:"retry_initial_delay"` // duration string
	RetryMaxDelay     string `yaml:"retry_max_delay"`     // duration string
}

// DaemonConfig controls daemon mode.
type DaemonConfig struct {
	PollInterval  string `yaml:"poll_interval"`  // how often the main branch head is polled
	DataDir       string `yaml:"data_dir"`       // event store and state location
	MetricsListen string `yaml:"metrics_listen"` // HTTP listen address for /metrics, empty disables
	NATSURL       string `yaml:"nats_url"`       // NATS server URL, empty disables event publication
	NATSSubject   string `yaml:"nats_subject"`   // subject for build events
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; missing files are fine.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
