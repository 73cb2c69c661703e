package config

import "git.home.luguber.info/inful/relbuilder/internal/matrix"

// DefaultMatrix returns the stock seven-target build matrix: glibc and musl
// Linux on both common architectures, both macOS architectures, and Windows.
func DefaultMatrix() []matrix.Entry {
	features := []string{"packaging", "vendored-openssl"}
	return []matrix.Entry{
		{Name: "build-linux-x86_64", OS: matrix.RunnerLinux, Target: "x86_64-unknown-linux-gnu", Features: features},
		{Name: "build-linux-x86_64-musl", OS: matrix.RunnerLinux, Target: "x86_64-unknown-linux-musl", Features: features},
		{Name: "build-linux-aarch64", OS: matrix.RunnerLinux, Target: "aarch64-unknown-linux-gnu", Features: features},
		{Name: "build-linux-aarch64-musl", OS: matrix.RunnerLinux, Target: "aarch64-unknown-linux-musl", Features: features},
		{Name: "build-macos-x86_64", OS: matrix.RunnerMacOS, Target: "x86_64-apple-darwin", Features: features},
		{Name: "build-macos-aarch64", OS: matrix.RunnerMacOS, Target: "aarch64-apple-darwin", Features: features},
		{Name: "build-windows-x86_64", OS: matrix.RunnerWindows, Target: "x86_64-pc-windows-msvc", Features: features},
	}
}

// applyDefaults fills unset fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Project.Path == "" {
		c.Project.Path = "."
	}
	if c.Project.Remote == "" {
		c.Project.Remote = "origin"
	}
	if c.Project.Branch == "" {
		c.Project.Branch = "main"
	}
	if c.Project.Binary == "" {
		c.Project.Binary = "jj"
	}
	if len(c.Matrix) == 0 {
		c.Matrix = DefaultMatrix()
	}
	if c.Toolchain.Command == "" {
		c.Toolchain.Command = "cargo"
	}
	if len(c.Toolchain.Args) == 0 {
		c.Toolchain.Args = []string{"build", "--release"}
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "./artifacts"
	}
	if c.Docs.SourceDir == "" {
		c.Docs.SourceDir = "docs"
	}
	if c.Docs.Title == "" {
		c.Docs.Title = "Documentation"
	}
	if c.Docs.PublishBranch == "" {
		c.Docs.PublishBranch = "gh-pages"
	}
	if c.Docs.Remote == "" {
		c.Docs.Remote = c.Project.Remote
	}
	if c.Docs.DefaultAlias == "" {
		c.Docs.DefaultAlias = "latest"
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = 2
	}
	if c.Build.QueueSize <= 0 {
		c.Build.QueueSize = 32
	}
	if c.Build.MaxRetries < 0 {
		c.Build.MaxRetries = 0
	}
	if c.Build.RetryBackoff == "" {
		c.Build.RetryBackoff = "linear"
	}
	if c.Build.RetryInitialDelay == "" {
		c.Build.RetryInitialDelay = "1s"
	}
	if c.Build.RetryMaxDelay == "" {
		c.Build.RetryMaxDelay = "30s"
	}
	if c.Daemon.PollInterval == "" {
		c.Daemon.PollInterval = "1m"
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = "./relbuilder-data"
	}
	if c.Daemon.NATSSubject == "" {
		c.Daemon.NATSSubject = "relbuilder.builds"
	}
}
