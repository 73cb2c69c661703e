package config

import (
	"fmt"
	"os"
)

const defaultConfigTemplate = `# relbuilder configuration
project:
  path: .
  remote: origin
  branch: main
  binary: jj

# Build matrix. Each entry cross-compiles the binary for one target triple.
# Build names and derived artifact names (<binary>-<target>) must be unique,
# and the os must match the target's system (linux/macos/windows).
matrix:
  - name: build-linux-x86_64
    os: linux
    target: x86_64-unknown-linux-gnu
    features: [packaging, vendored-openssl]
  - name: build-linux-x86_64-musl
    os: linux
    target: x86_64-unknown-linux-musl
    features: [packaging, vendored-openssl]
  - name: build-linux-aarch64
    os: linux
    target: aarch64-unknown-linux-gnu
    features: [packaging, vendored-openssl]
  - name: build-linux-aarch64-musl
    os: linux
    target: aarch64-unknown-linux-musl
    features: [packaging, vendored-openssl]
  - name: build-macos-x86_64
    os: macos
    target: x86_64-apple-darwin
    features: [packaging, vendored-openssl]
  - name: build-macos-aarch64
    os: macos
    target: aarch64-apple-darwin
    features: [packaging, vendored-openssl]
  - name: build-windows-x86_64
    os: windows
    target: x86_64-pc-windows-msvc
    features: [packaging, vendored-openssl]

toolchain:
  command: cargo
  args: [build, --release]

artifacts:
  dir: ./artifacts
  archive: true

docs:
  source_dir: docs
  title: Documentation
  publish_branch: gh-pages
  remote: origin
  default_alias: latest

build:
  workers: 2
  queue_size: 32
  max_retries: 2
  retry_backoff: linear
  retry_initial_delay: 1s
  retry_max_delay: 30s

daemon:
  poll_interval: 1m
  data_dir: ./relbuilder-data
  metrics_listen: ""
  nats_url: ""
  nats_subject: relbuilder.builds
`

// Init writes a commented default configuration file.
// It refuses to overwrite an existing file unless force is set.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
