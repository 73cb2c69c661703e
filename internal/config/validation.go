package config

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"git.home.luguber.info/inful/relbuilder/internal/retry"
)

// Validate checks the configuration for structural correctness.
// Matrix validation happens here so an invalid {os, target} pairing or a
// colliding artifact name fails before any build starts.
func (c *Config) Validate() error {
	if c.Project.Binary == "" {
		return &ValidationError{Field: "project.binary", Reason: "binary name is required"}
	}
	if err := matrix.Validate(c.Matrix, c.Project.Binary); err != nil {
		return err
	}
	if c.Toolchain.Command == "" {
		return &ValidationError{Field: "toolchain.command", Reason: "toolchain command is required"}
	}
	if mode := retry.NormalizeBackoff(c.Build.RetryBackoff); mode == "" {
		return &ValidationError{Field: "build.retry_backoff", Reason: fmt.Sprintf("unknown backoff mode %q", c.Build.RetryBackoff)}
	}
	for field, raw := range map[string]string{
		"build.retry_initial_delay": c.Build.RetryInitialDelay,
		"build.retry_max_delay":     c.Build.RetryMaxDelay,
		"daemon.poll_interval":      c.Daemon.PollInterval,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("invalid duration %q", raw)}
		}
	}
	return nil
}

// RetryPolicy derives the retry policy from the build configuration.
// Invalid durations fall back to policy defaults; Validate catches them earlier.
func (c *Config) RetryPolicy() retry.Policy {
	initial, _ := time.ParseDuration(c.Build.RetryInitialDelay)
	maxDelay, _ := time.ParseDuration(c.Build.RetryMaxDelay)
	return retry.NewPolicy(retry.NormalizeBackoff(c.Build.RetryBackoff), initial, maxDelay, c.Build.MaxRetries)
}

// PollInterval returns the parsed daemon poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.PollInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
