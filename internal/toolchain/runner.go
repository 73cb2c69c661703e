// Package toolchain invokes the compiler toolchain for a single build matrix
// entry. The invocation is an external command; any non-zero exit fails the
// job immediately.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"git.home.luguber.info/inful/relbuilder/internal/matrix"
)

// Invocation describes a single toolchain run.
type Invocation struct {
	Command string   // toolchain executable, e.g. "cargo"
	Args    []string // leading arguments, e.g. [build, --release]
	Env     []string // extra KEY=VALUE environment entries
	Dir     string   // working directory (the project checkout)
	Entry   matrix.Entry
}

// Runner executes toolchain invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs the toolchain as a subprocess.
type ExecRunner struct{}

// NewExecRunner creates a subprocess-backed toolchain runner.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes the toolchain for one matrix entry. The target triple and
// feature flags are appended to the configured arguments:
//
//	<command> <args...> --target <triple> --features <f1,f2>
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	args := append([]string{}, inv.Args...)
	args = append(args, "--target", inv.Entry.Target)
	if len(inv.Entry.Features) > 0 {
		args = append(args, "--features", strings.Join(inv.Entry.Features, ","))
	}

	cmd := exec.CommandContext(ctx, inv.Command, args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Info("Running toolchain",
		logfields.BuildName(inv.Entry.Name),
		logfields.Target(inv.Entry.Target),
		slog.String("command", inv.Command+" "+strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		return classifyRunError(inv.Entry, err, output.String())
	}
	return nil
}

// RunError is a toolchain invocation failure carrying the tail of the
// combined output for diagnostics.
type RunError struct {
	Entry     string // build name
	Target    string
	Output    string // trailing toolchain output
	transient bool
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("toolchain failed for %s (%s): %v", e.Entry, e.Target, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Transient reports whether the failure looks retryable (network/registry
// classes rather than compile errors).
func (e *RunError) Transient() bool { return e.transient }

const outputTail = 4096

// classifyRunError wraps a toolchain failure, marking network-looking
// failures as transient so the queue's retry policy can apply.
func classifyRunError(entry matrix.Entry, err error, output string) error {
	tail := output
	if len(tail) > outputTail {
		tail = tail[len(tail)-outputTail:]
	}
	l := strings.ToLower(output)
	transient := strings.Contains(l, "timed out") ||
		strings.Contains(l, "connection reset") ||
		strings.Contains(l, "temporary failure") ||
		strings.Contains(l, "could not resolve host") ||
		strings.Contains(l, "failed to download")
	return &RunError{
		Entry:     entry.Name,
		Target:    entry.Target,
		Output:    tail,
		transient: transient,
		Err:       err,
	}
}
