// Package containerexec runs commands inside containers through a local
// container runtime. Invocations are composed as structured argument
// vectors rather than shell strings, so paths and values never pass
// through a shell.
package containerexec

import (
	"context"
	"errors"
)

// ErrMissingDependency reports that the container runtime binary could not
// be found on the host. Fatal; the caller is expected to surface it
// immediately without retrying.
var ErrMissingDependency = errors.New("container runtime not found")

// Mount binds a host path into the container.
type Mount struct {
	Host      string
	Container string
	ReadOnly  bool
}

// Invocation describes a single container run.
type Invocation struct {
	Image   string
	Name    string
	WorkDir string
	Mounts  []Mount
	Env     map[string]string
	Cmd     []string
	// User is a uid:gid mapping applied inside the container so produced
	// files are owned by the invoking user.
	User string
	// Network selects the container network mode ("host" for X11 sessions).
	Network string
	// Interactive attaches the caller's stdio and allocates a TTY.
	Interactive bool
}

func (inv Invocation) Validate() error {
	if inv.Image == "" {
		return errors.New("container image is required")
	}
	if len(inv.Cmd) == 0 {
		return errors.New("container command is required")
	}
	return nil
}

// Runner executes container invocations and blocks until they exit.
// Cancelling the context stops the running container process.
type Runner interface {
	// Run executes a non-interactive invocation. On failure the returned
	// error carries the external tool's combined output verbatim.
	Run(ctx context.Context, inv Invocation) error

	// RunInteractive attaches the invocation to the caller's terminal and
	// returns when the session ends. Duration is user-driven and unbounded.
	RunInteractive(ctx context.Context, inv Invocation) error
}

// HostRunner executes plain host commands (no container) such as the
// helper tool checkout and the helper's report passes. Same error contract
// as Runner.
type HostRunner interface {
	RunHost(ctx context.Context, dir string, cmd []string) error

	// HostOutput runs the command and returns its combined output.
	HostOutput(ctx context.Context, dir string, cmd []string) ([]byte, error)
}
