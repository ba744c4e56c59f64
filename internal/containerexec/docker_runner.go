package containerexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DockerRunner drives the docker CLI. It is the only Runner implementation;
// podman works through the same argument surface by overriding the binary.
type DockerRunner struct {
	dockerBin string
	namer     func() string
}

func NewDockerRunner(dockerBin string) (*DockerRunner, error) {
	dockerBin = strings.TrimSpace(dockerBin)
	if dockerBin == "" {
		dockerBin = "docker"
	}
	if _, err := exec.LookPath(dockerBin); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingDependency, dockerBin, err)
	}
	return &DockerRunner{
		dockerBin: dockerBin,
		namer:     func() string { return uuid.NewString()[:8] },
	}, nil
}

// Args composes the docker run argument vector for an invocation. Env keys
// are emitted in sorted order and mounts in declared order, so identical
// invocations always produce identical argument vectors.
func (r *DockerRunner) Args(inv Invocation) []string {
	args := []string{"run", "--rm"}
	if inv.Name != "" {
		args = append(args, "--name", inv.Name)
	}
	if inv.Interactive {
		args = append(args, "-it")
	}
	if inv.Network != "" {
		args = append(args, "--network", inv.Network)
	}
	if inv.User != "" {
		args = append(args, "-u", inv.User)
	}
	for _, m := range inv.Mounts {
		spec := m.Host + ":" + m.Container
		if m.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	if len(inv.Env) > 0 {
		keys := make([]string, 0, len(inv.Env))
		for k := range inv.Env {
			if strings.TrimSpace(k) == "" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, "-e", k+"="+inv.Env[k])
		}
	}
	if inv.WorkDir != "" {
		args = append(args, "-w", inv.WorkDir)
	}
	args = append(args, inv.Image)
	args = append(args, inv.Cmd...)
	return args
}

func (r *DockerRunner) Run(ctx context.Context, inv Invocation) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	inv.Interactive = false
	if inv.Name != "" {
		inv.Name = inv.Name + "-" + r.namer()
	}
	cmd := exec.CommandContext(ctx, r.dockerBin, r.Args(inv)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker run failed: %w", err)
	}
	return nil
}

func (r *DockerRunner) RunInteractive(ctx context.Context, inv Invocation) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	inv.Interactive = true
	if inv.Name != "" {
		inv.Name = inv.Name + "-" + r.namer()
	}
	cmd := exec.CommandContext(ctx, r.dockerBin, r.Args(inv)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("interactive session failed: %w", err)
	}
	return nil
}

// HostExec runs plain host commands. Used for the helper tool checkout,
// where the git and pip binaries run outside any container.
type HostExec struct{}

func (HostExec) RunHost(ctx context.Context, dir string, cmdline []string) error {
	if len(cmdline) == 0 {
		return errors.New("host command is required")
	}
	if _, err := exec.LookPath(cmdline[0]); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingDependency, cmdline[0], err)
	}
	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", cmdline[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (HostExec) HostOutput(ctx context.Context, dir string, cmdline []string) ([]byte, error) {
	if len(cmdline) == 0 {
		return nil, errors.New("host command is required")
	}
	if _, err := exec.LookPath(cmdline[0]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingDependency, cmdline[0], err)
	}
	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", cmdline[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}
