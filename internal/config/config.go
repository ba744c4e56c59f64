// Package config resolves the run configuration once at startup from the
// process environment (optionally seeded from a .env file) and hands it to
// every operation explicitly. Nothing reads the environment after FromEnv
// returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hardenlab/hardenctl/internal/containerexec"
	"github.com/hardenlab/hardenctl/internal/domain"
	"github.com/hardenlab/hardenctl/internal/platform/env"
)

// Config carries every resolved parameter of a hardening run. The mount and
// environment composition methods are pure functions of these fields:
// identical configs compose identical container invocations.
type Config struct {
	OpenLaneRoot string
	PDKRoot      string
	PDK          string
	Image        string
	WorkDir      string
	Tag          string
	Display      string
	DockerBin    string

	HelperRepo string
	HelperRef  string
	HelperDir  string

	// User is the uid:gid mapping injected into build containers so output
	// files are owned by the invoking user.
	User string
}

// FromEnv loads an optional .env file, then resolves the configuration from
// the environment with defaults derived from the current directory, the
// caller's home directory, and the current date.
func FromEnv() (Config, error) {
	// Absent .env is the normal case.
	_ = godotenv.Load()

	workDir, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg := Config{
		OpenLaneRoot: env.String("OPENLANE_ROOT", filepath.Join(home, "ttsetup", "openlane")),
		PDKRoot:      env.String("PDK_ROOT", filepath.Join(home, "ttsetup", "pdk")),
		PDK:          env.String("PDK", "sky130A"),
		Image:        env.String("OPENLANE_IMAGE", "efabless/openlane:2023.09.07"),
		WorkDir:      env.String("HARDEN_WORKDIR", workDir),
		Tag:          env.String("HARDEN_TAG", domain.DefaultTag(time.Now())),
		Display:      env.String("DISPLAY", ":0"),
		DockerBin:    env.String("HARDEN_DOCKER_BIN", "docker"),
		HelperRepo:   env.String("HARDEN_TT_TOOLS_REPO", "https://github.com/TinyTapeout/tt-support-tools"),
		HelperRef:    env.String("HARDEN_TT_TOOLS_REF", "main"),
		User:         fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	cfg.HelperDir = env.String("HARDEN_TT_TOOLS_DIR", filepath.Join(cfg.WorkDir, "tt"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OpenLaneRoot) == "" {
		return errors.New("openlane root is required")
	}
	if strings.TrimSpace(c.PDKRoot) == "" {
		return errors.New("pdk root is required")
	}
	if strings.TrimSpace(c.PDK) == "" {
		return errors.New("pdk variant is required")
	}
	if strings.TrimSpace(c.Image) == "" {
		return errors.New("container image is required")
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		return errors.New("work directory is required")
	}
	if err := domain.ValidateTag(c.Tag); err != nil {
		return fmt.Errorf("run tag: %w", err)
	}
	if strings.TrimSpace(c.HelperRepo) == "" {
		return errors.New("helper repository is required")
	}
	if strings.TrimSpace(c.HelperDir) == "" {
		return errors.New("helper directory is required")
	}
	return nil
}

// FlowMounts binds the toolchain, the PDK, and the project into the build
// container. The PDK keeps its host path because the flow bakes absolute
// PDK paths into its outputs.
func (c Config) FlowMounts() []containerexec.Mount {
	return []containerexec.Mount{
		{Host: c.OpenLaneRoot, Container: "/openlane"},
		{Host: c.PDKRoot, Container: c.PDKRoot},
		{Host: c.WorkDir, Container: "/work"},
	}
}

// FlowEnv is the environment injected into every flow container.
func (c Config) FlowEnv() map[string]string {
	return map[string]string{
		"PDK_ROOT": c.PDKRoot,
		"PDK":      c.PDK,
	}
}

// X11Mounts adds the host X socket for interactive sessions that launch
// GUI tools inside the container.
func (c Config) X11Mounts() []containerexec.Mount {
	return []containerexec.Mount{
		{Host: "/tmp/.X11-unix", Container: "/tmp/.X11-unix"},
	}
}

// BuildCommand is the exact flow invocation for a tag, as run inside the
// container. Also exported to interactive shells via HARDEN_CMD.
func (c Config) BuildCommand(tag string) []string {
	return []string{
		"./flow.tcl",
		"-overwrite",
		"-design", "/work/src",
		"-run_path", "/work/runs",
		"-tag", tag,
	}
}

// Run materializes the domain entity for a tag, falling back to the
// configured default tag when none is given.
func (c Config) Run(tag, design string) domain.Run {
	if strings.TrimSpace(tag) == "" {
		tag = c.Tag
	}
	return domain.Run{Tag: tag, WorkDir: c.WorkDir, Design: design}
}
