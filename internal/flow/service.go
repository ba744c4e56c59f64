// Package flow implements the flow runner: the named operations that wrap
// the containerized hardening toolchain and the tapeout helper tool.
//
// Execution is sequential and blocking; every operation is a single
// external process the runner waits on. Run state lives entirely in the
// filesystem under runs/<tag>. No locking is provided: two orchestrator
// processes working on the same tag race each other, and the result is
// undefined. That limitation is documented rather than fixed.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hardenlab/hardenctl/internal/config"
	"github.com/hardenlab/hardenctl/internal/containerexec"
	"github.com/hardenlab/hardenctl/internal/domain"
)

// Service exposes the flow runner operations over injected dependencies.
type Service struct {
	cfg    config.Config
	runner containerexec.Runner
	host   containerexec.HostRunner
	check  CompletionCheck
	logger *slog.Logger
	out    io.Writer
}

func New(cfg config.Config, runner containerexec.Runner, host containerexec.HostRunner, check CompletionCheck, logger *slog.Logger, out io.Writer) (*Service, error) {
	if runner == nil {
		return nil, errors.New("container runner is required")
	}
	if host == nil {
		return nil, errors.New("host runner is required")
	}
	if check == nil {
		return nil, errors.New("completion check is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if out == nil {
		out = os.Stdout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, runner: runner, host: host, check: check, logger: logger, out: out}, nil
}

func (s *Service) helperTool() string {
	return filepath.Join(s.cfg.HelperDir, "tt_tool.py")
}

// FetchHelper clones the helper tool and installs its requirements. No-op
// when the helper directory already exists. Errors surface as-is; there is
// no retry.
func (s *Service) FetchHelper(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.HelperDir); err == nil {
		s.logger.Info("helper tool already present", "dir", s.cfg.HelperDir)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat helper directory: %w", err)
	}

	s.logger.Info("fetching helper tool", "repo", s.cfg.HelperRepo, "ref", s.cfg.HelperRef)
	clone := []string{"git", "clone", "--branch", s.cfg.HelperRef, s.cfg.HelperRepo, s.cfg.HelperDir}
	if err := s.host.RunHost(ctx, s.cfg.WorkDir, clone); err != nil {
		return err
	}
	install := []string{"pip", "install", "-r", filepath.Join(s.cfg.HelperDir, "requirements.txt")}
	return s.host.RunHost(ctx, s.cfg.WorkDir, install)
}

// GenerateUserConfig produces src/user_config.tcl from the project
// metadata. Skipped while the file exists, so manual edits are never
// clobbered; delete the file to regenerate.
func (s *Service) GenerateUserConfig(ctx context.Context, run domain.Run) error {
	if err := s.FetchHelper(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(run.UserConfigPath()); err == nil {
		s.logger.Info("user config already exists, not regenerating", "path", run.UserConfigPath())
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat user config: %w", err)
	}
	return s.host.RunHost(ctx, s.cfg.WorkDir, []string{s.helperTool(), "--create-user-config"})
}

// RunBuild invokes the containerized hardening flow for the run's tag.
// When the completion marker already exists the flow is not invoked again;
// a marker without a final GDS additionally logs a stale-marker warning,
// since the prior run may have died between signoff and completion.
func (s *Service) RunBuild(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	built, err := s.check.Built(run)
	if err != nil {
		return err
	}
	if built {
		if _, err := os.Stat(run.FinalGDSPath()); os.IsNotExist(err) {
			s.logger.Warn("completion marker present but final gds missing; marker may be stale",
				"tag", run.Tag, "marker", run.MarkerPath())
		}
		s.logger.Info("already built, skipping flow", "tag", run.Tag)
		return nil
	}

	s.logger.Info("running hardening flow", "tag", run.Tag, "image", s.cfg.Image)
	inv := containerexec.Invocation{
		Image:   s.cfg.Image,
		Name:    "harden-build",
		WorkDir: "/openlane",
		Mounts:  s.cfg.FlowMounts(),
		Env:     s.cfg.FlowEnv(),
		Cmd:     s.cfg.BuildCommand(run.Tag),
		User:    s.cfg.User,
	}
	return s.runner.Run(ctx, inv)
}

func (s *Service) ensureBuilt(ctx context.Context, run domain.Run, implicitBuild bool) error {
	if implicitBuild {
		return s.RunBuild(ctx, run)
	}
	built, err := s.check.Built(run)
	if err != nil {
		return err
	}
	if !built {
		return fmt.Errorf("%w (tag %s)", ErrNotBuilt, run.Tag)
	}
	return nil
}

// Summarize writes the per-tag stats report in three helper passes
// (warnings, stats, cell categories) and prints the aggregate. The report
// file is truncated first, so reruns converge to the same content.
func (s *Service) Summarize(ctx context.Context, run domain.Run, implicitBuild bool) error {
	if err := s.ensureBuilt(ctx, run, implicitBuild); err != nil {
		return err
	}

	report, err := os.Create(run.SummaryPath())
	if err != nil {
		return fmt.Errorf("create summary report: %w", err)
	}
	defer report.Close()

	runDir := filepath.Join("runs", run.Tag)
	passes := []string{"--print-warnings", "--print-stats", "--print-cell-category"}
	for _, pass := range passes {
		out, err := s.host.HostOutput(ctx, s.cfg.WorkDir, []string{s.helperTool(), pass, "--run-dir", runDir})
		if err != nil {
			return err
		}
		if _, err := report.Write(out); err != nil {
			return fmt.Errorf("append summary report: %w", err)
		}
	}

	aggregate, err := os.ReadFile(run.SummaryPath())
	if err != nil {
		return fmt.Errorf("read summary report: %w", err)
	}
	_, err = s.out.Write(aggregate)
	return err
}

// RenderImage rasterizes the final layout into gds_render.png. No caching;
// the image is regenerated on every call.
func (s *Service) RenderImage(ctx context.Context, run domain.Run, implicitBuild bool) error {
	if err := s.ensureBuilt(ctx, run, implicitBuild); err != nil {
		return err
	}
	runDir := filepath.Join("runs", run.Tag)
	return s.host.RunHost(ctx, s.cfg.WorkDir, []string{s.helperTool(), "--create-png", "--run-dir", runDir})
}

// OpenInteractiveShell starts an interactive container session with the
// project mounted, X11 forwarded, and HARDEN_CMD set to the exact flow
// command. Returns when the user ends the session.
func (s *Service) OpenInteractiveShell(ctx context.Context) error {
	if err := s.FetchHelper(ctx); err != nil {
		return err
	}
	env := s.cfg.FlowEnv()
	env["DISPLAY"] = s.cfg.Display
	env["HARDEN_CMD"] = strings.Join(s.cfg.BuildCommand(s.cfg.Tag), " ")
	inv := containerexec.Invocation{
		Image:   s.cfg.Image,
		Name:    "harden-shell",
		WorkDir: "/openlane",
		Mounts:  append(s.cfg.FlowMounts(), s.cfg.X11Mounts()...),
		Env:     env,
		Cmd:     []string{"bash"},
		Network: "host",
	}
	return s.runner.RunInteractive(ctx, inv)
}

// OpenCellViewer opens the layout viewer on the run's final GDS.
func (s *Service) OpenCellViewer(ctx context.Context, run domain.Run) error {
	if err := s.ensureBuilt(ctx, run, false); err != nil {
		return err
	}
	env := s.cfg.FlowEnv()
	env["DISPLAY"] = s.cfg.Display
	inv := containerexec.Invocation{
		Image:   s.cfg.Image,
		Name:    "harden-cells",
		WorkDir: "/work",
		Mounts:  append(s.cfg.FlowMounts(), s.cfg.X11Mounts()...),
		Env:     env,
		Cmd:     []string{"klayout", s.containerPath(run.FinalGDSPath())},
		Network: "host",
	}
	return s.runner.RunInteractive(ctx, inv)
}

// OpenDatabaseViewer opens the database viewer on the most recently
// modified database file under the run directory.
func (s *Service) OpenDatabaseViewer(ctx context.Context, run domain.Run) error {
	if err := s.ensureBuilt(ctx, run, false); err != nil {
		return err
	}
	db, err := LatestDatabaseFile(run.RunDir())
	if err != nil {
		if errors.Is(err, ErrNoDatabase) {
			return fmt.Errorf("%w: %v", ErrNotBuilt, err)
		}
		return err
	}
	env := s.cfg.FlowEnv()
	env["DISPLAY"] = s.cfg.Display
	inv := containerexec.Invocation{
		Image:   s.cfg.Image,
		Name:    "harden-db",
		WorkDir: "/work",
		Mounts:  append(s.cfg.FlowMounts(), s.cfg.X11Mounts()...),
		Env:     env,
		Cmd:     []string{"openroad", "-gui", s.containerPath(db)},
		Network: "host",
	}
	return s.runner.RunInteractive(ctx, inv)
}

// LatestDatabaseFile returns the .odb file under root with the newest
// modification time. Mtime wins ties by path order.
func LatestDatabaseFile(root string) (string, error) {
	var latest string
	var latestMod time.Time
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".odb") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = path
			latestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan run directory: %w", err)
	}
	if latest == "" {
		return "", ErrNoDatabase
	}
	return latest, nil
}

func (s *Service) containerPath(hostPath string) string {
	rel, err := filepath.Rel(s.cfg.WorkDir, hostPath)
	if err != nil {
		return hostPath
	}
	return filepath.Join("/work", rel)
}

// Clean removes the generated marker, summary, and image files for the
// run's tag. Other tags are untouched. Destructive; no confirmation.
func (s *Service) Clean(run domain.Run) error {
	for _, path := range []string{run.MarkerPath(), run.SummaryPath(), run.RenderPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// CleanAll removes the entire output tree for the run's tag, plus the
// files Clean removes. Destructive; no confirmation, no undo.
func (s *Service) CleanAll(run domain.Run) error {
	if err := s.Clean(run); err != nil {
		return err
	}
	if err := os.RemoveAll(run.RunDir()); err != nil {
		return fmt.Errorf("remove run directory: %w", err)
	}
	return nil
}
