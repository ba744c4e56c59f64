// Command hardenctl orchestrates the containerized hardening flow for a
// tapeout project: it fetches the helper tool, generates the project
// configuration, runs the flow, and exposes the stats, render, viewer, and
// clean operations around the run output tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hardenlab/hardenctl/internal/artifacts"
	"github.com/hardenlab/hardenctl/internal/config"
	"github.com/hardenlab/hardenctl/internal/containerexec"
	"github.com/hardenlab/hardenctl/internal/domain"
	"github.com/hardenlab/hardenctl/internal/flow"
	"github.com/hardenlab/hardenctl/internal/project"
	"github.com/hardenlab/hardenctl/internal/storage/objectstore"
)

// Version information set during build.
var (
	Version = "dev"
	Commit  = "unknown"
)

const usageText = `usage: hardenctl <command> [tag]

commands:
  fetch-helper         clone/install the helper tool
  gen-config           produce the project configuration
  build [tag]          run the full hardening flow
  info [tag]           build + emit the stats report (--no-build to opt out)
  render [tag]         build + produce the layout image (--no-build to opt out)
  interactive          open an interactive container shell
  view-cells [tag]     open the layout viewer on the final layout
  view-db [tag]        open the database viewer on the latest database file
  clean [tag]          remove generated report/image markers
  clean-all [tag]      remove the entire run output tree
  publish [tag]        upload run artifacts to object storage
  version              print version information
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	command := os.Args[1]
	if command == "version" {
		fmt.Printf("hardenctl %s (commit: %s)\n", Version, Commit)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := dispatch(ctx, logger, cfg, command, os.Args[2:]); err != nil {
		if errors.Is(err, flow.ErrNotBuilt) {
			logger.Error("precondition failed", "error", err)
		} else {
			logger.Error("operation failed", "command", command, "error", err)
		}
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, logger *slog.Logger, cfg config.Config, command string, args []string) error {
	runner, err := containerexec.NewDockerRunner(cfg.DockerBin)
	if err != nil {
		return err
	}
	svc, err := flow.New(cfg, runner, containerexec.HostExec{}, flow.MarkerFileCompletionCheck{}, logger, os.Stdout)
	if err != nil {
		return err
	}

	switch command {
	case "fetch-helper":
		return svc.FetchHelper(ctx)
	case "gen-config":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.GenerateUserConfig(ctx, run)
	case "build":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.RunBuild(ctx, run)
	case "info":
		tag, noBuild, err := tagAndNoBuild(command, args)
		if err != nil {
			return err
		}
		run, err := resolveRun(cfg, nil, tag)
		if err != nil {
			return err
		}
		return svc.Summarize(ctx, run, !noBuild)
	case "render":
		tag, noBuild, err := tagAndNoBuild(command, args)
		if err != nil {
			return err
		}
		run, err := resolveRun(cfg, nil, tag)
		if err != nil {
			return err
		}
		return svc.RenderImage(ctx, run, !noBuild)
	case "interactive":
		return svc.OpenInteractiveShell(ctx)
	case "view-cells":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.OpenCellViewer(ctx, run)
	case "view-db":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.OpenDatabaseViewer(ctx, run)
	case "clean":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.Clean(run)
	case "clean-all":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return svc.CleanAll(run)
	case "publish":
		run, err := resolveRun(cfg, args, "")
		if err != nil {
			return err
		}
		return publish(ctx, logger, run)
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// resolveRun materializes the run for an optional positional tag, reading
// the design name from the project metadata.
func resolveRun(cfg config.Config, args []string, tag string) (domain.Run, error) {
	if tag == "" && len(args) > 0 {
		tag = args[0]
	}
	info, err := project.Load(filepath.Join(cfg.WorkDir, "info.yaml"))
	if err != nil {
		return domain.Run{}, err
	}
	run := cfg.Run(tag, info.Project.TopModule)
	if err := run.Validate(); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func tagAndNoBuild(command string, args []string) (string, bool, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	noBuild := fs.Bool("no-build", false, "fail instead of building when the run is missing")
	if err := fs.Parse(args); err != nil {
		return "", false, err
	}
	return fs.Arg(0), *noBuild, nil
}

func publish(ctx context.Context, logger *slog.Logger, run domain.Run) error {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return err
	}
	if !storeCfg.Enabled() {
		return errors.New("publishing disabled: set HARDEN_MINIO_ENDPOINT to enable")
	}
	store, err := objectstore.NewMinioStore(storeCfg)
	if err != nil {
		return err
	}
	publisher, err := artifacts.NewPublisher(store, storeCfg.Bucket)
	if err != nil {
		return err
	}
	built, err := flow.MarkerFileCompletionCheck{}.Built(run)
	if err != nil {
		return err
	}
	if !built {
		return fmt.Errorf("%w (tag %s)", flow.ErrNotBuilt, run.Tag)
	}
	manifest, err := publisher.PublishRun(ctx, run)
	if err != nil {
		return err
	}
	logger.Info("published run artifacts", "tag", manifest.Tag, "artifacts", len(manifest.Artifacts))
	return nil
}
