// Package domain holds the core entities of the hardening flow: a run,
// its output tree, and the states a run moves through. Entities are kept
// free of external dependencies.
package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// State describes where a run is in its lifecycle. RunBuild is the only
// transition into StateBuilt; Summarized and Rendered both require Built
// and are independent of each other.
type State string

const (
	StateNotStarted State = "not_started"
	StateBuilt      State = "built"
	StateSummarized State = "summarized"
	StateRendered   State = "rendered"
)

// DefaultTag returns the date-derived run tag used when none is configured.
func DefaultTag(now time.Time) string {
	return "RUN_" + now.Format("2006_01_02")
}

// Run identifies one hardening run: a work directory plus a tag that names
// the output tree under runs/<tag>. Rerunning with the same tag reuses the
// same tree; there is no versioning.
type Run struct {
	Tag     string
	WorkDir string
	// Design is the top module name; it determines the final GDS filename.
	Design string
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.Tag) == "" {
		return errors.New("run tag is required")
	}
	if err := ValidateTag(r.Tag); err != nil {
		return err
	}
	if strings.TrimSpace(r.WorkDir) == "" {
		return errors.New("work directory is required")
	}
	if strings.TrimSpace(r.Design) == "" {
		return errors.New("design name is required")
	}
	return nil
}

// ValidateTag rejects tags that would escape the runs directory when used
// as a path segment.
func ValidateTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("run tag is required")
	}
	if tag == "." || tag == ".." {
		return errors.New("run tag must not be a relative path component")
	}
	if strings.ContainsAny(tag, "/\\") {
		return errors.New("run tag must not contain path separators")
	}
	return nil
}

// RunDir is the root of the output tree for this run.
func (r Run) RunDir() string {
	return filepath.Join(r.WorkDir, "runs", r.Tag)
}

// SignoffDir holds the signoff reports produced by the flow.
func (r Run) SignoffDir() string {
	return filepath.Join(r.RunDir(), "reports", "signoff")
}

// MarkerPath is the DRC signoff report whose presence stands in for "this
// run completed". The check is approximate: a run that failed after signoff
// started can leave the marker behind, and deleting the marker while other
// artifacts remain makes a finished run look unbuilt.
func (r Run) MarkerPath() string {
	return filepath.Join(r.SignoffDir(), "drc.rpt")
}

// FinalGDSPath is the final layout file produced by a successful run.
func (r Run) FinalGDSPath() string {
	return filepath.Join(r.RunDir(), "results", "final", "gds", r.Design+".gds")
}

// SummaryPath is the per-tag aggregated stats report.
func (r Run) SummaryPath() string {
	return filepath.Join(r.WorkDir, "summary-info-"+r.Tag+".txt")
}

// RenderPath is the rasterized image of the final layout.
func (r Run) RenderPath() string {
	return filepath.Join(r.WorkDir, "gds_render.png")
}

// UserConfigPath is the generated project configuration consumed by the
// flow. Its format is owned by the helper tool.
func (r Run) UserConfigPath() string {
	return filepath.Join(r.WorkDir, "src", "user_config.tcl")
}
