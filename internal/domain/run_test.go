package domain

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTag(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	got := DefaultTag(now)
	if got != "RUN_2026_03_14" {
		t.Fatalf("DefaultTag()=%q, want RUN_2026_03_14", got)
	}
}

func TestRunValidate(t *testing.T) {
	run := Run{Tag: "run0314", WorkDir: "/work", Design: "tt_um_example"}
	if err := run.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	missingTag := Run{WorkDir: "/work", Design: "tt_um_example"}
	if err := missingTag.Validate(); err == nil {
		t.Fatalf("expected error for missing tag")
	}

	missingWorkDir := Run{Tag: "run0314", Design: "tt_um_example"}
	if err := missingWorkDir.Validate(); err == nil {
		t.Fatalf("expected error for missing work directory")
	}

	missingDesign := Run{Tag: "run0314", WorkDir: "/work"}
	if err := missingDesign.Validate(); err == nil {
		t.Fatalf("expected error for missing design")
	}
}

func TestValidateTag(t *testing.T) {
	for _, tag := range []string{"run0314", "RUN_2026_03_14", "wokwi"} {
		if err := ValidateTag(tag); err != nil {
			t.Fatalf("ValidateTag(%q) err=%v", tag, err)
		}
	}
	for _, tag := range []string{"", " ", ".", "..", "a/b", `a\b`, "../escape"} {
		if err := ValidateTag(tag); err == nil {
			t.Fatalf("ValidateTag(%q) expected error", tag)
		}
	}
}

func TestRunPaths(t *testing.T) {
	run := Run{Tag: "run0314", WorkDir: "/work", Design: "tt_um_example"}

	if got, want := run.RunDir(), filepath.Join("/work", "runs", "run0314"); got != want {
		t.Fatalf("RunDir()=%q, want %q", got, want)
	}
	if got, want := run.MarkerPath(), filepath.Join("/work", "runs", "run0314", "reports", "signoff", "drc.rpt"); got != want {
		t.Fatalf("MarkerPath()=%q, want %q", got, want)
	}
	if got, want := run.FinalGDSPath(), filepath.Join("/work", "runs", "run0314", "results", "final", "gds", "tt_um_example.gds"); got != want {
		t.Fatalf("FinalGDSPath()=%q, want %q", got, want)
	}
	if got, want := run.SummaryPath(), filepath.Join("/work", "summary-info-run0314.txt"); got != want {
		t.Fatalf("SummaryPath()=%q, want %q", got, want)
	}
	if got, want := run.RenderPath(), filepath.Join("/work", "gds_render.png"); got != want {
		t.Fatalf("RenderPath()=%q, want %q", got, want)
	}
	if got, want := run.UserConfigPath(), filepath.Join("/work", "src", "user_config.tcl"); got != want {
		t.Fatalf("UserConfigPath()=%q, want %q", got, want)
	}
}
