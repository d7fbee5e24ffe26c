package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoflow.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadStageProfile(t *testing.T) {
	path := writeProfile(t, `
version = 1

[stages.research]
program = "agent"
args = ["--mode", "research"]
timeout_seconds = 600

[stages.plan]
program = "agent"
args = ["--mode", "plan"]
`)

	profile, err := LoadStageProfile(path)
	if err != nil {
		t.Fatalf("LoadStageProfile() error = %v", err)
	}

	research, err := profile.ExecutorFor("research")
	if err != nil {
		t.Fatalf("ExecutorFor(research) error = %v", err)
	}
	if research.Program != "agent" || research.TimeoutSeconds != 600 {
		t.Fatalf("research config = %+v", research)
	}
	if len(research.Args) != 2 || research.Args[1] != "research" {
		t.Fatalf("research args = %v", research.Args)
	}

	if _, err := profile.ExecutorFor("implement"); err == nil {
		t.Fatalf("ExecutorFor(implement) error = nil, want undeclared stage error")
	}
}

func TestLoadStageProfileRejectsEmptyStages(t *testing.T) {
	path := writeProfile(t, "version = 1\n")
	if _, err := LoadStageProfile(path); err == nil {
		t.Fatalf("LoadStageProfile() error = nil, want no-stages error")
	}
}

func TestLoadStageProfileRejectsMissingProgram(t *testing.T) {
	path := writeProfile(t, `
[stages.research]
args = ["--mode", "research"]
`)
	if _, err := LoadStageProfile(path); err == nil {
		t.Fatalf("LoadStageProfile() error = nil, want missing-program error")
	}
}

func TestLoadStageProfileMissingFile(t *testing.T) {
	if _, err := LoadStageProfile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("LoadStageProfile() error = nil, want read error")
	}
}
