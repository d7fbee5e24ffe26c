package daemon

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"autoflow/internal/errs"
)

// StageProfile declares, per workflow stage, which external agent program to
// run and with what limits. Lives in a TOML file next to the daemon config
// and is re-read per run, so edits take effect without a restart.
type StageProfile struct {
	Version int                            `toml:"version"`
	Stages  map[string]StageExecutorConfig `toml:"stages"`
}

type StageExecutorConfig struct {
	Program        string   `toml:"program"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// LoadStageProfile reads and validates the stage profile file.
func LoadStageProfile(path string) (StageProfile, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = "autoflow.toml"
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return StageProfile{}, errs.Wrapf(err, "read stage profile %s", resolved)
	}

	var profile StageProfile
	if err := toml.Unmarshal(raw, &profile); err != nil {
		return StageProfile{}, errs.Wrapf(err, "parse stage profile %s", resolved)
	}

	if len(profile.Stages) == 0 {
		return StageProfile{}, errors.New("stage profile declares no stages")
	}
	for name, stage := range profile.Stages {
		if strings.TrimSpace(stage.Program) == "" {
			return StageProfile{}, fmt.Errorf("stage %q has no program", name)
		}
	}
	return profile, nil
}

// ExecutorFor returns the executor config for a stage name.
func (p StageProfile) ExecutorFor(stage string) (StageExecutorConfig, error) {
	cfg, ok := p.Stages[stage]
	if !ok {
		return StageExecutorConfig{}, fmt.Errorf("stage %q is not declared in the stage profile", stage)
	}
	return cfg, nil
}
