package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

const defaultExecutorTimeout = 1800

// AgentExecutor runs the external agent process declared in the stage
// profile. The profile is re-read on every execution.
type AgentExecutor struct {
	profilePath string
}

var _ ports.Executor = (*AgentExecutor)(nil)

func NewAgentExecutor(profilePath string) *AgentExecutor {
	return &AgentExecutor{profilePath: profilePath}
}

// Execute runs the stage's program in the issue's workdir and returns the
// session identifier the agent reported. All process output is appended to
// the log artifact, established by the dispatcher before this call so
// partial output survives failures.
func (e *AgentExecutor) Execute(ctx context.Context, input ports.ExecuteInput) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	profile, err := LoadStageProfile(e.profilePath)
	if err != nil {
		return "", err
	}
	stageCfg, err := profile.ExecutorFor(input.Stage)
	if err != nil {
		return "", err
	}

	timeout := stageCfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultExecutorTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	logFile, err := openLogFile(input.LogPath)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = logFile.Close()
	}()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(runCtx, stageCfg.Program, stageCfg.Args...)
	if strings.TrimSpace(input.Workdir) != "" {
		cmd.Dir = input.Workdir
	}
	cmd.Stdout = io.MultiWriter(&stdout, logFile)
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"AUTOFLOW_REPO="+input.Repository,
		fmt.Sprintf("AUTOFLOW_ISSUE=%d", input.IssueNumber),
		"AUTOFLOW_STAGE="+input.Stage,
		"AUTOFLOW_RUN_ID="+input.RunID,
		"AUTOFLOW_LOG="+input.LogPath,
	)

	runErr := cmd.Run()
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", errs.Wrapf(runCtx.Err(), "agent timed out after %ds", timeout)
		}
		return "", errs.Wrapf(runErr, "agent %s failed for %s#%d", input.Stage, input.Repository, input.IssueNumber)
	}

	if sessionID := parseSessionID(stdout.String()); sessionID != "" {
		return sessionID, nil
	}
	// Agents that do not report a session get one minted locally so the
	// ledger never closes a successful run without an identifier.
	return uuid.NewString(), nil
}

// parseSessionID looks for a trailing JSON result line carrying session_id.
func parseSessionID(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var result struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal([]byte(line), &result); err == nil && strings.TrimSpace(result.SessionID) != "" {
			return strings.TrimSpace(result.SessionID)
		}
	}
	return ""
}

func openLogFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(err, "ensure log directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(err, "open log file")
	}
	return file, nil
}
