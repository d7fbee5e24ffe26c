package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
)

// gitWorktreeManager keeps one isolated checkout per issue under the
// worktrees root. An existing checkout is reused; the clone under the repos
// root stays untouched.
type gitWorktreeManager struct {
	reposRoot     string
	worktreesRoot string
	runGit        func(context.Context, ...string) ([]byte, error)
}

func newGitWorktreeManager(reposRoot string, worktreesRoot string) *gitWorktreeManager {
	return &gitWorktreeManager{
		reposRoot:     reposRoot,
		worktreesRoot: worktreesRoot,
		runGit: func(ctx context.Context, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, "git", args...)
			return cmd.CombinedOutput()
		},
	}
}

func (m *gitWorktreeManager) Ensure(ctx context.Context, repository string, issueNumber int) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	host, owner, name, err := flow.SplitRepository(repository)
	if err != nil {
		return "", err
	}

	workdir := filepath.Join(m.worktreesRoot, sanitizeSegment(host), sanitizeSegment(owner), sanitizeSegment(name), fmt.Sprintf("issue-%d", issueNumber))
	if err := ensurePathInsideDir(m.worktreesRoot, workdir); err != nil {
		return "", err
	}

	if _, err := os.Stat(workdir); err == nil {
		// Checkout already prepared by an earlier run for this issue.
		return workdir, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", errs.Wrap(err, "check workdir path")
	}

	// Keyed by host as well: same-named repos on different hosts must not
	// share a clone.
	repoDir := filepath.Join(m.reposRoot, sanitizeSegment(host), sanitizeSegment(owner), sanitizeSegment(name))
	if err := m.ensureRepoIsGit(ctx, repoDir); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(workdir), 0o755); err != nil {
		return "", errs.Wrap(err, "ensure workdir parent directory")
	}

	output, err := m.gitC(ctx, repoDir, "worktree", "add", "--detach", workdir, "HEAD")
	if err != nil {
		_, _ = m.gitC(ctx, repoDir, "worktree", "prune")
		_ = os.RemoveAll(workdir)
		return "", errs.Wrapf(err, "git worktree add failed: %s", strings.TrimSpace(string(output)))
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "daemon.worktree")),
		"git worktree prepared",
		slog.String("repo_dir", repoDir),
		slog.String("workdir", workdir),
		slog.String("repository", repository),
		slog.Int("issue", issueNumber))
	return workdir, nil
}

func (m *gitWorktreeManager) ensureRepoIsGit(ctx context.Context, repoDir string) error {
	output, err := m.gitC(ctx, repoDir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return errs.Wrapf(err, "git rev-parse failed: %s", strings.TrimSpace(string(output)))
	}
	if strings.TrimSpace(strings.ToLower(string(output))) != "true" {
		return fmt.Errorf("repo is not a git working tree: %s", repoDir)
	}
	return nil
}

func (m *gitWorktreeManager) gitC(ctx context.Context, dir string, args ...string) ([]byte, error) {
	all := make([]string, 0, len(args)+2)
	all = append(all, "-C", dir)
	all = append(all, args...)
	return m.runGit(ctx, all...)
}

func sanitizeSegment(value string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"#", "_",
		":", "_",
		" ", "_",
	)
	return replacer.Replace(strings.TrimSpace(value))
}

func ensurePathInsideDir(root string, target string) error {
	rootAbs, err := filepath.Abs(filepath.Clean(strings.TrimSpace(root)))
	if err != nil {
		return errs.Wrap(err, "resolve root abs path")
	}
	targetAbs, err := filepath.Abs(filepath.Clean(strings.TrimSpace(target)))
	if err != nil {
		return errs.Wrap(err, "resolve target abs path")
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return errs.Wrap(err, "resolve target relative path")
	}

	rel = filepath.Clean(rel)
	if rel == "." {
		return fmt.Errorf("target path is the root directory: %s", targetAbs)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("target path escapes root directory: %s (root=%s)", targetAbs, rootAbs)
	}
	return nil
}
