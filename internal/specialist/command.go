package specialist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gantrydev/gantry/pkg/models"
)

// CommandExecutor runs a configured shell command to produce candidates.
// The task is passed through GANTRY_* environment variables and the
// command's stdout becomes the candidate summary. An empty command echoes
// the task title, which keeps dry runs working without any hook configured.
type CommandExecutor struct {
	// Command is the shell command to run, empty for the echo fallback.
	Command string
	// Dir is the working directory for the command.
	Dir string
}

// Implement runs the configured command. Exit code 2 is the blocked
// convention: the command's last output line becomes the blocked reason.
func (e *CommandExecutor) Implement(ctx context.Context, task *models.Task, wc WorkContext) (*Candidate, error) {
	if e.Command == "" {
		return &Candidate{Summary: task.Title}, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", e.Command)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), taskEnv(task, wc)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 2 {
			return nil, &BlockedError{Reason: lastLine(stdout.String(), stderr.String())}
		}
		return nil, fmt.Errorf("implement hook: %s: %w", strings.TrimSpace(stderr.String()), err)
	}

	summary := strings.TrimSpace(stdout.String())
	if summary == "" {
		summary = task.Title
	}
	return &Candidate{Summary: summary}, nil
}

// CommandVerifier runs a configured shell command as the self-check.
// A non-zero exit is a fixable failure carrying the command output; an
// empty command always passes.
type CommandVerifier struct {
	Command string
	Dir     string
}

// Verify runs the configured check.
func (v *CommandVerifier) Verify(ctx context.Context, task *models.Task, c *Candidate) (*VerifyFailure, error) {
	if v.Command == "" {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", v.Command)
	cmd.Dir = v.Dir
	cmd.Env = append(os.Environ(), taskEnv(task, WorkContext{})...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &VerifyFailure{Reason: lastLine(string(output), ""), Fixable: true}, nil
	}
	return nil, nil
}

// GitCommitter records approved candidates as git commits in the project
// repository.
type GitCommitter struct {
	// Dir is the repository root.
	Dir string
}

// Commit stages everything and commits with the given message, returning
// the commit hash. A failed commit leaves the worktree to git's own
// atomicity; no hash means nothing was recorded.
func (g *GitCommitter) Commit(ctx context.Context, task *models.Task, c *Candidate, message string) (string, error) {
	addCmd := exec.CommandContext(ctx, "git", "add", "-A")
	addCmd.Dir = g.Dir
	if output, err := addCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add failed: %s: %w", strings.TrimSpace(string(output)), err)
	}

	commitCmd := exec.CommandContext(ctx, "git", "commit", "--allow-empty", "-m", message)
	commitCmd.Dir = g.Dir
	if output, err := commitCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit failed: %s: %w", strings.TrimSpace(string(output)), err)
	}

	revCmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	revCmd.Dir = g.Dir
	output, err := revCmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// taskEnv builds the GANTRY_* environment passed to hook commands.
func taskEnv(task *models.Task, wc WorkContext) []string {
	return []string{
		"GANTRY_TASK_ID=" + task.ID,
		"GANTRY_EPIC_ID=" + task.EpicID,
		"GANTRY_TITLE=" + task.Title,
		"GANTRY_CAPABILITY=" + task.Capability,
		"GANTRY_DOMAIN=" + task.Domain,
		"GANTRY_SPEC=" + task.Spec,
		"GANTRY_CRITERIA=" + task.AcceptanceCriteria,
		"GANTRY_EPIC_CONTEXT=" + wc.EpicContext,
		"GANTRY_REVIEW_ISSUES=" + strings.Join(wc.ReviewIssues, "\n"),
	}
}

// lastLine returns the last non-empty line from the outputs, preferring
// stdout, for use as a human-readable reason.
func lastLine(stdout, stderr string) string {
	for _, s := range []string{stdout, stderr} {
		lines := strings.Split(strings.TrimSpace(s), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if line := strings.TrimSpace(lines[i]); line != "" {
				return line
			}
		}
	}
	return "hook command failed"
}
