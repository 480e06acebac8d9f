package review

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gantrydev/gantry/pkg/models"
)

// CommandReviewer runs a configured shell command as the reviewer. The
// candidate is passed through GANTRY_* environment variables and the
// command's stdout is parsed with ParseVerdict. An empty command always
// ships, which keeps dry runs working without a hook configured.
type CommandReviewer struct {
	Command string
	Dir     string
}

// Review runs the configured command and parses its output.
func (r *CommandReviewer) Review(ctx context.Context, req Request) (*models.Verdict, error) {
	if r.Command == "" {
		return &models.Verdict{Kind: models.VerdictShip}, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"GANTRY_TASK_ID="+req.TaskID,
		"GANTRY_SUMMARY="+req.CandidateSummary,
		"GANTRY_CRITERIA="+req.AcceptanceCriteria,
		"GANTRY_TOUCHED_FILES="+strings.Join(req.TouchedFiles, "\n"),
		fmt.Sprintf("GANTRY_ITERATION=%d", len(req.History)+1),
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("review hook: %w", err)
	}
	return ParseVerdict(stdout.String()), nil
}
