// Package review defines the review subsystem: the reviewer boundary and the
// parsing of free-text reviewer output into structured verdicts.
package review

import (
	"context"
	"strings"

	"github.com/gantrydev/gantry/pkg/models"
)

// Request carries everything a reviewer needs: the candidate summary, the
// acceptance criteria, and the prior iteration history so repeated reviews
// can judge whether earlier issues were addressed.
type Request struct {
	TaskID             string
	CandidateSummary   string
	TouchedFiles       []string
	AcceptanceCriteria string
	History            []models.ReviewIteration
}

// Reviewer assesses a candidate result against its acceptance criteria.
// Reviewing the same unchanged candidate must yield the same verdict.
type Reviewer interface {
	Review(ctx context.Context, req Request) (*models.Verdict, error)
}

// ParseVerdict extracts a structured verdict from free-text reviewer output.
// The first non-empty line determines the verdict kind; the token must stand
// alone as a word so prose that merely contains it does not count. Subsequent
// lines prefixed with "ISSUE:" become the issue list and "RATIONALE:" sets
// the rationale. Output with no recognizable verdict is treated as
// NEEDS_WORK with the raw text as a single issue, so an unparseable review
// can never ship a candidate.
func ParseVerdict(output string) *models.Verdict {
	v := &models.Verdict{Kind: models.VerdictNeedsWork}

	lines := strings.Split(output, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case hasVerdictToken(line, models.VerdictMajorRethink):
			v.Kind = models.VerdictMajorRethink
		case hasVerdictToken(line, models.VerdictNeedsWork):
			v.Kind = models.VerdictNeedsWork
		case hasVerdictToken(line, models.VerdictShip):
			v.Kind = models.VerdictShip
		default:
			v.Kind = models.VerdictNeedsWork
			v.Issues = []string{strings.TrimSpace(output)}
			return v
		}
		break
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ISSUE:"):
			issue := strings.TrimSpace(line[len("ISSUE:"):])
			if issue != "" {
				v.Issues = append(v.Issues, issue)
			}
		case strings.HasPrefix(upper, "RATIONALE:"):
			v.Rationale = strings.TrimSpace(line[len("RATIONALE:"):])
		}
	}

	if v.Kind == models.VerdictShip {
		v.Issues = nil
	}
	return v
}

// hasVerdictToken reports whether the token appears as a standalone word on
// the line, so "WORKMANSHIP" never reads as SHIP.
func hasVerdictToken(line string, token models.VerdictKind) bool {
	for _, field := range strings.Fields(strings.ToUpper(line)) {
		if strings.Trim(field, ":.,!()[]") == string(token) {
			return true
		}
	}
	return false
}
