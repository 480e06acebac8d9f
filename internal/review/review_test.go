package review

import (
	"testing"

	"github.com/gantrydev/gantry/pkg/models"
)

func TestParseVerdictShip(t *testing.T) {
	v := ParseVerdict("SHIP\n\nClean implementation, criteria all met.")

	if v.Kind != models.VerdictShip {
		t.Errorf("expected SHIP, got %s", v.Kind)
	}
	if len(v.Issues) != 0 {
		t.Errorf("expected no issues on SHIP, got %v", v.Issues)
	}
}

func TestParseVerdictNeedsWorkWithIssues(t *testing.T) {
	output := `NEEDS_WORK
ISSUE: missing index on users.email
ISSUE: no migration rollback
issue: handler ignores context cancellation
`
	v := ParseVerdict(output)

	if v.Kind != models.VerdictNeedsWork {
		t.Errorf("expected NEEDS_WORK, got %s", v.Kind)
	}
	if len(v.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %v", len(v.Issues), v.Issues)
	}
	if v.Issues[0] != "missing index on users.email" {
		t.Errorf("unexpected first issue: %q", v.Issues[0])
	}
}

func TestParseVerdictMajorRethink(t *testing.T) {
	output := `MAJOR_RETHINK
RATIONALE: the schema models sessions as rows but the spec requires event sourcing
`
	v := ParseVerdict(output)

	if v.Kind != models.VerdictMajorRethink {
		t.Errorf("expected MAJOR_RETHINK, got %s", v.Kind)
	}
	if v.Rationale == "" {
		t.Error("expected rationale to be extracted")
	}
}

func TestParseVerdictLeadingWhitespace(t *testing.T) {
	v := ParseVerdict("\n\n  NEEDS_WORK: see issues\nISSUE: one thing\n")

	if v.Kind != models.VerdictNeedsWork {
		t.Errorf("expected NEEDS_WORK, got %s", v.Kind)
	}
	if len(v.Issues) != 1 {
		t.Errorf("expected 1 issue, got %v", v.Issues)
	}
}

func TestParseVerdictUnrecognizedFailsClosed(t *testing.T) {
	v := ParseVerdict("looks great to me!")

	if v.Kind != models.VerdictNeedsWork {
		t.Errorf("expected unparseable output to fail closed as NEEDS_WORK, got %s", v.Kind)
	}
	if len(v.Issues) != 1 {
		t.Errorf("expected raw output carried as issue, got %v", v.Issues)
	}
}

func TestParseVerdictTokenMustStandAlone(t *testing.T) {
	v := ParseVerdict("The workmanship here is not acceptable yet.")
	if v.Kind != models.VerdictNeedsWork {
		t.Fatalf("expected prose containing SHIP as a substring to fail closed, got %s", v.Kind)
	}
	if len(v.Issues) != 1 {
		t.Errorf("expected raw output carried as issue, got %v", v.Issues)
	}

	if v := ParseVerdict("SHIPPED without review"); v.Kind == models.VerdictShip {
		t.Error("SHIPPED must not read as a SHIP token")
	}

	if v := ParseVerdict("Verdict: SHIP"); v.Kind != models.VerdictShip {
		t.Errorf("expected standalone SHIP token to parse, got %s", v.Kind)
	}
}

func TestParseVerdictIsDeterministic(t *testing.T) {
	output := "NEEDS_WORK\nISSUE: a\nISSUE: b\n"

	first := ParseVerdict(output)
	second := ParseVerdict(output)

	if first.Kind != second.Kind || len(first.Issues) != len(second.Issues) {
		t.Error("expected identical verdicts for identical input")
	}
}
