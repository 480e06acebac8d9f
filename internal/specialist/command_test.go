package specialist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gantrydev/gantry/pkg/models"
)

func hookTask() *models.Task {
	return &models.Task{
		ID:         "ga-1-abc.1",
		EpicID:     "ga-1-abc",
		Title:      "wire the widget",
		Capability: "api-architect",
		Domain:     "backend",
	}
}

func TestCommandExecutorEmptyCommandEchoesTitle(t *testing.T) {
	e := &CommandExecutor{Dir: t.TempDir()}
	c, err := e.Implement(context.Background(), hookTask(), WorkContext{})
	if err != nil {
		t.Fatalf("Implement() error = %v", err)
	}
	if c.Summary != "wire the widget" {
		t.Errorf("Summary = %q, want task title", c.Summary)
	}
}

func TestCommandExecutorStdoutBecomesSummary(t *testing.T) {
	e := &CommandExecutor{Command: `echo "did $GANTRY_TITLE"`, Dir: t.TempDir()}
	c, err := e.Implement(context.Background(), hookTask(), WorkContext{})
	if err != nil {
		t.Fatalf("Implement() error = %v", err)
	}
	if c.Summary != "did wire the widget" {
		t.Errorf("Summary = %q", c.Summary)
	}
}

func TestCommandExecutorExitTwoBlocks(t *testing.T) {
	e := &CommandExecutor{Command: `echo "missing schema file"; exit 2`, Dir: t.TempDir()}
	_, err := e.Implement(context.Background(), hookTask(), WorkContext{})

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Implement() error = %v, want BlockedError", err)
	}
	if blocked.Reason != "missing schema file" {
		t.Errorf("Reason = %q", blocked.Reason)
	}
}

func TestCommandExecutorOtherFailureIsPlainError(t *testing.T) {
	e := &CommandExecutor{Command: `echo boom >&2; exit 1`, Dir: t.TempDir()}
	_, err := e.Implement(context.Background(), hookTask(), WorkContext{})
	if err == nil {
		t.Fatal("Implement() error = nil, want failure")
	}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		t.Fatalf("exit 1 should not be a BlockedError, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q should carry stderr", err)
	}
}

func TestCommandVerifierPassAndFail(t *testing.T) {
	v := &CommandVerifier{Command: "true", Dir: t.TempDir()}
	failure, err := v.Verify(context.Background(), hookTask(), &Candidate{})
	if err != nil || failure != nil {
		t.Fatalf("Verify(true) = %v, %v, want clean pass", failure, err)
	}

	v = &CommandVerifier{Command: `echo "lint: 2 errors"; exit 1`, Dir: t.TempDir()}
	failure, err = v.Verify(context.Background(), hookTask(), &Candidate{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if failure == nil || !failure.Fixable {
		t.Fatalf("failure = %+v, want fixable", failure)
	}
	if failure.Reason != "lint: 2 errors" {
		t.Errorf("Reason = %q", failure.Reason)
	}
}

func TestCommandVerifierEmptyCommandPasses(t *testing.T) {
	v := &CommandVerifier{}
	failure, err := v.Verify(context.Background(), hookTask(), &Candidate{})
	if err != nil || failure != nil {
		t.Fatalf("Verify() = %v, %v, want pass", failure, err)
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		stdout, stderr, want string
	}{
		{"first\nsecond\n", "", "second"},
		{"", "only stderr\n", "only stderr"},
		{"picked\n", "ignored\n", "picked"},
		{"", "", "hook command failed"},
		{"trailing\n\n  \n", "", "trailing"},
	}
	for _, tt := range tests {
		if got := lastLine(tt.stdout, tt.stderr); got != tt.want {
			t.Errorf("lastLine(%q, %q) = %q, want %q", tt.stdout, tt.stderr, got, tt.want)
		}
	}
}
