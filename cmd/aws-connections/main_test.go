package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEmitCommandError_StructuredForScopedCommands(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "aws-connections serve",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "aws-connections" {
		t.Fatalf("app = %v, want %q", got, "aws-connections")
	}
	if got := payload["command"]; got != "aws-connections serve" {
		t.Fatalf("command = %v, want %q", got, "aws-connections serve")
	}
	if got := payload["exit_code"]; got != float64(1) {
		t.Fatalf("exit_code = %v, want %v", got, 1)
	}
	if got := payload["error"]; got != "boom" {
		t.Fatalf("error = %v, want %q", got, "boom")
	}
}

func TestEmitCommandError_FallsBackToJSONWhenLoggingEnvInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "invalid")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "aws-connections hostsim",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected JSON fallback log, got parse error: %v", err)
	}
}

func TestEmitCommandError_PlainOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "aws-connections completion",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("plain boom"), "command failed", 1, &out)
	if got := out.String(); got != "plain boom\n" {
		t.Fatalf("output = %q, want %q", got, "plain boom\n")
	}
}

func TestEmitCommandError_CanceledOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "aws-connections completion",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(context.Canceled, "command canceled", 130, &out)
	if got := out.String(); got != "canceled\n" {
		t.Fatalf("output = %q, want %q", got, "canceled\n")
	}
}

func TestExitCodeForError_SilentExitError(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{UsesStructuredLog: false})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	code := exitCodeForError(&exitError{code: 3, silent: true}, &out)
	if code != 3 {
		t.Fatalf("code = %d, want 3", code)
	}
	if out.Len() != 0 {
		t.Fatalf("output = %q, want empty", out.String())
	}
}

func TestRunMain_SuccessIsZero(t *testing.T) {
	var out bytes.Buffer
	if code := runMain(func() error { return nil }, &out); code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
}

func TestExitErrorMessage(t *testing.T) {
	if got := (&exitError{code: 3}).Error(); got != "exit status 3" {
		t.Fatalf("Error() = %q, want %q", got, "exit status 3")
	}
	wrapped := &exitError{code: 3, err: errors.New("boom")}
	if got := wrapped.Error(); got != "boom" {
		t.Fatalf("Error() = %q, want %q", got, "boom")
	}
	if !errors.Is(wrapped, wrapped.err) {
		t.Fatal("Unwrap() lost the inner error")
	}
}

func TestExitCodeForError_WrappedExitErrorKeepsCause(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "aws-connections serve",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	code := exitCodeForError(&exitError{code: 2, err: errors.New("listen failed")}, &out)
	if code != 2 {
		t.Fatalf("code = %d, want 2", code)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["error"]; got != "listen failed" {
		t.Fatalf("error = %v, want %q", got, "listen failed")
	}
	if got := payload["exit_code"]; got != float64(2) {
		t.Fatalf("exit_code = %v, want 2", got)
	}
}
