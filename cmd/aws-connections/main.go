package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/buildhive/aws-connections/internal/logging"
)

func main() {
	if code := runMain(Execute, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}
	return exitCodeForError(err, stderr)
}

func exitCodeForError(err error, stderr io.Writer) int {
	code := 1
	message := "command failed"

	var ee *exitError
	switch {
	case errors.As(err, &ee):
		code = ee.code
		if ee.silent {
			return code
		}
		if ee.err != nil {
			err = ee.err
		}
	case errors.Is(err, context.Canceled):
		code = 130
		message = "command canceled"
	}

	emitCommandError(err, message, code, stderr)
	return code
}

// emitCommandError reports the fatal error the way the running command
// logs: long-running commands through the structured logger, one-shot
// commands as plain stderr lines.
func emitCommandError(err error, message string, exitCode int, stderr io.Writer) {
	execCtx := currentCommandExecutionContext()
	if !execCtx.UsesStructuredLog {
		if exitCode == 130 {
			fmt.Fprintln(stderr, "canceled")
		} else {
			fmt.Fprintln(stderr, err)
		}
		return
	}

	cfg, cfgErr := logging.LoadConfigFromEnv()
	if cfgErr != nil {
		cfg = logging.DefaultConfig()
	}
	logging.NewLogger(cfg, stderr, execCtx.CommandPath).Error(message, "exit_code", exitCode, "error", err)
}
