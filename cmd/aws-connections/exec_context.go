package main

import "sync"

// commandExecutionContext records which command is running and whether its
// fatal path should go through the structured logger. Long-running commands
// log structured; one-shot commands print plain errors.
type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	execContextMu sync.Mutex
	execContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	execContext = ctx
}

func currentCommandExecutionContext() commandExecutionContext {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	return execContext
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}
