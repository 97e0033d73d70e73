// Package vm - error handling with stack traces.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame's context at the moment a runtime
// error is raised.
type StackFrame struct {
	Name       string // function name, or "script" for the top level
	SourceLine int
}

// RuntimeError is a Lox runtime error together with the call stack active
// when it was raised, newest frame first (the error site), oldest frame
// last (the top-level script).
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.StackTrace {
		if f.SourceLine > 0 {
			fmt.Fprintf(&b, "\n[line %d] in %s", f.SourceLine, f.Name)
		} else {
			fmt.Fprintf(&b, "\nin %s", f.Name)
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
