package executor

import (
	"errors"
	"fmt"
)

// ToolNotFoundError is reported when a queued call names an unregistered tool.
type ToolNotFoundError struct{ Name string }

func (e ToolNotFoundError) Error() string { return "tool not found: " + e.Name }

// IsToolNotFound reports whether err indicates an unknown tool.
func IsToolNotFound(err error) bool {
	var e ToolNotFoundError
	return errors.As(err, &e)
}

// ErrExecutorClosed is returned for calls enqueued after Close.
var ErrExecutorClosed = errors.New("executor closed")

// toolPanicError wraps a recovered panic from a tool body.
type toolPanicError struct {
	tool  string
	value any
}

func (e toolPanicError) Error() string {
	return fmt.Sprintf("tool %s panicked: %v", e.tool, e.value)
}
