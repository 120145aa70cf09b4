// Package vm - error handling with stack traces. Struct shape (StackFrame
// fields, RuntimeError wrapping a []StackFrame) is grounded in the
// teacher's pkg/vm/errors.go; the rendered format follows spec.md §7's
// "single line prefixed by [line N] in <function or script>: <message>",
// innermost frame first, rather than the teacher's multi-line dump.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame at the moment an error is reported.
type StackFrame struct {
	FunctionName string
	Line         int
}

// RuntimeError is a taxonomy-2 error per spec.md §7: unwinds the
// dispatch loop, prints to stderr, never recovered by user code (unlike
// Result errors, which are ordinary values).
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	for i, frame := range e.StackTrace {
		name := frame.FunctionName
		if name == "" {
			name = "script"
		}
		fmt.Fprintf(&b, "[line %d] in %s: %s", frame.Line, name, e.Message)
		if i < len(e.StackTrace)-1 {
			b.WriteByte('\n')
		}
	}
	if len(e.StackTrace) == 0 {
		fmt.Fprintf(&b, "%s", e.Message)
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

// runtimeError builds a RuntimeError from the current fiber's call
// stack, innermost frame first, per spec.md §7.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	fr := frames(vm.current)
	stack := make([]StackFrame, 0, len(fr))
	for i := len(fr) - 1; i >= 0; i-- {
		f := fr[i]
		name := f.closure.Function.Name
		line := vm.chunkOf(f.closure).LineAt(f.ip - 1)
		stack = append(stack, StackFrame{FunctionName: name, Line: line})
	}
	return newRuntimeError(msg, stack)
}
