package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one line of a runtime error's stack trace: "[line N] in
// <name>", innermost frame first.
type StackFrame struct {
	Line     int
	Function string
}

// RuntimeError is returned by Interpret when execution fails after a
// successful compile. It carries the same "[line N] in <name>" trace the
// teacher's own vm/errors.go formats, printed to Stderr by pkg/repl and
// cmd/craven.
type RuntimeError struct {
	Message string
	Trace   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Trace {
		name := f.Function
		if name == "" {
			name = "script"
		}
		fmt.Fprintf(&b, "\n[line %d] in %s", f.Line, name)
	}
	return b.String()
}
