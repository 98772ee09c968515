// Package repl implements the two front-door modes spec §6 describes: a
// one-shot Run over a fixed source string, and an interactive REPL that
// reads statements from a reader and feeds them to a shared, persistent VM.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/craven-lang/craven/pkg/vm"
)

// Result mirrors spec §6's run() outcome.
type Result int

const (
	Ok Result = iota
	CompileError
	RuntimeError
)

// Run compiles and executes source against v, printing any error to
// v.Stderr. It never exits the process — callers map the Result to an exit
// code (see cmd/craven).
func Run(v *vm.VM, source string) Result {
	result, err := v.Interpret(source)
	if err != nil {
		fmt.Fprintln(v.Stderr, err)
	}
	switch result {
	case vm.CompileErrorResult:
		return CompileError
	case vm.RuntimeErrorResult:
		return RuntimeError
	default:
		return Ok
	}
}

// Loop runs an interactive REPL against v, reading lines from in and
// writing prompts to out. Every complete statement (one line at a time —
// Craven statements are `;`-terminated, so no continuation heuristic is
// needed the way smog's `.`-terminated REPL required one) is compiled and
// run immediately against the same persistent VM, so globals and classes
// defined in one line remain visible to the next. Loop returns when in
// reaches EOF; it never calls os.Exit.
func Loop(v *vm.VM, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "craven> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		Run(v, line)
	}
}
