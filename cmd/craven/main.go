// Command craven is the Craven language's command-line front end: no
// arguments starts the REPL, one file argument runs it, and -V prints the
// version. See spec §6 for the exact entry-point contract.
package main

import (
	"fmt"
	"os"

	"github.com/craven-lang/craven/pkg/repl"
	"github.com/craven-lang/craven/pkg/vm"
)

const version = "0.1.0"

// Exit codes per spec §6.
const (
	exitOk           = 0
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	switch {
	case len(args) == 0:
		runREPL()
		return exitOk
	case len(args) == 1 && (args[0] == "-V" || args[0] == "--version"):
		fmt.Printf("craven %s\n", version)
		return exitOk
	case len(args) == 1:
		return runFile(args[0])
	default:
		fmt.Fprintln(os.Stderr, "Usage: craven [path]")
		return exitUsage
	}
}

func runREPL() {
	v := vm.New(vm.Options{Stdout: os.Stdout, Stderr: os.Stderr})
	repl.Loop(v, os.Stdin, os.Stdout)
}

func runFile(path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read file \"%s\".\n", path)
		return exitIOError
	}

	v := vm.New(vm.Options{Stdout: os.Stdout, Stderr: os.Stderr})
	switch repl.Run(v, string(source)) {
	case repl.CompileError:
		return exitCompileError
	case repl.RuntimeError:
		return exitRuntimeError
	default:
		return exitOk
	}
}
