package vm

import (
	"bytes"
	"testing"
)

func newTestVM() (*VM, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	v := New(Options{Stdout: &stdout, Stderr: &stderr})
	return v, &stdout, &stderr
}

func TestInterpretArithmeticAndPrint(t *testing.T) {
	v, stdout, _ := newTestVM()
	result, err := v.Interpret(`print 1 + 2 * 3;`)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	if result != Ok {
		t.Fatalf("result = %v, want Ok", result)
	}
	if got := stdout.String(); got != "7\n" {
		t.Fatalf("stdout = %q, want %q", got, "7\n")
	}
}

func TestInterpretUndefinedVariableIsRuntimeError(t *testing.T) {
	v, _, _ := newTestVM()
	result, err := v.Interpret(`print undefinedThing;`)
	if result != RuntimeErrorResult {
		t.Fatalf("result = %v, want RuntimeErrorResult", result)
	}
	if err == nil {
		t.Fatal("expected a runtime error")
	}
}

func TestInterpretSyntaxErrorIsCompileError(t *testing.T) {
	v, _, _ := newTestVM()
	result, err := v.Interpret(`var = ;`)
	if result != CompileErrorResult {
		t.Fatalf("result = %v, want CompileErrorResult", result)
	}
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestGlobalsPersistAcrossInterpretCalls(t *testing.T) {
	v, stdout, _ := newTestVM()
	if _, err := v.Interpret(`var x = 10;`); err != nil {
		t.Fatalf("first Interpret failed: %v", err)
	}
	if _, err := v.Interpret(`print x + 1;`); err != nil {
		t.Fatalf("second Interpret failed: %v", err)
	}
	if got := stdout.String(); got != "11\n" {
		t.Fatalf("stdout = %q, want %q", got, "11\n")
	}
}

func TestListAppendAndPop(t *testing.T) {
	v, stdout, _ := newTestVM()
	src := `
var l = [1, 2];
l.append(3);
print l;
print l.pop();
print l;
`
	if _, err := v.Interpret(src); err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	want := "[1, 2, 3]\n3\n[1, 2]\n"
	if got := stdout.String(); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestOptionSomeIsSomeAndUnwrap(t *testing.T) {
	v, stdout, _ := newTestVM()
	src := `
var o = some(42);
print o.isSome();
print o.unwrap();
print none.isSome();
`
	if _, err := v.Interpret(src); err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	want := "true\n42\nfalse\n"
	if got := stdout.String(); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}
