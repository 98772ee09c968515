package compiler

import (
	"testing"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/heap"
)

func mustCompile(t *testing.T, src string) *heap.Function {
	t.Helper()
	fn, err := Compile(src, heap.New())
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", src, err)
	}
	return fn
}

func containsOp(code []byte, op chunk.OpCode) bool {
	for _, b := range code {
		if chunk.OpCode(b) == op {
			return true
		}
	}
	return false
}

func TestCompileArithmeticAndPrint(t *testing.T) {
	fn := mustCompile(t, "print 1 + 2;")
	code := fn.Chunk.Code
	if !containsOp(code, chunk.OpAdd) {
		t.Fatalf("expected OP_ADD in %v", code)
	}
	if !containsOp(code, chunk.OpPrint) {
		t.Fatalf("expected OP_PRINT in %v", code)
	}
}

func TestCompileFunctionDeclarationEmitsClosure(t *testing.T) {
	fn := mustCompile(t, `func fib(n) { if n < 2 { return n; } return fib(n-1) + fib(n-2); } print fib(10);`)
	if !containsOp(fn.Chunk.Code, chunk.OpClosure) {
		t.Fatalf("expected OP_CLOSURE for function declaration")
	}
	if !containsOp(fn.Chunk.Code, chunk.OpCall) {
		t.Fatalf("expected OP_CALL for fib(10)")
	}
}

func TestCompileClassWithSuperEmitsInheritAndInvoke(t *testing.T) {
	src := `
	class A {
		init(x) { this.x = x; }
		who() { return "A"; }
	}
	class B < A {
		who() { return super.who() + "B"; }
	}
	print B(7).who();
	`
	fn := mustCompile(t, src)
	if !containsOp(fn.Chunk.Code, chunk.OpInherit) {
		t.Fatalf("expected OP_INHERIT")
	}
	if !containsOp(fn.Chunk.Code, chunk.OpInvoke) {
		t.Fatalf("expected OP_INVOKE for B(7).who()")
	}
}

func TestCompileForInEmitsNextJump(t *testing.T) {
	fn := mustCompile(t, `var s = 0; for x in [1,2,3,4] { s = s + x; } print s;`)
	if !containsOp(fn.Chunk.Code, chunk.OpNextJump) {
		t.Fatalf("expected OP_NEXT_JUMP")
	}
	if !containsOp(fn.Chunk.Code, chunk.OpList) {
		t.Fatalf("expected OP_LIST")
	}
}

func TestCompileDictLiteral(t *testing.T) {
	fn := mustCompile(t, `var d = dict { "a" => 1, "b" => 2 }; d["c"] = 3; print d["a"] + d["c"];`)
	if !containsOp(fn.Chunk.Code, chunk.OpDict) {
		t.Fatalf("expected OP_DICT")
	}
	if !containsOp(fn.Chunk.Code, chunk.OpSetIndex) {
		t.Fatalf("expected OP_SET_INDEX")
	}
	if !containsOp(fn.Chunk.Code, chunk.OpGetIndex) {
		t.Fatalf("expected OP_GET_INDEX")
	}
}

func TestReturnAtTopLevelIsCompileError(t *testing.T) {
	_, err := Compile("return 1;", heap.New())
	if err == nil {
		t.Fatalf("expected compile error for top-level return")
	}
}

func TestReturnValueFromInitializerIsCompileError(t *testing.T) {
	_, err := Compile(`class A { init() { return 1; } }`, heap.New())
	if err == nil {
		t.Fatalf("expected compile error for returning a value from an initializer")
	}
}

func TestBareReturnFromInitializerIsLegal(t *testing.T) {
	mustCompile(t, `class A { init() { return; } }`)
}

func TestSelfInheritanceIsCompileError(t *testing.T) {
	_, err := Compile(`class A < A {}`, heap.New())
	if err == nil {
		t.Fatalf("expected compile error for self-inheriting class")
	}
}

func TestClosureCapture(t *testing.T) {
	fn := mustCompile(t, `func make() { var i = 0; func inc() { i = i + 1; return i; } return inc; } var f = make(); print f();`)
	if !containsOp(fn.Chunk.Code, chunk.OpClosure) {
		t.Fatalf("expected OP_CLOSURE")
	}
}
