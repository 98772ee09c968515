package debug

import (
	"strings"
	"testing"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/value"
)

func TestDisassembleConstantAndReturn(t *testing.T) {
	c := chunk.New()
	idx := c.AddConstant(value.Number(1.2))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(chunk.OpReturn, 1)

	out := Disassemble(c, "test")

	if !strings.Contains(out, "== test ==") {
		t.Fatalf("missing header, got: %s", out)
	}
	if !strings.Contains(out, "OP_CONSTANT") || !strings.Contains(out, "1.2") {
		t.Errorf("expected OP_CONSTANT with operand 1.2, got: %s", out)
	}
	if !strings.Contains(out, "OP_RETURN") {
		t.Errorf("expected OP_RETURN, got: %s", out)
	}
}

func TestDisassembleJumpShowsTarget(t *testing.T) {
	c := chunk.New()
	c.WriteOp(chunk.OpJumpIfFalse, 1)
	c.WriteUint16(3, 1)
	c.WriteOp(chunk.OpPop, 1)

	out := Disassemble(c, "jump")

	if !strings.Contains(out, "-> 6") {
		t.Errorf("expected jump target 6, got: %s", out)
	}
}

func TestDisassembleSameLineOmitsRepeat(t *testing.T) {
	c := chunk.New()
	c.WriteOp(chunk.OpTrue, 5)
	c.WriteOp(chunk.OpPop, 5)

	out := Disassemble(c, "lines")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if len(lines) != 3 {
		t.Fatalf("expected header + 2 instructions, got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[2], "   | ") {
		t.Errorf("expected second instruction to omit repeated line number, got: %q", lines[2])
	}
}
