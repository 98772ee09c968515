package chunk

import (
	"testing"

	"github.com/craven-lang/craven/pkg/value"
)

func TestWriteAndConstants(t *testing.T) {
	c := New()
	idx := c.AddConstant(value.Number(42))
	c.WriteOp(OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(OpReturn, 1)

	if len(c.Code) != 3 {
		t.Fatalf("len(Code) = %d, want 3", len(c.Code))
	}
	if c.Code[0] != byte(OpConstant) || c.Code[2] != byte(OpReturn) {
		t.Fatalf("unexpected code bytes: %v", c.Code)
	}
	if c.Constants[idx].Number != 42 {
		t.Fatalf("constant not stored correctly")
	}
	for _, l := range c.Lines {
		if l != 1 {
			t.Fatalf("line table mismatch: %v", c.Lines)
		}
	}
}

func TestJumpPatch(t *testing.T) {
	c := New()
	c.WriteOp(OpJumpIfFalse, 1)
	offset := len(c.Code)
	c.WriteUint16(0xFFFF, 1) // placeholder
	c.WriteOp(OpPop, 1)

	target := len(c.Code)
	c.PatchUint16(offset, uint16(target-offset-2))

	got := c.ReadUint16(offset)
	want := uint16(target - offset - 2)
	if got != want {
		t.Fatalf("ReadUint16 = %d, want %d", got, want)
	}
}

func TestOpCodeString(t *testing.T) {
	if OpAdd.String() != "OP_ADD" {
		t.Fatalf("OpAdd.String() = %q", OpAdd.String())
	}
	if OpCode(255).String() != "OP_UNKNOWN" {
		t.Fatalf("unknown opcode should stringify to OP_UNKNOWN")
	}
}
