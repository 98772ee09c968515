// Package debug renders a Chunk's bytecode as human-readable text for
// tracing and debugging. The CLI and REPL expose no flag that calls it.
//
// This is a print-only disassembler, not a serializer: unlike the .sg
// binary format some bytecode VMs persist to disk, nothing here round-trips
// back into a Chunk. It exists purely to make OpCode streams readable.
package debug

import (
	"fmt"
	"strings"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/heap"
)

// Disassemble renders every instruction in c under the given name, one per
// line, e.g. from a top-level script or a function's own chunk.
func Disassemble(c *chunk.Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		var line string
		line, offset = disassembleInstruction(c, offset)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// disassembleInstruction formats the single instruction at offset and
// returns the offset of the next one.
func disassembleInstruction(c *chunk.Chunk, offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", c.Lines[offset])
	}

	op := chunk.OpCode(c.Code[offset])
	switch op {
	case chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
		chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper, chunk.OpClass, chunk.OpMethod:
		return constantInstruction(&b, op, c, offset)
	case chunk.OpInt, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
		chunk.OpCall, chunk.OpList, chunk.OpDict:
		return byteInstruction(&b, op, c, offset)
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		return invokeInstruction(&b, op, c, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpNextJump:
		return jumpInstruction(&b, op, c, offset, 1)
	case chunk.OpLoop:
		return jumpInstruction(&b, op, c, offset, -1)
	case chunk.OpClosure:
		return closureInstruction(&b, c, offset)
	default:
		b.WriteString(op.String())
		return b.String(), offset + 1
	}
}

func simpleName(op chunk.OpCode) string { return op.String() }

func constantInstruction(b *strings.Builder, op chunk.OpCode, c *chunk.Chunk, offset int) (string, int) {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'", simpleName(op), idx, heap.Display(c.Constants[idx]))
	return b.String(), offset + 2
}

func byteInstruction(b *strings.Builder, op chunk.OpCode, c *chunk.Chunk, offset int) (string, int) {
	slot := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d", simpleName(op), slot)
	return b.String(), offset + 2
}

func invokeInstruction(b *strings.Builder, op chunk.OpCode, c *chunk.Chunk, offset int) (string, int) {
	nameIdx := c.Code[offset+1]
	argCount := c.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'", simpleName(op), argCount, nameIdx, heap.Display(c.Constants[nameIdx]))
	return b.String(), offset + 3
}

func jumpInstruction(b *strings.Builder, op chunk.OpCode, c *chunk.Chunk, offset, sign int) (string, int) {
	dist := int(c.ReadUint16(offset + 1))
	target := offset + 3 + sign*dist
	fmt.Fprintf(b, "%-16s %4d -> %d", simpleName(op), offset, target)
	return b.String(), offset + 3
}

func closureInstruction(b *strings.Builder, c *chunk.Chunk, offset int) (string, int) {
	idx := c.Code[offset+1]
	offset += 2
	fmt.Fprintf(b, "%-16s %4d '%s'", simpleName(chunk.OpClosure), idx, heap.Display(c.Constants[idx]))

	fn, ok := c.Constants[idx].Obj.(*heap.Function)
	if !ok {
		return b.String(), offset
	}
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := c.Code[offset]
		index := c.Code[offset+1]
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(b, "\n%04d      |                     %s %d", offset, kind, index)
		offset += 2
	}
	return b.String(), offset
}
