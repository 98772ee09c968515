// Package vm implements Craven's stack-based bytecode interpreter: the
// value stack, call frames, upvalue machinery, and the dispatch loop that
// drives a compiled Function to completion.
package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/compiler"
	"github.com/craven-lang/craven/pkg/heap"
	"github.com/craven-lang/craven/pkg/table"
	"github.com/craven-lang/craven/pkg/value"
	pkgerrors "github.com/pkg/errors"
)

// MaxStack is the size of the value stack, in slots.
const MaxStack = 16384

// MaxFrames is the deepest call nesting Interpret allows before reporting
// a stack overflow.
const MaxFrames = 64

// InterpretResult mirrors spec §6's three outcomes of one Interpret call.
type InterpretResult int

const (
	Ok InterpretResult = iota
	CompileErrorResult
	RuntimeErrorResult
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the base of its slice of the value stack.
type CallFrame struct {
	closure   *heap.Closure
	ip        int
	slotsBase int
}

// Options configures a VM. The zero value is usable: Stdout/Stderr default
// to os.Stdout/os.Stderr, StackSize/FrameCount to MaxStack/MaxFrames.
type Options struct {
	StackSize    int
	FrameCount   int
	GCStressTest bool
	LogGC        bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// VM holds everything one Craven program execution needs: the value stack,
// call frames, globals, the heap, and the open-upvalue list.
type VM struct {
	stack     []value.Value
	stackTop  int
	frames    []CallFrame
	frameCount int

	globals      *table.Table
	heap         *heap.Heap
	openUpvalues *heap.Upvalue

	stringMethods *methodTable
	listMethods   *methodTable
	dictMethods   *methodTable
	optionMethods *methodTable

	initString *heap.String

	Stdout io.Writer
	Stderr io.Writer

	startTime time.Time
}

// New constructs a VM ready for Interpret, installing the global natives
// and built-in method tables described in SPEC_FULL.md's extension API.
func New(opts Options) *VM {
	stackSize := opts.StackSize
	if stackSize <= 0 {
		stackSize = MaxStack
	}
	frameCount := opts.FrameCount
	if frameCount <= 0 {
		frameCount = MaxFrames
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	h := heap.New()
	h.GCStressTest = opts.GCStressTest
	h.LogGC = opts.LogGC

	vm := &VM{
		stack:     make([]value.Value, stackSize),
		frames:    make([]CallFrame, frameCount),
		globals:   table.New(),
		heap:      h,
		Stdout:    stdout,
		Stderr:    stderr,
		startTime: time.Now(),
	}
	vm.initString = h.NewString("init")
	vm.stringMethods = newMethodTable()
	vm.listMethods = newMethodTable()
	vm.dictMethods = newMethodTable()
	vm.optionMethods = newMethodTable()
	vm.installNatives()
	return vm
}

// Interpret compiles and runs source to completion. A compile failure never
// touches the stack or globals; a runtime failure returns a *RuntimeError
// describing the fault and the call stack active when it happened.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	fn, err := compiler.Compile(source, vm.heap)
	if err != nil {
		return CompileErrorResult, err
	}

	base := vm.frameCount
	closure := vm.heap.NewClosure(fn)
	vm.push(value.Obj(closure))
	if err := vm.call(closure, 0); err != nil {
		return RuntimeErrorResult, err
	}

	if err := vm.run(base); err != nil {
		vm.resetStack()
		return RuntimeErrorResult, err
	}
	vm.pop() // discard the script's own return value; a persistent REPL VM must not leak a stack slot per line
	return Ok, nil
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readUint16(frame *CallFrame) uint16 {
	hi := vm.readByte(frame)
	lo := vm.readByte(frame)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant(frame *CallFrame) value.Value {
	idx := vm.readByte(frame)
	return frame.closure.Function.Chunk.Constants[idx]
}

func (vm *VM) readString(frame *CallFrame) *heap.String {
	return vm.readConstant(frame).Obj.(*heap.String)
}

// runtimeErrorf builds a *RuntimeError carrying the current call stack, per
// spec §5's "[line N] in <name>" trace format.
func (vm *VM) runtimeErrorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := 0
		if f.ip-1 >= 0 && f.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[f.ip-1]
		}
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		trace = append(trace, StackFrame{Line: line, Function: name})
	}
	return &RuntimeError{Message: msg, Trace: trace}
}

// MarkRoots implements heap.Roots: the value stack, every call frame's
// closure, the open-upvalue list, and globals. Every transient a helper
// allocates (a list/dict/instance under construction, a freshly interned
// string) is pushed onto the stack before any further allocation can run,
// and collectIfNeeded is only ever called from such a safe point — so the
// stack scan above is sufficient and no separate "reserve" shield slot is
// needed.
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for i := 0; i < vm.stackTop; i++ {
		mark(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(value.Obj(vm.frames[i].closure))
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		mark(value.Obj(uv))
	}
	vm.globals.Each(func(k, v value.Value) {
		mark(k)
		mark(v)
	})
	if vm.initString != nil {
		mark(value.Obj(vm.initString))
	}
}

func (vm *VM) collectIfNeeded() {
	if vm.heap.ShouldCollect() {
		vm.heap.CollectGarbage(vm)
	}
}

// run executes instructions until frameCount drops back to base (the
// depth it was at when this run started) or a runtime error occurs. It is
// the single dispatch loop for every opcode in pkg/chunk. A native's Go
// error return plays the role the original design's polled "kill flag"
// played: a fatal condition inside a native aborts the loop the moment
// its call instruction's handler sees the error, with no separate flag to
// check each iteration.
func (vm *VM) run(base int) error {
	frame := vm.currentFrame()

	for {
		op := chunk.OpCode(vm.readByte(frame))

		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant(frame))

		case chunk.OpInt:
			vm.push(value.Number(float64(vm.readByte(frame))))

		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.True)
		case chunk.OpFalse:
			vm.push(value.False)
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte(frame)
			vm.push(vm.stack[frame.slotsBase+int(slot)])
		case chunk.OpSetLocal:
			slot := vm.readByte(frame)
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := vm.readString(frame)
			val, ok := vm.globals.Get(value.Obj(name))
			if !ok {
				return vm.runtimeErrorf("Undefined variable '%s'.", name.Chars)
			}
			vm.push(val)
		case chunk.OpDefineGlobal:
			name := vm.readString(frame)
			vm.globals.Set(value.Obj(name), vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readString(frame)
			if _, ok := vm.globals.Get(value.Obj(name)); !ok {
				return vm.runtimeErrorf("Undefined variable '%s'.", name.Chars)
			}
			vm.globals.Set(value.Obj(name), vm.peek(0))

		case chunk.OpGetUpvalue:
			idx := vm.readByte(frame)
			up := frame.closure.Upvalues[idx]
			if up.Open {
				vm.push(vm.stack[up.Slot])
			} else {
				vm.push(up.Closed)
			}
		case chunk.OpSetUpvalue:
			idx := vm.readByte(frame)
			up := frame.closure.Upvalues[idx]
			if up.Open {
				vm.stack[up.Slot] = vm.peek(0)
			} else {
				up.Closed = vm.peek(0)
			}

		case chunk.OpGetProperty:
			name := vm.readString(frame)
			if err := vm.getProperty(name); err != nil {
				return err
			}
		case chunk.OpSetProperty:
			name := vm.readString(frame)
			if err := vm.setProperty(name); err != nil {
				return err
			}
		case chunk.OpGetSuper:
			name := vm.readString(frame)
			if err := vm.getSuper(name); err != nil {
				return err
			}

		case chunk.OpGetIndex:
			if err := vm.getIndex(); err != nil {
				return err
			}
		case chunk.OpSetIndex:
			if err := vm.setIndex(); err != nil {
				return err
			}

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool_(value.Equal(a, b)))
		case chunk.OpGreater, chunk.OpLess:
			b := vm.peek(0)
			a := vm.peek(1)
			if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
				return vm.runtimeErrorf("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			if op == chunk.OpGreater {
				vm.push(value.Bool_(a.Number > b.Number))
			} else {
				vm.push(value.Bool_(a.Number < b.Number))
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			b := vm.peek(0)
			a := vm.peek(1)
			if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
				return vm.runtimeErrorf("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			switch op {
			case chunk.OpSubtract:
				vm.push(value.Number(a.Number - b.Number))
			case chunk.OpMultiply:
				vm.push(value.Number(a.Number * b.Number))
			case chunk.OpDivide:
				vm.push(value.Number(a.Number / b.Number))
			}

		case chunk.OpNot:
			vm.push(value.Bool_(heap.IsFalsey(vm.pop())))
		case chunk.OpNegate:
			v := vm.peek(0)
			if v.Kind != value.KindNumber {
				return vm.runtimeErrorf("Operand must be a number.")
			}
			vm.pop()
			vm.push(value.Number(-v.Number))

		case chunk.OpList:
			count := int(vm.readByte(frame))
			items := make([]value.Value, count)
			copy(items, vm.stack[vm.stackTop-count:vm.stackTop])
			vm.stackTop -= count
			vm.push(value.Obj(vm.heap.NewList(items)))
			vm.collectIfNeeded()
		case chunk.OpDict:
			count := int(vm.readByte(frame))
			d := vm.heap.NewDict()
			pairsBase := vm.stackTop - count*2
			for i := 0; i < count; i++ {
				k := vm.stack[pairsBase+i*2]
				v := vm.stack[pairsBase+i*2+1]
				if !value.IsHashable(k) {
					return vm.runtimeErrorf("Unhashable dict key.")
				}
				d.Table.Set(k, v)
			}
			vm.stackTop = pairsBase
			vm.push(value.Obj(d))
			vm.collectIfNeeded()

		case chunk.OpJump:
			offset := vm.readUint16(frame)
			frame.ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readUint16(frame)
			if heap.IsFalsey(vm.peek(0)) {
				frame.ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readUint16(frame)
			frame.ip -= int(offset)
		case chunk.OpNextJump:
			offset := vm.readUint16(frame)
			if err := vm.nextJump(frame, offset); err != nil {
				return err
			}

		case chunk.OpPrint:
			fmt.Fprintln(vm.Stdout, heap.Display(vm.pop()))

		case chunk.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()
		case chunk.OpInvoke:
			name := vm.readString(frame)
			argCount := int(vm.readByte(frame))
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()
		case chunk.OpSuperInvoke:
			name := vm.readString(frame)
			argCount := int(vm.readByte(frame))
			if err := vm.superInvoke(name, argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case chunk.OpClosure:
			fnVal := vm.readConstant(frame)
			fn := fnVal.Obj.(*heap.Function)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.Obj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.collectIfNeeded()

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			vm.stackTop = frame.slotsBase
			vm.push(result)
			if vm.frameCount == base {
				return nil
			}
			frame = vm.currentFrame()

		case chunk.OpClass:
			name := vm.readString(frame)
			vm.push(value.Obj(vm.heap.NewClass(name)))
			vm.collectIfNeeded()
		case chunk.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := superVal.Obj.(*heap.Class)
			if superVal.Kind != value.KindObject || !ok {
				return vm.runtimeErrorf("Superclass must be a class.")
			}
			sub := vm.peek(0).Obj.(*heap.Class)
			superclass.Methods.Each(func(k, v value.Value) {
				sub.Methods.Set(k, v)
			})
			vm.pop() // drop the subclass value; superclass stays as the `super` local
		case chunk.OpMethod:
			name := vm.readString(frame)
			vm.defineMethod(name)

		default:
			return vm.runtimeErrorf("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.Kind == value.KindNumber && b.Kind == value.KindNumber:
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.Number + b.Number))
	case a.IsObjType(uint8(heap.ObjString)) && b.IsObjType(uint8(heap.ObjString)):
		vm.pop()
		vm.pop()
		as := a.Obj.(*heap.String).Chars
		bs := b.Obj.(*heap.String).Chars
		vm.push(value.Obj(vm.heap.NewString(as + bs)))
		vm.collectIfNeeded()
	default:
		return vm.runtimeErrorf("Operands must be two numbers or two strings.")
	}
	return nil
}

func (vm *VM) defineMethod(name *heap.String) {
	method := vm.peek(0)
	class := vm.peek(1).Obj.(*heap.Class)
	class.Methods.Set(value.Obj(name), method)
	vm.pop()
}

// --- upvalue capture/close ---------------------------------------------

func (vm *VM) captureUpvalue(slot int) *heap.Upvalue {
	var prev *heap.Upvalue
	up := vm.openUpvalues
	for up != nil && up.Slot > slot {
		prev = up
		up = up.NextOpen
	}
	if up != nil && up.Slot == slot {
		return up
	}
	created := vm.heap.NewUpvalue(slot)
	created.NextOpen = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above fromSlot, copying
// the stack value into the upvalue's own storage so it survives the
// frame's locals being popped.
func (vm *VM) closeUpvalues(fromSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= fromSlot {
		up := vm.openUpvalues
		up.Closed = vm.stack[up.Slot]
		up.Open = false
		vm.openUpvalues = up.NextOpen
		up.NextOpen = nil
	}
}

// CompileAndRunModule compiles and runs source as a nested script sharing
// this VM's heap and globals, for the import native (see natives.go). It
// reuses pkg/compiler's explicit-context design (§9): the nested Compile
// call cannot disturb whatever outer compilation produced the closure
// currently executing, because there is none — compilation always finishes
// before the VM starts running.
func (vm *VM) CompileAndRunModule(source string) error {
	base := vm.frameCount
	fn, err := compiler.CompileModule(source, vm.heap)
	if err != nil {
		return pkgerrors.Wrap(err, "import")
	}
	closure := vm.heap.NewClosure(fn)
	vm.push(value.Obj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	if err := vm.run(base); err != nil {
		return err
	}
	vm.pop() // discard the module's own return value, same as Interpret
	return nil
}
