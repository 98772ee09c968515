package vm

import (
	"github.com/craven-lang/craven/pkg/heap"
	"github.com/craven-lang/craven/pkg/value"
)

// callValue dispatches a CALL operand by callee type, per spec §4.4:
// closures run normally, classes construct an instance and run init (if
// any), bound methods rebind `this`, natives run their Go body directly.
func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.Kind != value.KindObject || callee.Obj == nil {
		return vm.runtimeErrorf("Can only call functions and classes.")
	}
	switch obj := callee.Obj.(type) {
	case *heap.Closure:
		return vm.call(obj, argCount)
	case *heap.Class:
		instance := vm.heap.NewInstance(obj)
		vm.stack[vm.stackTop-argCount-1] = value.Obj(instance)
		vm.collectIfNeeded()
		if initVal, ok := obj.Methods.Get(value.Obj(vm.initString)); ok {
			return vm.call(initVal.Obj.(*heap.Closure), argCount)
		}
		if argCount != 0 {
			return vm.runtimeErrorf("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *heap.BoundMethod:
		vm.stack[vm.stackTop-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)
	case *heap.Native:
		return vm.callNative(obj.Fn, argCount)
	case *heap.BoundNative:
		return vm.callNative(obj.Fn, argCount)
	default:
		return vm.runtimeErrorf("Can only call functions and classes.")
	}
}

// callNative runs a Go-native body in place of pushing a bytecode frame:
// it collapses [callee, args...] straight down to [result]. Per the
// supplemented native-arity rule the VM itself never checks len(args)
// against an expected count — each native validates its own call.
func (vm *VM) callNative(fn heap.NativeFn, argCount int) error {
	args := make([]value.Value, argCount)
	copy(args, vm.stack[vm.stackTop-argCount:vm.stackTop])
	result, err := fn(args)
	if err != nil {
		return vm.runtimeErrorf("%s", err.Error())
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return nil
}

// call pushes a new CallFrame over closure, with slotsBase positioned so
// that slot 0 is the callee/receiver already sitting under its arguments.
func (vm *VM) call(closure *heap.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeErrorf("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeErrorf("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	return nil
}

// invoke implements OP_INVOKE: the fused "look up a property, then call
// it" fast path dot-call syntax compiles to. Instance fields shadow
// methods, matching plain GET_PROPERTY semantics; non-instance receivers
// fall back to the built-in method tables (string/list/dict/option).
func (vm *VM) invoke(name *heap.String, argCount int) error {
	receiver := vm.peek(argCount)
	if receiver.Kind != value.KindObject || receiver.Obj == nil {
		return vm.runtimeErrorf("Only instances have methods.")
	}
	if inst, ok := receiver.Obj.(*heap.Instance); ok {
		if field, ok := inst.Fields.Get(value.Obj(name)); ok {
			vm.stack[vm.stackTop-argCount-1] = field
			return vm.callValue(field, argCount)
		}
		methodVal, ok := inst.Class.Methods.Get(value.Obj(name))
		if !ok {
			return vm.runtimeErrorf("Undefined property '%s'.", name.Chars)
		}
		return vm.call(methodVal.Obj.(*heap.Closure), argCount)
	}
	bound, ok, err := vm.lookupBuiltinMethod(receiver, name)
	if err != nil {
		return err
	}
	if !ok {
		return vm.runtimeErrorf("Undefined property '%s'.", name.Chars)
	}
	vm.stack[vm.stackTop-argCount-1] = bound
	return vm.callValue(bound, argCount)
}

// superInvoke implements OP_SUPER_INVOKE. The compiler pushes `this`
// before the call's arguments and the resolved superclass last, so the
// stack already has the exact [receiver, args...] layout call() expects
// once the superclass value on top is popped off.
func (vm *VM) superInvoke(name *heap.String, argCount int) error {
	superVal := vm.pop()
	superclass, ok := superVal.Obj.(*heap.Class)
	if superVal.Kind != value.KindObject || !ok {
		return vm.runtimeErrorf("Superclass must be a class.")
	}
	methodVal, ok := superclass.Methods.Get(value.Obj(name))
	if !ok {
		return vm.runtimeErrorf("Undefined property '%s'.", name.Chars)
	}
	return vm.call(methodVal.Obj.(*heap.Closure), argCount)
}

// getSuper implements OP_GET_SUPER: binds the named superclass method to
// the current `this`, producing a plain BoundMethod (e.g. for
// `var f = super.greet; f();`).
func (vm *VM) getSuper(name *heap.String) error {
	superVal := vm.pop()
	superclass, ok := superVal.Obj.(*heap.Class)
	if superVal.Kind != value.KindObject || !ok {
		return vm.runtimeErrorf("Superclass must be a class.")
	}
	this := vm.pop()
	methodVal, ok := superclass.Methods.Get(value.Obj(name))
	if !ok {
		return vm.runtimeErrorf("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(this, methodVal.Obj.(*heap.Closure))
	vm.push(value.Obj(bound))
	vm.collectIfNeeded()
	return nil
}

// getProperty implements OP_GET_PROPERTY: instance fields shadow methods;
// methods bind into a BoundMethod; non-instances look in the built-in
// method tables.
func (vm *VM) getProperty(name *heap.String) error {
	receiver := vm.pop()
	if receiver.Kind == value.KindObject && receiver.Obj != nil {
		if inst, ok := receiver.Obj.(*heap.Instance); ok {
			if field, ok := inst.Fields.Get(value.Obj(name)); ok {
				vm.push(field)
				return nil
			}
			if methodVal, ok := inst.Class.Methods.Get(value.Obj(name)); ok {
				bound := vm.heap.NewBoundMethod(receiver, methodVal.Obj.(*heap.Closure))
				vm.push(value.Obj(bound))
				vm.collectIfNeeded()
				return nil
			}
			return vm.runtimeErrorf("Undefined property '%s'.", name.Chars)
		}
	}
	bound, ok, err := vm.lookupBuiltinMethod(receiver, name)
	if err != nil {
		return err
	}
	if !ok {
		return vm.runtimeErrorf("Only instances have properties.")
	}
	vm.push(bound)
	return nil
}

// setProperty implements OP_SET_PROPERTY. Only instances have assignable
// fields; built-ins (strings, lists, dicts, options) are immutable from
// the outside except via their own methods (e.g. list.append).
func (vm *VM) setProperty(name *heap.String) error {
	val := vm.pop()
	receiverVal := vm.pop()
	inst, ok := receiverVal.Obj.(*heap.Instance)
	if receiverVal.Kind != value.KindObject || !ok {
		return vm.runtimeErrorf("Only instances have fields.")
	}
	inst.Fields.Set(value.Obj(name), val)
	vm.push(val)
	return nil
}

// getIndex implements OP_GET_INDEX over lists, strings, and dicts.
func (vm *VM) getIndex() error {
	idx := vm.pop()
	target := vm.pop()
	result, err := vm.indexGet(target, idx)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

// setIndex implements OP_SET_INDEX over lists and dicts (strings are
// immutable and reject index assignment).
func (vm *VM) setIndex() error {
	val := vm.pop()
	idx := vm.pop()
	target := vm.pop()
	if err := vm.indexSet(target, idx, val); err != nil {
		return err
	}
	vm.push(val)
	return nil
}

func (vm *VM) indexGet(target, idx value.Value) (value.Value, error) {
	if target.Kind != value.KindObject || target.Obj == nil {
		return value.Nil, vm.runtimeErrorf("Only lists, strings, and dicts can be indexed.")
	}
	switch obj := target.Obj.(type) {
	case *heap.List:
		i, ok := listIndex(idx, len(obj.Items))
		if !ok {
			return value.Nil, vm.runtimeErrorf("List index out of range.")
		}
		return obj.Items[i], nil
	case *heap.String:
		i, ok := listIndex(idx, len(obj.Chars))
		if !ok {
			return value.Nil, vm.runtimeErrorf("String index out of range.")
		}
		return value.Obj(vm.heap.NewString(string(obj.Chars[i]))), nil
	case *heap.Dict:
		if !value.IsHashable(idx) {
			return value.Nil, vm.runtimeErrorf("Unhashable dict key.")
		}
		v, ok := obj.Table.Get(idx)
		if !ok {
			return value.Nil, vm.runtimeErrorf("Key not found.")
		}
		return v, nil
	default:
		return value.Nil, vm.runtimeErrorf("Only lists, strings, and dicts can be indexed.")
	}
}

func (vm *VM) indexSet(target, idx, val value.Value) error {
	if target.Kind != value.KindObject || target.Obj == nil {
		return vm.runtimeErrorf("Only lists and dicts support index assignment.")
	}
	switch obj := target.Obj.(type) {
	case *heap.List:
		i, ok := listIndex(idx, len(obj.Items))
		if !ok {
			return vm.runtimeErrorf("List index out of range.")
		}
		obj.Items[i] = val
		return nil
	case *heap.Dict:
		if !value.IsHashable(idx) {
			return vm.runtimeErrorf("Unhashable dict key.")
		}
		obj.Table.Set(idx, val)
		return nil
	default:
		return vm.runtimeErrorf("Only lists and dicts support index assignment.")
	}
}

// listIndex validates idx as an in-range integer index, accepting Python-
// style negative indices counting from the end (a small, deliberate
// extension over the terse spec text, consistent with the list-literal
// and for-in features it already supports).
func listIndex(idx value.Value, length int) (int, bool) {
	if idx.Kind != value.KindNumber {
		return 0, false
	}
	i := int(idx.Number)
	if float64(i) != idx.Number {
		return 0, false
	}
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// nextJump implements OP_NEXT_JUMP's stack-neutral for-in step: see
// pkg/compiler's forStatement doc comment for the full design rationale.
// On the live branch it pops the index, pushes (index+1) then the
// element, leaving the element directly in the loop variable's slot. On
// the exhausted branch it pops and immediately re-pushes the index
// unchanged (net effect zero) before jumping, so endScope's locals-count
// bookkeeping stays correct regardless of which branch fires.
func (vm *VM) nextJump(frame *CallFrame, offset uint16) error {
	idx := vm.pop()
	if idx.Kind != value.KindNumber {
		return vm.runtimeErrorf("for-in index must be a number.")
	}
	iterable := vm.peek(0)
	length, elemAt, ok := vm.iterate(iterable)
	if !ok {
		return vm.runtimeErrorf("Can only iterate over lists and strings.")
	}
	i := int(idx.Number)
	if i >= length {
		vm.push(idx)
		frame.ip += int(offset)
		return nil
	}
	vm.push(value.Number(float64(i + 1)))
	vm.push(elemAt(i))
	return nil
}

func (vm *VM) iterate(v value.Value) (length int, elemAt func(int) value.Value, ok bool) {
	if v.Kind != value.KindObject {
		return 0, nil, false
	}
	switch obj := v.Obj.(type) {
	case *heap.List:
		return len(obj.Items), func(i int) value.Value { return obj.Items[i] }, true
	case *heap.String:
		chars := obj.Chars
		return len(chars), func(i int) value.Value {
			return value.Obj(vm.heap.NewString(string(chars[i])))
		}, true
	default:
		return 0, nil, false
	}
}
