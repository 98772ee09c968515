package vm

import (
	"os"
	"time"

	"github.com/craven-lang/craven/pkg/heap"
	"github.com/craven-lang/craven/pkg/table"
	"github.com/craven-lang/craven/pkg/value"
	pkgerrors "github.com/pkg/errors"
)

// installNatives registers every global native function and built-in
// method table a fresh VM exposes, per SPEC_FULL.md's extension API:
// clock (timing), import (module loading, sharing this VM's heap and
// globals), and some (the Option constructor the compiler's someExpr
// desugars a `some(x)` call into).
func (vm *VM) installNatives() {
	vm.installBuiltinMethods()
	vm.defineNative("clock", vm.nativeClock)
	vm.defineNative("import", vm.nativeImport)
	vm.defineNative("some", vm.nativeSome)
	vm.globals.Set(value.Obj(vm.heap.NewString("none")), value.Obj(vm.heap.NewNone()))
}

func (vm *VM) defineNative(name string, fn heap.NativeFn) {
	native := vm.heap.NewNative(name, fn)
	vm.globals.Set(value.Obj(vm.heap.NewString(name)), value.Obj(native))
}

func (vm *VM) nativeClock(args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return value.Nil, argCountError("clock", 0, len(args))
	}
	return value.Number(time.Since(vm.startTime).Seconds()), nil
}

// nativeSome backs the `some(x)` syntax: the compiler never emits a
// dedicated opcode for it, instead compiling it as an ordinary call to
// the global named "some" (see pkg/compiler's someExpr).
func (vm *VM) nativeSome(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, argCountError("some", 1, len(args))
	}
	return value.Obj(vm.heap.NewSome(args[0])), nil
}

// nativeImport compiles the file at path into a fresh module scope
// (sharing this VM's heap, interned strings, and GC, but none of the
// importing script's globals) and runs it to completion, then yields an
// instance whose fields are that module's top-level globals — exactly
// the "value whose properties are the module's globals" spec §4.7 calls
// for. The module body runs on the same value stack and call-frame array
// as the importer (§5: single-threaded, synchronous reentrancy).
func (vm *VM) nativeImport(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, argCountError("import", 1, len(args))
	}
	pathVal := args[0]
	pathStr, ok := pathVal.Obj.(*heap.String)
	if pathVal.Kind != value.KindObject || !ok {
		return value.Nil, runtimeMessage("import() expects a string path.")
	}
	source, err := vm.readModule(pathStr.Chars)
	if err != nil {
		return value.Nil, err
	}

	savedGlobals := vm.globals
	vm.globals = table.New()
	defer func() { vm.globals = savedGlobals }()

	if err := vm.CompileAndRunModule(source); err != nil {
		return value.Nil, err
	}

	moduleClass := vm.heap.NewClass(vm.heap.NewString("module"))
	instance := vm.heap.NewInstance(moduleClass)
	vm.globals.Each(func(k, v value.Value) {
		instance.Fields.Set(k, v)
	})
	return value.Obj(instance), nil
}

func (vm *VM) readModule(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "import %q", path)
	}
	return string(data), nil
}
