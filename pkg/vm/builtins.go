package vm

import (
	"errors"
	"fmt"

	"github.com/craven-lang/craven/pkg/heap"
	"github.com/craven-lang/craven/pkg/value"
)

func argCountError(name string, want, got int) error {
	return fmt.Errorf("%s() expects %d argument(s) but got %d.", name, want, got)
}

func runtimeMessage(msg string) error { return errors.New(msg) }

// methodTable holds the built-in methods one primitive type exposes (the
// extension points the `import`-free standard library lives in: string,
// list, dict, option). Each entry is a factory that closes over the
// receiver to produce the NativeFn a BoundNative will run.
type methodTable map[string]func(vm *VM, receiver value.Value) heap.NativeFn

func newMethodTable() *methodTable {
	mt := make(methodTable)
	return &mt
}

func (mt *methodTable) register(name string, factory func(vm *VM, receiver value.Value) heap.NativeFn) {
	(*mt)[name] = factory
}

// lookupBuiltinMethod resolves name against receiver's primitive type and,
// if found, returns a BoundNative wrapping it (ready to push or call
// directly via OP_INVOKE's fast path).
func (vm *VM) lookupBuiltinMethod(receiver value.Value, name *heap.String) (value.Value, bool, error) {
	if receiver.Kind != value.KindObject || receiver.Obj == nil {
		return value.Nil, false, nil
	}
	var mt *methodTable
	switch receiver.Obj.(type) {
	case *heap.String:
		mt = vm.stringMethods
	case *heap.List:
		mt = vm.listMethods
	case *heap.Dict:
		mt = vm.dictMethods
	case *heap.Option:
		mt = vm.optionMethods
	default:
		return value.Nil, false, nil
	}
	factory, ok := (*mt)[name.Chars]
	if !ok {
		return value.Nil, false, nil
	}
	bound := vm.heap.NewBoundNative(name.Chars, factory(vm, receiver))
	return value.Obj(bound), true, nil
}

// installBuiltinMethods populates the string/list/dict/option method
// tables. Per the supplemented native-arity rule, every body validates its
// own argument count and returns a runtime error on mismatch instead of
// relying on VM-enforced arity.
func (vm *VM) installBuiltinMethods() {
	vm.stringMethods.register("length", func(vm *VM, receiver value.Value) heap.NativeFn {
		s := receiver.Obj.(*heap.String)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("length", 0, len(args))
			}
			return value.Number(float64(len(s.Chars))), nil
		}
	})
	vm.stringMethods.register("upper", func(vm *VM, receiver value.Value) heap.NativeFn {
		s := receiver.Obj.(*heap.String)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("upper", 0, len(args))
			}
			return value.Obj(vm.heap.NewString(toUpper(s.Chars))), nil
		}
	})
	vm.stringMethods.register("lower", func(vm *VM, receiver value.Value) heap.NativeFn {
		s := receiver.Obj.(*heap.String)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("lower", 0, len(args))
			}
			return value.Obj(vm.heap.NewString(toLower(s.Chars))), nil
		}
	})

	vm.listMethods.register("length", func(vm *VM, receiver value.Value) heap.NativeFn {
		l := receiver.Obj.(*heap.List)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("length", 0, len(args))
			}
			return value.Number(float64(len(l.Items))), nil
		}
	})
	vm.listMethods.register("append", func(vm *VM, receiver value.Value) heap.NativeFn {
		l := receiver.Obj.(*heap.List)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 1 {
				return value.Nil, argCountError("append", 1, len(args))
			}
			l.Items = append(l.Items, args[0])
			return receiver, nil
		}
	})
	vm.listMethods.register("pop", func(vm *VM, receiver value.Value) heap.NativeFn {
		l := receiver.Obj.(*heap.List)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("pop", 0, len(args))
			}
			if len(l.Items) == 0 {
				return value.Nil, runtimeMessage("Can't pop from an empty list.")
			}
			last := l.Items[len(l.Items)-1]
			l.Items = l.Items[:len(l.Items)-1]
			return last, nil
		}
	})

	vm.dictMethods.register("length", func(vm *VM, receiver value.Value) heap.NativeFn {
		d := receiver.Obj.(*heap.Dict)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("length", 0, len(args))
			}
			return value.Number(float64(d.Table.Count())), nil
		}
	})
	vm.dictMethods.register("has", func(vm *VM, receiver value.Value) heap.NativeFn {
		d := receiver.Obj.(*heap.Dict)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 1 {
				return value.Nil, argCountError("has", 1, len(args))
			}
			if !value.IsHashable(args[0]) {
				return value.Nil, runtimeMessage("Unhashable dict key.")
			}
			_, ok := d.Table.Get(args[0])
			return value.Bool_(ok), nil
		}
	})

	vm.optionMethods.register("unwrap", func(vm *VM, receiver value.Value) heap.NativeFn {
		opt := receiver.Obj.(*heap.Option)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("unwrap", 0, len(args))
			}
			if !opt.Present {
				return value.Nil, runtimeMessage("Attempted to unwrap `none`")
			}
			return opt.Value, nil
		}
	})
	vm.optionMethods.register("isSome", func(vm *VM, receiver value.Value) heap.NativeFn {
		opt := receiver.Obj.(*heap.Option)
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 0 {
				return value.Nil, argCountError("isSome", 0, len(args))
			}
			return value.Bool_(opt.Present), nil
		}
	})
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
