// Package heap implements Craven's object model and its tracing garbage
// collector: every heap-allocated Value variant (strings, functions,
// closures, classes, instances, ...) plus the allocator that owns them.
package heap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/table"
	"github.com/craven-lang/craven/pkg/value"
)

// ObjType identifies a concrete heap object variant.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjNative
	ObjBoundNative
	ObjList
	ObjDict
	ObjOption
)

// header is embedded by every heap object. It carries the GC's
// allocation-list link and mark bit; its methods are promoted onto every
// concrete type and satisfy gcNode.
type header struct {
	marked bool
	next   value.Object
}

func (h *header) isMarked() bool            { return h.marked }
func (h *header) setMarked(m bool)          { h.marked = m }
func (h *header) nextObj() value.Object     { return h.next }
func (h *header) setNextObj(o value.Object) { h.next = o }

type gcNode interface {
	isMarked() bool
	setMarked(bool)
	nextObj() value.Object
	setNextObj(value.Object)
}

// String is an interned, immutable byte string. Two Strings with equal
// content are always the same *String — pkg/value's identity-based
// Equal relies on this.
type String struct {
	header
	Chars string
	Hash  uint32
}

func (s *String) ObjType() uint8   { return uint8(ObjString) }
func (s *String) HashBits() uint32 { return s.Hash }

// Function is a compiled function body: its arity, the number of upvalues
// its closures must capture, and its chunk of bytecode.
type Function struct {
	header
	Name         *String // nil for the top-level script
	Arity        int
	UpvalueCount int
	Chunk        *chunk.Chunk
}

func (f *Function) ObjType() uint8 { return uint8(ObjFunction) }

// Upvalue is a reference cell shared between a closure and the stack slot
// (or, once closed, its own Closed field) it captures. The original design
// keeps a raw pointer that aliases either a live stack slot or the
// upvalue's own storage; Go gives no safe way to compare or order such
// pointers without unsafe.Pointer games, so this port represents the same
// state as a (Slot index, Open flag) pair instead — the owning VM resolves
// Slot against its own stack while Open is true, exactly the substitution
// already made for NaN-boxing in pkg/value.
type Upvalue struct {
	header
	Slot     int   // valid while Open: index into the owning VM's value stack
	Open     bool
	Closed   value.Value // valid once Open is false
	NextOpen *Upvalue    // VM's open-upvalue list, sorted by descending Slot
}

func (u *Upvalue) ObjType() uint8 { return uint8(ObjUpvalue) }

// Closure pairs a Function with the upvalues it captured at creation time.
type Closure struct {
	header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjType() uint8 { return uint8(ObjClosure) }

// Class holds a method table keyed by interned method-name Strings.
type Class struct {
	header
	Name    *String
	Methods *table.Table
}

func (c *Class) ObjType() uint8 { return uint8(ObjClass) }

// Instance is a live object of some Class, with its own field table.
type Instance struct {
	header
	Class  *Class
	Fields *table.Table
}

func (i *Instance) ObjType() uint8 { return uint8(ObjInstance) }

// BoundMethod pairs a receiver with one of its class's closures, produced
// by GET_PROPERTY when the looked-up name resolves to a method rather than
// a field.
type BoundMethod struct {
	header
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) ObjType() uint8 { return uint8(ObjBoundMethod) }

// NativeFn is the signature every native function and built-in method
// body implements. Per the supplemented native-arity rule, the VM does
// not validate len(args) before calling Fn — each native checks its own
// arguments and returns an error for a bad call.
type NativeFn func(args []value.Value) (value.Value, error)

// Native is a VM-provided global function (clock, import, ...).
type Native struct {
	header
	Name string
	Fn   NativeFn
}

func (n *Native) ObjType() uint8 { return uint8(ObjNative) }

// BoundNative is a built-in method already bound to its receiver, e.g.
// what GET_PROPERTY produces for "abc".length.
type BoundNative struct {
	header
	Name string
	Fn   NativeFn
}

func (b *BoundNative) ObjType() uint8 { return uint8(ObjBoundNative) }

// List is a growable, heterogeneous array.
type List struct {
	header
	Items []value.Value
}

func (l *List) ObjType() uint8 { return uint8(ObjList) }

// Dict wraps a Table as a first-class value.
type Dict struct {
	header
	Table *table.Table
}

func (d *Dict) ObjType() uint8 { return uint8(ObjDict) }

// Option is Craven's some/none value. A none option is falsey; everything
// else (including some(nil) and some(false)) is truthy — see IsFalsey
// below, which pkg/vm uses in place of value.Value.Falsey for this reason.
type Option struct {
	header
	Present bool
	Value   value.Value
}

func (o *Option) ObjType() uint8 { return uint8(ObjOption) }

// IsFalsey extends value.Value.Falsey to account for Option: a none
// option is falsey regardless of nesting; every other value (including
// some(0) and some(false)) follows the ordinary rule.
func IsFalsey(v value.Value) bool {
	if opt, ok := v.Obj.(*Option); v.Kind == value.KindObject && ok {
		return !opt.Present
	}
	return v.Falsey()
}

const gcHeapGrowFactor = 2

// Roots is implemented by the VM so the collector can trace everything
// reachable from outside the heap: the value stack, the call-frame
// closures, the open-upvalue list, globals, and any value the VM is
// holding onto mid-operation (§4.5's roots list).
type Roots interface {
	MarkRoots(mark func(value.Value))
}

// Heap owns every heap-allocated object, the string-intern table, and the
// GC's allocation-size bookkeeping.
type Heap struct {
	objects        value.Object
	strings        *table.Table
	bytesAllocated int64
	nextGC         int64

	// GCStressTest, when true, makes ShouldCollect report true after every
	// single allocation — useful for shaking out missing roots in tests.
	GCStressTest bool
	// LogGC prints a one-line banner around each collection cycle, mirroring
	// the teacher's plain fmt.Fprintf diagnostics rather than a logger.
	LogGC bool
}

// New returns an empty Heap with an initial 1 MiB collection threshold.
func New() *Heap {
	return &Heap{strings: table.New(), nextGC: 1024 * 1024}
}

func (h *Heap) track(o value.Object, size int64) {
	n := o.(gcNode)
	n.setNextObj(h.objects)
	h.objects = o
	h.bytesAllocated += size
}

// ShouldCollect reports whether the next allocation-triggering point
// should run a collection cycle.
func (h *Heap) ShouldCollect() bool {
	return h.GCStressTest || h.bytesAllocated > h.nextGC
}

// BytesAllocated returns the allocation estimate used to pace GC: the
// running total of every allocation's estimated size. Sweeping does not
// subtract the sizes of unlinked objects, so it never decreases.
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }

// CollectGarbage runs one mark-and-sweep cycle: mark roots, trace the gray
// worklist to blacken everything reachable, drop unreachable strings from
// the intern table, then sweep the allocation list.
func (h *Heap) CollectGarbage(roots Roots) {
	if h.LogGC {
		fmt.Println("-- gc begin")
	}

	var gray []value.Object
	mark := func(v value.Value) {
		if v.Kind == value.KindObject && v.Obj != nil {
			h.markObject(v.Obj, &gray)
		}
	}

	roots.MarkRoots(mark)
	for len(gray) > 0 {
		obj := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		h.blacken(obj, &gray)
	}

	h.strings.RemoveWhite(h.isMarked)
	h.sweep()

	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
	if h.nextGC < 1024*1024 {
		h.nextGC = 1024 * 1024
	}

	if h.LogGC {
		fmt.Println("-- gc end")
	}
}

func (h *Heap) markObject(o value.Object, gray *[]value.Object) {
	if o == nil {
		return
	}
	n, ok := o.(gcNode)
	if !ok || n.isMarked() {
		return
	}
	n.setMarked(true)
	*gray = append(*gray, o)
}

func (h *Heap) isMarked(o value.Object) bool {
	n, ok := o.(gcNode)
	return ok && n.isMarked()
}

func (h *Heap) blacken(o value.Object, gray *[]value.Object) {
	mark := func(v value.Value) {
		if v.Kind == value.KindObject && v.Obj != nil {
			h.markObject(v.Obj, gray)
		}
	}
	switch obj := o.(type) {
	case *String, *Native, *BoundNative:
		// no outgoing references
	case *Upvalue:
		mark(obj.Closed)
	case *Function:
		if obj.Name != nil {
			h.markObject(obj.Name, gray)
		}
		if obj.Chunk != nil {
			for _, c := range obj.Chunk.Constants {
				mark(c)
			}
		}
	case *Closure:
		h.markObject(obj.Function, gray)
		for _, u := range obj.Upvalues {
			if u != nil {
				h.markObject(u, gray)
			}
		}
	case *Class:
		if obj.Name != nil {
			h.markObject(obj.Name, gray)
		}
		obj.Methods.Each(func(k, v value.Value) {
			mark(k)
			mark(v)
		})
	case *Instance:
		h.markObject(obj.Class, gray)
		obj.Fields.Each(func(k, v value.Value) {
			mark(k)
			mark(v)
		})
	case *BoundMethod:
		mark(obj.Receiver)
		h.markObject(obj.Method, gray)
	case *List:
		for _, v := range obj.Items {
			mark(v)
		}
	case *Dict:
		obj.Table.Each(func(k, v value.Value) {
			mark(k)
			mark(v)
		})
	case *Option:
		mark(obj.Value)
	}
}

func (h *Heap) sweep() {
	var previous value.Object
	object := h.objects
	for object != nil {
		n := object.(gcNode)
		if n.isMarked() {
			n.setMarked(false)
			previous = object
			object = n.nextObj()
			continue
		}
		unreached := object
		object = n.nextObj()
		if previous != nil {
			previous.(gcNode).setNextObj(object)
		} else {
			h.objects = object
		}
		_ = unreached // Go's own GC reclaims the memory; we only unlink.
	}
}

// Count walks the allocation list and returns the number of live objects.
// Exposed for tests; the VM never needs it.
func (h *Heap) Count() int {
	n := 0
	for o := h.objects; o != nil; o = o.(gcNode).nextObj() {
		n++
	}
	return n
}

func fnv1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

func stringKey(v value.Value) (string, uint32, bool) {
	s, ok := v.Obj.(*String)
	if !ok {
		return "", 0, false
	}
	return s.Chars, s.Hash, true
}

// NewString interns s, returning the existing *String if an equal one is
// already interned.
func (h *Heap) NewString(s string) *String {
	hash := fnv1a(s)
	if existing, ok := h.strings.FindString(s, hash, stringKey); ok {
		return existing.Obj.(*String)
	}
	str := &String{Chars: s, Hash: hash}
	h.track(str, int64(len(s))+32)
	h.strings.Set(value.Obj(str), value.True)
	return str
}

// NewFunction allocates an empty Function with a fresh Chunk; the
// compiler fills in Name/Arity/UpvalueCount/Chunk as it compiles the body.
func (h *Heap) NewFunction() *Function {
	f := &Function{Chunk: chunk.New()}
	h.track(f, 64)
	return f
}

// NewClosure allocates a Closure over fn with fn.UpvalueCount empty
// upvalue slots for the compiler-emitted OP_CLOSURE operands to fill.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.track(c, int64(32+8*fn.UpvalueCount))
	return c
}

// NewUpvalue allocates an open upvalue over the given VM stack index.
func (h *Heap) NewUpvalue(slot int) *Upvalue {
	u := &Upvalue{Slot: slot, Open: true}
	h.track(u, 32)
	return u
}

// NewClass allocates an empty class named name.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: table.New()}
	h.track(c, 48)
	return c
}

// NewInstance allocates a fresh instance of class with no fields set.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Class: class, Fields: table.New()}
	h.track(i, 48)
	return i
}

// NewBoundMethod allocates a method bound to receiver.
func (h *Heap) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.track(b, 32)
	return b
}

// NewNative allocates a global native function.
func (h *Heap) NewNative(name string, fn NativeFn) *Native {
	n := &Native{Name: name, Fn: fn}
	h.track(n, 32)
	return n
}

// NewBoundNative allocates a built-in method already bound to its receiver.
func (h *Heap) NewBoundNative(name string, fn NativeFn) *BoundNative {
	b := &BoundNative{Name: name, Fn: fn}
	h.track(b, 32)
	return b
}

// NewList allocates a list taking ownership of items (no copy).
func (h *Heap) NewList(items []value.Value) *List {
	l := &List{Items: items}
	h.track(l, int64(24+16*len(items)))
	return l
}

// NewDict allocates an empty dict.
func (h *Heap) NewDict() *Dict {
	d := &Dict{Table: table.New()}
	h.track(d, 24)
	return d
}

// NewSome allocates a some(v) option.
func (h *Heap) NewSome(v value.Value) *Option {
	o := &Option{Present: true, Value: v}
	h.track(o, 24)
	return o
}

// NewNone allocates a none option.
func (h *Heap) NewNone() *Option {
	o := &Option{Present: false}
	h.track(o, 24)
	return o
}

// Display renders v the way the print statement and REPL echo it.
func Display(v value.Value) string {
	switch v.Kind {
	case value.KindNil:
		return "nil"
	case value.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return formatNumber(v.Number)
	case value.KindObject:
		return displayObject(v.Obj)
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func displayObject(o value.Object) string {
	switch obj := o.(type) {
	case *String:
		return obj.Chars
	case *Function:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<func %s>", obj.Name.Chars)
	case *Closure:
		return displayObject(obj.Function)
	case *Native:
		return fmt.Sprintf("<native %s>", obj.Name)
	case *BoundNative:
		return fmt.Sprintf("<native %s>", obj.Name)
	case *Class:
		return obj.Name.Chars
	case *Instance:
		return fmt.Sprintf("<%s instance>", obj.Class.Name.Chars)
	case *BoundMethod:
		return displayObject(obj.Method)
	case *List:
		parts := make([]string, len(obj.Items))
		for i, item := range obj.Items {
			parts[i] = Display(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Dict:
		var parts []string
		obj.Table.Each(func(k, v value.Value) {
			parts = append(parts, Display(k)+": "+Display(v))
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case *Option:
		if !obj.Present {
			return "none"
		}
		return "some(" + Display(obj.Value) + ")"
	case *Upvalue:
		return "<upvalue>"
	default:
		return "<object>"
	}
}
