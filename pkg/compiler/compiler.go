// Package compiler implements Craven's single-pass Pratt compiler: surface
// syntax goes straight to bytecode, with no intermediate AST.
//
// The teacher's own compiler (and parser) kept "the current compiler" as a
// package-level variable. Per the redesign called out in spec §9, this port
// threads that state explicitly through a *Compiler value instead, so a
// nested compilation (the `import` native, see pkg/vm) can run to
// completion without disturbing an outer compilation in progress.
package compiler

import (
	"fmt"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/heap"
	"github.com/craven-lang/craven/pkg/lexer"
	"github.com/craven-lang/craven/pkg/value"
)

// FunctionKind distinguishes the top-level script, plain functions,
// methods, and initializers — each has slightly different rules for `this`,
// `super`, and bare `return`.
type FunctionKind int

const (
	TypeScript FunctionKind = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// Precedence levels, low to high, per spec §4.2.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

// ParseFn is a prefix or infix parse rule bound to a *Compiler via a Go
// method expression, e.g. (*Compiler).unary.
type ParseFn func(c *Compiler, canAssign bool)

// ParseRule is one row of the precedence table.
type ParseRule struct {
	Prefix     ParseFn
	Infix      ParseFn
	Precedence Precedence
}

// local is one entry in a funcState's local-variable array. depth is -1
// between addLocal and markInitialized, per spec §4.2.
type local struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

type upvalueDesc struct {
	index   uint8
	isLocal bool
}

const maxLocals = 256
const maxUpvalues = 256
const maxArgs = 255

// funcState is one nested function compiler: the function under
// construction plus its locals, upvalues, and scope depth. funcStates form
// a stack via the enclosing link, one per nested func/method/script.
type funcState struct {
	enclosing  *funcState
	function   *heap.Function
	kind       FunctionKind
	locals     []local
	upvalues   []upvalueDesc
	scopeDepth int
}

// classState is one nested class compiler, tracking only whether the class
// being compiled has a superclass (methods need this to resolve `super`).
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Error is one compile-time diagnostic.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message) }

// Errors aggregates every diagnostic collected during one compilation; it
// is what Compile returns when hadError is set.
type Errors []*Error

func (es Errors) Error() string {
	if len(es) == 0 {
		return "compile error"
	}
	msg := es[0].Error()
	if len(es) > 1 {
		msg += fmt.Sprintf(" (and %d more error(s))", len(es)-1)
	}
	return msg
}

// Compiler drives one top-to-bottom compilation of a source buffer into a
// script Function. Construct a fresh one per call to Compile.
type Compiler struct {
	heap *heap.Heap
	lex  *lexer.Lexer

	previous lexer.Token
	current  lexer.Token

	hadError  bool
	panicMode bool
	errors    Errors

	fn    *funcState
	class *classState
}

// Compile compiles source into a top-level script Function ready for the
// VM to wrap in a Closure and run. On any compile error it returns nil and
// an Errors value listing every diagnostic collected (panic-mode recovery
// keeps compiling past the first error to surface as many as possible).
func Compile(source string, h *heap.Heap) (*heap.Function, error) {
	c := &Compiler{heap: h, lex: lexer.New(source)}
	c.pushFunc(TypeScript, nil)

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn, _ := c.endFunc()
	if c.hadError {
		return nil, c.errors
	}
	return fn, nil
}

// CompileModule is used by the `import` native (via pkg/vm) to compile a
// module's source; it is the same top-level compilation Compile performs,
// exported under its own name for pkg/vm's module path.
func CompileModule(source string, h *heap.Heap) (*heap.Function, error) {
	return Compile(source, h)
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) errorAtPrevious(message string) { c.errorAt(c.previous, message) }

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errors = append(c.errors, &Error{Line: tok.Line, Message: message})
}

// synchronize discards tokens until a likely statement boundary, per the
// panic-mode recovery scheme of spec §4.2/§9.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFunc, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// --- function compiler stack -------------------------------------------

func (c *Compiler) pushFunc(kind FunctionKind, name *heap.String) {
	fn := c.heap.NewFunction()
	fn.Name = name
	fs := &funcState{enclosing: c.fn, function: fn, kind: kind, scopeDepth: 0}

	// Slot 0 is reserved for the receiver (`this` in methods/initializers,
	// otherwise the called closure itself, matching call-frame slot 0 per
	// spec §4.4). It can never be referenced by name outside a method.
	receiverName := ""
	if kind == TypeMethod || kind == TypeInitializer {
		receiverName = "this"
	}
	fs.locals = append(fs.locals, local{name: lexer.Token{Lexeme: receiverName}, depth: 0})

	c.fn = fs
}

func (c *Compiler) endFunc() (*heap.Function, []upvalueDesc) {
	c.emitReturn()
	fn := c.fn.function
	upvalues := c.fn.upvalues
	fn.UpvalueCount = len(upvalues)
	c.fn = c.fn.enclosing
	return fn, upvalues
}

func (c *Compiler) currentChunk() *chunk.Chunk { return c.fn.function.Chunk }

// --- scope management ---------------------------------------------------

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	for len(c.fn.locals) > 0 && c.fn.locals[len(c.fn.locals)-1].depth > c.fn.scopeDepth {
		last := c.fn.locals[len(c.fn.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	}
}

// --- emission helpers -----------------------------------------------------

func (c *Compiler) emitByte(b byte) { c.currentChunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) { c.currentChunk().WriteOp(op, c.previous.Line) }
func (c *Compiler) emitOpByte(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v value.Value) {
	idx := c.makeConstant(v)
	c.emitOpByte(chunk.OpConstant, idx)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	if len(c.currentChunk().Constants) >= chunk.MaxConstants {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return byte(c.currentChunk().AddConstant(v))
}

func (c *Compiler) identifierConstant(tok lexer.Token) byte {
	return c.makeConstant(value.Obj(c.heap.NewString(tok.Lexeme)))
}

func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xFF)
	c.emitByte(0xFF)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > chunk.MaxJump {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.currentChunk().PatchUint16(offset, uint16(jump))
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > chunk.MaxJump {
		c.errorAtPrevious("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) emitReturn() {
	if c.fn.kind == TypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}
