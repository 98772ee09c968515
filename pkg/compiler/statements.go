package compiler

import (
	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/lexer"
	"github.com/craven-lang/craven/pkg/value"
)

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFunc):
		c.funcDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.blockStatements()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

// blockStatements consumes statements up to the matching '}', assuming the
// opening '{' was already consumed and any scope bookkeeping is the
// caller's responsibility. This is the statement-block form: it is
// stack-neutral (every statement pops its own value), unlike the
// block-as-expression prefix rule in expressions.go.
func (c *Compiler) blockStatements() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.expression()
	c.consume(lexer.TokenLeftBrace, "Expect '{' before if body.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.beginScope()
	c.blockStatements()
	c.endScope()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		if c.match(lexer.TokenIf) {
			c.ifStatement()
		} else {
			c.consume(lexer.TokenLeftBrace, "Expect '{' before else body.")
			c.beginScope()
			c.blockStatements()
			c.endScope()
		}
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.expression()
	c.consume(lexer.TokenLeftBrace, "Expect '{' before while body.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.beginScope()
	c.blockStatements()
	c.endScope()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

// forStatement compiles `for <name> in <expr> { <body> }`.
//
// Two hidden locals carry the loop state across iterations: the iterable
// and the running index. OP_NEXT_JUMP pops the index, peeks the iterable,
// and either pushes the advanced index plus the element (continuing) or
// leaves the stack untouched and jumps to the exit label (exhausted) — the
// stack-neutral exhausted path is what lets the surrounding scope's pops
// stay correct regardless of which path was taken, the detail spec.md's
// prose lowering left to the implementation.
//
// The element OP_NEXT_JUMP pushes lands exactly in the loop variable's
// slot, so declaring it is pure compile-time bookkeeping: no SET_LOCAL is
// emitted. Before looping back, its slot is dropped the same way endScope
// drops any other local — OP_CLOSE_UPVALUE if the body captured it in a
// closure, plain OP_POP otherwise — so a closure capturing the loop
// variable gets its own closed copy each iteration instead of an upvalue
// left open past the slot's lifetime.
func (c *Compiler) forStatement() {
	c.consume(lexer.TokenIdentifier, "Expect loop variable name.")
	varName := c.previous
	c.consume(lexer.TokenIn, "Expect 'in' after loop variable.")

	c.beginScope()
	c.expression()
	c.addLocal(syntheticToken("@iter"))
	c.markInitialized()

	c.emitOpByte(chunk.OpInt, 0)
	c.addLocal(syntheticToken("@index"))
	c.markInitialized()

	c.consume(lexer.TokenLeftBrace, "Expect '{' before for-in body.")

	loopStart := len(c.currentChunk().Code)
	exitJump := c.emitJump(chunk.OpNextJump)

	c.addLocal(varName)
	c.markInitialized()

	c.beginScope()
	c.blockStatements()
	c.endScope()

	loopVar := c.fn.locals[len(c.fn.locals)-1]
	if loopVar.isCaptured {
		c.emitOp(chunk.OpCloseUpvalue)
	} else {
		c.emitOp(chunk.OpPop)
	}
	c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.endScope() // pops @index, @iter
}

func (c *Compiler) returnStatement() {
	if c.fn.kind == TypeScript {
		c.errorAtPrevious("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fn.kind == TypeInitializer {
		c.errorAtPrevious("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funcDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

// function compiles a function's parameter list and body into its own
// nested funcState, then emits OP_CLOSURE with one (isLocal, index) pair
// per captured upvalue.
func (c *Compiler) function(kind FunctionKind) {
	name := c.heap.NewString(c.previous.Lexeme)
	c.pushFunc(kind, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConstant := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConstant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.blockStatements()

	fn, upvalues := c.endFunc()
	idx := c.makeConstant(value.Obj(fn))
	c.emitOpByte(chunk.OpClosure, idx)
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	nameTok := c.previous
	nameConstant := c.identifierConstant(nameTok)
	c.declareLocalOrGlobal(nameTok)

	classIdx := nameConstant
	c.emitOpByte(chunk.OpClass, classIdx)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		if c.previous.Lexeme == nameTok.Lexeme {
			c.errorAtPrevious("A class can't inherit from itself.")
		}
		c.namedVariable(c.previous, false)

		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.markInitialized()

		c.namedVariable(nameTok, false)
		c.emitOp(chunk.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // pop the class itself left by the namedVariable above

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	nameTok := c.previous
	nameConstant := c.identifierConstant(nameTok)

	kind := TypeMethod
	if nameTok.Lexeme == "init" {
		kind = TypeInitializer
	}
	c.function(kind)
	c.emitOpByte(chunk.OpMethod, nameConstant)
}

func syntheticToken(lexeme string) lexer.Token {
	return lexer.Token{Type: lexer.TokenIdentifier, Lexeme: lexeme, Line: -1}
}
