package compiler

import (
	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/lexer"
)

// parseVariable consumes an identifier, declares it as a local if inside a
// scope, and returns the constant-pool index to use with defineVariable
// (meaningful only for globals).
func (c *Compiler) parseVariable(message string) byte {
	c.consume(lexer.TokenIdentifier, message)
	tok := c.previous
	c.declareLocalOrGlobal(tok)
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(tok)
}

// declareLocalOrGlobal registers tok as a new local in the current scope
// (globals need no compile-time bookkeeping beyond their constant-pool
// name). Redeclaring a name already present at the same depth is an error.
func (c *Compiler) declareLocalOrGlobal(tok lexer.Token) {
	if c.fn.scopeDepth == 0 {
		return
	}
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name.Lexeme == tok.Lexeme {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(tok)
}

func (c *Compiler) addLocal(tok lexer.Token) {
	if len(c.fn.locals) >= maxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: tok, depth: -1})
}

// markInitialized flips the most recently added local's depth from -1 to
// the current scope depth, making it visible to subsequent reads.
// Top-level function declarations have no local to mark (scopeDepth == 0).
func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

// resolveLocal searches fs's locals, newest first, for name. Returns -1 if
// absent. A local found with depth == -1 (read before its initializer
// finished) is a compile error.
func (c *Compiler) resolveLocal(fs *funcState, tok lexer.Token) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name.Lexeme == tok.Lexeme {
			if fs.locals[i].depth == -1 {
				c.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue searches enclosing function compilers for tok, creating
// upvalue descriptors (de-duplicated) as it ascends and flagging captured
// locals isCaptured, per spec §4.2's upvalue-capture rule.
func (c *Compiler) resolveUpvalue(fs *funcState, tok lexer.Token) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fs.enclosing, tok); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fs, uint8(local), true)
	}
	if up := c.resolveUpvalue(fs.enclosing, tok); up != -1 {
		return c.addUpvalue(fs, uint8(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxUpvalues {
		c.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueDesc{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

// namedVariable emits the load (and, if canAssign and an '=' follows, the
// store) sequence for a name reference, resolving local → upvalue →
// global in that order.
func (c *Compiler) namedVariable(tok lexer.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	var arg int

	if local := c.resolveLocal(c.fn, tok); local != -1 {
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, local
	} else if up := c.resolveUpvalue(c.fn, tok); up != -1 {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, up
	} else {
		arg = int(c.identifierConstant(tok))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}
