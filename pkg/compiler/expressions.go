package compiler

import (
	"strconv"

	"github.com/craven-lang/craven/pkg/chunk"
	"github.com/craven-lang/craven/pkg/lexer"
	"github.com/craven-lang/craven/pkg/value"
)

var rules map[lexer.TokenType]ParseRule

func init() {
	rules = map[lexer.TokenType]ParseRule{
		lexer.TokenLeftParen:    {Prefix: (*Compiler).grouping, Infix: (*Compiler).call, Precedence: PrecCall},
		lexer.TokenLeftBrace:    {Prefix: (*Compiler).blockExpression},
		lexer.TokenLeftBracket:  {Prefix: (*Compiler).listLiteral, Infix: (*Compiler).index, Precedence: PrecCall},
		lexer.TokenDot:          {Infix: (*Compiler).dot, Precedence: PrecCall},
		lexer.TokenMinus:        {Prefix: (*Compiler).unary, Infix: (*Compiler).binary, Precedence: PrecTerm},
		lexer.TokenPlus:         {Infix: (*Compiler).binary, Precedence: PrecTerm},
		lexer.TokenSlash:        {Infix: (*Compiler).binary, Precedence: PrecFactor},
		lexer.TokenStar:         {Infix: (*Compiler).binary, Precedence: PrecFactor},
		lexer.TokenBangEqual:    {Infix: (*Compiler).binary, Precedence: PrecEquality},
		lexer.TokenEqualEqual:   {Infix: (*Compiler).binary, Precedence: PrecEquality},
		lexer.TokenGreater:      {Infix: (*Compiler).binary, Precedence: PrecComparison},
		lexer.TokenGreaterEqual: {Infix: (*Compiler).binary, Precedence: PrecComparison},
		lexer.TokenLess:         {Infix: (*Compiler).binary, Precedence: PrecComparison},
		lexer.TokenLessEqual:    {Infix: (*Compiler).binary, Precedence: PrecComparison},
		lexer.TokenIdentifier:   {Prefix: (*Compiler).variable},
		lexer.TokenString:       {Prefix: (*Compiler).stringLiteral},
		lexer.TokenNumber:       {Prefix: (*Compiler).number},
		lexer.TokenAnd:          {Infix: (*Compiler).and_, Precedence: PrecAnd},
		lexer.TokenOr:           {Infix: (*Compiler).or_, Precedence: PrecOr},
		lexer.TokenFalse:        {Prefix: (*Compiler).literal},
		lexer.TokenNil:          {Prefix: (*Compiler).literal},
		lexer.TokenTrue:         {Prefix: (*Compiler).literal},
		lexer.TokenNot:          {Prefix: (*Compiler).unary},
		lexer.TokenSome:         {Prefix: (*Compiler).someExpr},
		lexer.TokenNone:         {Prefix: (*Compiler).noneExpr},
		lexer.TokenSuper:        {Prefix: (*Compiler).super_},
		lexer.TokenThis:         {Prefix: (*Compiler).this_},
	}
}

func getRule(t lexer.TokenType) ParseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return ParseRule{}
}

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

// parsePrecedence is the Pratt driver: advance one token, run its prefix
// rule, then keep folding infix operators whose precedence is at least
// level. canAssign threads through so infix rules recognize a trailing
// '=' only when assignment is actually legal at this level (spec §4.2).
func (c *Compiler) parsePrecedence(level Precedence) {
	c.advance()
	rule := getRule(c.previous.Type)
	if rule.Prefix == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}
	canAssign := level <= PrecAssignment
	rule.Prefix(c, canAssign)

	for level <= getRule(c.current.Type).Precedence {
		c.advance()
		infix := getRule(c.previous.Type).Infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(canAssign bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.errorAtPrevious("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	raw := c.previous.Lexeme
	s := raw[1 : len(raw)-1]
	c.emitConstant(value.Obj(c.heap.NewString(s)))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) variable(canAssign bool) {
	tok := c.previous
	if tok.Lexeme == "dict" && c.check(lexer.TokenLeftBrace) {
		c.dictLiteral()
		return
	}
	c.namedVariable(tok, canAssign)
}

// dictLiteral compiles `dict { k => v, ... }`. "dict" is a soft keyword:
// the scanner always produces TokenIdentifier for it (see pkg/lexer), and
// it is only reinterpreted here when immediately followed by '{'.
func (c *Compiler) dictLiteral() {
	c.consume(lexer.TokenLeftBrace, "Expect '{' after 'dict'.")
	count := 0
	if !c.check(lexer.TokenRightBrace) {
		for {
			c.expression()
			c.consume(lexer.TokenFatArrow, "Expect '=>' between dict key and value.")
			c.expression()
			if count == maxArgs {
				c.errorAtPrevious("Can't have more than 255 pairs in a dict literal.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after dict literal.")
	c.emitOpByte(chunk.OpDict, byte(count))
}

func (c *Compiler) listLiteral(canAssign bool) {
	count := 0
	if !c.check(lexer.TokenRightBracket) {
		for {
			c.expression()
			if count == maxArgs {
				c.errorAtPrevious("Can't have more than 255 elements in a list literal.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBracket, "Expect ']' after list elements.")
	c.emitOpByte(chunk.OpList, byte(count))
}

func (c *Compiler) index(canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRightBracket, "Expect ']' after index.")
	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOp(chunk.OpSetIndex)
	} else {
		c.emitOp(chunk.OpGetIndex)
	}
}

// blockExpression compiles `{ ... }` in expression position: the result
// is the final tail expression's value (an expression-statement whose
// trailing ';' was omitted because it ends the block), or nil if the
// block is empty or its last form is an ordinary statement.
func (c *Compiler) blockExpression(canAssign bool) {
	c.beginScope()
	wroteValue := false
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		wroteValue = c.blockItem()
		if c.panicMode {
			c.synchronize()
		}
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block expression.")
	if !wroteValue {
		c.emitOp(chunk.OpNil)
	}
	c.endScope()
}

// blockItem compiles one form inside a block-expression body and reports
// whether it left a tail value on the stack — only the final
// expression-statement can, by omitting its ';'.
func (c *Compiler) blockItem() bool {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFunc):
		c.funcDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
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
		c.expression()
		if c.match(lexer.TokenSemicolon) {
			c.emitOp(chunk.OpPop)
			return false
		}
		return true
	}
	return false
}

func (c *Compiler) unary(canAssign bool) {
	opType := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	case lexer.TokenNot:
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.Precedence + 1)
	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func (c *Compiler) and_(canAssign bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(canAssign bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() byte {
	count := 0
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == maxArgs {
				c.errorAtPrevious("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	nameConstant := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, nameConstant)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, nameConstant)
		c.emitByte(argCount)
	default:
		c.emitOpByte(chunk.OpGetProperty, nameConstant)
	}
}

func (c *Compiler) this_(canAssign bool) {
	if c.class == nil {
		c.errorAtPrevious("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable(syntheticToken("this"), false)
}

func (c *Compiler) super_(canAssign bool) {
	if c.class == nil {
		c.errorAtPrevious("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.errorAtPrevious("Can't use 'super' in a class with no superclass.")
	}
	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	nameConstant := c.identifierConstant(c.previous)

	// `this` must be pushed before any call arguments so SUPER_INVOKE sees
	// the same [receiver, args...] layout as an ordinary INVOKE; the
	// superclass itself is pushed last, on top, for the opcode to pop.
	c.namedVariable(syntheticToken("this"), false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(chunk.OpSuperInvoke, nameConstant)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(chunk.OpGetSuper, nameConstant)
	}
}

// someExpr compiles `some(expr)`. There is no dedicated opcode for it:
// "some" is installed by the VM as an ordinary global native (see
// pkg/vm), so the compiler just emits the same GET_GLOBAL+CALL sequence
// an identifier call would produce.
func (c *Compiler) someExpr(canAssign bool) {
	idx := c.makeConstant(value.Obj(c.heap.NewString("some")))
	c.emitOpByte(chunk.OpGetGlobal, idx)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'some'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after 'some' argument.")
	c.emitOpByte(chunk.OpCall, 1)
}

// noneExpr compiles the `none` literal. Unlike `nil` (a plain OP_NIL, its
// own Value kind), `none` is the empty Option the option method table
// (unwrap, isSome, ...) dispatches on, so it has to be a real heap object
// rather than a bytecode constant — the VM installs it as an ordinary
// global, and this is just a GET_GLOBAL for it.
func (c *Compiler) noneExpr(canAssign bool) {
	idx := c.makeConstant(value.Obj(c.heap.NewString("none")))
	c.emitOpByte(chunk.OpGetGlobal, idx)
}
