package compiler

import (
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
	"github.com/kristofer/vellum/pkg/value"
)

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenBreak):
		c.breakStatement()
	case c.match(lexer.TokenContinue):
		c.continueStatement()
	case c.match(lexer.TokenWith):
		c.withStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'print'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after print argument")
	c.consume(lexer.TokenSemicolon, "expected ';' after print statement")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after expression")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'if'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	loop := &loopCtx{start: loopStart, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, loop)

	c.consume(lexer.TokenLeftParen, "expected '(' after 'while'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)

	for _, b := range loop.breaks {
		c.patchJump(b)
	}
	c.loops = c.loops[:len(c.loops)-1]
}

// forStatement compiles a C-style `for (init; cond; post) body`.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "expected '(' after 'for'")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration(false)
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk.Code)
	exitJump := -1
	if !c.check(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "expected ';' after loop condition")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	} else {
		c.advance()
	}

	if !c.check(lexer.TokenRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.chunk.Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.TokenRightParen, "expected ')' after for clauses")
		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.advance()
	}

	loop := &loopCtx{start: loopStart, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, loop)
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	for _, b := range loop.breaks {
		c.patchJump(b)
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.endScope()
}

func (c *Compiler) breakStatement() {
	if len(c.loops) == 0 {
		c.errorAtCur("'break' outside of a loop")
		return
	}
	loop := c.loops[len(c.loops)-1]
	c.popLocalsTo(loop.scopeDepth)
	jump := c.emitJump(bytecode.OpJump)
	loop.breaks = append(loop.breaks, jump)
	c.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
}

func (c *Compiler) continueStatement() {
	if len(c.loops) == 0 {
		c.errorAtCur("'continue' outside of a loop")
		return
	}
	loop := c.loops[len(c.loops)-1]
	c.popLocalsTo(loop.scopeDepth)
	c.emitLoop(loop.start)
	c.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
}

// popLocalsTo emits pops for every local declared deeper than depth,
// without removing them from the compiler's local array (the loop body
// scope itself closes those normally when control falls through).
func (c *Compiler) popLocalsTo(depth int) {
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth > depth; i-- {
		if c.locals[i].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
	}
}

func (c *Compiler) returnStatement() {
	if c.fnType == value.FnScript {
		c.errorAtCur("cannot return from top-level code")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturnNil()
		return
	}
	if c.fnType == value.FnInitializer {
		c.errorAtCur("cannot return a value from an initializer")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after return value")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) emitReturnNil() {
	if c.fnType == value.FnInitializer {
		c.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

// withStatement opens a resource, binds it to an optional name for the
// duration of the block, and closes it on exit. The normal-path close is
// this emitted OpGetLocal/OpCloseFile/OpPop sequence; the error path is
// handled at runtime by the VM's open-resource list (see vm.openFile),
// since the dispatch loop has no exception-table/finally mechanism to
// hang a compiled cleanup off of.
func (c *Compiler) withStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'with'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after with expression")
	c.emitOp(bytecode.OpOpenFile)

	c.beginScope()
	if c.match(lexer.TokenAs) {
		c.consume(lexer.TokenIdentifier, "expected binding name after 'as'")
		c.declareLocal(c.lastIdent, false)
		c.markInitialized()
	} else {
		c.locals = append(c.locals, localVar{name: "", depth: c.scopeDepth})
	}
	// Capture the resource's slot before compiling the block: the block
	// may declare its own locals, which would otherwise shift
	// len(c.locals)-1 away from the with-resource's actual slot.
	slot := byte(len(c.locals) - 1)

	c.consume(lexer.TokenLeftBrace, "expected '{' to start with-block")
	c.block()

	c.emitOpByte(bytecode.OpGetLocal, slot)
	c.emitOp(bytecode.OpCloseFile)
	c.emitOp(bytecode.OpPop)
	c.endScope()
}
