package compiler

import (
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
	"github.com/kristofer/vellum/pkg/value"
)

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration(value.ClassDefault)
	case c.match(lexer.TokenAbstract):
		c.consume(lexer.TokenClass, "expected 'class' after 'abstract'")
		c.classDeclaration(value.ClassAbstract)
	case c.match(lexer.TokenTrait):
		c.classDeclaration(value.ClassTrait)
	case c.match(lexer.TokenDef):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration(false)
	case c.match(lexer.TokenConst):
		c.varDeclaration(true)
	case c.match(lexer.TokenEnum):
		c.enumDeclaration()
	case c.match(lexer.TokenImport):
		c.importStatement()
	case c.match(lexer.TokenFrom):
		c.fromImportStatement()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration(isConst bool) {
	global := c.parseVariable("expected variable name", isConst)
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after variable declaration")
	c.defineVariable(global)
}

// parseVariable consumes an identifier and, for a global, returns the
// name-constant index; for a local it declares the local and returns 0
// (the index is unused for locals — defineVariable checks scopeDepth).
func (c *Compiler) parseVariable(msg string, isConst bool) uint16 {
	c.consume(lexer.TokenIdentifier, msg)
	name := c.lastIdent
	if c.scopeDepth > 0 {
		c.declareLocal(name, isConst)
		return 0
	}
	return c.makeConstant(name)
}

func (c *Compiler) declareLocal(name string, isConst bool) {
	if len(c.locals) >= maxLocals {
		c.errorAtCur("too many local variables in function")
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAtCur("a variable named '" + name + "' already declared in this scope")
		}
	}
	c.locals = append(c.locals, localVar{name: name, depth: -1, isConst: isConst})
}

func (c *Compiler) defineVariable(global uint16) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpUint16(bytecode.OpDefineGlobal, global)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 || len(c.locals) == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) funDeclaration() {
	c.consume(lexer.TokenIdentifier, "expected function name")
	name := c.lastIdent
	if c.scopeDepth > 0 {
		c.declareLocal(name, false)
		c.markInitialized()
	}
	global := uint16(0)
	if c.scopeDepth == 0 {
		global = c.makeConstant(name)
	}
	c.function(value.FnFunction, name)
	c.defineVariable(global)
}

// function compiles a function literal's parameter list and body into a
// nested Compiler, then emits OP_CLOSURE in the enclosing chunk.
func (c *Compiler) function(kind value.FunctionKind, name string) {
	sub := newCompiler(c, kind, c.moduleName)
	sub.fn.Name = name
	sub.beginScope()

	receiverName := ""
	if kind == value.FnMethod || kind == value.FnInitializer {
		receiverName = "this"
	}
	sub.locals = append(sub.locals, localVar{name: receiverName, depth: 0})

	sub.consume(lexer.TokenLeftParen, "expected '(' after function name")
	sawOptional := false
	if !sub.check(lexer.TokenRightParen) {
		for {
			sub.consume(lexer.TokenIdentifier, "expected parameter name")
			pname := sub.lastIdent
			sub.declareLocal(pname, false)
			sub.markInitialized()
			param := value.Param{Name: pname}
			if sub.match(lexer.TokenEqual) {
				sawOptional = true
				param.HasDefault = true
				// Default expressions are compiled as a constant when
				// literal-shaped, covering the common case without a
				// separate bytecode thunk mechanism.
				param.Default = sub.constantDefaultExpr()
			} else if sawOptional {
				sub.errorAtCur("a required parameter cannot follow an optional parameter")
			}
			sub.fn.Params = append(sub.fn.Params, param)
			if !param.HasDefault {
				sub.fn.Arity++
			}
			if !sub.match(lexer.TokenComma) {
				break
			}
		}
	}
	sub.consume(lexer.TokenRightParen, "expected ')' after parameters")

	if sub.match(lexer.TokenArrow) {
		sub.fn.Kind = value.FnArrow
		sub.expression()
		sub.emitOp(bytecode.OpReturn)
	} else {
		sub.consume(lexer.TokenLeftBrace, "expected '{' before function body")
		sub.block()
	}

	fn := sub.endCompiler()
	idx := c.makeConstant(fn)
	c.emitOpUint16(bytecode.OpClosure, idx)
	for _, uv := range sub.upvalues {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(uv.Index))
	}
}

// constantDefaultExpr compiles a default-value expression for an optional
// parameter. Only literal defaults (numbers, strings, booleans, nil) are
// supported as compile-time constants; anything more elaborate is folded
// into a nil default with a compile error, since the engine doesn't carry
// a separate default-expression bytecode thunk per parameter.
func (c *Compiler) constantDefaultExpr() value.Value {
	switch c.cur.Type {
	case lexer.TokenNumber:
		n := parseNumber(c.cur.Literal)
		c.advance()
		return value.Number_(n)
	case lexer.TokenString, lexer.TokenRawString:
		s := c.cur.Literal
		c.advance()
		return value.Obj_(value.NewObj(value.KindString, value.NewString(s)))
	case lexer.TokenTrue:
		c.advance()
		return value.TrueVal
	case lexer.TokenFalse:
		c.advance()
		return value.FalseVal
	case lexer.TokenNil:
		c.advance()
		return value.NilVal
	default:
		c.errorAtCur("default parameter values must be literal constants")
		c.advance()
		return value.NilVal
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after block")
}

func (c *Compiler) enumDeclaration() {
	c.consume(lexer.TokenIdentifier, "expected enum name")
	name := c.lastIdent
	global := c.makeConstant(name)
	c.consume(lexer.TokenLeftBrace, "expected '{' before enum body")
	names := []string{}
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.consume(lexer.TokenIdentifier, "expected enum value name")
		names = append(names, c.lastIdent)
		if !c.match(lexer.TokenComma) {
			break
		}
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after enum body")
	namesConst := c.makeConstant(names)
	c.emitOpUint16(bytecode.OpMakeEnum, global)
	c.emitOpUint16(bytecode.OpEnumValue, namesConst)
	c.defineVariable(global)
}
