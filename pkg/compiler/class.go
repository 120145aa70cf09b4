package compiler

import (
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
	"github.com/kristofer/vellum/pkg/value"
)

// classDeclaration compiles `class Name [< Super] { ... }`, `abstract
// class Name { ... }`, or `trait Name { ... }` depending on kind.
// Follows spec.md §4.2's class compiler state machine: outside_class ->
// in_class_header -> in_class_body -> end_class, implemented here as a
// straight-line sequence since the Compiler itself is single-pass.
// OP_CLASS/OP_SUBCLASS carry the class's kind as a second operand so the
// runtime Class can enforce it (abstract classes and traits are never
// instantiable; abstract classes accumulate signatures that a concrete
// subclass must override, checked by OP_END_CLASS).
func (c *Compiler) classDeclaration(kind value.ClassKind) {
	c.consume(lexer.TokenIdentifier, "expected class name")
	name := c.lastIdent
	nameConst := c.makeConstant(name)
	isGlobal := c.scopeDepth == 0
	c.declareClassName(name)

	cls := &classCompiler{enclosing: c.class, name: name, kind: kind}
	c.class = cls

	hasSuper := false
	if kind != value.ClassTrait && c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "expected superclass name")
		superName := c.lastIdent
		if superName == name {
			c.errorAtCur("a class cannot inherit from itself")
		}
		c.namedVariable(superName, false)
		hasSuper = true
		cls.hasSuper = true
	}

	if hasSuper {
		c.emitOpUint16(bytecode.OpSubclass, nameConst)
	} else {
		c.emitOpUint16(bytecode.OpClass, nameConst)
	}
	c.emitByte(byte(kind))

	if hasSuper {
		c.beginScope()
		c.locals = append(c.locals, localVar{name: "super", depth: c.scopeDepth})
	}

	// Reload the class value so methods can be attached to it: after
	// OP_CLASS/OP_SUBCLASS the class sits on top of the stack.
	c.consume(lexer.TokenLeftBrace, "expected '{' before class body")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		switch {
		case c.match(lexer.TokenUse):
			c.consume(lexer.TokenIdentifier, "expected trait name after 'use'")
			traitConst := c.makeConstant(c.lastIdent)
			c.namedVariable(c.lastIdent, false)
			c.emitOpUint16(bytecode.OpUseTrait, traitConst)
			c.consume(lexer.TokenSemicolon, "expected ';' after use-trait clause")
		case c.match(lexer.TokenConst):
			c.classConstant()
		case c.match(lexer.TokenAbstract):
			c.abstractMethodSignature()
		default:
			c.classMember()
		}
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after class body")
	c.emitOp(bytecode.OpEndClass)
	if isGlobal {
		// Bind the class value left on the stack, above the hidden
		// "super" slot (if any) that endScope pops next.
		c.emitOpUint16(bytecode.OpDefineGlobal, nameConst)
	}
	// A local class stays in the slot declareClassName reserved.

	if hasSuper {
		c.endScope()
	}
	c.class = cls.enclosing
}

// classConstant compiles `const NAME = expr;` inside a class body: a
// class-variable constant evaluated once, at class-declaration time, and
// stored in the class's constants table rather than recomputed per
// instance.
func (c *Compiler) classConstant() {
	c.consume(lexer.TokenIdentifier, "expected constant name")
	name := c.lastIdent
	nameConst := c.makeConstant(name)
	c.consume(lexer.TokenEqual, "expected '=' after class constant name")
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after class constant")
	c.emitOpUint16(bytecode.OpClassConstant, nameConst)
}

// abstractMethodSignature compiles `abstract name(params);`: a
// signature with no body, legal only inside an abstract class, recorded
// in the class's abstract-method table and enforced against concrete
// subclasses by OP_END_CLASS's override check.
func (c *Compiler) abstractMethodSignature() {
	if c.class == nil || c.class.kind != value.ClassAbstract {
		c.errorAtCur("abstract methods may only be declared in an abstract class")
	}
	c.consume(lexer.TokenIdentifier, "expected method name")
	name := c.lastIdent

	arity := 0
	c.consume(lexer.TokenLeftParen, "expected '(' after abstract method name")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.consume(lexer.TokenIdentifier, "expected parameter name")
			arity++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "expected ')' after parameters")
	c.consume(lexer.TokenSemicolon, "expected ';' after abstract method signature")

	sig := &value.Function{Name: name, Arity: arity, Kind: value.FnAbstract}
	c.emitOpUint16(bytecode.OpAbstractMethod, c.makeConstant(sig))
}

func (c *Compiler) declareClassName(name string) {
	if c.scopeDepth > 0 {
		c.declareLocal(name, false)
		c.markInitialized()
	}
}

// classMember compiles one method, static method, or private method
// declaration inside a class body.
func (c *Compiler) classMember() {
	isStatic := c.match(lexer.TokenStatic)
	c.consume(lexer.TokenIdentifier, "expected method name")
	name := c.lastIdent
	nameConst := c.makeConstant(name)

	kind := value.FnMethod
	if name == "init" && !isStatic {
		kind = value.FnInitializer
	}
	if isStatic {
		kind = value.FnStatic
	}

	c.function(kind, name)

	private := len(name) > 0 && name[0] == '_'
	switch {
	case isStatic:
		c.emitOpUint16(bytecode.OpStaticMethod, nameConst)
	case private:
		c.emitOpUint16(bytecode.OpPrivateMethod, nameConst)
	default:
		c.emitOpUint16(bytecode.OpMethod, nameConst)
	}
}
