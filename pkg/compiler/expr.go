package compiler

import (
	"strconv"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
	"github.com/kristofer/vellum/pkg/value"
)

// precedence levels, matching spec.md §4.2 exactly.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precTernary
	precOr
	precAnd
	precEquality
	precComparison
	precBitwiseOr
	precBitwiseXor
	precBitwiseAnd
	precShift
	precTerm
	precFactor
	precIndices
	precUnary
	precPrefix
	precCall
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {prefix: grouping, infix: call, precedence: precCall},
		lexer.TokenLeftBracket:  {prefix: listLiteral, infix: index, precedence: precIndices},
		lexer.TokenLeftBrace:    {prefix: dictOrSetLiteral},
		lexer.TokenDot:          {infix: dot, precedence: precCall},
		lexer.TokenMinus:        {prefix: unary, infix: binary, precedence: precTerm},
		lexer.TokenPlus:         {infix: binary, precedence: precTerm},
		lexer.TokenSlash:        {infix: binary, precedence: precFactor},
		lexer.TokenStar:         {infix: binary, precedence: precFactor},
		lexer.TokenPercent:      {infix: binary, precedence: precFactor},
		lexer.TokenStarStar:     {infix: binary, precedence: precFactor},
		lexer.TokenAmp:          {infix: binary, precedence: precBitwiseAnd},
		lexer.TokenPipe:         {infix: binary, precedence: precBitwiseOr},
		lexer.TokenCaret:        {infix: binary, precedence: precBitwiseXor},
		lexer.TokenShl:          {infix: binary, precedence: precShift},
		lexer.TokenShr:          {infix: binary, precedence: precShift},
		lexer.TokenTilde:        {prefix: unary},
		lexer.TokenBang:         {prefix: unary},
		lexer.TokenBangEqual:    {infix: binary, precedence: precEquality},
		lexer.TokenEqualEqual:   {infix: binary, precedence: precEquality},
		lexer.TokenGreater:      {infix: binary, precedence: precComparison},
		lexer.TokenGreaterEqual: {infix: binary, precedence: precComparison},
		lexer.TokenLess:         {infix: binary, precedence: precComparison},
		lexer.TokenLessEqual:    {infix: binary, precedence: precComparison},
		lexer.TokenIdentifier:   {prefix: variable},
		lexer.TokenString:       {prefix: stringLiteral},
		lexer.TokenRawString:    {prefix: stringLiteral},
		lexer.TokenNumber:       {prefix: number},
		lexer.TokenAnd:          {infix: and_, precedence: precAnd},
		lexer.TokenOr:           {infix: or_, precedence: precOr},
		lexer.TokenTrue:         {prefix: literal},
		lexer.TokenFalse:        {prefix: literal},
		lexer.TokenNil:          {prefix: literal},
		lexer.TokenThis:         {prefix: this_},
		lexer.TokenSuper:        {prefix: super_},
		lexer.TokenDef:          {prefix: fnLiteral},
		lexer.TokenQuestion:     {infix: ternary, precedence: precTernary},
	}
}

func (c *Compiler) getRule(t lexer.TokenType) parseRule { return rules[t] }

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	rule := c.getRule(c.cur.Type)
	if rule.prefix == nil {
		c.errorAtCur("expected expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for {
		r := c.getRule(c.cur.Type)
		if prec > r.precedence {
			break
		}
		r.infix(c, canAssign)
	}

	if canAssign && (c.check(lexer.TokenEqual) || isCompoundAssignOp(c.cur.Type)) {
		c.errorAtCur("invalid assignment target")
	}
}

func isCompoundAssignOp(t lexer.TokenType) bool {
	switch t {
	case lexer.TokenPlusEqual, lexer.TokenMinusEqual, lexer.TokenStarEqual, lexer.TokenSlashEqual:
		return true
	}
	return false
}

func number(c *Compiler, _ bool) {
	n := parseNumber(c.cur.Literal)
	c.advance()
	c.emitConstant(value.Number_(n))
}

func parseNumber(lit string) float64 {
	f, _ := strconv.ParseFloat(lit, 64)
	return f
}

func stringLiteral(c *Compiler, _ bool) {
	c.compileStringWithInterpolation(c.cur.Literal)
	c.advance()
}

// compileStringWithInterpolation scans `${expr}` fragments out of a
// string literal's text at compile time and emits OP_BUILD_STRING to
// concatenate literal fragments with compiled sub-expressions, i.e.
// interpolation is performed at the call site via a format/concat
// sequence rather than a dedicated scanner token, per spec.md §4.2.
func (c *Compiler) compileStringWithInterpolation(text string) {
	fragments := splitInterpolation(text)
	if len(fragments) == 1 && !fragments[0].isExpr {
		c.emitConstant(fragments[0].text)
		return
	}
	count := 0
	for _, f := range fragments {
		if f.isExpr {
			sub := lexer.New(f.text)
			subC := &Compiler{lex: sub, chunk: c.chunk, enclosing: c.enclosing, fnType: c.fnType}
			_ = subC
			// Reuse the current compiler's parser over a nested lexer so
			// captured locals/upvalues resolve normally: swap the token
			// stream temporarily.
			savedLex, savedCur, savedNext := c.lex, c.cur, c.next
			c.lex = lexer.New(f.text)
			c.advance()
			c.advance()
			c.expression()
			c.lex, c.cur, c.next = savedLex, savedCur, savedNext
		} else {
			c.emitConstant(f.text)
		}
		count++
	}
	c.emitOpByte(bytecode.OpBuildString, byte(count))
}

type interpFragment struct {
	text   string
	isExpr bool
}

func splitInterpolation(s string) []interpFragment {
	var frags []interpFragment
	var cur []byte
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			if len(cur) > 0 {
				frags = append(frags, interpFragment{text: string(cur)})
				cur = nil
			}
			depth := 1
			j := i + 2
			start := j
			for j < len(s) && depth > 0 {
				if s[j] == '{' {
					depth++
				} else if s[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			frags = append(frags, interpFragment{text: s[start:j], isExpr: true})
			i = j + 1
			continue
		}
		cur = append(cur, s[i])
		i++
	}
	if len(cur) > 0 || len(frags) == 0 {
		frags = append(frags, interpFragment{text: string(cur)})
	}
	return frags
}

func literal(c *Compiler, _ bool) {
	switch c.cur.Type {
	case lexer.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	case lexer.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		c.emitOp(bytecode.OpNil)
	}
	c.advance()
}

func grouping(c *Compiler, _ bool) {
	c.advance() // consume '('
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after expression")
}

func unary(c *Compiler, _ bool) {
	op := c.cur.Type
	c.advance()
	c.parsePrecedence(precUnary)
	switch op {
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot)
	case lexer.TokenTilde:
		// Bitwise NOT: x ^ -1, truncated to 32 bits by OpBitXor itself.
		c.emitConstant(value.Number_(-1))
		c.emitOp(bytecode.OpBitXor)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.cur.Type
	rule := c.getRule(op)
	c.advance()
	c.parsePrecedence(rule.precedence + 1)
	switch op {
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	case lexer.TokenPercent:
		c.emitOp(bytecode.OpModulo)
	case lexer.TokenStarStar:
		c.emitOp(bytecode.OpPower)
	case lexer.TokenAmp:
		c.emitOp(bytecode.OpBitAnd)
	case lexer.TokenPipe:
		c.emitOp(bytecode.OpBitOr)
	case lexer.TokenCaret:
		c.emitOp(bytecode.OpBitXor)
	case lexer.TokenShl:
		c.emitOp(bytecode.OpShiftLeft)
	case lexer.TokenShr:
		c.emitOp(bytecode.OpShiftRight)
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpNotEqual)
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpGreaterEqual)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpLessEqual)
	}
}

func and_(c *Compiler, _ bool) {
	c.advance()
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	c.advance()
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func ternary(c *Compiler, _ bool) {
	c.advance() // consume '?'
	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precTernary)
	elseJump := c.emitJump(bytecode.OpJump)
	c.consume(lexer.TokenColon, "expected ':' in ternary expression")
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAssignment)
	c.patchJump(elseJump)
}

func call(c *Compiler, _ bool) {
	c.advance() // consume '('
	argc := c.argumentList(lexer.TokenRightParen)
	c.emitOpByte(bytecode.OpCall, byte(argc))
}

func (c *Compiler) argumentList(end lexer.TokenType) int {
	argc := 0
	if !c.check(end) {
		for {
			c.expression()
			argc++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(end, "expected closing delimiter after arguments")
	return argc
}

func index(c *Compiler, canAssign bool) {
	c.advance() // consume '['
	c.expression()
	if c.match(lexer.TokenColon) {
		c.expression()
		c.consume(lexer.TokenRightBracket, "expected ']' after slice")
		c.emitOp(bytecode.OpSlice)
		return
	}
	c.consume(lexer.TokenRightBracket, "expected ']' after index")
	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOp(bytecode.OpSetIndex)
	} else {
		c.emitOp(bytecode.OpGetIndex)
	}
}

func dot(c *Compiler, canAssign bool) {
	c.advance() // consume '.'
	c.consume(lexer.TokenIdentifier, "expected property name after '.'")
	name := c.lastIdent
	private := len(name) > 0 && name[0] == '_'
	nameConst := c.makeConstant(name)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		if private {
			c.emitOpUint16(bytecode.OpSetPrivateProperty, nameConst)
		} else {
			c.emitOpUint16(bytecode.OpSetProperty, nameConst)
		}
	case isCompoundAssignOp(c.cur.Type) && canAssign:
		c.compileCompoundDot(nameConst, private)
	case c.match(lexer.TokenLeftParen):
		argc := c.argumentList(lexer.TokenRightParen)
		c.emitOpUint16(bytecode.OpInvoke, nameConst)
		c.emitByte(byte(argc))
	default:
		if private {
			c.emitOpUint16(bytecode.OpGetPrivateProperty, nameConst)
		} else {
			c.emitOpUint16(bytecode.OpGetProperty, nameConst)
		}
	}
}

func (c *Compiler) compileCompoundDot(nameConst uint16, private bool) {
	op := c.cur.Type
	c.advance()
	if private {
		c.emitOpUint16(bytecode.OpGetPrivateProperty, nameConst)
	} else {
		c.emitOpUint16(bytecode.OpGetProperty, nameConst)
	}
	c.expression()
	emitCompoundOp(c, op)
	if private {
		c.emitOpUint16(bytecode.OpSetPrivateProperty, nameConst)
	} else {
		c.emitOpUint16(bytecode.OpSetProperty, nameConst)
	}
}

func emitCompoundOp(c *Compiler, op lexer.TokenType) {
	switch op {
	case lexer.TokenPlusEqual:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinusEqual:
		c.emitOp(bytecode.OpSubtract)
	case lexer.TokenStarEqual:
		c.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlashEqual:
		c.emitOp(bytecode.OpDivide)
	}
}

func listLiteral(c *Compiler, _ bool) {
	c.advance() // consume '['
	count := 0
	if !c.check(lexer.TokenRightBracket) {
		for {
			c.expression()
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBracket, "expected ']' after list literal")
	c.emitOpUint16(bytecode.OpList, uint16(count))
}

// dictOrSetLiteral resolves the block-vs-dict-vs-set ambiguity with a
// two-token lookahead (cur/next) instead of the scanner backtrack
// spec.md §9 flags as a source-language workaround: an empty `{}`, or a
// `{` whose first token is an identifier, string or number immediately
// followed by `:`, is a dict; otherwise
// it is a set literal (bare `{` as a statement-starting block is handled
// earlier in statement(), so this prefix rule only fires in expression
// position).
func dictOrSetLiteral(c *Compiler, _ bool) {
	c.advance() // consume '{'
	if c.match(lexer.TokenRightBrace) {
		c.emitOpUint16(bytecode.OpDict, 0)
		return
	}
	// Peek at the first two tokens, before compiling anything, to see
	// whether ':' follows the first element.
	isDict := c.looksLikeDictEntry()
	count := 0
	if isDict {
		for {
			c.expression()
			c.consume(lexer.TokenColon, "expected ':' in dict literal")
			c.expression()
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
		c.consume(lexer.TokenRightBrace, "expected '}' after dict literal")
		c.emitOpUint16(bytecode.OpDict, uint16(count))
	} else {
		for {
			c.expression()
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
		c.consume(lexer.TokenRightBrace, "expected '}' after set literal")
		c.emitOpUint16(bytecode.OpSet, uint16(count))
	}
}

// looksLikeDictEntry uses the two-token lookahead buffer to decide
// dict-vs-set without consuming or rewinding any tokens: identifiers and
// strings can be immediately followed by ':' in a dict entry, which the
// `next` token already exposes.
func (c *Compiler) looksLikeDictEntry() bool {
	switch c.cur.Type {
	case lexer.TokenIdentifier, lexer.TokenString, lexer.TokenRawString, lexer.TokenNumber:
		return c.next.Type == lexer.TokenColon
	case lexer.TokenLeftParen:
		return false
	}
	return false
}

func variable(c *Compiler, canAssign bool) {
	name := c.cur.Literal
	c.advance()
	c.namedVariable(name, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.Op
	var arg uint16
	var isLocalOrUpvalue bool

	if slot, ok := c.resolveLocal(name); ok {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
		arg = uint16(slot)
		isLocalOrUpvalue = true
	} else if slot, ok := c.resolveUpvalue(name); ok {
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
		arg = uint16(slot)
		isLocalOrUpvalue = true
	} else {
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
		arg = c.makeConstant(name)
	}

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.checkConstAssign(name, isLocalOrUpvalue)
		c.expression()
		c.emitSetOp(setOp, arg)
	case canAssign && isCompoundAssignOp(c.cur.Type):
		c.checkConstAssign(name, isLocalOrUpvalue)
		op := c.cur.Type
		c.advance()
		c.emitGetOp(getOp, arg)
		c.expression()
		emitCompoundOp(c, op)
		c.emitSetOp(setOp, arg)
	case canAssign && c.cur.Type == lexer.TokenIncrement:
		c.advance()
		c.emitGetOp(getOp, arg)
		c.emitConstant(value.Number_(1))
		c.emitOp(bytecode.OpAdd)
		c.emitSetOp(setOp, arg)
	case canAssign && c.cur.Type == lexer.TokenDecrement:
		c.advance()
		c.emitGetOp(getOp, arg)
		c.emitConstant(value.Number_(1))
		c.emitOp(bytecode.OpSubtract)
		c.emitSetOp(setOp, arg)
	default:
		c.emitGetOp(getOp, arg)
	}
}

func (c *Compiler) checkConstAssign(name string, isLocal bool) {
	if !isLocal {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].isConst {
				c.errorAtCur("cannot assign to const variable '" + name + "'")
			}
			return
		}
	}
}

func (c *Compiler) emitGetOp(op bytecode.Op, arg uint16) {
	if op == bytecode.OpGetLocal || op == bytecode.OpGetUpvalue {
		c.emitOpByte(op, byte(arg))
	} else {
		c.emitOpUint16(op, arg)
	}
}

func (c *Compiler) emitSetOp(op bytecode.Op, arg uint16) {
	if op == bytecode.OpSetLocal || op == bytecode.OpSetUpvalue {
		c.emitOpByte(op, byte(arg))
	} else {
		c.emitOpUint16(op, arg)
	}
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.errorAtCur("cannot read local variable '" + name + "' in its own initializer")
			}
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue recurses into the enclosing compiler per spec.md
// §4.2's flattened-closure scheme: capturing a local marks it captured
// in the *enclosing* compiler, and every intermediate function gets its
// own upvalue descriptor chaining down to the defining scope.
func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return -1, false
	}
	if slot, ok := c.enclosing.resolveLocal(name); ok {
		c.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(slot, true), true
	}
	if slot, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(slot, false), true
	}
	return -1, false
}

func (c *Compiler) addUpvalue(index int, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, value.UpvalueDesc{Index: index, IsLocal: isLocal})
	return len(c.upvalues) - 1
}

func this_(c *Compiler, _ bool) {
	if c.class == nil {
		c.errorAtCur("cannot use 'this' outside of a class method")
	}
	c.advance()
	c.namedVariable("this", false)
}

func super_(c *Compiler, _ bool) {
	if c.class == nil {
		c.errorAtCur("cannot use 'super' outside of a class method")
	} else if !c.class.hasSuper {
		c.errorAtCur("cannot use 'super' in a class with no superclass")
	}
	c.advance()
	c.consume(lexer.TokenDot, "expected '.' after 'super'")
	c.consume(lexer.TokenIdentifier, "expected superclass method name")
	name := c.lastIdent
	nameConst := c.makeConstant(name)

	c.namedVariable("this", false)
	if c.match(lexer.TokenLeftParen) {
		argc := c.argumentList(lexer.TokenRightParen)
		c.namedVariable("super", false)
		c.emitOpUint16(bytecode.OpSuperInvoke, nameConst)
		c.emitByte(byte(argc))
	} else {
		c.namedVariable("super", false)
		c.emitOpUint16(bytecode.OpGetSuper, nameConst)
	}
}

// fnLiteral compiles an anonymous function expression `def(...) { ... }`
// or `def(...) => expr`. function() itself detects which form follows the
// parameter list and switches the compiled Kind accordingly.
func fnLiteral(c *Compiler, _ bool) {
	c.advance() // consume 'def'
	c.function(value.FnFunction, "")
}
