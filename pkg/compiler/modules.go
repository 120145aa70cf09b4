package compiler

import (
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
)

// importStatement compiles `import "path";` or `import Name;` per
// spec.md §4.2. Both forms emit the same OP_IMPORT_MODULE: the quoted
// path, or the bare identifier as written, is handed to the VM's module
// loader and the loaded source is compiled recursively by the VM. There
// is no table of builtin modules; a bare identifier is resolved by the
// loader exactly like a path. Either way the resulting Module object is
// bound into the current scope under its name.
func (c *Compiler) importStatement() {
	var pathConst uint16
	var bindName string
	if c.check(lexer.TokenString) || c.check(lexer.TokenRawString) {
		pathConst = c.makeConstant(c.cur.Literal)
		bindName = moduleNameFromPath(c.cur.Literal)
		c.advance()
		c.emitOpUint16(bytecode.OpImportModule, pathConst)
	} else {
		c.consume(lexer.TokenIdentifier, "expected module path or name after 'import'")
		bindName = c.lastIdent
		pathConst = c.makeConstant(bindName)
		c.emitOpUint16(bytecode.OpImportModule, pathConst)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after import statement")

	global := uint16(0)
	if c.scopeDepth > 0 {
		c.declareLocal(bindName, false)
		c.markInitialized()
	} else {
		global = c.makeConstant(bindName)
	}
	c.defineVariable(global)
}

// fromImportStatement compiles `from "path" import a, b;`: the module is
// imported (but not itself bound), then one OP_IMPORT_FROM per requested
// name copies that binding into the current scope.
func (c *Compiler) fromImportStatement() {
	var pathConst uint16
	if c.check(lexer.TokenString) || c.check(lexer.TokenRawString) {
		pathConst = c.makeConstant(c.cur.Literal)
		c.advance()
	} else {
		c.consume(lexer.TokenIdentifier, "expected module path or name")
		pathConst = c.makeConstant(c.lastIdent)
	}
	c.consume(lexer.TokenImport, "expected 'import' after module path")

	for {
		c.consume(lexer.TokenIdentifier, "expected imported name")
		name := c.lastIdent
		nameConst := c.makeConstant(name)
		c.emitOpUint16(bytecode.OpImportFrom, pathConst)
		c.emitOpUint16(bytecode.OpExportName, nameConst)

		global := uint16(0)
		if c.scopeDepth > 0 {
			c.declareLocal(name, false)
			c.markInitialized()
		} else {
			global = c.makeConstant(name)
		}
		c.defineVariable(global)

		if !c.match(lexer.TokenComma) {
			break
		}
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after from-import statement")
}

func moduleNameFromPath(path string) string {
	start := 0
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			start = i + 1
			break
		}
	}
	name := path[start:]
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}
