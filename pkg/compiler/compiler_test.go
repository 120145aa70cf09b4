package compiler

import (
	"testing"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileArithmeticEmitsConstantsAndAdd(t *testing.T) {
	fn, err := Compile(`print(2 + 3 * 4);`, "test")
	require.NoError(t, err)
	chunk := fn.Chunk.(*bytecode.Chunk)
	assert.Contains(t, chunk.Code, byte(bytecode.OpAdd))
	assert.Contains(t, chunk.Code, byte(bytecode.OpMultiply))
	assert.Contains(t, chunk.Code, byte(bytecode.OpPrint))
}

func TestCompilePrecedenceMultiplyBeforeAdd(t *testing.T) {
	fn, err := Compile(`print(2 + 3 * 4);`, "test")
	require.NoError(t, err)
	chunk := fn.Chunk.(*bytecode.Chunk)
	var mulIdx, addIdx = -1, -1
	for i, b := range chunk.Code {
		switch bytecode.Op(b) {
		case bytecode.OpMultiply:
			if mulIdx == -1 {
				mulIdx = i
			}
		case bytecode.OpAdd:
			if addIdx == -1 {
				addIdx = i
			}
		}
	}
	require.NotEqual(t, -1, mulIdx)
	require.NotEqual(t, -1, addIdx)
	assert.Less(t, mulIdx, addIdx, "multiply must be emitted (and so evaluated) before add")
}

func TestCompileSyntaxErrorReturnsError(t *testing.T) {
	_, err := Compile(`var x = ;`, "test")
	assert.Error(t, err)
}

func TestCompileUndefinedVariableIsNotACompileError(t *testing.T) {
	// Undefined-variable resolution is a runtime error (spec.md boundary
	// scenario 5), so referencing an unbound global must still compile.
	_, err := Compile(`print(missing);`, "test")
	assert.NoError(t, err)
}

func TestCompileClassWithSuperEmitsSubclassAndSuperInvoke(t *testing.T) {
	fn, err := Compile(`
		class A { greet() { return "A"; } }
		class B < A { greet() { return super.greet() + "B"; } }
	`, "test")
	require.NoError(t, err)
	chunk := fn.Chunk.(*bytecode.Chunk)
	assert.Contains(t, chunk.Code, byte(bytecode.OpSubclass))
	assert.Contains(t, chunk.Code, byte(bytecode.OpSuperInvoke))
}

func TestCompileClosureOverLocalEmitsClosureOp(t *testing.T) {
	fn, err := Compile(`
		def make() { var i = 0; return def() { i = i + 1; return i; }; }
	`, "test")
	require.NoError(t, err)
	chunk := fn.Chunk.(*bytecode.Chunk)
	assert.Contains(t, chunk.Code, byte(bytecode.OpClosure))
}

func TestCompileMismatchedBracesReportsError(t *testing.T) {
	_, err := Compile(`def f() { return 1;`, "test")
	assert.Error(t, err)
}

func TestCompileTraitUseEmitsUseTrait(t *testing.T) {
	fn, err := Compile(`
		trait Greeter { hello() { return "hi"; } }
		class Person { use Greeter; }
	`, "test")
	require.NoError(t, err)
	chunk := fn.Chunk.(*bytecode.Chunk)
	assert.Contains(t, chunk.Code, byte(bytecode.OpUseTrait))
}
