// Package bytecode defines the instruction set the compiler emits and the
// VM executes. Every opcode operates on an implicit value stack; operands
// are encoded inline in the instruction stream rather than boxed in an
// Instruction struct, matching the byte-oriented chunk layout the
// original implementation and spec.md §4.2/§4.3 describe.
package bytecode

type Op byte

const (
	OpConstant Op = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpDup
	OpPopN // pop N values, operand = count (1 byte)

	OpGetLocal
	OpSetLocal
	OpGetUpvalue
	OpSetUpvalue
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetProperty
	OpSetProperty
	OpGetPrivateProperty
	OpSetPrivateProperty
	OpGetSuper

	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpPower
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpNot
	OpNegate

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpLoop

	OpCall        // operand: arg count
	OpInvoke      // operands: name constant index (2 bytes), arg count (1 byte)
	OpSuperInvoke // operands: name constant index (2 bytes), arg count (1 byte)

	OpClosure // operand: function constant index (2 bytes), followed by per-upvalue (isLocal byte, index byte) pairs
	OpCloseUpvalue

	OpReturn

	OpClass        // operands: name constant index (2 bytes), class kind (1 byte)
	OpSubclass     // pops superclass then pushes class with it installed; same operands as OpClass
	OpMethod
	OpStaticMethod
	OpPrivateMethod
	OpUseTrait
	OpAbstractMethod // operand: abstract-signature Function constant index (2 bytes)
	OpClassConstant  // operand: constant name index (2 bytes); pops the value
	OpEndClass       // no operand; checks the class-on-stack's abstract overrides

	OpList // operand: element count
	OpDict // operand: pair count
	OpSet  // operand: element count
	OpGetIndex
	OpSetIndex
	OpSlice

	OpBuildString // operand: fragment count, for string interpolation

	OpImportModule // operand: name constant index
	OpImportFrom   // operand: module-name constant index; followed by names
	OpExportName

	OpOpenFile // with-statement: operand unused, operands on stack
	OpCloseFile

	OpMakeEnum
	OpEnumValue

	OpPrint
	OpHalt
)

var opNames = map[Op]string{
	OpConstant: "CONSTANT", OpNil: "NIL", OpTrue: "TRUE", OpFalse: "FALSE",
	OpPop: "POP", OpDup: "DUP", OpPopN: "POPN",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetUpvalue: "GET_UPVALUE", OpSetUpvalue: "SET_UPVALUE",
	OpGetGlobal: "GET_GLOBAL", OpDefineGlobal: "DEFINE_GLOBAL", OpSetGlobal: "SET_GLOBAL",
	OpGetProperty: "GET_PROPERTY", OpSetProperty: "SET_PROPERTY",
	OpGetPrivateProperty: "GET_PRIVATE_PROPERTY", OpSetPrivateProperty: "SET_PRIVATE_PROPERTY",
	OpGetSuper: "GET_SUPER",
	OpEqual: "EQUAL", OpNotEqual: "NOT_EQUAL",
	OpGreater: "GREATER", OpGreaterEqual: "GREATER_EQUAL",
	OpLess: "LESS", OpLessEqual: "LESS_EQUAL",
	OpAdd: "ADD", OpSubtract: "SUBTRACT", OpMultiply: "MULTIPLY", OpDivide: "DIVIDE",
	OpModulo: "MODULO", OpPower: "POWER",
	OpBitAnd: "BIT_AND", OpBitOr: "BIT_OR", OpBitXor: "BIT_XOR",
	OpShiftLeft: "SHL", OpShiftRight: "SHR",
	OpNot: "NOT", OpNegate: "NEGATE",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpJumpIfTrue: "JUMP_IF_TRUE", OpLoop: "LOOP",
	OpCall: "CALL", OpInvoke: "INVOKE", OpSuperInvoke: "SUPER_INVOKE",
	OpClosure: "CLOSURE", OpCloseUpvalue: "CLOSE_UPVALUE",
	OpReturn: "RETURN",
	OpClass: "CLASS", OpSubclass: "SUBCLASS", OpMethod: "METHOD",
	OpStaticMethod: "STATIC_METHOD", OpPrivateMethod: "PRIVATE_METHOD", OpUseTrait: "USE_TRAIT",
	OpAbstractMethod: "ABSTRACT_METHOD", OpClassConstant: "CLASS_CONSTANT", OpEndClass: "END_CLASS",
	OpList: "LIST", OpDict: "DICT", OpSet: "SET_LIT",
	OpGetIndex: "GET_INDEX", OpSetIndex: "SET_INDEX", OpSlice: "SLICE",
	OpBuildString:  "BUILD_STRING",
	OpImportModule: "IMPORT_MODULE", OpImportFrom: "IMPORT_FROM", OpExportName: "EXPORT_NAME",
	OpOpenFile: "OPEN_FILE", OpCloseFile: "CLOSE_FILE",
	OpMakeEnum: "MAKE_ENUM", OpEnumValue: "ENUM_VALUE",
	OpPrint: "PRINT", OpHalt: "HALT",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// OperandWidths gives the number of operand bytes that immediately
// follow each opcode in the instruction stream, for disassembly and for
// jump-patching arithmetic. Opcodes with variable-length operand tails
// (OpClosure) are handled specially by the caller.
var OperandWidths = map[Op]int{
	OpConstant: 2, OpPopN: 1,
	OpGetLocal: 1, OpSetLocal: 1,
	OpGetUpvalue: 1, OpSetUpvalue: 1,
	OpGetGlobal: 2, OpDefineGlobal: 2, OpSetGlobal: 2,
	OpGetProperty: 2, OpSetProperty: 2,
	OpGetPrivateProperty: 2, OpSetPrivateProperty: 2,
	OpGetSuper: 2,
	OpJump: 2, OpJumpIfFalse: 2, OpJumpIfTrue: 2, OpLoop: 2,
	OpCall:         1,
	OpInvoke:       3,
	OpSuperInvoke:  3,
	OpClosure:      2,
	OpClass:        3, // name constant (2 bytes) + class kind (1 byte)
	OpSubclass:     3,
	OpMethod:       2,
	OpStaticMethod: 2, OpPrivateMethod: 2, OpUseTrait: 2,
	OpAbstractMethod: 2, OpClassConstant: 2,
	OpList: 2, OpDict: 2, OpSet: 2,
	OpBuildString:  1,
	OpImportModule: 2, OpImportFrom: 2, OpExportName: 2,
	OpMakeEnum: 2, OpEnumValue: 2,
}

// Chunk is a compiled function body: its instruction stream, constant
// pool, and a parallel line table (one run per source-line change) for
// stack trace reporting.
type Chunk struct {
	Code      []byte
	Constants []interface{}
	Lines     []lineRun
}

type lineRun struct {
	startOffset int
	line        int
}

func NewChunk() *Chunk {
	return &Chunk{}
}

func (c *Chunk) WriteByte(b byte, line int) int {
	c.Code = append(c.Code, b)
	c.recordLine(line)
	return len(c.Code) - 1
}

func (c *Chunk) WriteOp(op Op, line int) int {
	return c.WriteByte(byte(op), line)
}

func (c *Chunk) WriteUint16(v uint16, line int) {
	c.WriteByte(byte(v>>8), line)
	c.WriteByte(byte(v), line)
}

func (c *Chunk) recordLine(line int) {
	if len(c.Lines) > 0 && c.Lines[len(c.Lines)-1].line == line {
		return
	}
	c.Lines = append(c.Lines, lineRun{startOffset: len(c.Code), line: line})
}

// LineAt returns the source line the instruction at offset belongs to.
func (c *Chunk) LineAt(offset int) int {
	line := 0
	for _, run := range c.Lines {
		if run.startOffset > offset {
			break
		}
		line = run.line
	}
	return line
}

func (c *Chunk) AddConstant(v interface{}) uint16 {
	for i, existing := range c.Constants {
		if existing == v {
			return uint16(i)
		}
	}
	c.Constants = append(c.Constants, v)
	return uint16(len(c.Constants) - 1)
}

func (c *Chunk) ReadUint16(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}

func (c *Chunk) PatchUint16(offset int, v uint16) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}
