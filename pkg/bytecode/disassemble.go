package bytecode

import (
	"fmt"
	"strings"

	"github.com/kristofer/vellum/pkg/value"
)

// Disassemble renders a Chunk as a human-readable instruction listing,
// used by `vellum disassemble` and by crash-dump diagnostics. It replaces
// the teacher's binary .sg format dump with a text-only listing, since
// the bytecode itself is never persisted across runs.
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		offset = disassembleInstruction(&b, c, offset)
	}
	return b.String()
}

// DisassembleOne renders the single instruction at offset, for a live
// execution trace printed one line per step rather than a full listing.
func DisassembleOne(c *Chunk, offset int) string {
	var b strings.Builder
	disassembleInstruction(&b, c, offset)
	return b.String()
}

func disassembleInstruction(b *strings.Builder, c *Chunk, offset int) int {
	fmt.Fprintf(b, "%04d %4d ", offset, c.LineAt(offset))
	op := Op(c.Code[offset])
	fmt.Fprintf(b, "%-16s", op.String())

	switch op {
	case OpClosure:
		idx := c.ReadUint16(offset + 1)
		fmt.Fprintf(b, " %4d %s\n", idx, constantRepr(c.Constants, int(idx)))
		next := offset + 3
		if fn, ok := c.Constants[idx].(*value.Function); ok {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[next]
				index := c.Code[next+1]
				local := "upvalue"
				if isLocal == 1 {
					local = "local"
				}
				fmt.Fprintf(b, "%04d      |                     %s %d\n", next, local, index)
				next += 2
			}
		}
		return next
	case OpInvoke, OpSuperInvoke:
		idx := c.ReadUint16(offset + 1)
		argc := c.Code[offset+3]
		fmt.Fprintf(b, " %4d %-20s (%d args)\n", idx, constantRepr(c.Constants, int(idx)), argc)
		return offset + 4
	case OpClass, OpSubclass:
		idx := c.ReadUint16(offset + 1)
		kind := value.ClassKind(c.Code[offset+3])
		fmt.Fprintf(b, " %4d %-20s (%s)\n", idx, constantRepr(c.Constants, int(idx)), kind)
		return offset + 4
	}

	width, ok := OperandWidths[op]
	if !ok {
		b.WriteString("\n")
		return offset + 1
	}
	switch width {
	case 0:
		b.WriteString("\n")
		return offset + 1
	case 1:
		fmt.Fprintf(b, " %4d\n", c.Code[offset+1])
		return offset + 2
	case 2:
		idx := c.ReadUint16(offset + 1)
		switch op {
		case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty, OpSetProperty,
			OpGetPrivateProperty, OpSetPrivateProperty, OpGetSuper, OpMethod, OpStaticMethod,
			OpPrivateMethod, OpUseTrait, OpAbstractMethod, OpClassConstant,
			OpImportModule, OpImportFrom, OpExportName, OpMakeEnum, OpEnumValue:
			fmt.Fprintf(b, " %4d %s\n", idx, constantRepr(c.Constants, int(idx)))
		case OpJump, OpJumpIfFalse, OpJumpIfTrue:
			fmt.Fprintf(b, " %4d -> %d\n", idx, offset+3+int(idx))
		case OpLoop:
			fmt.Fprintf(b, " %4d -> %d\n", idx, offset+3-int(idx))
		default:
			fmt.Fprintf(b, " %4d\n", idx)
		}
		return offset + 3
	}
	b.WriteString("\n")
	return offset + 1
}

func constantRepr(constants []interface{}, idx int) string {
	if idx < 0 || idx >= len(constants) {
		return "?"
	}
	return fmt.Sprintf("%v", constants[idx])
}
