package vm

import (
	"fmt"
	"io"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/value"
)

// DumpStack writes the current fiber's value stack, top of stack first,
// the non-interactive counterpart of the teacher's ShowStack debugger
// command — used by crash dumps instead of a paused interactive prompt.
func (vm *VM) DumpStack(w io.Writer) {
	f := vm.current
	fmt.Fprintln(w, "stack (top to bottom):")
	if f.StackTop == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	for i := f.StackTop - 1; i >= 0; i-- {
		fmt.Fprintf(w, "  [%d] %s\n", i, f.Stack[i].String())
	}
}

// DumpCallStack writes every active frame on the current fiber,
// outermost first — the reverse of the innermost-first order that
// RuntimeError's stack trace uses.
func (vm *VM) DumpCallStack(w io.Writer) {
	fr := frames(vm.current)
	fmt.Fprintln(w, "call stack (outermost to innermost):")
	if len(fr) == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	for i, f := range fr {
		name := f.closure.Function.Name
		if name == "" {
			name = "script"
		}
		fmt.Fprintf(w, "  #%d %s [line %d]\n", i, name, vm.chunkOf(f.closure).LineAt(f.ip-1))
	}
}

// DumpGlobals writes every bound top-level name. CrashDump does not
// include it, so `vellum run --trace` output does not list globals.
func (vm *VM) DumpGlobals(w io.Writer) {
	fmt.Fprintln(w, "globals:")
	empty := true
	vm.globals.Each(func(name string, v value.Value) {
		empty = false
		fmt.Fprintf(w, "  %s = %s\n", name, v.String())
	})
	if empty {
		fmt.Fprintln(w, "  (none)")
	}
}

// TraceInstruction writes a single disassembled line for the
// instruction about to execute in the current frame, the mechanism
// `vellum run --trace` uses to print an execution trace as the program
// runs instead of pausing at a breakpoint the way the teacher's debugger
// did.
func (vm *VM) TraceInstruction(w io.Writer) {
	frame := vm.currentFrame()
	chunk := vm.chunkOf(frame.closure)
	fmt.Fprint(w, bytecode.DisassembleOne(chunk, frame.ip))
}

// CrashDump writes a full diagnostic snapshot of the current fiber to w,
// used by the CLI when a RuntimeError reaches the top level with
// --trace enabled.
func (vm *VM) CrashDump(w io.Writer) {
	vm.DumpCallStack(w)
	vm.DumpStack(w)
}
