// Package vm implements the stack-based bytecode interpreter: a
// call-frame stack over a fixed-capacity value stack, arithmetic
// coercion, method/property dispatch, module loading, and fiber
// switching. Struct shape (VM fields, CallFrame{closure,ip,slots},
// push/pop/peek helpers, the read-byte dispatch loop) is grounded in the
// teacher's pkg/vm/vm.go; the opcode semantics themselves follow
// spec.md §4.3 rather than the teacher's original instruction set.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/compiler"
	"github.com/kristofer/vellum/pkg/table"
	"github.com/kristofer/vellum/pkg/value"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxStackSlots = 64 * 256 // 16384, per spec.md §6
const framesInitialCap = 64

// CallFrame is one active invocation: the running closure, its
// instruction pointer into that closure's chunk, and the base index
// into the owning fiber's value stack at which its locals begin.
type CallFrame struct {
	closure *value.Closure
	ip      int
	slots   int
}

// ModuleLoader resolves an import path to source text, letting the CLI
// wire in filesystem semantics without the VM importing "os" directly
// for anything but the default loader below.
type ModuleLoader func(path string) (string, error)

// VM owns all process-wide interpreter state: the globals table, the
// module cache, the string intern table, the live fiber, and the
// allocation list the collector sweeps.
type VM struct {
	globals *table.Table
	modules map[string]*value.Obj
	strings *table.InternTable

	current *value.Fiber
	main    *value.Fiber

	objects        *value.Obj
	bytesAllocated int
	nextGC         int
	stressGC       bool
	grayStack      []*value.Obj

	initString  *value.Obj
	fiberClass  *value.Class
	resultClass *value.Class

	// openResources tracks with-statement file handles not yet closed by
	// their normal-path OpCloseFile, so a runtime error unwinding the
	// dispatch loop can still close them (see closeDanglingResources).
	openResources []*value.File

	Stdout io.Writer
	Stderr io.Writer
	Log    *zap.SugaredLogger

	LoadModule ModuleLoader

	// LastValue is the value the main fiber's top-level script returned
	// (nil, since top-level code cannot return a value). The REPL does not
	// read it; it echoes results through Global instead.
	LastValue value.Value

	// Trace, when set, writes one disassembled line per executed
	// instruction to Stderr — the CLI's `--trace` flag, replacing the
	// teacher's paused breakpoint prompt with an always-running log.
	Trace bool
}

// New builds a VM with the standard global natives installed.
func New(log *zap.SugaredLogger) *VM {
	vm := &VM{
		globals:    table.New(),
		modules:    map[string]*value.Obj{},
		strings:    table.NewInternTable(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Log:        log,
		nextGC:     1 << 20,
		LoadModule: defaultModuleLoader,
	}
	vm.initString = vm.strings.Intern("init")
	vm.installStandardGlobals()
	vm.installFiberClass()
	vm.installResultClass()
	return vm
}

func defaultModuleLoader(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "cannot open module %q", path)
	}
	return string(b), nil
}

// SetStressGC forces a collection before every allocation, per spec.md
// §4.4's stress-GC opt-in mode.
func (vm *VM) SetStressGC(on bool) { vm.stressGC = on }

// Global looks up a top-level binding, used by the REPL to read back a
// synthetic result variable after evaluating a bare expression.
func (vm *VM) Global(name string) (value.Value, bool) { return vm.globals.Get(name) }

// --- fiber/stack plumbing ------------------------------------------------

func (vm *VM) newFiber(caller *value.Fiber) *value.Fiber {
	f := &value.Fiber{
		ID:       uuid.NewString(),
		State:    value.FiberSuspended,
		Caller:   caller,
		Stack:    make([]value.Value, maxStackSlots),
		StackTop: 0,
	}
	f.Frames = make([]CallFrame, 0, framesInitialCap)
	return f
}

func frames(f *value.Fiber) []CallFrame      { return f.Frames.([]CallFrame) }
func setFrames(f *value.Fiber, fr []CallFrame) { f.Frames = fr }

func (vm *VM) push(v value.Value) {
	f := vm.current
	f.Stack[f.StackTop] = v
	f.StackTop++
}

func (vm *VM) pop() value.Value {
	f := vm.current
	f.StackTop--
	return f.Stack[f.StackTop]
}

func (vm *VM) peek(distance int) value.Value {
	f := vm.current
	return f.Stack[f.StackTop-1-distance]
}

func (vm *VM) currentFrame() *CallFrame {
	fr := frames(vm.current)
	return &fr[len(fr)-1]
}

func (vm *VM) pushFrame(cl *value.Closure, slots int) *CallFrame {
	fr := append(frames(vm.current), CallFrame{closure: cl, slots: slots})
	setFrames(vm.current, fr)
	return &fr[len(fr)-1]
}

func (vm *VM) popFrame() {
	fr := frames(vm.current)
	setFrames(vm.current, fr[:len(fr)-1])
}

func (vm *VM) frameDepth() int { return len(frames(vm.current)) }

// --- top-level entry points ----------------------------------------------

// Interpret compiles and runs a source unit as the main fiber's script.
func (vm *VM) Interpret(source, moduleName string) error {
	fn, err := compiler.Compile(source, moduleName)
	if err != nil {
		return err
	}
	closure := &value.Closure{Function: fn}
	vm.main = vm.newFiber(nil)
	vm.main.State = value.FiberRunning
	vm.current = vm.main
	vm.push(value.Obj_(vm.alloc(value.KindClosure, closure)))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) chunkOf(cl *value.Closure) *bytecode.Chunk {
	return cl.Function.Chunk.(*bytecode.Chunk)
}

func (vm *VM) readByte() byte {
	frame := vm.currentFrame()
	b := vm.chunkOf(frame.closure).Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readUint16() uint16 {
	frame := vm.currentFrame()
	v := vm.chunkOf(frame.closure).ReadUint16(frame.ip)
	frame.ip += 2
	return v
}

func (vm *VM) readConstant() interface{} {
	idx := vm.readUint16()
	return vm.chunkOf(vm.currentFrame().closure).Constants[idx]
}

func (vm *VM) currentLine() int {
	frame := vm.currentFrame()
	return vm.chunkOf(frame.closure).LineAt(frame.ip - 1)
}

// run is the main dispatch loop: a flat switch over the opcode set,
// matching spec.md §4.3's "loop { match read_byte() { … } }" contract.
// Any error return unwinds straight out of the loop with no catch
// construct along the way, so a deferred sweep closes whatever
// with-resources were still open at the point of failure.
func (vm *VM) run() (err error) {
	defer func() {
		if err != nil {
			vm.closeDanglingResources()
		}
	}()
	for {
		if vm.stressGC {
			vm.collectGarbage()
		}
		if vm.Trace {
			vm.TraceInstruction(vm.Stderr)
		}
		op := bytecode.Op(vm.readByte())
		switch op {
		case bytecode.OpConstant:
			vm.push(vm.constantValue(vm.readConstant()))

		case bytecode.OpNil:
			vm.push(value.NilVal)
		case bytecode.OpTrue:
			vm.push(value.TrueVal)
		case bytecode.OpFalse:
			vm.push(value.FalseVal)
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			vm.push(vm.peek(0))
		case bytecode.OpPopN:
			n := int(vm.readByte())
			vm.current.StackTop -= n

		case bytecode.OpGetLocal:
			slot := int(vm.readByte())
			vm.push(vm.current.Stack[vm.currentFrame().slots+slot])
		case bytecode.OpSetLocal:
			slot := int(vm.readByte())
			vm.current.Stack[vm.currentFrame().slots+slot] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			slot := int(vm.readByte())
			vm.push(vm.currentFrame().closure.Upvalues[slot].Get())
		case bytecode.OpSetUpvalue:
			slot := int(vm.readByte())
			vm.currentFrame().closure.Upvalues[slot].Set(vm.peek(0))

		case bytecode.OpGetGlobal:
			name := vm.readConstant().(string)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := vm.readConstant().(string)
			vm.globals.Set(name, vm.pop())
		case bytecode.OpSetGlobal:
			name := vm.readConstant().(string)
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.globals.Set(name, vm.peek(0))

		case bytecode.OpGetProperty:
			name := vm.readConstant().(string)
			if err := vm.getProperty(name, false); err != nil {
				return err
			}
		case bytecode.OpSetProperty:
			name := vm.readConstant().(string)
			if err := vm.setProperty(name, false); err != nil {
				return err
			}
		case bytecode.OpGetPrivateProperty:
			name := vm.readConstant().(string)
			if err := vm.getProperty(name, true); err != nil {
				return err
			}
		case bytecode.OpSetPrivateProperty:
			name := vm.readConstant().(string)
			if err := vm.setProperty(name, true); err != nil {
				return err
			}
		case bytecode.OpGetSuper:
			name := vm.readConstant().(string)
			if err := vm.getSuper(name); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool_(vm.valuesEqual(a, b)))
		case bytecode.OpNotEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool_(!vm.valuesEqual(a, b)))
		case bytecode.OpGreater, bytecode.OpGreaterEqual, bytecode.OpLess, bytecode.OpLessEqual:
			if err := vm.compare(op); err != nil {
				return err
			}

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide, bytecode.OpModulo, bytecode.OpPower:
			if err := vm.numericBinary(op); err != nil {
				return err
			}
		case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShiftLeft, bytecode.OpShiftRight:
			if err := vm.bitwiseBinary(op); err != nil {
				return err
			}
		case bytecode.OpNot:
			vm.push(value.Bool_(vm.pop().IsFalsey()))
		case bytecode.OpNegate:
			v := vm.pop()
			if !v.IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number_(-v.AsNumber()))

		case bytecode.OpJump:
			offset := vm.readUint16()
			vm.currentFrame().ip += int(offset)
		case bytecode.OpJumpIfFalse:
			offset := vm.readUint16()
			if vm.peek(0).IsFalsey() {
				vm.currentFrame().ip += int(offset)
			}
		case bytecode.OpJumpIfTrue:
			offset := vm.readUint16()
			if !vm.peek(0).IsFalsey() {
				vm.currentFrame().ip += int(offset)
			}
		case bytecode.OpLoop:
			offset := vm.readUint16()
			vm.currentFrame().ip -= int(offset)

		case bytecode.OpCall:
			argc := int(vm.readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
		case bytecode.OpInvoke:
			name := vm.readConstant().(string)
			argc := int(vm.readByte())
			if err := vm.invoke(name, argc, false); err != nil {
				return err
			}
		case bytecode.OpSuperInvoke:
			name := vm.readConstant().(string)
			argc := int(vm.readByte())
			if err := vm.invoke(name, argc, true); err != nil {
				return err
			}

		case bytecode.OpClosure:
			if err := vm.makeClosure(); err != nil {
				return err
			}
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.current.StackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			frame := vm.currentFrame()
			vm.closeUpvalues(frame.slots)
			vm.popFrame()
			if vm.frameDepth() == 0 {
				vm.pop() // the top-level closure
				if vm.current.Caller != nil {
					return vm.finishFiber(result)
				}
				vm.LastValue = result
				return nil
			}
			vm.current.StackTop = frame.slots
			vm.push(result)

		case bytecode.OpClass:
			name := vm.readConstant().(string)
			kind := value.ClassKind(vm.readByte())
			cls := value.NewClass(name)
			cls.Kind = kind
			vm.push(value.Obj_(vm.alloc(value.KindClass, cls)))
		case bytecode.OpSubclass:
			name := vm.readConstant().(string)
			kind := value.ClassKind(vm.readByte())
			if err := vm.subclass(name, kind); err != nil {
				return err
			}
		case bytecode.OpMethod:
			vm.defineMethod(vm.readConstant().(string), methodPublic)
		case bytecode.OpStaticMethod:
			vm.defineMethod(vm.readConstant().(string), methodStatic)
		case bytecode.OpPrivateMethod:
			vm.defineMethod(vm.readConstant().(string), methodPrivate)
		case bytecode.OpUseTrait:
			if err := vm.useTrait(vm.readConstant().(string)); err != nil {
				return err
			}

		case bytecode.OpList:
			n := int(vm.readUint16())
			items := make([]value.Value, n)
			copy(items, vm.current.Stack[vm.current.StackTop-n:vm.current.StackTop])
			vm.current.StackTop -= n
			vm.push(value.Obj_(vm.alloc(value.KindList, &value.List{Items: items})))
		case bytecode.OpDict:
			n := int(vm.readUint16())
			d := value.NewDict()
			base := vm.current.StackTop - n*2
			for i := 0; i < n; i++ {
				d.Set(vm.current.Stack[base+i*2], vm.current.Stack[base+i*2+1])
			}
			vm.current.StackTop = base
			vm.push(value.Obj_(vm.alloc(value.KindDict, d)))
		case bytecode.OpSet:
			n := int(vm.readUint16())
			s := value.NewSet()
			base := vm.current.StackTop - n
			for i := 0; i < n; i++ {
				s.Add(vm.current.Stack[base+i])
			}
			vm.current.StackTop = base
			vm.push(value.Obj_(vm.alloc(value.KindSet, s)))
		case bytecode.OpGetIndex:
			if err := vm.getIndex(); err != nil {
				return err
			}
		case bytecode.OpSetIndex:
			if err := vm.setIndex(); err != nil {
				return err
			}
		case bytecode.OpSlice:
			if err := vm.slice(); err != nil {
				return err
			}

		case bytecode.OpBuildString:
			n := int(vm.readByte())
			vm.buildString(n)

		case bytecode.OpImportModule:
			name := vm.readConstant().(string)
			if err := vm.importModule(name); err != nil {
				return err
			}
		case bytecode.OpImportFrom:
			name := vm.readConstant().(string)
			if err := vm.importModule(name); err != nil {
				return err
			}
		case bytecode.OpExportName:
			name := vm.readConstant().(string)
			if err := vm.exportName(name); err != nil {
				return err
			}

		case bytecode.OpOpenFile:
			if err := vm.openFile(); err != nil {
				return err
			}
		case bytecode.OpCloseFile:
			if err := vm.closeFile(); err != nil {
				return err
			}

		case bytecode.OpMakeEnum:
			name := vm.readConstant().(string)
			vm.push(value.Obj_(vm.alloc(value.KindEnum, &value.Enum{Name: name, Values: map[string]value.Value{}})))
		case bytecode.OpEnumValue:
			name := vm.readConstant().(string)
			vm.enumValue(name)

		case bytecode.OpAbstractMethod:
			vm.defineAbstract(vm.readConstant().(*value.Function))
		case bytecode.OpClassConstant:
			vm.defineClassConstant(vm.readConstant().(string))
		case bytecode.OpEndClass:
			if err := vm.checkAbstractsSatisfied(vm.peek(0).AsObj().Payload.(*value.Class)); err != nil {
				return err
			}

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case bytecode.OpHalt:
			return nil

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

// constantValue resolves a chunk constant into a runtime Value; object
// constants (strings, functions) are stored unwrapped in the constant
// pool by the compiler and boxed here on first load.
func (vm *VM) constantValue(c interface{}) value.Value {
	switch cv := c.(type) {
	case value.Value:
		return cv
	case string:
		return value.Obj_(vm.strings.Intern(cv))
	case float64:
		return value.Number_(cv)
	case *value.Function:
		return value.Obj_(vm.alloc(value.KindFunction, cv))
	default:
		return value.NilVal
	}
}

func (vm *VM) finishFiber(result value.Value) error {
	done := vm.current
	done.State = value.FiberDone
	caller := done.Caller
	vm.current = caller
	caller.State = value.FiberRunning
	vm.push(result)
	return nil
}
