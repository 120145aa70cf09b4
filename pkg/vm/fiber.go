package vm

import "github.com/kristofer/vellum/pkg/value"

// installFiberClass registers the single builtin "Fiber" class that
// backs Fiber.new/fiber.call/Fiber.yield, per spec.md §4.3/§5. It is a
// real *value.Class (so normal OP_INVOKE dispatch finds it via the
// usual global lookup) but its methods are intercepted directly in
// invoke() rather than compiled closures, since switching fibers
// suspends/resumes a different stack instead of returning synchronously.
func (vm *VM) installFiberClass() {
	cls := value.NewClass("Fiber")
	vm.fiberClass = cls
	vm.globals.Set("Fiber", value.Obj_(vm.alloc(value.KindClass, cls)))
}

// fiberClassInvoke handles calls made directly on the Fiber class value:
// `Fiber.new(closure)` and `Fiber.yield(v)`.
func (vm *VM) fiberClassInvoke(name string, argc int) error {
	switch name {
	case "new":
		if argc != 1 {
			return vm.runtimeError("Expected 1 argument but got %d.", argc)
		}
		entryVal := vm.pop()
		vm.pop() // the Fiber class receiver
		if entryVal.Kind() != value.KindClosure {
			return vm.runtimeError("Fiber.new() requires a function argument.")
		}
		f := vm.newFiber(nil)
		f.Entry = entryVal.AsObj().Payload.(*value.Closure)
		vm.push(value.Obj_(vm.alloc(value.KindFiber, f)))
		return nil

	case "yield":
		if argc != 1 {
			return vm.runtimeError("Expected 1 argument but got %d.", argc)
		}
		v := vm.pop()
		vm.pop() // the Fiber class receiver
		current := vm.current
		if current.Caller == nil {
			return vm.runtimeError("Cannot yield from the main fiber.")
		}
		current.State = value.FiberSuspended
		caller := current.Caller
		caller.State = value.FiberRunning
		vm.current = caller
		vm.push(v)
		return nil
	}
	return vm.runtimeError("Undefined static method '%s'.", name)
}

// fiberCall implements `fiber.call(v)`: switches execution to target,
// starting its entry closure on first call or resuming it with v as the
// return value of the Fiber.yield() it is suspended in.
func (vm *VM) fiberCall(target *value.Fiber, argc int) error {
	if argc != 1 {
		return vm.runtimeError("Expected 1 argument but got %d.", argc)
	}
	if target.State == value.FiberDone {
		return vm.runtimeError("Cannot call a finished fiber.")
	}
	v := vm.pop()
	vm.pop() // the fiber receiver

	caller := vm.current
	caller.State = value.FiberSuspended
	target.Caller = caller
	target.State = value.FiberRunning
	vm.current = target

	if len(frames(target)) == 0 {
		vm.push(value.Obj_(vm.alloc(value.KindClosure, target.Entry)))
		vm.push(v)
		return vm.call(target.Entry, 1)
	}
	vm.push(v)
	return nil
}
