package vm

import "github.com/kristofer/vellum/pkg/value"

// installResultClass registers the builtin "Result" class that backs
// Result.Ok/Result.Error construction, per spec.md §3/§7. Like Fiber, it
// is a real *value.Class so OP_INVOKE dispatch finds it via the usual
// global lookup, but its static constructors are intercepted directly
// rather than compiled closures, since they allocate a *value.Result
// instead of running vellum bytecode.
func (vm *VM) installResultClass() {
	cls := value.NewClass("Result")
	vm.resultClass = cls
	vm.globals.Set("Result", value.Obj_(vm.alloc(value.KindClass, cls)))
}

// resultClassInvoke handles calls made directly on the Result class
// value: `Result.Ok(v)` and `Result.Error(msg)`.
func (vm *VM) resultClassInvoke(name string, argc int) error {
	switch name {
	case "Ok", "Error":
		if argc != 1 {
			return vm.runtimeError("Expected 1 argument but got %d.", argc)
		}
		v := vm.pop()
		vm.pop() // the Result class receiver
		r := &value.Result{Success: name == "Ok", Value: v}
		vm.push(value.Obj_(vm.alloc(value.KindResult, r)))
		return nil
	}
	return vm.runtimeError("Undefined static method '%s'.", name)
}

// resultMatch implements `result.match(onOk, onErr)`: picks the callback
// for the result's variant and hands it to the normal call machinery
// instead of resolving it synchronously, since the dispatch loop has no
// way to run a callee's bytecode except by pushing a frame and letting
// run()'s own loop execute it (the non-reentrancy rule fiberCall also
// follows).
func (vm *VM) resultMatch(r *value.Result, argc int) error {
	if argc != 2 {
		return vm.runtimeError("Expected 2 arguments but got %d.", argc)
	}
	errCb := vm.pop()
	okCb := vm.pop()
	vm.pop() // the result receiver
	cb := okCb
	if !r.Success {
		cb = errCb
	}
	vm.push(cb)
	vm.push(r.Value)
	return vm.callValue(cb, 1)
}
