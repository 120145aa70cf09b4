package vm

import "github.com/kristofer/vellum/pkg/value"

// callValue dispatches OP_CALL by the callee's dynamic type, per
// spec.md §4.3's call protocol.
func (vm *VM) callValue(callee value.Value, argc int) error {
	if !callee.IsObj() {
		return vm.runtimeError("Can only call functions and classes.")
	}
	obj := callee.AsObj()
	switch obj.Kind {
	case value.KindClosure:
		return vm.call(obj.Payload.(*value.Closure), argc)
	case value.KindNative:
		return vm.callNative(obj.Payload.(*value.Native), argc)
	case value.KindClass:
		return vm.instantiate(obj.Payload.(*value.Class), argc)
	case value.KindBoundMethod:
		bm := obj.Payload.(*value.BoundMethod)
		base := vm.current.StackTop - argc - 1
		vm.current.Stack[base] = bm.Receiver
		return vm.call(bm.Method, argc)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

// call pushes a new frame for closure, filling any missing optional
// parameters with their default expressions and erroring on arity
// mismatch, per spec.md §4.3.
func (vm *VM) call(closure *value.Closure, argc int) error {
	fn := closure.Function
	required := 0
	optional := 0
	for _, p := range fn.Params {
		if p.HasDefault {
			optional++
		} else {
			required++
		}
	}
	if argc < required {
		return vm.runtimeError("Expected %d arguments but got %d.", required, argc)
	}
	if argc > required+optional {
		return vm.runtimeError("Expected at most %d arguments but got %d.", required+optional, argc)
	}
	base := vm.current.StackTop - argc - 1
	for i := argc; i < required+optional; i++ {
		vm.push(fn.Params[i].Default)
	}
	if vm.frameDepth() >= 256 {
		return vm.runtimeError("Stack overflow.")
	}
	vm.pushFrame(closure, base)
	return nil
}

func (vm *VM) callNative(n *value.Native, argc int) error {
	if n.Arity >= 0 && argc != n.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", n.Arity, argc)
	}
	base := vm.current.StackTop - argc - 1
	args := make([]value.Value, argc+1)
	copy(args, vm.current.Stack[base:vm.current.StackTop])
	result, err := n.Fn(vm, args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.current.StackTop = base
	vm.push(result)
	return nil
}

// instantiate constructs an Instance of class cls, calling init if
// present, per spec.md §4.3's class-call branch. Abstract classes and
// traits are never instantiable: an abstract class may still have
// unoverridden signatures, and a trait is only ever meant to be `use`d.
func (vm *VM) instantiate(cls *value.Class, argc int) error {
	switch cls.Kind {
	case value.ClassAbstract:
		return vm.runtimeError("Cannot instantiate abstract class '%s'.", cls.Name)
	case value.ClassTrait:
		return vm.runtimeError("Cannot instantiate trait '%s'.", cls.Name)
	}
	inst := value.NewInstance(cls)
	base := vm.current.StackTop - argc - 1
	vm.current.Stack[base] = value.Obj_(vm.alloc(value.KindInstance, inst))
	if init, ok := cls.FindMethod("init"); ok {
		return vm.call(init, argc)
	}
	if init, ok := cls.FindPrivateMethod("init"); ok {
		return vm.call(init, argc)
	}
	if argc != 0 {
		return vm.runtimeError("Expected 0 arguments but got %d.", argc)
	}
	return nil
}

// invoke compiles `x.m(args)`: an instance field named m shadows a
// method of the same name, otherwise the method table (superclass-first
// lookup when fromSuper) is consulted. Fiber's `new`/`call`/`yield`
// trio is special-cased here since it suspends/resumes a different
// fiber's stack rather than returning a value synchronously.
func (vm *VM) invoke(name string, argc int, fromSuper bool) error {
	if fromSuper {
		super := vm.pop().AsObj().Payload.(*value.Class)
		receiver := vm.peek(argc)
		return vm.invokeFromClass(super, name, argc, receiver)
	}

	receiver := vm.peek(argc)
	if !receiver.IsObj() {
		return vm.runtimeError("Only instances have methods.")
	}
	obj := receiver.AsObj()

	if obj.Kind == value.KindClass {
		cls := obj.Payload.(*value.Class)
		if cls == vm.fiberClass {
			return vm.fiberClassInvoke(name, argc)
		}
		if cls == vm.resultClass {
			return vm.resultClassInvoke(name, argc)
		}
		if method, ok := cls.FindStaticMethod(name); ok {
			return vm.call(method, argc)
		}
		return vm.runtimeError("Undefined static method '%s'.", name)
	}
	if obj.Kind == value.KindFiber && name == "call" {
		return vm.fiberCall(obj.Payload.(*value.Fiber), argc)
	}
	if obj.Kind == value.KindResult && name == "match" {
		return vm.resultMatch(obj.Payload.(*value.Result), argc)
	}
	if obj.Kind == value.KindInstance {
		inst := obj.Payload.(*value.Instance)
		if name != "" && name[0] == '_' {
			if v, ok := inst.Private[name]; ok {
				return vm.callValue(v, argc)
			}
		} else if v, ok := inst.Fields[name]; ok {
			return vm.callValue(v, argc)
		}
		return vm.invokeFromClass(inst.Class, name, argc, receiver)
	}
	return vm.invokeBuiltin(obj, name, argc, receiver)
}

func (vm *VM) invokeFromClass(cls *value.Class, name string, argc int, receiver value.Value) error {
	var method *value.Closure
	var ok bool
	if len(name) > 0 && name[0] == '_' {
		method, ok = cls.FindPrivateMethod(name)
	} else {
		method, ok = cls.FindMethod(name)
	}
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	return vm.call(method, argc)
}

// getProperty implements OP_GET_PROPERTY(_PRIVATE): instance fields
// first, then a bound method from the class chain.
func (vm *VM) getProperty(name string, private bool) error {
	receiver := vm.peek(0)
	if !receiver.IsObj() {
		return vm.runtimeError("Only instances have properties.")
	}
	obj := receiver.AsObj()
	if obj.Kind == value.KindInstance {
		inst := obj.Payload.(*value.Instance)
		table := inst.Fields
		if private {
			table = inst.Private
		}
		if v, ok := table[name]; ok {
			vm.pop()
			vm.push(v)
			return nil
		}
		var method *value.Closure
		var ok bool
		if private {
			method, ok = inst.Class.FindPrivateMethod(name)
		} else {
			method, ok = inst.Class.FindMethod(name)
		}
		if ok {
			vm.pop()
			vm.push(value.Obj_(vm.alloc(value.KindBoundMethod, &value.BoundMethod{Receiver: receiver, Method: method})))
			return nil
		}
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	if obj.Kind == value.KindModule {
		mod := obj.Payload.(*value.Module)
		if v, ok := mod.Globals[name]; ok {
			vm.pop()
			vm.push(v)
			return nil
		}
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	if obj.Kind == value.KindClass {
		cls := obj.Payload.(*value.Class)
		if v, ok := cls.Constants[name]; ok {
			vm.pop()
			vm.push(v)
			return nil
		}
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	return vm.builtinGetProperty(obj, name)
}

func (vm *VM) setProperty(name string, private bool) error {
	receiver := vm.peek(1)
	if !receiver.IsObj() || receiver.AsObj().Kind != value.KindInstance {
		return vm.runtimeError("Only instances have fields.")
	}
	inst := receiver.AsObj().Payload.(*value.Instance)
	v := vm.pop()
	vm.pop()
	if private {
		inst.Private[name] = v
	} else {
		inst.Fields[name] = v
	}
	vm.push(v)
	return nil
}

func (vm *VM) getSuper(name string) error {
	super := vm.pop().AsObj().Payload.(*value.Class)
	receiver := vm.pop()
	var method *value.Closure
	var ok bool
	if len(name) > 0 && name[0] == '_' {
		method, ok = super.FindPrivateMethod(name)
	} else {
		method, ok = super.FindMethod(name)
	}
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	vm.push(value.Obj_(vm.alloc(value.KindBoundMethod, &value.BoundMethod{Receiver: receiver, Method: method})))
	return nil
}

func (vm *VM) subclass(name string, kind value.ClassKind) error {
	superVal := vm.peek(0)
	if !superVal.IsObj() || superVal.AsObj().Kind != value.KindClass {
		return vm.runtimeError("Superclass must be a class.")
	}
	super := superVal.AsObj().Payload.(*value.Class)
	cls := value.NewClass(name)
	cls.Kind = kind
	cls.Super = super
	vm.push(value.Obj_(vm.alloc(value.KindClass, cls)))
	return nil
}

// checkAbstractsSatisfied walks a concrete class's ancestor chain and
// errors if any inherited abstract-method signature still lacks a
// matching override. Abstract classes and traits never check their own
// signatures here, since neither is instantiable; the check only
// matters for a default-kind class that intends to be instantiated.
func (vm *VM) checkAbstractsSatisfied(cls *value.Class) error {
	if cls.Kind != value.ClassDefault {
		return nil
	}
	for anc := cls.Super; anc != nil; anc = anc.Super {
		for name := range anc.Abstracts {
			if _, ok := cls.FindMethod(name); ok {
				continue
			}
			if _, ok := cls.FindPrivateMethod(name); ok {
				continue
			}
			return vm.runtimeError("class '%s' does not implement abstract method '%s'.", cls.Name, name)
		}
	}
	return nil
}

type methodVisibility int

const (
	methodPublic methodVisibility = iota
	methodPrivate
	methodStatic
)

func (vm *VM) defineMethod(name string, vis methodVisibility) {
	method := vm.pop().AsObj().Payload.(*value.Closure)
	cls := vm.peek(0).AsObj().Payload.(*value.Class)
	switch vis {
	case methodStatic:
		cls.StaticMethods[name] = method
	case methodPrivate:
		cls.PrivateMethods[name] = method
	default:
		cls.Methods[name] = method
	}
}

// defineAbstract records a signature-only Function (no body) into the
// class-on-top-of-stack's abstract-method table, per OP_ABSTRACT_METHOD.
func (vm *VM) defineAbstract(sig *value.Function) {
	cls := vm.peek(0).AsObj().Payload.(*value.Class)
	cls.Abstracts[sig.Name] = sig
}

// defineClassConstant evaluates a class-variable constant once, at
// declaration time, into the class-on-top-of-stack's constants table.
func (vm *VM) defineClassConstant(name string) {
	v := vm.pop()
	cls := vm.peek(0).AsObj().Payload.(*value.Class)
	cls.Constants[name] = v
}

// useTrait copies a trait's method tables into the class on top of the
// stack; a name collision is a runtime error per spec.md §4.2. Only a
// class declared with `trait` may be used this way.
func (vm *VM) useTrait(_ string) error {
	traitVal := vm.pop()
	clsVal := vm.peek(0)
	if !traitVal.IsObj() || traitVal.AsObj().Kind != value.KindClass {
		return vm.runtimeError("Can only use traits.")
	}
	if !clsVal.IsObj() || clsVal.AsObj().Kind != value.KindClass {
		return vm.runtimeError("Can only use traits inside a class body.")
	}
	trait := traitVal.AsObj().Payload.(*value.Class)
	if trait.Kind != value.ClassTrait {
		return vm.runtimeError("'%s' is not a trait.", trait.Name)
	}
	cls := clsVal.AsObj().Payload.(*value.Class)
	for name, m := range trait.Methods {
		if _, exists := cls.Methods[name]; exists {
			return vm.runtimeError("Trait method '%s' conflicts with an existing method.", name)
		}
		cls.Methods[name] = m
	}
	for name, m := range trait.PrivateMethods {
		if _, exists := cls.PrivateMethods[name]; exists {
			return vm.runtimeError("Trait method '%s' conflicts with an existing method.", name)
		}
		cls.PrivateMethods[name] = m
	}
	return nil
}
