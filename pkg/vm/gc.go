package vm

import "github.com/kristofer/vellum/pkg/value"

// objSize is a rough per-kind accounting unit; the collector doesn't
// need exact byte counts, only a monotonic signal for the growth-factor
// threshold in collectGarbage.
func objSize(kind value.ObjKind) int {
	switch kind {
	case value.KindString:
		return 24
	case value.KindList, value.KindDict, value.KindSet:
		return 48
	case value.KindInstance:
		return 64
	case value.KindClosure, value.KindFiber:
		return 40
	default:
		return 24
	}
}

// alloc is the one door every heap object the VM creates at runtime
// walks through: it links the new Obj onto the allocation list the
// collector sweeps and charges it against the next-collection threshold.
// Interned strings are not routed through here — see DESIGN.md.
func (vm *VM) alloc(kind value.ObjKind, payload interface{}) *value.Obj {
	obj := value.NewObj(kind, payload)
	obj.Next = vm.objects
	vm.objects = obj
	vm.bytesAllocated += objSize(kind)
	if vm.stressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
	return obj
}

// collectGarbage runs one full mark-sweep cycle: trace every root to a
// fixpoint, then reclaim anything left unmarked. It never recurses into
// itself — alloc() only calls back in here once marking/sweeping has
// returned, and nothing in the mark/sweep path allocates.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.sweep()
	if next := vm.bytesAllocated * 2; next > vm.nextGC {
		vm.nextGC = next
	}
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObj() {
		vm.markObj(v.AsObj())
	}
}

func (vm *VM) markObj(o *value.Obj) {
	if o == nil || o.Marked {
		return
	}
	o.Marked = true
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) markTable(t interface{ Each(func(string, value.Value)) }) {
	t.Each(func(_ string, v value.Value) { vm.markValue(v) })
}

// markRoots enumerates every value directly reachable from VM state
// without following object references: globals, the module cache, the
// well-known init string, and every fiber on the live call chain rooted
// at the currently running one (Caller pointers always lead back to
// main, so this also covers the main fiber).
func (vm *VM) markRoots() {
	vm.markTable(vm.globals)
	for _, obj := range vm.modules {
		vm.markObj(obj)
	}
	vm.markObj(vm.initString)
	if vm.main != nil {
		vm.markFiberStack(vm.main)
	}
	for f := vm.current; f != nil; f = f.Caller {
		vm.markFiberStack(f)
	}
}

// markFiberStack marks every live stack slot of a fiber plus the
// captured value of any of its closed (post-scope) upvalues. Open
// upvalues alias a live stack slot, already covered by the stack scan;
// a closure occupying the frame-base slot of an active call keeps that
// whole frame's callee reachable with no separate frame walk needed.
func (vm *VM) markFiberStack(f *value.Fiber) {
	for i := 0; i < f.StackTop; i++ {
		vm.markValue(f.Stack[i])
	}
	for uv := f.OpenUpvalues; uv != nil; uv = uv.Next {
		if uv.Location == nil {
			vm.markValue(uv.Closed)
		}
	}
	if f.Entry != nil {
		vm.markClosureUpvalues(f.Entry)
	}
}

func (vm *VM) markClosureUpvalues(cl *value.Closure) {
	for _, uv := range cl.Upvalues {
		if uv.Location != nil {
			vm.markValue(*uv.Location)
		} else {
			vm.markValue(uv.Closed)
		}
	}
}

// traceReferences drains the gray stack, blackening each object by
// marking everything it points to until nothing gray remains.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		o := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blacken(o)
	}
}

func (vm *VM) blacken(o *value.Obj) {
	switch o.Kind {
	case value.KindList:
		l := o.Payload.(*value.List)
		for _, v := range l.Items {
			vm.markValue(v)
		}
	case value.KindDict:
		d := o.Payload.(*value.Dict)
		d.Each(func(k, v value.Value) { vm.markValue(k); vm.markValue(v) })
	case value.KindSet:
		s := o.Payload.(*value.Set)
		s.Each(vm.markValue)
	case value.KindClosure:
		vm.markClosureUpvalues(o.Payload.(*value.Closure))
	case value.KindInstance:
		inst := o.Payload.(*value.Instance)
		for _, v := range inst.Fields {
			vm.markValue(v)
		}
		for _, v := range inst.Private {
			vm.markValue(v)
		}
		vm.markClass(inst.Class)
	case value.KindClass:
		vm.markClass(o.Payload.(*value.Class))
	case value.KindEnum:
		e := o.Payload.(*value.Enum)
		for _, v := range e.Values {
			vm.markValue(v)
		}
	case value.KindModule:
		m := o.Payload.(*value.Module)
		for _, v := range m.Globals {
			vm.markValue(v)
		}
	case value.KindBoundMethod:
		bm := o.Payload.(*value.BoundMethod)
		vm.markValue(bm.Receiver)
		vm.markClosureUpvalues(bm.Method)
	case value.KindResult:
		r := o.Payload.(*value.Result)
		vm.markValue(r.Value)
	case value.KindFiber:
		vm.markFiberStack(o.Payload.(*value.Fiber))
	}
	// KindString, KindFunction, KindNative, KindFile, KindAbstract,
	// KindUpvalue carry no further Value references to trace.
}

// markClass walks the method tables of a class and its superclass
// chain, marking whatever each method's closure has captured. Classes
// and their Super chain are ordinary Go pointers (not Obj-wrapped
// individually), so there is nothing to mark for the chain itself — Go's
// own collector keeps that memory alive as long as any reachable value
// points to it.
func (vm *VM) markClass(c *value.Class) {
	for cl := c; cl != nil; cl = cl.Super {
		for _, m := range cl.Methods {
			vm.markClosureUpvalues(m)
		}
		for _, m := range cl.PrivateMethods {
			vm.markClosureUpvalues(m)
		}
		for _, m := range cl.StaticMethods {
			vm.markClosureUpvalues(m)
		}
		for _, v := range cl.Constants {
			vm.markValue(v)
		}
	}
}

// sweep unlinks every unmarked object from the allocation list, running
// its finalizer if it has one, and clears the mark bit on every survivor
// for the next cycle.
func (vm *VM) sweep() {
	var prev *value.Obj
	obj := vm.objects
	for obj != nil {
		if obj.Marked {
			obj.Marked = false
			prev = obj
			obj = obj.Next
			continue
		}
		unreached := obj
		obj = obj.Next
		if prev == nil {
			vm.objects = obj
		} else {
			prev.Next = obj
		}
		vm.bytesAllocated -= objSize(unreached.Kind)
		finalize(unreached)
	}
}

// finalize releases any non-Go-managed resource a swept object holds:
// an open file handle, or a host-attached Abstract's free callback.
func finalize(o *value.Obj) {
	switch o.Kind {
	case value.KindFile:
		f := o.Payload.(*value.File)
		if !f.Closed {
			if closer, ok := f.Handle.(interface{ Close() error }); ok {
				closer.Close()
			}
			f.Closed = true
		}
	case value.KindAbstract:
		a := o.Payload.(*value.Abstract)
		if a.Free != nil {
			a.Free(a.Data)
		}
	}
}
