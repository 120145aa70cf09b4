package vm

import "github.com/kristofer/vellum/pkg/value"

// makeClosure implements OP_CLOSURE: reads the function constant, then
// one {isLocal, index} byte pair per upvalue the compiler recorded,
// capturing enclosing locals or flattening enclosing upvalues.
func (vm *VM) makeClosure() error {
	fn := vm.readConstant().(*value.Function)
	closure := &value.Closure{Function: fn, Upvalues: make([]*value.Upvalue, fn.UpvalueCount)}
	frame := vm.currentFrame()
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte() != 0
		index := int(vm.readByte())
		if isLocal {
			closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
		} else {
			closure.Upvalues[i] = frame.closure.Upvalues[index]
		}
	}
	vm.push(value.Obj_(vm.alloc(value.KindClosure, closure)))
	return nil
}

// captureUpvalue returns the existing open upvalue pointing at stack
// slot index if one exists, else allocates a new one and splices it
// into the fiber's open-upvalue list, kept sorted by address descending
// per spec.md §4.3/§3 invariant 2.
func (vm *VM) captureUpvalue(slotIndex int) *value.Upvalue {
	fiber := vm.current
	var prev *value.Upvalue
	cur := fiber.OpenUpvalues
	for cur != nil && cur.Location != nil && cur.Index > slotIndex {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Location != nil && cur.Index == slotIndex {
		return cur
	}
	created := &value.Upvalue{Location: &fiber.Stack[slotIndex], Index: slotIndex}
	created.Next = cur
	if prev == nil {
		fiber.OpenUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above boundary,
// removing it from the open list, per spec.md §4.3.
func (vm *VM) closeUpvalues(boundary int) {
	fiber := vm.current
	for fiber.OpenUpvalues != nil && fiber.OpenUpvalues.Location != nil && fiber.OpenUpvalues.Index >= boundary {
		u := fiber.OpenUpvalues
		u.Close()
		fiber.OpenUpvalues = u.Next
		u.Next = nil
	}
}
