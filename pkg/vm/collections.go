package vm

import (
	"strings"

	"github.com/kristofer/vellum/pkg/value"
)

func (vm *VM) getIndex() error {
	idx := vm.pop()
	receiver := vm.pop()
	if !receiver.IsObj() {
		return vm.runtimeError("Only lists, dicts, sets and strings support indexing.")
	}
	switch receiver.Kind() {
	case value.KindList:
		l := receiver.AsObj().Payload.(*value.List)
		i, err := vm.listIndex(l.Items, idx)
		if err != nil {
			return err
		}
		vm.push(l.Items[i])
	case value.KindDict:
		d := receiver.AsObj().Payload.(*value.Dict)
		v, ok := d.Get(idx)
		if !ok {
			return vm.runtimeError("Key not found in dict.")
		}
		vm.push(v)
	case value.KindString:
		if !idx.IsNumber() {
			return vm.runtimeError("String index must be a number.")
		}
		runes := []rune(receiver.AsObj().Payload.(*value.String).Chars)
		n := int(idx.AsNumber())
		if n < 0 {
			n += len(runes)
		}
		if n < 0 || n >= len(runes) {
			return vm.runtimeError("String index out of bounds.")
		}
		vm.push(value.Obj_(vm.strings.Intern(string(runes[n]))))
	default:
		return vm.runtimeError("Only lists, dicts, sets and strings support indexing.")
	}
	return nil
}

func (vm *VM) listIndex(items []value.Value, idx value.Value) (int, error) {
	if !idx.IsNumber() {
		return 0, vm.runtimeError("List index must be a number.")
	}
	n := int(idx.AsNumber())
	if n < 0 {
		n += len(items)
	}
	if n < 0 || n >= len(items) {
		return 0, vm.runtimeError("List index out of bounds.")
	}
	return n, nil
}

func (vm *VM) setIndex() error {
	v := vm.pop()
	idx := vm.pop()
	receiver := vm.pop()
	if !receiver.IsObj() {
		return vm.runtimeError("Only lists and dicts support index assignment.")
	}
	switch receiver.Kind() {
	case value.KindList:
		l := receiver.AsObj().Payload.(*value.List)
		i, err := vm.listIndex(l.Items, idx)
		if err != nil {
			return err
		}
		l.Items[i] = v
	case value.KindDict:
		d := receiver.AsObj().Payload.(*value.Dict)
		d.Set(idx, v)
	default:
		return vm.runtimeError("Only lists and dicts support index assignment.")
	}
	vm.push(v)
	return nil
}

// slice implements `x[a:b]` for lists and strings; nil endpoints mean
// "from the start"/"to the end".
func (vm *VM) slice() error {
	end := vm.pop()
	start := vm.pop()
	receiver := vm.pop()
	if !receiver.IsObj() {
		return vm.runtimeError("Only lists and strings support slicing.")
	}
	switch receiver.Kind() {
	case value.KindList:
		l := receiver.AsObj().Payload.(*value.List)
		s, e := sliceBounds(len(l.Items), start, end)
		items := make([]value.Value, e-s)
		copy(items, l.Items[s:e])
		vm.push(value.Obj_(vm.alloc(value.KindList, &value.List{Items: items})))
	case value.KindString:
		chars := []rune(receiver.AsObj().Payload.(*value.String).Chars)
		s, e := sliceBounds(len(chars), start, end)
		vm.push(value.Obj_(vm.strings.Intern(string(chars[s:e]))))
	default:
		return vm.runtimeError("Only lists and strings support slicing.")
	}
	return nil
}

func sliceBounds(n int, start, end value.Value) (int, int) {
	s, e := 0, n
	if start.IsNumber() {
		s = int(start.AsNumber())
		if s < 0 {
			s += n
		}
	}
	if end.IsNumber() {
		e = int(end.AsNumber())
		if e < 0 {
			e += n
		}
	}
	if s < 0 {
		s = 0
	}
	if e > n {
		e = n
	}
	if s > e {
		s = e
	}
	return s, e
}

// buildString implements compile-time string interpolation: pop n
// fragment values, stringify each, and concatenate, per spec.md §4.2's
// "performed at the call site" note (adapted here as a compiler-emitted
// splice rather than a runtime format call).
func (vm *VM) buildString(n int) {
	base := vm.current.StackTop - n
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(vm.current.Stack[base+i].String())
	}
	vm.current.StackTop = base
	vm.push(value.Obj_(vm.strings.Intern(b.String())))
}

func (vm *VM) enumValue(name string) {
	v := vm.pop()
	en := vm.peek(0).AsObj().Payload.(*value.Enum)
	en.Values[name] = v
	en.Order = append(en.Order, name)
}
