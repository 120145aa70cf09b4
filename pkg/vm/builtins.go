package vm

import "github.com/kristofer/vellum/pkg/value"

// invokeBuiltin dispatches a method call on a non-instance heap object
// (list, dict, set, string, result) to its hand-written method
// table, since these types have no user-visible Class to search.
func (vm *VM) invokeBuiltin(obj *value.Obj, name string, argc int, receiver value.Value) error {
	base := vm.current.StackTop - argc - 1
	args := make([]value.Value, argc)
	copy(args, vm.current.Stack[base+1:vm.current.StackTop])

	var result value.Value
	var err error
	switch obj.Kind {
	case value.KindList:
		result, err = vm.listMethod(obj.Payload.(*value.List), name, args)
	case value.KindDict:
		result, err = vm.dictMethod(obj.Payload.(*value.Dict), name, args)
	case value.KindSet:
		result, err = vm.setMethod(obj.Payload.(*value.Set), name, args)
	case value.KindString:
		result, err = vm.stringMethod(obj.Payload.(*value.String), name, args)
	case value.KindResult:
		result, err = vm.resultMethod(obj.Payload.(*value.Result), name, args)
	default:
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	if err != nil {
		return err
	}
	vm.current.StackTop = base
	vm.push(result)
	return nil
}

// builtinGetProperty handles `x.m` without a call, for builtin types
// that expose zero-argument "properties" (e.g. list.length).
func (vm *VM) builtinGetProperty(obj *value.Obj, name string) error {
	switch obj.Kind {
	case value.KindList:
		l := obj.Payload.(*value.List)
		if name == "length" {
			vm.pop()
			vm.push(value.Number_(float64(len(l.Items))))
			return nil
		}
	case value.KindDict:
		d := obj.Payload.(*value.Dict)
		if name == "length" {
			vm.pop()
			vm.push(value.Number_(float64(d.Len())))
			return nil
		}
	case value.KindSet:
		s := obj.Payload.(*value.Set)
		if name == "length" {
			vm.pop()
			vm.push(value.Number_(float64(s.Len())))
			return nil
		}
	case value.KindString:
		s := obj.Payload.(*value.String)
		if name == "length" {
			vm.pop()
			vm.push(value.Number_(float64(len([]rune(s.Chars)))))
			return nil
		}
	case value.KindResult:
		r := obj.Payload.(*value.Result)
		switch name {
		case "success":
			vm.pop()
			vm.push(value.Bool_(r.Success))
			return nil
		case "value":
			vm.pop()
			vm.push(r.Value)
			return nil
		}
	}
	return vm.runtimeError("Undefined property '%s'.", name)
}

func (vm *VM) listMethod(l *value.List, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "push":
		l.Items = append(l.Items, args...)
		return value.Obj_(vm.alloc(value.KindList, l)), nil
	case "pop":
		if len(l.Items) == 0 {
			return value.NilVal, vm.runtimeError("Cannot pop from an empty list.")
		}
		v := l.Items[len(l.Items)-1]
		l.Items = l.Items[:len(l.Items)-1]
		return v, nil
	case "length":
		return value.Number_(float64(len(l.Items))), nil
	case "contains":
		for _, v := range l.Items {
			if vm.valuesEqual(v, args[0]) {
				return value.TrueVal, nil
			}
		}
		return value.FalseVal, nil
	case "copy":
		items := make([]value.Value, len(l.Items))
		copy(items, l.Items)
		return value.Obj_(vm.alloc(value.KindList, &value.List{Items: items})), nil
	case "join":
		sep := ""
		if len(args) > 0 {
			sep = args[0].String()
		}
		s := ""
		for i, v := range l.Items {
			if i > 0 {
				s += sep
			}
			s += v.String()
		}
		return value.Obj_(vm.strings.Intern(s)), nil
	}
	return value.NilVal, vm.runtimeError("Undefined property '%s'.", name)
}

func (vm *VM) dictMethod(d *value.Dict, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "get":
		if v, ok := d.Get(args[0]); ok {
			return v, nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return value.NilVal, nil
	case "set":
		d.Set(args[0], args[1])
		return value.NilVal, nil
	case "remove":
		return value.Bool_(d.Delete(args[0])), nil
	case "contains":
		_, ok := d.Get(args[0])
		return value.Bool_(ok), nil
	case "length":
		return value.Number_(float64(d.Len())), nil
	case "keys":
		var items []value.Value
		d.Each(func(k, _ value.Value) { items = append(items, k) })
		return value.Obj_(vm.alloc(value.KindList, &value.List{Items: items})), nil
	case "values":
		var items []value.Value
		d.Each(func(_, v value.Value) { items = append(items, v) })
		return value.Obj_(vm.alloc(value.KindList, &value.List{Items: items})), nil
	}
	return value.NilVal, vm.runtimeError("Undefined property '%s'.", name)
}

func (vm *VM) setMethod(s *value.Set, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "add":
		return value.Bool_(s.Add(args[0])), nil
	case "remove":
		return value.Bool_(s.Remove(args[0])), nil
	case "contains":
		return value.Bool_(s.Has(args[0])), nil
	case "length":
		return value.Number_(float64(s.Len())), nil
	}
	return value.NilVal, vm.runtimeError("Undefined property '%s'.", name)
}

func (vm *VM) stringMethod(s *value.String, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "length":
		return value.Number_(float64(len([]rune(s.Chars)))), nil
	case "toUpper":
		return value.Obj_(vm.strings.Intern(toUpper(s.Chars))), nil
	case "toLower":
		return value.Obj_(vm.strings.Intern(toLower(s.Chars))), nil
	case "contains":
		if len(args) == 0 || args[0].Kind() != value.KindString {
			return value.FalseVal, nil
		}
		return value.Bool_(containsSubstring(s.Chars, args[0].AsObj().Payload.(*value.String).Chars)), nil
	}
	return value.NilVal, vm.runtimeError("Undefined property '%s'.", name)
}

// resultMethod handles Result methods that resolve synchronously to a
// plain value. `.match` is NOT here: it must call back into a vellum
// closure, which this function's synchronous return-a-value signature
// can't support without breaking the dispatch loop's non-reentrancy —
// see invoke()'s KindResult special case and resultMatch in result.go.
func (vm *VM) resultMethod(r *value.Result, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "success":
		return value.Bool_(r.Success), nil
	case "unwrap":
		if !r.Success {
			return value.NilVal, vm.runtimeError("Called unwrap() on an Error result: %s", r.Value.String())
		}
		return r.Value, nil
	}
	return value.NilVal, vm.runtimeError("Undefined property '%s'.", name)
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func containsSubstring(s, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
