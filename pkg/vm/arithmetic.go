package vm

import (
	"math"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/value"
)

// add implements `+`: string concatenation if both operands are
// strings, numeric sum if both are numbers, otherwise a runtime error,
// per spec.md §4.3.
func (vm *VM) add() error {
	b, a := vm.pop(), vm.pop()
	if a.IsNumber() && b.IsNumber() {
		vm.push(value.Number_(a.AsNumber() + b.AsNumber()))
		return nil
	}
	if a.Kind() == value.KindString && b.Kind() == value.KindString {
		sa := a.AsObj().Payload.(*value.String).Chars
		sb := b.AsObj().Payload.(*value.String).Chars
		vm.push(value.Obj_(vm.strings.Intern(sa + sb)))
		return nil
	}
	return vm.runtimeError("Operands must be two numbers or two strings.")
}

func (vm *VM) numericBinary(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.OpSubtract:
		vm.push(value.Number_(x - y))
	case bytecode.OpMultiply:
		vm.push(value.Number_(x * y))
	case bytecode.OpDivide:
		if y == 0 {
			return vm.runtimeError("Cannot divide by zero.")
		}
		vm.push(value.Number_(x / y))
	case bytecode.OpModulo:
		vm.push(value.Number_(math.Mod(x, y)))
	case bytecode.OpPower:
		vm.push(value.Number_(math.Pow(x, y)))
	}
	return nil
}

// bitwiseBinary truncates both operands to 32-bit signed integers
// before applying the operator, per spec.md §4.3.
func (vm *VM) bitwiseBinary(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	x, y := int32(a.AsNumber()), int32(b.AsNumber())
	var r int32
	switch op {
	case bytecode.OpBitAnd:
		r = x & y
	case bytecode.OpBitOr:
		r = x | y
	case bytecode.OpBitXor:
		r = x ^ y
	case bytecode.OpShiftLeft:
		r = x << uint32(y&31)
	case bytecode.OpShiftRight:
		r = x >> uint32(y&31)
	}
	vm.push(value.Number_(float64(r)))
	return nil
}

func (vm *VM) compare(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	var less, greater bool
	switch {
	case a.IsNumber() && b.IsNumber():
		less = a.AsNumber() < b.AsNumber()
		greater = a.AsNumber() > b.AsNumber()
	case a.Kind() == value.KindString && b.Kind() == value.KindString:
		sa := a.AsObj().Payload.(*value.String).Chars
		sb := b.AsObj().Payload.(*value.String).Chars
		less = sa < sb
		greater = sa > sb
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	switch op {
	case bytecode.OpGreater:
		vm.push(value.Bool_(greater))
	case bytecode.OpGreaterEqual:
		vm.push(value.Bool_(!less))
	case bytecode.OpLess:
		vm.push(value.Bool_(less))
	case bytecode.OpLessEqual:
		vm.push(value.Bool_(!greater))
	}
	return nil
}

// valuesEqual implements `==`: bitwise/identity equality for scalars and
// objects in general, but structural recursive equality for list, dict,
// and set, per spec.md §3.
func (vm *VM) valuesEqual(a, b value.Value) bool {
	if value.Equal(a, b) {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindList:
		la := a.AsObj().Payload.(*value.List)
		lb := b.AsObj().Payload.(*value.List)
		if len(la.Items) != len(lb.Items) {
			return false
		}
		for i := range la.Items {
			if !vm.valuesEqual(la.Items[i], lb.Items[i]) {
				return false
			}
		}
		return true
	case value.KindDict:
		da := a.AsObj().Payload.(*value.Dict)
		db := b.AsObj().Payload.(*value.Dict)
		if da.Len() != db.Len() {
			return false
		}
		equal := true
		da.Each(func(k, v value.Value) {
			bv, ok := db.Get(k)
			if !ok || !vm.valuesEqual(v, bv) {
				equal = false
			}
		})
		return equal
	case value.KindSet:
		sa := a.AsObj().Payload.(*value.Set)
		sb := b.AsObj().Payload.(*value.Set)
		if sa.Len() != sb.Len() {
			return false
		}
		equal := true
		sa.Each(func(v value.Value) {
			if !sb.Has(v) {
				equal = false
			}
		})
		return equal
	}
	return false
}
