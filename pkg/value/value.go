// Package value defines the runtime value representation: a tagged Value
// type standing in for the NaN-boxed Value of the language this VM runs,
// and the heap object kinds a Value can point at.
package value

import "fmt"

// Tag discriminates what a Value holds. The zero Tag is Nil so a
// zero-valued Value is a valid nil, matching the convention that an
// unset stack slot reads as nil rather than garbage.
type Tag uint8

const (
	Nil Tag = iota
	Bool
	Number
	Empty
	Object
)

// Value is the engine's tagged value. It stands in for the C
// implementation's NaN-boxed 64-bit Value: same externally observable
// behavior (single canonical nil/true/false/empty, value equality for
// numbers and booleans, pointer identity for heap objects), but expressed
// as a small struct instead of bit-packing a float64, because Go's moving
// garbage collector makes it unsafe to hide a pointer inside a NaN
// payload. See DESIGN.md for the full rationale.
type Value struct {
	tag Tag
	num float64
	obj *Obj
}

var (
	NilVal   = Value{tag: Nil}
	TrueVal  = Value{tag: Bool, num: 1}
	FalseVal = Value{tag: Bool, num: 0}
	EmptyVal = Value{tag: Empty}
)

func Number_(n float64) Value { return Value{tag: Number, num: n} }
func Bool_(b bool) Value {
	if b {
		return TrueVal
	}
	return FalseVal
}
func Obj_(o *Obj) Value { return Value{tag: Object, obj: o} }

func (v Value) IsNil() bool    { return v.tag == Nil }
func (v Value) IsBool() bool   { return v.tag == Bool }
func (v Value) IsNumber() bool { return v.tag == Number }
func (v Value) IsEmpty() bool  { return v.tag == Empty }
func (v Value) IsObj() bool    { return v.tag == Object }

func (v Value) AsBool() bool      { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsObj() *Obj       { return v.obj }

// IsFalsey implements the language's truthiness rule: nil and false are
// falsey, every other value (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements value semantics: numbers and booleans compare by
// value, nil/empty compare equal only to themselves, and objects compare
// by pointer identity except for Strings, which are interned so pointer
// identity and content identity coincide.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case Nil, Empty:
		return true
	case Bool:
		return a.AsBool() == b.AsBool()
	case Number:
		return a.num == b.num
	case Object:
		return a.obj == b.obj
	}
	return false
}

func (v Value) Kind() ObjKind {
	if v.tag != Object || v.obj == nil {
		return KindNone
	}
	return v.obj.Kind
}

func (v Value) String() string {
	switch v.tag {
	case Nil:
		return "nil"
	case Empty:
		return "<empty>"
	case Bool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.num)
	case Object:
		return v.obj.String()
	}
	return "<unknown>"
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// TypeName returns the name the language's type() native reports.
func (v Value) TypeName() string {
	switch v.tag {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case Empty:
		return "empty"
	case Object:
		return v.obj.Kind.String()
	}
	return "unknown"
}
