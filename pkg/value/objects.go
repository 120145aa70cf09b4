package value

import (
	"fmt"
	"strings"
)

// ObjKind tags the dynamic type of a heap object, doubling as the Go
// type switch discriminant and as the source of type() names.
type ObjKind uint8

const (
	KindNone ObjKind = iota
	KindString
	KindList
	KindDict
	KindSet
	KindFunction
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindEnum
	KindModule
	KindBoundMethod
	KindResult
	KindAbstract
	KindFiber
	KindFile
	KindNative
)

func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindSet:
		return "set"
	case KindFunction:
		return "function"
	case KindClosure:
		return "function"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindEnum:
		return "enum"
	case KindModule:
		return "module"
	case KindBoundMethod:
		return "method"
	case KindResult:
		return "result"
	case KindAbstract:
		return "abstract"
	case KindFiber:
		return "fiber"
	case KindFile:
		return "file"
	case KindNative:
		return "function"
	}
	return "object"
}

// Obj is the common header of every heap object, mirroring the
// intrusive-object-header convention of the C implementation this engine
// is derived from (a type tag plus an allocation-list link for the GC),
// reimplemented as a header struct that holds the kind-specific object in
// its Payload field instead of manual struct-prefix casts.
type Obj struct {
	Kind    ObjKind
	Marked  bool
	Next    *Obj // GC allocation list
	Payload interface{}
}

func (o *Obj) String() string {
	switch o.Kind {
	case KindString:
		return o.Payload.(*String).Chars
	case KindList:
		return o.Payload.(*List).String()
	case KindDict:
		return o.Payload.(*Dict).String()
	case KindSet:
		return o.Payload.(*Set).String()
	case KindFunction:
		return fmt.Sprintf("<fn %s>", o.Payload.(*Function).Name)
	case KindClosure:
		return fmt.Sprintf("<fn %s>", o.Payload.(*Closure).Function.Name)
	case KindClass:
		return fmt.Sprintf("<class %s>", o.Payload.(*Class).Name)
	case KindInstance:
		return fmt.Sprintf("<%s instance>", o.Payload.(*Instance).Class.Name)
	case KindEnum:
		return fmt.Sprintf("<enum %s>", o.Payload.(*Enum).Name)
	case KindModule:
		return fmt.Sprintf("<module %s>", o.Payload.(*Module).Name)
	case KindBoundMethod:
		bm := o.Payload.(*BoundMethod)
		return fmt.Sprintf("<bound method %s>", bm.Method.Function.Name)
	case KindResult:
		r := o.Payload.(*Result)
		if r.Success {
			return fmt.Sprintf("Success(%s)", r.Value.String())
		}
		return fmt.Sprintf("Error(%s)", r.Value.String())
	case KindAbstract:
		return fmt.Sprintf("<abstract %s>", o.Payload.(*Abstract).Name)
	case KindFiber:
		return fmt.Sprintf("<fiber %s>", o.Payload.(*Fiber).ID)
	case KindFile:
		return fmt.Sprintf("<file %s>", o.Payload.(*File).Path)
	case KindNative:
		return "<native fn>"
	}
	return "<object>"
}

// String is an interned, immutable string. FNV-1a hash precomputed at
// construction so every table lookup and equality check is O(1), mirroring
// the original implementation's interning strategy.
type String struct {
	Chars string
	Hash  uint32
}

func FNV1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

type List struct {
	Items []Value
}

func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, v := range l.Items {
		parts[i] = quoteIfString(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type dictEntry struct {
	key     Value
	value   Value
	present bool
}

// Dict is an insertion-ordered dictionary searched by linear scan over
// its entries. Ordering is tracked separately in order so iteration order
// matches insertion order, as the language's dict literal semantics
// require.
type Dict struct {
	entries []dictEntry
	order   []int
}

func NewDict() *Dict { return &Dict{} }

func (d *Dict) Get(k Value) (Value, bool) {
	for _, e := range d.entries {
		if e.present && Equal(e.key, k) {
			return e.value, true
		}
	}
	return NilVal, false
}

func (d *Dict) Set(k, v Value) {
	for i, e := range d.entries {
		if e.present && Equal(e.key, k) {
			d.entries[i].value = v
			return
		}
	}
	d.entries = append(d.entries, dictEntry{key: k, value: v, present: true})
	d.order = append(d.order, len(d.entries)-1)
}

func (d *Dict) Delete(k Value) bool {
	for i, e := range d.entries {
		if e.present && Equal(e.key, k) {
			d.entries[i].present = false
			return true
		}
	}
	return false
}

func (d *Dict) Len() int {
	n := 0
	for _, e := range d.entries {
		if e.present {
			n++
		}
	}
	return n
}

func (d *Dict) Each(fn func(k, v Value)) {
	for _, idx := range d.order {
		e := d.entries[idx]
		if e.present {
			fn(e.key, e.value)
		}
	}
}

func (d *Dict) String() string {
	var parts []string
	d.Each(func(k, v Value) {
		parts = append(parts, fmt.Sprintf("%s: %s", quoteIfString(k), quoteIfString(v)))
	})
	return "{" + strings.Join(parts, ", ") + "}"
}

type Set struct {
	items []Value
}

func NewSet() *Set { return &Set{} }

func (s *Set) Has(v Value) bool {
	for _, item := range s.items {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

func (s *Set) Add(v Value) bool {
	if s.Has(v) {
		return false
	}
	s.items = append(s.items, v)
	return true
}

func (s *Set) Remove(v Value) bool {
	for i, item := range s.items {
		if Equal(item, v) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) Each(fn func(Value)) {
	for _, v := range s.items {
		fn(v)
	}
}

func (s *Set) String() string {
	parts := make([]string, len(s.items))
	for i, v := range s.items {
		parts[i] = quoteIfString(v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteIfString(v Value) string {
	if v.Kind() == KindString {
		return fmt.Sprintf("%q", v.obj.Payload.(*String).Chars)
	}
	return v.String()
}

// FunctionKind distinguishes the calling convention a Function compiles
// under: a plain function/method, a class initializer, a static method,
// or a top-level script body.
type FunctionKind uint8

const (
	FnScript FunctionKind = iota
	FnFunction
	FnMethod
	FnInitializer
	FnStatic
	FnArrow
	FnAbstract
)

// Param describes one declared parameter, including an optional default
// value, which is a literal constant (number, string, true, false or nil).
type Param struct {
	Name     string
	HasDefault bool
	Default  Value
}

// Function is the compiled, closure-independent half of a callable: its
// own chunk of bytecode plus metadata the VM needs to set up a call frame.
// Chunk is declared as interface{} here to avoid an import cycle with
// pkg/bytecode; the VM stores a *bytecode.Chunk and type-asserts it.
type Function struct {
	Name        string
	Arity       int
	Params      []Param
	Kind        FunctionKind
	UpvalueCount int
	Chunk       interface{}
	ModuleName  string
}

type UpvalueDesc struct {
	Index   int
	IsLocal bool
}

// Closure pairs a Function with its captured upvalues.
type Closure struct {
	Function *Function
	Upvalues []*Upvalue
}

// Upvalue is a captured local. While Open it aliases a live stack slot
// (Location points into the owning Fiber's value stack); Close copies the
// value in and Location becomes nil, matching the open/closed upvalue
// lifecycle the language's closures depend on.
type Upvalue struct {
	Location *Value
	Index    int // stack slot index while open; meaningless once closed
	Closed   Value
	Next     *Upvalue // open-upvalue list link, sorted by stack depth
}

func (u *Upvalue) Get() Value {
	if u.Location != nil {
		return *u.Location
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Location != nil {
		*u.Location = v
		return
	}
	u.Closed = v
}

func (u *Upvalue) Close() {
	if u.Location != nil {
		u.Closed = *u.Location
		u.Location = nil
	}
}

// ClassKind tags a class declaration's runtime category: an ordinary
// class, an abstract class (cannot be instantiated until every abstract
// signature it declares is overridden by a concrete subclass), or a
// trait (a method bundle meant only to be `use`d into another class,
// never instantiated itself).
type ClassKind uint8

const (
	ClassDefault ClassKind = iota
	ClassAbstract
	ClassTrait
)

func (k ClassKind) String() string {
	switch k {
	case ClassAbstract:
		return "abstract"
	case ClassTrait:
		return "trait"
	}
	return "class"
}

// Class holds the method table, static-method table, field initializer
// list and trait/superclass chain for a class declaration. Five tables
// back its members: Methods/PrivateMethods/StaticMethods hold compiled
// closures, Abstracts holds signature-only Functions declared in an
// abstract class body (never called, only checked against overrides),
// and Constants holds class-variable constants evaluated once at
// declaration time.
type Class struct {
	Name           string
	Super          *Class
	Kind           ClassKind
	Methods        map[string]*Closure
	PrivateMethods map[string]*Closure
	StaticMethods  map[string]*Closure
	Abstracts      map[string]*Function
	Constants      map[string]Value
	Fields         []string
}

func NewClass(name string) *Class {
	return &Class{
		Name:           name,
		Methods:        map[string]*Closure{},
		PrivateMethods: map[string]*Closure{},
		StaticMethods:  map[string]*Closure{},
		Abstracts:      map[string]*Function{},
		Constants:      map[string]Value{},
	}
}

// FindMethod walks the superclass chain, giving subclasses override
// priority over inherited trait/superclass methods.
func (c *Class) FindMethod(name string) (*Closure, bool) {
	for cl := c; cl != nil; cl = cl.Super {
		if m, ok := cl.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

func (c *Class) FindPrivateMethod(name string) (*Closure, bool) {
	for cl := c; cl != nil; cl = cl.Super {
		if m, ok := cl.PrivateMethods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

func (c *Class) FindStaticMethod(name string) (*Closure, bool) {
	for cl := c; cl != nil; cl = cl.Super {
		if m, ok := cl.StaticMethods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Instance is an object created from a Class: two attribute tables
// (public/private) as the spec's Instance type requires, backed by plain
// maps since instance field sets are small and insertion order doesn't
// matter the way it does for Dict.
type Instance struct {
	Class   *Class
	Fields  map[string]Value
	Private map[string]Value
}

func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Fields: map[string]Value{}, Private: map[string]Value{}}
}

type Enum struct {
	Name   string
	Values map[string]Value
	Order  []string
}

// Module represents an imported compilation unit's exported namespace.
type Module struct {
	Name    string
	Globals map[string]Value
}

type BoundMethod struct {
	Receiver Value
	Method   *Closure
}

// Result is the Success/Error wrapper used for fallible operations that
// don't want to unwind the stack via a runtime error.
type Result struct {
	Success bool
	Value   Value
}

// Abstract lets host Go code attach arbitrary state and callback
// functions to a value that behaves like an instance from script code,
// the engine's equivalent of the original's "abstract" native objects.
type Abstract struct {
	Name string
	Data interface{}
	Free func(interface{})
}

type FiberState uint8

const (
	FiberSuspended FiberState = iota
	FiberRunning
	FiberDone
)

// Fiber is a cooperative coroutine: its own value stack and call-frame
// stack plus the caller it will resume when it completes or yields back.
// CallFrame/Value-stack fields are declared as interface{}/[]Value kept
// generic here; pkg/vm owns the concrete frame type and type-asserts.
type Fiber struct {
	ID           string
	State        FiberState
	Caller       *Fiber
	Frames       interface{} // concrete []vm.CallFrame, type-asserted by pkg/vm
	Stack        []Value
	StackTop     int
	OpenUpvalues *Upvalue // open-upvalue list, sorted by stack address descending
	Entry        *Closure // starting closure, consumed the first time the fiber is called
}

type File struct {
	Path   string
	Handle interface{} // *os.File, kept generic to avoid importing os here
	Closed bool
}

// NativeFn is the calling convention every native (host-implemented)
// function uses. VM is declared as interface{} to avoid an import cycle;
// the VM passes itself, and the natives in pkg/native ignore it. args[0]
// is the callee (or receiver) slot; call arguments start at args[1].
type NativeFn func(vmCtx interface{}, args []Value) (Value, error)

type Native struct {
	Name string
	Fn   NativeFn
	Arity int
}

func NewObj(kind ObjKind, payload interface{}) *Obj {
	return &Obj{Kind: kind, Payload: payload}
}

func NewString(chars string) *String {
	return &String{Chars: chars, Hash: FNV1a(chars)}
}
