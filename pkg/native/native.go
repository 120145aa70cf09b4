// Package native defines the calling convention and registration helpers
// native (host-implemented) functions use, per spec.md §4.5. It
// deliberately does not reimplement the HTTP/socket/base64/datetime/
// hashlib/random/path/system standard-library modules spec.md §1 places
// out of scope — those would be separate packages built on this same
// extension point. Two minimal demonstration natives are provided so the
// interface itself is exercised and tested.
package native

import (
	"time"

	"github.com/kristofer/vellum/pkg/value"
)

// DefineNative wraps a Go function matching value.NativeFn into a
// callable *value.Obj ready to be installed into a globals table or a
// class's method table, mirroring the teacher's primitives.go
// registration-table shape (grounded there for naming only — its actual
// bodies are out of scope, see DESIGN.md).
func DefineNative(name string, arity int, fn value.NativeFn) *value.Obj {
	return value.NewObj(value.KindNative, &value.Native{Name: name, Fn: fn, Arity: arity})
}

// DefineNativeProperty registers a zero-argument native that behaves
// like a read-only computed property when invoked via OP_INVOKE with
// argc == 0, the same registration path as any other native method.
func DefineNativeProperty(name string, fn value.NativeFn) *value.Obj {
	return DefineNative(name, 0, fn)
}

// StandardGlobals returns the small set of always-available natives:
// clock() for benchmarking scripts, and the global type(v) demonstrating
// a one-argument native over an arbitrary Value (args[0] is the callee
// slot, so v is args[1]). Both are deliberately
// minimal — everything module-shaped (http, sockets, hashing, the
// filesystem, environment variables) lives outside this engine's scope.
func StandardGlobals() map[string]*value.Obj {
	return map[string]*value.Obj{
		"clock": DefineNative("clock", 0, func(_ interface{}, _ []value.Value) (value.Value, error) {
			return value.Number_(float64(time.Now().UnixNano()) / 1e9), nil
		}),
		"type": DefineNative("type", 1, func(_ interface{}, args []value.Value) (value.Value, error) {
			obj := value.NewObj(value.KindString, value.NewString(args[1].TypeName()))
			return value.Obj_(obj), nil
		}),
	}
}
