package vm

import (
	"os"

	"github.com/kristofer/vellum/pkg/native"
	"github.com/kristofer/vellum/pkg/value"
)

// installStandardGlobals wires the minimal native demonstration set
// (clock, type) into the globals table, per SPEC_FULL.md's
// domain-stack extension point.
func (vm *VM) installStandardGlobals() {
	for name, obj := range native.StandardGlobals() {
		vm.globals.Set(name, value.Obj_(obj))
	}
}

// importModule compiles and runs a module's top-level code the first
// time it is imported, caching the result by name; subsequent imports
// of the same name reuse the cached Module object, per spec.md §4.3.
func (vm *VM) importModule(name string) error {
	if cached, ok := vm.modules[name]; ok {
		vm.push(value.Obj_(cached))
		return nil
	}
	source, err := vm.LoadModule(name)
	if err != nil {
		return vm.runtimeError("Could not import module '%s': %s", name, err.Error())
	}

	sub := New(vm.Log)
	sub.strings = vm.strings
	sub.modules = vm.modules
	sub.Stdout, sub.Stderr = vm.Stdout, vm.Stderr
	sub.LoadModule = vm.LoadModule
	if err := sub.Interpret(source, name); err != nil {
		return vm.runtimeError("Error while importing module '%s': %s", name, err.Error())
	}

	mod := &value.Module{Name: name, Globals: map[string]value.Value{}}
	sub.globals.Each(func(k string, v value.Value) { mod.Globals[k] = v })
	obj := vm.alloc(value.KindModule, mod)
	vm.modules[name] = obj
	vm.push(value.Obj_(obj))
	return nil
}

// exportName implements OP_EXPORT_NAME: pop the just-imported Module
// object and push the single binding named, leaving it for
// define_variable/define_global to bind locally.
func (vm *VM) exportName(name string) error {
	modVal := vm.pop()
	if modVal.Kind() != value.KindModule {
		return vm.runtimeError("Expected a module.")
	}
	mod := modVal.AsObj().Payload.(*value.Module)
	v, ok := mod.Globals[name]
	if !ok {
		return vm.runtimeError("Module '%s' has no exported name '%s'.", mod.Name, name)
	}
	vm.push(v)
	return nil
}

// openFile implements the `with (expr) [as name] { ... }` resource
// scope: expr must be a string path, opened for reading, pushed so the
// compiler's scope binds it under the `as` name (or discards it). The
// opened handle is tracked in vm.openResources so a runtime error that
// unwinds past the with-block's normal OpCloseFile still closes it (see
// run()'s deferred cleanup).
func (vm *VM) openFile() error {
	pathVal := vm.pop()
	if pathVal.Kind() != value.KindString {
		return vm.runtimeError("'with' requires a string path.")
	}
	path := pathVal.AsObj().Payload.(*value.String).Chars
	handle, err := os.Open(path)
	if err != nil {
		return vm.runtimeError("Could not open file '%s': %s", path, err.Error())
	}
	f := &value.File{Path: path, Handle: handle}
	vm.openResources = append(vm.openResources, f)
	vm.push(value.Obj_(vm.alloc(value.KindFile, f)))
	return nil
}

func (vm *VM) closeFile() error {
	fileVal := vm.pop()
	if fileVal.Kind() != value.KindFile {
		return vm.runtimeError("'with' scope did not resolve to a file.")
	}
	f := fileVal.AsObj().Payload.(*value.File)
	vm.closeResource(f)
	return nil
}

func (vm *VM) closeResource(f *value.File) {
	if !f.Closed {
		if h, ok := f.Handle.(*os.File); ok {
			h.Close()
		}
		f.Closed = true
	}
	for i, r := range vm.openResources {
		if r == f {
			vm.openResources = append(vm.openResources[:i], vm.openResources[i+1:]...)
			break
		}
	}
}

// closeDanglingResources closes every with-resource still open when a
// runtime error unwinds the dispatch loop, since there is no
// exception-table/finally mechanism to run a compiled close along that
// path. This is the error-path half of withStatement's close guarantee;
// the normal-path half is the compiled OpCloseFile sequence.
func (vm *VM) closeDanglingResources() {
	pending := vm.openResources
	vm.openResources = nil
	for _, f := range pending {
		if !f.Closed {
			if h, ok := f.Handle.(*os.File); ok {
				h.Close()
			}
			f.Closed = true
		}
	}
}
