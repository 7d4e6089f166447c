/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package native implements the native module registry spec.md §4.5
// describes: a per-class mapping from (method_name, method_descriptor) to
// a host-provided callable. Grounded on jacobin's gfunction package (the
// idea of registering Go functions under a class+method+descriptor key),
// rebuilt around classloader.NativeModule's tagged-variant shape instead
// of jacobin's single func(params []interface{}) interface{} signature,
// per spec.md §9's explicit design note.
package native

import "github.com/jacobin-vm/classvm/internal/classloader"

// key identifies one native binding within a module.
type key struct {
	name       string
	descriptor string
}

// Module is a concrete classloader.NativeModule: a simple map-backed
// registry. A class attaches at most one Module (spec.md §4.5).
type Module struct {
	methods map[key]classloader.NativeMethod
}

// NewModule returns an empty native module.
func NewModule() *Module {
	return &Module{methods: make(map[key]classloader.NativeMethod)}
}

// BindStatic registers a static native method.
func (m *Module) BindStatic(name, descriptor string, fn classloader.StaticNative) *Module {
	m.methods[key{name, descriptor}] = classloader.NativeMethod{Kind: classloader.NativeStatic, Static: fn}
	return m
}

// BindInstance registers an instance native method.
func (m *Module) BindInstance(name, descriptor string, fn classloader.InstanceNative) *Module {
	m.methods[key{name, descriptor}] = classloader.NativeMethod{Kind: classloader.NativeInstance, Instance: fn}
	return m
}

// Lookup implements classloader.NativeModule.
func (m *Module) Lookup(name, descriptor string) (classloader.NativeMethod, bool) {
	nm, ok := m.methods[key{name, descriptor}]
	return nm, ok
}

// Registry maps a class's internal name to its attached native module,
// populated by InstallStdlib (stdlib.go). The CLI's -X test.init option
// does not go through it: it assigns a DebugModule to class.Native
// directly.
type Registry struct {
	modules map[string]*Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// ModuleFor returns (creating if absent) the native module for className.
func (r *Registry) ModuleFor(className string) *Module {
	m, ok := r.modules[className]
	if !ok {
		m = NewModule()
		r.modules[className] = m
	}
	return m
}

// Attach installs a class's module onto the Class itself, so the
// interpreter's native dispatch (spec.md §4.3 "Invocation" / §4.5) finds
// it via class.Native without consulting the registry again.
func (r *Registry) Attach(class *classloader.Class) {
	if m, ok := r.modules[class.Name]; ok {
		class.Native = m
	}
}
