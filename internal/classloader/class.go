/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classloader loads class files from a configured search path,
// computes merged field layouts across a class and its ancestors, and
// registers synthetic classes for primitives and arrays (spec.md §4.1).
// Grounded on jacobin's classloader.go (Classloader/ParsedClass/Method
// registry shape), reworked around internal/classfile's already-parsed
// model and internal/heap's offset-based layout instead of jacobin's
// FieldTable-by-name object model.
package classloader

import (
	"sync"

	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/value"

	"github.com/jacobin-vm/classvm/internal/classfile"
)

// Category distinguishes the three class shapes spec.md §3/§4.1 describes.
type Category int

const (
	CategoryObject Category = iota
	CategoryPrimitive
	CategoryArray
)

// Class represents one loaded type (spec.md §3 "Class"). It is itself a
// heap entity - its header is the class object's header, and its meta-class
// (Header.Class()) is the class-of-class once bootstrap back-patches it
// (spec.md §9 "Class-of-class self-loop").
type Class struct {
	heap.Header

	Name              string
	File              *classfile.ClassFile // nil for synthetic primitive/array classes
	Category          Category
	ElementDescriptor string // element type descriptor, only set for Category == CategoryArray
	SuperClass        *Class
	Layout            *heap.Layout
	Native            NativeModule // optional; nil if this class has no native bindings

	mu          sync.Mutex
	initialized bool
	statics     map[string]value.Value
}

func (c *Class) Hdr() *heap.Header { return &c.Header }

// ClassName implements heap.Meta.
func (c *Class) ClassName() string { return c.Name }

// InstanceLayout implements heap.Meta.
func (c *Class) InstanceLayout() *heap.Layout { return c.Layout }

// IsInterface reports whether the underlying class file declares an
// interface. Synthetic classes are never interfaces.
func (c *Class) IsInterface() bool {
	return c.File != nil && c.File.IsInterface()
}

// IsInitialized reports whether <clinit> has already run (or this class
// has no <clinit> and was marked initialized trivially).
func (c *Class) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// MarkInitialized marks the class initialized before running <clinit>, so
// a cycle in static initializers sees the class as already-initialized
// rather than re-entering (spec.md §4.3 "Class initialization").
func (c *Class) MarkInitialized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
}

// GetStatic returns a static field's current value. The second result is
// false if no value has been stored yet; no zero value is supplied here.
func (c *Class) GetStatic(name string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.statics[name]
	return v, ok
}

// SetStatic stores a static field's value.
func (c *Class) SetStatic(name string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statics == nil {
		c.statics = make(map[string]value.Value)
	}
	c.statics[name] = v
}

// MethodByNameAndDescriptor looks up a declared method, not searching
// ancestors (virtual dispatch walking the superclass chain is the
// interpreter's job, since it alone knows the call-site's invoke kind).
func (c *Class) MethodByNameAndDescriptor(name, descriptor string) (classfile.Method, bool) {
	if c.File == nil {
		return classfile.Method{}, false
	}
	return c.File.MethodByNameAndDescriptor(name, descriptor)
}

// CanAssign reports whether a value of class from is assignable to a
// variable of class to: from equals to, or from descends from to through
// the superclass chain (spec.md §3 "Exception entry", Class::can_assign).
// Interfaces are not modeled as part of assignability here: spec.md's
// exception catch-type matching only ever resolves to a class, never an
// interface.
func CanAssign(from, to *Class) bool {
	for cur := from; cur != nil; cur = cur.SuperClass {
		if cur == to {
			return true
		}
	}
	return false
}
