/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/value"
)

// VM is the capability surface a native method needs from the running
// interpreter: allocation, string interning, and raising a guest
// exception. Declaring it here (rather than importing internal/interp)
// keeps classloader free of a dependency on the package that in turn
// depends on classloader, the same heap.Meta cycle-breaking trick
// applied to native callables (spec.md §4.5 "Native Module Registry").
type VM interface {
	Allocate(class *Class) heap.Handle[heap.Object]
	InternString(text string) heap.Handle[heap.Object]
	ThrowGuest(className, message string) error
}

// NativeKind distinguishes the two callable shapes spec.md §4.5 and §9
// describe, modeled as a tagged variant rather than a common interface
// because the call site already knows which shape applies from the
// method's access flags (static or not).
type NativeKind int

const (
	NativeStatic NativeKind = iota
	NativeInstance
)

// StaticNative is called for a native method with ACC_STATIC set.
type StaticNative func(class *Class, args []value.Value, vm VM) (value.Value, bool, error)

// InstanceNative is called for a native instance method; this is the
// receiver, already popped from the argument list.
type InstanceNative func(this heap.Handle[heap.Object], args []value.Value, vm VM) (value.Value, bool, error)

// NativeMethod is one registered binding. Usually one of Static/Instance
// is populated, selected by Kind; when both are populated, the method's
// ACC_STATIC flag selects between them.
type NativeMethod struct {
	Kind     NativeKind
	Static   StaticNative
	Instance InstanceNative
}

// NativeModule binds a class's native methods by (name, descriptor). A
// class carries at most one NativeModule (spec.md §4.5 "Each class may
// carry one native module").
type NativeModule interface {
	Lookup(name, descriptor string) (NativeMethod, bool)
}
