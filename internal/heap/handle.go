/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package heap

import "unsafe"

// HasHeader is implemented by every heap entity: Object, Array, and
// classloader.Class (by embedding Header and exposing it).
type HasHeader interface {
	Hdr() *Header
}

// Handle is a shared, ref-counted owning reference to a heap allocation
// (spec.md §3 "Handle", §4.2). Handles are compared by identity (the
// pointer they hold), never by value.
type Handle[T HasHeader] struct {
	ptr *T
}

// Null returns the null handle for T. Null handles do not participate in
// ref-counting (spec.md §4.2).
func Null[T HasHeader]() Handle[T] {
	return Handle[T]{}
}

// Wrap takes ownership of a freshly allocated T, setting its initial
// refcount to 1. Callers must not wrap the same pointer twice.
func Wrap[T HasHeader](ptr *T) Handle[T] {
	if ptr == nil {
		return Null[T]()
	}
	h := any(ptr).(HasHeader).Hdr()
	h.refCount = 1
	return Handle[T]{ptr: ptr}
}

// IsNull reports whether this handle holds no allocation.
func (h Handle[T]) IsNull() bool { return h.ptr == nil }

// Ptr returns the raw pointer for field/method access. Returns nil for a
// null handle; callers that dereference a null handle are expected to
// raise a guest null-pointer exception (spec.md §8), which is the
// interpreter's job, not this package's.
func (h Handle[T]) Ptr() *T { return h.ptr }

// Clone increments the allocation's refcount and returns a new handle
// sharing ownership (spec.md §4.2 "incrementing the header's refcount on
// clone").
func (h Handle[T]) Clone() Handle[T] {
	if h.ptr == nil {
		return h
	}
	any(h.ptr).(HasHeader).Hdr().retain()
	return h
}

// Drop releases this handle's share of ownership. When the refcount
// reaches zero the allocation is marked Freed, recording the layout size
// it held at that moment (spec.md §8). A null handle's Drop is a no-op.
func (h Handle[T]) Drop() {
	if h.ptr == nil {
		return
	}
	any(h.ptr).(HasHeader).Hdr().release()
}

// Eq compares two handles by identity (address), per spec.md §4.2.
func (h Handle[T]) Eq(other Handle[T]) bool { return h.ptr == other.ptr }

// Cast statically retypes a handle without touching the underlying data.
// This is the unchecked operation named in spec.md §4.2: the caller must
// justify, from the object's actual class, that U is a safe reinterpretation
// of T (e.g. erasing Handle[Object] to Handle[Array], or widening
// Handle[Array] back to Handle[Object]). Cast does not change the refcount:
// the returned handle and h share one reference, so exactly one of the two
// is ultimately Dropped (every Clone, not every Cast, is matched by one
// Drop).
func Cast[U HasHeader, T HasHeader](h Handle[T]) Handle[U] {
	if h.ptr == nil {
		return Null[U]()
	}
	return Handle[U]{ptr: (*U)(unsafe.Pointer(h.ptr))}
}

// FieldHandle is a shared owning reference to one field slot inside a known
// object (spec.md §3 "Handle"/"FieldHandle"). It holds the owning object
// alive exactly like a Handle[Object] does.
type FieldHandle struct {
	obj Handle[Object]
	loc FieldLocation
}

// NewFieldHandle builds a FieldHandle over obj at the given location,
// cloning obj's handle so the field handle keeps the allocation alive
// independently of the caller's own handle.
func NewFieldHandle(obj Handle[Object], loc FieldLocation) FieldHandle {
	return FieldHandle{obj: obj.Clone(), loc: loc}
}

// Drop releases this field handle's share of the owning object.
func (f FieldHandle) Drop() { f.obj.Drop() }
