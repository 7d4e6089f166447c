/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package heap

import "sync"

// Header is present at offset 0 of every heap allocation: ordinary object,
// class object, string, or array (spec.md §3 "Object header"). Expressing
// it as a capability set embedded by value, rather than via a common base
// interface implemented polymorphically, is how spec.md §9 says to model
// "object header polymorphism": any T that embeds Header satisfies
// HasHeader for free, and a Handle[T] can be reinterpreted to Handle[Object]
// (Cast) because the header's bytes mean the same thing at every type.
type Header struct {
	class    Meta
	super    Meta
	refCount int32
	mu       sync.Mutex

	// freed/freedSize record the deterministic "last handle dropped"
	// moment (spec.md §8 invariant); see the package doc comment for why
	// this does not also free raw memory.
	freed     bool
	freedSize int
}

// Class returns the meta-class: the Class describing this allocation's
// runtime type.
func (h *Header) Class() Meta { return h.class }

// SetClass retargets the header's class reference. Set when an object,
// array or class is created, and again for every loaded class during
// bootstrap, to back-patch every class's meta-class pointer once the
// class-of-class itself has been registered (spec.md §4.1 "Class-of-class
// self-loop").
func (h *Header) SetClass(m Meta) { h.class = m }

// SetSuper sets the header's super-class reference.
func (h *Header) SetSuper(m Meta) { h.super = m }

// Super returns the header's super-class reference: for a Class's own
// header this is the Class of its superclass; for an ordinary instance it
// mirrors the owning class's superclass, so any heap entity can answer
// "what do I inherit from" without consulting its class's class-file.
func (h *Header) Super() Meta { return h.super }

// RefCount returns the current reference count. Exposed for tests that
// assert on the ref-counting invariants in spec.md §8.
func (h *Header) RefCount() int32 { return h.refCount }

// Freed reports whether the last handle to this allocation has already
// been dropped, and the layout size recorded at that moment.
func (h *Header) Freed() (bool, int) { return h.freed, h.freedSize }

// Lock is the field-write lock mentioned in spec.md §3/§4.2. It exists to
// forbid torn writes within a single thread accessing the same field
// through multiple typed views; the single-threaded interpreter (spec.md
// §5) never contends it, so a plain Mutex (rather than anything
// lock-free) is the right amount of machinery.
func (h *Header) Lock() *sync.Mutex { return &h.mu }

// retain and release implement the shared refcount bump/drop used by both
// Handle[T] (handle.go) and reference-typed field slots (object.go), so
// the two call sites can't drift out of sync on the freed/freedSize
// bookkeeping.
func (h *Header) retain() { h.refCount++ }

func (h *Header) release() {
	h.refCount--
	if h.refCount <= 0 {
		size := 0
		if h.class != nil {
			size = h.class.InstanceLayout().Size
		}
		h.freed = true
		h.freedSize = size
	}
}
