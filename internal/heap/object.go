/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package heap

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Object is the generic heap entity backing ordinary instances, class
// objects' boxed fields, and built-in strings (spec.md §3 "Built-in
// string" is just an Object whose class is java/lang/String: it carries
// no Go-level type of its own, only a class name and four fields reached
// through the same field-access API as any other instance). Field storage
// is a single contiguous byte region addressed by the offsets the class's
// Layout assigns; reference-typed fields are stored as raw pointers
// reinterpreted through unsafe, alongside the owning Header so retain/
// release stays correct without knowing the pointee's concrete type.
type Object struct {
	Header
	data []byte
}

func (o *Object) Hdr() *Header { return &o.Header }

// NewObject allocates a zero-initialized instance of class, sized to its
// instance layout, and wraps it in an owning Handle (spec.md §4.1
// "Allocation" / §4.2 "Handle").
func NewObject(class Meta) Handle[Object] {
	layout := class.InstanceLayout()
	obj := &Object{data: make([]byte, layout.Size)}
	obj.SetClass(class)
	if hh, ok := class.(HasHeader); ok {
		obj.SetSuper(hh.Hdr().Super())
	}
	return Wrap(obj)
}

// refHeader is the pointer layout shared by every reference-typed field
// slot: the owning Header, found at offset 0 of whatever concrete struct
// (Object, Array, or a classloader.Class) the slot points to, and an
// opaque pointer to that struct for dereference. Storing *Header directly
// lets retain/release run without generic type parameters.
type refHeader struct {
	hdr *Header
	obj unsafe.Pointer
}

// field returns the byte slice of length n at offset, bounds-checked
// against the instance's data region.
func (o *Object) field(offset, n int) ([]byte, error) {
	start := offset - headerSize
	if start < 0 || start+n > len(o.data) {
		return nil, fmt.Errorf("heap: field offset %d (len %d) out of bounds for instance of size %d", offset, n, len(o.data)+headerSize)
	}
	return o.data[start : start+n], nil
}

// GetInt32 reads a 4-byte field (int, float, boolean, byte, char, short
// all occupy one category-1 slot per spec.md §3 "Runtime value").
func (o *Object) GetInt32(offset int) (int32, error) {
	b, err := o.field(offset, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// SetInt32 writes a 4-byte field, holding the field-write lock for the
// duration (spec.md §3 "field-write lock").
func (o *Object) SetInt32(offset int, v int32) error {
	o.Lock().Lock()
	defer o.Lock().Unlock()
	b, err := o.field(offset, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, uint32(v))
	return nil
}

// GetInt64 reads an 8-byte field (long or double, category-2 per
// spec.md §3).
func (o *Object) GetInt64(offset int) (int64, error) {
	b, err := o.field(offset, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// SetInt64 writes an 8-byte field.
func (o *Object) SetInt64(offset int, v int64) error {
	o.Lock().Lock()
	defer o.Lock().Unlock()
	b, err := o.field(offset, 8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, uint64(v))
	return nil
}

// GetRef reads a reference-typed field of known element type T (the
// caller determines T from the field's declared descriptor: "Lwhatever;"
// decodes as Object, an array descriptor decodes as Array). A zeroed
// refHeader (hdr == nil) represents a null reference. GetRef is a free
// function, not a method, because Go methods cannot introduce new type
// parameters beyond the receiver's own.
func GetRef[T HasHeader](o *Object, offset int) (Handle[T], error) {
	b, err := o.field(offset, RefFieldWidth)
	if err != nil {
		return Null[T](), err
	}
	rh := *(*refHeader)(unsafe.Pointer(&b[0]))
	if rh.hdr == nil {
		return Null[T](), nil
	}
	return Handle[T]{ptr: (*T)(rh.obj)}, nil
}

// SetRef stores value into the reference-typed field at offset, retaining
// value's allocation and releasing whatever reference previously occupied
// the slot (spec.md §4.2: a field write transfers ownership from the old
// occupant to the new one).
func SetRef[T HasHeader](o *Object, offset int, value Handle[T]) error {
	o.Lock().Lock()
	defer o.Lock().Unlock()

	b, err := o.field(offset, RefFieldWidth)
	if err != nil {
		return err
	}
	old := *(*refHeader)(unsafe.Pointer(&b[0]))

	var next refHeader
	if !value.IsNull() {
		value.Ptr().Hdr().retain()
		next = refHeader{hdr: value.Ptr().Hdr(), obj: unsafe.Pointer(value.Ptr())}
	}
	*(*refHeader)(unsafe.Pointer(&b[0])) = next

	if old.hdr != nil {
		old.hdr.release()
	}
	return nil
}

// headerSize is the notional size an object header occupies at the front
// of every instance layout (spec.md §3 "occupies offset 0"). Layouts are
// built with NewLayout(headerSize) so field offsets line up with this
// value; Object itself doesn't store header bytes in data (the real
// Header lives in the Go struct), so field() translates offset back down
// by this amount.
const headerSize = 16

// RefFieldWidth is the byte width a reference-typed field or array element
// occupies: a refHeader value. Exported so classloader's layout computation
// assigns the same width the accessors here expect.
const RefFieldWidth = int(unsafe.Sizeof(refHeader{}))
