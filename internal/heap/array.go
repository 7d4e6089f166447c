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

// ErrIndexOutOfBounds is returned by Array element access when the index
// falls outside [0, Length). The interpreter (internal/interp), not this
// package, is responsible for turning this into a guest-visible
// ArrayIndexOutOfBoundsException (spec.md §4.3 "Array access").
var ErrIndexOutOfBounds = fmt.Errorf("heap: array index out of bounds")

// Array is an object whose layout begins with the header, then a signed
// 32-bit length, then a contiguous element payload (spec.md §3 "Array").
// The element type lives on the array's class (classloader.Class's
// ElementDescriptor), not on the instance.
type Array struct {
	Header
	length     int32
	elemWidth  int
	isRefArray bool
	data       []byte
}

func (a *Array) Hdr() *Header { return &a.Header }

// Length returns the array's element count.
func (a *Array) Length() int32 { return a.length }

// NewArray allocates a zero-initialized array of the given element
// category and length (spec.md §4.1 "Array allocation"). elemWidth is 4
// for category-1 primitive elements, 8 for long/double elements, and
// RefFieldWidth for references; isRefArray marks elements as reference-typed so SetElemRef/
// GetElemRef are used instead of the Int32/Int64 accessors.
func NewArray(class Meta, length int32, elemWidth int, isRefArray bool) Handle[Array] {
	arr := &Array{
		length:     length,
		elemWidth:  elemWidth,
		isRefArray: isRefArray,
		data:       make([]byte, int(length)*elemWidth),
	}
	arr.SetClass(class)
	return Wrap(arr)
}

func (a *Array) bounds(index int32, n int) ([]byte, error) {
	if index < 0 || index >= a.length {
		return nil, ErrIndexOutOfBounds
	}
	start := int(index) * n
	return a.data[start : start+n], nil
}

// GetInt32 reads a category-1 primitive element.
func (a *Array) GetInt32(index int32) (int32, error) {
	b, err := a.bounds(index, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// SetInt32 writes a category-1 primitive element.
func (a *Array) SetInt32(index int32, v int32) error {
	a.Lock().Lock()
	defer a.Lock().Unlock()
	b, err := a.bounds(index, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, uint32(v))
	return nil
}

// GetInt64 reads a category-2 primitive element (long or double).
func (a *Array) GetInt64(index int32) (int64, error) {
	b, err := a.bounds(index, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// SetInt64 writes a category-2 primitive element.
func (a *Array) SetInt64(index int32, v int64) error {
	a.Lock().Lock()
	defer a.Lock().Unlock()
	b, err := a.bounds(index, 8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, uint64(v))
	return nil
}

// GetElemRef reads a reference-typed element of known element type T (the
// array's own ElementDescriptor tells the caller what T is). A free
// function for the same reason GetRef is: methods can't add type params.
func GetElemRef[T HasHeader](a *Array, index int32) (Handle[T], error) {
	b, err := a.bounds(index, RefFieldWidth)
	if err != nil {
		return Null[T](), err
	}
	rh := *(*refHeader)(unsafe.Pointer(&b[0]))
	if rh.hdr == nil {
		return Null[T](), nil
	}
	return Handle[T]{ptr: (*T)(rh.obj)}, nil
}

// SetElemRef writes a reference-typed element, retaining value and
// releasing whatever reference previously occupied the slot (spec.md
// §4.2, same ownership-transfer rule as SetRef).
func SetElemRef[T HasHeader](a *Array, index int32, value Handle[T]) error {
	a.Lock().Lock()
	defer a.Lock().Unlock()

	b, err := a.bounds(index, RefFieldWidth)
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
