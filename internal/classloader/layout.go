/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"github.com/jacobin-vm/classvm/internal/heap"

	"github.com/jacobin-vm/classvm/internal/classfile"
)

// fieldWidth returns the byte width a field of the given descriptor
// occupies in an instance layout: 8 for long/double, heap.RefFieldWidth
// for object and array references, 4 for every other base type. This
// must agree with the widths internal/heap's Object/Array accessors
// expect (GetInt32/GetInt64/GetRef).
func fieldWidth(descriptor string) int {
	if descriptor == "" {
		return 4
	}
	switch descriptor[0] {
	case 'J', 'D':
		return 8
	case 'L', '[':
		return heap.RefFieldWidth
	default:
		return 4
	}
}

// align rounds offset up to a multiple of width (natural alignment,
// spec.md §4.1 step 2 "each field padded to its natural alignment").
func align(offset, width int) int {
	if width <= 0 {
		return offset
	}
	rem := offset % width
	if rem == 0 {
		return offset
	}
	return offset + (width - rem)
}

// computeLayout implements spec.md §4.1 "Layout computation": the base
// layout is the object header; own declared instance fields are added in
// declaration order at aligned offsets; then each ancestor's declared
// fields are merged in, in turn, at offsets adjusted by the accumulated
// size at the point that ancestor's block begins, aligning after each
// ancestor. Fields are keyed by (name, descriptor) so a subclass can
// shadow an ancestor field under the same name with a different type.
func computeLayout(own *classfile.ClassFile, super *Class) (*heap.Layout, error) {
	layout := heap.NewLayout(headerSize)

	offset := layout.Size
	for _, f := range own.Fields {
		if f.IsStatic() {
			continue
		}
		width := fieldWidth(f.Descriptor)
		offset = align(offset, width)
		if err := layout.Add(f.Name, f.Descriptor, offset); err != nil {
			return nil, err
		}
		offset += width
	}
	layout.Size = offset

	for anc := super; anc != nil; anc = anc.SuperClass {
		if anc.File == nil {
			break // reached a synthetic root with no declared fields
		}
		base := align(layout.Size, 8)
		cursor := base
		for _, f := range anc.File.Fields {
			if f.IsStatic() {
				continue
			}
			key := heap.FieldKey{Name: f.Name, Descriptor: f.Descriptor}
			if _, exists := layout.Fields[key]; exists {
				continue // shadowed by a closer declaration, already present
			}
			width := fieldWidth(f.Descriptor)
			cursor = align(cursor, width)
			if err := layout.Add(f.Name, f.Descriptor, cursor); err != nil {
				return nil, err
			}
			cursor += width
		}
		layout.Size = align(cursor, 8)
	}

	return layout, nil
}

// headerSize mirrors heap.RefFieldWidth's sibling constant: the notional
// header size every instance layout reserves at offset 0. heap's own
// unexported headerSize is the literal 16; the two agree only where
// heap.RefFieldWidth (two pointers) is 16 bytes, i.e. on 64-bit platforms.
const headerSize = heap.RefFieldWidth
