/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package stringpool implements the process-scoped string interner
// (spec.md §4.4), installed once at bootstrap with the string, object,
// and byte-array classes it needs to allocate into. Grounded on jacobin's
// stringPool package for the dedup-by-text idiom, rebuilt around this
// system's heap/classloader types instead of jacobin's global
// string-to-index table.
package stringpool

import (
	"sync"
	"unicode/utf16"

	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/heap"
)

// Encoding tags mirror java.lang.String's internal coder field. Latin-1
// compaction is a reserved future optimization (spec.md §9 "Open
// questions"); this interner always produces UTF-16BE, per spec.md §4.4's
// explicit default heuristic.
const (
	CoderLatin1 int32 = 0
	CoderUTF16  int32 = 1
)

// byteElemWidth is the storage stride heap.Array's Get/SetInt32 use for
// every sub-long, sub-double element (spec.md §4.2: all category-1
// primitives share one 4-byte slot, byte included), matching the width
// internal/interp's array opcodes assume for byte arrays.
const byteElemWidth = 4

// Interner is the process-wide singleton described by spec.md §4.4,
// deduping by the source text.
type Interner struct {
	mu      sync.Mutex
	strings map[string]heap.Handle[heap.Object]

	stringClass    *classloader.Class
	byteArrayClass *classloader.Class
}

// New installs the interner with the three classes bootstrap resolved
// (spec.md §4.4 "installed once at bootstrap with
// (string_class, object_class, byte_array_class)"). object_class isn't
// needed directly here (string instances are produced through
// stringClass's own layout), so it's accepted for signature symmetry with
// the spec and otherwise unused.
func New(stringClass, objectClass, byteArrayClass *classloader.Class) *Interner {
	_ = objectClass
	return &Interner{
		strings:        make(map[string]heap.Handle[heap.Object]),
		stringClass:    stringClass,
		byteArrayClass: byteArrayClass,
	}
}

// Intern returns the canonical string object for text, allocating one on
// first sight (spec.md §4.4). Idempotent: Intern(s) == Intern(s) by
// handle identity (spec.md §8).
func (in *Interner) Intern(text string) heap.Handle[heap.Object] {
	in.mu.Lock()
	defer in.mu.Unlock()

	if existing, ok := in.strings[text]; ok {
		return existing.Clone()
	}

	encoded := Encode(text)
	byteArray := heap.NewArray(in.byteArrayClass, int32(len(encoded)), byteElemWidth, false)
	for i, b := range encoded {
		_ = byteArray.Ptr().SetInt32(int32(i), int32(int8(b)))
	}

	obj := heap.NewObject(in.stringClass)
	setField := func(name string, v int32) {
		loc, ok := in.stringClass.Layout.Lookup(name, "I")
		if ok {
			_ = obj.Ptr().SetInt32(loc.Offset, v)
		}
	}
	if refLoc, ok := in.stringClass.Layout.Lookup("value", "[B"); ok {
		_ = heap.SetRef(obj.Ptr(), refLoc.Offset, byteArray)
	}
	byteArray.Drop()
	setField("coder", CoderUTF16)
	setField("hash", 0)
	setField("hashIsZero", 1)

	in.strings[text] = obj
	return obj.Clone()
}

// Encode renders text per the interner's heuristic: UTF-16 big-endian,
// two bytes per code unit (spec.md §4.4, §9 "Encoding heuristic ... stubbed
// to always produce UTF-16").
func Encode(text string) []byte {
	units := utf16.Encode([]rune(text))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

// Decode reverses Encode (spec.md §8 "decode(encode(s)) == s").
func Decode(encoded []byte) string {
	units := make([]uint16, 0, len(encoded)/2)
	for i := 0; i+1 < len(encoded); i += 2 {
		units = append(units, uint16(encoded[i])<<8|uint16(encoded[i+1]))
	}
	return string(utf16.Decode(units))
}
