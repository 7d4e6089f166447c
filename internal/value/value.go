/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package value implements the tagged runtime value union shared by the
// operand stack, locals, and static fields (spec.md §3 "Runtime value").
package value

import "github.com/jacobin-vm/classvm/internal/heap"

// Kind discriminates a Value's payload. Booleans, chars, bytes and shorts
// are all represented as Int (spec.md §3).
type Kind int

const (
	Ref Kind = iota
	Int
	Long
	Float
	Double
)

func (k Kind) String() string {
	switch k {
	case Ref:
		return "ref"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// Value is a tagged union: an object handle, a widened integral (i64 under
// Int or Long), or a widened floating value (f64 under Float or Double).
// The tag governs wraparound and comparison semantics even though Int and
// Long (likewise Float and Double) share a storage width.
type Value struct {
	kind    Kind
	integer int64
	float64 float64
	ref     heap.Handle[heap.Object]
}

// Category reports the stack/locals slot width: 2 for Long and Double, 1
// otherwise (spec.md §3, "long and double occupy two adjacent slots").
func (v Value) Category() int {
	if v.kind == Long || v.kind == Double {
		return 2
	}
	return 1
}

func (v Value) Kind() Kind { return v.kind }

func Int32(v int32) Value                     { return Value{kind: Int, integer: int64(v)} }
func Int64(v int64) Value                     { return Value{kind: Long, integer: v} }
func Float32(v float32) Value                 { return Value{kind: Float, float64: float64(v)} }
func Float64(v float64) Value                 { return Value{kind: Double, float64: v} }
func RefVal(h heap.Handle[heap.Object]) Value { return Value{kind: Ref, ref: h} }
func NullRef() Value                          { return Value{kind: Ref} }

// AsInt32 truncates the stored integral to 32 bits (spec.md §3: "all
// 32-bit arithmetic truncates its operands to 32 bits before operating").
func (v Value) AsInt32() int32 { return int32(v.integer) }

// AsInt64 returns the full 64-bit integral.
func (v Value) AsInt64() int64 { return v.integer }

func (v Value) AsFloat32() float32 { return float32(v.float64) }
func (v Value) AsFloat64() float64 { return v.float64 }
func (v Value) AsRef() heap.Handle[heap.Object] { return v.ref }

// IsNullRef reports whether this is a reference-kind value holding no
// allocation.
func (v Value) IsNullRef() bool { return v.kind == Ref && v.ref.IsNull() }

// ZeroFor returns the default value for a field/local of the given JVM
// type descriptor: null for references and arrays, 0/0.0 for numeric
// bases (spec.md §4.2 "zero-initializes every declared field to the
// type-appropriate default").
func ZeroFor(descriptor string) Value {
	if len(descriptor) == 0 {
		return Int32(0)
	}
	switch descriptor[0] {
	case 'J':
		return Int64(0)
	case 'F':
		return Float32(0)
	case 'D':
		return Float64(0)
	case 'L', '[':
		return NullRef()
	default:
		return Int32(0)
	}
}
