/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package types holds the small, dependency-free constants shared by every
// other package: the one-character JVM field-descriptor tags and the
// well-known internal names bootstrap needs before a string pool or class
// registry exists to look them up in.
package types

// Field descriptor tags, JVM spec table 4.3.2.
const (
	Boolean   = "Z"
	Byte      = "B"
	Short     = "S"
	Char      = "C"
	Int       = "I"
	Long      = "J"
	Float     = "F"
	Double    = "D"
	Void      = "V"
	RefPrefix = "L"
	ArrayPrefix = "["
)

// JavaByte is a signed 8-bit value, matching the JVM's byte, as distinct
// from Go's unsigned byte.
type JavaByte int8

// Well-known internal (slash-separated) class names, resolved at bootstrap
// before the class registry can answer `ForName` lookups for them.
const (
	ObjectClassName = "java/lang/Object"
	ClassClassName  = "java/lang/Class"
	StringClassName = "java/lang/String"
	ByteArrayClassName = "[B"
)

// PrimitiveDescriptors lists the one-letter primitive type tags in class-file
// order; each gets a synthetic Class at bootstrap (spec.md §4.1).
var PrimitiveDescriptors = []string{Boolean, Byte, Short, Char, Int, Long, Float, Double, Void}

// IsPrimitiveDescriptor reports whether d is one of the one-letter primitive
// tags (not an array or reference descriptor).
func IsPrimitiveDescriptor(d string) bool {
	if len(d) != 1 {
		return false
	}
	for _, p := range PrimitiveDescriptors {
		if d == p {
			return true
		}
	}
	return false
}

// CategoryWidth returns the number of local-variable / operand-stack slots
// occupied by a value of the given descriptor: 2 for long/double, 1 otherwise.
func CategoryWidth(descriptor string) int {
	if descriptor == Long || descriptor == Double {
		return 2
	}
	return 1
}
