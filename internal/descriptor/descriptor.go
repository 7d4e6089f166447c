/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package descriptor parses and renders JVM field and method type
// descriptors (JVM spec §4.3). Grounded on
// original_source/sources/support/src/descriptor.rs: a descriptor is parsed
// into a structured Field/Method value rather than kept as a raw string, so
// round-tripping (spec.md §8) is a property of the type, not of string
// equality.
package descriptor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Field is a parsed field-type descriptor: a base type, an object type, or
// an array of either, with its dimension count folded in.
type Field struct {
	Base      string // one of the one-letter tags in types.PrimitiveDescriptors, or "" if not a base type
	ClassName string // set only when this is an object type (descriptor "L<ClassName>;")
	Dims      int    // > 0 when this is an array type; Base/ClassName then describe the element type
}

// IsBase reports whether this descriptor names a primitive base type.
func (f Field) IsBase() bool { return f.Dims == 0 && f.Base != "" }

// IsObject reports whether this descriptor names a plain (non-array) class type.
func (f Field) IsObject() bool { return f.Dims == 0 && f.ClassName != "" }

// IsArray reports whether this descriptor names an array type.
func (f Field) IsArray() bool { return f.Dims > 0 }

// ElementDescriptor returns the descriptor of one dimension down: for an
// N-dimensional array it is the (N-1)-dimensional array or element type.
func (f Field) ElementDescriptor() Field {
	if f.Dims <= 1 {
		return Field{Base: f.Base, ClassName: f.ClassName}
	}
	return Field{Base: f.Base, ClassName: f.ClassName, Dims: f.Dims - 1}
}

// String renders the descriptor back to its JVM textual form.
func (f Field) String() string {
	prefix := strings.Repeat("[", f.Dims)
	if f.Base != "" {
		return prefix + f.Base
	}
	return prefix + "L" + f.ClassName + ";"
}

// Method is a parsed method descriptor: an ordered parameter list and a
// return type (Field with Base == "V" for void).
type Method struct {
	Parameters []Field
	ReturnType Field
}

// String renders the descriptor back to its JVM textual form, e.g. "(I)V".
func (m Method) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Parameters {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	sb.WriteString(m.ReturnType.String())
	return sb.String()
}

// ArgSlots returns the number of local-variable slots the parameters occupy,
// long and double each counting for two.
func (m Method) ArgSlots() int {
	n := 0
	for _, p := range m.Parameters {
		if p.Dims == 0 && (p.Base == "J" || p.Base == "D") {
			n += 2
		} else {
			n++
		}
	}
	return n
}

var baseTags = map[byte]string{
	'B': "B", 'C': "C", 'D': "D", 'F': "F",
	'I': "I", 'J': "J", 'S': "S", 'Z': "Z", 'V': "V",
}

// ParseField parses a single field-type descriptor, e.g. "I", "[Ljava/lang/String;".
func ParseField(s string) (Field, error) {
	f, rest, err := parseFieldFrom(s)
	if err != nil {
		return Field{}, err
	}
	if rest != "" {
		return Field{}, errors.Errorf("descriptor: trailing characters after field type: %q", rest)
	}
	return f, nil
}

func parseFieldFrom(s string) (Field, string, error) {
	if s == "" {
		return Field{}, "", errors.New("descriptor: empty field type")
	}

	dims := 0
	for len(s) > 0 && s[0] == '[' {
		dims++
		s = s[1:]
	}
	if s == "" {
		return Field{}, "", errors.New("descriptor: array with no element type")
	}

	if base, ok := baseTags[s[0]]; ok {
		return Field{Base: base, Dims: dims}, s[1:], nil
	}

	if s[0] == 'L' {
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return Field{}, "", errors.New("descriptor: unterminated object type, missing ';'")
		}
		return Field{ClassName: s[1:end], Dims: dims}, s[end+1:], nil
	}

	return Field{}, "", errors.Errorf("descriptor: unknown type tag %q", s[0])
}

// ParseMethod parses a method descriptor, e.g. "(ILjava/lang/String;)V".
func ParseMethod(s string) (Method, error) {
	if !strings.HasPrefix(s, "(") {
		return Method{}, errors.New("descriptor: method descriptor must start with '('")
	}
	s = s[1:]

	var params []Field
	for len(s) > 0 && s[0] != ')' {
		f, rest, err := parseFieldFrom(s)
		if err != nil {
			return Method{}, errors.Wrap(err, "descriptor: parsing parameter")
		}
		params = append(params, f)
		s = rest
	}
	if !strings.HasPrefix(s, ")") {
		return Method{}, errors.New("descriptor: missing closing ')'")
	}
	s = s[1:]

	ret, rest, err := parseFieldFrom(s)
	if err != nil {
		return Method{}, errors.Wrap(err, "descriptor: parsing return type")
	}
	if rest != "" {
		return Method{}, errors.Errorf("descriptor: trailing characters after return type: %q", rest)
	}

	return Method{Parameters: params, ReturnType: ret}, nil
}

// Key renders a stable map key for a (name, descriptor) pair, as used by
// method tables and native-module bindings (spec.md §4.5).
func Key(name, desc string) string {
	return fmt.Sprintf("%s%s", name, desc)
}
