package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classvm/internal/types"
)

// cpBuilder assembles the bytes of a minimal, hand-rolled class file so
// parser tests don't depend on javac-produced fixtures.
type cpBuilder struct {
	entries [][]byte
}

func (b *cpBuilder) utf8(s string) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagUtf8)
	binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
	b.entries = append(b.entries, buf.Bytes())
	return uint16(len(b.entries))
}

func (b *cpBuilder) class(nameIdx uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagClass)
	binary.Write(buf, binary.BigEndian, nameIdx)
	b.entries = append(b.entries, buf.Bytes())
	return uint16(len(b.entries))
}

func (b *cpBuilder) integer(v int32) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagInteger)
	binary.Write(buf, binary.BigEndian, v)
	b.entries = append(b.entries, buf.Bytes())
	return uint16(len(b.entries))
}

// buildClassWithField assembles a class with a single field and no methods,
// optionally carrying a ConstantValue attribute set to intConstant, for the
// field-descriptor validation tests below. intConstant is ignored when
// withConstant is false.
func buildClassWithField(t *testing.T, fieldDescriptor string, withConstant bool, intConstant int32) []byte {
	t.Helper()

	cp := &cpBuilder{}
	thisUtf8 := cp.utf8("Example")
	superUtf8 := cp.utf8("java/lang/Object")
	thisClass := cp.class(thisUtf8)
	superClass := cp.class(superUtf8)
	fieldNameIdx := cp.utf8("f")
	fieldDescIdx := cp.utf8(fieldDescriptor)
	var constantValueName, constantValueIdx uint16
	if withConstant {
		constantValueName = cp.utf8("ConstantValue")
		constantValueIdx = cp.integer(intConstant)
	}

	out := new(bytes.Buffer)
	binary.Write(out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(out, binary.BigEndian, uint16(0))
	binary.Write(out, binary.BigEndian, uint16(61))

	binary.Write(out, binary.BigEndian, uint16(len(cp.entries)+1))
	for _, e := range cp.entries {
		out.Write(e)
	}

	binary.Write(out, binary.BigEndian, uint16(AccPublic|AccSuper))
	binary.Write(out, binary.BigEndian, thisClass)
	binary.Write(out, binary.BigEndian, superClass)
	binary.Write(out, binary.BigEndian, uint16(0)) // interfaces count

	binary.Write(out, binary.BigEndian, uint16(1)) // fields count
	binary.Write(out, binary.BigEndian, uint16(0)) // field access flags
	binary.Write(out, binary.BigEndian, fieldNameIdx)
	binary.Write(out, binary.BigEndian, fieldDescIdx)
	if withConstant {
		binary.Write(out, binary.BigEndian, uint16(1)) // field attribute count
		binary.Write(out, binary.BigEndian, constantValueName)
		binary.Write(out, binary.BigEndian, uint32(2))
		binary.Write(out, binary.BigEndian, constantValueIdx)
	} else {
		binary.Write(out, binary.BigEndian, uint16(0)) // field attribute count
	}

	binary.Write(out, binary.BigEndian, uint16(0)) // methods count
	binary.Write(out, binary.BigEndian, uint16(0)) // class attributes count

	return out.Bytes()
}

func buildMinimalClass(t *testing.T, thisName, superName, methodName, methodDesc string, code []byte) []byte {
	t.Helper()

	cp := &cpBuilder{}
	thisUtf8 := cp.utf8(thisName)
	superUtf8 := cp.utf8(superName)
	thisClass := cp.class(thisUtf8)
	superClass := cp.class(superUtf8)
	methNameIdx := cp.utf8(methodName)
	methDescIdx := cp.utf8(methodDesc)
	codeAttrName := cp.utf8("Code")

	out := new(bytes.Buffer)
	binary.Write(out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(out, binary.BigEndian, uint16(0))  // minor
	binary.Write(out, binary.BigEndian, uint16(61)) // major

	binary.Write(out, binary.BigEndian, uint16(len(cp.entries)+1)) // cp count
	for _, e := range cp.entries {
		out.Write(e)
	}

	binary.Write(out, binary.BigEndian, uint16(AccPublic|AccSuper)) // access flags
	binary.Write(out, binary.BigEndian, thisClass)
	binary.Write(out, binary.BigEndian, superClass)
	binary.Write(out, binary.BigEndian, uint16(0)) // interfaces count
	binary.Write(out, binary.BigEndian, uint16(0)) // fields count

	binary.Write(out, binary.BigEndian, uint16(1)) // methods count
	binary.Write(out, binary.BigEndian, uint16(AccPublic|AccStatic))
	binary.Write(out, binary.BigEndian, methNameIdx)
	binary.Write(out, binary.BigEndian, methDescIdx)
	binary.Write(out, binary.BigEndian, uint16(1)) // attribute count (Code)

	codeAttr := new(bytes.Buffer)
	binary.Write(codeAttr, binary.BigEndian, uint16(2)) // max stack
	binary.Write(codeAttr, binary.BigEndian, uint16(1)) // max locals
	binary.Write(codeAttr, binary.BigEndian, uint32(len(code)))
	codeAttr.Write(code)
	binary.Write(codeAttr, binary.BigEndian, uint16(0)) // exception table count
	binary.Write(codeAttr, binary.BigEndian, uint16(0)) // code attributes count

	binary.Write(out, binary.BigEndian, codeAttrName)
	binary.Write(out, binary.BigEndian, uint32(codeAttr.Len()))
	out.Write(codeAttr.Bytes())

	binary.Write(out, binary.BigEndian, uint16(0)) // class attributes count

	return out.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	raw := buildMinimalClass(t, "Example", "java/lang/Object", "main", "()V", []byte{0xB1}) // return

	cf, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "Example", cf.ThisClass)
	require.Equal(t, "java/lang/Object", cf.SuperClass)
	require.Len(t, cf.Methods, 1)

	m := cf.Methods[0]
	require.Equal(t, "main", m.Name)
	require.Equal(t, "()V", m.Descriptor)
	require.NotNil(t, m.Code)
	require.Equal(t, []byte{0xB1}, m.Code.Code)
	require.Equal(t, 2, m.Code.MaxStack)
	require.Equal(t, 1, m.Code.MaxLocals)
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte{0, 0, 0, 0})
	require.Error(t, err)
}

func TestParseRejectsTruncated(t *testing.T) {
	raw := buildMinimalClass(t, "Example", "java/lang/Object", "main", "()V", []byte{0xB1})
	_, err := Parse(raw[:len(raw)-10])
	require.Error(t, err)
}

func TestParseRejectsMalformedFieldDescriptor(t *testing.T) {
	raw := buildClassWithField(t, "Q", false, 0)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseNarrowsByteConstantValue(t *testing.T) {
	raw := buildClassWithField(t, types.Byte, true, 200)
	cf, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, cf.Fields, 1)
	require.Equal(t, types.JavaByte(-56), cf.Fields[0].ConstantValue)
}
