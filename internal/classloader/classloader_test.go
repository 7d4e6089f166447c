package classloader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classvm/internal/classfile"
)

// buildClass assembles a minimal class file with the given fields (all
// instance, int-typed) and super name, for layout tests that don't need a
// javac-produced fixture.
func buildClass(t *testing.T, thisName, superName string, fieldNames []string) []byte {
	t.Helper()

	type cpBuilder struct{ entries [][]byte }
	cp := &cpBuilder{}
	utf8 := func(s string) uint16 {
		buf := make([]byte, 0, 3+len(s))
		buf = append(buf, classfile.TagUtf8)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
		buf = append(buf, lenBuf...)
		buf = append(buf, []byte(s)...)
		cp.entries = append(cp.entries, buf)
		return uint16(len(cp.entries))
	}
	class := func(nameIdx uint16) uint16 {
		buf := make([]byte, 3)
		buf[0] = classfile.TagClass
		binary.BigEndian.PutUint16(buf[1:], nameIdx)
		cp.entries = append(cp.entries, buf)
		return uint16(len(cp.entries))
	}

	thisUtf8 := utf8(thisName)
	thisClass := class(thisUtf8)
	var superClass uint16
	if superName != "" {
		superUtf8 := utf8(superName)
		superClass = class(superUtf8)
	}

	type fieldRec struct{ nameIdx, descIdx uint16 }
	var fieldRecs []fieldRec
	for _, name := range fieldNames {
		fieldRecs = append(fieldRecs, fieldRec{utf8(name), utf8("I")})
	}

	out := make([]byte, 0, 256)
	put32 := func(v uint32) { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); out = append(out, b...) }
	put16 := func(v uint16) { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); out = append(out, b...) }

	put32(0xCAFEBABE)
	put16(0)
	put16(61)
	put16(uint16(len(cp.entries) + 1))
	for _, e := range cp.entries {
		out = append(out, e...)
	}
	put16(classfile.AccPublic | classfile.AccSuper)
	put16(thisClass)
	put16(superClass)
	put16(0) // interfaces

	put16(uint16(len(fieldRecs)))
	for _, f := range fieldRecs {
		put16(0) // access flags
		put16(f.nameIdx)
		put16(f.descIdx)
		put16(0) // attributes count
	}

	put16(0) // methods count
	put16(0) // class attributes count

	return out
}

func writeClassFile(t *testing.T, dir, name string, raw []byte) {
	t.Helper()
	path := filepath.Join(dir, name+".class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestInheritanceLayoutAdjustsAncestorOffsets(t *testing.T) {
	dir := t.TempDir()

	parent := buildClass(t, "Parent", "java/lang/Object", []string{"firstObject", "secondObject"})
	writeClassFile(t, dir, "Parent", parent)

	objectClass := buildClass(t, "java/lang/Object", "", []string{})
	writeClassFile(t, dir, "java/lang/Object", objectClass)

	child := buildClass(t, "Child", "Parent", []string{"dummyField"})
	writeClassFile(t, dir, "Child", child)

	loader := NewLoader()
	loader.AddRoot(dir)

	childClass, err := loader.ForName("Child")
	require.NoError(t, err)

	_, ok := childClass.Layout.Lookup("dummyField", "I")
	require.True(t, ok, "child's own field must be present")

	firstLoc, ok := childClass.Layout.Lookup("firstObject", "I")
	require.True(t, ok, "inherited field must be present at an adjusted offset")
	secondLoc, ok := childClass.Layout.Lookup("secondObject", "I")
	require.True(t, ok)

	require.NotEqual(t, firstLoc.Offset, secondLoc.Offset)
	require.Less(t, firstLoc.Offset, secondLoc.Offset)

	dummyLoc, _ := childClass.Layout.Lookup("dummyField", "I")
	require.Less(t, dummyLoc.Offset, firstLoc.Offset, "own fields come before ancestor fields")
}

func TestForNameIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	objectClass := buildClass(t, "java/lang/Object", "", []string{})
	writeClassFile(t, dir, "java/lang/Object", objectClass)

	loader := NewLoader()
	loader.AddRoot(dir)

	a, err := loader.ForName("java/lang/Object")
	require.NoError(t, err)
	b, err := loader.ForName("java/lang/Object")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestForNameMissingClassIsFatal(t *testing.T) {
	loader := NewLoader()
	loader.AddRoot(t.TempDir())
	_, err := loader.ForName("does/not/Exist")
	require.Error(t, err)
}

func TestForNameResolvesPrimitiveAndArrayDescriptors(t *testing.T) {
	loader := NewLoader()

	intClass, err := loader.ForName("I")
	require.NoError(t, err)
	require.Equal(t, CategoryPrimitive, intClass.Category)

	arrClass, err := loader.ForName("[I")
	require.NoError(t, err)
	require.Equal(t, CategoryArray, arrClass.Category)
	require.Equal(t, "I", arrClass.ElementDescriptor)
}
