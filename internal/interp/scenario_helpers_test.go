/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/classloader"
)

// cpBuilder assembles a classfile.ConstantPool in place, the structured Go
// value classfile.Parse would have produced, without going through raw byte
// encoding - the six end-to-end scenarios in spec.md §8 need hand-built
// Code attributes, and building those against a real serialized class file
// would bury the test in encoding detail it isn't about.
type cpBuilder struct {
	pool classfile.ConstantPool
}

func newCPBuilder() *cpBuilder {
	return &cpBuilder{pool: classfile.ConstantPool{{}}} // index 0 is reserved
}

func (c *cpBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	c.pool = append(c.pool, e)
	return uint16(len(c.pool) - 1)
}

func (c *cpBuilder) utf8(s string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagUtf8, Utf8: s})
}

func (c *cpBuilder) class(name string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagClass, Index: c.utf8(name)})
}

func (c *cpBuilder) nameAndType(name, desc string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagNameAndType, NameIndex: c.utf8(name), DescIndex: c.utf8(desc)})
}

func (c *cpBuilder) fieldref(className, name, desc string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagFieldref, ClassIndex: c.class(className), NameAndTypeIndex: c.nameAndType(name, desc)})
}

func (c *cpBuilder) methodref(className, name, desc string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagMethodref, ClassIndex: c.class(className), NameAndTypeIndex: c.nameAndType(name, desc)})
}

func (c *cpBuilder) stringConst(s string) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagString, Index: c.utf8(s)})
}

func (c *cpBuilder) intConst(v int32) uint16 {
	return c.add(classfile.ConstantPoolEntry{Tag: classfile.TagInteger, IntVal: v})
}

// codeBuilder assembles a method body's raw bytecode, big-endian per
// spec.md §4.3.
type codeBuilder struct {
	buf []byte
}

func (b *codeBuilder) op(op byte) *codeBuilder { b.buf = append(b.buf, op); return b }
func (b *codeBuilder) u1(v byte) *codeBuilder  { b.buf = append(b.buf, v); return b }
func (b *codeBuilder) u2(v uint16) *codeBuilder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}
func (b *codeBuilder) s2(v int16) *codeBuilder { return b.u2(uint16(v)) }
func (b *codeBuilder) len_() int               { return len(b.buf) }
func (b *codeBuilder) bytes() []byte           { return b.buf }

// method builds a Method with a Code attribute, no exception table.
func method(name, desc string, maxStack, maxLocals int, code []byte) classfile.Method {
	return classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        name,
		Descriptor:  desc,
		Code: &classfile.CodeAttribute{
			MaxStack:  maxStack,
			MaxLocals: maxLocals,
			Code:      code,
		},
	}
}

// plainObjectClass builds a minimal class file with no declared fields or
// methods, for bootstrap roots and exception classes where only the
// inheritance chain matters.
func plainObjectClass(thisName, superName string) *classfile.ClassFile {
	return &classfile.ClassFile{
		ConstantPool: classfile.ConstantPool{{}},
		ThisClass:    thisName,
		SuperClass:   superName,
	}
}

func stringBootstrapClass() *classfile.ClassFile {
	return &classfile.ClassFile{
		ConstantPool: classfile.ConstantPool{{}},
		ThisClass:    "java/lang/String",
		SuperClass:   "java/lang/Object",
		Fields: []classfile.Field{
			{Name: "value", Descriptor: "[B"},
			{Name: "coder", Descriptor: "I"},
			{Name: "hash", Descriptor: "I"},
			{Name: "hashIsZero", Descriptor: "I"},
		},
	}
}

// newTestEnv bootstraps a loader with the three root classes plus the
// guest exception classes the interpreter synthesizes, all registered
// in-memory via ForClassFile so tests never touch the filesystem.
func newTestEnv(t *testing.T) (*classloader.Loader, *classloader.Bootstrapped, *Interpreter) {
	t.Helper()
	loader := classloader.NewLoader()

	_, err := loader.ForClassFile("java/lang/Class", plainObjectClass("java/lang/Class", ""))
	require.NoError(t, err)
	_, err = loader.ForClassFile("java/lang/Object", plainObjectClass("java/lang/Object", ""))
	require.NoError(t, err)
	_, err = loader.ForClassFile("java/lang/String", stringBootstrapClass())
	require.NoError(t, err)

	for _, excName := range []string{
		"java/lang/Throwable",
		"java/lang/Exception",
		"java/lang/RuntimeException",
		"java/lang/NullPointerException",
		"java/lang/ArrayIndexOutOfBoundsException",
		"java/lang/StackOverflowError",
		"java/lang/ClassCastException",
	} {
		_, err := loader.ForClassFile(excName, plainObjectClass(excName, "java/lang/Object"))
		require.NoError(t, err)
	}

	boot, err := loader.Bootstrap()
	require.NoError(t, err)

	vm := New(loader, boot, 0, nil)
	return loader, boot, vm
}

// registerClass registers cf under its own ThisClass name.
func registerClass(t *testing.T, loader *classloader.Loader, cf *classfile.ClassFile) *classloader.Class {
	t.Helper()
	class, err := loader.ForClassFile(cf.ThisClass, cf)
	require.NoError(t, err)
	return class
}
