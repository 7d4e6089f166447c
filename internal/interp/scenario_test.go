/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/native"
	"github.com/jacobin-vm/classvm/internal/stringpool"
	"github.com/jacobin-vm/classvm/internal/value"
)

// decodeTestString reads a java/lang/String instance's backing byte array
// and decodes it, the same way internal/native's println binding does.
func decodeTestString(t *testing.T, loader *classloader.Loader, h heap.Handle[heap.Object]) string {
	t.Helper()
	stringClass, err := loader.ForName("java/lang/String")
	require.NoError(t, err)
	loc, ok := stringClass.Layout.Lookup("value", "[B")
	require.True(t, ok)
	arrHandle, err := heap.GetRef[heap.Array](h.Ptr(), loc.Offset)
	require.NoError(t, err)
	arr := arrHandle.Ptr()
	buf := make([]byte, arr.Length())
	for i := int32(0); i < arr.Length(); i++ {
		b, err := arr.GetInt32(i)
		require.NoError(t, err)
		buf[i] = byte(b)
	}
	return stringpool.Decode(buf)
}

// TestScenarioCaptureIntegers covers spec.md §8's capture scenario: three
// calls to a native sink see 1, 2, 1 in order.
func TestScenarioCaptureIntegers(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	cp := newCPBuilder()
	captureIdx := cp.methodref("Test1", "capture", "(I)V")

	code := (&codeBuilder{}).
		op(opIconst1).op(opInvokestatic).u2(captureIdx).
		op(opIconst2).op(opInvokestatic).u2(captureIdx).
		op(opIconst1).op(opInvokestatic).u2(captureIdx).
		op(opReturn).bytes()

	runTest := method("runTest", "()V", 1, 0, code)
	captureDecl := classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccNative,
		Name:        "capture",
		Descriptor:  "(I)V",
	}
	cf := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Test1",
		SuperClass:   "java/lang/Object",
		Methods:      []classfile.Method{runTest, captureDecl},
	}
	class := registerClass(t, loader, cf)

	var captured []int32
	mod := native.NewModule()
	mod.BindStatic("capture", "(I)V", func(_ *classloader.Class, args []value.Value, _ classloader.VM) (value.Value, bool, error) {
		captured = append(captured, args[0].AsInt32())
		return value.Value{}, false, nil
	})
	class.Native = mod

	m, ok := class.MethodByNameAndDescriptor("runTest", "()V")
	require.True(t, ok)
	_, _, err := vm.RunMethod(class, m, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 1}, captured)
}

// TestScenarioReferenceArrays covers spec.md §8's reference-array scenario:
// build a 2-element String[], capture its length and elements, reassign
// both slots, capture again, null both, capture a third time.
func TestScenarioReferenceArrays(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	cp := newCPBuilder()
	stringCls := cp.class("java/lang/String")
	captureLenIdx := cp.methodref("Test2", "captureLen", "(I)V")
	captureRefIdx := cp.methodref("Test2", "captureRef", "(Ljava/lang/Object;)V")
	helloIdx := cp.stringConst("hello")
	worldIdx := cp.stringConst("world")
	fooIdx := cp.stringConst("foo")
	barIdx := cp.stringConst("bar")

	cb := &codeBuilder{}
	cb.op(opIconst2).op(opAnewarray).u2(stringCls).op(opAstore0)
	cb.op(opAload0).op(opIconst0).op(opLdc).u1(byte(helloIdx)).op(opAastore)
	cb.op(opAload0).op(opIconst1).op(opLdc).u1(byte(worldIdx)).op(opAastore)
	cb.op(opAload0).op(opArraylength).op(opInvokestatic).u2(captureLenIdx)
	cb.op(opAload0).op(opIconst0).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opAload0).op(opIconst1).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opAload0).op(opIconst0).op(opLdc).u1(byte(fooIdx)).op(opAastore)
	cb.op(opAload0).op(opIconst1).op(opLdc).u1(byte(barIdx)).op(opAastore)
	cb.op(opAload0).op(opIconst0).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opAload0).op(opIconst1).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opAload0).op(opIconst0).op(opAconstNull).op(opAastore)
	cb.op(opAload0).op(opIconst1).op(opAconstNull).op(opAastore)
	cb.op(opAload0).op(opIconst0).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opAload0).op(opIconst1).op(opAaload).op(opInvokestatic).u2(captureRefIdx)
	cb.op(opReturn)

	runTest := method("runTest", "()V", 4, 1, cb.bytes())
	declNative := func(name, desc string) classfile.Method {
		return classfile.Method{AccessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccNative, Name: name, Descriptor: desc}
	}
	cf := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Test2",
		SuperClass:   "java/lang/Object",
		Methods: []classfile.Method{
			runTest,
			declNative("captureLen", "(I)V"),
			declNative("captureRef", "(Ljava/lang/Object;)V"),
		},
	}
	class := registerClass(t, loader, cf)

	var log []string
	mod := native.NewModule()
	mod.BindStatic("captureLen", "(I)V", func(_ *classloader.Class, args []value.Value, _ classloader.VM) (value.Value, bool, error) {
		log = append(log, fmt.Sprintf("%d", args[0].AsInt32()))
		return value.Value{}, false, nil
	})
	mod.BindStatic("captureRef", "(Ljava/lang/Object;)V", func(_ *classloader.Class, args []value.Value, _ classloader.VM) (value.Value, bool, error) {
		if args[0].IsNullRef() {
			log = append(log, "null")
			return value.Value{}, false, nil
		}
		log = append(log, decodeTestString(t, loader, args[0].AsRef()))
		return value.Value{}, false, nil
	})
	class.Native = mod

	m, ok := class.MethodByNameAndDescriptor("runTest", "()V")
	require.True(t, ok)
	_, _, err := vm.RunMethod(class, m, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "hello", "world", "foo", "bar", "null", "null"}, log)
}

// TestScenarioMultidimensionalArrays covers spec.md §8's int[3][3] scenario:
// the array is zero-filled at allocation, writing arr[1][1] leaves the
// other eight cells untouched, and both dimensions report length 3.
func TestScenarioMultidimensionalArrays(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	cp := newCPBuilder()
	arrCls := cp.class("[[I")

	code := (&codeBuilder{}).
		op(opIconst3).
		op(opIconst3).
		op(opMultianewarray).u2(arrCls).u1(2).
		op(opAstore0).
		op(opAload0).op(opIconst1).op(opAaload).op(opAstore1).
		op(opAload1).op(opIconst1).op(opBipush).u1(30).op(opIastore).
		op(opAload0).
		op(opAreturn).
		bytes()

	runTest := method("runTest", "()[[I", 4, 2, code)
	cf := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Test3",
		SuperClass:   "java/lang/Object",
		Methods:      []classfile.Method{runTest},
	}
	class := registerClass(t, loader, cf)

	m, ok := class.MethodByNameAndDescriptor("runTest", "()[[I")
	require.True(t, ok)
	result, hasResult, err := vm.RunMethod(class, m, nil)
	require.NoError(t, err)
	require.True(t, hasResult)
	require.False(t, result.IsNullRef())

	outer := heap.Cast[heap.Array](result.AsRef()).Ptr()
	assert.Equal(t, int32(3), outer.Length())

	for i := int32(0); i < outer.Length(); i++ {
		inner, err := heap.GetElemRef[heap.Array](outer, i)
		require.NoError(t, err)
		require.False(t, inner.IsNull())
		assert.Equal(t, int32(3), inner.Ptr().Length())
		for j := int32(0); j < 3; j++ {
			v, err := inner.Ptr().GetInt32(j)
			require.NoError(t, err)
			if i == 1 && j == 1 {
				assert.Equal(t, int32(30), v)
			} else {
				assert.Equal(t, int32(0), v)
			}
		}
	}
}

// TestScenarioHelloWorldThroughStdlib covers spec.md §8's hello-world
// scenario: with test.boot-equivalent setup run, System.out.println
// produces a single stdout line and the call completes without error.
func TestScenarioHelloWorldThroughStdlib(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	sysCF := &classfile.ClassFile{
		ConstantPool: classfile.ConstantPool{{}},
		ThisClass:    "java/lang/System",
		SuperClass:   "java/lang/Object",
		Methods: []classfile.Method{
			{AccessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccNative, Name: "initPhase1", Descriptor: "()V"},
		},
	}
	psCF := &classfile.ClassFile{
		ConstantPool: classfile.ConstantPool{{}},
		ThisClass:    "java/io/PrintStream",
		SuperClass:   "java/lang/Object",
		Methods: []classfile.Method{
			{AccessFlags: classfile.AccPublic | classfile.AccNative, Name: "println", Descriptor: "(Ljava/lang/String;)V"},
		},
	}
	sys := registerClass(t, loader, sysCF)
	ps := registerClass(t, loader, psCF)

	registry := native.NewRegistry()
	native.InstallStdlib(registry, sys, ps)
	registry.Attach(sys)
	registry.Attach(ps)

	initMethod, ok := sys.MethodByNameAndDescriptor("initPhase1", "()V")
	require.True(t, ok)
	_, _, err := vm.RunMethod(sys, initMethod, nil)
	require.NoError(t, err)

	cp := newCPBuilder()
	outField := cp.fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	printlnMethod := cp.methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	greeting := cp.stringConst("Hello, World")

	code := (&codeBuilder{}).
		op(opGetstatic).u2(outField).
		op(opLdc).u1(byte(greeting)).
		op(opInvokevirtual).u2(printlnMethod).
		op(opReturn).bytes()

	mainMethod := classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "main",
		Descriptor:  "([Ljava/lang/String;)V",
		Code:        &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 1, Code: code},
	}
	cf := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Test4",
		SuperClass:   "java/lang/Object",
		Methods:      []classfile.Method{mainMethod},
	}
	class := registerClass(t, loader, cf)

	oldStdout := os.Stdout
	r, w, pipeErr := os.Pipe()
	require.NoError(t, pipeErr)
	os.Stdout = w

	runErr := vm.RunMain(class, nil)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout
	out, readErr := io.ReadAll(r)
	require.NoError(t, readErr)

	require.NoError(t, runErr)
	assert.Equal(t, "Hello, World\n", string(out))
}

// TestScenarioInheritanceLayout covers spec.md §8's inheritance scenario: a
// subclass declaring a byte-sized field before the parent's two reference
// fields still lays out the parent fields consistently, so a field set
// through the subclass's own bytecode reads back intact.
func TestScenarioInheritanceLayout(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	parentCF := &classfile.ClassFile{
		ConstantPool: classfile.ConstantPool{{}},
		ThisClass:    "Parent",
		SuperClass:   "java/lang/Object",
		Fields: []classfile.Field{
			{Name: "firstObject", Descriptor: "Ljava/lang/Object;"},
			{Name: "secondObject", Descriptor: "Ljava/lang/Object;"},
		},
	}
	registerClass(t, loader, parentCF)

	cp := newCPBuilder()
	childCls := cp.class("Child")
	firstField := cp.fieldref("Child", "firstObject", "Ljava/lang/Object;")
	secondField := cp.fieldref("Child", "secondObject", "Ljava/lang/Object;")

	code := (&codeBuilder{}).
		op(opNew).u2(childCls).
		op(opDup).
		op(opAload0).
		op(opPutfield).u2(firstField).
		op(opDup).
		op(opAconstNull).
		op(opPutfield).u2(secondField).
		op(opGetfield).u2(firstField).
		op(opAreturn).bytes()

	runTest := classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "runTest",
		Descriptor:  "(Ljava/lang/Object;)Ljava/lang/Object;",
		Code:        &classfile.CodeAttribute{MaxStack: 3, MaxLocals: 1, Code: code},
	}
	childCF := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Child",
		SuperClass:   "Parent",
		Fields:       []classfile.Field{{Name: "dummyField", Descriptor: "B"}},
		Methods:      []classfile.Method{runTest},
	}
	child := registerClass(t, loader, childCF)

	parent, err := loader.ForName("Parent")
	require.NoError(t, err)
	passed := vm.Allocate(parent)
	defer passed.Drop()

	m, ok := child.MethodByNameAndDescriptor("runTest", "(Ljava/lang/Object;)Ljava/lang/Object;")
	require.True(t, ok)
	result, hasResult, err := vm.RunMethod(child, m, []value.Value{value.RefVal(passed)})
	require.NoError(t, err)
	require.True(t, hasResult)
	require.False(t, result.IsNullRef())
	assert.True(t, result.AsRef().Eq(passed))
}

// TestScenarioCatchAllExceptionTable covers spec.md §8's catch-all scenario:
// a RuntimeException thrown inside a region covered by a catch_type == 0
// handler transfers control to handler_pc with only the thrown object on
// the operand stack.
func TestScenarioCatchAllExceptionTable(t *testing.T) {
	loader, _, vm := newTestEnv(t)

	cp := newCPBuilder()
	excCls := cp.class("java/lang/RuntimeException")

	code := (&codeBuilder{}).
		op(opNew).u2(excCls).
		op(opAthrow).
		op(opAreturn).bytes()

	runTest := classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "runTest",
		Descriptor:  "()Ljava/lang/Object;",
		Code: &classfile.CodeAttribute{
			MaxStack:  1,
			MaxLocals: 0,
			Code:      code,
			ExceptionTable: []classfile.ExceptionEntry{
				{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchType: 0},
			},
		},
	}
	cf := &classfile.ClassFile{
		ConstantPool: cp.pool,
		ThisClass:    "Test6",
		SuperClass:   "java/lang/Object",
		Methods:      []classfile.Method{runTest},
	}
	class := registerClass(t, loader, cf)

	m, ok := class.MethodByNameAndDescriptor("runTest", "()Ljava/lang/Object;")
	require.True(t, ok)
	result, hasResult, err := vm.RunMethod(class, m, nil)
	require.NoError(t, err)
	require.True(t, hasResult)
	require.False(t, result.IsNullRef())

	caught, ok := result.AsRef().Ptr().Class().(*classloader.Class)
	require.True(t, ok)
	assert.Equal(t, "java/lang/RuntimeException", caught.Name)
}
