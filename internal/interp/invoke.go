/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"github.com/jacobin-vm/classvm/internal/classfile"
	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/descriptor"
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/value"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

// stepAccessOrInvoke is step's fallback for every opcode not handled by
// its own switch: field/array access (delegated to stepFieldOrArray),
// invocation, object/array creation, returns, athrow, checkcast/
// instanceof, and the two switch opcodes.
func (vm *Interpreter) stepAccessOrInvoke(frame *Frame, op uint8) (Progression, error) {
	if prog, handled, err := vm.stepFieldOrArray(frame, op); handled {
		return prog, err
	}

	pc := frame.PC
	switch op {
	case opInvokestatic, opInvokespecial, opInvokevirtual, opInvokeinterface:
		return vm.invoke(frame, op)

	case opNew:
		class, err := vm.resolveClassRef(frame.Class, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, err
		}
		if err := vm.ensureInitialized(class); err != nil {
			return Progression{}, err
		}
		_ = frame.Push(value.RefVal(vm.Allocate(class)))
		return vm.next(frame, 3), nil

	case opNewarray:
		return vm.newarray(frame)
	case opAnewarray:
		return vm.anewarray(frame)
	case opMultianewarray:
		return vm.multianewarray(frame)

	case opAthrow:
		ref := frame.Pop().AsRef()
		if ref.IsNull() {
			return Progression{}, vm.synthesize(vmerr.NullPointerException, "")
		}
		class, ok := ref.Ptr().Class().(*classloader.Class)
		if !ok {
			return Progression{}, vmerr.Faultf("classvm: thrown object has no class")
		}
		return progThrowErr(vmerr.New(class, "").WithObject(ref)), nil

	case opCheckcast:
		target, err := vm.resolveClassRef(frame.Class, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, err
		}
		ref := frame.stack[len(frame.stack)-1].AsRef()
		if !ref.IsNull() {
			actual, ok := ref.Ptr().Class().(*classloader.Class)
			if !ok || !classloader.CanAssign(actual, target) {
				return Progression{}, vm.synthesize(vmerr.ClassCastException, "")
			}
		}
		return vm.next(frame, 3), nil

	case opInstanceof:
		target, err := vm.resolveClassRef(frame.Class, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, err
		}
		ref := frame.Pop().AsRef()
		result := int32(0)
		if !ref.IsNull() {
			if actual, ok := ref.Ptr().Class().(*classloader.Class); ok && classloader.CanAssign(actual, target) {
				result = 1
			}
		}
		_ = frame.Push(value.Int32(result))
		return vm.next(frame, 3), nil

	case opIreturn, opFreturn, opAreturn, opLreturn, opDreturn:
		return progReturnValue(frame.Pop()), nil
	case opReturn:
		return progReturnVoid(), nil

	case opTableswitch:
		return vm.tableswitch(frame)
	case opLookupswitch:
		return vm.lookupswitch(frame)

	default:
		return Progression{}, vmerr.Faultf("classvm: unsupported opcode 0x%02x at %s.%s pc %d", op, frame.Class.Name, frame.Method.Name, pc)
	}
}

// invoke implements invokestatic/invokespecial/invokevirtual/
// invokeinterface (spec.md §4.3 "Invocation"). invokestatic and
// invokespecial resolve non-virtually, starting at the constant-pool class
// and walking its superclass chain; invokevirtual/invokeinterface dispatch against the receiver's
// own runtime class, walking its superclass chain (spec.md §9 "Virtual
// dispatch walks the superclass chain for the first matching
// (name, descriptor)").
func (vm *Interpreter) invoke(frame *Frame, op uint8) (Progression, error) {
	pc := frame.PC
	idx := frame.u2At(pc + 1)
	size := 3
	if op == opInvokeinterface {
		size = 5
	}

	className, name, desc := frame.Class.File.ConstantPool.RefAt(idx)
	if className == "" {
		return Progression{}, vmerr.Faultf("classvm: invalid methodref at constant pool index %d in %s", idx, frame.Class.Name)
	}
	methodDesc, err := descriptor.ParseMethod(desc)
	if err != nil {
		return Progression{}, vmerr.Fault(err)
	}

	params := frame.PopN(len(methodDesc.Parameters))

	if op == opInvokestatic {
		owner, err := vm.Loader.ForName(className)
		if err != nil {
			return Progression{}, vmerr.Fault(err)
		}
		target, method, ok := resolveMethodWalk(owner, name, desc)
		if !ok {
			return Progression{}, vmerr.Faultf("classvm: static method %s.%s%s not found", className, name, desc)
		}
		return vm.dispatchCall(frame, target, method, params, size)
	}

	receiver := frame.Pop().AsRef()
	if receiver.IsNull() {
		return Progression{}, vm.synthesize(vmerr.NullPointerException, "")
	}
	args := append([]value.Value{value.RefVal(receiver)}, params...)

	if op == opInvokespecial {
		owner, err := vm.Loader.ForName(className)
		if err != nil {
			return Progression{}, vmerr.Fault(err)
		}
		target, method, ok := resolveMethodWalk(owner, name, desc)
		if !ok {
			return Progression{}, vmerr.Faultf("classvm: method %s.%s%s not found", className, name, desc)
		}
		return vm.dispatchCall(frame, target, method, args, size)
	}

	// invokevirtual, invokeinterface: dispatch on the receiver's runtime class.
	runtimeClass, ok := receiver.Ptr().Class().(*classloader.Class)
	if !ok {
		return Progression{}, vmerr.Faultf("classvm: receiver of %s.%s%s has no resolvable class", className, name, desc)
	}
	target, method, ok := resolveMethodWalk(runtimeClass, name, desc)
	if !ok {
		return Progression{}, vmerr.Faultf("classvm: virtual method %s.%s%s not found on %s", className, name, desc, runtimeClass.Name)
	}
	return vm.dispatchCall(frame, target, method, args, size)
}

func (vm *Interpreter) dispatchCall(frame *Frame, target *classloader.Class, method classfile.Method, args []value.Value, opSize int) (Progression, error) {
	result, hasResult, err := vm.RunMethod(target, method, args)
	if err != nil {
		return Progression{}, err
	}
	frame.PC += opSize
	if hasResult {
		_ = frame.Push(result)
	}
	return progNextStep(), nil
}

// resolveMethodWalk finds the first (name, descriptor) match starting at
// start and walking its superclass chain.
func resolveMethodWalk(start *classloader.Class, name, desc string) (*classloader.Class, classfile.Method, bool) {
	for c := start; c != nil; c = c.SuperClass {
		if m, ok := c.MethodByNameAndDescriptor(name, desc); ok {
			return c, m, true
		}
	}
	return nil, classfile.Method{}, false
}

// invokeNative dispatches a method with no Code attribute to its owning
// class's native module (spec.md §4.5 "Native Module Registry").
func (vm *Interpreter) invokeNative(class *classloader.Class, method classfile.Method, args []value.Value) (value.Value, bool, error) {
	if class.Native == nil {
		return value.Value{}, false, vmerr.Faultf("classvm: %s.%s%s has no bound native module", class.Name, method.Name, method.Descriptor)
	}
	nm, ok := class.Native.Lookup(method.Name, method.Descriptor)
	if !ok {
		return value.Value{}, false, vmerr.Faultf("classvm: native method %s.%s%s is not bound", class.Name, method.Name, method.Descriptor)
	}
	kind := nm.Kind
	if nm.Static != nil && nm.Instance != nil {
		// Both shapes bound: the method's own access flags pick one.
		kind = classloader.NativeInstance
		if method.IsStatic() {
			kind = classloader.NativeStatic
		}
	}
	switch kind {
	case classloader.NativeStatic:
		return nm.Static(class, args, vm)
	case classloader.NativeInstance:
		if len(args) == 0 {
			return value.Value{}, false, vmerr.Faultf("classvm: instance native %s.%s%s called with no receiver", class.Name, method.Name, method.Descriptor)
		}
		return nm.Instance(args[0].AsRef(), args[1:], vm)
	default:
		return value.Value{}, false, vmerr.Faultf("classvm: unknown native kind for %s.%s%s", class.Name, method.Name, method.Descriptor)
	}
}

// arrayElemInfo reports the storage stride and ref-ness for an array
// element descriptor, matching the widths heap.Array's accessors assume
// (spec.md §3 "Array"): 8 bytes for long/double, a refHeader for object
// and array elements, 4 bytes for everything else (spec.md §4.2: every
// other category-1 primitive shares one slot width).
func arrayElemInfo(descStr string) (width int, isRef bool) {
	switch firstByte(descStr) {
	case 'J', 'D':
		return 8, false
	case 'L', '[':
		return heap.RefFieldWidth, true
	default:
		return 4, false
	}
}

var newarrayTags = map[uint8]string{
	atBoolean: "Z",
	atChar:    "C",
	atFloat:   "F",
	atDouble:  "D",
	atByte:    "B",
	atShort:   "S",
	atInt:     "I",
	atLong:    "J",
}

func (vm *Interpreter) newarray(frame *Frame) (Progression, error) {
	pc := frame.PC
	tag := frame.u1At(pc + 1)
	base, ok := newarrayTags[tag]
	if !ok {
		return Progression{}, vmerr.Faultf("classvm: unknown newarray type tag %d", tag)
	}
	count := frame.Pop().AsInt32()
	if count < 0 {
		return Progression{}, vm.synthesize(vmerr.RuntimeException, "negative array size")
	}
	class, err := vm.Loader.ForName("[" + base)
	if err != nil {
		return Progression{}, vmerr.Fault(err)
	}
	width, isRef := arrayElemInfo(base)
	arr := heap.NewArray(class, count, width, isRef)
	_ = frame.Push(value.RefVal(heap.Cast[heap.Object](arr)))
	return vm.next(frame, 2), nil
}

func (vm *Interpreter) anewarray(frame *Frame) (Progression, error) {
	pc := frame.PC
	elemClass, err := vm.resolveClassRef(frame.Class, frame.u2At(pc+1))
	if err != nil {
		return Progression{}, err
	}
	count := frame.Pop().AsInt32()
	if count < 0 {
		return Progression{}, vm.synthesize(vmerr.RuntimeException, "negative array size")
	}
	class, err := vm.Loader.ForName("[L" + elemClass.Name + ";")
	if err != nil {
		return Progression{}, vmerr.Fault(err)
	}
	arr := heap.NewArray(class, count, heap.RefFieldWidth, true)
	_ = frame.Push(value.RefVal(heap.Cast[heap.Object](arr)))
	return vm.next(frame, 3), nil
}

func (vm *Interpreter) multianewarray(frame *Frame) (Progression, error) {
	pc := frame.PC
	class, err := vm.resolveClassRef(frame.Class, frame.u2At(pc+1))
	if err != nil {
		return Progression{}, err
	}
	dims := int(frame.u1At(pc + 3))
	if dims < 1 {
		return Progression{}, vmerr.Faultf("classvm: multianewarray with %d dimensions", dims)
	}
	rawCounts := frame.PopN(dims)
	counts := make([]int32, dims)
	for i, v := range rawCounts {
		counts[i] = v.AsInt32()
		if counts[i] < 0 {
			return Progression{}, vm.synthesize(vmerr.RuntimeException, "negative array size")
		}
	}
	arr, err := vm.buildMultiArray(class, counts)
	if err != nil {
		return Progression{}, err
	}
	_ = frame.Push(value.RefVal(heap.Cast[heap.Object](arr)))
	return vm.next(frame, 4), nil
}

func (vm *Interpreter) buildMultiArray(class *classloader.Class, counts []int32) (heap.Handle[heap.Array], error) {
	width, isRef := arrayElemInfo(class.ElementDescriptor)
	arr := heap.NewArray(class, counts[0], width, isRef)
	if len(counts) == 1 {
		return arr, nil
	}

	elemClass, err := vm.Loader.ForName(class.ElementDescriptor)
	if err != nil {
		return heap.Null[heap.Array](), vmerr.Fault(err)
	}
	for i := int32(0); i < counts[0]; i++ {
		sub, err := vm.buildMultiArray(elemClass, counts[1:])
		if err != nil {
			return heap.Null[heap.Array](), err
		}
		subAsObject := heap.Cast[heap.Object](sub)
		_ = heap.SetElemRef(arr.Ptr(), i, subAsObject)
		subAsObject.Drop()
	}
	return arr, nil
}

func (vm *Interpreter) tableswitch(frame *Frame) (Progression, error) {
	pc := frame.PC
	operandStart := align4(pc + 1)
	defaultOffset := int(frame.s4At(operandStart))
	low := frame.s4At(operandStart + 4)
	high := frame.s4At(operandStart + 8)
	key := frame.Pop().AsInt32()

	if key < low || key > high {
		return progJumpRelTo(defaultOffset), nil
	}
	entryOffset := operandStart + 12 + int(key-low)*4
	return progJumpRelTo(int(frame.s4At(entryOffset))), nil
}

func (vm *Interpreter) lookupswitch(frame *Frame) (Progression, error) {
	pc := frame.PC
	operandStart := align4(pc + 1)
	defaultOffset := int(frame.s4At(operandStart))
	npairs := int(frame.s4At(operandStart + 4))
	key := frame.Pop().AsInt32()

	for i := 0; i < npairs; i++ {
		pairOffset := operandStart + 8 + i*8
		if frame.s4At(pairOffset) == key {
			return progJumpRelTo(int(frame.s4At(pairOffset + 4))), nil
		}
	}
	return progJumpRelTo(defaultOffset), nil
}

// align4 rounds up to the next multiple of 4, the padding tableswitch and
// lookupswitch need so their operand table starts at a 4-byte boundary
// (JVM spec §6.5).
func align4(n int) int {
	if rem := n % 4; rem != 0 {
		return n + (4 - rem)
	}
	return n
}
