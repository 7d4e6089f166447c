/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/heap"
	"github.com/jacobin-vm/classvm/internal/value"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

// resolveFieldref reads a fieldref constant-pool entry and resolves its
// owning class (spec.md §4.3 "Field access").
func (vm *Interpreter) resolveFieldref(frame *Frame, idx uint16) (*classloader.Class, string, string, error) {
	className, name, desc := frame.Class.File.ConstantPool.RefAt(idx)
	if className == "" {
		return nil, "", "", vmerr.Faultf("classvm: invalid fieldref at constant pool index %d in %s", idx, frame.Class.Name)
	}
	owner, err := vm.Loader.ForName(className)
	if err != nil {
		return nil, "", "", vmerr.Fault(err)
	}
	return owner, name, desc, nil
}

// readField loads a value.Value out of obj at loc, decoding per the
// field's descriptor (spec.md §3 "Runtime value").
func readField(obj *heap.Object, loc heap.FieldLocation) (value.Value, error) {
	switch firstByte(loc.Descriptor) {
	case 'J':
		v, err := obj.GetInt64(loc.Offset)
		return value.Int64(v), err
	case 'D':
		v, err := obj.GetInt64(loc.Offset)
		return value.Float64(float64FromBits(v)), err
	case 'F':
		v, err := obj.GetInt32(loc.Offset)
		return value.Float32(float32FromBits(v)), err
	case 'L', '[':
		h, err := heap.GetRef[heap.Object](obj, loc.Offset)
		return value.RefVal(h), err
	default:
		v, err := obj.GetInt32(loc.Offset)
		return value.Int32(v), err
	}
}

// writeField stores v into obj at loc, per the field's descriptor.
func writeField(obj *heap.Object, loc heap.FieldLocation, v value.Value) error {
	switch firstByte(loc.Descriptor) {
	case 'J':
		return obj.SetInt64(loc.Offset, v.AsInt64())
	case 'D':
		return obj.SetInt64(loc.Offset, int64FromFloatBits(v.AsFloat64()))
	case 'F':
		return obj.SetInt32(loc.Offset, int32FromFloatBits(v.AsFloat32()))
	case 'L', '[':
		return heap.SetRef(obj, loc.Offset, v.AsRef())
	default:
		return obj.SetInt32(loc.Offset, v.AsInt32())
	}
}

func firstByte(s string) byte {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// stepFieldOrArray handles getstatic/putstatic/getfield/putfield and the
// typed array load/store families (spec.md §4.3 "Field access" / "Array
// access"), plus the dup2 forms that aren't simple enough for step's main
// switch.
func (vm *Interpreter) stepFieldOrArray(frame *Frame, op uint8) (Progression, bool, error) {
	pc := frame.PC
	switch op {
	case opDupX2:
		a := frame.Pop()
		b := frame.Pop()
		c := frame.Pop()
		_ = frame.Push(a)
		_ = frame.Push(c)
		_ = frame.Push(b)
		_ = frame.Push(a)
		return vm.next(frame, 1), true, nil
	case opDup2:
		a := frame.Pop()
		b := frame.Pop()
		_ = frame.Push(b)
		_ = frame.Push(a)
		_ = frame.Push(b)
		_ = frame.Push(a)
		return vm.next(frame, 1), true, nil
	case opDup2X1:
		a := frame.Pop()
		b := frame.Pop()
		c := frame.Pop()
		_ = frame.Push(b)
		_ = frame.Push(a)
		_ = frame.Push(c)
		_ = frame.Push(b)
		_ = frame.Push(a)
		return vm.next(frame, 1), true, nil
	case opDup2X2:
		a := frame.Pop()
		b := frame.Pop()
		c := frame.Pop()
		d := frame.Pop()
		_ = frame.Push(b)
		_ = frame.Push(a)
		_ = frame.Push(d)
		_ = frame.Push(c)
		_ = frame.Push(b)
		_ = frame.Push(a)
		return vm.next(frame, 1), true, nil

	case opGetstatic:
		owner, name, desc, err := vm.resolveFieldref(frame, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, true, err
		}
		if err := vm.ensureInitialized(owner); err != nil {
			return Progression{}, true, err
		}
		v, ok := owner.GetStatic(name)
		if !ok {
			v = value.ZeroFor(desc)
		}
		_ = frame.Push(v)
		return vm.next(frame, 3), true, nil

	case opPutstatic:
		owner, name, _, err := vm.resolveFieldref(frame, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, true, err
		}
		if err := vm.ensureInitialized(owner); err != nil {
			return Progression{}, true, err
		}
		owner.SetStatic(name, frame.Pop())
		return vm.next(frame, 3), true, nil

	case opGetfield:
		owner, name, desc, err := vm.resolveFieldref(frame, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, true, err
		}
		ref := frame.Pop().AsRef()
		if ref.IsNull() {
			return Progression{}, true, vm.synthesize(vmerr.NullPointerException, "")
		}
		loc, ok := owner.Layout.Lookup(name, desc)
		if !ok {
			return Progression{}, true, vmerr.Faultf("classvm: field %s not found on %s", name, owner.Name)
		}
		v, err := readField(ref.Ptr(), loc)
		if err != nil {
			return Progression{}, true, vmerr.Fault(err)
		}
		_ = frame.Push(v)
		return vm.next(frame, 3), true, nil

	case opPutfield:
		owner, name, desc, err := vm.resolveFieldref(frame, frame.u2At(pc+1))
		if err != nil {
			return Progression{}, true, err
		}
		v := frame.Pop()
		ref := frame.Pop().AsRef()
		if ref.IsNull() {
			return Progression{}, true, vm.synthesize(vmerr.NullPointerException, "")
		}
		loc, ok := owner.Layout.Lookup(name, desc)
		if !ok {
			return Progression{}, true, vmerr.Faultf("classvm: field %s not found on %s", name, owner.Name)
		}
		if err := writeField(ref.Ptr(), loc, v); err != nil {
			return Progression{}, true, vmerr.Fault(err)
		}
		return vm.next(frame, 3), true, nil

	case opIaload, opLaload, opFaload, opDaload, opAaload, opBaload, opCaload, opSaload:
		prog, err := vm.arrayLoad(frame, op)
		return prog, true, err
	case opIastore, opLastore, opFastore, opDastore, opAastore, opBastore, opCastore, opSastore:
		prog, err := vm.arrayStore(frame, op)
		return prog, true, err

	case opArraylength:
		ref := frame.Pop().AsRef()
		if ref.IsNull() {
			return Progression{}, true, vm.synthesize(vmerr.NullPointerException, "")
		}
		arr := heap.Cast[heap.Array](ref)
		_ = frame.Push(value.Int32(arr.Ptr().Length()))
		return vm.next(frame, 1), true, nil

	default:
		return Progression{}, false, nil
	}
}

// descriptorOf looks up a declared field's descriptor by name alone,
// walking owner and its ancestors and returning the closest declaration's
// descriptor. getfield/putfield do not use it: they look fields up by the
// (name, descriptor) pair the fieldref itself carries.
func descriptorOf(owner *classloader.Class, name string) string {
	for c := owner; c != nil; c = c.SuperClass {
		if c.File == nil {
			continue
		}
		for _, f := range c.File.Fields {
			if f.Name == name {
				return f.Descriptor
			}
		}
	}
	return ""
}

func (vm *Interpreter) arrayLoad(frame *Frame, op uint8) (Progression, error) {
	index := frame.Pop().AsInt32()
	ref := frame.Pop().AsRef()
	if ref.IsNull() {
		return Progression{}, vm.synthesize(vmerr.NullPointerException, "")
	}
	arr := heap.Cast[heap.Array](ref).Ptr()

	switch op {
	case opIaload:
		v, err := arr.GetInt32(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Int32(v))
	case opFaload:
		v, err := arr.GetInt32(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Float32(float32FromBits(v)))
	case opBaload:
		v, err := arr.GetInt32(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Int32(int32(int8(v))))
	case opCaload:
		v, err := arr.GetInt32(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Int32(int32(uint16(v))))
	case opSaload:
		v, err := arr.GetInt32(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Int32(int32(int16(v))))
	case opLaload:
		v, err := arr.GetInt64(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Int64(v))
	case opDaload:
		v, err := arr.GetInt64(index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.Float64(float64FromBits(v)))
	case opAaload:
		h, err := heap.GetElemRef[heap.Object](arr, index)
		if err != nil {
			return Progression{}, vm.arrayErr(err)
		}
		_ = frame.Push(value.RefVal(h))
	}
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) arrayStore(frame *Frame, op uint8) (Progression, error) {
	v := frame.Pop()
	index := frame.Pop().AsInt32()
	ref := frame.Pop().AsRef()
	if ref.IsNull() {
		return Progression{}, vm.synthesize(vmerr.NullPointerException, "")
	}
	arr := heap.Cast[heap.Array](ref).Ptr()

	var err error
	switch op {
	case opIastore:
		err = arr.SetInt32(index, v.AsInt32())
	case opFastore:
		err = arr.SetInt32(index, int32FromFloatBits(v.AsFloat32()))
	case opBastore:
		err = arr.SetInt32(index, int32(int8(v.AsInt32())))
	case opCastore:
		err = arr.SetInt32(index, int32(uint16(v.AsInt32())))
	case opSastore:
		err = arr.SetInt32(index, int32(int16(v.AsInt32())))
	case opLastore:
		err = arr.SetInt64(index, v.AsInt64())
	case opDastore:
		err = arr.SetInt64(index, int64FromFloatBits(v.AsFloat64()))
	case opAastore:
		err = heap.SetElemRef(arr, index, v.AsRef())
	}
	if err != nil {
		return Progression{}, vm.arrayErr(err)
	}
	return vm.next(frame, 1), nil
}

// arrayErr turns heap.ErrIndexOutOfBounds into a guest exception; any
// other error from the heap package is a host-level fault.
func (vm *Interpreter) arrayErr(err error) error {
	if err == heap.ErrIndexOutOfBounds {
		return vm.synthesize(vmerr.ArrayIndexOutOfBoundsException, "")
	}
	return vmerr.Fault(err)
}
