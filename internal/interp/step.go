/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"math"

	"github.com/jacobin-vm/classvm/internal/value"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

// step decodes and executes the instruction at frame.PC, returning the
// resulting Progression (spec.md §4.3 "Stepping"). Opcodes not in the
// families spec.md §4.3 names fault rather than panic.
func (vm *Interpreter) step(frame *Frame) (Progression, error) {
	code := frame.Code.Code
	pc := frame.PC
	op := code[pc]

	switch op {
	case opNop:
		return vm.next(frame, 1), nil

	case opAconstNull:
		_ = frame.Push(value.NullRef())
		return vm.next(frame, 1), nil

	case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5:
		_ = frame.Push(value.Int32(int32(op) - int32(opIconst0)))
		return vm.next(frame, 1), nil

	case opLconst0, opLconst1:
		_ = frame.Push(value.Int64(int64(op) - int64(opLconst0)))
		return vm.next(frame, 1), nil

	case opFconst0, opFconst1, opFconst2:
		_ = frame.Push(value.Float32(float32(op) - float32(opFconst0)))
		return vm.next(frame, 1), nil

	case opDconst0, opDconst1:
		_ = frame.Push(value.Float64(float64(op) - float64(opDconst0)))
		return vm.next(frame, 1), nil

	case opBipush:
		_ = frame.Push(value.Int32(int32(frame.s1At(pc + 1))))
		return vm.next(frame, 2), nil

	case opSipush:
		_ = frame.Push(value.Int32(int32(frame.s2At(pc + 1))))
		return vm.next(frame, 3), nil

	case opLdc:
		if err := vm.pushConstant(frame, uint16(frame.u1At(pc+1))); err != nil {
			return Progression{}, err
		}
		return vm.next(frame, 2), nil

	case opLdcW, opLdc2W:
		if err := vm.pushConstant(frame, frame.u2At(pc+1)); err != nil {
			return Progression{}, err
		}
		return vm.next(frame, 3), nil

	case opIload, opLload, opFload, opDload, opAload:
		_ = frame.Push(frame.GetLocal(int(frame.u1At(pc + 1))))
		return vm.next(frame, 2), nil

	case opIload0, opIload1, opIload2, opIload3:
		_ = frame.Push(frame.GetLocal(int(op) - opIload0))
		return vm.next(frame, 1), nil
	case opLload0, opLload1, opLload2, opLload3:
		_ = frame.Push(frame.GetLocal(int(op) - opLload0))
		return vm.next(frame, 1), nil
	case opFload0, opFload1, opFload2, opFload3:
		_ = frame.Push(frame.GetLocal(int(op) - opFload0))
		return vm.next(frame, 1), nil
	case opDload0, opDload1, opDload2, opDload3:
		_ = frame.Push(frame.GetLocal(int(op) - opDload0))
		return vm.next(frame, 1), nil
	case opAload0, opAload1, opAload2, opAload3:
		_ = frame.Push(frame.GetLocal(int(op) - opAload0))
		return vm.next(frame, 1), nil

	case opIstore, opLstore, opFstore, opDstore, opAstore:
		frame.SetLocal(int(frame.u1At(pc+1)), frame.Pop())
		return vm.next(frame, 2), nil

	case opIstore0, opIstore1, opIstore2, opIstore3:
		frame.SetLocal(int(op)-opIstore0, frame.Pop())
		return vm.next(frame, 1), nil
	case opLstore0, opLstore1, opLstore2, opLstore3:
		frame.SetLocal(int(op)-opLstore0, frame.Pop())
		return vm.next(frame, 1), nil
	case opFstore0, opFstore1, opFstore2, opFstore3:
		frame.SetLocal(int(op)-opFstore0, frame.Pop())
		return vm.next(frame, 1), nil
	case opDstore0, opDstore1, opDstore2, opDstore3:
		frame.SetLocal(int(op)-opDstore0, frame.Pop())
		return vm.next(frame, 1), nil
	case opAstore0, opAstore1, opAstore2, opAstore3:
		frame.SetLocal(int(op)-opAstore0, frame.Pop())
		return vm.next(frame, 1), nil

	case opPop:
		frame.Pop()
		return vm.next(frame, 1), nil
	case opPop2:
		frame.Pop()
		frame.Pop()
		return vm.next(frame, 1), nil
	case opDup:
		v := frame.Pop()
		_ = frame.Push(v)
		_ = frame.Push(v)
		return vm.next(frame, 1), nil
	case opDupX1:
		a := frame.Pop()
		b := frame.Pop()
		_ = frame.Push(a)
		_ = frame.Push(b)
		_ = frame.Push(a)
		return vm.next(frame, 1), nil
	case opSwap:
		a := frame.Pop()
		b := frame.Pop()
		_ = frame.Push(a)
		_ = frame.Push(b)
		return vm.next(frame, 1), nil

	case opIadd:
		return vm.binInt(frame, func(a, b int32) int32 { return a + b })
	case opIsub:
		return vm.binInt(frame, func(a, b int32) int32 { return a - b })
	case opImul:
		return vm.binInt(frame, func(a, b int32) int32 { return a * b })
	case opIdiv:
		return vm.binIntChecked(frame, func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, vm.synthesize(vmerr.RuntimeException, "/ by zero")
			}
			return a / b, nil
		})
	case opIrem:
		return vm.binIntChecked(frame, func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, vm.synthesize(vmerr.RuntimeException, "/ by zero")
			}
			return a % b, nil
		})
	case opIneg:
		_ = frame.Push(value.Int32(-frame.Pop().AsInt32()))
		return vm.next(frame, 1), nil
	case opIand:
		return vm.binInt(frame, func(a, b int32) int32 { return a & b })
	case opIor:
		return vm.binInt(frame, func(a, b int32) int32 { return a | b })
	case opIxor:
		return vm.binInt(frame, func(a, b int32) int32 { return a ^ b })
	case opIshl:
		return vm.binInt(frame, func(a, b int32) int32 { return a << (uint32(b) & 31) })
	case opIshr:
		return vm.binInt(frame, func(a, b int32) int32 { return a >> (uint32(b) & 31) })
	case opIushr:
		return vm.binInt(frame, func(a, b int32) int32 { return int32(uint32(a) >> (uint32(b) & 31)) })
	case opIinc:
		idx := int(frame.u1At(pc + 1))
		delta := int32(frame.s1At(pc + 2))
		frame.SetLocal(idx, value.Int32(frame.GetLocal(idx).AsInt32()+delta))
		return vm.next(frame, 3), nil

	case opLadd:
		return vm.binLong(frame, func(a, b int64) int64 { return a + b })
	case opLsub:
		return vm.binLong(frame, func(a, b int64) int64 { return a - b })
	case opLmul:
		return vm.binLong(frame, func(a, b int64) int64 { return a * b })
	case opLdiv:
		return vm.binLongChecked(frame, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, vm.synthesize(vmerr.RuntimeException, "/ by zero")
			}
			return a / b, nil
		})
	case opLrem:
		return vm.binLongChecked(frame, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, vm.synthesize(vmerr.RuntimeException, "/ by zero")
			}
			return a % b, nil
		})
	case opLneg:
		_ = frame.Push(value.Int64(-frame.Pop().AsInt64()))
		return vm.next(frame, 1), nil
	case opLand:
		return vm.binLong(frame, func(a, b int64) int64 { return a & b })
	case opLor:
		return vm.binLong(frame, func(a, b int64) int64 { return a | b })
	case opLxor:
		return vm.binLong(frame, func(a, b int64) int64 { return a ^ b })
	case opLshl:
		return vm.binLongShift(frame, func(a int64, b int32) int64 { return a << (uint32(b) & 63) })
	case opLshr:
		return vm.binLongShift(frame, func(a int64, b int32) int64 { return a >> (uint32(b) & 63) })
	case opLushr:
		return vm.binLongShift(frame, func(a int64, b int32) int64 { return int64(uint64(a) >> (uint32(b) & 63)) })
	case opLcmp:
		b := frame.Pop().AsInt64()
		a := frame.Pop().AsInt64()
		_ = frame.Push(value.Int32(cmp64(a, b)))
		return vm.next(frame, 1), nil

	case opFadd:
		return vm.binFloat(frame, func(a, b float32) float32 { return a + b })
	case opFsub:
		return vm.binFloat(frame, func(a, b float32) float32 { return a - b })
	case opFmul:
		return vm.binFloat(frame, func(a, b float32) float32 { return a * b })
	case opFdiv:
		return vm.binFloat(frame, func(a, b float32) float32 { return a / b })
	case opFrem:
		return vm.binFloat(frame, func(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) })
	case opFneg:
		_ = frame.Push(value.Float32(-frame.Pop().AsFloat32()))
		return vm.next(frame, 1), nil

	case opDadd:
		return vm.binDouble(frame, func(a, b float64) float64 { return a + b })
	case opDsub:
		return vm.binDouble(frame, func(a, b float64) float64 { return a - b })
	case opDmul:
		return vm.binDouble(frame, func(a, b float64) float64 { return a * b })
	case opDdiv:
		return vm.binDouble(frame, func(a, b float64) float64 { return a / b })
	case opDrem:
		return vm.binDouble(frame, math.Mod)
	case opDneg:
		_ = frame.Push(value.Float64(-frame.Pop().AsFloat64()))
		return vm.next(frame, 1), nil

	case opI2l:
		_ = frame.Push(value.Int64(int64(frame.Pop().AsInt32())))
		return vm.next(frame, 1), nil
	case opI2f:
		_ = frame.Push(value.Float32(float32(frame.Pop().AsInt32())))
		return vm.next(frame, 1), nil
	case opI2d:
		_ = frame.Push(value.Float64(float64(frame.Pop().AsInt32())))
		return vm.next(frame, 1), nil
	case opI2b:
		_ = frame.Push(value.Int32(int32(int8(frame.Pop().AsInt32()))))
		return vm.next(frame, 1), nil
	case opI2c:
		_ = frame.Push(value.Int32(int32(uint16(frame.Pop().AsInt32()))))
		return vm.next(frame, 1), nil
	case opI2s:
		_ = frame.Push(value.Int32(int32(int16(frame.Pop().AsInt32()))))
		return vm.next(frame, 1), nil
	case opL2i:
		_ = frame.Push(value.Int32(int32(frame.Pop().AsInt64())))
		return vm.next(frame, 1), nil
	case opL2f:
		_ = frame.Push(value.Float32(float32(frame.Pop().AsInt64())))
		return vm.next(frame, 1), nil
	case opL2d:
		_ = frame.Push(value.Float64(float64(frame.Pop().AsInt64())))
		return vm.next(frame, 1), nil
	case opF2i:
		_ = frame.Push(value.Int32(int32(frame.Pop().AsFloat32())))
		return vm.next(frame, 1), nil
	case opF2l:
		_ = frame.Push(value.Int64(int64(frame.Pop().AsFloat32())))
		return vm.next(frame, 1), nil
	case opF2d:
		_ = frame.Push(value.Float64(float64(frame.Pop().AsFloat32())))
		return vm.next(frame, 1), nil
	case opD2i:
		_ = frame.Push(value.Int32(int32(frame.Pop().AsFloat64())))
		return vm.next(frame, 1), nil
	case opD2l:
		_ = frame.Push(value.Int64(int64(frame.Pop().AsFloat64())))
		return vm.next(frame, 1), nil
	case opD2f:
		_ = frame.Push(value.Float32(float32(frame.Pop().AsFloat64())))
		return vm.next(frame, 1), nil

	case opFcmpl, opFcmpg:
		b := frame.Pop().AsFloat32()
		a := frame.Pop().AsFloat32()
		_ = frame.Push(value.Int32(cmpFloat(float64(a), float64(b), op == opFcmpg)))
		return vm.next(frame, 1), nil
	case opDcmpl, opDcmpg:
		b := frame.Pop().AsFloat64()
		a := frame.Pop().AsFloat64()
		_ = frame.Push(value.Int32(cmpFloat(a, b, op == opDcmpg)))
		return vm.next(frame, 1), nil

	case opGoto:
		return progJumpRelTo(int(frame.s2At(pc + 1))), nil

	case opIfeq:
		return vm.branchIf(frame, frame.Pop().AsInt32() == 0)
	case opIfne:
		return vm.branchIf(frame, frame.Pop().AsInt32() != 0)
	case opIflt:
		return vm.branchIf(frame, frame.Pop().AsInt32() < 0)
	case opIfge:
		return vm.branchIf(frame, frame.Pop().AsInt32() >= 0)
	case opIfgt:
		return vm.branchIf(frame, frame.Pop().AsInt32() > 0)
	case opIfle:
		return vm.branchIf(frame, frame.Pop().AsInt32() <= 0)

	case opIfIcmpeq:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a == b)
	case opIfIcmpne:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a != b)
	case opIfIcmplt:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a < b)
	case opIfIcmpge:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a >= b)
	case opIfIcmpgt:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a > b)
	case opIfIcmple:
		b, a := frame.Pop().AsInt32(), frame.Pop().AsInt32()
		return vm.branchIf(frame, a <= b)

	case opIfAcmpeq:
		b, a := frame.Pop().AsRef(), frame.Pop().AsRef()
		return vm.branchIf(frame, a.Eq(b))
	case opIfAcmpne:
		b, a := frame.Pop().AsRef(), frame.Pop().AsRef()
		return vm.branchIf(frame, !a.Eq(b))

	case opIfnull:
		return vm.branchIf(frame, frame.Pop().IsNullRef())
	case opIfnonnull:
		return vm.branchIf(frame, !frame.Pop().IsNullRef())

	default:
		return vm.stepAccessOrInvoke(frame, op)
	}
}

// next advances the PC by size and returns a Next progression, matching
// the shape every simple (non-branching) opcode shares.
func (vm *Interpreter) next(frame *Frame, size int) Progression {
	frame.PC += size
	return progNextStep()
}

// branchIf reads this instruction's 2-byte signed offset and returns a
// relative jump if cond holds, otherwise advances past the 3-byte
// instruction (spec.md §4.3 "Control flow").
func (vm *Interpreter) branchIf(frame *Frame, cond bool) (Progression, error) {
	if !cond {
		frame.PC += 3
		return progNextStep(), nil
	}
	return progJumpRelTo(int(frame.s2At(frame.PC + 1))), nil
}

func (vm *Interpreter) binInt(frame *Frame, fn func(a, b int32) int32) (Progression, error) {
	b := frame.Pop().AsInt32()
	a := frame.Pop().AsInt32()
	_ = frame.Push(value.Int32(fn(a, b)))
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) binIntChecked(frame *Frame, fn func(a, b int32) (int32, error)) (Progression, error) {
	b := frame.Pop().AsInt32()
	a := frame.Pop().AsInt32()
	r, err := fn(a, b)
	if err != nil {
		return Progression{}, err
	}
	_ = frame.Push(value.Int32(r))
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) binLong(frame *Frame, fn func(a, b int64) int64) (Progression, error) {
	b := frame.Pop().AsInt64()
	a := frame.Pop().AsInt64()
	_ = frame.Push(value.Int64(fn(a, b)))
	return vm.next(frame, 1), nil
}

// binLongShift implements the long shift opcodes, whose shift distance is
// an int operand (category 1) rather than a long (JVM spec §6.5
// lshl/lshr/lushr).
func (vm *Interpreter) binLongShift(frame *Frame, fn func(a int64, b int32) int64) (Progression, error) {
	b := frame.Pop().AsInt32()
	a := frame.Pop().AsInt64()
	_ = frame.Push(value.Int64(fn(a, b)))
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) binLongChecked(frame *Frame, fn func(a, b int64) (int64, error)) (Progression, error) {
	b := frame.Pop().AsInt64()
	a := frame.Pop().AsInt64()
	r, err := fn(a, b)
	if err != nil {
		return Progression{}, err
	}
	_ = frame.Push(value.Int64(r))
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) binFloat(frame *Frame, fn func(a, b float32) float32) (Progression, error) {
	b := frame.Pop().AsFloat32()
	a := frame.Pop().AsFloat32()
	_ = frame.Push(value.Float32(fn(a, b)))
	return vm.next(frame, 1), nil
}

func (vm *Interpreter) binDouble(frame *Frame, fn func(a, b float64) float64) (Progression, error) {
	b := frame.Pop().AsFloat64()
	a := frame.Pop().AsFloat64()
	_ = frame.Push(value.Float64(fn(a, b)))
	return vm.next(frame, 1), nil
}

func cmp64(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cmpFloat implements fcmpl/fcmpg/dcmpl/dcmpg: NaN compares as -1 for the
// "l" variants and +1 for the "g" variants (JVM spec §6.5).
func cmpFloat(a, b float64, gVariant bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if gVariant {
			return 1
		}
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// pushConstant implements ldc/ldc_w/ldc2_w: resolves a constant-pool
// entry and pushes its runtime value, interning string constants through
// the VM's string pool (spec.md §4.4).
func (vm *Interpreter) pushConstant(frame *Frame, idx uint16) error {
	cp := frame.Class.File.ConstantPool
	if int(idx) >= len(cp) {
		return vmerr.Faultf("classvm: invalid constant pool index %d", idx)
	}
	entry := cp[idx]
	switch entry.Tag {
	case 3: // TagInteger
		return frame.Push(value.Int32(entry.IntVal))
	case 4: // TagFloat
		return frame.Push(value.Float32(entry.FloatVal))
	case 5: // TagLong
		return frame.Push(value.Int64(entry.LongVal))
	case 6: // TagDouble
		return frame.Push(value.Float64(entry.DoubleVal))
	case 8: // TagString
		text := cp.Utf8At(entry.Index)
		s := vm.Strings.Intern(text)
		defer s.Drop()
		return frame.Push(value.RefVal(s.Clone()))
	default:
		return vmerr.Faultf("classvm: unsupported constant pool tag %d for ldc", entry.Tag)
	}
}
