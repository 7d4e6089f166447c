/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import "encoding/binary"

// code bytes are read big-endian per spec.md §4.3 "decode any operands
// (with big-endian widths defined by the opcode)".

func (f *Frame) u1At(pc int) uint8 { return f.Code.Code[pc] }

func (f *Frame) u2At(pc int) uint16 {
	return binary.BigEndian.Uint16(f.Code.Code[pc : pc+2])
}

func (f *Frame) s1At(pc int) int8 { return int8(f.Code.Code[pc]) }

func (f *Frame) s2At(pc int) int16 {
	return int16(binary.BigEndian.Uint16(f.Code.Code[pc : pc+2]))
}

func (f *Frame) s4At(pc int) int32 {
	return int32(binary.BigEndian.Uint32(f.Code.Code[pc : pc+4]))
}
