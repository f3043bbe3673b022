package wasmbuild

import (
	"encoding/binary"
	"math"
)

// Instruction encoders. Each returns the bytes of one instruction so bodies
// can be written as a flat list of calls.

func LocalGet(i uint32) []byte  { return append([]byte{0x20}, EncodeULEB128(i)...) }
func LocalSet(i uint32) []byte  { return append([]byte{0x21}, EncodeULEB128(i)...) }
func LocalTee(i uint32) []byte  { return append([]byte{0x22}, EncodeULEB128(i)...) }
func GlobalGet(i uint32) []byte { return append([]byte{0x23}, EncodeULEB128(i)...) }
func GlobalSet(i uint32) []byte { return append([]byte{0x24}, EncodeULEB128(i)...) }
func Call(fn uint32) []byte     { return append([]byte{0x10}, EncodeULEB128(fn)...) }

func I32Const(v int32) []byte { return append([]byte{0x41}, EncodeSLEB128(v)...) }
func I64Const(v int64) []byte { return append([]byte{0x42}, EncodeSLEB128(v)...) }

func F32Const(v float32) []byte {
	out := []byte{0x43, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

func F64Const(v float64) []byte {
	out := []byte{0x44, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(out[1:], math.Float64bits(v))
	return out
}

// I32Load loads a 4-byte aligned word at address+offset.
func I32Load(offset uint32) []byte { return memarg(0x28, 2, offset) }

// I32Load8U loads one byte zero-extended.
func I32Load8U(offset uint32) []byte { return memarg(0x2d, 0, offset) }

// I32Store stores a 4-byte aligned word at address+offset.
func I32Store(offset uint32) []byte { return memarg(0x36, 2, offset) }

// I32Store8 stores the low byte.
func I32Store8(offset uint32) []byte { return memarg(0x3a, 0, offset) }

func memarg(op byte, align, offset uint32) []byte {
	out := []byte{op}
	out = append(out, EncodeULEB128(align)...)
	return append(out, EncodeULEB128(offset)...)
}

// If opens a block without a result type.
func If() []byte { return []byte{0x04, 0x40} }

func Unreachable() []byte { return []byte{0x00} }

func Else() []byte   { return []byte{0x05} }
func End() []byte    { return []byte{0x0b} }
func Drop() []byte   { return []byte{0x1a} }
func Return() []byte { return []byte{0x0f} }

func I32Eqz() []byte { return []byte{0x45} }
func I32Eq() []byte  { return []byte{0x46} }
func I32Ne() []byte  { return []byte{0x47} }
func I32LtS() []byte { return []byte{0x48} }
func I32GtS() []byte { return []byte{0x4a} }
func I32Add() []byte { return []byte{0x6a} }
func I32Sub() []byte { return []byte{0x6b} }
func I32Mul() []byte { return []byte{0x6c} }
func I32And() []byte { return []byte{0x71} }
func I32Or() []byte  { return []byte{0x72} }

func F32Add() []byte { return []byte{0x92} }
func F32Mul() []byte { return []byte{0x94} }

// I32TruncF32S converts an f32 to i32, trapping on overflow.
func I32TruncF32S() []byte { return []byte{0xa8} }

// F32ConvertI32S converts a signed i32 to f32.
func F32ConvertI32S() []byte { return []byte{0xb2} }

// Block and Loop open blocks without a result type.
func Block() []byte { return []byte{0x02, 0x40} }
func Loop() []byte  { return []byte{0x03, 0x40} }

func Br(depth uint32) []byte   { return append([]byte{0x0c}, EncodeULEB128(depth)...) }
func BrIf(depth uint32) []byte { return append([]byte{0x0d}, EncodeULEB128(depth)...) }

func I32LeS() []byte { return []byte{0x4c} }
func I32GeS() []byte { return []byte{0x4e} }
func I32DivS() []byte { return []byte{0x6d} }
func I32RemS() []byte { return []byte{0x6f} }

func F32Div() []byte { return []byte{0x95} }
