package encode

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

func TestInstructionRoundTrip(t *testing.T) {
	op := specs.NewLoad(specs.I32, specs.ReadU16, 0xdeadbeef)
	v := EncodeInstruction(7, 3, op)

	fid, iid, decoded := DecodeInstruction(v)
	require.Equal(t, uint32(7), fid)
	require.Equal(t, uint32(3), iid)
	require.Equal(t, op, decoded)

	// fid occupies the top slot
	require.Equal(t, uint64(7), new(uint256.Int).Rsh(v, OpcodeBits+CommonRangeBits).Uint64())
	require.LessOrEqual(t, v.BitLen(), InstructionBoundary)
}

func TestOpcodeLayout(t *testing.T) {
	op := specs.Opcode{Class: specs.Br, Arg0: 1<<63 | 5, Arg1: 2, Arg2: 9}
	v := EncodeOpcode(op)

	require.Equal(t, uint64(specs.Br), new(uint256.Int).Rsh(v, 128).Uint64())
	require.Equal(t, uint64(9), v.Uint64()&0xffffffff)
	require.Equal(t, op, DecodeOpcode(v))
}

func TestEveryClassEncodes(t *testing.T) {
	for _, class := range specs.AllOpcodeClasses() {
		op := specs.Opcode{Class: class, Arg0: 1, Arg1: 2, Arg2: 3}
		require.Equal(t, op, DecodeOpcode(EncodeOpcode(op)), class.String())
	}
}

func TestMemoryAddress(t *testing.T) {
	v := EncodeMemoryAddress(100, specs.LocationHeap, true)
	offset, ltype, isI32 := DecodeMemoryAddress(v)
	require.Equal(t, uint32(100), offset)
	require.Equal(t, specs.LocationHeap, ltype)
	require.True(t, isI32)
}

func TestInitMemory(t *testing.T) {
	e := specs.InitMemoryTableEntry{
		LType: specs.LocationGlobal, IsMutable: true, Offset: 12, VType: specs.I64, Value: ^uint64(0),
	}
	v := EncodeInitMemory(e)
	require.LessOrEqual(t, v.BitLen(), InitMemoryBoundary)
	require.Equal(t, e, DecodeInitMemory(v))
}

func TestHostCall(t *testing.T) {
	e := specs.ExternalHostCallEntry{Op: 4, Sig: specs.HostReturn, Value: 77}
	idx, decoded := DecodeHostCall(EncodeHostCall(11, e))
	require.Equal(t, uint32(11), idx)
	require.Equal(t, e, decoded)
}

func TestIndirect(t *testing.T) {
	br := specs.BrTableEntry{Fid: 2, Iid: 9, Index: 1, Drop: 3, Keep: []specs.VarType{specs.I32}, DstPc: 12}
	gotBr, gotElem := DecodeIndirect(EncodeBrTableEntry(br))
	require.Nil(t, gotElem)
	require.Equal(t, br, *gotBr)

	elem := specs.ElemEntry{TableIdx: 0, TypeIdx: 1, Offset: 2, FuncIdx: 3}
	gotBr, gotElem = DecodeIndirect(EncodeElemEntry(elem))
	require.Nil(t, gotBr)
	require.Equal(t, elem, *gotElem)
}

func TestFrame(t *testing.T) {
	e := specs.FrameTableEntry{FrameID: 10, NextFrameID: 4, CalleeFid: 3, Fid: 2, Iid: 8}
	require.Equal(t, e, DecodeFrame(EncodeFrameEntry(e)))
}

func TestImageRow(t *testing.T) {
	payload := EncodeInstruction(1, 2, specs.NewConst(specs.I64, 5))
	row := EncodeImageRow(ImageInstruction, payload)

	class, data := DecodeImageRow(row)
	require.Equal(t, ImageInstruction, class)
	require.True(t, data.Eq(payload))
}

func TestWidthViolationsPanic(t *testing.T) {
	t.Run("opcode class", func(t *testing.T) {
		require.Panics(t, func() { EncodeOpcode(specs.Opcode{Class: 0}) })
	})
	t.Run("image payload", func(t *testing.T) {
		wide := new(uint256.Int).Lsh(uint256.NewInt(1), ImageDataBoundary)
		require.Panics(t, func() { EncodeImageRow(ImageInitMemory, wide) })
	})
	t.Run("decode oversized opcode", func(t *testing.T) {
		wide := new(uint256.Int).Lsh(uint256.NewInt(1), OpcodeBits)
		require.Panics(t, func() { DecodeOpcode(wide) })
	})
	t.Run("keep list", func(t *testing.T) {
		require.Panics(t, func() {
			EncodeBrTableEntry(specs.BrTableEntry{Keep: []specs.VarType{specs.I32, specs.I64}})
		})
	})
}
