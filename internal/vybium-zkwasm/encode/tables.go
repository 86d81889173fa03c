package encode

import (
	"github.com/holiman/uint256"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// EncodeMemoryAddress returns offset<<64 | ltype<<32 | is_i32.
func EncodeMemoryAddress(offset uint32, ltype specs.LocationType, isI32 bool) *uint256.Int {
	checkWidth("ltype", uint64(ltype), CommonRangeBits)
	v := new(uint256.Int)
	pack(v, uint64(offset), 64)
	pack(v, uint64(ltype), 32)
	pack(v, boolBit(isI32), 0)
	return v
}

// DecodeMemoryAddress is the inverse of EncodeMemoryAddress.
func DecodeMemoryAddress(v *uint256.Int) (offset uint32, ltype specs.LocationType, isI32 bool) {
	checkBigWidth("memory address", v, 96)
	return uint32(slot(v, 64, 32)), specs.LocationType(slot(v, 32, 32)), slot(v, 0, 1) == 1
}

// EncodeInitMemory returns ltype<<128 | is_mutable<<96 | offset<<64 | value.
func EncodeInitMemory(e specs.InitMemoryTableEntry) *uint256.Int {
	checkWidth("ltype", uint64(e.LType), CommonRangeBits)
	v := new(uint256.Int)
	pack(v, uint64(e.LType), 128)
	pack(v, boolBit(e.IsMutable), 96)
	pack(v, uint64(e.Offset), 64)
	pack(v, e.Value, 0)
	checkBigWidth("init memory", v, InitMemoryBoundary)
	return v
}

// DecodeInitMemory is the inverse of EncodeInitMemory. The value type is not
// part of the encoding; heap and stack entries decode as I64.
func DecodeInitMemory(v *uint256.Int) specs.InitMemoryTableEntry {
	checkBigWidth("init memory", v, InitMemoryBoundary)
	return specs.InitMemoryTableEntry{
		LType:     specs.LocationType(slot(v, 128, 32)),
		IsMutable: slot(v, 96, 32) == 1,
		Offset:    uint32(slot(v, 64, 32)),
		VType:     specs.I64,
		Value:     slot(v, 0, 64),
	}
}

// EncodeHostCall returns idx<<128 | op<<96 | is_ret<<64 | arg.
func EncodeHostCall(idx uint32, e specs.ExternalHostCallEntry) *uint256.Int {
	v := new(uint256.Int)
	pack(v, uint64(idx), 128)
	pack(v, uint64(e.Op), 96)
	pack(v, boolBit(e.Sig.IsRet()), 64)
	pack(v, e.Value, 0)
	return v
}

// DecodeHostCall is the inverse of EncodeHostCall.
func DecodeHostCall(v *uint256.Int) (uint32, specs.ExternalHostCallEntry) {
	checkBigWidth("host call", v, HostCallBoundary)
	sig := specs.HostArgument
	if slot(v, 64, 32) == 1 {
		sig = specs.HostReturn
	}
	return uint32(slot(v, 128, 32)), specs.ExternalHostCallEntry{
		Op:    uint32(slot(v, 96, 32)),
		Sig:   sig,
		Value: slot(v, 0, 64),
	}
}

// IndirectClass separates br_table targets from elem entries in the br
// region of the image.
type IndirectClass uint64

const (
	IndirectBrTable      IndirectClass = 1
	IndirectCallIndirect IndirectClass = 2
)

const indirectClassShift = 192

// EncodeBrTableEntry returns 1<<192 | fid<<160 | iid<<128 | index<<96 |
// drop<<64 | keep<<32 | dst_pc.
func EncodeBrTableEntry(e specs.BrTableEntry) *uint256.Int {
	v := new(uint256.Int)
	pack(v, uint64(IndirectBrTable), indirectClassShift)
	pack(v, uint64(e.Fid), 160)
	pack(v, uint64(e.Iid), 128)
	pack(v, uint64(e.Index), 96)
	pack(v, uint64(e.Drop), 64)
	pack(v, uint64(specs.EncodeKeep(e.Keep)), 32)
	pack(v, uint64(e.DstPc), 0)
	return v
}

// EncodeElemEntry returns 2<<192 | table_idx<<96 | type_idx<<64 | offset<<32
// | func_idx.
func EncodeElemEntry(e specs.ElemEntry) *uint256.Int {
	v := new(uint256.Int)
	pack(v, uint64(IndirectCallIndirect), indirectClassShift)
	pack(v, uint64(e.TableIdx), 96)
	pack(v, uint64(e.TypeIdx), 64)
	pack(v, uint64(e.Offset), 32)
	pack(v, uint64(e.FuncIdx), 0)
	return v
}

// DecodeIndirect decodes a br region row into exactly one of its two forms.
func DecodeIndirect(v *uint256.Int) (*specs.BrTableEntry, *specs.ElemEntry) {
	checkBigWidth("indirect", v, IndirectBoundary)
	switch IndirectClass(slot(v, indirectClassShift, 2)) {
	case IndirectBrTable:
		return &specs.BrTableEntry{
			Fid:   uint32(slot(v, 160, 32)),
			Iid:   uint32(slot(v, 128, 32)),
			Index: uint32(slot(v, 96, 32)),
			Drop:  uint32(slot(v, 64, 32)),
			Keep:  specs.DecodeKeep(uint32(slot(v, 32, 32))),
			DstPc: uint32(slot(v, 0, 32)),
		}, nil
	case IndirectCallIndirect:
		return nil, &specs.ElemEntry{
			TableIdx: uint32(slot(v, 96, 32)),
			TypeIdx:  uint32(slot(v, 64, 32)),
			Offset:   uint32(slot(v, 32, 32)),
			FuncIdx:  uint32(slot(v, 0, 32)),
		}
	default:
		panic("encode: unknown indirect class in " + v.Hex())
	}
}

// EncodeFrame returns frame_id<<128 | next_frame_id<<96 | callee_fid<<64 |
// fid<<32 | iid.
func EncodeFrame(frameID, nextFrameID, calleeFid, fid, iid uint32) *uint256.Int {
	v := new(uint256.Int)
	pack(v, uint64(frameID), 128)
	pack(v, uint64(nextFrameID), 96)
	pack(v, uint64(calleeFid), 64)
	pack(v, uint64(fid), 32)
	pack(v, uint64(iid), 0)
	return v
}

// EncodeFrameEntry encodes a frame row.
func EncodeFrameEntry(e specs.FrameTableEntry) *uint256.Int {
	return EncodeFrame(e.FrameID, e.NextFrameID, e.CalleeFid, e.Fid, e.Iid)
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(v *uint256.Int) specs.FrameTableEntry {
	checkBigWidth("frame", v, 160)
	return specs.FrameTableEntry{
		FrameID:     uint32(slot(v, 128, 32)),
		NextFrameID: uint32(slot(v, 96, 32)),
		CalleeFid:   uint32(slot(v, 64, 32)),
		Fid:         uint32(slot(v, 32, 32)),
		Iid:         uint32(slot(v, 0, 32)),
	}
}
