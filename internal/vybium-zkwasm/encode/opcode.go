package encode

import (
	"github.com/holiman/uint256"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// EncodeOpcode returns class<<128 | arg0<<64 | arg1<<32 | arg2.
func EncodeOpcode(op specs.Opcode) *uint256.Int {
	if !op.Class.Valid() {
		panic("encode: invalid opcode class " + op.Class.String())
	}
	checkWidth("arg1", op.Arg1, CommonRangeBits)
	checkWidth("arg2", op.Arg2, CommonRangeBits)

	v := new(uint256.Int)
	pack(v, uint64(op.Class), OpcodeClassShift)
	pack(v, op.Arg0, OpcodeArg0Shift)
	pack(v, uint64(op.Arg1), OpcodeArg1Shift)
	pack(v, uint64(op.Arg2), 0)
	return v
}

// DecodeOpcode is the inverse of EncodeOpcode.
func DecodeOpcode(v *uint256.Int) specs.Opcode {
	checkBigWidth("opcode", v, OpcodeBits)
	return specs.Opcode{
		Class: specs.OpcodeClass(slot(v, OpcodeClassShift, 8)),
		Arg0:  slot(v, OpcodeArg0Shift, 64),
		Arg1:  uint32(slot(v, OpcodeArg1Shift, CommonRangeBits)),
		Arg2:  uint32(slot(v, 0, CommonRangeBits)),
	}
}

// EncodeInstruction returns fid<<168 | iid<<136 | opcode.
func EncodeInstruction(fid, iid uint32, op specs.Opcode) *uint256.Int {
	v := EncodeOpcode(op)
	pack(v, uint64(fid), OpcodeBits+CommonRangeBits)
	pack(v, uint64(iid), OpcodeBits)
	return v
}

// DecodeInstruction is the inverse of EncodeInstruction.
func DecodeInstruction(v *uint256.Int) (fid, iid uint32, op specs.Opcode) {
	checkBigWidth("instruction", v, InstructionBoundary)
	fid = uint32(slot(v, OpcodeBits+CommonRangeBits, CommonRangeBits))
	iid = uint32(slot(v, OpcodeBits, CommonRangeBits))
	low := new(uint256.Int).Lsh(uint256.NewInt(1), OpcodeBits)
	low.SubUint64(low, 1)
	op = DecodeOpcode(low.And(low, v))
	return fid, iid, op
}
