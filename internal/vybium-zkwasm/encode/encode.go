// Package encode packs table entries into the wide integers committed by the
// circuit. Every encoding is exact: each field is width-checked on encode and
// recovered bit for bit on decode.
package encode

import (
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/exp/constraints"
)

// CommonRangeBits is the width of one packed argument slot.
const CommonRangeBits = 32

// Field widths
const (
	OpcodeClassShift = 128
	OpcodeArg0Shift  = 64
	OpcodeArg1Shift  = 32

	// OpcodeBits is the width of an encoded opcode: an 8-bit class above
	// three argument slots.
	OpcodeBits = OpcodeClassShift + 8

	InstructionBoundary = OpcodeBits + 2*CommonRangeBits
	InitMemoryBoundary  = 160
	HostCallBoundary    = 160
	IndirectBoundary    = 194
	ImageDataBoundary   = 224
)

func checkWidth[T constraints.Unsigned](name string, v T, bits uint) {
	if bits >= 64 {
		return
	}
	if uint64(v)>>bits != 0 {
		panic(fmt.Sprintf("encode: %s = %d exceeds %d bits", name, uint64(v), bits))
	}
}

func checkBigWidth(name string, v *uint256.Int, bits int) {
	if v.BitLen() > bits {
		panic(fmt.Sprintf("encode: %s = %s exceeds %d bits", name, v.Hex(), bits))
	}
}

// pack ORs v<<shift into acc.
func pack(acc *uint256.Int, v uint64, shift uint) *uint256.Int {
	return acc.Or(acc, new(uint256.Int).Lsh(uint256.NewInt(v), shift))
}

// slot extracts bits [shift, shift+width) of v.
func slot(v *uint256.Int, shift uint, width uint) uint64 {
	x := new(uint256.Int).Rsh(v, shift).Uint64()
	if width >= 64 {
		return x
	}
	return x & (1<<width - 1)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
