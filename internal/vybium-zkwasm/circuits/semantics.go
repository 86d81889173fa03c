package circuits

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// Traps that a recorded step can never contain.
var (
	ErrDivisionByZero  = errors.New("integer division by zero")
	ErrIntegerOverflow = errors.New("integer overflow")
)

func width(vtype specs.VarType) uint {
	if vtype.IsI32() {
		return 32
	}
	return 64
}

// signed interprets v as a two's complement integer of the given type.
func signed(vtype specs.VarType, v uint64) int64 {
	if vtype.IsI32() {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

// negative reports whether the top bit of v is set.
func negative(vtype specs.VarType, v uint64) bool {
	return vtype.Mask(v)>>(width(vtype)-1) == 1
}

// absValue returns |v| as an unsigned integer of the type.
func absValue(vtype specs.VarType, v uint64) uint64 {
	v = vtype.Mask(v)
	if negative(vtype, v) {
		return vtype.Mask(-v)
	}
	return v
}

// ComputeBin evaluates an arithmetic binary operator.
func ComputeBin(op specs.BinOp, vtype specs.VarType, l, r uint64) (uint64, error) {
	l, r = vtype.Mask(l), vtype.Mask(r)
	switch op {
	case specs.BinAdd:
		return vtype.Mask(l + r), nil
	case specs.BinSub:
		return vtype.Mask(l - r), nil
	case specs.BinMul:
		return vtype.Mask(l * r), nil
	case specs.BinDivU, specs.BinRemU:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		if op == specs.BinDivU {
			return l / r, nil
		}
		return l % r, nil
	case specs.BinDivS, specs.BinRemS:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		sl, sr := signed(vtype, l), signed(vtype, r)
		if op == specs.BinRemS {
			if sr == -1 {
				return 0, nil
			}
			return vtype.Mask(uint64(sl % sr)), nil
		}
		minimum := int64(-1) << (width(vtype) - 1)
		if sl == minimum && sr == -1 {
			return 0, ErrIntegerOverflow
		}
		return vtype.Mask(uint64(sl / sr)), nil
	}
	return 0, fmt.Errorf("unknown bin operator %d", op)
}

// ComputeShift evaluates a shift or rotate operator.
func ComputeShift(op specs.ShiftOp, vtype specs.VarType, l, r uint64) (uint64, error) {
	w := width(vtype)
	l = vtype.Mask(l)
	k := uint(r % uint64(w))
	switch op {
	case specs.ShiftShl:
		return vtype.Mask(l << k), nil
	case specs.ShiftShrU:
		return l >> k, nil
	case specs.ShiftShrS:
		return vtype.Mask(uint64(signed(vtype, l) >> k)), nil
	case specs.ShiftRotl:
		if vtype.IsI32() {
			return uint64(bits.RotateLeft32(uint32(l), int(k))), nil
		}
		return bits.RotateLeft64(l, int(k)), nil
	case specs.ShiftRotr:
		if vtype.IsI32() {
			return uint64(bits.RotateLeft32(uint32(l), -int(k))), nil
		}
		return bits.RotateLeft64(l, -int(k)), nil
	}
	return 0, fmt.Errorf("unknown shift operator %d", op)
}

// ComputeBit evaluates a bitwise operator.
func ComputeBit(op specs.BitOp, vtype specs.VarType, l, r uint64) (uint64, error) {
	l, r = vtype.Mask(l), vtype.Mask(r)
	switch op {
	case specs.BitAnd:
		return l & r, nil
	case specs.BitOr:
		return l | r, nil
	case specs.BitXor:
		return l ^ r, nil
	}
	return 0, fmt.Errorf("unknown bit operator %d", op)
}

// ComputeUnary evaluates a bit counting operator.
func ComputeUnary(op specs.UnaryOp, vtype specs.VarType, v uint64) (uint64, error) {
	v = vtype.Mask(v)
	w := width(vtype)
	switch op {
	case specs.UnaryCtz:
		if v == 0 {
			return uint64(w), nil
		}
		return uint64(bits.TrailingZeros64(v)), nil
	case specs.UnaryClz:
		return uint64(bits.LeadingZeros64(v) - (64 - int(w))), nil
	case specs.UnaryPopcnt:
		return uint64(bits.OnesCount64(v)), nil
	}
	return 0, fmt.Errorf("unknown unary operator %d", op)
}

// ComputeRel evaluates a comparison.
func ComputeRel(op specs.RelOp, vtype specs.VarType, l, r uint64) (bool, error) {
	l, r = vtype.Mask(l), vtype.Mask(r)
	sl, sr := signed(vtype, l), signed(vtype, r)
	switch op {
	case specs.RelEq:
		return l == r, nil
	case specs.RelNe:
		return l != r, nil
	case specs.RelGtS:
		return sl > sr, nil
	case specs.RelGtU:
		return l > r, nil
	case specs.RelGeS:
		return sl >= sr, nil
	case specs.RelGeU:
		return l >= r, nil
	case specs.RelLtS:
		return sl < sr, nil
	case specs.RelLtU:
		return l < r, nil
	case specs.RelLeS:
		return sl <= sr, nil
	case specs.RelLeU:
		return l <= r, nil
	}
	return false, fmt.Errorf("unknown rel operator %d", op)
}

// ComputeConversion evaluates a width conversion.
func ComputeConversion(op specs.ConversionOp, v uint64) (uint64, error) {
	from, to := op.Types()
	v = from.Mask(v)
	if sb := op.SignBits(); sb > 0 {
		low := v & (1<<sb - 1)
		if low>>(sb-1) == 1 {
			low |= ^uint64(0) << sb
		}
		return to.Mask(low), nil
	}
	switch op {
	case specs.ConvI32WrapI64, specs.ConvI64ExtendI32U:
		return to.Mask(v), nil
	}
	return 0, fmt.Errorf("unknown conversion operator %d", op)
}

// ComputeLoad extracts a loaded value from the one or two blocks it spans.
func ComputeLoad(size specs.MemoryReadSize, vtype specs.VarType, inner uint64, block1, block2 uint64) uint64 {
	n := size.ByteSize()
	lo, hi := block1, block2
	var raw uint64
	if inner == 0 {
		raw = lo
	} else {
		raw = lo>>(8*inner) | hi<<(64-8*inner)
	}
	if n < 8 {
		raw &= 1<<(8*n) - 1
	}
	if size.IsSigned() && raw>>(8*n-1) == 1 {
		raw |= ^uint64(0) << (8 * n)
	}
	return vtype.Mask(raw)
}

// ComputeStore returns the blocks after storing the low size bytes of value.
func ComputeStore(size specs.MemoryStoreSize, inner uint64, value uint64, block1, block2 uint64) (uint64, uint64) {
	mask := byteMask(size.ByteSize())
	// the 128-bit window is block2:block1
	vLo, vHi := shl128(value&mask, 0, 8*inner)
	mLo, mHi := shl128(mask, 0, 8*inner)
	return block1&^mLo | vLo, block2&^mHi | vHi
}

func byteMask(n uint64) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*n) - 1
}

// shl128 shifts the 128-bit integer hi:lo left by s < 128 bits.
func shl128(lo, hi uint64, s uint64) (uint64, uint64) {
	switch {
	case s == 0:
		return lo, hi
	case s >= 64:
		return 0, lo << (s - 64)
	default:
		return lo << s, hi<<s | lo>>(64-s)
	}
}
