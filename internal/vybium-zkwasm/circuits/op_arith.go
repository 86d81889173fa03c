package circuits

import (
	"math/bits"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// binaryAccesses pops rhs then lhs and writes the result over lhs.
func (k kindBase[E]) binaryAccesses(b *block[E], isI32, resI32, lhs, rhs, res E) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), isI32, rhs),
		k.stackRead(one, k.stackAt(b, 2), isI32, lhs),
		k.stackWrite(one, k.stackAt(b, 2), resI32, res),
	}
}

// bin: add, sub and mul carry into one overflow cell; the divisions share
// x = y*q + rem over absolute values for the signed forms.
type binKind[E any] struct {
	kindBase[E]
	ops     opFlags[E]
	isI32   cell
	lhs     cell
	rhs     cell
	res     cell
	lSign   signSplit[E]
	rSign   signSplit[E]
	x       cell
	y       cell
	q       cell
	rem     cell
	diff    cell
	carry   cell
	qInv    cell
	qZero   cell
	remInv  cell
	remZero cell
}

func (k *binKind[E]) configure(al *allocator) {
	k.ops = configureOps[E](al, int(specs.BinRemS)+1)
	k.isI32, k.lhs, k.rhs, k.res = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.lSign, k.rSign = configureSignSplit[E](al), configureSignSplit[E](al)
	k.x, k.y, k.q, k.rem, k.diff, k.carry = al.alloc(), al.alloc(), al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.qInv, k.qZero, k.remInv, k.remZero = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *binKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.BinInfo](s)
	vt := info.VType
	l, r := vt.Mask(info.Left), vt.Mask(info.Right)
	want, err := ComputeBin(info.Op, vt, l, r)
	if err != nil {
		return err
	}
	if got := vt.Mask(info.Value); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}

	k.ops.assign(a, b, int(info.Op))
	k.setType(b, k.isI32, vt)
	k.setU64(b, k.lhs, l)
	k.setU64(b, k.rhs, r)
	k.setU64(b, k.res, want)
	k.lSign.assign(a, b, vt, l)
	k.rSign.assign(a, b, vt, r)

	x, y := l, r
	if info.Op == specs.BinDivS || info.Op == specs.BinRemS {
		x, y = absValue(vt, l), absValue(vt, r)
	}
	k.setU64(b, k.x, x)
	k.setU64(b, k.y, y)

	w := width(vt)
	switch info.Op {
	case specs.BinAdd:
		sum, carry := bits.Add64(l, r, 0)
		if vt.IsI32() {
			carry = sum >> w
		}
		k.setU64(b, k.carry, carry)
	case specs.BinSub:
		k.setFlag(b, k.carry, l < r)
	case specs.BinMul:
		hi, lo := bits.Mul64(l, r)
		if vt.IsI32() {
			hi = lo >> w
		}
		k.setU64(b, k.carry, hi)
	default:
		q, rem := x/y, x%y
		k.setU64(b, k.q, q)
		k.setU64(b, k.rem, rem)
		k.setU64(b, k.diff, y-rem-1)
		if q != 0 {
			b.set(k.qInv, a.Inverse(a.u(q)))
		}
		if rem != 0 {
			b.set(k.remInv, a.Inverse(a.u(rem)))
		}
		k.setFlag(b, k.qZero, q == 0)
		k.setFlag(b, k.remZero, rem == 0)
		return nil
	}
	k.setFlag(b, k.qZero, true)
	k.setFlag(b, k.remZero, true)
	return nil
}

func (k *binKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Bin, k.ops.value(k.a, b), b.get(k.isI32), k.a.Zero())
}

func (k *binKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	lhs, rhs, res := b.get(k.lhs), b.get(k.rhs), b.get(k.res)
	m := a.modulus(isI32)
	lNeg, rNeg := b.get(k.lSign.neg), b.get(k.rSign.neg)
	q, rem, carry := b.get(k.q), b.get(k.rem), b.get(k.carry)
	is := func(op specs.BinOp) E { return k.ops.is(b, int(op)) }

	isSigned := a.Add(is(specs.BinDivS), is(specs.BinRemS))
	isDiv := a.sum(is(specs.BinDivU), is(specs.BinRemU), isSigned)
	absL := a.sel(lNeg, a.Sub(m, lhs), lhs)
	absR := a.sel(rNeg, a.Sub(m, rhs), rhs)
	qNeg := a.Sub(a.Add(lNeg, rNeg), a.Mul(a.u(2), a.Mul(lNeg, rNeg)))
	negQ := a.Sub(a.Mul(m, a.not(b.get(k.qZero))), q)
	negRem := a.Sub(a.Mul(m, a.not(b.get(k.remZero))), rem)

	gates := k.ops.gates(a, b, "bin")
	gates = append(gates, boolGate(a, "is i32", isI32))
	gates = append(gates, k.lSign.gates(a, b, "lhs", lhs, isI32)...)
	gates = append(gates, k.rSign.gates(a, b, "rhs", rhs, isI32)...)
	gates = append(gates, zeroGates(a, "quotient", q, b.get(k.qInv), b.get(k.qZero))...)
	gates = append(gates, zeroGates(a, "remainder", rem, b.get(k.remInv), b.get(k.remZero))...)
	return append(gates,
		eqGate(a, "dividend", b.get(k.x), a.sel(isSigned, absL, lhs)),
		eqGate(a, "divisor", b.get(k.y), a.sel(isSigned, absR, rhs)),
		gate[E]{name: "division", value: a.Mul(isDiv, a.Sub(b.get(k.x), a.Add(a.Mul(b.get(k.y), q), rem)))},
		gate[E]{name: "remainder bound", value: a.Mul(isDiv, a.Sub(a.sum(rem, b.get(k.diff), a.One()), b.get(k.y)))},
		gate[E]{name: "add", value: a.Mul(is(specs.BinAdd), a.Sub(a.Add(lhs, rhs), a.Add(res, a.Mul(carry, m))))},
		gate[E]{name: "sub", value: a.Mul(is(specs.BinSub), a.Sub(a.Add(rhs, res), a.Add(lhs, a.Mul(carry, m))))},
		gate[E]{name: "mul", value: a.Mul(is(specs.BinMul), a.Sub(a.Mul(lhs, rhs), a.Add(res, a.Mul(carry, m))))},
		gate[E]{name: "carry bit", value: a.prod(a.Add(is(specs.BinAdd), is(specs.BinSub)), carry, a.not(carry))},
		gate[E]{name: "div_u", value: a.Mul(is(specs.BinDivU), a.Sub(res, q))},
		gate[E]{name: "rem_u", value: a.Mul(is(specs.BinRemU), a.Sub(res, rem))},
		gate[E]{name: "div_s", value: a.Mul(is(specs.BinDivS), a.Sub(res, a.sel(qNeg, negQ, q)))},
		gate[E]{name: "rem_s", value: a.Mul(is(specs.BinRemS), a.Sub(res, a.sel(lNeg, negRem, rem)))},
	)
}

func (k *binKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	out := []lookup[E]{
		typedRange(a, b.get(k.lhs), isI32),
		typedRange(a, b.get(k.rhs), isI32),
		typedRange(a, b.get(k.res), isI32),
		rangeLookup(a, b.get(k.q), 64),
		rangeLookup(a, b.get(k.rem), 64),
		rangeLookup(a, b.get(k.diff), 64),
		rangeLookup(a, b.get(k.carry), 64),
	}
	out = append(out, k.lSign.lookups(a, b, isI32)...)
	return append(out, k.rSign.lookups(a, b, isI32)...)
}

func (k *binKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	isI32 := b.get(k.isI32)
	return k.binaryAccesses(b, isI32, isI32, b.get(k.lhs), b.get(k.rhs), b.get(k.res))
}

func (k *binKind[E]) spDelta(*block[E]) E { return k.a.One() }

// bin_shift: k = rhs mod bits. lhs is split at 2^(bits-k) for left shifts
// and at 2^k for right shifts; the result recombines the two parts.
type binShiftKind[E any] struct {
	kindBase[E]
	ops     opFlags[E]
	isI32   cell
	lhs     cell
	rhs     cell
	res     cell
	lSign   signSplit[E]
	k       cell
	rhsHi   cell
	pow     cell
	powComp cell
	q       cell
	rem     cell
	diff    cell
}

func (k *binShiftKind[E]) configure(al *allocator) {
	k.ops = configureOps[E](al, int(specs.ShiftRotr)+1)
	k.isI32, k.lhs, k.rhs, k.res = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.lSign = configureSignSplit[E](al)
	k.k, k.rhsHi, k.pow, k.powComp = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.q, k.rem, k.diff = al.alloc(), al.alloc(), al.alloc()
}

func (k *binShiftKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.BinShiftInfo](s)
	vt := info.VType
	l, r := vt.Mask(info.Left), vt.Mask(info.Right)
	want, err := ComputeShift(info.Op, vt, l, r)
	if err != nil {
		return err
	}
	if got := vt.Mask(info.Value); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	w := uint64(width(vt))
	shift := r % w

	k.ops.assign(a, b, int(info.Op))
	k.setType(b, k.isI32, vt)
	k.setU64(b, k.lhs, l)
	k.setU64(b, k.rhs, r)
	k.setU64(b, k.res, want)
	k.lSign.assign(a, b, vt, l)
	k.setU64(b, k.k, shift)
	k.setU64(b, k.rhsHi, r/w)
	b.set(k.pow, a.p2(uint(shift)))
	b.set(k.powComp, a.p2(uint(w-shift)))

	// split lhs at 2^split
	split := shift
	if info.Op == specs.ShiftShl || info.Op == specs.ShiftRotl {
		split = w - shift
	}
	q, rem := uint64(0), l
	if split < 64 {
		q, rem = l>>split, l&(1<<split-1)
	}
	k.setU64(b, k.q, q)
	k.setU64(b, k.rem, rem)
	b.set(k.diff, a.Sub(a.Sub(a.p2(uint(split)), a.u(rem)), a.One()))
	return nil
}

func (k *binShiftKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.BinShift, k.ops.value(k.a, b), b.get(k.isI32), k.a.Zero())
}

func (k *binShiftKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	lhs, res := b.get(k.lhs), b.get(k.res)
	m := a.modulus(isI32)
	pow, powComp := b.get(k.pow), b.get(k.powComp)
	q, rem := b.get(k.q), b.get(k.rem)
	is := func(op specs.ShiftOp) E { return k.ops.is(b, int(op)) }
	isLeft := a.Add(is(specs.ShiftShl), is(specs.ShiftRotl))
	divisor := a.sel(isLeft, powComp, pow)

	gates := k.ops.gates(a, b, "shift")
	gates = append(gates, boolGate(a, "is i32", isI32))
	gates = append(gates, k.lSign.gates(a, b, "lhs", lhs, isI32)...)
	return append(gates,
		eqGate(a, "shift amount", b.get(k.rhs), a.Add(a.Mul(b.get(k.rhsHi), a.bits(isI32)), b.get(k.k))),
		eqGate(a, "complementary powers", a.Mul(pow, powComp), m),
		eqGate(a, "split", lhs, a.Add(a.Mul(q, divisor), rem)),
		eqGate(a, "split bound", a.sum(rem, b.get(k.diff), a.One()), divisor),
		gate[E]{name: "shl", value: a.Mul(is(specs.ShiftShl), a.Sub(res, a.Mul(rem, pow)))},
		gate[E]{name: "rotl", value: a.Mul(is(specs.ShiftRotl), a.Sub(res, a.Add(a.Mul(rem, pow), q)))},
		gate[E]{name: "shr_u", value: a.Mul(is(specs.ShiftShrU), a.Sub(res, q))},
		gate[E]{name: "shr_s", value: a.Mul(is(specs.ShiftShrS), a.Sub(res, a.Add(q, a.Mul(b.get(k.lSign.neg), a.Sub(m, powComp)))))},
		gate[E]{name: "rotr", value: a.Mul(is(specs.ShiftRotr), a.Sub(res, a.Add(q, a.Mul(rem, powComp))))},
	)
}

func (k *binShiftKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	width := a.bits(isI32)
	out := []lookup[E]{
		typedRange(a, b.get(k.lhs), isI32),
		typedRange(a, b.get(k.rhs), isI32),
		typedRange(a, b.get(k.res), isI32),
		rangeLookup(a, b.get(k.rhsHi), 64),
		rangeLookup(a, a.Sub(a.Sub(width, a.One()), b.get(k.k)), 6),
		powLookup(b.get(k.k), b.get(k.pow)),
		powLookup(a.Sub(width, b.get(k.k)), b.get(k.powComp)),
		rangeLookup(a, b.get(k.q), 64),
		rangeLookup(a, b.get(k.rem), 64),
		rangeLookup(a, b.get(k.diff), 64),
	}
	return append(out, k.lSign.lookups(a, b, isI32)...)
}

func (k *binShiftKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	isI32 := b.get(k.isI32)
	return k.binaryAccesses(b, isI32, isI32, b.get(k.lhs), b.get(k.rhs), b.get(k.res))
}

func (k *binShiftKind[E]) spDelta(*block[E]) E { return k.a.One() }

// bin_bit: operands and result are split into bytes and every byte triple
// is read from the bit table.
type binBitKind[E any] struct {
	kindBase[E]
	op       cell
	isI32    cell
	lhs      cell
	rhs      cell
	res      cell
	lBytes   []cell
	rBytes   []cell
	resBytes []cell
}

func (k *binBitKind[E]) configure(al *allocator) {
	k.op, k.isI32, k.lhs, k.rhs, k.res = al.alloc(), al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.lBytes, k.rBytes, k.resBytes = al.allocN(8), al.allocN(8), al.allocN(8)
}

func (k *binBitKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.BinBitInfo](s)
	vt := info.VType
	l, r := vt.Mask(info.Left), vt.Mask(info.Right)
	want, err := ComputeBit(info.Op, vt, l, r)
	if err != nil {
		return err
	}
	if got := vt.Mask(info.Value); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	k.setU64(b, k.op, uint64(info.Op))
	k.setType(b, k.isI32, vt)
	k.setU64(b, k.lhs, l)
	k.setU64(b, k.rhs, r)
	k.setU64(b, k.res, want)
	for i := range 8 {
		k.setU64(b, k.lBytes[i], (l>>(8*i))&0xff)
		k.setU64(b, k.rBytes[i], (r>>(8*i))&0xff)
		k.setU64(b, k.resBytes[i], (want>>(8*i))&0xff)
	}
	return nil
}

func (k *binBitKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.BinBit, b.get(k.op), b.get(k.isI32), k.a.Zero())
}

func (k kindBase[E]) fromBytes(b *block[E], cells []cell) E {
	acc := k.a.Zero()
	for i := len(cells) - 1; i >= 0; i-- {
		acc = k.a.Add(k.a.shift(acc, 8), b.get(cells[i]))
	}
	return acc
}

func (k *binBitKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	return []gate[E]{
		boolGate(a, "is i32", b.get(k.isI32)),
		eqGate(a, "lhs bytes", b.get(k.lhs), k.fromBytes(b, k.lBytes)),
		eqGate(a, "rhs bytes", b.get(k.rhs), k.fromBytes(b, k.rBytes)),
		eqGate(a, "result bytes", b.get(k.res), k.fromBytes(b, k.resBytes)),
	}
}

func (k *binBitKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	out := []lookup[E]{
		typedRange(a, b.get(k.lhs), b.get(k.isI32)),
		typedRange(a, b.get(k.rhs), b.get(k.isI32)),
	}
	for i := range 8 {
		out = append(out, bitLookup(b.get(k.op), b.get(k.lBytes[i]), b.get(k.rBytes[i]), b.get(k.resBytes[i])))
	}
	return out
}

func (k *binBitKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	isI32 := b.get(k.isI32)
	return k.binaryAccesses(b, isI32, isI32, b.get(k.lhs), b.get(k.rhs), b.get(k.res))
}

func (k *binBitKind[E]) spDelta(*block[E]) E { return k.a.One() }

// unary: clz locates the top set bit as operand = 2^p + lo, ctz the lowest
// as operand = hi*2^(p+1) + 2^p; popcnt sums per-byte counts.
type unaryKind[E any] struct {
	kindBase[E]
	ops     opFlags[E]
	isI32   cell
	operand cell
	res     cell
	bytes   []cell
	counts  []cell
	inv     cell
	isZero  cell
	exp     cell
	pow     cell
	hi      cell
	lo      cell
	diff    cell
}

func (k *unaryKind[E]) configure(al *allocator) {
	k.ops = configureOps[E](al, int(specs.UnaryPopcnt)+1)
	k.isI32, k.operand, k.res = al.alloc(), al.alloc(), al.alloc()
	k.bytes, k.counts = al.allocN(8), al.allocN(8)
	k.inv, k.isZero, k.exp, k.pow = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.hi, k.lo, k.diff = al.alloc(), al.alloc(), al.alloc()
}

func (k *unaryKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.UnaryInfo](s)
	vt := info.VType
	v := vt.Mask(info.Operand)
	want, err := ComputeUnary(info.Op, vt, v)
	if err != nil {
		return err
	}
	if got := vt.Mask(info.Result); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	k.ops.assign(a, b, int(info.Op))
	k.setType(b, k.isI32, vt)
	k.setU64(b, k.operand, v)
	k.setU64(b, k.res, want)
	for i := range 8 {
		byt := (v >> (8 * i)) & 0xff
		k.setU64(b, k.bytes[i], byt)
		k.setU64(b, k.counts[i], uint64(bits.OnesCount64(byt)))
	}
	k.setFlag(b, k.isZero, v == 0)
	b.set(k.pow, a.One())
	if v == 0 {
		return nil
	}
	b.set(k.inv, a.Inverse(a.u(v)))
	switch info.Op {
	case specs.UnaryClz:
		p := uint64(63 - bits.LeadingZeros64(v))
		lo := v - 1<<p
		k.setU64(b, k.exp, p)
		b.set(k.pow, a.p2(uint(p)))
		k.setU64(b, k.lo, lo)
		k.setU64(b, k.diff, 1<<p-lo-1)
	case specs.UnaryCtz:
		p := uint64(bits.TrailingZeros64(v))
		k.setU64(b, k.exp, p)
		b.set(k.pow, a.p2(uint(p)))
		if p < 63 {
			k.setU64(b, k.hi, v>>(p+1))
		}
	}
	return nil
}

func (k *unaryKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Unary, k.ops.value(k.a, b), b.get(k.isI32), k.a.Zero())
}

func (k *unaryKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	operand, res := b.get(k.operand), b.get(k.res)
	nonZero := a.not(b.get(k.isZero))
	pow, exp := b.get(k.pow), b.get(k.exp)
	width := a.bits(isI32)
	isClz := k.ops.is(b, int(specs.UnaryClz))
	isCtz := k.ops.is(b, int(specs.UnaryCtz))
	isPopcnt := k.ops.is(b, int(specs.UnaryPopcnt))

	gates := k.ops.gates(a, b, "unary")
	gates = append(gates, boolGate(a, "is i32", isI32))
	gates = append(gates, zeroGates(a, "operand", operand, b.get(k.inv), b.get(k.isZero))...)
	counts := make([]E, len(k.counts))
	for i, c := range k.counts {
		counts[i] = b.get(c)
	}
	return append(gates,
		eqGate(a, "operand bytes", operand, k.fromBytes(b, k.bytes)),
		gate[E]{name: "clz top bit", value: a.prod(isClz, nonZero, a.Sub(operand, a.Add(pow, b.get(k.lo))))},
		gate[E]{name: "clz bound", value: a.prod(isClz, nonZero, a.Sub(a.sum(b.get(k.lo), b.get(k.diff), a.One()), pow))},
		gate[E]{name: "clz", value: a.prod(isClz, nonZero, a.Sub(res, a.Sub(a.Sub(width, a.One()), exp)))},
		gate[E]{name: "ctz low bit", value: a.prod(isCtz, nonZero, a.Sub(operand, a.Add(a.Mul(b.get(k.hi), a.Mul(a.u(2), pow)), pow)))},
		gate[E]{name: "ctz", value: a.prod(isCtz, nonZero, a.Sub(res, exp))},
		gate[E]{name: "count of zero", value: a.prod(a.Add(isClz, isCtz), b.get(k.isZero), a.Sub(res, width))},
		gate[E]{name: "popcnt", value: a.Mul(isPopcnt, a.Sub(res, a.sum(counts...)))},
	)
}

func (k *unaryKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	bound := a.Mul(a.not(b.get(k.isZero)), a.Sub(a.Sub(a.bits(isI32), a.One()), b.get(k.exp)))
	out := []lookup[E]{
		typedRange(a, b.get(k.operand), isI32),
		powLookup(b.get(k.exp), b.get(k.pow)),
		rangeLookup(a, bound, 6),
		rangeLookup(a, b.get(k.hi), 64),
		rangeLookup(a, b.get(k.lo), 64),
		rangeLookup(a, b.get(k.diff), 64),
	}
	for i := range 8 {
		out = append(out, bitLookup(a.u(BitTablePopcnt), b.get(k.bytes[i]), a.Zero(), b.get(k.counts[i])))
	}
	return out
}

func (k *unaryKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	isI32 := b.get(k.isI32)
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), isI32, b.get(k.operand)),
		k.stackWrite(one, k.stackAt(b, 1), isI32, b.get(k.res)),
	}
}

// test: eqz through the inverse of the operand.
type testKind[E any] struct {
	kindBase[E]
	isI32 cell
	value cell
	inv   cell
	res   cell
}

func (k *testKind[E]) configure(al *allocator) {
	k.isI32, k.value, k.inv, k.res = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *testKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.TestInfo](s)
	v := info.VType.Mask(info.Value)
	want := uint64(0)
	if v == 0 {
		want = 1
	}
	if got := uint64(info.Result); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.value, v)
	if v != 0 {
		b.set(k.inv, k.a.Inverse(k.a.u(v)))
	}
	k.setU64(b, k.res, want)
	return nil
}

func (k *testKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Test, k.a.u(uint64(specs.TestEqz)), b.get(k.isI32), k.a.Zero())
}

func (k *testKind[E]) gates(b *block[E]) []gate[E] {
	gates := []gate[E]{boolGate(k.a, "is i32", b.get(k.isI32))}
	return append(gates, zeroGates(k.a, "operand", b.get(k.value), b.get(k.inv), b.get(k.res))...)
}

func (k *testKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{typedRange(k.a, b.get(k.value), b.get(k.isI32))}
}

func (k *testKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
		k.stackWrite(one, k.stackAt(b, 1), one, b.get(k.res)),
	}
}

// rel: signed operands are compared after flipping their sign bit, which
// maps two's complement order onto unsigned order.
type relKind[E any] struct {
	kindBase[E]
	ops   opFlags[E]
	isI32 cell
	lhs   cell
	rhs   cell
	res   cell
	lSign signSplit[E]
	rSign signSplit[E]
	inv   cell
	eq    cell
	lt    cell
	diff  cell
}

func (k *relKind[E]) configure(al *allocator) {
	k.ops = configureOps[E](al, int(specs.RelLeU)+1)
	k.isI32, k.lhs, k.rhs, k.res = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.lSign, k.rSign = configureSignSplit[E](al), configureSignSplit[E](al)
	k.inv, k.eq, k.lt, k.diff = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *relKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.RelInfo](s)
	vt := info.VType
	l, r := vt.Mask(info.Left), vt.Mask(info.Right)
	holds, err := ComputeRel(info.Op, vt, l, r)
	if err != nil {
		return err
	}
	want := uint64(0)
	if holds {
		want = 1
	}
	if got := uint64(info.Value); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	k.ops.assign(a, b, int(info.Op))
	k.setType(b, k.isI32, vt)
	k.setU64(b, k.lhs, l)
	k.setU64(b, k.rhs, r)
	k.setU64(b, k.res, want)
	k.lSign.assign(a, b, vt, l)
	k.rSign.assign(a, b, vt, r)

	x, y := l, r
	if info.Op.IsSigned() {
		half := uint64(1) << (width(vt) - 1)
		x, y = l^half, r^half
	}
	k.setFlag(b, k.eq, x == y)
	k.setFlag(b, k.lt, x < y)
	if x < y {
		k.setU64(b, k.diff, y-x-1)
	} else {
		k.setU64(b, k.diff, x-y)
	}
	if x != y {
		b.set(k.inv, a.Inverse(a.Sub(a.u(x), a.u(y))))
	}
	return nil
}

func (k *relKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Rel, k.ops.value(k.a, b), b.get(k.isI32), k.a.Zero())
}

// flipped returns v with its sign bit inverted when the comparison is signed.
func (k *relKind[E]) flipped(b *block[E], v E, neg E) E {
	a := k.a
	is := func(op specs.RelOp) E { return k.ops.is(b, int(op)) }
	isSigned := a.sum(is(specs.RelGtS), is(specs.RelGeS), is(specs.RelLtS), is(specs.RelLeS))
	half := a.sel(b.get(k.isI32), a.p2(31), a.p2(63))
	return a.Add(v, a.Mul(isSigned, a.Sub(half, a.Mul(a.u(2), a.Mul(neg, half)))))
}

func (k *relKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	lhs, rhs := b.get(k.lhs), b.get(k.rhs)
	x := k.flipped(b, lhs, b.get(k.lSign.neg))
	y := k.flipped(b, rhs, b.get(k.rSign.neg))
	eq, lt := b.get(k.eq), b.get(k.lt)
	gt := a.Sub(a.not(lt), eq)
	le := a.Add(lt, eq)
	expected := k.ops.dot(a, b, eq, a.not(eq), gt, gt, a.not(lt), a.not(lt), lt, lt, le, le)

	gates := k.ops.gates(a, b, "rel")
	gates = append(gates, boolGate(a, "is i32", isI32), boolGate(a, "lt", lt))
	gates = append(gates, k.lSign.gates(a, b, "lhs", lhs, isI32)...)
	gates = append(gates, k.rSign.gates(a, b, "rhs", rhs, isI32)...)
	gates = append(gates, zeroGates(a, "difference", a.Sub(x, y), b.get(k.inv), eq)...)
	return append(gates,
		lessGate(a, "order", x, y, lt, b.get(k.diff)),
		eqGate(a, "rel result", b.get(k.res), expected),
	)
}

func (k *relKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	out := []lookup[E]{
		typedRange(a, b.get(k.lhs), isI32),
		typedRange(a, b.get(k.rhs), isI32),
		rangeLookup(a, b.get(k.diff), 64),
	}
	out = append(out, k.lSign.lookups(a, b, isI32)...)
	return append(out, k.rSign.lookups(a, b, isI32)...)
}

func (k *relKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	return k.binaryAccesses(b, b.get(k.isI32), k.a.One(), b.get(k.lhs), b.get(k.rhs), b.get(k.res))
}

func (k *relKind[E]) spDelta(*block[E]) E { return k.a.One() }

// conversion: value = hi*2^sb + low and low = sign*2^(sb-1) + rest, where
// sb is 32 for wrap and zero extension. Sign extension adds sign*(M - 2^sb).
type conversionKind[E any] struct {
	kindBase[E]
	ops      opFlags[E]
	value    cell
	res      cell
	hi       cell
	low      cell
	sign     cell
	rest     cell
	restDiff cell
}

func (k *conversionKind[E]) configure(al *allocator) {
	k.ops = configureOps[E](al, int(specs.ConvI64Extend32S)+1)
	k.value, k.res, k.hi, k.low = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.sign, k.rest, k.restDiff = al.alloc(), al.alloc(), al.alloc()
}

func conversionSignBits(op specs.ConversionOp) uint {
	if sb := op.SignBits(); sb > 0 {
		return sb
	}
	return 32
}

func (k *conversionKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.ConversionInfo](s)
	from, to := info.Op.Types()
	v := from.Mask(info.Value)
	want, err := ComputeConversion(info.Op, v)
	if err != nil {
		return err
	}
	if got := to.Mask(info.Result); got != want {
		return mismatch(s, info.Op.String(), got, want)
	}
	sb := conversionSignBits(info.Op)
	low := v & (1<<sb - 1)
	sign := low >> (sb - 1)
	rest := low &^ (1 << (sb - 1))

	k.ops.assign(a, b, int(info.Op))
	k.setU64(b, k.value, v)
	k.setU64(b, k.res, want)
	k.setU64(b, k.hi, v>>sb)
	k.setU64(b, k.low, low)
	k.setU64(b, k.sign, sign)
	k.setU64(b, k.rest, rest)
	k.setU64(b, k.restDiff, 1<<(sb-1)-rest-1)
	return nil
}

func (k *conversionKind[E]) table(b *block[E], f func(op specs.ConversionOp) E) E {
	xs := make([]E, int(specs.ConvI64Extend32S)+1)
	for op := range xs {
		xs[op] = f(specs.ConversionOp(op))
	}
	return k.ops.dot(k.a, b, xs...)
}

func (k *conversionKind[E]) fromI32(b *block[E]) E {
	return k.table(b, func(op specs.ConversionOp) E {
		from, _ := op.Types()
		return k.a.flag(from.IsI32())
	})
}

func (k *conversionKind[E]) toI32(b *block[E]) E {
	return k.table(b, func(op specs.ConversionOp) E {
		_, to := op.Types()
		return k.a.flag(to.IsI32())
	})
}

func (k *conversionKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.Conversion, k.ops.value(k.a, b), z, z)
}

func (k *conversionKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	powSb := k.table(b, func(op specs.ConversionOp) E { return a.p2(conversionSignBits(op)) })
	powHalf := k.table(b, func(op specs.ConversionOp) E { return a.p2(conversionSignBits(op) - 1) })
	isSext := k.table(b, func(op specs.ConversionOp) E { return a.flag(op.SignBits() > 0) })
	sign := b.get(k.sign)
	extension := a.prod(isSext, sign, a.Sub(a.modulus(k.toI32(b)), powSb))

	gates := k.ops.gates(a, b, "conversion")
	return append(gates,
		boolGate(a, "sign", sign),
		eqGate(a, "value split", b.get(k.value), a.Add(a.Mul(b.get(k.hi), powSb), b.get(k.low))),
		eqGate(a, "sign split", b.get(k.low), a.Add(a.Mul(sign, powHalf), b.get(k.rest))),
		eqGate(a, "rest bound", a.sum(b.get(k.rest), b.get(k.restDiff), a.One()), powHalf),
		eqGate(a, "conversion result", b.get(k.res), a.Add(b.get(k.low), extension)),
	)
}

func (k *conversionKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	return []lookup[E]{
		typedRange(a, b.get(k.value), k.fromI32(b)),
		rangeLookup(a, b.get(k.hi), 64),
		rangeLookup(a, b.get(k.rest), 64),
		rangeLookup(a, b.get(k.restDiff), 64),
	}
}

func (k *conversionKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), k.fromI32(b), b.get(k.value)),
		k.stackWrite(one, k.stackAt(b, 1), k.toI32(b), b.get(k.res)),
	}
}
