package circuits

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// heapAddress decomposes the effective address of a heap access into an
// 8-byte block and an inner byte offset. An access crosses into block+1
// when inner+size > 8.
type heapAddress[E any] struct {
	offset    cell
	raw       cell
	eff       cell
	block     cell
	inner     cell
	cross     cell
	crossDiff cell
	boundDiff cell
	powInner  cell
	powEnd    cell
}

func configureHeapAddress[E any](al *allocator) heapAddress[E] {
	return heapAddress[E]{
		offset: al.alloc(), raw: al.alloc(), eff: al.alloc(), block: al.alloc(), inner: al.alloc(),
		cross: al.alloc(), crossDiff: al.alloc(), boundDiff: al.alloc(), powInner: al.alloc(), powEnd: al.alloc(),
	}
}

func (h heapAddress[E]) assign(a arith[E], b *block[E], s *stepContext, offset, raw, eff uint32, size uint64) (blk, inner uint64, cross bool, err error) {
	if uint64(raw)+uint64(offset) != uint64(eff) {
		return 0, 0, false, fmt.Errorf("eid %d: effective address %d is not %d + %d", s.entry.Eid, eff, raw, offset)
	}
	limit := uint64(s.entry.AllocatedMemoryPages) * specs.WasmPageSize
	if uint64(eff)+size > limit {
		return 0, 0, false, fmt.Errorf("eid %d: access of %d bytes at %d is out of bounds (%d bytes allocated)", s.entry.Eid, size, eff, limit)
	}
	blk, inner, cross = specs.BlockSpan(uint64(eff), size)
	b.set(h.offset, a.u(uint64(offset)))
	b.set(h.raw, a.u(uint64(raw)))
	b.set(h.eff, a.u(uint64(eff)))
	b.set(h.block, a.u(blk))
	b.set(h.inner, a.u(inner))
	b.set(h.cross, a.flag(cross))
	if cross {
		b.set(h.crossDiff, a.u(inner+size-9))
	} else {
		b.set(h.crossDiff, a.u(8-inner-size))
	}
	b.set(h.boundDiff, a.u(limit-uint64(eff)-size))
	b.set(h.powInner, a.p2(uint(8*inner)))
	b.set(h.powEnd, a.p2(uint(8*(inner+size))))
	return blk, inner, cross, nil
}

func (h heapAddress[E]) gates(a arith[E], b *block[E], size, mpages E) []gate[E] {
	eff, inner, cross := b.get(h.eff), b.get(h.inner), b.get(h.cross)
	end := a.Add(inner, size)
	return []gate[E]{
		eqGate(a, "effective address", eff, a.Add(b.get(h.raw), b.get(h.offset))),
		eqGate(a, "block split", eff, a.Add(a.shift(b.get(h.block), 3), inner)),
		boolGate(a, "cross", cross),
		eqGate(a, "cross bound", b.get(h.crossDiff), a.sel(cross, a.Sub(end, a.u(9)), a.Sub(a.u(8), end))),
		eqGate(a, "memory bound", a.sum(eff, size, b.get(h.boundDiff)), a.Mul(mpages, a.u(specs.WasmPageSize))),
	}
}

func (h heapAddress[E]) lookups(a arith[E], b *block[E], size E) []lookup[E] {
	inner := b.get(h.inner)
	return []lookup[E]{
		rangeLookup(a, b.get(h.offset), 32),
		rangeLookup(a, b.get(h.raw), 32),
		rangeLookup(a, b.get(h.block), 32),
		rangeLookup(a, inner, 3),
		rangeLookup(a, b.get(h.crossDiff), 3),
		rangeLookup(a, b.get(h.boundDiff), 64),
		powLookup(a.shift(inner, 3), b.get(h.powInner)),
		powLookup(a.shift(a.Add(inner, size), 3), b.get(h.powEnd)),
	}
}

// window returns v1 + v2 * 2^64.
func window[E any](a arith[E], v1, v2 E) E { return a.Add(v1, a.shift(v2, 64)) }

// splitWindow returns (hi, mid, lo) of the 128-bit window v2:v1 around the
// byte range [inner, inner+size).
func splitWindow(v1, v2, inner, size uint64) (hi, mid, lo *uint256.Int) {
	w := new(uint256.Int).Lsh(uint256.NewInt(v2), 64)
	w.Or(w, uint256.NewInt(v1))
	lo = new(uint256.Int).Set(w)
	lo.And(lo, new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), uint(8*inner)), 1))
	mid = new(uint256.Int).Rsh(w, uint(8*inner))
	mid.And(mid, new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), uint(8*size)), 1))
	hi = new(uint256.Int).Rsh(w, uint(8*(inner+size)))
	return hi, mid, lo
}

// bound is x + diff + 1 = limit for an x below limit.
func bound[E any](a arith[E], name string, x, diff, limit E) gate[E] {
	return eqGate(a, name, a.sum(x, diff, a.One()), limit)
}

var loadSizes = []specs.MemoryReadSize{
	specs.ReadU8, specs.ReadS8, specs.ReadU16, specs.ReadS16, specs.ReadU32, specs.ReadS32, specs.ReadI64,
}

// load: the loaded bytes sit between lo and hi of the block window; signed
// loads extend the top bit of the loaded bytes.
type loadKind[E any] struct {
	kindBase[E]
	sizes    opFlags[E]
	isI32    cell
	addr     heapAddress[E]
	v1       cell
	v2       cell
	loaded   cell
	value    cell
	hi       cell
	lo       cell
	loDiff   cell
	ldDiff   cell
	sign     cell
	rest     cell
	restDiff cell
}

func (k *loadKind[E]) configure(al *allocator) {
	k.sizes = configureOps[E](al, len(loadSizes))
	k.isI32 = al.alloc()
	k.addr = configureHeapAddress[E](al)
	k.v1, k.v2, k.loaded, k.value = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.hi, k.lo, k.loDiff, k.ldDiff = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.sign, k.rest, k.restDiff = al.alloc(), al.alloc(), al.alloc()
}

func (k *loadKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.LoadInfo](s)
	n := info.LoadSize.ByteSize()
	_, inner, cross, err := k.addr.assign(a, b, s, info.Offset, info.RawAddress, info.EffectiveAddress, n)
	if err != nil {
		return err
	}
	v1, v2 := info.BlockValue1, uint64(0)
	if cross {
		v2 = info.BlockValue2
	}
	want := ComputeLoad(info.LoadSize, info.VType, inner, v1, v2)
	if got := info.VType.Mask(info.Value); got != want {
		return mismatch(s, "load", got, want)
	}
	hi, mid, lo := splitWindow(v1, v2, inner, n)
	loaded := mid.Uint64()
	rest := loaded &^ (1 << (8*n - 1))

	k.sizes.assign(a, b, int(info.LoadSize)-1)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.v1, v1)
	k.setU64(b, k.v2, v2)
	k.setU64(b, k.loaded, loaded)
	k.setU64(b, k.value, want)
	b.set(k.hi, a.fromBig(hi))
	b.set(k.lo, a.fromBig(lo))
	b.set(k.loDiff, a.Sub(a.Sub(a.p2(uint(8*inner)), a.fromBig(lo)), a.One()))
	b.set(k.ldDiff, a.Sub(a.Sub(a.p2(uint(8*n)), a.u(loaded)), a.One()))
	k.setU64(b, k.sign, loaded>>(8*n-1))
	k.setU64(b, k.rest, rest)
	b.set(k.restDiff, a.Sub(a.Sub(a.p2(uint(8*n-1)), a.u(rest)), a.One()))
	return nil
}

func (k *loadKind[E]) table(b *block[E], f func(size specs.MemoryReadSize) E) E {
	xs := make([]E, len(loadSizes))
	for i, size := range loadSizes {
		xs[i] = f(size)
	}
	return k.sizes.dot(k.a, b, xs...)
}

func (k *loadKind[E]) size(b *block[E]) E {
	return k.table(b, func(s specs.MemoryReadSize) E { return k.a.u(s.ByteSize()) })
}

func (k *loadKind[E]) opcode(b *block[E]) E {
	a := k.a
	return k.encodeOpcode(specs.Load, b.get(k.addr.offset), b.get(k.isI32), a.Add(k.sizes.value(a, b), a.One()))
}

func (k *loadKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	isI32 := b.get(k.isI32)
	powSize := k.table(b, func(s specs.MemoryReadSize) E { return a.p2(uint(8 * s.ByteSize())) })
	powHalf := k.table(b, func(s specs.MemoryReadSize) E { return a.p2(uint(8*s.ByteSize() - 1)) })
	isSigned := k.table(b, func(s specs.MemoryReadSize) E { return a.flag(s.IsSigned()) })
	loaded, sign := b.get(k.loaded), b.get(k.sign)
	powInner, powEnd := b.get(k.addr.powInner), b.get(k.addr.powEnd)

	gates := k.sizes.gates(a, b, "load size")
	gates = append(gates, boolGate(a, "is i32", isI32), boolGate(a, "sign", sign))
	gates = append(gates, k.addr.gates(a, b, k.size(b), b.get(k.c.mpages))...)
	return append(gates,
		gate[E]{name: "single block", value: a.Mul(a.not(b.get(k.addr.cross)), b.get(k.v2))},
		eqGate(a, "window", window(a, b.get(k.v1), b.get(k.v2)), a.sum(a.Mul(b.get(k.hi), powEnd), a.Mul(loaded, powInner), b.get(k.lo))),
		bound(a, "low bytes", b.get(k.lo), b.get(k.loDiff), powInner),
		bound(a, "loaded bytes", loaded, b.get(k.ldDiff), powSize),
		eqGate(a, "loaded sign", loaded, a.Add(a.Mul(sign, powHalf), b.get(k.rest))),
		bound(a, "loaded rest", b.get(k.rest), b.get(k.restDiff), powHalf),
		eqGate(a, "load result", b.get(k.value), a.Add(loaded, a.prod(isSigned, sign, a.Sub(a.modulus(isI32), powSize)))),
	)
}

func (k *loadKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	out := k.addr.lookups(a, b, k.size(b))
	for _, c := range []cell{k.v1, k.v2, k.hi, k.lo, k.loDiff, k.loaded, k.ldDiff, k.rest, k.restDiff} {
		out = append(out, rangeLookup(a, b.get(c), 64))
	}
	return append(out, typedRange(a, b.get(k.value), b.get(k.isI32)))
}

func (k *loadKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	a := k.a
	one := a.One()
	blk := b.get(k.addr.block)
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), one, b.get(k.addr.raw)),
		k.heapAccess(one, specs.AccessRead, blk, b.get(k.v1)),
		k.heapAccess(b.get(k.addr.cross), specs.AccessRead, a.Add(blk, one), b.get(k.v2)),
		k.stackWrite(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
	}
}

var storeSizes = []specs.MemoryStoreSize{
	specs.StoreByte8, specs.StoreByte16, specs.StoreByte32, specs.StoreByte64,
}

// store: the old and the stored bytes share hi and lo of the window, so
// only the addressed bytes change.
type storeKind[E any] struct {
	kindBase[E]
	sizes   opFlags[E]
	isI32   cell
	addr    heapAddress[E]
	value   cell
	stored  cell
	valHi   cell
	stDiff  cell
	pre1    cell
	pre2    cell
	upd1    cell
	upd2    cell
	hi      cell
	lo      cell
	loDiff  cell
	old     cell
	oldDiff cell
}

func (k *storeKind[E]) configure(al *allocator) {
	k.sizes = configureOps[E](al, len(storeSizes))
	k.isI32 = al.alloc()
	k.addr = configureHeapAddress[E](al)
	k.value, k.stored, k.valHi, k.stDiff = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.pre1, k.pre2, k.upd1, k.upd2 = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.hi, k.lo, k.loDiff, k.old, k.oldDiff = al.alloc(), al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *storeKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.StoreInfo](s)
	n := info.StoreSize.ByteSize()
	_, inner, cross, err := k.addr.assign(a, b, s, info.Offset, info.RawAddress, info.EffectiveAddress, n)
	if err != nil {
		return err
	}
	value := info.VType.Mask(info.Value)
	pre1, pre2, upd2 := info.PreBlockValue1, uint64(0), uint64(0)
	if cross {
		pre2 = info.PreBlockValue2
	}
	want1, want2 := ComputeStore(info.StoreSize, inner, value, pre1, pre2)
	if info.UpdatedBlockValue1 != want1 {
		return mismatch(s, "updated block", info.UpdatedBlockValue1, want1)
	}
	if cross {
		if info.UpdatedBlockValue2 != want2 {
			return mismatch(s, "updated second block", info.UpdatedBlockValue2, want2)
		}
		upd2 = want2
	}
	hi, old, lo := splitWindow(pre1, pre2, inner, n)
	mask := byteMask(n)
	stored := value & mask

	k.sizes.assign(a, b, int(info.StoreSize)-1)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.value, value)
	k.setU64(b, k.stored, stored)
	if n < 8 {
		k.setU64(b, k.valHi, value>>(8*n))
	}
	k.setU64(b, k.stDiff, mask-stored)
	k.setU64(b, k.pre1, pre1)
	k.setU64(b, k.pre2, pre2)
	k.setU64(b, k.upd1, want1)
	k.setU64(b, k.upd2, upd2)
	b.set(k.hi, a.fromBig(hi))
	b.set(k.lo, a.fromBig(lo))
	b.set(k.loDiff, a.Sub(a.Sub(a.p2(uint(8*inner)), a.fromBig(lo)), a.One()))
	k.setU64(b, k.old, old.Uint64())
	k.setU64(b, k.oldDiff, mask-old.Uint64())
	return nil
}

func (k *storeKind[E]) table(b *block[E], f func(size specs.MemoryStoreSize) E) E {
	xs := make([]E, len(storeSizes))
	for i, size := range storeSizes {
		xs[i] = f(size)
	}
	return k.sizes.dot(k.a, b, xs...)
}

func (k *storeKind[E]) size(b *block[E]) E {
	return k.table(b, func(s specs.MemoryStoreSize) E { return k.a.u(s.ByteSize()) })
}

func (k *storeKind[E]) opcode(b *block[E]) E {
	a := k.a
	return k.encodeOpcode(specs.Store, b.get(k.addr.offset), b.get(k.isI32), a.Add(k.sizes.value(a, b), a.One()))
}

func (k *storeKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	powSize := k.table(b, func(s specs.MemoryStoreSize) E { return a.p2(uint(8 * s.ByteSize())) })
	powInner, powEnd := b.get(k.addr.powInner), b.get(k.addr.powEnd)
	notCross := a.not(b.get(k.addr.cross))
	outer := a.Add(a.Mul(b.get(k.hi), powEnd), b.get(k.lo))

	gates := k.sizes.gates(a, b, "store size")
	gates = append(gates, boolGate(a, "is i32", b.get(k.isI32)))
	gates = append(gates, k.addr.gates(a, b, k.size(b), b.get(k.c.mpages))...)
	return append(gates,
		gate[E]{name: "single block before", value: a.Mul(notCross, b.get(k.pre2))},
		gate[E]{name: "single block after", value: a.Mul(notCross, b.get(k.upd2))},
		eqGate(a, "stored bytes", b.get(k.value), a.Add(a.Mul(b.get(k.valHi), powSize), b.get(k.stored))),
		bound(a, "stored bound", b.get(k.stored), b.get(k.stDiff), powSize),
		eqGate(a, "window before", window(a, b.get(k.pre1), b.get(k.pre2)), a.Add(outer, a.Mul(b.get(k.old), powInner))),
		eqGate(a, "window after", window(a, b.get(k.upd1), b.get(k.upd2)), a.Add(outer, a.Mul(b.get(k.stored), powInner))),
		bound(a, "low bytes", b.get(k.lo), b.get(k.loDiff), powInner),
		bound(a, "old bytes", b.get(k.old), b.get(k.oldDiff), powSize),
	)
}

func (k *storeKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	out := k.addr.lookups(a, b, k.size(b))
	for _, c := range []cell{k.valHi, k.stored, k.stDiff, k.pre1, k.pre2, k.upd1, k.upd2, k.hi, k.lo, k.loDiff, k.old, k.oldDiff} {
		out = append(out, rangeLookup(a, b.get(c), 64))
	}
	return append(out, typedRange(a, b.get(k.value), b.get(k.isI32)))
}

func (k *storeKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	a := k.a
	one := a.One()
	blk := b.get(k.addr.block)
	cross := b.get(k.addr.cross)
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
		k.stackRead(one, k.stackAt(b, 2), one, b.get(k.addr.raw)),
		k.heapAccess(one, specs.AccessRead, blk, b.get(k.pre1)),
		k.heapAccess(one, specs.AccessWrite, blk, b.get(k.upd1)),
		k.heapAccess(cross, specs.AccessRead, a.Add(blk, one), b.get(k.pre2)),
		k.heapAccess(cross, specs.AccessWrite, a.Add(blk, one), b.get(k.upd2)),
	}
}

func (k *storeKind[E]) spDelta(*block[E]) E { return k.a.u(2) }

type memorySizeKind[E any] struct {
	kindBase[E]
}

func (k *memorySizeKind[E]) configure(*allocator) {}

func (k *memorySizeKind[E]) assign(_ *block[E], s *stepContext) error {
	stepInfo[specs.MemorySizeInfo](s)
	return nil
}

func (k *memorySizeKind[E]) opcode(*block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.MemorySize, z, z, z)
}

func (k *memorySizeKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{k.stackWrite(one, k.sp(b), one, b.get(k.c.mpages))}
}

func (k *memorySizeKind[E]) spDelta(*block[E]) E { return k.a.Neg(k.a.One()) }

// memory.grow succeeds when mpages + grow <= maxpages and pushes the old
// page count; otherwise it pushes -1 and allocates nothing.
type memoryGrowKind[E any] struct {
	kindBase[E]
	grow    cell
	result  cell
	success cell
	diff    cell
}

func (k *memoryGrowKind[E]) configure(al *allocator) {
	k.grow, k.result, k.success, k.diff = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *memoryGrowKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.MemoryGrowInfo](s)
	pages := uint64(s.entry.AllocatedMemoryPages)
	maxPages, _ := k.a.uint64Of(b.get(k.c.maxpages))
	grow := uint64(uint32(info.Grow))
	success := pages+grow <= maxPages
	want := uint64(0xffffffff)
	if success {
		want = pages
		k.setU64(b, k.diff, maxPages-pages-grow)
	} else {
		k.setU64(b, k.diff, pages+grow-maxPages-1)
	}
	if got := uint64(uint32(info.Result)); got != want {
		return mismatch(s, "result", got, want)
	}
	k.setU64(b, k.grow, grow)
	k.setU64(b, k.result, want)
	k.setFlag(b, k.success, success)
	return nil
}

func (k *memoryGrowKind[E]) opcode(*block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.MemoryGrow, z, z, z)
}

func (k *memoryGrowKind[E]) gates(b *block[E]) []gate[E] {
	a, c := k.a, k.c
	success := b.get(k.success)
	requested := a.Add(b.get(c.mpages), b.get(k.grow))
	maxPages := b.get(c.maxpages)
	return []gate[E]{
		boolGate(a, "success", success),
		eqGate(a, "grow bound", b.get(k.diff), a.sel(success, a.Sub(maxPages, requested), a.Sub(a.Sub(requested, maxPages), a.One()))),
		eqGate(a, "grow result", b.get(k.result), a.sel(success, b.get(c.mpages), a.u(0xffffffff))),
	}
}

func (k *memoryGrowKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{
		rangeLookup(k.a, b.get(k.grow), 32),
		rangeLookup(k.a, b.get(k.diff), 64),
	}
}

func (k *memoryGrowKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), one, b.get(k.grow)),
		k.stackWrite(one, k.stackAt(b, 1), one, b.get(k.result)),
	}
}

func (k *memoryGrowKind[E]) spDelta(*block[E]) E { return k.a.Zero() }

func (k *memoryGrowKind[E]) pagesDelta(b *block[E]) E {
	return k.a.Mul(b.get(k.success), b.get(k.grow))
}
