package circuits

import (
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// local.get: read sp+depth, push.
type localGetKind[E any] struct {
	kindBase[E]
	isI32 cell
	depth cell
	value cell
}

func (k *localGetKind[E]) configure(al *allocator) {
	k.isI32, k.depth, k.value = al.alloc(), al.alloc(), al.alloc()
}

func (k *localGetKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.LocalGetInfo](s)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.depth, uint64(info.Depth))
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *localGetKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.LocalGet, b.get(k.depth), b.get(k.isI32), k.a.Zero())
}

func (k *localGetKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{boolGate(k.a, "is i32", b.get(k.isI32))}
}

func (k *localGetKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{typedRange(k.a, b.get(k.value), b.get(k.isI32))}
}

func (k *localGetKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.a.Add(k.sp(b), b.get(k.depth)), b.get(k.isI32), b.get(k.value)),
		k.stackWrite(one, k.sp(b), b.get(k.isI32), b.get(k.value)),
	}
}

func (k *localGetKind[E]) spDelta(*block[E]) E { return k.a.Neg(k.a.One()) }

// local.set: pop, write sp+1+depth.
type localSetKind[E any] struct {
	kindBase[E]
	isI32 cell
	depth cell
	value cell
}

func (k *localSetKind[E]) configure(al *allocator) {
	k.isI32, k.depth, k.value = al.alloc(), al.alloc(), al.alloc()
}

func (k *localSetKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.LocalSetInfo](s)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.depth, uint64(info.Depth))
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *localSetKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.LocalSet, b.get(k.depth), b.get(k.isI32), k.a.Zero())
}

func (k *localSetKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{boolGate(k.a, "is i32", b.get(k.isI32))}
}

func (k *localSetKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
		k.stackWrite(one, k.a.Add(k.stackAt(b, 1), b.get(k.depth)), b.get(k.isI32), b.get(k.value)),
	}
}

func (k *localSetKind[E]) spDelta(*block[E]) E { return k.a.One() }

// local.tee: read the top, write sp+depth.
type localTeeKind[E any] struct {
	kindBase[E]
	isI32 cell
	depth cell
	value cell
}

func (k *localTeeKind[E]) configure(al *allocator) {
	k.isI32, k.depth, k.value = al.alloc(), al.alloc(), al.alloc()
}

func (k *localTeeKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.LocalTeeInfo](s)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.depth, uint64(info.Depth))
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *localTeeKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.LocalTee, b.get(k.depth), b.get(k.isI32), k.a.Zero())
}

func (k *localTeeKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{boolGate(k.a, "is i32", b.get(k.isI32))}
}

func (k *localTeeKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
		k.stackWrite(one, k.a.Add(k.sp(b), b.get(k.depth)), b.get(k.isI32), b.get(k.value)),
	}
}

// global.get: read the global, push.
type globalGetKind[E any] struct {
	kindBase[E]
	idx       cell
	isI32     cell
	isMutable cell
	value     cell
}

func (k *globalGetKind[E]) configure(al *allocator) {
	k.idx, k.isI32, k.isMutable, k.value = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *globalGetKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.GlobalGetInfo](s)
	k.setU64(b, k.idx, uint64(info.Idx))
	k.setType(b, k.isI32, info.VType)
	k.setFlag(b, k.isMutable, info.IsMutable)
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *globalGetKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.GlobalGet, b.get(k.idx), z, z)
}

func (k *globalGetKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{
		boolGate(k.a, "is i32", b.get(k.isI32)),
		boolGate(k.a, "is mutable", b.get(k.isMutable)),
	}
}

func (k *globalGetKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.access(one, specs.LocationGlobal, specs.AccessRead, b.get(k.idx), b.get(k.isI32), b.get(k.isMutable), b.get(k.value)),
		k.stackWrite(one, k.sp(b), b.get(k.isI32), b.get(k.value)),
	}
}

func (k *globalGetKind[E]) spDelta(*block[E]) E { return k.a.Neg(k.a.One()) }

// global.set: pop, write the global. Only mutable globals can be written.
type globalSetKind[E any] struct {
	kindBase[E]
	idx       cell
	isI32     cell
	isMutable cell
	value     cell
}

func (k *globalSetKind[E]) configure(al *allocator) {
	k.idx, k.isI32, k.isMutable, k.value = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *globalSetKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.GlobalSetInfo](s)
	k.setU64(b, k.idx, uint64(info.Idx))
	k.setType(b, k.isI32, info.VType)
	k.setFlag(b, k.isMutable, info.IsMutable)
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *globalSetKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.GlobalSet, b.get(k.idx), z, z)
}

func (k *globalSetKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{
		boolGate(k.a, "is i32", b.get(k.isI32)),
		{name: "global set mutable", value: k.a.not(b.get(k.isMutable))},
	}
}

func (k *globalSetKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), b.get(k.isI32), b.get(k.value)),
		k.access(one, specs.LocationGlobal, specs.AccessWrite, b.get(k.idx), b.get(k.isI32), b.get(k.isMutable), b.get(k.value)),
	}
}

func (k *globalSetKind[E]) spDelta(*block[E]) E { return k.a.One() }

type constKind[E any] struct {
	kindBase[E]
	isI32 cell
	value cell
}

func (k *constKind[E]) configure(al *allocator) {
	k.isI32, k.value = al.alloc(), al.alloc()
}

func (k *constKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.ConstInfo](s)
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.value, info.VType.Mask(info.Value))
	return nil
}

func (k *constKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Const, b.get(k.value), b.get(k.isI32), k.a.Zero())
}

func (k *constKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{boolGate(k.a, "is i32", b.get(k.isI32))}
}

func (k *constKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{typedRange(k.a, b.get(k.value), b.get(k.isI32))}
}

func (k *constKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	return []memoryAccess[E]{k.stackWrite(k.a.One(), k.sp(b), b.get(k.isI32), b.get(k.value))}
}

func (k *constKind[E]) spDelta(*block[E]) E { return k.a.Neg(k.a.One()) }

type dropKind[E any] struct {
	kindBase[E]
}

func (k *dropKind[E]) configure(*allocator) {}

func (k *dropKind[E]) assign(_ *block[E], s *stepContext) error {
	stepInfo[specs.DropInfo](s)
	return nil
}

func (k *dropKind[E]) opcode(*block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.Drop, z, z, z)
}

func (k *dropKind[E]) spDelta(*block[E]) E { return k.a.One() }

// select: res = cond != 0 ? val1 : val2.
type selectKind[E any] struct {
	kindBase[E]
	isI32   cell
	cond    cell
	condInv cell
	isZero  cell
	val1    cell
	val2    cell
	res     cell
}

func (k *selectKind[E]) configure(al *allocator) {
	k.isI32, k.cond, k.condInv, k.isZero = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.val1, k.val2, k.res = al.alloc(), al.alloc(), al.alloc()
}

func (k *selectKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.SelectInfo](s)
	cond := specs.I32.Mask(info.Cond)
	val1, val2 := info.VType.Mask(info.Val1), info.VType.Mask(info.Val2)
	want := val2
	if cond != 0 {
		want = val1
	}
	if got := info.VType.Mask(info.Result); got != want {
		return mismatch(s, "result", got, want)
	}
	k.setType(b, k.isI32, info.VType)
	k.setU64(b, k.cond, cond)
	if cond != 0 {
		b.set(k.condInv, a.Inverse(a.u(cond)))
	}
	k.setFlag(b, k.isZero, cond == 0)
	k.setU64(b, k.val1, val1)
	k.setU64(b, k.val2, val2)
	k.setU64(b, k.res, want)
	return nil
}

func (k *selectKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.Select, z, b.get(k.isI32), z)
}

func (k *selectKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	gates := []gate[E]{boolGate(a, "is i32", b.get(k.isI32))}
	gates = append(gates, zeroGates(a, "cond", b.get(k.cond), b.get(k.condInv), b.get(k.isZero))...)
	return append(gates, eqGate(a, "select result", b.get(k.res), a.sel(b.get(k.isZero), b.get(k.val2), b.get(k.val1))))
}

func (k *selectKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{rangeLookup(k.a, b.get(k.cond), 32)}
}

func (k *selectKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	isI32 := b.get(k.isI32)
	return []memoryAccess[E]{
		k.stackRead(one, k.stackAt(b, 1), one, b.get(k.cond)),
		k.stackRead(one, k.stackAt(b, 2), isI32, b.get(k.val2)),
		k.stackRead(one, k.stackAt(b, 3), isI32, b.get(k.val1)),
		k.stackWrite(one, k.stackAt(b, 3), isI32, b.get(k.res)),
	}
}

func (k *selectKind[E]) spDelta(*block[E]) E { return k.a.u(2) }
