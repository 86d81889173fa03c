package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/encode"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// return: move the kept value, close the frame and resume at the return
// address read from the frame table.
type returnKind[E any] struct {
	kindBase[E]
	keep     keepCells[E]
	retFid   cell
	retIid   cell
	retFrame cell
}

func (k *returnKind[E]) configure(al *allocator) {
	k.keep = configureKeep[E](al)
	k.retFid, k.retIid, k.retFrame = al.alloc(), al.alloc(), al.alloc()
}

func (k *returnKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.ReturnInfo](s)
	if err := k.keep.assign(k.a, b, s, info.Drop, info.Keep, info.KeepValues); err != nil {
		return err
	}
	k.setU64(b, k.retFid, uint64(s.next.Fid))
	k.setU64(b, k.retIid, uint64(s.next.Iid))
	k.setU64(b, k.retFrame, uint64(s.next.FrameID))
	return nil
}

func (k *returnKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Return, b.get(k.keep.drop), k.keep.encoded(k.a, b), k.a.Zero())
}

func (k *returnKind[E]) gates(b *block[E]) []gate[E] { return k.keep.gates(k.a, b) }

func (k *returnKind[E]) lookups(b *block[E]) []lookup[E] {
	c := k.c
	return []lookup[E]{{
		target: lookupFrameReturn,
		values: []E{b.get(c.frameID), b.get(k.retFrame), b.get(c.fid), b.get(k.retFid), b.get(k.retIid)},
	}}
}

func (k *returnKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	return k.keep.accesses(k.kindBase, b, k.a.One(), k.stackAt(b, 1))
}

func (k *returnKind[E]) spDelta(b *block[E]) E { return b.get(k.keep.drop) }

func (k *returnKind[E]) jops(*block[E]) E { return k.a.p2(32) }

func (k *returnKind[E]) next(b *block[E]) position[E] {
	return position[E]{fid: b.get(k.retFid), iid: b.get(k.retIid), frame: b.get(k.retFrame)}
}

type brKind[E any] struct {
	kindBase[E]
	keep keepCells[E]
	dst  cell
}

func (k *brKind[E]) configure(al *allocator) {
	k.keep = configureKeep[E](al)
	k.dst = al.alloc()
}

func (k *brKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.BrInfo](s)
	k.setU64(b, k.dst, uint64(info.DstPc))
	return k.keep.assign(k.a, b, s, info.Drop, info.Keep, info.KeepValues)
}

func (k *brKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.Br, b.get(k.keep.drop), k.keep.encoded(k.a, b), b.get(k.dst))
}

func (k *brKind[E]) gates(b *block[E]) []gate[E] { return k.keep.gates(k.a, b) }

func (k *brKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	return k.keep.accesses(k.kindBase, b, k.a.One(), k.stackAt(b, 1))
}

func (k *brKind[E]) spDelta(b *block[E]) E { return b.get(k.keep.drop) }

func (k *brKind[E]) next(b *block[E]) position[E] {
	return position[E]{fid: b.get(k.c.fid), iid: b.get(k.dst), frame: b.get(k.c.frameID)}
}

// brIfKind serves br_if (taken on a non-zero condition) and br_if_eqz
// (taken on zero).
type brIfKind[E any] struct {
	kindBase[E]
	onZero  bool
	keep    keepCells[E]
	dst     cell
	cond    cell
	condInv cell
	isZero  cell
}

func (k *brIfKind[E]) class() specs.OpcodeClass {
	if k.onZero {
		return specs.BrIfEqz
	}
	return specs.BrIf
}

func (k *brIfKind[E]) configure(al *allocator) {
	k.keep = configureKeep[E](al)
	k.dst, k.cond, k.condInv, k.isZero = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *brIfKind[E]) assign(b *block[E], s *stepContext) error {
	var (
		cond, dst, drop uint32
		keep            []specs.VarType
		values          []uint64
	)
	if k.onZero {
		info := stepInfo[specs.BrIfEqzInfo](s)
		cond, dst, drop, keep, values = info.Condition, info.DstPc, info.Drop, info.Keep, info.KeepValues
	} else {
		info := stepInfo[specs.BrIfNezInfo](s)
		cond, dst, drop, keep, values = info.Condition, info.DstPc, info.Drop, info.Keep, info.KeepValues
	}
	k.setU64(b, k.dst, uint64(dst))
	k.setU64(b, k.cond, uint64(cond))
	if cond != 0 {
		b.set(k.condInv, k.a.Inverse(k.a.u(uint64(cond))))
	}
	k.setFlag(b, k.isZero, cond == 0)
	return k.keep.assign(k.a, b, s, drop, keep, values)
}

func (k *brIfKind[E]) taken(b *block[E]) E {
	if k.onZero {
		return b.get(k.isZero)
	}
	return k.a.not(b.get(k.isZero))
}

func (k *brIfKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(k.class(), b.get(k.keep.drop), k.keep.encoded(k.a, b), b.get(k.dst))
}

func (k *brIfKind[E]) gates(b *block[E]) []gate[E] {
	return append(k.keep.gates(k.a, b), zeroGates(k.a, "cond", b.get(k.cond), b.get(k.condInv), b.get(k.isZero))...)
}

func (k *brIfKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{rangeLookup(k.a, b.get(k.cond), 32)}
}

func (k *brIfKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	out := []memoryAccess[E]{k.stackRead(one, k.stackAt(b, 1), one, b.get(k.cond))}
	return append(out, k.keep.accesses(k.kindBase, b, k.taken(b), k.stackAt(b, 2))...)
}

func (k *brIfKind[E]) spDelta(b *block[E]) E {
	return k.a.Add(k.a.One(), k.a.Mul(k.taken(b), b.get(k.keep.drop)))
}

func (k *brIfKind[E]) next(b *block[E]) position[E] {
	pos := k.fallThrough(b)
	pos.iid = k.a.sel(k.taken(b), b.get(k.dst), pos.iid)
	return pos
}

// br_table: an index at or beyond the last target selects the last
// (default) target. The target itself is read from the image.
type brTableKind[E any] struct {
	kindBase[E]
	keep      keepCells[E]
	targets   cell
	index     cell
	effective cell
	isDefault cell
	diff      cell
	dst       cell
}

func (k *brTableKind[E]) configure(al *allocator) {
	k.keep = configureKeep[E](al)
	k.targets, k.index, k.effective = al.alloc(), al.alloc(), al.alloc()
	k.isDefault, k.diff, k.dst = al.alloc(), al.alloc(), al.alloc()
}

func (k *brTableKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.BrTableInfo](s)
	targets := s.opcode.Arg0
	if targets == 0 {
		return fmt.Errorf("eid %d: br_table without targets", s.entry.Eid)
	}
	index := uint64(info.Index)
	effective, diff, isDefault := index, targets-2-index, false
	if index >= targets-1 {
		effective, diff, isDefault = targets-1, index-(targets-1), true
	}
	k.setU64(b, k.targets, targets)
	k.setU64(b, k.index, index)
	k.setU64(b, k.effective, effective)
	k.setFlag(b, k.isDefault, isDefault)
	k.setU64(b, k.diff, diff)
	k.setU64(b, k.dst, uint64(info.DstPc))
	return k.keep.assign(k.a, b, s, info.Drop, info.Keep, info.KeepValues)
}

func (k *brTableKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.BrTable, b.get(k.targets), z, z)
}

func (k *brTableKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	last := a.Sub(b.get(k.targets), a.One())
	isDefault := b.get(k.isDefault)
	index := b.get(k.index)
	gates := append(k.keep.gates(a, b), boolGate(a, "is default", isDefault))
	return append(gates,
		eqGate(a, "effective index", b.get(k.effective), a.sel(isDefault, last, index)),
		eqGate(a, "index bound", b.get(k.diff), a.sel(isDefault, a.Sub(index, last), a.Sub(a.Sub(last, a.One()), index))),
	)
}

func (k *brTableKind[E]) lookups(b *block[E]) []lookup[E] {
	a, c := k.a, k.c
	entry := a.sum(
		a.shift(a.u(uint64(encode.ImageBrTable)), encode.ImageDataBoundary),
		a.shift(a.u(uint64(encode.IndirectBrTable)), 192),
		a.shift(b.get(c.fid), 160),
		a.shift(b.get(c.iid), 128),
		a.shift(b.get(k.effective), 96),
		a.shift(b.get(k.keep.drop), 64),
		a.shift(k.keep.encoded(a, b), 32),
		b.get(k.dst),
	)
	return []lookup[E]{
		rangeLookup(a, b.get(k.index), 32),
		rangeLookup(a, b.get(k.diff), 32),
		imageLookup(entry),
	}
}

func (k *brTableKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	out := []memoryAccess[E]{k.stackRead(one, k.stackAt(b, 1), one, b.get(k.index))}
	return append(out, k.keep.accesses(k.kindBase, b, one, k.stackAt(b, 2))...)
}

func (k *brTableKind[E]) spDelta(b *block[E]) E {
	return k.a.Add(k.a.One(), b.get(k.keep.drop))
}

func (k *brTableKind[E]) next(b *block[E]) position[E] {
	return position[E]{fid: b.get(k.c.fid), iid: b.get(k.dst), frame: b.get(k.c.frameID)}
}

// unreachable traps; no recorded step can execute it.
type unreachableKind[E any] struct {
	kindBase[E]
}

func (k *unreachableKind[E]) configure(*allocator) {}

func (k *unreachableKind[E]) assign(_ *block[E], s *stepContext) error {
	return fmt.Errorf("eid %d: %w: unreachable executed", s.entry.Eid, specs.ErrUnsupportedStep)
}

func (k *unreachableKind[E]) opcode(*block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.Unreachable, z, z, z)
}

// frameCall is the frame row opened by a call at this step.
func (k kindBase[E]) frameCall(b *block[E], callee E) lookup[E] {
	c := k.c
	return lookup[E]{
		target: lookupFrameCall,
		values: []E{b.get(c.eid), b.get(c.frameID), callee, b.get(c.fid), k.a.Add(b.get(c.iid), k.a.One())},
	}
}

func (k kindBase[E]) enter(b *block[E], callee E) position[E] {
	return position[E]{fid: callee, iid: k.a.Zero(), frame: b.get(k.c.eid)}
}

type callKind[E any] struct {
	kindBase[E]
	callee cell
}

func (k *callKind[E]) configure(al *allocator) { k.callee = al.alloc() }

func (k *callKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.CallInfo](s)
	k.setU64(b, k.callee, uint64(info.Index))
	return nil
}

func (k *callKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.Call, b.get(k.callee), z, z)
}

func (k *callKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{k.frameCall(b, b.get(k.callee))}
}

func (k *callKind[E]) jops(*block[E]) E { return k.a.One() }

func (k *callKind[E]) next(b *block[E]) position[E] { return k.enter(b, b.get(k.callee)) }

// call_indirect: pop the table offset and resolve the callee through the
// elem region of the image.
type callIndirectKind[E any] struct {
	kindBase[E]
	typeIdx  cell
	tableIdx cell
	offset   cell
	funcIdx  cell
}

func (k *callIndirectKind[E]) configure(al *allocator) {
	k.typeIdx, k.tableIdx, k.offset, k.funcIdx = al.alloc(), al.alloc(), al.alloc(), al.alloc()
}

func (k *callIndirectKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.CallIndirectInfo](s)
	k.setU64(b, k.typeIdx, uint64(info.TypeIndex))
	k.setU64(b, k.tableIdx, uint64(info.TableIndex))
	k.setU64(b, k.offset, uint64(info.Offset))
	k.setU64(b, k.funcIdx, uint64(info.FuncIndex))
	return nil
}

func (k *callIndirectKind[E]) opcode(b *block[E]) E {
	z := k.a.Zero()
	return k.encodeOpcode(specs.CallIndirect, b.get(k.typeIdx), z, z)
}

func (k *callIndirectKind[E]) lookups(b *block[E]) []lookup[E] {
	a := k.a
	elem := a.sum(
		a.shift(a.u(uint64(encode.ImageBrTable)), encode.ImageDataBoundary),
		a.shift(a.u(uint64(encode.IndirectCallIndirect)), 192),
		a.shift(b.get(k.tableIdx), 96),
		a.shift(b.get(k.typeIdx), 64),
		a.shift(b.get(k.offset), 32),
		b.get(k.funcIdx),
	)
	return []lookup[E]{
		rangeLookup(a, b.get(k.offset), 32),
		imageLookup(elem),
		k.frameCall(b, b.get(k.funcIdx)),
	}
}

func (k *callIndirectKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	one := k.a.One()
	return []memoryAccess[E]{k.stackRead(one, k.stackAt(b, 1), one, b.get(k.offset))}
}

func (k *callIndirectKind[E]) spDelta(*block[E]) E { return k.a.One() }

func (k *callIndirectKind[E]) jops(*block[E]) E { return k.a.One() }

func (k *callIndirectKind[E]) next(b *block[E]) position[E] { return k.enter(b, b.get(k.funcIdx)) }

// call_host: a builtin plugin call taking at most one argument and
// producing at most one result. The plugin flags select which host counter
// moves.
type callHostKind[E any] struct {
	kindBase[E]
	function  cell
	isInput   cell
	isContext cell
	isRequire cell
	hasParam  cell
	paramI32  cell
	arg       cell
	argInv    cell
	hasResult cell
	resultI32 cell
	ret       cell
	isPublic  cell
	ctxRead   cell
	ctxWrite  cell
}

func (k *callHostKind[E]) configure(al *allocator) {
	k.function = al.alloc()
	k.isInput, k.isContext, k.isRequire = al.alloc(), al.alloc(), al.alloc()
	k.hasParam, k.paramI32, k.arg, k.argInv = al.alloc(), al.alloc(), al.alloc(), al.alloc()
	k.hasResult, k.resultI32, k.ret = al.alloc(), al.alloc(), al.alloc()
	k.isPublic, k.ctxRead, k.ctxWrite = al.alloc(), al.alloc(), al.alloc()
}

func (k *callHostKind[E]) assign(b *block[E], s *stepContext) error {
	a := k.a
	info := stepInfo[specs.CallHostInfo](s)
	if len(info.Params) > 1 || len(info.Args) != len(info.Params) {
		return fmt.Errorf("eid %d: host function %q takes %d params with %d args, at most one is supported",
			s.entry.Eid, info.Name, len(info.Params), len(info.Args))
	}
	if info.Result != nil && info.Ret == nil {
		return fmt.Errorf("eid %d: host function %q returned no value", s.entry.Eid, info.Name)
	}
	k.setU64(b, k.function, uint64(info.Function))
	switch info.Plugin {
	case specs.HostInput:
		b.set(k.isInput, a.One())
	case specs.Context:
		b.set(k.isContext, a.One())
	case specs.Require:
		b.set(k.isRequire, a.One())
		if len(info.Args) == 0 || info.Args[0] == 0 {
			return fmt.Errorf("eid %d: require failed", s.entry.Eid)
		}
	default:
		return fmt.Errorf("eid %d: %w: host plugin %s", s.entry.Eid, specs.ErrUnsupportedStep, info.Plugin)
	}
	if len(info.Params) == 1 {
		arg := info.Params[0].Mask(info.Args[0])
		b.set(k.hasParam, a.One())
		k.setType(b, k.paramI32, info.Params[0])
		k.setU64(b, k.arg, arg)
		if arg != 0 {
			b.set(k.argInv, a.Inverse(a.u(arg)))
		}
	}
	if info.Result != nil {
		b.set(k.hasResult, a.One())
		k.setType(b, k.resultI32, *info.Result)
		k.setU64(b, k.ret, info.Result.Mask(*info.Ret))
	}

	before := specs.InitializationState{}
	after := before.HostCounters(info)
	k.setFlag(b, k.isPublic, after.HostPublicInputs != 0)
	k.setFlag(b, k.ctxRead, after.ContextInIndex != 0)
	k.setFlag(b, k.ctxWrite, after.ContextOutIndex != 0)
	return nil
}

func (k *callHostKind[E]) plugin(b *block[E]) E {
	a := k.a
	return a.Add(a.Mul(a.u(uint64(specs.Context)), b.get(k.isContext)), a.Mul(a.u(uint64(specs.Require)), b.get(k.isRequire)))
}

func (k *callHostKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.CallHost, b.get(k.function), k.plugin(b), k.a.Zero())
}

func (k *callHostKind[E]) gates(b *block[E]) []gate[E] {
	a := k.a
	gates := make([]gate[E], 0, 16)
	for _, c := range []cell{k.isInput, k.isContext, k.isRequire, k.hasParam, k.paramI32, k.hasResult, k.resultI32, k.isPublic, k.ctxRead, k.ctxWrite} {
		gates = append(gates, boolGate(a, "host flag", b.get(c)))
	}
	return append(gates,
		eqGate(a, "one plugin", a.sum(b.get(k.isInput), b.get(k.isContext), b.get(k.isRequire)), a.One()),
		gate[E]{name: "public input plugin", value: a.Mul(b.get(k.isPublic), a.not(b.get(k.isInput)))},
		gate[E]{name: "context read plugin", value: a.Mul(b.get(k.ctxRead), a.not(b.get(k.isContext)))},
		gate[E]{name: "context write plugin", value: a.Mul(b.get(k.ctxWrite), a.not(b.get(k.isContext)))},
		gate[E]{name: "require argument", value: a.Mul(b.get(k.isRequire), a.not(b.get(k.hasParam)))},
		gate[E]{name: "require holds", value: a.Mul(b.get(k.isRequire), a.Sub(a.Mul(b.get(k.arg), b.get(k.argInv)), a.One()))},
	)
}

func (k *callHostKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{
		typedRange(k.a, b.get(k.arg), b.get(k.paramI32)),
		typedRange(k.a, b.get(k.ret), b.get(k.resultI32)),
	}
}

func (k *callHostKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	a := k.a
	return []memoryAccess[E]{
		k.stackRead(b.get(k.hasParam), k.stackAt(b, 1), b.get(k.paramI32), b.get(k.arg)),
		k.stackWrite(b.get(k.hasResult), a.Add(k.sp(b), b.get(k.hasParam)), b.get(k.resultI32), b.get(k.ret)),
	}
}

func (k *callHostKind[E]) spDelta(b *block[E]) E {
	return k.a.Sub(b.get(k.hasParam), b.get(k.hasResult))
}

func (k *callHostKind[E]) host(b *block[E]) hostDelta[E] {
	d := k.noHost()
	d.publicInputs = b.get(k.isPublic)
	d.contextIn = b.get(k.ctxRead)
	d.contextOut = b.get(k.ctxWrite)
	return d
}

// external host call: one argument or one return exchanged with a foreign
// function, matched against the host call table by its running index.
type externalHostCallKind[E any] struct {
	kindBase[E]
	op    cell
	isRet cell
	value cell
}

func (k *externalHostCallKind[E]) configure(al *allocator) {
	k.op, k.isRet, k.value = al.alloc(), al.alloc(), al.alloc()
}

func (k *externalHostCallKind[E]) assign(b *block[E], s *stepContext) error {
	info := stepInfo[specs.ExternalHostCallInfo](s)
	k.setU64(b, k.op, uint64(info.Op))
	k.setFlag(b, k.isRet, info.Sig.IsRet())
	k.setU64(b, k.value, info.Value)
	return nil
}

func (k *externalHostCallKind[E]) opcode(b *block[E]) E {
	return k.encodeOpcode(specs.ExternalHostCall, b.get(k.op), b.get(k.isRet), k.a.Zero())
}

func (k *externalHostCallKind[E]) gates(b *block[E]) []gate[E] {
	return []gate[E]{boolGate(k.a, "is return", b.get(k.isRet))}
}

func (k *externalHostCallKind[E]) lookups(b *block[E]) []lookup[E] {
	return []lookup[E]{
		rangeLookup(k.a, b.get(k.value), 64),
		{target: lookupHostCall, values: []E{b.get(k.c.hostIndex), b.get(k.op), b.get(k.isRet), b.get(k.value)}},
	}
}

func (k *externalHostCallKind[E]) accesses(b *block[E]) []memoryAccess[E] {
	a := k.a
	isRet := b.get(k.isRet)
	return []memoryAccess[E]{
		k.stackWrite(isRet, k.sp(b), a.Zero(), b.get(k.value)),
		k.stackRead(a.not(isRet), k.stackAt(b, 1), a.Zero(), b.get(k.value)),
	}
}

func (k *externalHostCallKind[E]) spDelta(b *block[E]) E {
	return k.a.Sub(k.a.One(), k.a.Mul(k.a.u(2), b.get(k.isRet)))
}

func (k *externalHostCallKind[E]) host(*block[E]) hostDelta[E] {
	d := k.noHost()
	d.hostIndex = k.a.One()
	return d
}
