package circuits

import (
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/encode"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// memoryEmidBound bounds the accesses of a single step.
const memoryEmidBound = 8

// MemoryTableImpl implements the Memory Table
//
// Rows are sorted by (ltype, offset, eid, emid) and prove:
// 1. The first row of an address is an init row bound to the image, or a write
// 2. Every read returns the value of the preceding row of its address
// 3. Immutable globals are never written and heap blocks are i64
// 4. The non-init rows are exactly the accesses of the event table (permutation)
type MemoryTableImpl[E any] struct {
	config *Config
	a      arith[E]

	enabled   []E
	isStack   []E
	isHeap    []E
	isGlobal  []E
	isRead    []E
	isWrite   []E
	isInit    []E
	offset    []E
	eid       []E
	emid      []E
	isI32     []E
	isMutable []E
	value     []E

	same        []E // same address as the previous row
	addrDiff    []E // address key minus the previous row's key
	addrDiffInv []E
	idDiff      []E // access id gap inside an address group, minus one
	restMops    []E
	encode      []E // image init row of init rows, 0 otherwise

	height int
}

func newMemoryTable[E any](a arith[E], config *Config) *MemoryTableImpl[E] {
	return &MemoryTableImpl[E]{config: config, a: a}
}

func addressKey(e specs.MemoryTableEntry) uint64 {
	return uint64(e.LType)<<32 | uint64(e.Offset)
}

func accessID(e specs.MemoryTableEntry) uint64 {
	return uint64(e.Eid)*memoryEmidBound + uint64(e.Emid)
}

// initImageRow returns the image encoding an init row reads.
func initImageRow(e specs.MemoryTableEntry) specs.InitMemoryTableEntry {
	return specs.InitMemoryTableEntry{LType: e.LType, IsMutable: e.IsMutable, Offset: e.Offset, VType: e.VType, Value: e.Value}
}

func (t *MemoryTableImpl[E]) push(cols []*[]E, values ...E) {
	for i, c := range cols {
		*c = append(*c, values[i])
	}
}

func (t *MemoryTableImpl[E]) columns() []*[]E {
	return []*[]E{
		&t.enabled, &t.isStack, &t.isHeap, &t.isGlobal, &t.isRead, &t.isWrite, &t.isInit,
		&t.offset, &t.eid, &t.emid, &t.isI32, &t.isMutable, &t.value,
		&t.same, &t.addrDiff, &t.addrDiffInv, &t.idDiff, &t.restMops, &t.encode,
	}
}

// assign lays out the sorted rows followed by one disabled terminal row that
// carries rest_mops = 0.
func (t *MemoryTableImpl[E]) assign(mtable *specs.MemoryTable) error {
	n := len(mtable.Entries)
	if n > t.config.MemoryCapacity() {
		return &CapacityError{Kind: CapacityMemoryRows, Count: n, Limit: t.config.MemoryCapacity(), K: t.config.K()}
	}
	a := t.a
	cols := t.columns()
	for _, c := range cols {
		*c = make([]E, 0, n+1)
	}

	rest := uint64(mtable.NonInitCount())
	var prev *specs.MemoryTableEntry
	for i := range mtable.Entries {
		e := &mtable.Entries[i]
		if e.Emid >= memoryEmidBound {
			return errRow(MemoryTable, i, "emid %d exceeds %d", e.Emid, memoryEmidBound)
		}
		if prev != nil && specs.CompareMemoryEntries(*prev, *e) > 0 {
			return errRow(MemoryTable, i, "rows are not sorted: %s after %s", e, prev)
		}

		key := addressKey(*e)
		var prevKey uint64
		if prev != nil {
			prevKey = addressKey(*prev)
		}
		same := prev != nil && prev.SameLocation(*e)
		diff := a.Sub(a.u(key), a.u(prevKey))
		idDiff := uint64(0)
		if same {
			idDiff = accessID(*e) - accessID(*prev) - 1
		}
		enc := a.Zero()
		if e.AType.IsInit() {
			enc = a.FromUint256(encode.EncodeImageRow(encode.ImageInitMemory, encode.EncodeInitMemory(initImageRow(*e))))
		}

		t.push(cols,
			a.One(),
			a.flag(e.LType == specs.LocationStack), a.flag(e.LType == specs.LocationHeap), a.flag(e.LType == specs.LocationGlobal),
			a.flag(e.AType == specs.AccessRead), a.flag(e.AType == specs.AccessWrite), a.flag(e.AType.IsInit()),
			a.u(uint64(e.Offset)), a.u(uint64(e.Eid)), a.u(uint64(e.Emid)),
			a.flag(e.VType.IsI32()), a.flag(e.IsMutable), a.u(e.Value),
			a.flag(same), diff, a.Inverse(diff), a.u(idDiff), a.u(rest), enc,
		)
		if !e.AType.IsInit() {
			rest--
		}
		prev = e
	}

	zero := make([]E, len(cols))
	for i := range zero {
		zero[i] = a.Zero()
	}
	t.push(cols, zero...)
	t.height = n
	return nil
}

// GetID returns the table's identifier
func (t *MemoryTableImpl[E]) GetID() TableID { return MemoryTable }

// GetHeight returns the number of access rows
func (t *MemoryTableImpl[E]) GetHeight() int { return t.height }

// GetPaddedHeight returns the column height
func (t *MemoryTableImpl[E]) GetPaddedHeight() int { return t.config.Rows() }

// GetColumns returns the assigned columns
func (t *MemoryTableImpl[E]) GetColumns() []Column[E] {
	names := []string{
		"enabled", "is_stack", "is_heap", "is_global", "is_read", "is_write", "is_init",
		"offset", "eid", "emid", "is_i32", "is_mutable", "value",
		"same", "offset_diff", "offset_diff_inv", "id_diff", "rest_mops", "encode",
	}
	cols := t.columns()
	out := make([]Column[E], len(cols))
	for i, c := range cols {
		out[i] = Column[E]{Name: "mtable_" + names[i], Values: *c}
	}
	return out
}

func (t *MemoryTableImpl[E]) ltype(i int) E {
	a := t.a
	return a.sum(
		a.Mul(a.u(uint64(specs.LocationStack)), t.isStack[i]),
		a.Mul(a.u(uint64(specs.LocationHeap)), t.isHeap[i]),
		a.Mul(a.u(uint64(specs.LocationGlobal)), t.isGlobal[i]),
	)
}

func (t *MemoryTableImpl[E]) atype(i int) E {
	a := t.a
	return a.sum(
		a.Mul(a.u(uint64(specs.AccessRead)), t.isRead[i]),
		a.Mul(a.u(uint64(specs.AccessWrite)), t.isWrite[i]),
		a.Mul(a.u(uint64(specs.AccessInit)), t.isInit[i]),
	)
}

func (t *MemoryTableImpl[E]) key(i int) E {
	return t.a.Add(t.a.shift(t.ltype(i), 32), t.offset[i])
}

func (t *MemoryTableImpl[E]) id(i int) E {
	return t.a.Add(t.a.Mul(t.eid[i], t.a.u(memoryEmidBound)), t.emid[i])
}

// imageRow rebuilds the init memory encoding of row i.
func (t *MemoryTableImpl[E]) imageRow(i int) E {
	a := t.a
	return a.sum(
		a.shift(a.u(uint64(encode.ImageInitMemory)), encode.ImageDataBoundary),
		a.shift(t.ltype(i), 128),
		a.shift(t.isMutable[i], 96),
		a.shift(t.offset[i], 64),
		t.value[i],
	)
}

// CheckConstraints evaluates the row gates and the transition into the next
// row. The terminal row is disabled and must have consumed every access.
func (t *MemoryTableImpl[E]) CheckConstraints() error {
	a := t.a
	last := len(t.enabled) - 1
	terminal := []gate[E]{
		{name: "terminal disabled", value: t.enabled[last]},
		{name: "terminal rest mops", value: t.restMops[last]},
	}
	if err := checkGates(a.Field, MemoryTable, last, terminal); err != nil {
		return err
	}

	for i := 0; i < last; i++ {
		same := t.same[i]
		notSame := a.not(same)
		prevKey, prevID := a.Zero(), a.Zero()
		prevValue, prevI32, prevMutable := a.Zero(), a.Zero(), a.Zero()
		if i > 0 {
			prevKey, prevID = t.key(i-1), t.id(i-1)
			prevValue, prevI32, prevMutable = t.value[i-1], t.isI32[i-1], t.isMutable[i-1]
		}
		gates := []gate[E]{
			boolGate(a, "enabled", t.enabled[i]),
			boolGate(a, "is stack", t.isStack[i]),
			boolGate(a, "is heap", t.isHeap[i]),
			boolGate(a, "is global", t.isGlobal[i]),
			eqGate(a, "one ltype", a.sum(t.isStack[i], t.isHeap[i], t.isGlobal[i]), a.One()),
			boolGate(a, "is read", t.isRead[i]),
			boolGate(a, "is write", t.isWrite[i]),
			boolGate(a, "is init", t.isInit[i]),
			eqGate(a, "one atype", a.sum(t.isRead[i], t.isWrite[i], t.isInit[i]), a.One()),
			boolGate(a, "is i32", t.isI32[i]),
			boolGate(a, "is mutable", t.isMutable[i]),
			{name: "heap is i64", value: a.Mul(t.isHeap[i], t.isI32[i])},
			{name: "immutable write", value: a.Mul(a.not(t.isMutable[i]), t.isWrite[i])},
			eqGate(a, "address diff", t.addrDiff[i], a.Sub(t.key(i), prevKey)),
		}
		gates = append(gates, zeroGates(a, "address diff", t.addrDiff[i], t.addrDiffInv[i], same)...)
		gates = append(gates,
			eqGate(a, "access order", a.Mul(same, t.idDiff[i]), a.Mul(same, a.Sub(a.Sub(t.id(i), prevID), a.One()))),
			gate[E]{name: "init leads address", value: a.Mul(t.isInit[i], same)},
			gate[E]{name: "read before write", value: a.Mul(notSame, t.isRead[i])},
			gate[E]{name: "heap and global init", value: a.prod(notSame, a.Add(t.isHeap[i], t.isGlobal[i]), a.not(t.isInit[i]))},
			gate[E]{name: "read value", value: a.prod(same, t.isRead[i], a.Sub(t.value[i], prevValue))},
			gate[E]{name: "read type", value: a.prod(same, t.isRead[i], a.Sub(t.isI32[i], prevI32))},
			gate[E]{name: "mutability", value: a.Mul(same, a.Sub(t.isMutable[i], prevMutable))},
			eqGate(a, "init encoding", t.encode[i], a.Mul(t.isInit[i], t.imageRow(i))),
			eqGate(a, "rest mops transition", t.restMops[i+1], a.Sub(t.restMops[i], a.not(t.isInit[i]))),
		)
		if err := checkGates(a.Field, MemoryTable, i, when(a, t.enabled[i], gates...)); err != nil {
			return err
		}
	}
	return nil
}

// queries returns the range lookups of every row and the image lookups of
// the init rows.
func (t *MemoryTableImpl[E]) queries() []query[E] {
	a := t.a
	out := make([]query[E], 0, t.height*5)
	add := func(row int, l lookup[E]) {
		out = append(out, query[E]{lookup: l, table: MemoryTable, row: row})
	}
	for i := 0; i < t.height; i++ {
		add(i, rangeLookup(a, t.offset[i], 32))
		add(i, rangeLookup(a, t.emid[i], 3))
		add(i, rangeLookup(a, t.addrDiff[i], 64))
		add(i, rangeLookup(a, t.idDiff[i], 64))
		add(i, typedRange(a, t.value[i], t.isI32[i]))
		if !a.IsZero(t.isInit[i]) {
			add(i, imageLookup(t.encode[i]))
		}
	}
	return out
}

// memorySymbols returns the non-init rows as permutation tuples, matching
// EventTableImpl.memorySymbols.
func (t *MemoryTableImpl[E]) memorySymbols() [][]E {
	out := make([][]E, 0, t.height)
	for i := 0; i < t.height; i++ {
		if !t.a.IsZero(t.isInit[i]) {
			continue
		}
		out = append(out, []E{
			t.eid[i], t.emid[i], t.ltype(i), t.atype(i),
			t.offset[i], t.isI32[i], t.isMutable[i], t.value[i],
		})
	}
	return out
}

// firstRestMops is the number of accesses the event table must perform.
func (t *MemoryTableImpl[E]) firstRestMops() E { return t.restMops[0] }
