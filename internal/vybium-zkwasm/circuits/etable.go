package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/encode"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// Event table geometry. Every step occupies one block of StepBlockRows rows;
// its cells are spread over EventTableColumns columns.
const (
	StepBlockRows     = 8
	EventTableColumns = 16
	blockCells        = StepBlockRows * EventTableColumns
)

// cell addresses one value inside a step block.
type cell struct {
	col int
	rot int
}

func (c cell) index() int { return c.col*StepBlockRows + c.rot }

// allocator hands out the cells of a block column by column.
type allocator struct {
	next int
}

func (al *allocator) alloc() cell {
	if al.next >= blockCells {
		panic(fmt.Sprintf("event table block exhausted after %d cells", blockCells))
	}
	i := al.next
	al.next++
	return cell{col: i / StepBlockRows, rot: i % StepBlockRows}
}

func (al *allocator) allocN(n int) []cell {
	out := make([]cell, n)
	for i := range out {
		out[i] = al.alloc()
	}
	return out
}

// block is the assignment of one step.
type block[E any] struct {
	cells []E
}

func newBlock[E any](a arith[E]) *block[E] {
	cells := make([]E, blockCells)
	for i := range cells {
		cells[i] = a.Zero()
	}
	return &block[E]{cells: cells}
}

func (b *block[E]) get(c cell) E { return b.cells[c.index()] }

func (b *block[E]) set(c cell, v E) { b.cells[c.index()] = v }

// commonCells are shared by every opcode class.
type commonCells struct {
	enabled cell
	// class is one-hot; class[0] is unused
	class [specs.OpcodeClassCount + 1]cell

	eid      cell
	fid      cell
	iid      cell
	sp       cell
	mpages   cell
	maxpages cell
	frameID  cell

	restMops cell
	restJops cell
	itable   cell

	hostPublicInputs cell
	contextIn        cell
	contextOut       cell
	hostIndex        cell
}

func configureCommon(al *allocator) *commonCells {
	c := &commonCells{enabled: al.alloc()}
	for _, class := range specs.AllOpcodeClasses() {
		c.class[class] = al.alloc()
	}
	c.eid = al.alloc()
	c.fid = al.alloc()
	c.iid = al.alloc()
	c.sp = al.alloc()
	c.mpages = al.alloc()
	c.maxpages = al.alloc()
	c.frameID = al.alloc()
	c.restMops = al.alloc()
	c.restJops = al.alloc()
	c.itable = al.alloc()
	c.hostPublicInputs = al.alloc()
	c.contextIn = al.alloc()
	c.contextOut = al.alloc()
	c.hostIndex = al.alloc()
	return c
}

// position is the instruction a step hands control to.
type position[E any] struct {
	fid   E
	iid   E
	frame E
}

// hostDelta is the change of the host counters caused by a step.
type hostDelta[E any] struct {
	publicInputs E
	contextIn    E
	contextOut   E
	hostIndex    E
}

// memoryAccess is one row a step contributes to the memory permutation.
type memoryAccess[E any] struct {
	enabled   E
	ltype     specs.LocationType
	atype     specs.AccessType
	offset    E
	isI32     E
	isMutable E
	value     E
}

// stepContext carries what an opcode kind needs to assign one block.
type stepContext struct {
	entry  *specs.EventTableEntry
	opcode specs.Opcode
	// next is the state positioned on the following step
	next specs.InitializationState
}

// opcodeKind owns the cells and constraints of one opcode class.
type opcodeKind[E any] interface {
	configure(al *allocator)
	// assign re-executes the step over its recorded operands. A result that
	// differs from the trace is an error; a step info of the wrong variant
	// panics.
	assign(b *block[E], s *stepContext) error
	// opcode is the encoded opcode, as in the instruction table
	opcode(b *block[E]) E
	gates(b *block[E]) []gate[E]
	lookups(b *block[E]) []lookup[E]
	accesses(b *block[E]) []memoryAccess[E]
	spDelta(b *block[E]) E
	pagesDelta(b *block[E]) E
	jops(b *block[E]) E
	next(b *block[E]) position[E]
	host(b *block[E]) hostDelta[E]
}

// kindBase holds the defaults of an opcode kind: no constraints beyond the
// common ones, no accesses and a fall-through to the next instruction.
type kindBase[E any] struct {
	a arith[E]
	c *commonCells
}

func (k kindBase[E]) gates(*block[E]) []gate[E]            { return nil }
func (k kindBase[E]) lookups(*block[E]) []lookup[E]        { return nil }
func (k kindBase[E]) accesses(*block[E]) []memoryAccess[E] { return nil }
func (k kindBase[E]) spDelta(*block[E]) E                  { return k.a.Zero() }
func (k kindBase[E]) pagesDelta(*block[E]) E               { return k.a.Zero() }
func (k kindBase[E]) jops(*block[E]) E                     { return k.a.Zero() }
func (k kindBase[E]) host(*block[E]) hostDelta[E]          { return k.noHost() }
func (k kindBase[E]) next(b *block[E]) position[E]         { return k.fallThrough(b) }
func (k kindBase[E]) sp(b *block[E]) E                     { return b.get(k.c.sp) }
func (k kindBase[E]) stackAt(b *block[E], delta uint64) E  { return k.a.Add(b.get(k.c.sp), k.a.u(delta)) }
func (k kindBase[E]) setU64(b *block[E], c cell, v uint64) { b.set(c, k.a.u(v)) }
func (k kindBase[E]) setFlag(b *block[E], c cell, v bool)  { b.set(c, k.a.flag(v)) }

func (k kindBase[E]) setType(b *block[E], c cell, v specs.VarType) {
	k.setFlag(b, c, v.IsI32())
}

func (k kindBase[E]) noHost() hostDelta[E] {
	z := k.a.Zero()
	return hostDelta[E]{publicInputs: z, contextIn: z, contextOut: z, hostIndex: z}
}

func (k kindBase[E]) fallThrough(b *block[E]) position[E] {
	return position[E]{
		fid:   b.get(k.c.fid),
		iid:   k.a.Add(b.get(k.c.iid), k.a.One()),
		frame: b.get(k.c.frameID),
	}
}

// encodeOpcode packs an opcode expression the way encode.EncodeOpcode packs
// a static one.
func (k kindBase[E]) encodeOpcode(class specs.OpcodeClass, arg0, arg1, arg2 E) E {
	a := k.a
	return a.sum(
		a.shift(a.u(uint64(class)), encode.OpcodeClassShift),
		a.shift(arg0, encode.OpcodeArg0Shift),
		a.shift(arg1, encode.OpcodeArg1Shift),
		arg2,
	)
}

func (k kindBase[E]) access(enabled E, ltype specs.LocationType, atype specs.AccessType, offset, isI32, isMutable, value E) memoryAccess[E] {
	return memoryAccess[E]{
		enabled:   enabled,
		ltype:     ltype,
		atype:     atype,
		offset:    offset,
		isI32:     isI32,
		isMutable: isMutable,
		value:     value,
	}
}

func (k kindBase[E]) stackRead(enabled, offset, isI32, value E) memoryAccess[E] {
	return k.access(enabled, specs.LocationStack, specs.AccessRead, offset, isI32, k.a.One(), value)
}

func (k kindBase[E]) stackWrite(enabled, offset, isI32, value E) memoryAccess[E] {
	return k.access(enabled, specs.LocationStack, specs.AccessWrite, offset, isI32, k.a.One(), value)
}

func (k kindBase[E]) heapAccess(enabled E, atype specs.AccessType, block, value E) memoryAccess[E] {
	return k.access(enabled, specs.LocationHeap, atype, block, k.a.Zero(), k.a.One(), value)
}

func stepInfo[T specs.StepInfo](s *stepContext) T {
	info, ok := s.entry.StepInfo.(T)
	if !ok {
		var want T
		panic(fmt.Sprintf("eid %d: %s kind assigned a %T step, want %T", s.entry.Eid, s.opcode.Class, s.entry.StepInfo, want))
	}
	return info
}

func mismatch(s *stepContext, what string, got, want uint64) error {
	return fmt.Errorf("eid %d: %s %s is %d, trace records %d", s.entry.Eid, s.opcode.Class, what, want, got)
}

// EventTableImpl assigns one block per step plus a terminal block holding the
// state after the last step. Padding blocks beyond it are all zero and
// satisfy every constraint because each one is scaled by enabled.
type EventTableImpl[E any] struct {
	config *Config
	a      arith[E]
	common *commonCells
	kinds  [specs.OpcodeClassCount + 1]opcodeKind[E]
	blocks []*block[E]
	steps  []*specs.EventTableEntry
}

func newEventTable[E any](a arith[E], config *Config) *EventTableImpl[E] {
	al := &allocator{}
	common := configureCommon(al)
	return &EventTableImpl[E]{
		config: config,
		a:      a,
		common: common,
		kinds:  newOpcodeKinds(a, common, al.next),
	}
}

// eventBoundary is the state an event table starts from and ends in.
type eventBoundary struct {
	pre      specs.InitializationState
	post     specs.InitializationState
	restMops uint64
	restJops uint64
}

func (t *EventTableImpl[E]) assign(etable *specs.EventTable, itable *specs.InstructionTable, bound eventBoundary) error {
	n := etable.Len()
	if n > t.config.EventCapacity() {
		return &CapacityError{Kind: CapacityEventRows, Count: n, Limit: t.config.EventCapacity(), K: t.config.K()}
	}
	a, c := t.a, t.common
	t.blocks = make([]*block[E], 0, n+1)
	t.steps = make([]*specs.EventTableEntry, 0, n)

	state := bound.pre
	restMops, restJops := bound.restMops, bound.restJops
	hostIndex := uint64(0)

	for i := range etable.Entries {
		entry := &etable.Entries[i]
		inst, ok := itable.Get(entry.Fid, entry.Iid)
		if !ok {
			return fmt.Errorf("eid %d: no instruction at fid %d iid %d", entry.Eid, entry.Fid, entry.Iid)
		}
		class := inst.Opcode.Class
		if entry.StepInfo == nil || entry.StepInfo.Class() != class {
			return fmt.Errorf("eid %d: %w: instruction is %s, step is %T", entry.Eid, specs.ErrUnsupportedStep, class, entry.StepInfo)
		}
		if entry.AllocatedMemoryPages > t.config.MaximalPages() {
			return &CapacityError{Kind: CapacityMemoryPages, Count: int(entry.AllocatedMemoryPages), Limit: int(t.config.MaximalPages()), K: t.config.K()}
		}

		next := bound.post
		if i+1 < n {
			next = state.Resume(&etable.Entries[i+1])
		}

		b := newBlock(a)
		b.set(c.enabled, a.One())
		b.set(c.class[class], a.One())
		b.set(c.eid, a.u(uint64(entry.Eid)))
		b.set(c.fid, a.u(uint64(entry.Fid)))
		b.set(c.iid, a.u(uint64(entry.Iid)))
		b.set(c.sp, a.u(uint64(entry.Sp)))
		b.set(c.mpages, a.u(uint64(entry.AllocatedMemoryPages)))
		b.set(c.maxpages, a.u(uint64(bound.pre.MaximalMemoryPages)))
		b.set(c.frameID, a.u(uint64(entry.LastJumpEid)))
		b.set(c.restMops, a.u(restMops))
		b.set(c.restJops, a.u(restJops))
		b.set(c.hostPublicInputs, a.u(uint64(state.HostPublicInputs)))
		b.set(c.contextIn, a.u(uint64(state.ContextInIndex)))
		b.set(c.contextOut, a.u(uint64(state.ContextOutIndex)))
		b.set(c.hostIndex, a.u(hostIndex))

		kind := t.kinds[class]
		ctx := &stepContext{entry: entry, opcode: inst.Opcode, next: next}
		if err := kind.assign(b, ctx); err != nil {
			return err
		}
		b.set(c.itable, a.FromUint256(encode.EncodeInstruction(entry.Fid, entry.Iid, inst.Opcode)))

		mops := uint64(0)
		for _, acc := range kind.accesses(b) {
			if !a.IsZero(acc.enabled) {
				mops++
			}
		}
		if mops > restMops {
			return fmt.Errorf("eid %d: step performs %d memory accesses, only %d remain", entry.Eid, mops, restMops)
		}
		restMops -= mops
		switch {
		case entry.IsCall():
			restJops--
		case entry.IsReturn():
			restJops -= 1 << 32
		}
		if _, ok := entry.StepInfo.(specs.ExternalHostCallInfo); ok {
			hostIndex++
		}
		if info, ok := entry.StepInfo.(specs.CallHostInfo); ok {
			state = state.HostCounters(info)
		}

		t.blocks = append(t.blocks, b)
		t.steps = append(t.steps, entry)
	}

	post := bound.post
	term := newBlock(a)
	term.set(c.eid, a.u(uint64(post.Eid)))
	term.set(c.fid, a.u(uint64(post.Fid)))
	term.set(c.iid, a.u(uint64(post.Iid)))
	term.set(c.sp, a.u(uint64(post.Sp)))
	term.set(c.mpages, a.u(uint64(post.InitialMemoryPages)))
	term.set(c.maxpages, a.u(uint64(bound.pre.MaximalMemoryPages)))
	term.set(c.frameID, a.u(uint64(post.FrameID)))
	term.set(c.restMops, a.u(restMops))
	term.set(c.restJops, a.u(restJops))
	term.set(c.hostPublicInputs, a.u(uint64(post.HostPublicInputs)))
	term.set(c.contextIn, a.u(uint64(post.ContextInIndex)))
	term.set(c.contextOut, a.u(uint64(post.ContextOutIndex)))
	term.set(c.hostIndex, a.u(hostIndex))
	t.blocks = append(t.blocks, term)
	return nil
}

// GetID returns the table's identifier
func (t *EventTableImpl[E]) GetID() TableID { return EventTable }

// GetHeight returns the number of assigned rows, terminal block included
func (t *EventTableImpl[E]) GetHeight() int { return len(t.blocks) * StepBlockRows }

// GetPaddedHeight returns the column height
func (t *EventTableImpl[E]) GetPaddedHeight() int { return t.config.Rows() }

// GetColumns returns the assigned columns
func (t *EventTableImpl[E]) GetColumns() []Column[E] {
	cols := make([]Column[E], EventTableColumns)
	for col := range cols {
		values := make([]E, 0, len(t.blocks)*StepBlockRows)
		for _, b := range t.blocks {
			values = append(values, b.cells[col*StepBlockRows:(col+1)*StepBlockRows]...)
		}
		cols[col] = Column[E]{Name: fmt.Sprintf("etable_%d", col), Values: values}
	}
	return cols
}

// first returns the first block; an empty slice starts on its terminal block.
func (t *EventTableImpl[E]) first() *block[E] { return t.blocks[0] }

func (t *EventTableImpl[E]) terminal() *block[E] { return t.blocks[len(t.blocks)-1] }

func (t *EventTableImpl[E]) kindOf(i int) opcodeKind[E] {
	return t.kinds[t.steps[i].StepInfo.Class()]
}

// CheckConstraints evaluates the step gates and the transition into the
// following block.
func (t *EventTableImpl[E]) CheckConstraints() error {
	a, c := t.a, t.common
	for i, b := range t.blocks {
		row := i * StepBlockRows
		if i == len(t.blocks)-1 {
			gates := []gate[E]{
				{name: "terminal disabled", value: b.get(c.enabled)},
				{name: "terminal rest mops", value: b.get(c.restMops)},
				{name: "terminal rest jops", value: b.get(c.restJops)},
			}
			if err := checkGates(a.Field, EventTable, row, gates); err != nil {
				return err
			}
			continue
		}

		kind := t.kindOf(i)
		gates := []gate[E]{boolGate(a, "enabled", b.get(c.enabled))}
		bits := make([]E, 0, specs.OpcodeClassCount)
		for class := 1; class <= specs.OpcodeClassCount; class++ {
			bit := b.get(c.class[class])
			gates = append(gates, boolGate(a, "class bit", bit))
			bits = append(bits, bit)
		}
		gates = append(gates, eqGate(a, "one class", a.sum(bits...), b.get(c.enabled)))
		gates = append(gates, eqGate(a, "instruction encoding", b.get(c.itable), a.sum(
			a.shift(b.get(c.fid), encode.OpcodeBits+encode.CommonRangeBits),
			a.shift(b.get(c.iid), encode.OpcodeBits),
			kind.opcode(b),
		)))
		gates = append(gates, kind.gates(b)...)

		nb := t.blocks[i+1]
		mops := a.Zero()
		for _, acc := range kind.accesses(b) {
			gates = append(gates, boolGate(a, "access enabled", acc.enabled))
			mops = a.Add(mops, acc.enabled)
		}
		next := kind.next(b)
		host := kind.host(b)
		gates = append(gates,
			eqGate(a, "eid transition", nb.get(c.eid), a.Add(b.get(c.eid), a.One())),
			eqGate(a, "sp transition", nb.get(c.sp), a.Add(b.get(c.sp), kind.spDelta(b))),
			eqGate(a, "mpages transition", nb.get(c.mpages), a.Add(b.get(c.mpages), kind.pagesDelta(b))),
			eqGate(a, "maxpages transition", nb.get(c.maxpages), b.get(c.maxpages)),
			eqGate(a, "rest mops transition", nb.get(c.restMops), a.Sub(b.get(c.restMops), mops)),
			eqGate(a, "rest jops transition", nb.get(c.restJops), a.Sub(b.get(c.restJops), kind.jops(b))),
			eqGate(a, "fid transition", nb.get(c.fid), next.fid),
			eqGate(a, "iid transition", nb.get(c.iid), next.iid),
			eqGate(a, "frame transition", nb.get(c.frameID), next.frame),
			eqGate(a, "public input transition", nb.get(c.hostPublicInputs), a.Add(b.get(c.hostPublicInputs), host.publicInputs)),
			eqGate(a, "context in transition", nb.get(c.contextIn), a.Add(b.get(c.contextIn), host.contextIn)),
			eqGate(a, "context out transition", nb.get(c.contextOut), a.Add(b.get(c.contextOut), host.contextOut)),
			eqGate(a, "host index transition", nb.get(c.hostIndex), a.Add(b.get(c.hostIndex), host.hostIndex)),
		)
		if err := checkGates(a.Field, EventTable, row, when(a, b.get(c.enabled), gates...)); err != nil {
			return err
		}
	}
	return nil
}

// queries returns every lookup issued by the steps.
func (t *EventTableImpl[E]) queries() []query[E] {
	a, c := t.a, t.common
	out := make([]query[E], 0, len(t.steps)*8)
	for i := range t.steps {
		b := t.blocks[i]
		row := i * StepBlockRows
		image := a.Add(a.shift(a.u(uint64(encode.ImageInstruction)), encode.ImageDataBoundary), b.get(c.itable))
		out = append(out, query[E]{lookup: imageLookup(image), table: EventTable, row: row})
		for _, l := range t.kindOf(i).lookups(b) {
			out = append(out, query[E]{lookup: l, table: EventTable, row: row})
		}
	}
	return out
}

// memorySymbols returns the enabled accesses of every step as permutation
// tuples (eid, emid, ltype, atype, offset, is_i32, is_mutable, value).
func (t *EventTableImpl[E]) memorySymbols() ([][]E, error) {
	a, c := t.a, t.common
	out := make([][]E, 0, len(t.steps)*3)
	for i := range t.steps {
		b := t.blocks[i]
		emid := uint64(0)
		for _, acc := range t.kindOf(i).accesses(b) {
			if a.IsZero(acc.enabled) {
				continue
			}
			if emid >= memoryEmidBound {
				return nil, fmt.Errorf("eid %d: more than %d memory accesses", t.steps[i].Eid, memoryEmidBound)
			}
			out = append(out, []E{
				b.get(c.eid), a.u(emid), a.u(uint64(acc.ltype)), a.u(uint64(acc.atype)),
				acc.offset, acc.isI32, acc.isMutable, acc.value,
			})
			emid++
		}
	}
	return out, nil
}

// frameQueries is used by tests to count frame lookups.
func (t *EventTableImpl[E]) frameQueries() int {
	n := 0
	for _, q := range t.queries() {
		if q.target == lookupFrameCall || q.target == lookupFrameReturn {
			n++
		}
	}
	return n
}
