package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// Circuit is the assignment of one slice: every table filled from the slice
// and ready to be checked or handed to a proving backend.
type Circuit[E any] struct {
	config *Config
	a      arith[E]
	slice  *specs.Slice

	Event     *EventTableImpl[E]
	Memory    *MemoryTableImpl[E]
	Frame     *FrameTableImpl[E]
	HostCalls *HostCallTableImpl[E]
	Range     *RangeTableImpl[E]
	Bit       *BitTableImpl[E]
	Image     *ImageTableImpl[E]
	PostImage *ImageTableImpl[E]

	preImage  *EncodedImage
	postImage *EncodedImage
}

// BuildCircuit derives and assigns every table of a slice. Capacity
// violations are reported as *CapacityError.
func BuildCircuit[E any](f core.Field[E], config *Config, slice *specs.Slice) (*Circuit[E], error) {
	if config == nil {
		return nil, ErrConfigNotSet
	}
	a := newArith(f)
	c := &Circuit[E]{
		config:    config,
		a:         a,
		slice:     slice,
		Event:     newEventTable(a, config),
		Memory:    newMemoryTable(a, config),
		Frame:     newFrameTable(a, config),
		HostCalls: newHostCallTable(a, config),
		Range:     newRangeTable(a, config),
		Bit:       newBitTable(a, config),
	}

	var err error
	if c.preImage, err = EncodeImage(slice.PreImage, config); err != nil {
		return nil, fmt.Errorf("failed to encode pre image: %w", err)
	}
	c.Image = newImageTable(a, ImageTable, c.preImage)
	if slice.PostImage != nil {
		if c.postImage, err = EncodeImage(slice.PostImage, config); err != nil {
			return nil, fmt.Errorf("failed to encode post image: %w", err)
		}
		c.PostImage = newImageTable(a, PostImageTable, c.postImage)
	}

	if err := c.Frame.assign(slice.FrameTable, slice.IsLastSlice); err != nil {
		return nil, fmt.Errorf("failed to assign frame table: %w", err)
	}
	if err := c.Memory.assign(slice.MemoryTable); err != nil {
		return nil, fmt.Errorf("failed to assign memory table: %w", err)
	}
	if err := c.HostCalls.assign(slice.ExternalHostCallTable); err != nil {
		return nil, fmt.Errorf("failed to assign host call table: %w", err)
	}
	bound := eventBoundary{
		pre:      slice.InitializationState,
		post:     slice.PostInitializationState,
		restMops: uint64(slice.MemoryTable.NonInitCount()),
		restJops: restJops(slice.FrameTable),
	}
	if err := c.Event.assign(slice.ETable, slice.PreImage.ITable, bound); err != nil {
		return nil, fmt.Errorf("failed to assign event table: %w", err)
	}

	log.Debug(log.CircuitModule, "Circuit assigned",
		"steps", slice.ETable.Len(),
		"mtable", c.Memory.GetHeight(),
		"jtable", c.Frame.GetHeight(),
		"host", c.HostCalls.GetHeight())
	return c, nil
}

// Config returns the size configuration of the circuit.
func (c *Circuit[E]) Config() *Config { return c.config }

// PreImage returns the encoded pre image.
func (c *Circuit[E]) PreImage() *EncodedImage { return c.preImage }

// EncodedPostImage returns the encoded post image, nil for the trivial
// strategy.
func (c *Circuit[E]) EncodedPostImage() *EncodedImage { return c.postImage }

// Tables returns every assigned table.
func (c *Circuit[E]) Tables() []Table[E] {
	tables := []Table[E]{c.Event, c.Memory, c.Frame, c.HostCalls, c.Range, c.Bit, c.Image}
	if c.PostImage != nil {
		tables = append(tables, c.PostImage)
	}
	return tables
}

// Linkages lists the cross-table arguments checked by Check.
func (c *Circuit[E]) Linkages() []TableLinkage {
	return []TableLinkage{
		{Name: "memory access", FromTable: EventTable, ToTable: MemoryTable, LinkType: PermutationLinkage},
		{Name: "instruction", FromTable: EventTable, ToTable: ImageTable, LinkType: LookupLinkage},
		{Name: "init memory", FromTable: MemoryTable, ToTable: ImageTable, LinkType: LookupLinkage},
		{Name: "frame", FromTable: EventTable, ToTable: FrameTable, LinkType: LookupLinkage},
		{Name: "host call", FromTable: EventTable, ToTable: HostCallTable, LinkType: LookupLinkage},
		{Name: "range", FromTable: EventTable, ToTable: RangeTable, LinkType: LookupLinkage},
		{Name: "bit", FromTable: EventTable, ToTable: BitTable, LinkType: LookupLinkage},
		{Name: "initialization state", FromTable: ImageTable, ToTable: EventTable, LinkType: EqualityLinkage},
		{Name: "post initialization state", FromTable: EventTable, ToTable: PostImageTable, LinkType: EqualityLinkage},
		{Name: "rest mops", FromTable: MemoryTable, ToTable: EventTable, LinkType: EqualityLinkage},
		{Name: "rest jops", FromTable: FrameTable, ToTable: EventTable, LinkType: EqualityLinkage},
	}
}

// Check evaluates every gate, boundary equality, lookup and permutation of
// the circuit. The first violation is returned as a *ConstraintError.
func (c *Circuit[E]) Check(ch Challenges[E]) error {
	for _, t := range c.Tables() {
		if err := t.CheckConstraints(); err != nil {
			return err
		}
	}
	if err := c.checkBoundaries(); err != nil {
		return err
	}
	if err := c.checkLookups(ch); err != nil {
		return err
	}
	if err := c.checkMemoryPermutation(ch); err != nil {
		return err
	}
	log.Debug(log.CircuitModule, "Circuit satisfied", "steps", len(c.Event.steps))
	return nil
}

func stateCells(c *commonCells) [specs.InitializationStateFields]cell {
	return [specs.InitializationStateFields]cell{
		c.eid, c.fid, c.iid, c.frameID, c.sp,
		c.hostPublicInputs, c.contextIn, c.contextOut, c.mpages, c.maxpages,
	}
}

func (c *Circuit[E]) checkState(b *block[E], state specs.InitializationState, table TableID, name string) error {
	a := c.a
	fields := state.Fields()
	for i, cl := range stateCells(c.Event.common) {
		if !a.Equal(b.get(cl), a.u(uint64(fields[i]))) {
			return &ConstraintError{Table: table, Row: imageStateOffset + i, Name: name}
		}
	}
	return nil
}

// checkBoundaries checks the copy constraints between tables.
func (c *Circuit[E]) checkBoundaries() error {
	a, ev := c.a, c.Event
	if err := c.checkState(ev.first(), c.preImage.State(), ImageTable, "initialization state"); err != nil {
		return err
	}
	if c.postImage != nil {
		if err := c.checkState(ev.terminal(), c.postImage.State(), PostImageTable, "post initialization state"); err != nil {
			return err
		}
		expected, err := EncodeImage(ContinuationStrategy{}.PostImage(c.slice.PreImage, c.slice.MemoryTable, c.postImage.State()), c.config)
		if err != nil {
			return fmt.Errorf("failed to encode expected post image: %w", err)
		}
		if row := expected.Diff(c.postImage); row >= 0 {
			return &ConstraintError{Table: PostImageTable, Row: row, Name: "post image memory"}
		}
	}

	first := ev.first()
	if !a.Equal(first.get(ev.common.restMops), c.Memory.firstRestMops()) {
		return &ConstraintError{Table: EventTable, Row: 0, Name: "rest mops equals memory table"}
	}
	if !a.Equal(first.get(ev.common.restJops), c.Frame.firstRest()) {
		return &ConstraintError{Table: EventTable, Row: 0, Name: "rest jops equals frame table"}
	}
	if !a.Equal(ev.terminal().get(ev.common.hostIndex), a.u(uint64(c.HostCalls.GetHeight()))) {
		return &ConstraintError{Table: HostCallTable, Row: c.HostCalls.GetHeight(), Name: "host calls consumed"}
	}

	static := c.Frame.staticEntries()
	if len(static) == 0 {
		return nil
	}
	slots := c.preImage.StaticFrames()
	enabled := 0
	for _, slot := range slots {
		if !slot.Enable {
			continue
		}
		if enabled >= len(static) || !sameFrame(static[enabled], slot.Frame()) {
			return &ConstraintError{Table: FrameTable, Row: enabled, Name: "static frame matches image"}
		}
		enabled++
	}
	if enabled != len(static) {
		return &ConstraintError{Table: FrameTable, Row: enabled, Name: "static frame matches image"}
	}
	return nil
}

func sameFrame(x, y specs.FrameTableEntry) bool {
	return x.FrameID == y.FrameID && x.NextFrameID == y.NextFrameID &&
		x.CalleeFid == y.CalleeFid && x.Fid == y.Fid && x.Iid == y.Iid
}

func (c *Circuit[E]) checkLookups(ch Challenges[E]) error {
	var relations [lookupTargetCount]*relation[E]
	c.Range.register(&relations)
	c.Bit.register(&relations)
	c.Image.register(&relations)
	c.Frame.register(&relations)
	c.HostCalls.register(&relations)

	queries := c.Event.queries()
	queries = append(queries, c.Memory.queries()...)
	queries = append(queries, c.HostCalls.queries()...)
	queries = c.Range.expand(queries)
	if err := checkLookups(c.a, relations, queries, ch); err != nil {
		return err
	}
	if err := c.Frame.checkUsage(); err != nil {
		return err
	}
	return c.HostCalls.checkUsage()
}

func (c *Circuit[E]) checkMemoryPermutation(ch Challenges[E]) error {
	a := c.a
	events, err := c.Event.memorySymbols()
	if err != nil {
		return err
	}
	rows := c.Memory.memorySymbols()
	if len(events) != len(rows) {
		return &ConstraintError{Table: MemoryTable, Row: -1, Name: fmt.Sprintf("memory permutation: %d accesses, %d rows", len(events), len(rows))}
	}
	compress := func(tuples [][]E) []E {
		out := make([]E, len(tuples))
		for i, t := range tuples {
			out[i] = compressRow(a, t, ch.Alpha)
		}
		return out
	}
	perm := PermutationArgument[E]{a: a}
	lhs := perm.ComputeTerminal(compress(events), a.One(), ch.Gamma)
	rhs := perm.ComputeTerminal(compress(rows), a.One(), ch.Gamma)
	if !a.Equal(lhs, rhs) {
		return &ConstraintError{Table: MemoryTable, Row: -1, Name: "memory permutation"}
	}
	return nil
}
