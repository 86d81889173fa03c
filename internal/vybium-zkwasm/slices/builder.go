package slices

import (
	"errors"
	"fmt"
	"io"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// ErrEmptyTrace is returned when a trace ends before its first step.
var ErrEmptyTrace = errors.New("trace has no steps")

type frameGroup int

const (
	staticGroup frameGroup = iota
	inheritedGroup
	calledGroup
)

type frameRef struct {
	group frameGroup
	index int
}

type memoryAddress struct {
	ltype  specs.LocationType
	offset uint32
}

// Builder cuts a step stream into raw slices that fit the circuit. A slice
// is closed before the step that would overflow its event, frame, host call
// or memory table; the frames still open at the cut are inherited by the
// next slice.
type Builder struct {
	config  *circuits.Config
	backend SliceBackend

	index   int
	steps   []specs.EventTableEntry
	frames  specs.FrameTable
	stack   []frameRef
	lastEid uint32

	hostCalls int
	mops      int
	addresses map[memoryAddress]struct{}
}

// NewBuilder creates a builder whose first slice opens the enabled static
// frames.
func NewBuilder(config *circuits.Config, backend SliceBackend, static [specs.StaticFrameSlots]specs.StaticFrameEntry) (*Builder, error) {
	if config == nil {
		return nil, circuits.ErrConfigNotSet
	}
	b := &Builder{
		config:    config,
		backend:   backend,
		addresses: make(map[memoryAddress]struct{}),
	}
	for _, f := range static {
		if !f.Enable {
			continue
		}
		b.frames.Static = append(b.frames.Static, f.Frame())
		b.stack = append(b.stack, frameRef{group: staticGroup, index: len(b.frames.Static) - 1})
	}
	return b, nil
}

func (b *Builder) row(ref frameRef) *specs.FrameTableEntry {
	switch ref.group {
	case staticGroup:
		return &b.frames.Static[ref.index]
	case inheritedGroup:
		return &b.frames.Inherited[ref.index]
	default:
		return &b.frames.Called[ref.index]
	}
}

// stepCost is what one step adds to the tables of its slice.
type stepCost struct {
	mops      int
	addresses []memoryAddress
	frames    int
	hostCalls int
}

func (b *Builder) cost(step *specs.EventTableEntry) stepCost {
	var c stepCost
	for _, m := range step.MemoryRWEntries() {
		c.mops++
		addr := memoryAddress{ltype: m.LType, offset: m.Offset}
		if _, ok := b.addresses[addr]; !ok {
			c.addresses = append(c.addresses, addr)
		}
	}
	if step.IsCall() {
		c.frames = 1
	}
	if _, ok := step.StepInfo.(specs.ExternalHostCallInfo); ok {
		c.hostCalls = 1
	}
	return c
}

// fits reports which capacity, if any, the step would overflow. Memory rows
// are bounded by the accesses plus one init row per distinct address.
func (b *Builder) fits(c stepCost) (circuits.CapacityKind, int, int, bool) {
	cfg := b.config
	if n := len(b.steps) + 1; n > cfg.EventCapacity() {
		return circuits.CapacityEventRows, n, cfg.EventCapacity(), false
	}
	if n := b.frames.Len() + c.frames; n > cfg.FrameCapacity() {
		return circuits.CapacityFrameRows, n, cfg.FrameCapacity(), false
	}
	if n := b.hostCalls + c.hostCalls; n > cfg.HostCallCapacity() {
		return circuits.CapacityHostCallRows, n, cfg.HostCallCapacity(), false
	}
	if n := b.mops + c.mops + len(b.addresses) + len(c.addresses); n > cfg.MemoryCapacity() {
		return circuits.CapacityMemoryRows, n, cfg.MemoryCapacity(), false
	}
	return 0, 0, 0, true
}

// Push appends one step, closing the current slice first when the step does
// not fit.
func (b *Builder) Push(step *specs.EventTableEntry) error {
	if step.StepInfo == nil {
		return fmt.Errorf("eid %d: %w: missing step info", step.Eid, specs.ErrUnsupportedStep)
	}
	if b.lastEid != 0 && step.Eid != b.lastEid+1 {
		return fmt.Errorf("eid %d does not follow eid %d", step.Eid, b.lastEid)
	}

	c := b.cost(step)
	if kind, count, limit, ok := b.fits(c); !ok {
		if len(b.steps) == 0 {
			return &circuits.CapacityError{Kind: kind, Count: count, Limit: limit, K: b.config.K()}
		}
		log.Debug(log.SliceModule, "Slice full", "index", b.index, "limit", kind.String(), "count", count)
		if err := b.cut(); err != nil {
			return err
		}
		c = b.cost(step)
		if kind, count, limit, ok := b.fits(c); !ok {
			return &circuits.CapacityError{Kind: kind, Count: count, Limit: limit, K: b.config.K()}
		}
	}

	switch {
	case step.IsCall():
		b.frames.Called = append(b.frames.Called, specs.FrameTableEntry{
			FrameID:     step.Eid,
			NextFrameID: step.LastJumpEid,
			CalleeFid:   step.Callee(),
			Fid:         step.Fid,
			Iid:         step.Iid + 1,
		})
		b.stack = append(b.stack, frameRef{group: calledGroup, index: len(b.frames.Called) - 1})
	case step.IsReturn():
		if len(b.stack) == 0 {
			return fmt.Errorf("eid %d returns with no open frame", step.Eid)
		}
		top := b.row(b.stack[len(b.stack)-1])
		if top.FrameID != step.LastJumpEid {
			return fmt.Errorf("eid %d returns from frame %d but frame %d is open", step.Eid, step.LastJumpEid, top.FrameID)
		}
		top.Returned = true
		b.stack = b.stack[:len(b.stack)-1]
	}

	b.steps = append(b.steps, *step)
	b.hostCalls += c.hostCalls
	b.mops += c.mops
	for _, addr := range c.addresses {
		b.addresses[addr] = struct{}{}
	}
	b.lastEid = step.Eid
	return nil
}

// cut pushes the current slice to the backend and starts the next one with
// the open frames inherited.
func (b *Builder) cut() error {
	raw := &RawSlice{
		Index:      b.index,
		ETable:     &specs.EventTable{Entries: b.steps},
		FrameTable: &specs.FrameTable{Static: b.frames.Static, Inherited: b.frames.Inherited, Called: b.frames.Called},
	}
	if err := b.backend.Push(raw); err != nil {
		return fmt.Errorf("failed to push slice %d: %w", b.index, err)
	}
	log.Debug(log.SliceModule, "Slice built",
		"index", b.index,
		"steps", len(b.steps),
		"frames", raw.FrameTable.Len(),
		"mops", b.mops,
		"host", b.hostCalls)

	open := raw.FrameTable.Open()
	b.frames = specs.FrameTable{Inherited: open}
	b.stack = make([]frameRef, len(open))
	for i := range open {
		b.stack[i] = frameRef{group: inheritedGroup, index: i}
	}
	b.steps = make([]specs.EventTableEntry, 0, len(b.steps))
	b.hostCalls, b.mops = 0, 0
	b.addresses = make(map[memoryAddress]struct{})
	b.index++
	return nil
}

// Finish closes the last slice.
func (b *Builder) Finish() error {
	if len(b.steps) == 0 {
		if b.index == 0 {
			return ErrEmptyTrace
		}
		return nil
	}
	return b.cut()
}

// Slices returns the number of slices pushed so far.
func (b *Builder) Slices() int { return b.index }

// Consume pushes every step of src and closes the last slice.
func (b *Builder) Consume(src TraceSource) error {
	for {
		step, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read step: %w", err)
		}
		if err := b.Push(step); err != nil {
			return err
		}
	}
	return b.Finish()
}
