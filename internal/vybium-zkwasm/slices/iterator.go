package slices

import (
	"errors"
	"fmt"
	"io"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// Slices walks the raw slices of a backend and completes each one with its
// memory table, images and boundary states. The post image of one slice is
// the pre image of the next.
type Slices struct {
	config   *circuits.Config
	backend  SliceBackend
	strategy circuits.PostImageStrategy

	image *specs.Image
	total int
	index int
}

// NewSlices prepares the iteration of a fully built backend. The memory
// limit of the program is bounded by what the circuit can hold.
func NewSlices(config *circuits.Config, compilation *specs.CompilationTable, backend SliceBackend, strategy circuits.PostImageStrategy) (*Slices, error) {
	if config == nil {
		return nil, circuits.ErrConfigNotSet
	}
	if strategy == nil {
		strategy = circuits.TrivialStrategy{}
	}
	if err := strategy.CheckSlices(backend.Len(), config.K()); err != nil {
		return nil, err
	}
	image := compilation.PreImage()
	state := image.InitializationState
	state.MaximalMemoryPages = min(state.MaximalMemoryPages, config.MaximalPages())
	image = image.WithState(image.InitMemory, state)

	return &Slices{
		config:   config,
		backend:  backend,
		strategy: strategy,
		image:    image,
		total:    backend.Len(),
	}, nil
}

// Len returns the number of slices of the execution.
func (s *Slices) Len() int { return s.total }

// Strategy returns the post image strategy in use.
func (s *Slices) Strategy() circuits.PostImageStrategy { return s.strategy }

// Next returns the next complete slice, or io.EOF after the last one.
func (s *Slices) Next() (*specs.Slice, error) {
	raw, err := s.backend.Pop()
	if errors.Is(err, ErrBackendEmpty) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop slice %d: %w", s.index, err)
	}
	next, err := s.backend.Peek()
	if err != nil && !errors.Is(err, ErrBackendEmpty) {
		return nil, fmt.Errorf("failed to peek slice %d: %w", s.index+1, err)
	}
	var first *specs.EventTableEntry
	if next != nil && next.ETable.Len() > 0 {
		first = &next.ETable.Entries[0]
	}

	pre := s.image.InitializationState
	post := postState(pre, raw.ETable, first)

	mtable, err := specs.BuildMemoryTable(raw.ETable, s.image.InitMemory)
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", s.index, err)
	}
	postImage := s.strategy.PostImage(s.image, mtable, post)

	slice := &specs.Slice{
		ETable:                  raw.ETable,
		FrameTable:              raw.FrameTable,
		PostInheritedFrameTable: &specs.FrameTable{Inherited: raw.FrameTable.Open()},
		ExternalHostCallTable:   specs.NewExternalHostCallTable(raw.ETable),
		MemoryTable:             mtable,
		PreImage:                s.image,
		PostImage:               postImage,
		InitializationState:     pre,
		PostInitializationState: post,
		IsLastSlice:             next == nil,
	}
	log.Info(log.SliceModule, "Slice ready",
		"index", s.index,
		"of", s.total,
		"steps", raw.ETable.Len(),
		"mtable", len(mtable.Entries),
		"pre", pre.String(),
		"post", post.String())

	if postImage != nil {
		s.image = postImage
	} else {
		s.image = s.image.WithState(s.image.InitMemory.Update(mtable.FinalValues()), post)
	}
	s.index++
	return slice, nil
}

// postState derives the state after the steps of a slice. When a next slice
// exists the state is positioned on its first step; otherwise the last step
// takes its terminal transition.
func postState(pre specs.InitializationState, etable *specs.EventTable, first *specs.EventTableEntry) specs.InitializationState {
	n := etable.Len()
	if n == 0 {
		return pre
	}
	state := pre
	for i := 0; i < n-1; i++ {
		if info, ok := etable.Entries[i].StepInfo.(specs.CallHostInfo); ok {
			state = state.HostCounters(info)
		}
	}
	last := &etable.Entries[n-1]
	if first == nil {
		return state.Step(last)
	}
	if info, ok := last.StepInfo.(specs.CallHostInfo); ok {
		state = state.HostCounters(info)
	}
	return state.Resume(first)
}

// ForEach completes and visits every remaining slice in order.
func (s *Slices) ForEach(fn func(index int, slice *specs.Slice) error) error {
	for {
		index := s.index
		slice, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(index, slice); err != nil {
			return err
		}
	}
}
