package slices

import (
	"errors"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// ErrBackendEmpty is returned by Pop and Peek on an empty backend.
var ErrBackendEmpty = errors.New("slice backend is empty")

// RawSlice is one cut of the step stream before its memory table, images and
// boundary states are derived.
type RawSlice struct {
	Index      int               `json:"index"`
	ETable     *specs.EventTable `json:"etable"`
	FrameTable *specs.FrameTable `json:"frame_table"`
}

// SliceBackend is a FIFO of raw slices. The builder pushes, the iterator
// pops; Peek exposes the next slice so the iterator can position the post
// state of the current one on it.
type SliceBackend interface {
	Push(s *RawSlice) error
	Pop() (*RawSlice, error)
	Peek() (*RawSlice, error)
	Len() int
	// ForEach visits the queued slices in order without consuming them.
	ForEach(fn func(s *RawSlice) error) error
	Close() error
}

// InMemoryBackend keeps the queue on the heap.
type InMemoryBackend struct {
	queue []*RawSlice
}

// NewInMemoryBackend creates an empty in-memory backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{queue: make([]*RawSlice, 0)}
}

func (b *InMemoryBackend) Push(s *RawSlice) error {
	b.queue = append(b.queue, s)
	return nil
}

func (b *InMemoryBackend) Pop() (*RawSlice, error) {
	if len(b.queue) == 0 {
		return nil, ErrBackendEmpty
	}
	s := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return s, nil
}

func (b *InMemoryBackend) Peek() (*RawSlice, error) {
	if len(b.queue) == 0 {
		return nil, ErrBackendEmpty
	}
	return b.queue[0], nil
}

func (b *InMemoryBackend) Len() int { return len(b.queue) }

func (b *InMemoryBackend) ForEach(fn func(s *RawSlice) error) error {
	for _, s := range b.queue {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *InMemoryBackend) Close() error {
	b.queue = nil
	return nil
}
