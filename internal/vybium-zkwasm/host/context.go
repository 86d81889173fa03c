package host

import (
	"errors"
	"slices"
	"sync"
)

// ErrContextExhausted is returned when a read finds no context input left.
var ErrContextExhausted = errors.New("context input exhausted")

// ContextBuffer holds the context input a program reads and the context
// output it writes. Every access goes through WithLock.
type ContextBuffer struct {
	mu     sync.Mutex
	input  []uint64
	pos    int
	output []uint64
}

// NewContextBuffer creates a buffer serving input.
func NewContextBuffer(input []uint64) *ContextBuffer {
	return &ContextBuffer{input: slices.Clone(input), output: make([]uint64, 0)}
}

// ContextHandle is the view of a locked buffer. It must not outlive the
// WithLock call that produced it.
type ContextHandle struct {
	b *ContextBuffer
}

// Read consumes the next context input.
func (h *ContextHandle) Read() (uint64, error) {
	b := h.b
	if b.pos >= len(b.input) {
		return 0, ErrContextExhausted
	}
	v := b.input[b.pos]
	b.pos++
	return v, nil
}

// Write appends one context output.
func (h *ContextHandle) Write(v uint64) {
	h.b.output = append(h.b.output, v)
}

// WithLock runs fn with the buffer locked. The lock is released on every
// path out of fn.
func (b *ContextBuffer) WithLock(fn func(h *ContextHandle) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(&ContextHandle{b: b})
}

// ContextSnapshot is a copy of the buffer state.
type ContextSnapshot struct {
	Consumed int      `json:"consumed"`
	Output   []uint64 `json:"output"`
}

// Snapshot copies the buffer state under the lock.
func (b *ContextBuffer) Snapshot() ContextSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ContextSnapshot{Consumed: b.pos, Output: slices.Clone(b.output)}
}
