package circuits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// ErrMultipleSlices matches the CapacityError returned when a strategy
// without post image is asked to prove more than one slice.
var ErrMultipleSlices = errors.New(CapacityMultipleSlices.String())

// PostImageStrategy decides what a slice commits to after its last step.
type PostImageStrategy interface {
	// Name returns the name used by configuration and artifacts
	Name() string
	// PostImage returns the image handed to the next slice, or nil
	PostImage(pre *specs.Image, mtable *specs.MemoryTable, post specs.InitializationState) *specs.Image
	// CheckSlices rejects slice counts the strategy cannot link at size k
	CheckSlices(count int, k uint32) error
}

// TrivialStrategy proves a whole execution in one slice without post image.
type TrivialStrategy struct{}

// Name returns "trivial"
func (TrivialStrategy) Name() string { return "trivial" }

// PostImage returns nil
func (TrivialStrategy) PostImage(*specs.Image, *specs.MemoryTable, specs.InitializationState) *specs.Image {
	return nil
}

// CheckSlices accepts a single slice only.
func (TrivialStrategy) CheckSlices(count int, k uint32) error {
	if count > 1 {
		return &CapacityError{Kind: CapacityMultipleSlices, Count: count, Limit: 1, K: k}
	}
	return nil
}

// ContinuationStrategy links slices: the post image of a slice is its pre
// image with the final value of every touched address and the state after
// the last step, and it is the pre image of the next slice.
type ContinuationStrategy struct{}

// Name returns "continuation"
func (ContinuationStrategy) Name() string { return "continuation" }

// PostImage applies the slice's final memory values to the pre image.
func (ContinuationStrategy) PostImage(pre *specs.Image, mtable *specs.MemoryTable, post specs.InitializationState) *specs.Image {
	return pre.WithState(pre.InitMemory.Update(mtable.FinalValues()), post)
}

// CheckSlices accepts any number of slices.
func (ContinuationStrategy) CheckSlices(int, uint32) error { return nil }

// NewPostImageStrategy returns the strategy registered under name.
func NewPostImageStrategy(name string) (PostImageStrategy, error) {
	switch strings.ToLower(name) {
	case "", "trivial":
		return TrivialStrategy{}, nil
	case "continuation":
		return ContinuationStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown post image strategy %q", name)
	}
}
