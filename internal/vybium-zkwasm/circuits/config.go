// Package circuits assigns the zkWasm tables of one slice into field columns
// and checks every gate and cross-table argument over the assignment.
package circuits

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// Circuit size bounds
const (
	MinK = 18
	MaxK = 26

	// ReservedRows are kept free at the bottom of every column for blinding.
	ReservedRows = 256

	// InitMemoryEntriesOffset is the first image row of the init memory
	// region; program tables must fit below it.
	InitMemoryEntriesOffset = 40960
	StackCapacity           = specs.DefaultValueStackLimit
	GlobalCapacity          = 1024
)

// ErrConfigNotSet is returned by table constructors given a nil config.
var ErrConfigNotSet = errors.New("circuit config not set")

// Config is the size configuration shared by every table of a circuit. It is
// immutable once built.
type Config struct {
	k            uint32
	maximalPages uint32
}

// NewConfig validates k and bounds the module's memory limit by what the
// image can hold at this size.
func NewConfig(k uint32, configure specs.ConfigureTable) (*Config, error) {
	if k < MinK || k > MaxK {
		return nil, fmt.Errorf("k must be in [%d, %d], got %d", MinK, MaxK, k)
	}
	limit := ComputeMaximalPages(k)
	if configure.InitMemoryPages > limit {
		return nil, &CapacityError{Kind: CapacityMemoryPages, Count: int(configure.InitMemoryPages), Limit: int(limit), K: k}
	}
	pages := min(configure.MaximalMemoryPages, limit)
	return &Config{k: k, maximalPages: pages}, nil
}

// K returns the log2 of the number of rows.
func (c *Config) K() uint32 { return c.k }

// Rows returns 2^K.
func (c *Config) Rows() int { return 1 << c.k }

// UsableRows returns the rows available to table content.
func (c *Config) UsableRows() int { return c.Rows() - ReservedRows }

// CommonRange returns the width of the common range table.
func (c *Config) CommonRange() uint64 { return uint64(c.UsableRows()) }

// MaximalPages returns the effective memory limit.
func (c *Config) MaximalPages() uint32 { return c.maximalPages }

// EventCapacity returns the number of steps one slice can hold. One block is
// kept for the terminal state.
func (c *Config) EventCapacity() int { return c.UsableRows()/StepBlockRows - 1 }

// MemoryCapacity returns the number of memory table rows.
func (c *Config) MemoryCapacity() int { return c.UsableRows() }

// FrameCapacity returns the number of frame table rows.
func (c *Config) FrameCapacity() int { return c.UsableRows() }

// HostCallCapacity returns the number of external host calls per slice.
func (c *Config) HostCallCapacity() int { return c.UsableRows() }

// ComputeMaximalPages returns how many heap pages fit into the image at k.
func ComputeMaximalPages(k uint32) uint32 {
	rows := (1 << k) - ReservedRows - InitMemoryEntriesOffset - StackCapacity - GlobalCapacity
	if rows <= 0 {
		return 0
	}
	return uint32(rows / specs.PageEntries)
}

// ComputeSliceCapability returns the number of steps per slice at k.
func ComputeSliceCapability(k uint32) int {
	return ((1<<k)-ReservedRows)/StepBlockRows - 1
}
