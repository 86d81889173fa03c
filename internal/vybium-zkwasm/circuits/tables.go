package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

// TableID uniquely identifies each table of a slice circuit
type TableID int

const (
	// EventTable records one block per executed step
	EventTable TableID = iota

	// MemoryTable ensures memory consistency
	MemoryTable

	// FrameTable handles calls and returns
	FrameTable

	// ImageTable commits to the program and initial memory
	ImageTable

	// PostImageTable commits to the state handed to the next slice
	PostImageTable

	// RangeTable stores the range and power lookups
	RangeTable

	// BitTable stores byte-wise bitwise results
	BitTable

	// HostCallTable lists external host calls
	HostCallTable
)

// String returns the name of the table
func (id TableID) String() string {
	switch id {
	case EventTable:
		return "Event"
	case MemoryTable:
		return "Memory"
	case FrameTable:
		return "Frame"
	case ImageTable:
		return "Image"
	case PostImageTable:
		return "PostImage"
	case RangeTable:
		return "Range"
	case BitTable:
		return "Bit"
	case HostCallTable:
		return "HostCall"
	default:
		return "Unknown"
	}
}

// Column is one named column of a table. Only the used rows are stored;
// the remaining rows up to the padded height are zero.
type Column[E any] struct {
	Name   string
	Values []E
}

// Table is the interface that all assigned tables implement
type Table[E any] interface {
	// GetID returns the table's unique identifier
	GetID() TableID

	// GetHeight returns the number of used rows
	GetHeight() int

	// GetPaddedHeight returns the column height of the circuit, 2^K
	GetPaddedHeight() int

	// GetColumns returns the assigned columns
	GetColumns() []Column[E]

	// CheckConstraints evaluates every gate of the table over its rows
	CheckConstraints() error
}

// LinkageType defines the type of cross-table argument
type LinkageType int

const (
	// PermutationLinkage proves two multisets are equal
	PermutationLinkage LinkageType = iota

	// LookupLinkage proves values in one table appear in another
	LookupLinkage

	// EqualityLinkage binds boundary cells of two tables
	EqualityLinkage
)

// String returns the name of the linkage type
func (lt LinkageType) String() string {
	switch lt {
	case PermutationLinkage:
		return "Permutation"
	case LookupLinkage:
		return "Lookup"
	case EqualityLinkage:
		return "Equality"
	default:
		return "Unknown"
	}
}

// TableLinkage describes one cross-table argument of a circuit
type TableLinkage struct {
	Name      string
	FromTable TableID
	ToTable   TableID
	LinkType  LinkageType
}

// gate is one polynomial identity evaluated on a row. It holds when value is
// zero.
type gate[E any] struct {
	name  string
	value E
}

func checkGates[E any](f core.Field[E], table TableID, row int, gates []gate[E]) error {
	for _, g := range gates {
		if !f.IsZero(g.value) {
			return &ConstraintError{Table: table, Row: row, Name: g.name}
		}
	}
	return nil
}

// TableStats holds statistics for a single table
type TableStats struct {
	Height       int
	PaddedHeight int
	Columns      int
}

// Stats returns statistics for a table.
func Stats[E any](t Table[E]) TableStats {
	return TableStats{
		Height:       t.GetHeight(),
		PaddedHeight: t.GetPaddedHeight(),
		Columns:      len(t.GetColumns()),
	}
}

func checkHeight(id TableID, height int, capacity int, k uint32, kind CapacityKind) error {
	if height > capacity {
		return &CapacityError{Kind: kind, Count: height, Limit: capacity, K: k}
	}
	return nil
}

func errRow(id TableID, row int, format string, args ...any) error {
	return fmt.Errorf("%s table row %d: %s", id, row, fmt.Sprintf(format, args...))
}
