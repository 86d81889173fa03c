package circuits

import "fmt"

// CapacityKind names the bounded resource of a CapacityError.
type CapacityKind int

const (
	CapacityMultipleSlices CapacityKind = iota
	CapacityMemoryPages
	CapacityEventRows
	CapacityMemoryRows
	CapacityFrameRows
	CapacityHostCallRows
	CapacityImageRows
)

func (k CapacityKind) String() string {
	switch k {
	case CapacityMultipleSlices:
		return "multiple slices not supported"
	case CapacityMemoryPages:
		return "memory pages"
	case CapacityEventRows:
		return "event table rows"
	case CapacityMemoryRows:
		return "memory table rows"
	case CapacityFrameRows:
		return "frame table rows"
	case CapacityHostCallRows:
		return "host call rows"
	case CapacityImageRows:
		return "image rows"
	default:
		return "unknown capacity"
	}
}

// CapacityError reports a trace that does not fit the configured circuit.
type CapacityError struct {
	Kind  CapacityKind
	Count int
	Limit int
	K     uint32
}

func (e *CapacityError) Error() string {
	if e.Kind == CapacityMultipleSlices {
		return fmt.Sprintf("%s at k=%d: trace needs %d slices", e.Kind, e.K, e.Count)
	}
	return fmt.Sprintf("%s exceeded at k=%d: %d > %d", e.Kind, e.K, e.Count, e.Limit)
}

// Is matches ErrMultipleSlices for errors of kind CapacityMultipleSlices.
func (e *CapacityError) Is(target error) bool {
	return target == ErrMultipleSlices && e.Kind == CapacityMultipleSlices
}

// ConstraintError reports the first gate or argument that does not hold.
type ConstraintError struct {
	Table TableID
	Row   int
	Name  string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s table: constraint %q not satisfied at row %d", e.Table, e.Name, e.Row)
}
