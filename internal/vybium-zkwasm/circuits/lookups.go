package circuits

import (
	"fmt"
)

// lookupTarget names the table a lookup reads from.
type lookupTarget int

const (
	// (value, bits): value < 2^bits, bits <= 64, served by u16 limbs
	lookupRange lookupTarget = iota
	lookupU8
	lookupU16
	lookupCommon
	// (exp, 2^exp) for exp <= 128
	lookupPow
	// (op, lhs, rhs, res) over bytes
	lookupBit
	// one image row
	lookupImage
	// frame rows opened inside the slice
	lookupFrameCall
	// frame rows returned inside the slice
	lookupFrameReturn
	// external host call rows
	lookupHostCall

	lookupTargetCount
)

func (t lookupTarget) String() string {
	return [...]string{
		"range", "u8", "u16", "common range", "pow", "bit", "image",
		"frame call", "frame return", "host call",
	}[t]
}

func (t lookupTarget) table() TableID {
	switch t {
	case lookupBit:
		return BitTable
	case lookupImage:
		return ImageTable
	case lookupFrameCall, lookupFrameReturn:
		return FrameTable
	case lookupHostCall:
		return HostCallTable
	default:
		return RangeTable
	}
}

// lookup is one tuple read from a table.
type lookup[E any] struct {
	target lookupTarget
	values []E
}

// query is a lookup together with the row that issued it.
type query[E any] struct {
	lookup[E]
	table TableID
	row   int
}

func rangeLookup[E any](a arith[E], v E, bits uint64) lookup[E] {
	return lookup[E]{target: lookupRange, values: []E{v, a.u(bits)}}
}

// typedRange bounds v by the width of its value type.
func typedRange[E any](a arith[E], v E, isI32 E) lookup[E] {
	return lookup[E]{target: lookupRange, values: []E{v, a.bits(isI32)}}
}

func u8Lookup[E any](v E) lookup[E] {
	return lookup[E]{target: lookupU8, values: []E{v}}
}

func u16Lookup[E any](v E) lookup[E] {
	return lookup[E]{target: lookupU16, values: []E{v}}
}

func commonLookup[E any](v E) lookup[E] {
	return lookup[E]{target: lookupCommon, values: []E{v}}
}

func powLookup[E any](exp, pow E) lookup[E] {
	return lookup[E]{target: lookupPow, values: []E{exp, pow}}
}

func bitLookup[E any](op, lhs, rhs, res E) lookup[E] {
	return lookup[E]{target: lookupBit, values: []E{op, lhs, rhs, res}}
}

func imageLookup[E any](row E) lookup[E] {
	return lookup[E]{target: lookupImage, values: []E{row}}
}

// relation is the content of one lookup table. Fixed relations are defined by
// a predicate and only the tuples actually read are kept; table relations are
// the rows assigned by a chip.
type relation[E any] struct {
	target   lookupTarget
	contains func(values []E) bool
	index    map[string]int
	tuples   [][]E
	counts   []uint64
}

func newFixedRelation[E any](target lookupTarget, contains func(values []E) bool) *relation[E] {
	return &relation[E]{target: target, contains: contains, index: make(map[string]int)}
}

func newTableRelation[E any](target lookupTarget) *relation[E] {
	return &relation[E]{target: target, index: make(map[string]int)}
}

func tupleKey[E any](a arith[E], values []E) string {
	key := make([]byte, 0, 32*len(values))
	for _, v := range values {
		b := a.Bytes(v)
		key = append(key, b[:]...)
	}
	return string(key)
}

// addRow appends a row of a table relation. Duplicate rows share one
// multiplicity counter.
func (r *relation[E]) addRow(a arith[E], values []E) {
	key := tupleKey(a, values)
	if _, ok := r.index[key]; ok {
		return
	}
	r.index[key] = len(r.tuples)
	r.tuples = append(r.tuples, values)
	r.counts = append(r.counts, 0)
}

// read records one lookup of values and reports whether it is in the table.
func (r *relation[E]) read(a arith[E], values []E) bool {
	key := tupleKey(a, values)
	i, ok := r.index[key]
	switch {
	case ok:
		r.counts[i]++
	case r.contains != nil && r.contains(values):
		r.index[key] = len(r.tuples)
		r.tuples = append(r.tuples, values)
		r.counts = append(r.counts, 1)
	default:
		return false
	}
	return true
}

// Len returns the number of distinct rows.
func (r *relation[E]) Len() int { return len(r.tuples) }

// multiplicity returns how often row i was read.
func (r *relation[E]) multiplicity(i int) uint64 { return r.counts[i] }

// checkLookups resolves every query against its relation and then verifies
// the log-derivative identity of each target.
func checkLookups[E any](a arith[E], relations [lookupTargetCount]*relation[E], queries []query[E], ch Challenges[E]) error {
	symbols := make([][]E, lookupTargetCount)
	for _, q := range queries {
		rel := relations[q.target]
		if rel == nil {
			return fmt.Errorf("no table serves %s lookups", q.target)
		}
		if !rel.read(a, q.values) {
			return &ConstraintError{Table: q.table, Row: q.row, Name: fmt.Sprintf("%s lookup", q.target)}
		}
		symbols[q.target] = append(symbols[q.target], compressRow(a, q.values, ch.Alpha))
	}

	arg := LookupArgument[E]{a: a}
	for target, rel := range relations {
		if rel == nil || len(symbols[target]) == 0 {
			continue
		}
		lhs, err := arg.ComputeTerminal(symbols[target], ch.Beta)
		if err != nil {
			return fmt.Errorf("failed to compute %s lookup terminal: %w", lookupTarget(target), err)
		}
		rows := make([]E, rel.Len())
		for i, t := range rel.tuples {
			rows[i] = compressRow(a, t, ch.Alpha)
		}
		rhs, err := arg.ComputeWeightedTerminal(rows, rel.counts, ch.Beta)
		if err != nil {
			return fmt.Errorf("failed to compute %s table terminal: %w", lookupTarget(target), err)
		}
		if !a.Equal(lhs, rhs) {
			return &ConstraintError{Table: lookupTarget(target).table(), Row: -1, Name: fmt.Sprintf("%s log-derivative", lookupTarget(target))}
		}
	}
	return nil
}
