package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

// PowTableMaxExp is the largest exponent of the pow table.
const PowTableMaxExp = 128

// RangeTableImpl serves the fixed range lookups: arbitrary widths up to 64 bits
// (decomposed into u16 limbs), u8, u16, the common range and powers of two.
//
// The fixed tables are never materialized in full. Membership is decided by
// predicate and only the rows read by the slice are kept together with their
// multiplicities.
type RangeTableImpl[E any] struct {
	config *Config
	a      arith[E]

	ranges *relation[E]
	u8     *relation[E]
	u16    *relation[E]
	common *relation[E]
	pow    *relation[E]
}

// NewRangeTable creates the range tables of a circuit
func NewRangeTable[E any](f core.Field[E], config *Config) (*RangeTableImpl[E], error) {
	if config == nil {
		return nil, ErrConfigNotSet
	}
	a := newArith(f)
	return newRangeTable(a, config), nil
}

func newRangeTable[E any](a arith[E], config *Config) *RangeTableImpl[E] {
	below := func(bound uint64) func(values []E) bool {
		return func(values []E) bool {
			v, ok := a.uint64Of(values[0])
			return ok && v < bound
		}
	}
	t := &RangeTableImpl[E]{config: config, a: a}
	t.ranges = newFixedRelation(lookupRange, func(values []E) bool {
		bits, ok := a.uint64Of(values[1])
		if !ok || bits == 0 || bits > 64 {
			return false
		}
		v := a.big(values[0])
		return v.BitLen() <= int(bits)
	})
	t.u8 = newFixedRelation(lookupU8, below(1<<8))
	t.u16 = newFixedRelation(lookupU16, below(1<<16))
	t.common = newFixedRelation(lookupCommon, below(config.CommonRange()))
	t.pow = newFixedRelation(lookupPow, func(values []E) bool {
		exp, ok := a.uint64Of(values[0])
		if !ok || exp > PowTableMaxExp {
			return false
		}
		return a.Equal(values[1], a.p2(uint(exp)))
	})
	return t
}

// GetID returns the table's identifier
func (t *RangeTableImpl[E]) GetID() TableID {
	return RangeTable
}

// GetHeight returns the number of distinct rows read
func (t *RangeTableImpl[E]) GetHeight() int {
	return max(t.ranges.Len(), t.u8.Len(), t.u16.Len(), t.common.Len(), t.pow.Len())
}

// GetPaddedHeight returns the column height
func (t *RangeTableImpl[E]) GetPaddedHeight() int {
	return t.config.Rows()
}

// GetColumns returns the read rows and their multiplicities
func (t *RangeTableImpl[E]) GetColumns() []Column[E] {
	cols := relationColumns(t.a, "range", []string{"value", "bits"}, t.ranges)
	cols = append(cols, relationColumns(t.a, "u8", []string{"value"}, t.u8)...)
	cols = append(cols, relationColumns(t.a, "u16", []string{"value"}, t.u16)...)
	cols = append(cols, relationColumns(t.a, "common", []string{"value"}, t.common)...)
	return append(cols, relationColumns(t.a, "pow", []string{"exp", "value"}, t.pow)...)
}

// CheckConstraints has nothing to check: fixed rows hold by construction.
func (t *RangeTableImpl[E]) CheckConstraints() error {
	return nil
}

func (t *RangeTableImpl[E]) register(relations *[lookupTargetCount]*relation[E]) {
	relations[lookupRange] = t.ranges
	relations[lookupU8] = t.u8
	relations[lookupU16] = t.u16
	relations[lookupCommon] = t.common
	relations[lookupPow] = t.pow
}

// expand adds the u16 limb lookups that back every range lookup.
func (t *RangeTableImpl[E]) expand(queries []query[E]) []query[E] {
	out := queries
	for _, q := range queries {
		if q.target != lookupRange {
			continue
		}
		v, ok := t.a.uint64Of(q.values[0])
		bits, bok := t.a.uint64Of(q.values[1])
		if !ok || !bok || bits > 64 {
			continue
		}
		for limb := uint64(0); limb*16 < max(bits, 1); limb++ {
			out = append(out, query[E]{
				lookup: u16Lookup(t.a.u((v >> (16 * limb)) & 0xffff)),
				table:  q.table,
				row:    q.row,
			})
		}
	}
	return out
}

func relationColumns[E any](a arith[E], prefix string, names []string, rel *relation[E]) []Column[E] {
	cols := make([]Column[E], len(names)+1)
	for i, name := range names {
		cols[i] = Column[E]{Name: fmt.Sprintf("%s_%s", prefix, name), Values: make([]E, rel.Len())}
	}
	mult := Column[E]{Name: prefix + "_multiplicity", Values: make([]E, rel.Len())}
	for r, tuple := range rel.tuples {
		for i := range names {
			cols[i].Values[r] = tuple[i]
		}
		mult.Values[r] = a.u(rel.multiplicity(r))
	}
	cols[len(names)] = mult
	return cols
}
