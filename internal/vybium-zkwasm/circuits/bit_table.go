package circuits

import (
	"math/bits"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// BitTablePopcnt is the operator code of popcount rows. It follows the three
// bitwise operators of specs.BitOp.
const BitTablePopcnt = 3

// BitTableImpl serves byte-wise bitwise lookups. Rows are (op, lhs, rhs, res)
// with lhs and rhs bytes: And, Or and Xor rows hold op(lhs, rhs) and popcount
// rows hold (3, byte, 0, popcount(byte)).
type BitTableImpl[E any] struct {
	config *Config
	rows   *relation[E]
	a      arith[E]
}

func newBitTable[E any](a arith[E], config *Config) *BitTableImpl[E] {
	t := &BitTableImpl[E]{config: config, a: a}
	t.rows = newFixedRelation(lookupBit, func(values []E) bool {
		var v [4]uint64
		for i := range v {
			x, ok := a.uint64Of(values[i])
			if !ok {
				return false
			}
			v[i] = x
		}
		op, lhs, rhs, res := v[0], v[1], v[2], v[3]
		if lhs > 0xff || rhs > 0xff {
			return false
		}
		expected, ok := ComputeBitOp(op, uint8(lhs), uint8(rhs))
		return ok && expected == res
	})
	return t
}

// ComputeBitOp returns the table value of (op, lhs, rhs).
func ComputeBitOp(op uint64, lhs, rhs uint8) (uint64, bool) {
	switch op {
	case uint64(specs.BitAnd):
		return uint64(lhs & rhs), true
	case uint64(specs.BitOr):
		return uint64(lhs | rhs), true
	case uint64(specs.BitXor):
		return uint64(lhs ^ rhs), true
	case BitTablePopcnt:
		if rhs != 0 {
			return 0, false
		}
		return uint64(bits.OnesCount8(lhs)), true
	}
	return 0, false
}

// GetID returns the table's identifier
func (t *BitTableImpl[E]) GetID() TableID { return BitTable }

// GetHeight returns the number of distinct rows read
func (t *BitTableImpl[E]) GetHeight() int { return t.rows.Len() }

// GetPaddedHeight returns the column height
func (t *BitTableImpl[E]) GetPaddedHeight() int { return t.config.Rows() }

// GetColumns returns the read rows and their multiplicities
func (t *BitTableImpl[E]) GetColumns() []Column[E] {
	return relationColumns(t.a, "bit", []string{"op", "lhs", "rhs", "res"}, t.rows)
}

// CheckConstraints has nothing to check: fixed rows hold by construction.
func (t *BitTableImpl[E]) CheckConstraints() error { return nil }

func (t *BitTableImpl[E]) register(relations *[lookupTargetCount]*relation[E]) {
	relations[lookupBit] = t.rows
}
