package circuits

import (
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// HostCallTableImpl lists the values exchanged with external host functions,
// indexed in the order the event table performs them. Consecutive rows of one
// call share its op: arguments come first and a return closes the call.
type HostCallTableImpl[E any] struct {
	config *Config
	a      arith[E]

	index []E
	op    []E
	isRet []E
	value []E

	rows *relation[E]
}

func newHostCallTable[E any](a arith[E], config *Config) *HostCallTableImpl[E] {
	return &HostCallTableImpl[E]{config: config, a: a, rows: newTableRelation[E](lookupHostCall)}
}

func (t *HostCallTableImpl[E]) assign(table *specs.ExternalHostCallTable) error {
	n := table.Len()
	if n > t.config.HostCallCapacity() {
		return &CapacityError{Kind: CapacityHostCallRows, Count: n, Limit: t.config.HostCallCapacity(), K: t.config.K()}
	}
	a := t.a
	for i := 0; i < n; i++ {
		e := table.Entries[i]
		if i > 0 {
			prev := table.Entries[i-1]
			if !prev.Sig.IsRet() && prev.Op != e.Op {
				return errRow(HostCallTable, i, "op %d interrupts the arguments of op %d", e.Op, prev.Op)
			}
		}
		t.index = append(t.index, a.u(uint64(i)))
		t.op = append(t.op, a.u(uint64(e.Op)))
		t.isRet = append(t.isRet, a.flag(e.Sig.IsRet()))
		t.value = append(t.value, a.u(e.Value))
		t.rows.addRow(a, []E{t.index[i], t.op[i], t.isRet[i], t.value[i]})
	}
	return nil
}

// GetID returns the table's identifier
func (t *HostCallTableImpl[E]) GetID() TableID { return HostCallTable }

// GetHeight returns the number of host call rows
func (t *HostCallTableImpl[E]) GetHeight() int { return len(t.index) }

// GetPaddedHeight returns the column height
func (t *HostCallTableImpl[E]) GetPaddedHeight() int { return t.config.Rows() }

// GetColumns returns the assigned columns
func (t *HostCallTableImpl[E]) GetColumns() []Column[E] {
	return []Column[E]{
		{Name: "host_index", Values: t.index},
		{Name: "host_op", Values: t.op},
		{Name: "host_is_ret", Values: t.isRet},
		{Name: "host_value", Values: t.value},
	}
}

// CheckConstraints checks that indexes count up from zero and that an op only
// changes after a return.
func (t *HostCallTableImpl[E]) CheckConstraints() error {
	a := t.a
	for i := range t.index {
		gates := []gate[E]{
			boolGate(a, "is ret", t.isRet[i]),
			eqGate(a, "index", t.index[i], a.u(uint64(i))),
		}
		if i > 0 {
			gates = append(gates, gate[E]{
				name:  "op continuity",
				value: a.Mul(a.not(t.isRet[i-1]), a.Sub(t.op[i], t.op[i-1])),
			})
		}
		if err := checkGates(a.Field, HostCallTable, i, gates); err != nil {
			return err
		}
	}
	return nil
}

func (t *HostCallTableImpl[E]) register(relations *[lookupTargetCount]*relation[E]) {
	relations[lookupHostCall] = t.rows
}

func (t *HostCallTableImpl[E]) queries() []query[E] {
	out := make([]query[E], 0, 2*len(t.index))
	for i := range t.index {
		out = append(out,
			query[E]{lookup: rangeLookup(t.a, t.op[i], 32), table: HostCallTable, row: i},
			query[E]{lookup: rangeLookup(t.a, t.value[i], 64), table: HostCallTable, row: i},
		)
	}
	return out
}

// checkUsage verifies that the event table performed every host call once.
func (t *HostCallTableImpl[E]) checkUsage() error {
	for i := 0; i < t.rows.Len(); i++ {
		if m := t.rows.multiplicity(i); m != 1 {
			return &ConstraintError{Table: HostCallTable, Row: i, Name: "host call performed once"}
		}
	}
	return nil
}
