package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/encode"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// FrameTableImpl implements the Frame Table
//
// Every call of the slice opens one row and every return closes one. The
// rest column counts what is still to be consumed by the event table, with
// returns in the high half and calls in the low half of a single value:
//
//	rest' = rest - enable·(1 - static - inherited) - enable·returned·2^32
//
// so the event table's rest_jops, decremented by 1 per call and 2^32 per
// return, ends at 0 together with the frame table.
type FrameTableImpl[E any] struct {
	config *Config
	a      arith[E]

	static    []E
	inherited []E
	enable    []E
	returned  []E
	rest      []E
	encode    []E

	entries   []specs.FrameTableEntry
	lastSlice bool

	calls   *relation[E]
	returns *relation[E]
}

func newFrameTable[E any](a arith[E], config *Config) *FrameTableImpl[E] {
	return &FrameTableImpl[E]{
		config:  config,
		a:       a,
		calls:   newTableRelation[E](lookupFrameCall),
		returns: newTableRelation[E](lookupFrameReturn),
	}
}

func (t *FrameTableImpl[E]) tuple(e specs.FrameTableEntry) []E {
	a := t.a
	return []E{a.u(uint64(e.FrameID)), a.u(uint64(e.NextFrameID)), a.u(uint64(e.CalleeFid)), a.u(uint64(e.Fid)), a.u(uint64(e.Iid))}
}

// restJops returns the initial rest_jops of a frame table.
func restJops(jtable *specs.FrameTable) uint64 {
	calls, returns := jtable.Counts()
	return returns<<32 + calls
}

func (t *FrameTableImpl[E]) assign(jtable *specs.FrameTable, lastSlice bool) error {
	n := jtable.Len()
	if n > t.config.FrameCapacity() {
		return &CapacityError{Kind: CapacityFrameRows, Count: n, Limit: t.config.FrameCapacity(), K: t.config.K()}
	}
	a := t.a
	t.lastSlice = lastSlice
	rest := restJops(jtable)
	groups := []struct {
		rows              []specs.FrameTableEntry
		static, inherited bool
	}{
		{rows: jtable.Static, static: true},
		{rows: jtable.Inherited, inherited: true},
		{rows: jtable.Called},
	}
	for _, g := range groups {
		for _, e := range g.rows {
			row := len(t.entries)
			if lastSlice && !e.Returned {
				return errRow(FrameTable, row, "frame %d opened at fid %d is never returned", e.FrameID, e.CalleeFid)
			}
			t.static = append(t.static, a.flag(g.static))
			t.inherited = append(t.inherited, a.flag(g.inherited))
			t.enable = append(t.enable, a.One())
			t.returned = append(t.returned, a.flag(e.Returned))
			t.rest = append(t.rest, a.u(rest))
			t.encode = append(t.encode, a.FromUint256(encode.EncodeFrameEntry(e)))
			t.entries = append(t.entries, e)

			if !g.static && !g.inherited {
				rest--
				t.calls.addRow(a, t.tuple(e))
			}
			if e.Returned {
				rest -= 1 << 32
				t.returns.addRow(a, t.tuple(e))
			}
		}
	}
	if t.calls.Len()+t.returns.Len() != len(jtable.Called)+countReturned(jtable) {
		return fmt.Errorf("frame table holds duplicate rows")
	}
	for _, c := range []*[]E{&t.static, &t.inherited, &t.enable, &t.returned, &t.rest, &t.encode} {
		*c = append(*c, a.Zero())
	}
	return nil
}

func countReturned(jtable *specs.FrameTable) int {
	_, returns := jtable.Counts()
	return int(returns)
}

// GetID returns the table's identifier
func (t *FrameTableImpl[E]) GetID() TableID { return FrameTable }

// GetHeight returns the number of frame rows
func (t *FrameTableImpl[E]) GetHeight() int { return len(t.entries) }

// GetPaddedHeight returns the column height
func (t *FrameTableImpl[E]) GetPaddedHeight() int { return t.config.Rows() }

// GetColumns returns the assigned columns
func (t *FrameTableImpl[E]) GetColumns() []Column[E] {
	return []Column[E]{
		{Name: "jtable_static", Values: t.static},
		{Name: "jtable_inherited", Values: t.inherited},
		{Name: "jtable_enable", Values: t.enable},
		{Name: "jtable_returned", Values: t.returned},
		{Name: "jtable_rest", Values: t.rest},
		{Name: "jtable_encode", Values: t.encode},
	}
}

// CheckConstraints checks the row flags, the encodings and the rest
// countdown.
func (t *FrameTableImpl[E]) CheckConstraints() error {
	a := t.a
	last := len(t.enable) - 1
	if err := checkGates(a.Field, FrameTable, last, []gate[E]{
		{name: "terminal disabled", value: t.enable[last]},
		{name: "terminal rest", value: t.rest[last]},
	}); err != nil {
		return err
	}
	for i := 0; i < last; i++ {
		enable := t.enable[i]
		called := a.Sub(a.Sub(a.One(), t.static[i]), t.inherited[i])
		gates := []gate[E]{
			boolGate(a, "enable", enable),
			boolGate(a, "static", t.static[i]),
			boolGate(a, "inherited", t.inherited[i]),
			boolGate(a, "returned", t.returned[i]),
			{name: "static or inherited", value: a.Mul(t.static[i], t.inherited[i])},
			eqGate(a, "encode", t.encode[i], a.FromUint256(encode.EncodeFrameEntry(t.entries[i]))),
			eqGate(a, "rest transition", t.rest[i+1], a.sum(
				t.rest[i],
				a.Neg(a.Mul(enable, called)),
				a.Neg(a.shift(a.Mul(enable, t.returned[i]), 32)),
			)),
		}
		if t.lastSlice {
			gates = append(gates, gate[E]{name: "returned in last slice", value: a.Mul(enable, a.not(t.returned[i]))})
		}
		if err := checkGates(a.Field, FrameTable, i, gates); err != nil {
			return err
		}
	}
	return nil
}

func (t *FrameTableImpl[E]) register(relations *[lookupTargetCount]*relation[E]) {
	relations[lookupFrameCall] = t.calls
	relations[lookupFrameReturn] = t.returns
}

// checkUsage verifies, after the lookups have been resolved, that every call
// row was opened by exactly one step and every returned row closed by exactly
// one step.
func (t *FrameTableImpl[E]) checkUsage() error {
	usages := []struct {
		name string
		rel  *relation[E]
	}{
		{"call", t.calls},
		{"return", t.returns},
	}
	for _, u := range usages {
		for i := 0; i < u.rel.Len(); i++ {
			if m := u.rel.multiplicity(i); m != 1 {
				return &ConstraintError{Table: FrameTable, Row: i, Name: fmt.Sprintf("%s row used %d times", u.name, m)}
			}
		}
	}
	return nil
}

// firstRest is the rest_jops the event table starts from.
func (t *FrameTableImpl[E]) firstRest() E { return t.rest[0] }

// staticEntries returns the static rows in slot order.
func (t *FrameTableImpl[E]) staticEntries() []specs.FrameTableEntry {
	out := make([]specs.FrameTableEntry, 0, specs.StaticFrameSlots)
	for i, e := range t.entries {
		if t.a.IsZero(t.static[i]) {
			break
		}
		out = append(out, e)
	}
	return out
}
