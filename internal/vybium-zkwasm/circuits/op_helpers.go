package circuits

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// newOpcodeKinds configures one kind per opcode class. Every kind allocates
// its cells after the common ones; kinds of different classes share cells.
func newOpcodeKinds[E any](a arith[E], c *commonCells, base int) [specs.OpcodeClassCount + 1]opcodeKind[E] {
	kb := kindBase[E]{a: a, c: c}
	kinds := [specs.OpcodeClassCount + 1]opcodeKind[E]{
		specs.LocalGet:         &localGetKind[E]{kindBase: kb},
		specs.LocalSet:         &localSetKind[E]{kindBase: kb},
		specs.LocalTee:         &localTeeKind[E]{kindBase: kb},
		specs.GlobalGet:        &globalGetKind[E]{kindBase: kb},
		specs.GlobalSet:        &globalSetKind[E]{kindBase: kb},
		specs.Const:            &constKind[E]{kindBase: kb},
		specs.Drop:             &dropKind[E]{kindBase: kb},
		specs.Select:           &selectKind[E]{kindBase: kb},
		specs.Return:           &returnKind[E]{kindBase: kb},
		specs.Bin:              &binKind[E]{kindBase: kb},
		specs.Unary:            &unaryKind[E]{kindBase: kb},
		specs.BinShift:         &binShiftKind[E]{kindBase: kb},
		specs.BinBit:           &binBitKind[E]{kindBase: kb},
		specs.Test:             &testKind[E]{kindBase: kb},
		specs.Rel:              &relKind[E]{kindBase: kb},
		specs.Br:               &brKind[E]{kindBase: kb},
		specs.BrIf:             &brIfKind[E]{kindBase: kb, onZero: false},
		specs.BrIfEqz:          &brIfKind[E]{kindBase: kb, onZero: true},
		specs.BrTable:          &brTableKind[E]{kindBase: kb},
		specs.Unreachable:      &unreachableKind[E]{kindBase: kb},
		specs.Call:             &callKind[E]{kindBase: kb},
		specs.CallHost:         &callHostKind[E]{kindBase: kb},
		specs.CallIndirect:     &callIndirectKind[E]{kindBase: kb},
		specs.Load:             &loadKind[E]{kindBase: kb},
		specs.Store:            &storeKind[E]{kindBase: kb},
		specs.MemorySize:       &memorySizeKind[E]{kindBase: kb},
		specs.MemoryGrow:       &memoryGrowKind[E]{kindBase: kb},
		specs.Conversion:       &conversionKind[E]{kindBase: kb},
		specs.ExternalHostCall: &externalHostCallKind[E]{kindBase: kb},
	}
	for _, class := range specs.AllOpcodeClasses() {
		if kinds[class] == nil {
			panic(fmt.Sprintf("no event table layout for %s", class))
		}
		kinds[class].configure(&allocator{next: base})
	}
	return kinds
}

// opFlags is a one-hot selector over the operators of a class.
type opFlags[E any] struct {
	cells []cell
}

func configureOps[E any](al *allocator, n int) opFlags[E] {
	return opFlags[E]{cells: al.allocN(n)}
}

func (o opFlags[E]) assign(a arith[E], b *block[E], op int) {
	b.set(o.cells[op], a.One())
}

func (o opFlags[E]) is(b *block[E], op int) E { return b.get(o.cells[op]) }

// value is the operator index selected by the flags.
func (o opFlags[E]) value(a arith[E], b *block[E]) E {
	acc := a.Zero()
	for i, c := range o.cells {
		acc = a.Add(acc, a.Mul(a.u(uint64(i)), b.get(c)))
	}
	return acc
}

// dot returns Σ flag_i * xs[i].
func (o opFlags[E]) dot(a arith[E], b *block[E], xs ...E) E {
	acc := a.Zero()
	for i, c := range o.cells {
		acc = a.Add(acc, a.Mul(b.get(c), xs[i]))
	}
	return acc
}

func (o opFlags[E]) gates(a arith[E], b *block[E], name string) []gate[E] {
	out := make([]gate[E], 0, len(o.cells)+1)
	sum := a.Zero()
	for _, c := range o.cells {
		out = append(out, boolGate(a, name+" flag", b.get(c)))
		sum = a.Add(sum, b.get(c))
	}
	return append(out, eqGate(a, name+" one-hot", sum, a.One()))
}

// keepCells move at most one kept value over the dropped slots.
type keepCells[E any] struct {
	drop      cell
	hasKeep   cell
	keepI32   cell
	keepValue cell
}

func configureKeep[E any](al *allocator) keepCells[E] {
	return keepCells[E]{drop: al.alloc(), hasKeep: al.alloc(), keepI32: al.alloc(), keepValue: al.alloc()}
}

func (k keepCells[E]) assign(a arith[E], b *block[E], s *stepContext, drop uint32, keep []specs.VarType, values []uint64) error {
	if len(keep) > 1 {
		return fmt.Errorf("eid %d: %s keeps %d values, at most one is supported", s.entry.Eid, s.opcode.Class, len(keep))
	}
	b.set(k.drop, a.u(uint64(drop)))
	if len(keep) == 1 {
		b.set(k.hasKeep, a.One())
		b.set(k.keepI32, a.flag(keep[0].IsI32()))
		if len(values) > 0 {
			b.set(k.keepValue, a.u(keep[0].Mask(values[0])))
		}
	}
	return nil
}

// encoded is the keep argument of the opcode: 0, or 1 + vtype.
func (k keepCells[E]) encoded(a arith[E], b *block[E]) E {
	return a.Add(b.get(k.hasKeep), b.get(k.keepI32))
}

func (k keepCells[E]) gates(a arith[E], b *block[E]) []gate[E] {
	return []gate[E]{
		boolGate(a, "has keep", b.get(k.hasKeep)),
		boolGate(a, "keep is i32", b.get(k.keepI32)),
		{name: "keep type without value", value: a.Mul(a.not(b.get(k.hasKeep)), b.get(k.keepI32))},
	}
}

// accesses reads the kept value at from and writes it drop slots deeper.
func (k keepCells[E]) accesses(kb kindBase[E], b *block[E], enabled E, from E) []memoryAccess[E] {
	a := kb.a
	on := a.Mul(enabled, b.get(k.hasKeep))
	return []memoryAccess[E]{
		kb.stackRead(on, from, b.get(k.keepI32), b.get(k.keepValue)),
		kb.stackWrite(on, a.Add(from, b.get(k.drop)), b.get(k.keepI32), b.get(k.keepValue)),
	}
}

// signSplit decomposes v = neg * 2^(bits-1) + low with low < 2^(bits-1).
type signSplit[E any] struct {
	neg cell
	low cell
}

func configureSignSplit[E any](al *allocator) signSplit[E] {
	return signSplit[E]{neg: al.alloc(), low: al.alloc()}
}

func (s signSplit[E]) assign(a arith[E], b *block[E], vtype specs.VarType, v uint64) {
	v = vtype.Mask(v)
	neg := negative(vtype, v)
	b.set(s.neg, a.flag(neg))
	b.set(s.low, a.u(v&^(1<<(width(vtype)-1))))
}

func (s signSplit[E]) gates(a arith[E], b *block[E], name string, v, isI32 E) []gate[E] {
	half := a.sel(isI32, a.p2(31), a.p2(63))
	return []gate[E]{
		boolGate(a, name+" sign", b.get(s.neg)),
		eqGate(a, name+" sign split", v, a.Add(a.Mul(b.get(s.neg), half), b.get(s.low))),
	}
}

func (s signSplit[E]) lookups(a arith[E], b *block[E], isI32 E) []lookup[E] {
	return []lookup[E]{{target: lookupRange, values: []E{b.get(s.low), a.sel(isI32, a.u(31), a.u(63))}}}
}

// less binds lt to x < y through a non-negative difference.
func lessGate[E any](a arith[E], name string, x, y, lt, diff E) gate[E] {
	// lt:  x + diff + 1 = y
	// !lt: x = y + diff
	ge := a.Sub(a.Sub(x, y), diff)
	lower := a.Sub(a.Sub(a.Sub(y, x), a.One()), diff)
	return gate[E]{name: name, value: a.Add(a.Mul(a.not(lt), ge), a.Mul(lt, lower))}
}
