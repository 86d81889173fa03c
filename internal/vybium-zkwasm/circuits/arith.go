package circuits

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

// arith extends a field with the short-hands used by gate expressions.
type arith[E any] struct {
	core.Field[E]
	pows []E
}

func newArith[E any](f core.Field[E]) arith[E] {
	pows := make([]E, 256)
	for i := range pows {
		pows[i] = f.FromUint256(new(uint256.Int).Lsh(uint256.NewInt(1), uint(i)))
	}
	return arith[E]{Field: f, pows: pows}
}

func (a arith[E]) u(v uint64) E { return a.FromUint64(v) }

// p2 returns 2^n.
func (a arith[E]) p2(n uint) E { return a.pows[n] }

func (a arith[E]) flag(b bool) E { return core.FromBool[E](a.Field, b) }

func (a arith[E]) sum(xs ...E) E { return core.Sum[E](a.Field, xs...) }

func (a arith[E]) prod(xs ...E) E {
	acc := a.One()
	for _, x := range xs {
		acc = a.Mul(acc, x)
	}
	return acc
}

// not returns 1 - x.
func (a arith[E]) not(x E) E { return a.Sub(a.One(), x) }

// sel returns c ? x : y for a boolean c.
func (a arith[E]) sel(c, x, y E) E {
	return a.Add(a.Mul(c, x), a.Mul(a.not(c), y))
}

// modulus returns 2^32 for an i32 flag and 2^64 otherwise.
func (a arith[E]) modulus(isI32 E) E {
	return a.sel(isI32, a.p2(32), a.p2(64))
}

// bits returns 32 for an i32 flag and 64 otherwise.
func (a arith[E]) bits(isI32 E) E {
	return a.sel(isI32, a.u(32), a.u(64))
}

// shift returns v * 2^n.
func (a arith[E]) shift(v E, n uint) E { return a.Mul(v, a.p2(n)) }

func (a arith[E]) big(v E) *uint256.Int {
	b := a.Bytes(v)
	return new(uint256.Int).SetBytes32(b[:])
}

// uint64Of returns the integer value of v and whether it fits into 64 bits.
func (a arith[E]) uint64Of(v E) (uint64, bool) {
	x := a.big(v)
	return x.Uint64(), x.IsUint64()
}

func (a arith[E]) fromBig(v *uint256.Int) E { return a.FromUint256(v) }

func (a arith[E]) isBool(v E) bool {
	return a.IsZero(v) || a.Equal(v, a.One())
}

// boolGate constrains v to {0, 1}.
func boolGate[E any](a arith[E], name string, v E) gate[E] {
	return gate[E]{name: name, value: a.Mul(v, a.not(v))}
}

// zeroGates binds z to x == 0 through x*inv = 1 - z and z*x = 0.
func zeroGates[E any](a arith[E], name string, x, inv, z E) []gate[E] {
	return []gate[E]{
		boolGate(a, name+" zero flag", z),
		{name: name + " zero", value: a.Mul(z, x)},
		{name: name + " inverse", value: a.Sub(a.Mul(x, inv), a.not(z))},
	}
}

// eqGate constrains x = y.
func eqGate[E any](a arith[E], name string, x, y E) gate[E] {
	return gate[E]{name: name, value: a.Sub(x, y)}
}

// when multiplies every gate by a selector.
func when[E any](a arith[E], sel E, gates ...gate[E]) []gate[E] {
	out := make([]gate[E], len(gates))
	for i, g := range gates {
		out[i] = gate[E]{name: g.name, value: a.Mul(sel, g.value)}
	}
	return out
}
