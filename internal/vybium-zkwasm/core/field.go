// Package core provides the field arithmetic used to assign and check table
// columns, and the hashing used for program digests.
package core

import (
	"math/big"

	blsfr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	bnfr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// Field is the arithmetic of a prime field whose elements have type E. Table
// builders are parameterized by E so that the same circuit can be assigned
// over any supported curve.
type Field[E any] interface {
	// Name returns the curve name of the scalar field
	Name() string
	// Modulus returns the field characteristic
	Modulus() *big.Int

	Zero() E
	One() E
	FromUint64(v uint64) E
	FromInt64(v int64) E
	// FromUint256 reduces a packed encoding into the field
	FromUint256(v *uint256.Int) E

	Add(a, b E) E
	Sub(a, b E) E
	Mul(a, b E) E
	Neg(a E) E
	// Inverse returns 0 for 0
	Inverse(a E) E

	IsZero(a E) bool
	Equal(a, b E) bool
	Bytes(a E) [32]byte
	String(a E) string
}

// BN254 is the scalar field of the BN254 curve. It is the default: its
// 254-bit modulus holds every image encoding without reduction.
type BN254 struct{}

// NewBN254 returns the BN254 scalar field
func NewBN254() BN254 { return BN254{} }

func (BN254) Name() string       { return "bn254" }
func (BN254) Modulus() *big.Int  { return bnfr.Modulus() }
func (BN254) Zero() bnfr.Element { return bnfr.Element{} }

func (BN254) One() bnfr.Element {
	var e bnfr.Element
	e.SetOne()
	return e
}

func (BN254) FromUint64(v uint64) bnfr.Element {
	var e bnfr.Element
	e.SetUint64(v)
	return e
}

func (BN254) FromInt64(v int64) bnfr.Element {
	var e bnfr.Element
	e.SetInt64(v)
	return e
}

func (BN254) FromUint256(v *uint256.Int) bnfr.Element {
	var e bnfr.Element
	b := v.Bytes32()
	e.SetBytes(b[:])
	return e
}

func (BN254) Add(a, b bnfr.Element) bnfr.Element {
	var e bnfr.Element
	e.Add(&a, &b)
	return e
}

func (BN254) Sub(a, b bnfr.Element) bnfr.Element {
	var e bnfr.Element
	e.Sub(&a, &b)
	return e
}

func (BN254) Mul(a, b bnfr.Element) bnfr.Element {
	var e bnfr.Element
	e.Mul(&a, &b)
	return e
}

func (BN254) Neg(a bnfr.Element) bnfr.Element {
	var e bnfr.Element
	e.Neg(&a)
	return e
}

func (BN254) Inverse(a bnfr.Element) bnfr.Element {
	var e bnfr.Element
	e.Inverse(&a)
	return e
}

func (BN254) IsZero(a bnfr.Element) bool    { return a.IsZero() }
func (BN254) Equal(a, b bnfr.Element) bool  { return a.Equal(&b) }
func (BN254) Bytes(a bnfr.Element) [32]byte { return a.Bytes() }
func (BN254) String(a bnfr.Element) string  { return a.String() }

// BLS12381 is the scalar field of the BLS12-381 curve.
type BLS12381 struct{}

// NewBLS12381 returns the BLS12-381 scalar field
func NewBLS12381() BLS12381 { return BLS12381{} }

func (BLS12381) Name() string        { return "bls12-381" }
func (BLS12381) Modulus() *big.Int   { return blsfr.Modulus() }
func (BLS12381) Zero() blsfr.Element { return blsfr.Element{} }

func (BLS12381) One() blsfr.Element {
	var e blsfr.Element
	e.SetOne()
	return e
}

func (BLS12381) FromUint64(v uint64) blsfr.Element {
	var e blsfr.Element
	e.SetUint64(v)
	return e
}

func (BLS12381) FromInt64(v int64) blsfr.Element {
	var e blsfr.Element
	e.SetInt64(v)
	return e
}

func (BLS12381) FromUint256(v *uint256.Int) blsfr.Element {
	var e blsfr.Element
	b := v.Bytes32()
	e.SetBytes(b[:])
	return e
}

func (BLS12381) Add(a, b blsfr.Element) blsfr.Element {
	var e blsfr.Element
	e.Add(&a, &b)
	return e
}

func (BLS12381) Sub(a, b blsfr.Element) blsfr.Element {
	var e blsfr.Element
	e.Sub(&a, &b)
	return e
}

func (BLS12381) Mul(a, b blsfr.Element) blsfr.Element {
	var e blsfr.Element
	e.Mul(&a, &b)
	return e
}

func (BLS12381) Neg(a blsfr.Element) blsfr.Element {
	var e blsfr.Element
	e.Neg(&a)
	return e
}

func (BLS12381) Inverse(a blsfr.Element) blsfr.Element {
	var e blsfr.Element
	e.Inverse(&a)
	return e
}

func (BLS12381) IsZero(a blsfr.Element) bool    { return a.IsZero() }
func (BLS12381) Equal(a, b blsfr.Element) bool  { return a.Equal(&b) }
func (BLS12381) Bytes(a blsfr.Element) [32]byte { return a.Bytes() }
func (BLS12381) String(a blsfr.Element) string  { return a.String() }

// Sum adds a list of elements.
func Sum[E any](f Field[E], xs ...E) E {
	acc := f.Zero()
	for _, x := range xs {
		acc = f.Add(acc, x)
	}
	return acc
}

// FromBool maps true to one and false to zero.
func FromBool[E any](f Field[E], b bool) E {
	if b {
		return f.One()
	}
	return f.Zero()
}

// BatchInverse inverts every element with one field inversion (Montgomery's
// trick). Zeros stay zero.
func BatchInverse[E any](f Field[E], xs []E) []E {
	out := make([]E, len(xs))
	acc := f.One()
	for i, x := range xs {
		out[i] = acc
		if !f.IsZero(x) {
			acc = f.Mul(acc, x)
		}
	}
	inv := f.Inverse(acc)
	for i := len(xs) - 1; i >= 0; i-- {
		if f.IsZero(xs[i]) {
			out[i] = f.Zero()
			continue
		}
		out[i] = f.Mul(out[i], inv)
		inv = f.Mul(inv, xs[i])
	}
	return out
}
