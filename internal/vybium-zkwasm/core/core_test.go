package core

import (
	"testing"

	blsfr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	bnfr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

func testFieldArithmetic[E any](t *testing.T, f Field[E]) {
	t.Helper()

	a := f.FromUint64(12)
	b := f.FromUint64(30)

	if !f.Equal(f.Add(a, b), f.FromUint64(42)) {
		t.Errorf("%s: 12 + 30 != 42", f.Name())
	}
	if !f.Equal(f.Sub(a, b), f.FromInt64(-18)) {
		t.Errorf("%s: 12 - 30 != -18", f.Name())
	}
	if !f.Equal(f.Mul(a, f.Inverse(a)), f.One()) {
		t.Errorf("%s: a * a^-1 != 1", f.Name())
	}
	if !f.IsZero(f.Add(a, f.Neg(a))) {
		t.Errorf("%s: a + (-a) != 0", f.Name())
	}
	if !f.IsZero(f.Inverse(f.Zero())) {
		t.Errorf("%s: inverse of zero must be zero", f.Name())
	}

	wide := new(uint256.Int).Lsh(uint256.NewInt(3), 224)
	shifted := f.FromUint256(wide)
	expected := f.FromUint64(3)
	for i := 0; i < 224; i++ {
		expected = f.Add(expected, expected)
	}
	if !f.Equal(shifted, expected) {
		t.Errorf("%s: 3<<224 reduced incorrectly", f.Name())
	}
}

func TestFields(t *testing.T) {
	t.Run("bn254", func(t *testing.T) { testFieldArithmetic[bnfr.Element](t, NewBN254()) })
	t.Run("bls12-381", func(t *testing.T) { testFieldArithmetic[blsfr.Element](t, NewBLS12381()) })
}

func TestBatchInverse(t *testing.T) {
	f := NewBN254()
	xs := []uint64{3, 0, 7, 11}
	elems := make([]bnfr.Element, len(xs))
	for i, x := range xs {
		elems[i] = f.FromUint64(x)
	}
	inv := BatchInverse[bnfr.Element](f, elems)
	for i, x := range elems {
		if xs[i] == 0 {
			if !f.IsZero(inv[i]) {
				t.Errorf("index %d: zero must map to zero", i)
			}
			continue
		}
		if !f.Equal(f.Mul(x, inv[i]), f.One()) {
			t.Errorf("index %d: wrong inverse", i)
		}
	}
}

func TestProgramDigest(t *testing.T) {
	words := []*uint256.Int{uint256.NewInt(1), new(uint256.Int).Lsh(uint256.NewInt(5), 200)}
	d1 := ProgramDigest(words)
	d2 := ProgramDigest(words)
	if d1.Value() != d2.Value() {
		t.Fatal("digest must be deterministic")
	}
	words[1] = new(uint256.Int).Lsh(uint256.NewInt(6), 200)
	if ProgramDigest(words).Value() == d1.Value() {
		t.Error("digest must depend on every word")
	}
	if len(Limbs(uint256.NewInt(1))) != 8 {
		t.Error("expected eight 32-bit limbs")
	}
}

func TestKeccak256(t *testing.T) {
	// keccak256("") is a well known constant
	got := Keccak256()
	if got[0] != 0xc5 || got[1] != 0xd2 || got[31] != 0x70 {
		t.Errorf("unexpected empty digest %x", got)
	}
	if Keccak256([]byte("ab")) != Keccak256([]byte("a"), []byte("b")) {
		t.Error("arguments must be concatenated")
	}
}
