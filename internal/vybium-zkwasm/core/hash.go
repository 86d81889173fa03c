package core

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"
	"golang.org/x/crypto/sha3"
)

// limbBits is the width of the limbs fed to Poseidon. Goldilocks elements
// hold 64 bits, so 32-bit limbs never wrap.
const limbBits = 32

// Limbs splits v into little-endian 32-bit limbs, eight per word.
func Limbs(v *uint256.Int) []field.Element {
	b := v.Bytes32()
	limbs := make([]field.Element, 0, 256/limbBits)
	for i := len(b); i > 0; i -= 4 {
		limbs = append(limbs, field.New(uint64(binary.BigEndian.Uint32(b[i-4:i]))))
	}
	return limbs
}

// ProgramDigest hashes a sequence of packed encodings with Poseidon. The
// result identifies the program committed by the image.
func ProgramDigest(words []*uint256.Int) field.Element {
	elements := make([]field.Element, 0, len(words)*256/limbBits+1)
	elements = append(elements, field.New(uint64(len(words))))
	for _, w := range words {
		elements = append(elements, Limbs(w)...)
	}
	return hash.PoseidonHash(elements)
}

// Keccak256 hashes the concatenation of its arguments.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
