package utils

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

// Channel is a Fiat-Shamir transcript. Every message is absorbed into a
// Keccak-256 state and every challenge is squeezed from it, so a verifier that
// replays the same messages derives the same challenges.
type Channel struct {
	state []byte
	proof []string
}

// NewChannel creates an empty transcript
func NewChannel() *Channel {
	return &Channel{
		state: []byte{0},
		proof: make([]string, 0, 64),
	}
}

// Send absorbs a labelled message
func (c *Channel) Send(label string, data []byte) {
	c.proof = append(c.proof, fmt.Sprintf("send:%s:%s", label, hex.EncodeToString(data)))
	h := core.Keccak256(c.state, []byte(label), data)
	c.state = h[:]
}

// ReceiveChallenge squeezes a labelled challenge. The result is reduced into
// [1, modulus) so it can never collide with a zero row.
func (c *Channel) ReceiveChallenge(label string, modulus *big.Int) *big.Int {
	h := core.Keccak256(c.state, []byte(label))
	max := new(big.Int).Sub(modulus, big.NewInt(1))
	random := new(big.Int).SetBytes(h[:])
	random.Mod(random, max)
	random.Add(random, big.NewInt(1))

	c.proof = append(c.proof, fmt.Sprintf("receive:%s:%s", label, random.String()))
	c.state = h[:]
	return random
}

// State returns the current channel state
func (c *Channel) State() []byte {
	return append([]byte(nil), c.state...)
}

// Proof returns the transcript messages in order
func (c *Channel) Proof() []string {
	return append([]string(nil), c.proof...)
}

// String returns a string representation of the channel proof
func (c *Channel) String() string {
	return strings.Join(c.proof, " ")
}
