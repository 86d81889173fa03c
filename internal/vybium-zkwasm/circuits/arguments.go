package circuits

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// compressRow folds a tuple into one symbol: Σ alpha^i · row[i].
func compressRow[E any](a arith[E], row []E, alpha E) E {
	acc := a.Zero()
	for i := len(row) - 1; i >= 0; i-- {
		acc = a.Add(a.Mul(acc, alpha), row[i])
	}
	return acc
}

// PermutationArgument proves two tables contain the same multiset of rows.
// The terminal of a table is Π_i (challenge - symbols[i]).
type PermutationArgument[E any] struct {
	a arith[E]
}

// ComputeTerminal returns initial · Π_i (challenge - symbols[i]).
func (p PermutationArgument[E]) ComputeTerminal(symbols []E, initial E, challenge E) E {
	result := initial
	for _, symbol := range symbols {
		result = p.a.Mul(result, p.a.Sub(challenge, symbol))
	}
	return result
}

// ComputeRunningProduct returns the running product column of a table.
func (p PermutationArgument[E]) ComputeRunningProduct(symbols []E, initial E, challenge E) []E {
	out := make([]E, len(symbols))
	acc := initial
	for i, symbol := range symbols {
		acc = p.a.Mul(acc, p.a.Sub(challenge, symbol))
		out[i] = acc
	}
	return out
}

// LookupArgument proves every queried symbol appears in a table, using the
// log-derivative Σ_q 1/(challenge - q) = Σ_t m_t/(challenge - t).
type LookupArgument[E any] struct {
	a arith[E]
}

// ComputeTerminal returns Σ_i 1/(challenge - symbols[i]).
func (l LookupArgument[E]) ComputeTerminal(symbols []E, challenge E) (E, error) {
	ones := make([]uint64, len(symbols))
	for i := range ones {
		ones[i] = 1
	}
	return l.ComputeWeightedTerminal(symbols, ones, challenge)
}

// ComputeWeightedTerminal returns Σ_i m_i/(challenge - symbols[i]).
func (l LookupArgument[E]) ComputeWeightedTerminal(symbols []E, multiplicities []uint64, challenge E) (E, error) {
	if len(symbols) != len(multiplicities) {
		return l.a.Zero(), fmt.Errorf("symbols length %d does not match multiplicities length %d", len(symbols), len(multiplicities))
	}
	denominators := make([]E, len(symbols))
	for i, symbol := range symbols {
		denominators[i] = l.a.Sub(challenge, symbol)
		if l.a.IsZero(denominators[i]) {
			return l.a.Zero(), fmt.Errorf("cannot compute log derivative at index %d: challenge equals symbol", i)
		}
	}
	inverses := core.BatchInverse[E](l.a.Field, denominators)
	result := l.a.Zero()
	for i, inv := range inverses {
		result = l.a.Add(result, l.a.Mul(l.a.u(multiplicities[i]), inv))
	}
	return result, nil
}

// Challenges are the verifier randomness of the cross-table arguments.
type Challenges[E any] struct {
	// Alpha compresses tuples into symbols
	Alpha E
	// Beta is the log-derivative point of lookups
	Beta E
	// Gamma is the evaluation point of permutations
	Gamma E
}

// NewChallenges squeezes the argument challenges from a transcript that has
// absorbed the slice instances.
func NewChallenges[E any](f core.Field[E], channel *utils.Channel) Challenges[E] {
	squeeze := func(label string) E {
		return f.FromUint256(uint256.MustFromBig(channel.ReceiveChallenge(label, f.Modulus())))
	}
	return Challenges[E]{
		Alpha: squeeze("alpha"),
		Beta:  squeeze("beta"),
		Gamma: squeeze("gamma"),
	}
}
