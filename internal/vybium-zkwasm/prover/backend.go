// Package prover turns slices into proof artifacts. The checking backend
// assigns every table of a slice, derives the argument challenges from a
// transcript bound to the slice checksums and checks the circuit under them.
package prover

import (
	"context"
	"errors"
	"fmt"

	bls "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	bn "github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/checksum"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// ErrUnknownField is returned for a field name no backend supports.
var ErrUnknownField = errors.New("unknown field")

// Backend proves the slices of one session.
type Backend interface {
	// Name returns the field the backend works over
	Name() string

	// Setup writes the circuit descriptions of the session
	Setup(ctx context.Context) error

	// Prove checks one slice and writes its artifacts
	Prove(ctx context.Context, index int, slice *specs.Slice) (*Proof, error)
}

// Options configure the artifacts a backend writes.
type Options struct {
	// Name prefixes every artifact
	Name string

	// OutputDir receives the artifacts, nothing is written when empty
	OutputDir string

	// Continuation selects the ongoing/finalized circuit pair
	Continuation bool

	// DumpWitness writes the assigned columns of every slice
	DumpWitness bool
}

// Proof is the result of proving one slice.
type Proof struct {
	Index        int      `json:"index"`
	Field        string   `json:"field"`
	K            uint32   `json:"k"`
	PreChecksum  string   `json:"pre_checksum"`
	PostChecksum string   `json:"post_checksum,omitempty"`
	Instances    []string `json:"instances"`
	Transcript   []string `json:"transcript"`
	IsLastSlice  bool     `json:"is_last_slice"`
}

// New returns the checking backend over the named field.
func New(field string, config *circuits.Config, params *checksum.Params, opts Options) (Backend, error) {
	if config == nil {
		return nil, circuits.ErrConfigNotSet
	}
	if params == nil || params.K() != config.K() {
		return nil, fmt.Errorf("params do not match circuit size k=%d", config.K())
	}
	switch field {
	case core.NewBN254().Name():
		return NewCheckingBackend[bn.Element](core.NewBN254(), config, params, opts), nil
	case core.NewBLS12381().Name():
		return NewCheckingBackend[bls.Element](core.NewBLS12381(), config, params, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}
