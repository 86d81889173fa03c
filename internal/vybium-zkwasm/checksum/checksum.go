// Package checksum commits images to the K-sized BN254 SRS. The checksum of
// an image is Σ img_i·G_i over its non-zero rows, so two images share a
// checksum exactly when they agree row for row.
package checksum

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// DefaultSeed is the setup randomness used when none is given. Parameters
// derived from a public seed are for testing only.
var DefaultSeed = []byte("vybium-zkwasm")

// Params is the SRS of one circuit size.
type Params struct {
	k   uint32
	srs *kzg.SRS
}

// Setup derives the SRS of 2^k points from seed.
func Setup(k uint32, seed []byte) (*Params, error) {
	h := core.Keccak256(seed, []byte(utils.ParamsFileName(k)))
	alpha := new(big.Int).SetBytes(h[:])
	alpha.Mod(alpha, fr.Modulus())
	if alpha.Sign() == 0 {
		alpha.SetInt64(1)
	}
	srs, err := kzg.NewSRS(uint64(1)<<k, alpha)
	if err != nil {
		return nil, fmt.Errorf("failed to create srs for k=%d: %w", k, err)
	}
	log.Info(log.ImageModule, "Parameters created", "k", k, "points", len(srs.Pk.G1))
	return &Params{k: k, srs: srs}, nil
}

// K returns the circuit size of the parameters.
func (p *Params) K() uint32 { return p.k }

// Size returns the number of SRS points.
func (p *Params) Size() int { return len(p.srs.Pk.G1) }

// SRS returns the underlying structured reference string.
func (p *Params) SRS() *kzg.SRS { return p.srs }

// Save writes the parameters as K{k}.params in dir.
func (p *Params) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create params dir: %w", err)
	}
	path := filepath.Join(dir, utils.ParamsFileName(p.k))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create params file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := p.srs.WriteRawTo(w); err != nil {
		return "", fmt.Errorf("failed to write params: %w", err)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to write params: %w", err)
	}
	return path, nil
}

// Load reads K{k}.params from dir.
func Load(dir string, k uint32) (*Params, error) {
	f, err := os.Open(filepath.Join(dir, utils.ParamsFileName(k)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var srs kzg.SRS
	if _, err := srs.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", utils.ParamsFileName(k), err)
	}
	if len(srs.Pk.G1) != 1<<k {
		return nil, fmt.Errorf("%s holds %d points, want %d", utils.ParamsFileName(k), len(srs.Pk.G1), 1<<k)
	}
	return &Params{k: k, srs: &srs}, nil
}

// LoadOrSetup reads the parameters of size k from dir, creating and saving
// them first when the file does not exist.
func LoadOrSetup(dir string, k uint32, seed []byte) (*Params, error) {
	p, err := Load(dir, k)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if p, err = Setup(k, seed); err != nil {
		return nil, err
	}
	if _, err := p.Save(dir); err != nil {
		return nil, err
	}
	return p, nil
}

// Checksum is the commitment of one image.
type Checksum struct {
	point bn254.G1Affine
}

// Equal reports whether two checksums commit the same image.
func (c Checksum) Equal(o Checksum) bool { return c.point.Equal(&o.point) }

// Point returns the commitment as a curve point.
func (c Checksum) Point() bn254.G1Affine { return c.point }

// Hex returns the compressed point encoding.
func (c Checksum) Hex() string {
	b := c.point.Bytes()
	return hexutil.Encode(b[:])
}

// Instances returns the affine coordinates, the public instances a proof of
// the slice exposes for this image.
func (c Checksum) Instances() []*big.Int {
	var x, y big.Int
	c.point.X.BigInt(&x)
	c.point.Y.BigInt(&y)
	return []*big.Int{&x, &y}
}

func (c Checksum) String() string { return c.Hex() }

func toScalar(v *uint256.Int) fr.Element {
	var e fr.Element
	b := v.Bytes32()
	e.SetBytes(b[:])
	return e
}

// Commit computes the checksum of an image.
func (p *Params) Commit(image *circuits.EncodedImage) (Checksum, error) {
	if image.Len() > p.Size() {
		return Checksum{}, fmt.Errorf("image has %d rows, params of k=%d hold %d", image.Len(), p.k, p.Size())
	}
	points := make([]bn254.G1Affine, 0, image.Len())
	scalars := make([]fr.Element, 0, image.Len())
	err := image.ForEach(func(i int, v *uint256.Int) error {
		points = append(points, p.srs.Pk.G1[i])
		scalars = append(scalars, toScalar(v))
		return nil
	})
	if err != nil {
		return Checksum{}, err
	}

	var c Checksum
	if len(points) == 0 {
		return c, nil
	}
	if _, err := c.point.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return Checksum{}, fmt.Errorf("failed to commit image: %w", err)
	}
	log.Debug(log.ImageModule, "Image committed", "rows", len(points), "checksum", c.Hex())
	return c, nil
}
