package prover

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/checksum"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// CheckingBackend assigns and checks slice circuits over the field E.
type CheckingBackend[E any] struct {
	field  core.Field[E]
	config *circuits.Config
	params *checksum.Params
	opts   Options
}

// NewCheckingBackend creates a checking backend over f.
func NewCheckingBackend[E any](f core.Field[E], config *circuits.Config, params *checksum.Params, opts Options) *CheckingBackend[E] {
	return &CheckingBackend[E]{field: f, config: config, params: params, opts: opts}
}

func (b *CheckingBackend[E]) Name() string { return b.field.Name() }

// CircuitData describes the circuit every slice of a session is proven
// against.
type CircuitData struct {
	Field            string   `json:"field"`
	K                uint32   `json:"k"`
	Rows             int      `json:"rows"`
	UsableRows       int      `json:"usable_rows"`
	MaximalPages     uint32   `json:"maximal_pages"`
	EventCapacity    int      `json:"event_capacity"`
	MemoryCapacity   int      `json:"memory_capacity"`
	FrameCapacity    int      `json:"frame_capacity"`
	HostCallCapacity int      `json:"host_call_capacity"`
	Tables           []string `json:"tables"`
	LastSlice        bool     `json:"last_slice"`
}

func (b *CheckingBackend[E]) circuitData(last bool) CircuitData {
	data := CircuitData{
		Field:            b.field.Name(),
		K:                b.config.K(),
		Rows:             b.config.Rows(),
		UsableRows:       b.config.UsableRows(),
		MaximalPages:     b.config.MaximalPages(),
		EventCapacity:    b.config.EventCapacity(),
		MemoryCapacity:   b.config.MemoryCapacity(),
		FrameCapacity:    b.config.FrameCapacity(),
		HostCallCapacity: b.config.HostCallCapacity(),
		LastSlice:        last,
	}
	for id := circuits.EventTable; id <= circuits.HostCallTable; id++ {
		if id == circuits.PostImageTable && !b.opts.Continuation {
			continue
		}
		data.Tables = append(data.Tables, id.String())
	}
	return data
}

// Setup writes the finalized circuit description and, for continuation
// sessions, the ongoing one proving every slice but the last.
func (b *CheckingBackend[E]) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.opts.OutputDir == "" {
		return nil
	}
	if b.opts.Continuation {
		path := filepath.Join(b.opts.OutputDir, utils.CircuitOngoingFileName(b.opts.Name))
		if err := utils.WriteJSON(path, b.circuitData(false)); err != nil {
			return err
		}
	}
	path := filepath.Join(b.opts.OutputDir, utils.CircuitFinalizedFileName(b.opts.Name))
	if err := utils.WriteJSON(path, b.circuitData(true)); err != nil {
		return err
	}
	log.Info(log.BackendModule, "Circuit written", "field", b.field.Name(), "k", b.config.K())
	return nil
}

func (b *CheckingBackend[E]) transcript(index int, pre checksum.Checksum, post *checksum.Checksum) *utils.Channel {
	channel := utils.NewChannel()
	var header [12]byte
	binary.BigEndian.PutUint32(header[0:], b.config.K())
	binary.BigEndian.PutUint64(header[4:], uint64(index))
	channel.Send("slice", header[:])

	p := pre.Point()
	channel.Send("pre_image", p.Marshal())
	if post != nil {
		p := post.Point()
		channel.Send("post_image", p.Marshal())
	}
	return channel
}

// Prove assigns the slice circuit, checks it and writes its instances and
// transcript.
func (b *CheckingBackend[E]) Prove(ctx context.Context, index int, slice *specs.Slice) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	circuit, err := circuits.BuildCircuit(b.field, b.config, slice)
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", index, err)
	}

	pre, err := b.params.Commit(circuit.PreImage())
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", index, err)
	}
	var post *checksum.Checksum
	if image := circuit.EncodedPostImage(); image != nil {
		c, err := b.params.Commit(image)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", index, err)
		}
		post = &c
	}

	channel := b.transcript(index, pre, post)
	if err := circuit.Check(circuits.NewChallenges(b.field, channel)); err != nil {
		return nil, fmt.Errorf("slice %d: %w", index, err)
	}

	proof := &Proof{
		Index:       index,
		Field:       b.field.Name(),
		K:           b.config.K(),
		PreChecksum: pre.Hex(),
		Transcript:  channel.Proof(),
		IsLastSlice: slice.IsLastSlice,
	}
	instances := pre.Instances()
	if post != nil {
		proof.PostChecksum = post.Hex()
		instances = append(instances, post.Instances()...)
	}
	for _, v := range instances {
		proof.Instances = append(proof.Instances, hexutil.EncodeBig(v))
	}

	if err := b.write(index, proof, circuit); err != nil {
		return nil, err
	}
	log.Info(log.BackendModule, "Slice proven", "index", index, "steps", slice.ETable.Len(), "pre", proof.PreChecksum)
	return proof, nil
}

// Witness is the assignment of one slice, trailing zero rows trimmed.
type Witness struct {
	Index  int            `json:"index"`
	Tables []WitnessTable `json:"tables"`
}

// WitnessTable is the assignment of one table.
type WitnessTable struct {
	Name    string              `json:"name"`
	Height  int                 `json:"height"`
	Columns map[string][]string `json:"columns"`
}

func (b *CheckingBackend[E]) witness(index int, circuit *circuits.Circuit[E]) *Witness {
	w := &Witness{Index: index}
	for _, t := range circuit.Tables() {
		table := WitnessTable{Name: t.GetID().String(), Height: t.GetHeight(), Columns: make(map[string][]string)}
		for _, col := range t.GetColumns() {
			n := len(col.Values)
			for n > 0 && b.field.IsZero(col.Values[n-1]) {
				n--
			}
			values := make([]string, n)
			for i, v := range col.Values[:n] {
				bytes := b.field.Bytes(v)
				values[i] = hexutil.Encode(bytes[:])
			}
			table.Columns[col.Name] = values
		}
		w.Tables = append(w.Tables, table)
	}
	return w
}

func (b *CheckingBackend[E]) write(index int, proof *Proof, circuit *circuits.Circuit[E]) error {
	if b.opts.OutputDir == "" {
		return nil
	}
	dir := b.opts.OutputDir
	if err := utils.WriteJSON(filepath.Join(dir, utils.InstanceFileName(b.opts.Name, index)), proof.Instances); err != nil {
		return err
	}
	if err := utils.WriteJSON(filepath.Join(dir, utils.TranscriptFileName(b.opts.Name, index)), proof); err != nil {
		return err
	}
	if b.opts.DumpWitness {
		path := filepath.Join(dir, utils.WitnessFileName(b.opts.Name, index))
		if err := utils.WriteJSON(path, b.witness(index, circuit)); err != nil {
			return err
		}
	}
	return nil
}
