package vybiumzkwasm

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/checksum"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/host"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/prover"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/slices"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// Session proves one recorded execution. A session is configured once,
// loaded with a trace bundle and then set up, dry run or proven.
type Session struct {
	config   *utils.Config
	strategy circuits.PostImageStrategy

	bundle  *slices.TraceBundle
	circuit *circuits.Config
	env     *host.Environment
	params  *checksum.Params
}

// LoadInfo summarizes the program and circuit of a session. It is written
// as {name}.loadinfo.json by Setup.
type LoadInfo struct {
	Name               string   `json:"name"`
	K                  uint32   `json:"k"`
	Field              string   `json:"field"`
	Strategy           string   `json:"strategy"`
	Entry              string   `json:"entry"`
	ProgramDigest      string   `json:"program_digest"`
	Functions          int      `json:"functions"`
	Instructions       int      `json:"instructions"`
	InitialMemoryPages uint32   `json:"initial_memory_pages"`
	MaximalMemoryPages uint32   `json:"maximal_memory_pages"`
	Steps              int      `json:"steps"`
	SliceCapability    int      `json:"slice_capability"`
	HostFunctions      []string `json:"host_functions"`
}

// Report is the outcome of a dry run.
type Report struct {
	Slices    int      `json:"slices"`
	Steps     int      `json:"steps"`
	Checksums []string `json:"checksums"`
}

// NewSession validates config and creates a session over a copy of it.
func NewSession(config *utils.Config) (*Session, error) {
	if config == nil {
		return nil, newError(ErrInvalidConfig, "config is nil", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, newError(ErrInvalidConfig, "invalid session config", err)
	}
	strategy, err := circuits.NewPostImageStrategy(config.Strategy)
	if err != nil {
		return nil, newError(ErrInvalidConfig, "invalid post image strategy", err)
	}
	return &Session{config: config.Clone(), strategy: strategy}, nil
}

// Config returns a copy of the session configuration.
func (s *Session) Config() *utils.Config { return s.config.Clone() }

// Load reads a trace bundle from path and loads it.
func (s *Session) Load(path string) error {
	bundle, err := slices.LoadTraceBundle(path)
	if err != nil {
		return newError(ErrInvalidTrace, "failed to load trace bundle", err)
	}
	return s.LoadBundle(bundle)
}

// LoadBundle checks the entry function of the bundle, sizes the circuit for
// its memory configuration and replays its host calls against the session
// inputs.
func (s *Session) LoadBundle(bundle *slices.TraceBundle) error {
	if bundle == nil || bundle.Compilation == nil {
		return newError(ErrInvalidTrace, "trace bundle has no compilation table", nil)
	}
	c := bundle.Compilation
	if err := c.PreCheck(); err != nil {
		return newError(ErrInvalidTrace, "entry function cannot start a session", err)
	}
	circuit, err := circuits.NewConfig(s.config.K, c.ConfigureTable)
	if err != nil {
		return classify(ErrInvalidConfig, "circuit does not fit the program", err)
	}

	registry, err := host.NewRegistry(s.config.HostFunctions)
	if err != nil {
		return newError(ErrInvalidConfig, "invalid host functions", err)
	}
	env := host.NewEnvironment(registry, s.config.PublicInputs, s.config.PrivateInputs, s.config.ContextInputs)
	if err := env.ReplayAll(bundle.Steps); err != nil {
		return newError(ErrHostReplay, "host calls do not match the inputs", err)
	}

	s.bundle = bundle
	s.circuit = circuit
	s.env = env
	log.Info(log.SliceModule, "Trace loaded",
		"steps", len(bundle.Steps),
		"k", circuit.K(),
		"pages", circuit.MaximalPages(),
		"strategy", s.strategy.Name())
	return nil
}

// Environment returns the host environment after replay.
func (s *Session) Environment() *host.Environment { return s.env }

func (s *Session) loaded() error {
	if s.bundle == nil {
		return newError(ErrNotLoaded, "no trace bundle loaded", nil)
	}
	return nil
}

// Params returns the checksum parameters of the session size. They are read
// from the params directory and created there when missing; without a params
// directory they are derived in memory.
func (s *Session) Params() (*checksum.Params, error) {
	if s.params != nil {
		return s.params, nil
	}
	var (
		params *checksum.Params
		err    error
	)
	if s.config.ParamsDir == "" {
		params, err = checksum.Setup(s.config.K, checksum.DefaultSeed)
	} else {
		params, err = checksum.LoadOrSetup(s.config.ParamsDir, s.config.K, checksum.DefaultSeed)
	}
	if err != nil {
		return nil, newError(ErrSetup, "failed to prepare parameters", err)
	}
	s.params = params
	return params, nil
}

// ImageChecksum commits the image of the first slice.
func (s *Session) ImageChecksum() (checksum.Checksum, error) {
	if err := s.loaded(); err != nil {
		return checksum.Checksum{}, err
	}
	params, err := s.Params()
	if err != nil {
		return checksum.Checksum{}, err
	}
	image, err := s.encodedPreImage()
	if err != nil {
		return checksum.Checksum{}, err
	}
	sum, err := params.Commit(image)
	if err != nil {
		return checksum.Checksum{}, newError(ErrSetup, "failed to commit image", err)
	}
	return sum, nil
}

func (s *Session) encodedPreImage() (*circuits.EncodedImage, error) {
	image, err := circuits.EncodeImage(s.bundle.Compilation.PreImage(), s.circuit)
	if err != nil {
		return nil, classify(ErrInvalidTrace, "failed to encode image", err)
	}
	return image, nil
}

// LoadInfo describes the loaded program.
func (s *Session) LoadInfo() (*LoadInfo, error) {
	if err := s.loaded(); err != nil {
		return nil, err
	}
	image, err := s.encodedPreImage()
	if err != nil {
		return nil, err
	}
	c := s.bundle.Compilation
	digest := core.ProgramDigest(image.Program())
	entry := c.Entry
	if entry == "" {
		entry = specs.DefaultEntry
	}
	return &LoadInfo{
		Name:               s.config.Name,
		K:                  s.circuit.K(),
		Field:              s.config.Field,
		Strategy:           s.strategy.Name(),
		Entry:              entry,
		ProgramDigest:      hexutil.EncodeUint64(digest.Value()),
		Functions:          len(c.Functions),
		Instructions:       c.ITable.Len(),
		InitialMemoryPages: c.ConfigureTable.InitMemoryPages,
		MaximalMemoryPages: s.circuit.MaximalPages(),
		Steps:              len(s.bundle.Steps),
		SliceCapability:    circuits.ComputeSliceCapability(s.circuit.K()),
		HostFunctions:      s.config.HostFunctions,
	}, nil
}

func (s *Session) backend(opts prover.Options) (prover.Backend, error) {
	params, err := s.Params()
	if err != nil {
		return nil, err
	}
	opts.Name = s.config.Name
	_, opts.Continuation = s.strategy.(circuits.ContinuationStrategy)
	b, err := prover.New(s.config.Field, s.circuit, params, opts)
	if err != nil {
		return nil, newError(ErrInvalidConfig, "failed to create backend", err)
	}
	return b, nil
}

// Setup writes the parameters, the session config, the load info and the
// circuit descriptions.
func (s *Session) Setup(ctx context.Context) error {
	if err := s.loaded(); err != nil {
		return err
	}
	b, err := s.backend(prover.Options{OutputDir: s.config.OutputDir})
	if err != nil {
		return err
	}
	if err := b.Setup(ctx); err != nil {
		return newError(ErrSetup, "failed to write circuit", err)
	}
	if s.config.OutputDir == "" {
		return nil
	}
	info, err := s.LoadInfo()
	if err != nil {
		return err
	}
	if err := utils.WriteJSON(filepath.Join(s.config.OutputDir, utils.LoadInfoFileName(s.config.Name)), info); err != nil {
		return newError(ErrSetup, "failed to write load info", err)
	}
	if _, err := s.config.Save(s.config.OutputDir); err != nil {
		return newError(ErrSetup, "failed to save config", err)
	}
	log.Info(log.BackendModule, "Setup done", "name", s.config.Name, "digest", info.ProgramDigest)
	return nil
}

func (s *Session) openSliceBackend() (slices.SliceBackend, error) {
	switch s.config.Backend {
	case "leveldb":
		return slices.NewLevelDBBackend(s.config.BackendPath, s.config.CacheSize)
	case "pebble":
		return slices.NewPebbleBackend(s.config.BackendPath, s.config.CacheSize)
	default:
		return slices.NewInMemoryBackend(), nil
	}
}

// eachSlice slices the trace and visits every complete slice in order.
func (s *Session) eachSlice(fn func(index int, slice *specs.Slice) error) error {
	queue, err := s.openSliceBackend()
	if err != nil {
		return newError(ErrSliceBuild, "failed to open slice backend", err)
	}
	defer queue.Close()

	c := s.bundle.Compilation
	builder, err := slices.NewBuilder(s.circuit, queue, c.StaticFrameTable())
	if err != nil {
		return newError(ErrSliceBuild, "failed to create slice builder", err)
	}
	if err := builder.Consume(s.bundle.Source()); err != nil {
		return classify(ErrSliceBuild, "failed to slice trace", err)
	}
	iter, err := slices.NewSlices(s.circuit, c, queue, s.strategy)
	if err != nil {
		return classify(ErrSliceBuild, "failed to prepare slices", err)
	}
	return iter.ForEach(fn)
}

func (s *Session) dump(index int, slice *specs.Slice) error {
	dir := s.config.OutputDir
	if !s.config.DumpTables || dir == "" {
		return nil
	}
	files := []struct {
		path  string
		value any
	}{
		{utils.EventTableFileName(s.config.Name, index), slice.ETable},
		{utils.FrameTableFileName(s.config.Name, index), slice.FrameTable},
		{utils.ExternalHostTableFileName(index), slice.ExternalHostCallTable},
	}
	for _, f := range files {
		if err := utils.WriteJSON(filepath.Join(dir, f.path), f.value); err != nil {
			return fmt.Errorf("failed to dump slice %d: %w", index, err)
		}
	}
	return nil
}

// DryRun builds and checks every slice without writing proof artifacts.
func (s *Session) DryRun(ctx context.Context) (*Report, error) {
	if err := s.loaded(); err != nil {
		return nil, err
	}
	b, err := s.backend(prover.Options{})
	if err != nil {
		return nil, err
	}
	report := &Report{}
	err = s.eachSlice(func(index int, slice *specs.Slice) error {
		if err := s.dump(index, slice); err != nil {
			return err
		}
		proof, err := b.Prove(ctx, index, slice)
		if err != nil {
			return err
		}
		report.Slices++
		report.Steps += slice.ETable.Len()
		report.Checksums = append(report.Checksums, proof.PreChecksum)
		return nil
	})
	if err != nil {
		return nil, classify(ErrProofGeneration, "dry run failed", err)
	}
	log.Info(log.BackendModule, "Dry run passed", "slices", report.Slices, "steps", report.Steps)
	return report, nil
}

// Prove proves every slice and writes their instances and transcripts
// under the output directory.
func (s *Session) Prove(ctx context.Context, dumpWitness bool) ([]*prover.Proof, error) {
	if err := s.loaded(); err != nil {
		return nil, err
	}
	b, err := s.backend(prover.Options{OutputDir: s.config.OutputDir, DumpWitness: dumpWitness})
	if err != nil {
		return nil, err
	}
	var proofs []*prover.Proof
	err = s.eachSlice(func(index int, slice *specs.Slice) error {
		if err := s.dump(index, slice); err != nil {
			return err
		}
		proof, err := b.Prove(ctx, index, slice)
		if err != nil {
			return err
		}
		proofs = append(proofs, proof)
		return nil
	})
	if err != nil {
		return nil, classify(ErrProofGeneration, "failed to prove trace", err)
	}
	return proofs, nil
}
