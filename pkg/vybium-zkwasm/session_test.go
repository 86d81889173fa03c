package vybiumzkwasm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/slices"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

func testCompilation() *specs.CompilationTable {
	return &specs.CompilationTable{
		ITable: specs.NewInstructionTable([][]specs.Opcode{
			{},
			{specs.NewCall(2), specs.NewReturn(0, nil)},
			{specs.NewConst(specs.I64, 40), specs.NewDrop(), specs.NewReturn(0, nil)},
		}),
		IMTable:        specs.NewInitMemoryTable(nil),
		ConfigureTable: specs.ConfigureTable{InitMemoryPages: 1, MaximalMemoryPages: 2},
		Functions:      []specs.FunctionSignature{{}, {}, {}},
		Exports:        []specs.Export{{Name: "zkmain", Fid: 1}},
	}
}

func testBundle() *slices.TraceBundle {
	c := testCompilation()
	state := c.InitializationState()
	var steps []specs.EventTableEntry
	step := func(info specs.StepInfo) {
		steps = append(steps, specs.EventTableEntry{
			Eid: state.Eid, Fid: state.Fid, Iid: state.Iid, Sp: state.Sp,
			AllocatedMemoryPages: state.InitialMemoryPages, LastJumpEid: state.FrameID,
			StepInfo: info,
		})
		state = state.Step(&steps[len(steps)-1])
	}
	step(specs.CallInfo{Index: 2})
	step(specs.ConstInfo{VType: specs.I64, Value: 40})
	step(specs.DropInfo{})
	step(specs.ReturnInfo{})
	state.Fid, state.Iid, state.FrameID = 1, 1, 0
	step(specs.ReturnInfo{})
	return &slices.TraceBundle{Compilation: c, Steps: steps}
}

func testConfig(t *testing.T, params string) *utils.Config {
	t.Helper()
	return utils.DefaultConfig().
		WithName("test").
		WithParamsDir(params).
		WithOutputDir(t.TempDir())
}

func TestZkWasmError(t *testing.T) {
	cause := errors.New("boom")
	err := newError(ErrSetup, "failed", cause)

	require.ErrorIs(t, err, Code(ErrSetup))
	require.NotErrorIs(t, err, Code(ErrConstraint))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "setup")
	require.Contains(t, err.Error(), "boom")

	t.Run("classify", func(t *testing.T) {
		capErr := &circuits.CapacityError{Kind: circuits.CapacityEventRows, Count: 2, Limit: 1, K: 18}
		require.ErrorIs(t, classify(ErrSliceBuild, "x", capErr), Code(ErrCapacity))
		multi := &circuits.CapacityError{Kind: circuits.CapacityMultipleSlices, Count: 3, Limit: 1, K: 18}
		require.ErrorIs(t, classify(ErrSliceBuild, "x", multi), Code(ErrCapacity))
		require.ErrorIs(t, classify(ErrSliceBuild, "x", multi), circuits.ErrMultipleSlices)
		cerr := &circuits.ConstraintError{Table: circuits.EventTable, Name: "gate"}
		require.ErrorIs(t, classify(ErrProofGeneration, "x", cerr), Code(ErrConstraint))
		require.ErrorIs(t, classify(ErrProofGeneration, "x", cause), Code(ErrProofGeneration))
		require.Same(t, err, classify(ErrUnknown, "x", err))
	})
}

func TestNewSession(t *testing.T) {
	_, err := NewSession(nil)
	require.ErrorIs(t, err, Code(ErrInvalidConfig))

	_, err = NewSession(utils.DefaultConfig().WithK(12))
	require.ErrorIs(t, err, Code(ErrInvalidConfig))

	config := utils.DefaultConfig()
	s, err := NewSession(config)
	require.NoError(t, err)
	config.Name = "changed"
	require.Equal(t, "zkwasm", s.Config().Name)

	_, err = s.DryRun(context.Background())
	require.ErrorIs(t, err, Code(ErrNotLoaded))
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	params := t.TempDir()

	t.Run("setup and prove", func(t *testing.T) {
		config := testConfig(t, params)
		config.DumpTables = true
		s, err := NewSession(config)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "trace.json")
		require.NoError(t, utils.WriteJSON(path, testBundle()))
		require.NoError(t, s.Load(path))
		require.NoError(t, s.Setup(ctx))

		dir := config.OutputDir
		require.FileExists(t, filepath.Join(params, utils.ParamsFileName(config.K)))
		require.FileExists(t, filepath.Join(dir, utils.ConfigFileName("test")))
		require.FileExists(t, filepath.Join(dir, utils.CircuitFinalizedFileName("test")))

		var info LoadInfo
		require.NoError(t, utils.ReadJSON(filepath.Join(dir, utils.LoadInfoFileName("test")), &info))
		require.Equal(t, specs.DefaultEntry, info.Entry)
		require.Equal(t, 5, info.Instructions)
		require.Equal(t, 5, info.Steps)
		require.NotEmpty(t, info.ProgramDigest)

		proofs, err := s.Prove(ctx, false)
		require.NoError(t, err)
		require.Len(t, proofs, 1)
		require.True(t, proofs[0].IsLastSlice)
		require.FileExists(t, filepath.Join(dir, utils.InstanceFileName("test", 0)))
		require.FileExists(t, filepath.Join(dir, utils.EventTableFileName("test", 0)))
		require.FileExists(t, filepath.Join(dir, utils.FrameTableFileName("test", 0)))
		require.FileExists(t, filepath.Join(dir, utils.ExternalHostTableFileName(0)))

		sum, err := s.ImageChecksum()
		require.NoError(t, err)
		require.Equal(t, proofs[0].PreChecksum, sum.Hex())
	})

	for _, backend := range []string{"leveldb", "pebble"} {
		t.Run("dry run on "+backend, func(t *testing.T) {
			config := testConfig(t, params).WithBackend(backend, "").WithStrategy("continuation")
			s, err := NewSession(config)
			require.NoError(t, err)
			require.NoError(t, s.LoadBundle(testBundle()))

			report, err := s.DryRun(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, report.Slices)
			require.Equal(t, 5, report.Steps)
			require.Len(t, report.Checksums, 1)
		})
	}

	t.Run("tampered trace", func(t *testing.T) {
		bundle := testBundle()
		bundle.Steps[1].StepInfo = specs.ConstInfo{VType: specs.I64, Value: 41}
		s, err := NewSession(testConfig(t, params))
		require.NoError(t, err)
		require.NoError(t, s.LoadBundle(bundle))

		_, err = s.DryRun(ctx)
		require.ErrorIs(t, err, Code(ErrConstraint))
		var cerr *circuits.ConstraintError
		require.True(t, errors.As(err, &cerr), "got %v", err)
	})
}

func TestSessionLoadErrors(t *testing.T) {
	newSession := func(t *testing.T) *Session {
		s, err := NewSession(utils.DefaultConfig().WithParamsDir(""))
		require.NoError(t, err)
		return s
	}

	t.Run("missing file", func(t *testing.T) {
		err := newSession(t).Load(filepath.Join(t.TempDir(), "missing.json"))
		require.ErrorIs(t, err, Code(ErrInvalidTrace))
	})

	t.Run("entry not exported", func(t *testing.T) {
		bundle := testBundle()
		bundle.Compilation.Exports = nil
		err := newSession(t).LoadBundle(bundle)
		require.ErrorIs(t, err, Code(ErrInvalidTrace))
		require.ErrorIs(t, err, specs.ErrEntryMissing)
	})

	t.Run("memory does not fit", func(t *testing.T) {
		bundle := testBundle()
		bundle.Compilation.ConfigureTable = specs.ConfigureTable{InitMemoryPages: 1 << 10, MaximalMemoryPages: 1 << 10}
		err := newSession(t).LoadBundle(bundle)
		require.ErrorIs(t, err, Code(ErrCapacity))
	})

	t.Run("host call without input", func(t *testing.T) {
		bundle := testBundle()
		arg := uint64(0)
		bundle.Steps = append(bundle.Steps, specs.EventTableEntry{
			Eid: 6, Fid: 1, Iid: 1, Sp: 4095,
			StepInfo: specs.CallHostInfo{
				Plugin: specs.Require, Name: specs.HostFnRequire,
				Params: []specs.VarType{specs.I32}, Args: []uint64{arg},
			},
		})
		err := newSession(t).LoadBundle(bundle)
		require.ErrorIs(t, err, Code(ErrHostReplay))
	})
}
