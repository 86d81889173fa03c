package prover

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/checksum"
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

func testTrace(c *specs.CompilationTable) []specs.EventTableEntry {
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
	return steps
}

func testSlices(t *testing.T, config *circuits.Config, strategy circuits.PostImageStrategy) *slices.Slices {
	t.Helper()
	c := testCompilation()
	backend := slices.NewInMemoryBackend()
	builder, err := slices.NewBuilder(config, backend, c.StaticFrameTable())
	require.NoError(t, err)
	require.NoError(t, builder.Consume(slices.NewStepSource(testTrace(c))))
	s, err := slices.NewSlices(config, c, backend, strategy)
	require.NoError(t, err)
	return s
}

func TestCheckingBackend(t *testing.T) {
	config, err := circuits.NewConfig(circuits.MinK, testCompilation().ConfigureTable)
	require.NoError(t, err)
	params, err := checksum.Setup(circuits.MinK, checksum.DefaultSeed)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("trivial", func(t *testing.T) {
		dir := t.TempDir()
		backend, err := New("bn254", config, params, Options{Name: "test", OutputDir: dir, DumpWitness: true})
		require.NoError(t, err)
		require.Equal(t, "bn254", backend.Name())
		require.NoError(t, backend.Setup(ctx))
		require.FileExists(t, filepath.Join(dir, utils.CircuitFinalizedFileName("test")))
		require.NoFileExists(t, filepath.Join(dir, utils.CircuitOngoingFileName("test")))

		var proofs []*Proof
		err = testSlices(t, config, circuits.TrivialStrategy{}).ForEach(func(i int, s *specs.Slice) error {
			proof, err := backend.Prove(ctx, i, s)
			proofs = append(proofs, proof)
			return err
		})
		require.NoError(t, err)
		require.Len(t, proofs, 1)

		proof := proofs[0]
		require.True(t, proof.IsLastSlice)
		require.Empty(t, proof.PostChecksum)
		require.Len(t, proof.Instances, 2)
		require.NotEmpty(t, proof.Transcript)

		var instances []string
		require.NoError(t, utils.ReadJSON(filepath.Join(dir, utils.InstanceFileName("test", 0)), &instances))
		require.Equal(t, proof.Instances, instances)

		var witness Witness
		require.NoError(t, utils.ReadJSON(filepath.Join(dir, utils.WitnessFileName("test", 0)), &witness))
		require.NotEmpty(t, witness.Tables)
		require.Equal(t, circuits.EventTable.String(), witness.Tables[0].Name)
	})

	t.Run("continuation", func(t *testing.T) {
		dir := t.TempDir()
		backend, err := New("bls12-381", config, params, Options{Name: "test", OutputDir: dir, Continuation: true})
		require.NoError(t, err)
		require.NoError(t, backend.Setup(ctx))

		var data CircuitData
		require.NoError(t, utils.ReadJSON(filepath.Join(dir, utils.CircuitOngoingFileName("test")), &data))
		require.False(t, data.LastSlice)
		require.Contains(t, data.Tables, circuits.PostImageTable.String())

		s := testSlices(t, config, circuits.ContinuationStrategy{})
		slice, err := s.Next()
		require.NoError(t, err)
		proof, err := backend.Prove(ctx, 0, slice)
		require.NoError(t, err)
		require.NotEmpty(t, proof.PostChecksum)
		require.NotEqual(t, proof.PreChecksum, proof.PostChecksum, "the post image carries the final state")
		require.Len(t, proof.Instances, 4)
	})

	t.Run("tampered slice", func(t *testing.T) {
		backend, err := New("bn254", config, params, Options{})
		require.NoError(t, err)
		slice, err := testSlices(t, config, circuits.TrivialStrategy{}).Next()
		require.NoError(t, err)
		slice.ETable.Entries[1].StepInfo = specs.ConstInfo{VType: specs.I64, Value: 41}
		_, err = backend.Prove(ctx, 0, slice)
		var cerr *circuits.ConstraintError
		require.True(t, errors.As(err, &cerr), "got %v", err)
	})

	t.Run("cancelled", func(t *testing.T) {
		backend, err := New("bn254", config, params, Options{})
		require.NoError(t, err)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = backend.Prove(cancelled, 0, &specs.Slice{})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("bad arguments", func(t *testing.T) {
		_, err := New("goldilocks", config, params, Options{})
		require.ErrorIs(t, err, ErrUnknownField)
		_, err = New("bn254", nil, params, Options{})
		require.ErrorIs(t, err, circuits.ErrConfigNotSet)
	})
}
