package circuits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// zkmain calls fid 2, which pushes a constant, copies it with local.get,
// drops both and returns.
func testCompilation() *specs.CompilationTable {
	return &specs.CompilationTable{
		ITable: specs.NewInstructionTable([][]specs.Opcode{
			{},
			{specs.NewCall(2), specs.NewReturn(0, nil)},
			{
				specs.NewConst(specs.I32, 7),
				specs.NewLocalGet(specs.I32, 1),
				specs.NewDrop(),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			},
		}),
		IMTable:        specs.NewInitMemoryTable(nil),
		ConfigureTable: specs.ConfigureTable{InitMemoryPages: 1, MaximalMemoryPages: 2},
		Functions:      []specs.FunctionSignature{{}, {}, {}},
		Exports:        []specs.Export{{Name: "zkmain", Fid: 1}},
	}
}

type recorder struct {
	state specs.InitializationState
	steps []specs.EventTableEntry
}

func (r *recorder) step(info specs.StepInfo) {
	r.steps = append(r.steps, specs.EventTableEntry{
		Eid:                  r.state.Eid,
		Fid:                  r.state.Fid,
		Iid:                  r.state.Iid,
		Sp:                   r.state.Sp,
		AllocatedMemoryPages: r.state.InitialMemoryPages,
		LastJumpEid:          r.state.FrameID,
		StepInfo:             info,
	})
	r.state = r.state.Step(&r.steps[len(r.steps)-1])
}

func testTrace(c *specs.CompilationTable) []specs.EventTableEntry {
	r := &recorder{state: c.InitializationState()}
	r.step(specs.CallInfo{Index: 2})
	r.step(specs.ConstInfo{VType: specs.I32, Value: 7})
	r.step(specs.LocalGetInfo{VType: specs.I32, Depth: 1, Value: 7})
	r.step(specs.DropInfo{})
	r.step(specs.DropInfo{})
	r.step(specs.ReturnInfo{})
	r.state.Fid, r.state.Iid, r.state.FrameID = 1, 1, 0
	r.step(specs.ReturnInfo{})
	return r.steps
}

// testSlice assembles the single slice of a complete trace.
func testSlice(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
	t.Helper()
	etable := &specs.EventTable{Entries: steps}
	mtable, err := specs.BuildMemoryTable(etable, c.IMTable)
	require.NoError(t, err)

	jtable := &specs.FrameTable{}
	for _, f := range c.StaticFrameTable() {
		if f.Enable {
			row := f.Frame()
			row.Returned = true
			jtable.Static = append(jtable.Static, row)
		}
	}
	for _, e := range steps {
		if e.IsCall() {
			jtable.Called = append(jtable.Called, specs.FrameTableEntry{
				FrameID: e.Eid, NextFrameID: e.LastJumpEid, CalleeFid: e.Callee(),
				Fid: e.Fid, Iid: e.Iid + 1, Returned: true,
			})
		}
	}

	pre := c.InitializationState()
	return &specs.Slice{
		ETable:                  etable,
		FrameTable:              jtable,
		PostInheritedFrameTable: &specs.FrameTable{},
		ExternalHostCallTable:   specs.NewExternalHostCallTable(etable),
		MemoryTable:             mtable,
		PreImage:                c.PreImage(),
		InitializationState:     pre,
		PostInitializationState: pre.Step(&steps[len(steps)-1]),
		IsLastSlice:             true,
	}
}

func testConfig(t *testing.T, c *specs.CompilationTable) *Config {
	t.Helper()
	config, err := NewConfig(MinK, c.ConfigureTable)
	require.NoError(t, err)
	return config
}

func testChallenges[E any](f core.Field[E]) Challenges[E] {
	channel := utils.NewChannel()
	channel.Send("test", []byte{1})
	return NewChallenges(f, channel)
}

func checkSlice(t *testing.T, slice *specs.Slice, config *Config) error {
	t.Helper()
	f := core.NewBN254()
	circuit, err := BuildCircuit(f, config, slice)
	if err != nil {
		return err
	}
	return circuit.Check(testChallenges(f))
}

func TestCircuitAcceptsTrace(t *testing.T) {
	c := testCompilation()
	config := testConfig(t, c)
	slice := testSlice(t, c, testTrace(c))

	t.Run("bn254", func(t *testing.T) {
		f := core.NewBN254()
		circuit, err := BuildCircuit(f, config, slice)
		require.NoError(t, err)
		require.NoError(t, circuit.Check(testChallenges(f)))

		require.Equal(t, 8*StepBlockRows, circuit.Event.GetHeight(), "7 steps and the terminal block")
		require.Equal(t, 3, circuit.Memory.GetHeight())
		require.Equal(t, 2, circuit.Frame.GetHeight())
		require.Equal(t, 3, circuit.Event.frameQueries())
		require.Nil(t, circuit.PostImage)
		require.Len(t, circuit.Tables(), 7)
	})

	t.Run("bls12-381", func(t *testing.T) {
		f := core.NewBLS12381()
		circuit, err := BuildCircuit(f, config, slice)
		require.NoError(t, err)
		require.NoError(t, circuit.Check(testChallenges(f)))
	})
}

func TestCircuitRejectsTampering(t *testing.T) {
	c := testCompilation()
	config := testConfig(t, c)

	var cerr *ConstraintError

	t.Run("operand differs from the program", func(t *testing.T) {
		steps := testTrace(c)
		steps[1].StepInfo = specs.ConstInfo{VType: specs.I32, Value: 8}
		steps[2].StepInfo = specs.LocalGetInfo{VType: specs.I32, Depth: 1, Value: 8}
		err := checkSlice(t, testSlice(t, c, steps), config)
		require.True(t, errors.As(err, &cerr), "got %v", err)
		require.Equal(t, EventTable, cerr.Table)
	})

	t.Run("read returns a stale value", func(t *testing.T) {
		steps := testTrace(c)
		steps[2].StepInfo = specs.LocalGetInfo{VType: specs.I32, Depth: 1, Value: 9}
		err := checkSlice(t, testSlice(t, c, steps), config)
		require.True(t, errors.As(err, &cerr), "got %v", err)
		require.Equal(t, MemoryTable, cerr.Table)
	})

	t.Run("memory row removed", func(t *testing.T) {
		slice := testSlice(t, c, testTrace(c))
		slice.MemoryTable.Entries = slice.MemoryTable.Entries[1:]
		require.Error(t, checkSlice(t, slice, config))
	})

	t.Run("return to the wrong address", func(t *testing.T) {
		slice := testSlice(t, c, testTrace(c))
		slice.FrameTable.Called[0].Iid = 0
		err := checkSlice(t, slice, config)
		require.True(t, errors.As(err, &cerr), "got %v", err)
	})

	t.Run("wrong initialization state", func(t *testing.T) {
		slice := testSlice(t, c, testTrace(c))
		slice.PreImage = slice.PreImage.WithState(slice.PreImage.InitMemory, specs.InitializationState{
			Eid: 2, Fid: 1, Sp: 4095, InitialMemoryPages: 1, MaximalMemoryPages: 2,
		})
		err := checkSlice(t, slice, config)
		require.True(t, errors.As(err, &cerr), "got %v", err)
		require.Equal(t, ImageTable, cerr.Table)
	})
}

func TestCircuitRejectsOpenFramesInLastSlice(t *testing.T) {
	c := testCompilation()
	steps := testTrace(c)
	slice := testSlice(t, c, steps)
	slice.FrameTable.Static[0].Returned = false

	_, err := BuildCircuit(core.NewBN254(), testConfig(t, c), slice)
	require.Error(t, err)
}

func TestCircuitCapacity(t *testing.T) {
	c := testCompilation()
	config := testConfig(t, c)
	slice := testSlice(t, c, testTrace(c))
	slice.ETable = &specs.EventTable{Entries: make([]specs.EventTableEntry, config.EventCapacity()+1)}

	_, err := BuildCircuit(core.NewBN254(), config, slice)
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr), "got %v", err)
	require.Equal(t, CapacityEventRows, capErr.Kind)
	require.Equal(t, config.EventCapacity(), capErr.Limit)

	_, err = BuildCircuit(core.NewBN254(), nil, slice)
	require.ErrorIs(t, err, ErrConfigNotSet)

	err = TrivialStrategy{}.CheckSlices(2, MinK)
	require.ErrorIs(t, err, ErrMultipleSlices)
	require.True(t, errors.As(err, &capErr), "got %v", err)
	require.Equal(t, CapacityError{Kind: CapacityMultipleSlices, Count: 2, Limit: 1, K: MinK}, *capErr)
	require.ErrorContains(t, err, "k=18")
	require.NoError(t, TrivialStrategy{}.CheckSlices(1, MinK))
	require.NoError(t, ContinuationStrategy{}.CheckSlices(2, MinK))
}

// Before the lookups run no frame row has been read, so the first call row
// must be the one reported, however often the check is repeated.
func TestFrameUsageReportsFirstRow(t *testing.T) {
	c := testCompilation()
	config := testConfig(t, c)
	slice := testSlice(t, c, testTrace(c))

	for i := 0; i < 32; i++ {
		circuit, err := BuildCircuit(core.NewBN254(), config, slice)
		require.NoError(t, err)

		err = circuit.Frame.checkUsage()
		var cerr *ConstraintError
		require.True(t, errors.As(err, &cerr), "got %v", err)
		require.Equal(t, ConstraintError{Table: FrameTable, Row: 0, Name: "call row used 0 times"}, *cerr)
	}
}
