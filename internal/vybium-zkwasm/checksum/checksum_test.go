package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

func testImage(t *testing.T, config *circuits.Config, heap uint64) *circuits.EncodedImage {
	t.Helper()
	compilation := &specs.CompilationTable{
		ITable: specs.NewInstructionTable([][]specs.Opcode{
			{},
			{specs.NewConst(specs.I32, 1), specs.NewDrop(), specs.NewReturn(0, nil)},
		}),
		IMTable: specs.NewInitMemoryTable([]specs.InitMemoryTableEntry{
			{LType: specs.LocationHeap, IsMutable: true, Offset: 3, VType: specs.I64, Value: heap},
			{LType: specs.LocationGlobal, Offset: 0, VType: specs.I32, Value: 42},
		}),
		ConfigureTable: specs.ConfigureTable{InitMemoryPages: 1, MaximalMemoryPages: 2},
		Functions:      []specs.FunctionSignature{{}, {}},
		Exports:        []specs.Export{{Name: "zkmain", Fid: 1}},
	}
	image, err := circuits.EncodeImage(compilation.PreImage(), config)
	require.NoError(t, err)
	return image
}

func TestChecksum(t *testing.T) {
	config, err := circuits.NewConfig(circuits.MinK, specs.ConfigureTable{InitMemoryPages: 1, MaximalMemoryPages: 2})
	require.NoError(t, err)

	params, err := Setup(circuits.MinK, DefaultSeed)
	require.NoError(t, err)
	require.Equal(t, 1<<circuits.MinK, params.Size())

	a, err := params.Commit(testImage(t, config, 5))
	require.NoError(t, err)
	b, err := params.Commit(testImage(t, config, 5))
	require.NoError(t, err)
	c, err := params.Commit(testImage(t, config, 6))
	require.NoError(t, err)

	require.True(t, a.Equal(b), "equal images share a checksum")
	require.False(t, a.Equal(c), "a changed heap block changes the checksum")
	require.Equal(t, a.Hex(), b.Hex())
	require.Len(t, a.Instances(), 2)

	t.Run("save and load", func(t *testing.T) {
		dir := t.TempDir()
		path, err := params.Save(dir)
		require.NoError(t, err)
		require.FileExists(t, path)

		loaded, err := Load(dir, circuits.MinK)
		require.NoError(t, err)
		again, err := loaded.Commit(testImage(t, config, 5))
		require.NoError(t, err)
		require.True(t, a.Equal(again))

		reused, err := LoadOrSetup(dir, circuits.MinK, []byte("ignored"))
		require.NoError(t, err)
		require.Equal(t, params.SRS().Pk.G1[1], reused.SRS().Pk.G1[1])
	})
}
