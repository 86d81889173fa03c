package slices

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

func rawSlice(index int) *RawSlice {
	return &RawSlice{
		Index: index,
		ETable: &specs.EventTable{Entries: []specs.EventTableEntry{
			{Eid: uint32(index) + 1, Fid: 1, Iid: uint32(index), Sp: 4095, StepInfo: specs.ConstInfo{VType: specs.I64, Value: uint64(index)}},
		}},
		FrameTable: &specs.FrameTable{Inherited: []specs.FrameTableEntry{{CalleeFid: 1}}},
	}
}

func TestSliceBackends(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) SliceBackend
	}{
		{"memory", func(t *testing.T) SliceBackend { return NewInMemoryBackend() }},
		{"leveldb-mem", func(t *testing.T) SliceBackend {
			b, err := NewLevelDBBackend("", 2)
			require.NoError(t, err)
			return b
		}},
		{"leveldb-file", func(t *testing.T) SliceBackend {
			b, err := NewLevelDBBackend(t.TempDir(), 2)
			require.NoError(t, err)
			return b
		}},
		{"pebble-mem", func(t *testing.T) SliceBackend {
			b, err := NewPebbleBackend("", 2)
			require.NoError(t, err)
			return b
		}},
		{"pebble-file", func(t *testing.T) SliceBackend {
			b, err := NewPebbleBackend(t.TempDir(), 2)
			require.NoError(t, err)
			return b
		}},
	}

	for _, tt := range backends {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.open(t)
			defer b.Close()

			_, err := b.Pop()
			require.ErrorIs(t, err, ErrBackendEmpty)
			_, err = b.Peek()
			require.ErrorIs(t, err, ErrBackendEmpty)

			for i := 0; i < 5; i++ {
				require.NoError(t, b.Push(rawSlice(i)))
			}
			require.Equal(t, 5, b.Len())

			var seen []int
			require.NoError(t, b.ForEach(func(s *RawSlice) error {
				seen = append(seen, s.Index)
				return nil
			}))
			require.Equal(t, []int{0, 1, 2, 3, 4}, seen)

			for i := 0; i < 5; i++ {
				peeked, err := b.Peek()
				require.NoError(t, err)
				require.Equal(t, i, peeked.Index)

				s, err := b.Pop()
				require.NoError(t, err)
				require.Equal(t, i, s.Index)
				require.Equal(t, uint32(i)+1, s.ETable.Entries[0].Eid)
				info, ok := s.ETable.Entries[0].StepInfo.(specs.ConstInfo)
				require.True(t, ok, "step info survives the backend")
				require.Equal(t, uint64(i), info.Value)
				require.Len(t, s.FrameTable.Inherited, 1)
			}
			require.Zero(t, b.Len())
		})
	}
}

func TestPersistedBackendsReopen(t *testing.T) {
	opens := map[string]func(path string) (SliceBackend, error){
		"leveldb": func(path string) (SliceBackend, error) { return NewLevelDBBackend(path, 0) },
		"pebble":  func(path string) (SliceBackend, error) { return NewPebbleBackend(path, 0) },
	}
	for name, open := range opens {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			b, err := open(dir)
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				require.NoError(t, b.Push(rawSlice(i)))
			}
			_, err = b.Pop()
			require.NoError(t, err)
			require.NoError(t, b.Close())

			b, err = open(dir)
			require.NoError(t, err)
			defer b.Close()
			require.Equal(t, 2, b.Len())
			s, err := b.Pop()
			require.NoError(t, err)
			require.Equal(t, 1, s.Index)
		})
	}
}

func TestSliceKeysOrderByQueuePosition(t *testing.T) {
	prev := sliceKey(0)
	for _, seq := range []uint64{1, 255, 256, 1 << 32} {
		key := sliceKey(seq)
		require.Less(t, string(prev), string(key))
		got, err := sliceIndex(key)
		require.NoError(t, err)
		require.Equal(t, seq, got)
		prev = key
	}
	_, err := sliceIndex([]byte("s"))
	require.Error(t, err)
	require.Equal(t, []byte("t"), upperBound([]byte("s")))
}
