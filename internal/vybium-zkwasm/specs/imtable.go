package specs

import (
	"cmp"
	"slices"
)

// InitMemoryTableEntry is the initial value of one stack slot, global or heap
// block.
type InitMemoryTableEntry struct {
	LType     LocationType `json:"ltype"`
	IsMutable bool         `json:"is_mutable"`
	Offset    uint32       `json:"offset"`
	VType     VarType      `json:"vtype"`
	Value     uint64       `json:"value"`
}

func compareInitEntries(a, b InitMemoryTableEntry) int {
	if c := cmp.Compare(a.LType, b.LType); c != 0 {
		return c
	}
	return cmp.Compare(a.Offset, b.Offset)
}

// InitMemoryTable holds initial memory sorted by (ltype, offset). Addresses
// that are absent read as zero on the heap.
type InitMemoryTable struct {
	entries []InitMemoryTableEntry
}

// NewInitMemoryTable sorts entries; later duplicates win.
func NewInitMemoryTable(entries []InitMemoryTableEntry) *InitMemoryTable {
	t := &InitMemoryTable{}
	for _, e := range entries {
		t.Set(e)
	}
	return t
}

// Set inserts or replaces the entry at (e.LType, e.Offset).
func (t *InitMemoryTable) Set(e InitMemoryTableEntry) {
	e.Value = e.VType.Mask(e.Value)
	i, found := slices.BinarySearchFunc(t.entries, e, compareInitEntries)
	if found {
		t.entries[i] = e
		return
	}
	t.entries = slices.Insert(t.entries, i, e)
}

// TryFind looks up the initial value of an address.
func (t *InitMemoryTable) TryFind(ltype LocationType, offset uint32) (InitMemoryTableEntry, bool) {
	if t == nil {
		return InitMemoryTableEntry{}, false
	}
	i, found := slices.BinarySearchFunc(t.entries, InitMemoryTableEntry{LType: ltype, Offset: offset}, compareInitEntries)
	if !found {
		return InitMemoryTableEntry{}, false
	}
	return t.entries[i], true
}

// Filter returns the entries of one location type in offset order.
func (t *InitMemoryTable) Filter(ltype LocationType) []InitMemoryTableEntry {
	out := make([]InitMemoryTableEntry, 0)
	for _, e := range t.Entries() {
		if e.LType == ltype {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of all entries.
func (t *InitMemoryTable) Entries() []InitMemoryTableEntry {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries)
}

// Len returns the number of entries.
func (t *InitMemoryTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Clone returns an independent copy.
func (t *InitMemoryTable) Clone() *InitMemoryTable {
	return &InitMemoryTable{entries: t.Entries()}
}

// Update applies the final value of every address touched by a slice. Heap
// blocks written back to zero are dropped so that the table stays sparse.
func (t *InitMemoryTable) Update(final []MemoryTableEntry) *InitMemoryTable {
	next := t.Clone()
	for _, e := range final {
		if e.AType.IsInit() {
			continue
		}
		entry := InitMemoryTableEntry{
			LType:     e.LType,
			IsMutable: e.IsMutable,
			Offset:    e.Offset,
			VType:     e.VType,
			Value:     e.Value,
		}
		if e.LType == LocationHeap && e.Value == 0 {
			next.remove(e.LType, e.Offset)
			continue
		}
		next.Set(entry)
	}
	return next
}

func (t *InitMemoryTable) remove(ltype LocationType, offset uint32) {
	i, found := slices.BinarySearchFunc(t.entries, InitMemoryTableEntry{LType: ltype, Offset: offset}, compareInitEntries)
	if found {
		t.entries = slices.Delete(t.entries, i, i+1)
	}
}

// MarshalJSON encodes the table as its ordered entry list.
func (t *InitMemoryTable) MarshalJSON() ([]byte, error) {
	return marshalJSON(t.Entries())
}

// UnmarshalJSON rebuilds the sorted table.
func (t *InitMemoryTable) UnmarshalJSON(data []byte) error {
	var entries []InitMemoryTableEntry
	if err := unmarshalJSON(data, &entries); err != nil {
		return err
	}
	*t = *NewInitMemoryTable(entries)
	return nil
}
