package specs

import (
	"cmp"
	"slices"
)

// BrTableEntry is one target of a br_table instruction.
type BrTableEntry struct {
	Fid   uint32    `json:"fid"`
	Iid   uint32    `json:"iid"`
	Index uint32    `json:"index"`
	Drop  uint32    `json:"drop"`
	Keep  []VarType `json:"keep,omitempty"`
	DstPc uint32    `json:"dst_pc"`
}

// BrTargetTable lists the static targets of every br_table in the program.
type BrTargetTable struct {
	Entries []BrTableEntry `json:"entries"`
}

// ElemEntry is one slot of an indirect call table.
type ElemEntry struct {
	TableIdx uint32 `json:"table_idx"`
	TypeIdx  uint32 `json:"type_idx"`
	Offset   uint32 `json:"offset"`
	FuncIdx  uint32 `json:"func_idx"`
}

type elemKey struct {
	tableIdx uint32
	offset   uint32
}

func compareElemKeys(a, b elemKey) int {
	if c := cmp.Compare(a.tableIdx, b.tableIdx); c != 0 {
		return c
	}
	return cmp.Compare(a.offset, b.offset)
}

// ElemTable is keyed by (table index, offset) and always iterates in key
// order. Row order is part of the image encoding, so a hash map is not used.
type ElemTable struct {
	keys    []elemKey
	entries []ElemEntry
}

// NewElemTable builds a table from entries in any order. Later entries
// replace earlier ones with the same key.
func NewElemTable(entries ...ElemEntry) *ElemTable {
	t := &ElemTable{}
	for _, e := range entries {
		t.Insert(e)
	}
	return t
}

// Insert adds or replaces the entry at (e.TableIdx, e.Offset).
func (t *ElemTable) Insert(e ElemEntry) {
	key := elemKey{tableIdx: e.TableIdx, offset: e.Offset}
	i, found := slices.BinarySearchFunc(t.keys, key, compareElemKeys)
	if found {
		t.entries[i] = e
		return
	}
	t.keys = slices.Insert(t.keys, i, key)
	t.entries = slices.Insert(t.entries, i, e)
}

// Get returns the entry at (tableIdx, offset).
func (t *ElemTable) Get(tableIdx, offset uint32) (ElemEntry, bool) {
	i, found := slices.BinarySearchFunc(t.keys, elemKey{tableIdx: tableIdx, offset: offset}, compareElemKeys)
	if !found {
		return ElemEntry{}, false
	}
	return t.entries[i], true
}

// Entries returns the entries in key order.
func (t *ElemTable) Entries() []ElemEntry {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries)
}

// Len returns the number of entries.
func (t *ElemTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// MarshalJSON encodes the table as its ordered entry list.
func (t *ElemTable) MarshalJSON() ([]byte, error) {
	return marshalJSON(t.Entries())
}

// UnmarshalJSON rebuilds the ordered index.
func (t *ElemTable) UnmarshalJSON(data []byte) error {
	var entries []ElemEntry
	if err := unmarshalJSON(data, &entries); err != nil {
		return err
	}
	*t = *NewElemTable(entries...)
	return nil
}
