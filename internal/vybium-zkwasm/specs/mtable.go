package specs

import (
	"cmp"
	"fmt"
	"slices"
)

// MemoryTableEntry is one access to a stack slot, global or heap block.
// Emid is the position of the access inside its step; together with Eid it
// orders accesses to the same address.
type MemoryTableEntry struct {
	Eid       uint32       `json:"eid"`
	Emid      uint32       `json:"emid"`
	Offset    uint32       `json:"offset"`
	LType     LocationType `json:"ltype"`
	AType     AccessType   `json:"atype"`
	VType     VarType      `json:"vtype"`
	IsMutable bool         `json:"is_mutable"`
	Value     uint64       `json:"value"`
}

// SameLocation reports whether both entries address the same cell.
func (e MemoryTableEntry) SameLocation(o MemoryTableEntry) bool {
	return e.LType == o.LType && e.Offset == o.Offset
}

func (e MemoryTableEntry) String() string {
	return fmt.Sprintf("%s %s[%d] eid=%d.%d %s=%d", e.AType, e.LType, e.Offset, e.Eid, e.Emid, e.VType, e.Value)
}

// CompareMemoryEntries orders entries by (ltype, offset, eid, emid). Init rows
// carry eid 0 and therefore lead their address group.
func CompareMemoryEntries(a, b MemoryTableEntry) int {
	if c := cmp.Compare(a.LType, b.LType); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
		return c
	}
	if a.AType.IsInit() != b.AType.IsInit() {
		if a.AType.IsInit() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Eid, b.Eid); c != 0 {
		return c
	}
	return cmp.Compare(a.Emid, b.Emid)
}

// MemoryTable is the sorted projection of every access of a slice.
type MemoryTable struct {
	Entries []MemoryTableEntry `json:"entries"`
}

// NewMemoryTable sorts entries into consistency-argument order.
func NewMemoryTable(entries []MemoryTableEntry) *MemoryTable {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, CompareMemoryEntries)
	return &MemoryTable{Entries: sorted}
}

// NonInitCount returns the number of rows produced by steps.
func (t *MemoryTable) NonInitCount() int {
	n := 0
	for _, e := range t.Entries {
		if !e.AType.IsInit() {
			n++
		}
	}
	return n
}

// FinalValues returns, for every address, the last entry in sorted order. The
// result is itself sorted by address.
func (t *MemoryTable) FinalValues() []MemoryTableEntry {
	out := make([]MemoryTableEntry, 0)
	for i, e := range t.Entries {
		if i+1 < len(t.Entries) && t.Entries[i+1].SameLocation(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// BuildMemoryTable derives the memory table of a slice: the accesses of its
// steps plus one init row (eid 0) per address whose value comes from the
// image. Heap blocks and globals always start on an init row; a stack slot
// only does when it is read before it is written. Heap blocks missing from
// imtable start at zero.
func BuildMemoryTable(etable *EventTable, imtable *InitMemoryTable) (*MemoryTable, error) {
	accesses := etable.MemoryEntries()
	first := make(map[[2]uint32]MemoryTableEntry)
	order := make([][2]uint32, 0)
	for _, e := range accesses {
		key := [2]uint32{uint32(e.LType), e.Offset}
		if prev, ok := first[key]; ok && CompareMemoryEntries(prev, e) <= 0 {
			continue
		} else if !ok {
			order = append(order, key)
		}
		first[key] = e
	}

	rows := accesses
	for _, key := range order {
		e := first[key]
		init, found := imtable.TryFind(e.LType, e.Offset)
		switch e.LType {
		case LocationHeap:
			if !found {
				init = InitMemoryTableEntry{LType: LocationHeap, IsMutable: true, Offset: e.Offset, VType: I64}
			}
		case LocationGlobal:
			if !found {
				return nil, fmt.Errorf("%w: global %d", ErrUninitializedRead, e.Offset)
			}
		case LocationStack:
			if e.AType != AccessRead {
				continue
			}
			if !found {
				return nil, fmt.Errorf("%w: stack slot %d at eid %d", ErrUninitializedRead, e.Offset, e.Eid)
			}
		}
		rows = append(rows, MemoryTableEntry{
			Offset:    e.Offset,
			LType:     e.LType,
			AType:     AccessInit,
			VType:     init.VType,
			IsMutable: init.IsMutable,
			Value:     init.Value,
		})
	}
	return NewMemoryTable(rows), nil
}
