package specs

import "fmt"

// InstructionTableEntry is one compiled instruction.
type InstructionTableEntry struct {
	Fid    uint32 `json:"fid"`
	Iid    uint32 `json:"iid"`
	Opcode Opcode `json:"opcode"`
}

// BrTableTargets is the static operand of a br_table instruction, kept beside
// the instruction table because it does not fit into the opcode encoding.
type BrTableTargets struct {
	Fid     uint32         `json:"fid"`
	Iid     uint32         `json:"iid"`
	Targets []BrTableEntry `json:"targets"`
}

// InstructionTable is indexed [fid][iid]. Function 0 is reserved for the
// exit pseudo-function and is usually empty.
type InstructionTable struct {
	Functions [][]InstructionTableEntry `json:"functions"`
	BrTargets []BrTableTargets          `json:"br_targets,omitempty"`
}

// NewInstructionTable builds an instruction table from per-function opcode
// lists; fid is the index in functions.
func NewInstructionTable(functions [][]Opcode) *InstructionTable {
	t := &InstructionTable{Functions: make([][]InstructionTableEntry, len(functions))}
	for fid, ops := range functions {
		entries := make([]InstructionTableEntry, len(ops))
		for iid, op := range ops {
			entries[iid] = InstructionTableEntry{Fid: uint32(fid), Iid: uint32(iid), Opcode: op}
		}
		t.Functions[fid] = entries
	}
	return t
}

// Get returns the instruction at (fid, iid).
func (t *InstructionTable) Get(fid, iid uint32) (InstructionTableEntry, bool) {
	if int(fid) >= len(t.Functions) || int(iid) >= len(t.Functions[fid]) {
		return InstructionTableEntry{}, false
	}
	return t.Functions[fid][iid], true
}

// Entries returns every instruction in (fid, iid) order.
func (t *InstructionTable) Entries() []InstructionTableEntry {
	out := make([]InstructionTableEntry, 0, t.Len())
	for _, f := range t.Functions {
		out = append(out, f...)
	}
	return out
}

// Len returns the number of instructions.
func (t *InstructionTable) Len() int {
	n := 0
	for _, f := range t.Functions {
		n += len(f)
	}
	return n
}

// SetBrTable records the targets of the br_table at (fid, iid). The last
// target is the default one.
func (t *InstructionTable) SetBrTable(fid, iid uint32, targets []BrTableEntry) error {
	entry, ok := t.Get(fid, iid)
	if !ok {
		return fmt.Errorf("no instruction at fid %d iid %d", fid, iid)
	}
	if entry.Opcode.Class != BrTable {
		return fmt.Errorf("instruction at fid %d iid %d is %s, not BrTable", fid, iid, entry.Opcode.Class)
	}
	if uint64(len(targets)) != entry.Opcode.Arg0 {
		return fmt.Errorf("br_table at fid %d iid %d expects %d targets, got %d", fid, iid, entry.Opcode.Arg0, len(targets))
	}
	fixed := make([]BrTableEntry, len(targets))
	for i, target := range targets {
		target.Fid, target.Iid, target.Index = fid, iid, uint32(i)
		fixed[i] = target
	}
	t.BrTargets = append(t.BrTargets, BrTableTargets{Fid: fid, Iid: iid, Targets: fixed})
	return nil
}

// CreateBrTable flattens the targets of every br_table in (fid, iid, index)
// order.
func (t *InstructionTable) CreateBrTable() *BrTargetTable {
	table := &BrTargetTable{}
	for _, e := range t.Entries() {
		if e.Opcode.Class != BrTable {
			continue
		}
		for _, targets := range t.BrTargets {
			if targets.Fid == e.Fid && targets.Iid == e.Iid {
				table.Entries = append(table.Entries, targets.Targets...)
			}
		}
	}
	return table
}
