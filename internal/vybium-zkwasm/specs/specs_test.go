package specs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryTableOrdering(t *testing.T) {
	write := EventTableEntry{Eid: 1, Sp: 100, StepInfo: StoreInfo{
		VType: I64, StoreSize: StoreByte64, RawAddress: 800, EffectiveAddress: 800,
		Value: 42, PreBlockValue1: 0, UpdatedBlockValue1: 42,
	}}
	read := EventTableEntry{Eid: 2, Sp: 102, StepInfo: LoadInfo{
		VType: I64, LoadSize: ReadI64, RawAddress: 800, EffectiveAddress: 800,
		Value: 42, BlockValue1: 42,
	}}
	etable := &EventTable{Entries: []EventTableEntry{read, write}}
	mtable := NewMemoryTable(etable.MemoryEntries())

	heap := make([]MemoryTableEntry, 0)
	for _, e := range mtable.Entries {
		if e.LType == LocationHeap {
			heap = append(heap, e)
		}
	}
	if len(heap) != 3 {
		t.Fatalf("expected 3 heap rows, got %d", len(heap))
	}
	wantTypes := []AccessType{AccessRead, AccessWrite, AccessRead}
	wantEids := []uint32{1, 1, 2}
	for i, e := range heap {
		if e.AType != wantTypes[i] || e.Eid != wantEids[i] {
			t.Errorf("row %d: got %s eid %d", i, e.AType, e.Eid)
		}
		if e.Offset != 100 {
			t.Errorf("row %d: expected block 100, got %d", i, e.Offset)
		}
	}
	if heap[1].Value != 42 || heap[2].Value != 42 {
		t.Errorf("write and read must both carry 42, got %d and %d", heap[1].Value, heap[2].Value)
	}

	for i := 1; i < len(mtable.Entries); i++ {
		if CompareMemoryEntries(mtable.Entries[i-1], mtable.Entries[i]) > 0 {
			t.Fatalf("rows %d and %d out of order", i-1, i)
		}
	}
}

func TestCompareMemoryEntriesInitFirst(t *testing.T) {
	init := MemoryTableEntry{LType: LocationGlobal, Offset: 3, AType: AccessInit}
	write := MemoryTableEntry{LType: LocationGlobal, Offset: 3, AType: AccessWrite, Eid: 0, Emid: 0}
	if CompareMemoryEntries(init, write) >= 0 {
		t.Error("init row must sort before a step row on the same address")
	}
	stack := MemoryTableEntry{LType: LocationStack, Offset: 4000}
	if CompareMemoryEntries(stack, init) >= 0 {
		t.Error("stack rows must sort before global rows")
	}
}

func TestFinalValues(t *testing.T) {
	table := NewMemoryTable([]MemoryTableEntry{
		{Eid: 1, LType: LocationHeap, Offset: 3, AType: AccessWrite, Value: 1},
		{Eid: 2, LType: LocationHeap, Offset: 3, AType: AccessWrite, Value: 0xAA},
		{Eid: 1, LType: LocationStack, Offset: 4095, AType: AccessWrite, Value: 5},
	})
	final := table.FinalValues()
	if len(final) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(final))
	}
	if final[1].Value != 0xAA {
		t.Errorf("expected last heap write 0xAA, got %#x", final[1].Value)
	}
	if table.NonInitCount() != 3 {
		t.Errorf("expected 3 non-init rows, got %d", table.NonInitCount())
	}
}

func TestElemTableOrder(t *testing.T) {
	table := NewElemTable(
		ElemEntry{TableIdx: 1, Offset: 0, FuncIdx: 9},
		ElemEntry{TableIdx: 0, Offset: 5, FuncIdx: 2},
		ElemEntry{TableIdx: 0, Offset: 1, FuncIdx: 3},
		ElemEntry{TableIdx: 0, Offset: 5, FuncIdx: 4},
	)
	entries := table.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Offset != 1 || entries[1].FuncIdx != 4 || entries[2].TableIdx != 1 {
		t.Errorf("unexpected order: %+v", entries)
	}

	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded ElemTable
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if e, ok := decoded.Get(0, 5); !ok || e.FuncIdx != 4 {
		t.Errorf("expected func 4 at (0, 5), got %+v %v", e, ok)
	}
}

func TestInitMemoryTableUpdate(t *testing.T) {
	imtable := NewInitMemoryTable([]InitMemoryTableEntry{
		{LType: LocationGlobal, Offset: 0, IsMutable: true, VType: I32, Value: 7},
		{LType: LocationHeap, Offset: 2, IsMutable: true, VType: I64, Value: 5},
	})

	next := imtable.Update([]MemoryTableEntry{
		{LType: LocationHeap, Offset: 2, AType: AccessWrite, VType: I64, IsMutable: true, Value: 0},
		{LType: LocationHeap, Offset: 3, AType: AccessWrite, VType: I64, IsMutable: true, Value: 0xAA},
		{LType: LocationGlobal, Offset: 0, AType: AccessInit, VType: I32, IsMutable: true, Value: 7},
	})

	if _, ok := next.TryFind(LocationHeap, 2); ok {
		t.Error("heap block written to zero should be dropped")
	}
	if e, ok := next.TryFind(LocationHeap, 3); !ok || e.Value != 0xAA {
		t.Errorf("expected block 3 = 0xAA, got %+v %v", e, ok)
	}
	if _, ok := imtable.TryFind(LocationHeap, 3); ok {
		t.Error("update must not modify the source table")
	}
	if len(next.Filter(LocationGlobal)) != 1 {
		t.Error("global entry should survive the update")
	}
}

func TestPreCheck(t *testing.T) {
	tests := []struct {
		name    string
		table   CompilationTable
		wantErr error
	}{
		{
			name: "valid entry",
			table: CompilationTable{
				Functions: []FunctionSignature{{}, {}},
				Exports:   []Export{{Name: "zkmain", Fid: 1}},
			},
		},
		{
			name: "missing entry",
			table: CompilationTable{
				Functions: []FunctionSignature{{}, {}},
				Exports:   []Export{{Name: "main", Fid: 1}},
			},
			wantErr: ErrEntryMissing,
		},
		{
			name: "entry with params",
			table: CompilationTable{
				Functions: []FunctionSignature{{}, {Params: []VarType{I32}}},
				Exports:   []Export{{Name: "zkmain", Fid: 1}},
			},
			wantErr: ErrEntryNotCallable,
		},
		{
			name: "entry with results",
			table: CompilationTable{
				Functions: []FunctionSignature{{}, {Results: []VarType{I64}}},
				Exports:   []Export{{Name: "zkmain", Fid: 1}},
			},
			wantErr: ErrEntryNotCallable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.PreCheck()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStaticFrames(t *testing.T) {
	start := uint32(2)
	table := CompilationTable{
		Functions: []FunctionSignature{{}, {}, {}},
		Exports:   []Export{{Name: "zkmain", Fid: 1}},
		Start:     &start,
	}
	frames := table.StaticFrameTable()
	if frames[0].Frame() != (FrameTableEntry{CalleeFid: 1}) {
		t.Errorf("unexpected entry frame %+v", frames[0])
	}
	if frames[1].Frame() != (FrameTableEntry{CalleeFid: 2, Fid: 1}) {
		t.Errorf("unexpected start frame %+v", frames[1])
	}
	if state := table.InitializationState(); state.Fid != 2 || state.Eid != 1 {
		t.Errorf("execution should begin in the start function, got %s", state)
	}
}

func TestEventTableEntryJSON(t *testing.T) {
	ret := uint64(3)
	result := I64
	entries := []EventTableEntry{
		{Eid: 1, Fid: 1, Iid: 0, Sp: 4095, StepInfo: ConstInfo{VType: I32, Value: 5}},
		{Eid: 2, Fid: 1, Iid: 1, Sp: 4094, StepInfo: CallHostInfo{
			Plugin: HostInput, Name: HostFnWasmInput, Params: []VarType{I32}, Result: &result,
			Args: []uint64{1}, Ret: &ret,
		}},
		{Eid: 3, Fid: 1, Iid: 2, Sp: 4094, StepInfo: ReturnInfo{Drop: 1}},
	}

	data, err := json.Marshal(&EventTable{Entries: entries})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded EventTable
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", decoded.Len())
	}
	if info, ok := decoded.Entries[0].StepInfo.(ConstInfo); !ok || info.Value != 5 {
		t.Errorf("const step lost: %#v", decoded.Entries[0].StepInfo)
	}
	host, ok := decoded.Entries[1].StepInfo.(CallHostInfo)
	if !ok || host.Ret == nil || *host.Ret != 3 {
		t.Errorf("host step lost: %#v", decoded.Entries[1].StepInfo)
	}
	if !decoded.Entries[2].IsReturn() {
		t.Error("return step lost")
	}
}

func TestInitializationStateStep(t *testing.T) {
	state := InitializationState{Eid: 1, Fid: 1, Sp: 4095, MaximalMemoryPages: 16}
	entries := []EventTableEntry{
		{Eid: 1, Fid: 1, Iid: 0, Sp: 4095, StepInfo: ConstInfo{VType: I32, Value: 1}},
		{Eid: 2, Fid: 1, Iid: 1, Sp: 4094, StepInfo: CallHostInfo{
			Plugin: Context, Name: HostFnWasmWriteContext, Params: []VarType{I64}, Args: []uint64{1},
		}},
		{Eid: 3, Fid: 1, Iid: 2, Sp: 4095, StepInfo: ReturnInfo{}},
	}

	for i := range entries {
		if i > 0 {
			resumed := state.Resume(&entries[i])
			if resumed.Sp != entries[i].Sp || resumed.Eid != entries[i].Eid {
				t.Fatalf("step %d: state %s does not match entry", i, resumed)
			}
		}
		state = state.Step(&entries[i])
	}

	if state.Eid != 4 || state.Fid != 0 || state.Iid != 0 {
		t.Errorf("expected exit state, got %s", state)
	}
	if state.ContextOutIndex != 1 {
		t.Errorf("expected one context write, got %d", state.ContextOutIndex)
	}
	if state.MaximalMemoryPages != 16 {
		t.Error("memory bound must be carried")
	}
}

func TestBrTableDerivation(t *testing.T) {
	itable := NewInstructionTable([][]Opcode{
		nil,
		{NewConst(I32, 0), NewBrTable(2), NewReturn(0, nil), NewReturn(0, nil)},
	})
	err := itable.SetBrTable(1, 1, []BrTableEntry{{DstPc: 2}, {DstPc: 3, Drop: 1, Keep: []VarType{I64}}})
	if err != nil {
		t.Fatalf("SetBrTable failed: %v", err)
	}
	if err := itable.SetBrTable(1, 0, nil); err == nil {
		t.Error("expected an error for a non br_table instruction")
	}

	var brtable *BrTargetTable = itable.CreateBrTable()
	if entry, ok := itable.Get(1, 1); !ok || entry.Opcode.Class != BrTable {
		t.Fatalf("expected a %s opcode at iid 1, got %+v", BrTable, entry)
	}
	if len(brtable.Entries) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(brtable.Entries))
	}
	if brtable.Entries[1].Index != 1 || brtable.Entries[1].Fid != 1 || brtable.Entries[1].Iid != 1 {
		t.Errorf("unexpected target %+v", brtable.Entries[1])
	}
}
