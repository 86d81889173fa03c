package specs

import (
	"encoding/json"
	"fmt"
)

// EventTableEntry is one executed step as recorded by the interpreter.
// LastJumpEid identifies the current frame: the eid of the call that opened
// it, or 0 for the entry frame.
type EventTableEntry struct {
	Eid                  uint32   `json:"eid"`
	Fid                  uint32   `json:"fid"`
	Iid                  uint32   `json:"iid"`
	Sp                   uint32   `json:"sp"`
	AllocatedMemoryPages uint32   `json:"allocated_memory_pages"`
	LastJumpEid          uint32   `json:"last_jump_eid"`
	StepInfo             StepInfo `json:"-"`
}

type eventTableEntryJSON struct {
	Eid                  uint32          `json:"eid"`
	Fid                  uint32          `json:"fid"`
	Iid                  uint32          `json:"iid"`
	Sp                   uint32          `json:"sp"`
	AllocatedMemoryPages uint32          `json:"allocated_memory_pages"`
	LastJumpEid          uint32          `json:"last_jump_eid"`
	Step                 json.RawMessage `json:"step"`
}

// MarshalJSON encodes the step info as a tagged envelope.
func (e EventTableEntry) MarshalJSON() ([]byte, error) {
	step, err := marshalStepInfo(e.StepInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step %d: %w", e.Eid, err)
	}
	return json.Marshal(eventTableEntryJSON{
		Eid:                  e.Eid,
		Fid:                  e.Fid,
		Iid:                  e.Iid,
		Sp:                   e.Sp,
		AllocatedMemoryPages: e.AllocatedMemoryPages,
		LastJumpEid:          e.LastJumpEid,
		Step:                 step,
	})
}

// UnmarshalJSON decodes the tagged envelope back into a concrete variant.
func (e *EventTableEntry) UnmarshalJSON(data []byte) error {
	var raw eventTableEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	info, err := unmarshalStepInfo(raw.Step)
	if err != nil {
		return fmt.Errorf("failed to unmarshal step %d: %w", raw.Eid, err)
	}
	*e = EventTableEntry{
		Eid:                  raw.Eid,
		Fid:                  raw.Fid,
		Iid:                  raw.Iid,
		Sp:                   raw.Sp,
		AllocatedMemoryPages: raw.AllocatedMemoryPages,
		LastJumpEid:          raw.LastJumpEid,
		StepInfo:             info,
	}
	return nil
}

// EventTable is the ordered step sequence of one slice.
type EventTable struct {
	Entries []EventTableEntry `json:"entries"`
}

// Len returns the number of steps.
func (t *EventTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

// MemoryEntries projects every step of the table into memory rows.
func (t *EventTable) MemoryEntries() []MemoryTableEntry {
	out := make([]MemoryTableEntry, 0, len(t.Entries)*2)
	for i := range t.Entries {
		out = append(out, t.Entries[i].MemoryRWEntries()...)
	}
	return out
}

type rwBuilder struct {
	eid     uint32
	entries []MemoryTableEntry
}

func (b *rwBuilder) stack(atype AccessType, offset uint32, vtype VarType, value uint64) {
	b.push(LocationStack, atype, offset, vtype, true, value)
}

func (b *rwBuilder) heap(atype AccessType, block uint32, value uint64) {
	b.push(LocationHeap, atype, block, I64, true, value)
}

func (b *rwBuilder) push(ltype LocationType, atype AccessType, offset uint32, vtype VarType, mutable bool, value uint64) {
	b.entries = append(b.entries, MemoryTableEntry{
		Eid:       b.eid,
		Emid:      uint32(len(b.entries)),
		Offset:    offset,
		LType:     ltype,
		AType:     atype,
		VType:     vtype,
		IsMutable: mutable,
		Value:     vtype.Mask(value),
	})
}

// keep moves the kept values over the dropped ones. base is the offset of the
// first kept value.
func (b *rwBuilder) keep(base uint32, drop uint32, keep []VarType, values []uint64) {
	for i, vtype := range keep {
		b.stack(AccessRead, base+uint32(i), vtype, values[i])
		b.stack(AccessWrite, base+uint32(i)+drop, vtype, values[i])
	}
}

// MemoryRWEntries returns the memory accesses of the step in emid order. The
// value stack grows downwards: the top is at sp+1 and a push writes sp.
func (e *EventTableEntry) MemoryRWEntries() []MemoryTableEntry {
	b := &rwBuilder{eid: e.Eid}
	sp := e.Sp

	switch info := e.StepInfo.(type) {
	case BrInfo:
		b.keep(sp+1, info.Drop, info.Keep, info.KeepValues)
	case BrIfEqzInfo:
		b.stack(AccessRead, sp+1, I32, uint64(info.Condition))
		if info.Condition == 0 {
			b.keep(sp+2, info.Drop, info.Keep, info.KeepValues)
		}
	case BrIfNezInfo:
		b.stack(AccessRead, sp+1, I32, uint64(info.Condition))
		if info.Condition != 0 {
			b.keep(sp+2, info.Drop, info.Keep, info.KeepValues)
		}
	case BrTableInfo:
		b.stack(AccessRead, sp+1, I32, uint64(info.Index))
		b.keep(sp+2, info.Drop, info.Keep, info.KeepValues)
	case ReturnInfo:
		b.keep(sp+1, info.Drop, info.Keep, info.KeepValues)
	case DropInfo, CallInfo:
	case SelectInfo:
		b.stack(AccessRead, sp+1, I32, info.Cond)
		b.stack(AccessRead, sp+2, info.VType, info.Val2)
		b.stack(AccessRead, sp+3, info.VType, info.Val1)
		b.stack(AccessWrite, sp+3, info.VType, info.Result)
	case CallIndirectInfo:
		b.stack(AccessRead, sp+1, I32, uint64(info.Offset))
	case CallHostInfo:
		n := uint32(len(info.Params))
		for i, vtype := range info.Params {
			b.stack(AccessRead, sp+n-uint32(i), vtype, info.Args[i])
		}
		if info.Result != nil && info.Ret != nil {
			b.stack(AccessWrite, sp+n, *info.Result, *info.Ret)
		}
	case ExternalHostCallInfo:
		if info.Sig.IsRet() {
			b.stack(AccessWrite, sp, I64, info.Value)
		} else {
			b.stack(AccessRead, sp+1, I64, info.Value)
		}
	case LocalGetInfo:
		b.stack(AccessRead, sp+info.Depth, info.VType, info.Value)
		b.stack(AccessWrite, sp, info.VType, info.Value)
	case LocalSetInfo:
		b.stack(AccessRead, sp+1, info.VType, info.Value)
		b.stack(AccessWrite, sp+1+info.Depth, info.VType, info.Value)
	case LocalTeeInfo:
		b.stack(AccessRead, sp+1, info.VType, info.Value)
		b.stack(AccessWrite, sp+info.Depth, info.VType, info.Value)
	case GlobalGetInfo:
		b.push(LocationGlobal, AccessRead, info.Idx, info.VType, info.IsMutable, info.Value)
		b.stack(AccessWrite, sp, info.VType, info.Value)
	case GlobalSetInfo:
		b.stack(AccessRead, sp+1, info.VType, info.Value)
		b.push(LocationGlobal, AccessWrite, info.Idx, info.VType, info.IsMutable, info.Value)
	case LoadInfo:
		block, _, cross := BlockSpan(uint64(info.EffectiveAddress), info.LoadSize.ByteSize())
		b.stack(AccessRead, sp+1, I32, uint64(info.RawAddress))
		b.heap(AccessRead, uint32(block), info.BlockValue1)
		if cross {
			b.heap(AccessRead, uint32(block+1), info.BlockValue2)
		}
		b.stack(AccessWrite, sp+1, info.VType, info.Value)
	case StoreInfo:
		block, _, cross := BlockSpan(uint64(info.EffectiveAddress), info.StoreSize.ByteSize())
		b.stack(AccessRead, sp+1, info.VType, info.Value)
		b.stack(AccessRead, sp+2, I32, uint64(info.RawAddress))
		b.heap(AccessRead, uint32(block), info.PreBlockValue1)
		b.heap(AccessWrite, uint32(block), info.UpdatedBlockValue1)
		if cross {
			b.heap(AccessRead, uint32(block+1), info.PreBlockValue2)
			b.heap(AccessWrite, uint32(block+1), info.UpdatedBlockValue2)
		}
	case MemorySizeInfo:
		b.stack(AccessWrite, sp, I32, uint64(e.AllocatedMemoryPages))
	case MemoryGrowInfo:
		b.stack(AccessRead, sp+1, I32, uint64(uint32(info.Grow)))
		b.stack(AccessWrite, sp+1, I32, uint64(uint32(info.Result)))
	case ConstInfo:
		b.stack(AccessWrite, sp, info.VType, info.Value)
	case BinInfo:
		binaryRW(b, sp, info.VType, info.VType, info.Left, info.Right, info.Value)
	case BinShiftInfo:
		binaryRW(b, sp, info.VType, info.VType, info.Left, info.Right, info.Value)
	case BinBitInfo:
		binaryRW(b, sp, info.VType, info.VType, info.Left, info.Right, info.Value)
	case RelInfo:
		binaryRW(b, sp, info.VType, I32, info.Left, info.Right, uint64(info.Value))
	case UnaryInfo:
		b.stack(AccessRead, sp+1, info.VType, info.Operand)
		b.stack(AccessWrite, sp+1, info.VType, info.Result)
	case TestInfo:
		b.stack(AccessRead, sp+1, info.VType, info.Value)
		b.stack(AccessWrite, sp+1, I32, uint64(info.Result))
	case ConversionInfo:
		from, to := info.Op.Types()
		b.stack(AccessRead, sp+1, from, info.Value)
		b.stack(AccessWrite, sp+1, to, info.Result)
	default:
		panic(fmt.Sprintf("unsupported step info %T at eid %d", e.StepInfo, e.Eid))
	}

	return b.entries
}

func binaryRW(b *rwBuilder, sp uint32, vtype VarType, rtype VarType, left, right, result uint64) {
	b.stack(AccessRead, sp+1, vtype, right)
	b.stack(AccessRead, sp+2, vtype, left)
	b.stack(AccessWrite, sp+2, rtype, result)
}

// SPDelta returns the change of the stack pointer caused by the step.
func (e *EventTableEntry) SPDelta() int64 {
	switch info := e.StepInfo.(type) {
	case BrInfo:
		return int64(info.Drop)
	case BrIfEqzInfo:
		if info.Condition == 0 {
			return 1 + int64(info.Drop)
		}
		return 1
	case BrIfNezInfo:
		if info.Condition != 0 {
			return 1 + int64(info.Drop)
		}
		return 1
	case BrTableInfo:
		return 1 + int64(info.Drop)
	case ReturnInfo:
		return int64(info.Drop)
	case DropInfo:
		return 1
	case SelectInfo:
		return 2
	case CallInfo, LocalTeeInfo, LoadInfo, MemoryGrowInfo, UnaryInfo, TestInfo, ConversionInfo:
		return 0
	case CallIndirectInfo:
		return 1
	case CallHostInfo:
		delta := int64(len(info.Params))
		if info.Result != nil {
			delta--
		}
		return delta
	case ExternalHostCallInfo:
		if info.Sig.IsRet() {
			return -1
		}
		return 1
	case LocalGetInfo, GlobalGetInfo, ConstInfo, MemorySizeInfo:
		return -1
	case LocalSetInfo, GlobalSetInfo, BinInfo, BinShiftInfo, BinBitInfo, RelInfo:
		return 1
	case StoreInfo:
		return 2
	default:
		panic(fmt.Sprintf("unsupported step info %T at eid %d", e.StepInfo, e.Eid))
	}
}

// PagesDelta returns the number of pages allocated by the step.
func (e *EventTableEntry) PagesDelta() uint32 {
	if info, ok := e.StepInfo.(MemoryGrowInfo); ok && info.Result >= 0 {
		return uint32(info.Grow)
	}
	return 0
}

// IsCall reports whether the step opens a frame.
func (e *EventTableEntry) IsCall() bool {
	switch e.StepInfo.(type) {
	case CallInfo, CallIndirectInfo:
		return true
	}
	return false
}

// IsReturn reports whether the step closes a frame.
func (e *EventTableEntry) IsReturn() bool {
	_, ok := e.StepInfo.(ReturnInfo)
	return ok
}

// Callee returns the function entered by a call step.
func (e *EventTableEntry) Callee() uint32 {
	switch info := e.StepInfo.(type) {
	case CallInfo:
		return info.Index
	case CallIndirectInfo:
		return info.FuncIndex
	}
	panic(fmt.Sprintf("step %d is not a call", e.Eid))
}

// BranchTarget returns the destination iid of a taken branch.
func (e *EventTableEntry) BranchTarget() (uint32, bool) {
	switch info := e.StepInfo.(type) {
	case BrInfo:
		return info.DstPc, true
	case BrIfEqzInfo:
		return info.DstPc, info.Condition == 0
	case BrIfNezInfo:
		return info.DstPc, info.Condition != 0
	case BrTableInfo:
		return info.DstPc, true
	}
	return 0, false
}
