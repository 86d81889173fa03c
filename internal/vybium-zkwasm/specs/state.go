package specs

import "fmt"

// DefaultValueStackLimit is the number of addressable value stack slots. The
// stack pointer starts at the highest slot and grows downwards.
const DefaultValueStackLimit = 4096

// InitializationStateFields is the number of image rows taken by the state.
const InitializationStateFields = 10

// InitializationState is the machine state at a slice boundary.
type InitializationState struct {
	Eid                uint32 `json:"eid"`
	Fid                uint32 `json:"fid"`
	Iid                uint32 `json:"iid"`
	FrameID            uint32 `json:"frame_id"`
	Sp                 uint32 `json:"sp"`
	HostPublicInputs   uint32 `json:"host_public_inputs"`
	ContextInIndex     uint32 `json:"context_in_index"`
	ContextOutIndex    uint32 `json:"context_out_index"`
	InitialMemoryPages uint32 `json:"initial_memory_pages"`
	MaximalMemoryPages uint32 `json:"maximal_memory_pages"`
}

// Fields returns the state in image row order.
func (s InitializationState) Fields() [InitializationStateFields]uint32 {
	return [InitializationStateFields]uint32{
		s.Eid,
		s.Fid,
		s.Iid,
		s.FrameID,
		s.Sp,
		s.HostPublicInputs,
		s.ContextInIndex,
		s.ContextOutIndex,
		s.InitialMemoryPages,
		s.MaximalMemoryPages,
	}
}

func (s InitializationState) String() string {
	return fmt.Sprintf("eid=%d fid=%d iid=%d frame=%d sp=%d pages=%d/%d host=(%d,%d,%d)",
		s.Eid, s.Fid, s.Iid, s.FrameID, s.Sp, s.InitialMemoryPages, s.MaximalMemoryPages,
		s.HostPublicInputs, s.ContextInIndex, s.ContextOutIndex)
}

// HostCounters returns the counters updated by a CallHost step.
func (s InitializationState) HostCounters(info CallHostInfo) InitializationState {
	switch info.Plugin {
	case HostInput:
		if info.Name == HostFnWasmInput && len(info.Args) > 0 && info.Args[0] != 0 {
			s.HostPublicInputs++
		}
	case Context:
		switch info.Name {
		case HostFnWasmReadContext:
			s.ContextInIndex++
		case HostFnWasmWriteContext:
			s.ContextOutIndex++
		}
	}
	return s
}

// Step returns the state after entry when the next step is unknown, i.e. the
// terminal transition. A return from the outermost frame lands on the exit
// pseudo-function (fid 0, iid 0, frame 0).
func (s InitializationState) Step(entry *EventTableEntry) InitializationState {
	next := s
	next.Eid = entry.Eid + 1
	next.Sp = uint32(int64(entry.Sp) + entry.SPDelta())
	next.InitialMemoryPages = entry.AllocatedMemoryPages + entry.PagesDelta()
	if info, ok := entry.StepInfo.(CallHostInfo); ok {
		next = next.HostCounters(info)
	}
	switch {
	case entry.IsReturn():
		next.Fid, next.Iid, next.FrameID = 0, 0, 0
	case entry.IsCall():
		next.Fid, next.Iid, next.FrameID = entry.Callee(), 0, entry.Eid
	default:
		next.Fid, next.FrameID = entry.Fid, entry.LastJumpEid
		if dst, taken := entry.BranchTarget(); taken {
			next.Iid = dst
		} else {
			next.Iid = entry.Iid + 1
		}
	}
	return next
}

// Resume returns the state positioned on entry, carrying the host counters
// and memory bound of s.
func (s InitializationState) Resume(entry *EventTableEntry) InitializationState {
	next := s
	next.Eid = entry.Eid
	next.Fid = entry.Fid
	next.Iid = entry.Iid
	next.FrameID = entry.LastJumpEid
	next.Sp = entry.Sp
	next.InitialMemoryPages = entry.AllocatedMemoryPages
	return next
}
