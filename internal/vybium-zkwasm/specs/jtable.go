package specs

// FrameTableEntry links a call site to the frame it opened. Fid and Iid are
// the return address: the instruction executed after the frame returns.
type FrameTableEntry struct {
	FrameID     uint32 `json:"frame_id"`
	NextFrameID uint32 `json:"next_frame_id"`
	CalleeFid   uint32 `json:"callee_fid"`
	Fid         uint32 `json:"fid"`
	Iid         uint32 `json:"iid"`
	Returned    bool   `json:"returned"`
}

// StaticFrameEntry is a frame known before execution starts: the exit frame
// of the entry function and, when present, the frame of the start function.
type StaticFrameEntry struct {
	Enable      bool   `json:"enable"`
	FrameID     uint32 `json:"frame_id"`
	NextFrameID uint32 `json:"next_frame_id"`
	CalleeFid   uint32 `json:"callee_fid"`
	Fid         uint32 `json:"fid"`
	Iid         uint32 `json:"iid"`
}

// StaticFrameSlots is the number of static frame slots in the image.
const StaticFrameSlots = 2

// Frame returns the entry as an ordinary frame row.
func (s StaticFrameEntry) Frame() FrameTableEntry {
	return FrameTableEntry{
		FrameID:     s.FrameID,
		NextFrameID: s.NextFrameID,
		CalleeFid:   s.CalleeFid,
		Fid:         s.Fid,
		Iid:         s.Iid,
	}
}

// FrameTable is the frame set of one slice.
//
// Static rows exist only in the first slice. Inherited rows are frames that
// were open when the slice started. Called rows are frames opened inside the
// slice. Returned is set on any row whose frame closes inside the slice.
type FrameTable struct {
	Static    []FrameTableEntry `json:"static,omitempty"`
	Inherited []FrameTableEntry `json:"inherited,omitempty"`
	Called    []FrameTableEntry `json:"called,omitempty"`
}

// Len returns the number of frame rows.
func (t *FrameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Static) + len(t.Inherited) + len(t.Called)
}

// Open returns the frames that are still open at the end of the slice, in
// row order. They become the inherited rows of the next slice.
func (t *FrameTable) Open() []FrameTableEntry {
	open := make([]FrameTableEntry, 0)
	for _, group := range [][]FrameTableEntry{t.Static, t.Inherited, t.Called} {
		for _, e := range group {
			if !e.Returned {
				open = append(open, e)
			}
		}
	}
	return open
}

// Counts returns the calls opened and the frames returned inside the slice.
func (t *FrameTable) Counts() (calls uint64, returns uint64) {
	for _, group := range [][]FrameTableEntry{t.Static, t.Inherited, t.Called} {
		for _, e := range group {
			if e.Returned {
				returns++
			}
		}
	}
	return uint64(len(t.Called)), returns
}
