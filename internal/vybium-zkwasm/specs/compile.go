package specs

import "fmt"

// DefaultEntry is the exported function executed by a proving session.
const DefaultEntry = "zkmain"

// FunctionSignature is the type of one function.
type FunctionSignature struct {
	Params  []VarType `json:"params,omitempty"`
	Results []VarType `json:"results,omitempty"`
}

// Export binds an exported name to a function index.
type Export struct {
	Name string `json:"name"`
	Fid  uint32 `json:"fid"`
}

// CompilationTable is everything known about the program before execution.
type CompilationTable struct {
	ITable         *InstructionTable `json:"itable"`
	IMTable        *InitMemoryTable  `json:"imtable"`
	ElemTable      *ElemTable        `json:"elem_table"`
	ConfigureTable ConfigureTable    `json:"configure_table"`
	// Functions is indexed by fid; index 0 is the exit pseudo-function.
	Functions []FunctionSignature `json:"functions"`
	Exports   []Export            `json:"exports"`
	Entry     string              `json:"entry"`
	// Start is the fid of the module start function, run before the entry.
	Start *uint32 `json:"start,omitempty"`
}

// LookupExport returns the fid of an exported function.
func (c *CompilationTable) LookupExport(name string) (uint32, bool) {
	for _, e := range c.Exports {
		if e.Name == name {
			return e.Fid, true
		}
	}
	return 0, false
}

// PreCheck verifies that the entry function can start a proving session.
func (c *CompilationTable) PreCheck() error {
	entry := c.entryName()
	fid, ok := c.LookupExport(entry)
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntryMissing, entry)
	}
	if int(fid) >= len(c.Functions) {
		return fmt.Errorf("%w: %q has no signature", ErrEntryMissing, entry)
	}
	sig := c.Functions[fid]
	if len(sig.Params) != 0 || len(sig.Results) != 0 {
		return fmt.Errorf("%w: %q has %d params and %d results", ErrEntryNotCallable, entry, len(sig.Params), len(sig.Results))
	}
	return nil
}

func (c *CompilationTable) entryName() string {
	if c.Entry == "" {
		return DefaultEntry
	}
	return c.Entry
}

// EntryFid returns the fid of the entry function. PreCheck must have passed.
func (c *CompilationTable) EntryFid() uint32 {
	fid, _ := c.LookupExport(c.entryName())
	return fid
}

// StaticFrameTable returns the frames open before the first step. The entry
// function returns to the exit pseudo-function; the start function, when
// present, returns to the first instruction of the entry function.
func (c *CompilationTable) StaticFrameTable() [StaticFrameSlots]StaticFrameEntry {
	entry := c.EntryFid()
	frames := [StaticFrameSlots]StaticFrameEntry{
		{Enable: true, CalleeFid: entry},
	}
	if c.Start != nil {
		frames[1] = StaticFrameEntry{Enable: true, CalleeFid: *c.Start, Fid: entry}
	}
	return frames
}

// InitializationState returns the state before the first step.
func (c *CompilationTable) InitializationState() InitializationState {
	fid := c.EntryFid()
	if c.Start != nil {
		fid = *c.Start
	}
	return InitializationState{
		Eid:                1,
		Fid:                fid,
		Iid:                0,
		FrameID:            0,
		Sp:                 DefaultValueStackLimit - 1,
		InitialMemoryPages: c.ConfigureTable.InitMemoryPages,
		MaximalMemoryPages: c.ConfigureTable.MaximalMemoryPages,
	}
}

// Image is the static content committed by a slice: program, tables,
// initial memory and boundary state.
type Image struct {
	ITable              *InstructionTable                  `json:"itable"`
	BrTable             *BrTargetTable                     `json:"br_table"`
	ElemTable           *ElemTable                         `json:"elem_table"`
	InitMemory          *InitMemoryTable                   `json:"init_memory"`
	StaticFrames        [StaticFrameSlots]StaticFrameEntry `json:"static_frames"`
	InitializationState InitializationState                `json:"initialization_state"`
}

// PreImage returns the image of the first slice.
func (c *CompilationTable) PreImage() *Image {
	elem := c.ElemTable
	if elem == nil {
		elem = NewElemTable()
	}
	imtable := c.IMTable
	if imtable == nil {
		imtable = NewInitMemoryTable(nil)
	}
	return &Image{
		ITable:              c.ITable,
		BrTable:             c.ITable.CreateBrTable(),
		ElemTable:           elem,
		InitMemory:          imtable,
		StaticFrames:        c.StaticFrameTable(),
		InitializationState: c.InitializationState(),
	}
}

// WithState returns a copy of the image bound to another memory snapshot and
// boundary state. Program tables are shared.
func (img *Image) WithState(memory *InitMemoryTable, state InitializationState) *Image {
	next := *img
	next.InitMemory = memory
	next.InitializationState = state
	return &next
}
