package circuits

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/encode"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

// Image layout. The program region sits below InitMemoryEntriesOffset; init
// memory above it is positional: the row of an address is fixed by its
// location type and offset.
const (
	imageStateOffset        = 0
	imageStaticFrameOffset  = imageStateOffset + specs.InitializationStateFields
	imageInstructionsOffset = imageStaticFrameOffset + 2*specs.StaticFrameSlots
	imageStackOffset        = InitMemoryEntriesOffset
	imageGlobalOffset       = imageStackOffset + StackCapacity
	imageHeapOffset         = imageGlobalOffset + GlobalCapacity
)

// EncodedImage is the row encoding of a specs.Image. Rows of the program
// region are kept explicitly; init memory rows are derived on demand from
// the sparse init memory table.
type EncodedImage struct {
	fixed     []*uint256.Int
	memory    *specs.InitMemoryTable
	heapPages uint32
	program   map[uint256.Int]struct{}
	state     specs.InitializationState
	frames    [specs.StaticFrameSlots]specs.StaticFrameEntry
}

// EncodeImage lays an image out over the rows available at config's size.
func EncodeImage(img *specs.Image, config *Config) (*EncodedImage, error) {
	if config == nil {
		return nil, ErrConfigNotSet
	}
	e := &EncodedImage{
		fixed:     make([]*uint256.Int, 0, imageInstructionsOffset+img.ITable.Len()+2),
		memory:    img.InitMemory,
		heapPages: config.MaximalPages(),
		program:   make(map[uint256.Int]struct{}),
		state:     img.InitializationState,
		frames:    img.StaticFrames,
	}
	for _, v := range img.InitializationState.Fields() {
		e.fixed = append(e.fixed, uint256.NewInt(uint64(v)))
	}
	for _, f := range img.StaticFrames {
		enable := uint64(0)
		if f.Enable {
			enable = 1
		}
		e.fixed = append(e.fixed, uint256.NewInt(enable), encode.EncodeFrameEntry(f.Frame()))
	}

	e.fixed = append(e.fixed, new(uint256.Int))
	for _, inst := range img.ITable.Entries() {
		e.addProgram(encode.EncodeImageRow(encode.ImageInstruction, encode.EncodeInstruction(inst.Fid, inst.Iid, inst.Opcode)))
	}
	e.fixed = append(e.fixed, new(uint256.Int))
	if img.BrTable != nil {
		for _, br := range img.BrTable.Entries {
			e.addProgram(encode.EncodeImageRow(encode.ImageBrTable, encode.EncodeBrTableEntry(br)))
		}
	}
	for _, elem := range img.ElemTable.Entries() {
		e.addProgram(encode.EncodeImageRow(encode.ImageBrTable, encode.EncodeElemEntry(elem)))
	}
	if len(e.fixed) > InitMemoryEntriesOffset {
		return nil, &CapacityError{Kind: CapacityImageRows, Count: len(e.fixed), Limit: InitMemoryEntriesOffset, K: config.K()}
	}

	for _, m := range img.InitMemory.Entries() {
		if _, ok := memoryPosition(m.LType, m.Offset, e.heapPages); !ok {
			return nil, &CapacityError{Kind: CapacityMemoryPages, Count: int(m.Offset/specs.PageEntries) + 1, Limit: int(e.heapPages), K: config.K()}
		}
	}
	if e.Len() > config.UsableRows() {
		return nil, &CapacityError{Kind: CapacityImageRows, Count: e.Len(), Limit: config.UsableRows(), K: config.K()}
	}
	return e, nil
}

func (e *EncodedImage) addProgram(v *uint256.Int) {
	e.fixed = append(e.fixed, v)
	e.program[*v] = struct{}{}
}

// memoryPosition returns the image row of an init memory address.
func memoryPosition(ltype specs.LocationType, offset uint32, heapPages uint32) (int, bool) {
	switch ltype {
	case specs.LocationStack:
		return imageStackOffset + int(offset), offset < StackCapacity
	case specs.LocationGlobal:
		return imageGlobalOffset + int(offset), offset < GlobalCapacity
	case specs.LocationHeap:
		return imageHeapOffset + int(offset), uint64(offset) < uint64(heapPages)*specs.PageEntries
	}
	return 0, false
}

// Len returns the number of image rows.
func (e *EncodedImage) Len() int {
	return imageHeapOffset + int(e.heapPages)*specs.PageEntries
}

// State returns the initialization state committed by the image.
func (e *EncodedImage) State() specs.InitializationState { return e.state }

// Row returns image row i; rows outside every region are zero.
func (e *EncodedImage) Row(i int) *uint256.Int {
	switch {
	case i < len(e.fixed):
		return e.fixed[i]
	case i < imageStackOffset:
		return new(uint256.Int)
	case i < imageGlobalOffset:
		return e.memoryRow(specs.LocationStack, uint32(i-imageStackOffset))
	case i < imageHeapOffset:
		return e.memoryRow(specs.LocationGlobal, uint32(i-imageGlobalOffset))
	case i < e.Len():
		return e.memoryRow(specs.LocationHeap, uint32(i-imageHeapOffset))
	}
	return new(uint256.Int)
}

// memoryRow encodes the init value of an address. Absent stack slots and
// globals are zero rows; absent heap blocks are mutable zero values.
func (e *EncodedImage) memoryRow(ltype specs.LocationType, offset uint32) *uint256.Int {
	m, ok := e.memory.TryFind(ltype, offset)
	if !ok {
		if ltype != specs.LocationHeap {
			return new(uint256.Int)
		}
		m = specs.InitMemoryTableEntry{LType: ltype, IsMutable: true, Offset: offset, VType: specs.I64}
	}
	return encode.EncodeImageRow(encode.ImageInitMemory, encode.EncodeInitMemory(m))
}

// ForEach calls fn on every non-zero row in row order.
func (e *EncodedImage) ForEach(fn func(i int, v *uint256.Int) error) error {
	for i := 0; i < e.Len(); i++ {
		if i == len(e.fixed) {
			i = imageStackOffset
		}
		v := e.Row(i)
		if v.IsZero() {
			continue
		}
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether v is a program row or the init memory row of
// its address.
func (e *EncodedImage) Contains(v *uint256.Int) bool {
	if v.IsZero() {
		return false
	}
	class, data := encode.DecodeImageRow(v)
	switch class {
	case encode.ImageInstruction, encode.ImageBrTable:
		_, ok := e.program[*v]
		return ok
	case encode.ImageInitMemory:
		if data.BitLen() > encode.InitMemoryBoundary {
			return false
		}
		m := encode.DecodeInitMemory(data)
		pos, ok := memoryPosition(m.LType, m.Offset, e.heapPages)
		return ok && e.Row(pos).Eq(v)
	}
	return false
}

// Diff returns the first row at which two images differ, or -1.
func (e *EncodedImage) Diff(o *EncodedImage) int {
	n := max(e.Len(), o.Len())
	for i := 0; i < n; i++ {
		if !e.Row(i).Eq(o.Row(i)) {
			return i
		}
	}
	return -1
}

// ImageTableImpl serves the image lookups of the event and memory tables.
// Image columns are only materialized when requested.
type ImageTableImpl[E any] struct {
	id    TableID
	a     arith[E]
	image *EncodedImage
	rows  *relation[E]
}

func newImageTable[E any](a arith[E], id TableID, image *EncodedImage) *ImageTableImpl[E] {
	t := &ImageTableImpl[E]{id: id, a: a, image: image}
	t.rows = newFixedRelation(lookupImage, func(values []E) bool {
		return image.Contains(a.big(values[0]))
	})
	return t
}

// GetID returns the table's identifier
func (t *ImageTableImpl[E]) GetID() TableID { return t.id }

// GetHeight returns the number of image rows
func (t *ImageTableImpl[E]) GetHeight() int { return t.image.Len() }

// GetPaddedHeight returns the column height
func (t *ImageTableImpl[E]) GetPaddedHeight() int { return utils.NextPowerOfTwo(t.image.Len()) }

// GetColumns materializes the image rows and, for the pre image, the
// multiplicity of every row read by a lookup.
func (t *ImageTableImpl[E]) GetColumns() []Column[E] {
	a := t.a
	n := t.image.Len()
	rows := Column[E]{Name: fmt.Sprintf("%s_row", t.id), Values: make([]E, n)}
	mult := Column[E]{Name: fmt.Sprintf("%s_multiplicity", t.id), Values: make([]E, n)}
	for i := 0; i < n; i++ {
		rows.Values[i] = a.FromUint256(t.image.Row(i))
		mult.Values[i] = a.Zero()
		if j, ok := t.rows.index[tupleKey(a, []E{rows.Values[i]})]; ok {
			mult.Values[i] = a.u(t.rows.multiplicity(j))
		}
	}
	return []Column[E]{rows, mult}
}

// CheckConstraints has nothing to check: the image is fixed per program.
func (t *ImageTableImpl[E]) CheckConstraints() error { return nil }

func (t *ImageTableImpl[E]) register(relations *[lookupTargetCount]*relation[E]) {
	relations[lookupImage] = t.rows
}

// StaticFrames returns the static frame slots committed by the image.
func (e *EncodedImage) StaticFrames() [specs.StaticFrameSlots]specs.StaticFrameEntry { return e.frames }

// Program returns the rows of the program region: instructions, br table
// and elem entries with their leading zero rows.
func (e *EncodedImage) Program() []*uint256.Int {
	return e.fixed[imageInstructionsOffset:]
}
