// Package specs holds the data model shared by every table of the zkWasm
// arithmetization: the opcode catalog, the recorded execution steps and the
// static tables produced at compile time.
package specs

import "fmt"

// WasmPageSize is the size of one WebAssembly linear memory page in bytes.
const WasmPageSize = 64 * 1024

// PageEntries is the number of 8-byte heap blocks in one page.
const PageEntries = WasmPageSize / 8

// VarType is the value type of a stack slot, global or heap block.
type VarType int

const (
	// I64 is a 64-bit integer
	I64 VarType = iota
	// I32 is a 32-bit integer
	I32
)

// String returns the wasm name of the type
func (t VarType) String() string {
	switch t {
	case I64:
		return "i64"
	case I32:
		return "i32"
	default:
		return fmt.Sprintf("vtype(%d)", int(t))
	}
}

// IsI32 reports whether t is the 32-bit type.
func (t VarType) IsI32() bool {
	return t == I32
}

// Mask truncates v to the width of t.
func (t VarType) Mask(v uint64) uint64 {
	if t == I32 {
		return v & 0xffffffff
	}
	return v
}

// LocationType is the address space of a memory access.
type LocationType int

const (
	// LocationStack is the value stack
	LocationStack LocationType = iota + 1
	// LocationHeap is the linear memory, addressed in 8-byte blocks
	LocationHeap
	// LocationGlobal is the global variable space
	LocationGlobal
)

// String returns the name of the location
func (l LocationType) String() string {
	switch l {
	case LocationStack:
		return "stack"
	case LocationHeap:
		return "heap"
	case LocationGlobal:
		return "global"
	default:
		return fmt.Sprintf("ltype(%d)", int(l))
	}
}

// AccessType is the kind of a memory table row.
type AccessType int

const (
	// AccessRead reads the current value
	AccessRead AccessType = iota + 1
	// AccessWrite replaces the current value
	AccessWrite
	// AccessInit binds the first value of an address to the image
	AccessInit
)

// String returns the name of the access type
func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessInit:
		return "init"
	default:
		return fmt.Sprintf("atype(%d)", int(a))
	}
}

// IsInit reports whether the access is an init row.
func (a AccessType) IsInit() bool {
	return a == AccessInit
}

// MemoryReadSize is the width and signedness of a load.
type MemoryReadSize int

const (
	ReadU8 MemoryReadSize = iota + 1
	ReadS8
	ReadU16
	ReadS16
	ReadU32
	ReadS32
	ReadI64
)

// ByteSize returns the number of bytes read.
func (s MemoryReadSize) ByteSize() uint64 {
	switch s {
	case ReadU8, ReadS8:
		return 1
	case ReadU16, ReadS16:
		return 2
	case ReadU32, ReadS32:
		return 4
	case ReadI64:
		return 8
	default:
		panic(fmt.Sprintf("invalid memory read size %d", int(s)))
	}
}

// IsSigned reports whether the loaded value is sign extended.
func (s MemoryReadSize) IsSigned() bool {
	return s == ReadS8 || s == ReadS16 || s == ReadS32
}

// MemoryStoreSize is the width of a store.
type MemoryStoreSize int

const (
	StoreByte8 MemoryStoreSize = iota + 1
	StoreByte16
	StoreByte32
	StoreByte64
)

// ByteSize returns the number of bytes written.
func (s MemoryStoreSize) ByteSize() uint64 {
	switch s {
	case StoreByte8:
		return 1
	case StoreByte16:
		return 2
	case StoreByte32:
		return 4
	case StoreByte64:
		return 8
	default:
		panic(fmt.Sprintf("invalid memory store size %d", int(s)))
	}
}

// BlockSpan returns the heap blocks touched by an access of size bytes at
// effective address addr. The second block is only meaningful when cross is
// true.
func BlockSpan(addr uint64, size uint64) (block uint64, inner uint64, cross bool) {
	block = addr / 8
	inner = addr % 8
	cross = inner+size > 8
	return block, inner, cross
}
