package specs

import "fmt"

// OpcodeClass groups wasm instructions that share one step layout.
type OpcodeClass int

const (
	LocalGet OpcodeClass = iota + 1
	LocalSet
	LocalTee
	GlobalGet
	GlobalSet
	Const
	Drop
	Select
	Return
	Bin
	Unary
	BinShift
	BinBit
	Test
	Rel
	Br
	BrIf
	BrIfEqz
	BrTable
	Unreachable
	Call
	CallHost
	CallIndirect
	Load
	Store
	MemorySize
	MemoryGrow
	Conversion
	ExternalHostCall
)

// OpcodeClassCount is the number of opcode classes.
const OpcodeClassCount = int(ExternalHostCall)

var opcodeClassNames = [...]string{
	LocalGet:         "LocalGet",
	LocalSet:         "LocalSet",
	LocalTee:         "LocalTee",
	GlobalGet:        "GlobalGet",
	GlobalSet:        "GlobalSet",
	Const:            "Const",
	Drop:             "Drop",
	Select:           "Select",
	Return:           "Return",
	Bin:              "Bin",
	Unary:            "Unary",
	BinShift:         "BinShift",
	BinBit:           "BinBit",
	Test:             "Test",
	Rel:              "Rel",
	Br:               "Br",
	BrIf:             "BrIf",
	BrIfEqz:          "BrIfEqz",
	BrTable:          "BrTable",
	Unreachable:      "Unreachable",
	Call:             "Call",
	CallHost:         "CallHost",
	CallIndirect:     "CallIndirect",
	Load:             "Load",
	Store:            "Store",
	MemorySize:       "MemorySize",
	MemoryGrow:       "MemoryGrow",
	Conversion:       "Conversion",
	ExternalHostCall: "ExternalHostCall",
}

// String returns the name of the class
func (c OpcodeClass) String() string {
	if c.Valid() {
		return opcodeClassNames[c]
	}
	return fmt.Sprintf("OpcodeClass(%d)", int(c))
}

// Valid reports whether c is part of the catalog.
func (c OpcodeClass) Valid() bool {
	return c >= LocalGet && c <= ExternalHostCall
}

// AllOpcodeClasses returns the catalog in encoding order.
func AllOpcodeClasses() []OpcodeClass {
	classes := make([]OpcodeClass, 0, OpcodeClassCount)
	for c := LocalGet; c <= ExternalHostCall; c++ {
		classes = append(classes, c)
	}
	return classes
}

// BinOp is an arithmetic binary operator.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDivU
	BinRemU
	BinDivS
	BinRemS
)

func (op BinOp) String() string {
	return [...]string{"add", "sub", "mul", "div_u", "rem_u", "div_s", "rem_s"}[op]
}

// ShiftOp is a shift or rotate operator.
type ShiftOp int

const (
	ShiftShl ShiftOp = iota
	ShiftShrU
	ShiftShrS
	ShiftRotl
	ShiftRotr
)

func (op ShiftOp) String() string {
	return [...]string{"shl", "shr_u", "shr_s", "rotl", "rotr"}[op]
}

// BitOp is a bitwise operator. Popcnt shares the bit table but is not a BitOp.
type BitOp int

const (
	BitAnd BitOp = iota
	BitOr
	BitXor
)

func (op BitOp) String() string {
	return [...]string{"and", "or", "xor"}[op]
}

// RelOp is a comparison operator.
type RelOp int

const (
	RelEq RelOp = iota
	RelNe
	RelGtS
	RelGtU
	RelGeS
	RelGeU
	RelLtS
	RelLtU
	RelLeS
	RelLeU
)

func (op RelOp) String() string {
	return [...]string{"eq", "ne", "gt_s", "gt_u", "ge_s", "ge_u", "lt_s", "lt_u", "le_s", "le_u"}[op]
}

// IsSigned reports whether the comparison interprets operands as signed.
func (op RelOp) IsSigned() bool {
	switch op {
	case RelGtS, RelGeS, RelLtS, RelLeS:
		return true
	}
	return false
}

// TestOp is a unary test operator.
type TestOp int

const (
	TestEqz TestOp = iota
)

func (op TestOp) String() string {
	return "eqz"
}

// UnaryOp is a bit-counting operator.
type UnaryOp int

const (
	UnaryCtz UnaryOp = iota
	UnaryClz
	UnaryPopcnt
)

func (op UnaryOp) String() string {
	return [...]string{"ctz", "clz", "popcnt"}[op]
}

// ConversionOp is an integer width conversion.
type ConversionOp int

const (
	ConvI32WrapI64 ConversionOp = iota
	ConvI64ExtendI32S
	ConvI64ExtendI32U
	ConvI32Extend8S
	ConvI32Extend16S
	ConvI64Extend8S
	ConvI64Extend16S
	ConvI64Extend32S
)

func (op ConversionOp) String() string {
	return [...]string{
		"i32.wrap_i64", "i64.extend_i32_s", "i64.extend_i32_u", "i32.extend8_s",
		"i32.extend16_s", "i64.extend8_s", "i64.extend16_s", "i64.extend32_s",
	}[op]
}

// Types returns the operand and result types of the conversion.
func (op ConversionOp) Types() (from VarType, to VarType) {
	switch op {
	case ConvI32WrapI64:
		return I64, I32
	case ConvI64ExtendI32S, ConvI64ExtendI32U:
		return I32, I64
	case ConvI32Extend8S, ConvI32Extend16S:
		return I32, I32
	default:
		return I64, I64
	}
}

// SignBits returns the width of the sign-extended source, or 0 for
// zero-extension and wrapping.
func (op ConversionOp) SignBits() uint {
	switch op {
	case ConvI64ExtendI32S, ConvI64Extend32S:
		return 32
	case ConvI32Extend8S, ConvI64Extend8S:
		return 8
	case ConvI32Extend16S, ConvI64Extend16S:
		return 16
	}
	return 0
}

// HostSignature distinguishes the two directions of an external host call.
type HostSignature int

const (
	// HostArgument pops one i64 and hands it to the host
	HostArgument HostSignature = iota
	// HostReturn pushes one i64 produced by the host
	HostReturn
)

// IsRet reports whether the call returns a value.
func (s HostSignature) IsRet() bool {
	return s == HostReturn
}

func (s HostSignature) String() string {
	if s == HostReturn {
		return "return"
	}
	return "argument"
}

// Opcode is the static part of an instruction. The meaning of the arguments
// depends on the class:
//
//	LocalGet/LocalSet/LocalTee  arg0=depth      arg1=vtype
//	GlobalGet/GlobalSet         arg0=index
//	Const                       arg0=value      arg1=vtype
//	Select                      arg1=vtype
//	Return                      arg0=drop       arg1=keep
//	Br/BrIf/BrIfEqz             arg0=drop       arg1=keep       arg2=dst_pc
//	BrTable                     arg0=targets
//	Bin/BinShift/BinBit/Rel     arg0=operator   arg1=vtype
//	Unary/Test                  arg0=operator   arg1=vtype
//	Conversion                  arg0=operator
//	Call                        arg0=callee fid
//	CallIndirect                arg0=type index
//	CallHost                    arg0=host function index  arg1=plugin
//	ExternalHostCall            arg0=op         arg1=signature
//	Load/Store                  arg0=offset     arg1=vtype      arg2=size
//
// keep is 0 when nothing is kept and 1+vtype otherwise.
type Opcode struct {
	Class OpcodeClass `json:"class"`
	Arg0  uint64      `json:"arg0,omitempty"`
	Arg1  uint32      `json:"arg1,omitempty"`
	Arg2  uint32      `json:"arg2,omitempty"`
}

func (o Opcode) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", o.Class, o.Arg0, o.Arg1, o.Arg2)
}

// EncodeKeep packs a keep list of at most one value.
func EncodeKeep(keep []VarType) uint32 {
	switch len(keep) {
	case 0:
		return 0
	case 1:
		return 1 + uint32(keep[0])
	default:
		panic(fmt.Sprintf("at most one kept value is supported, got %d", len(keep)))
	}
}

// DecodeKeep is the inverse of EncodeKeep.
func DecodeKeep(v uint32) []VarType {
	if v == 0 {
		return nil
	}
	return []VarType{VarType(v - 1)}
}

// Opcode constructors keep argument placement in one place.

func NewLocalGet(vtype VarType, depth uint32) Opcode {
	return Opcode{Class: LocalGet, Arg0: uint64(depth), Arg1: uint32(vtype)}
}

func NewLocalSet(vtype VarType, depth uint32) Opcode {
	return Opcode{Class: LocalSet, Arg0: uint64(depth), Arg1: uint32(vtype)}
}

func NewLocalTee(vtype VarType, depth uint32) Opcode {
	return Opcode{Class: LocalTee, Arg0: uint64(depth), Arg1: uint32(vtype)}
}

func NewGlobalGet(idx uint32) Opcode { return Opcode{Class: GlobalGet, Arg0: uint64(idx)} }

func NewGlobalSet(idx uint32) Opcode { return Opcode{Class: GlobalSet, Arg0: uint64(idx)} }

func NewConst(vtype VarType, value uint64) Opcode {
	return Opcode{Class: Const, Arg0: vtype.Mask(value), Arg1: uint32(vtype)}
}

func NewDrop() Opcode { return Opcode{Class: Drop} }

func NewSelect(vtype VarType) Opcode { return Opcode{Class: Select, Arg1: uint32(vtype)} }

func NewReturn(drop uint32, keep []VarType) Opcode {
	return Opcode{Class: Return, Arg0: uint64(drop), Arg1: EncodeKeep(keep)}
}

func NewBr(drop uint32, keep []VarType, dst uint32) Opcode {
	return Opcode{Class: Br, Arg0: uint64(drop), Arg1: EncodeKeep(keep), Arg2: dst}
}

func NewBrIf(drop uint32, keep []VarType, dst uint32) Opcode {
	return Opcode{Class: BrIf, Arg0: uint64(drop), Arg1: EncodeKeep(keep), Arg2: dst}
}

func NewBrIfEqz(drop uint32, keep []VarType, dst uint32) Opcode {
	return Opcode{Class: BrIfEqz, Arg0: uint64(drop), Arg1: EncodeKeep(keep), Arg2: dst}
}

func NewBrTable(targets uint32) Opcode { return Opcode{Class: BrTable, Arg0: uint64(targets)} }

func NewUnreachable() Opcode { return Opcode{Class: Unreachable} }

func NewBin(op BinOp, vtype VarType) Opcode {
	return Opcode{Class: Bin, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewBinShift(op ShiftOp, vtype VarType) Opcode {
	return Opcode{Class: BinShift, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewBinBit(op BitOp, vtype VarType) Opcode {
	return Opcode{Class: BinBit, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewRel(op RelOp, vtype VarType) Opcode {
	return Opcode{Class: Rel, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewUnary(op UnaryOp, vtype VarType) Opcode {
	return Opcode{Class: Unary, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewTest(op TestOp, vtype VarType) Opcode {
	return Opcode{Class: Test, Arg0: uint64(op), Arg1: uint32(vtype)}
}

func NewConversion(op ConversionOp) Opcode {
	return Opcode{Class: Conversion, Arg0: uint64(op)}
}

func NewCall(callee uint32) Opcode { return Opcode{Class: Call, Arg0: uint64(callee)} }

func NewCallIndirect(typeIdx uint32) Opcode {
	return Opcode{Class: CallIndirect, Arg0: uint64(typeIdx)}
}

func NewCallHost(function uint32, plugin HostPlugin) Opcode {
	return Opcode{Class: CallHost, Arg0: uint64(function), Arg1: uint32(plugin)}
}

func NewExternalHostCall(op uint32, sig HostSignature) Opcode {
	return Opcode{Class: ExternalHostCall, Arg0: uint64(op), Arg1: uint32(sig)}
}

func NewLoad(vtype VarType, size MemoryReadSize, offset uint32) Opcode {
	return Opcode{Class: Load, Arg0: uint64(offset), Arg1: uint32(vtype), Arg2: uint32(size)}
}

func NewStore(vtype VarType, size MemoryStoreSize, offset uint32) Opcode {
	return Opcode{Class: Store, Arg0: uint64(offset), Arg1: uint32(vtype), Arg2: uint32(size)}
}

func NewMemorySize() Opcode { return Opcode{Class: MemorySize} }

func NewMemoryGrow() Opcode { return Opcode{Class: MemoryGrow} }
