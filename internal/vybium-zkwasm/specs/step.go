package specs

import (
	"encoding/json"
	"fmt"
)

// StepInfo is the runtime payload of one executed instruction. Each concrete
// type is one variant; the event table dispatches on Class.
type StepInfo interface {
	// Class returns the opcode class the variant belongs to.
	Class() OpcodeClass
	// Kind returns the stable variant name used in serialized traces.
	Kind() string
}

// BrInfo is an unconditional branch.
type BrInfo struct {
	DstPc      uint32    `json:"dst_pc"`
	Drop       uint32    `json:"drop"`
	Keep       []VarType `json:"keep,omitempty"`
	KeepValues []uint64  `json:"keep_values,omitempty"`
}

// BrIfEqzInfo branches when the condition is zero.
type BrIfEqzInfo struct {
	Condition  uint32    `json:"condition"`
	DstPc      uint32    `json:"dst_pc"`
	Drop       uint32    `json:"drop"`
	Keep       []VarType `json:"keep,omitempty"`
	KeepValues []uint64  `json:"keep_values,omitempty"`
}

// BrIfNezInfo branches when the condition is non-zero.
type BrIfNezInfo struct {
	Condition  uint32    `json:"condition"`
	DstPc      uint32    `json:"dst_pc"`
	Drop       uint32    `json:"drop"`
	Keep       []VarType `json:"keep,omitempty"`
	KeepValues []uint64  `json:"keep_values,omitempty"`
}

// BrTableInfo selects one target of a br_table.
type BrTableInfo struct {
	Index      uint32    `json:"index"`
	DstPc      uint32    `json:"dst_pc"`
	Drop       uint32    `json:"drop"`
	Keep       []VarType `json:"keep,omitempty"`
	KeepValues []uint64  `json:"keep_values,omitempty"`
}

// ReturnInfo leaves the current frame.
type ReturnInfo struct {
	Drop       uint32    `json:"drop"`
	Keep       []VarType `json:"keep,omitempty"`
	KeepValues []uint64  `json:"keep_values,omitempty"`
}

type DropInfo struct{}

type SelectInfo struct {
	VType  VarType `json:"vtype"`
	Val1   uint64  `json:"val1"`
	Val2   uint64  `json:"val2"`
	Cond   uint64  `json:"cond"`
	Result uint64  `json:"result"`
}

type CallInfo struct {
	Index uint32 `json:"index"`
}

type CallIndirectInfo struct {
	TableIndex uint32 `json:"table_index"`
	TypeIndex  uint32 `json:"type_index"`
	Offset     uint32 `json:"offset"`
	FuncIndex  uint32 `json:"func_index"`
}

// CallHostInfo is a call into a builtin host plugin.
type CallHostInfo struct {
	Plugin   HostPlugin `json:"plugin"`
	Function uint32     `json:"function"`
	Name     string     `json:"name"`
	Params   []VarType  `json:"params,omitempty"`
	Result   *VarType   `json:"result,omitempty"`
	Args     []uint64   `json:"args,omitempty"`
	Ret      *uint64    `json:"ret,omitempty"`
}

// ExternalHostCallInfo is one argument or return of a foreign call.
type ExternalHostCallInfo struct {
	Op    uint32        `json:"op"`
	Sig   HostSignature `json:"sig"`
	Value uint64        `json:"value"`
}

type LocalGetInfo struct {
	VType VarType `json:"vtype"`
	Depth uint32  `json:"depth"`
	Value uint64  `json:"value"`
}

type LocalSetInfo struct {
	VType VarType `json:"vtype"`
	Depth uint32  `json:"depth"`
	Value uint64  `json:"value"`
}

type LocalTeeInfo struct {
	VType VarType `json:"vtype"`
	Depth uint32  `json:"depth"`
	Value uint64  `json:"value"`
}

type GlobalGetInfo struct {
	Idx       uint32  `json:"idx"`
	VType     VarType `json:"vtype"`
	IsMutable bool    `json:"is_mutable"`
	Value     uint64  `json:"value"`
}

type GlobalSetInfo struct {
	Idx       uint32  `json:"idx"`
	VType     VarType `json:"vtype"`
	IsMutable bool    `json:"is_mutable"`
	Value     uint64  `json:"value"`
}

// LoadInfo reads one or two heap blocks.
type LoadInfo struct {
	VType            VarType        `json:"vtype"`
	LoadSize         MemoryReadSize `json:"load_size"`
	Offset           uint32         `json:"offset"`
	RawAddress       uint32         `json:"raw_address"`
	EffectiveAddress uint32         `json:"effective_address"`
	Value            uint64         `json:"value"`
	BlockValue1      uint64         `json:"block_value1"`
	BlockValue2      uint64         `json:"block_value2"`
}

// StoreInfo updates one or two heap blocks.
type StoreInfo struct {
	VType              VarType         `json:"vtype"`
	StoreSize          MemoryStoreSize `json:"store_size"`
	Offset             uint32          `json:"offset"`
	RawAddress         uint32          `json:"raw_address"`
	EffectiveAddress   uint32          `json:"effective_address"`
	Value              uint64          `json:"value"`
	PreBlockValue1     uint64          `json:"pre_block_value1"`
	UpdatedBlockValue1 uint64          `json:"updated_block_value1"`
	PreBlockValue2     uint64          `json:"pre_block_value2"`
	UpdatedBlockValue2 uint64          `json:"updated_block_value2"`
}

type MemorySizeInfo struct{}

// MemoryGrowInfo grows the linear memory. Result is -1 on failure.
type MemoryGrowInfo struct {
	Grow   int32 `json:"grow"`
	Result int32 `json:"result"`
}

type ConstInfo struct {
	VType VarType `json:"vtype"`
	Value uint64  `json:"value"`
}

type BinInfo struct {
	Op    BinOp   `json:"op"`
	VType VarType `json:"vtype"`
	Left  uint64  `json:"left"`
	Right uint64  `json:"right"`
	Value uint64  `json:"value"`
}

type BinShiftInfo struct {
	Op    ShiftOp `json:"op"`
	VType VarType `json:"vtype"`
	Left  uint64  `json:"left"`
	Right uint64  `json:"right"`
	Value uint64  `json:"value"`
}

type BinBitInfo struct {
	Op    BitOp   `json:"op"`
	VType VarType `json:"vtype"`
	Left  uint64  `json:"left"`
	Right uint64  `json:"right"`
	Value uint64  `json:"value"`
}

type UnaryInfo struct {
	Op      UnaryOp `json:"op"`
	VType   VarType `json:"vtype"`
	Operand uint64  `json:"operand"`
	Result  uint64  `json:"result"`
}

type TestInfo struct {
	Op     TestOp  `json:"op"`
	VType  VarType `json:"vtype"`
	Value  uint64  `json:"value"`
	Result uint32  `json:"result"`
}

type RelInfo struct {
	Op    RelOp   `json:"op"`
	VType VarType `json:"vtype"`
	Left  uint64  `json:"left"`
	Right uint64  `json:"right"`
	Value uint32  `json:"value"`
}

type ConversionInfo struct {
	Op     ConversionOp `json:"op"`
	Value  uint64       `json:"value"`
	Result uint64       `json:"result"`
}

func (BrInfo) Class() OpcodeClass               { return Br }
func (BrIfEqzInfo) Class() OpcodeClass          { return BrIfEqz }
func (BrIfNezInfo) Class() OpcodeClass          { return BrIf }
func (BrTableInfo) Class() OpcodeClass          { return BrTable }
func (ReturnInfo) Class() OpcodeClass           { return Return }
func (DropInfo) Class() OpcodeClass             { return Drop }
func (SelectInfo) Class() OpcodeClass           { return Select }
func (CallInfo) Class() OpcodeClass             { return Call }
func (CallIndirectInfo) Class() OpcodeClass     { return CallIndirect }
func (CallHostInfo) Class() OpcodeClass         { return CallHost }
func (ExternalHostCallInfo) Class() OpcodeClass { return ExternalHostCall }
func (LocalGetInfo) Class() OpcodeClass         { return LocalGet }
func (LocalSetInfo) Class() OpcodeClass         { return LocalSet }
func (LocalTeeInfo) Class() OpcodeClass         { return LocalTee }
func (GlobalGetInfo) Class() OpcodeClass        { return GlobalGet }
func (GlobalSetInfo) Class() OpcodeClass        { return GlobalSet }
func (LoadInfo) Class() OpcodeClass             { return Load }
func (StoreInfo) Class() OpcodeClass            { return Store }
func (MemorySizeInfo) Class() OpcodeClass       { return MemorySize }
func (MemoryGrowInfo) Class() OpcodeClass       { return MemoryGrow }
func (ConstInfo) Class() OpcodeClass            { return Const }
func (BinInfo) Class() OpcodeClass              { return Bin }
func (BinShiftInfo) Class() OpcodeClass         { return BinShift }
func (BinBitInfo) Class() OpcodeClass           { return BinBit }
func (UnaryInfo) Class() OpcodeClass            { return Unary }
func (TestInfo) Class() OpcodeClass             { return Test }
func (RelInfo) Class() OpcodeClass              { return Rel }
func (ConversionInfo) Class() OpcodeClass       { return Conversion }

func (BrInfo) Kind() string               { return "br" }
func (BrIfEqzInfo) Kind() string          { return "br_if_eqz" }
func (BrIfNezInfo) Kind() string          { return "br_if_nez" }
func (BrTableInfo) Kind() string          { return "br_table" }
func (ReturnInfo) Kind() string           { return "return" }
func (DropInfo) Kind() string             { return "drop" }
func (SelectInfo) Kind() string           { return "select" }
func (CallInfo) Kind() string             { return "call" }
func (CallIndirectInfo) Kind() string     { return "call_indirect" }
func (CallHostInfo) Kind() string         { return "call_host" }
func (ExternalHostCallInfo) Kind() string { return "external_host_call" }
func (LocalGetInfo) Kind() string         { return "local_get" }
func (LocalSetInfo) Kind() string         { return "local_set" }
func (LocalTeeInfo) Kind() string         { return "local_tee" }
func (GlobalGetInfo) Kind() string        { return "global_get" }
func (GlobalSetInfo) Kind() string        { return "global_set" }
func (LoadInfo) Kind() string             { return "load" }
func (StoreInfo) Kind() string            { return "store" }
func (MemorySizeInfo) Kind() string       { return "memory_size" }
func (MemoryGrowInfo) Kind() string       { return "memory_grow" }
func (ConstInfo) Kind() string            { return "const" }
func (BinInfo) Kind() string              { return "bin" }
func (BinShiftInfo) Kind() string         { return "bin_shift" }
func (BinBitInfo) Kind() string           { return "bin_bit" }
func (UnaryInfo) Kind() string            { return "unary" }
func (TestInfo) Kind() string             { return "test" }
func (RelInfo) Kind() string              { return "rel" }
func (ConversionInfo) Kind() string       { return "conversion" }

var stepInfoFactories = map[string]func() StepInfo{
	"br":                 func() StepInfo { return &BrInfo{} },
	"br_if_eqz":          func() StepInfo { return &BrIfEqzInfo{} },
	"br_if_nez":          func() StepInfo { return &BrIfNezInfo{} },
	"br_table":           func() StepInfo { return &BrTableInfo{} },
	"return":             func() StepInfo { return &ReturnInfo{} },
	"drop":               func() StepInfo { return &DropInfo{} },
	"select":             func() StepInfo { return &SelectInfo{} },
	"call":               func() StepInfo { return &CallInfo{} },
	"call_indirect":      func() StepInfo { return &CallIndirectInfo{} },
	"call_host":          func() StepInfo { return &CallHostInfo{} },
	"external_host_call": func() StepInfo { return &ExternalHostCallInfo{} },
	"local_get":          func() StepInfo { return &LocalGetInfo{} },
	"local_set":          func() StepInfo { return &LocalSetInfo{} },
	"local_tee":          func() StepInfo { return &LocalTeeInfo{} },
	"global_get":         func() StepInfo { return &GlobalGetInfo{} },
	"global_set":         func() StepInfo { return &GlobalSetInfo{} },
	"load":               func() StepInfo { return &LoadInfo{} },
	"store":              func() StepInfo { return &StoreInfo{} },
	"memory_size":        func() StepInfo { return &MemorySizeInfo{} },
	"memory_grow":        func() StepInfo { return &MemoryGrowInfo{} },
	"const":              func() StepInfo { return &ConstInfo{} },
	"bin":                func() StepInfo { return &BinInfo{} },
	"bin_shift":          func() StepInfo { return &BinShiftInfo{} },
	"bin_bit":            func() StepInfo { return &BinBitInfo{} },
	"unary":              func() StepInfo { return &UnaryInfo{} },
	"test":               func() StepInfo { return &TestInfo{} },
	"rel":                func() StepInfo { return &RelInfo{} },
	"conversion":         func() StepInfo { return &ConversionInfo{} },
}

// derefStepInfo turns the pointer produced by a factory back into the value
// form used everywhere else.
func derefStepInfo(info StepInfo) StepInfo {
	switch v := info.(type) {
	case *BrInfo:
		return *v
	case *BrIfEqzInfo:
		return *v
	case *BrIfNezInfo:
		return *v
	case *BrTableInfo:
		return *v
	case *ReturnInfo:
		return *v
	case *DropInfo:
		return *v
	case *SelectInfo:
		return *v
	case *CallInfo:
		return *v
	case *CallIndirectInfo:
		return *v
	case *CallHostInfo:
		return *v
	case *ExternalHostCallInfo:
		return *v
	case *LocalGetInfo:
		return *v
	case *LocalSetInfo:
		return *v
	case *LocalTeeInfo:
		return *v
	case *GlobalGetInfo:
		return *v
	case *GlobalSetInfo:
		return *v
	case *LoadInfo:
		return *v
	case *StoreInfo:
		return *v
	case *MemorySizeInfo:
		return *v
	case *MemoryGrowInfo:
		return *v
	case *ConstInfo:
		return *v
	case *BinInfo:
		return *v
	case *BinShiftInfo:
		return *v
	case *BinBitInfo:
		return *v
	case *UnaryInfo:
		return *v
	case *TestInfo:
		return *v
	case *RelInfo:
		return *v
	case *ConversionInfo:
		return *v
	}
	return info
}

type stepInfoEnvelope struct {
	Kind string          `json:"kind"`
	Info json.RawMessage `json:"info"`
}

func marshalStepInfo(info StepInfo) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("step info cannot be nil")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s step: %w", info.Kind(), err)
	}
	return json.Marshal(stepInfoEnvelope{Kind: info.Kind(), Info: raw})
}

func unmarshalStepInfo(data []byte) (StepInfo, error) {
	var env stepInfoEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode step envelope: %w", err)
	}
	factory, ok := stepInfoFactories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown step kind %q", env.Kind)
	}
	info := factory()
	if len(env.Info) > 0 {
		if err := json.Unmarshal(env.Info, info); err != nil {
			return nil, fmt.Errorf("failed to decode %s step: %w", env.Kind, err)
		}
	}
	return derefStepInfo(info), nil
}
