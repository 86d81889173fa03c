package circuits

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// opcodeCase is a program run from zkmain (fid 1) together with a rejected
// variant of the same run. reject returns the slice the circuit must refuse
// with the named gate of table.
type opcodeCase struct {
	name    string
	program [][]specs.Opcode
	prepare func(t *testing.T, c *specs.CompilationTable)
	run     func(r *recorder)
	reject  func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice
	table   TableID
	gate    string
}

func (tc opcodeCase) compile(t *testing.T) *specs.CompilationTable {
	t.Helper()
	functions := append([][]specs.Opcode{{}}, tc.program...)
	c := &specs.CompilationTable{
		ITable:         specs.NewInstructionTable(functions),
		IMTable:        specs.NewInitMemoryTable(nil),
		ConfigureTable: specs.ConfigureTable{InitMemoryPages: 1, MaximalMemoryPages: 2},
		Functions:      make([]specs.FunctionSignature, len(functions)),
		Exports:        []specs.Export{{Name: specs.DefaultEntry, Fid: 1}},
	}
	if tc.prepare != nil {
		tc.prepare(t, c)
	}
	return c
}

func record(c *specs.CompilationTable, run func(r *recorder)) []specs.EventTableEntry {
	r := &recorder{state: c.InitializationState()}
	run(r)
	return r.steps
}

// replace swaps the step info of step i.
func replace(i int, info specs.StepInfo) func(*testing.T, *specs.CompilationTable, []specs.EventTableEntry) *specs.Slice {
	return func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
		steps[i].StepInfo = info
		return testSlice(t, c, steps)
	}
}

// arithCase pushes the operands, applies op and drops the result. The
// rejected run records alt: the same operands under another operator, which
// the program does not contain.
func arithCase(name string, operand specs.VarType, operands []uint64, op specs.Opcode, info, alt specs.StepInfo) opcodeCase {
	body := make([]specs.Opcode, 0, len(operands)+3)
	for _, v := range operands {
		body = append(body, specs.NewConst(operand, v))
	}
	body = append(body, op, specs.NewDrop(), specs.NewReturn(0, nil))
	return opcodeCase{
		name:    name,
		program: [][]specs.Opcode{body},
		run: func(r *recorder) {
			for _, v := range operands {
				r.step(specs.ConstInfo{VType: operand, Value: v})
			}
			r.step(info)
			r.step(specs.DropInfo{})
			r.step(specs.ReturnInfo{})
		},
		reject: replace(len(operands), alt),
		table:  EventTable,
		gate:   "image lookup",
	}
}

func binCase(op specs.BinOp, vt specs.VarType, l, r, want uint64) opcodeCase {
	alt := specs.BinAdd
	if op == specs.BinAdd {
		alt = specs.BinSub
	}
	altValue, _ := ComputeBin(alt, vt, l, r)
	return arithCase(fmt.Sprintf("bin %s.%s", vt, op), vt, []uint64{l, r}, specs.NewBin(op, vt),
		specs.BinInfo{Op: op, VType: vt, Left: l, Right: r, Value: want},
		specs.BinInfo{Op: alt, VType: vt, Left: l, Right: r, Value: altValue})
}

func shiftCase(op specs.ShiftOp, vt specs.VarType, l, r, want uint64) opcodeCase {
	alt := specs.ShiftShl
	if op == specs.ShiftShl {
		alt = specs.ShiftShrU
	}
	altValue, _ := ComputeShift(alt, vt, l, r)
	return arithCase(fmt.Sprintf("shift %s.%s", vt, op), vt, []uint64{l, r}, specs.NewBinShift(op, vt),
		specs.BinShiftInfo{Op: op, VType: vt, Left: l, Right: r, Value: want},
		specs.BinShiftInfo{Op: alt, VType: vt, Left: l, Right: r, Value: altValue})
}

func bitCase(op specs.BitOp, vt specs.VarType, l, r, want uint64) opcodeCase {
	alt := specs.BitAnd
	if op == specs.BitAnd {
		alt = specs.BitOr
	}
	altValue, _ := ComputeBit(alt, vt, l, r)
	return arithCase(fmt.Sprintf("bit %s.%s", vt, op), vt, []uint64{l, r}, specs.NewBinBit(op, vt),
		specs.BinBitInfo{Op: op, VType: vt, Left: l, Right: r, Value: want},
		specs.BinBitInfo{Op: alt, VType: vt, Left: l, Right: r, Value: altValue})
}

func relCase(op specs.RelOp, vt specs.VarType, l, r uint64, want uint32) opcodeCase {
	alt := specs.RelEq
	if op == specs.RelEq {
		alt = specs.RelNe
	}
	altValue, _ := ComputeRel(alt, vt, l, r)
	altResult := uint32(0)
	if altValue {
		altResult = 1
	}
	return arithCase(fmt.Sprintf("rel %s.%s", vt, op), vt, []uint64{l, r}, specs.NewRel(op, vt),
		specs.RelInfo{Op: op, VType: vt, Left: l, Right: r, Value: want},
		specs.RelInfo{Op: alt, VType: vt, Left: l, Right: r, Value: altResult})
}

func unaryCase(op specs.UnaryOp, vt specs.VarType, v, want uint64) opcodeCase {
	alt := specs.UnaryPopcnt
	if op == specs.UnaryPopcnt {
		alt = specs.UnaryCtz
	}
	altResult, _ := ComputeUnary(alt, vt, v)
	return arithCase(fmt.Sprintf("unary %s.%s", vt, op), vt, []uint64{v}, specs.NewUnary(op, vt),
		specs.UnaryInfo{Op: op, VType: vt, Operand: v, Result: want},
		specs.UnaryInfo{Op: alt, VType: vt, Operand: v, Result: altResult})
}

// conversionCase takes alt explicitly: it must read the same operand type.
func conversionCase(op, alt specs.ConversionOp, v, want uint64) opcodeCase {
	from, _ := op.Types()
	altResult, _ := ComputeConversion(alt, v)
	return arithCase(fmt.Sprintf("conversion %s", op), from, []uint64{v}, specs.NewConversion(op),
		specs.ConversionInfo{Op: op, Value: v, Result: want},
		specs.ConversionInfo{Op: alt, Value: v, Result: altResult})
}

func arithmeticCases() []opcodeCase {
	return []opcodeCase{
		binCase(specs.BinAdd, specs.I32, 0xffffffff, 2, 1),
		binCase(specs.BinSub, specs.I64, 3, 5, 0xfffffffffffffffe),
		binCase(specs.BinMul, specs.I32, 0x10000, 0x10001, 0x10000),
		binCase(specs.BinDivU, specs.I64, 100, 7, 14),
		binCase(specs.BinRemU, specs.I32, 100, 7, 2),
		binCase(specs.BinDivS, specs.I32, 0xfffffff9, 2, 0xfffffffd),
		binCase(specs.BinRemS, specs.I32, 0xfffffff9, 2, 0xffffffff),
		binCase(specs.BinDivS, specs.I64, 7, 0xfffffffffffffffe, 0xfffffffffffffffd),
		binCase(specs.BinRemS, specs.I64, 7, 0xfffffffffffffffe, 1),

		shiftCase(specs.ShiftShl, specs.I32, 1, 33, 2),
		shiftCase(specs.ShiftShrU, specs.I64, 0x8000000000000000, 4, 0x0800000000000000),
		shiftCase(specs.ShiftShrS, specs.I32, 0x80000000, 4, 0xf8000000),
		shiftCase(specs.ShiftRotl, specs.I32, 0x80000001, 1, 3),
		shiftCase(specs.ShiftRotr, specs.I64, 1, 1, 0x8000000000000000),

		bitCase(specs.BitAnd, specs.I32, 0xff00ff00, 0x0ff00ff0, 0x0f000f00),
		bitCase(specs.BitOr, specs.I64, 0xf0, 0x0f, 0xff),
		bitCase(specs.BitXor, specs.I32, 0xffffffff, 0x0000ffff, 0xffff0000),

		relCase(specs.RelLtS, specs.I32, 0xffffffff, 1, 1),
		relCase(specs.RelLtU, specs.I32, 0xffffffff, 1, 0),
		relCase(specs.RelGeS, specs.I64, 5, 5, 1),
		relCase(specs.RelNe, specs.I64, 1, 2, 1),
		relCase(specs.RelEq, specs.I32, 4, 4, 1),

		unaryCase(specs.UnaryCtz, specs.I32, 8, 3),
		unaryCase(specs.UnaryCtz, specs.I64, 0, 64),
		unaryCase(specs.UnaryClz, specs.I32, 1, 31),
		unaryCase(specs.UnaryPopcnt, specs.I64, 0xff, 8),

		conversionCase(specs.ConvI32WrapI64, specs.ConvI64Extend8S, 0x100000005, 5),
		conversionCase(specs.ConvI64ExtendI32S, specs.ConvI64ExtendI32U, 0xfffffffe, 0xfffffffffffffffe),
		conversionCase(specs.ConvI64ExtendI32U, specs.ConvI64ExtendI32S, 0xfffffffe, 0xfffffffe),
		conversionCase(specs.ConvI32Extend8S, specs.ConvI32Extend16S, 0x80, 0xffffff80),
		conversionCase(specs.ConvI64Extend16S, specs.ConvI64Extend8S, 0x7fff, 0x7fff),
	}
}

func eqzCases() []opcodeCase {
	return []opcodeCase{
		{
			name: "test eqz",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I32, 0),
				specs.NewTest(specs.TestEqz, specs.I32),
				specs.NewDrop(),
				specs.NewConst(specs.I64, 5),
				specs.NewTest(specs.TestEqz, specs.I64),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I32, Value: 0})
				r.step(specs.TestInfo{Op: specs.TestEqz, VType: specs.I32, Value: 0, Result: 1})
				r.step(specs.DropInfo{})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 5})
				r.step(specs.TestInfo{Op: specs.TestEqz, VType: specs.I64, Value: 5, Result: 0})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// eqz of a value the stack does not hold
			reject: replace(1, specs.TestInfo{Op: specs.TestEqz, VType: specs.I32, Value: 1, Result: 0}),
			table:  MemoryTable,
			gate:   "read value",
		},
	}
}

func stackCases() []opcodeCase {
	return []opcodeCase{
		{
			name: "select",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I64, 10),
				specs.NewConst(specs.I64, 20),
				specs.NewConst(specs.I32, 1),
				specs.NewSelect(specs.I64),
				specs.NewConst(specs.I64, 30),
				specs.NewConst(specs.I32, 0),
				specs.NewSelect(specs.I64),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I64, Value: 10})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 20})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 1})
				r.step(specs.SelectInfo{VType: specs.I64, Val1: 10, Val2: 20, Cond: 1, Result: 10})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 30})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 0})
				r.step(specs.SelectInfo{VType: specs.I64, Val1: 10, Val2: 30, Cond: 0, Result: 30})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the first select sees a zero condition that was never pushed
			reject: replace(3, specs.SelectInfo{VType: specs.I64, Val1: 10, Val2: 20, Cond: 0, Result: 20}),
			table:  MemoryTable,
			gate:   "read value",
		},
		{
			// the bottom slot plays the local: set it, tee over it, read it back
			name: "local set and tee",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I64, 0),
				specs.NewConst(specs.I64, 11),
				specs.NewLocalSet(specs.I64, 1),
				specs.NewConst(specs.I64, 12),
				specs.NewLocalTee(specs.I64, 2),
				specs.NewDrop(),
				specs.NewLocalGet(specs.I64, 1),
				specs.NewDrop(),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I64, Value: 0})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 11})
				r.step(specs.LocalSetInfo{VType: specs.I64, Depth: 1, Value: 11})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 12})
				r.step(specs.LocalTeeInfo{VType: specs.I64, Depth: 2, Value: 12})
				r.step(specs.DropInfo{})
				r.step(specs.LocalGetInfo{VType: specs.I64, Depth: 1, Value: 12})
				r.step(specs.DropInfo{})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// local.get returns the value local.tee overwrote
			reject: replace(6, specs.LocalGetInfo{VType: specs.I64, Depth: 1, Value: 11}),
			table:  MemoryTable,
			gate:   "read value",
		},
		{
			name: "global get and set",
			program: [][]specs.Opcode{{
				specs.NewGlobalGet(0),
				specs.NewConst(specs.I64, 1),
				specs.NewBin(specs.BinAdd, specs.I64),
				specs.NewGlobalSet(0),
				specs.NewGlobalGet(0),
				specs.NewDrop(),
				specs.NewGlobalGet(1),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			prepare: func(_ *testing.T, c *specs.CompilationTable) {
				c.IMTable = specs.NewInitMemoryTable([]specs.InitMemoryTableEntry{
					{LType: specs.LocationGlobal, IsMutable: true, Offset: 0, VType: specs.I64, Value: 5},
					{LType: specs.LocationGlobal, IsMutable: false, Offset: 1, VType: specs.I32, Value: 9},
				})
			},
			run: func(r *recorder) {
				r.step(specs.GlobalGetInfo{Idx: 0, VType: specs.I64, IsMutable: true, Value: 5})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 1})
				r.step(specs.BinInfo{Op: specs.BinAdd, VType: specs.I64, Left: 5, Right: 1, Value: 6})
				r.step(specs.GlobalSetInfo{Idx: 0, VType: specs.I64, IsMutable: true, Value: 6})
				r.step(specs.GlobalGetInfo{Idx: 0, VType: specs.I64, IsMutable: true, Value: 6})
				r.step(specs.DropInfo{})
				r.step(specs.GlobalGetInfo{Idx: 1, VType: specs.I32, IsMutable: false, Value: 9})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the same run against a program whose global 0 is immutable
			reject: func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
				c.IMTable.Set(specs.InitMemoryTableEntry{LType: specs.LocationGlobal, IsMutable: false, Offset: 0, VType: specs.I64, Value: 5})
				steps[0].StepInfo = specs.GlobalGetInfo{Idx: 0, VType: specs.I64, IsMutable: false, Value: 5}
				steps[3].StepInfo = specs.GlobalSetInfo{Idx: 0, VType: specs.I64, IsMutable: false, Value: 6}
				steps[4].StepInfo = specs.GlobalGetInfo{Idx: 0, VType: specs.I64, IsMutable: false, Value: 6}
				return testSlice(t, c, steps)
			},
			table: EventTable,
			gate:  "global set mutable",
		},
	}
}

func memoryCases() []opcodeCase {
	return []opcodeCase{
		{
			// 42 stored at byte 100 lands in the upper half of block 12
			name: "store then load at 100",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I32, 100),
				specs.NewConst(specs.I32, 42),
				specs.NewStore(specs.I32, specs.StoreByte32, 0),
				specs.NewConst(specs.I32, 100),
				specs.NewLoad(specs.I32, specs.ReadU32, 0),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I32, Value: 100})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 42})
				r.step(specs.StoreInfo{
					VType: specs.I32, StoreSize: specs.StoreByte32, RawAddress: 100, EffectiveAddress: 100,
					Value: 42, PreBlockValue1: 0, UpdatedBlockValue1: 42 << 32,
				})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 100})
				r.step(specs.LoadInfo{
					VType: specs.I32, LoadSize: specs.ReadU32, RawAddress: 100, EffectiveAddress: 100,
					Value: 42, BlockValue1: 42 << 32,
				})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the load returns the block as it was before the store
			reject: replace(4, specs.LoadInfo{
				VType: specs.I32, LoadSize: specs.ReadU32, RawAddress: 100, EffectiveAddress: 100,
			}),
			table: MemoryTable,
			gate:  "read value",
		},
		{
			// an i64 stored at byte 4 spans blocks 0 and 1; the signed loads
			// read 0x9876 across the block boundary and 0xfe inside block 1
			name: "cross block store and narrow signed loads",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I32, 4),
				specs.NewConst(specs.I64, 0xfedcba9876543210),
				specs.NewStore(specs.I64, specs.StoreByte64, 0),
				specs.NewConst(specs.I32, 7),
				specs.NewLoad(specs.I64, specs.ReadS16, 0),
				specs.NewDrop(),
				specs.NewConst(specs.I32, 3),
				specs.NewLoad(specs.I32, specs.ReadS8, 8),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I32, Value: 4})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 0xfedcba9876543210})
				r.step(specs.StoreInfo{
					VType: specs.I64, StoreSize: specs.StoreByte64, RawAddress: 4, EffectiveAddress: 4,
					Value:              0xfedcba9876543210,
					UpdatedBlockValue1: 0x7654321000000000,
					UpdatedBlockValue2: 0xfedcba98,
				})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 7})
				r.step(specs.LoadInfo{
					VType: specs.I64, LoadSize: specs.ReadS16, RawAddress: 7, EffectiveAddress: 7,
					Value: 0xffffffffffff9876, BlockValue1: 0x7654321000000000, BlockValue2: 0xfedcba98,
				})
				r.step(specs.DropInfo{})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 3})
				r.step(specs.LoadInfo{
					VType: specs.I32, LoadSize: specs.ReadS8, Offset: 8, RawAddress: 3, EffectiveAddress: 11,
					Value: 0xfffffffe, BlockValue1: 0xfedcba98,
				})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the crossing load sees block 1 untouched by the store
			reject: replace(4, specs.LoadInfo{
				VType: specs.I64, LoadSize: specs.ReadS16, RawAddress: 7, EffectiveAddress: 7,
				Value: 0x76, BlockValue1: 0x7654321000000000, BlockValue2: 0,
			}),
			table: MemoryTable,
			gate:  "read value",
		},
		{
			name: "memory size and grow",
			program: [][]specs.Opcode{{
				specs.NewMemorySize(),
				specs.NewDrop(),
				specs.NewConst(specs.I32, 1),
				specs.NewMemoryGrow(),
				specs.NewDrop(),
				specs.NewConst(specs.I32, 1),
				specs.NewMemoryGrow(),
				specs.NewDrop(),
				specs.NewMemorySize(),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.MemorySizeInfo{})
				r.step(specs.DropInfo{})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 1})
				r.step(specs.MemoryGrowInfo{Grow: 1, Result: 1})
				r.step(specs.DropInfo{})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 1})
				// a third page exceeds the maximum of two
				r.step(specs.MemoryGrowInfo{Grow: 1, Result: -1})
				r.step(specs.DropInfo{})
				r.step(specs.MemorySizeInfo{})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the successful grow allocates nothing
			reject: func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
				steps[4].AllocatedMemoryPages = 1
				steps[5].AllocatedMemoryPages = 1
				return testSlice(t, c, steps)
			},
			table: EventTable,
			gate:  "mpages transition",
		},
	}
}

func controlCases() []opcodeCase {
	return []opcodeCase{
		{
			// the taken br_if keeps 42 over the dropped 7
			name: "br_if",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I64, 7),
				specs.NewConst(specs.I64, 42),
				specs.NewConst(specs.I32, 1),
				specs.NewBrIf(1, []specs.VarType{specs.I64}, 5),
				specs.NewUnreachable(),
				specs.NewDrop(),
				specs.NewConst(specs.I32, 0),
				specs.NewBrIf(0, nil, 4),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I64, Value: 7})
				r.step(specs.ConstInfo{VType: specs.I64, Value: 42})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 1})
				r.step(specs.BrIfNezInfo{Condition: 1, DstPc: 5, Drop: 1, Keep: []specs.VarType{specs.I64}, KeepValues: []uint64{42}})
				r.step(specs.DropInfo{})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 0})
				r.step(specs.BrIfNezInfo{Condition: 0, DstPc: 4})
				r.step(specs.ReturnInfo{})
			},
			// the taken branch discards the kept value
			reject: replace(3, specs.BrIfNezInfo{Condition: 1, DstPc: 5, Drop: 1}),
			table:  EventTable,
			gate:   "image lookup",
		},
		{
			// index 5 is past the table and takes the default target
			name: "br_table",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I32, 5),
				specs.NewBrTable(3),
				specs.NewUnreachable(),
				specs.NewReturn(0, nil),
				specs.NewConst(specs.I32, 1),
				specs.NewBrTable(3),
			}},
			prepare: func(t *testing.T, c *specs.CompilationTable) {
				targets := []specs.BrTableEntry{{DstPc: 2}, {DstPc: 3}, {DstPc: 4}}
				require.NoError(t, c.ITable.SetBrTable(1, 1, targets))
				require.NoError(t, c.ITable.SetBrTable(1, 5, targets))
			},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I32, Value: 5})
				r.step(specs.BrTableInfo{Index: 5, DstPc: 4})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 1})
				r.step(specs.BrTableInfo{Index: 1, DstPc: 3})
				r.step(specs.ReturnInfo{})
			},
			// the out of range index jumps to target 1 instead of the default
			reject: func(t *testing.T, c *specs.CompilationTable, _ []specs.EventTableEntry) *specs.Slice {
				return testSlice(t, c, record(c, func(r *recorder) {
					r.step(specs.ConstInfo{VType: specs.I32, Value: 5})
					r.step(specs.BrTableInfo{Index: 5, DstPc: 3})
					r.step(specs.ReturnInfo{})
				}))
			},
			table: EventTable,
			gate:  "image lookup",
		},
		{
			name: "call_indirect",
			program: [][]specs.Opcode{
				{specs.NewConst(specs.I32, 0), specs.NewCallIndirect(0), specs.NewReturn(0, nil)},
				{specs.NewConst(specs.I32, 7), specs.NewDrop(), specs.NewReturn(0, nil)},
			},
			prepare: func(_ *testing.T, c *specs.CompilationTable) {
				c.ElemTable = specs.NewElemTable(specs.ElemEntry{TableIdx: 0, TypeIdx: 0, Offset: 0, FuncIdx: 2})
			},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I32, Value: 0})
				r.step(specs.CallIndirectInfo{TableIndex: 0, TypeIndex: 0, Offset: 0, FuncIndex: 2})
				r.step(specs.ConstInfo{VType: specs.I32, Value: 7})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
				r.state.Fid, r.state.Iid, r.state.FrameID = 1, 2, 0
				r.step(specs.ReturnInfo{})
			},
			// the elem slot names zkmain, not the function the trace entered
			reject: func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
				c.ElemTable = specs.NewElemTable(specs.ElemEntry{TableIdx: 0, TypeIdx: 0, Offset: 0, FuncIdx: 1})
				return testSlice(t, c, steps)
			},
			table: EventTable,
			gate:  "image lookup",
		},
		{
			name: "external host call",
			program: [][]specs.Opcode{{
				specs.NewConst(specs.I64, 9),
				specs.NewExternalHostCall(3, specs.HostArgument),
				specs.NewExternalHostCall(3, specs.HostReturn),
				specs.NewDrop(),
				specs.NewReturn(0, nil),
			}},
			run: func(r *recorder) {
				r.step(specs.ConstInfo{VType: specs.I64, Value: 9})
				r.step(specs.ExternalHostCallInfo{Op: 3, Sig: specs.HostArgument, Value: 9})
				r.step(specs.ExternalHostCallInfo{Op: 3, Sig: specs.HostReturn, Value: 81})
				r.step(specs.DropInfo{})
				r.step(specs.ReturnInfo{})
			},
			// the host returned another value than the trace pushed
			reject: func(t *testing.T, c *specs.CompilationTable, steps []specs.EventTableEntry) *specs.Slice {
				slice := testSlice(t, c, steps)
				slice.ExternalHostCallTable.Entries[1].Value = 82
				return slice
			},
			table: EventTable,
			gate:  "host call lookup",
		},
	}
}

func TestCircuitOpcodes(t *testing.T) {
	var cases []opcodeCase
	cases = append(cases, arithmeticCases()...)
	cases = append(cases, eqzCases()...)
	cases = append(cases, stackCases()...)
	cases = append(cases, memoryCases()...)
	cases = append(cases, controlCases()...)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.compile(t)
			config := testConfig(t, c)
			require.NoError(t, checkSlice(t, testSlice(t, c, record(c, tc.run)), config))

			err := checkSlice(t, tc.reject(t, c, record(c, tc.run)), config)
			var cerr *ConstraintError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			require.Equal(t, tc.table, cerr.Table, "got %v", err)
			require.Equal(t, tc.gate, cerr.Name, "got %v", err)
		})
	}
}

func TestCircuitStoreThenLoad(t *testing.T) {
	tc := memoryCases()[0]
	c := tc.compile(t)
	slice := testSlice(t, c, record(c, tc.run))
	require.NoError(t, checkSlice(t, slice, testConfig(t, c)))

	var rows []specs.MemoryTableEntry
	for _, e := range slice.MemoryTable.Entries {
		if e.LType == specs.LocationHeap && e.Offset == 100/8 {
			rows = append(rows, e)
		}
	}
	// init, the read and write of the store, the read of the load
	require.Len(t, rows, 4)
	require.Equal(t, specs.AccessInit, rows[0].AType)
	require.Zero(t, rows[0].Value)
	for _, e := range rows[2:] {
		require.Equal(t, uint64(42), e.Value>>32, "%s", e)
	}
	require.Equal(t, specs.AccessWrite, rows[2].AType)
	require.Equal(t, specs.AccessRead, rows[3].AType)
}

func TestCircuitCallIndirectElemMismatch(t *testing.T) {
	tc := controlCases()[2]
	c := tc.compile(t)
	config := testConfig(t, c)

	err := checkSlice(t, tc.reject(t, c, record(c, tc.run)), config)
	var cerr *ConstraintError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	require.Equal(t, ConstraintError{Table: EventTable, Row: StepBlockRows, Name: "image lookup"}, *cerr)
}
