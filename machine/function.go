// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Machine functions: basic blocks of machine instructions in layout
// order, plus each register's uses and definitions.

package machine

import (
	"fmt"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/s48/isel/target"
	"github.com/s48/isel/util"
)

type OperandKindT int

const (
	RegOperand OperandKindT = iota
	ConstOperand
	FrameIndexOperand
	MemOperand
	BranchOperand
	GlobalOperand
	CondOperand
)

type OperandT struct {
	Kind   OperandKindT
	Reg    target.RegisterIdT // RegOperand, MemOperand base
	Const  int64
	Float  float64
	IsF64  bool
	Slot   int // FrameIndexOperand, MemOperand
	Offset int32
	Block  int
	Global string
	Cond   string
}

type InstT struct {
	Opcode   target.OpcodeT
	Operands []OperandT
	Def      []target.RegisterIdT
	ImpDef   []target.RegisterIdT
	ImpUse   []target.RegisterIdT
	Block    *BlockT
}

// Every register the instruction reads.
func (inst *InstT) UsedRegs() []target.RegisterIdT {
	result := []target.RegisterIdT{}
	for _, operand := range inst.Operands {
		if operand.Kind == RegOperand || operand.Kind == MemOperand {
			result = append(result, operand.Reg)
		}
	}
	return append(result, inst.ImpUse...)
}

// Every register the instruction writes.
func (inst *InstT) DefinedRegs() []target.RegisterIdT {
	return append(slices.Clone(inst.Def), inst.ImpDef...)
}

type BlockT struct {
	Id       int
	Insts    []*InstT
	Preds    util.SetT[*BlockT]
	Succs    util.SetT[*BlockT]
	Liveness *LivenessT
}

type FunctionT struct {
	Name   string
	Regs   *target.RegistersT
	Blocks []*BlockT // layout order
	Uses   map[target.RegisterIdT]util.SetT[*InstT]
	Defs   map[target.RegisterIdT]util.SetT[*InstT]
}

func NewFunction(name string, regs *target.RegistersT) *FunctionT {
	return &FunctionT{
		Name: name,
		Regs: regs,
		Uses: map[target.RegisterIdT]util.SetT[*InstT]{},
		Defs: map[target.RegisterIdT]util.SetT[*InstT]{},
	}
}

func (fn *FunctionT) AddBlock() *BlockT {
	block := &BlockT{
		Id:       len(fn.Blocks),
		Preds:    util.NewSet[*BlockT](),
		Succs:    util.NewSet[*BlockT](),
		Liveness: NewLiveness(fn.Regs.Target),
	}
	fn.Blocks = append(fn.Blocks, block)
	return block
}

func (fn *FunctionT) AddEdge(from *BlockT, to *BlockT) {
	from.Succs.Add(to)
	to.Preds.Add(from)
}

// Blocks sorted by id, for deterministic walks over edge sets.
func SortedBlocks(blocks util.SetT[*BlockT]) []*BlockT {
	result := make([]*BlockT, 0, len(blocks))
	for block := range blocks {
		result = append(result, block)
	}
	slices.SortFunc(result, func(x, y *BlockT) int { return x.Id - y.Id })
	return result
}

func (fn *FunctionT) AddInst(block *BlockT, inst *InstT) *InstT {
	inst.Block = block
	block.Insts = append(block.Insts, inst)
	fn.noteRegs(inst)
	return inst
}

func (fn *FunctionT) noteRegs(inst *InstT) {
	for _, reg := range inst.UsedRegs() {
		addToRegSet(fn.Uses, reg, inst)
	}
	for _, reg := range inst.DefinedRegs() {
		addToRegSet(fn.Defs, reg, inst)
	}
}

func addToRegSet(sets map[target.RegisterIdT]util.SetT[*InstT], reg target.RegisterIdT, inst *InstT) {
	set, found := sets[reg]
	if !found {
		set = util.NewSet[*InstT]()
		sets[reg] = set
	}
	set.Add(inst)
}

// Replaces every use and definition of 'from' with 'to', moving
// 'from's use and def sets over to 'to'.
func (fn *FunctionT) ReplaceReg(from, to target.RegisterIdT) {
	if from == to {
		return
	}
	replace := func(regs []target.RegisterIdT) {
		for i, reg := range regs {
			if reg == from {
				regs[i] = to
			}
		}
	}
	for _, sets := range []map[target.RegisterIdT]util.SetT[*InstT]{fn.Uses, fn.Defs} {
		for inst := range sets[from] {
			for i := range inst.Operands {
				operand := &inst.Operands[i]
				if (operand.Kind == RegOperand || operand.Kind == MemOperand) && operand.Reg == from {
					operand.Reg = to
				}
			}
			replace(inst.Def)
			replace(inst.ImpDef)
			replace(inst.ImpUse)
			addToRegSet(sets, to, inst)
		}
		delete(sets, from)
	}
}

// Removes 'reg' from every block's liveness record.
func (fn *FunctionT) RemoveRegFromLiveness(reg target.RegisterIdT) {
	for _, block := range fn.Blocks {
		block.Liveness.Remove(reg)
	}
}

// Appends 'src' to 'dst' and removes 'src' from the function.  'src'
// must be 'dst's only successor and 'dst' must be 'src's only
// predecessor.  The liveness records are merged.  Block ids are not
// changed, since branches refer to them.
func (fn *FunctionT) MergeBlocks(dst *BlockT, src *BlockT) {
	if len(dst.Succs) != 1 || !dst.Succs.Contains(src) || len(src.Preds) != 1 {
		panic(fmt.Sprintf("%s: cannot merge block %d into block %d", fn.Name, src.Id, dst.Id))
	}
	if len(dst.Insts) != 0 {
		last := dst.Insts[len(dst.Insts)-1]
		if last.Opcode == target.JMP {
			dst.Insts = dst.Insts[:len(dst.Insts)-1]
			fn.forgetInst(last)
		}
	}
	dst.Succs = util.NewSet[*BlockT]()
	for succ := range src.Succs {
		succ.Preds.Remove(src)
		fn.AddEdge(dst, succ)
	}
	for _, inst := range src.Insts {
		inst.Block = dst
	}
	dst.Insts = append(dst.Insts, src.Insts...)

	// Registers that 'dst' defines and 'src' reads are now internal
	// to the merged block, unless 'dst' also reads them first.
	var dstDef, dstLiveIn intsets.Sparse
	dstDef.Copy(&dst.Liveness.Def)
	dstLiveIn.Copy(&dst.Liveness.LiveIn)
	dst.Liveness.Merge(src.Liveness)
	dst.Liveness.LiveOut.Copy(&src.Liveness.LiveOut)
	for _, reg := range Registers(&src.Liveness.LiveIn) {
		if dst.Liveness.Covers(&dstDef, reg) && !dst.Liveness.Covers(&dstLiveIn, reg) {
			dst.Liveness.LiveIn.Remove(int(reg))
		}
	}

	index := slices.Index(fn.Blocks, src)
	fn.Blocks = slices.Delete(fn.Blocks, index, index+1)
}

func (fn *FunctionT) forgetInst(inst *InstT) {
	for _, reg := range inst.UsedRegs() {
		fn.Uses[reg].Remove(inst)
	}
	for _, reg := range inst.DefinedRegs() {
		fn.Defs[reg].Remove(inst)
	}
}
