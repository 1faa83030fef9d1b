// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Converting a selected DAG into machine instructions.  Statements
// are emitted in order, each one after the machine nodes it uses.  A
// machine node is emitted once, at its first use, and the register it
// defines stands in for it wherever else it is used.

package machine

import (
	"fmt"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/target"
	"github.com/s48/isel/util"

	"tlog.app/go/tlog"
)

type converterT struct {
	src    *dag.FunctionT
	fn     *FunctionT
	values map[dag.NodeIdT]target.RegisterIdT
}

func Convert(src *dag.FunctionT) *FunctionT {
	fn := NewFunction(src.Name, src.Regs)
	for range src.Blocks {
		fn.AddBlock()
	}
	for i, block := range src.Blocks {
		for _, succ := range util.Sorted(block.Succs) {
			fn.AddEdge(fn.Blocks[i], fn.Blocks[succ])
		}
	}
	conv := &converterT{src: src, fn: fn, values: map[dag.NodeIdT]target.RegisterIdT{}}
	for i, block := range src.Blocks {
		for _, stmt := range src.Statements(block) {
			conv.emit(fn.Blocks[i], stmt)
		}
	}
	if tlog.If("convert") {
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				tlog.Printw("inst", "block", block.Id, "inst", fn.InstString(inst))
			}
		}
	}
	return fn
}

// Emits node 'id' and returns the register it defines, if any.
func (conv *converterT) emit(block *BlockT, id dag.NodeIdT) target.RegisterIdT {
	if reg, found := conv.values[id]; found {
		return reg
	}
	node, ok := conv.src.Pool.Node(id).(*dag.MachineNodeT)
	if !ok {
		panic(fmt.Sprintf("%s: cannot convert node %s", conv.fn.Name, conv.src.NodeString(id)))
	}
	inst := &InstT{Opcode: node.Opcode}
	for _, arg := range node.Args {
		conv.operand(block, inst, arg)
	}
	result := target.NoRegister
	if node.RegClass != nil {
		result = conv.fn.Regs.NewVirtReg(node.RegClass)
		inst.Def = []target.RegisterIdT{result}
	} else if node.FixedDef != target.NoRegister {
		result = node.FixedDef
		inst.Def = []target.RegisterIdT{result}
	}
	// Implicit definitions in the same file as the explicit one, such
	// as a call's result register, are left out.
	tgt := conv.fn.Regs.Target
	uses, defs := tgt.ImplicitRegs(node.Opcode)
	inst.ImpUse = append(inst.ImpUse, uses...)
	for _, reg := range defs {
		if !result.IsPhysical() || tgt.File(reg) != tgt.File(result) {
			inst.ImpDef = append(inst.ImpDef, reg)
		}
	}
	conv.fn.AddInst(block, inst)
	conv.values[id] = result
	return result
}

func (conv *converterT) operand(block *BlockT, inst *InstT, id dag.NodeIdT) {
	pool := conv.src.Pool
	switch node := pool.Node(id).(type) {
	case *dag.MachineNodeT:
		// Machine nodes with no result, such as compares, are only
		// ordering dependencies.
		if reg := conv.emit(block, id); reg != target.NoRegister {
			inst.Operands = append(inst.Operands, OperandT{Kind: RegOperand, Reg: reg})
		}
	case *dag.OperandNodeT:
		inst.Operands = append(inst.Operands, conv.convertOperand(node))
	case *dag.NoneNodeT:
	default:
		panic(fmt.Sprintf("%s: unselected operand %s", conv.fn.Name, conv.src.NodeString(id)))
	}
}

func (conv *converterT) convertOperand(node *dag.OperandNodeT) OperandT {
	switch node.Kind {
	case dag.ImmOperand:
		if node.Imm.Kind == dag.F64 {
			return OperandT{Kind: ConstOperand, Float: node.Imm.Float, IsF64: true}
		}
		return OperandT{Kind: ConstOperand, Const: node.Imm.Int}
	case dag.RegOperand:
		return OperandT{Kind: RegOperand, Reg: node.Reg}
	case dag.SlotOperand:
		return OperandT{Kind: FrameIndexOperand, Slot: node.Slot.Index}
	case dag.BlockOperand:
		return OperandT{Kind: BranchOperand, Block: node.Block}
	case dag.CondOperand:
		return OperandT{Kind: CondOperand, Cond: node.Cond.String()}
	case dag.GlobalOperand:
		return OperandT{Kind: GlobalOperand, Global: node.Global}
	case dag.MemOperand:
		pool := conv.src.Pool
		base, ok1 := pool.Node(node.Mem.Base).(*dag.OperandNodeT)
		slot, ok2 := pool.Node(node.Mem.Slot).(*dag.OperandNodeT)
		if !ok1 || !ok2 || base.Kind != dag.RegOperand || slot.Kind != dag.SlotOperand {
			panic(fmt.Sprintf("%s: bad memory operand", conv.fn.Name))
		}
		return OperandT{Kind: MemOperand, Reg: base.Reg, Slot: slot.Slot.Index, Offset: node.Mem.Offset}
	}
	panic(fmt.Sprintf("%s: bad operand kind %d", conv.fn.Name, node.Kind))
}
