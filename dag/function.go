// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package dag

import (
	"fmt"

	"github.com/s48/isel/target"
	"github.com/s48/isel/util"
)

// A function as handed over by IR lowering: a pool, one entry node per
// block, and the control-flow edges.
type FunctionT struct {
	Name   string
	Pool   *PoolT
	Regs   *target.RegistersT
	Blocks []*BlockT
}

type BlockT struct {
	Id    int
	Entry NodeIdT // first statement, or NoNode for an empty block
	Preds util.SetT[int]
	Succs util.SetT[int]
}

func NewFunction(name string, tgt *target.TargetT) *FunctionT {
	return &FunctionT{Name: name, Pool: NewPool(), Regs: target.NewRegisters(tgt)}
}

func (fn *FunctionT) AddBlock() *BlockT {
	block := &BlockT{
		Id:    len(fn.Blocks),
		Entry: NoNode,
		Preds: util.NewSet[int](),
		Succs: util.NewSet[int](),
	}
	fn.Blocks = append(fn.Blocks, block)
	return block
}

func (fn *FunctionT) AddEdge(from *BlockT, to *BlockT) {
	from.Succs.Add(to.Id)
	to.Preds.Add(from.Id)
}

// Appends 'id' to the statement chain of 'block'.
func (fn *FunctionT) AddStatement(block *BlockT, id NodeIdT) {
	if block.Entry == NoNode {
		block.Entry = id
		return
	}
	last := block.Entry
	for next := fn.Pool.Next(last); next != NoNode; next = fn.Pool.Next(last) {
		last = next
	}
	fn.Pool.SetNext(last, id)
}

// The statement roots of 'block', in order.
func (fn *FunctionT) Statements(block *BlockT) []NodeIdT {
	result := []NodeIdT{}
	for id := block.Entry; id != NoNode; id = fn.Pool.Next(id) {
		result = append(result, id)
	}
	return result
}

// Every node reachable from a block entry, through operands, memory
// operand parts, and statement chains.  The result is in no
// particular order.
func (fn *FunctionT) Reachable() util.SetT[NodeIdT] {
	seen := util.NewSet[NodeIdT]()
	stack := util.NewStack[NodeIdT]()
	for _, block := range fn.Blocks {
		if block.Entry != NoNode {
			stack.Push(block.Entry)
		}
	}
	for !stack.Empty() {
		id := stack.Pop()
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		pool := fn.Pool
		stack.Push(pool.Operands(id)...)
		if next := pool.Next(id); next != NoNode {
			stack.Push(next)
		}
		if operand, ok := pool.Node(id).(*OperandNodeT); ok && operand.Kind == MemOperand {
			stack.Push(operand.Mem.Base, operand.Mem.Slot)
		}
	}
	return seen
}

// Panics if any IR node is still reachable.  After selection the pool
// should contain only machine and operand nodes.
func (fn *FunctionT) CheckSelected() {
	for _, id := range util.Sorted(fn.Reachable()) {
		if node, ok := fn.Pool.Node(id).(*IRNodeT); ok {
			panic(fmt.Sprintf("%s: no pattern selected node %d (%s)", fn.Name, id, node.Opcode))
		}
	}
}
