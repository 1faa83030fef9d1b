// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Selection DAGs.  All nodes live in a PoolT and refer to one another
// by index.  Nodes are never freed or moved; rewriting allocates new
// nodes and redirects references to them.

package dag

import (
	"fmt"

	"github.com/s48/isel/target"
)

type NodeIdT int

const NoNode NodeIdT = -1

// The node variants are *IRNodeT, *MachineNodeT, *OperandNodeT, and
// *NoneNodeT.  Every consumer switches over all four.

type NodeT interface {
	isNode()
	Operands() []NodeIdT
}

type IROpcodeT int

const (
	Load IROpcodeT = iota
	Store
	Add
	Sub
	Mul
	Sext
	FIAddr
	GlobalAddr
	Bitcast
	Call
	Br
	Brcc
	Ret
	numIROpcodes
)

var irOpcodeNames = [numIROpcodes]string{
	Load:       "load",
	Store:      "store",
	Add:        "add",
	Sub:        "sub",
	Mul:        "mul",
	Sext:       "sext",
	FIAddr:     "fiaddr",
	GlobalAddr: "gbladdr",
	Bitcast:    "bitcast",
	Call:       "call",
	Br:         "br",
	Brcc:       "brcc",
	Ret:        "ret",
}

func (op IROpcodeT) String() string {
	if op < 0 || numIROpcodes <= op {
		return "<bad opcode>"
	}
	return irOpcodeNames[op]
}

func parseIROpcode(name string) (IROpcodeT, bool) {
	for i, opName := range irOpcodeNames {
		if opName == name {
			return IROpcodeT(i), true
		}
	}
	return 0, false
}

// An architecture-neutral operation.  Next links the statement roots
// of a block together.
type IRNodeT struct {
	Opcode IROpcodeT
	Args   []NodeIdT
	Type   target.MVTypeT
	Next   NodeIdT
}

// A machine instruction produced by instruction selection.  If
// RegClass is non-nil the instruction defines a fresh virtual register
// of that class.  If FixedDef is set it defines that physical register
// instead.
type MachineNodeT struct {
	Opcode   target.OpcodeT
	Args     []NodeIdT
	RegClass *target.RegisterClassT
	FixedDef target.RegisterIdT
	Next     NodeIdT
}

type OperandKindT int

const (
	ImmOperand OperandKindT = iota
	RegOperand
	SlotOperand
	BlockOperand
	CondOperand
	MemOperand
	GlobalOperand
)

type ImmKindT int

const (
	Int8 ImmKindT = iota
	Int32
	Int64
	F64
)

type ImmediateT struct {
	Kind  ImmKindT
	Int   int64
	Float float64
}

func (imm ImmediateT) String() string {
	switch imm.Kind {
	case Int8:
		return fmt.Sprintf("i8 %d", imm.Int)
	case Int32:
		return fmt.Sprintf("i32 %d", imm.Int)
	case Int64:
		return fmt.Sprintf("i64 %d", imm.Int)
	case F64:
		return fmt.Sprintf("f64 %g", imm.Float)
	}
	return "<bad immediate>"
}

// A stack frame slot.
type SlotT struct {
	Index int
	Type  target.MVTypeT
}

type CondCodeT int

const (
	CondEq CondCodeT = iota
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
)

var condNames = []string{"eq", "ne", "lt", "le", "gt", "ge"}

func (cc CondCodeT) String() string {
	return condNames[cc]
}

func parseCondCode(name string) (CondCodeT, bool) {
	for i, ccName := range condNames {
		if ccName == name {
			return CondCodeT(i), true
		}
	}
	return 0, false
}

// Memory addressed as base register + frame slot + offset.  Base and
// Slot are register and slot operand nodes.
type MemT struct {
	Base   NodeIdT
	Slot   NodeIdT
	Offset int32
}

type OperandNodeT struct {
	Kind   OperandKindT
	Imm    ImmediateT
	Reg    target.RegisterIdT
	Slot   SlotT
	Block  int
	Cond   CondCodeT
	Mem    MemT
	Global string
}

// The empty operand.
type NoneNodeT struct{}

func (node *IRNodeT) isNode()      {}
func (node *MachineNodeT) isNode() {}
func (node *OperandNodeT) isNode() {}
func (node *NoneNodeT) isNode()    {}

func (node *IRNodeT) Operands() []NodeIdT      { return node.Args }
func (node *MachineNodeT) Operands() []NodeIdT { return node.Args }
func (node *OperandNodeT) Operands() []NodeIdT { return nil }
func (node *NoneNodeT) Operands() []NodeIdT    { return nil }

//----------------------------------------------------------------

type PoolT struct {
	nodes []NodeT
}

func NewPool() *PoolT {
	return &PoolT{}
}

func (pool *PoolT) Len() int {
	return len(pool.nodes)
}

// Adds 'node' to the pool and returns its index, which remains valid
// for the life of the pool.
func (pool *PoolT) Alloc(node NodeT) NodeIdT {
	for _, arg := range node.Operands() {
		pool.check(arg)
	}
	if operand, ok := node.(*OperandNodeT); ok && operand.Kind == MemOperand {
		pool.check(operand.Mem.Base)
		pool.check(operand.Mem.Slot)
	}
	pool.nodes = append(pool.nodes, node)
	return NodeIdT(len(pool.nodes) - 1)
}

func (pool *PoolT) check(id NodeIdT) {
	if id < 0 || len(pool.nodes) <= int(id) {
		panic(fmt.Sprintf("node index %d is not in the pool", id))
	}
}

func (pool *PoolT) Node(id NodeIdT) NodeT {
	pool.check(id)
	return pool.nodes[id]
}

func (pool *PoolT) Operands(id NodeIdT) []NodeIdT {
	return pool.Node(id).Operands()
}

// Replaces the i'th operand of 'id' in place.
func (pool *PoolT) SetOperand(id NodeIdT, i int, operand NodeIdT) {
	pool.check(operand)
	args := pool.Operands(id)
	if i < 0 || len(args) <= i {
		panic(fmt.Sprintf("node %d has no operand %d", id, i))
	}
	args[i] = operand
}

// The statement following 'id' in its block, or NoNode.
func (pool *PoolT) Next(id NodeIdT) NodeIdT {
	switch node := pool.Node(id).(type) {
	case *IRNodeT:
		return node.Next
	case *MachineNodeT:
		return node.Next
	}
	return NoNode
}

func (pool *PoolT) SetNext(id NodeIdT, next NodeIdT) {
	if next != NoNode {
		pool.check(next)
	}
	switch node := pool.Node(id).(type) {
	case *IRNodeT:
		node.Next = next
	case *MachineNodeT:
		node.Next = next
	default:
		panic(fmt.Sprintf("node %d is not a statement", id))
	}
}

func (pool *PoolT) IsIR(id NodeIdT) bool {
	_, ok := pool.Node(id).(*IRNodeT)
	return ok
}

//----------------------------------------------------------------
// Allocation shorthands.

func (pool *PoolT) IR(opcode IROpcodeT, ty target.MVTypeT, args ...NodeIdT) NodeIdT {
	return pool.Alloc(&IRNodeT{Opcode: opcode, Args: args, Type: ty, Next: NoNode})
}

func (pool *PoolT) Machine(opcode target.OpcodeT, class *target.RegisterClassT, args ...NodeIdT) NodeIdT {
	return pool.Alloc(&MachineNodeT{Opcode: opcode, Args: args, RegClass: class, FixedDef: target.NoRegister, Next: NoNode})
}

// A machine node that defines the physical register 'reg'.
func (pool *PoolT) FixedMachine(opcode target.OpcodeT, reg target.RegisterIdT, args ...NodeIdT) NodeIdT {
	return pool.Alloc(&MachineNodeT{Opcode: opcode, Args: args, FixedDef: reg, Next: NoNode})
}

func (pool *PoolT) ImmOf(imm ImmediateT) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: ImmOperand, Imm: imm})
}

func (pool *PoolT) Imm32(value int32) NodeIdT {
	return pool.ImmOf(ImmediateT{Kind: Int32, Int: int64(value)})
}

func (pool *PoolT) Reg(reg target.RegisterIdT) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: RegOperand, Reg: reg})
}

func (pool *PoolT) SlotOf(index int, ty target.MVTypeT) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: SlotOperand, Slot: SlotT{Index: index, Type: ty}})
}

func (pool *PoolT) BlockRef(block int) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: BlockOperand, Block: block})
}

func (pool *PoolT) CondOf(cc CondCodeT) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: CondOperand, Cond: cc})
}

func (pool *PoolT) MemOf(base NodeIdT, slot NodeIdT, offset int32) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: MemOperand, Mem: MemT{Base: base, Slot: slot, Offset: offset}})
}

func (pool *PoolT) GlobalOf(name string) NodeIdT {
	return pool.Alloc(&OperandNodeT{Kind: GlobalOperand, Global: name})
}

func (pool *PoolT) None() NodeIdT {
	return pool.Alloc(&NoneNodeT{})
}
