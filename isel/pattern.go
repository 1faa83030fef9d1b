// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Instruction patterns.  A pattern describes the shape of a DAG
// subtree.  It may carry a name, under which the matched node is
// captured, and a rewrite function that generates the replacement.
//
//   Store(FIAddr(Slot(target.I32)).Named("dst"), AnyI32Imm().Named("src")).
//       Gen(storeImm)
//
// Patterns are never modified after they are built; the builder
// methods return fresh copies.

package isel

import (
	"fmt"
	"slices"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/target"
)

// Rewrite functions get the captured nodes, already selected, and
// return the replacement node.
type GenFnT func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT

type CapturesT map[string]dag.NodeIdT

type PatKindT int

const (
	IRPat PatKindT = iota
	MachinePat
	OperandPat
	CompoundPat
	InvalidPat
)

type PatT struct {
	Kind     PatKindT
	Name     string
	Generate GenFnT

	// IRPat
	Opcode  dag.IROpcodeT
	Args    []*PatT
	Type    target.MVTypeT
	HasType bool

	// OperandPat
	Operand OperandKindT
	Not     bool

	// CompoundPat
	Alternatives []*PatT
}

type OperandKindT struct {
	Kind  OperandMatchT
	Imm   ImmMatchT
	Value int32                  // for Int32Imm
	Class *target.RegisterClassT // for RegOfClass
	Type  target.MVTypeT         // for SlotOfType
}

type OperandMatchT int

const (
	AnyOperand OperandMatchT = iota
	ImmMatch
	RegOfClass
	AnyRegMatch
	SlotOfType
	AnySlotMatch
	AnyBlockMatch
	AnyCCMatch
	InvalidOperand
)

type ImmMatchT int

const (
	AnyInt8 ImmMatchT = iota
	AnyInt32
	AnyInt64
	AnyF64
	AnyInt32PowerOf2
	Int32Imm
	AnyImmediate
	NullImmediate
)

func (pat *PatT) copy() *PatT {
	result := *pat
	return &result
}

func (pat *PatT) Named(name string) *PatT {
	if pat.Kind == MachinePat || pat.Kind == InvalidPat {
		panic(fmt.Sprintf("cannot name a %s pattern", pat.Kind))
	}
	result := pat.copy()
	result.Name = name
	return result
}

func (pat *PatT) Ty(ty target.MVTypeT) *PatT {
	if pat.Kind != IRPat {
		panic(fmt.Sprintf("cannot give a type to a %s pattern", pat.Kind))
	}
	result := pat.copy()
	result.Type = ty
	result.HasType = true
	return result
}

func (pat *PatT) Gen(generate GenFnT) *PatT {
	if pat.Kind == MachinePat || pat.Kind == InvalidPat {
		panic(fmt.Sprintf("cannot give a rewrite to a %s pattern", pat.Kind))
	}
	result := pat.copy()
	result.Generate = generate
	return result
}

// Operands count as one level, IR and compound patterns as one more
// than their deepest child.
func (pat *PatT) Depth() int {
	children := []*PatT{}
	switch pat.Kind {
	case OperandPat:
		return 1
	case IRPat:
		children = pat.Args
	case CompoundPat:
		children = pat.Alternatives
	default:
		return 0
	}
	depth := 0
	for _, child := range children {
		depth = max(depth, child.Depth())
	}
	return depth + 1
}

func (kind PatKindT) String() string {
	return [...]string{"IR", "machine", "operand", "compound", "invalid"}[kind]
}

// Returns a copy of 'pats' with the deepest patterns first.  The
// sort is stable so that patterns of equal depth keep their order.
func ReorderPatterns(pats []*PatT) []*PatT {
	result := slices.Clone(pats)
	slices.SortStableFunc(result, func(x, y *PatT) int {
		return y.Depth() - x.Depth()
	})
	return result
}

//----------------------------------------------------------------
// Constructors

func Ir(opcode dag.IROpcodeT, args ...*PatT) *PatT {
	return &PatT{Kind: IRPat, Opcode: opcode, Args: args}
}

// Reserved for matching machine nodes by opcode.  The matcher never
// matches these.
func Machine() *PatT {
	return &PatT{Kind: MachinePat}
}

func Invalid() *PatT {
	return &PatT{Kind: InvalidPat}
}

// Any of 'alternatives', tried deepest first.
func Or(alternatives ...*PatT) *PatT {
	flat := []*PatT{}
	for _, alt := range alternatives {
		if alt.Kind == CompoundPat && alt.Name == "" && alt.Generate == nil {
			flat = append(flat, alt.Alternatives...)
		} else {
			flat = append(flat, alt)
		}
	}
	return &PatT{Kind: CompoundPat, Alternatives: ReorderPatterns(flat)}
}

func operandPat(kind OperandKindT) *PatT {
	return &PatT{Kind: OperandPat, Operand: kind}
}

func immPat(imm ImmMatchT) *PatT {
	return operandPat(OperandKindT{Kind: ImmMatch, Imm: imm})
}

func Any() *PatT               { return operandPat(OperandKindT{Kind: AnyOperand}) }
func AnyImm() *PatT            { return immPat(AnyImmediate) }
func AnyI8Imm() *PatT          { return immPat(AnyInt8) }
func AnyI32Imm() *PatT         { return immPat(AnyInt32) }
func AnyI64Imm() *PatT         { return immPat(AnyInt64) }
func AnyF64Imm() *PatT         { return immPat(AnyF64) }
func AnyI32ImmPowerOf2() *PatT { return immPat(AnyInt32PowerOf2) }
func NullImm() *PatT           { return immPat(NullImmediate) }
func AnyReg() *PatT            { return operandPat(OperandKindT{Kind: AnyRegMatch}) }
func AnySlot() *PatT           { return operandPat(OperandKindT{Kind: AnySlotMatch}) }
func AnyBlock() *PatT          { return operandPat(OperandKindT{Kind: AnyBlockMatch}) }
func AnyCC() *PatT             { return operandPat(OperandKindT{Kind: AnyCCMatch}) }

func I32Imm(value int32) *PatT {
	return operandPat(OperandKindT{Kind: ImmMatch, Imm: Int32Imm, Value: value})
}

func RegClass(class *target.RegisterClassT) *PatT {
	return operandPat(OperandKindT{Kind: RegOfClass, Class: class})
}

func Slot(ty target.MVTypeT) *PatT {
	return operandPat(OperandKindT{Kind: SlotOfType, Type: ty})
}

func Not(pat *PatT) *PatT {
	if pat.Kind != OperandPat {
		panic(fmt.Sprintf("cannot negate a %s pattern", pat.Kind))
	}
	result := pat.copy()
	result.Not = !pat.Not
	return result
}

func Load(addr *PatT) *PatT        { return Ir(dag.Load, addr) }
func Store(addr, value *PatT) *PatT { return Ir(dag.Store, addr, value) }
func Add(x, y *PatT) *PatT          { return Ir(dag.Add, x, y) }
func Sub(x, y *PatT) *PatT          { return Ir(dag.Sub, x, y) }
func Mul(x, y *PatT) *PatT          { return Ir(dag.Mul, x, y) }
func Sext(x *PatT) *PatT            { return Ir(dag.Sext, x) }
func FIAddr(slot *PatT) *PatT       { return Ir(dag.FIAddr, slot) }
func GlobalAddr(name *PatT) *PatT   { return Ir(dag.GlobalAddr, name) }
func Bitcast(x *PatT) *PatT         { return Ir(dag.Bitcast, x) }
func Ret(value *PatT) *PatT         { return Ir(dag.Ret, value) }
func Br(block *PatT) *PatT          { return Ir(dag.Br, block) }

func Brcc(cc, x, y, block *PatT) *PatT {
	return Ir(dag.Brcc, cc, x, y, block)
}

// A call with any number of arguments.
func Call() *PatT { return Ir(dag.Call) }
