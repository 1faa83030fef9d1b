// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package isel

import (
	"fmt"
	"maps"
	"math/bits"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/target"
)

// What rewrite functions get to work with: the pool to allocate
// replacement nodes in and the function's register naming.
type MatchContextT struct {
	Pool   *dag.PoolT
	Regs   *target.RegistersT
	Target *target.TargetT
}

func NewMatchContext(fn *dag.FunctionT) *MatchContextT {
	return &MatchContextT{Pool: fn.Pool, Regs: fn.Regs, Target: fn.Regs.Target}
}

// Matches 'pat' against node 'id'.  The second result reports
// whether there was a match; the first is the rewrite to apply, which
// is nil when the match needs no rewrite.  Matched nodes are added to
// 'captures' under their pattern names.  A failed match leaves
// 'captures' as it was.

func Matches(ctx *MatchContextT, id dag.NodeIdT, pat *PatT, captures CapturesT) (GenFnT, bool) {
	saved := maps.Clone(captures)
	generate, ok := matches(ctx, id, pat, captures)
	if !ok {
		clear(captures)
		maps.Copy(captures, saved)
	}
	return generate, ok
}

func matches(ctx *MatchContextT, id dag.NodeIdT, pat *PatT, captures CapturesT) (GenFnT, bool) {
	var ok bool
	switch pat.Kind {
	case IRPat:
		ok = matchIR(ctx, id, pat, captures)
	case OperandPat:
		ok = matchOperand(ctx, id, pat)
	case CompoundPat:
		for _, alt := range pat.Alternatives {
			if generate, altOk := Matches(ctx, id, alt, captures); altOk {
				if pat.Name != "" {
					captures[pat.Name] = id
				}
				if generate == nil {
					generate = pat.Generate
				}
				return generate, true
			}
		}
		return nil, false
	case MachinePat:
		return nil, false
	default:
		panic(fmt.Sprintf("matching with a %s pattern", pat.Kind))
	}
	if !ok {
		return nil, false
	}
	if pat.Name != "" {
		captures[pat.Name] = id
	}
	return pat.Generate, true
}

func matchIR(ctx *MatchContextT, id dag.NodeIdT, pat *PatT, captures CapturesT) bool {
	node, isIR := ctx.Pool.Node(id).(*dag.IRNodeT)
	if !isIR || node.Opcode != pat.Opcode {
		return false
	}
	if len(pat.Args) != 0 && len(pat.Args) != len(node.Args) {
		return false
	}
	for i, argPat := range pat.Args {
		if _, ok := matches(ctx, node.Args[i], argPat, captures); !ok {
			return false
		}
	}
	return !pat.HasType || pat.Type == node.Type
}

func matchOperand(ctx *MatchContextT, id dag.NodeIdT, pat *PatT) bool {
	kind := pat.Operand
	if kind.Kind == InvalidOperand {
		panic("matching an invalid operand pattern")
	}
	var result bool
	switch node := ctx.Pool.Node(id).(type) {
	case *dag.OperandNodeT:
		// Negation only applies to operand nodes.
		return matchOperandNode(ctx, node, kind) != pat.Not
	case *dag.IRNodeT:
		// Not yet selected, so all we know is its type.
		switch kind.Kind {
		case AnyOperand:
			result = true
		case RegOfClass:
			result = ctx.Target.TypeClass(node.Type) == kind.Class
		case AnyRegMatch:
			result = node.Type != target.Void
		}
	case *dag.MachineNodeT:
		class := node.RegClass
		if class == nil && node.FixedDef != target.NoRegister {
			class = ctx.Target.RegisterClass(node.FixedDef)
		}
		switch kind.Kind {
		case AnyOperand:
			result = true
		case RegOfClass:
			result = class == kind.Class
		case AnyRegMatch:
			result = class != nil
		}
	case *dag.NoneNodeT:
		return false
	}
	return result
}

func matchOperandNode(ctx *MatchContextT, node *dag.OperandNodeT, kind OperandKindT) bool {
	switch kind.Kind {
	case AnyOperand:
		return true
	case ImmMatch:
		return node.Kind == dag.ImmOperand && matchImm(node.Imm, kind)
	case RegOfClass:
		return node.Kind == dag.RegOperand && ctx.Regs.Class(node.Reg) == kind.Class
	case AnyRegMatch:
		return node.Kind == dag.RegOperand
	case SlotOfType:
		return node.Kind == dag.SlotOperand && node.Slot.Type == kind.Type
	case AnySlotMatch:
		return node.Kind == dag.SlotOperand
	case AnyBlockMatch:
		return node.Kind == dag.BlockOperand
	case AnyCCMatch:
		return node.Kind == dag.CondOperand
	}
	panic(fmt.Sprintf("bad operand pattern kind %d", kind.Kind))
}

func matchImm(imm dag.ImmediateT, kind OperandKindT) bool {
	switch kind.Imm {
	case AnyInt8:
		return imm.Kind == dag.Int8
	case AnyInt32:
		return imm.Kind == dag.Int32
	case AnyInt64:
		return imm.Kind == dag.Int64
	case AnyF64:
		return imm.Kind == dag.F64
	case AnyInt32PowerOf2:
		return imm.Kind == dag.Int32 && 0 < imm.Int && bits.OnesCount64(uint64(imm.Int)) == 1
	case Int32Imm:
		return imm.Kind == dag.Int32 && imm.Int == int64(kind.Value)
	case AnyImmediate:
		return true
	case NullImmediate:
		if imm.Kind == dag.F64 {
			return imm.Float == 0
		}
		return imm.Int == 0
	}
	panic(fmt.Sprintf("bad immediate pattern kind %d", kind.Imm))
}
