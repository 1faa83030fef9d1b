// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Patterns for x86-64.  This covers 32-bit integer arithmetic, frame
// slot loads and stores, branches, calls, and returns.

package isel

import (
	"fmt"
	"math/bits"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/target"
)

func X86Patterns(tgt *target.TargetT) []*PatT {
	gr32 := tgt.Class("GR32")
	gr64 := tgt.Class("GR64")
	reg32 := func(name string) *PatT { return RegClass(gr32).Named(name) }
	reg64 := func(name string) *PatT { return RegClass(gr64).Named(name) }
	imm32 := func(name string) *PatT { return AnyI32Imm().Named(name) }
	slot64 := Or(Slot(target.I64), Slot(target.Ptr))

	return ReorderPatterns([]*PatT{
		// (x + c1) + c2 => x + (c1 + c2)
		Add(Add(Any().Named("x"), imm32("c1")), imm32("c2")).Ty(target.I32).Gen(foldAdds),

		Store(FIAddr(Slot(target.I32).Named("dst")), imm32("src")).Gen(storeTo(target.MOVmi32)),
		Store(FIAddr(Slot(target.I32).Named("dst")), reg32("src")).Gen(storeTo(target.MOVmr32)),
		Store(FIAddr(slot64.Named("dst")), reg64("src")).Gen(storeTo(target.MOVmr64)),
		Load(FIAddr(Slot(target.I32).Named("src"))).Gen(loadFrom(target.MOVrm32, gr32)),
		Load(FIAddr(slot64.Named("src"))).Gen(loadFrom(target.MOVrm64, gr64)),
		FIAddr(AnySlot().Named("src")).Gen(loadFrom(target.LEAr64m, gr64)),

		Add(reg32("x"), imm32("y")).Gen(binary(target.ADDri32, gr32)),
		Add(imm32("y"), reg32("x")).Gen(binary(target.ADDri32, gr32)),
		Add(reg32("x"), reg32("y")).Gen(binary(target.ADDrr32, gr32)),
		Sub(reg32("x"), imm32("y")).Gen(binary(target.SUBri32, gr32)),
		Sub(reg32("x"), reg32("y")).Gen(binary(target.SUBrr32, gr32)),
		Mul(reg32("x"), AnyI32ImmPowerOf2().Named("y")).Gen(shiftLeft),
		Mul(reg32("x"), imm32("y")).Gen(binary(target.IMULrri32, gr32)),
		Mul(reg32("x"), reg32("y")).Gen(binary(target.IMULrr32, gr32)),
		Sext(reg32("x")).Ty(target.I64).Gen(unary(target.MOVSXDr64r32, gr64)),
		Bitcast(Or(reg64("x"), reg32("x"))).Gen(passThrough),

		Br(AnyBlock().Named("dest")).Gen(jump),
		Brcc(AnyCC().Named("cc"), reg32("x"), imm32("y"), AnyBlock().Named("dest")).Gen(branch(target.CMPri32)),
		Brcc(AnyCC().Named("cc"), reg32("x"), reg32("y"), AnyBlock().Named("dest")).Gen(branch(target.CMPrr32)),

		Ret(imm32("value")).Gen(returnValue(target.MOVri32, gr32)),
		Ret(reg32("value")).Gen(returnValue(target.MOVrr32, gr32)),
		Ret(reg64("value")).Gen(returnValue(target.MOVrr64, gr64)),
		Ir(dag.Ret).Named("ret").Gen(returnVoid),

		Call().Named("call").Gen(call),
	})
}

func immValue(ctx *MatchContextT, id dag.NodeIdT) int32 {
	return int32(ctx.Pool.Node(id).(*dag.OperandNodeT).Imm.Int)
}

// Frame slot memory operand.
func frameMem(ctx *MatchContextT, slot dag.NodeIdT) dag.NodeIdT {
	return ctx.Pool.MemOf(ctx.Pool.Reg(ctx.Target.FramePointer), slot, 0)
}

func foldAdds(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	sum := immValue(ctx, captures["c1"]) + immValue(ctx, captures["c2"])
	return ctx.Pool.IR(dag.Add, target.I32, captures["x"], ctx.Pool.Imm32(sum))
}

func storeTo(opcode target.OpcodeT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		return ctx.Pool.Machine(opcode, nil, frameMem(ctx, captures["dst"]), captures["src"])
	}
}

func loadFrom(opcode target.OpcodeT, class *target.RegisterClassT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		return ctx.Pool.Machine(opcode, class, frameMem(ctx, captures["src"]))
	}
}

func unary(opcode target.OpcodeT, class *target.RegisterClassT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		return ctx.Pool.Machine(opcode, class, captures["x"])
	}
}

func binary(opcode target.OpcodeT, class *target.RegisterClassT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		return ctx.Pool.Machine(opcode, class, captures["x"], captures["y"])
	}
}

func shiftLeft(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	shift := bits.TrailingZeros32(uint32(immValue(ctx, captures["y"])))
	return ctx.Pool.Machine(target.SHLri32, ctx.Target.Class("GR32"), captures["x"], ctx.Pool.Imm32(int32(shift)))
}

func passThrough(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	return captures["x"]
}

func jump(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	return ctx.Pool.Machine(target.JMP, nil, captures["dest"])
}

// The compare has no register result.  It is an operand of the jump
// so that it gets emitted first.
func branch(compare target.OpcodeT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		pool := ctx.Pool
		cmp := pool.Machine(compare, nil, captures["x"], captures["y"])
		return pool.Machine(target.JCC, nil, captures["cc"], cmp, captures["dest"])
	}
}

func returnValue(move target.OpcodeT, class *target.RegisterClassT) GenFnT {
	return func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
		reg := ctx.Target.ReturnRegister(class)
		if reg == target.NoRegister {
			panic(fmt.Sprintf("no return register for %s", class))
		}
		value := ctx.Pool.FixedMachine(move, reg, captures["value"])
		return ctx.Pool.Machine(target.RET, nil, value)
	}
}

func returnVoid(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	if args := ctx.Pool.Operands(captures["ret"]); len(args) != 0 {
		panic(fmt.Sprintf("no pattern for returning node %d", args[0]))
	}
	return ctx.Pool.Machine(target.RET, nil)
}

// (call <type> <callee> <arg> ...)
// Each argument is copied into the next argument register for its
// class.  Classes whose argument registers alias one another, such as
// GR32 and GR64, share one sequence.  The arguments are not selected
// yet; they are selected when the new call node's operands are.
func call(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
	pool := ctx.Pool
	id := captures["call"]
	node := pool.Node(id).(*dag.IRNodeT)
	if len(node.Args) == 0 {
		panic(fmt.Sprintf("call node %d has no callee", id))
	}
	used := map[target.RegKeyT]int{}
	operands := []dag.NodeIdT{node.Args[0]}
	for _, arg := range node.Args[1:] {
		class := valueClass(ctx, arg)
		regs := ctx.Target.ArgumentRegisters(class)
		if len(regs) == 0 {
			panic(fmt.Sprintf("no argument registers for %s in call node %d", class, id))
		}
		key := ctx.Target.File(regs[0])
		if len(regs) <= used[key] {
			panic(fmt.Sprintf("too many %s arguments in call node %d", class, id))
		}
		operands = append(operands, pool.FixedMachine(target.COPY, regs[used[key]], arg))
		used[key] += 1
	}
	result := target.NoRegister
	if class := ctx.Target.TypeClass(node.Type); class != nil {
		result = ctx.Target.ReturnRegister(class)
	}
	return pool.FixedMachine(target.CALL, result, operands...)
}

// The register class needed to hold the value of node 'id'.
func valueClass(ctx *MatchContextT, id dag.NodeIdT) *target.RegisterClassT {
	var class *target.RegisterClassT
	switch node := ctx.Pool.Node(id).(type) {
	case *dag.IRNodeT:
		class = ctx.Target.TypeClass(node.Type)
	case *dag.MachineNodeT:
		class = node.RegClass
		if class == nil && node.FixedDef != target.NoRegister {
			class = ctx.Target.RegisterClass(node.FixedDef)
		}
	case *dag.OperandNodeT:
		switch node.Kind {
		case dag.RegOperand:
			class = ctx.Regs.Class(node.Reg)
		case dag.ImmOperand:
			class = ctx.Target.TypeClass([...]target.MVTypeT{target.I8, target.I32, target.I64, target.F64}[node.Imm.Kind])
		}
	}
	if class == nil {
		panic(fmt.Sprintf("node %d has no register class", id))
	}
	return class
}
