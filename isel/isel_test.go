// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package isel

import (
	"maps"
	"testing"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/target"
)

func newTestFunction() (*dag.FunctionT, *MatchContextT) {
	fn := dag.NewFunction("test", target.DefaultTarget())
	return fn, NewMatchContext(fn)
}

func expectPanic(t *testing.T, what string, thunk func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected a panic", what)
		}
	}()
	thunk()
}

func TestDepth(t *testing.T) {
	deep := Store(FIAddr(Slot(target.I32)), AnyI32Imm())
	shallow := Ir(dag.Ret)
	if deep.Depth() != 3 || shallow.Depth() != 1 || Any().Depth() != 1 {
		t.Errorf("bad depths %d %d", deep.Depth(), shallow.Depth())
	}
	if Or(Any(), deep).Depth() != 4 {
		t.Errorf("bad compound depth %d", Or(Any(), deep).Depth())
	}
	first := Load(Any())
	second := Load(AnyReg())
	reordered := ReorderPatterns([]*PatT{shallow, first, deep, second})
	want := []*PatT{deep, first, second, shallow}
	for i := range want {
		if reordered[i] != want[i] {
			t.Errorf("position %d has depth %d", i, reordered[i].Depth())
		}
	}
	alts := Or(Any(), FIAddr(Any())).Alternatives
	if alts[0].Kind != IRPat || alts[1].Kind != OperandPat {
		t.Errorf("compound alternatives not ordered by depth")
	}
}

func TestMalformedPatterns(t *testing.T) {
	expectPanic(t, "type on operand", func() { Any().Ty(target.I32) })
	expectPanic(t, "name on machine", func() { Machine().Named("x") })
	expectPanic(t, "rewrite on invalid", func() { Invalid().Gen(passThrough) })
	expectPanic(t, "not on IR", func() { Not(Load(Any())) })
	fn, ctx := newTestFunction()
	imm := fn.Pool.Imm32(1)
	expectPanic(t, "matching invalid", func() { Matches(ctx, imm, Invalid(), CapturesT{}) })
	if _, ok := Matches(ctx, imm, Machine(), CapturesT{}); ok {
		t.Errorf("machine pattern matched")
	}
}

func TestPatternsAreImmutable(t *testing.T) {
	base := Load(Any())
	named := base.Named("x")
	typed := named.Ty(target.I32)
	if base.Name != "" || base.HasType || named.HasType || typed.Name != "x" {
		t.Errorf("builder modified its receiver")
	}
}

func TestMatchOperandNodes(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	gr32 := ctx.Target.Class("GR32")
	gr64 := ctx.Target.Class("GR64")
	eight := pool.Imm32(8)
	seven := pool.Imm32(7)
	zero := pool.ImmOf(dag.ImmediateT{Kind: dag.Int64, Int: 0})
	small := pool.ImmOf(dag.ImmediateT{Kind: dag.Int8, Int: 3})
	float := pool.ImmOf(dag.ImmediateT{Kind: dag.F64, Float: 1.5})
	vreg := pool.Reg(fn.Regs.NewVirtReg(gr32))
	rax := pool.Reg(ctx.Target.Register("rax"))
	slot := pool.SlotOf(0, target.I32)
	block := pool.BlockRef(1)
	cc := pool.CondOf(dag.CondLt)
	none := pool.None()

	tests := []struct {
		pat  *PatT
		node dag.NodeIdT
		want bool
	}{
		{Any(), eight, true},
		{Any(), none, false},
		{AnyImm(), float, true},
		{AnyI32Imm(), eight, true},
		{AnyI32Imm(), zero, false},
		{AnyI64Imm(), zero, true},
		{AnyI8Imm(), small, true},
		{AnyF64Imm(), float, true},
		{AnyF64Imm(), eight, false},
		{AnyI32ImmPowerOf2(), eight, true},
		{AnyI32ImmPowerOf2(), seven, false},
		{I32Imm(7), seven, true},
		{I32Imm(7), eight, false},
		{NullImm(), zero, true},
		{NullImm(), eight, false},
		{RegClass(gr32), vreg, true},
		{RegClass(gr64), vreg, false},
		{RegClass(gr64), rax, true},
		{AnyReg(), rax, true},
		{AnyReg(), eight, false},
		{Slot(target.I32), slot, true},
		{Slot(target.I64), slot, false},
		{AnySlot(), slot, true},
		{AnyBlock(), block, true},
		{AnyBlock(), slot, false},
		{AnyCC(), cc, true},
		{Not(AnyImm()), vreg, true},
		{Not(AnyImm()), eight, false},
		{Not(AnyImm()), none, false},
	}
	for i, test := range tests {
		_, ok := Matches(ctx, test.node, test.pat, CapturesT{})
		if ok != test.want {
			t.Errorf("test %d: got %v, want %v", i, ok, test.want)
		}
	}
}

func TestMatchUnselectedNodes(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	gr32 := ctx.Target.Class("GR32")
	gr64 := ctx.Target.Class("GR64")
	load := pool.IR(dag.Load, target.I32, pool.IR(dag.FIAddr, target.Ptr, pool.SlotOf(0, target.I32)))
	store := pool.IR(dag.Store, target.Void, pool.Imm32(0), pool.Imm32(1))
	mov := pool.Machine(target.MOVri32, gr32, pool.Imm32(3))
	jmp := pool.Machine(target.JMP, nil, pool.BlockRef(0))
	arg := pool.FixedMachine(target.COPY, ctx.Target.Register("rdi"), mov)

	tests := []struct {
		pat  *PatT
		node dag.NodeIdT
		want bool
	}{
		{Any(), load, true},
		{RegClass(gr32), load, true},
		{RegClass(gr64), load, false},
		{AnyReg(), load, true},
		{AnyReg(), store, false},
		{AnyImm(), load, false},
		// Negation is ignored for IR and machine nodes.
		{Not(AnyImm()), load, false},
		{Not(RegClass(gr32)), load, true},
		{Not(Any()), load, true},
		{RegClass(gr32), mov, true},
		{Not(RegClass(gr32)), mov, true},
		{Not(AnyReg()), jmp, false},
		{AnyReg(), mov, true},
		{AnyReg(), jmp, false},
		{Any(), jmp, true},
		{RegClass(gr64), arg, true},
		{AnySlot(), mov, false},
	}
	for i, test := range tests {
		_, ok := Matches(ctx, test.node, test.pat, CapturesT{})
		if ok != test.want {
			t.Errorf("test %d: got %v, want %v", i, ok, test.want)
		}
	}
}

func TestMatchIR(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	slot := pool.SlotOf(2, target.I32)
	addr := pool.IR(dag.FIAddr, target.Ptr, slot)
	value := pool.Imm32(42)
	store := pool.IR(dag.Store, target.Void, addr, value)

	pat := Store(FIAddr(Slot(target.I32).Named("dst")), AnyI32Imm().Named("src")).Named("store").Gen(passThrough)
	captures := CapturesT{}
	generate, ok := Matches(ctx, store, pat, captures)
	if !ok || generate == nil {
		t.Fatalf("store pattern did not match")
	}
	want := CapturesT{"dst": slot, "src": value, "store": store}
	if !maps.Equal(captures, want) {
		t.Errorf("got captures %v, want %v", captures, want)
	}

	// Same inputs, same result.
	again := CapturesT{}
	if _, ok := Matches(ctx, store, pat, again); !ok || !maps.Equal(again, captures) {
		t.Errorf("second match differs: %v", again)
	}

	failed := CapturesT{"keep": value}
	for _, bad := range []*PatT{
		Store(FIAddr(Slot(target.I64).Named("dst")), AnyI32Imm().Named("src")),
		Store(FIAddr(Slot(target.I32).Named("dst")), AnyI64Imm().Named("src")),
		Ir(dag.Store, FIAddr(Slot(target.I32).Named("dst"))),
		Load(Any()),
		FIAddr(AnySlot()).Ty(target.I64),
	} {
		if _, ok := Matches(ctx, store, bad, failed); ok {
			t.Errorf("bad pattern matched")
		}
	}
	if !maps.Equal(failed, CapturesT{"keep": value}) {
		t.Errorf("failed matches left captures %v", failed)
	}
	if _, ok := Matches(ctx, addr, FIAddr(AnySlot()).Ty(target.Ptr), CapturesT{}); !ok {
		t.Errorf("typed pattern did not match")
	}
	if _, ok := Matches(ctx, store, Ir(dag.Store), CapturesT{}); !ok {
		t.Errorf("pattern without operands did not match")
	}
}

func TestMatchCompound(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	imm := pool.Imm32(5)
	compoundGen := func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT { return captures["either"] }
	altGen := func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT { return dag.NoNode }

	pat := Or(AnyReg().Named("reg"), AnyI32Imm().Named("imm")).Named("either").Gen(compoundGen)
	captures := CapturesT{}
	generate, ok := Matches(ctx, imm, pat, captures)
	if !ok || generate == nil || generate(captures, ctx) != imm {
		t.Fatalf("compound did not fall back to its own rewrite")
	}
	if !maps.Equal(captures, CapturesT{"imm": imm, "either": imm}) {
		t.Errorf("got captures %v", captures)
	}

	withAlt := Or(AnyI32Imm().Gen(altGen), AnyImm()).Gen(compoundGen)
	generate, _ = Matches(ctx, imm, withAlt, CapturesT{})
	if generate(CapturesT{}, ctx) != dag.NoNode {
		t.Errorf("alternative's rewrite not used")
	}

	if _, ok := Matches(ctx, imm, Or(AnySlot(), AnyBlock()), CapturesT{}); ok {
		t.Errorf("compound matched with no matching alternative")
	}
}

// Store(FIAddr(s), 42) selects to one store-immediate instruction.
func TestSelectStoreImmediate(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	gr32 := ctx.Target.Class("GR32")
	patterns := []*PatT{
		Store(FIAddr(Slot(target.I32).Named("dst")), AnyI32Imm().Named("src")).
			Gen(storeTo(target.MOVmi32)),
		Load(FIAddr(Slot(target.I32).Named("src"))).
			Gen(loadFrom(target.MOVrm32, gr32)),
	}
	slot := pool.SlotOf(0, target.I32)
	store := pool.IR(dag.Store, target.Void, pool.IR(dag.FIAddr, target.Ptr, slot), pool.Imm32(42))
	block := fn.AddBlock()
	fn.AddStatement(block, store)

	sel := SelectFunction(fn, patterns)
	result := sel.Replaced[store]
	if block.Entry != result {
		t.Fatalf("block entry %d, replacement %d", block.Entry, result)
	}
	mi, ok := pool.Node(result).(*dag.MachineNodeT)
	if !ok || mi.Opcode != target.MOVmi32 || len(mi.Args) != 2 {
		t.Fatalf("got %s", fn.NodeString(result))
	}
	mem := pool.Node(mi.Args[0]).(*dag.OperandNodeT)
	if mem.Kind != dag.MemOperand || mem.Mem.Slot != slot {
		t.Errorf("bad memory operand %s", fn.NodeString(mi.Args[0]))
	}
	if immValue(ctx, mi.Args[1]) != 42 {
		t.Errorf("bad immediate %s", fn.NodeString(mi.Args[1]))
	}
	machineCount := 0
	for id := range fn.Reachable() {
		if _, ok := pool.Node(id).(*dag.MachineNodeT); ok {
			machineCount += 1
		}
	}
	if machineCount != 1 {
		t.Errorf("got %d machine nodes", machineCount)
	}

	// Selecting again does nothing.
	again := SelectFunction(fn, patterns)
	if len(again.Replaced) != 0 || block.Entry != result {
		t.Errorf("second selection replaced %d nodes", len(again.Replaced))
	}
	if sel.Select(store) != result {
		t.Errorf("memoized selection differs")
	}
}

// A pattern that captures the node it matches must not recurse on it.
func TestSelfCapture(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	x := pool.Imm32(1)
	y := pool.IR(dag.Load, target.I32, pool.IR(dag.FIAddr, target.Ptr, pool.SlotOf(0, target.I32)))
	add := pool.IR(dag.Add, target.I32, x, y)
	calls := 0
	patterns := []*PatT{
		Add(Any().Named("x"), Any().Named("y")).Named("x").Gen(
			func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
				calls += 1
				if captures["x"] != add {
					t.Errorf("self capture was rewritten")
				}
				return ctx.Pool.Machine(target.ADDri32, ctx.Target.Class("GR32"), captures["y"], x)
			}),
		Load(FIAddr(Slot(target.I32).Named("src"))).Gen(loadFrom(target.MOVrm32, ctx.Target.Class("GR32"))),
	}
	sel := NewSelector(ctx, patterns)
	result := sel.Select(add)
	if calls != 1 {
		t.Errorf("rewrite called %d times", calls)
	}
	mi := pool.Node(result).(*dag.MachineNodeT)
	if mi.Opcode != target.ADDri32 || sel.Replaced[y] != mi.Args[0] {
		t.Errorf("got %s", fn.NodeString(result))
	}
}

func TestInPlaceRewrite(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	imm := pool.Imm32(3)
	sel := NewSelector(ctx, []*PatT{
		I32Imm(3).Named("imm").Gen(func(captures CapturesT, ctx *MatchContextT) dag.NodeIdT {
			ctx.Pool.Node(captures["imm"]).(*dag.OperandNodeT).Imm.Int = 4
			return captures["imm"]
		}),
	})
	if sel.Select(imm) != imm || immValue(ctx, imm) != 4 || len(sel.Replaced) != 0 {
		t.Errorf("bad in-place rewrite")
	}
}

func TestFoldAdds(t *testing.T) {
	fn, ctx := newTestFunction()
	pool := fn.Pool
	x := pool.Reg(fn.Regs.NewVirtReg(ctx.Target.Class("GR32")))
	inner := pool.IR(dag.Add, target.I32, x, pool.Imm32(2))
	outer := pool.IR(dag.Add, target.I32, inner, pool.Imm32(3))
	sel := NewSelector(ctx, X86Patterns(ctx.Target))
	result := sel.Select(outer)
	mi := pool.Node(result).(*dag.MachineNodeT)
	if mi.Opcode != target.ADDri32 || mi.Args[0] != x || immValue(ctx, mi.Args[1]) != 5 {
		t.Errorf("got %s", fn.NodeString(result))
	}
	if sel.Replaced[outer] != result {
		t.Errorf("replacement map has %d, want %d", sel.Replaced[outer], result)
	}
}

const selectTestInput = `
(function f
  (block 0 (succs 1 2)
    (def a (load i32 (fiaddr ptr (slot i32 0))))
    (def b (mul i32 a (imm i32 8)))
    (store (fiaddr ptr (slot i32 1)) (sub i32 b (imm i32 1)))
    (store (fiaddr ptr (slot i64 2)) (sext i64 a))
    (brcc (cc lt) a (imm i32 10) (bb 2)))
  (block 1 (succs 2)
    (def r (call i32 (global g) a (imm i32 2)))
    (store (fiaddr ptr (slot i32 3)) r)
    (br (bb 2)))
  (block 2
    (ret (add i32 (load i32 (fiaddr ptr (slot i32 3))) (vreg i32 0)))))`

func TestSelectFunction(t *testing.T) {
	fns, err := dag.ReadFunctions(selectTestInput, target.DefaultTarget())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	fn := fns[0]
	SelectFunction(fn, X86Patterns(fn.Regs.Target))
	want := [][]target.OpcodeT{
		{target.MOVmr32, target.MOVmr64, target.JCC},
		{target.MOVmr32, target.JMP},
		{target.RET},
	}
	for i, block := range fn.Blocks {
		stmts := fn.Statements(block)
		if len(stmts) != len(want[i]) {
			t.Fatalf("block %d has %d statements", i, len(stmts))
		}
		for j, stmt := range stmts {
			mi, ok := fn.Pool.Node(stmt).(*dag.MachineNodeT)
			if !ok || mi.Opcode != want[i][j] {
				t.Errorf("block %d statement %d is %s", i, j, fn.NodeString(stmt))
			}
		}
	}
	// The multiply by eight became a shift.
	store := fn.Pool.Node(fn.Blocks[0].Entry).(*dag.MachineNodeT)
	sub := fn.Pool.Node(store.Args[1]).(*dag.MachineNodeT)
	shl := fn.Pool.Node(sub.Args[0]).(*dag.MachineNodeT)
	if sub.Opcode != target.SUBri32 || shl.Opcode != target.SHLri32 || immValue(NewMatchContext(fn), shl.Args[1]) != 3 {
		t.Errorf("got %s", fn.NodeString(fn.Blocks[0].Entry))
	}
}

func TestSelectUnhandled(t *testing.T) {
	fns, err := dag.ReadFunctions(`(function f (block 0 (store (imm i32 1) (imm i32 2))))`, target.DefaultTarget())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	expectPanic(t, "unselectable store", func() { SelectFunction(fns[0], X86Patterns(fns[0].Regs.Target)) })
}
