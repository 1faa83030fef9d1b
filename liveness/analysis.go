// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Block-level liveness for machine functions.
//
// First every block's Def set is filled in from the instructions'
// explicit and implicit definitions.  Then every register that an
// instruction uses before it is defined in the same block is added to
// the block's LiveIn set and propagated backwards to the LiveOut sets
// of the block's predecessors.  Propagation stops at blocks that
// define the register or already have it as live in, so each register
// visits each block at most once.

package liveness

import (
	"golang.org/x/tools/container/intsets"

	"github.com/s48/isel/machine"
	"github.com/s48/isel/target"

	"tlog.app/go/tlog"
)

// Replaces the liveness records of every block in 'fn'.
func Analyze(fn *machine.FunctionT) {
	tgt := fn.Regs.Target
	for _, block := range fn.Blocks {
		live := machine.NewLiveness(tgt)
		for _, inst := range block.Insts {
			live.HasCall = live.HasCall || inst.Opcode.IsCall()
			for _, reg := range inst.DefinedRegs() {
				live.AddDef(reg)
				live.AddPhysDef(reg)
			}
		}
		block.Liveness = live
	}

	for _, block := range fn.Blocks {
		// Registers defined so far in 'block'.
		var defined intsets.Sparse
		for _, inst := range block.Insts {
			for _, reg := range inst.UsedRegs() {
				if !block.Liveness.Covers(&defined, reg) {
					propagate(block, reg)
				}
			}
			for _, reg := range inst.DefinedRegs() {
				defined.Insert(int(reg))
			}
		}
	}

	if tlog.If("liveness") {
		for _, block := range fn.Blocks {
			live := block.Liveness
			tlog.Printw("liveness", "function", fn.Name, "block", block.Id,
				"in", names(fn, &live.LiveIn), "out", names(fn, &live.LiveOut),
				"def", names(fn, &live.Def), "call", live.HasCall)
		}
	}
}

// 'reg' is live on entry to 'block'.
func propagate(block *machine.BlockT, reg target.RegisterIdT) {
	if !block.Liveness.AddLiveIn(reg) {
		return
	}
	for _, pred := range machine.SortedBlocks(block.Preds) {
		live := pred.Liveness
		if live.AddLiveOut(reg) && !live.Covers(&live.Def, reg) {
			propagate(pred, reg)
		}
	}
}

func names(fn *machine.FunctionT, set *intsets.Sparse) []string {
	result := []string{}
	for _, reg := range machine.Registers(set) {
		result = append(result, fn.Regs.Name(reg))
	}
	return result
}
