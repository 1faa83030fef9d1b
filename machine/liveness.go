// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package machine

import (
	"golang.org/x/tools/container/intsets"

	"github.com/s48/isel/target"
)

// Per-block liveness.  Callee-saved registers are never recorded.
// A physical register is recorded at most once per file: adding a
// register removes its sub-registers and is a no-op if one of its
// super-registers is already there.
//
// The sets hold RegisterIdTs.  They are intsets.Sparse values and so
// must not be copied; use the pointer.

type LivenessT struct {
	target  *target.TargetT
	Def     intsets.Sparse
	LiveIn  intsets.Sparse
	LiveOut intsets.Sparse
	HasCall bool
	PhysDef intsets.Sparse // register files written in the block
}

func NewLiveness(tgt *target.TargetT) *LivenessT {
	return &LivenessT{target: tgt}
}

// Each of these returns true if 'reg' was not already present.

func (live *LivenessT) AddDef(reg target.RegisterIdT) bool {
	return live.add(&live.Def, reg)
}

func (live *LivenessT) AddLiveIn(reg target.RegisterIdT) bool {
	return live.add(&live.LiveIn, reg)
}

func (live *LivenessT) AddLiveOut(reg target.RegisterIdT) bool {
	return live.add(&live.LiveOut, reg)
}

func (live *LivenessT) add(set *intsets.Sparse, reg target.RegisterIdT) bool {
	if reg.IsVirtual() {
		return set.Insert(int(reg))
	}
	tgt := live.target
	if tgt.IsCalleeSaved(reg) || set.Has(int(reg)) {
		return false
	}
	for super := tgt.Super(reg); super != target.NoRegister; super = tgt.Super(super) {
		if set.Has(int(super)) {
			return false
		}
	}
	for sub := tgt.Sub(reg); sub != target.NoRegister; sub = tgt.Sub(sub) {
		set.Remove(int(sub))
	}
	return set.Insert(int(reg))
}

// Notes that the file containing 'reg' is written.  Unlike the other
// sets this includes callee-saved registers, which are exactly the
// ones a prologue has to save.
func (live *LivenessT) AddPhysDef(reg target.RegisterIdT) {
	if reg.IsPhysical() {
		live.PhysDef.Insert(int(live.target.File(reg)))
	}
}

// True if 'set' holds 'reg' or one of its super-registers.
func (live *LivenessT) Covers(set *intsets.Sparse, reg target.RegisterIdT) bool {
	if set.Has(int(reg)) {
		return true
	}
	if reg.IsVirtual() {
		return false
	}
	for super := live.target.Super(reg); super != target.NoRegister; super = live.target.Super(super) {
		if set.Has(int(super)) {
			return true
		}
	}
	return false
}

// Adds everything in 'src' to 'live'.
func (live *LivenessT) Merge(src *LivenessT) {
	for _, reg := range Registers(&src.Def) {
		live.AddDef(reg)
	}
	for _, reg := range Registers(&src.LiveIn) {
		live.AddLiveIn(reg)
	}
	for _, reg := range Registers(&src.LiveOut) {
		live.AddLiveOut(reg)
	}
	live.HasCall = live.HasCall || src.HasCall
	live.PhysDef.UnionWith(&src.PhysDef)
}

func (live *LivenessT) Remove(reg target.RegisterIdT) {
	live.Def.Remove(int(reg))
	live.LiveIn.Remove(int(reg))
	live.LiveOut.Remove(int(reg))
}

// The members of 'set' in increasing order.
func Registers(set *intsets.Sparse) []target.RegisterIdT {
	members := set.AppendTo(nil)
	result := make([]target.RegisterIdT, len(members))
	for i, member := range members {
		result[i] = target.RegisterIdT(member)
	}
	return result
}
