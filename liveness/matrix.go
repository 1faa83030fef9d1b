// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// The live register matrix: live ranges for every virtual register and
// every physical register file in a function, together with the
// operations a register allocator uses to query and update them.

package liveness

import (
	"fmt"
	"maps"
	"slices"

	"github.com/s48/isel/machine"
	"github.com/s48/isel/target"
	"github.com/s48/isel/util"

	"tlog.app/go/tlog"
)

type LiveRegMatrixT struct {
	fn            *machine.FunctionT
	ProgramPoints *ProgramPointsT
	VirtRegs      util.SetT[target.RegisterIdT]
	Intervals     map[target.RegisterIdT]*LiveIntervalT
	PhysRanges    map[target.RegKeyT]*LiveRangeT
	instPoints    map[*machine.InstT]*ProgramPointT
}

// Builds the matrix for 'fn', whose liveness records must be current.
//
// Each block gets a point at its start, with index zero, and a point
// after each of its instructions.  An instruction's point is the one
// just before it.  The registers an instruction uses are live up to
// its point, and the ones it defines start there.  Callee-saved
// registers are ignored.
func BuildMatrix(fn *machine.FunctionT) *LiveRegMatrixT {
	m := &LiveRegMatrixT{
		fn:            fn,
		ProgramPoints: NewProgramPoints(),
		VirtRegs:      util.NewSet[target.RegisterIdT](),
		Intervals:     map[target.RegisterIdT]*LiveIntervalT{},
		PhysRanges:    map[target.RegKeyT]*LiveRangeT{},
		instPoints:    map[*machine.InstT]*ProgramPointT{},
	}
	tgt := fn.Regs.Target
	tracked := func(reg target.RegisterIdT) bool {
		return reg.IsVirtual() || !tgt.IsCalleeSaved(reg)
	}
	// Extends the most recent segment of 'reg' to 'pp'.
	extend := func(reg target.RegisterIdT, pp *ProgramPointT) {
		r := m.rangeOf(reg)
		if r == nil || len(r.Segments) == 0 {
			if reg.IsVirtual() {
				panic(fmt.Sprintf("%s: %s is used before it is live", fn.Name, fn.Regs.Name(reg)))
			}
			return
		}
		r.Segments[len(r.Segments)-1].End = pp
	}

	pp := m.ProgramPoints.Append(0, 0)
	for i, block := range fn.Blocks {
		live := block.Liveness
		for _, reg := range machine.Registers(&live.LiveIn) {
			m.createRange(reg).AddSegment(LiveSegmentT{pp, pp})
		}
		index := IndexStep
		pp = m.ProgramPoints.Append(i, index)
		for _, inst := range block.Insts {
			m.instPoints[inst] = pp
			for _, reg := range inst.UsedRegs() {
				if tracked(reg) {
					extend(reg, pp)
				}
			}
			for _, reg := range inst.DefinedRegs() {
				if tracked(reg) {
					m.createRange(reg).AddSegment(LiveSegmentT{pp, pp})
				}
			}
			index += IndexStep
			pp = m.ProgramPoints.Append(i, index)
		}
		for _, reg := range machine.Registers(&live.LiveOut) {
			extend(reg, pp)
		}
		pp = m.ProgramPoints.Append(i+1, 0)
	}

	if tlog.If("matrix") {
		for _, vreg := range m.CollectVirtRegs() {
			tlog.Printw("interval", "function", fn.Name, "reg", fn.Regs.Name(vreg), "range", m.Intervals[vreg].Range.String())
		}
		for _, key := range slices.Sorted(maps.Keys(m.PhysRanges)) {
			tlog.Printw("phys range", "function", fn.Name, "file", key, "range", m.PhysRanges[key].String())
		}
	}
	return m
}

func (m *LiveRegMatrixT) rangeOf(reg target.RegisterIdT) *LiveRangeT {
	if reg.IsVirtual() {
		if interval := m.Intervals[reg]; interval != nil {
			return interval.Range
		}
		return nil
	}
	return m.PhysRanges[m.key(reg)]
}

func (m *LiveRegMatrixT) createRange(reg target.RegisterIdT) *LiveRangeT {
	if reg.IsVirtual() {
		m.AddVirtReg(reg)
		return m.AddLiveInterval(reg, &LiveRangeT{}).Range
	}
	return m.physRange(reg)
}

func (m *LiveRegMatrixT) key(reg target.RegisterIdT) target.RegKeyT {
	return m.fn.Regs.Target.File(reg)
}

// The occupied range of 'reg's register file, created if needed.
func (m *LiveRegMatrixT) physRange(reg target.RegisterIdT) *LiveRangeT {
	key := m.key(reg)
	r := m.PhysRanges[key]
	if r == nil {
		r = &LiveRangeT{}
		m.PhysRanges[key] = r
	}
	return r
}

func (m *LiveRegMatrixT) AddVirtReg(reg target.RegisterIdT) {
	m.VirtRegs.Add(reg)
}

// Returns 'vreg's interval, creating it with range 'r' if there isn't
// one already.
func (m *LiveRegMatrixT) AddLiveInterval(vreg target.RegisterIdT, r *LiveRangeT) *LiveIntervalT {
	interval := m.Intervals[vreg]
	if interval == nil {
		interval = NewLiveInterval(vreg, r)
		m.Intervals[vreg] = interval
	}
	return interval
}

// The point just before 'inst', or nil if 'inst' is not in the matrix.
func (m *LiveRegMatrixT) ProgramPoint(inst *machine.InstT) *ProgramPointT {
	return m.instPoints[inst]
}

func (m *LiveRegMatrixT) Interval(vreg target.RegisterIdT) *LiveIntervalT {
	return m.Intervals[vreg]
}

// The occupied range of 'reg's register file, or nil if nothing
// occupies it.
func (m *LiveRegMatrixT) PhysRange(reg target.RegisterIdT) *LiveRangeT {
	return m.PhysRanges[m.key(reg)]
}

func (m *LiveRegMatrixT) interval(vreg target.RegisterIdT) *LiveIntervalT {
	interval := m.Intervals[vreg]
	if interval == nil {
		panic(fmt.Sprintf("%s: no live interval for %s", m.fn.Name, m.fn.Regs.Name(vreg)))
	}
	return interval
}

// These return false if the registers can share a physical
// register.

func (m *LiveRegMatrixT) Interferes(vreg target.RegisterIdT, reg target.RegisterIdT) bool {
	r := m.PhysRange(reg)
	return r != nil && r.Interferes(m.interval(vreg).Range)
}

func (m *LiveRegMatrixT) InterferesVirtRegs(vreg1 target.RegisterIdT, vreg2 target.RegisterIdT) bool {
	return m.interval(vreg1).Interferes(m.interval(vreg2))
}

func (m *LiveRegMatrixT) InterferesWithRange(vreg target.RegisterIdT, r *LiveRangeT) bool {
	interval := m.Intervals[vreg]
	return interval != nil && r.Interferes(interval.Range)
}

func (m *LiveRegMatrixT) InterferesPhysWithRange(reg target.RegisterIdT, r *LiveRangeT) bool {
	phys := m.PhysRange(reg)
	return phys != nil && r.Interferes(phys)
}

// The assigned virtual registers whose intervals interfere with
// 'vreg's.
func (m *LiveRegMatrixT) CollectInterferingAssignedRegs(vreg target.RegisterIdT) []target.RegisterIdT {
	interval := m.interval(vreg)
	result := []target.RegisterIdT{}
	for _, other := range m.CollectVirtRegs() {
		if other == vreg {
			continue
		}
		if x := m.Intervals[other]; x.IsAssigned() && x.Interferes(interval) {
			result = append(result, other)
		}
	}
	return result
}

func (m *LiveRegMatrixT) AssignReg(vreg target.RegisterIdT, reg target.RegisterIdT) {
	if !reg.IsPhysical() {
		panic(fmt.Sprintf("%s: assigning non-physical register %d to %s", m.fn.Name, reg, m.fn.Regs.Name(vreg)))
	}
	interval := m.interval(vreg)
	if interval.IsAssigned() {
		panic(fmt.Sprintf("%s: %s is already assigned", m.fn.Name, m.fn.Regs.Name(vreg)))
	}
	phys := m.physRange(reg)
	interval.added = interval.Range.Copy()
	interval.added.RemoveRange(phys)
	interval.absorbed = absorbedSegments(phys, interval.added)
	interval.Reg = reg
	phys.Unite(interval.added)
}

// The zero-width segments of 'phys' that uniting with 'added' would
// merge into a wider segment.
func absorbedSegments(phys *LiveRangeT, added *LiveRangeT) []LiveSegmentT {
	result := []LiveSegmentT{}
	for _, seg := range phys.Segments {
		if !seg.IsEmpty() {
			continue
		}
		for _, other := range added.Segments {
			if !other.IsEmpty() && !seg.Start.Less(other.Start) && !other.End.Less(seg.Start) {
				result = append(result, seg)
				break
			}
		}
	}
	return result
}

// Undoes AssignReg, returning the register that had been assigned or
// NoRegister if there wasn't one.
func (m *LiveRegMatrixT) UnassignReg(vreg target.RegisterIdT) target.RegisterIdT {
	interval := m.interval(vreg)
	reg := interval.Reg
	if reg == target.NoRegister {
		return reg
	}
	interval.Reg = target.NoRegister
	phys := m.physRange(reg)
	phys.RemoveRange(interval.added)
	if phys.Interferes(interval.Range) {
		panic(fmt.Sprintf("%s: %s still occupies %s after unassignment",
			m.fn.Name, m.fn.Regs.Name(vreg), m.fn.Regs.Name(reg)))
	}
	for _, seg := range interval.absorbed {
		phys.AddSegment(seg)
	}
	interval.added = nil
	interval.absorbed = nil
	return reg
}

// Merges 'vreg2' into 'vreg1'.  Every use and definition of 'vreg2' is
// replaced with one of 'vreg1', and 'vreg2' is removed from the matrix.
func (m *LiveRegMatrixT) MergeVirtRegs(vreg1 target.RegisterIdT, vreg2 target.RegisterIdT) {
	interval1 := m.interval(vreg1)
	interval2 := m.interval(vreg2)
	m.replaceReg(vreg2, vreg1)
	interval1.Range.Unite(interval2.Range)
	delete(m.Intervals, vreg2)
	m.VirtRegs.Remove(vreg2)
}

// Merges 'vreg' into physical register 'reg'.
func (m *LiveRegMatrixT) MergePhysAndVirt(reg target.RegisterIdT, vreg target.RegisterIdT) {
	interval := m.interval(vreg)
	m.replaceReg(vreg, reg)
	m.physRange(reg).Unite(interval.Range)
	delete(m.Intervals, vreg)
	m.VirtRegs.Remove(vreg)
}

func (m *LiveRegMatrixT) replaceReg(from target.RegisterIdT, to target.RegisterIdT) {
	fn := m.fn
	fn.ReplaceReg(from, to)
	for _, block := range fn.Blocks {
		live := block.Liveness
		if live.Def.Has(int(from)) {
			live.AddDef(to)
		}
		if live.LiveIn.Has(int(from)) {
			live.AddLiveIn(to)
		}
		if live.LiveOut.Has(int(from)) {
			live.AddLiveOut(to)
		}
		live.Remove(from)
	}
}

// The virtual registers that have intervals, in increasing order.
func (m *LiveRegMatrixT) CollectVirtRegs() []target.RegisterIdT {
	return slices.Sorted(maps.Keys(m.Intervals))
}
