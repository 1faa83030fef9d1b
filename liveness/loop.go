// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Loop nesting depths for machine blocks, and spill weights derived
// from them.

package liveness

import (
	"math"
	"slices"

	"github.com/s48/isel/machine"
	"github.com/s48/isel/target"
	"github.com/s48/isel/util"
)

type loopInfoT struct {
	dominator *machine.BlockT
	header    *machine.BlockT // nil if not in a loop
	depth     int
	body      util.SetT[*machine.BlockT] // only for headers
}

// Returns the loop depth of every block reachable from the first
// block.  A loop is found for each edge whose head dominates its tail.
// All blocks on paths upwards from the tail to the head are in the
// loop.  A cycle with no such head, from irreducible control flow, is
// counted as one more level of loop around all of its blocks.
func LoopDepths(fn *machine.FunctionT) map[*machine.BlockT]int {
	depths := map[*machine.BlockT]int{}
	if len(fn.Blocks) == 0 {
		return depths
	}
	root := fn.Blocks[0]
	info := map[*machine.BlockT]*loopInfoT{}
	for block, dom := range findDominators(root) {
		info[block] = &loopInfoT{dominator: dom, body: util.NewSet[*machine.BlockT]()}
	}

	headers := []*machine.BlockT{}
	for _, block := range fn.Blocks {
		if info[block] == nil {
			continue
		}
		for _, succ := range machine.SortedBlocks(block.Succs) {
			for dom := block; ; dom = info[dom].dominator {
				if dom == succ {
					if len(info[succ].body) == 0 {
						headers = append(headers, succ)
					}
					findLoopBlocks(info, succ, block)
					break
				}
				if dom == root {
					break
				}
			}
		}
	}

	// Outer loops are bigger than the loops they contain, so doing the
	// biggest first leaves each block with the depth of its innermost
	// loop.
	slices.SortStableFunc(headers, func(x, y *machine.BlockT) int {
		return len(info[y].body) - len(info[x].body)
	})
	for _, header := range headers {
		loop := info[header]
		loop.depth += 1
		loop.header = header
		for block := range loop.body {
			if block != header {
				info[block].header = header
				info[block].depth = loop.depth
			}
		}
	}

	reachable := []*machine.BlockT{}
	for _, block := range fn.Blocks {
		if info[block] != nil {
			reachable = append(reachable, block)
		}
	}
	succs := func(block *machine.BlockT) []*machine.BlockT {
		return machine.SortedBlocks(block.Succs)
	}
	for _, component := range util.StronglyConnectedComponents(reachable, succs) {
		if 1 < len(component) && !isNaturalLoop(info, component) {
			for _, block := range component {
				info[block].depth += 1
			}
		}
	}

	for block, x := range info {
		depths[block] = x.depth
	}
	return depths
}

// A cycle is a natural loop if one of its blocks is a loop header
// whose body contains the whole cycle.
func isNaturalLoop(info map[*machine.BlockT]*loopInfoT, component []*machine.BlockT) bool {
	for _, header := range component {
		body := info[header].body
		if len(body) != 0 && !slices.ContainsFunc(component, func(block *machine.BlockT) bool {
			return !body.Contains(block)
		}) {
			return true
		}
	}
	return false
}

// Walk up the predecessor links from 'block' until reaching 'header',
// adding everything to 'header's loop body.  The header is in its own
// body, which also covers single-block loops.
func findLoopBlocks(info map[*machine.BlockT]*loopInfoT, header *machine.BlockT, block *machine.BlockT) {
	body := info[header].body
	body.Add(header)
	stack := util.NewStack(block)
	for !stack.Empty() {
		block := stack.Pop()
		if body.Contains(block) {
			continue
		}
		body.Add(block)
		for pred := range block.Preds {
			if info[pred] != nil {
				stack.Push(pred)
			}
		}
	}
}

//----------------------------------------------------------------
// Cooper, Keith D.; Harvey, Timothy J; Kennedy, Ken (2001).
// "A Simple, Fast Dominance Algorithm"

// Returns the immediate dominator of every block reachable from
// 'root'.  The root is its own dominator.
func findDominators(root *machine.BlockT) map[*machine.BlockT]*machine.BlockT {
	// Postorder numbering, so the root has the highest number.
	order := []*machine.BlockT{}
	number := map[*machine.BlockT]int{}
	var visit func(block *machine.BlockT)
	visit = func(block *machine.BlockT) {
		number[block] = -1
		for _, succ := range machine.SortedBlocks(block.Succs) {
			if _, found := number[succ]; !found {
				visit(succ)
			}
		}
		number[block] = len(order)
		order = append(order, block)
	}
	visit(root)

	rootIndex := len(order) - 1
	doms := make([]int, len(order))
	for i := range doms {
		doms[i] = -1
	}
	doms[rootIndex] = rootIndex
	intersect := func(x, y int) int {
		for x != y {
			for x < y {
				x = doms[x]
			}
			for y < x {
				y = doms[y]
			}
		}
		return x
	}
	for changed := true; changed; {
		changed = false
		for i := rootIndex - 1; 0 <= i; i-- {
			newIdom := -1
			for pred := range order[i].Preds {
				p, reachable := number[pred]
				if !reachable || doms[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if doms[i] != newIdom {
				doms[i] = newIdom
				changed = true
			}
		}
	}

	result := map[*machine.BlockT]*machine.BlockT{}
	for i, block := range order {
		result[block] = order[doms[i]]
	}
	return result
}

// Sets the spill weight of every interval in 'm'.  Each use or
// definition counts 10^depth, where depth is the loop depth of its
// block, and the total is divided by the number of instructions the
// interval covers.  Intervals covering at most one instruction are not
// spillable, since spilling them cannot shorten them.
func ComputeSpillWeights(fn *machine.FunctionT, m *LiveRegMatrixT) {
	depths := LoopDepths(fn)
	for _, vreg := range m.CollectVirtRegs() {
		interval := m.Intervals[vreg]
		weight := 0.0
		for _, sets := range []util.SetT[*machine.InstT]{fn.Uses[vreg], fn.Defs[vreg]} {
			for inst := range sets {
				weight += math.Pow(10, float64(depths[inst.Block]))
			}
		}
		covered := 0
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				if pp := m.ProgramPoint(inst); pp != nil && interval.Range.ContainsPoint(pp) {
					covered += 1
				}
			}
		}
		interval.SpillWeight = weight / float64(max(covered, 1))
		interval.IsSpillable = 1 < covered
	}
}

// The unassigned virtual registers in the order an allocator should
// consider them: unspillable ones first, then by decreasing spill
// weight.  Ties go to the lower register number.
func AllocationOrder(m *LiveRegMatrixT) []target.RegisterIdT {
	before := func(x, y *LiveIntervalT) bool {
		switch {
		case x.IsSpillable != y.IsSpillable:
			return !x.IsSpillable
		case x.SpillWeight != y.SpillWeight:
			return y.SpillWeight < x.SpillWeight
		}
		return x.VirtReg < y.VirtReg
	}
	queue := util.NewPriorityQueue(before)
	for _, interval := range m.Intervals {
		if !interval.IsAssigned() {
			queue.Enqueue(interval)
		}
	}
	result := make([]target.RegisterIdT, 0, queue.Len())
	for !queue.Empty() {
		result = append(result, queue.Dequeue().VirtReg)
	}
	return result
}
