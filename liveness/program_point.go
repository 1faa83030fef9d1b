// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Program points.  These are positions between instructions, ordered
// first by block and then by index within the block.  Points are kept
// in a doubly linked list.  Indexes within a block are spaced
// IndexStep apart so that new points can be inserted between old ones
// without renumbering.  When there is no room left between two points
// the rest of the block is renumbered.

package liveness

import (
	"fmt"
)

const IndexStep = 16

type ProgramPointT struct {
	prev  *ProgramPointT
	next  *ProgramPointT
	block int
	index int
}

func (pp *ProgramPointT) Block() int           { return pp.block }
func (pp *ProgramPointT) Index() int           { return pp.index }
func (pp *ProgramPointT) Prev() *ProgramPointT { return pp.prev }
func (pp *ProgramPointT) Next() *ProgramPointT { return pp.next }

func (pp *ProgramPointT) Compare(other *ProgramPointT) int {
	if pp.block != other.block {
		return pp.block - other.block
	}
	return pp.index - other.index
}

func (pp *ProgramPointT) Less(other *ProgramPointT) bool {
	return pp.Compare(other) < 0
}

func (pp *ProgramPointT) Equal(other *ProgramPointT) bool {
	return pp.Compare(other) == 0
}

func (pp *ProgramPointT) String() string {
	return fmt.Sprintf("%d:%d", pp.block, pp.index)
}

// Adds IndexStep to every point after 'pp' in 'pp's block.
func (pp *ProgramPointT) renumberBlockTail() {
	for next := pp.next; next != nil && next.block == pp.block; next = next.next {
		next.index += IndexStep
	}
}

type ProgramPointsT struct {
	first *ProgramPointT
	last  *ProgramPointT
	count int
}

func NewProgramPoints() *ProgramPointsT {
	return &ProgramPointsT{}
}

func (pps *ProgramPointsT) First() *ProgramPointT { return pps.first }
func (pps *ProgramPointsT) Last() *ProgramPointT  { return pps.last }
func (pps *ProgramPointsT) Len() int              { return pps.count }

// Adds a new point at the end of the list.  It must follow the
// current last point.
func (pps *ProgramPointsT) Append(block int, index int) *ProgramPointT {
	pp := &ProgramPointT{prev: pps.last, block: block, index: index}
	if pps.last == nil {
		pps.first = pp
	} else {
		if !pps.last.Less(pp) {
			panic(fmt.Sprintf("program point %s appended after %s", pp, pps.last))
		}
		pps.last.next = pp
	}
	pps.last = pp
	pps.count += 1
	return pp
}

// Inserts a new point immediately before 'pp'.
func (pps *ProgramPointsT) PrevOf(pp *ProgramPointT) *ProgramPointT {
	if pp.prev == nil {
		panic(fmt.Sprintf("no room before program point %s", pp))
	}
	return pps.insert(pp.prev, pp)
}

// Inserts a new point immediately after 'pp'.
func (pps *ProgramPointsT) NextOf(pp *ProgramPointT) *ProgramPointT {
	if pp.next == nil {
		return pps.Append(pp.block, pp.index+IndexStep)
	}
	return pps.insert(pp, pp.next)
}

// Inserts a point between 'prev' and 'next'.  If they are in different
// blocks the new point goes at the end of 'prev's block, otherwise it
// is halfway between them.
func (pps *ProgramPointsT) insert(prev *ProgramPointT, next *ProgramPointT) *ProgramPointT {
	index := prev.index + IndexStep
	if prev.block == next.block {
		if next.index-prev.index < 2 {
			prev.renumberBlockTail()
		}
		index = (prev.index + next.index) / 2
	}
	pp := &ProgramPointT{prev: prev, next: next, block: prev.block, index: index}
	prev.next = pp
	next.prev = pp
	pps.count += 1
	return pp
}

// Returns the point at (block, index), or nil if there isn't one.
func (pps *ProgramPointsT) Lookup(block int, index int) *ProgramPointT {
	for pp := pps.first; pp != nil; pp = pp.next {
		switch {
		case pp.block == block && pp.index == index:
			return pp
		case block < pp.block:
			return nil
		}
	}
	return nil
}
