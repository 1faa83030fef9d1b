// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package liveness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/s48/isel/target"
)

// A half-open range of program points [Start, End).  A zero-width
// segment, with Start equal to End, marks a definition that is never
// used.
type LiveSegmentT struct {
	Start *ProgramPointT
	End   *ProgramPointT
}

func (seg LiveSegmentT) Interferes(other LiveSegmentT) bool {
	return seg.Start.Less(other.End) && other.Start.Less(seg.End)
}

func (seg LiveSegmentT) ContainsPoint(pp *ProgramPointT) bool {
	return !pp.Less(seg.Start) && pp.Less(seg.End)
}

func (seg LiveSegmentT) IsEmpty() bool {
	return seg.Start.Equal(seg.End)
}

func (seg LiveSegmentT) String() string {
	return fmt.Sprintf("[%s,%s)", seg.Start, seg.End)
}

// The segments are sorted by start point.  No two segments overlap or
// abut; they are coalesced when added.
type LiveRangeT struct {
	Segments []LiveSegmentT
}

func NewLiveRange(segments ...LiveSegmentT) *LiveRangeT {
	r := &LiveRangeT{}
	for _, seg := range segments {
		r.AddSegment(seg)
	}
	return r
}

func (r *LiveRangeT) Copy() *LiveRangeT {
	return &LiveRangeT{Segments: slices.Clone(r.Segments)}
}

func (r *LiveRangeT) String() string {
	var out strings.Builder
	for i, seg := range r.Segments {
		if i != 0 {
			out.WriteString(" ")
		}
		out.WriteString(seg.String())
	}
	return out.String()
}

func (r *LiveRangeT) search(pp *ProgramPointT) (int, bool) {
	return slices.BinarySearchFunc(r.Segments, pp, func(seg LiveSegmentT, pp *ProgramPointT) int {
		return seg.Start.Compare(pp)
	})
}

func (r *LiveRangeT) AddSegment(seg LiveSegmentT) {
	if seg.End.Less(seg.Start) {
		panic(fmt.Sprintf("backwards live segment %s", seg))
	}
	i, found := r.search(seg.Start)
	switch {
	case found && 0 < i:
		if r.Segments[i].End.Less(seg.End) {
			r.Segments[i].End = seg.End
			r.coalesce(i)
		}
	case i == 0:
		r.Segments = slices.Insert(r.Segments, 0, seg)
		r.coalesce(0)
	default:
		r.Segments = slices.Insert(r.Segments, i, seg)
		r.coalesce(i - 1)
	}
}

// Merges segment 'i' with any following segments that it overlaps or
// abuts.
func (r *LiveRangeT) coalesce(i int) {
	for i+1 < len(r.Segments) {
		seg := &r.Segments[i]
		next := r.Segments[i+1]
		switch {
		case seg.End.Less(next.Start):
			i += 1
		case seg.End.Less(next.End):
			seg.End = next.End
			r.Segments = slices.Delete(r.Segments, i+1, i+2)
		default:
			r.Segments = slices.Delete(r.Segments, i+1, i+2)
		}
	}
}

// Removes the points in 'seg' from the range, splitting or truncating
// segments as needed.  Removing a zero-width segment only removes an
// identical zero-width segment.
func (r *LiveRangeT) RemoveSegment(seg LiveSegmentT) {
	if seg.IsEmpty() {
		i, found := r.search(seg.Start)
		if found && r.Segments[i].IsEmpty() {
			r.Segments = slices.Delete(r.Segments, i, i+1)
		}
		return
	}
	result := make([]LiveSegmentT, 0, len(r.Segments)+1)
	for _, old := range r.Segments {
		if old.IsEmpty() {
			if !seg.ContainsPoint(old.Start) {
				result = append(result, old)
			}
			continue
		}
		if !old.Interferes(seg) {
			result = append(result, old)
			continue
		}
		if old.Start.Less(seg.Start) {
			result = append(result, LiveSegmentT{old.Start, seg.Start})
		}
		if seg.End.Less(old.End) {
			result = append(result, LiveSegmentT{seg.End, old.End})
		}
	}
	r.Segments = result
}

func (r *LiveRangeT) Unite(other *LiveRangeT) {
	for _, seg := range other.Segments {
		r.AddSegment(seg)
	}
}

func (r *LiveRangeT) RemoveRange(other *LiveRangeT) {
	for _, seg := range other.Segments {
		r.RemoveSegment(seg)
	}
}

// True if any segment of 'r' overlaps any segment of 'other'.  Both are
// sorted, so this walks them together.
func (r *LiveRangeT) Interferes(other *LiveRangeT) bool {
	i, j := 0, 0
	for i < len(r.Segments) && j < len(other.Segments) {
		x := r.Segments[i]
		y := other.Segments[j]
		if x.Interferes(y) {
			return true
		}
		if x.End.Less(y.End) {
			i += 1
		} else {
			j += 1
		}
	}
	return false
}

func (r *LiveRangeT) ContainsPoint(pp *ProgramPointT) bool {
	i, found := r.search(pp)
	if found {
		return r.Segments[i].ContainsPoint(pp)
	}
	return 0 < i && r.Segments[i-1].ContainsPoint(pp)
}

// These return nil if the range is empty.

func (r *LiveRangeT) StartPoint() *ProgramPointT {
	if len(r.Segments) == 0 {
		return nil
	}
	return r.Segments[0].Start
}

func (r *LiveRangeT) EndPoint() *ProgramPointT {
	if len(r.Segments) == 0 {
		return nil
	}
	return r.Segments[len(r.Segments)-1].End
}

// The last segment that starts before 'pp', or nil.
func (r *LiveRangeT) FindNearestStartingSegment(pp *ProgramPointT) *LiveSegmentT {
	for i := len(r.Segments) - 1; 0 <= i; i-- {
		if r.Segments[i].Start.Less(pp) {
			return &r.Segments[i]
		}
	}
	return nil
}

// Shrinks the range to a single zero-width segment at its start.
func (r *LiveRangeT) AdjustEndToStart() {
	if start := r.StartPoint(); start != nil {
		r.Segments = []LiveSegmentT{{start, start}}
	}
}

// The gaps between segments, from the function's first point up to
// the start of the last segment.
func (r *LiveRangeT) UnusedRange(pps *ProgramPointsT) *LiveRangeT {
	result := &LiveRangeT{}
	last := pps.First()
	for _, seg := range r.Segments {
		if last.Less(seg.Start) {
			result.AddSegment(LiveSegmentT{last, seg.Start})
		}
		last = seg.End
	}
	return result
}

// A virtual register's range and, once the allocator has chosen one,
// its physical register.
type LiveIntervalT struct {
	VirtReg     target.RegisterIdT
	Reg         target.RegisterIdT // NoRegister until assigned
	Range       *LiveRangeT
	SpillWeight float64
	IsSpillable bool

	// What assignment added to the physical range, and the physical
	// range's zero-width segments that the addition swallowed.
	added    *LiveRangeT
	absorbed []LiveSegmentT
}

func NewLiveInterval(vreg target.RegisterIdT, r *LiveRangeT) *LiveIntervalT {
	return &LiveIntervalT{VirtReg: vreg, Reg: target.NoRegister, Range: r, IsSpillable: true}
}

func (interval *LiveIntervalT) Interferes(other *LiveIntervalT) bool {
	return interval.Range.Interferes(other.Range)
}

func (interval *LiveIntervalT) IsAssigned() bool {
	return interval.Reg != target.NoRegister
}

func (interval *LiveIntervalT) StartPoint() *ProgramPointT { return interval.Range.StartPoint() }
func (interval *LiveIntervalT) EndPoint() *ProgramPointT   { return interval.Range.EndPoint() }
