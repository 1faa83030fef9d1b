// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"cmp"
	"maps"
	"slices"
)

// A set is a map from objects to the empty struct.  Block
// predecessor and successor sets and the register use/def sets
// are all SetTs.

type SetT[E comparable] map[E]struct{}

func NewSet[E comparable](members ...E) SetT[E] {
	set := SetT[E]{}
	set.Add(members...)
	return set
}

func (set SetT[E]) Add(members ...E) {
	for _, member := range members {
		set[member] = struct{}{}
	}
}

func (set SetT[E]) Remove(member E) {
	delete(set, member)
}

func (set SetT[E]) Contains(member E) bool {
	_, found := set[member]
	return found
}

func (set SetT[E]) Copy() SetT[E] {
	return maps.Clone(set)
}

// Adds all of 'other's members to 'set'.
func (set SetT[E]) AddAll(other SetT[E]) {
	maps.Copy(set, other)
}

func (set SetT[E]) Equal(other SetT[E]) bool {
	if len(set) != len(other) {
		return false
	}
	for member := range set {
		if !other.Contains(member) {
			return false
		}
	}
	return true
}

// Map iteration order is random, which makes for nondeterministic
// output.  Anything that gets printed or that allocates based on
// set order goes through Sorted.

func Sorted[E cmp.Ordered](set SetT[E]) []E {
	result := slices.Collect(maps.Keys(set))
	slices.Sort(result)
	return result
}
