// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Strongly connected components using Kosaraju's algorithm.

package util

// Returns the strongly connected components of the graph made up of
// 'nodes', with 'edges' returning the nodes a node has an edge to.
// Edges leading outside of 'nodes' are ignored.  The components are
// in topological order.
func StronglyConnectedComponents[K comparable](nodes []K, edges func(K) []K) [][]K {
	members := NewSet(nodes...)
	reversed := map[K][]K{}
	for _, node := range nodes {
		for _, next := range edges(node) {
			if members.Contains(next) {
				reversed[next] = append(reversed[next], node)
			}
		}
	}

	seen := NewSet[K]()
	var walk func(node K, next func(K) []K, visit func(K))
	walk = func(node K, next func(K) []K, visit func(K)) {
		if seen.Contains(node) {
			return
		}
		seen.Add(node)
		for _, x := range next(node) {
			if members.Contains(x) {
				walk(x, next, visit)
			}
		}
		visit(node)
	}

	order := make([]K, 0, len(nodes))
	for _, node := range nodes {
		walk(node, edges, func(x K) { order = append(order, x) })
	}
	seen = NewSet[K]()
	result := [][]K{}
	for i := len(order) - 1; 0 <= i; i-- {
		component := []K{}
		walk(order[i],
			func(x K) []K { return reversed[x] },
			func(x K) { component = append(component, x) })
		if 0 < len(component) {
			result = append(result, component)
		}
	}
	return result
}
