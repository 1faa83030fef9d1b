// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// The selection driver.  Each node is matched against the patterns
// in order.  When a pattern matches, the captured nodes are selected
// first and the rewrite is then applied to the results.  The rewrite's
// output is itself selected, which lets one rewrite feed another.
// Nodes no pattern matches have their operands selected instead.

package isel

import (
	"slices"

	"github.com/s48/isel/dag"
	"github.com/s48/isel/util"

	"tlog.app/go/tlog"
)

// Original node -> replacement.  Each original node is rewritten at
// most once per selection pass.
type ReplacedNodeMapT map[dag.NodeIdT]dag.NodeIdT

type SelectorT struct {
	ctx      *MatchContextT
	patterns []*PatT
	Replaced ReplacedNodeMapT
	done     util.SetT[dag.NodeIdT] // nodes that selected to themselves
}

func NewSelector(ctx *MatchContextT, patterns []*PatT) *SelectorT {
	return &SelectorT{
		ctx:      ctx,
		patterns: patterns,
		Replaced: ReplacedNodeMapT{},
		done:     util.NewSet[dag.NodeIdT](),
	}
}

func (sel *SelectorT) Select(id dag.NodeIdT) dag.NodeIdT {
	if replacement, found := sel.Replaced[id]; found {
		return replacement
	}
	if sel.done.Contains(id) {
		return id
	}
	for _, pat := range sel.patterns {
		captures := CapturesT{}
		generate, ok := Matches(sel.ctx, id, pat, captures)
		if !ok || generate == nil {
			continue
		}
		names := make([]string, 0, len(captures))
		for name := range captures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if captures[name] != id {
				captures[name] = sel.Select(captures[name])
			}
		}
		newId := generate(captures, sel.ctx)
		if newId == id {
			// Rewritten in place.
			break
		}
		if tlog.If("isel") {
			tlog.Printw("rewrite", "node", id, "new", newId)
		}
		sel.Replaced[id] = newId
		result := sel.Select(newId)
		sel.Replaced[id] = result
		return result
	}
	sel.selectOperands(id)
	sel.done.Add(id)
	return id
}

func (sel *SelectorT) selectOperands(id dag.NodeIdT) {
	pool := sel.ctx.Pool
	for i, operand := range pool.Operands(id) {
		if selected := sel.Select(operand); selected != operand {
			pool.SetOperand(id, i, selected)
		}
	}
}

// Selects every statement in every block of 'fn', relinking the
// statement chains to point at the replacements.  Panics if any IR
// node survives.
func SelectFunction(fn *dag.FunctionT, patterns []*PatT) *SelectorT {
	sel := NewSelector(NewMatchContext(fn), patterns)
	pool := fn.Pool
	for _, block := range fn.Blocks {
		if block.Entry == dag.NoNode {
			continue
		}
		stmts := fn.Statements(block)
		selected := make([]dag.NodeIdT, len(stmts))
		for i, stmt := range stmts {
			selected[i] = sel.Select(stmt)
		}
		block.Entry = selected[0]
		for i, stmt := range selected {
			next := dag.NoNode
			if i+1 < len(selected) {
				next = selected[i+1]
			}
			pool.SetNext(stmt, next)
		}
	}
	if tlog.If("isel") {
		tlog.Printw("selected", "function", fn.Name, "replaced", len(sel.Replaced), "nodes", pool.Len())
	}
	fn.CheckSelected()
	return sel
}
