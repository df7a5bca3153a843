package heapprom

import (
	"sort"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// BroadcastReplicable handles every module-level global that
// ComputeClosure's seed step left out of varSet because
// IsReplicableConstant said its value can simply be copied to every
// locale instead of heap-promoted: a private_broadcast call emitted
// once, at module init, in TopLevel.
//
// Record-wrapped globals (arrays, domains, distributions) get a
// different placement: their broadcast runs right after the statement
// that builds their initializing expression, found by def/use analysis
// over TopLevel, rather than appended at the end of module init like a
// replicable constant's broadcast — a record-wrapped initializer can itself run arbitrary
// allocation code that has to finish locally before the copy taken for
// every other locale is valid.
func BroadcastReplicable(m *ir.Module, cfg rtconfig.Config, promoted map[ir.SymbolID]bool) {
	if !cfg.RequireWideReferences() {
		return
	}
	b := ir.NewBuilder(m)
	du := ir.BuildDefUse(m, m.TopLevel)
	for _, g := range sortedGlobals(m) {
		if promoted[g] {
			continue
		}
		switch {
		case m.IsReplicableConstant(g):
			m.AppendStmt(m.TopLevel, b.RuntimeCall(ir.PrimPrivateBroadcast, b.SymExpr(g)))
		case m.IsRecordWrapped(m.SymType(g)):
			broadcastAtFirstUse(m, b, du, g)
		}
	}
}

// broadcastAtFirstUse inserts g's broadcast right after the earliest
// def or use site BuildDefUse recorded for it in TopLevel (its node ID
// stands in for construction order, same convention sortedGlobals and
// the call-site sorts elsewhere in this pass family use). A global with
// no recorded def/use site at all — for instance one whose only
// touches live inside a function body rather than at module scope —
// falls back to the eager placement instead.
func broadcastAtFirstUse(m *ir.Module, b *ir.Builder, du *ir.DefUse, g ir.SymbolID) {
	sites := append([]ir.NodeID(nil), du.Defs[g]...)
	sites = append(sites, du.Uses[g]...)
	if len(sites) == 0 {
		m.AppendStmt(m.TopLevel, b.RuntimeCall(ir.PrimPrivateBroadcast, b.SymExpr(g)))
		return
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	block, stmt := findEnclosingStmt(m, sites[0])
	if !block.IsValid() {
		m.AppendStmt(m.TopLevel, b.RuntimeCall(ir.PrimPrivateBroadcast, b.SymExpr(g)))
		return
	}
	idx := m.IndexOfStmt(block, stmt)
	m.InsertStmtBefore(block, idx+1, b.RuntimeCall(ir.PrimPrivateBroadcast, b.SymExpr(g)))
}

func sortedGlobals(m *ir.Module) []ir.SymbolID {
	out := append([]ir.SymbolID(nil), m.Globals...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
