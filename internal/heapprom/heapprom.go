package heapprom

import (
	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// Run executes the heap-promotion engine end to end: compute the
// reference/variable closure, promote every symbol it names, and
// broadcast whatever global constants were left out of that closure
// because they are replicable instead. It invalidates the calledBy
// index since promotion can touch call actuals (closeFormal's chase
// through call sites does not add or remove calls, but later
// sub-passes must not trust a stale index after this pass ran).
func Run(m *ir.Module, cfg rtconfig.Config) *Closure {
	cl := ComputeClosure(m, cfg)
	Promote(m, cl)

	promoted := make(map[ir.SymbolID]bool, len(cl.VarSet))
	for v := range cl.VarSet {
		promoted[v] = true
	}
	BroadcastReplicable(m, cfg, promoted)

	m.InvalidateCalledBy()
	return cl
}
