package widen

import (
	"sort"

	"parlower/internal/ir"
)

func sortedFuncIDs(m *ir.Module) []ir.FuncID {
	out := make([]ir.FuncID, 0, len(m.Funcs))
	for fid, f := range m.Funcs {
		if f != nil {
			out = append(out, fid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// findEnclosingStmt walks up node's parent chain to the top-level
// statement that contains it, the same shape heapprom.findEnclosingStmt
// and endcount.replaceNode use — kept package-local rather than shared,
// since each pass's rewrite rules around the result differ enough that
// a shared helper would just be a thin re-export.
func findEnclosingStmt(m *ir.Module, node ir.NodeID) (ir.BlockID, ir.NodeID) {
	n := m.Node(node)
	for n != nil {
		if n.ParentBlock.IsValid() {
			return n.ParentBlock, n.ID
		}
		n = m.Node(n.ParentNode)
	}
	return ir.NoBlockID, ir.NoNodeID
}
