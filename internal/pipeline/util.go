package pipeline

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
