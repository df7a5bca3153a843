package widen

import "parlower/internal/ir"

// buildWideRefTypes is step 4, symmetric with buildWideClassTypes: every
// ref type gets a wide(ref) counterpart, registered in
// Module.WideRefMap.
func buildWideRefTypes(m *ir.Module) {
	for _, t := range m.Types.All() {
		if t.Kind != ir.TypeRef {
			continue
		}
		m.WideRefFor(t.ID)
	}
}

// widenRefSymbols is step 5, mirroring step 3's exclusions for refs: a
// formal of an extern or local-args function keeps its narrow ref type.
func widenRefSymbols(m *ir.Module) {
	owners := formalOwners(m)
	for _, s := range m.Symbols.All() {
		if s.Kind != ir.SymVar && s.Kind != ir.SymFormal {
			continue
		}
		wideID, ok := m.WideRefMap[s.Type]
		if !ok {
			continue
		}
		if s.Kind == ir.SymFormal {
			if owner := owners[s.ID]; owner != nil && (owner.Flags.Has(ir.FuncFlagExtern) || owner.Flags.Has(ir.FuncFlagLocalArgs)) {
				continue
			}
		}
		s.Type = wideID
	}
}
