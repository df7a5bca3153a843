package widen

import "parlower/internal/ir"

// buildWideClassTypes is step 2: every class type not opting out gets a
// wide(C) counterpart, registered in Module.WideClassMap. Run once per
// type table; WideClassFor's cache makes a second call a no-op, so
// running the pass twice mints nothing new.
func buildWideClassTypes(m *ir.Module) {
	for _, t := range m.Types.All() {
		if t.Kind != ir.TypeClass {
			continue
		}
		if t.Flags.Has(ir.TypeFlagNoWideClass) {
			continue
		}
		m.WideClassFor(t.ID)
	}
}

// formalOwners maps every formal symbol to the function that declares
// it, needed to apply step 3's exclusions (d): a formal of an extern or
// local-args function never gets widened, because the ABI on the other
// side of that boundary expects the narrow representation.
func formalOwners(m *ir.Module) map[ir.SymbolID]*ir.Func {
	out := make(map[ir.SymbolID]*ir.Func)
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		for _, formal := range f.Formals {
			out[formal] = f
		}
	}
	return out
}

// widenClassSymbols is step 3: every symbol definition whose type has a
// wide counterpart gets retyped to it, except an interned string
// literal (exclusion a — always narrow), a field symbol (exclusion b —
// field symbols live in Module's private field cache, never in
// Symbols.All()'s formal/var/global population, so this exclusion is
// satisfied structurally rather than checked here), or a formal of an
// extern/local-args function (exclusion d). Exclusion (c), a
// super-class field, does not apply: this IR has no class-inheritance
// field layout. Exclusion (e), an extern function's declared return
// type, is likewise satisfied structurally — this step only retypes
// symbols, never Func.Result.
func widenClassSymbols(m *ir.Module) {
	owners := formalOwners(m)
	for _, s := range m.Symbols.All() {
		if s.Kind != ir.SymVar && s.Kind != ir.SymFormal {
			continue
		}
		wideID, ok := m.WideClassMap[s.Type]
		if !ok {
			continue
		}
		if s.IsStringLiteral {
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
