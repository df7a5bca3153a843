package widen

import (
	"sort"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// narrowAtLocalArgsBoundaries is step 7: every wide-typed actual passed
// to a local_args function is dereferenced into a narrow temp before
// the call (with an optional locality check when the narrow type is a
// ref to a wide string; extern narrow types get no check), and copied
// back afterward for out/inout formals.
func narrowAtLocalArgsBoundaries(m *ir.Module, cfg rtconfig.Config) {
	b := ir.NewBuilder(m)
	for _, fid := range sortedFuncIDs(m) {
		callee := m.Func(fid)
		if callee == nil || !callee.Flags.Has(ir.FuncFlagLocalArgs) {
			continue
		}
		for _, cs := range sortedLocalArgsCallSites(m, fid) {
			narrowCallSite(m, b, cfg, callee, cs)
		}
	}
}

func narrowCallSite(m *ir.Module, b *ir.Builder, cfg rtconfig.Config, callee *ir.Func, cs ir.CallSite) {
	call := m.Node(cs.Node)
	if call == nil {
		return
	}
	block, stmt := findEnclosingStmt(m, cs.Node)
	if !block.IsValid() {
		return
	}

	for i, argID := range call.Args {
		if i >= len(callee.Formals) {
			break
		}
		argNode := m.Node(argID)
		if argNode == nil || argNode.Kind != ir.NodeSymExpr {
			continue
		}
		origSym := argNode.Sym
		wideType := m.Types.Get(m.SymType(origSym))
		if wideType == nil || !(wideType.IsWideClass() || wideType.IsWideRef()) {
			continue
		}
		formal := m.Symbols.Get(callee.Formals[i])
		narrowType := wideType.Elem

		idx := m.IndexOfStmt(block, stmt)
		if idx < 0 {
			continue
		}
		addrField := m.FieldSymbol(wideType.ID, "addr")

		if needsLocalityCheck(m, narrowType) && !cfg.FNoLocalChecks {
			check := b.RuntimeCall(ir.PrimLocalCheck, b.SymExpr(origSym))
			m.InsertStmtBefore(block, idx, check)
			idx++
		}

		narrowName := "_narrow"
		if formal != nil {
			narrowName = formal.Name + "_narrow"
		}
		tmp := m.Symbols.New(ir.SymVar, narrowName, narrowType)
		decl := b.DefExpr(tmp.ID, b.GetMemberValue(b.SymExpr(origSym), addrField))
		m.InsertStmtBefore(block, idx, decl)

		call.Args[i] = b.SymExpr(tmp.ID)
		m.SetParentNode(call.Args[i], call.ID)

		if formal != nil && (formal.Intent == ir.IntentOut || formal.Intent == ir.IntentInOut) {
			copyBack := b.SetMember(b.SymExpr(origSym), addrField, b.SymExpr(tmp.ID))
			afterIdx := m.IndexOfStmt(block, stmt)
			m.InsertStmtBefore(block, afterIdx+1, copyBack)
		}
	}
}

// needsLocalityCheck reports whether step 7's optional local_check
// should guard narrowing: only when the narrow type is a ref whose
// pointee is a wide string (dereferencing it may still cross a node
// boundary even after this step's own narrowing). Extern storage is not
// recognized here and never gets a check.
func needsLocalityCheck(m *ir.Module, narrowType ir.TypeID) bool {
	t := m.Types.Get(narrowType)
	if t == nil {
		return false
	}
	if t.IsRef() {
		elem := m.Types.Get(t.Elem)
		return elem != nil && elem.IsWideClass() && elem.Name == "wide(string)"
	}
	return false
}

func sortedLocalArgsCallSites(m *ir.Module, fn ir.FuncID) []ir.CallSite {
	sites := append([]ir.CallSite(nil), m.CalledBy(fn)...)
	sort.Slice(sites, func(i, j int) bool { return sites[i].Node < sites[j].Node })
	return sites
}
