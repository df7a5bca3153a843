package localspec

import (
	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// localizeCall narrows a communicating primitive's base operand when it
// is wide: array get/set, deref, member access, class-id/union-id
// manipulation, set-member, vmt dispatch, and cast all read their first
// argument directly, and every one of them lays it out as Args[0] in
// this IR, so a single narrowing rule covers the whole family instead
// of a per-primitive switch.
func localizeCall(m *ir.Module, b *ir.Builder, cfg rtconfig.Config, callID ir.NodeID) {
	call := m.Node(callID)
	if call == nil || len(call.Args) == 0 || !call.Primitive.IsCommunicating() {
		return
	}
	base := m.Node(call.Args[0])
	if base == nil || base.Kind != ir.NodeSymExpr {
		return
	}
	origSym := base.Sym
	wideType := m.Types.Get(m.SymType(origSym))
	if wideType == nil || !(wideType.IsWideClass() || wideType.IsWideRef()) {
		return
	}

	block, stmt := findEnclosingStmt(m, callID)
	if !block.IsValid() {
		return
	}
	idx := m.IndexOfStmt(block, stmt)
	if idx < 0 {
		return
	}

	if !cfg.FNoLocalChecks {
		check := b.RuntimeCall(ir.PrimLocalCheck, b.SymExpr(origSym))
		m.InsertStmtBefore(block, idx, check)
		idx++
	}

	addrField := m.FieldSymbol(wideType.ID, "addr")
	origName := "_local"
	if sym := m.Symbols.Get(origSym); sym != nil {
		origName = sym.Name + "_local"
	}
	tmp := m.Symbols.New(ir.SymVar, origName, wideType.Elem)
	decl := b.DefExpr(tmp.ID, b.GetMemberValue(b.SymExpr(origSym), addrField))
	m.InsertStmtBefore(block, idx, decl)

	call.Args[0] = b.SymExpr(tmp.ID)
	m.SetParentNode(call.Args[0], call.ID)
}
