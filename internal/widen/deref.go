package widen

import "parlower/internal/ir"

// wideRefToWideClassDeref is step 11: when the first operand of
// get_member*, wide_get_*, or set_member is a wide ref whose pointee
// class was itself widened, the primitive can no longer read through it
// directly — materialize a temp holding the dereferenced wide class and
// rewrite the primitive to use that instead.
func wideRefToWideClassDeref(m *ir.Module) {
	b := ir.NewBuilder(m)
	for _, fid := range sortedFuncIDs(m) {
		f := m.Func(fid)
		if f == nil || !f.Body.IsValid() {
			continue
		}
		var targets []ir.NodeID
		m.Walk(f.Body, func(n *ir.Node) bool {
			if n.Kind == ir.NodeCallExpr && isDerefTarget(n.Primitive) && len(n.Args) > 0 {
				if wideClassOf(m, n.Args[0]).IsValid() {
					targets = append(targets, n.ID)
				}
			}
			return true
		})
		for _, id := range targets {
			rewriteDerefTarget(m, b, id)
		}
	}
}

func isDerefTarget(p ir.Primitive) bool {
	switch p {
	case ir.PrimGetMember, ir.PrimGetMemberValue, ir.PrimWideGet, ir.PrimSetMember:
		return true
	default:
		return false
	}
}

// wideClassOf returns the wide-class type reachable by dereferencing
// arg, if arg is a wide ref to a ref whose pointee class was widened;
// NoTypeID otherwise.
func wideClassOf(m *ir.Module, arg ir.NodeID) ir.TypeID {
	n := m.Node(arg)
	if n == nil || n.Kind != ir.NodeSymExpr {
		return ir.NoTypeID
	}
	wideRefType := m.Types.Get(m.SymType(n.Sym))
	if wideRefType == nil || !wideRefType.IsWideRef() {
		return ir.NoTypeID
	}
	narrowRef := m.Types.Get(wideRefType.Elem)
	if narrowRef == nil || !narrowRef.IsRef() {
		return ir.NoTypeID
	}
	wideClass, ok := m.WideClassMap[narrowRef.Elem]
	if !ok {
		return ir.NoTypeID
	}
	return wideClass
}

func rewriteDerefTarget(m *ir.Module, b *ir.Builder, callID ir.NodeID) {
	call := m.Node(callID)
	if call == nil || len(call.Args) == 0 {
		return
	}
	wideClassType := wideClassOf(m, call.Args[0])
	if !wideClassType.IsValid() {
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

	orig := m.Node(call.Args[0]).Sym
	tmp := m.Symbols.New(ir.SymVar, m.Symbols.Get(orig).Name+"_deref", wideClassType)
	decl := b.DefExpr(tmp.ID, b.Deref(b.SymExpr(orig)))
	m.InsertStmtBefore(block, idx, decl)

	call.Args[0] = b.SymExpr(tmp.ID)
	m.SetParentNode(call.Args[0], call.ID)
}

// widenGetPrivClass is step 12: the type-symbol argument to
// get_priv_class is replaced by the widened type's symbol when the
// named type was itself widened.
func widenGetPrivClass(m *ir.Module) {
	for _, fid := range sortedFuncIDs(m) {
		f := m.Func(fid)
		if f == nil || !f.Body.IsValid() {
			continue
		}
		m.Walk(f.Body, func(n *ir.Node) bool {
			if n.Kind != ir.NodeCallExpr || n.Primitive != ir.PrimGetPrivClass || len(n.Args) == 0 {
				return true
			}
			arg := m.Node(n.Args[0])
			if arg == nil || arg.Kind != ir.NodeSymExpr {
				return true
			}
			sym := m.Symbols.Get(arg.Sym)
			if sym == nil || sym.Kind != ir.SymType {
				return true
			}
			if wideID, ok := m.WideClassMap[sym.Type]; ok {
				arg.Sym = m.TypeSymbol(wideID)
			}
			return true
		})
	}
}
