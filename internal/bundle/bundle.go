package bundle

import (
	"sort"

	"parlower/internal/ice"
	"parlower/internal/ir"
)

const passName = "bundle"

// taskFlags is the subset of ir.FuncFlags that marks a function as a
// task entry point. Bundling transfers these from the original
// function onto its wrapper: once a call site goes through wrap_T, it
// is wrap_T the runtime spawns, not T.
const taskFlags = ir.FuncFlagTask | ir.FuncFlagOn | ir.FuncFlagNonBlocking | ir.FuncFlagCobeginOrCoforall

// Run bundles every call site of every task function in m, in place.
// Call sites are processed in a deterministic order (by node ID, a
// proxy for IR construction order — the design note's "sort call sites
// by traversal order") so that which call site is "first" for a given
// task function never depends on map iteration order.
func Run(m *ir.Module, st *State) error {
	b := ir.NewBuilder(m)

	for _, fnID := range sortedTaskFuncs(m) {
		fn := m.Func(fnID)
		for _, cs := range sortedCallSites(m, fnID) {
			if err := processCallSite(m, b, st, fn, cs); err != nil {
				return err
			}
		}
	}

	stripLocaleFormals(m, st)
	m.InvalidateCalledBy()
	return nil
}

func sortedTaskFuncs(m *ir.Module) []ir.FuncID {
	var ids []ir.FuncID
	for fid, f := range m.Funcs {
		if f != nil && f.Flags.IsTask() {
			ids = append(ids, fid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedCallSites(m *ir.Module, fn ir.FuncID) []ir.CallSite {
	sites := append([]ir.CallSite(nil), m.CalledBy(fn)...)
	sort.Slice(sites, func(i, j int) bool { return sites[i].Node < sites[j].Node })
	return sites
}

// isAsyncTarget reports whether copy rules apply to calls targeting fn:
// a plain begin, or an "on" flagged non-blocking (fire-and-forget).
func isAsyncTarget(f *ir.Func) bool {
	if f.Flags.Has(ir.FuncFlagOn) {
		return f.Flags.Has(ir.FuncFlagNonBlocking)
	}
	return f.Flags.Has(ir.FuncFlagTask)
}

// ensureBundle returns the bundle type and wrapper for fn, synthesizing
// both (and fn's per-formal copy rules, and its scheduled auto-destroys)
// on the first call. The bundle carries one field per formal of fn,
// including an "on" task's leading locale formal — the wrapper simply
// never forwards that one field's unpacked temp into the call to fn.
func ensureBundle(m *ir.Module, b *ir.Builder, st *State, fn *ir.Func) (ir.TypeID, ir.FuncID, error) {
	if _, ok := st.bundleType[fn.ID]; ok {
		return st.bundleType[fn.ID], st.wrapper[fn.ID], nil
	}

	wasOn := fn.Flags.Has(ir.FuncFlagOn)
	wasAsync := isAsyncTarget(fn)
	st.wasOn[fn.ID] = wasOn
	st.wasAsync[fn.ID] = wasAsync

	bundleType := m.Types.New(ir.TypeClass, "Bundle_"+fn.Name)
	rules := make([]copyRule, 0, len(fn.Formals))
	for _, fsym := range fn.Formals {
		s := m.Symbols.Get(fsym)
		if s == nil {
			return ir.NoTypeID, ir.NoFuncID, ice.New(passName, fn.ID, "task function has a formal with no symbol")
		}
		bundleType.Fields = append(bundleType.Fields, ir.Field{Name: s.Name, Type: s.Type})
		rules = append(rules, copyRuleFor(m, s))
	}
	st.bundleType[fn.ID] = bundleType.ID
	st.copyRules[fn.ID] = rules

	wrapper := synthesizeWrapper(m, b, fn, bundleType.ID, wasOn)
	st.wrapper[fn.ID] = wrapper

	if wasAsync {
		scheduleAutoDestroys(m, b, fn, rules)
	}

	transferTaskFlags(m, fn, wrapper)

	return bundleType.ID, wrapper, nil
}

// transferTaskFlags moves the task-kind flags from fn onto wrapper: once
// bundling finishes, it is the wrapper the runtime's spawn primitive
// invokes, so the wrapper is now the task entry point and fn is an
// ordinary helper the wrapper happens to call.
func transferTaskFlags(m *ir.Module, fn *ir.Func, wrapper ir.FuncID) {
	w := m.Func(wrapper)
	w.Flags |= fn.Flags & taskFlags
	fn.Flags &^= taskFlags
}

// copyRuleFor determines, from a formal's declared intent and type
// alone, what the copy rules do with an actual bound to it — a
// property of the formal, identical at every call site.
func copyRuleFor(m *ir.Module, formal *ir.Symbol) copyRule {
	t := m.Types.Get(formal.Type)
	if t == nil {
		return copyNone
	}
	refcounted := t.Flags.Has(ir.TypeFlagRefcounted)
	byRef := formal.Intent == ir.IntentRef || formal.Intent == ir.IntentConstRef
	switch {
	case byRef && refcounted:
		return copyDerefThenAutoCopy
	case refcounted:
		return copyValueAutoCopy
	case t.IsRecord():
		return copyValueAutoCopy
	default:
		return copyNone
	}
}

// synthesizeWrapper builds wrap_T: a raw leading locale formal for "on"
// tasks (used directly by the fork primitive at codegen, never routed
// through the bundle), then one formal c: BundleT. Its body unpacks
// every bundle field into a temp and calls T with them — except the
// locale field, which T itself no longer needs — then (for non-"on"
// tasks) frees the bundle. For "on" tasks the caller frees it after the
// call returns, since the wrapper's own frame may have already forked
// away by then.
func synthesizeWrapper(m *ir.Module, b *ir.Builder, fn *ir.Func, bundleType ir.TypeID, wasOn bool) ir.FuncID {
	wrapperSym := m.Symbols.New(ir.SymFunc, "wrap_"+fn.Name, ir.NoTypeID)
	w := ir.NewFunc("wrap_" + fn.Name)
	w.Sym = wrapperSym.ID

	cSym := m.Symbols.New(ir.SymFormal, "c", bundleType)
	cSym.Intent = ir.IntentConstRef

	if wasOn {
		localeFormal := m.Symbols.Get(fn.Formals[0])
		localeSym := m.Symbols.New(ir.SymFormal, "locale", localeFormal.Type)
		localeSym.Intent = ir.IntentIn
		w.Formals = []ir.SymbolID{localeSym.ID, cSym.ID}
	} else {
		w.Formals = []ir.SymbolID{cSym.ID}
	}

	wrapperID := m.AddFunc(w)
	w.Body = m.NewBlock(wrapperID)

	bt := m.Types.Get(bundleType)
	callArgs := make([]ir.NodeID, 0, len(bt.Fields))
	for i, field := range bt.Fields {
		fieldSym := m.FieldSymbol(bundleType, field.Name)
		temp := m.Symbols.New(ir.SymVar, "t_"+field.Name, field.Type)

		m.AppendStmt(w.Body, b.DefExpr(temp.ID, ir.NoNodeID))
		m.AppendStmt(w.Body, b.Move(b.SymExpr(temp.ID), b.GetMemberValue(b.SymExpr(cSym.ID), fieldSym)))

		if i == 0 && wasOn {
			continue // the locale field stays in the bundle but isn't forwarded to T.
		}
		callArgs = append(callArgs, b.SymExpr(temp.ID))
	}

	m.AppendStmt(w.Body, b.Call(fn.ID, callArgs...))

	if !wasOn {
		m.AppendStmt(w.Body, b.RuntimeCall(ir.PrimHereFree, b.SymExpr(cSym.ID)))
	}

	return wrapperID
}

// scheduleAutoDestroys inserts, once, the auto-destroy calls for every
// formal of fn whose copy rule required an auto-copy. They go right
// before fn's own explicit end-count decrement if it already has one
// (the endcount threader hasn't run yet at this point in the pipeline,
// so a task body built upstream still carries set_end_count as a bare
// statement rather than a threaded move) — otherwise at the end of the
// body, where that decrement will later be appended. A by-reference
// refcounted formal (copyDerefThenAutoCopy) is destroyed through a
// fresh deref temp, not the formal itself, mirroring how its matching
// auto-copy on the caller side runs over a deref temp rather than the
// reference in processCallSite.
func scheduleAutoDestroys(m *ir.Module, b *ir.Builder, fn *ir.Func, rules []copyRule) {
	insertAt := len(m.Block(fn.Body).Stmts)
	if idx := indexOfEndCountDecrement(m, fn.Body); idx >= 0 {
		insertAt = idx
	}

	for i, rule := range rules {
		if rule == copyNone {
			continue
		}
		formal := fn.Formals[i]

		var stmts []ir.NodeID
		destroyTarget := formal
		if rule == copyDerefThenAutoCopy {
			formalSym := m.Symbols.Get(formal)
			derefTemp := m.Symbols.New(ir.SymVar, "t_destroy_"+formalSym.Name, formalSym.Type)
			stmts = append(stmts, b.DefExpr(derefTemp.ID, ir.NoNodeID))
			stmts = append(stmts, b.Move(b.SymExpr(derefTemp.ID), b.Deref(b.SymExpr(formal))))
			destroyTarget = derefTemp.ID
		}
		stmts = append(stmts, b.RuntimeCall(ir.PrimAutoDestroy, b.SymExpr(destroyTarget)))

		for _, stmt := range stmts {
			m.InsertStmtBefore(fn.Body, insertAt, stmt)
			insertAt++
		}
	}
}

// indexOfEndCountDecrement returns the index, in body's own statement
// list, of a pre-existing set_end_count call, or -1 if none is present
// yet. Bundling runs ahead of the end-count threader, so any decrement
// already in the body is still the bare primitive call a task body was
// built with, not the threaded move the threader produces later.
func indexOfEndCountDecrement(m *ir.Module, body ir.BlockID) int {
	for i, stmtID := range m.Block(body).Stmts {
		n := m.Node(stmtID)
		if n != nil && n.Kind == ir.NodeCallExpr && n.Primitive == ir.PrimSetEndCount {
			return i
		}
	}
	return -1
}

// processCallSite rewrites one call to a task function into: allocate
// a bundle, fill its fields per the copy rules, call the wrapper,
// remove the original call.
func processCallSite(m *ir.Module, b *ir.Builder, st *State, fn *ir.Func, cs ir.CallSite) error {
	node := m.Node(cs.Node)
	if node == nil || node.Kind != ir.NodeCallExpr || node.Callee != fn.ID {
		return ice.New(passName, cs.Node, "call-graph entry does not point at a live call to its callee")
	}
	block := node.ParentBlock
	if !block.IsValid() {
		return ice.New(passName, cs.Node, "task call site is not a direct block statement")
	}
	idx := m.IndexOfStmt(block, cs.Node)
	if idx < 0 {
		return ice.New(passName, cs.Node, "task call site not found in its own parent block")
	}
	if len(node.Args) != len(fn.Formals) {
		return ice.New(passName, cs.Node, "call site arity does not match callee formals")
	}

	bundleType, wrapper, err := ensureBundle(m, b, st, fn)
	if err != nil {
		return err
	}
	wasOn := st.wasOn[fn.ID]
	wasAsync := st.wasAsync[fn.ID]

	bundleSym := m.Symbols.New(ir.SymVar, "bundle", bundleType)
	allocStmt := b.DefExpr(bundleSym.ID, b.RuntimeCall(ir.PrimHereAlloc, b.SymExpr(m.TypeSymbol(bundleType))))

	rules := st.copyRules[fn.ID]

	bt := m.Types.Get(bundleType)
	var fillStmts []ir.NodeID
	for i, field := range bt.Fields {
		actual := m.Node(node.Args[i])
		if actual == nil || actual.Kind != ir.NodeSymExpr {
			return ice.New(passName, node.Args[i], "task actual is not a direct symbol reference")
		}
		actualSym := actual.Sym
		fieldSym := m.FieldSymbol(bundleType, field.Name)

		rule := copyNone
		if wasAsync && i < len(rules) {
			rule = rules[i]
		}

		switch rule {
		case copyDerefThenAutoCopy:
			derefTemp := m.Symbols.New(ir.SymVar, "t_deref_"+field.Name, field.Type)
			fillStmts = append(fillStmts, b.DefExpr(derefTemp.ID, ir.NoNodeID))
			fillStmts = append(fillStmts, b.Move(b.SymExpr(derefTemp.ID), b.Deref(b.SymExpr(actualSym))))
			fillStmts = append(fillStmts, b.RuntimeCall(ir.PrimAutoCopy, b.SymExpr(derefTemp.ID)))
			fillStmts = append(fillStmts, b.SetMember(b.SymExpr(bundleSym.ID), fieldSym, b.SymExpr(actualSym)))
		case copyValueAutoCopy:
			copyTemp := m.Symbols.New(ir.SymVar, "t_copy_"+field.Name, field.Type)
			fillStmts = append(fillStmts, b.DefExpr(copyTemp.ID, ir.NoNodeID))
			fillStmts = append(fillStmts, b.Move(b.SymExpr(copyTemp.ID), b.RuntimeCall(ir.PrimAutoCopy, b.SymExpr(actualSym))))
			fillStmts = append(fillStmts, b.SetMember(b.SymExpr(bundleSym.ID), fieldSym, b.SymExpr(copyTemp.ID)))
		default:
			fillStmts = append(fillStmts, b.SetMember(b.SymExpr(bundleSym.ID), fieldSym, b.SymExpr(actualSym)))
		}
	}

	callArgs := []ir.NodeID{}
	if wasOn {
		localeActual := m.Node(node.Args[0])
		callArgs = append(callArgs, b.SymExpr(localeActual.Sym))
	}
	callArgs = append(callArgs, b.SymExpr(bundleSym.ID))
	newCall := b.Call(wrapper, callArgs...)

	replacement := append([]ir.NodeID{allocStmt}, fillStmts...)
	replacement = append(replacement, newCall)
	if wasOn {
		// The wrapper may fork away before returning; the caller frees
		// the bundle once the call completes instead.
		replacement = append(replacement, b.RuntimeCall(ir.PrimHereFree, b.SymExpr(bundleSym.ID)))
	}

	m.RemoveStmtAt(block, idx)
	for i, stmt := range replacement {
		m.InsertStmtBefore(block, idx+i, stmt)
	}

	return nil
}

// stripLocaleFormals removes the dummy leading locale formal from every
// on-task function's formal list, now that bundling has routed it
// through the wrapper instead, for the "on" specialization. wasOn is
// read from state rather than fn.Flags since transferTaskFlags already
// cleared the On flag off the original function.
func stripLocaleFormals(m *ir.Module, st *State) {
	for fnID, wasOn := range st.wasOn {
		if !wasOn {
			continue
		}
		if f := m.Func(fnID); f != nil && len(f.Formals) > 0 {
			f.Formals = f.Formals[1:]
		}
	}
}
