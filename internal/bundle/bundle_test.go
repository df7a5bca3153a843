package bundle_test

import (
	"testing"

	"parlower/internal/bundle"
	"parlower/internal/ir"
)

func lastStmt(m *ir.Module, block ir.BlockID) *ir.Node {
	stmts := m.Block(block).Stmts
	return m.Node(stmts[len(stmts)-1])
}

func TestBundleSimpleBegin(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	intType := m.Types.New(ir.TypePrimitive, "int")

	xFormal := m.Symbols.New(ir.SymFormal, "x", intType.ID)
	xFormal.Intent = ir.IntentConstRef

	beginFn := ir.NewFunc("beginBody")
	beginFn.Formals = []ir.SymbolID{xFormal.ID}
	beginFn.Flags = ir.FuncFlagTask
	beginID := m.AddFunc(beginFn)
	beginFn.Body = m.NewBlock(beginID)
	m.AppendStmt(beginFn.Body, b.Prim(ir.PrimUnknown, b.SymExpr(xFormal.ID)))

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)

	xLocal := m.Symbols.New(ir.SymVar, "x", intType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(xLocal.ID, ir.NoNodeID))
	callNode := b.Call(beginID, b.SymExpr(xLocal.ID))
	m.AppendStmt(mainFn.Body, callNode)

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	if beginFn.Flags.Has(ir.FuncFlagTask) {
		t.Fatalf("original task function should have lost its task flag to the wrapper")
	}
	if len(beginFn.Formals) != 1 {
		t.Fatalf("beginBody formals: got %d, want 1 (unchanged)", len(beginFn.Formals))
	}

	wrapSym, ok := lookupFunc(m, "wrap_beginBody")
	if !ok {
		t.Fatalf("wrap_beginBody not synthesized")
	}
	wrapFn := m.Func(wrapSym)
	if !wrapFn.Flags.Has(ir.FuncFlagTask) {
		t.Fatalf("wrapper should carry the task flag")
	}
	if len(wrapFn.Formals) != 1 {
		t.Fatalf("wrap_beginBody formals: got %d, want 1 (the bundle)", len(wrapFn.Formals))
	}
	bundleFormal := m.Symbols.Get(wrapFn.Formals[0])
	bundleType := m.Types.Get(bundleFormal.Type)
	if len(bundleType.Fields) != 1 || bundleType.Fields[0].Name != "x" {
		t.Fatalf("bundle type fields: got %+v, want one field named x", bundleType.Fields)
	}

	last := lastStmt(m, mainFn.Body)
	if last.Kind != ir.NodeCallExpr || last.Callee != wrapSym {
		t.Fatalf("call site was not rewritten to call the wrapper")
	}
	if len(last.Args) != 1 {
		t.Fatalf("rewritten call has %d args, want 1 (the bundle)", len(last.Args))
	}
}

func TestBundleZeroFormals(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)

	beginFn := ir.NewFunc("emptyBegin")
	beginFn.Flags = ir.FuncFlagTask
	beginID := m.AddFunc(beginFn)
	beginFn.Body = m.NewBlock(beginID)

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)
	m.AppendStmt(mainFn.Body, b.Call(beginID))

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	wrapSym, ok := lookupFunc(m, "wrap_emptyBegin")
	if !ok {
		t.Fatalf("wrap_emptyBegin not synthesized")
	}
	wrapFn := m.Func(wrapSym)
	bundleFormal := m.Symbols.Get(wrapFn.Formals[0])
	bundleType := m.Types.Get(bundleFormal.Type)
	if len(bundleType.Fields) != 0 {
		t.Fatalf("empty task's bundle should have zero fields, got %d", len(bundleType.Fields))
	}
}

func TestBundleOnTask(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	localeType := m.Types.New(ir.TypePrimitive, "locale_id")
	intType := m.Types.New(ir.TypePrimitive, "int")

	localeFormal := m.Symbols.New(ir.SymFormal, "locale", localeType.ID)
	yFormal := m.Symbols.New(ir.SymFormal, "y", intType.ID)

	onFn := ir.NewFunc("onBody")
	onFn.Formals = []ir.SymbolID{localeFormal.ID, yFormal.ID}
	onFn.Flags = ir.FuncFlagOn
	onID := m.AddFunc(onFn)
	onFn.Body = m.NewBlock(onID)

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)

	localeLocal := m.Symbols.New(ir.SymVar, "loc", localeType.ID)
	yLocal := m.Symbols.New(ir.SymVar, "y", intType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(localeLocal.ID, ir.NoNodeID))
	m.AppendStmt(mainFn.Body, b.DefExpr(yLocal.ID, ir.NoNodeID))
	m.AppendStmt(mainFn.Body, b.Call(onID, b.SymExpr(localeLocal.ID), b.SymExpr(yLocal.ID)))

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	if len(onFn.Formals) != 1 || onFn.Formals[0] != yFormal.ID {
		t.Fatalf("onBody formals after strip: got %v, want just [y]", onFn.Formals)
	}

	wrapSym, ok := lookupFunc(m, "wrap_onBody")
	if !ok {
		t.Fatalf("wrap_onBody not synthesized")
	}
	wrapFn := m.Func(wrapSym)
	if len(wrapFn.Formals) != 2 {
		t.Fatalf("wrap_onBody formals: got %d, want 2 (locale, bundle)", len(wrapFn.Formals))
	}

	stmts := m.Block(mainFn.Body).Stmts
	lastTwo := stmts[len(stmts)-2:]
	callStmt := m.Node(lastTwo[0])
	freeStmt := m.Node(lastTwo[1])
	if callStmt.Kind != ir.NodeCallExpr || callStmt.Callee != wrapSym || len(callStmt.Args) != 2 {
		t.Fatalf("on call site not rewritten correctly: %+v", callStmt)
	}
	if freeStmt.Primitive != ir.PrimHereFree {
		t.Fatalf("caller should free the bundle after an on-task call, got primitive %v", freeStmt.Primitive)
	}
}

func TestBundleRefcountedCaptureSchedulesOneAutoDestroy(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	rcType := m.Types.New(ir.TypeClass, "RC")
	rcType.Flags |= ir.TypeFlagRefcounted

	rcFormal := m.Symbols.New(ir.SymFormal, "rc", rcType.ID)
	rcFormal.Intent = ir.IntentConstRef

	beginFn := ir.NewFunc("useRC")
	beginFn.Formals = []ir.SymbolID{rcFormal.ID}
	beginFn.Flags = ir.FuncFlagTask
	beginID := m.AddFunc(beginFn)
	beginFn.Body = m.NewBlock(beginID)

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)

	rcLocal := m.Symbols.New(ir.SymVar, "rc", rcType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(rcLocal.ID, ir.NoNodeID))

	// Two call sites of the same begin function.
	m.AppendStmt(mainFn.Body, b.Call(beginID, b.SymExpr(rcLocal.ID)))
	m.AppendStmt(mainFn.Body, b.Call(beginID, b.SymExpr(rcLocal.ID)))

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	autoDestroyCount := 0
	for _, stmtID := range m.Block(beginFn.Body).Stmts {
		if n := m.Node(stmtID); n.Primitive == ir.PrimAutoDestroy {
			autoDestroyCount++
		}
	}
	if autoDestroyCount != 1 {
		t.Fatalf("auto-destroy count: got %d, want exactly 1 regardless of call-site count", autoDestroyCount)
	}

	// Each call site's fill sequence should include a deref + auto_copy,
	// storing the original (not the copy) into the bundle field.
	autoCopyCount := 0
	for _, stmtID := range m.Block(mainFn.Body).Stmts {
		if n := m.Node(stmtID); n.Primitive == ir.PrimAutoCopy {
			autoCopyCount++
		}
	}
	if autoCopyCount != 2 {
		t.Fatalf("auto-copy count across both call sites: got %d, want 2", autoCopyCount)
	}
}

func TestBundleRefcountedCaptureDestroysThroughDerefTemp(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	rcType := m.Types.New(ir.TypeClass, "RC")
	rcType.Flags |= ir.TypeFlagRefcounted

	rcFormal := m.Symbols.New(ir.SymFormal, "rc", rcType.ID)
	rcFormal.Intent = ir.IntentConstRef

	beginFn := ir.NewFunc("useRC")
	beginFn.Formals = []ir.SymbolID{rcFormal.ID}
	beginFn.Flags = ir.FuncFlagTask
	beginID := m.AddFunc(beginFn)
	beginFn.Body = m.NewBlock(beginID)

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)
	rcLocal := m.Symbols.New(ir.SymVar, "rc", rcType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(rcLocal.ID, ir.NoNodeID))
	m.AppendStmt(mainFn.Body, b.Call(beginID, b.SymExpr(rcLocal.ID)))

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	var destroy *ir.Node
	for _, stmtID := range m.Block(beginFn.Body).Stmts {
		if n := m.Node(stmtID); n.Primitive == ir.PrimAutoDestroy {
			destroy = n
		}
	}
	if destroy == nil {
		t.Fatalf("no auto-destroy scheduled")
	}
	arg := m.Node(destroy.Args[0])
	if arg.Kind != ir.NodeSymExpr || arg.Sym == rcFormal.ID {
		t.Fatalf("auto-destroy should target a deref temp, not the formal itself: %+v", arg)
	}

	var derefMove *ir.Node
	for _, stmtID := range m.Block(beginFn.Body).Stmts {
		if n := m.Node(stmtID); n.Primitive == ir.PrimMove {
			derefMove = n
		}
	}
	if derefMove == nil {
		t.Fatalf("no deref move found ahead of the auto-destroy")
	}
	src := m.Node(derefMove.Args[1])
	if src.Primitive != ir.PrimDeref {
		t.Fatalf("deref temp should be filled by a deref of the formal, got primitive %v", src.Primitive)
	}
	derefArg := m.Node(src.Args[0])
	if derefArg.Sym != rcFormal.ID {
		t.Fatalf("deref should apply to the formal, got %+v", derefArg)
	}
}

func TestBundleAutoDestroyInsertedBeforeExistingEndCountDecrement(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	rcType := m.Types.New(ir.TypeClass, "RC")
	rcType.Flags |= ir.TypeFlagRefcounted
	intType := m.Types.New(ir.TypePrimitive, "int")

	rcFormal := m.Symbols.New(ir.SymFormal, "rc", rcType.ID)
	rcFormal.Intent = ir.IntentConstRef
	ecLocal := m.Symbols.New(ir.SymVar, "ec", intType.ID)

	beginFn := ir.NewFunc("useRC")
	beginFn.Formals = []ir.SymbolID{rcFormal.ID}
	beginFn.Flags = ir.FuncFlagTask
	beginID := m.AddFunc(beginFn)
	beginFn.Body = m.NewBlock(beginID)
	decrementStmt := b.Prim(ir.PrimSetEndCount, b.SymExpr(ecLocal.ID))
	m.AppendStmt(beginFn.Body, decrementStmt)

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)
	rcLocal := m.Symbols.New(ir.SymVar, "rc", rcType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(rcLocal.ID, ir.NoNodeID))
	m.AppendStmt(mainFn.Body, b.Call(beginID, b.SymExpr(rcLocal.ID)))

	if err := bundle.Run(m, bundle.NewState()); err != nil {
		t.Fatalf("bundle.Run: %v", err)
	}

	stmts := m.Block(beginFn.Body).Stmts
	decrementIdx := -1
	destroyIdx := -1
	for i, stmtID := range stmts {
		n := m.Node(stmtID)
		if stmtID == decrementStmt {
			decrementIdx = i
		}
		if n.Primitive == ir.PrimAutoDestroy {
			destroyIdx = i
		}
	}
	if decrementIdx < 0 {
		t.Fatalf("end-count decrement statement missing after bundling")
	}
	if destroyIdx < 0 {
		t.Fatalf("no auto-destroy scheduled")
	}
	if destroyIdx >= decrementIdx {
		t.Fatalf("auto-destroy (idx %d) should be inserted before the end-count decrement (idx %d)", destroyIdx, decrementIdx)
	}
}

func lookupFunc(m *ir.Module, name string) (ir.FuncID, bool) {
	for id, f := range m.Funcs {
		if f != nil && f.Name == name {
			return id, true
		}
	}
	return ir.NoFuncID, false
}
