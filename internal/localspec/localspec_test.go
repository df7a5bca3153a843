package localspec_test

import (
	"testing"

	"parlower/internal/ir"
	"parlower/internal/localspec"
	"parlower/internal/rtconfig"
)

func distributedConfig() rtconfig.Config {
	cfg := rtconfig.Default()
	cfg.FLocal = false
	cfg.CommLayer = rtconfig.CommGasnet
	cfg.GasnetSegment = rtconfig.SegmentFast
	return cfg
}

func wideClassType(m *ir.Module, name string) *ir.Type {
	narrow := m.Types.New(ir.TypeClass, name)
	wide, _ := m.WideClassFor(narrow.ID)
	return wide
}

// Inside a local block, a get_member_value read through a wide-class
// symbol is narrowed into a fresh local temp, preceded by a
// local_check call.
func TestLocalBlockNarrowsWideMemberAccess(t *testing.T) {
	m := ir.NewModule()
	wide := wideClassType(m, "Node")
	addrField := m.FieldSymbol(wide.ID, "addr")

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	n := m.Symbols.New(ir.SymVar, "n", wide.ID)
	m.AppendStmt(main.Body, b.DefExpr(n.ID, ir.NoNodeID))

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	read := b.GetMemberValue(b.SymExpr(n.ID), addrField)
	m.AppendStmt(localBody, read)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	readNode := m.Node(read)
	if len(readNode.Args) == 0 {
		t.Fatalf("get_member_value call lost its arguments")
	}
	narrowedArg := m.Node(readNode.Args[0])
	if narrowedArg == nil || narrowedArg.Kind != ir.NodeSymExpr {
		t.Fatalf("base operand should have been replaced by a narrowed sym ref")
	}
	if narrowedArg.Sym == n.ID {
		t.Fatalf("base operand should no longer be the original wide symbol")
	}
	narrowSym := m.Symbols.Get(narrowedArg.Sym)
	if narrowSym.Type != wide.Elem {
		t.Fatalf("narrowed temp should have the narrow element type, got %v want %v", narrowSym.Type, wide.Elem)
	}

	checkCount, declCount := 0, 0
	m.Walk(localBody, func(nd *ir.Node) bool {
		if nd.Kind == ir.NodeCallExpr && nd.Primitive == ir.PrimLocalCheck {
			checkCount++
		}
		if nd.Kind == ir.NodeDefExpr && nd.Sym == narrowedArg.Sym {
			declCount++
		}
		return true
	})
	if checkCount != 1 {
		t.Fatalf("expected exactly one local_check, got %d", checkCount)
	}
	if declCount != 1 {
		t.Fatalf("expected exactly one decl for the narrowed temp, got %d", declCount)
	}
}

// A bare deref of a wide reference inside a local block is narrowed
// just like a member access, preceded by its own local_check.
func TestLocalBlockNarrowsWideDeref(t *testing.T) {
	m := ir.NewModule()
	narrow := m.Types.New(ir.TypePrimitive, "int")
	wide, _ := m.WideRefFor(narrow.ID)

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	r := m.Symbols.New(ir.SymVar, "r", wide.ID)
	m.AppendStmt(main.Body, b.DefExpr(r.ID, ir.NoNodeID))

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	deref := b.Deref(b.SymExpr(r.ID))
	m.AppendStmt(localBody, deref)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	derefNode := m.Node(deref)
	if len(derefNode.Args) == 0 {
		t.Fatalf("deref call lost its argument")
	}
	narrowedArg := m.Node(derefNode.Args[0])
	if narrowedArg == nil || narrowedArg.Kind != ir.NodeSymExpr || narrowedArg.Sym == r.ID {
		t.Fatalf("deref's operand should have been replaced by a narrowed sym ref")
	}

	checkCount := 0
	m.Walk(localBody, func(nd *ir.Node) bool {
		if nd.Kind == ir.NodeCallExpr && nd.Primitive == ir.PrimLocalCheck {
			checkCount++
		}
		return true
	})
	if checkCount != 1 {
		t.Fatalf("expected exactly one local_check ahead of the narrowed deref, got %d", checkCount)
	}
}

// cfg.FNoLocalChecks suppresses the local_check call but narrowing
// still happens.
func TestFNoLocalChecksSuppressesCheck(t *testing.T) {
	m := ir.NewModule()
	wide := wideClassType(m, "Node")
	addrField := m.FieldSymbol(wide.ID, "addr")

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	n := m.Symbols.New(ir.SymVar, "n", wide.ID)
	m.AppendStmt(main.Body, b.DefExpr(n.ID, ir.NoNodeID))

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	read := b.GetMemberValue(b.SymExpr(n.ID), addrField)
	m.AppendStmt(localBody, read)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	cfg := distributedConfig()
	cfg.FNoLocalChecks = true

	if err := localspec.Run(m, cfg); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	checkCount := 0
	m.Walk(localBody, func(nd *ir.Node) bool {
		if nd.Kind == ir.NodeCallExpr && nd.Primitive == ir.PrimLocalCheck {
			checkCount++
		}
		return true
	})
	if checkCount != 0 {
		t.Fatalf("fNoLocalChecks should suppress local_check, got %d", checkCount)
	}

	readNode := m.Node(read)
	narrowedArg := m.Node(readNode.Args[0])
	if narrowedArg.Sym == n.ID {
		t.Fatalf("narrowing should still happen with checks suppressed")
	}
}

// A resolved call reached from a local block gets its callee cloned,
// the clone flagged local_fn and named _local_<orig>, and the call site
// redirected to it; the original function is left untouched.
func TestCalleeClonedAndRedirected(t *testing.T) {
	m := ir.NewModule()

	helper := ir.NewFunc("helper")
	helperID := m.AddFunc(helper)
	helper.Body = m.NewBlock(helperID)

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	call := b.Call(helperID)
	m.AppendStmt(localBody, call)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	callNode := m.Node(call)
	if callNode.Callee == helperID {
		t.Fatalf("call should have been redirected to a clone")
	}
	clone := m.Func(callNode.Callee)
	if clone == nil {
		t.Fatalf("redirected callee should exist")
	}
	if clone.Name != "_local_helper" {
		t.Fatalf("clone should be named _local_helper, got %q", clone.Name)
	}
	if !clone.Flags.Has(ir.FuncFlagLocalFn) {
		t.Fatalf("clone should be flagged local_fn")
	}
	if helper.Flags.Has(ir.FuncFlagLocalFn) {
		t.Fatalf("original helper must not be mutated into a local_fn")
	}
}

// A recursive callee reached from a local block is cloned exactly once;
// the clone's own recursive call is redirected to itself, not to a
// second clone.
func TestRecursiveCalleeClonedOnce(t *testing.T) {
	m := ir.NewModule()

	recur := ir.NewFunc("recur")
	recurID := m.AddFunc(recur)
	recur.Body = m.NewBlock(recurID)
	b := ir.NewBuilder(m)
	selfCall := b.Call(recurID)
	m.AppendStmt(recur.Body, selfCall)

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	outerCall := b.Call(recurID)
	m.AppendStmt(localBody, outerCall)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	outerClone := m.Func(m.Node(outerCall).Callee)
	if outerClone == nil {
		t.Fatalf("outer call should have been redirected to a clone")
	}

	var innerCallID ir.NodeID
	m.Walk(outerClone.Body, func(nd *ir.Node) bool {
		if nd.Kind == ir.NodeCallExpr && nd.Primitive == ir.PrimNone {
			innerCallID = nd.ID
		}
		return true
	})
	if !innerCallID.IsValid() {
		t.Fatalf("clone body should still contain the recursive call")
	}
	if m.Node(innerCallID).Callee != outerClone.ID {
		t.Fatalf("recursive call inside the clone should target the same clone, got %v want %v",
			m.Node(innerCallID).Callee, outerClone.ID)
	}
}

// A callee that returns a wide class gets its clone's declared result
// narrowed; the original function's declared result is untouched.
func TestCloneNarrowsWideReturn(t *testing.T) {
	m := ir.NewModule()
	wide := wideClassType(m, "Node")

	producer := ir.NewFunc("produce")
	producer.Result = wide.ID
	producerID := m.AddFunc(producer)
	producer.Body = m.NewBlock(producerID)

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	call := b.Call(producerID)
	m.AppendStmt(localBody, call)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	clone := m.Func(m.Node(call).Callee)
	if clone.Result != wide.Elem {
		t.Fatalf("clone's result should be narrowed to %v, got %v", wide.Elem, clone.Result)
	}
	if producer.Result != wide.ID {
		t.Fatalf("original producer's declared result must stay wide")
	}
}

// A call outside any local block is left completely alone.
func TestCallOutsideLocalBlockUntouched(t *testing.T) {
	m := ir.NewModule()
	wide := wideClassType(m, "Node")
	addrField := m.FieldSymbol(wide.ID, "addr")

	helper := ir.NewFunc("helper")
	helperID := m.AddFunc(helper)
	helper.Body = m.NewBlock(helperID)

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	n := m.Symbols.New(ir.SymVar, "n", wide.ID)
	m.AppendStmt(main.Body, b.DefExpr(n.ID, ir.NoNodeID))
	read := b.GetMemberValue(b.SymExpr(n.ID), addrField)
	m.AppendStmt(main.Body, read)
	call := b.Call(helperID)
	m.AppendStmt(main.Body, call)

	if err := localspec.Run(m, distributedConfig()); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	if m.Node(call).Callee != helperID {
		t.Fatalf("call outside a local block must not be redirected")
	}
	readNode := m.Node(read)
	if m.Node(readNode.Args[0]).Sym != n.ID {
		t.Fatalf("member access outside a local block must not be narrowed")
	}
}

// With no wide references required, the pass is a complete no-op.
func TestSingleLocaleSkipsSpecialization(t *testing.T) {
	m := ir.NewModule()
	wide := wideClassType(m, "Node")
	addrField := m.FieldSymbol(wide.ID, "addr")

	main := ir.NewFunc("main")
	mainID := m.AddFunc(main)
	main.Body = m.NewBlock(mainID)
	b := ir.NewBuilder(m)

	n := m.Symbols.New(ir.SymVar, "n", wide.ID)
	localBody := m.NewBlock(mainID)
	m.Block(localBody).Flags |= ir.BlockFlagLocal
	read := b.GetMemberValue(b.SymExpr(n.ID), addrField)
	m.AppendStmt(localBody, read)
	m.AppendStmt(main.Body, b.NestedBlock(localBody))

	cfg := rtconfig.Default()
	cfg.FLocal = true

	if err := localspec.Run(m, cfg); err != nil {
		t.Fatalf("localspec.Run: %v", err)
	}

	readNode := m.Node(read)
	if m.Node(readNode.Args[0]).Sym != n.ID {
		t.Fatalf("single-locale run should not narrow anything")
	}
}
