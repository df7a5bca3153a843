package globalinit_test

import (
	"testing"

	"parlower/internal/globalinit"
	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

func heapGlobal(m *ir.Module, name string) ir.SymbolID {
	valueType := m.Types.New(ir.TypePrimitive, "int").ID
	heapT, _ := m.Types.HeapCellFor(valueType, name)
	g := m.Symbols.New(ir.SymVar, name, heapT.ID)
	m.Globals = append(m.Globals, g.ID)
	return g.ID
}

func findFunc(m *ir.Module, name string) *ir.Func {
	for _, f := range m.Funcs {
		if f != nil && f.Name == name {
			return f
		}
	}
	return nil
}

// Every heap-promoted global gets a here_alloc + move + indexed
// heap_register_global_var triple inside heapAllocateGlobals, and the
// function finishes with a single heap_broadcast_global_vars(2) call.
func TestAllocatesAndRegistersEachGlobal(t *testing.T) {
	m := ir.NewModule()
	g1 := heapGlobal(m, "counter")
	g2 := heapGlobal(m, "total")

	if err := globalinit.Run(m, rtconfig.Default()); err != nil {
		t.Fatalf("globalinit.Run: %v", err)
	}

	fn := findFunc(m, "heapAllocateGlobals")
	if fn == nil {
		t.Fatalf("expected heapAllocateGlobals to be synthesized")
	}

	var registeredFor []ir.SymbolID
	broadcastCount := 0
	m.Walk(fn.Body, func(n *ir.Node) bool {
		if n.Kind != ir.NodeCallExpr {
			return true
		}
		switch n.Primitive {
		case ir.PrimHeapRegisterGlobalVar:
			if len(n.Args) != 2 {
				t.Fatalf("heap_register_global_var should take (index, sym), got %d args", len(n.Args))
			}
			sym := m.Node(n.Args[1]).Sym
			registeredFor = append(registeredFor, sym)
		case ir.PrimHeapBroadcastGlobalVars:
			broadcastCount++
		}
		return true
	})

	if len(registeredFor) != 2 {
		t.Fatalf("expected 2 registration calls, got %d", len(registeredFor))
	}
	if registeredFor[0] != g1 || registeredFor[1] != g2 {
		t.Fatalf("registration order should follow declaration order, got %v", registeredFor)
	}
	if broadcastCount != 1 {
		t.Fatalf("expected exactly one broadcast call, got %d", broadcastCount)
	}

	calledInTopLevel := false
	m.Walk(m.TopLevel, func(n *ir.Node) bool {
		if n.Kind == ir.NodeCallExpr && n.Callee == fn.ID {
			calledInTopLevel = true
		}
		return true
	})
	if !calledInTopLevel {
		t.Fatalf("TopLevel should call heapAllocateGlobals")
	}
}

// A global whose type was never retyped to heap(T) is left out of the
// registration sequence entirely.
func TestSkipsNonHeapGlobals(t *testing.T) {
	m := ir.NewModule()
	plain := m.Symbols.New(ir.SymVar, "plain", m.Types.New(ir.TypePrimitive, "int").ID)
	m.Globals = append(m.Globals, plain.ID)

	if err := globalinit.Run(m, rtconfig.Default()); err != nil {
		t.Fatalf("globalinit.Run: %v", err)
	}

	if findFunc(m, "heapAllocateGlobals") != nil {
		t.Fatalf("no heap-typed globals means no heapAllocateGlobals should be synthesized")
	}
}

// fLocal (or any config where NeedHeapVars is false) makes the whole
// pass a no-op even with heap-typed globals present.
func TestNoOpWhenHeapVarsNotNeeded(t *testing.T) {
	m := ir.NewModule()
	heapGlobal(m, "counter")

	cfg := rtconfig.Default()
	cfg.FLocal = true

	if err := globalinit.Run(m, cfg); err != nil {
		t.Fatalf("globalinit.Run: %v", err)
	}
	if findFunc(m, "heapAllocateGlobals") != nil {
		t.Fatalf("single-locale run should not synthesize heapAllocateGlobals")
	}
}
