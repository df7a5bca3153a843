// Package globalinit synthesizes heapAllocateGlobals: the function
// that heap-allocates every promoted module-level global, registers
// each with the runtime under a unique index, and publishes the
// addresses to every locale with a single broadcast call.
package globalinit

import (
	"sort"
	"strconv"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// Run is a no-op when heap vars aren't needed at all (single-locale,
// ugni, or gasnet "everything" segment — see rtconfig.NeedHeapVars)
// or when heap promotion left no heap-typed globals to initialize.
// Otherwise it builds heapAllocateGlobals, appends one here_alloc +
// heap_register_global_var pair per global, a final
// heap_broadcast_global_vars(count) call, and wires a call to the new
// function into TopLevel so it runs as part of module init.
func Run(m *ir.Module, cfg rtconfig.Config) error {
	if !cfg.NeedHeapVars() {
		return nil
	}
	globals := heapPromotedGlobals(m)
	if len(globals) == 0 {
		return nil
	}

	fn := ir.NewFunc("heapAllocateGlobals")
	fnID := m.AddFunc(fn)
	fn.Body = m.NewBlock(fnID)
	b := ir.NewBuilder(m)

	for idx, g := range globals {
		allocateAndRegister(m, b, fn.Body, g, idx)
	}

	count := m.Symbols.New(ir.SymVar, strconv.Itoa(len(globals)), m.IntType())
	count.IsConst = true
	m.AppendStmt(fn.Body, b.RuntimeCall(ir.PrimHeapBroadcastGlobalVars, b.SymExpr(count.ID)))

	m.AppendStmt(m.TopLevel, b.Call(fnID))
	m.InvalidateCalledBy()
	return nil
}

// allocateAndRegister emits, for one promoted global g at position idx
// in declaration order: a here_alloc sized for g's now-heap(T) type,
// stored back into g itself (heapAllocateGlobals runs once, before any
// other code observes g, so there is no prior value to preserve), and
// a heap_register_global_var call carrying idx as g's runtime slot.
func allocateAndRegister(m *ir.Module, b *ir.Builder, body ir.BlockID, g ir.SymbolID, idx int) {
	alloc := b.RuntimeCall(ir.PrimHereAlloc, b.SymExpr(g))
	store := b.Move(b.SymExpr(g), alloc)
	m.AppendStmt(body, store)

	indexSym := m.Symbols.New(ir.SymVar, strconv.Itoa(idx), m.IntType())
	indexSym.IsConst = true
	reg := b.RuntimeCall(ir.PrimHeapRegisterGlobalVar, b.SymExpr(indexSym.ID), b.SymExpr(g))
	m.AppendStmt(body, reg)
}

// heapPromotedGlobals returns every module-level global whose type
// heap promotion already retyped to heap(T), in declaration order —
// the stable order the registration index is assigned from.
func heapPromotedGlobals(m *ir.Module) []ir.SymbolID {
	out := make([]ir.SymbolID, 0, len(m.Globals))
	for _, g := range m.Globals {
		if m.IsHeapType(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
