// Package endcount implements the end-count threader: it makes
// the completion counter that structured-concurrency waits (cobegin,
// coforall, the implicit join after a local begin) poll reachable
// wherever get_end_count/set_end_count appear, by threading it through
// the call graph as an extra formal wherever a function doesn't
// already have one of its own.
package endcount

import (
	"sort"

	"parlower/internal/ice"
	"parlower/internal/ir"
)

const passName = "endcount"

// Run sweeps every function for get_end_count/set_end_count, assigns
// each function touching one an end-count symbol (introduced at main's
// head, or as a new formal everywhere else), rewrites the primitives,
// then propagates the requirement backward through every call site
// until every transitive caller carries one too.
func Run(m *ir.Module, mainFn ir.FuncID) error {
	t := &threader{m: m, b: ir.NewBuilder(m), endCount: make(map[ir.FuncID]ir.SymbolID), mainFn: mainFn}
	if err := t.sweep(); err != nil {
		return err
	}
	t.propagate()
	m.InvalidateCalledBy()
	return nil
}

type threader struct {
	m        *ir.Module
	b        *ir.Builder
	endCount map[ir.FuncID]ir.SymbolID
	mainFn   ir.FuncID
	queue    []ir.FuncID
	queued   map[ir.FuncID]bool
}

// endCountTypeName names the primitive type synthesized for the first
// end-count symbol the threader introduces; every later end-count
// symbol reuses that same type, so a caller's end-count and its
// callee's always have one type.
var endCountTypeName = "end_count"

func (t *threader) ensureEndCount(fn ir.FuncID) ir.SymbolID {
	if sym, ok := t.endCount[fn]; ok {
		return sym
	}
	f := t.m.Func(fn)
	ecType := ir.NoTypeID
	for _, existing := range t.endCount {
		ecType = t.m.SymType(existing)
		break
	}
	if ecType == ir.NoTypeID {
		ecType = t.m.Types.New(ir.TypePrimitive, endCountTypeName).ID
	}
	var sym *ir.Symbol
	if fn == t.mainFn {
		sym = t.m.Symbols.New(ir.SymVar, "_end_count", ecType)
		decl := t.b.DefExpr(sym.ID, ir.NoNodeID)
		t.m.InsertStmtBefore(f.Body, 0, decl)
	} else {
		sym = t.m.Symbols.New(ir.SymFormal, "_end_count", ecType)
		sym.Intent = ir.IntentIn
		f.Formals = append(f.Formals, sym.ID)
	}
	t.endCount[fn] = sym.ID
	t.enqueue(fn)
	return sym.ID
}

func (t *threader) enqueue(fn ir.FuncID) {
	if t.queued == nil {
		t.queued = make(map[ir.FuncID]bool)
	}
	if t.queued[fn] {
		return
	}
	t.queued[fn] = true
	t.queue = append(t.queue, fn)
}

// sweep visits every function's body once, in a deterministic order,
// rewriting get_end_count/set_end_count and recording which functions
// need threading.
func (t *threader) sweep() error {
	for _, fid := range sortedFuncIDs(t.m) {
		f := t.m.Func(fid)
		if f == nil || !f.Body.IsValid() {
			continue
		}
		if err := t.sweepBlock(fid, f.Body); err != nil {
			return err
		}
	}
	return nil
}

func (t *threader) sweepBlock(fn ir.FuncID, body ir.BlockID) error {
	var rewriteErr error
	t.m.Walk(body, func(n *ir.Node) bool {
		if rewriteErr != nil {
			return false
		}
		if n.Kind != ir.NodeCallExpr {
			return true
		}
		switch n.Primitive {
		case ir.PrimGetEndCount:
			sym := t.ensureEndCount(fn)
			replaceNode(t.m, n.ID, t.b.SymExpr(sym))
		case ir.PrimSetEndCount:
			if len(n.Args) != 1 {
				rewriteErr = ice.New(passName, fn, "set_end_count requires exactly one argument")
				return false
			}
			sym := t.ensureEndCount(fn)
			replaceNode(t.m, n.ID, t.b.Move(t.b.SymExpr(sym), n.Args[0]))
		}
		return true
	})
	return rewriteErr
}

// propagate drains the work queue: every function known to carry an
// end-count must have every one of its callers carry one too (of the
// same symbol's type), with the caller's end-count appended to every
// call site's actuals. Draining continues until the queue is empty,
// i.e. until every transitive caller has been visited, the
// termination condition.
func (t *threader) propagate() {
	for len(t.queue) > 0 {
		fn := t.queue[0]
		t.queue = t.queue[1:]

		for _, cs := range sortedCallSites(t.m, fn) {
			callerEC := t.ensureEndCount(cs.Caller)
			call := t.m.Node(cs.Node)
			if call == nil {
				continue
			}
			call.Args = append(call.Args, t.b.SymExpr(callerEC))
			t.m.SetParentNode(call.Args[len(call.Args)-1], call.ID)
		}
	}
}

// replaceNode retargets old's parent (a statement slot, a call
// argument, a DefExpr initializer, or a conditional's test) to newNode.
func replaceNode(m *ir.Module, old, newNode ir.NodeID) {
	n := m.Node(old)
	if n == nil {
		return
	}
	if n.ParentBlock.IsValid() {
		if idx := m.IndexOfStmt(n.ParentBlock, old); idx >= 0 {
			m.ReplaceStmt(n.ParentBlock, idx, newNode)
		}
		return
	}
	if !n.ParentNode.IsValid() {
		return
	}
	p := m.Node(n.ParentNode)
	if p == nil {
		return
	}
	switch p.Kind {
	case ir.NodeCallExpr:
		for i, a := range p.Args {
			if a == old {
				p.Args[i] = newNode
				m.SetParentNode(newNode, p.ID)
				return
			}
		}
	case ir.NodeDefExpr:
		if p.Init == old {
			p.Init = newNode
			m.SetParentNode(newNode, p.ID)
		}
	case ir.NodeCondStmt:
		if p.CondExpr == old {
			p.CondExpr = newNode
			m.SetParentNode(newNode, p.ID)
		}
	}
}

func sortedFuncIDs(m *ir.Module) []ir.FuncID {
	out := make([]ir.FuncID, 0, len(m.Funcs))
	for fid, f := range m.Funcs {
		if f != nil {
			out = append(out, fid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedCallSites(m *ir.Module, fn ir.FuncID) []ir.CallSite {
	css := append([]ir.CallSite(nil), m.CalledBy(fn)...)
	sort.Slice(css, func(i, j int) bool { return css[i].Node < css[j].Node })
	return css
}
