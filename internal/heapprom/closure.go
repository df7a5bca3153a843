// Package heapprom implements the heap-promotion engine: it
// computes which variables and references may be reached by an
// asynchronous task, relocates their storage onto the shared heap, and
// — under distributed execution — does the same for module-level
// globals so their addresses can be broadcast.
package heapprom

import (
	"sort"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// Closure is the result of the reference/variable closure algorithm:
// every symbol whose storage must outlive its declaring frame.
//
// Escaping marks the subset of VarSet reached by chasing a ref capture
// back to its base storage (the addr_of/get_member rules in
// closeLocal) — a variable a task genuinely reaches through a pointer.
// Per the heap-frees rule, these are left alive for the runtime to
// reclaim; only VarSet members seeded directly (a coforall index
// variable, never chased through a ref) get a free inserted.
type Closure struct {
	RefSet   map[ir.SymbolID]bool
	VarSet   map[ir.SymbolID]bool
	Escaping map[ir.SymbolID]bool
}

func newClosure() *Closure {
	return &Closure{
		RefSet:   make(map[ir.SymbolID]bool),
		VarSet:   make(map[ir.SymbolID]bool),
		Escaping: make(map[ir.SymbolID]bool),
	}
}

// owners maps every formal and local-variable symbol to the function
// that declares it, built once per run since neither the IR nor the
// symbol table carries that link directly.
type owners struct {
	fn map[ir.SymbolID]ir.FuncID
}

func buildOwners(m *ir.Module) *owners {
	o := &owners{fn: make(map[ir.SymbolID]ir.FuncID)}
	for fid, f := range m.Funcs {
		if f == nil {
			continue
		}
		for _, formal := range f.Formals {
			o.fn[formal] = fid
		}
		m.Walk(f.Body, func(n *ir.Node) bool {
			if n.Kind == ir.NodeDefExpr {
				o.fn[n.Sym] = fid
			}
			return true
		})
	}
	return o
}

// duCache memoizes the def/use map per function, since every member of
// the closure worklist that belongs to the same function would
// otherwise rebuild it.
type duCache struct {
	m     *ir.Module
	cache map[ir.FuncID]*ir.DefUse
}

func newDUCache(m *ir.Module) *duCache { return &duCache{m: m, cache: make(map[ir.FuncID]*ir.DefUse)} }

func (c *duCache) of(fn ir.FuncID) *ir.DefUse {
	if du, ok := c.cache[fn]; ok {
		return du
	}
	f := c.m.Func(fn)
	du := ir.BuildDefUse(c.m, f.Body)
	c.cache[fn] = du
	return du
}

// ComputeClosure runs the seed + worklist algorithm.
func ComputeClosure(m *ir.Module, cfg rtconfig.Config) *Closure {
	cl := newClosure()
	o := buildOwners(m)
	du := newDUCache(m)

	seedRefSet(m, cfg, cl)
	seedVarSet(m, cfg, cl)

	worklist := sortedSymbols(cl.RefSet)
	seen := make(map[ir.SymbolID]bool)
	for _, r := range worklist {
		seen[r] = true
	}
	for len(worklist) > 0 {
		r := worklist[0]
		worklist = worklist[1:]

		before := len(cl.RefSet) + len(cl.VarSet)
		closeOne(m, o, du, r, cl)
		after := len(cl.RefSet) + len(cl.VarSet)
		if after != before {
			for _, next := range sortedSymbols(cl.RefSet) {
				if !seen[next] {
					seen[next] = true
					worklist = append(worklist, next)
				}
			}
		}
	}
	return cl
}

func sortedSymbols(set map[ir.SymbolID]bool) []ir.SymbolID {
	out := make([]ir.SymbolID, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// seedRefSet seeds refSet with every ref-typed formal of a begin
// function, and of an "on" function when wide references are required
// (a plain local "on" never needs its formals heap-visible).
func seedRefSet(m *ir.Module, cfg rtconfig.Config, cl *Closure) {
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		isBegin := f.Flags.Has(ir.FuncFlagTask) && !f.Flags.Has(ir.FuncFlagOn)
		isRemoteOn := f.Flags.Has(ir.FuncFlagOn) && cfg.RequireWideReferences()
		if !isBegin && !isRemoteOn {
			continue
		}
		for _, formal := range f.Formals {
			if m.IsRefType(formal) {
				cl.RefSet[formal] = true
			}
		}
	}
}

// seedVarSet seeds varSet with coforall/cobegin index variables that
// are non-primitive or ref-returned, plus (under distributed
// execution) every non-private, non-extern module-level variable that
// isn't a replicable constant.
func seedVarSet(m *ir.Module, cfg rtconfig.Config, cl *Closure) {
	for _, f := range m.Funcs {
		if f == nil || !f.Flags.Has(ir.FuncFlagCobeginOrCoforall) {
			continue
		}
		for _, formal := range f.Formals {
			s := m.Symbols.Get(formal)
			if s == nil {
				continue
			}
			t := m.Types.Get(s.Type)
			nonPrimitive := t != nil && !t.IsPrimitive()
			returnedByRef := s.Intent == ir.IntentRef || s.Intent == ir.IntentConstRef
			if nonPrimitive || returnedByRef {
				cl.VarSet[formal] = true
			}
		}
	}

	if !cfg.RequireWideReferences() {
		return
	}
	for _, g := range m.Globals {
		s := m.Symbols.Get(g)
		if s == nil || s.IsExtern || s.IsPrivate {
			continue
		}
		if m.IsReplicableConstant(g) {
			continue
		}
		cl.VarSet[g] = true
	}
}

// closeOne processes one popped refSet member.
func closeOne(m *ir.Module, o *owners, du *duCache, r ir.SymbolID, cl *Closure) {
	fn, isFormal := isFormalOwner(m, r)
	if isFormal {
		closeFormal(m, fn, r, cl)
		return
	}
	owningFn, ok := o.fn[r]
	if !ok {
		return // upstream symbol with no local definitions; nothing to chase.
	}
	closeLocal(m, du.of(owningFn), r, cl)
}

func isFormalOwner(m *ir.Module, sym ir.SymbolID) (ir.FuncID, bool) {
	for fid, f := range m.Funcs {
		if f != nil && f.FormalIndex(sym) >= 0 {
			return fid, true
		}
	}
	return ir.NoFuncID, false
}

// closeFormal: for every call site of r's function, the actual in r's
// slot must itself be a ref; add it to refSet.
func closeFormal(m *ir.Module, fn ir.FuncID, r ir.SymbolID, cl *Closure) {
	f := m.Func(fn)
	idx := f.FormalIndex(r)
	for _, cs := range m.CalledBy(fn) {
		call := m.Node(cs.Node)
		if call == nil || idx >= len(call.Args) {
			continue
		}
		actual := m.Node(call.Args[idx])
		if actual == nil || actual.Kind != ir.NodeSymExpr {
			continue
		}
		if m.IsRefType(actual.Sym) {
			cl.RefSet[actual.Sym] = true
		}
	}
}

// closeLocal inspects every definition of r and grows refSet/varSet
// per the RHS-shape rules. Any RHS pattern not recognized here is
// assumed to already name heap-allocated storage (a possibly-unsound
// assumption; nothing is logged when it is made).
func closeLocal(m *ir.Module, du *ir.DefUse, r ir.SymbolID, cl *Closure) {
	for _, defNode := range du.Defs[r] {
		rhs := m.RHSOf(defNode)
		n := m.Node(rhs)
		if n == nil {
			continue
		}
		switch {
		case n.Kind == ir.NodeCallExpr && n.Primitive == ir.PrimAddrOf && len(n.Args) == 1:
			if v := m.Node(n.Args[0]); v != nil && v.Kind == ir.NodeSymExpr {
				cl.VarSet[v.Sym] = true
				cl.Escaping[v.Sym] = true
			}
		case n.Kind == ir.NodeCallExpr && isMemberAccess(n.Primitive) && len(n.Args) >= 2:
			base := m.Node(n.Args[0])
			field := m.Node(n.Args[1])
			if base == nil || base.Kind != ir.NodeSymExpr || field == nil || field.Kind != ir.NodeSymExpr {
				continue
			}
			fieldType := m.SymType(field.Sym)
			if m.Types.Get(fieldType) != nil && m.Types.Get(fieldType).IsRef() {
				cl.RefSet[base.Sym] = true
			} else {
				cl.VarSet[base.Sym] = true
				cl.Escaping[base.Sym] = true
			}
		case n.Kind == ir.NodeSymExpr:
			if m.IsRefType(n.Sym) {
				cl.RefSet[n.Sym] = true
			}
		}
	}
}

func isMemberAccess(p ir.Primitive) bool {
	switch p {
	case ir.PrimGetMember, ir.PrimGetMemberValue, ir.PrimGetSvecMember, ir.PrimSetSvecMember:
		return true
	default:
		return false
	}
}
