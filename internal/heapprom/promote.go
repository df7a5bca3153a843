package heapprom

import "parlower/internal/ir"

// Promote performs the rewrite for every symbol in
// cl.VarSet: redirect its storage onto a heap cell, rewrite every
// definition and use accordingly, and schedule a free at the
// innermost block that dominates every access (see accessBlocks) —
// falling back to the declaring function's entry block when a
// variable has no recorded defs/uses to pin a narrower scope to.
func Promote(m *ir.Module, cl *Closure) {
	b := ir.NewBuilder(m)
	o := buildOwners(m)

	for _, v := range sortedSymbols(cl.VarSet) {
		s := m.Symbols.Get(v)
		if s == nil || s.IsExtern || s.DebugOnly {
			continue
		}
		promoteOne(m, b, o, v, cl.Escaping[v])
	}
}

func promoteOne(m *ir.Module, b *ir.Builder, o *owners, v ir.SymbolID, escaping bool) {
	if fn, isFormal := isFormalOwner(m, v); isFormal {
		promoteFormal(m, b, fn, v)
		return
	}
	fn, ok := o.fn[v]
	if !ok {
		promoteGlobal(m, b, v)
		return
	}
	promoteLocal(m, b, fn, v, false, escaping)
}

// promoteFormal introduces a local temp that shadows the formal inside
// the function body, seeds it from the formal's value, and promotes
// the temp in place of the formal (the formal itself keeps its slot in
// Func.Formals — only how the body refers to it changes).
func promoteFormal(m *ir.Module, b *ir.Builder, fn ir.FuncID, formal ir.SymbolID) {
	f := m.Func(fn)
	s := m.Symbols.Get(formal)

	t := m.Symbols.New(ir.SymVar, s.Name+"_local", s.Type)
	init := b.SymExpr(formal)
	decl := b.DefExpr(t.ID, init)
	m.InsertStmtBefore(f.Body, 0, decl)

	rewriteSymRefs(m, f.Body, formal, t.ID, decl)
	promoteLocal(m, b, fn, t.ID, true, false)
}

// rewriteSymRefs retargets every SymExpr(from) reachable from body to
// to, except for the one nested inside skip (the seed DefExpr's own
// initializer, which must keep naming the original formal).
func rewriteSymRefs(m *ir.Module, body ir.BlockID, from, to ir.SymbolID, skip ir.NodeID) {
	m.Walk(body, func(n *ir.Node) bool {
		if n.ID == skip {
			return false
		}
		if n.Kind == ir.NodeSymExpr && n.Sym == from {
			n.Sym = to
		}
		return true
	})
}

// promoteLocal rewrites v's declaration, every remaining definition,
// and every use, then retypes v to heap(T). freshTemp marks a
// synthesized formal-shadow temp, whose declaration site was just
// inserted and has no prior def/use map entry to worry about beyond
// what rewriteSymRefs already retargeted. escaping skips the free: v
// was reached by chasing a ref capture back to its storage, so a task
// may still be holding a pointer to it after this function returns.
func promoteLocal(m *ir.Module, b *ir.Builder, fn ir.FuncID, v ir.SymbolID, freshTemp, escaping bool) {
	f := m.Func(fn)
	s := m.Symbols.Get(v)
	valueType := s.Type
	heapT, _ := m.Types.HeapCellFor(valueType, s.Name)
	valueField := m.FieldSymbol(heapT.ID, "value")

	du := ir.BuildDefUse(m, f.Body)

	declNode, declBlock, declIdx := findDecl(m, f.Body, v)
	if declNode != nil {
		heapAlloc := b.RuntimeCall(ir.PrimHereAlloc, b.SymExpr(m.TypeSymbol(heapT.ID)))
		oldInit := declNode.Init
		declNode.Init = heapAlloc
		m.SetParentNode(heapAlloc, declNode.ID)
		if oldInit.IsValid() {
			setStmt := b.SetMember(b.SymExpr(v), valueField, oldInit)
			m.InsertStmtBefore(declBlock, declIdx+1, setStmt)
		}
	}

	freeBlock := accessBlocks(m, declBlock, du.Defs[v], du.Uses[v])

	for _, defNode := range du.Defs[v] {
		if declNode != nil && defNode == declNode.ID {
			continue
		}
		rewriteMoveDef(m, b, defNode, v, valueField)
	}

	for _, use := range du.Uses[v] {
		rewriteUse(m, b, use, v, valueField)
	}

	s.Type = heapT.ID
	if !escaping {
		if !freeBlock.IsValid() {
			freeBlock = f.Body
		}
		scheduleFree(m, b, freeBlock, v)
	}
	_ = freshTemp
}

// accessBlocks returns the innermost block that lexically encloses
// decl and every def/use site, so a free lands where every arm of a
// branch that touches v has already run — not unconditionally at the
// end of the owning function, which could place the free in a sibling
// branch that never executed any of them.
func accessBlocks(m *ir.Module, decl ir.BlockID, defs, uses []ir.NodeID) ir.BlockID {
	blocks := []ir.BlockID{decl}
	for _, n := range defs {
		if blk, _ := findEnclosingStmt(m, n); blk.IsValid() {
			blocks = append(blocks, blk)
		}
	}
	for _, n := range uses {
		if blk, _ := findEnclosingStmt(m, n); blk.IsValid() {
			blocks = append(blocks, blk)
		}
	}
	return m.InnermostCommonBlock(blocks)
}

// findDecl returns the DefExpr node declaring v within body, and its
// position, or nil if v has no explicit declaration in this function
// (a global, whose declaration lives at module scope — see
// promoteGlobal).
func findDecl(m *ir.Module, body ir.BlockID, v ir.SymbolID) (*ir.Node, ir.BlockID, int) {
	var found *ir.Node
	var foundBlock ir.BlockID
	m.WalkBlocks(body, func(blk ir.BlockID) {
		if found != nil {
			return
		}
		b := m.Block(blk)
		for _, stmtID := range b.Stmts {
			n := m.Node(stmtID)
			if n != nil && n.Kind == ir.NodeDefExpr && n.Sym == v {
				found = n
				foundBlock = blk
				return
			}
		}
	})
	if found == nil {
		return nil, ir.NoBlockID, -1
	}
	return found, foundBlock, m.IndexOfStmt(foundBlock, found.ID)
}

// rewriteMoveDef turns `move v, x` into `set_member(v, value, x)` in place.
func rewriteMoveDef(m *ir.Module, b *ir.Builder, defNode ir.NodeID, v, valueField ir.SymbolID) {
	n := m.Node(defNode)
	if n == nil || n.Kind != ir.NodeCallExpr || n.Primitive != ir.PrimMove || len(n.Args) != 2 {
		return
	}
	newStmt := b.SetMember(b.SymExpr(v), valueField, n.Args[1])
	block, stmt := findEnclosingStmt(m, defNode)
	if !block.IsValid() {
		return
	}
	idx := m.IndexOfStmt(block, stmt)
	if idx >= 0 {
		m.ReplaceStmt(block, idx, newStmt)
	}
}

func rewriteUse(m *ir.Module, b *ir.Builder, use ir.NodeID, v, valueField ir.SymbolID) {
	n := m.Node(use)
	if n == nil || !n.ParentNode.IsValid() {
		return
	}
	parent := m.Node(n.ParentNode)
	if parent == nil || parent.Kind != ir.NodeCallExpr {
		return
	}

	switch {
	case parent.Primitive == ir.PrimAutoDestroy:
		removeEnclosingStmt(m, parent.ID)

	case parent.Primitive == ir.PrimAddrOf:
		replaceNodeRef(m, parent.ID, b.SymExpr(v))

	case isMemberAccess(parent.Primitive) && len(parent.Args) > 0 && parent.Args[0] == use:
		tmp := m.Symbols.New(ir.SymVar, m.Symbols.Get(v).Name+"_ref", m.Symbols.Get(v).Type)
		block, stmt := findEnclosingStmt(m, use)
		if !block.IsValid() {
			return
		}
		idx := m.IndexOfStmt(block, stmt)
		decl := b.DefExpr(tmp.ID, b.GetMember(b.SymExpr(v), valueField))
		m.InsertStmtBefore(block, idx, decl)
		parent.Args[0] = b.SymExpr(tmp.ID)
		m.SetParentNode(parent.Args[0], parent.ID)

	default:
		tmp := m.Symbols.New(ir.SymVar, m.Symbols.Get(v).Name+"_val", m.Symbols.Get(v).Type)
		block, stmt := findEnclosingStmt(m, use)
		if !block.IsValid() {
			return
		}
		idx := m.IndexOfStmt(block, stmt)
		decl := b.DefExpr(tmp.ID, b.GetMemberValue(b.SymExpr(v), valueField))
		m.InsertStmtBefore(block, idx, decl)
		replaceNodeRef(m, use, b.SymExpr(tmp.ID))
	}
}

func removeEnclosingStmt(m *ir.Module, node ir.NodeID) {
	block, stmt := findEnclosingStmt(m, node)
	if !block.IsValid() {
		return
	}
	if idx := m.IndexOfStmt(block, stmt); idx >= 0 {
		m.RemoveStmtAt(block, idx)
	}
}

func findEnclosingStmt(m *ir.Module, node ir.NodeID) (ir.BlockID, ir.NodeID) {
	n := m.Node(node)
	for n != nil {
		if n.ParentBlock.IsValid() {
			return n.ParentBlock, n.ID
		}
		n = m.Node(n.ParentNode)
	}
	return ir.NoBlockID, ir.NoNodeID
}

// replaceNodeRef retargets old's parent (whatever shape it is: a
// statement slot, a call argument, a DefExpr initializer, or a
// conditional's test) to point at newNode instead.
func replaceNodeRef(m *ir.Module, old, newNode ir.NodeID) {
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

func scheduleFree(m *ir.Module, b *ir.Builder, body ir.BlockID, v ir.SymbolID) {
	free := b.RuntimeCall(ir.PrimHereFree, b.SymExpr(v))
	m.AppendStmt(body, free)
}

// promoteGlobal retypes a module-level variable to heap(T) instead of
// inserting a here_alloc at a declaration site — globals have none in
// this IR; their storage is the module itself. Allocation, the
// unique-index registration call, and the final broadcast are all
// emitted together afterward, by globalinit, since the index threading
// through the registration call has to be assigned across every
// promoted global at once rather than one at a time here.
func promoteGlobal(m *ir.Module, b *ir.Builder, v ir.SymbolID) {
	s := m.Symbols.Get(v)
	heapT, _ := m.Types.HeapCellFor(s.Type, s.Name)
	s.Type = heapT.ID
}
