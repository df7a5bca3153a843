package ir

// CloneBlock deep-clones a block and everything reachable from it (nested
// blocks, call arguments, conditionals) into fresh nodes/blocks owned by
// newOwner. Symbol references inside the clone still name the same
// symbols as the original — cloning duplicates control structure, not
// the variables it operates on, following the usual cloneBlock /
// cloneExpr pattern (shallow struct copy, recursive descent on the
// pointer-shaped fields only).
func (m *Module) CloneBlock(src BlockID, newOwner FuncID) BlockID {
	b := m.Block(src)
	if b == nil {
		return NoBlockID
	}
	dst := m.NewBlock(newOwner)
	dstBlock := m.Block(dst)
	dstBlock.Flags = b.Flags
	dstBlock.Stmts = make([]NodeID, len(b.Stmts))
	for i, stmt := range b.Stmts {
		cloned := m.CloneNode(stmt, newOwner)
		dstBlock.Stmts[i] = cloned
		m.Node(cloned).ParentBlock = dst
	}
	return dst
}

// CloneNode deep-clones a single node (and, recursively, its children)
// into a fresh node owned (transitively) by newOwner.
func (m *Module) CloneNode(src NodeID, newOwner FuncID) NodeID {
	n := m.Node(src)
	if n == nil {
		return NoNodeID
	}
	out := m.NewNode(n.Kind)
	out.Sym = n.Sym
	out.Primitive = n.Primitive
	out.Callee = n.Callee

	switch n.Kind {
	case NodeDefExpr:
		if n.Init.IsValid() {
			out.Init = m.CloneNode(n.Init, newOwner)
			m.SetParentNode(out.Init, out.ID)
		} else {
			out.Init = NoNodeID
		}
	case NodeCallExpr:
		if len(n.Args) > 0 {
			out.Args = make([]NodeID, len(n.Args))
			for i, a := range n.Args {
				out.Args[i] = m.CloneNode(a, newOwner)
				m.SetParentNode(out.Args[i], out.ID)
			}
		}
	case NodeCondStmt:
		out.CondExpr = m.CloneNode(n.CondExpr, newOwner)
		m.SetParentNode(out.CondExpr, out.ID)
		out.Then = m.CloneBlock(n.Then, newOwner)
		out.Else = m.CloneBlock(n.Else, newOwner)
	case NodeNestedBlock:
		out.Body = m.CloneBlock(n.Body, newOwner)
	}
	return out.ID
}
