package ir

// Builder constructs nodes against a single Module. It carries no state
// of its own; it exists so call sites read as `b.Move(dst, src)` instead
// of repeating `m.NewNode(...)` boilerplate at every sub-pass.
type Builder struct {
	M *Module
}

func NewBuilder(m *Module) *Builder { return &Builder{M: m} }

// SymExpr builds a bare reference to an existing symbol.
func (b *Builder) SymExpr(sym SymbolID) NodeID {
	n := b.M.NewNode(NodeSymExpr)
	n.Sym = sym
	return n.ID
}

// DefExpr declares a new symbol, with an optional initializer
// (NoNodeID for none).
func (b *Builder) DefExpr(sym SymbolID, init NodeID) NodeID {
	n := b.M.NewNode(NodeDefExpr)
	n.Sym = sym
	n.Init = init
	if init.IsValid() {
		b.M.SetParentNode(init, n.ID)
	}
	return n.ID
}

// Prim builds a primitive call node (move, addr_of, get_member, …).
func (b *Builder) Prim(prim Primitive, args ...NodeID) NodeID {
	n := b.M.NewNode(NodeCallExpr)
	n.Primitive = prim
	n.Callee = NoFuncID
	n.Args = args
	for _, a := range args {
		b.M.SetParentNode(a, n.ID)
	}
	return n.ID
}

// Move builds `move dst, src`.
func (b *Builder) Move(dst, src NodeID) NodeID {
	return b.Prim(PrimMove, dst, src)
}

// Call builds a resolved call to fn with the given actuals.
func (b *Builder) Call(fn FuncID, args ...NodeID) NodeID {
	n := b.M.NewNode(NodeCallExpr)
	n.Primitive = PrimNone
	n.Callee = fn
	n.Args = args
	for _, a := range args {
		b.M.SetParentNode(a, n.ID)
	}
	return n.ID
}

// GetMember builds `get_member(base, fieldSym)`, yielding a ref to the field.
func (b *Builder) GetMember(base NodeID, fieldSym SymbolID) NodeID {
	return b.Prim(PrimGetMember, base, b.SymExpr(fieldSym))
}

// GetMemberValue builds `get_member_value(base, fieldSym)`, yielding the
// field's value directly (no ref).
func (b *Builder) GetMemberValue(base NodeID, fieldSym SymbolID) NodeID {
	return b.Prim(PrimGetMemberValue, base, b.SymExpr(fieldSym))
}

// SetMember builds `set_member(base, fieldSym, value)`.
func (b *Builder) SetMember(base NodeID, fieldSym SymbolID, value NodeID) NodeID {
	return b.Prim(PrimSetMember, base, b.SymExpr(fieldSym), value)
}

// AddrOf builds `addr_of(x)`.
func (b *Builder) AddrOf(x NodeID) NodeID {
	return b.Prim(PrimAddrOf, x)
}

// Deref builds `deref(x)`, reading the value a ref points to.
func (b *Builder) Deref(x NodeID) NodeID {
	return b.Prim(PrimDeref, x)
}

// RuntimeCall builds a call to one of the fixed runtime ABI primitives.
func (b *Builder) RuntimeCall(prim Primitive, args ...NodeID) NodeID {
	return b.Prim(prim, args...)
}

// CondStmt builds an if/else statement node.
func (b *Builder) CondStmt(cond NodeID, then, els BlockID) NodeID {
	n := b.M.NewNode(NodeCondStmt)
	n.CondExpr = cond
	n.Then = then
	n.Else = els
	b.M.SetParentNode(cond, n.ID)
	return n.ID
}

// NestedBlock wraps an existing block as a statement node (used for
// `local { }` regions and other lexical nesting).
func (b *Builder) NestedBlock(body BlockID) NodeID {
	n := b.M.NewNode(NodeNestedBlock)
	n.Body = body
	return n.ID
}
