package ir

// CallSite identifies one call to a function: the caller and the
// NodeCallExpr node making the call. The calledBy index
// maps a callee FuncID to every CallSite that targets it.
type CallSite struct {
	Caller FuncID
	Node   NodeID
}

// Module is the whole-program IR shared by every sub-pass: symbol and
// type tables, a global node/block arena, the function table, the
// module-level (global) variable list, and the two bijective widening
// maps named above.
type Module struct {
	Symbols *SymbolTable
	Types   *TypeTable

	Funcs     map[FuncID]*Func
	FuncBySym map[SymbolID]FuncID

	Globals []SymbolID // module-level variables, in declaration order.

	// TopLevel is the insertion point for synthesized types and wrapper
	// functions, and the block that runs as module init.
	TopLevel BlockID

	WideClassMap map[TypeID]TypeID
	WideRefMap   map[TypeID]TypeID
	localeIDType TypeID
	intType      TypeID

	nodes  map[NodeID]*Node
	blocks map[BlockID]*Block

	nextNode  NodeID
	nextBlock BlockID
	nextFunc  FuncID

	calledBy      map[FuncID][]CallSite
	calledByValid bool

	typeSyms  map[TypeID]SymbolID
	fieldSyms map[TypeID]map[string]SymbolID
}

// NewModule returns an empty module with its arenas initialized.
func NewModule() *Module {
	m := &Module{
		Symbols:      NewSymbolTable(),
		Types:        NewTypeTable(),
		Funcs:        make(map[FuncID]*Func),
		FuncBySym:    make(map[SymbolID]FuncID),
		WideClassMap: make(map[TypeID]TypeID),
		WideRefMap:   make(map[TypeID]TypeID),
		nodes:        make(map[NodeID]*Node),
		blocks:       make(map[BlockID]*Block),
		typeSyms:     make(map[TypeID]SymbolID),
		fieldSyms:    make(map[TypeID]map[string]SymbolID),
		localeIDType: NoTypeID,
		intType:      NoTypeID,
	}
	m.TopLevel = m.NewBlock(NoFuncID)
	return m
}

// NewBlock allocates a fresh, empty block owned by fn (NoFuncID for the
// module's top-level block).
func (m *Module) NewBlock(fn FuncID) BlockID {
	id := BlockID(nextID32(int(m.nextBlock)))
	m.nextBlock++
	m.blocks[id] = &Block{ID: id, Owner: fn, Parent: NoBlockID}
	return id
}

// Block looks up a block by ID.
func (m *Module) Block(id BlockID) *Block {
	if m == nil {
		return nil
	}
	return m.blocks[id]
}

// NewNode allocates a fresh node of the given kind. Callers fill in the
// kind-specific fields and attach it to a block or a parent node.
func (m *Module) NewNode(kind NodeKind) *Node {
	id := NodeID(nextID32(int(m.nextNode)))
	m.nextNode++
	n := &Node{ID: id, ParentBlock: NoBlockID, ParentNode: NoNodeID}
	n.Kind = kind
	n.Callee = NoFuncID
	n.Init = NoNodeID
	n.CondExpr = NoNodeID
	n.Then = NoBlockID
	n.Else = NoBlockID
	n.Body = NoBlockID
	m.nodes[id] = n
	return n
}

// Node looks up a node by ID.
func (m *Module) Node(id NodeID) *Node {
	if m == nil {
		return nil
	}
	return m.nodes[id]
}

// SetParentNode marks child as nested inside parent (a call argument, a
// DefExpr initializer, a conditional's test), clearing any stale
// top-level ParentBlock.
func (m *Module) SetParentNode(child, parent NodeID) {
	n := m.Node(child)
	if n == nil {
		return
	}
	n.ParentNode = parent
	n.ParentBlock = NoBlockID
}

// AppendStmt appends a top-level statement node to a block, stamping its
// ParentBlock and, if it is a CondStmt/NestedBlock, linking its child
// blocks back to block as their lexical parent.
func (m *Module) AppendStmt(block BlockID, node NodeID) {
	b := m.Block(block)
	n := m.Node(node)
	if b == nil || n == nil {
		return
	}
	n.ParentBlock = block
	n.ParentNode = NoNodeID
	b.Stmts = append(b.Stmts, node)
	m.linkChildBlocks(block, n)
}

// InsertStmtBefore inserts node immediately before the statement at
// position idx in block (idx == len(Stmts) appends at the end).
func (m *Module) InsertStmtBefore(block BlockID, idx int, node NodeID) {
	b := m.Block(block)
	n := m.Node(node)
	if b == nil || n == nil {
		return
	}
	n.ParentBlock = block
	n.ParentNode = NoNodeID
	if idx < 0 {
		idx = 0
	}
	if idx > len(b.Stmts) {
		idx = len(b.Stmts)
	}
	b.Stmts = append(b.Stmts, NoNodeID)
	copy(b.Stmts[idx+1:], b.Stmts[idx:])
	b.Stmts[idx] = node
	m.linkChildBlocks(block, n)
}

// linkChildBlocks sets Parent on a CondStmt's Then/Else blocks or a
// NestedBlock's Body, so the block tree can answer "what block
// lexically encloses this one" (used to find the innermost block
// dominating a set of use sites, e.g. where heap promotion places a
// free).
func (m *Module) linkChildBlocks(parent BlockID, n *Node) {
	switch n.Kind {
	case NodeCondStmt:
		if then := m.Block(n.Then); then != nil {
			then.Parent = parent
		}
		if els := m.Block(n.Else); els != nil {
			els.Parent = parent
		}
	case NodeNestedBlock:
		if body := m.Block(n.Body); body != nil {
			body.Parent = parent
		}
	}
}

// ReplaceStmt replaces the statement at position idx in block with
// replacement, the tree's "replace" primitive.
func (m *Module) ReplaceStmt(block BlockID, idx int, replacement NodeID) {
	b := m.Block(block)
	if b == nil || idx < 0 || idx >= len(b.Stmts) {
		return
	}
	b.Stmts[idx] = replacement
	if n := m.Node(replacement); n != nil {
		n.ParentBlock = block
		n.ParentNode = NoNodeID
	}
}

// RemoveStmtAt removes the statement at position idx in block, the
// lifecycle's "remove" primitive.
func (m *Module) RemoveStmtAt(block BlockID, idx int) {
	b := m.Block(block)
	if b == nil || idx < 0 || idx >= len(b.Stmts) {
		return
	}
	b.Stmts = append(b.Stmts[:idx], b.Stmts[idx+1:]...)
}

// IndexOfStmt returns the position of node within block's statement
// list, or -1 if it is not a direct statement of block.
func (m *Module) IndexOfStmt(block BlockID, node NodeID) int {
	b := m.Block(block)
	if b == nil {
		return -1
	}
	for i, s := range b.Stmts {
		if s == node {
			return i
		}
	}
	return -1
}

// TypeSymbol returns the SymType symbol naming t, a stable handle used
// wherever a runtime ABI call takes a type argument (here_alloc,
// get_priv_class). Created lazily and cached, one per type.
func (m *Module) TypeSymbol(t TypeID) SymbolID {
	if sym, ok := m.typeSyms[t]; ok {
		return sym
	}
	ty := m.Types.Get(t)
	name := "type"
	if ty != nil {
		name = ty.Name
	}
	sym := m.Symbols.New(SymType, name, t)
	m.typeSyms[t] = sym.ID
	return sym.ID
}

// FieldSymbol returns a stable symbol naming the field called fieldName
// on type t, creating and caching one on first request. get_member /
// set_member nodes reference a field through this symbol rather than by
// name, matching how the rest of the IR names things.
func (m *Module) FieldSymbol(t TypeID, fieldName string) SymbolID {
	byName, ok := m.fieldSyms[t]
	if !ok {
		byName = make(map[string]SymbolID)
		m.fieldSyms[t] = byName
	}
	if sym, ok := byName[fieldName]; ok {
		return sym
	}
	fieldType := NoTypeID
	if ty := m.Types.Get(t); ty != nil {
		for _, f := range ty.Fields {
			if f.Name == fieldName {
				fieldType = f.Type
				break
			}
		}
	}
	sym := m.Symbols.New(SymVar, fieldName, fieldType)
	byName[fieldName] = sym.ID
	return sym.ID
}

// AddFunc registers a function in the module, assigning it a fresh ID if
// f.ID is NoFuncID.
func (m *Module) AddFunc(f *Func) FuncID {
	if f.ID == NoFuncID {
		f.ID = FuncID(nextID32(int(m.nextFunc)))
	}
	if int32(f.ID) >= int32(m.nextFunc) {
		m.nextFunc = f.ID + 1
	}
	m.Funcs[f.ID] = f
	if f.Sym.IsValid() {
		m.FuncBySym[f.Sym] = f.ID
	}
	m.calledByValid = false
	return f.ID
}

// Func looks up a function by ID.
func (m *Module) Func(id FuncID) *Func {
	if m == nil {
		return nil
	}
	return m.Funcs[id]
}

// InvalidateCalledBy marks the calledBy index stale; the next call to
// CalledBy rebuilds it. Any pass that adds or removes calls must call
// this before a later pass relies on CalledBy again.
func (m *Module) InvalidateCalledBy() { m.calledByValid = false }

// CalledBy returns every call site targeting fn, rebuilding the index
// first if it has been invalidated.
func (m *Module) CalledBy(fn FuncID) []CallSite {
	m.ensureCalledBy()
	return m.calledBy[fn]
}

func (m *Module) ensureCalledBy() {
	if m.calledByValid {
		return
	}
	m.calledBy = make(map[FuncID][]CallSite)
	for fid, f := range m.Funcs {
		if f == nil {
			continue
		}
		m.walkBlockCalls(fid, f.Body)
	}
	m.calledByValid = true
}

func (m *Module) walkBlockCalls(caller FuncID, blockID BlockID) {
	b := m.Block(blockID)
	if b == nil {
		return
	}
	for _, stmtID := range b.Stmts {
		m.walkNodeCalls(caller, stmtID)
	}
}

func (m *Module) walkNodeCalls(caller FuncID, nodeID NodeID) {
	n := m.Node(nodeID)
	if n == nil {
		return
	}
	switch n.Kind {
	case NodeCallExpr:
		if n.Callee.IsValid() {
			m.calledBy[n.Callee] = append(m.calledBy[n.Callee], CallSite{Caller: caller, Node: nodeID})
		}
		for _, a := range n.Args {
			m.walkNodeCalls(caller, a)
		}
	case NodeDefExpr:
		if n.Init.IsValid() {
			m.walkNodeCalls(caller, n.Init)
		}
	case NodeCondStmt:
		m.walkNodeCalls(caller, n.CondExpr)
		m.walkBlockCalls(caller, n.Then)
		m.walkBlockCalls(caller, n.Else)
	case NodeNestedBlock:
		m.walkBlockCalls(caller, n.Body)
	}
}
