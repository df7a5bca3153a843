package ir

import "sort"

// Snapshot is a flat, fully-exported view of a Module's arenas and
// counters, suitable for serialization by a collaborator that only
// sees exported fields — the conversion this package owns so no
// external package has to reach into Module's private maps. Export and
// Restore are inverses: Restore(m.Export()) reproduces every ID a pass
// already holds, since every counter travels alongside its arena.
type Snapshot struct {
	Symbols    []*Symbol
	NextSymbol SymbolID

	Types     []*Type
	NextType  TypeID
	HeapCache map[TypeID]TypeID

	Funcs     []*Func
	FuncBySym map[SymbolID]FuncID
	NextFunc  FuncID

	Globals  []SymbolID
	TopLevel BlockID

	WideClassMap map[TypeID]TypeID
	WideRefMap   map[TypeID]TypeID
	LocaleIDType TypeID
	IntType      TypeID

	Nodes     []*Node
	NextNode  NodeID
	Blocks    []*Block
	NextBlock BlockID

	TypeSyms  map[TypeID]SymbolID
	FieldSyms map[TypeID]map[string]SymbolID
}

// Export captures m's full state as a flat snapshot, ordered by ID so
// two exports of an unchanged module serialize to identical bytes.
func (m *Module) Export() *Snapshot {
	s := &Snapshot{
		NextSymbol:   m.Symbols.next,
		NextType:     m.Types.next,
		HeapCache:    m.Types.heapCache,
		FuncBySym:    m.FuncBySym,
		NextFunc:     m.nextFunc,
		Globals:      m.Globals,
		TopLevel:     m.TopLevel,
		WideClassMap: m.WideClassMap,
		WideRefMap:   m.WideRefMap,
		LocaleIDType: m.localeIDType,
		IntType:      m.intType,
		NextNode:     m.nextNode,
		NextBlock:    m.nextBlock,
		TypeSyms:     m.typeSyms,
		FieldSyms:    m.fieldSyms,
	}

	s.Symbols = m.Symbols.All()
	s.Types = m.Types.All()

	funcIDs := make([]FuncID, 0, len(m.Funcs))
	for fid := range m.Funcs {
		funcIDs = append(funcIDs, fid)
	}
	sort.Slice(funcIDs, func(i, j int) bool { return funcIDs[i] < funcIDs[j] })
	for _, fid := range funcIDs {
		s.Funcs = append(s.Funcs, m.Funcs[fid])
	}

	for id := NodeID(0); id < m.nextNode; id++ {
		if n, ok := m.nodes[id]; ok {
			s.Nodes = append(s.Nodes, n)
		}
	}
	for id := BlockID(0); id < m.nextBlock; id++ {
		if b, ok := m.blocks[id]; ok {
			s.Blocks = append(s.Blocks, b)
		}
	}

	return s
}

// Restore rebuilds a live Module from a snapshot Export produced,
// re-keying every arena by the ID each entry already carries.
func Restore(s *Snapshot) *Module {
	if s == nil {
		return NewModule()
	}

	m := &Module{
		Symbols: &SymbolTable{syms: make(map[SymbolID]*Symbol, len(s.Symbols)), next: s.NextSymbol},
		Types: &TypeTable{
			types:     make(map[TypeID]*Type, len(s.Types)),
			next:      s.NextType,
			heapCache: ensureTypeMap(s.HeapCache),
		},
		Funcs:        make(map[FuncID]*Func, len(s.Funcs)),
		FuncBySym:    ensureFuncBySymMap(s.FuncBySym),
		Globals:      s.Globals,
		TopLevel:     s.TopLevel,
		WideClassMap: ensureTypeMap(s.WideClassMap),
		WideRefMap:   ensureTypeMap(s.WideRefMap),
		localeIDType: s.LocaleIDType,
		intType:      s.IntType,
		nodes:        make(map[NodeID]*Node, len(s.Nodes)),
		blocks:       make(map[BlockID]*Block, len(s.Blocks)),
		nextNode:     s.NextNode,
		nextBlock:    s.NextBlock,
		nextFunc:     s.NextFunc,
		typeSyms:     ensureTypeSymMap(s.TypeSyms),
		fieldSyms:    ensureFieldSymMap(s.FieldSyms),
	}

	for _, sym := range s.Symbols {
		m.Symbols.syms[sym.ID] = sym
	}
	for _, ty := range s.Types {
		m.Types.types[ty.ID] = ty
	}
	for _, f := range s.Funcs {
		m.Funcs[f.ID] = f
	}
	for _, n := range s.Nodes {
		m.nodes[n.ID] = n
	}
	for _, b := range s.Blocks {
		m.blocks[b.ID] = b
	}

	m.calledByValid = false
	return m
}

func ensureTypeMap(in map[TypeID]TypeID) map[TypeID]TypeID {
	if in != nil {
		return in
	}
	return make(map[TypeID]TypeID)
}

func ensureFuncBySymMap(in map[SymbolID]FuncID) map[SymbolID]FuncID {
	if in != nil {
		return in
	}
	return make(map[SymbolID]FuncID)
}

func ensureTypeSymMap(in map[TypeID]SymbolID) map[TypeID]SymbolID {
	if in != nil {
		return in
	}
	return make(map[TypeID]SymbolID)
}

func ensureFieldSymMap(in map[TypeID]map[string]SymbolID) map[TypeID]map[string]SymbolID {
	if in != nil {
		return in
	}
	return make(map[TypeID]map[string]SymbolID)
}
