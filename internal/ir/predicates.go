package ir

// Symbol/type predicates shared by every sub-pass. Centralizing them
// here keeps the "is this a ref/class/heap/wide type" checks consistent
// between the bundler, heap promotion, and wide-reference insertion —
// later passes lean on exactly these distinctions.

// SymType returns the type of sym, or NoTypeID if sym is invalid.
func (m *Module) SymType(sym SymbolID) TypeID {
	s := m.Symbols.Get(sym)
	if s == nil {
		return NoTypeID
	}
	return s.Type
}

// IsRefType reports whether sym's declared type is a ref (or wide ref).
func (m *Module) IsRefType(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && (t.Kind == TypeRef || t.Kind == TypeWideRef)
}

// IsClassType reports whether sym's declared type is a class (or wide class).
func (m *Module) IsClassType(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && (t.Kind == TypeClass || t.Kind == TypeWideClass)
}

// IsRecordType reports whether sym's declared type is a record.
func (m *Module) IsRecordType(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && t.Kind == TypeRecord
}

// IsHeapType reports whether sym's declared type is already a heap cell.
func (m *Module) IsHeapType(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && t.Kind == TypeHeap
}

// IsRefcounted reports whether sym's value type carries refcount semantics.
func (m *Module) IsRefcounted(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && t.Flags.Has(TypeFlagRefcounted)
}

// WantsNoWideClass reports whether sym's class type opted out of widening.
func (m *Module) WantsNoWideClass(sym SymbolID) bool {
	t := m.Types.Get(m.SymType(sym))
	return t != nil && t.Flags.Has(TypeFlagNoWideClass)
}

// IsReplicableConstant reports whether sym is a module-level const
// eligible for broadcast-on-init rather than heap promotion:
// a primitive scalar, an enum, or a pure-value (non-record-wrapped,
// non-sync) record.
func (m *Module) IsReplicableConstant(sym SymbolID) bool {
	s := m.Symbols.Get(sym)
	if s == nil || !s.IsConst {
		return false
	}
	t := m.Types.Get(s.Type)
	if t == nil {
		return false
	}
	if t.IsPrimitive() || t.IsEnum {
		return true
	}
	return t.IsRecord() && t.IsPureValue
}

// IsRecordWrapped reports whether t is a record type that is not a pure
// value (arrays, domains, distributions: replicated via the deferred
// "after first use" strategy instead of immediate broadcast).
func (m *Module) IsRecordWrapped(t TypeID) bool {
	ty := m.Types.Get(t)
	return ty != nil && ty.IsRecord() && !ty.IsPureValue
}
