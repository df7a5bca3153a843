package ir

// Wide-layout synthesis: every class/ref type gets at
// most one wide counterpart, recorded in the module's WideClassMap/
// WideRefMap so the maps stay bijective across repeated runs (an
// idempotence property) — a second call for the same T returns the
// cached type instead of minting a duplicate.

// LocaleIDType returns the shared primitive type used for a wide
// layout's `locale` field, synthesizing it once per module.
func (m *Module) LocaleIDType() TypeID {
	if m.localeIDType.IsValid() {
		return m.localeIDType
	}
	t := m.Types.New(TypePrimitive, "locale_id")
	m.localeIDType = t.ID
	return t.ID
}

// IntType returns the module's single shared "int" primitive type,
// synthesizing it on first request. Every pass that needs a plain
// integer type — a wide(string)'s size field, a count argument to a
// runtime ABI call — goes through here instead of minting its own, so
// two unrelated passes never end up with two distinct "int" TypeIDs.
func (m *Module) IntType() TypeID {
	if m.intType.IsValid() {
		return m.intType
	}
	t := m.Types.New(TypePrimitive, "int")
	m.intType = t.ID
	return t.ID
}

// WideClassFor returns wide(c), synthesizing it (fields locale, addr,
// plus size for the string class) and registering it in WideClassMap on
// first request.
func (m *Module) WideClassFor(c TypeID) (*Type, bool) {
	if cached, ok := m.WideClassMap[c]; ok {
		return m.Types.Get(cached), false
	}
	base := m.Types.Get(c)
	name := "wide"
	hasSize := false
	if base != nil {
		name = base.Name
		hasSize = base.Name == "string"
	}
	wide := m.Types.New(TypeWideClass, "wide("+name+")")
	wide.Elem = c
	wide.HasSize = hasSize
	wide.Flags |= TypeFlagWide | TypeFlagWideClass
	wide.Fields = []Field{
		{Name: "locale", Type: m.LocaleIDType()},
		{Name: "addr", Type: c},
	}
	if hasSize {
		wide.Fields = append(wide.Fields, Field{Name: "size", Type: m.IntType()})
	}
	m.WideClassMap[c] = wide.ID
	return wide, true
}

// WideRefFor returns wide(ref), the same two-field layout as
// WideClassFor but kind-tagged TypeWideRef and tracked in WideRefMap,
// keeping the two widening maps disjoint.
func (m *Module) WideRefFor(r TypeID) (*Type, bool) {
	if cached, ok := m.WideRefMap[r]; ok {
		return m.Types.Get(cached), false
	}
	base := m.Types.Get(r)
	name := "ref"
	if base != nil {
		name = base.Name
	}
	wide := m.Types.New(TypeWideRef, "wide("+name+")")
	wide.Elem = r
	wide.Flags |= TypeFlagWide | TypeFlagRef
	wide.Fields = []Field{
		{Name: "locale", Type: m.LocaleIDType()},
		{Name: "addr", Type: r},
	}
	m.WideRefMap[r] = wide.ID
	return wide, true
}
