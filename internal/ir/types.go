package ir

// TypeKind distinguishes the shapes of type the pass reasons about
// directly. Everything else (numeric width, generic instantiation, …) is
// upstream's concern and is carried opaquely in Type.Name.
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeClass              // reference semantics
	TypeRecord              // value semantics
	TypeRef                 // single field `_val`
	TypeHeap                // single field `value`, synthesized by heap promotion
	TypeWideClass            // fields `locale`, `addr` (+ `size` for string)
	TypeWideRef
)

func (k TypeKind) String() string {
	switch k {
	case TypePrimitive:
		return "primitive"
	case TypeClass:
		return "class"
	case TypeRecord:
		return "record"
	case TypeRef:
		return "ref"
	case TypeHeap:
		return "heap"
	case TypeWideClass:
		return "wide_class"
	case TypeWideRef:
		return "wide_ref"
	default:
		return "type?"
	}
}

// TypeFlags mirrors the fixed vocabulary of boolean type flags.
type TypeFlags uint16

const (
	TypeFlagWide TypeFlags = 1 << iota
	TypeFlagWideClass
	TypeFlagHeap
	TypeFlagRef
	TypeFlagNoWideClass
	TypeFlagRefcounted
)

func (f TypeFlags) Has(flag TypeFlags) bool { return f&flag != 0 }

// Field is a named, typed member of a class/record/wide layout.
type Field struct {
	Name string
	Type TypeID
}

// Type is one entry in a Module's type table.
//
// For TypeRef and TypeHeap, Elem names the pointee/value type. A heap
// cell built by HeapCellFor also lists its single `value` field in
// Fields; a ref's `_val` field is not stored in Fields.
// For TypeWideClass/TypeWideRef, Elem is the narrow `addr` type and
// HasSize marks the string special case (an extra `size` field).
type Type struct {
	ID    TypeID
	Kind  TypeKind
	Name  string
	Elem  TypeID
	Flags TypeFlags

	Fields  []Field // declared class/record fields, in formal/declaration order.
	HasSize bool     // wide(string) carries an extra `size` field.

	IsPureValue bool // record eligible for replication (non-record-wrapped, non-sync), used by the replicable-constant test.
	IsEnum      bool
}

func (t *Type) IsRef() bool        { return t != nil && t.Kind == TypeRef }
func (t *Type) IsHeap() bool       { return t != nil && t.Kind == TypeHeap }
func (t *Type) IsClass() bool      { return t != nil && t.Kind == TypeClass }
func (t *Type) IsRecord() bool     { return t != nil && t.Kind == TypeRecord }
func (t *Type) IsWideClass() bool  { return t != nil && t.Kind == TypeWideClass }
func (t *Type) IsWideRef() bool    { return t != nil && t.Kind == TypeWideRef }
func (t *Type) IsPrimitive() bool  { return t != nil && t.Kind == TypePrimitive }

// TypeTable owns the arena of types for a Module, plus the caches every
// sub-pass must consult before synthesizing a new type: heap(T) per T,
// and (on Module) wideClassMap/wideRefMap.
type TypeTable struct {
	types map[TypeID]*Type
	next  TypeID

	heapCache map[TypeID]TypeID // T -> heap(T), shared across every call site of every promoted variable.
}

// NewTypeTable returns an empty type table.
func NewTypeTable() *TypeTable {
	return &TypeTable{
		types:     make(map[TypeID]*Type),
		heapCache: make(map[TypeID]TypeID),
	}
}

// New allocates a fresh type.
func (t *TypeTable) New(kind TypeKind, name string) *Type {
	id := t.next
	t.next++
	ty := &Type{ID: id, Kind: kind, Name: name}
	t.types[id] = ty
	return ty
}

// Get looks up a type by ID.
func (t *TypeTable) Get(id TypeID) *Type {
	if t == nil {
		return nil
	}
	return t.types[id]
}

// HeapCellFor returns the cached heap(T) for value type T, synthesizing
// and caching one on first request. Every subsequent
// promotion of a variable of type T reuses the same heap-cell type,
// satisfying the pass's idempotence property.
func (t *TypeTable) HeapCellFor(valueType TypeID, valueName string) (*Type, bool) {
	if cached, ok := t.heapCache[valueType]; ok {
		return t.Get(cached), false
	}
	heap := t.New(TypeHeap, "heap("+valueName+")")
	heap.Elem = valueType
	heap.Flags |= TypeFlagHeap
	heap.Fields = []Field{{Name: "value", Type: valueType}}
	t.heapCache[valueType] = heap.ID
	return heap, true
}

// All returns every type in the table, ordered by ID — used by the
// wide-reference inserter to find every class/ref type up front before
// deciding which ones need a wide counterpart.
func (t *TypeTable) All() []*Type {
	out := make([]*Type, 0, len(t.types))
	for id := TypeID(0); id < t.next; id++ {
		if ty, ok := t.types[id]; ok {
			out = append(out, ty)
		}
	}
	return out
}

func (id TypeID) IsValid() bool { return id != NoTypeID }
