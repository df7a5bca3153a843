package ir

// Primitive names one of the fixed IR primitive operations (Chapel's
// PRIM_* family) or a runtime ABI call this pass is allowed to construct.
// PrimNone marks an ordinary resolved call to a user/task function.
type Primitive uint8

const (
	PrimNone Primitive = iota

	PrimMove
	PrimAddrOf
	PrimDeref
	PrimGetMember
	PrimGetMemberValue
	PrimSetMember
	PrimGetSvecMember
	PrimSetSvecMember
	PrimArraySetFirst
	PrimArrayGet
	PrimArraySet
	PrimGetClassID
	PrimGetUnionID
	PrimSetUnionID
	PrimVmtCall
	PrimCast
	PrimWideGet
	PrimGetPrivClass
	PrimLocalCheck

	// Runtime ABI calls this pass is allowed to inject.
	PrimAutoCopy
	PrimAutoDestroy
	PrimGetEndCount
	PrimSetEndCount
	PrimHereAlloc
	PrimHereFree
	PrimPrivateBroadcast
	PrimHeapRegisterGlobalVar
	PrimHeapBroadcastGlobalVars

	// PrimUnknown stands in for "some other call shape" when a sub-pass's
	// contract only needs to recognize "not one of the above" (heap
	// promotion's RHS catch-all, the string-widening pass's non-local-args
	// resolved call check).
	PrimUnknown
)

var primitiveNames = map[Primitive]string{
	PrimNone:                    "call",
	PrimMove:                    "move",
	PrimAddrOf:                  "addr_of",
	PrimDeref:                   "deref",
	PrimGetMember:               "get_member",
	PrimGetMemberValue:          "get_member_value",
	PrimSetMember:               "set_member",
	PrimGetSvecMember:           "get_svec_member",
	PrimSetSvecMember:           "set_svec_member",
	PrimArraySetFirst:           "array_set_first",
	PrimArrayGet:                "array_get",
	PrimArraySet:                "array_set",
	PrimGetClassID:              "get_class_id",
	PrimGetUnionID:              "get_union_id",
	PrimSetUnionID:              "set_union_id",
	PrimVmtCall:                 "vmt_call",
	PrimCast:                    "cast",
	PrimWideGet:                 "wide_get",
	PrimGetPrivClass:            "get_priv_class",
	PrimLocalCheck:              "local_check",
	PrimAutoCopy:                "auto_copy",
	PrimAutoDestroy:             "auto_destroy",
	PrimGetEndCount:             "get_end_count",
	PrimSetEndCount:             "set_end_count",
	PrimHereAlloc:               "here_alloc",
	PrimHereFree:                "here_free",
	PrimPrivateBroadcast:        "private_broadcast",
	PrimHeapRegisterGlobalVar:   "heap_register_global_var",
	PrimHeapBroadcastGlobalVars: "heap_broadcast_global_vars",
	PrimUnknown:                 "unknown",
}

// String renders a Primitive under the runtime ABI name the pretty-
// printer and diagnostics use (the same names a Primitive passed to
// ice.Newf as a %v subject renders as).
func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return "primitive?"
}

func (p Primitive) IsRuntimeCall() bool {
	return p >= PrimAutoCopy && p <= PrimHeapBroadcastGlobalVars
}

func (p Primitive) IsCommunicating() bool {
	switch p {
	case PrimGetMember, PrimGetMemberValue, PrimSetMember, PrimGetSvecMember,
		PrimSetSvecMember, PrimArraySetFirst, PrimArrayGet, PrimArraySet,
		PrimGetClassID, PrimGetUnionID, PrimSetUnionID,
		PrimVmtCall, PrimWideGet, PrimGetPrivClass, PrimCast, PrimDeref:
		return true
	default:
		return false
	}
}

// NodeKind distinguishes DefExpr, SymExpr, CallExpr, and the two
// statement shapes (conditional, nested block) that give the tree its
// branching structure.
type NodeKind uint8

const (
	NodeSymExpr NodeKind = iota
	NodeDefExpr
	NodeCallExpr
	NodeCondStmt
	NodeNestedBlock
)

// Node is a single tree node: expression, definition, call, or a
// control-flow wrapper around child blocks. Only the fields relevant to
// Kind are meaningful; the rest sit at zero value.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Ownership: parent as an index, not a pointer.
	ParentBlock BlockID // set when this node is a direct statement of a block.
	ParentNode  NodeID  // set when this node is nested inside another node (e.g. a call argument); NoNodeID otherwise.

	// SymExpr / DefExpr.
	Sym  SymbolID
	Init NodeID // DefExpr only.

	// CallExpr.
	Primitive Primitive
	Callee    FuncID // resolved call target; NoFuncID for a primitive-only call or an unresolved runtime call.
	Args      []NodeID

	// CondStmt.
	CondExpr NodeID
	Then     BlockID
	Else     BlockID

	// NestedBlock.
	Body BlockID
}

// BlockFlags marks lexical properties of a block.
type BlockFlags uint8

const (
	BlockFlagLocal BlockFlags = 1 << iota // explicit `local { }` region.
)

// Block is an ordered sequence of statement nodes.
type Block struct {
	ID     BlockID
	Owner  FuncID
	Flags  BlockFlags
	Stmts  []NodeID
	Parent BlockID // NoBlockID for a function's entry block.
}

func (b *Block) IsLocal() bool { return b != nil && b.Flags&BlockFlagLocal != 0 }

func (id NodeID) IsValid() bool   { return id != NoNodeID }
func (id BlockID) IsValid() bool  { return id != NoBlockID }
func (id FuncID) IsValid() bool   { return id != NoFuncID }
