// Package ir defines the intermediate representation shared by every
// lowering sub-pass: symbols, types, and a tree of nodes with parent
// pointers addressed by small integer IDs rather than live pointers.
package ir

import "fortio.org/safecast"

// SymbolID identifies a symbol (function, formal, variable, or type) in a Module's symbol table.
type SymbolID int32

// TypeID identifies a type in a Module's type table.
type TypeID int32

// FuncID identifies a function.
type FuncID int32

// BlockID identifies a block within a function.
type BlockID int32

// NodeID identifies a node (DefExpr, SymExpr, CallExpr, CondStmt, or NestedBlock) in the module's node arena.
type NodeID int32

// GlobalID identifies a module-level (global) variable symbol, distinct from locals.
type GlobalID int32

const (
	NoSymbolID SymbolID = -1
	NoTypeID   TypeID   = -1
	NoFuncID   FuncID   = -1
	NoBlockID  BlockID  = -1
	NoNodeID   NodeID   = -1
	NoGlobalID GlobalID = -1
)

// nextID32 converts a growing slice length into the next ID value, aborting
// on overflow rather than silently wrapping — the same guard applied at
// every arena-growth point (mir.newBlock, mir.newTemp).
func nextID32(n int) int32 {
	v, err := safecast.Conv[int32](n)
	if err != nil {
		panic(ice("ir: arena id overflow: " + err.Error()))
	}
	return v
}

type iceString string

func (e iceString) Error() string { return string(e) }

func ice(msg string) error { return iceString(msg) }
