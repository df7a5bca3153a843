package widen

import (
	"strconv"

	"golang.org/x/text/unicode/norm"

	"parlower/internal/ice"
	"parlower/internal/ir"
)

// elementAccessTemps is step 6: a narrow string-literal symbol used as
// an actual to a call that expects a wide string — any non-local-args
// resolved call, or one of a handful of primitives that read a string
// operand directly — is pushed through a fresh wide(string) temp rather
// than passed directly, because the literal itself stays narrow (step
// 3's exclusion a) while the callee's formal is wide.
//
// The temp's size field is computed from the literal's NFC-normalized
// byte length rather than trusting whatever encoding the upstream
// literal happened to arrive in.
func elementAccessTemps(m *ir.Module) error {
	stringType := findStringClass(m)
	if stringType == ir.NoTypeID {
		return nil
	}
	wideString, _ := m.WideClassFor(stringType)
	if !wideString.HasSize {
		return ice.New(passName, stringType, "wide(string) was synthesized without a size field")
	}

	addrField := m.FieldSymbol(wideString.ID, "addr")
	sizeField := m.FieldSymbol(wideString.ID, "size")
	intType := m.SymType(sizeField)
	b := ir.NewBuilder(m)

	for _, fid := range sortedFuncIDs(m) {
		f := m.Func(fid)
		if f == nil || !f.Body.IsValid() {
			continue
		}
		rewriteStringActuals(m, b, f.Body, stringType, wideString.ID, intType, addrField, sizeField)
	}
	return nil
}

func rewriteStringActuals(m *ir.Module, b *ir.Builder, body ir.BlockID, stringType, wideStringType, intType ir.TypeID, addrField, sizeField ir.SymbolID) {
	var calls []ir.NodeID
	m.Walk(body, func(n *ir.Node) bool {
		if n.Kind == ir.NodeCallExpr && expectsWideString(m, n) {
			calls = append(calls, n.ID)
		}
		return true
	})

	for _, callID := range calls {
		call := m.Node(callID)
		if call == nil {
			continue
		}
		for i, argID := range call.Args {
			arg := m.Node(argID)
			if arg == nil || arg.Kind != ir.NodeSymExpr {
				continue
			}
			sym := m.Symbols.Get(arg.Sym)
			if sym == nil || !sym.IsStringLiteral || sym.Type != stringType {
				continue
			}
			tmp := materializeWideStringTemp(m, b, sym, wideStringType, intType, addrField, sizeField, callID)
			call.Args[i] = b.SymExpr(tmp)
			m.SetParentNode(call.Args[i], call.ID)
		}
	}
}

// materializeWideStringTemp inserts, immediately before the statement
// that encloses use, a temp of wide(string) type whose addr field
// points at the original literal and whose size field holds the
// NFC-normalized byte length.
func materializeWideStringTemp(m *ir.Module, b *ir.Builder, sym *ir.Symbol, wideStringType, intType ir.TypeID, addrField, sizeField ir.SymbolID, use ir.NodeID) ir.SymbolID {
	block, stmt := findEnclosingStmt(m, use)
	if !block.IsValid() {
		return sym.ID
	}
	idx := m.IndexOfStmt(block, stmt)
	if idx < 0 {
		return sym.ID
	}

	normalized := norm.NFC.String(sym.StringValue)
	sizeSym := m.Symbols.New(ir.SymVar, strconv.Itoa(len(normalized)), intType)
	sizeSym.IsConst = true

	tmp := m.Symbols.New(ir.SymVar, sym.Name+"_wide", wideStringType)
	decl := b.DefExpr(tmp.ID, ir.NoNodeID)
	setAddr := b.SetMember(b.SymExpr(tmp.ID), addrField, b.SymExpr(sym.ID))
	setSize := b.SetMember(b.SymExpr(tmp.ID), sizeField, b.SymExpr(sizeSym.ID))

	m.InsertStmtBefore(block, idx, decl)
	m.InsertStmtBefore(block, idx+1, setAddr)
	m.InsertStmtBefore(block, idx+2, setSize)
	return tmp.ID
}

func expectsWideString(m *ir.Module, n *ir.Node) bool {
	switch n.Primitive {
	case ir.PrimVmtCall, ir.PrimSetMember, ir.PrimSetSvecMember, ir.PrimArraySetFirst:
		return true
	}
	if n.Primitive != ir.PrimNone || !n.Callee.IsValid() {
		return false
	}
	callee := m.Func(n.Callee)
	return callee != nil && !callee.Flags.Has(ir.FuncFlagLocalArgs)
}

func findStringClass(m *ir.Module) ir.TypeID {
	for _, t := range m.Types.All() {
		if t.Kind == ir.TypeClass && t.Name == "string" {
			return t.ID
		}
	}
	return ir.NoTypeID
}
