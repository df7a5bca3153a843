// Package localspec implements the local-block specializer: inside an
// explicit `local { }` region the programmer asserts no communication
// occurs, and this pass enforces it by narrowing every communicating
// primitive it reaches and, where the callee is resolved, cloning that
// callee into a twin specialized for the same assumption.
package localspec

import (
	"sort"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// Run walks every `local` block in the module and specializes it.
// It is a no-op unless cfg.RequireWideReferences() holds — with no wide
// references in the program there is nothing for a local block to
// guard against.
func Run(m *ir.Module, cfg rtconfig.Config) error {
	if !cfg.RequireWideReferences() {
		return nil
	}

	s := &specializer{
		m:      m,
		b:      ir.NewBuilder(m),
		cfg:    cfg,
		clones: make(map[ir.FuncID]ir.FuncID),
		seen:   make(map[ir.BlockID]bool),
	}

	for _, fid := range sortedFuncIDs(m) {
		f := m.Func(fid)
		if f == nil || !f.Body.IsValid() {
			continue
		}
		for _, blockID := range m.FindLocalBlocks(f.Body) {
			s.enqueue(blockID)
		}
	}

	s.drain()

	m.InvalidateCalledBy()
	return nil
}

// specializer carries the BFS frontier (blocks still to scan for calls)
// and the per-original-function clone cache, so a callee reached twice
// — including through recursion — is only ever cloned once.
type specializer struct {
	m      *ir.Module
	b      *ir.Builder
	cfg    rtconfig.Config
	clones map[ir.FuncID]ir.FuncID
	queue  []ir.BlockID
	seen   map[ir.BlockID]bool
}

func (s *specializer) enqueue(id ir.BlockID) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.queue = append(s.queue, id)
}

func (s *specializer) drain() {
	for len(s.queue) > 0 {
		block := s.queue[0]
		s.queue = s.queue[1:]
		s.processBlock(block)
	}
}

// processBlock narrows every communicating primitive inside block (and,
// via Walk, anything nested beneath it — an `if` or nested block inside
// a `local` region is still inside it), then follows every resolved
// call it finds to the callee's cloned body.
func (s *specializer) processBlock(block ir.BlockID) {
	var calls []ir.NodeID
	s.m.Walk(block, func(n *ir.Node) bool {
		if n.Kind == ir.NodeCallExpr {
			calls = append(calls, n.ID)
		}
		return true
	})

	for _, callID := range calls {
		localizeCall(s.m, s.b, s.cfg, callID)
	}

	for _, callID := range calls {
		s.specializeCallee(callID)
	}
}

// specializeCallee clones call's resolved, non-extern callee (caching
// the clone so recursion and repeated call sites share it), redirects
// call to the clone, narrows the clone's return if it is wide, and
// enqueues the clone's body for the same treatment.
func (s *specializer) specializeCallee(callID ir.NodeID) {
	call := s.m.Node(callID)
	if call == nil || call.Primitive != ir.PrimNone || !call.Callee.IsValid() {
		return
	}
	orig := s.m.Func(call.Callee)
	if orig == nil || orig.Flags.Has(ir.FuncFlagExtern) || orig.Flags.Has(ir.FuncFlagLocalFn) {
		return
	}

	cloneID, cloned := s.cloneFunc(orig)
	call.Callee = cloneID
	if cloned {
		s.enqueue(s.m.Func(cloneID).Body)
	}
}

// cloneFunc returns the cached `_local_` clone of orig, creating it on
// first request. The cache is keyed by the original so a second call
// site — or a recursive call from inside the clone itself — reuses the
// same clone instead of minting another.
func (s *specializer) cloneFunc(orig *ir.Func) (ir.FuncID, bool) {
	if cloneID, ok := s.clones[orig.ID]; ok {
		return cloneID, false
	}

	clone := ir.NewFunc("_local_" + orig.Name)
	clone.Formals = orig.Formals
	clone.Result = orig.Result
	clone.Flags = orig.Flags | ir.FuncFlagLocalFn
	cloneID := s.m.AddFunc(clone)
	s.clones[orig.ID] = cloneID

	clone.Body = s.m.CloneBlock(orig.Body, cloneID)
	narrowWideReturn(s.m, clone)

	return cloneID, true
}

func sortedFuncIDs(m *ir.Module) []ir.FuncID {
	out := make([]ir.FuncID, 0, len(m.Funcs))
	for fid, f := range m.Funcs {
		if f != nil {
			out = append(out, fid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func findEnclosingStmt(m *ir.Module, node ir.NodeID) (ir.BlockID, ir.NodeID) {
	n := m.Node(node)
	for n != nil {
		if n.ParentBlock.IsValid() {
			return n.ParentBlock, n.ID
		}
		n = m.Node(n.ParentNode)
	}
	return ir.NoBlockID, ir.NoNodeID
}
