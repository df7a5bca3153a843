// Package widen implements the wide-reference inserter: when distributed
// execution is enabled, it converts class and ref types to wide forms
// (locator + address), rewrites the symbols that hold them, and pushes
// narrow temporaries through the boundaries that still need one
// (local_args calls, string-literal actuals, a wide ref pointing at a
// wide class).
package widen

import (
	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

const passName = "widen"

// Run executes the pass in dependency order: the two type-building
// steps, the two symbol-widening steps, then the temp-insertion steps
// that depend on the new wide types existing. It is a no-op unless
// cfg.RequireWideReferences() holds.
func Run(m *ir.Module, cfg rtconfig.Config) error {
	if !cfg.RequireWideReferences() {
		return nil
	}

	buildWideClassTypes(m)
	widenClassSymbols(m)
	buildWideRefTypes(m)
	widenRefSymbols(m)

	if err := elementAccessTemps(m); err != nil {
		return err
	}
	narrowAtLocalArgsBoundaries(m, cfg)
	wideRefToWideClassDeref(m)
	widenGetPrivClass(m)

	m.InvalidateCalledBy()
	return nil
}
