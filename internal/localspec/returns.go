package localspec

import "parlower/internal/ir"

// narrowWideReturn makes a clone's declared result narrow when the
// original returned a wide type. This IR carries a function's return
// type only as Func.Result — there is no return-statement node to
// rewrite through a temp — so narrowing the declared type directly
// produces the same observable contract: callers of the `_local_`
// clone see a narrow result.
func narrowWideReturn(m *ir.Module, clone *ir.Func) {
	t := m.Types.Get(clone.Result)
	if t == nil || !(t.IsWideClass() || t.IsWideRef()) {
		return
	}
	clone.Result = t.Elem
}
