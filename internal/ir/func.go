package ir

// FuncFlags mirrors the fixed vocabulary of boolean function flags.
type FuncFlags uint16

const (
	FuncFlagTask FuncFlags = 1 << iota // task/begin: async task body.
	FuncFlagOn                         // remote-execution body.
	FuncFlagNonBlocking                // fire-and-forget variant.
	FuncFlagCobeginOrCoforall           // sibling task-group body.
	FuncFlagExtern                      // ABI boundary; not rewritten.
	FuncFlagExport
	FuncFlagLocalArgs // callee requires narrow (local) actuals.
	FuncFlagLocalFn   // cloned copy specialized for a local block.
)

func (f FuncFlags) Has(flag FuncFlags) bool { return f&flag != 0 }

// IsTask reports whether a function was outlined from begin/cobegin/coforall/on.
func (f FuncFlags) IsTask() bool { return f.Has(FuncFlagTask) || f.Has(FuncFlagOn) || f.Has(FuncFlagCobeginOrCoforall) }

// Func is a function symbol's body: an ordered list of formals, a result
// type, a set of flags, and the block tree making up its body.
type Func struct {
	ID      FuncID
	Sym     SymbolID
	Name    string
	Formals []SymbolID
	Result  TypeID
	Flags   FuncFlags
	Body    BlockID
}

// NewFunc returns a Func with no body or formals yet, ready to be
// registered with Module.AddFunc. Its ID is NoFuncID until AddFunc
// assigns one — a zero-valued Func{} would collide with the real
// FuncID 0 the first registered function gets, so callers must not
// construct a Func literal without going through here.
func NewFunc(name string) *Func {
	return &Func{ID: NoFuncID, Name: name, Result: NoTypeID}
}

func (f *Func) FormalIndex(sym SymbolID) int {
	if f == nil {
		return -1
	}
	for i, s := range f.Formals {
		if s == sym {
			return i
		}
	}
	return -1
}
