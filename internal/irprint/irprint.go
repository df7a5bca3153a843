// Package irprint renders a module as indented, human-readable text:
// globals, then every function's formals and block tree, one
// primitive call or def per line.
package irprint

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"parlower/internal/ir"
)

// Options configures a dump.
type Options struct {
	Color bool // colorize keywords, symbols, and primitives
}

var (
	keywordColor = color.New(color.FgCyan, color.Bold)
	symColor     = color.New(color.FgYellow)
	primColor    = color.New(color.FgMagenta)
	typeColor    = color.New(color.FgGreen)
)

// Fprint writes m to w.
func Fprint(w io.Writer, m *ir.Module, opts Options) error {
	p := &printer{w: w, m: m, opts: opts}
	return p.printModule()
}

type printer struct {
	w    io.Writer
	m    *ir.Module
	opts Options
	err  error
}

func (p *printer) printModule() error {
	p.printGlobals()
	for _, fid := range sortedFuncIDs(p.m) {
		p.printFunc(p.m.Func(fid))
	}
	return p.err
}

func (p *printer) printGlobals() {
	if len(p.m.Globals) == 0 {
		return
	}
	p.line(0, "%s", p.kw("globals"))
	nameWidth := longestSymbolName(p.m, p.m.Globals)
	for _, g := range p.m.Globals {
		sym := p.m.Symbols.Get(g)
		if sym == nil {
			continue
		}
		p.line(1, "%s %s", p.sym(padName(sym.Name, nameWidth)), p.typeName(sym.Type))
	}
	p.blank()
}

func (p *printer) printFunc(f *ir.Func) {
	if f == nil {
		return
	}
	p.printf("%s %s(", p.kw("fn"), f.Name)
	for i, formalID := range f.Formals {
		if i > 0 {
			p.printf(", ")
		}
		sym := p.m.Symbols.Get(formalID)
		name := "_"
		if sym != nil {
			name = sym.Name
		}
		p.printf("%s", p.sym(name))
	}
	p.printf(")")
	if f.Result.IsValid() {
		p.printf(" -> %s", p.typeName(f.Result))
	}
	p.printf(" %s\n", flagSummary(f.Flags))

	if f.Body.IsValid() {
		p.printBlock(f.Body, 1)
	}
	p.blank()
}

func (p *printer) printBlock(blockID ir.BlockID, depth int) {
	b := p.m.Block(blockID)
	if b == nil {
		return
	}
	for _, stmt := range b.Stmts {
		p.printNode(stmt, depth)
	}
}

func (p *printer) printNode(id ir.NodeID, depth int) {
	n := p.m.Node(id)
	if n == nil {
		return
	}
	switch n.Kind {
	case ir.NodeDefExpr:
		sym := p.m.Symbols.Get(n.Sym)
		name := "_"
		if sym != nil {
			name = sym.Name
		}
		if n.Init.IsValid() {
			p.line(depth, "%s %s = %s", p.kw("def"), p.sym(name), p.exprString(n.Init))
		} else {
			p.line(depth, "%s %s", p.kw("def"), p.sym(name))
		}

	case ir.NodeCallExpr:
		p.line(depth, "%s", p.callString(n))

	case ir.NodeCondStmt:
		p.line(depth, "%s %s", p.kw("if"), p.exprString(n.CondExpr))
		p.printBlock(n.Then, depth+1)
		if n.Else.IsValid() && p.m.Block(n.Else) != nil && len(p.m.Block(n.Else).Stmts) > 0 {
			p.line(depth, "%s", p.kw("else"))
			p.printBlock(n.Else, depth+1)
		}

	case ir.NodeNestedBlock:
		label := p.kw("block")
		if p.m.Block(n.Body) != nil && p.m.Block(n.Body).IsLocal() {
			label = p.kw("local")
		}
		p.line(depth, "%s", label)
		p.printBlock(n.Body, depth+1)

	default:
		p.line(depth, "%s", p.exprString(id))
	}
}

// exprString renders a SymExpr/CallExpr/DefExpr as a single inline
// expression, for use as a nested operand (a def's initializer, a
// conditional's test).
func (p *printer) exprString(id ir.NodeID) string {
	n := p.m.Node(id)
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case ir.NodeSymExpr:
		sym := p.m.Symbols.Get(n.Sym)
		if sym == nil {
			return "_"
		}
		return p.sym(sym.Name)
	case ir.NodeCallExpr:
		return p.callString(n)
	default:
		return fmt.Sprintf("<%v>", n.Kind)
	}
}

func (p *printer) callString(n *ir.Node) string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = p.exprString(a)
	}
	name := n.Primitive.String()
	styled := p.prim(name)
	if n.Primitive == ir.PrimNone && n.Callee.IsValid() {
		callee := p.m.Func(n.Callee)
		calleeName := "?"
		if callee != nil {
			calleeName = callee.Name
		}
		styled = calleeName
	}
	return fmt.Sprintf("%s(%s)", styled, strings.Join(args, ", "))
}

func (p *printer) typeName(t ir.TypeID) string {
	ty := p.m.Types.Get(t)
	if ty == nil {
		return p.typeC("?")
	}
	return p.typeC(ty.Name)
}

func (p *printer) kw(s string) string {
	if !p.opts.Color {
		return s
	}
	return keywordColor.Sprint(s)
}

func (p *printer) sym(s string) string {
	if !p.opts.Color {
		return s
	}
	return symColor.Sprint(s)
}

func (p *printer) prim(s string) string {
	if !p.opts.Color {
		return s
	}
	return primColor.Sprint(s)
}

func (p *printer) typeC(s string) string {
	if !p.opts.Color {
		return s
	}
	return typeColor.Sprint(s)
}

func (p *printer) line(depth int, format string, args ...any) {
	p.printf("%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, err := fmt.Fprintf(p.w, format, args...)
	if err != nil {
		p.err = err
	}
}

func (p *printer) blank() {
	p.printf("\n")
}

func flagSummary(flags ir.FuncFlags) string {
	var parts []string
	if flags.Has(ir.FuncFlagTask) {
		parts = append(parts, "task")
	}
	if flags.Has(ir.FuncFlagOn) {
		parts = append(parts, "on")
	}
	if flags.Has(ir.FuncFlagNonBlocking) {
		parts = append(parts, "nonblocking")
	}
	if flags.Has(ir.FuncFlagCobeginOrCoforall) {
		parts = append(parts, "coforall")
	}
	if flags.Has(ir.FuncFlagExtern) {
		parts = append(parts, "extern")
	}
	if flags.Has(ir.FuncFlagExport) {
		parts = append(parts, "export")
	}
	if flags.Has(ir.FuncFlagLocalArgs) {
		parts = append(parts, "local_args")
	}
	if flags.Has(ir.FuncFlagLocalFn) {
		parts = append(parts, "local_fn")
	}
	if len(parts) == 0 {
		return ""
	}
	return "@" + strings.Join(parts, " @")
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

// longestSymbolName returns the display width (via runewidth, so wide
// characters in an identifier don't throw off alignment) of the
// longest name among ids, for padName to align a column against.
func longestSymbolName(m *ir.Module, ids []ir.SymbolID) int {
	max := 0
	for _, id := range ids {
		sym := m.Symbols.Get(id)
		if sym == nil {
			continue
		}
		if w := runewidth.StringWidth(sym.Name); w > max {
			max = w
		}
	}
	return max
}

func padName(name string, width int) string {
	pad := width - runewidth.StringWidth(name)
	if pad <= 0 {
		return name
	}
	return name + strings.Repeat(" ", pad)
}
