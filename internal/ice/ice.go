// Package ice reports internal compiler errors: invariants this pass
// assumes hold that turned out not to. Every sub-pass aborts
// through here rather than letting a nil dereference or index panic
// surface directly, so the failure names the node and the invariant it
// violated.
package ice

import (
	"fmt"

	"github.com/fatih/color"
)

var tag = color.New(color.FgRed, color.Bold)

// Error is an internal compiler error: a pass-local invariant failed.
// Pass is the sub-pass that detected it (e.g. "heapprom", "widen");
// Subject is whatever identifier (a node, symbol, or function) made the
// invariant false, rendered via %v by the caller.
type Error struct {
	Pass    string
	Subject any
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%v): %s", tag.Sprint("internal compiler error"), e.Pass, e.Subject, e.Reason)
}

// New builds an *Error. Call sites read as:
//
//	return ice.New("heapprom", sym, "heap-promoted symbol has no def sites")
func New(pass string, subject any, reason string) *Error {
	return &Error{Pass: pass, Subject: subject, Reason: reason}
}

// Newf builds an *Error with a formatted reason.
func Newf(pass string, subject any, format string, args ...any) *Error {
	return &Error{Pass: pass, Subject: subject, Reason: fmt.Sprintf(format, args...)}
}
