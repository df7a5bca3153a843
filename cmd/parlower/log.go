package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"parlower/internal/pipeline"
)

// logSink renders pipeline events as colorized log lines, the
// non-interactive counterpart to the bubbletea progress view.
type logSink struct {
	color  bool
	prefix string
}

var (
	logWorking = color.New(color.FgCyan)
	logDone    = color.New(color.FgGreen)
	logError   = color.New(color.FgRed, color.Bold)
)

func (s logSink) OnEvent(ev pipeline.Event) {
	label := string(ev.Stage)
	if s.prefix != "" {
		label = s.prefix + ": " + label
	}

	switch ev.Status {
	case pipeline.StatusWorking:
		s.printf(logWorking, os.Stderr, "%s: starting\n", label)
	case pipeline.StatusDone:
		s.printf(logDone, os.Stderr, "%s: done (%s)\n", label, ev.Elapsed)
	case pipeline.StatusError:
		s.printf(logError, os.Stderr, "%s: failed: %v\n", label, ev.Err)
	}
}

func (s logSink) printf(c *color.Color, w *os.File, format string, args ...any) {
	if !s.color {
		fmt.Fprintf(w, format, args...)
		return
	}
	fmt.Fprint(w, c.Sprintf(format, args...))
}
