// Package ui renders a live progress view over the six lowering
// sub-passes, one row per stage.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parlower/internal/pipeline"
)

var stageOrder = []pipeline.Stage{
	pipeline.StageBundle,
	pipeline.StageHeapProm,
	pipeline.StageEndCount,
	pipeline.StageWiden,
	pipeline.StageLocalSpec,
	pipeline.StageGlobalInit,
}

type stageItem struct {
	stage  pipeline.Stage
	status string
}

// ProgressModel is a bubbletea model driven by a channel of
// pipeline.Event values, typically fed by pipeline.ChannelSink from a
// goroutine running pipeline.Run.
type ProgressModel struct {
	events  <-chan pipeline.Event
	spinner spinner.Model
	prog    progress.Model
	items   []stageItem
	index   map[pipeline.Stage]int
	done    bool
	failed  bool
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a model tracking every stage in stageOrder,
// all "queued" until the first event updates them.
func NewProgressModel(events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 60

	items := make([]stageItem, len(stageOrder))
	index := make(map[pipeline.Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		items[i] = stageItem{stage: s, status: "queued"}
		index[s] = i
	}
	return &ProgressModel{events: events, spinner: sp, prog: prog, items: items, index: index}
}

func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *ProgressModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.apply(pipeline.Event(msg))
		return m, tea.Batch(cmd, m.listen())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		p, cmd := m.prog.Update(msg)
		m.prog = p.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *ProgressModel) apply(ev pipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.Stage]
	if !ok {
		return nil
	}
	switch ev.Status {
	case pipeline.StatusWorking:
		m.items[idx].status = "running"
	case pipeline.StatusDone:
		m.items[idx].status = "done"
	case pipeline.StatusError:
		m.items[idx].status = "error"
		m.failed = true
	}

	finished := 0
	for _, it := range m.items {
		if it.status == "done" || it.status == "error" {
			finished++
		}
	}
	return m.prog.SetPercent(float64(finished) / float64(len(m.items)))
}

func (m *ProgressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := "lowering"
	if m.done {
		if m.failed {
			header = "failed: lowering"
		} else {
			header = "done: lowering"
		}
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	for _, it := range m.items {
		status := styleStatus(it.status).Render(fmt.Sprintf("%8s", it.status))
		b.WriteString(fmt.Sprintf("  %s %s\n", status, it.stage))
	}
	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}
