// Package progress renders workflow step status for the operator.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/yangwenmai/casefill/internal/model"
)

// Reporter receives phase changes and step outcomes as they happen.
type Reporter interface {
	Phase(caseID, phase string)
	Step(o model.StepOutcome)
}

var (
	phaseSty  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4FC3F7"))
	okSty     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnSty   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB300"))
	failSty   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
	detailSty = lipgloss.NewStyle().Foreground(lipgloss.Color("#7a8699"))
)

// ConsoleReporter writes one styled line per event.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a ConsoleReporter writing to out.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

func (c *ConsoleReporter) Phase(caseID, phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, phaseSty.Render(fmt.Sprintf("▶ %s: %s", caseID, phase)))
}

func (c *ConsoleReporter) Step(o model.StepOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var mark string
	switch {
	case o.OK:
		mark = okSty.Render("✓")
	case o.Fatal:
		mark = failSty.Render("✗")
	default:
		mark = warnSty.Render("!")
	}
	line := mark + " " + o.Step
	if o.Detail != "" {
		line += " " + detailSty.Render(o.Detail)
	}
	fmt.Fprintln(c.out, line)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	Phases []string
	Steps  []model.StepOutcome
}

func (r *Recorder) Phase(_, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phases = append(r.Phases, phase)
}

func (r *Recorder) Step(o model.StepOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps = append(r.Steps, o)
}

// StepNames returns the names of the recorded steps in order.
func (r *Recorder) StepNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Step
	}
	return out
}

// Nop discards everything.
type Nop struct{}

func (Nop) Phase(string, string)   {}
func (Nop) Step(model.StepOutcome) {}

var (
	_ Reporter = (*ConsoleReporter)(nil)
	_ Reporter = (*Recorder)(nil)
	_ Reporter = Nop{}
)
