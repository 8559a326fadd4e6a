package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/sim"
)

const (
	tickRate        = time.Second / 10
	historyCapacity = 600
	minTolerance    = 1e-12
)

type TickMsg time.Time

// Builder returns a fresh simulator positioned at the initial state.
type Builder func() (*sim.Simulator, sim.Config, error)

// Model steps a simulator interactively.
type Model struct {
	unitName  string
	build     Builder
	simulator *sim.Simulator
	cfg       sim.Config
	dctx      *dynamo.Context

	step     int
	running  bool
	finished bool
	err      error
	showHelp bool

	names      []string
	selected   int
	history    [][]float64
	calls      []float64
	last       dynamo.Report
	totalCalls int
	degraded   int
}

func NewModel(unitName string, build Builder) (Model, error) {
	m := Model{unitName: unitName, build: build}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m *Model) reset() error {
	s, cfg, err := m.build()
	if err != nil {
		return err
	}
	seqs := s.Model().Sequences()

	m.simulator = s
	m.cfg = cfg
	m.dctx = &dynamo.Context{AbsErrorMax: cfg.AbsErrorMax, RelDtMin: cfg.RelDtMin}
	m.step = 0
	m.running = true
	m.finished = false
	m.err = nil
	m.names = append(seqs.StateNames(), seqs.FluxNames()...)
	m.history = make([][]float64, len(m.names))
	m.calls = m.calls[:0]
	m.last = dynamo.Report{}
	m.totalCalls = 0
	m.degraded = 0
	if m.selected >= len(m.names) {
		m.selected = 0
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.advance()
			}
		case "r":
			if err := m.reset(); err != nil {
				m.err = err
			}
		case "tab":
			if len(m.names) > 0 {
				m.selected = (m.selected + 1) % len(m.names)
			}
		case "+", "=":
			m.dctx.AbsErrorMax = max(m.dctx.AbsErrorMax/10, minTolerance)
		case "-", "_":
			m.dctx.AbsErrorMax *= 10
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

// advance solves the next outer step and records it.
func (m *Model) advance() {
	if m.finished || m.err != nil {
		return
	}
	if m.step >= m.cfg.Steps {
		m.finished = true
		m.running = false
		return
	}

	m.dctx.SimIndex = m.step
	rep, err := m.simulator.Step(m.dctx, m.cfg.ValidateState)
	if err != nil {
		m.err = err
		m.running = false
		return
	}

	seqs := m.simulator.Model().Sequences()
	values := append(seqs.OldValues(), seqs.FluxValues()...)
	for i, v := range values {
		m.history[i] = appendCapped(m.history[i], v)
	}
	m.calls = appendCapped(m.calls, float64(rep.Calls))

	m.last = rep
	m.totalCalls += rep.Calls
	if rep.Degraded {
		m.degraded++
	}
	m.step++
	if m.step >= m.cfg.Steps {
		m.finished = true
		m.running = false
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return StatusError().Render("ERROR")
	case m.finished:
		return StatusOK().Render("FINISHED")
	case !m.running:
		return StatusWarn().Render("PAUSED")
	case m.last.Degraded:
		return StatusWarn().Render("DEGRADED")
	default:
		return StatusOK().Render("RUNNING")
	}
}

// View renders the TUI interface.
func (m Model) View() string {
	var left strings.Builder
	name := ""
	if len(m.names) > 0 {
		name = m.names[m.selected]
	}
	if series := m.history[m.selected]; len(series) > 1 {
		chart := asciigraph.Plot(series, asciigraph.Height(12), asciigraph.Width(50), asciigraph.Caption(name))
		left.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(chart))
	} else {
		left.WriteString(Subtle().Render("waiting for data: " + name))
	}
	left.WriteString("\n\n" + MetricLabel().Render("calls") + SparklineChart(m.calls, 50))

	var s strings.Builder
	s.WriteString(Title().Render(strings.ToUpper(m.unitName)) + "  " + m.status() + "\n\n")
	progress := 0.0
	if m.cfg.Steps > 0 {
		progress = float64(m.step) / float64(m.cfg.Steps)
	}
	s.WriteString(ProgressBar(progress, 24) + "\n\n")
	s.WriteString(Metric("Step", fmt.Sprintf("%d/%d", m.step, m.cfg.Steps)) + "\n")
	s.WriteString(Metric("Tolerance", fmt.Sprintf("%.0e", m.dctx.AbsErrorMax)) + "\n")
	s.WriteString(Metric("Min step", fmt.Sprintf("%g", m.dctx.RelDtMin)) + "\n")
	s.WriteString(Separator(28) + "\n")
	s.WriteString(Metric("Calls", fmt.Sprintf("%d", m.last.Calls)) + "\n")
	s.WriteString(Metric("Total", fmt.Sprintf("%d", m.totalCalls)) + "\n")
	s.WriteString(Metric("Method", fmt.Sprintf("%d", m.last.Method)) + "\n")
	s.WriteString(Metric("Sub-steps", fmt.Sprintf("%d", m.last.SubSteps)) + "\n")
	s.WriteString(Metric("Rejected", fmt.Sprintf("%d", m.last.Rejected)) + "\n")
	s.WriteString(Metric("Degraded", fmt.Sprintf("%d", m.degraded)) + "\n")
	if m.err != nil {
		s.WriteString("\n" + StatusError().Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint().Render("SP:Pause N:Step R:Reset Q:Quit\nTab:Series +/-:Tolerance ?:Help"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, Panel().Render(left.String()), Panel().Render(s.String()))
	if m.showHelp {
		help := strings.Join([]string{
			"Space  pause or resume",
			"N      single step while paused",
			"R      restart from the initial state",
			"Tab    cycle the plotted sequence",
			"+ / -  tighten or relax the tolerance",
			"T      cycle themes",
			"Q      quit",
		}, "\n")
		return Panel().Render(Title().Render("KEYS")+"\n\n"+help) + "\n" + mainView
	}
	return mainView
}

// Run starts the interactive program.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
