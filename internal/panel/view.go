package panel

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/logging"
	"github.com/joeycumines/worldgen-panel/internal/params"
)

const (
	logLines      = 6
	barWidth      = 30
	refreshPeriod = time.Second
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	infoStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	faintStyle    = lipgloss.NewStyle().Faint(true)
	sectionStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("8"))
)

type changedMsg struct{}

type tickMsg struct{}

// Model is the terminal view of a Panel. Key presses are turned into calls
// posted onto the panel loop; the view itself only reads.
type Model struct {
	panel   *Panel
	history *logging.History
	cursor  int
	width   int
}

// NewModel returns a view of p. history may be nil.
func NewModel(p *Panel, history *logging.History) Model {
	return Model{panel: p, history: history}
}

func tick() tea.Cmd {
	return tea.Tick(refreshPeriod, func(time.Time) tea.Msg { return tickMsg{} })
}

// Init starts the periodic refresh for the log pane.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles keys, resizes and change notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tick()
	case changedMsg:
		m.cursor = min(m.cursor, max(len(m.panel.wizard.CuratedParameters())-1, 0))
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.panel
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "right", "n":
		m.cursor = 0
		p.Post(func() { p.wizard.Next() })
	case "left", "p":
		m.cursor = 0
		p.Post(func() { p.wizard.Previous() })
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(p.wizard.CuratedParameters())-1 {
			m.cursor++
		}
	case "+", "=", " ":
		m.adjust(1)
	case "-", "_":
		m.adjust(-1)
	case "a":
		m.cycleArchetype()
	case "g":
		p.Post(func() {
			if err := p.Generate(); err != nil {
				p.logger.Warn("generate failed", "error", err)
			}
		})
	}
	return m, nil
}

func (m Model) adjust(dir int) {
	defs := m.panel.wizard.CuratedParameters()
	if m.cursor >= len(defs) {
		return
	}
	def := defs[m.cursor]
	current, ok := m.panel.wizard.Store().Get(def.Key)
	if !ok {
		current = params.DefaultFor(def)
	}
	next, ok := Nudge(def, current, dir)
	if !ok {
		return
	}
	p := m.panel
	p.Post(func() {
		if _, err := p.wizard.UpdateParameter(def.Key, next); err != nil {
			p.logger.Warn("parameter update rejected", "key", def.Key, "error", err)
		}
	})
}

func (m Model) cycleArchetype() {
	names := m.panel.wizard.Archetypes()
	if len(names) == 0 {
		return
	}
	p := m.panel
	p.Post(func() {
		p.mu.Lock()
		name := names[p.archetype%len(names)]
		p.archetype++
		p.mu.Unlock()
		_ = p.wizard.LoadArchetype(name)
	})
}

// Nudge returns the value one increment away from current in direction dir.
// Checkboxes toggle and selects cycle through their options. Free text has
// no increment.
func Nudge(def catalog.Parameter, current any, dir int) (any, bool) {
	switch {
	case def.UIKind.Boolean():
		b, _ := current.(bool)
		return !b, true
	case def.UIKind == catalog.KindSelect:
		if len(def.Options) == 0 {
			return nil, false
		}
		s, _ := current.(string)
		i := slices.Index(def.Options, s)
		n := len(def.Options)
		return def.Options[((i+dir)%n+n)%n], true
	case def.UIKind.Numeric():
		step := 1.0
		if def.Step != nil && *def.Step > 0 {
			step = *def.Step
		}
		v, _ := catalog.AsFloat(current)
		return v + float64(dir)*step, true
	}
	return nil, false
}

// View renders the panel.
func (m Model) View() string {
	var b strings.Builder
	m.viewWizard(&b)
	b.WriteString(sectionStyle.Render(""))
	b.WriteString("\n")
	m.viewGeneration(&b)
	m.viewSurface(&b)
	if m.history != nil {
		b.WriteString(sectionStyle.Render(""))
		b.WriteString("\n")
		for _, e := range m.history.Recent(logLines) {
			line := fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), e.Level, e.Message)
			b.WriteString(faintStyle.Render(truncate(line, m.width)))
			b.WriteString("\n")
		}
	}
	b.WriteString(faintStyle.Render("←/→ step  ↑/↓ select  +/- adjust  a archetype  g generate  q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewWizard(b *strings.Builder) {
	w := m.panel.wizard
	fmt.Fprintf(b, "%s  %s\n", titleStyle.Render(w.Title()),
		faintStyle.Render(fmt.Sprintf("(%d/%d)", w.CurrentStep()+1, max(w.TotalSteps(), 1))))
	if info := w.InfoText(); info != nil {
		b.WriteString(infoStyle.Render(*info))
		b.WriteString("\n")
	}
	store := w.Store()
	for i, def := range w.CuratedParameters() {
		label := def.Label
		if label == "" {
			label = def.Key
		}
		value, ok := store.Get(def.Key)
		if !ok {
			value = params.DefaultFor(def)
		}
		line := fmt.Sprintf("  %-24s %v", label, value)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func (m Model) viewGeneration(b *strings.Builder) {
	s := m.panel.generation.State()
	filled := int(s.Progress / 100 * barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(b, "Generation %s %3.0f%% %s\n", bar, s.Progress, s.StatusText)
	if s.ErrorMessage != nil {
		msg := *s.ErrorMessage
		if s.ErrorDetail != nil {
			msg += ": " + *s.ErrorDetail
		}
		b.WriteString(errorStyle.Render(msg))
		b.WriteString("\n")
	}
	if s.PreviewURL != nil {
		fmt.Fprintf(b, "Preview %s\n", *s.PreviewURL)
	}
}

func (m Model) viewSurface(b *strings.Builder) {
	st := m.panel.integrator.State()
	d := m.panel.integrator.Diagnostics()
	fmt.Fprintf(b, "Surface  injected %s  verified %s  ready %s",
		mark(st.ListenerInjected), mark(st.ListenerVerified), mark(st.ForeignReady))
	if d.Attempts > 0 {
		fmt.Fprintf(b, "  %s", faintStyle.Render(fmt.Sprintf("attempts=%d strategy=%s cross-origin=%t", d.Attempts, d.Strategy, d.CrossOrigin)))
	}
	b.WriteString("\n")
	if c := d.Connectivity; c != nil {
		if c.Reachable {
			fmt.Fprintf(b, "Origin   %s reachable via %s\n", c.Origin, c.Method)
		} else {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Origin   %s unreachable: %v", c.Origin, c.Err)))
			b.WriteString("\n")
		}
	}
	if res := m.panel.Result(); res != nil && !res.OK && res.Err != nil {
		b.WriteString(errorStyle.Render("Surface unavailable: " + res.Err.Error()))
		b.WriteString("\n")
	}
}

func mark(ok bool) string {
	if ok {
		return okStyle.Render("yes")
	}
	return faintStyle.Render("no")
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}

// RunView shows the terminal view until the user quits or ctx is done.
func RunView(ctx context.Context, p *Panel, history *logging.History, opts ...tea.ProgramOption) error {
	prog := tea.NewProgram(NewModel(p, history), opts...)
	p.Observe(func() { prog.Send(changedMsg{}) })

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		prog.Quit()
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("terminal view: %w", err)
	}
	return nil
}
