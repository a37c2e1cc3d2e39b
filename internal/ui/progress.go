package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"autofix/internal/fix"
)

type progressModel struct {
	title   string
	events  <-chan fix.Event
	spinner spinner.Model
	prog    progress.Model
	items   []ruleItem
	index   map[string]int
	state   fix.State
	pass    int
	applied int
	target  string
	failure string
	width   int
	done    bool
}

type ruleItem struct {
	rule   string
	status string
	count  int
}

type eventMsg fix.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders the fix loop of
// one project, one row per requested rule.
func NewProgressModel(title string, rules []string, events <-chan fix.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int, len(rules)),
		width:   80,
	}
	for _, rule := range rules {
		m.addRule(rule)
	}
	return m
}

func (m *progressModel) addRule(rule string) int {
	if idx, ok := m.index[rule]; ok {
		return idx
	}
	m.items = append(m.items, ruleItem{rule: rule, status: "pending"})
	m.index[rule] = len(m.items) - 1
	return len(m.items) - 1
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(fix.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
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
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%s, pass %d)", m.title, m.state, m.pass)
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := m.width - statusWidth - 12
	if nameWidth < 20 {
		nameWidth = 20
	}
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %-8s %s\n", status, truncate(item.rule, nameWidth), countLabel(item.count))
	}
	if m.target != "" && !m.done {
		fmt.Fprintf(&b, "\n  %s\n", truncate(m.target, m.width-2))
	}
	if m.failure != "" {
		b.WriteString("\n  ")
		b.WriteString(styleStatus("failed").Render(truncate(m.failure, m.width-2)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done && m.state == fix.Converged {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev fix.Event) tea.Cmd {
	m.state = ev.State
	m.pass = ev.Pass
	switch ev.State {
	case fix.Analyzing:
		for i := range m.items {
			if m.items[i].status == "fixing" {
				m.items[i].status = "fixed"
			}
		}
		m.target = ""
	case fix.Selecting:
		total := m.applied + ev.Remaining
		if total == 0 {
			return nil
		}
		return m.prog.SetPercent(float64(m.applied) / float64(total))
	case fix.ApplyingBatch, fix.ApplyingSingle:
		idx := m.addRule(ev.Rule)
		m.items[idx].status = "fixing"
		m.target = ev.Path
	case fix.Reloading:
		idx := m.addRule(ev.Rule)
		m.items[idx].count += ev.Count
		m.applied += ev.Count
	case fix.Converged:
		for i := range m.items {
			m.items[i].status = "done"
		}
		return m.prog.SetPercent(1.0)
	case fix.Failed:
		for i := range m.items {
			if m.items[i].status == "fixing" {
				m.items[i].status = "failed"
			}
		}
		if ev.Err != nil {
			m.failure = ev.Err.Error()
		}
	}
	return nil
}

// Summary lists the rules with applied fixes, most fixed first.
func Summary(applied map[string]int) []string {
	rules := make([]string, 0, len(applied))
	for rule, n := range applied {
		if n > 0 {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if applied[rules[i]] != applied[rules[j]] {
			return applied[rules[i]] > applied[rules[j]]
		}
		return rules[i] < rules[j]
	})
	return rules
}

func countLabel(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "1 fix"
	default:
		return fmt.Sprintf("%d fixes", n)
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done", "fixed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "fixing":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
