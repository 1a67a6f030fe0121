// Package tui provides the Bubble Tea interview interface.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/intervue/internal/interview"
	"github.com/verte-zerg/intervue/internal/model"
)

const (
	defaultWidth  = 80
	inputHeight   = 6
	contentFactor = 0.70
)

// Orchestrator is the part of *interview.Orchestrator the UI drives.
type Orchestrator interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View() interview.View
	SetDraft(text string)
	SubmitAnswer(text string) tea.Cmd
	TogglePause() tea.Cmd
	RequestReset() tea.Cmd
	Retry() tea.Cmd
	Close()
}

// Model implements the Bubble Tea interview UI.
type Model struct {
	orch    Orchestrator
	input   textarea.Model
	spinner spinner.Model

	width  int
	height int

	sessionID    string
	index        int
	confirmReset bool
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	scoreStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#52C41A"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	urgentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs the interview UI around an orchestrator that has
// already been opened.
func NewModel(orch Orchestrator) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type your answer. ctrl+s submits."
	ta.ShowLineNumbers = false
	ta.SetWidth(defaultWidth)
	ta.SetHeight(inputHeight)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = noticeStyle

	m := &Model{orch: orch, input: ta, spinner: sp}
	v := orch.View()
	m.sessionID, m.index = v.SessionID, v.Index
	if v.Draft != "" {
		m.input.SetValue(v.Draft)
	}
	m.syncFocus(v)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.orch.Init(), textarea.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(m.contentWidth())
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		cmd := m.orch.Update(msg)
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		m.sync()
		return m, tea.Batch(cmd, inputCmd)
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.confirmReset {
		m.confirmReset = false
		if msg.String() == "y" || msg.String() == "Y" {
			cmd := m.orch.RequestReset()
			m.sync()
			return cmd
		}
		return nil
	}

	switch msg.String() {
	case "ctrl+c":
		m.orch.Close()
		return tea.Quit
	case "ctrl+s":
		cmd := m.orch.SubmitAnswer(m.input.Value())
		m.sync()
		return cmd
	case "ctrl+p":
		cmd := m.orch.TogglePause()
		m.sync()
		return cmd
	case "ctrl+r":
		if m.orch.View().Err != "" {
			cmd := m.orch.Retry()
			m.sync()
			return cmd
		}
		m.confirmReset = true
		return nil
	}

	if !m.input.Focused() {
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.orch.SetDraft(m.input.Value())
	return cmd
}

// sync clears the input when the question changes and only lets the
// candidate type while a countdown is running.
func (m *Model) sync() {
	v := m.orch.View()
	if v.SessionID != m.sessionID || v.Index != m.index {
		m.sessionID, m.index = v.SessionID, v.Index
		m.input.Reset()
		m.input.SetValue(v.Draft)
	}
	m.syncFocus(v)
}

func (m *Model) syncFocus(v interview.View) {
	if answering(v) {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func answering(v interview.View) bool {
	return v.Status == model.StatusInProgress && v.Question != nil && !v.Paused && !v.Evaluating
}

// View implements tea.Model.
func (m *Model) View() string {
	v := m.orch.View()
	width := m.contentWidth()

	sections := []string{m.renderHeader(v)}
	switch v.Status {
	case model.StatusNotStarted:
		sections = append(sections, m.renderWaiting(v, width))
	case model.StatusInProgress:
		sections = append(sections, m.renderQuestion(v, width))
	case model.StatusCompleted:
		sections = append(sections, renderResults(v, width))
	}
	if m.confirmReset {
		sections = append(sections, errorStyle.Render("Abandon this interview and start a new one? (y/n)"))
	}
	content := lipgloss.NewStyle().Width(width).Render(strings.Join(sections, "\n\n"))

	footer := footerStyle.Render(renderFooter(v))
	if m.width == 0 || m.height < 3 {
		return content + "\n\n" + footer
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return defaultWidth
	}
	w := int(float64(m.width) * contentFactor)
	if w < 1 {
		w = 1
	}
	return w
}

func (m *Model) renderHeader(v interview.View) string {
	header := titleStyle.Render("intervue")
	if v.Candidate != "" {
		header += mutedStyle.Render(" · " + v.Candidate)
	}
	if v.Role != "" {
		role := strings.Fields(v.Role)
		if len(role) > 8 {
			role = append(role[:8], "…")
		}
		header += mutedStyle.Render(" · " + strings.Join(role, " "))
	}
	return header
}

func (m *Model) renderWaiting(v interview.View, width int) string {
	if v.Err != "" {
		return errorStyle.Render(strings.Join(wrapText(v.Err, width), "\n"))
	}
	return m.spinner.View() + " Preparing questions…"
}

func (m *Model) renderQuestion(v interview.View, width int) string {
	if v.Question == nil {
		return m.spinner.View() + " Preparing your summary…"
	}
	lines := []string{
		mutedStyle.Render(fmt.Sprintf("Question %d of %d · %s", v.Index+1, v.Total, v.Question.Difficulty)),
		questionStyle.Render(strings.Join(wrapText(v.Question.Text, width), "\n")),
		"",
		m.input.View(),
	}
	switch {
	case v.Evaluating:
		lines = append(lines, m.spinner.View()+" Evaluating your answer…")
	case v.Paused:
		lines = append(lines, noticeStyle.Render("Paused. Press ctrl+p to continue."))
	}
	return strings.Join(lines, "\n")
}

func renderResults(v interview.View, width int) string {
	lines := []string{}
	if v.Score != nil {
		lines = append(lines, scoreStyle.Render(fmt.Sprintf("Final score: %d/100", *v.Score)))
	}
	if v.Summary != "" {
		lines = append(lines, strings.Join(wrapText(v.Summary, width), "\n"))
	}
	for i, a := range v.Answers {
		lines = append(lines, "", renderAnswer(i, a, v.Questions, width))
	}
	lines = append(lines, "", mutedStyle.Render("ctrl+r starts a new interview · ctrl+c quits"))
	return strings.Join(lines, "\n")
}

func renderAnswer(i int, a model.Answer, questions []model.Question, width int) string {
	heading := fmt.Sprintf("%d.", i+1)
	if i < len(questions) {
		heading += " [" + string(questions[i].Difficulty) + "]"
	}
	if a.Score != nil {
		heading += fmt.Sprintf(" %.1f/10", *a.Score)
	}
	if a.Fallback {
		heading += " (offline)"
	}
	lines := []string{questionStyle.Render(heading)}
	if a.Feedback != "" {
		lines = append(lines, mutedStyle.Render(strings.Join(wrapText(a.Feedback, width), "\n")))
	}
	return strings.Join(lines, "\n")
}

func renderFooter(v interview.View) string {
	segments := []string{}
	switch v.Status {
	case model.StatusInProgress:
		if v.Question != nil {
			segments = append(segments, fmt.Sprintf("Progress %d/%d", v.Index, v.Total))
			clock := formatClock(v.TimeLeft)
			switch {
			case v.Paused:
				clock += " paused"
			case v.TimeLeft <= 10:
				clock = urgentStyle.Render(clock)
			}
			segments = append(segments, "Time "+clock)
		} else {
			segments = append(segments, fmt.Sprintf("Progress %d/%d", v.Total, v.Total))
		}
	case model.StatusCompleted:
		if v.Score != nil {
			segments = append(segments, fmt.Sprintf("Score %d/100", *v.Score))
		}
	}
	if v.Notice != "" {
		segments = append(segments, noticeStyle.Render(v.Notice))
	}
	segments = append(segments, "ctrl+s submit · ctrl+p pause · ctrl+r reset · ctrl+c quit")
	return strings.Join(segments, "  ")
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
