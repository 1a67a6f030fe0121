// Package historyui provides the Bubble Tea browser for completed interviews.
package historyui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/report"
)

const (
	tabOverview = iota
	tabInterviews
	tabDetails
)

const (
	plotHeight   = 8
	defaultWidth = 80
	dateLayout   = "2006-01-02 15:04"
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// Source supplies completed sessions. *store.Store implements it.
type Source interface {
	report.Source
	Load(ctx context.Context) ([]model.Session, error)
}

// Model implements the Bubble Tea history UI.
type Model struct {
	src    Source
	filter model.HistoryFilter

	history  report.History
	sessions map[string]model.Session
	errMsg   string

	tabs      []string
	activeTab int
	overview  viewport.Model
	details   viewport.Model
	table     table.Model
	selected  string

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a history UI model.
func NewModel(src Source, filter model.HistoryFilter) *Model {
	m := &Model{
		src:    src,
		filter: filter,
		tabs:   []string{"Overview", "Interviews", "Details"},
	}
	m.overview = viewport.New(0, 0)
	m.details = viewport.New(0, 0)
	m.table = table.New(table.WithStyles(tableStyles()))
	m.initInputs()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabInterviews {
				m.selectRow()
				m.activeTab = tabDetails
				m.table.Blur()
				return m, tea.ClearScreen
			}
			return m, nil
		}
		return m, m.scroll(msg)
	}
	return m, nil
}

func (m *Model) scroll(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	switch m.activeTab {
	case tabInterviews:
		m.table, cmd = m.table.Update(msg)
		m.selectRow()
	case tabDetails:
		m.details, cmd = m.details.Update(msg)
	default:
		m.overview, cmd = m.overview.Update(msg)
	}
	return cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Candidate: "),
		newFilterInput("Role: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
	}
	m.setInputsFromFilter()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromFilter() {
	m.filterInputs[0].SetValue(m.filter.Candidate)
	m.filterInputs[1].SetValue(m.filter.Role)
	if m.filter.Since != nil {
		m.filterInputs[2].SetValue(m.filter.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[2].SetValue("")
	}
	if m.filter.Last > 0 {
		m.filterInputs[3].SetValue(strconv.Itoa(m.filter.Last))
	} else {
		m.filterInputs[3].SetValue("")
	}
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width, m.overview.Height = m.width, bodyHeight
	m.details.Width, m.details.Height = m.width, bodyHeight
	m.table.SetColumns(tableColumns(m.width))
	m.table.SetWidth(m.width)
	m.table.SetHeight(maxInt(1, bodyHeight-1))
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabInterviews {
		m.table.Focus()
	} else {
		m.table.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	return m.renderTabs() + "\n" + headerStyle.Render(truncateLine(m.filterSummary(), m.width))
}

func (m *Model) filterSummary() string {
	candidate, role, since, last := "any", "any", "any", "all"
	if m.filter.Candidate != "" {
		candidate = m.filter.Candidate
	}
	if m.filter.Role != "" {
		role = m.filter.Role
	}
	if m.filter.Since != nil {
		since = m.filter.Since.Format("2006-01-02")
	}
	if m.filter.Last > 0 {
		last = strconv.Itoa(m.filter.Last)
	}
	return fmt.Sprintf("Filter: candidate=%s  role=%s  since=%s  last=%s", candidate, role, since, last)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Filter: /  Quit: q"
	if m.activeTab == tabInterviews {
		help = "Nav: left/right  Select: up/down  Open: enter  Filter: /  Quit: q"
	}
	help = headerStyle.Render(help)
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody() string {
	if m.filterMode {
		return m.renderFilterForm()
	}
	switch m.activeTab {
	case tabInterviews:
		if len(m.history.Sessions) == 0 {
			return "No completed interviews found."
		}
		return tableMutedStyle.Render(m.table.View())
	case tabDetails:
		return m.details.View()
	default:
		return m.overview.View()
	}
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Filter (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

// refresh reloads the history for the current filter.
func (m *Model) refresh() {
	ctx := context.Background()
	h, err := report.Build(ctx, m.src, m.filter)
	if err != nil {
		m.errMsg = err.Error()
		m.history = report.History{}
		m.renderContents()
		return
	}
	all, err := m.src.Load(ctx)
	if err != nil {
		m.errMsg = err.Error()
		m.history = report.History{}
		m.renderContents()
		return
	}
	m.errMsg = ""
	m.history = h
	m.sessions = make(map[string]model.Session, len(all))
	for _, s := range all {
		m.sessions[s.ID] = s
	}

	m.table.SetColumns(tableColumns(m.widthOr()))
	m.table.SetRows(tableRows(h.Sessions))
	if n := len(h.Sessions); n > 0 {
		m.table.SetCursor(n - 1)
	}
	m.selectRow()
	m.renderContents()
}

func (m *Model) selectRow() {
	row := m.table.Cursor()
	if row < 0 || row >= len(m.history.Sessions) {
		m.selected = ""
	} else {
		m.selected = m.history.Sessions[row].SessionID
	}
	m.details.SetContent(m.renderDetails())
	m.details.GotoTop()
}

func (m *Model) renderContents() {
	m.overview.SetContent(renderOverview(m.history, m.widthOr()))
	m.details.SetContent(m.renderDetails())
}

func (m *Model) widthOr() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func (m *Model) renderDetails() string {
	if m.errMsg != "" {
		return "Failed to load history."
	}
	s, ok := m.sessions[m.selected]
	if m.selected == "" || !ok {
		return "Select an interview on the Interviews tab."
	}
	return renderSession(s, m.widthOr())
}

func renderOverview(h report.History, width int) string {
	if len(h.Sessions) == 0 {
		return "No completed interviews found."
	}
	cards := []string{
		metricCard("Interviews", strconv.Itoa(len(h.Sessions))),
		metricCard("Average", fmt.Sprintf("%.1f", h.Average)),
		metricCard("Best", strconv.Itoa(h.Best)),
		metricCard("Worst", strconv.Itoa(h.Worst)),
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	if width < 60 {
		summary = strings.Join(cards, "\n")
	}

	var buf bytes.Buffer
	if err := report.RenderTrend(&buf, h.Scores(), maxInt(10, width-8), plotHeight); err != nil {
		return summary + "\n\n" + fmt.Sprintf("Failed to render trend: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderSession(s model.Session, width int) string {
	text := lipgloss.NewStyle().Width(maxInt(20, width-2))
	lines := []string{
		labelStyle.Render("Candidate: ") + s.Candidate,
		labelStyle.Render("Role: ") + text.Render(s.Role),
		labelStyle.Render("Completed: ") + s.CompletedAt.Local().Format(dateLayout),
	}
	if s.Score != nil {
		lines = append(lines, labelStyle.Render("Score: ")+fmt.Sprintf("%d/100", *s.Score))
	}
	if s.Summary != "" {
		lines = append(lines, "", text.Render(s.Summary))
	}
	for i, q := range s.Questions {
		heading := fmt.Sprintf("Q%d [%s]", i+1, q.Difficulty)
		var a *model.Answer
		if i < len(s.Answers) {
			a = &s.Answers[i]
		}
		if a != nil && a.Score != nil {
			heading += fmt.Sprintf(" %.1f/10", *a.Score)
		}
		if a != nil && a.Fallback {
			heading += " (offline)"
		}
		lines = append(lines, "", cardValueStyle.Render(heading), text.Render(q.Text))
		if a == nil {
			continue
		}
		lines = append(lines, labelStyle.Render("Answer: ")+text.Render(a.Text))
		if a.Feedback != "" {
			lines = append(lines, labelStyle.Render("Feedback: ")+text.Render(a.Feedback))
		}
	}
	return strings.Join(lines, "\n")
}

func tableColumns(width int) []table.Column {
	cols := []table.Column{
		{Title: "Date", Width: 16},
		{Title: "Candidate", Width: 14},
		{Title: "Role", Width: 20},
		{Title: "Score", Width: 5},
		{Title: "Fallbacks", Width: 9},
	}
	used := 0
	for _, c := range cols {
		used += c.Width + 1
	}
	return append(cols, table.Column{Title: "Summary", Width: maxInt(10, width-used-1)})
}

func tableRows(sessions []model.SessionAggregate) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, table.Row{
			s.CompletedAt.Local().Format(dateLayout),
			s.Candidate,
			s.Role,
			strconv.Itoa(s.Score),
			strconv.Itoa(s.Fallbacks),
			strings.Join(strings.Fields(s.Summary), " "),
		})
	}
	return rows
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromFilter()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refresh()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	candidate := strings.TrimSpace(m.filterInputs[0].Value())
	role := strings.TrimSpace(m.filterInputs[1].Value())

	sinceInput := strings.TrimSpace(m.filterInputs[2].Value())
	var since *time.Time
	if sinceInput != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sinceInput, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	lastInput := strings.TrimSpace(m.filterInputs[3].Value())
	last := 0
	if lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	m.filter = model.HistoryFilter{Candidate: candidate, Role: role, Since: since, Last: last}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
