package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/models"
	"github.com/tgienger/teamflow/internal/ui/keys"
	"github.com/tgienger/teamflow/internal/ui/styles"
)

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

var statusIcons = map[models.Status]string{
	models.StatusTodo:    "📝",
	models.StatusDoing:   "🔄",
	models.StatusDone:    "✅",
	models.StatusBlocked: "🚫",
}

// StatusIcon returns the emoji shown next to a status
func StatusIcon(st models.Status) string {
	if icon, ok := statusIcons[st]; ok {
		return icon
	}
	return "•"
}

// BoardView shows stats, the filter bar and the task cards
type BoardView struct {
	ctrl   *board.Controller
	styles *styles.Styles
	keys   keys.KeyMap
	now    func() time.Time

	width  int
	height int

	cursor  int
	scrollY int

	// Help popup (shown with ?)
	showHelpPopup bool

	// Sign in panel for optional mode
	showLogin bool
}

// NewBoardView creates the board view for ctrl
func NewBoardView(ctrl *board.Controller, now func() time.Time) *BoardView {
	if now == nil {
		now = time.Now
	}
	return &BoardView{
		ctrl:   ctrl,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
		now:    now,
	}
}

// SetSize records the terminal size
func (v *BoardView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func (v *BoardView) tasks() []models.Task {
	tasks := v.ctrl.Snapshot().Tasks
	if v.cursor >= len(tasks) {
		v.cursor = max(0, len(tasks)-1)
	}
	return tasks
}

// Update handles a key press on the board
func (v *BoardView) Update(msg tea.KeyMsg) tea.Cmd {
	// Handle help popup first - any key closes it
	if v.showHelpPopup {
		v.showHelpPopup = false
		return nil
	}

	if open, _, _, _ := v.ctrl.Detail(); open {
		return v.updateDetail(msg)
	}

	if v.loginOpen() {
		switch {
		case key.Matches(msg, v.keys.Quit):
			return tea.Quit
		case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Login):
			v.showLogin = false
		case key.Matches(msg, v.keys.Refresh):
			return v.ctrl.Retry()
		}
		return nil
	}

	tasks := v.tasks()
	switch {
	case key.Matches(msg, v.keys.Quit):
		return tea.Quit

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return nil

	case key.Matches(msg, v.keys.Enter):
		if len(tasks) > 0 {
			return v.ctrl.OpenTask(tasks[v.cursor].ID)
		}
		return nil

	case key.Matches(msg, v.keys.Left):
		return v.cycleFilter(-1)

	case key.Matches(msg, v.keys.Right), key.Matches(msg, v.keys.Filter):
		return v.cycleFilter(1)

	case key.Matches(msg, v.keys.Refresh):
		return v.ctrl.Refresh()

	case key.Matches(msg, v.keys.Login):
		if v.ctrl.Mode() == board.AuthOptional && !v.ctrl.Session().Authenticated() {
			v.showLogin = true
			return v.ctrl.AcquireLoginWidget()
		}
		return nil

	case key.Matches(msg, v.keys.SignOut):
		v.cursor, v.scrollY = 0, 0
		return v.ctrl.SignOut()

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return nil
	}

	for i, b := range v.keys.Filters {
		if key.Matches(msg, b) && i < len(models.Filters) {
			return v.setFilter(models.Filters[i])
		}
	}
	return nil
}

func (v *BoardView) updateDetail(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return tea.Quit
	case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Enter):
		v.ctrl.CloseTask()
	}
	return nil
}

func (v *BoardView) cycleFilter(dir int) tea.Cmd {
	current := 0
	for i, f := range models.Filters {
		if f == v.ctrl.Filter() {
			current = i
			break
		}
	}
	n := len(models.Filters)
	return v.setFilter(models.Filters[(current+dir+n)%n])
}

func (v *BoardView) setFilter(f models.Filter) tea.Cmd {
	if f != v.ctrl.Filter() {
		v.cursor, v.scrollY = 0, 0
	}
	return v.ctrl.SetFilter(f)
}

func (v *BoardView) visibleItems() int {
	// Each task item is 2 lines + 1 margin = 3 lines
	availableHeight := v.height - 14
	if availableHeight < 3 {
		availableHeight = 3
	}
	return max(availableHeight/3, 1)
}

func (v *BoardView) ensureVisible() {
	visibleItems := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

// View renders the board
// loginOpen reports whether the sign in panel is up. The panel closes once a
// session exists.
func (v *BoardView) loginOpen() bool {
	if v.showLogin && v.ctrl.Session().Authenticated() {
		v.showLogin = false
	}
	return v.showLogin
}

func (v *BoardView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if open, _, _, _ := v.ctrl.Detail(); open {
		return v.renderTaskView()
	}

	if v.loginOpen() {
		return renderLoginPanel(v.styles, v.ctrl, v.width, v.height)
	}

	var b strings.Builder

	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(v.renderStats())
	b.WriteString("\n")
	b.WriteString(v.renderFilterBar())
	b.WriteString("\n\n")
	b.WriteString(v.renderTaskList())
	b.WriteString("\n")
	b.WriteString(v.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *BoardView) renderHeader() string {
	s := v.styles
	title := s.Title.Render("TeamFlow")

	var who string
	if sess := v.ctrl.Session(); sess.Authenticated() {
		who = s.TitleMuted.Render("signed in as ") + s.User.Render(sess.User.DisplayName())
	} else if v.ctrl.Mode() == board.AuthOptional {
		who = s.TitleMuted.Render("read-only · press ") + s.HelpKey.Render("l") + s.TitleMuted.Render(" to sign in")
	} else {
		who = s.TitleMuted.Render("public board")
	}

	header := title + "  " + who
	if notice := v.ctrl.Notice(); notice != "" {
		header += "\n" + s.Notice.Render(notice)
	}
	return header
}

func (v *BoardView) renderStats() string {
	s := v.styles
	snap := v.ctrl.Snapshot()
	if !snap.StatsLoaded {
		return s.TitleMuted.Render("Loading stats…")
	}

	parts := []string{
		s.StatLabel.Render("Total ") + s.StatValue.Render(fmt.Sprint(snap.Stats.Total)),
	}
	for _, st := range models.Statuses {
		parts = append(parts,
			StatusIcon(st)+" "+s.StatLabel.Render(string(st)+" ")+s.Status(st).Render(fmt.Sprint(snap.Stats.Count(st))),
		)
	}
	return strings.Join(parts, "   ")
}

func (v *BoardView) renderFilterBar() string {
	s := v.styles
	var buttons []string
	for i, f := range models.Filters {
		label := fmt.Sprintf("%d %s", i+1, f)
		if f == v.ctrl.Filter() {
			buttons = append(buttons, s.FilterActive.Render(label))
		} else {
			buttons = append(buttons, s.FilterButton.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, buttons...)
}

func (v *BoardView) renderTaskList() string {
	s := v.styles
	snap := v.ctrl.Snapshot()

	if !snap.TasksLoaded {
		return s.TitleMuted.Render("Loading tasks…")
	}
	tasks := v.tasks()
	if len(tasks) == 0 {
		if f := v.ctrl.Filter(); !f.IsNone() {
			return s.TitleMuted.Render(fmt.Sprintf("No %s tasks.", f))
		}
		return s.TitleMuted.Render("No tasks yet.")
	}

	v.ensureVisible()
	endIdx := min(v.scrollY+v.visibleItems(), len(tasks))

	var items []string
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(tasks[i], i == v.cursor))
	}
	if len(tasks) > endIdx-v.scrollY {
		items = append(items, s.TitleMuted.Render(fmt.Sprintf("  %d–%d of %d", v.scrollY+1, endIdx, len(tasks))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *BoardView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	width := max(contentWidth-4, 20)

	titleLine := StatusIcon(task.Status) + " " + task.Title
	if task.Overdue(v.now()) {
		titleLine += " " + s.Overdue.Render("⚠ overdue")
	}

	meta := []string{fmt.Sprintf("#%d", task.ID), s.Status(task.Status).Render(string(task.Status))}
	if task.AssigneeName != "" {
		meta = append(meta, "@"+task.AssigneeName)
	}
	if task.DueDate != nil {
		meta = append(meta, "due "+task.DueDate.Local().Format("Jan 2"))
	}
	metaLine := strings.Join(meta, " · ")

	// Apply styling based on selection state
	var titleStyle, metaStyle lipgloss.Style
	if selected {
		titleStyle = s.ListSelected.Width(width)
		metaStyle = s.ListSelected.Bold(false).Width(width)
	} else {
		titleStyle = s.ListItem.Width(width)
		metaStyle = s.ListItem.Foreground(styles.Current.ForegroundDim).Width(width)
	}

	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(titleLine), metaStyle.Render(metaLine)) + "\n"
}

func (v *BoardView) renderStatusBar() string {
	s := v.styles
	line := fmt.Sprintf("⟳ auto-refresh every %s", v.ctrl.PollInterval())
	if updated := v.ctrl.Snapshot().Updated(); !updated.IsZero() {
		line += " · updated " + updated.Local().Format("15:04:05")
	}
	bar := s.StatusBar.Render(line)
	if err := v.ctrl.LastPollError(); err != nil {
		bar += s.Error.Render("· refresh failed: " + api.Describe(err))
	}
	return bar
}

func (v *BoardView) renderHelp() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	// At narrow widths, show hint to press ? for help
	if contentWidth > 0 && contentWidth < 50 {
		return s.Help.Render(s.HelpKey.Render("?") + " help")
	}

	account := s.HelpKey.Render("o") + " sign out"
	if !v.ctrl.Session().Authenticated() {
		account = ""
		if v.ctrl.Mode() == board.AuthOptional {
			account = s.HelpKey.Render("l") + " sign in"
		}
	}

	items := []string{
		s.HelpKey.Render("↑↓") + " move",
		s.HelpKey.Render("←→") + " filter",
		s.HelpKey.Render("↵") + " view",
		s.HelpKey.Render("r") + " refresh",
	}
	if account != "" {
		items = append(items, account)
	}
	items = append(items, s.HelpKey.Render("?")+" help", s.HelpKey.Render("q")+" quit")
	return s.Help.Render(strings.Join(items, " • "))
}

func (v *BoardView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	helpItems := []string{
		s.HelpKey.Render("↑/↓") + "    move",
		s.HelpKey.Render("←/→") + "    previous/next filter",
		s.HelpKey.Render("1-5") + "    pick filter",
		s.HelpKey.Render("f") + "      cycle filter",
		s.HelpKey.Render("↵") + "      view task",
		s.HelpKey.Render("r") + "      refresh now",
	}
	switch {
	case v.ctrl.Session().Authenticated():
		helpItems = append(helpItems, s.HelpKey.Render("o")+"      sign out")
	case v.ctrl.Mode() == board.AuthOptional:
		helpItems = append(helpItems, s.HelpKey.Render("l")+"      sign in")
	}
	helpItems = append(helpItems,
		s.HelpKey.Render("esc")+"    back",
		s.HelpKey.Render("q")+"      quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Panel.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *BoardView) renderTaskView() string {
	s := v.styles
	_, task, loading, err := v.ctrl.Detail()
	maxContentWidth := styles.ContentWidth(v.width)
	textWidth := clamp(maxContentWidth-10, 20, 70)
	help := s.Help.Render(fmt.Sprintf("%s back • %s quit", s.HelpKey.Render("esc"), s.HelpKey.Render("q")))

	var content string
	switch {
	case loading:
		content = lipgloss.JoinVertical(lipgloss.Left, s.TitleMuted.Render("Loading task…"), help)
	case err != nil:
		content = lipgloss.JoinVertical(lipgloss.Left, s.Error.Render(api.Describe(err)), help)
	default:
		content = v.renderTaskDetail(task, textWidth, help)
	}

	// Return with padding, not centered vertically, but horizontally centered if wide
	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}

func (v *BoardView) renderTaskDetail(task models.TaskDetail, textWidth int, help string) string {
	s := v.styles
	labelStyle := s.TitleMuted
	text := lipgloss.NewStyle().Width(textWidth)
	orNone := func(str, none string) string {
		if strings.TrimSpace(str) == "" {
			return s.TitleMuted.Render(none)
		}
		return text.Render(str)
	}

	status := StatusIcon(task.Status) + " " + s.Status(task.Status).Render(string(task.Status))
	if task.Overdue(v.now()) {
		status += "  " + s.Overdue.Render("⚠ overdue")
	}

	due := "None"
	if task.DueDate != nil {
		due = task.DueDate.Local().Format("Mon Jan 2, 2006")
	}

	var blockers string
	if len(task.Blockers) == 0 {
		blockers = s.TitleMuted.Render("No blockers")
	} else {
		var lines []string
		for _, bl := range task.Blockers {
			lines = append(lines, lipgloss.JoinVertical(lipgloss.Left,
				s.TitleMuted.Render(bl.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM")),
				text.Render("🚫 "+bl.Text),
			))
		}
		blockers = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := []string{
		s.Title.MarginBottom(1).Render(fmt.Sprintf("#%d %s", task.ID, task.Title)),
		status,
		"",
		labelStyle.Render("Assignee"),
		orNone(task.AssigneeName, "Unassigned"),
		"",
		labelStyle.Render("Due"),
		due,
		"",
		labelStyle.Render("Description"),
		orNone(task.Description, "No description"),
		"",
		labelStyle.Render("Definition of done"),
		orNone(task.DefinitionOfDone, "Not set"),
		"",
		labelStyle.Render("Blockers"),
		blockers,
		"",
		labelStyle.Render(fmt.Sprintf("Created %s", task.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM"))),
	}
	if task.Source != "" {
		rows = append(rows, labelStyle.Render("Source: "+task.Source))
	}
	rows = append(rows, "", help)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
