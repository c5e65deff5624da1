package views

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/ui/keys"
	"github.com/tgienger/teamflow/internal/ui/styles"
)

// BootingView shows a spinner while the session is restored
type BootingView struct {
	styles  *styles.Styles
	keys    keys.KeyMap
	spinner spinner.Model

	width  int
	height int
}

func NewBootingView() *BootingView {
	s := styles.NewStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.Spinner
	return &BootingView{styles: s, keys: keys.DefaultKeyMap(), spinner: sp}
}

func (v *BootingView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Init starts the spinner
func (v *BootingView) Init() tea.Cmd {
	return v.spinner.Tick
}

// Tick advances the spinner
func (v *BootingView) Tick(msg spinner.TickMsg) tea.Cmd {
	var cmd tea.Cmd
	v.spinner, cmd = v.spinner.Update(msg)
	return cmd
}

func (v *BootingView) Update(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, v.keys.Quit) {
		return tea.Quit
	}
	return nil
}

func (v *BootingView) View() string {
	content := v.spinner.View() + " " + v.styles.TitleMuted.Render("Connecting to TeamFlow…")
	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}

// UnreachableView explains that the backend could not be reached
type UnreachableView struct {
	ctrl   *board.Controller
	apiURL string
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int
}

func NewUnreachableView(ctrl *board.Controller, apiURL string) *UnreachableView {
	return &UnreachableView{
		ctrl:   ctrl,
		apiURL: apiURL,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
}

func (v *UnreachableView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func (v *UnreachableView) Update(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return tea.Quit
	case key.Matches(msg, v.keys.Refresh):
		return v.ctrl.Retry()
	}
	return nil
}

func (v *UnreachableView) View() string {
	s := v.styles
	textWidth := clamp(styles.ContentWidth(v.width)-10, 20, 70)

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Error.Bold(true).Render("TeamFlow is unavailable"),
		"",
		lipgloss.NewStyle().Width(textWidth).Render(api.Describe(v.ctrl.Unreachable())),
		"",
		s.TitleMuted.Render("API: ")+v.apiURL,
		s.Help.Render(s.HelpKey.Render("r")+" retry • "+s.HelpKey.Render("q")+" quit"),
	)
	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
