package views

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/ui/keys"
	"github.com/tgienger/teamflow/internal/ui/styles"
)

// LoginView is the sign in surface shown while signed out
type LoginView struct {
	ctrl   *board.Controller
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int
}

func NewLoginView(ctrl *board.Controller) *LoginView {
	return &LoginView{
		ctrl:   ctrl,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
}

func (v *LoginView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func (v *LoginView) Update(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return tea.Quit
	case key.Matches(msg, v.keys.Refresh):
		return v.ctrl.Retry()
	}
	return nil
}

func (v *LoginView) View() string {
	return renderLoginPanel(v.styles, v.ctrl, v.width, v.height)
}

func renderLoginPanel(s *styles.Styles, ctrl *board.Controller, width, height int) string {
	contentWidth := styles.ContentWidth(width)
	textWidth := clamp(contentWidth-10, 20, 70)
	text := lipgloss.NewStyle().Width(textWidth)

	rows := []string{s.Title.Render("Sign in to TeamFlow"), ""}
	if notice := ctrl.Notice(); notice != "" {
		rows = append(rows, s.Notice.Render(notice), "")
	}

	switch {
	case ctrl.WidgetError() != nil:
		rows = append(rows,
			s.Error.Render("The login page could not be started."),
			text.Render(s.TitleMuted.Render(ctrl.WidgetError().Error())),
		)
	case ctrl.LoginURL() == "":
		rows = append(rows, s.TitleMuted.Render("Preparing the Telegram login…"))
	default:
		rows = append(rows,
			text.Render("Open this page in your browser and sign in with Telegram as "+
				s.User.Render("@"+ctrl.BotUsername())+":"),
			"",
			s.Link.Render(ctrl.LoginURL()),
			"",
			s.TitleMuted.Render("This screen updates as soon as you have signed in."),
		)
	}

	if ctrl.LoggingIn() {
		rows = append(rows, "", s.TitleMuted.Render("Signing in…"))
	}
	if err := ctrl.AuthError(); err != nil {
		rows = append(rows, "", s.Error.Render(api.Describe(err)))
	}

	hints := ""
	if ctrl.WidgetError() != nil {
		hints = fmt.Sprintf("%s retry • ", s.HelpKey.Render("r"))
	}
	if ctrl.Mode() == board.AuthOptional {
		hints += fmt.Sprintf("%s back • ", s.HelpKey.Render("esc"))
	}
	rows = append(rows, s.Help.Render(hints+s.HelpKey.Render("q")+" quit"))

	padded := lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return styles.CenterView(padded, width, height)
}
