package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/ui/views"
)

type App struct {
	ctrl        *board.Controller
	booting     *views.BootingView
	unreachable *views.UnreachableView
	login       *views.LoginView
	board       *views.BoardView
	width       int
	height      int
}

// Creates a new application around ctrl. apiURL is only shown to the user.
func NewApp(ctrl *board.Controller, apiURL string) *App {
	return newApp(ctrl, apiURL, time.Now)
}

func newApp(ctrl *board.Controller, apiURL string, now func() time.Time) *App {
	return &App{
		ctrl:        ctrl,
		booting:     views.NewBootingView(),
		unreachable: views.NewUnreachableView(ctrl, apiURL),
		login:       views.NewLoginView(ctrl),
		board:       views.NewBoardView(ctrl, now),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.ctrl.Init(), a.booting.Init())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.booting.SetSize(msg.Width, msg.Height)
		a.unreachable.SetSize(msg.Width, msg.Height)
		a.login.SetSize(msg.Width, msg.Height)
		a.board.SetSize(msg.Width, msg.Height)
		return a, nil

	case spinner.TickMsg:
		// stop ticking once booted
		if a.ctrl.Phase() != board.PhaseBooting {
			return a, nil
		}
		return a, a.booting.Tick(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		return a, a.handleKey(msg)
	}

	wasBooting := a.ctrl.Phase() == board.PhaseBooting
	cmd := a.ctrl.Update(msg)
	if !wasBooting && a.ctrl.Phase() == board.PhaseBooting {
		cmd = tea.Batch(cmd, a.booting.Init())
	}
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	wasBooting := a.ctrl.Phase() == board.PhaseBooting

	var cmd tea.Cmd
	switch a.ctrl.Phase() {
	case board.PhaseBooting:
		cmd = a.booting.Update(msg)
	case board.PhaseUnreachable:
		cmd = a.unreachable.Update(msg)
	case board.PhaseSignedOut:
		cmd = a.login.Update(msg)
	case board.PhaseBoard:
		cmd = a.board.Update(msg)
	}

	// retry and sign out can bring the spinner back
	if !wasBooting && a.ctrl.Phase() == board.PhaseBooting {
		cmd = tea.Batch(cmd, a.booting.Init())
	}
	return cmd
}

func (a *App) View() string {
	switch a.ctrl.Phase() {
	case board.PhaseUnreachable:
		return a.unreachable.View()
	case board.PhaseSignedOut:
		return a.login.View()
	case board.PhaseBoard:
		return a.board.View()
	}
	return a.booting.View()
}
