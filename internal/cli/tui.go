package cli

import (
	"context"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/config"
	"github.com/tgienger/teamflow/internal/db"
	"github.com/tgienger/teamflow/internal/ui"
	"github.com/tgienger/teamflow/internal/widget"
)

// RunTUI wires the backend client, token store and login widget into the
// board controller and runs the bubbletea program
func RunTUI(ctx context.Context, cfg *config.Config, store *db.DB) error {
	if cfg.Debug {
		if err := cfg.EnsureStateDir(); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		f, err := tea.LogToFile(cfg.DebugLogPath(), "teamflow")
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	client, err := api.New(cfg.APIURL)
	if err != nil {
		return err
	}

	var w board.Widget
	if cfg.AuthMode != board.AuthNone {
		w = widget.New(cfg.LoginAddr)
	}

	ctrl := board.New(client, store, w, board.Options{
		Mode:         cfg.AuthMode,
		PollInterval: cfg.PollInterval,
	})
	defer ctrl.Close()

	log.Printf("starting: api=%s mode=%s poll=%s", cfg.APIURL, cfg.AuthMode, cfg.PollInterval)

	p := tea.NewProgram(ui.NewApp(ctrl, cfg.APIURL), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run board: %w", err)
	}
	return nil
}
