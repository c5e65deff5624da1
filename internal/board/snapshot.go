package board

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tgienger/teamflow/internal/models"
)

// Session is the signed-in identity. The zero value is signed out.
type Session struct {
	Token string
	User  models.User
}

// Authenticated reports whether the session carries a token
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Snapshot is the last successfully fetched board state
type Snapshot struct {
	Tasks        []models.Task
	TasksLoaded  bool
	TasksUpdated time.Time

	Stats        models.Stats
	StatsLoaded  bool
	StatsUpdated time.Time
}

// Updated returns the most recent fetch time of either half
func (s Snapshot) Updated() time.Time {
	if s.StatsUpdated.After(s.TasksUpdated) {
		return s.StatsUpdated
	}
	return s.TasksUpdated
}

// FetchSnapshot fetches tasks and stats concurrently, once. Both halves are
// attempted even if one fails; the first error to occur is returned
// alongside whatever succeeded.
func FetchSnapshot(ctx context.Context, backend Backend, token string, filter models.Filter) (Snapshot, error) {
	var (
		snap Snapshot
		g    errgroup.Group
	)
	g.Go(func() error {
		tasks, err := backend.Tasks(ctx, token, filter)
		if err != nil {
			return fmt.Errorf("fetch tasks: %w", err)
		}
		snap.Tasks, snap.TasksLoaded, snap.TasksUpdated = tasks, true, time.Now()
		return nil
	})
	g.Go(func() error {
		stats, err := backend.Stats(ctx, token)
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		snap.Stats, snap.StatsLoaded, snap.StatsUpdated = stats, true, time.Now()
		return nil
	})
	err := g.Wait()
	return snap, err
}
