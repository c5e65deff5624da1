package board

import (
	"context"
	"errors"
	"testing"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/models"
)

func TestFetchSnapshot(t *testing.T) {
	f := newFakeBackend()
	seedTasks(f)

	snap, err := FetchSnapshot(context.Background(), f, "tok", models.FilterBy(models.StatusDone))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !snap.TasksLoaded || !snap.StatsLoaded {
		t.Fatalf("expected both halves loaded: %+v", snap)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Status != models.StatusDone {
		t.Errorf("unexpected tasks %+v", snap.Tasks)
	}
	if snap.Stats.Total != 3 {
		t.Errorf("expected total 3, got %d", snap.Stats.Total)
	}
	if f.taskTokens[0] != "tok" {
		t.Errorf("token not forwarded: %q", f.taskTokens[0])
	}
}

func TestFetchSnapshotReturnsFailure(t *testing.T) {
	f := newFakeBackend()
	seedTasks(f)
	f.statsErr = &api.Error{Kind: api.ErrUnauthorized, Op: "fetch stats", Status: 401}

	snap, err := FetchSnapshot(context.Background(), f, "tok", models.NoFilter)
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !snap.TasksLoaded || len(snap.Tasks) != 3 {
		t.Errorf("tasks should still load: %+v", snap)
	}
	if snap.StatsLoaded {
		t.Error("stats should not be marked loaded")
	}
}
