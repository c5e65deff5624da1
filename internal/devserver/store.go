package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/tgienger/teamflow/internal/models"
)

// Store is an in-memory task table
type Store struct {
	mu    sync.RWMutex
	tasks map[int64]models.TaskDetail
}

func NewStore(tasks ...models.TaskDetail) *Store {
	s := &Store{tasks: make(map[int64]models.TaskDetail, len(tasks))}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

// Put inserts or replaces a task
func (s *Store) Put(t models.TaskDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// List returns tasks newest first, optionally filtered by status and assignee
func (s *Store) List(status models.Status, assignee *int64) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Task{}
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if assignee != nil && (t.AssigneeTelegramID == nil || *t.AssigneeTelegramID != *assignee) {
			continue
		}
		out = append(out, t.Task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Get returns one task with its blockers
func (s *Store) Get(id int64) (models.TaskDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if ok && t.Blockers == nil {
		t.Blockers = []models.Blocker{}
	}
	return t, ok
}

// Stats counts tasks per status
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.Stats
	for _, t := range s.tasks {
		st.Total++
		switch t.Status {
		case models.StatusTodo:
			st.Todo++
		case models.StatusDoing:
			st.Doing++
		case models.StatusDone:
			st.Done++
		case models.StatusBlocked:
			st.Blocked++
		}
	}
	return st
}

// SeedTasks returns a small demo board relative to now
func SeedTasks(now time.Time) []models.TaskDetail {
	at := func(d time.Duration) models.Timestamp { return models.Timestamp{Time: now.Add(d).UTC()} }
	ptr := func(ts models.Timestamp) *models.Timestamp { return &ts }
	anna := int64(1001)

	return []models.TaskDetail{
		{Task: models.Task{
			ID: 1, Title: "Prepare sprint demo", Status: models.StatusTodo,
			Description:  "Collect the highlights from this sprint.",
			AssigneeName: "anna", AssigneeTelegramID: &anna,
			DueDate: ptr(at(48 * time.Hour)), Source: "telegram", CreatedAt: at(-72 * time.Hour),
		}},
		{Task: models.Task{
			ID: 2, Title: "Fix login redirect", Status: models.StatusDoing,
			AssigneeName: "boris", DueDate: ptr(at(-24 * time.Hour)),
			DefinitionOfDone: "Users land on the board after signing in.",
			Source:           "web", CreatedAt: at(-48 * time.Hour),
		}},
		{Task: models.Task{
			ID: 3, Title: "Ship", Status: models.StatusDone,
			CreatedAt: at(-24 * time.Hour),
		}},
		{
			Task: models.Task{
				ID: 4, Title: "Migrate database", Status: models.StatusBlocked,
				AssigneeName: "anna", AssigneeTelegramID: &anna,
				Source: "telegram", CreatedAt: at(-12 * time.Hour),
			},
			Blockers: []models.Blocker{
				{ID: 1, TaskID: 4, Text: "Waiting for the new database host", CreatedAt: at(-6 * time.Hour)},
			},
		},
	}
}
