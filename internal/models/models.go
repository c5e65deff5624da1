package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the workflow state of a task as reported by the backend
type Status string

const (
	StatusTodo    Status = "TODO"
	StatusDoing   Status = "DOING"
	StatusDone    Status = "DONE"
	StatusBlocked Status = "BLOCKED"
)

// Statuses lists every status in board order
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone, StatusBlocked}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Filter restricts which tasks are requested. The zero value means no filter.
type Filter struct {
	Status Status
}

// NoFilter requests every task
var NoFilter = Filter{}

// FilterBy returns a filter for a single status
func FilterBy(s Status) Filter {
	return Filter{Status: s}
}

// IsNone reports whether the filter requests all tasks
func (f Filter) IsNone() bool {
	return f.Status == ""
}

func (f Filter) String() string {
	if f.IsNone() {
		return "ALL"
	}
	return string(f.Status)
}

// Filters lists the selectable filters in display order
var Filters = []Filter{NoFilter, FilterBy(StatusTodo), FilterBy(StatusDoing), FilterBy(StatusDone), FilterBy(StatusBlocked)}

// ParseFilter parses a status name (case-insensitive). Empty and "all" mean no filter.
func ParseFilter(s string) (Filter, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "ALL" {
		return NoFilter, nil
	}
	st := Status(s)
	if !st.Valid() {
		return NoFilter, fmt.Errorf("unknown status %q (want TODO, DOING, DONE or BLOCKED)", s)
	}
	return FilterBy(st), nil
}

// Task is a single task on the board. The client never mutates tasks.
type Task struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AssigneeName       string     `json:"assignee_name,omitempty"`
	AssigneeTelegramID *int64     `json:"assignee_telegram_id,omitempty"`
	Status             Status     `json:"status"`
	DueDate            *Timestamp `json:"due_date,omitempty"`
	DefinitionOfDone   string     `json:"definition_of_done,omitempty"`
	Source             string     `json:"source,omitempty"`
	CreatedAt          Timestamp  `json:"created_at"`
	UpdatedAt          *Timestamp `json:"updated_at,omitempty"`
}

// Overdue reports whether the task is past its due date and not done
func (t Task) Overdue(now time.Time) bool {
	if t.DueDate == nil || t.Status == StatusDone {
		return false
	}
	return t.DueDate.Time.Before(now)
}

// Blocker is a note explaining why a task cannot progress
type Blocker struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	Text      string    `json:"text"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}

// TaskDetail is a task with its blockers and origin
type TaskDetail struct {
	Task
	Blockers        []Blocker `json:"blockers"`
	SourceMessageID *int64    `json:"source_message_id,omitempty"`
	SourceChatID    *int64    `json:"source_chat_id,omitempty"`
}

// Stats holds aggregate task counts computed by the backend
type Stats struct {
	Total   int `json:"total"`
	Todo    int `json:"todo"`
	Doing   int `json:"doing"`
	Done    int `json:"done"`
	Blocked int `json:"blocked"`
}

// Count returns the count for a single status
func (s Stats) Count(st Status) int {
	switch st {
	case StatusTodo:
		return s.Todo
	case StatusDoing:
		return s.Doing
	case StatusDone:
		return s.Done
	case StatusBlocked:
		return s.Blocked
	}
	return 0
}

// User is the identity behind a session
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the best human-readable name for the user
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}

// BotInfo advertises which Telegram bot the login widget targets
type BotInfo struct {
	Username string `json:"username"`
}

// AuthResult is returned by a successful login exchange
type AuthResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        User   `json:"user"`
}
