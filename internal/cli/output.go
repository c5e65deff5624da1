package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tgienger/teamflow/internal/models"
)

// Separator is printed between the stats line and the task list
const Separator = "------------"

// FormatStats writes the aggregate counts on one line.
// Format: "Total N · TODO n · DOING n · DONE n · BLOCKED n"
func FormatStats(w io.Writer, s models.Stats) {
	parts := []string{fmt.Sprintf("Total %d", s.Total)}
	for _, st := range models.Statuses {
		parts = append(parts, fmt.Sprintf("%s %d", st, s.Count(st)))
	}
	fmt.Fprintln(w, strings.Join(parts, " · "))
}

// FormatTask writes one task line.
// Format: "{ID:>4}  {STATUS:<7}  {TITLE}[  @assignee][  due YYYY-MM-DD][ (overdue)]"
func FormatTask(w io.Writer, t models.Task, now time.Time) {
	line := fmt.Sprintf("%4d  %-7s  %s", t.ID, t.Status, normalizeTitle(t.Title))
	if t.AssigneeName != "" {
		line += "  @" + t.AssigneeName
	}
	if t.DueDate != nil {
		line += "  due " + t.DueDate.Local().Format("2006-01-02")
	}
	if t.Overdue(now) {
		line += " (overdue)"
	}
	fmt.Fprintln(w, line)
}

// normalizeTitle flattens newlines and names untitled tasks
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
