package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tgienger/teamflow/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewWithHTTPClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("localhost:8180"); err == nil {
		t.Error("expected error for URL without scheme")
	}
	if _, err := New("ftp://example.com"); err == nil {
		t.Error("expected error for non-http scheme")
	}
	c, err := New("http://localhost:8180/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BaseURL() != "http://localhost:8180" {
		t.Errorf("expected trailing slash trimmed, got %q", c.BaseURL())
	}
}

func TestBotInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/bot-info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("bot-info must be anonymous")
		}
		io.WriteString(w, `{"username":"teamflow_bot"}`)
	})

	info, err := c.BotInfo(context.Background())
	if err != nil {
		t.Fatalf("BotInfo: %v", err)
	}
	if info.Username != "teamflow_bot" {
		t.Errorf("expected teamflow_bot, got %q", info.Username)
	}
}

func TestMeSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		io.WriteString(w, `{"id":1,"first_name":"Anna"}`)
	})

	user, err := c.Me(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.ID != 1 || user.FirstName != "Anna" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestMeUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Invalid token"}`)
	})

	_, err := c.Me(context.Background(), "expired")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Detail != "Invalid token" || apiErr.Status != 401 {
		t.Errorf("unexpected error detail: %#v", apiErr)
	}
}

func TestTasksFilterQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `[{"id":3,"title":"Ship","status":"DONE","created_at":"2024-01-01T00:00:00Z"}]`)
	})

	tasks, err := c.Tasks(context.Background(), "", models.FilterBy(models.StatusDone))
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if gotQuery != "status=DONE" {
		t.Errorf("expected status=DONE, got %q", gotQuery)
	}
	if len(tasks) != 1 || tasks[0].ID != 3 || tasks[0].Status != models.StatusDone {
		t.Errorf("unexpected tasks %+v", tasks)
	}

	if _, err := c.Tasks(context.Background(), "", models.NoFilter); err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if gotQuery != "" {
		t.Errorf("expected no query without filter, got %q", gotQuery)
	}
}

func TestTasksNullBodyIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `null`)
	})
	tasks, err := c.Tasks(context.Background(), "", models.NoFilter)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", tasks)
	}
}

func TestExchangeTelegram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/telegram" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["hash"] != "abc" {
			t.Errorf("payload not forwarded verbatim: %v", payload)
		}
		io.WriteString(w, `{"access_token":"jwt","user":{"id":1,"first_name":"Anna"}}`)
	})

	res, err := c.ExchangeTelegram(context.Background(), json.RawMessage(`{"id":1,"hash":"abc"}`))
	if err != nil {
		t.Fatalf("ExchangeTelegram: %v", err)
	}
	if res.AccessToken != "jwt" || res.User.FirstName != "Anna" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestExchangeTelegramMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user":{"id":1}}`)
	})
	_, err := c.ExchangeTelegram(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestServerErrorIsBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"database is locked"}`)
	})
	_, err := c.Stats(context.Background(), "")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrUnauthorized) {
		t.Errorf("error misclassified: %v", err)
	}
	if got := Describe(err); !strings.Contains(got, "database is locked") {
		t.Errorf("Describe should include detail, got %q", got)
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.BotInfo(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if got := Describe(err); strings.Contains(got, "connection refused") {
		t.Errorf("Describe leaked transport error: %q", got)
	}
}

func TestTaskDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"id":42,"title":"Deploy","status":"BLOCKED","created_at":"2024-01-01T00:00:00",
			"blockers":[{"id":1,"task_id":42,"text":"waiting on ops","created_at":"2024-01-02T00:00:00"}]}`)
	})
	d, err := c.Task(context.Background(), "", 42)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if d.ID != 42 || len(d.Blockers) != 1 || d.Blockers[0].Text != "waiting on ops" {
		t.Errorf("unexpected detail %+v", d)
	}
}
