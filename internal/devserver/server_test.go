package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tgienger/teamflow/internal/models"
)

const (
	testBotToken = "123456:test-token"
	testSecret   = "dev-secret"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, requireAuth bool) (*Server, *httptest.Server) {
	t.Helper()
	s := New(NewStore(SeedTasks(testNow)...), Options{
		BotToken:    testBotToken,
		BotUsername: "teamflow_bot",
		JWTSecret:   []byte(testSecret),
		RequireAuth: requireAuth,
		Now:         func() time.Time { return testNow },
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func signedPayload(fields map[string]string) string {
	fields["hash"] = SignTelegram(fields, testBotToken)
	obj := map[string]any{}
	for k, v := range fields {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && k != "hash" {
			obj[k] = n
		} else {
			obj[k] = v
		}
	}
	b, _ := json.Marshal(obj)
	return string(b)
}

func annaFields(authDate time.Time) map[string]string {
	return map[string]string{
		"id":         "1",
		"first_name": "Anna",
		"username":   "anna",
		"auth_date":  strconv.FormatInt(authDate.Unix(), 10),
	}
}

func do(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestVerifyTelegram(t *testing.T) {
	payload := signedPayload(annaFields(testNow.Add(-time.Hour)))

	u, err := VerifyTelegram([]byte(payload), testBotToken, testNow)
	if err != nil {
		t.Fatalf("VerifyTelegram: %v", err)
	}
	if u.ID != 1 || u.FirstName != "Anna" || u.Username != "anna" {
		t.Errorf("unexpected user %+v", u)
	}
}

func TestVerifyTelegramRejects(t *testing.T) {
	tampered := strings.Replace(signedPayload(annaFields(testNow)), `"Anna"`, `"Mallory"`, 1)

	tests := []struct {
		name    string
		payload string
		token   string
		want    error
	}{
		{"tampered", tampered, testBotToken, ErrBadHash},
		{"wrong bot", signedPayload(annaFields(testNow)), "other:token", ErrBadHash},
		{"expired", signedPayload(annaFields(testNow.Add(-25 * time.Hour))), testBotToken, ErrAuthExpired},
		{"no hash", `{"id":1,"auth_date":1}`, testBotToken, ErrMissingHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyTelegram([]byte(tt.payload), tt.token, testNow)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	_, srv := newTestServer(t, false)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/telegram", "", signedPayload(annaFields(testNow)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
	var res models.AuthResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.AccessToken == "" || res.User.FirstName != "Anna" {
		t.Fatalf("unexpected result %+v", res)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/me", res.AccessToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", resp.StatusCode, body)
	}
	var me models.User
	json.Unmarshal(body, &me)
	if me.ID != 1 || me.FirstName != "Anna" {
		t.Errorf("unexpected user %+v", me)
	}
}

func TestLoginRejectsTamperedPayload(t *testing.T) {
	_, srv := newTestServer(t, false)
	payload := strings.Replace(signedPayload(annaFields(testNow)), `"Anna"`, `"Mallory"`, 1)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/telegram", "", payload)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"detail"`) {
		t.Errorf("expected a detail body, got %s", body)
	}
}

func TestMeRejectsBadTokens(t *testing.T) {
	s, srv := newTestServer(t, false)

	other := New(NewStore(), Options{JWTSecret: []byte("other"), Now: func() time.Time { return testNow }})
	foreign, _ := other.IssueToken(models.User{ID: 1})

	expiredSrv := New(NewStore(), Options{JWTSecret: []byte(testSecret), Now: func() time.Time { return testNow.Add(-48 * time.Hour) }})
	expired, _ := expiredSrv.IssueToken(models.User{ID: 1})

	for name, tok := range map[string]string{"missing": "", "foreign": foreign, "expired": expired, "garbage": "abc"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/me", tok, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, resp.StatusCode)
		}
	}

	good, _ := s.IssueToken(models.User{ID: 9, FirstName: "Zoe"})
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/me", good, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for a valid token, got %d", resp.StatusCode)
	}
}

func TestTasksAndStats(t *testing.T) {
	_, srv := newTestServer(t, false)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/tasks?status=DONE", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tasks: %d %s", resp.StatusCode, body)
	}
	var tasks []models.Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Ship" {
		t.Errorf("unexpected DONE tasks %+v", tasks)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/tasks?assignee_telegram_id=1001", "", "")
	json.Unmarshal(body, &tasks)
	if len(tasks) != 2 {
		t.Errorf("expected two tasks for the assignee, got %d", len(tasks))
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/tasks?status=LATER", "", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown status, got %d", resp.StatusCode)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/stats", "", "")
	var st models.Stats
	json.Unmarshal(body, &st)
	if st != (models.Stats{Total: 4, Todo: 1, Doing: 1, Done: 1, Blocked: 1}) {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestTaskDetail(t *testing.T) {
	_, srv := newTestServer(t, false)

	_, body := do(t, http.MethodGet, srv.URL+"/api/tasks/4", "", "")
	var d models.TaskDetail
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Title != "Migrate database" || len(d.Blockers) != 1 {
		t.Errorf("unexpected detail %+v", d)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/tasks/99", "", "")
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "Task not found") {
		t.Errorf("expected 404 Task not found, got %d %s", resp.StatusCode, body)
	}
}

func TestRequireAuth(t *testing.T) {
	s, srv := newTestServer(t, true)

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/tasks", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", resp.StatusCode)
	}

	tok, _ := s.IssueToken(models.User{ID: 1})
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/tasks", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a token, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/bot-info", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bot info must stay public, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, false)
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "healthy") {
		t.Errorf("unexpected health response %d %s", resp.StatusCode, body)
	}
}
