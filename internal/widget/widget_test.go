package widget

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInjectIsIdempotent(t *testing.T) {
	s := New("127.0.0.1:0")
	defer s.Close()

	first, err := s.Inject("teamflow_bot")
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	second, err := s.Inject("other_bot")
	if err != nil {
		t.Fatalf("second Inject: %v", err)
	}
	if first != second {
		t.Errorf("expected same URL, got %q and %q", first, second)
	}
	if s.Injections() != 1 {
		t.Errorf("expected one listener, got %d", s.Injections())
	}

	resp, err := http.Get(first)
	if err != nil {
		t.Fatalf("GET login page: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page := string(body)
	if !strings.Contains(page, `data-telegram-login="teamflow_bot"`) {
		t.Error("page does not target the first bot")
	}
	if !strings.Contains(page, ScriptURL) {
		t.Error("page does not load the widget script")
	}
	if !strings.Contains(page, "onTelegramAuth(user)") {
		t.Error("page does not wire the onauth callback")
	}
}

func TestCallbackDeliversPayload(t *testing.T) {
	s := New("127.0.0.1:0")
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	payload := `{"id":1,"first_name":"Anna","auth_date":1700000000,"hash":"abc"}`
	resp, err := http.Post(srv.URL+"/callback/"+s.state, "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case got := <-s.Events():
		if string(got) != payload {
			t.Errorf("payload altered: %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("payload was not delivered")
	}
}

func TestCallbackRejectsWrongState(t *testing.T) {
	s := New("127.0.0.1:0")
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/callback/not-the-state", "application/json", strings.NewReader(`{"id":1}`))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/login/not-the-state")
	if err != nil {
		t.Fatalf("GET login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for login page, got %d", resp.StatusCode)
	}

	select {
	case got := <-s.Events():
		t.Errorf("unexpected delivery %s", got)
	default:
	}
}

func TestCallbackRejectsNonObject(t *testing.T) {
	s := New("127.0.0.1:0")
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, body := range []string{`not json`, `[]`, `{}`} {
		resp, err := http.Post(srv.URL+"/callback/"+s.state, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST callback: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestClose(t *testing.T) {
	s := New("127.0.0.1:0")
	url, err := s.Inject("teamflow_bot")
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}
	if _, err := s.Inject("teamflow_bot"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Error("listener should be shut down")
	}
}

func TestCallbackAfterCloseIsGone(t *testing.T) {
	s := New("127.0.0.1:0")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	s.Close()

	resp, err := http.Post(srv.URL+"/callback/"+s.state, "application/json", strings.NewReader(`{"id":1}`))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Errorf("expected 410, got %d", resp.StatusCode)
	}
}
