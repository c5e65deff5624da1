// Package widget hosts the Telegram login widget on a loopback HTTP listener.
//
// A terminal cannot embed the widget, so the widget page is served locally
// and the user opens it in a browser. The widget calls onTelegramAuth in the
// page, which posts the identity payload back to the listener. Payloads are
// delivered on the channel returned by Events, which exists before the
// listener starts so no callback can arrive unobserved.
//
// Telegram only renders the widget on the domain set for the bot with
// BotFather's /setdomain, so that domain has to reach the listen address.
package widget

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScriptURL is the Telegram login widget script
const ScriptURL = "https://telegram.org/js/telegram-widget.js?22"

const (
	maxPayload      = 16 << 10
	shutdownTimeout = 2 * time.Second
)

// ErrClosed is returned by Inject after Close
var ErrClosed = errors.New("login widget closed")

//go:embed login.html
var loginPage string

var loginTmpl = template.Must(template.New("login").Parse(loginPage))

// Server serves the login page and receives widget callbacks
type Server struct {
	addr  string
	state string

	events chan json.RawMessage
	done   chan struct{}

	mu       sync.Mutex
	bot      string
	url      string
	srv      *http.Server
	closed   bool
	injected int
}

// New creates an idle widget server that will listen on addr once injected
func New(addr string) *Server {
	return &Server{
		addr:   addr,
		state:  uuid.NewString(),
		events: make(chan json.RawMessage, 1),
		done:   make(chan struct{}),
	}
}

// Events delivers identity payloads posted by the widget
func (s *Server) Events() <-chan json.RawMessage {
	return s.events
}

// Done is closed when the server is closed
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Inject starts serving the widget for bot and returns the page URL. Calling
// it again returns the existing URL without starting a second listener.
func (s *Server) Inject(bot string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if s.srv != nil {
		return s.url, nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("listen for login widget on %s: %w", s.addr, err)
	}

	s.bot = bot
	s.url = fmt.Sprintf("http://%s/login/%s", ln.Addr().String(), s.state)
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.injected++

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("login widget server: %v", err)
		}
	}()

	return s.url, nil
}

// URL returns the login page URL, or "" before Inject
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Injections reports how many listeners were started
func (s *Server) Injections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

// Close stops the listener and ends event delivery
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for the login page and callback
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login/{state}", s.handleLogin)
	mux.HandleFunc("POST /callback/{state}", s.handleCallback)
	return mux
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("state") != s.state {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	bot := s.bot
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := loginTmpl.Execute(w, struct {
		Bot          string
		ScriptURL    string
		CallbackPath string
	}{
		Bot:          bot,
		ScriptURL:    ScriptURL,
		CallbackPath: "/callback/" + s.state,
	})
	if err != nil {
		log.Printf("render login page: %v", err)
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("state") != s.state {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil {
		http.Error(w, "could not read payload", http.StatusBadRequest)
		return
	}
	if len(body) > maxPayload {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || len(obj) == 0 {
		http.Error(w, "payload must be a JSON object", http.StatusBadRequest)
		return
	}

	select {
	case <-s.done:
		http.Error(w, "sign in is no longer accepted", http.StatusGone)
		return
	default:
	}

	select {
	case s.events <- json.RawMessage(body):
		w.WriteHeader(http.StatusAccepted)
	case <-s.done:
		http.Error(w, "sign in is no longer accepted", http.StatusGone)
	case <-r.Context().Done():
	}
}
