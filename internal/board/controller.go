// Package board holds the session and board controller.
//
// The controller is driven by the bubbletea event loop. Operations return
// commands that do the I/O off the loop with copies of whatever they need
// (token, filter, sequence numbers); the results come back as messages and
// are applied in Update. All state is therefore owned by the loop and needs
// no locking.
package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/models"
)

// DefaultPollInterval is how often tasks and stats are refreshed
const DefaultPollInterval = 5 * time.Second

// Backend is the subset of the TeamFlow API the controller uses
type Backend interface {
	BotInfo(ctx context.Context) (models.BotInfo, error)
	Me(ctx context.Context, token string) (models.User, error)
	ExchangeTelegram(ctx context.Context, payload json.RawMessage) (models.AuthResult, error)
	Tasks(ctx context.Context, token string, filter models.Filter) ([]models.Task, error)
	Stats(ctx context.Context, token string) (models.Stats, error)
	Task(ctx context.Context, token string, id int64) (models.TaskDetail, error)
}

// TokenStore persists the session token between runs
type TokenStore interface {
	Token() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

// Widget hosts the third-party login widget
type Widget interface {
	Inject(bot string) (string, error)
	Events() <-chan json.RawMessage
	Close() error
}

// TickFunc schedules a message after d; tea.Tick is the default
type TickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Options configures a Controller
type Options struct {
	Mode         AuthMode
	PollInterval time.Duration
	Tick         TickFunc
	Now          func() time.Time
}

type (
	bootstrapMsg struct {
		session  Session
		hadToken bool
		err      error
	}
	botInfoMsg struct {
		info models.BotInfo
		err  error
	}
	loginPayloadMsg struct {
		payload json.RawMessage
	}
	loginMsg struct {
		result  models.AuthResult
		err     error
		saveErr error
	}
	tasksMsg struct {
		scope  uint64
		seq    uint64
		filter models.Filter
		tasks  []models.Task
		err    error
	}
	statsMsg struct {
		scope uint64
		seq   uint64
		stats models.Stats
		err   error
	}
	pollTickMsg struct {
		gen uint64
	}
	detailMsg struct {
		id     int64
		detail models.TaskDetail
		err    error
	}
)

// Controller owns the session, the filter and the displayed snapshot
type Controller struct {
	mode     AuthMode
	backend  Backend
	store    TokenStore
	widget   Widget
	interval time.Duration
	tick     TickFunc
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	phase       Phase
	session     Session
	filter      models.Filter
	snap        Snapshot
	unreachable error
	lastPollErr error
	notice      string

	botUsername   string
	loginURL      string
	widgetPending bool
	widgetErr     error
	loggingIn     bool
	authErr       error

	// scope changes whenever the session changes; responses from an older
	// scope are dropped
	scope        uint64
	tasksSeq     uint64
	tasksApplied uint64
	statsSeq     uint64
	statsApplied uint64
	polling      bool
	pollGen      uint64

	detailOpen    bool
	detailID      int64
	detail        models.TaskDetail
	detailLoading bool
	detailErr     error
}

// New creates a controller. widget may be nil when opts.Mode is AuthNone.
func New(backend Backend, store TokenStore, widget Widget, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Tick == nil {
		opts.Tick = tea.Tick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		mode:     opts.Mode,
		backend:  backend,
		store:    store,
		widget:   widget,
		interval: opts.PollInterval,
		tick:     opts.Tick,
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Init subscribes to login callbacks and starts Bootstrap
func (c *Controller) Init() tea.Cmd {
	return tea.Batch(c.listenLogin(), c.Bootstrap())
}

// Update applies a result message and returns any follow-up command
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	if c.closed {
		return nil
	}
	switch msg := msg.(type) {
	case bootstrapMsg:
		return c.applyBootstrap(msg)
	case botInfoMsg:
		return c.applyBotInfo(msg)
	case loginPayloadMsg:
		return tea.Batch(c.HandleLoginCallback(msg.payload), c.listenLogin())
	case loginMsg:
		return c.applyLogin(msg)
	case tasksMsg:
		return c.applyTasks(msg)
	case statsMsg:
		return c.applyStats(msg)
	case pollTickMsg:
		return c.applyTick(msg)
	case detailMsg:
		c.applyDetail(msg)
	}
	return nil
}

// Bootstrap restores the stored session, verifying it with the backend. Any
// verification failure discards the stored token; it is never retried.
func (c *Controller) Bootstrap() tea.Cmd {
	if c.closed {
		return nil
	}
	c.phase = PhaseBooting
	c.unreachable = nil
	if c.mode == AuthNone {
		return c.enterBoard()
	}

	ctx, backend, store := c.ctx, c.backend, c.store
	return func() tea.Msg {
		token, err := store.Token()
		if err != nil {
			log.Printf("read stored session: %v", err)
			return bootstrapMsg{}
		}
		if token == "" {
			return bootstrapMsg{}
		}
		user, err := backend.Me(ctx, token)
		if err != nil {
			log.Printf("verify stored session: %v", err)
			if cerr := store.ClearToken(); cerr != nil {
				log.Printf("discard stored session: %v", cerr)
			}
			return bootstrapMsg{hadToken: true, err: err}
		}
		return bootstrapMsg{session: Session{Token: token, User: user}}
	}
}

func (c *Controller) applyBootstrap(msg bootstrapMsg) tea.Cmd {
	if msg.session.Authenticated() {
		c.setSession(msg.session)
		return c.enterBoard()
	}
	if msg.hadToken && errors.Is(msg.err, api.ErrUnauthorized) {
		c.notice = "Your session has expired. Please sign in again."
	}
	return c.AcquireLoginWidget()
}

// AcquireLoginWidget fetches the advertised bot and injects the login widget.
// The widget is injected at most once; later calls only show the login surface.
func (c *Controller) AcquireLoginWidget() tea.Cmd {
	if c.closed || c.mode == AuthNone || c.session.Authenticated() {
		return nil
	}
	if c.loginURL != "" {
		return c.showLogin()
	}
	if c.widgetPending {
		return nil
	}
	c.widgetPending = true
	c.widgetErr = nil

	ctx, backend := c.ctx, c.backend
	return func() tea.Msg {
		info, err := backend.BotInfo(ctx)
		if err != nil {
			log.Printf("fetch bot info: %v", err)
		}
		return botInfoMsg{info: info, err: err}
	}
}

func (c *Controller) applyBotInfo(msg botInfoMsg) tea.Cmd {
	c.widgetPending = false
	if c.session.Authenticated() {
		return nil
	}
	if msg.err != nil {
		c.stopPolling()
		c.phase = PhaseUnreachable
		c.unreachable = msg.err
		return nil
	}
	if msg.info.Username == "" {
		c.stopPolling()
		c.phase = PhaseUnreachable
		c.unreachable = errors.New("the server did not advertise a login bot")
		return nil
	}

	c.botUsername = msg.info.Username
	url, err := c.widget.Inject(c.botUsername)
	if err != nil {
		log.Printf("inject login widget: %v", err)
		c.widgetErr = err
	} else {
		c.loginURL = url
	}
	return c.showLogin()
}

func (c *Controller) showLogin() tea.Cmd {
	if c.mode == AuthOptional {
		return c.enterBoard()
	}
	c.stopPolling()
	c.phase = PhaseSignedOut
	return nil
}

// HandleLoginCallback exchanges the widget's identity payload for a session.
// Failures are surfaced through AuthError and never retried.
func (c *Controller) HandleLoginCallback(payload json.RawMessage) tea.Cmd {
	if c.closed || c.mode == AuthNone {
		return nil
	}
	c.loggingIn = true
	c.authErr = nil

	ctx, backend, store := c.ctx, c.backend, c.store
	return func() tea.Msg {
		res, err := backend.ExchangeTelegram(ctx, payload)
		if err != nil {
			log.Printf("telegram login: %v", err)
			return loginMsg{err: err}
		}
		var saveErr error
		if err := store.SaveToken(res.AccessToken); err != nil {
			log.Printf("save session: %v", err)
			saveErr = err
		}
		return loginMsg{result: res, saveErr: saveErr}
	}
}

func (c *Controller) applyLogin(msg loginMsg) tea.Cmd {
	c.loggingIn = false
	if msg.err != nil {
		c.authErr = msg.err
		return nil
	}
	c.authErr = nil
	c.notice = ""
	if msg.saveErr != nil {
		c.notice = "Signed in, but the session could not be saved for next time."
	}
	c.setSession(Session{Token: msg.result.AccessToken, User: msg.result.User})
	return c.enterBoard()
}

// SignOut forgets the session both in memory and on disk
func (c *Controller) SignOut() tea.Cmd {
	if c.closed || !c.session.Authenticated() {
		return nil
	}
	if err := c.store.ClearToken(); err != nil {
		log.Printf("clear stored session: %v", err)
	}
	c.notice = ""
	return c.endSession()
}

func (c *Controller) endSession() tea.Cmd {
	c.setSession(Session{})
	if c.mode == AuthRequired {
		c.stopPolling()
		if c.loginURL == "" {
			c.phase = PhaseBooting
		}
	}
	return c.AcquireLoginWidget()
}

// setSession swaps the session and invalidates everything fetched under the old one
func (c *Controller) setSession(s Session) {
	c.session = s
	c.scope++
	c.snap = Snapshot{}
	c.lastPollErr = nil
	c.detailOpen = false
}

// SetFilter changes the task filter and refetches tasks immediately
func (c *Controller) SetFilter(f models.Filter) tea.Cmd {
	if c.closed {
		return nil
	}
	if f != c.filter {
		c.filter = f
		c.snap.Tasks = nil
		c.snap.TasksLoaded = false
	}
	if c.phase != PhaseBoard {
		return nil
	}
	return c.fetchTasks()
}

// Refresh runs one poll cycle immediately
func (c *Controller) Refresh() tea.Cmd {
	if c.closed || c.phase != PhaseBoard {
		return nil
	}
	return c.fetch()
}

// Retry restarts Bootstrap after the backend was unreachable, or starts the
// login widget again after it failed to start.
func (c *Controller) Retry() tea.Cmd {
	switch {
	case c.closed:
		return nil
	case c.phase == PhaseUnreachable:
		return c.Bootstrap()
	case c.widgetErr != nil && !c.session.Authenticated():
		c.widgetErr = nil
		return c.AcquireLoginWidget()
	}
	return nil
}

func (c *Controller) enterBoard() tea.Cmd {
	c.phase = PhaseBoard
	cmds := []tea.Cmd{c.fetch()}
	if !c.polling {
		c.polling = true
		c.pollGen++
		cmds = append(cmds, c.scheduleTick())
	}
	return tea.Batch(cmds...)
}

func (c *Controller) stopPolling() {
	if c.polling {
		c.polling = false
		c.pollGen++
	}
}

func (c *Controller) scheduleTick() tea.Cmd {
	gen := c.pollGen
	return c.tick(c.interval, func(time.Time) tea.Msg {
		return pollTickMsg{gen: gen}
	})
}

// applyTick fetches and schedules the next tick regardless of how the
// previous fetch went
func (c *Controller) applyTick(msg pollTickMsg) tea.Cmd {
	if !c.polling || msg.gen != c.pollGen {
		return nil
	}
	return tea.Batch(c.fetch(), c.scheduleTick())
}

func (c *Controller) fetch() tea.Cmd {
	return tea.Batch(c.fetchTasks(), c.fetchStats())
}

func (c *Controller) fetchTasks() tea.Cmd {
	c.tasksSeq++
	scope, seq, filter := c.scope, c.tasksSeq, c.filter
	ctx, backend, token := c.ctx, c.backend, c.session.Token
	return func() tea.Msg {
		tasks, err := backend.Tasks(ctx, token, filter)
		return tasksMsg{scope: scope, seq: seq, filter: filter, tasks: tasks, err: err}
	}
}

func (c *Controller) fetchStats() tea.Cmd {
	c.statsSeq++
	scope, seq := c.scope, c.statsSeq
	ctx, backend, token := c.ctx, c.backend, c.session.Token
	return func() tea.Msg {
		stats, err := backend.Stats(ctx, token)
		return statsMsg{scope: scope, seq: seq, stats: stats, err: err}
	}
}

func (c *Controller) applyTasks(msg tasksMsg) tea.Cmd {
	if msg.scope != c.scope || msg.filter != c.filter || msg.seq <= c.tasksApplied {
		return nil
	}
	if msg.err != nil {
		return c.pollFailed("fetch tasks", msg.err)
	}
	c.tasksApplied = msg.seq
	c.snap.Tasks = msg.tasks
	c.snap.TasksLoaded = true
	c.snap.TasksUpdated = c.now()
	c.lastPollErr = nil
	return nil
}

func (c *Controller) applyStats(msg statsMsg) tea.Cmd {
	if msg.scope != c.scope || msg.seq <= c.statsApplied {
		return nil
	}
	if msg.err != nil {
		return c.pollFailed("fetch stats", msg.err)
	}
	c.statsApplied = msg.seq
	c.snap.Stats = msg.stats
	c.snap.StatsLoaded = true
	c.snap.StatsUpdated = c.now()
	c.lastPollErr = nil
	return nil
}

// pollFailed keeps the current snapshot. A rejected token while signed in
// means the session expired.
func (c *Controller) pollFailed(op string, err error) tea.Cmd {
	log.Printf("%s: %v", op, err)
	c.lastPollErr = err
	if errors.Is(err, api.ErrUnauthorized) && c.session.Authenticated() {
		if cerr := c.store.ClearToken(); cerr != nil {
			log.Printf("clear expired session: %v", cerr)
		}
		cmd := c.endSession()
		c.notice = "Your session has expired. Please sign in again."
		return cmd
	}
	return nil
}

// OpenTask loads the detail of one task
func (c *Controller) OpenTask(id int64) tea.Cmd {
	if c.closed || c.phase != PhaseBoard {
		return nil
	}
	c.detailOpen = true
	c.detailID = id
	c.detail = models.TaskDetail{}
	c.detailLoading = true
	c.detailErr = nil

	ctx, backend, token := c.ctx, c.backend, c.session.Token
	return func() tea.Msg {
		d, err := backend.Task(ctx, token, id)
		if err != nil {
			log.Printf("fetch task %d: %v", id, err)
		}
		return detailMsg{id: id, detail: d, err: err}
	}
}

// CloseTask hides the task detail
func (c *Controller) CloseTask() {
	c.detailOpen = false
}

func (c *Controller) applyDetail(msg detailMsg) {
	if !c.detailOpen || msg.id != c.detailID {
		return
	}
	c.detailLoading = false
	c.detailErr = msg.err
	if msg.err == nil {
		c.detail = msg.detail
	}
}

func (c *Controller) listenLogin() tea.Cmd {
	if c.widget == nil || c.mode == AuthNone {
		return nil
	}
	events, done := c.widget.Events(), c.done
	return func() tea.Msg {
		select {
		case p := <-events:
			return loginPayloadMsg{payload: p}
		case <-done:
			return nil
		}
	}
}

// Close stops polling, cancels in-flight requests and tears down the widget
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopPolling()
	close(c.done)
	c.cancel()
	if c.widget != nil {
		if err := c.widget.Close(); err != nil {
			return fmt.Errorf("close login widget: %w", err)
		}
	}
	return nil
}

func (c *Controller) Mode() AuthMode { return c.mode }
func (c *Controller) Phase() Phase { return c.phase }
func (c *Controller) Session() Session { return c.session }
func (c *Controller) Filter() models.Filter { return c.filter }
func (c *Controller) Snapshot() Snapshot { return c.snap }
func (c *Controller) BotUsername() string { return c.botUsername }
func (c *Controller) LoginURL() string { return c.loginURL }
func (c *Controller) WidgetError() error { return c.widgetErr }
func (c *Controller) LoggingIn() bool { return c.loggingIn }
func (c *Controller) AuthError() error { return c.authErr }
func (c *Controller) Unreachable() error { return c.unreachable }
func (c *Controller) LastPollError() error { return c.lastPollErr }
func (c *Controller) Notice() string { return c.notice }
func (c *Controller) Polling() bool { return c.polling }
func (c *Controller) PollInterval() time.Duration { return c.interval }
func (c *Controller) Closed() bool { return c.closed }

// Detail returns the open task detail, whether it is still loading, and the
// error from loading it
func (c *Controller) Detail() (open bool, detail models.TaskDetail, loading bool, err error) {
	return c.detailOpen, c.detail, c.detailLoading, c.detailErr
}
