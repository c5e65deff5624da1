// Package devserver is an in-memory TeamFlow backend for local development
// and tests. It serves the same read-only API as the production backend and
// signs users in with the Telegram login widget.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tgienger/teamflow/internal/models"
)

// TokenTTL is how long issued access tokens stay valid
const TokenTTL = 24 * time.Hour

const userKey = "user"

// Options configures a Server
type Options struct {
	BotToken    string
	BotUsername string
	JWTSecret   []byte

	// RequireAuth rejects unauthenticated task and stats reads
	RequireAuth bool

	// AccessLog enables echo's request logger
	AccessLog bool

	Now func() time.Time
}

// Claims is the payload of an access token
type Claims struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	jwt.RegisteredClaims
}

// Server is the development backend
type Server struct {
	e     *echo.Echo
	opts  Options
	store *Store
}

// New creates a server over store
func New(store *Store, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{e: echo.New(), opts: opts, store: store}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = errorHandler
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.e
	if s.opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
	})

	api := e.Group("/api")
	api.GET("/bot-info", s.botInfo)
	api.POST("/auth/telegram", s.telegramLogin)
	api.GET("/me", s.me, s.bearer(true))

	read := s.bearer(s.opts.RequireAuth)
	api.GET("/tasks", s.listTasks, read)
	api.GET("/tasks/:id", s.getTask, read)
	api.GET("/stats", s.stats, read)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) botInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, models.BotInfo{Username: s.opts.BotUsername})
}

func (s *Server) telegramLogin(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 16<<10))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body")
	}
	tu, err := VerifyTelegram(body, s.opts.BotToken, s.opts.Now())
	if err != nil {
		c.Logger().Warnf("telegram auth rejected: %v", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Telegram authentication")
	}

	user := models.User{ID: tu.ID, FirstName: tu.FirstName, Username: tu.Username}
	token, err := s.issue(user)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	return c.JSON(http.StatusOK, models.AuthResult{AccessToken: token, TokenType: "bearer", User: user})
}

func (s *Server) issue(u models.User) (string, error) {
	now := s.opts.Now()
	claims := Claims{
		Username:  u.Username,
		FirstName: u.FirstName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTSecret)
}

// IssueToken signs an access token for u; tests use it to skip the widget
func (s *Server) IssueToken(u models.User) (string, error) {
	return s.issue(u)
}

// bearer verifies the Authorization header. When required is false a
// missing header is allowed but a bad token is still rejected.
func (s *Server) bearer(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if required {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
					return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
				}
				return next(c)
			}

			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authentication scheme")
			}
			user, err := s.parse(strings.TrimSpace(raw))
			if err != nil {
				c.Logger().Warnf("token verification failed: %v", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}
			c.Set(userKey, user)
			return next(c)
		}
	}
}

func (s *Server) parse(raw string) (models.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.opts.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.User{}, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.User{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return models.User{ID: id, Username: claims.Username, FirstName: claims.FirstName}, nil
}

func (s *Server) me(c echo.Context) error {
	return c.JSON(http.StatusOK, c.Get(userKey).(models.User))
}

func (s *Server) listTasks(c echo.Context) error {
	var status models.Status
	if v := c.QueryParam("status"); v != "" {
		status = models.Status(strings.ToUpper(v))
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("invalid status %q", v))
		}
	}
	var assignee *int64
	if v := c.QueryParam("assignee_telegram_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid assignee_telegram_id")
		}
		assignee = &id
	}
	return c.JSON(http.StatusOK, s.store.List(status, assignee))
}

func (s *Server) getTask(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid task id")
	}
	t, ok := s.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Stats())
}

// errorHandler writes every error as {"detail": "..."}
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	} else {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"detail": detail})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
