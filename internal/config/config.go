// Package config resolves teamflow settings from the environment, command
// line flags and XDG directories.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tgienger/teamflow/internal/board"
)

const (
	// AppName is the directory name used under the XDG base directories.
	AppName = "teamflow"

	DefaultAPIURL    = "http://localhost:8180"
	DefaultLoginAddr = "127.0.0.1:8765"
	DefaultDevAddr   = ":8180"

	// MinPollInterval keeps the board from hammering the backend
	MinPollInterval = time.Second

	DebugLogFile = "debug.log"
)

// Getenv looks up an environment variable; os.Getenv in production
type Getenv func(string) string

// Config holds the client settings.
type Config struct {
	// APIURL is the base URL of the TeamFlow backend.
	APIURL string

	// AuthMode selects required, optional or no sign in.
	AuthMode board.AuthMode

	// PollInterval is the time between board refreshes.
	PollInterval time.Duration

	// LoginAddr is the address the login page is served on. Telegram only
	// renders the widget on the domain linked to the bot with BotFather's
	// /setdomain, so that domain must reach this address (a tunnel or a
	// reverse proxy in front of it).
	LoginAddr string

	// DataDir holds the settings database.
	DataDir string

	// StateDir holds the debug log.
	StateDir string

	// Debug enables logging to DebugLogPath.
	Debug bool
}

// Load reads the TEAMFLOW_* environment variables on top of the defaults
func Load(getenv Getenv) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := &Config{
		APIURL:       DefaultAPIURL,
		AuthMode:     board.AuthRequired,
		PollInterval: board.DefaultPollInterval,
		LoginAddr:    DefaultLoginAddr,
		DataDir:      DefaultDataDir(getenv),
		StateDir:     DefaultStateDir(getenv),
	}

	if v := getenv("TEAMFLOW_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := getenv("TEAMFLOW_AUTH_MODE"); v != "" {
		mode, err := board.ParseAuthMode(v)
		if err != nil {
			return nil, fmt.Errorf("TEAMFLOW_AUTH_MODE: %w", err)
		}
		c.AuthMode = mode
	}
	if v := getenv("TEAMFLOW_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TEAMFLOW_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := getenv("TEAMFLOW_LOGIN_ADDR"); v != "" {
		c.LoginAddr = v
	}
	if v := getenv("TEAMFLOW_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("TEAMFLOW_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TEAMFLOW_DEBUG: %w", err)
		}
		c.Debug = debug
	}

	return c, c.Validate()
}

// RegisterFlags binds command line overrides for every setting
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIURL, "api-url", c.APIURL, "TeamFlow backend URL")
	fs.Func("auth-mode", "sign in mode: required, optional or none", func(s string) error {
		mode, err := board.ParseAuthMode(s)
		if err != nil {
			return err
		}
		c.AuthMode = mode
		return nil
	})
	fs.DurationVar(&c.PollInterval, "poll", c.PollInterval, "board refresh interval")
	fs.StringVar(&c.LoginAddr, "login-addr", c.LoginAddr, "address for the local login page")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory for the settings database")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "write a debug log")
}

// Validate checks settings that flags may have changed
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API URL %q: want http(s)://host[:port]", c.APIURL)
	}
	if c.PollInterval < MinPollInterval {
		return fmt.Errorf("poll interval %s is below the minimum of %s", c.PollInterval, MinPollInterval)
	}
	if strings.TrimSpace(c.LoginAddr) == "" {
		return errors.New("login address must not be empty")
	}
	return nil
}

// DebugLogPath returns where the debug log is written
func (c *Config) DebugLogPath() string {
	return filepath.Join(c.StateDir, DebugLogFile)
}

// EnsureStateDir creates the state directory with mode 0700
func (c *Config) EnsureStateDir() error {
	return os.MkdirAll(c.StateDir, 0700)
}

// DefaultDataDir uses XDG_DATA_HOME, falling back to ~/.local/share
func DefaultDataDir(getenv Getenv) string {
	return xdgDir(getenv, "XDG_DATA_HOME", ".local", "share")
}

// DefaultStateDir uses XDG_STATE_HOME, falling back to ~/.local/state
func DefaultStateDir(getenv Getenv) string {
	return xdgDir(getenv, "XDG_STATE_HOME", ".local", "state")
}

func xdgDir(getenv Getenv, env string, fallback ...string) string {
	if dir := getenv(env); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...)
}

// DevServer configures the development backend.
type DevServer struct {
	Addr        string
	BotToken    string
	BotUsername string
	JWTSecret   string
}

// LoadDevServer reads the development backend settings
func LoadDevServer(getenv Getenv) (*DevServer, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := &DevServer{
		Addr:        DefaultDevAddr,
		BotToken:    getenv("TELEGRAM_BOT_TOKEN"),
		BotUsername: getenv("TELEGRAM_BOT_USERNAME"),
		JWTSecret:   getenv("TEAMFLOW_JWT_SECRET"),
	}
	if v := getenv("TEAMFLOW_DEV_ADDR"); v != "" {
		c.Addr = v
	}
	if c.BotUsername == "" {
		c.BotUsername = "teamflow_bot"
	}
	if c.JWTSecret == "" {
		return nil, errors.New("TEAMFLOW_JWT_SECRET must be set")
	}
	if c.BotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN must be set")
	}
	return c, nil
}
