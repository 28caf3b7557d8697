package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProductionAPIURL = "https://api.callagent.app"
	DefaultDevAPIURL        = "http://localhost:5000"
)

// Config holds all configuration required by the console and the dev backend.
// All values must come from env (or an env file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	API     APIConfig
	Demo    DemoConfig
	Polling PollingConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Backend BackendConfig
	Observe ObserveConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// APIConfig selects the backend origin the console talks to.
type APIConfig struct {
	BaseURL string

	// RequestTimeout bounds every gateway call.
	RequestTimeout time.Duration
	// AuthCheckTimeout bounds the startup session check.
	AuthCheckTimeout time.Duration
}

// DemoConfig controls the local demo-credential bypass.
// It must stay disabled in production builds.
type DemoConfig struct {
	Enabled  bool
	Email    string
	Password string
}

type PollingConfig struct {
	ActiveInterval      time.Duration
	HistoryFastInterval time.Duration
	// HistorySlowInterval set to ManualOnly disables the slow history ticker.
	HistorySlowInterval time.Duration
}

// ManualOnly is the HistorySlowInterval value for "refresh on demand only".
// Set it with POLL_HISTORY_SLOW_INTERVAL=manual.
const ManualOnly time.Duration = -1

// RedisConfig is optional; the dev backend falls back to an in-process call limiter.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	SessionTTL  time.Duration
}

// BackendConfig is read by the dev backend only.
type BackendConfig struct {
	// PublicURL is where the telephony provider reaches the webhooks.
	PublicURL    string
	MaxLiveCalls int
}

type ObserveConfig struct {
	SentryDSN   string
	LogFile     string
	MetricsAddr string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := optionalInt("APP_PORT", 8080)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.API.BaseURL = strings.TrimSpace(os.Getenv("API_URL"))
	if c.API.BaseURL == "" {
		c.API.BaseURL = strings.TrimSpace(os.Getenv("VITE_API_URL"))
	}
	c.API.RequestTimeout = mustDuration("HTTP_TIMEOUT")
	c.API.AuthCheckTimeout = mustDuration("AUTH_CHECK_TIMEOUT")

	c.Demo.Enabled = envBool("DEMO_MODE")
	c.Demo.Email = strings.TrimSpace(os.Getenv("DEMO_EMAIL"))
	c.Demo.Password = os.Getenv("DEMO_PASSWORD")

	c.Polling.ActiveInterval = mustDuration("POLL_ACTIVE_INTERVAL")
	c.Polling.HistoryFastInterval = mustDuration("POLL_HISTORY_FAST_INTERVAL")
	if strings.EqualFold(strings.TrimSpace(os.Getenv("POLL_HISTORY_SLOW_INTERVAL")), "manual") {
		c.Polling.HistorySlowInterval = ManualOnly
	} else {
		c.Polling.HistorySlowInterval = mustDuration("POLL_HISTORY_SLOW_INTERVAL")
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optionalInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.SessionTTL = mustDuration("SESSION_TTL")

	c.Backend.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_URL")), "/")
	{
		n, err := optionalInt("MAX_LIVE_CALLS", 2)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Backend.MaxLiveCalls = n
	}

	c.Observe.SentryDSN = strings.TrimSpace(os.Getenv("SENTRY_DSN"))
	c.Observe.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	c.Observe.MetricsAddr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))

	if path := strings.TrimSpace(os.Getenv("CONSOLE_CONFIG")); path != "" {
		if err := c.ApplyFile(path); err != nil {
			parseErrs = append(parseErrs, err)
		}
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.API.BaseURL == "" {
		if c.IsProduction() {
			c.API.BaseURL = DefaultProductionAPIURL
		} else {
			c.API.BaseURL = DefaultDevAPIURL
		}
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("API_URL must be an http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = 30 * time.Second
	}
	if c.API.AuthCheckTimeout <= 0 {
		c.API.AuthCheckTimeout = 5 * time.Second
	}

	if c.Demo.Enabled {
		if c.IsProduction() {
			errs = append(errs, errors.New("DEMO_MODE must be disabled in production"))
		}
		if c.Demo.Email == "" || c.Demo.Password == "" {
			errs = append(errs, errors.New("DEMO_EMAIL and DEMO_PASSWORD are required when DEMO_MODE is enabled"))
		}
	}

	if c.Polling.ActiveInterval <= 0 {
		c.Polling.ActiveInterval = 2 * time.Second
	}
	if c.Polling.HistoryFastInterval <= 0 {
		c.Polling.HistoryFastInterval = 10 * time.Second
	}
	if c.Polling.HistorySlowInterval == 0 {
		c.Polling.HistorySlowInterval = 30 * time.Second
	} else if c.Polling.HistorySlowInterval < 0 {
		c.Polling.HistorySlowInterval = ManualOnly
	}
	if c.Polling.ActiveInterval > c.Polling.HistoryFastInterval {
		errs = append(errs, errors.New("POLL_ACTIVE_INTERVAL must not exceed POLL_HISTORY_FAST_INTERVAL"))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}

	return joinErrors(errs)
}

// ValidateBackend adds the checks only the dev backend needs.
func (c *Config) ValidateBackend() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Backend.MaxLiveCalls <= 0 {
		errs = append(errs, fmt.Errorf("MAX_LIVE_CALLS must be positive, got %d", c.Backend.MaxLiveCalls))
	}
	if c.Backend.PublicURL != "" && !strings.HasPrefix(c.Backend.PublicURL, "http") {
		errs = append(errs, fmt.Errorf("PUBLIC_URL must be an http(s) URL, got %q", c.Backend.PublicURL))
	}
	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
