package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"campaign-console/internal/config"
	"campaign-console/internal/gateway"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotHandled lets a strategy pass a login on to the next one.
	ErrNotHandled = errors.New("auth: credentials not handled by strategy")
)

type Mode string

const (
	ModeRemote Mode = "remote"
	ModeDemo   Mode = "demo"
)

// Session is the operator's authentication state. It is a value; the Authenticator
// owns the current one and hands out copies.
type Session struct {
	UserID        string
	Email         string
	Name          string
	Mode          Mode
	Authenticated bool

	// Degraded is set when the backend could not be reached during a check.
	Degraded bool
}

func Anonymous() Session { return Session{Mode: ModeRemote} }

// Strategy is one way of establishing a session.
type Strategy interface {
	Login(ctx context.Context, email, password string) (Session, error)
	Status(ctx context.Context) (Session, error)
	Logout(ctx context.Context) error
}

// RemoteBackend is the gateway surface the remote strategy needs.
type RemoteBackend interface {
	Login(ctx context.Context, req gateway.LoginRequest) (gateway.User, error)
	Status(ctx context.Context) (gateway.AuthStatus, error)
	Logout(ctx context.Context) error
}

// RemoteStrategy authenticates against the backend session cookie.
type RemoteStrategy struct {
	backend RemoteBackend
}

func NewRemoteStrategy(b RemoteBackend) *RemoteStrategy { return &RemoteStrategy{backend: b} }

func (r *RemoteStrategy) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := r.backend.Login(ctx, gateway.LoginRequest{Email: email, Password: password})
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	return remoteSession(u), nil
}

func (r *RemoteStrategy) Status(ctx context.Context) (Session, error) {
	st, err := r.backend.Status(ctx)
	if err != nil {
		return Session{}, err
	}
	if !st.Authenticated || st.User == nil {
		return Anonymous(), nil
	}
	return remoteSession(*st.User), nil
}

func (r *RemoteStrategy) Logout(ctx context.Context) error { return r.backend.Logout(ctx) }

func remoteSession(u gateway.User) Session {
	return Session{UserID: u.ID, Email: u.Email, Name: u.Name, Mode: ModeRemote, Authenticated: true}
}

// DemoStrategy accepts one fixed credential pair without any network call.
type DemoStrategy struct {
	email    string
	password string
}

// NewDemoStrategy returns nil unless demo mode is enabled outside production.
func NewDemoStrategy(cfg config.Config) *DemoStrategy {
	if !cfg.Demo.Enabled || cfg.IsProduction() {
		return nil
	}
	return &DemoStrategy{email: cfg.Demo.Email, password: cfg.Demo.Password}
}

func (d *DemoStrategy) Login(ctx context.Context, email, password string) (Session, error) {
	if !strings.EqualFold(strings.TrimSpace(email), d.email) {
		return Session{}, ErrNotHandled
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(d.password)) != 1 {
		return Session{}, ErrInvalidCredentials
	}
	return d.session(), nil
}

// Status never reaches the network; a demo session lives only in the Authenticator.
func (d *DemoStrategy) Status(ctx context.Context) (Session, error) { return Anonymous(), nil }

func (d *DemoStrategy) Logout(ctx context.Context) error { return nil }

func (d *DemoStrategy) session() Session {
	return Session{UserID: "demo-user", Email: d.email, Name: "Demo Operator", Mode: ModeDemo, Authenticated: true}
}

// Authenticator owns the current session.
type Authenticator struct {
	remote  Strategy
	demo    *DemoStrategy
	timeout time.Duration
	log     *slog.Logger

	mu       sync.RWMutex
	session  Session
	onChange func(Session)
}

// NewAuthenticator wires the strategies. demo may be nil.
func NewAuthenticator(remote Strategy, demo *DemoStrategy, checkTimeout time.Duration, log *slog.Logger) *Authenticator {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{
		remote:  remote,
		demo:    demo,
		timeout: checkTimeout,
		log:     log.With("component", "auth"),
		session: Anonymous(),
	}
}

// OnChange registers a callback run after every session change.
func (a *Authenticator) OnChange(fn func(Session)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *Authenticator) Session() Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

func (a *Authenticator) set(s Session) {
	a.mu.Lock()
	a.session = s
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Login tries the demo pair first when demo mode is installed, then the backend.
func (a *Authenticator) Login(ctx context.Context, email, password string) (Session, error) {
	if a.demo != nil {
		s, err := a.demo.Login(ctx, email, password)
		if err == nil {
			a.set(s)
			return s, nil
		}
		if !errors.Is(err, ErrNotHandled) {
			return Session{}, err
		}
	}
	s, err := a.remote.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	a.set(s)
	return s, nil
}

// Check refreshes the session from the backend within the check timeout.
// It never fails: an unreachable backend yields a degraded session.
func (a *Authenticator) Check(ctx context.Context) Session {
	if cur := a.Session(); cur.Mode == ModeDemo && cur.Authenticated {
		return cur
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s, err := a.remote.Status(ctx)
	if err != nil {
		a.log.Warn("session check failed", "err", err)
		s = Anonymous()
		s.Degraded = true
		if a.demo != nil {
			s.Mode = ModeDemo
		}
	}
	a.set(s)
	return s
}

func (a *Authenticator) Logout(ctx context.Context) error {
	cur := a.Session()
	a.set(Anonymous())
	if cur.Mode == ModeDemo {
		return nil
	}
	return a.remote.Logout(ctx)
}

// Expire drops the session. The gateway calls it on every 401.
func (a *Authenticator) Expire() {
	if cur := a.Session(); cur.Mode == ModeDemo && cur.Authenticated {
		return
	}
	a.set(Anonymous())
}
