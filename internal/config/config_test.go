package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_DefaultsAPIURLByEnv(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8080}}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.API.BaseURL != DefaultDevAPIURL {
		t.Fatalf("expected dev url, got %q", c.API.BaseURL)
	}

	p := Config{
		App:  AppConfig{Env: "production", Port: 8080},
		Auth: AuthConfig{JWTIssuer: "i", JWTAudience: "a"},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.API.BaseURL != DefaultProductionAPIURL {
		t.Fatalf("expected production url, got %q", p.API.BaseURL)
	}
}

func TestValidate_DefaultsPollingCadence(t *testing.T) {
	c := Config{App: AppConfig{Env: "dev", Port: 8080}}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Polling.ActiveInterval != 2*time.Second || c.Polling.HistoryFastInterval != 10*time.Second {
		t.Fatalf("unexpected polling defaults: %+v", c.Polling)
	}
	if c.Polling.HistorySlowInterval != 30*time.Second {
		t.Fatalf("expected 30s slow history, got %v", c.Polling.HistorySlowInterval)
	}
	if c.API.AuthCheckTimeout != 5*time.Second {
		t.Fatalf("expected 5s auth check timeout, got %v", c.API.AuthCheckTimeout)
	}
}

func TestValidate_ProductionRejectsDemoMode(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "production", Port: 8080},
		Demo: DemoConfig{Enabled: true, Email: "demo@example.com", Password: "demo"},
		Auth: AuthConfig{JWTIssuer: "i", JWTAudience: "a"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for demo mode in production")
	}
}

func TestValidate_TrimsTrailingSlash(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8080}, API: APIConfig{BaseURL: "http://api.local/"}}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.API.BaseURL != "http://api.local" {
		t.Fatalf("expected trimmed url, got %q", c.API.BaseURL)
	}
}

func TestApplyYAML_EnvWins(t *testing.T) {
	c := Config{Polling: PollingConfig{ActiveInterval: 3 * time.Second}}
	err := c.applyYAML([]byte("polling:\n  active_interval: 1s\n  history_slow_interval: 45s\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Polling.ActiveInterval != 3*time.Second {
		t.Fatalf("expected env value to win, got %v", c.Polling.ActiveInterval)
	}
	if c.Polling.HistorySlowInterval != 45*time.Second {
		t.Fatalf("expected overlay, got %v", c.Polling.HistorySlowInterval)
	}
}

func TestApplyYAML_RejectsBadDuration(t *testing.T) {
	c := Config{}
	if err := c.applyYAML([]byte("polling:\n  history_fast_interval: soon\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyYAML_ManualOnly(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8080}}
	if err := c.applyYAML([]byte("polling:\n  history_slow_interval: manual\n")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Polling.HistorySlowInterval != ManualOnly {
		t.Fatalf("expected manual only, got %v", c.Polling.HistorySlowInterval)
	}
}

func TestValidateBackend(t *testing.T) {
	c := Config{Backend: BackendConfig{MaxLiveCalls: 2}}
	if err := c.ValidateBackend(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
	c.Auth.JWTSecret = "s"
	c.Backend.PublicURL = "ftp://example.com"
	if err := c.ValidateBackend(); err == nil {
		t.Fatalf("expected PUBLIC_URL error")
	}
	c.Backend.PublicURL = "https://hooks.example.com"
	if err := c.ValidateBackend(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
