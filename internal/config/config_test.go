package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("expected 12h session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.MaxAttempts != defaultLedgerMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultLedgerMaxAttempts, cfg.MaxAttempts)
	}
	if cfg.RedisAddress != "" || len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("redis and cors should be off by default: %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CHIPLEDGER_SESSION_SIGNING_SECRET", "from-env")
	t.Setenv("CHIPLEDGER_LOGIN_RATE_LIMIT", "3")
	t.Setenv("CHIPLEDGER_REDIS_ADDRESS", "localhost:6379")
	t.Setenv("CHIPLEDGER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.SigningSecret != "from-env" || cfg.LoginRateLimit != 3 || cfg.RedisAddress != "localhost:6379" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		override map[string]any
		wantErr  string
	}{
		{name: "missing-secret", override: map[string]any{}, wantErr: "session.signing_secret"},
		{name: "blank-database", override: map[string]any{"session.signing_secret": "s", "database.path": " "}, wantErr: "database.path"},
		{name: "zero-attempts", override: map[string]any{"session.signing_secret": "s", "ledger.max_attempts": 0}, wantErr: "ledger.max_attempts"},
		{
			name:     "redis-without-limit",
			override: map[string]any{"session.signing_secret": "s", "redis.address": "localhost:6379", "login.rate_limit": 0},
			wantErr:  "login.rate_limit",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.override {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantErr, err)
			}
		})
	}
}
