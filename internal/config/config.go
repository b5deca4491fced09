package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CHIPLEDGER"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "chipledger.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "chipledger_session"
	defaultSessionIssuer     = "chipledger-auth"
	defaultSessionTTLMinutes = 720
	defaultLoginRateLimit    = 10
	defaultLoginRateWindow   = 60
	defaultLedgerMaxAttempts = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	SigningSecret  string
	CookieName     string
	SessionIssuer  string
	SessionTTL     time.Duration
	SecureCookies  bool
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	LoginRateLimit int64
	LoginWindow    time.Duration
	MaxAttempts    int
	AllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("session.secure_cookies", false)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("login.rate_limit", defaultLoginRateLimit)
	configViper.SetDefault("login.rate_window_seconds", defaultLoginRateWindow)
	configViper.SetDefault("ledger.max_attempts", defaultLedgerMaxAttempts)
	configViper.SetDefault("cors.allowed_origins", []string{})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("session.signing_secret"),
		CookieName:     configViper.GetString("session.cookie_name"),
		SessionIssuer:  configViper.GetString("session.issuer"),
		SessionTTL:     time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SecureCookies:  configViper.GetBool("session.secure_cookies"),
		RedisAddress:   configViper.GetString("redis.address"),
		RedisPassword:  configViper.GetString("redis.password"),
		RedisDB:        configViper.GetInt("redis.db"),
		LoginRateLimit: configViper.GetInt64("login.rate_limit"),
		LoginWindow:    time.Duration(configViper.GetInt("login.rate_window_seconds")) * time.Second,
		MaxAttempts:    configViper.GetInt("ledger.max_attempts"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("ledger.max_attempts must be positive")
	}
	if c.RedisAddress != "" && (c.LoginRateLimit <= 0 || c.LoginWindow <= 0) {
		return fmt.Errorf("login.rate_limit and login.rate_window_seconds must be positive when redis is configured")
	}
	return nil
}

// Environment variables arrive as one comma separated value.
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
