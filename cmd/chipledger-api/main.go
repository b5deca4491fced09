package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/config"
	"github.com/MarcoPoloResearchLab/chipledger/internal/database"
	"github.com/MarcoPoloResearchLab/chipledger/internal/entry"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/logging"
	"github.com/MarcoPoloResearchLab/chipledger/internal/metrics"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
	"github.com/MarcoPoloResearchLab/chipledger/internal/server"
	"github.com/MarcoPoloResearchLab/chipledger/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chipledger-api",
		Short: "Poker club chip ledger service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay every balance from its transactions and report mismatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context())
		},
	}
	rootCmd.AddCommand(reconcileCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for login rate limiting (empty disables)")
	cmd.PersistentFlags().Int("ledger-max-attempts", defaults.GetInt("ledger.max_attempts"), "Balance write attempts before reporting a conflict")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "ledger.max_attempts", "ledger-max-attempts")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

type appRuntime struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	ledger   *ledger.Service
}

func openRuntime() (*appRuntime, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		Logger:      logger,
		Metrics:     metrics.NewLedgerMetrics(registry),
		MaxAttempts: appConfig.MaxAttempts,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return &appRuntime{
		config:   appConfig,
		logger:   logger,
		db:       db,
		registry: registry,
		ledger:   ledgerService,
	}, cleanup, nil
}

func runServer(ctx context.Context) error {
	rt, cleanup, err := openRuntime()
	if err != nil {
		return err
	}
	defer cleanup()
	appConfig, logger := rt.config, rt.logger

	usersService, err := users.NewService(users.ServiceConfig{
		Database: rt.db,
		Hasher:   auth.NewPasswordHasher(auth.DefaultBcryptCost),
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sessionIssuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.SessionIssuer,
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	roomService, err := rooms.NewService(rooms.ServiceConfig{
		Database:    rt.db,
		Memberships: rt.ledger,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	workflow, err := entry.NewWorkflow(roomService, rt.ledger)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(ctx, ratelimit.Config{
		Address:  appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		DB:       appConfig.RedisDB,
		Limit:    appConfig.LoginRateLimit,
		Window:   appConfig.LoginWindow,
	})
	if err != nil {
		return err
	}
	defer limiter.Close() //nolint:errcheck
	if limiter == nil {
		logger.Info("login rate limiting disabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authenticator:    usersService,
		SessionIssuer:    sessionIssuer,
		SessionValidator: sessionValidator,
		LoginLimiter:     limiter,
		Rooms:            roomService,
		Ledger:           rt.ledger,
		Entry:            workflow,
		Metrics:          metrics.NewHTTPMetrics(rt.registry),
		MetricsHandler:   promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}),
		AllowedOrigins:   appConfig.AllowedOrigins,
		SecureCookies:    appConfig.SecureCookies,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runReconcile(ctx context.Context) error {
	rt, cleanup, err := openRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := rt.ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("reconcile finished",
		zap.Int("checked", report.Checked),
		zap.Int("discrepancies", len(report.Discrepancies)))
	if !report.Consistent() {
		return fmt.Errorf("reconcile found %d inconsistent balances", len(report.Discrepancies))
	}
	return nil
}
