package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/followmail/internal/google"
	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/server"
	"github.com/teemow/followmail/internal/session"
	"github.com/teemow/followmail/internal/store"
	"github.com/teemow/followmail/internal/threads"
)

const (
	defaultDBPath      = "data/followmail.db"
	defaultRedirectURL = "http://localhost:5000/api/oauth2callback"
)

// ServeConfig holds everything the serve command needs. Flags win over
// environment variables, which win over defaults.
type ServeConfig struct {
	HTTPAddr           string
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	JWTSecret          string
	DBPath             string
	CORSOrigins        []string
	MaxResults         int64
	Fanout             int
	SecureCookie       bool
	LoginRateLimit     int
	TrustProxy         bool
	Debug              bool
	Metrics            MetricsConfig
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		cfg         ServeConfig
		corsOrigins string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the followmail API server",
		Long: `Start the HTTP API that lets a browser client log in with Google and
follow threads from chosen senders and to chosen recipients.

Google OAuth (required):
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars

Sessions (required):
  --jwt-secret flag OR JWT_SECRET env var

Storage:
  Users and follow lists live in a SQLite file (--db-path or DB_PATH).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.CORSOrigins = parseCommaSeparatedList(corsOrigins)
			cfg.applyEnv(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", server.DefaultAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.RedirectURL, "redirect-url", defaultRedirectURL, "OAuth redirect URL registered with Google. Can also use GOOGLE_REDIRECT_URL env var.")
	cmd.Flags().StringVar(&cfg.JWTSecret, "jwt-secret", "", "Secret used to sign session tokens. Can also use JWT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.DBPath, "db-path", defaultDBPath, "Path to the SQLite database. Can also use DB_PATH env var.")
	cmd.Flags().StringVar(&corsOrigins, "cors-origin", "", "Comma-separated origins allowed to call the API with cookies. Can also use CORS_ORIGIN env var.")
	cmd.Flags().Int64Var(&cfg.MaxResults, "max-results", threads.DefaultMaxResults, "Maximum results per Gmail search")
	cmd.Flags().IntVar(&cfg.Fanout, "fanout", threads.DefaultConcurrency, "Maximum concurrent Gmail calls per fan-out level")
	cmd.Flags().BoolVar(&cfg.SecureCookie, "secure-cookie", false, "Mark the session cookie Secure (set behind HTTPS). Can also use SECURE_COOKIE env var.")
	cmd.Flags().IntVar(&cfg.LoginRateLimit, "login-rate-limit", 10, "Login requests per second per client IP, 0 disables. Can also use LOGIN_RATE_LIMIT env var.")
	cmd.Flags().BoolVar(&cfg.TrustProxy, "trust-proxy", false, "Trust X-Forwarded-For and X-Real-IP for rate limiting. Only enable behind a trusted proxy.")
	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// applyEnv fills settings whose flag was not given from the environment.
func (c *ServeConfig) applyEnv(cmd *cobra.Command) {
	changed := func(name string) bool {
		return cmd != nil && cmd.Flags().Changed(name)
	}
	envString := func(flag, env string, dst *string) {
		if changed(flag) {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	envBool := func(flag, env string, dst *bool) {
		if changed(flag) {
			return
		}
		if v := os.Getenv(env); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*dst = parsed
			} else {
				slog.Warn("ignoring invalid boolean env var", "name", env, "value", v)
			}
		}
	}

	envString("http-addr", "HTTP_ADDR", &c.HTTPAddr)
	envString("google-client-id", "GOOGLE_CLIENT_ID", &c.GoogleClientID)
	envString("google-client-secret", "GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	envString("redirect-url", "GOOGLE_REDIRECT_URL", &c.RedirectURL)
	envString("jwt-secret", "JWT_SECRET", &c.JWTSecret)
	envString("db-path", "DB_PATH", &c.DBPath)
	envString("metrics-addr", "METRICS_ADDR", &c.Metrics.Addr)
	envBool("secure-cookie", "SECURE_COOKIE", &c.SecureCookie)
	envBool("metrics-enabled", "METRICS_ENABLED", &c.Metrics.Enabled)

	if !changed("cors-origin") && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = parseCommaSeparatedList(os.Getenv("CORS_ORIGIN"))
	}
	if !changed("login-rate-limit") {
		if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.LoginRateLimit = n
			} else {
				slog.Warn("ignoring invalid LOGIN_RATE_LIMIT", "value", v)
			}
		}
	}
}

// Validate reports missing required settings.
func (c ServeConfig) Validate() error {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "google-client-id (GOOGLE_CLIENT_ID)")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "google-client-secret (GOOGLE_CLIENT_SECRET)")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "jwt-secret (JWT_SECRET)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.DBPath == "" {
		return fmt.Errorf("db-path must not be empty")
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max-results must be positive, got %d", c.MaxResults)
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive, got %d", c.Fanout)
	}
	return nil
}

func runServe(cfg ServeConfig) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, true, cfg.Debug)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	}

	metricsServer, err := startMetricsServer(cfg.Metrics, provider, logger)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database", logging.Err(err))
		}
	}()
	logger.Info("opened user store", "path", db.Path())

	auth, err := google.NewProvider(google.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL,
	}, google.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create Google provider: %w", err)
	}

	sessions, err := session.NewManager(cfg.JWTSecret, session.WithSecureCookie(cfg.SecureCookie))
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	srv, err := server.New(server.Config{
		CORSOrigins: cfg.CORSOrigins,
		MaxResults:  cfg.MaxResults,
		Concurrency: cfg.Fanout,
		RateLimit:   cfg.LoginRateLimit,
		TrustProxy:  cfg.TrustProxy,
	}, server.Deps{
		Auth:      auth,
		Store:     db,
		Sessions:  sessions,
		Mailboxes: server.GmailMailboxes(metrics),
		Logger:    logger,
		Metrics:   metrics,
		Audit:     audit,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("API server stopped with error: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during API server shutdown: %w", err)
	}
	return nil
}

// startMetricsServer starts the metrics server when enabled and waits until
// it is listening. It returns nil when metrics are off.
func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	if !cfg.Enabled || !provider.Enabled() {
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace and dropping empty entries.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
