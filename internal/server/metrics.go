package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/followmail/internal/instrumentation"
)

const (
	// DefaultMetricsAddr keeps /metrics off the API port.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds the drain of both servers.
	DefaultShutdownTimeout = 30 * time.Second

	metricsReadHeaderTimeout = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 60 * time.Second
)

// MetricsServerConfig configures NewMetricsServer.
type MetricsServerConfig struct {
	Addr    string
	Enabled bool

	// InstrumentationProvider must be enabled; its Prometheus handler is
	// served on /metrics.
	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves /metrics and its own /healthz on a dedicated port.
type MetricsServer struct {
	addr       string
	mux        *http.ServeMux
	httpServer *http.Server
}

func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	provider := config.InstrumentationProvider
	switch {
	case provider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	}

	mux := http.NewServeMux()
	if h := provider.PrometheusHandler(); h != nil {
		mux.Handle("GET /metrics", h)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	return &MetricsServer{addr: addr, mux: mux}, nil
}

// StartWithReadySignal blocks serving metrics. ready is closed once the
// listener is bound, so a bind failure is returned before ready fires.
func (s *MetricsServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}

	slog.Info("starting metrics server", "addr", s.addr)
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown is a no-op before the server started.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr is the configured address until started, then the bound one.
func (s *MetricsServer) Addr() string {
	return s.addr
}
