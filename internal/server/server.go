package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	oauth2v2 "google.golang.org/api/oauth2/v2"

	"github.com/teemow/followmail/internal/gmail"
	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/mailparse"
	"github.com/teemow/followmail/internal/session"
	"github.com/teemow/followmail/internal/store"
	"github.com/teemow/followmail/internal/threads"
)

const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":5000"

	// DefaultReadHeaderTimeout is the default read header timeout for the API server.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout is generous since a request may fan out to many
	// Gmail calls.
	DefaultWriteTimeout = 120 * time.Second

	// DefaultIdleTimeout is the default idle timeout for the API server.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultThreadLimit is the per-address limit of /api/email-threads when
	// the request does not set one.
	DefaultThreadLimit = 50

	// maxThreadLimit caps the per-address limit a client can ask for.
	maxThreadLimit = 500
)

// Authenticator runs the Google login flow and rebuilds stored credentials.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, tok *oauth2.Token) (*oauth2v2.Userinfo, error)
	UserInfoFromSource(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error)
	TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource
}

// Mailbox is one user's Gmail account.
type Mailbox interface {
	threads.Source
	AttachmentData(ctx context.Context, messageID, attachmentID string) (string, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	SendReply(ctx context.Context, r gmail.Reply) (*gmailapi.Message, error)
	SaveDraft(ctx context.Context, r gmail.Reply) (*gmailapi.Draft, error)
}

// MailboxFactory opens a user's mailbox from their token source.
type MailboxFactory func(ctx context.Context, ts oauth2.TokenSource) (Mailbox, error)

// GmailMailboxes opens mailboxes with the real Gmail API.
func GmailMailboxes(metrics *instrumentation.Metrics) MailboxFactory {
	return func(ctx context.Context, ts oauth2.TokenSource) (Mailbox, error) {
		client, err := gmail.NewClient(ctx, ts, metrics)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Config holds the tunables of the API server.
type Config struct {
	// CORSOrigins lists the origins allowed to call the API with credentials.
	CORSOrigins []string

	// MaxResults is the per-address search limit. Defaults to threads.DefaultMaxResults.
	MaxResults int64

	// Concurrency bounds concurrent Gmail calls per fan-out level.
	Concurrency int

	// RateLimit and RateBurst throttle the login endpoints per client IP.
	// A zero RateLimit disables throttling.
	RateLimit int
	RateBurst int

	// TrustProxy trusts X-Forwarded-For and X-Real-IP for the client IP.
	TrustProxy bool
}

// Deps are the collaborators of a Server.
type Deps struct {
	Auth      Authenticator
	Store     store.Store
	Sessions  *session.Manager
	Mailboxes MailboxFactory

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// Server is the followmail API.
type Server struct {
	cfg         Config
	auth        Authenticator
	store       store.Store
	sessions    *session.Manager
	mailboxes   MailboxFactory
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	audit       *instrumentation.AuditLogger
	health      *HealthChecker
	rateLimiter *RateLimiter

	httpServer *http.Server
	addr       string
}

// New creates a Server. Auth, Store and Sessions are required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Mailboxes == nil {
		deps.Mailboxes = GmailMailboxes(deps.Metrics)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = threads.DefaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = threads.DefaultConcurrency
	}

	s := &Server{
		cfg:       cfg,
		auth:      deps.Auth,
		store:     deps.Store,
		sessions:  deps.Sessions,
		mailboxes: deps.Mailboxes,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		health:    NewHealthChecker(deps.Store),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = cfg.RateLimit * 2
		}
		s.rateLimiter = NewRateLimiter(cfg.RateLimit, burst, cfg.TrustProxy)
	}
	return s, nil
}

// Health returns the server's health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Handler returns the fully wrapped API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	login := func(h http.HandlerFunc) http.Handler {
		return s.rateLimit(h)
	}

	mux.Handle("GET /api/login-url", login(s.handleLoginURL))
	mux.Handle("GET /api/oauth2callback", login(s.handleOAuthCallback))
	mux.HandleFunc("GET /api/me", s.withUser(s.handleMe))
	mux.HandleFunc("GET /api/session", s.withUser(s.handleSession))
	mux.HandleFunc("GET /api/profile", s.withUser(s.handleProfile))
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/emails", s.withMailbox(s.handleInbox))
	mux.HandleFunc("GET /api/emails/from/{sender}", s.withMailbox(s.handleFromSender))
	mux.HandleFunc("POST /api/emails/grouped", s.withMailbox(s.handleGrouped))
	mux.HandleFunc("POST /api/emails/followed", s.withMailbox(s.handleGrouped))
	mux.HandleFunc("GET /api/thread/{threadId}", s.withMailbox(s.handleThread))
	mux.HandleFunc("GET /api/attachment/{messageId}/{attachmentId}", s.withMailbox(s.handleAttachment))
	mux.HandleFunc("POST /api/email-threads", s.withMailbox(s.handleEmailThreads))
	mux.HandleFunc("POST /api/reply", s.withMailbox(s.handleReply))

	mux.HandleFunc("GET /api/followed-emails", s.withUser(s.handleGetFollowed))
	mux.HandleFunc("POST /api/followed-emails", s.withUser(s.handleSetFollowed))
	mux.HandleFunc("POST /api/follow-from-email", s.withUser(s.handleFollow(threads.RoleFrom)))
	mux.HandleFunc("POST /api/follow-to-email", s.withUser(s.handleFollow(threads.RoleTo)))

	s.health.RegisterHealthEndpoints(mux)

	return s.cors(s.instrument(mux))
}

// Start starts the API server in a blocking manner.
func (s *Server) Start(addr string) error {
	return s.StartWithReadySignal(addr, nil)
}

// StartWithReadySignal starts the API server and closes ready once the
// listener is bound.
func (s *Server) StartWithReadySignal(addr string, ready chan<- struct{}) error {
	if addr == "" {
		addr = DefaultAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.logger.Info("starting API server", "addr", s.addr)
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	if s.httpServer != nil {
		s.logger.Info("shutting down API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() string {
	return s.addr
}

// aggregator builds a request-scoped aggregator over mb.
func (s *Server) aggregator(mb Mailbox, maxResults int64) *threads.Aggregator {
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	return threads.New(mb,
		threads.WithLogger(s.logAdapter()),
		threads.WithMetrics(s.metrics),
		threads.WithMaxResults(maxResults),
		threads.WithConcurrency(s.cfg.Concurrency),
	)
}

// resolver builds a request-scoped inline image resolver over mb.
func (s *Server) resolver(mb Mailbox) *mailparse.Resolver {
	return &mailparse.Resolver{
		Fetch:  mb.AttachmentData,
		Logger: s.logAdapter(),
	}
}
