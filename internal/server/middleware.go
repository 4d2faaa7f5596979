package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/session"
	"github.com/teemow/followmail/internal/store"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument traces every request and records its duration by route
// pattern, keeping the path label bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := instrumentation.StartHTTPSpan(r.Context(), "HTTP "+r.Method)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		span.SetName(route)
		span.SetAttributes(
			attribute.String(instrumentation.SpanAttrRoute, route),
			attribute.Int("http.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, errors.New("HTTP "+strconv.Itoa(rec.status)))
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		s.metrics.RecordHTTPRequest(ctx, r.Method, route, rec.status, time.Since(start))
	})
}

// cors allows the configured origins to call the API with cookies.
func (s *Server) cors(next http.Handler) http.Handler {
	if len(s.cfg.CORSOrigins) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.cfg.CORSOrigins, origin) || slices.Contains(s.cfg.CORSOrigins, "*")) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles a handler per client IP when a limiter is configured.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r, s.rateLimiter.trustProxy)
		if !s.rateLimiter.Allow(ip) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *store.User)

type mailboxHandler func(w http.ResponseWriter, r *http.Request, u *store.User, mb Mailbox)

// withUser resolves the session cookie to a stored user.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		googleID, err := s.sessions.FromRequest(r)
		if err != nil {
			cookie, cookieErr := r.Cookie(session.CookieName)
			if cookieErr != nil {
				writeError(w, http.StatusUnauthorized, "No session")
				return
			}
			s.logger.DebugContext(r.Context(), "rejected session token",
				"token", logging.SanitizeToken(cookie.Value),
				logging.Err(err))
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		u, err := s.store.GetUser(r.Context(), googleID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid user")
			return
		}
		if err != nil {
			s.logger.ErrorContext(r.Context(), "failed to load user", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}

		next(w, r, u)
	}
}

// withMailbox additionally opens the user's Gmail mailbox from their stored
// refresh token.
func (s *Server) withMailbox(next mailboxHandler) http.HandlerFunc {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, u *store.User) {
		if u.RefreshToken == "" {
			writeError(w, http.StatusUnauthorized, "No refresh token found")
			return
		}

		mb, err := s.openMailbox(r.Context(), u)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "failed to open mailbox", logging.Err(err))
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to open mailbox", err)
			return
		}

		next(w, r, u, mb)
	})
}

func (s *Server) openMailbox(ctx context.Context, u *store.User) (Mailbox, error) {
	return s.mailboxes(ctx, s.auth.TokenSource(ctx, u.RefreshToken))
}

func (s *Server) logAdapter() logging.Logger {
	return logging.NewSlogAdapter(s.logger)
}
