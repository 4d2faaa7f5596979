package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Audited action names.
const (
	ActionLogin         = "login"
	ActionReplySent     = "reply_sent"
	ActionDraftSaved    = "draft_saved"
	ActionFollowAdded   = "follow_added"
	ActionFollowReplace = "follow_replaced"
)

// Action captures a user action that changes a mailbox or account state.
//
// # Privacy Considerations
//
// UserEmail and Target contain PII. LogAttrs only emits the user's domain;
// LogAuditAttrs emits both in full and must go to an access controlled sink.
type Action struct {
	Name string

	// User identity (from the session)
	UserEmail string

	// Target is the address the action was about: the reply recipient or the
	// followed address.
	Target string

	// Role is "from" or "to" for follow list changes.
	Role string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewAction creates an Action with timing started.
func NewAction(name, userEmail string) *Action {
	return &Action{
		Name:      name,
		UserEmail: userEmail,
		StartTime: time.Now(),
	}
}

// WithTarget sets the address the action was about.
func (a *Action) WithTarget(target string) *Action {
	a.Target = target
	return a
}

// WithRole sets the follow role.
func (a *Action) WithRole(role string) *Action {
	a.Role = role
	return a
}

// WithSpanContext copies trace and span ids from ctx.
func (a *Action) WithSpanContext(ctx context.Context) *Action {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		a.TraceID = sc.TraceID().String()
		a.SpanID = sc.SpanID().String()
	}
	return a
}

// Complete marks the action finished. A non-nil err marks it failed.
func (a *Action) Complete(err error) *Action {
	a.Duration = time.Since(a.StartTime)
	a.Success = err == nil
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Status returns "success" or "error".
func (a *Action) Status() string {
	if a.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns cardinality-controlled attributes without PII.
func (a *Action) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", a.Name),
		slog.String("user_domain", ExtractUserDomain(a.UserEmail)),
		slog.Duration("duration", a.Duration),
		slog.Bool("success", a.Success),
	}
	if a.Role != "" {
		attrs = append(attrs, slog.String("role", a.Role))
	}
	if a.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", a.TraceID))
	}
	if a.Error != "" {
		attrs = append(attrs, slog.String("error", a.Error))
	}
	return attrs
}

// LogAuditAttrs returns the full attribute set including user and target.
func (a *Action) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", a.Name),
		slog.String("user", a.UserEmail),
		slog.Duration("duration", a.Duration),
		slog.Bool("success", a.Success),
	}
	if a.Target != "" {
		attrs = append(attrs, slog.String("target", a.Target))
	}
	if a.Role != "" {
		attrs = append(attrs, slog.String("role", a.Role))
	}
	if a.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", a.TraceID))
	}
	if a.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", a.SpanID))
	}
	if a.Error != "" {
		attrs = append(attrs, slog.String("error", a.Error))
	}
	return attrs
}

// AuditLogger writes one record per completed Action.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger from config. A nil logger uses
// slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log records a completed action. Successful actions log at info, failed
// ones at warn. A nil AuditLogger discards the record.
func (al *AuditLogger) Log(a *Action) {
	if al == nil || !al.enabled || a == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = a.LogAuditAttrs()
	} else {
		attrs = a.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if a.Success {
		al.logger.Info("audit", args...)
	} else {
		al.logger.Warn("audit", args...)
	}
}
