// Package logging provides structured logging utilities for followmail.
//
// Everything logs through log/slog. The helpers here keep attribute names
// consistent and keep personal data out of log lines.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := slog.Default().With(logging.Operation("aggregate"))
//	logger.Info("listing threads", logging.Role("from"), logging.Route(r.Pattern))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("user signed in", logging.UserHash(email))
//
// # Security Considerations
//
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly, only their length via SanitizeToken
package logging
