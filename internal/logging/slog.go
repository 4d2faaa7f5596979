package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
)

// Attribute keys shared by every package.
const (
	KeyOperation = "operation"
	KeyRoute     = "route"
	KeyRole      = "role"
	KeyUserHash  = "user_hash"
	KeyError     = "error"
	KeyMessageID = "message_id"
	KeyTraceID   = "trace_id"
)

// New returns a logger writing to w. JSON output is meant for deployed
// servers, text output for a terminal. debug lowers the level to Debug.
func New(w io.Writer, jsonFormat, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Route is the matched mux pattern, never the raw path.
func Route(pattern string) slog.Attr {
	if pattern == "" {
		pattern = "unmatched"
	}
	return slog.String(KeyRoute, pattern)
}

// Role is a follow role, "from" or "to".
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// TraceID is omitted when id is empty, so callers can pass whatever the
// current span reports.
func TraceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String(KeyTraceID, id)
}

// Err is omitted from the output when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail hashes an address so log lines about the same user can be
// correlated without storing the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken reports only the length of a token. Even a JWT header
// prefix is withheld.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
