package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		json      bool
		debug     bool
		wantDebug bool
		wantJSON  bool
	}{
		{name: "json info", json: true, wantJSON: true},
		{name: "json debug", json: true, debug: true, wantDebug: true, wantJSON: true},
		{name: "text info"},
		{name: "text debug", debug: true, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.json, tt.debug)

			logger.Debug("debug line")
			logger.Info("info line", Operation("aggregate"))

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Contains(t, out, "info line")
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(out, "{"))
		})
	}
}

// record logs one line with attrs through a JSON handler and decodes it.
func record(t *testing.T, attrs ...any) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("line", attrs...)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestAttrs(t *testing.T) {
	out := record(t,
		Operation("reply"),
		Role("to"),
		Route("GET /api/thread/{threadId}"),
		TraceID("4bf92f3577b34da6a3ce929d0e0e4736"),
		Err(errors.New("boom")),
	)

	assert.Equal(t, "reply", out[KeyOperation])
	assert.Equal(t, "to", out[KeyRole])
	assert.Equal(t, "GET /api/thread/{threadId}", out[KeyRoute])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out[KeyTraceID])
	assert.Equal(t, "boom", out[KeyError])
}

func TestAttrs_OmittedWhenEmpty(t *testing.T) {
	out := record(t, Err(nil), TraceID(""))

	assert.NotContains(t, out, KeyError)
	assert.NotContains(t, out, KeyTraceID)
	assert.NotContains(t, out, "")
}

func TestRoute_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", Route("").Value.String())
}

func TestAnonymizeEmail(t *testing.T) {
	hash := AnonymizeEmail("jane@example.com")

	assert.True(t, strings.HasPrefix(hash, "user:"))
	assert.Len(t, hash, len("user:")+16)
	assert.NotContains(t, hash, "jane")
	assert.Equal(t, hash, AnonymizeEmail("jane@example.com"))
	assert.NotEqual(t, hash, AnonymizeEmail("john@example.com"))
	assert.Empty(t, AnonymizeEmail(""))
}

func TestUserHash(t *testing.T) {
	attr := UserHash("jane@example.com")

	assert.Equal(t, KeyUserHash, attr.Key)
	assert.Equal(t, AnonymizeEmail("jane@example.com"), attr.Value.String())
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))

	token := "eyJhbGciOiJIUzI1NiJ9.payload.signature"
	got := SanitizeToken(token)
	assert.Equal(t, "[token:38 chars]", got)
	assert.NotContains(t, got, "eyJ")
}
