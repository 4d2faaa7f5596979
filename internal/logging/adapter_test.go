package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlogAdapter_NilUsesDefault(t *testing.T) {
	adapter := NewSlogAdapter(nil)
	require.NotNil(t, adapter)
	assert.Same(t, slog.Default(), adapter.Logger())
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(&buf, true, true))

	adapter.Debug("debug message", KeyRole, "from")
	adapter.Info("info message")
	adapter.Warn("warn message")
	adapter.Error("error message", KeyError, "boom")

	var levels []string
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var record map[string]any
		require.NoError(t, json.Unmarshal(line, &record))
		levels = append(levels, record["level"].(string))
	}
	assert.Equal(t, []string{"DEBUG", "INFO", "WARN", "ERROR"}, levels)
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewSlogAdapter(New(&buf, true, false))

	scoped := base.With(KeyOperation, "aggregate", KeyRole, "to")
	scoped.Warn("skipping address")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "aggregate", record[KeyOperation])
	assert.Equal(t, "to", record[KeyRole])

	buf.Reset()
	base.Info("unscoped")
	assert.NotContains(t, buf.String(), KeyOperation, "With must not change the parent")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped", KeyError, "boom")
	assert.NotNil(t, logger.With("k", "v"))
}

func TestDefaultLogger(t *testing.T) {
	var _ Logger = DefaultLogger()
	assert.Same(t, slog.Default(), DefaultLogger().Logger())
}
