package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressmark/pressmark/pkg/logger"
)

func TestNewWithOutput(t *testing.T) {
	t.Parallel()

	t.Run("json format with static attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.NewWithOutput(logger.Config{Level: "info", Format: "json"}, &buf,
			slog.String("app", "pressmark"))

		log.Info("hello")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "pressmark", record["app"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.NewWithOutput(logger.Config{Level: "info", Format: "text"}, &buf)

		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.NewWithOutput(logger.Config{Level: "error", Format: "json"}, &buf)

		log.Info("dropped")
		assert.Empty(t, buf.String())

		log.Error("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("unknown level panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.NewWithOutput(logger.Config{Level: "loud"}, &bytes.Buffer{})
		})
	})

	t.Run("unknown format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.NewWithOutput(logger.Config{Format: "xml"}, &bytes.Buffer{})
		})
	})
}
