package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressmark/pressmark/pkg/config"
)

type testConfig struct {
	Addr     string        `env:"TEST_ADDR" envDefault:":8080"`
	Timeout  time.Duration `env:"TEST_TIMEOUT" envDefault:"5s"`
	Required string        `env:"TEST_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Run("parses environment into struct", func(t *testing.T) {
		t.Setenv("TEST_ADDR", ":9090")
		t.Setenv("TEST_TIMEOUT", "30s")
		t.Setenv("TEST_REQUIRED", "value")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, "value", cfg.Required)
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "value")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg testConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on missing required variable", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})
}
