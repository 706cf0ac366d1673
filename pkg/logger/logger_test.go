package logger_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/config"
	"github.com/arclane/conduit/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
		"":        slog.LevelWarn,
	}
	for in, want := range cases {
		require.Equal(t, want, logger.ParseLevel(in))
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	log := logger.New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NotNil(t, log)
	require.True(t, log.Enabled(t.Context(), slog.LevelDebug))
}

func TestGetInitializesOnce(t *testing.T) {
	a := logger.Get()
	b := logger.Get()
	require.Same(t, a, b)
}
