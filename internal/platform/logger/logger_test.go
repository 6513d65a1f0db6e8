// Package logger_test contains tests for the logger package
package logger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/beepbeepai/alttext-api/internal/config"
	"github.com/beepbeepai/alttext-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug_level", logLevel: "debug"},
		{name: "info_level", logLevel: "info"},
		{name: "warn_level", logLevel: "warn"},
		{name: "error_level", logLevel: "error"},
		{name: "case_insensitive", logLevel: "INFO"},
		{name: "invalid_falls_back_to_info", logLevel: "chatty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := logger.Setup(config.ServerConfig{Port: 8080, LogLevel: tt.logLevel})
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.Same(t, log, slog.Default(), "Setup should install the logger as default")
		})
	}
}

func TestFromContext(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("returns_logger_from_context", func(t *testing.T) {
		ctx := logger.WithContext(context.Background(), base)
		assert.Same(t, base, logger.FromContext(ctx))
	})

	t.Run("falls_back_to_default", func(t *testing.T) {
		assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
	})

	t.Run("or_default_prefers_context", func(t *testing.T) {
		fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx := logger.WithContext(context.Background(), base)
		assert.Same(t, base, logger.FromContextOrDefault(ctx, fallback))
		assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	})
}
