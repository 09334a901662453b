package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/config"
)

// The daemon builds its logger straight from the file config, so the
// default level and format strings must construct a logger as-is.
func TestNewLoggerFromDaemonConfig(t *testing.T) {
	cfg := config.Default()
	logger, err := NewLogger(&Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "nil config uses defaults",
			cfg:  nil,
		},
		{
			name: "console format",
			cfg: &Config{
				Level:  "debug",
				Format: "console",
			},
		},
		{
			name: "empty level defaults to info",
			cfg: &Config{
				Format: "json",
			},
		},
		{
			name: "invalid format rejected",
			cfg: &Config{
				Level:  "info",
				Format: "xml",
			},
			wantErr: true,
		},
		{
			name: "invalid level rejected",
			cfg: &Config{
				Level:  "loud",
				Format: "json",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithThreadID(ctx, "thread-9")

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "thread-9", ThreadIDFromContext(ctx))
}

func TestLoggerCarriesContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := ContextWithThreadID(context.Background(), "abc123")

	tl.Info(ctx, "pipeline started")

	entries := tl.FilterMessage("pipeline started").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc123", entries[0].ContextMap()["thread.id"])
}
