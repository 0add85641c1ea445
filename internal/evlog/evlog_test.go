package evlog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelInfo, parseLevel("INFO"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("CRITICAL"))
	require.Equal(t, slog.LevelError, parseLevel(""))
	require.Equal(t, slog.LevelError, parseLevel("bogus"))
}
