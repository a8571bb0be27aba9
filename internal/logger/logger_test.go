package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsSplitError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Error("store", "persist failed", map[string]any{"error": errors.New("disk full"), "experiment": "e1"})
	l.Info("server", "listening", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "store", ctx["module"])
	assert.Equal(t, "disk full", ctx["error"])
	assert.Equal(t, map[string]any{"experiment": "e1"}, ctx["details"])

	assert.Equal(t, map[string]any{"module": "server"}, entries[1].ContextMap())
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Warn("x", "y", map[string]any{"k": 1})
	assert.NoError(t, l.Sync())
}
