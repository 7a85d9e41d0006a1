package utils

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json"})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, path)
}

func TestKVSkipsMalformedPairs(t *testing.T) {
	fields := KV("workflow_id", "wf-1", 42, "ignored", "error", errors.New("boom"), "dangling")

	require.Len(t, fields, 2)
	assert.Equal(t, "workflow_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}

func TestSugarLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewSugarLogger(zap.New(core))

	l.Info("Decision recorded", "workflow_id", "wf-1")
	l.Error("Emit failed", "error", errors.New("closed"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "wf-1", entries[0].ContextMap()["workflow_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	assert.True(t, IsValidID(id))
	assert.NotEqual(t, id, NewID())
	assert.False(t, IsValidID("not-a-uuid"))
}
