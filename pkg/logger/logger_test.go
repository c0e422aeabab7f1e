package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestInit_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "datimsync.log")
	Init("debug", "file:"+path)
	Info("sync_started", "run_id", "r1")
	Sync()
	Log = nil

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=sync_started")
	assert.Contains(t, string(b), "run_id=r1")
}

func TestAuditSink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AttachAuditFileSink(dir))
	defer func() { Audit = nil }()
	AuditLogger().Info("sync_run", "status", "complete")
	b, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"sync_run"`)
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	LogSummary(&buf, "batch_MER", []string{"concepts: 2"})
	assert.Contains(t, buf.String(), "== Batch MER ")
	assert.Contains(t, buf.String(), "- concepts: 2\n")

	buf.Reset()
	LogSummary(&buf, "empty", nil)
	assert.Empty(t, buf.String())
}
