package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"fatal":   LevelFatal,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestAsyncHandlerWritesStdoutAndFile(t *testing.T) {
	color.NoColor = true
	out := &syncBuffer{}
	dir := t.TempDir()

	h := newAsyncHandler(out, dir, slog.LevelInfo, 0)
	log := slog.New(h).With("conn", "127.0.0.1:1").WithGroup("req")
	log.Debug("hidden")
	log.Info("request handled", "id", "abc")
	require.NoError(t, h.Close())

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "request handled")
	assert.Contains(t, out.String(), "conn=127.0.0.1:1")
	assert.Contains(t, out.String(), "req.id=abc")

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "request handled")
}

func TestAsyncHandlerAfterClose(t *testing.T) {
	color.NoColor = true
	out := &syncBuffer{}
	h := newAsyncHandler(out, "", slog.LevelDebug, 0)
	require.NoError(t, h.Close())
	require.NoError(t, (&ShutdownCallback{handler: h}).Invoke(context.Background()))

	require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelWarn, "late record", 0)))
	assert.Contains(t, out.String(), "late record")
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2000-01-01.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	h := newAsyncHandler(&syncBuffer{}, dir, slog.LevelInfo, 24*time.Hour)
	require.NoError(t, h.Close())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
}
