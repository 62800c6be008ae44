package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
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

func TestAsyncHandlerWritesConsoleAndFile(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	console := &syncBuffer{}

	h := NewAsyncHandler(Options{Dir: dir, Level: slog.LevelInfo, Console: console})
	log := slog.New(h).With("conn", "c-1").WithGroup("socket")
	log.Debug("hidden")
	log.Info("hello", "account", "a@x.com")
	require.NoError(t, h.Close())

	out := console.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "conn=c-1")
	assert.Contains(t, out, "socket.account=a@x.com")
	assert.NotContains(t, out, "hidden")

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestAsyncHandlerDropsAfterClose(t *testing.T) {
	console := &syncBuffer{}
	h := NewAsyncHandler(Options{Console: console})
	require.NoError(t, h.Close())

	assert.NotPanics(t, func() {
		_ = h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "late", 0))
	})
	assert.False(t, strings.Contains(console.String(), "late"))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFor(true))
	assert.Equal(t, slog.LevelInfo, LevelFor(false))
}
