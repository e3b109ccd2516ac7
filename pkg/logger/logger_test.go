package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBadgerAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewBadger(l).Warningf("value log %d truncated\n", 3)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="value log 3 truncated"`)
	assert.Contains(t, buf.String(), "component=badger")
}

func TestCronAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	c := NewCron(l)

	c.Info("wake", "now", "x")
	assert.Empty(t, buf.String())

	c.Error(errors.New("panic"), "job failed", "entry", 1)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "error=panic")
	assert.Contains(t, buf.String(), "entry=1")
}
