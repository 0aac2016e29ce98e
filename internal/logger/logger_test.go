package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Debug("hidden")
	log.Info("shown", "node", "a")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "node=a")
}

func TestAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf).With("cache", "test").WithGroup("cmd")

	log.Debug("invoked", "kind", "ReadWriteKey", "keys", 3, "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "invoked")
	assert.Contains(t, out, "cache=test")
	assert.Contains(t, out, "cmd.kind=ReadWriteKey")
	assert.Contains(t, out, "cmd.keys=3")
	assert.Contains(t, out, "boom")
}

func TestToZerologLevel(t *testing.T) {
	assert.Equal(t, "debug", toZerologLevel(slog.LevelDebug).String())
	assert.Equal(t, "info", toZerologLevel(slog.LevelInfo).String())
	assert.Equal(t, "warn", toZerologLevel(slog.LevelWarn).String())
	assert.Equal(t, "error", toZerologLevel(slog.LevelError).String())
	assert.Equal(t, slog.LevelWarn, getSLogLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, getSLogLevel("verbose"))
}
