package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn)

	log.Info("SYSTEM", "hidden message")
	log.Warn("SYSTEM", "visible warning")
	log.LogSecurity("SIGNATURE", "bad signature")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "[SIGNATURE] bad signature")
}

func TestLoggerFatalExits(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug)
	code := -1
	log.exit = func(c int) { code = c }

	log.Fatal("DATABASE", "boom")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "boom")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
