package internal

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LogLevelTrace, ParseLogLevel(" trace "))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("loud"))
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := captureLog(t)
	l := NewLogger(LogLevelWarn)

	l.Info("hidden")
	l.Warn("shown %d", 1)

	assert.Equal(t, "[WARN] shown 1\n", buf.String())
}

func TestLogger_WithComponent(t *testing.T) {
	buf := captureLog(t)
	l := NewLogger(LogLevelDebug).WithComponent("anomaly")

	l.Debug("cell %s", "A1")

	assert.Equal(t, "[DEBUG] [anomaly] cell A1\n", buf.String())
	assert.Equal(t, LogLevelDebug, l.GetLevel())
}

func TestLogger_SetLevelReachesComponents(t *testing.T) {
	buf := captureLog(t)
	root := NewLogger(LogLevelError)
	child := root.WithComponent("excel")

	child.Info("before")
	root.SetLevel(LogLevelInfo)
	child.Info("after")

	assert.Equal(t, "[INFO] [excel] after\n", buf.String())
}
