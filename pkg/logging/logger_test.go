package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferedLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{level: level, output: log.New(&buf, "", 0), fields: make(map[string]interface{})}
	return l, &buf
}

func TestLevelBelowThresholdIsSuppressed(t *testing.T) {
	l, buf := newBufferedLogger(WARN)
	l.Info("should not appear")
	assert.Empty(t, buf.String())

	l.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestWithFieldsAreIncludedInOutput(t *testing.T) {
	l, buf := newBufferedLogger(DEBUG)
	tagged := l.WithField("component", "chain")
	tagged.Info("syncing", "height", 12)

	out := buf.String()
	assert.Contains(t, out, "component=chain")
	assert.Contains(t, out, "height=12")
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	l, buf := newBufferedLogger(DEBUG)
	_ = l.WithField("component", "chain")
	l.Info("plain")

	assert.NotContains(t, buf.String(), "component=chain")
}

func TestLevelStrings(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "ERROR", ERROR.String())
}
