package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

func evt(message string, level config.LogLevel, at time.Time) logstream.LogEvent {
	return logstream.LogEvent{ServiceID: "checkout-api", Level: level, Message: message, Timestamp: at}
}

func TestClassifyPattern_FatalPanicOOMIsCritical(t *testing.T) {
	now := time.Now()
	e := evt("panic: runtime error", config.LogLevelFatal, now)
	m := classifyPattern([]logstream.LogEvent{e}, e)
	assert.True(t, m.matched)
	assert.Equal(t, config.SeverityCritical, m.severity)
}

func TestClassifyPattern_ConnectionRefusedIsHigh(t *testing.T) {
	now := time.Now()
	e := evt("dial tcp: connection refused", config.LogLevelError, now)
	m := classifyPattern([]logstream.LogEvent{e}, e)
	assert.True(t, m.matched)
	assert.Equal(t, config.SeverityHigh, m.severity)
}

func TestClassifyPattern_HTTP5xxIsHigh(t *testing.T) {
	now := time.Now()
	e := evt("upstream returned HTTP 503", config.LogLevelError, now)
	m := classifyPattern([]logstream.LogEvent{e}, e)
	assert.True(t, m.matched)
	assert.Equal(t, config.SeverityHigh, m.severity)
}

func TestClassifyPattern_TimeoutNeedsThreeHitsInWindow(t *testing.T) {
	now := time.Now()
	window := []logstream.LogEvent{
		evt("request timeout", config.LogLevelWarn, now.Add(-40*time.Second)),
		evt("deadline exceeded", config.LogLevelWarn, now.Add(-20*time.Second)),
	}
	latest := evt("timeout waiting for upstream", config.LogLevelWarn, now)
	window = append(window, latest)

	m := classifyPattern(window, latest)
	assert.True(t, m.matched)
	assert.Equal(t, config.SeverityMedium, m.severity)
}

func TestClassifyPattern_TwoTimeoutHitsDoNotEscalate(t *testing.T) {
	now := time.Now()
	window := []logstream.LogEvent{
		evt("request timeout", config.LogLevelWarn, now.Add(-20*time.Second)),
	}
	latest := evt("deadline exceeded", config.LogLevelWarn, now)
	window = append(window, latest)

	m := classifyPattern(window, latest)
	assert.False(t, m.matched)
}

func TestClassifyPattern_TimeoutOutsideWindowDoesNotCount(t *testing.T) {
	now := time.Now()
	window := []logstream.LogEvent{
		evt("request timeout", config.LogLevelWarn, now.Add(-90*time.Second)),
		evt("deadline exceeded", config.LogLevelWarn, now.Add(-70*time.Second)),
	}
	latest := evt("timeout again", config.LogLevelWarn, now)
	window = append(window, latest)

	m := classifyPattern(window, latest)
	assert.False(t, m.matched)
}

func TestClassifyPattern_WarnAloneDoesNotEscalate(t *testing.T) {
	now := time.Now()
	e := evt("warn: cache miss", config.LogLevelWarn, now)
	m := classifyPattern([]logstream.LogEvent{e}, e)
	assert.False(t, m.matched)
}
