package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Interface compliance (compile-time assertions)
var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
	_ Logger = (*ArbiterLogger)(nil)
)

func newBufferedLogger(level LogLevel) (*ArbiterLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return l, &buf
}

func TestLogger_LevelGating(t *testing.T) {
	l, buf := newBufferedLogger(LogLevelWarn)

	l.Debug("debug msg")
	l.Info("info msg")
	assert.Empty(t, buf.String())

	l.Warn("warn msg")
	l.Error("error msg")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestLogger_ContextualAttributes(t *testing.T) {
	l, buf := newBufferedLogger(LogLevelInfo)

	l.WithComponent("stage").WithRun("run-42").WithContext("agent", "security").Info("hello")

	var entry map[string]any
	assert.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "stage", entry["component"])
	assert.Equal(t, "run-42", entry["run_id"])
	assert.Equal(t, "security", entry["agent"])
	assert.Equal(t, "hello", entry["msg"])
}

func TestLogger_WithMethodsDoNotMutateParent(t *testing.T) {
	l, buf := newBufferedLogger(LogLevelInfo)
	_ = l.WithComponent("child").WithContext("k", "v")

	l.Info("parent entry")
	var entry map[string]any
	assert.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	_, hasComponent := entry["component"]
	assert.False(t, hasComponent)
	_, hasK := entry["k"]
	assert.False(t, hasK)
}

func TestLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferedLogger(LogLevelInfo)

	l.LogAgentCall("security", "success", 120*time.Millisecond, nil)
	l.LogAgentCall("parser", "failed", time.Second, errors.New("boom"))
	l.LogStage(0, 3, 2, time.Second)
	l.LogQualityIteration(1, 0.92, 0.03, true)
	l.LogBreakerTransition("llm-call", "CLOSED", "OPEN", 5)

	out := buf.String()
	assert.Contains(t, out, "Agent invocation completed")
	assert.Contains(t, out, "Agent invocation failed")
	assert.Contains(t, out, "Stage completed")
	assert.Contains(t, out, "Quality iteration completed")
	assert.Contains(t, out, "Circuit breaker transition")
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
}
