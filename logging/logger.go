package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface used throughout arbiter.
// Users may provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface. The
// embedded logger's leveled methods satisfy Logger directly.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures construction of an ArbiterLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	RunID     string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// ArbiterLogger is a structured logger with contextual derivation (component,
// run, arbitrary attributes) and convenience methods for the recurring
// orchestration events. Derived loggers share the underlying handler; the
// With* methods never mutate their receiver.
type ArbiterLogger struct {
	base *slog.Logger
}

// NewLogger builds an ArbiterLogger from a config (or defaults if nil).
// Entries below the configured level are dropped by the handler.
func NewLogger(cfg *LoggerConfig) *ArbiterLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	l := &ArbiterLogger{base: slog.New(h)}
	if cfg.Component != "" {
		l = l.WithComponent(cfg.Component)
	}
	if cfg.RunID != "" {
		l = l.WithRun(cfg.RunID)
	}
	return l
}

// WithContext returns a derived logger carrying an extra key/value attribute.
func (l *ArbiterLogger) WithContext(key string, value any) *ArbiterLogger {
	return &ArbiterLogger{base: l.base.With(key, value)}
}

// WithComponent returns a derived logger tagged with the logical component
// (plan, stage, quality, engine...).
func (l *ArbiterLogger) WithComponent(c string) *ArbiterLogger {
	return l.WithContext("component", c)
}

// WithRun returns a derived logger tagged with the run identifier.
func (l *ArbiterLogger) WithRun(runID string) *ArbiterLogger {
	return l.WithContext("run_id", runID)
}

// Debug logs at debug level. Args are slog style key/value pairs.
func (l *ArbiterLogger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }

// Info logs at info level.
func (l *ArbiterLogger) Info(msg string, args ...any) { l.base.Info(msg, args...) }

// Warn logs at warn level.
func (l *ArbiterLogger) Warn(msg string, args ...any) { l.base.Warn(msg, args...) }

// Error logs at error level.
func (l *ArbiterLogger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

// LogAgentCall records execution details for one agent invocation.
func (l *ArbiterLogger) LogAgentCall(agent, status string, dur time.Duration, err error) {
	if err != nil {
		l.base.Error("Agent invocation failed",
			"agent", agent, "status", status, "duration", dur, "error", err.Error())
		return
	}
	l.base.Info("Agent invocation completed",
		"agent", agent, "status", status, "duration", dur)
}

// LogStage records aggregate metrics for one executed stage.
func (l *ArbiterLogger) LogStage(index, size, successes int, dur time.Duration) {
	l.base.Info("Stage completed",
		"stage", index, "size", size, "successes", successes, "duration", dur)
}

// LogBreakerTransition records a circuit breaker state change.
func (l *ArbiterLogger) LogBreakerTransition(category, from, to string, failures int) {
	l.base.Warn("Circuit breaker transition",
		"category", category, "from", from, "to", to, "failures", failures)
}

// LogQualityIteration records one quality-control iteration verdict.
func (l *ArbiterLogger) LogQualityIteration(iteration int, confidence, bias float64, converged bool) {
	l.base.Info("Quality iteration completed",
		"iteration", iteration, "confidence", confidence, "bias", bias, "converged", converged)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *ArbiterLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() {
		l.base.Info("Operation completed", "operation", op, "duration", time.Since(start))
	}
}
