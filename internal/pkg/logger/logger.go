// Package logger provides structured JSON logging with optional PII
// redaction. Callers log through package-level helpers with alternating
// key/value fields:
//
//	logger.Info("campaign queued", "campaign_id", id, "lane", lane)
//
// Components that log repeatedly derive a child logger with fixed fields via
// With.
package logger

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger and applies PII redaction to field
// values before they reach the encoder.
type Logger struct {
	sugar     *zap.SugaredLogger
	redactPII bool
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	l, err := build("info", true)
	if err != nil {
		l = &Logger{sugar: zap.NewNop().Sugar(), redactPII: true}
	}
	defaultLogger.Store(l)
}

// Init replaces the default logger. level is one of debug, info, warn, error.
func Init(level string, redactPII bool) error {
	l, err := build(level, redactPII)
	if err != nil {
		return err
	}
	defaultLogger.Store(l)
	return nil
}

func build(level string, redactPII bool) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)
	return New(core, redactPII), nil
}

// New creates a logger on top of an arbitrary zap core. Tests use this with
// an observer core.
func New(core zapcore.Core, redactPII bool) *Logger {
	return &Logger{sugar: zap.New(core).Sugar(), redactPII: redactPII}
}

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger.Load() }

// SetDefault installs l as the process-wide logger.
func SetDefault(l *Logger) { defaultLogger.Store(l) }

// Sync flushes buffered entries of the default logger.
func Sync() error { return Default().sugar.Sync() }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { Default().Debug(msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { Default().Info(msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { Default().Warn(msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { Default().Error(msg, fields...) }

// With returns a child of the default logger carrying the given fields.
func With(fields ...interface{}) *Logger { return Default().With(fields...) }

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(l.scrub(fields)...), redactPII: l.redactPII}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.sugar.Debugw(msg, l.scrub(fields)...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.sugar.Infow(msg, l.scrub(fields)...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.sugar.Warnw(msg, l.scrub(fields)...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.sugar.Errorw(msg, l.scrub(fields)...) }

// scrub normalizes key/value pairs: keys become strings, errors become their
// message, and PII in values is masked when redaction is on. A trailing key
// without a value is dropped.
func (l *Logger) scrub(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if err, ok := val.(error); ok && err != nil {
			val = err.Error()
		}
		if l.redactPII {
			if s, ok := val.(string); ok {
				val = redactPIIValue(key, s)
			} else if isPIIKey(key) {
				val = redactPIIValue(key, fmt.Sprintf("%v", val))
			}
		}
		out = append(out, key, val)
	}
	return out
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func isPIIKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"email", "address", "recipient", "phone"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func redactPIIValue(key, val string) string {
	if isPIIKey(key) {
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return RedactPhone(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
