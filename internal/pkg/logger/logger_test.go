package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactEmail(tt.in))
		})
	}
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***67", RedactPhone("+15551234567"))
	assert.Equal(t, "***", RedactPhone("1234"))
}

func TestFieldsAreRedacted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(core, true)

	l.Info("batch sent",
		"recipient_address", "jane@example.com",
		"phone", "+15551234567",
		"note", "reply to bob.smith@example.org please",
		"campaign_id", "c-1",
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ja***@example.com", fields["recipient_address"])
	assert.Equal(t, "***67", fields["phone"])
	assert.Equal(t, "reply to bo***@example.org please", fields["note"])
	assert.Equal(t, "c-1", fields["campaign_id"])
}

func TestRedactionDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(core, false)

	l.Warn("raw", "email", "jane@example.com")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "jane@example.com", logs.All()[0].ContextMap()["email"])
}

func TestErrorsAndWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(core, true).With("component", "worker")

	l.Error("send failed", "error", errors.New("timeout"), "dangling")
	l.Debug("dropped below level")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "worker", fields["component"])
	assert.Equal(t, "timeout", fields["error"])
	_, hasDangling := fields["dangling"]
	assert.False(t, hasDangling)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("loud", true))
	assert.NoError(t, Init("debug", true))
	t.Cleanup(func() { _ = Init("info", true) })
}
