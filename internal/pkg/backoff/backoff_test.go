package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	p := New(100*time.Millisecond, time.Second, false)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{12, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNewDefaults(t *testing.T) {
	p := New(0, 0, false)
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, time.Second, p.Max)
}

func TestJitterStaysWithinBounds(t *testing.T) {
	p := New(100*time.Millisecond, time.Second, true)

	p.rand = func() float64 { return 0.5 }
	assert.Equal(t, 200*time.Millisecond, p.Delay(3))

	p.rand = func() float64 { return 0 }
	assert.Equal(t, MinDelay, p.Delay(3))

	p.rand = nil
	for i := 0; i < 50; i++ {
		d := p.Delay(4)
		assert.GreaterOrEqual(t, d, MinDelay)
		assert.LessOrEqual(t, d, 800*time.Millisecond)
	}
}
