package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	if StreamsStarted == nil || LiveStreamsGauge == nil || WebhookEvents == nil {
		t.Fatal("metrics not registered after Init")
	}
	// Second Init must not re-register (promauto panics on duplicates).
	Init()
}

func TestCountWebhookEvent(t *testing.T) {
	Init()
	// Must not panic for arbitrary event labels.
	CountWebhookEvent("publish")
	CountWebhookEvent("play_done")
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(RequestDuration, func() { time.Sleep(time.Millisecond) })
	if d < time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 1ms", d)
	}
	// Nil observer is tolerated.
	if d := TimeFunc(nil, func() {}); d < 0 {
		t.Errorf("negative duration: %v", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
	if l := LoggerWithCorr(ctx); l == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
