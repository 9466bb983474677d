package postgres

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{9, time.Minute},
		{1000, time.Minute},
	}
	for _, tt := range tests {
		if got := backoff(time.Second, time.Minute, tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestDeadLetterFor(t *testing.T) {
	msg := "broker unavailable"
	created := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	raw, err := deadLetterFor(&Event{
		ID:          7,
		AggregateID: "order-1",
		Type:        EventOrderSubmitted,
		Payload:     json.RawMessage(`{"order_id":"order-1"}`),
		Topic:       "intake.submitted",
		Key:         "order-1",
		CreatedAt:   created,
		Attempts:    4,
		LastError:   &msg,
	})
	if err != nil {
		t.Fatal(err)
	}

	var dl DeadLetter
	if err := json.Unmarshal(raw, &dl); err != nil {
		t.Fatal(err)
	}
	if dl.OriginalTopic != "intake.submitted" || dl.EventType != EventOrderSubmitted || dl.AggregateID != "order-1" {
		t.Errorf("envelope = %+v", dl)
	}
	if dl.RetryCount != 5 {
		t.Errorf("retry count = %d, want the failed attempt included", dl.RetryCount)
	}
	if dl.LastError == nil || *dl.LastError != msg || !dl.CreatedAt.Equal(created) {
		t.Errorf("envelope = %+v", dl)
	}
	if string(dl.Payload) != `{"order_id":"order-1"}` {
		t.Errorf("payload = %s", dl.Payload)
	}
}

func TestDefaultOutboxConfig(t *testing.T) {
	cfg := DefaultOutboxConfig()
	if cfg.MaxRetries < 1 || cfg.BatchSize < 1 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.RetryBackoff > cfg.MaxBackoff {
		t.Error("first retry waits longer than the ceiling")
	}
}
