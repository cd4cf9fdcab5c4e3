package provider

import (
	"context"
	"testing"
	"time"
)

func TestRateLimited_Delegates(t *testing.T) {
	inner := &mockProvider{name: "inner", msgID: "m-1"}
	r := NewRateLimited(inner, 1000, 10)

	for i := 0; i < 5; i++ {
		res, err := r.Send(context.Background(), samplePayload())
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if res.ProviderMessageID != "m-1" {
			t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
		}
	}
	if inner.sent != 5 {
		t.Errorf("inner sent = %d, want 5", inner.sent)
	}
	if r.GetName() != "inner" {
		t.Errorf("GetName() = %q", r.GetName())
	}
}

func TestRateLimited_DeadlineWhileWaiting(t *testing.T) {
	inner := &mockProvider{name: "inner"}
	r := NewRateLimited(inner, 0.5, 1)

	if _, err := r.Send(context.Background(), samplePayload()); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Send(ctx, samplePayload())
	if err == nil {
		t.Fatal("expected limiter error")
	}
	if !IsTimeout(err) {
		t.Errorf("expected timeout classification, got %v", err)
	}
	if inner.sent != 1 {
		t.Errorf("inner sent = %d, want 1", inner.sent)
	}
}

func TestRateLimited_MinimumBurst(t *testing.T) {
	r := NewRateLimited(&mockProvider{name: "inner"}, 5, 0)
	if r.limiter.Burst() != 1 {
		t.Errorf("Burst() = %d, want 1", r.limiter.Burst())
	}
}
