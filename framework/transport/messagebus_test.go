package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestPublishWithRetry(t *testing.T) {
	policy := &ExponentialBackoffRetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: 3}

	pub := &flakyPublisher{failures: 2}
	if err := PublishWithRetry(context.Background(), pub, policy, "subj", nil, nil); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if pub.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", pub.calls)
	}

	pub = &flakyPublisher{failures: 5}
	if err := PublishWithRetry(context.Background(), pub, policy, "subj", nil, nil); err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if pub.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", pub.calls)
	}

	pub = &flakyPublisher{failures: 5}
	if err := PublishWithRetry(context.Background(), pub, nil, "subj", nil, nil); err == nil || pub.calls != 1 {
		t.Errorf("Expected single failed attempt without policy, got %d calls, err %v", pub.calls, err)
	}
}

func TestPublishWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := &ExponentialBackoffRetryPolicy{InitialDelay: time.Hour, Multiplier: 1, MaxAttempts: 3}
	err := PublishWithRetry(ctx, &flakyPublisher{failures: 5}, policy, "subj", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestExponentialBackoffRetryPolicy_GetDelay(t *testing.T) {
	p := &ExponentialBackoffRetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2, MaxAttempts: 5}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.GetDelay(i + 1); got != w {
			t.Errorf("GetDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if p.ShouldRetry(5, errors.New("x")) {
		t.Error("ShouldRetry must stop at MaxAttempts")
	}
	if p.ShouldRetry(1, nil) {
		t.Error("ShouldRetry must not retry success")
	}
}
