package eventsourcing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingProjection struct {
	mu       sync.Mutex
	handled  []string
	failures int
	notify   chan string
}

func (p *recordingProjection) Name() string { return "recording" }

func (p *recordingProjection) HandleEvent(ctx context.Context, event StoredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("downstream unavailable")
	}
	p.handled = append(p.handled, event.EventType)
	if p.notify != nil {
		p.notify <- event.EventType
	}
	return nil
}

func (p *recordingProjection) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.handled...)
}

func TestProjectionRunner_CatchUpAndCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
	_ = store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b"))
	_ = store.AppendEvents(ctx, "agg-2", 0, newTestEvents("agg-2", "c"))

	checkpoints := NewInMemoryCheckpointStore()
	projection := &recordingProjection{}
	runner := NewProjectionRunner(projection, store, checkpoints, DefaultProjectionConfig())

	processed, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 3 {
		t.Errorf("Expected 3 processed events, got %d", processed)
	}
	if position, _ := checkpoints.GetCheckpoint(ctx, "recording"); position != 3 {
		t.Errorf("Expected checkpoint 3, got %d", position)
	}

	processed, _ = runner.RunOnce(ctx)
	if processed != 0 {
		t.Errorf("Events before the checkpoint must not be redelivered, got %d", processed)
	}

	_ = store.AppendEvents(ctx, "agg-1", 2, newTestEvents("agg-1", "d"))
	processed, _ = runner.RunOnce(ctx)
	got := projection.types()
	if processed != 1 || len(got) != 4 || got[3] != "d" {
		t.Errorf("Expected only new event d, got %v", got)
	}
}

func TestProjectionRunner_FailedEventIsRedelivered(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
	_ = store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b"))

	checkpoints := NewInMemoryCheckpointStore()
	projection := &recordingProjection{failures: 1}
	runner := NewProjectionRunner(projection, store, checkpoints, DefaultProjectionConfig())

	if _, err := runner.RunOnce(ctx); err == nil {
		t.Fatal("Expected error from failing projection")
	}
	if position, _ := checkpoints.GetCheckpoint(ctx, "recording"); position != 0 {
		t.Errorf("Checkpoint must not move past a failed event, got %d", position)
	}

	processed, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	got := projection.types()
	if processed != 2 || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected a and b after retry, got %v", got)
	}
}

// gappyStore скрывает событие, транзакция которого еще не зафиксирована
type gappyStore struct {
	*InMemoryEventStore
	hidden int64
}

func (s *gappyStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	all, err := s.InMemoryEventStore.GetAllEvents(ctx, fromPosition)
	if err != nil {
		return nil, err
	}
	ch := make(chan StoredEvent)
	go func() {
		defer close(ch)
		for event := range all {
			if event.Position == s.hidden {
				continue
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func TestProjectionRunner_WaitsForGap(t *testing.T) {
	ctx := context.Background()
	memStore := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
	_ = memStore.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b", "c"))
	store := &gappyStore{InMemoryEventStore: memStore, hidden: 2}

	config := DefaultProjectionConfig()
	config.GapTimeout = time.Minute
	projection := &recordingProjection{}
	runner := NewProjectionRunner(projection, store, NewInMemoryCheckpointStore(), config)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return now }

	if processed, _ := runner.RunOnce(ctx); processed != 1 {
		t.Fatalf("Expected to stop before the gap, processed %d", processed)
	}

	// Событие зафиксировалось до истечения ожидания
	store.hidden = 0
	if processed, _ := runner.RunOnce(ctx); processed != 2 {
		t.Errorf("Expected b and c once the gap is filled, processed %d", processed)
	}

	_ = memStore.AppendEvents(ctx, "agg-2", 0, newTestEvents("agg-2", "d", "e"))
	store.hidden = 4
	if processed, _ := runner.RunOnce(ctx); processed != 0 {
		t.Errorf("Expected to wait for position 4, processed %d", processed)
	}
	now = now.Add(2 * time.Minute)
	if processed, _ := runner.RunOnce(ctx); processed != 1 {
		t.Errorf("Expected to skip an expired gap, processed %d", processed)
	}

	got := projection.types()
	want := []string{"a", "b", "c", "e"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestProjectionRunner_RunOnTrigger(t *testing.T) {
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())
	projection := &recordingProjection{notify: make(chan string, 10)}
	runner := NewProjectionRunner(projection, store, NewInMemoryCheckpointStore(), ProjectionConfig{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	_ = store.AppendEvents(context.Background(), "agg-1", 0, newTestEvents("agg-1", "a"))
	if err := runner.TriggerHandler("a").Handle(context.Background(), nil); err != nil {
		t.Fatalf("Trigger handler failed: %v", err)
	}

	select {
	case eventType := <-projection.notify:
		if eventType != "a" {
			t.Errorf("Expected event a, got %s", eventType)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Projection was not run after trigger")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
