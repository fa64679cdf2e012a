package eventsourcing

import (
	"context"
	"errors"
	"testing"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
)

func newTestEvents(aggregateID string, types ...string) []events.Event {
	result := make([]events.Event, 0, len(types))
	for _, t := range types {
		result = append(result, events.NewBaseEvent(t, aggregateID).WithMetadata("aggregate_type", "counter"))
	}
	return result
}

func TestInMemoryEventStore_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())

	if err := store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b")); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}
	if err := store.AppendEvents(ctx, "agg-1", 2, newTestEvents("agg-1", "c")); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(stored))
	}
	for i, want := range []string{"a", "b", "c"} {
		if stored[i].EventType != want {
			t.Errorf("Event %d: expected type %s, got %s", i, want, stored[i].EventType)
		}
		if stored[i].Version != int64(i+1) {
			t.Errorf("Event %d: expected version %d, got %d", i, i+1, stored[i].Version)
		}
		if stored[i].AggregateType != "counter" {
			t.Errorf("Event %d: expected aggregate type counter, got %s", i, stored[i].AggregateType)
		}
	}

	tail, err := store.GetEvents(ctx, "agg-1", 3)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(tail) != 1 || tail[0].EventType != "c" {
		t.Errorf("Expected only event c from version 3, got %+v", tail)
	}

	missing, err := store.GetEvents(ctx, "unknown", 0)
	if err != nil {
		t.Fatalf("GetEvents for unknown stream failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Expected empty stream, got %d events", len(missing))
	}
}

func TestInMemoryEventStore_ConcurrencyConflictLeavesNoPartialBatch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())

	if err := store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a")); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	err := store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "b", "c", "d"))
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("Expected ErrConcurrencyConflict, got %v", err)
	}
	if core.CodeOf(err) != core.ErrConcurrencyConflict {
		t.Errorf("Expected code %s, got %s", core.ErrConcurrencyConflict, core.CodeOf(err))
	}

	stored, _ := store.GetEvents(ctx, "agg-1", 0)
	if len(stored) != 1 {
		t.Errorf("Expected stream to keep 1 event, got %d", len(stored))
	}
}

func TestInMemoryEventStore_MaxEventsPerStream(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(InMemoryEventStoreConfig{MaxEventsPerStream: 2})

	if err := store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b", "c")); err == nil {
		t.Fatal("Expected limit error")
	}
	stored, _ := store.GetEvents(ctx, "agg-1", 0)
	if len(stored) != 0 {
		t.Errorf("Expected no events after rejected batch, got %d", len(stored))
	}
}

func TestInMemoryEventStore_GetAllEvents(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(DefaultInMemoryEventStoreConfig())

	_ = store.AppendEvents(ctx, "agg-1", 0, newTestEvents("agg-1", "a", "b"))
	_ = store.AppendEvents(ctx, "agg-2", 0, newTestEvents("agg-2", "c"))

	ch, err := store.GetAllEvents(ctx, 2)
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}

	var positions []int64
	for event := range ch {
		positions = append(positions, event.Position)
	}
	if len(positions) != 2 || positions[0] != 2 || positions[1] != 3 {
		t.Errorf("Expected positions [2 3], got %v", positions)
	}

	store.Clear()
	stored, _ := store.GetEvents(ctx, "agg-1", 0)
	if len(stored) != 0 {
		t.Errorf("Expected empty store after Clear, got %d events", len(stored))
	}
}

func TestInMemorySnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySnapshotStore()

	snapshot, err := store.GetSnapshot(ctx, "agg-1")
	if err != nil || snapshot != nil {
		t.Fatalf("Expected no snapshot, got %v, %v", snapshot, err)
	}

	_ = store.SaveSnapshot(ctx, Snapshot{AggregateID: "agg-1", Version: 5, State: []byte(`{}`)})
	snapshot, _ = store.GetSnapshot(ctx, "agg-1")
	if snapshot == nil || snapshot.Version != 5 {
		t.Fatalf("Expected snapshot at version 5, got %+v", snapshot)
	}

	_ = store.DeleteSnapshots(ctx, "agg-1", 5)
	if snapshot, _ = store.GetSnapshot(ctx, "agg-1"); snapshot == nil {
		t.Error("Snapshot at version 5 must survive DeleteSnapshots(5)")
	}
	_ = store.DeleteSnapshots(ctx, "agg-1", 6)
	if snapshot, _ = store.GetSnapshot(ctx, "agg-1"); snapshot != nil {
		t.Error("Snapshot must be deleted by DeleteSnapshots(6)")
	}
}
