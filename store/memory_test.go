package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/huykn/offline-sync/types"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	st, err := NewMemory(testSchema())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	return st
}

func TestMemoryPutGet(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	want := doc(t, map[string]any{"id": "p1", "ward": "icu"})
	if err := st.Put(ctx, "patients", want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := st.Get(ctx, "patients", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Expected %s, got %s", want, got)
	}

	if _, err := st.Get(ctx, "patients", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := st.Get(ctx, "ghosts", "p1"); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("Expected ErrUnknownCollection, got %v", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	if err := st.Put(ctx, "patients", doc(t, map[string]any{"id": "p1"})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := st.Get(ctx, "patients", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got[0] = 'X'

	again, err := st.Get(ctx, "patients", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again[0] == 'X' {
		t.Fatal("Caller mutation should not reach the stored document")
	}
}

func TestMemoryGetAllOrdered(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	if err := st.PutAll(ctx, "patients", []json.RawMessage{
		doc(t, map[string]any{"id": "b", "ward": "icu"}),
		doc(t, map[string]any{"id": "a", "ward": "icu"}),
	}); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	docs, err := st.GetAll(ctx, "patients")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 docs, got %d", len(docs))
	}
	var first map[string]any
	if err := json.Unmarshal(docs[0], &first); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if first["id"] != "a" {
		t.Fatalf("Expected key-ordered results, got first=%v", first["id"])
	}
}

func TestMemoryGetAllByIndex(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	if err := st.PutAll(ctx, "patients", []json.RawMessage{
		doc(t, map[string]any{"id": "p1", "ward": "icu"}),
		doc(t, map[string]any{"id": "p2", "ward": "general"}),
	}); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	docs, err := st.GetAllByIndex(ctx, "patients", "by-ward", "icu")
	if err != nil {
		t.Fatalf("GetAllByIndex failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 icu patient, got %d", len(docs))
	}
	if _, err := st.GetAllByIndex(ctx, "patients", "no-such-index", "x"); err == nil {
		t.Fatal("Expected error for unknown index")
	}
}

func TestMemoryPutAllAtomic(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	err := st.PutAll(ctx, "patients", []json.RawMessage{
		doc(t, map[string]any{"id": "p1", "ward": "icu"}),
		doc(t, map[string]any{"ward": "no key"}),
	})
	if err == nil {
		t.Fatal("Expected batch with bad document to fail")
	}

	docs, err := st.GetAll(ctx, "patients")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("Expected failed batch to write nothing, got %d docs", len(docs))
	}
}

func TestMemoryReplaceAll(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	if err := st.Put(ctx, "patients", doc(t, map[string]any{"id": "old", "ward": "icu"})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.ReplaceAll(ctx, "patients", []json.RawMessage{
		doc(t, map[string]any{"id": "new", "ward": "general"}),
	}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if _, err := st.Get(ctx, "patients", "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected old record to be gone, got %v", err)
	}
	if _, err := st.Get(ctx, "patients", "new"); err != nil {
		t.Fatalf("Expected new record, got %v", err)
	}
}

func TestMemoryQueueLifecycle(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	a := &types.QueueItem{EntityType: "notes", Action: types.ActionCreate, Collection: "notes", Data: doc(t, map[string]any{"id": "a"})}
	b := &types.QueueItem{EntityType: "notes", Action: types.ActionDelete, Collection: "notes", Data: doc(t, "b")}
	if err := st.Enqueue(ctx, a); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := st.Enqueue(ctx, b); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if a.ID >= b.ID {
		t.Fatalf("Expected increasing IDs, got %d then %d", a.ID, b.ID)
	}

	pending, err := st.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != a.ID {
		t.Fatalf("Expected FIFO pending items, got %+v", pending)
	}

	completed := types.StatusCompleted
	now := time.Now()
	if err := st.UpdateQueueItem(ctx, a.ID, QueuePatch{Status: &completed, CompletedAt: &now}); err != nil {
		t.Fatalf("UpdateQueueItem failed: %v", err)
	}
	if err := st.UpdateQueueItem(ctx, 999, QueuePatch{Status: &completed}); !errors.Is(err, ErrQueueItemNotFound) {
		t.Fatalf("Expected ErrQueueItemNotFound, got %v", err)
	}

	removed, err := st.PruneQueue(ctx, types.StatusCompleted, now.Add(time.Second))
	if err != nil {
		t.Fatalf("PruneQueue failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Expected 1 pruned item, got %d", removed)
	}

	pending, err = st.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("Expected only item b to remain pending, got %+v", pending)
	}
}

func TestMemoryClosed(t *testing.T) {
	st := newTestMemory(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := st.Get(context.Background(), "patients", "p1"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Expected ErrStoreClosed, got %v", err)
	}
}
