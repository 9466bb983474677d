package intake

import (
	"context"
	"testing"
	"time"
)

func TestStoreLifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	store := NewStore(testReducer(t), Deps{Recorder: rec}, DefaultStoreConfig(), nil)

	a := store.Create()
	b := store.Create()
	if a.ID() == b.ID() {
		t.Fatal("session ids must be unique")
	}
	if store.Len() != 2 || rec.started != 2 || rec.active != 2 {
		t.Fatalf("len=%d started=%d active=%d", store.Len(), rec.started, rec.active)
	}

	got, err := store.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if _, err := store.Get("missing"); err != ErrSessionNotFound {
		t.Fatalf("Get(missing) error = %v", err)
	}

	if err := store.Delete(a.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(a.ID()); err != ErrSessionNotFound {
		t.Fatalf("second Delete() error = %v", err)
	}
	if len(rec.abandoned) != 1 || rec.abandoned[0] != StepProducts {
		t.Errorf("abandoned = %v", rec.abandoned)
	}
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := StoreConfig{IdleTTL: time.Minute, CleanupInterval: time.Hour}
	store := NewStore(testReducer(t), Deps{Recorder: rec}, cfg, nil)

	idle := store.Create()
	fresh := store.Create()
	if _, err := fresh.Dispatch(context.Background(), validAnswer(StepProducts)); err != nil {
		t.Fatal(err)
	}

	if n := store.EvictIdle(time.Now()); n != 0 {
		t.Fatalf("evicted %d sessions before TTL", n)
	}
	if n := store.EvictIdle(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Fatalf("evicted %d sessions, want 2", n)
	}
	if _, err := store.Get(idle.ID()); err != ErrSessionNotFound {
		t.Errorf("idle session still present")
	}
	if len(rec.abandoned) != 2 || rec.active != 0 {
		t.Errorf("abandoned=%v active=%d", rec.abandoned, rec.active)
	}
}

func TestStoreStartStop(t *testing.T) {
	cfg := StoreConfig{IdleTTL: time.Nanosecond, CleanupInterval: 5 * time.Millisecond}
	store := NewStore(testReducer(t), Deps{}, cfg, nil)
	store.Create()
	store.Start()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	store.Stop()
	if store.Len() != 0 {
		t.Fatalf("cleanup loop did not evict, len=%d", store.Len())
	}
}
