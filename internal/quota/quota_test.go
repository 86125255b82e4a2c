package quota

import (
	"testing"
	"time"
)

func TestLimiterAdmitsUntilExhausted(t *testing.T) {
	store := NewStore(3)
	limiter := NewLimiter(store)

	for i := 0; i < 3; i++ {
		if !limiter.Admit("client-a") {
			t.Fatalf("Admit() call %d = false, want true", i)
		}
	}
	if limiter.Admit("client-a") {
		t.Fatal("Admit() after quota exhausted = true, want false")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	store := NewStore(1)
	limiter := NewLimiter(store)

	if !limiter.Admit("client-a") {
		t.Fatal("Admit(client-a) = false, want true")
	}
	if !limiter.Admit("client-b") {
		t.Fatal("Admit(client-b) = false, want true (independent quota)")
	}
	if limiter.Admit("client-a") {
		t.Fatal("second Admit(client-a) = true, want false")
	}
}

func TestStoreGetOrCreateReusesInstance(t *testing.T) {
	store := NewStore(5)
	a := store.GetOrCreate("k")
	b := store.GetOrCreate("k")
	if a != b {
		t.Fatal("GetOrCreate returned distinct instances for the same key")
	}
}

func TestMockPersisterCommitBatch(t *testing.T) {
	p := NewMockPersister()
	if err := p.CommitBatch([]Commit{{Key: "a", Vector: 3}, {Key: "b", Vector: -1}}); err != nil {
		t.Fatalf("CommitBatch() error = %v", err)
	}
	if p.batches != 1 || p.rowsCommitted != 2 {
		t.Errorf("batches=%d rowsCommitted=%d, want 1,2", p.batches, p.rowsCommitted)
	}
}

func TestBuildPersisterValidation(t *testing.T) {
	if _, err := BuildPersister("redis", "", ""); err == nil {
		t.Error("BuildPersister(redis, \"\", ...) should require -redis-addr")
	}
	if _, err := BuildPersister("kafka", "", ""); err == nil {
		t.Error("BuildPersister(kafka, ..., \"\") should require -kafka-topic")
	}
	if _, err := BuildPersister("bogus", "", ""); err == nil {
		t.Error("BuildPersister(bogus) should error")
	}
	p, err := BuildPersister("", "", "")
	if err != nil {
		t.Fatalf("BuildPersister(\"\") error = %v", err)
	}
	if _, ok := p.(*MockPersister); !ok {
		t.Errorf("BuildPersister(\"\") = %T, want *MockPersister", p)
	}
}

func TestWorkerCommitCycleFlushesOverThreshold(t *testing.T) {
	store := NewStore(1000)
	persister := NewMockPersister()
	w := NewWorker(store, persister, 5, time.Hour, time.Hour, time.Hour)

	limiter := NewLimiter(store)
	for i := 0; i < 6; i++ {
		limiter.Admit("client-a")
	}

	w.runCommitCycle(false)
	if persister.batches != 1 {
		t.Fatalf("batches = %d, want 1 (vector 6 >= threshold 5)", persister.batches)
	}

	_, vec := store.GetOrCreate("client-a").instance.state()
	if vec != 0 {
		t.Errorf("vector after commit = %d, want 0", vec)
	}
}

func TestWorkerFinalFlushCommitsEvenBelowThreshold(t *testing.T) {
	store := NewStore(1000)
	persister := NewMockPersister()
	w := NewWorker(store, persister, 100, time.Hour, time.Hour, time.Hour)

	limiter := NewLimiter(store)
	limiter.Admit("client-a") // vector=1, far below threshold 100

	w.runCommitCycle(true)
	if persister.rowsCommitted != 1 {
		t.Fatalf("rowsCommitted = %d, want 1 (final flush is unconditional)", persister.rowsCommitted)
	}
}

func TestWorkerEvictsIdleKeys(t *testing.T) {
	store := NewStore(10)
	w := NewWorker(store, NewMockPersister(), 5, time.Hour, time.Hour, time.Millisecond)

	store.GetOrCreate("idle-key")
	time.Sleep(5 * time.Millisecond)

	w.runEvictionCycle()
	if _, ok := store.data.Load("idle-key"); ok {
		t.Error("idle-key still present after eviction cycle")
	}
}

func TestWorkerStartStopIsIdempotent(t *testing.T) {
	store := NewStore(10)
	w := NewWorker(store, NewMockPersister(), 5, time.Millisecond, time.Millisecond, time.Hour)
	w.Start()
	w.Stop()
	w.Stop() // must not panic or block on double-close
}
