package chunkstore

import (
	"sync"
	"testing"
	"time"
)

func TestFindOrCreateAndLockCreateOnlyRejectsDuplicate(t *testing.T) {
	r := NewChunkRegistry(nil)
	ref, err := r.FindOrCreateAndLock(1, Standard(), CreateOnly)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	r.Release(ref)

	if _, err := r.FindOrCreateAndLock(1, Standard(), CreateOnly); err != ErrChunkExist {
		t.Errorf("second CreateOnly create: got %v, want ErrChunkExist", err)
	}
}

func TestFindAndLockMissingChunkReturnsNilNil(t *testing.T) {
	r := NewChunkRegistry(nil)
	ref, err := r.FindAndLock(42, Standard())
	if ref != nil || err != nil {
		t.Errorf("FindAndLock on empty registry: got (%v, %v), want (nil, nil)", ref, err)
	}
}

func TestReleaseWakesOneWaiter(t *testing.T) {
	r := NewChunkRegistry(nil)
	ref, err := r.FindOrCreateAndLock(7, Standard(), FindOrCreate)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	acquired := make(chan *ChunkRef, 1)
	go func() {
		waiterRef, err := r.FindAndLock(7, Standard())
		if err != nil {
			t.Errorf("waiter FindAndLock: %v", err)
			return
		}
		acquired <- waiterRef
	}()

	// Give the waiter a moment to block inside the condvar slot.
	time.Sleep(20 * time.Millisecond)
	r.Release(ref)

	select {
	case waiterRef := <-acquired:
		if waiterRef == nil || waiterRef.Chunk().ID != 7 {
			t.Fatalf("waiter did not acquire the expected chunk")
		}
		r.Release(waiterRef)
	case <-time.After(lockTimeout + time.Second):
		t.Fatal("waiter was never woken by Release")
	}
}

func TestFindAndLockTimesOutOnContention(t *testing.T) {
	r := NewChunkRegistry(nil)
	ref, err := r.FindOrCreateAndLock(9, Standard(), FindOrCreate)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer r.Release(ref)

	start := time.Now()
	_, err = r.FindAndLock(9, Standard())
	elapsed := time.Since(start)

	if err != ErrTimeout {
		t.Fatalf("FindAndLock on contended chunk: got %v, want ErrTimeout", err)
	}
	if elapsed < lockTimeout {
		t.Errorf("FindAndLock returned after %s, want at least %s", elapsed, lockTimeout)
	}
}

func TestMarkForDeletionRemovesChunkAndWakesWaiters(t *testing.T) {
	r := NewChunkRegistry(nil)
	ref, err := r.FindOrCreateAndLock(3, Standard(), FindOrCreate)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	result := make(chan error, 1)
	go func() {
		defer wg.Done()
		waiterRef, err := r.FindAndLock(3, Standard())
		if waiterRef != nil {
			r.Release(waiterRef)
		}
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	var purged *Chunk
	r.MarkForDeletion(ref, func(c *Chunk) { purged = c })

	wg.Wait()
	if err := <-result; err != nil {
		t.Errorf("waiter's FindAndLock after deletion: got %v, want nil (chunk gone)", err)
	}
	if purged == nil || purged.ID != 3 {
		t.Error("onRemove callback was not invoked with the deleted chunk")
	}
	if r.Lookup(3, Standard()) != nil {
		t.Error("chunk still present in registry after MarkForDeletion")
	}
}
