package chunkstore

import "testing"

func TestReportsQueueDequeueBatchesAtLimit(t *testing.T) {
	q := NewReportsQueue()
	for i := 0; i < maxReportBatch+10; i++ {
		q.EnqueueDamaged(uint64(i), Standard())
	}

	first := q.DequeueDamaged()
	if len(first) != maxReportBatch {
		t.Fatalf("first batch = %d, want %d", len(first), maxReportBatch)
	}
	second := q.DequeueDamaged()
	if len(second) != 10 {
		t.Fatalf("second batch = %d, want 10", len(second))
	}
	if len(q.DequeueDamaged()) != 0 {
		t.Error("queue should be drained after two batches")
	}
}

func TestReportsQueueLostAndNewAreIndependent(t *testing.T) {
	q := NewReportsQueue()
	q.EnqueueLost(1, 3, Standard())
	q.EnqueueNew(2, 1, Standard())

	lost := q.DequeueLost()
	if len(lost) != 1 || lost[0].ID != 1 || lost[0].Version != 3 {
		t.Errorf("DequeueLost = %+v", lost)
	}
	if len(q.DequeueNew()) != 1 {
		t.Error("DequeueNew should be unaffected by DequeueLost")
	}
}

func TestAsyncTestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewReportsQueue()
	for i := 0; i < maxAsyncTestQueue+5; i++ {
		q.EnqueueAsyncTest(newTestChunk(uint64(i)))
	}

	first := q.DequeueAsyncTest()
	if first == nil || first.ID != 5 {
		t.Errorf("oldest surviving entry ID = %v, want 5 (first 5 dropped)", first)
	}
}

func TestAsyncTestQueueFIFOOrder(t *testing.T) {
	q := NewReportsQueue()
	q.EnqueueAsyncTest(newTestChunk(1))
	q.EnqueueAsyncTest(newTestChunk(2))

	if c := q.DequeueAsyncTest(); c == nil || c.ID != 1 {
		t.Errorf("first dequeue = %v, want chunk 1", c)
	}
	if c := q.DequeueAsyncTest(); c == nil || c.ID != 2 {
		t.Errorf("second dequeue = %v, want chunk 2", c)
	}
	if q.DequeueAsyncTest() != nil {
		t.Error("queue should be empty")
	}
}
