package chunkstore

import (
	"time"

	"github.com/NebulousLabs/threadgroup"
)

// maxTestFreq clamps HDD_TEST_FREQ to at most 1,000,000 ms (spec.md §6).
const maxTestFreq = 1000 * time.Second

// Tester is the single background thread that iterates disks round-robin,
// testing at most one chunk per tick, plus the async queue fed by CRC
// mismatches observed on client reads (spec.md §4.7). Loop lifecycle is
// modelled on the teacher's `tg.Add`/`tg.Done`/`tg.StopChan` pattern (e.g.
// `contractmanager.go`'s background goroutines), which gives graceful
// shutdown without a bespoke stop-channel per loop.
type Tester struct {
	Ops  *Ops
	Disks *DiskManager

	// TestFreq is the minimum interval between ticks (clamped to
	// maxTestFreq).
	TestFreq time.Duration

	tg threadgroup.ThreadGroup
}

func (t *Tester) freq() time.Duration {
	if t.TestFreq <= 0 || t.TestFreq > maxTestFreq {
		return maxTestFreq
	}
	return t.TestFreq
}

// Run drives the round-robin test loop until Stop is called.
func (t *Tester) Run() error {
	if err := t.tg.Add(); err != nil {
		return err
	}
	defer t.tg.Done()

	ticker := time.NewTicker(t.freq())
	defer ticker.Stop()
	for {
		select {
		case <-t.tg.StopChan():
			return nil
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Tester) tick() {
	d, c := t.Disks.NextToTest()
	if d == nil || c == nil {
		return
	}
	if c.State != Available {
		return
	}
	// Test itself enqueues a damaged report on failure; don't duplicate it.
	t.Ops.Test(c.ID, 0, c.Type)
	d.Chunks.MarkTested(c)
}

// RunAsyncQueue drains the async CRC-retest queue, rate-limited to at most
// one test per second (spec.md §4.7), until Stop is called.
func (t *Tester) RunAsyncQueue() error {
	if err := t.tg.Add(); err != nil {
		return err
	}
	defer t.tg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.tg.StopChan():
			return nil
		case <-ticker.C:
			if c := t.Ops.Reports.DequeueAsyncTest(); c != nil {
				// Test itself enqueues a damaged report on failure.
				t.Ops.Test(c.ID, 0, c.Type)
			}
		}
	}
}

// Stop signals both loops to exit and waits for them to do so.
func (t *Tester) Stop() error {
	return t.tg.Stop()
}
