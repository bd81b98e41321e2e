package chunkstore

import (
	"testing"
	"time"
)

func TestTesterFreqClampsToMax(t *testing.T) {
	cases := []struct {
		set  time.Duration
		want time.Duration
	}{
		{0, maxTestFreq},
		{-time.Second, maxTestFreq},
		{maxTestFreq * 2, maxTestFreq},
		{5 * time.Second, 5 * time.Second},
	}
	for _, c := range cases {
		tr := &Tester{TestFreq: c.set}
		if got := tr.freq(); got != c.want {
			t.Errorf("freq() with TestFreq=%s = %s, want %s", c.set, got, c.want)
		}
	}
}

func TestTesterRunStopsCleanly(t *testing.T) {
	tr := &Tester{Disks: NewDiskManager(), TestFreq: time.Hour}

	done := make(chan error, 1)
	go func() { done <- tr.Run() }()

	// Give Run a moment to register with the threadgroup before stopping.
	time.Sleep(10 * time.Millisecond)
	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}

func TestTesterTickSkipsWhenNoDisksEligible(t *testing.T) {
	tr := &Tester{Disks: NewDiskManager()}
	// tick must be a no-op (not panic) when NextToTest has nothing to offer.
	tr.tick()
}
