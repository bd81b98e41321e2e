package chunkstore

import "testing"

func newEligibleDisk(total, avail uint64) *Disk {
	return &Disk{
		TotalSpace:     total,
		AvailableSpace: avail,
		ScanState:      ScanWorking,
	}
}

func TestGetDiskForNewChunkNoEligibleDisks(t *testing.T) {
	m := NewDiskManager()
	m.AddDisk(&Disk{ScanState: ScanNeeded})
	if _, err := m.GetDiskForNewChunk(Standard()); err != ErrNoSpace {
		t.Errorf("got %v, want ErrNoSpace", err)
	}
}

func TestGetDiskForNewChunkFavorsMoreFreeSpace(t *testing.T) {
	m := NewDiskManager()
	full := newEligibleDisk(100, 90) // 90% available
	empty := newEligibleDisk(100, 10) // 10% available
	m.AddDisk(full)
	m.AddDisk(empty)

	fullPicks := 0
	const rounds = 50
	for i := 0; i < rounds; i++ {
		d, err := m.GetDiskForNewChunk(Standard())
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if d == full {
			fullPicks++
		}
	}
	if fullPicks <= rounds/2 {
		t.Errorf("disk with more free space picked %d/%d times, want a majority", fullPicks, rounds)
	}
}

func TestGetDiskForNewChunkSkipsIneligibleDisks(t *testing.T) {
	m := NewDiskManager()
	damaged := newEligibleDisk(100, 90)
	damaged.IsDamaged = true
	readOnly := newEligibleDisk(100, 90)
	readOnly.IsReadOnly = true
	good := newEligibleDisk(100, 50)
	m.AddDisk(damaged)
	m.AddDisk(readOnly)
	m.AddDisk(good)

	for i := 0; i < 10; i++ {
		d, err := m.GetDiskForNewChunk(Standard())
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if d != good {
			t.Errorf("round %d: picked an ineligible disk", i)
		}
	}
}

func TestNextToTestRoundRobinsAcrossDisks(t *testing.T) {
	m := NewDiskManager()
	a, b := newEligibleDisk(100, 50), newEligibleDisk(100, 50)
	ca, cb := newTestChunk(1), newTestChunk(2)
	a.Chunks.Insert(ca)
	b.Chunks.Insert(cb)
	m.AddDisk(a)
	m.AddDisk(b)

	seen := map[*Disk]bool{}
	for i := 0; i < 4; i++ {
		d, c := m.NextToTest()
		if d == nil || c == nil {
			continue
		}
		seen[d] = true
	}
	if !seen[a] || !seen[b] {
		t.Error("NextToTest did not visit both disks across several calls")
	}
}
