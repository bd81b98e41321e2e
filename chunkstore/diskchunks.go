package chunkstore

import (
	"sync"

	"github.com/NebulousLabs/fastrand"
)

// DiskChunks is the O(1) ordered set of chunks owned by one disk: a slice
// partitioned into a "tested" prefix and an "untested" suffix, so the Tester
// can walk the whole disk exactly once per loop without scanning (spec.md
// §4.2). Guarded by its own mutex - the spec's "Tests mutex" (spec.md §5) -
// since the scanner, the ops layer's Insert/Remove on create/delete, and the
// tester's PickNextToTest/MarkTested all touch the same disk's set from
// different goroutines once it reaches the Working scan state.
type DiskChunks struct {
	mu            sync.Mutex
	chunks        []*Chunk
	firstUntested int
}

// Len returns the number of chunks currently tracked.
func (d *DiskChunks) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.chunks)
}

// Insert adds c to the set and immediately marks it tested, so a
// freshly-written chunk does not dominate the next test pass (spec.md
// §4.2).
func (d *DiskChunks) Insert(c *Chunk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, c)
	c.IndexInDisk = len(d.chunks) - 1
	d.markTestedAt(c.IndexInDisk)
}

// Remove drops c from the set, maintaining the tested/untested partition.
func (d *DiskChunks) Remove(c *Chunk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := c.IndexInDisk
	if i < 0 || i >= len(d.chunks) || d.chunks[i] != c {
		return
	}
	if i < d.firstUntested {
		d.swap(i, d.firstUntested-1)
		d.firstUntested--
		i = d.firstUntested
	}
	last := len(d.chunks) - 1
	d.swap(i, last)
	d.chunks = d.chunks[:last]
	if d.firstUntested >= len(d.chunks) {
		d.firstUntested = 0
	}
	c.IndexInDisk = -1
}

// MarkTested moves c into the tested prefix if it is currently untested.
// When every chunk has been tested, the boundary resets to 0, starting a new
// test loop (spec.md §4.2).
func (d *DiskChunks) MarkTested(c *Chunk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markTestedAt(c.IndexInDisk)
}

// markTestedAt requires d.mu to already be held.
func (d *DiskChunks) markTestedAt(i int) {
	if i < d.firstUntested || i >= len(d.chunks) {
		return
	}
	d.swap(i, d.firstUntested)
	d.firstUntested++
	if d.firstUntested == len(d.chunks) {
		d.firstUntested = 0
	}
}

// PickNextToTest returns the next untested chunk, or nil if the set is
// empty.
func (d *DiskChunks) PickNextToTest() *Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chunks) == 0 {
		return nil
	}
	return d.chunks[d.firstUntested]
}

// PickRandom returns a uniformly random chunk from the set, or nil if empty.
// Used by callers that want any chunk rather than the next untested one.
func (d *DiskChunks) PickRandom() *Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chunks) == 0 {
		return nil
	}
	return d.chunks[fastrand.Intn(len(d.chunks))]
}

// Shuffle randomises the order of the set via Fisher-Yates and restarts the
// test loop from the beginning. Called once per scan completion so chunks
// are not tested in filesystem order (spec.md §4.2, §4.6).
func (d *DiskChunks) Shuffle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.chunks) - 1; i > 0; i-- {
		j := fastrand.Intn(i + 1)
		d.swap(i, j)
	}
	d.firstUntested = 0
}

// Snapshot returns a copy of the currently tracked chunks, safe to range
// over without holding d's mutex (used by MetadataCache.WriteCache at
// shutdown, spec.md §3, §6).
func (d *DiskChunks) Snapshot() []*Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Chunk, len(d.chunks))
	copy(out, d.chunks)
	return out
}

// swap requires d.mu to already be held.
func (d *DiskChunks) swap(i, j int) {
	d.chunks[i], d.chunks[j] = d.chunks[j], d.chunks[i]
	d.chunks[i].IndexInDisk = i
	d.chunks[j].IndexInDisk = j
}
