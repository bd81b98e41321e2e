package chunkstore

import "testing"

// unlinkRecorder is the minimal Backend a scanner test needs: every method
// but Unlink is unreachable from the code paths exercised here.
type unlinkRecorder struct {
	unlinked []string
}

func (b *unlinkRecorder) OpenMeta(path string) (File, error)   { return nil, nil }
func (b *unlinkRecorder) OpenData(path string) (File, error)   { return nil, nil }
func (b *unlinkRecorder) CreateMeta(path string) (File, error) { return nil, nil }
func (b *unlinkRecorder) CreateData(path string) (File, error) { return nil, nil }
func (b *unlinkRecorder) Unlink(metaPath, dataPath string) error {
	b.unlinked = append(b.unlinked, metaPath)
	return nil
}
func (b *unlinkRecorder) WritePartialBlockAndCRC(data File, crcBuf []byte, block, offsetInBlock int, buf []byte) error {
	return nil
}
func (b *unlinkRecorder) ReadBlockAndCRC(data File, crcBuf []byte, block int, out []byte) (uint32, error) {
	return 0, nil
}
func (b *unlinkRecorder) TruncateData(data File, length int64) error { return nil }
func (b *unlinkRecorder) OverwriteChunkVersion(meta File, newVersion uint32) error { return nil }
func (b *unlinkRecorder) ReadChunkCRC(meta File, wantID uint64, wantVersion uint32, wantType ChunkPartType, crcBuf []byte) error {
	return nil
}
func (b *unlinkRecorder) WriteChunkHeader(meta File, header []byte) error       { return nil }
func (b *unlinkRecorder) WriteChunkData(data File, block int, buf []byte) error { return nil }
func (b *unlinkRecorder) WriteChunkBlock(data File, block int, buf []byte) error { return nil }
func (b *unlinkRecorder) RefreshSpace(path string) (uint64, uint64, error)       { return 0, 0, nil }
func (b *unlinkRecorder) AcquireLock(path string) (*LockFile, error)             { return nil, nil }
func (b *unlinkRecorder) ReadAheadHint(f File, fromBlock, count int) error       { return nil }
func (b *unlinkRecorder) DropCache(f File) error                                 { return nil }

func TestChunkFilePatternMatchesStandardChunk(t *testing.T) {
	m := chunkFilePattern.FindStringSubmatch("chunk_000000000000002A_00000001.met")
	if m == nil {
		t.Fatal("pattern did not match a standard chunk filename")
	}
	if m[1] != "" || m[2] != "000000000000002A" || m[3] != "00000001" {
		t.Errorf("got submatches %v", m)
	}
}

func TestChunkFilePatternMatchesTaggedChunk(t *testing.T) {
	m := chunkFilePattern.FindStringSubmatch("chunk_xor_1_of_4_000000000000002A_00000001.met")
	if m == nil {
		t.Fatal("pattern did not match a tagged chunk filename")
	}
	if m[1] != "xor_1_of_4_" {
		t.Errorf("tag = %q, want %q", m[1], "xor_1_of_4_")
	}
}

func TestParseTypeTagRoundTripsXOR(t *testing.T) {
	want, err := XOR(4, 1)
	if err != nil {
		t.Fatalf("XOR: %v", err)
	}
	got := parseTypeTag(want.tag())
	if got != want {
		t.Errorf("parseTypeTag(%q) = %v, want %v", want.tag(), got, want)
	}
}

func TestParseTypeTagUnrecognizedFallsBackToStandard(t *testing.T) {
	if got := parseTypeTag("garbage_"); got != Standard() {
		t.Errorf("parseTypeTag on garbage input = %v, want Standard()", got)
	}
}

func TestParseTypeTagEmptyIsStandard(t *testing.T) {
	if got := parseTypeTag(""); got != Standard() {
		t.Errorf("parseTypeTag(\"\") = %v, want Standard()", got)
	}
}

func TestScannerObserveFromCacheInsertsOnce(t *testing.T) {
	disk := &Disk{Backend: &unlinkRecorder{}}
	reg := NewChunkRegistry(nil)
	s := &Scanner{Disk: disk, Registry: reg, Reports: NewReportsQueue()}

	s.observeFromCache(1, 3, Standard(), 5)
	if reg.Count() != 1 {
		t.Fatalf("registry count = %d, want 1", reg.Count())
	}
	if disk.Chunks.Len() != 1 {
		t.Fatalf("disk chunk count = %d, want 1", disk.Chunks.Len())
	}

	// A second observation of the same (id, type) must not double-insert.
	s.observeFromCache(1, 3, Standard(), 5)
	if reg.Count() != 1 {
		t.Errorf("registry count after duplicate observe = %d, want 1", reg.Count())
	}
}

func TestScannerObserveSkipsStaleVersionOnReadOnlyDisk(t *testing.T) {
	backend := &unlinkRecorder{}
	disk := &Disk{Backend: backend, IsReadOnly: true}
	reg := NewChunkRegistry(nil)
	s := &Scanner{Disk: disk, Registry: reg, Reports: NewReportsQueue()}

	existing := &Chunk{ID: 1, Version: 5, Type: Standard(), Owner: disk, State: Available}
	reg.Insert(existing)
	disk.Chunks.Insert(existing)

	// A rediscovered file with a version <= the known one must be ignored,
	// and since the disk is read-only its stale files must not be unlinked.
	s.observe(1, 3, Standard())
	if len(backend.unlinked) != 0 {
		t.Errorf("Unlink called on a read-only disk: %v", backend.unlinked)
	}
	if reg.Count() != 1 {
		t.Errorf("registry count = %d, want 1 (unchanged)", reg.Count())
	}
}
