package chunkstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConventionalBackendCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	path := filepath.Join(dir, "chunk.dat")

	f, err := b.CreateData(path)
	if err != nil {
		t.Fatalf("CreateData: %v", err)
	}
	f.Close()

	if _, err := b.CreateData(path); err == nil {
		t.Error("CreateData on an existing path should fail (O_EXCL)")
	}

	f2, err := b.OpenData(path)
	if err != nil {
		t.Fatalf("OpenData: %v", err)
	}
	f2.Close()
}

func TestConventionalBackendWriteAndReadBlockCRC(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	path := filepath.Join(dir, "chunk.dat")
	f, err := b.CreateData(path)
	if err != nil {
		t.Fatalf("CreateData: %v", err)
	}
	defer f.Close()

	crcBuf := make([]byte, 4*4)
	payload := make([]byte, SFSBlockSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := b.WritePartialBlockAndCRC(f, crcBuf, 1, 0, payload); err != nil {
		t.Fatalf("WritePartialBlockAndCRC: %v", err)
	}
	putCRC(crcSlot(crcBuf, 1), 0xDEADBEEF)

	out := make([]byte, SFSBlockSize)
	stored, err := b.ReadBlockAndCRC(f, crcBuf, 1, out)
	if err != nil {
		t.Fatalf("ReadBlockAndCRC: %v", err)
	}
	if stored != 0xDEADBEEF {
		t.Errorf("stored CRC = %x, want DEADBEEF", stored)
	}
	if string(out) != string(payload) {
		t.Error("read-back payload does not match what was written")
	}
}

func TestConventionalBackendOverwriteChunkVersion(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	path := filepath.Join(dir, "chunk.met")
	f, err := b.CreateMeta(path)
	if err != nil {
		t.Fatalf("CreateMeta: %v", err)
	}
	defer f.Close()

	sig := ChunkSignature{ID: 7, Version: 1, Type: Standard()}
	if err := b.WriteChunkHeader(f, sig.Marshal()); err != nil {
		t.Fatalf("WriteChunkHeader: %v", err)
	}

	crcBuf := make([]byte, crcBlockSize(Standard()))
	if err := b.ReadChunkCRC(f, 7, 1, Standard(), crcBuf); err != nil {
		t.Fatalf("ReadChunkCRC: %v", err)
	}

	if err := b.OverwriteChunkVersion(f, 2); err != nil {
		t.Fatalf("OverwriteChunkVersion: %v", err)
	}
	if err := b.ReadChunkCRC(f, 7, 2, Standard(), crcBuf); err != nil {
		t.Fatalf("ReadChunkCRC after version bump: %v", err)
	}
	if err := b.ReadChunkCRC(f, 7, 1, Standard(), crcBuf); err == nil {
		t.Error("ReadChunkCRC should reject the stale version after OverwriteChunkVersion")
	}
}

func TestConventionalBackendUnlinkMovesToTrash(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	metaPath := filepath.Join(dir, "chunk.met")
	dataPath := filepath.Join(dir, "chunk.dat")
	os.WriteFile(metaPath, []byte("meta"), 0644)
	os.WriteFile(dataPath, []byte("data"), 0644)

	if err := b.Unlink(metaPath, dataPath); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := os.Stat(metaPath); !os.IsNotExist(err) {
		t.Error("meta file should no longer exist at its original path")
	}
	if _, err := os.Stat(dataPath); !os.IsNotExist(err) {
		t.Error("data file should no longer exist at its original path")
	}

	trashDir := filepath.Join(dir, ".trash.bin")
	entries, err := os.ReadDir(trashDir)
	if err != nil {
		t.Fatalf("ReadDir trash: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("trash dir has %d entries, want 2", len(entries))
	}
}

func TestConventionalBackendAcquireLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	path := filepath.Join(dir, ".lock")

	lf, err := b.AcquireLock(path)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer lf.Close()

	if _, err := b.AcquireLock(path); err == nil {
		t.Error("second AcquireLock on the same lockfile should fail while the first is held")
	}
}

func TestConventionalBackendRefreshSpaceReportsNonzero(t *testing.T) {
	dir := t.TempDir()
	b := &ConventionalBackend{}
	total, avail, err := b.RefreshSpace(dir)
	if err != nil {
		t.Fatalf("RefreshSpace: %v", err)
	}
	if total == 0 {
		t.Error("RefreshSpace reported zero total space for a real filesystem")
	}
	if avail > total {
		t.Errorf("avail %d > total %d", avail, total)
	}
}
