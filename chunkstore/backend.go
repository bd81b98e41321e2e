package chunkstore

import "hash/crc32"

// Backend is the capability set a storage device back-end must provide:
// metadata I/O, data I/O, signature (de)serialisation, space refresh, and
// lockfile/scan hooks (spec.md §4.3). Re-expressed from the source's
// class-inheritance Disk hierarchy as a single interface plus variant
// data, per spec.md §9's "inheritance over back-ends" note; concrete
// back-ends (conventionalBackend here) are independent implementations,
// not subclasses.
type Backend interface {
	// OpenMeta/OpenData open the existing meta/data files for a chunk.
	OpenMeta(path string) (File, error)
	OpenData(path string) (File, error)
	// CreateMeta/CreateData create new, empty meta/data files for a chunk.
	CreateMeta(path string) (File, error)
	CreateData(path string) (File, error)
	// Unlink removes a chunk's files, optionally archiving them instead of
	// deleting outright (the conventional back-end moves them into a
	// per-disk .trash.bin/ - spec.md §4.4 delete).
	Unlink(metaPath, dataPath string) error

	// WritePartialBlockAndCRC writes exactly len(buf) bytes at
	// block*SFSBlockSize+offsetInBlock within the data file and punches a
	// hole if the payload is all-zero and the backend supports it (spec.md
	// §4.3). It leaves crcBuf untouched; the caller stores the block's new CRC.
	WritePartialBlockAndCRC(data File, crcBuf []byte, block, offsetInBlock int, buf []byte) error
	// ReadBlockAndCRC reads the stored CRC for block from crcBuf and the
	// full 64 KiB block from the data file (spec.md §4.3).
	ReadBlockAndCRC(data File, crcBuf []byte, block int, out []byte) (storedCRC uint32, err error)
	// TruncateData resizes the data file to the given length.
	TruncateData(data File, length int64) error

	// OverwriteChunkVersion pwrites the new version into the signature at
	// its fixed offset (spec.md §4.3).
	OverwriteChunkVersion(meta File, newVersion uint32) error
	// ReadChunkCRC reads and validates the signature at offset 0, then
	// reads the CRC block into crcBuf (spec.md §4.3).
	ReadChunkCRC(meta File, wantID uint64, wantVersion uint32, wantType ChunkPartType, crcBuf []byte) error
	// WriteChunkHeader writes a freshly composed (signature + CRC) buffer
	// sequentially at offset 0 (spec.md §4.3).
	WriteChunkHeader(meta File, header []byte) error

	// WriteChunkData is the conventional-backend data write path used by
	// duplicate. WriteChunkBlock is the zoned-backend hook that must be
	// used instead wherever pwrite-over-existing-data is unsafe (spec.md
	// §4.3, §9 "conflicting I/O contracts across back-ends"). The
	// conventional backend here implements both identically; a zoned
	// backend would override only WriteChunkBlock.
	WriteChunkData(data File, block int, buf []byte) error
	WriteChunkBlock(data File, block int, buf []byte) error

	// RefreshSpace recomputes TotalSpace/AvailableSpace for the disk rooted
	// at path.
	RefreshSpace(path string) (total, available uint64, err error)

	// AcquireLock opens (creating if needed) the advisory lock file at
	// path and returns a handle identifying the underlying (dev, ino) so
	// callers can detect cross-disk collisions (spec.md §3, §6).
	AcquireLock(path string) (*LockFile, error)

	// ReadAheadHint advises the OS that the given block range of f is
	// about to be read sequentially.
	ReadAheadHint(f File, fromBlock, count int) error
	// DropCache advises the OS to evict f's pages. Ops.Test calls it after
	// every test; the HDD_ADVISE_NO_CACHE setting is not consulted.
	DropCache(f File) error
}

// crcSlot returns the byte range within crcBuf holding the CRC for `block`.
func crcSlot(crcBuf []byte, block int) []byte {
	off := block * 4
	return crcBuf[off : off+4]
}

// emptyBlockCRCBytes is EmptyBlockCRC encoded big-endian, the value new CRC
// slots are backfilled with (spec.md §4.4, §6: "all multi-byte integers are
// big-endian").
var emptyBlockCRCBytes = func() [4]byte {
	var b [4]byte
	putCRC(b[:], EmptyBlockCRC)
	return b
}()

func putCRC(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getCRC(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// backfillCRCs fills crc slots [from, to) with the empty-block CRC.
func backfillCRCs(crcBuf []byte, from, to int) {
	for b := from; b < to; b++ {
		copy(crcSlot(crcBuf, b), emptyBlockCRCBytes[:])
	}
}

// computeCRC32 is a thin wrapper kept alongside the crc slot helpers so
// callers in ops*.go don't need a second import for the common case.
func computeCRC32(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}
