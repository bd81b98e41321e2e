package chunkstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/NebulousLabs/errors"
	"golang.org/x/sys/unix"
)

// ConventionalBackend is the reference Backend: two plain files per chunk,
// pread/pwrite/ftruncate at block-aligned offsets (spec.md §4.3). Hole
// punching and read-ahead/drop-cache hints are implemented via
// golang.org/x/sys/unix, grounded in distr1-distri's use of the same
// package for fallocate/fadvise - see DESIGN.md.
type ConventionalBackend struct {
	// PunchHoles enables FALLOC_FL_PUNCH_HOLE for all-zero payloads
	// (HDD_PUNCH_HOLES, spec.md §6).
	PunchHoles bool
}

var _ Backend = (*ConventionalBackend)(nil)

func (b *ConventionalBackend) OpenMeta(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR, 0644)
}

func (b *ConventionalBackend) OpenData(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR, 0644)
}

func (b *ConventionalBackend) CreateMeta(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
}

func (b *ConventionalBackend) CreateData(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
}

func (b *ConventionalBackend) Unlink(metaPath, dataPath string) error {
	trashDir := filepath.Join(filepath.Dir(metaPath), ".trash.bin")
	if err := os.MkdirAll(trashDir, 0755); err != nil {
		return moveOrRemove(metaPath, dataPath)
	}
	stamp := time.Now().UnixNano()
	if err := os.Rename(metaPath, filepath.Join(trashDir, filepath.Base(metaPath)+suffixFor(stamp))); err != nil {
		os.Remove(metaPath)
	}
	if err := os.Rename(dataPath, filepath.Join(trashDir, filepath.Base(dataPath)+suffixFor(stamp))); err != nil {
		os.Remove(dataPath)
	}
	return nil
}

func moveOrRemove(metaPath, dataPath string) error {
	err1 := os.Remove(metaPath)
	err2 := os.Remove(dataPath)
	if err1 != nil {
		return errors.Extend(ErrIO, err1)
	}
	if err2 != nil {
		return errors.Extend(ErrIO, err2)
	}
	return nil
}

func suffixFor(stampNanos int64) string {
	return ".deleted." + strconv.FormatInt(stampNanos, 10)
}

// WritePartialBlockAndCRC writes buf at the given sub-block offset and
// punches a hole for an all-zero, hole-aligned payload when enabled. The
// caller (ops_write.go's writePartialBlock) composes and stores the new CRC
// slot itself, since doing so requires the pre-write block contents this
// backend call does not see (spec.md §4.3, §4.4).
func (b *ConventionalBackend) WritePartialBlockAndCRC(data File, crcBuf []byte, block, offsetInBlock int, buf []byte) error {
	off := int64(block)*SFSBlockSize + int64(offsetInBlock)
	if _, err := data.WriteAt(buf, off); err != nil {
		return errors.Extend(ErrIO, err)
	}
	if b.PunchHoles && offsetInBlock == 0 && len(buf)%4096 == 0 && isAllZero(buf) {
		if f, ok := data.(*os.File); ok {
			unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, int64(len(buf)))
		}
	}
	return nil
}

func isAllZero(b []byte) bool {
	return bytes.Count(b, []byte{0}) == len(b)
}

func (b *ConventionalBackend) ReadBlockAndCRC(data File, crcBuf []byte, block int, out []byte) (uint32, error) {
	stored := getCRC(crcSlot(crcBuf, block))
	n, err := data.ReadAt(out, int64(block)*SFSBlockSize)
	if err != nil && n < len(out) {
		return 0, errors.Extend(ErrIO, err)
	}
	return stored, nil
}

func (b *ConventionalBackend) TruncateData(data File, length int64) error {
	if err := data.Truncate(length); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}

func (b *ConventionalBackend) OverwriteChunkVersion(meta File, newVersion uint32) error {
	var buf [4]byte
	putCRC(buf[:], newVersion)
	if _, err := meta.WriteAt(buf[:], 16); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}

func (b *ConventionalBackend) ReadChunkCRC(meta File, wantID uint64, wantVersion uint32, wantType ChunkPartType, crcBuf []byte) error {
	sigBuf := make([]byte, signatureBlockSize)
	if _, err := meta.ReadAt(sigBuf, 0); err != nil {
		return errors.Extend(ErrIO, err)
	}
	sig, err := ParseSignature(sigBuf)
	if err != nil {
		return err
	}
	if sig.ID != wantID || sig.Version != wantVersion {
		return errors.Extend(ErrBadSignature, errors.New("signature does not match expected chunk"))
	}
	if _, err := meta.ReadAt(crcBuf, int64(signatureBlockSize)); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}

func (b *ConventionalBackend) WriteChunkHeader(meta File, header []byte) error {
	if _, err := meta.WriteAt(header, 0); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}

func (b *ConventionalBackend) WriteChunkData(data File, block int, buf []byte) error {
	if _, err := data.WriteAt(buf, int64(block)*SFSBlockSize); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}

// WriteChunkBlock is identical to WriteChunkData on the conventional
// backend; a zoned backend must instead replay the block (spec.md §4.3,
// §9).
func (b *ConventionalBackend) WriteChunkBlock(data File, block int, buf []byte) error {
	return b.WriteChunkData(data, block, buf)
}

func (b *ConventionalBackend) RefreshSpace(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, errors.Extend(ErrIO, err)
	}
	total := st.Blocks * uint64(st.Bsize)
	avail := st.Bavail * uint64(st.Bsize)
	return total, avail, nil
}

func (b *ConventionalBackend) AcquireLock(path string) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Extend(ErrIO, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Extend(ErrIO, err)
	}
	var st syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, errors.Extend(ErrIO, err)
	}
	return &LockFile{
		Path:   path,
		Dev:    uint64(st.Dev),
		Ino:    st.Ino,
		closer: f.Close,
	}, nil
}

func (b *ConventionalBackend) ReadAheadHint(f File, fromBlock, count int) error {
	of, ok := f.(*os.File)
	if !ok || count <= 0 {
		return nil
	}
	return unix.Fadvise(int(of.Fd()), int64(fromBlock)*SFSBlockSize, int64(count)*SFSBlockSize, unix.FADV_WILLNEED)
}

func (b *ConventionalBackend) DropCache(f File) error {
	of, ok := f.(*os.File)
	if !ok {
		return nil
	}
	return unix.Fadvise(int(of.Fd()), 0, 0, unix.FADV_DONTNEED)
}
