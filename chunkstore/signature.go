package chunkstore

import (
	"encoding/binary"
	"fmt"

	"github.com/NebulousLabs/errors"
)

// SFSBlockSize is the size, in bytes, of one chunk block - the unit of CRC
// coverage and the unit clients read/write in (spec.md GLOSSARY).
const SFSBlockSize = 65536

// DiskBlockSize is the block size new signatures are aligned to so that the
// data section of a metadata file starts on a disk-block boundary.
const DiskBlockSize = 4096

// MaxChunkLength is the largest length a chunk may be truncated/duplicated
// to (spec.md §4.4 truncate: "length <= 64 MiB").
const MaxChunkLength = 64 * 1024 * 1024

// SignatureMagic is the fixed 8-byte ASCII tag that opens every metadata
// file (spec.md §6).
const SignatureMagic = "SFSCHUNK"

const signatureBlockSize = 1024

// ErrBadSignature is returned when a metadata file's header does not parse
// or does not match the chunk it is supposed to belong to.
var ErrBadSignature = errors.New("corrupt or mismatched chunk signature")

// ChunkSignature is the fixed-size header that opens every metadata file:
// magic + id + version + type (spec.md §3, §6).
type ChunkSignature struct {
	ID      uint64
	Version uint32
	Type    ChunkPartType
}

// Marshal encodes the signature into a zero-padded 1024-byte block.
func (s ChunkSignature) Marshal() []byte {
	buf := make([]byte, signatureBlockSize)
	copy(buf, SignatureMagic)
	binary.BigEndian.PutUint64(buf[8:16], s.ID)
	binary.BigEndian.PutUint32(buf[16:20], s.Version)
	copy(buf[20:], s.Type.Encode())
	return buf
}

// ParseSignature decodes a signature block previously produced by Marshal,
// verifying the magic tag.
func ParseSignature(buf []byte) (ChunkSignature, error) {
	if len(buf) < signatureBlockSize {
		return ChunkSignature{}, errors.Extend(ErrBadSignature, errors.New("short signature block"))
	}
	if string(buf[:8]) != SignatureMagic {
		return ChunkSignature{}, errors.Extend(ErrBadSignature, errors.New("bad magic"))
	}
	id := binary.BigEndian.Uint64(buf[8:16])
	version := binary.BigEndian.Uint32(buf[16:20])
	typ, _, err := DecodePartType(buf[20:])
	if err != nil {
		return ChunkSignature{}, errors.Extend(ErrBadSignature, err)
	}
	return ChunkSignature{ID: id, Version: version, Type: typ}, nil
}

// crcBlockSize returns the size, in bytes, of the per-block CRC table for a
// chunk of the given part type: 4 bytes per possible block (spec.md §3).
func crcBlockSize(t ChunkPartType) int64 {
	return 4 * int64(t.MaxBlocksInFile())
}

// dataOffset returns the byte offset within the metadata file where the CRC
// block ends and alignment padding begins, and the offset where the data
// file's blocks effectively start being addressed from (the metadata file
// itself does not hold block data - only signature + CRC table, padded out
// to a DiskBlockSize boundary so that appends to it stay block aligned).
func dataOffset(t ChunkPartType) int64 {
	raw := int64(signatureBlockSize) + crcBlockSize(t)
	return alignUp(raw, DiskBlockSize)
}

func alignUp(n, align int64) int64 {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// metaFilename returns the filename (no directory) of the metadata file for
// a chunk with the given id/version/type (spec.md §3).
func metaFilename(id uint64, version uint32, t ChunkPartType) string {
	return fmt.Sprintf("chunk_%s%016X_%08X.met", t.tag(), id, version)
}

// dataFilename returns the filename (no directory) of the data file for a
// chunk with the given id/version/type.
func dataFilename(id uint64, version uint32, t ChunkPartType) string {
	return fmt.Sprintf("chunk_%s%016X_%08X.dat", t.tag(), id, version)
}

// subfolderName returns the "chunksNN" directory name a chunk with the
// given id belongs under: NN = (id>>16)&0xFF in uppercase hex (spec.md §3).
func subfolderName(id uint64) string {
	return fmt.Sprintf("chunks%02X", (id>>16)&0xFF)
}
