package chunkstore

import "github.com/NebulousLabs/errors"

// Error taxonomy (spec.md §7). These are returned to callers as-is or
// wrapped with errors.Extend/Compose for additional context; none of them
// are fatal to the engine.
var (
	// ErrNoChunk means the (id, type) lookup failed.
	ErrNoChunk = errors.New("no such chunk")
	// ErrWrongVersion means the caller passed a version that does not match
	// the chunk's current version.
	ErrWrongVersion = errors.New("wrong chunk version")
	// ErrChunkExist means a CreateOnly create collided with an existing
	// chunk.
	ErrChunkExist = errors.New("chunk already exists")
	// ErrNoSpace means no eligible disk could be found for a new chunk.
	ErrNoSpace = errors.New("no space available on any disk")
	// ErrCRC means a checksum mismatch was found on read or write.
	ErrCRC = errors.New("chunk CRC mismatch")
	// ErrIO means an underlying syscall failed.
	ErrIO = errors.New("chunk I/O error")
	// ErrWrongSize means a caller-supplied size parameter was out of range.
	ErrWrongSize = errors.New("wrong size")
	// ErrWrongOffset means a caller-supplied offset parameter was out of
	// range.
	ErrWrongOffset = errors.New("wrong offset")
	// ErrBlockNumTooBig means a caller-supplied block index exceeds
	// maxBlocksInFile for the chunk's type.
	ErrBlockNumTooBig = errors.New("block number too big")
	// ErrTimeout means a chunk lock wait exceeded the 2 second deadline.
	ErrTimeout = errors.New("timed out waiting for chunk lock")
	// ErrDiskDamaged means the operation's target disk has been marked
	// damaged and cannot serve new work.
	ErrDiskDamaged = errors.New("disk is damaged")
)
