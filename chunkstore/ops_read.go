package chunkstore

import (
	"time"

	"github.com/NebulousLabs/errors"
)

// ReadResult carries a read's returned CRC (either the stored per-block CRC
// for a full-block read, or a freshly recomputed CRC for a partial read)
// alongside the payload bytes (spec.md §4.4).
type ReadResult struct {
	CRC  uint32
	Data []byte
}

// Read implements read(id, version, type, offset, size, readahead_behind,
// readahead_ahead) (spec.md §4.4).
func (o *Ops) Read(id uint64, version uint32, typ ChunkPartType, offset int64, size int, readaheadBehind, readaheadAhead int) (ReadResult, error) {
	if size <= 0 {
		return ReadResult{}, ErrWrongSize
	}
	block := int(offset / SFSBlockSize)
	offsetInBlock := int(offset % SFSBlockSize)
	if offsetInBlock+size > SFSBlockSize {
		return ReadResult{}, ErrWrongOffset
	}

	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return ReadResult{}, err
	}
	if ref == nil {
		return ReadResult{}, ErrNoChunk
	}
	defer o.Registry.Release(ref)
	c := ref.Chunk()
	if version > 0 && c.Version != version {
		return ReadResult{}, ErrWrongVersion
	}

	oc, err := o.ioBegin(c)
	if err != nil {
		return ReadResult{}, err
	}
	defer o.ioEnd(c, oc)

	out := make([]byte, SFSBlockSize)
	var storedCRC uint32
	if block < 0 || block >= int(c.Blocks) {
		// Synthesise a zero block (spec.md §4.4).
		storedCRC = EmptyBlockCRC
	} else {
		storedCRC, err = c.Owner.Backend.ReadBlockAndCRC(oc.DataFile, oc.CRCBuf, block, out)
		if err != nil {
			c.Owner.RecordError(err, time.Now())
			o.Reports.EnqueueDamaged(c.ID, c.Type)
			return ReadResult{}, err
		}
		if o.CheckCRCOnRead && size == SFSBlockSize {
			if computeCRC32(out) != storedCRC {
				o.Reports.EnqueueAsyncTest(c)
				return ReadResult{}, ErrCRC
			}
		}
	}

	o.issueReadAheadHint(c, oc, block, readaheadBehind, readaheadAhead)

	if size == SFSBlockSize {
		return ReadResult{CRC: storedCRC, Data: out}, nil
	}
	slice := make([]byte, size)
	copy(slice, out[offsetInBlock:offsetInBlock+size])
	return ReadResult{CRC: computeCRC32(slice), Data: slice}, nil
}

// issueReadAheadHint advises the backend to prefetch readaheadAhead blocks
// from block, extended backwards by up to readaheadBehind blocks if the
// chunk's last observed sequential position trails the current block
// (spec.md §4.4).
func (o *Ops) issueReadAheadHint(c *Chunk, oc *OpenChunk, block, readaheadBehind, readaheadAhead int) {
	from := block
	if int(c.BlockExpectedNext) < block {
		behind := readaheadBehind
		if behind > block {
			behind = block
		}
		from = block - behind
	}
	count := readaheadAhead + (block - from) + 1
	c.Owner.Backend.ReadAheadHint(oc.DataFile, from, count)
	c.BlockExpectedNext = uint16(block + 1)
}

// Prefetch implements prefetch(id, type, first_block, count) (spec.md
// §4.4).
func (o *Ops) Prefetch(id uint64, typ ChunkPartType, firstBlock, count int) error {
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoChunk
	}
	defer o.Registry.Release(ref)
	c := ref.Chunk()

	oc, err := o.ioBegin(c)
	if err != nil {
		return err
	}
	defer o.ioEnd(c, oc)

	if err := c.Owner.Backend.ReadAheadHint(oc.DataFile, firstBlock, count); err != nil {
		return errors.Extend(ErrIO, err)
	}
	return nil
}
