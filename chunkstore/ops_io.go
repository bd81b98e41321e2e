package chunkstore

import (
	"path/filepath"
	"time"

	"github.com/NebulousLabs/errors"
)

// ioOpenRetries and ioOpenRetryDelay bound how hard io_begin tries to open a
// chunk's two files before giving up (spec.md §4.4).
const (
	ioOpenRetries   = 4
	ioOpenRetryDelay = 5 * time.Millisecond
)

// Ops is the operation layer over the registry, disk backends, and open
// pool: create, open, close, read, prefetch, write_block, update_version,
// truncate, duplicate, duplicate_truncate, delete, test (spec.md §4.4).
type Ops struct {
	Registry *ChunkRegistry
	Pool     *OpenChunkPool
	Disks    *DiskManager
	Reports  *ReportsQueue
	// PerformFsync mirrors the PERFORM_FSYNC config key (spec.md §6).
	PerformFsync bool
	// CheckCRCOnRead/CheckCRCOnWrite mirror HDD_CHECK_CRC_WHEN_READING and
	// HDD_CHECK_CRC_WHEN_WRITING (spec.md §6).
	CheckCRCOnRead  bool
	CheckCRCOnWrite bool
}

// chunkPaths returns the absolute meta/data file paths for a chunk on its
// owning disk.
func chunkPaths(d *Disk, c *Chunk) (metaPath, dataPath string) {
	sub := c.Subfolder()
	metaPath = filepath.Join(d.MetaPath, sub, c.MetaFilename())
	dataPath = filepath.Join(d.DataPath, sub, c.DataFilename())
	return
}

// ioBegin ensures both of a chunk's file descriptors are open, retrying up
// to ioOpenRetries times (spec.md §4.4). On success it registers (or
// reuses) the chunk's OpenChunk entry in the pool.
func (o *Ops) ioBegin(c *Chunk) (*OpenChunk, error) {
	if c.IsOpen() {
		oc := o.Pool.GetResource(c)
		if oc != nil {
			return oc, nil
		}
	}
	d := c.Owner
	metaPath, dataPath := chunkPaths(d, c)

	var metaFile, dataFile File
	var err error
	for attempt := 0; attempt < ioOpenRetries; attempt++ {
		metaFile, err = d.Backend.OpenMeta(metaPath)
		if err == nil {
			dataFile, err = d.Backend.OpenData(dataPath)
			if err == nil {
				break
			}
			metaFile.Close()
		}
		time.Sleep(ioOpenRetryDelay)
	}
	if err != nil {
		d.RecordError(err, time.Now())
		return nil, errors.Extend(ErrIO, err)
	}

	c.MetaFile = metaFile
	c.DataFile = dataFile

	oc := o.Pool.GetOrCreate(c, func() *OpenChunk {
		crcBuf := make([]byte, crcBlockSize(c.Type))
		return &OpenChunk{MetaFile: metaFile, DataFile: dataFile, CRCBuf: crcBuf}
	})
	if err := d.Backend.ReadChunkCRC(metaFile, c.ID, c.Version, c.Type, oc.CRCBuf); err != nil {
		return nil, err
	}
	return oc, nil
}

// ioEnd closes the I/O scope opened by ioBegin: if the chunk was changed, it
// flushes the CRC block to the metadata file, then optionally fsyncs both
// files, and clears the dirty flag (spec.md §4.4).
func (o *Ops) ioEnd(c *Chunk, oc *OpenChunk) error {
	if c.WasChanged {
		sig := ChunkSignature{ID: c.ID, Version: c.Version, Type: c.Type}
		header := append(sig.Marshal(), oc.CRCBuf...)
		header = append(header, make([]byte, dataOffset(c.Type)-int64(len(header)))...)
		if err := c.Owner.Backend.WriteChunkHeader(oc.MetaFile, header); err != nil {
			c.Owner.RecordError(err, time.Now())
			return err
		}
		c.WasChanged = false
	}
	if o.PerformFsync {
		if err := oc.MetaFile.Sync(); err != nil {
			c.Owner.RecordError(err, time.Now())
			return errors.Extend(ErrIO, err)
		}
		if err := oc.DataFile.Sync(); err != nil {
			c.Owner.RecordError(err, time.Now())
			return errors.Extend(ErrIO, err)
		}
	}
	return nil
}

// Open implements open(id, type) (spec.md §4.4): locks the chunk and begins
// its I/O scope, leaving io_end deferred until Close.
func (o *Ops) Open(id uint64, typ ChunkPartType) (*ChunkRef, error) {
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, ErrNoChunk
	}
	if _, err := o.ioBegin(ref.Chunk()); err != nil {
		o.Registry.Release(ref)
		return nil, err
	}
	return ref, nil
}

// Close implements close(id, type) (spec.md §4.4): ends the I/O scope and
// releases the chunk.
func (o *Ops) Close(ref *ChunkRef) error {
	c := ref.Chunk()
	oc := o.Pool.GetResource(c)
	var err error
	if oc != nil {
		err = o.ioEnd(c, oc)
	}
	o.Registry.Release(ref)
	return err
}
