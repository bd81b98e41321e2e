package chunkstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/NebulousLabs/errors"
)

// Create implements create(id, version, type): allocates a new chunk on a
// disk chosen by the DiskManager, creates its files, and writes its signature
// header with an all-zero CRC table (spec.md §4.4's combined
// entry point, `new_version == 0 && length == 1`).
func (o *Ops) Create(id uint64, version uint32, typ ChunkPartType) error {
	ref, err := o.Registry.FindOrCreateAndLock(id, typ, CreateOnly)
	if err != nil {
		return err
	}
	c := ref.Chunk()
	c.Version = version

	d, err := o.Disks.GetDiskForNewChunk(typ)
	if err != nil {
		o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
		return err
	}
	c.Owner = d

	metaPath, dataPath := chunkPaths(d, c)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0755); err != nil {
		o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
		return errExtendIO(err)
	}
	metaFile, err := d.Backend.CreateMeta(metaPath)
	if err != nil {
		o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
		return errExtendIO(err)
	}
	dataFile, err := d.Backend.CreateData(dataPath)
	if err != nil {
		metaFile.Close()
		o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
		return errExtendIO(err)
	}
	c.MetaFile = metaFile
	c.DataFile = dataFile
	c.WasChanged = true
	oc := o.Pool.GetOrCreate(c, func() *OpenChunk {
		return &OpenChunk{MetaFile: metaFile, DataFile: dataFile, CRCBuf: make([]byte, crcBlockSize(typ))}
	})
	if err := o.ioEnd(c, oc); err != nil {
		d.Backend.Unlink(metaPath, dataPath)
		o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
		return err
	}

	d.Chunks.Insert(c)
	o.Reports.EnqueueNew(c.ID, c.Version, c.Type)
	o.Registry.Release(ref)
	return nil
}

// UpdateVersion implements update_version(id, old_version, new_version,
// type) (spec.md §4.4).
func (o *Ops) UpdateVersion(id uint64, oldVersion, newVersion uint32, typ ChunkPartType) error {
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoChunk
	}
	defer o.Registry.Release(ref)
	c := ref.Chunk()
	if oldVersion > 0 && c.Version != oldVersion {
		return ErrWrongVersion
	}

	if err := o.renameForVersion(c, newVersion); err != nil {
		return err
	}

	oc, err := o.ioBegin(c)
	if err != nil {
		return err
	}
	defer o.ioEnd(c, oc)
	if err := c.Owner.Backend.OverwriteChunkVersion(oc.MetaFile, newVersion); err != nil {
		c.Owner.RecordError(err, time.Now())
		return err
	}
	return nil
}

// renameForVersion renames a chunk's on-disk files from its current version
// to newVersion and updates its cached filenames.
func (o *Ops) renameForVersion(c *Chunk, newVersion uint32) error {
	oldMeta, oldData := chunkPaths(c.Owner, c)
	c.renameTo(newVersion)
	newMeta, newData := chunkPaths(c.Owner, c)
	if err := os.Rename(oldMeta, newMeta); err != nil {
		return errExtendIO(err)
	}
	if err := os.Rename(oldData, newData); err != nil {
		return errExtendIO(err)
	}
	return nil
}

// Truncate implements truncate(id, type, old_version, new_version, length)
// (spec.md §4.4).
func (o *Ops) Truncate(id uint64, typ ChunkPartType, oldVersion, newVersion uint32, length int64) error {
	if length > MaxChunkLength {
		return ErrWrongSize
	}
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoChunk
	}
	c := ref.Chunk()
	if oldVersion > 0 && c.Version != oldVersion {
		o.Registry.Release(ref)
		return ErrWrongVersion
	}

	if err := o.renameForVersion(c, newVersion); err != nil {
		o.Registry.Release(ref)
		return err
	}

	oc, err := o.ioBegin(c)
	if err != nil {
		o.Registry.Release(ref)
		return err
	}

	if err := c.Owner.Backend.OverwriteChunkVersion(oc.MetaFile, newVersion); err != nil {
		o.ioEnd(c, oc)
		return o.failAndUnlink(ref, err)
	}

	if err := o.doTruncate(c, oc, length); err != nil {
		o.ioEnd(c, oc)
		return o.failAndUnlink(ref, err)
	}

	c.WasChanged = true
	err = o.ioEnd(c, oc)
	o.Registry.Release(ref)
	return err
}

// doTruncate implements the sizing logic shared by Truncate and
// DuplicateTruncate (spec.md §4.4).
func (o *Ops) doTruncate(c *Chunk, oc *OpenChunk, length int64) error {
	targetBlocks := int((length + SFSBlockSize - 1) / SFSBlockSize)
	oldBlocks := int(c.Blocks)

	switch {
	case targetBlocks > oldBlocks:
		backfillCRCs(oc.CRCBuf, oldBlocks, targetBlocks)
		if err := c.Owner.Backend.TruncateData(oc.DataFile, int64(targetBlocks)*SFSBlockSize); err != nil {
			return err
		}
	case length%SFSBlockSize == 0:
		if err := c.Owner.Backend.TruncateData(oc.DataFile, int64(targetBlocks)*SFSBlockSize); err != nil {
			return err
		}
	default:
		fullBlocks := targetBlocks - 1
		tail := int(length - int64(fullBlocks)*SFSBlockSize)
		if fullBlocks < oldBlocks {
			whole := make([]byte, SFSBlockSize)
			if _, err := c.Owner.Backend.ReadBlockAndCRC(oc.DataFile, oc.CRCBuf, fullBlocks, whole); err != nil {
				return err
			}
			newCRC := ZeroExpandCRC(computeCRC32(whole[:tail]), SFSBlockSize-tail)
			putCRC(crcSlot(oc.CRCBuf, fullBlocks), newCRC)
		} else {
			putCRC(crcSlot(oc.CRCBuf, fullBlocks), EmptyBlockCRC)
		}
		backfillCRCs(oc.CRCBuf, fullBlocks+1, targetBlocks)
		if err := c.Owner.Backend.TruncateData(oc.DataFile, int64(fullBlocks)*SFSBlockSize+int64(tail)); err != nil {
			return err
		}
		if err := c.Owner.Backend.TruncateData(oc.DataFile, int64(targetBlocks)*SFSBlockSize); err != nil {
			return err
		}
	}
	c.Blocks = uint16(targetBlocks)
	return nil
}

// failAndUnlink unlinks a chunk and purges it from the registry on any IO
// error during truncate (spec.md §4.4: "On any IO error, the chunk is
// unlinked and purged from the registry").
func (o *Ops) failAndUnlink(ref *ChunkRef, cause error) error {
	c := ref.Chunk()
	c.Owner.RecordError(cause, time.Now())
	metaPath, dataPath := chunkPaths(c.Owner, c)
	c.Owner.Backend.Unlink(metaPath, dataPath)
	c.Owner.Chunks.Remove(c)
	o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
	return cause
}

// Duplicate implements duplicate(src_id, src_version, new_version, type,
// dst_id, dst_version) (spec.md §4.4).
func (o *Ops) Duplicate(srcID uint64, srcVersion, newVersion uint32, typ ChunkPartType, dstID uint64, dstVersion uint32) error {
	return o.duplicateImpl(srcID, srcVersion, newVersion, typ, dstID, dstVersion, -1)
}

// DuplicateTruncate implements duplicate_truncate(..., length) (spec.md
// §4.4).
func (o *Ops) DuplicateTruncate(srcID uint64, srcVersion, newVersion uint32, typ ChunkPartType, dstID uint64, dstVersion uint32, length int64) error {
	return o.duplicateImpl(srcID, srcVersion, newVersion, typ, dstID, dstVersion, length)
}

func (o *Ops) duplicateImpl(srcID uint64, srcVersion, newVersion uint32, typ ChunkPartType, dstID uint64, dstVersion uint32, truncLength int64) error {
	srcRef, err := o.Registry.FindAndLock(srcID, typ)
	if err != nil {
		return err
	}
	if srcRef == nil {
		return ErrNoChunk
	}
	defer o.Registry.Release(srcRef)
	src := srcRef.Chunk()
	if srcVersion > 0 && src.Version != srcVersion {
		return ErrWrongVersion
	}

	if newVersion != src.Version {
		if err := o.renameForVersion(src, newVersion); err != nil {
			return err
		}
		srcOC, err := o.ioBegin(src)
		if err != nil {
			return err
		}
		if err := src.Owner.Backend.OverwriteChunkVersion(srcOC.MetaFile, newVersion); err != nil {
			o.ioEnd(src, srcOC)
			return err
		}
	}

	srcOC, err := o.ioBegin(src)
	if err != nil {
		return err
	}
	defer o.ioEnd(src, srcOC)

	dstRef, err := o.Registry.FindOrCreateAndLock(dstID, typ, CreateOnly)
	if err != nil {
		return err
	}
	dst := dstRef.Chunk()
	dst.Version = dstVersion

	d, err := o.Disks.GetDiskForNewChunk(typ)
	if err != nil {
		o.Registry.MarkForDeletion(dstRef, o.purgeFromOwner)
		return err
	}
	dst.Owner = d

	metaPath, dataPath := chunkPaths(d, dst)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0755); err != nil {
		o.Registry.MarkForDeletion(dstRef, o.purgeFromOwner)
		return errExtendIO(err)
	}
	dstMetaFile, err := d.Backend.CreateMeta(metaPath)
	if err != nil {
		o.Registry.MarkForDeletion(dstRef, o.purgeFromOwner)
		return errExtendIO(err)
	}
	dstDataFile, err := d.Backend.CreateData(dataPath)
	if err != nil {
		dstMetaFile.Close()
		o.Registry.MarkForDeletion(dstRef, o.purgeFromOwner)
		return errExtendIO(err)
	}
	dst.MetaFile = dstMetaFile
	dst.DataFile = dstDataFile

	dstOC := o.Pool.GetOrCreate(dst, func() *OpenChunk {
		return &OpenChunk{MetaFile: dstMetaFile, DataFile: dstDataFile, CRCBuf: make([]byte, crcBlockSize(typ))}
	})
	copy(dstOC.CRCBuf, srcOC.CRCBuf)

	srcBlocks := int(src.Blocks)
	for b := 0; b < srcBlocks; b++ {
		buf := make([]byte, SFSBlockSize)
		if _, err := d.Backend.ReadBlockAndCRC(srcOC.DataFile, srcOC.CRCBuf, b, buf); err != nil {
			return o.failAndUnlink(dstRef, err)
		}
		if err := d.Backend.WriteChunkData(dstOC.DataFile, b, buf); err != nil {
			return o.failAndUnlink(dstRef, err)
		}
	}
	dst.Blocks = uint16(srcBlocks)

	if truncLength >= 0 {
		if err := o.doTruncate(dst, dstOC, truncLength); err != nil {
			return o.failAndUnlink(dstRef, err)
		}
	}

	dst.WasChanged = true
	if err := o.ioEnd(dst, dstOC); err != nil {
		o.Registry.Release(dstRef)
		return err
	}
	d.Chunks.Insert(dst)
	o.Reports.EnqueueNew(dst.ID, dst.Version, dst.Type)
	o.Registry.Release(dstRef)
	return nil
}

// Delete implements delete(id, version, type) (spec.md §4.4).
func (o *Ops) Delete(id uint64, version uint32, typ ChunkPartType) error {
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoChunk
	}
	c := ref.Chunk()
	if version > 0 && c.Version != version {
		o.Registry.Release(ref)
		return ErrWrongVersion
	}

	metaPath, dataPath := chunkPaths(c.Owner, c)
	if err := c.Owner.Backend.Unlink(metaPath, dataPath); err != nil {
		o.Registry.Release(ref)
		return err
	}
	c.Owner.Chunks.Remove(c)
	o.Registry.MarkForDeletion(ref, o.purgeFromOwner)
	return nil
}

// Test implements test(id, version, type) (spec.md §4.4): verifies every
// block's CRC and advises the OS to drop the metadata file's cache.
func (o *Ops) Test(id uint64, version uint32, typ ChunkPartType) error {
	ref, err := o.Registry.FindAndLock(id, typ)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoChunk
	}
	defer o.Registry.Release(ref)
	c := ref.Chunk()
	if version > 0 && c.Version != version {
		return ErrWrongVersion
	}

	oc, err := o.ioBegin(c)
	if err != nil {
		return err
	}
	defer o.ioEnd(c, oc)

	for b := 0; b < int(c.Blocks); b++ {
		buf := make([]byte, SFSBlockSize)
		stored, err := c.Owner.Backend.ReadBlockAndCRC(oc.DataFile, oc.CRCBuf, b, buf)
		if err != nil {
			c.Owner.RecordError(err, time.Now())
			o.Reports.EnqueueDamaged(c.ID, c.Type)
			return err
		}
		if computeCRC32(buf) != stored {
			o.Reports.EnqueueDamaged(c.ID, c.Type)
			return ErrCRC
		}
	}
	c.Owner.Backend.DropCache(oc.MetaFile)
	return nil
}

// purgeFromOwner is the onRemove callback MarkForDeletion invokes once a
// chunk is actually removed from the registry: it closes the chunk's pooled
// descriptors (spec.md §3's "removed ... from OpenChunkPool").
func (o *Ops) purgeFromOwner(c *Chunk) {
	o.Pool.Purge(c)
}

func errExtendIO(err error) error {
	return errors.Extend(ErrIO, err)
}
