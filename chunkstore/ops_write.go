package chunkstore

import "time"

// WriteBlock implements write_block(id, version, type, block,
// offset_in_block, size, crc, buffer) (spec.md §4.4).
func (o *Ops) WriteBlock(id uint64, version uint32, typ ChunkPartType, block, offsetInBlock, size int, crc uint32, buf []byte) error {
	if block >= int(typ.MaxBlocksInFile()) {
		return ErrBlockNumTooBig
	}
	if size > SFSBlockSize || offsetInBlock+size > SFSBlockSize {
		return ErrWrongSize
	}

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

	if o.CheckCRCOnWrite && computeCRC32(buf[:size]) != crc {
		return ErrCRC
	}

	oc, err := o.ioBegin(c)
	if err != nil {
		return err
	}
	defer o.ioEnd(c, oc)

	c.WasChanged = true

	fullBlock := offsetInBlock == 0 && size == SFSBlockSize
	if fullBlock {
		return o.writeFullBlock(c, oc, block, crc, buf[:size])
	}
	return o.writePartialBlock(c, oc, block, offsetInBlock, size, crc, buf[:size])
}

func (o *Ops) writeFullBlock(c *Chunk, oc *OpenChunk, block int, crc uint32, buf []byte) error {
	if block >= int(c.Blocks) {
		backfillCRCs(oc.CRCBuf, int(c.Blocks), block)
		c.Blocks = uint16(block + 1)
	}
	if err := c.Owner.Backend.WriteChunkData(oc.DataFile, block, buf); err != nil {
		c.Owner.RecordError(err, time.Now())
		return err
	}
	putCRC(crcSlot(oc.CRCBuf, block), crc)
	return nil
}

func (o *Ops) writePartialBlock(c *Chunk, oc *OpenChunk, block, offsetInBlock, size int, crc uint32, buf []byte) error {
	var pre, post []byte
	var preCRC uint32

	if block < int(c.Blocks) {
		whole := make([]byte, SFSBlockSize)
		storedCRC, err := c.Owner.Backend.ReadBlockAndCRC(oc.DataFile, oc.CRCBuf, block, whole)
		if err != nil {
			c.Owner.RecordError(err, time.Now())
			return err
		}
		pre = whole[:offsetInBlock]
		slice := whole[offsetInBlock : offsetInBlock+size]
		post = whole[offsetInBlock+size:]
		combined := CombineCRC(CombineCRC(computeCRC32(pre), computeCRC32(slice), int64(len(slice))), computeCRC32(post), int64(len(post)))
		if combined != storedCRC {
			return ErrCRC
		}
		preCRC = computeCRC32(pre)
	} else {
		if err := c.Owner.Backend.TruncateData(oc.DataFile, int64(block+1)*SFSBlockSize); err != nil {
			c.Owner.RecordError(err, time.Now())
			return err
		}
		backfillCRCs(oc.CRCBuf, int(c.Blocks), block)
		c.Blocks = uint16(block + 1)
		pre = make([]byte, offsetInBlock)
		post = make([]byte, SFSBlockSize-offsetInBlock-size)
		preCRC = computeCRC32(pre)
	}

	if err := c.Owner.Backend.WritePartialBlockAndCRC(oc.DataFile, oc.CRCBuf, block, offsetInBlock, buf); err != nil {
		c.Owner.RecordError(err, time.Now())
		return err
	}

	newCRC := CombineCRC(CombineCRC(preCRC, crc, int64(len(buf))), computeCRC32(post), int64(len(post)))
	putCRC(crcSlot(oc.CRCBuf, block), newCRC)
	return nil
}
