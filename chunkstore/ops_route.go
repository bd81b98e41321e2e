package chunkstore

// lengthUnchanged and the create/test/delete sentinels below are the magic
// values the combined entry point dispatches on (spec.md §4.4's closing
// paragraph). They mirror the master protocol's wire encoding, which is out
// of scope here (spec.md §1) beyond this routing table.
const (
	lengthUnchanged = 0xFFFFFFFF
	lengthDelete    = 0
	lengthCreate    = 1
	lengthTest      = 2
)

// Dispatch routes a (new_version, length, copy_id) tuple to the appropriate
// ChunkOps primitive, exactly as the master connection layer would when
// relaying a chunk-lifecycle command (spec.md §4.4).
func (o *Ops) Dispatch(id uint64, oldVersion, newVersion uint32, typ ChunkPartType, length int64, copyID uint64, copyVersion uint32) error {
	switch {
	// The new_version == 0 sentinels take precedence over the general
	// length-range truncate/duplicate_truncate rules below, since 0, 1 and 2
	// are themselves valid truncate lengths; the master only ever pairs them
	// with new_version == 0 to mean delete/create/test (spec.md §4.4).
	case newVersion == 0 && length == lengthDelete:
		return o.Delete(id, oldVersion, typ)
	case newVersion == 0 && length == lengthCreate:
		return o.Create(id, oldVersion, typ)
	case newVersion == 0 && length == lengthTest:
		return o.Test(id, oldVersion, typ)
	case length == lengthUnchanged && copyID == 0:
		return o.UpdateVersion(id, oldVersion, newVersion, typ)
	case length == lengthUnchanged && copyID != 0:
		return o.Duplicate(id, oldVersion, newVersion, typ, copyID, copyVersion)
	case length >= 0 && length <= MaxChunkLength && copyID == 0:
		return o.Truncate(id, typ, oldVersion, newVersion, length)
	case length >= 0 && length <= MaxChunkLength && copyID != 0:
		return o.DuplicateTruncate(id, oldVersion, newVersion, typ, copyID, copyVersion, length)
	default:
		return ErrWrongSize
	}
}
