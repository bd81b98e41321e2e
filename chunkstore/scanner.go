package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/NebulousLabs/threadgroup"
)

// chunkFilePattern matches metadata filenames produced by metaFilename,
// capturing id and version (spec.md §3, §4.6). typetag is consumed greedily
// since it may itself contain underscores.
var chunkFilePattern = regexp.MustCompile(`^chunk_(.*)([0-9A-Fa-f]{16})_([0-9A-Fa-f]{8})\.met$`)

// Scanner runs the per-disk background scan that populates the
// ChunkRegistry from either the binary metadata cache or a directory walk
// (spec.md §4.6). One Scanner instance is created per disk entering the
// Working state.
type Scanner struct {
	Disk     *Disk
	Registry *ChunkRegistry
	Reports  *ReportsQueue
	Cache    *MetadataCache

	tg threadgroup.ThreadGroup
}

// Run executes the scan to completion (or until Stop/Terminate), then
// shuffles the disk's chunk set and marks the scan finished (spec.md §4.6).
func (s *Scanner) Run() error {
	if err := s.tg.Add(); err != nil {
		return err
	}
	defer s.tg.Done()

	s.Disk.ScanState = ScanInProgress

	usedCache := false
	if s.Cache != nil {
		ok, err := s.Cache.LoadFromCache(s.Disk, func(id uint64, version uint32, typ ChunkPartType, blocks uint16) {
			s.observeFromCache(id, version, typ, blocks)
		})
		if err == nil && ok {
			usedCache = true
		}
	}

	if !usedCache {
		if err := s.walkDirectory(); err != nil {
			return err
		}
	}

	s.Disk.Chunks.Shuffle()
	s.Disk.ScanState = ScanThreadFinished
	return nil
}

// Stop requests cancellation; the scan loop checks for it every 1000 files
// (spec.md §4.6).
func (s *Scanner) Stop() error {
	s.Disk.ScanState = ScanTerminate
	return s.tg.Stop()
}

func (s *Scanner) walkDirectory() error {
	checked := 0
	entries, err := os.ReadDir(s.Disk.MetaPath)
	if err != nil {
		return err
	}
	for _, sub := range entries {
		if !sub.IsDir() {
			continue
		}
		subPath := filepath.Join(s.Disk.MetaPath, sub.Name())
		files, err := os.ReadDir(subPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			checked++
			if checked%1000 == 0 && s.Disk.ScanState == ScanTerminate {
				return nil
			}
			m := chunkFilePattern.FindStringSubmatch(f.Name())
			if m == nil {
				continue
			}
			id, err1 := strconv.ParseUint(m[2], 16, 64)
			version, err2 := strconv.ParseUint(m[3], 16, 32)
			if err1 != nil || err2 != nil {
				continue
			}
			if subfolderName(id) != sub.Name() {
				continue // wrong subfolder for this id - skipped; no warning is logged.
			}
			typ := parseTypeTag(m[1])
			s.observe(id, uint32(version), typ)
		}
		if len(entries) > 0 {
			s.Disk.ScanProgress = ((indexOfEntry(entries, sub) + 1) * 100) / len(entries)
		}
	}
	return nil
}

func indexOfEntry(entries []os.DirEntry, target os.DirEntry) int {
	for i, e := range entries {
		if e.Name() == target.Name() {
			return i
		}
	}
	return 0
}

// parseTypeTag best-effort recovers a ChunkPartType from a filename's
// typetag fragment (the inverse of ChunkPartType.tag). Unparseable tags
// fall back to Standard, matching the spec's tolerant "ignore names not
// matching the chunk pattern" stance for the rarer part-type encodings.
func parseTypeTag(tag string) ChunkPartType {
	if tag == "" {
		return Standard()
	}
	var i, l int
	if n, _ := fmt.Sscanf(tag, "xor_%d_of_%d_", &i, &l); n == 2 {
		t, err := XOR(l, i)
		if err == nil {
			return t
		}
	}
	if n, _ := fmt.Sscanf(tag, "xor_parity_of_%d_", &l); n == 1 {
		t, err := XOR(l, XORParityPart)
		if err == nil {
			return t
		}
	}
	var d, p int
	if n, _ := fmt.Sscanf(tag, "ec2_%d_of_%d_%d_", &i, &d, &p); n == 3 {
		t, err := EC(d, p, i-1)
		if err == nil {
			return t
		}
	}
	return Standard()
}

// observe implements §4.6's observe(disk, path, id, version, type): looks up
// the registry and either inserts a freshly discovered chunk or resolves a
// version conflict against an existing entry.
func (s *Scanner) observe(id uint64, version uint32, typ ChunkPartType) {
	existing := s.Registry.Lookup(id, typ)
	if existing == nil {
		c := s.newChunkFromDisk(id, version, typ)
		if c == nil {
			return
		}
		s.Registry.Insert(c)
		s.Disk.Chunks.Insert(c)
		s.Reports.EnqueueNew(c.ID, c.Version, c.Type)
		return
	}
	if existing.Version >= version {
		if !s.Disk.IsReadOnly {
			metaPath, dataPath := chunkPaths(s.Disk, &Chunk{ID: id, Version: version, Type: typ})
			s.Disk.Backend.Unlink(metaPath, dataPath)
		}
		return
	}
	// The newly discovered file is strictly newer: unlink the stale entry's
	// files and rebuild it pointing at this disk.
	oldMeta, oldData := chunkPaths(existing.Owner, existing)
	existing.Owner.Backend.Unlink(oldMeta, oldData)
	existing.Owner.Chunks.Remove(existing)
	c := s.newChunkFromDisk(id, version, typ)
	if c == nil {
		return
	}
	s.Registry.Insert(c)
	s.Disk.Chunks.Insert(c)
}

// observeFromCache is the binary-cache fast-path variant of observe: it
// trusts the cached block count instead of stat-ing the data file (spec.md
// §4.6).
func (s *Scanner) observeFromCache(id uint64, version uint32, typ ChunkPartType, blocks uint16) {
	if s.Registry.Lookup(id, typ) != nil {
		return
	}
	c := &Chunk{
		ID:      id,
		Version: version,
		Type:    typ,
		Blocks:  blocks,
		State:   Available,
		Owner:   s.Disk,
	}
	s.Registry.Insert(c)
	s.Disk.Chunks.Insert(c)
}

// newChunkFromDisk stats both of a chunk's files and derives its block
// count from the data file size (spec.md §4.6: "must be a multiple of
// 65536 and <= maxBlocksInFile*65536").
func (s *Scanner) newChunkFromDisk(id uint64, version uint32, typ ChunkPartType) *Chunk {
	c := &Chunk{ID: id, Version: version, Type: typ, State: Available, Owner: s.Disk}
	_, dataPath := chunkPaths(s.Disk, c)
	fi, err := os.Stat(dataPath)
	if err != nil {
		return nil
	}
	size := fi.Size()
	if size%SFSBlockSize != 0 {
		return nil
	}
	blocks := size / SFSBlockSize
	if blocks > int64(typ.MaxBlocksInFile()) {
		return nil
	}
	c.Blocks = uint16(blocks)
	return c
}
