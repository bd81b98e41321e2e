package chunkstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/threadgroup"

	"github.com/saunafs/chunkserver-storage/config"
	"github.com/saunafs/chunkserver-storage/persist"
)

// Engine owns every piece of process-wide mutable state the source kept as
// globals (gChunksMap, gDisks, gOpenChunks, the report queues): the registry,
// disk manager, open pool, reports queue, ops layer, tester and per-disk
// scanners, plus the runtime configuration (spec.md §9's "global mutable
// singletons" note - modelled as a single Engine value with an explicit
// Init/Shutdown, as instructed).
type Engine struct {
	Registry *ChunkRegistry
	Disks    *DiskManager
	Pool     *OpenChunkPool
	Reports  *ReportsQueue
	Ops      *Ops
	Tester   *Tester
	Cache    *MetadataCache
	Log      *persist.Logger

	Config config.RuntimeConfig

	scanners []*Scanner
	tg       threadgroup.ThreadGroup
}

// NewEngine wires up an Engine from a runtime configuration and a logger.
// It does not yet own any disks - call Init to read hdd.cfg and start
// scanning.
func NewEngine(cfg config.RuntimeConfig, log *persist.Logger) *Engine {
	registry := NewChunkRegistry(log)
	pool := NewOpenChunkPool()
	disks := NewDiskManager()
	reports := NewReportsQueue()

	e := &Engine{
		Registry: registry,
		Disks:    disks,
		Pool:     pool,
		Reports:  reports,
		Cache:    &MetadataCache{Dir: cfg.MetadataCachePath},
		Log:      log,
		Config:   cfg,
		Ops: &Ops{
			Registry:        registry,
			Pool:            pool,
			Disks:           disks,
			Reports:         reports,
			PerformFsync:    cfg.PerformFsync,
			CheckCRCOnRead:  cfg.HDDCheckCRCWhenReading,
			CheckCRCOnWrite: cfg.HDDCheckCRCWhenWriting,
		},
	}
	e.Tester = &Tester{Ops: e.Ops, Disks: disks, TestFreq: cfg.HDDTestFreq}
	return e
}

// Init reads the hdd configuration file, creates a Disk per entry, acquires
// its lockfiles, and launches a Scanner per disk. Failure to read the
// config, or a duplicate lockfile, is fatal (spec.md §7: "only
// initialisation failures ... terminate the process").
func (e *Engine) Init() error {
	if err := e.tg.Add(); err != nil {
		return err
	}
	defer e.tg.Done()

	data, err := os.ReadFile(e.Config.HDDConfFilename)
	if err != nil {
		return errors.Extend(errInitFatal, err)
	}
	entries, err := config.ParseHDDConfig(string(data))
	if err != nil {
		return errors.Extend(errInitFatal, err)
	}
	if len(entries) == 0 {
		return errors.Extend(errInitFatal, errors.New("no disks configured"))
	}

	seenLocks := make(map[lockKey]string)
	for _, entry := range entries {
		d := &Disk{
			MetaPath:           entry.Meta,
			DataPath:           entry.Data,
			IsMarkedForRemoval: entry.MarkForRemoval,
			IsZoned:            entry.Zoned,
			LeaveFree:          e.Config.HDDLeaveSpaceDefault,
			Backend:            &ConventionalBackend{PunchHoles: e.Config.HDDPunchHoles},
			ScanState:          ScanNeeded,
		}
		if err := e.acquireDiskLocks(d, seenLocks); err != nil {
			e.shutdownDisksOnInitFailure()
			return errors.Extend(errInitFatal, err)
		}
		total, avail, err := d.Backend.RefreshSpace(d.MetaPath)
		if err != nil {
			e.shutdownDisksOnInitFailure()
			return errors.Extend(errInitFatal, err)
		}
		d.TotalSpace = total
		d.AvailableSpace = avail

		e.Disks.AddDisk(d)
	}

	for _, d := range e.Disks.Disks() {
		e.startScan(d)
	}
	return nil
}

type lockKey struct {
	dev, ino uint64
}

// acquireDiskLocks grabs the meta (and, if distinct, data) lockfile for d,
// rejecting collisions where two disks would hold the same (dev, ino)
// (spec.md §3: "Two disks may not own the same lockfile").
func (e *Engine) acquireDiskLocks(d *Disk, seen map[lockKey]string) error {
	metaLockPath := filepath.Join(d.MetaPath, ".lock")
	lf, err := d.Backend.AcquireLock(metaLockPath)
	if err != nil {
		return err
	}
	key := lockKey{dev: lf.Dev, ino: lf.Ino}
	if other, ok := seen[key]; ok {
		lf.Close()
		return errors.New("duplicate lockfile between " + other + " and " + d.MetaPath)
	}
	seen[key] = d.MetaPath

	if d.DataPath != d.MetaPath {
		dataLockPath := filepath.Join(d.DataPath, ".lock")
		dlf, err := d.Backend.AcquireLock(dataLockPath)
		if err != nil {
			lf.Close()
			return err
		}
		d.dataLockHandle(dlf)
	}
	d.metaLockHandle(lf)
	return nil
}

func (d *Disk) metaLockHandle(lf *LockFile) { d.metaLock = lf }
func (d *Disk) dataLockHandle(lf *LockFile) { d.dataLock = lf }

func (e *Engine) shutdownDisksOnInitFailure() {
	for _, d := range e.Disks.Disks() {
		d.metaLock.Close()
		d.dataLock.Close()
	}
}

// startScan launches a Scanner for d and, on completion, flips the disk into
// the Working state (spec.md §4.6: "the disks-supervisor thread joins and
// transitions to Working").
func (e *Engine) startScan(d *Disk) {
	s := &Scanner{Disk: d, Registry: e.Registry, Reports: e.Reports, Cache: e.Cache}
	e.scanners = append(e.scanners, s)
	d.ScanState = ScanInProgress
	go func() {
		if err := s.Run(); err != nil {
			e.Log.Severe("scan failed for disk", d.MetaPath, err)
			d.IsDamaged = true
			return
		}
		d.ScanState = ScanWorking
	}()
}

// Reload re-reads the hdd configuration and diffs it against the live disk
// set, adding newly configured disks and removing dropped ones (spec.md §2's
// "Reload/Init", §6's "Consistency rule across reloads").
func (e *Engine) Reload() error {
	data, err := os.ReadFile(e.Config.HDDConfFilename)
	if err != nil {
		return err
	}
	next, err := config.ParseHDDConfig(string(data))
	if err != nil {
		return err
	}

	prev := e.currentEntries()
	added, removed := config.DiffEntries(prev, next)

	for _, d := range e.Disks.Disks() {
		for _, r := range removed {
			if d.MetaPath == r.Meta {
				d.ScanState = ScanTerminate
				e.Disks.RemoveDisk(d)
				d.metaLock.Close()
				d.dataLock.Close()
			}
		}
	}

	seen := make(map[lockKey]string)
	for _, entry := range added {
		d := &Disk{
			MetaPath:           entry.Meta,
			DataPath:           entry.Data,
			IsMarkedForRemoval: entry.MarkForRemoval,
			IsZoned:            entry.Zoned,
			LeaveFree:          e.Config.HDDLeaveSpaceDefault,
			Backend:            &ConventionalBackend{PunchHoles: e.Config.HDDPunchHoles},
			ScanState:          ScanSendNeeded,
		}
		if err := e.acquireDiskLocks(d, seen); err != nil {
			return err
		}
		e.Disks.AddDisk(d)
		e.startScan(d)
	}
	return nil
}

func (e *Engine) currentEntries() []config.DiskEntry {
	var entries []config.DiskEntry
	for _, d := range e.Disks.Disks() {
		entries = append(entries, config.DiskEntry{
			Zoned:          d.IsZoned,
			MarkForRemoval: d.IsMarkedForRemoval,
			Meta:           d.MetaPath,
			Data:           d.DataPath,
		})
	}
	return entries
}

// Shutdown stops the scanners, the tester loops and the open-chunk pool
// sweeper, closes pooled descriptors (one final FreeUnused sweep), writes
// each disk's metadata cache when caching is enabled, and releases the disk
// lockfiles (spec.md §5). It does not itself flush CRC tables; ioEnd writes
// them at the end of every operation.
func (e *Engine) Shutdown() error {
	for _, s := range e.scanners {
		s.Stop()
	}
	if err := e.Tester.Stop(); err != nil {
		e.Log.Severe("error stopping tester", err)
	}
	if err := e.Pool.Stop(); err != nil {
		e.Log.Severe("error stopping open-chunk pool sweeper", err)
	}
	e.Pool.FreeUnused(time.Now().Add(24*time.Hour), 0)

	if e.Cache.Dir != "" {
		for _, d := range e.Disks.Disks() {
			e.Cache.WriteCache(d, d.Chunks.Snapshot())
		}
	}
	for _, d := range e.Disks.Disks() {
		d.metaLock.Close()
		d.dataLock.Close()
	}
	return e.tg.Stop()
}

var errInitFatal = errors.New("fatal chunk engine initialisation error")
