package config

import "time"

// RuntimeConfig holds the engine's runtime configuration keys, each falling
// back to its documented default when absent (spec.md §6).
type RuntimeConfig struct {
	HDDConfFilename         string
	HDDTestFreq             time.Duration
	HDDCheckCRCWhenReading  bool
	HDDCheckCRCWhenWriting  bool
	HDDAdviseNoCache        bool
	HDDPunchHoles           bool
	HDDLeaveSpaceDefault    uint64
	PerformFsync            bool
	MetadataCachePath       string
}

// DefaultRuntimeConfig returns the configuration defaults from spec.md §6.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		HDDConfFilename:        "sfshdd.cfg",
		HDDTestFreq:            10 * time.Second,
		HDDCheckCRCWhenReading: true,
		HDDCheckCRCWhenWriting: true,
		HDDAdviseNoCache:       false,
		HDDPunchHoles:          false,
		HDDLeaveSpaceDefault:   256 * 1024 * 1024,
		PerformFsync:           true,
		MetadataCachePath:      "",
	}
}

// Overrides is a sparse set of configuration keys read from the runtime
// config source (e.g. a master-supplied key/value file); ApplyOverrides
// merges only the keys that were actually present, leaving the rest at
// their current value - this is what lets "any missing key falls back to
// the listed default" (spec.md §6) compose across repeated reloads, not
// just the first load.
type Overrides struct {
	HDDConfFilename        *string
	HDDTestFreq            *time.Duration
	HDDCheckCRCWhenReading *bool
	HDDCheckCRCWhenWriting *bool
	HDDAdviseNoCache       *bool
	HDDPunchHoles          *bool
	HDDLeaveSpaceDefault   *uint64
	PerformFsync           *bool
	MetadataCachePath      *string
}

// ApplyOverrides returns a copy of c with every non-nil field in o merged
// in.
func (c RuntimeConfig) ApplyOverrides(o Overrides) RuntimeConfig {
	if o.HDDConfFilename != nil {
		c.HDDConfFilename = *o.HDDConfFilename
	}
	if o.HDDTestFreq != nil {
		c.HDDTestFreq = *o.HDDTestFreq
	}
	if o.HDDCheckCRCWhenReading != nil {
		c.HDDCheckCRCWhenReading = *o.HDDCheckCRCWhenReading
	}
	if o.HDDCheckCRCWhenWriting != nil {
		c.HDDCheckCRCWhenWriting = *o.HDDCheckCRCWhenWriting
	}
	if o.HDDAdviseNoCache != nil {
		c.HDDAdviseNoCache = *o.HDDAdviseNoCache
	}
	if o.HDDPunchHoles != nil {
		c.HDDPunchHoles = *o.HDDPunchHoles
	}
	if o.HDDLeaveSpaceDefault != nil {
		c.HDDLeaveSpaceDefault = *o.HDDLeaveSpaceDefault
	}
	if o.PerformFsync != nil {
		c.PerformFsync = *o.PerformFsync
	}
	if o.MetadataCachePath != nil {
		c.MetadataCachePath = *o.MetadataCachePath
	}
	return c
}
