package config

import (
	"testing"
	"time"
)

func TestDefaultRuntimeConfigMatchesDocumentedDefaults(t *testing.T) {
	c := DefaultRuntimeConfig()
	if c.HDDConfFilename != "sfshdd.cfg" {
		t.Errorf("HDDConfFilename = %q", c.HDDConfFilename)
	}
	if c.HDDTestFreq != 10*time.Second {
		t.Errorf("HDDTestFreq = %s", c.HDDTestFreq)
	}
	if !c.HDDCheckCRCWhenReading || !c.HDDCheckCRCWhenWriting {
		t.Error("CRC checking should default to enabled for both reads and writes")
	}
	if c.HDDPunchHoles {
		t.Error("HDDPunchHoles should default to false")
	}
	if c.HDDLeaveSpaceDefault != 256*1024*1024 {
		t.Errorf("HDDLeaveSpaceDefault = %d", c.HDDLeaveSpaceDefault)
	}
	if !c.PerformFsync {
		t.Error("PerformFsync should default to true")
	}
}

func TestApplyOverridesOnlyTouchesPresentFields(t *testing.T) {
	base := DefaultRuntimeConfig()
	freq := 30 * time.Second
	got := base.ApplyOverrides(Overrides{HDDTestFreq: &freq})

	if got.HDDTestFreq != freq {
		t.Errorf("HDDTestFreq = %s, want %s", got.HDDTestFreq, freq)
	}
	if got.HDDConfFilename != base.HDDConfFilename {
		t.Error("ApplyOverrides changed a field with no override supplied")
	}
	if got.PerformFsync != base.PerformFsync {
		t.Error("ApplyOverrides changed PerformFsync with no override supplied")
	}
}

func TestApplyOverridesComposesAcrossCalls(t *testing.T) {
	base := DefaultRuntimeConfig()
	punch := true
	afterFirst := base.ApplyOverrides(Overrides{HDDPunchHoles: &punch})

	path := "/var/cache/sfshdd"
	afterSecond := afterFirst.ApplyOverrides(Overrides{MetadataCachePath: &path})

	if !afterSecond.HDDPunchHoles {
		t.Error("second ApplyOverrides call lost the first call's override")
	}
	if afterSecond.MetadataCachePath != path {
		t.Errorf("MetadataCachePath = %q, want %q", afterSecond.MetadataCachePath, path)
	}
}
