package persist

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/saunafs/chunkserver-storage/build"
)

// SaveFile writes object as indented JSON to filename, prefixed with the
// supplied metadata header. The write goes to a temporary file in the same
// directory and is renamed into place, so a crash mid-write never leaves a
// corrupt file at filename - the rename either lands completely or not at
// all.
func SaveFile(meta Metadata, object interface{}, filename string) error {
	data, err := json.MarshalIndent(persistedFile{Metadata: meta, Object: object}, "", "\t")
	if err != nil {
		return build.ExtendErr("unable to marshal persisted object", err)
	}
	tmp := filename + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0600); err != nil {
		return build.ExtendErr("unable to write temporary persist file", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return build.ExtendErr("unable to rename temporary persist file into place", err)
	}
	return nil
}

// LoadFile reads a file previously written by SaveFile, verifying that its
// header matches meta exactly before decoding into object.
func LoadFile(meta Metadata, object interface{}, filename string) error {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return build.ExtendErr("unable to read persist file", err)
	}
	var pf persistedFile
	pf.Object = object
	if err := json.Unmarshal(data, &pf); err != nil {
		return build.ExtendErr("unable to decode persist file", err)
	}
	if pf.Metadata.Header != meta.Header {
		return build.ExtendErr("persist file header mismatch", errHeaderMismatch)
	}
	if pf.Metadata.Version != meta.Version {
		return build.ExtendErr("persist file version mismatch", errVersionMismatch)
	}
	return nil
}

// persistedFile is the on-disk envelope: a metadata header plus the caller's
// object, marshaled together so LoadFile can validate the header before the
// caller's object is even touched.
type persistedFile struct {
	Metadata Metadata
	Object   interface{}
}

var (
	errHeaderMismatch  = jsonErr("unexpected header")
	errVersionMismatch = jsonErr("unexpected version")
)

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

// EnsureDir creates dir (and any missing parents) if it does not already
// exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
