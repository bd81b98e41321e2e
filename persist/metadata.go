// Package persist provides the small, hand-built persistence utilities that
// the rest of this module leans on: a crash-safe logger and an atomic,
// versioned JSON save/load pair. Both are adapted from the teacher's own
// ad hoc persistence idiom (NebulousLabs/Sia's persist package), since the
// engine's ACID requirements call for exactly this kind of "every on-disk
// struct carries a header" discipline rather than a generic config library.
package persist

// Metadata is the header written at the front of every versioned file this
// package saves, so that a reader can refuse to load a file written by an
// incompatible version of the engine.
type Metadata struct {
	Header  string
	Version string
}
