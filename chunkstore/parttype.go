package chunkstore

import (
	"fmt"

	"github.com/NebulousLabs/errors"
)

// PartKind distinguishes the three shapes a chunk part can take on disk.
type PartKind byte

// The three part kinds. Values are the on-disk type-id byte (§3) and must
// never be renumbered once chunks exist on disk with the old numbering.
const (
	KindStandard PartKind = 0
	KindXOR      PartKind = 1
	KindEC       PartKind = 2
)

func (k PartKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindXOR:
		return "xor"
	case KindEC:
		return "ec"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// XORParityPart is the reserved part index that marks the parity part of an
// XOR chunk (as opposed to one of the 1..level data parts).
const XORParityPart = 0xFF

// ErrBadPartType is returned by Decode and the constructors when the part
// parameters violate the invariants in spec.md §3.
var ErrBadPartType = errors.New("malformed chunk part type")

// ChunkPartType is a tagged identifier for one physical part of a chunk:
// the whole chunk (Standard), one column of an XOR stripe, or one shard of
// an erasure-coded stripe. It is immutable and comparable, so it can be
// used directly as (part of) a map key - see chunkKey in registry.go.
type ChunkPartType struct {
	kind PartKind

	// XOR: level is the stripe width (2..10); part is 1..level for a data
	// column or XORParityPart for the parity column.
	//
	// EC: level holds the data-shard count (low byte) and parity-shard
	// count (high byte) packed together; part is the shard index
	// (0 <= part < dataShards+parityShards).
	level uint16
	part  uint16
}

// Standard returns the part type for an unsplit chunk.
func Standard() ChunkPartType {
	return ChunkPartType{kind: KindStandard}
}

// XOR returns the part type for column `part` (1..level, or XORParityPart)
// of an XOR stripe of the given level.
func XOR(level int, part int) (ChunkPartType, error) {
	if level < 2 || level > 10 {
		return ChunkPartType{}, errors.Extend(ErrBadPartType, errors.New("xor level out of range [2,10]"))
	}
	if part != XORParityPart && (part < 1 || part > level) {
		return ChunkPartType{}, errors.Extend(ErrBadPartType, errors.New("xor part out of range [1,level] or parity"))
	}
	return ChunkPartType{kind: KindXOR, level: uint16(level), part: uint16(part)}, nil
}

// EC returns the part type for shard `part` (0 <= part < data+parity) of an
// erasure-coded stripe with the given data/parity shard counts.
func EC(dataParts, parityParts, part int) (ChunkPartType, error) {
	if dataParts < 1 || dataParts > 255 || parityParts < 0 || parityParts > 255 {
		return ChunkPartType{}, errors.Extend(ErrBadPartType, errors.New("ec shard counts out of range"))
	}
	if part < 0 || part >= dataParts+parityParts {
		return ChunkPartType{}, errors.Extend(ErrBadPartType, errors.New("ec part index out of range"))
	}
	return ChunkPartType{
		kind:  KindEC,
		level: uint16(dataParts) | uint16(parityParts)<<8,
		part:  uint16(part),
	}, nil
}

// Kind returns which of the three shapes this part type is.
func (t ChunkPartType) Kind() PartKind { return t.kind }

// XORLevel returns the stripe width of an XOR part type. Only valid when
// Kind() == KindXOR.
func (t ChunkPartType) XORLevel() int { return int(t.level) }

// XORPart returns the column index (or XORParityPart) of an XOR part type.
// Only valid when Kind() == KindXOR.
func (t ChunkPartType) XORPart() int { return int(t.part) }

// ECShards returns the (data, parity) shard counts of an EC part type. Only
// valid when Kind() == KindEC.
func (t ChunkPartType) ECShards() (data, parity int) {
	return int(t.level & 0xFF), int(t.level >> 8)
}

// ECPart returns the shard index of an EC part type. Only valid when
// Kind() == KindEC.
func (t ChunkPartType) ECPart() int { return int(t.part) }

// DataParts returns the number of independent data columns/shards this part
// type's chunk is split into: 1 for Standard, the XOR level for XOR, and
// the data-shard count for EC.
func (t ChunkPartType) DataParts() int {
	switch t.kind {
	case KindStandard:
		return 1
	case KindXOR:
		return int(t.level)
	case KindEC:
		data, _ := t.ECShards()
		return data
	default:
		return 1
	}
}

// MaxBlocksInFile returns ceil(1024/DataParts()), the largest number of
// 64 KiB blocks a single part file of this type may ever hold (spec.md §3).
func (t ChunkPartType) MaxBlocksInFile() uint16 {
	d := t.DataParts()
	return uint16((1024 + d - 1) / d)
}

// tag returns the short filename fragment that encodes this part type in a
// chunk's on-disk filename (spec.md §3).
func (t ChunkPartType) tag() string {
	switch t.kind {
	case KindStandard:
		return ""
	case KindXOR:
		if t.part == XORParityPart {
			return fmt.Sprintf("xor_parity_of_%d_", t.level)
		}
		return fmt.Sprintf("xor_%d_of_%d_", t.part, t.level)
	case KindEC:
		data, parity := t.ECShards()
		return fmt.Sprintf("ec2_%d_of_%d_%d_", t.part+1, data, parity)
	default:
		return "unknown_"
	}
}

// Encode serializes the part type to its stable byte encoding: a type-id
// byte followed by variant-specific parameters. Used both in the on-disk
// signature (§3) and as the wire encoding consumed by the out-of-scope
// master<->chunkserver protocol.
func (t ChunkPartType) Encode() []byte {
	switch t.kind {
	case KindStandard:
		return []byte{byte(KindStandard)}
	case KindXOR:
		return []byte{byte(KindXOR), byte(t.level), byte(t.part)}
	case KindEC:
		data, parity := t.ECShards()
		return []byte{byte(KindEC), byte(data), byte(parity), byte(t.part)}
	default:
		return []byte{byte(t.kind)}
	}
}

// DecodePartType parses the byte encoding produced by Encode, returning the
// number of bytes consumed.
func DecodePartType(b []byte) (ChunkPartType, int, error) {
	if len(b) < 1 {
		return ChunkPartType{}, 0, errors.Extend(ErrBadPartType, errors.New("empty buffer"))
	}
	switch PartKind(b[0]) {
	case KindStandard:
		return Standard(), 1, nil
	case KindXOR:
		if len(b) < 3 {
			return ChunkPartType{}, 0, errors.Extend(ErrBadPartType, errors.New("truncated xor type"))
		}
		t, err := XOR(int(b[1]), int(b[2]))
		return t, 3, err
	case KindEC:
		if len(b) < 4 {
			return ChunkPartType{}, 0, errors.Extend(ErrBadPartType, errors.New("truncated ec type"))
		}
		t, err := EC(int(b[1]), int(b[2]), int(b[3]))
		return t, 4, err
	default:
		return ChunkPartType{}, 0, errors.Extend(ErrBadPartType, errors.New("unrecognized type-id byte"))
	}
}
