package chunkstore

import (
	"hash/crc32"
	"testing"
)

func TestCombineCRCMatchesWholeBufferCRC(t *testing.T) {
	a := []byte("the quick brown fox ")
	b := []byte("jumps over the lazy dog")

	whole := append(append([]byte{}, a...), b...)
	want := crc32.ChecksumIEEE(whole)

	got := CombineCRC(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(b), int64(len(b)))
	if got != want {
		t.Errorf("CombineCRC = %x, want %x", got, want)
	}
}

func TestZeroExpandCRCMatchesZeroPaddedBuffer(t *testing.T) {
	data := []byte("some data")
	padded := append(append([]byte{}, data...), make([]byte, 50)...)
	want := crc32.ChecksumIEEE(padded)

	got := ZeroExpandCRC(crc32.ChecksumIEEE(data), 50)
	if got != want {
		t.Errorf("ZeroExpandCRC = %x, want %x", got, want)
	}
}

func TestEmptyBlockCRCMatchesZeroedBlock(t *testing.T) {
	zeroed := make([]byte, SFSBlockSize)
	want := crc32.ChecksumIEEE(zeroed)
	if EmptyBlockCRC != want {
		t.Errorf("EmptyBlockCRC = %x, want %x", EmptyBlockCRC, want)
	}
}

func TestCombineCRCIsAssociative(t *testing.T) {
	a := []byte("abc")
	b := []byte("defg")
	c := []byte("hi")

	leftFirst := CombineCRC(CombineCRC(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(b), int64(len(b))), crc32.ChecksumIEEE(c), int64(len(c)))

	bc := append(append([]byte{}, b...), c...)
	rightFirst := CombineCRC(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(bc), int64(len(bc)))

	if leftFirst != rightFirst {
		t.Errorf("CombineCRC not associative: %x vs %x", leftFirst, rightFirst)
	}
}
