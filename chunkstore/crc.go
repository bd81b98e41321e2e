package chunkstore

import "hash/crc32"

// EmptyBlockCRC is the CRC32 of a fully zeroed 64 KiB block - the value new
// CRC slots are backfilled with whenever a chunk grows without its
// intervening blocks ever being written (spec.md §4.4).
var EmptyBlockCRC = crc32.ChecksumIEEE(make([]byte, SFSBlockSize))

const gf2Dim = 32

func gf2MatrixTimes(mat [gf2Dim]uint32, vec uint32) uint32 {
	var sum uint32
	for n := 0; vec != 0; n++ {
		if vec&1 != 0 {
			sum ^= mat[n]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(mat [gf2Dim]uint32) [gf2Dim]uint32 {
	var square [gf2Dim]uint32
	for n := 0; n < gf2Dim; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
	return square
}

// CombineCRC combines the CRC32 of two adjoining byte ranges, crc1 covering
// the first range and crc2 the second range of len2Bytes bytes, into the
// CRC32 of their concatenation.
// This is the classic zlib crc32_combine algorithm (public-domain, Mark
// Adler): it treats "append len2Bytes zero bytes then XOR in crc2" as a
// linear operator over GF(2) and applies it via repeated squaring. No
// third-party Go package in the reference corpus implements this, so it is
// built directly on the standard library's hash/crc32 polynomial table
// (IEEE 802.3, 0xEDB88320) - see DESIGN.md.
func CombineCRC(crc1, crc2 uint32, len2Bytes int64) uint32 {
	if len2Bytes <= 0 {
		return crc1
	}

	var odd [gf2Dim]uint32
	odd[0] = 0xedb88320
	row := uint32(1)
	for n := 1; n < gf2Dim; n++ {
		odd[n] = row
		row <<= 1
	}
	even := gf2MatrixSquare(odd)
	odd = gf2MatrixSquare(even)

	len2 := uint64(len2Bytes)
	for {
		even = gf2MatrixSquare(odd)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		odd = gf2MatrixSquare(even)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}

// ZeroExpandCRC returns the CRC32 of `data` (whose CRC is already known to
// be crc) followed by zeroCount zero bytes, without re-reading `data`. Used
// by truncate/duplicate_truncate when shrinking to a partial tail block
// (spec.md §4.4).
func ZeroExpandCRC(crc uint32, zeroCount int) uint32 {
	if zeroCount <= 0 {
		return crc
	}
	zeroCRC := crc32.ChecksumIEEE(make([]byte, zeroCount))
	return CombineCRC(crc, zeroCRC, int64(zeroCount))
}
