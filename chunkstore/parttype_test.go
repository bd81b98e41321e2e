package chunkstore

import "testing"

func TestPartTypeEncodeDecodeRoundTrip(t *testing.T) {
	cases := []ChunkPartType{
		Standard(),
	}
	if xor, err := XOR(4, 2); err == nil {
		cases = append(cases, xor)
	} else {
		t.Fatalf("XOR(4, 2): %v", err)
	}
	if parity, err := XOR(4, XORParityPart); err == nil {
		cases = append(cases, parity)
	} else {
		t.Fatalf("XOR(4, parity): %v", err)
	}
	if ec, err := EC(6, 3, 5); err == nil {
		cases = append(cases, ec)
	} else {
		t.Fatalf("EC(6, 3, 5): %v", err)
	}

	for _, want := range cases {
		enc := want.Encode()
		got, n, err := DecodePartType(enc)
		if err != nil {
			t.Fatalf("DecodePartType(%v): %v", enc, err)
		}
		if n != len(enc) {
			t.Errorf("DecodePartType consumed %d bytes, want %d", n, len(enc))
		}
		if got != want {
			t.Errorf("round trip: got %+v, want %+v", got, want)
		}
	}
}

func TestXORRejectsOutOfRangeLevel(t *testing.T) {
	if _, err := XOR(1, 1); err == nil {
		t.Error("XOR(1, 1): expected error, got nil")
	}
	if _, err := XOR(11, 1); err == nil {
		t.Error("XOR(11, 1): expected error, got nil")
	}
	if _, err := XOR(4, 5); err == nil {
		t.Error("XOR(4, 5): part out of range, expected error")
	}
}

func TestECRejectsOutOfRangePart(t *testing.T) {
	if _, err := EC(4, 2, 6); err == nil {
		t.Error("EC(4, 2, 6): part out of range, expected error")
	}
	if _, err := EC(0, 2, 0); err == nil {
		t.Error("EC(0, 2, 0): zero data shards, expected error")
	}
}

func TestMaxBlocksInFile(t *testing.T) {
	if got := Standard().MaxBlocksInFile(); got != 1024 {
		t.Errorf("Standard MaxBlocksInFile = %d, want 1024", got)
	}
	xor, _ := XOR(4, 1)
	if got := xor.MaxBlocksInFile(); got != 256 {
		t.Errorf("XOR(4) MaxBlocksInFile = %d, want 256", got)
	}
	ec, _ := EC(3, 2, 0)
	if got := ec.MaxBlocksInFile(); got != 342 {
		t.Errorf("EC(3,2) MaxBlocksInFile = %d, want 342", got)
	}
}

func TestFilenamesVaryByTag(t *testing.T) {
	std := metaFilename(1, 1, Standard())
	xor, _ := XOR(4, 2)
	xorName := metaFilename(1, 1, xor)
	if std == xorName {
		t.Errorf("filenames should differ by part type tag: both %q", std)
	}
}
