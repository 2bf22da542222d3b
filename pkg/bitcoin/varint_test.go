package bitcoin

import "testing"

func TestVarIntRoundTrip(t *testing.T) {
	tests := []uint64{
		0, 1, 0xfc,
		0xfd, 0xfffe, 0xffff,
		0x10000, 0xfffffffe, 0xffffffff,
		0x100000000, 0xffffffffffffffff,
	}

	for _, val := range tests {
		encoded := WriteVarInt(val)
		decoded, n, err := ReadVarInt(encoded)
		if err != nil {
			t.Errorf("ReadVarInt error for %d: %v", val, err)
			continue
		}
		if n != len(encoded) {
			t.Errorf("ReadVarInt bytes consumed = %d, want %d for value %d", n, len(encoded), val)
		}
		if decoded != val {
			t.Errorf("VarInt round-trip failed: %d -> %d", val, decoded)
		}
		if VarIntLen(val) != len(encoded) {
			t.Errorf("VarIntLen(%d) = %d, want %d", val, VarIntLen(val), len(encoded))
		}
	}
}

func TestVarIntBoundaries(t *testing.T) {
	// These are exactly the boundaries §6 requires test vectors for.
	cases := []struct {
		val      uint64
		wantSize int
	}{
		{252, 1},
		{253, 3},
		{65535, 3},
		{65536, 5},
		{4294967295, 5},
		{4294967296, 9},
	}
	for _, c := range cases {
		if got := len(WriteVarInt(c.val)); got != c.wantSize {
			t.Errorf("WriteVarInt(%d) len = %d, want %d", c.val, got, c.wantSize)
		}
	}
}

func TestReadVarIntErrors(t *testing.T) {
	if _, _, err := ReadVarInt(nil); err == nil {
		t.Error("expected error on empty data")
	}
	if _, _, err := ReadVarInt([]byte{0xfd, 0x01}); err == nil {
		t.Error("expected error on truncated uint16 varint")
	}
	if _, _, err := ReadVarInt([]byte{0xfe, 0x01, 0x02, 0x03}); err == nil {
		t.Error("expected error on truncated uint32 varint")
	}
	if _, _, err := ReadVarInt([]byte{0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}); err == nil {
		t.Error("expected error on truncated uint64 varint")
	}
}
