package blocktemplate

import "testing"

func TestBlockTemplate_ToJobBlock(t *testing.T) {
	tmpl := &BlockTemplate{
		Version:           536870912,
		PreviousBlockHash: "0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39",
		CurTime:           1700000000,
		Bits:              "1d00ffff",
		Height:            800000,
	}

	block, err := tmpl.ToJobBlock()
	if err != nil {
		t.Fatalf("ToJobBlock: %v", err)
	}
	if block.Header.Version != tmpl.Version {
		t.Errorf("version = %d, want %d", block.Header.Version, tmpl.Version)
	}
	if block.Header.Timestamp != uint32(tmpl.CurTime) {
		t.Errorf("timestamp = %d, want %d", block.Header.Timestamp, tmpl.CurTime)
	}
	if block.Header.Bits != 0x1d00ffff {
		t.Errorf("bits = %#x, want 0x1d00ffff", block.Header.Bits)
	}
}

func TestBlockTemplate_ToJobBlock_BadBits(t *testing.T) {
	tmpl := &BlockTemplate{
		PreviousBlockHash: "0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39",
		Bits:              "zz",
	}
	if _, err := tmpl.ToJobBlock(); err == nil {
		t.Fatal("expected error for malformed bits")
	}
}
