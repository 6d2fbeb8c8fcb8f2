package xbee

import "testing"

func TestChecksumGenerate(t *testing.T) {
	var c Checksum
	c.AddBytes([]byte{0x08, 0x01, 0x4E, 0x49})
	got := c.Generate()
	want := byte(0x5F)
	if got != want {
		t.Errorf("generate: got 0x%02X, want 0x%02X", got, want)
	}
}

func TestChecksumValidate(t *testing.T) {
	var c Checksum
	c.AddBytes([]byte{0x08, 0x01, 0x4E, 0x49})
	c.Add(0x5F)
	if !c.Validate() {
		t.Error("expected checksum to validate")
	}
}

func TestChecksumValidateBad(t *testing.T) {
	var c Checksum
	c.AddBytes([]byte{0x08, 0x01, 0x4E, 0x49})
	c.Add(0x60)
	if c.Validate() {
		t.Error("expected checksum mismatch to fail validation")
	}
}

func TestChecksumAddBytesNilIsNoop(t *testing.T) {
	var c Checksum
	c.AddBytes(nil)
	if c.sum != 0 {
		t.Errorf("sum after nil AddBytes: got %d, want 0", c.sum)
	}
}

func TestChecksumReset(t *testing.T) {
	var c Checksum
	c.AddBytes([]byte{0x01, 0x02})
	c.Reset()
	if c.sum != 0 {
		t.Errorf("sum after reset: got %d, want 0", c.sum)
	}
}
