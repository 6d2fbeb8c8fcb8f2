package xbee

import (
	"bytes"
	"testing"
)

func TestEncodeATCommandNonEscaped(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I'})
	got := Encode(f, false)
	want := []byte{0x7E, 0x00, 0x04, 0x08, 0x01, 0x4E, 0x49, 0x5F}
	if !bytes.Equal(got, want) {
		t.Errorf("encode: got % X, want % X", got, want)
	}
}

func TestEncodeATCommandEscaped(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I', 0x11})
	got := Encode(f, true)
	want := []byte{0x7E, 0x00, 0x05, 0x08, 0x01, 0x4E, 0x49, 0x7D, 0x31, 0x4E}
	if !bytes.Equal(got, want) {
		t.Errorf("escaped encode: got % X, want % X", got, want)
	}
}

func TestDecodeRoundTripNonEscaped(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I'})
	raw := Encode(f, false)

	d := NewFrameDecoder(false)
	var got *Frame
	for _, b := range raw {
		frame, err := d.Feed(b)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if frame != nil {
			got = frame
		}
	}
	if got == nil {
		t.Fatal("decoder never produced a frame")
	}
	if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("decode: got %+v, want %+v", got, f)
	}
}

func TestDecodeRoundTripEscaped(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I', 0x11})
	raw := Encode(f, true)

	d := NewFrameDecoder(true)
	var got *Frame
	for _, b := range raw {
		frame, err := d.Feed(b)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if frame != nil {
			got = frame
		}
	}
	if got == nil {
		t.Fatal("decoder never produced a frame")
	}
	if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("decode: got %+v, want %+v", got, f)
	}
}

func TestDecodeBadChecksumResyncs(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I'})
	raw := Encode(f, false)
	raw[len(raw)-1] ^= 0xFF // corrupt the trailing checksum

	d := NewFrameDecoder(false)
	var sawErr bool
	for _, b := range raw {
		_, err := d.Feed(b)
		if err != nil {
			sawErr = true
			var xerr *Error
			if e, ok := err.(*Error); ok {
				xerr = e
			}
			if xerr == nil || xerr.Kind != ErrBadChecksum {
				t.Fatalf("expected ErrBadChecksum, got %v", err)
			}
		}
	}
	if !sawErr {
		t.Fatal("expected a checksum error")
	}
	if d.state != stateWaitDelim {
		t.Errorf("decoder did not resync: state=%v", d.state)
	}
}

func TestDecodeNoiseBeforeDelimiterIsDropped(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I'})
	raw := append([]byte{0x00, 0xFF, 0x7D, 0x12}, Encode(f, false)...)

	d := NewFrameDecoder(false)
	var got *Frame
	for _, b := range raw {
		frame, err := d.Feed(b)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if frame != nil {
			got = frame
		}
	}
	if got == nil {
		t.Fatal("decoder never produced a frame")
	}
	if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("decode: got %+v, want %+v", got, f)
	}
}

func TestDecodeZeroLengthIsBadLength(t *testing.T) {
	d := NewFrameDecoder(false)
	raw := []byte{0x7E, 0x00, 0x00}
	var sawErr bool
	for _, b := range raw {
		_, err := d.Feed(b)
		if err != nil {
			sawErr = true
			e, ok := err.(*Error)
			if !ok || e.Kind != ErrBadLength {
				t.Fatalf("expected ErrBadLength, got %v", err)
			}
		}
	}
	if !sawErr {
		t.Fatal("expected a bad-length error")
	}
}

func TestDecodeUnexpectedDelimiterResyncs(t *testing.T) {
	f := NewFrame(FrameTypeATCommand, 0x01, []byte{'N', 'I'})
	raw := Encode(f, false)
	// Splice a spurious delimiter into the middle of the payload, followed
	// by a full valid frame; only the second frame should be produced.
	corrupted := append(append([]byte{}, raw[:5]...), 0x7E)
	corrupted = append(corrupted, raw...)

	d := NewFrameDecoder(false)
	var frames []*Frame
	for _, b := range corrupted {
		frame, err := d.Feed(b)
		if err == nil && frame != nil {
			frames = append(frames, frame)
		}
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly one decoded frame, got %d", len(frames))
	}
	if frames[0].Type != f.Type || !bytes.Equal(frames[0].Payload, f.Payload) {
		t.Errorf("decode: got %+v, want %+v", frames[0], f)
	}
}
