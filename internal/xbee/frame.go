package xbee

import "fmt"

const (
	frameDelimiter byte = 0x7E
	escapeByte     byte = 0x7D
	escapeXOR      byte = 0x20
)

func isEscapeByte(b byte) bool {
	switch b {
	case 0x7E, 0x7D, 0x11, 0x13:
		return true
	default:
		return false
	}
}

// Frame is one API frame: a type byte plus the raw bytes that followed it
// on the wire (frame_id, when the frame type needs one, is Payload[0]).
type Frame struct {
	Type    byte
	Payload []byte
}

// NewFrame builds a Frame for a frame type, prefixing frameID onto the body
// when the registry says the type needs one. frameID == 0 means "no
// response expected" and is omitted for types that don't need it.
func NewFrame(frameType byte, frameID byte, body []byte) Frame {
	if !NeedsFrameID(frameType) {
		return Frame{Type: frameType, Payload: body}
	}
	payload := make([]byte, 1+len(body))
	payload[0] = frameID
	copy(payload[1:], body)
	return Frame{Type: frameType, Payload: payload}
}

// FrameID returns the frame's correlation ID, or 0 if the frame type
// carries none.
func (f Frame) FrameID() byte {
	if NeedsFrameID(f.Type) && len(f.Payload) > 0 {
		return f.Payload[0]
	}
	return 0
}

// Body returns the payload with the frame ID (if any) stripped off.
func (f Frame) Body() []byte {
	if NeedsFrameID(f.Type) && len(f.Payload) > 0 {
		return f.Payload[1:]
	}
	return f.Payload
}

// bytes returns the raw type+payload bytes the checksum is computed over.
func (f Frame) bytes() []byte {
	b := make([]byte, 0, 1+len(f.Payload))
	b = append(b, f.Type)
	return append(b, f.Payload...)
}

// Equal reports whether two frames carry the same type and payload bytes,
// used by the Correlator to drop serial-echoed frames.
func (f Frame) Equal(other Frame) bool {
	if f.Type != other.Type || len(f.Payload) != len(other.Payload) {
		return false
	}
	for i := range f.Payload {
		if f.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return true
}

// Encode renders a frame as on-wire bytes: delimiter, big-endian length,
// type, payload, checksum. In escaped mode every byte after the leading
// delimiter whose value is 0x7E, 0x7D, 0x11, or 0x13 is replaced by
// 0x7D, value^0x20; the delimiter itself is never escaped.
func Encode(f Frame, escaped bool) []byte {
	body := f.bytes()

	var cksum Checksum
	cksum.AddBytes(body)
	trailer := cksum.Generate()

	length := len(body)
	raw := make([]byte, 0, 4+len(body))
	raw = append(raw, frameDelimiter, byte(length>>8), byte(length))
	raw = append(raw, body...)
	raw = append(raw, trailer)

	if !escaped {
		return raw
	}

	out := make([]byte, 1, len(raw)+4)
	out[0] = raw[0]
	for _, b := range raw[1:] {
		if isEscapeByte(b) {
			out = append(out, escapeByte, b^escapeXOR)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// decodeState is one state of the resumable frame decoder.
type decodeState int

const (
	stateWaitDelim decodeState = iota
	stateLenHi
	stateLenLo
	statePayload
	stateCksum
	stateEscapedNext
)

// FrameDecoder is a byte-at-a-time, escape-aware, resumable decoder for the
// API frame wire format. It never blocks and never consumes bytes that
// precede a valid start delimiter as payload: an unexpected delimiter at
// any point resets framing and restarts at that byte.
type FrameDecoder struct {
	escaped bool

	state        decodeState
	pendingState decodeState // state to resume once an escaped byte is unescaped

	lenHi  byte
	length int
	body   []byte
	cksum  Checksum
}

// NewFrameDecoder creates a decoder for the given escape mode.
func NewFrameDecoder(escaped bool) *FrameDecoder {
	return &FrameDecoder{escaped: escaped, state: stateWaitDelim}
}

func (d *FrameDecoder) resetForNewFrame() {
	d.state = stateLenHi
	d.lenHi = 0
	d.length = 0
	d.body = nil
	d.cksum.Reset()
}

func (d *FrameDecoder) resync() {
	d.state = stateWaitDelim
	d.body = nil
	d.cksum.Reset()
}

// Feed consumes one raw (possibly escaped) byte from the stream. It
// returns a non-nil Frame once one has been fully decoded, or a non-nil
// error for BadLength/BadChecksum — after either, the decoder has already
// returned to WAIT_DELIM and is ready to resync on the next delimiter.
func (d *FrameDecoder) Feed(raw byte) (*Frame, error) {
	if raw == frameDelimiter {
		d.resetForNewFrame()
		return nil, nil
	}

	if d.escaped && d.state == stateEscapedNext {
		b := raw ^ escapeXOR
		d.state = d.pendingState
		return d.consume(b)
	}
	if d.escaped && raw == escapeByte && d.state != stateWaitDelim {
		d.pendingState = d.state
		d.state = stateEscapedNext
		return nil, nil
	}
	return d.consume(raw)
}

func (d *FrameDecoder) consume(b byte) (*Frame, error) {
	switch d.state {
	case stateWaitDelim:
		// Noise before the first delimiter; drop it.
		return nil, nil

	case stateLenHi:
		d.lenHi = b
		d.state = stateLenLo
		return nil, nil

	case stateLenLo:
		d.length = int(d.lenHi)<<8 | int(b)
		if d.length == 0 {
			d.resync()
			return nil, &Error{Kind: ErrBadLength, Op: "decode", Message: "zero-length frame"}
		}
		d.body = make([]byte, 0, d.length)
		d.state = statePayload
		return nil, nil

	case statePayload:
		d.body = append(d.body, b)
		d.cksum.Add(b)
		if len(d.body) == d.length {
			d.state = stateCksum
		}
		return nil, nil

	case stateCksum:
		d.cksum.Add(b)
		valid := d.cksum.Validate()
		body := d.body
		d.resync()
		if !valid {
			return nil, &Error{Kind: ErrBadChecksum, Op: "decode", Message: "checksum mismatch"}
		}
		return &Frame{Type: body[0], Payload: body[1:]}, nil

	default:
		return nil, fmt.Errorf("xbee: decoder in unknown state %d", d.state)
	}
}
