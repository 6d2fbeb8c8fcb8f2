package xbee

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// waiter is a parked sync send: a single-slot signal a matching response
// (or timeout/cancel/transport-close) fulfills exactly once.
type waiter struct {
	frameID       byte
	sentFrameType byte
	sentMnemonic  string // uppercase; empty for non-AT frame types
	sentFrame     Frame
	resultCh      chan waitResult
}

type waitResult struct {
	frame Frame
	err   error
}

// Correlator is the send engine: it allocates frame IDs, writes frames
// through the transport write-lock, and parks callers until a matching
// response arrives, the deadline expires, or the transport closes.
type Correlator struct {
	transport Transport
	escaped   bool
	registry  *ListenerRegistry
	reader    *Reader
	logger    *slog.Logger

	receiveTimeout time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	currentID byte
	waiters   map[byte]*waiter
	listening map[byte]struct{}
	lastSent  Frame
	hasSent   bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewCorrelator creates a Correlator that writes to transport in the given
// escape mode and reads matching frames from registry/reader.
func NewCorrelator(transport Transport, escaped bool, registry *ListenerRegistry, reader *Reader, receiveTimeout time.Duration, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if receiveTimeout <= 0 {
		receiveTimeout = DefaultReceiveTimeout
	}
	c := &Correlator{
		transport:      transport,
		escaped:        escaped,
		registry:       registry,
		reader:         reader,
		logger:         logger,
		receiveTimeout: receiveTimeout,
		waiters:        make(map[byte]*waiter),
		listening:      make(map[byte]struct{}),
		closed:         make(chan struct{}),
	}
	return c
}

// Start begins consuming decoded frames as a global listener and watching
// the Reader for closure. Call once, after Reader.Run has been started in
// its own goroutine.
func (c *Correlator) Start() {
	_, ch := c.registry.Subscribe()
	go func() {
		for {
			select {
			case f, ok := <-ch:
				if !ok {
					return
				}
				c.dispatch(f)
			case <-c.reader.Done():
				c.failAllWaiters()
				return
			}
		}
	}()
}

// Close fails every outstanding waiter with TransportClosed. Idempotent.
func (c *Correlator) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.failAllWaiters()
	})
}

func (c *Correlator) failAllWaiters() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[byte]*waiter)
	c.mu.Unlock()

	for _, w := range waiters {
		select {
		case w.resultCh <- waitResult{err: newErr(ErrTransportClosed, "send", "transport closed while waiting for response")}:
		default:
		}
	}
}

// allocateFrameID returns the next frame ID in [1..255], skipping IDs held
// by a live waiter or a registered with_listener send, wrapping 0xFF to 1
// (0 is reserved for "no response expected"). Fails with FrameIdExhausted
// if all 255 IDs are in use.
func (c *Correlator) allocateFrameID() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 255; i++ {
		c.currentID++
		if c.currentID == 0 {
			c.currentID = 1
		}
		_, waiting := c.waiters[c.currentID]
		_, listening := c.listening[c.currentID]
		if !waiting && !listening {
			return c.currentID, nil
		}
	}
	return 0, newErr(ErrFrameIDExhausted, "allocate_frame_id", "no free frame IDs")
}

func isATFamily(frameType byte) bool {
	switch frameType {
	case FrameTypeATCommand, FrameTypeATCommandQueue, FrameTypeRemoteATCommandRequest:
		return true
	default:
		return false
	}
}

// SendSync writes a frame built from frameType/body with a freshly
// allocated frame ID, then blocks until a matching response arrives or
// the receive timeout (or ctx) expires. mnemonic, when non-empty, is the
// 2-letter AT mnemonic the response must echo back (case-insensitive);
// pass "" for non-AT frame types.
func (c *Correlator) SendSync(ctx context.Context, frameType byte, body []byte, mnemonic string) (*Frame, error) {
	if !NeedsFrameID(frameType) {
		return nil, newErr(ErrInvalidArg, "send", "frame type does not support synchronous correlation")
	}

	id, err := c.allocateFrameID()
	if err != nil {
		return nil, err
	}
	frame := NewFrame(frameType, id, body)

	w := &waiter{
		frameID:       id,
		sentFrameType: frameType,
		sentMnemonic:  strings.ToUpper(mnemonic),
		sentFrame:     frame,
		resultCh:      make(chan waitResult, 1),
	}

	c.mu.Lock()
	c.waiters[id] = w
	c.lastSent = frame
	c.hasSent = true
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}

	raw := Encode(frame, c.escaped)
	c.writeMu.Lock()
	werr := c.transport.Write(raw)
	c.writeMu.Unlock()
	if werr != nil {
		cleanup()
		return nil, wrapIOErr("send", werr)
	}

	timer := time.NewTimer(c.receiveTimeout)
	defer timer.Stop()

	select {
	case res := <-w.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return &res.frame, nil
	case <-timer.C:
		cleanup()
		return nil, newErr(ErrTimeout, "send", "no matching response within receive timeout")
	case <-ctx.Done():
		cleanup()
		return nil, &Error{Kind: ErrTimeout, Op: "send", Message: "cancelled", Cause: ctx.Err()}
	case <-c.closed:
		cleanup()
		return nil, newErr(ErrTransportClosed, "send", "correlator closed")
	}
}

// SendNoReply writes a frame that elicits no response (frame ID 0) and
// returns as soon as the write completes.
func (c *Correlator) SendNoReply(frameType byte, body []byte) error {
	frame := NewFrame(frameType, 0, body)
	raw := Encode(frame, c.escaped)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.Write(raw); err != nil {
		return wrapIOErr("send", err)
	}
	return nil
}

// SendWithListener writes a frame built from frameType/body with a freshly
// allocated frame ID, registers listener against every decoded frame
// carrying that ID, and returns immediately without waiting for a reply.
// The returned unsubscribe func stops delivery and frees the frame ID for
// reuse; it is safe to call more than once.
func (c *Correlator) SendWithListener(frameType byte, body []byte, listener func(Frame)) (func(), error) {
	id, err := c.allocateFrameID()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.listening[id] = struct{}{}
	c.mu.Unlock()

	frame := NewFrame(frameType, id, body)
	subID, ch := c.registry.SubscribeKeyed(id)

	stop := make(chan struct{})
	var stopOnce sync.Once
	unsubscribe := func() {
		stopOnce.Do(func() {
			close(stop)
			c.registry.Unsubscribe(subID)
			c.mu.Lock()
			delete(c.listening, id)
			c.mu.Unlock()
		})
	}

	go func() {
		for {
			select {
			case f, ok := <-ch:
				if !ok {
					return
				}
				if f.Equal(frame) {
					continue // serial echo of our own outbound frame
				}
				listener(f)
			case <-stop:
				return
			}
		}
	}()

	raw := Encode(frame, c.escaped)
	c.writeMu.Lock()
	werr := c.transport.Write(raw)
	c.writeMu.Unlock()
	if werr != nil {
		unsubscribe()
		return nil, wrapIOErr("send", werr)
	}

	c.mu.Lock()
	c.lastSent = frame
	c.hasSent = true
	c.mu.Unlock()

	return unsubscribe, nil
}

// transmitStatusSuccess is the delivery-status byte TX_STATUS and
// TRANSMIT_STATUS frames report on a successful delivery.
const transmitStatusSuccess = 0x00

// transmitStatus extracts the delivery-status byte from a TX_STATUS
// (frame_id, status) or TRANSMIT_STATUS (frame_id, dest16, retry_count,
// delivery_status, discovery_status) frame. ok is false for any other
// frame type or a body too short to carry the field.
func transmitStatus(f Frame) (status byte, ok bool) {
	body := f.Body()
	switch f.Type {
	case FrameTypeTXStatus:
		if len(body) < 1 {
			return 0, false
		}
		return body[0], true
	case FrameTypeZigbeeTransmitStatus:
		if len(body) < 4 {
			return 0, false
		}
		return body[3], true
	default:
		return 0, false
	}
}

// SendAndCheck behaves like SendSync, then additionally requires the
// response be a TX_STATUS/TRANSMIT_STATUS frame reporting success, failing
// with Transmit(status) otherwise.
func (c *Correlator) SendAndCheck(ctx context.Context, frameType byte, body []byte) (*Frame, error) {
	resp, err := c.SendSync(ctx, frameType, body, "")
	if err != nil {
		return nil, err
	}
	status, ok := transmitStatus(*resp)
	if !ok {
		return nil, newErr(ErrTransmit, "send_and_check", "response is not a transmit status frame")
	}
	if status != transmitStatusSuccess {
		return nil, transmitErr("send_and_check", status)
	}
	return resp, nil
}

// dispatch runs on the correlator's listener goroutine for every decoded
// frame and wakes the matching waiter, if any.
func (c *Correlator) dispatch(f Frame) {
	id := f.FrameID()
	if id == 0 {
		return
	}

	c.mu.Lock()
	w, ok := c.waiters[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !respondsTo(w.sentFrameType, f.Type) {
		c.mu.Unlock()
		return
	}
	if isATFamily(w.sentFrameType) && w.sentMnemonic != "" && !mnemonicMatches(w.sentMnemonic, f) {
		c.mu.Unlock()
		return
	}
	if f.Equal(w.sentFrame) {
		// Serial echo of our own outbound frame; not a real response.
		c.mu.Unlock()
		return
	}
	delete(c.waiters, id)
	c.mu.Unlock()

	select {
	case w.resultCh <- waitResult{frame: f}:
	default:
	}
}

// mnemonicMatches checks the 2-letter AT mnemonic echoed back by an
// AT_COMMAND_RESPONSE (mnemonic at body[0:2]) or a REMOTE_AT_COMMAND_RESPONSE
// (mnemonic at body[10:12], after the 64-bit and 16-bit addresses), per
// parseATCommandResponse/parseRemoteATCommandResponse in at.go.
func mnemonicMatches(want string, f Frame) bool {
	body := f.Body()
	switch f.Type {
	case FrameTypeATCommandResponse:
		if len(body) < 2 {
			return false
		}
		return strings.EqualFold(string(body[:2]), want)
	case FrameTypeRemoteATCommandResponse:
		if len(body) < 12 {
			return false
		}
		return strings.EqualFold(string(body[10:12]), want)
	default:
		return false
	}
}
