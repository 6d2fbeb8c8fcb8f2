package xbee

import (
	"context"
	"testing"
	"time"
)

func newTestCorrelator() (*Correlator, *PipeTransport) {
	transport := NewPipeTransport()
	_ = transport.Open()
	registry := NewListenerRegistry(nil)
	reader := NewReader(transport, false, registry, nil)
	go reader.Run()
	correlator := NewCorrelator(transport, false, registry, reader, time.Second, nil)
	correlator.Start()
	return correlator, transport
}

func TestFrameIDWrap(t *testing.T) {
	c, _ := newTestCorrelator()
	c.currentID = 0xFE

	want := []byte{0xFF, 0x01, 0x02}
	for i, w := range want {
		id, err := c.allocateFrameID()
		if err != nil {
			t.Fatalf("allocateFrameID[%d]: %v", i, err)
		}
		if id != w {
			t.Errorf("allocateFrameID[%d]: got 0x%02X, want 0x%02X", i, id, w)
		}
	}
}

func TestFrameIDAllocationSkipsLiveWaiters(t *testing.T) {
	c, _ := newTestCorrelator()
	c.currentID = 0
	c.waiters[1] = &waiter{frameID: 1}

	id, err := c.allocateFrameID()
	if err != nil {
		t.Fatalf("allocateFrameID: %v", err)
	}
	if id != 2 {
		t.Errorf("allocateFrameID: got %d, want 2 (1 is held by a live waiter)", id)
	}
}

func TestFrameIDAllocationNeverReturnsZero(t *testing.T) {
	c, _ := newTestCorrelator()
	for i := 0; i < 300; i++ {
		id, err := c.allocateFrameID()
		if err != nil {
			t.Fatalf("allocateFrameID: %v", err)
		}
		if id == 0 {
			t.Fatal("allocateFrameID returned 0")
		}
	}
}

func TestSendSyncEchoSuppression(t *testing.T) {
	c, transport := newTestCorrelator()

	type result struct {
		resp *ATCommandResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		frame, err := c.SendSync(context.Background(), FrameTypeATCommand, buildATCommandBody("NI", nil), "NI")
		if err != nil {
			done <- result{err: err}
			return
		}
		resp, perr := parseATCommandResponse(frame.Body())
		done <- result{resp: resp, err: perr}
	}()

	var sentRaw []byte
	select {
	case sentRaw = <-transport.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}

	frameID := sentRaw[4]

	// Echo the exact bytes we just sent back into the transport; the
	// correlator must not treat this as the response.
	transport.Feed(sentRaw)

	// Now send the genuine response.
	body := append([]byte("NI"), byte(ATStatusOK))
	body = append(body, []byte("MY_NODE")...)
	respRaw := Encode(NewFrame(FrameTypeATCommandResponse, frameID, body), false)
	transport.Feed(respRaw)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("SendSync: %v", r.err)
		}
		if r.resp.Mnemonic != "NI" || r.resp.Status != ATStatusOK || string(r.resp.Value) != "MY_NODE" {
			t.Errorf("got %+v", r.resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendSync to return")
	}
}

func TestSendWithListenerDeliversKeyedFrames(t *testing.T) {
	c, transport := newTestCorrelator()

	received := make(chan Frame, 4)
	unsubscribe, err := c.SendWithListener(FrameTypeTXRequest64, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x00, 0x00, 'h', 'i'}, func(f Frame) {
		received <- f
	})
	if err != nil {
		t.Fatalf("SendWithListener: %v", err)
	}

	var sentRaw []byte
	select {
	case sentRaw = <-transport.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
	frameID := sentRaw[4]

	// The echo of our own outbound frame must not reach the listener.
	transport.Feed(sentRaw)

	status := Encode(NewFrame(FrameTypeTXStatus, frameID, []byte{transmitStatusSuccess}), false)
	transport.Feed(status)

	select {
	case f := <-received:
		if f.Type != FrameTypeTXStatus || f.FrameID() != frameID {
			t.Errorf("got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener delivery")
	}

	unsubscribe()
	transport.Feed(Encode(NewFrame(FrameTypeTXStatus, frameID, []byte{transmitStatusSuccess}), false))

	select {
	case extra := <-received:
		t.Errorf("listener delivered a frame after unsubscribe: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendWithListenerFrameIDReleasedOnUnsubscribe(t *testing.T) {
	c, _ := newTestCorrelator()
	c.currentID = 0

	unsubscribe, err := c.SendWithListener(FrameTypeTXRequest64, nil, func(Frame) {})
	if err != nil {
		t.Fatalf("SendWithListener: %v", err)
	}
	if len(c.listening) != 1 {
		t.Fatalf("listening set = %v, want one held ID", c.listening)
	}
	unsubscribe()
	if len(c.listening) != 0 {
		t.Fatalf("listening set after unsubscribe = %v, want empty", c.listening)
	}
}

func TestSendAndCheckSuccess(t *testing.T) {
	c, transport := newTestCorrelator()

	done := make(chan error, 1)
	go func() {
		_, err := c.SendAndCheck(context.Background(), FrameTypeTXRequest64, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x00, 0x00, 'h', 'i'})
		done <- err
	}()

	var sentRaw []byte
	select {
	case sentRaw = <-transport.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
	frameID := sentRaw[4]

	status := Encode(NewFrame(FrameTypeTXStatus, frameID, []byte{transmitStatusSuccess}), false)
	transport.Feed(status)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendAndCheck: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendAndCheck to return")
	}
}

func TestSendAndCheckFailureStatus(t *testing.T) {
	c, transport := newTestCorrelator()

	done := make(chan error, 1)
	go func() {
		_, err := c.SendAndCheck(context.Background(), FrameTypeZigbeeTransmitRequest, make([]byte, 20))
		done <- err
	}()

	var sentRaw []byte
	select {
	case sentRaw = <-transport.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
	frameID := sentRaw[4]

	const deliveryFailed = 0x01
	status := Encode(NewFrame(FrameTypeZigbeeTransmitStatus, frameID, []byte{0x00, 0x00, 0x00, deliveryFailed, 0x00}), false)
	transport.Feed(status)

	select {
	case err := <-done:
		xerr, ok := err.(*Error)
		if !ok || xerr.Kind != ErrTransmit || xerr.Status != deliveryFailed {
			t.Fatalf("expected ErrTransmit(0x%02X), got %v", deliveryFailed, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendAndCheck to return")
	}
}

func TestSendSyncTimeout(t *testing.T) {
	transport := NewPipeTransport()
	_ = transport.Open()
	registry := NewListenerRegistry(nil)
	reader := NewReader(transport, false, registry, nil)
	go reader.Run()
	c := NewCorrelator(transport, false, registry, reader, 20*time.Millisecond, nil)
	c.Start()

	_, err := c.SendSync(context.Background(), FrameTypeATCommand, buildATCommandBody("NI", nil), "NI")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
