package xbee

import (
	"context"
	"testing"
	"time"
)

func openTestDevice(t *testing.T) (*LocalDevice, *PipeTransport) {
	t.Helper()
	transport := NewPipeTransport()
	device := NewLocalDevice(transport, DeviceConfig{OperatingMode: "api", ReceiveTimeoutMs: 1000}, nil)
	if err := device.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return device, transport
}

// respondTo replies to every outbound AT request whose mnemonic is in
// responses with an OK status and the given value, until stop fires.
func respondTo(t *testing.T, transport *PipeTransport, responses map[string][]byte, stop <-chan struct{}) {
	t.Helper()
	go func() {
		for {
			select {
			case raw, ok := <-transport.Sent():
				if !ok {
					return
				}
				if len(raw) < 7 {
					continue
				}
				frameID := raw[4]
				mnemonic := string(raw[5:7])
				val, ok := responses[mnemonic]
				if !ok {
					continue
				}
				body := append([]byte(mnemonic), byte(ATStatusOK))
				body = append(body, val...)
				transport.Feed(Encode(NewFrame(FrameTypeATCommandResponse, frameID, body), false))
			case <-stop:
				return
			}
		}
	}()
}

func TestInitializeHappyPath(t *testing.T) {
	device, transport := openTestDevice(t)
	stop := make(chan struct{})
	defer close(stop)

	respondTo(t, transport, map[string][]byte{
		"SH": {0x00, 0x13, 0xA2, 0x00},
		"SL": {0x40, 0xAA, 0xBB, 0xCC},
		"NI": []byte("xbee-1"),
		"HV": {0x1E},
		"VR": {0x10, 0x81},
	}, stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := device.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	id := device.Identity()
	if id.Addr64.String() != "0013A20040AABBCC" {
		t.Errorf("Addr64: got %s, want 0013A20040AABBCC", id.Addr64.String())
	}
	if id.NodeID != "xbee-1" {
		t.Errorf("NodeID: got %q, want xbee-1", id.NodeID)
	}
	if id.HardwareVersion != 0x1E {
		t.Errorf("HardwareVersion: got 0x%02X, want 0x1E", byte(id.HardwareVersion))
	}
	if id.FirmwareVersion != "1081" {
		t.Errorf("FirmwareVersion: got %q, want 1081", id.FirmwareVersion)
	}
	if device.State() != StateInitialized {
		t.Errorf("State: got %v, want INITIALIZED", device.State())
	}
}

func TestGetDIORaw80215_4AsyncSample(t *testing.T) {
	device, transport := openTestDevice(t)
	device.mu.Lock()
	device.state = StateInitialized
	device.identity.Protocol = ProtocolRaw80215_4
	device.mu.Unlock()

	go func() {
		raw := <-transport.Sent() // the IS request
		frameID := raw[4]
		body := append([]byte("IS"), byte(ATStatusOK)) // empty value
		transport.Feed(Encode(NewFrame(FrameTypeATCommandResponse, frameID, body), false))

		// DIO3 high, no analog channels.
		sampleData := []byte{0x01, 0x00, 0x08, 0x00, 0x00, 0x08}
		transport.Feed(Encode(Frame{Type: FrameTypeRXIO64, Payload: sampleData}, false))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := device.GetDIO(ctx, DIO3)
	if err != nil {
		t.Fatalf("GetDIO: %v", err)
	}
	if v != High {
		t.Errorf("GetDIO(DIO3): got %v, want High", v)
	}
}
