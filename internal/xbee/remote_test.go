package xbee

import (
	"context"
	"testing"
	"time"
)

func TestRemoteDeviceGetParameterWrapsRemoteAT(t *testing.T) {
	local, transport := openTestDevice(t)
	local.mu.Lock()
	local.state = StateInitialized
	local.mu.Unlock()

	remote := NewRemoteDevice(local, Addr64(0x0013A20040AABBCC))

	go func() {
		raw := <-transport.Sent()
		if raw[3] != FrameTypeRemoteATCommandRequest {
			t.Errorf("request type: got 0x%02X, want 0x%02X", raw[3], FrameTypeRemoteATCommandRequest)
			return
		}
		frameID := raw[4]
		addr64 := raw[5:13]
		addr16 := raw[13:15]
		mnemonic := string(raw[16:18])

		body := make([]byte, 0, 13+len(mnemonic)+1)
		body = append(body, addr64...)
		body = append(body, addr16...)
		body = append(body, mnemonic...)
		body = append(body, byte(ATStatusOK))
		body = append(body, []byte("xbee-remote")...)

		transport.Feed(Encode(NewFrame(FrameTypeRemoteATCommandResponse, frameID, body), false))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := remote.GetParameter(ctx, "NI")
	if err != nil {
		t.Fatalf("GetParameter: %v", err)
	}
	if string(val) != "xbee-remote" {
		t.Errorf("GetParameter: got %q, want xbee-remote", string(val))
	}
}

func TestRemoteDeviceResetDoesNotWaitForModemStatus(t *testing.T) {
	local, transport := openTestDevice(t)
	local.mu.Lock()
	local.state = StateInitialized
	local.mu.Unlock()

	remote := NewRemoteDevice(local, Addr64(0x0013A20040AABBCC))

	go func() {
		raw := <-transport.Sent()
		frameID := raw[4]
		addr64 := raw[5:13]
		addr16 := raw[13:15]
		body := make([]byte, 0, 13)
		body = append(body, addr64...)
		body = append(body, addr16...)
		body = append(body, []byte("FR")...)
		body = append(body, byte(ATStatusOK))
		transport.Feed(Encode(NewFrame(FrameTypeRemoteATCommandResponse, frameID, body), false))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := remote.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}
