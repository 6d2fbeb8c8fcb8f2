package xbee

import "testing"

func TestListenerRegistryGlobalDelivery(t *testing.T) {
	r := NewListenerRegistry(nil)
	_, ch := r.Subscribe()

	f := Frame{Type: FrameTypeModemStatus, Payload: []byte{0x00}}
	r.deliver(f)

	select {
	case got := <-ch:
		if got.Type != f.Type {
			t.Errorf("got %+v, want %+v", got, f)
		}
	default:
		t.Fatal("global subscriber did not receive the frame")
	}
}

func TestListenerRegistryKeyedDeliveryOnlyMatchingID(t *testing.T) {
	r := NewListenerRegistry(nil)
	_, ch := r.SubscribeKeyed(0x05)

	r.deliver(NewFrame(FrameTypeATCommandResponse, 0x05, []byte("NI")))
	r.deliver(NewFrame(FrameTypeATCommandResponse, 0x06, []byte("NI")))

	select {
	case got := <-ch:
		if got.FrameID() != 0x05 {
			t.Errorf("delivered frame ID: got 0x%02X, want 0x05", got.FrameID())
		}
	default:
		t.Fatal("keyed subscriber did not receive the matching frame")
	}

	select {
	case got := <-ch:
		t.Fatalf("keyed subscriber received an unexpected second frame: %+v", got)
	default:
	}
}

func TestListenerRegistryUnsubscribeIsIdempotent(t *testing.T) {
	r := NewListenerRegistry(nil)
	id, _ := r.Subscribe()
	r.Unsubscribe(id)
	r.Unsubscribe(id) // must not panic or error
}

func TestListenerRegistryOverflowDropsOldest(t *testing.T) {
	r := NewListenerRegistry(nil)
	_, ch := r.Subscribe()

	for i := 0; i < listenerBufferSize+5; i++ {
		r.deliver(Frame{Type: FrameTypeModemStatus, Payload: []byte{byte(i)}})
	}

	// The channel should be full but not have panicked or blocked; drain
	// it and confirm the oldest entries were evicted in favor of the
	// newest ones.
	var last byte
	count := 0
	for {
		select {
		case f := <-ch:
			last = f.Payload[0]
			count++
		default:
			goto done
		}
	}
done:
	if count != listenerBufferSize {
		t.Errorf("buffered count: got %d, want %d", count, listenerBufferSize)
	}
	if last != byte(listenerBufferSize+4) {
		t.Errorf("last delivered payload: got %d, want %d", last, listenerBufferSize+4)
	}
}
