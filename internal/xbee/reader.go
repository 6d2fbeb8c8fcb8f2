package xbee

import (
	"errors"
	"io"
	"log/slog"
)

// Reader owns the inbound half of a Transport. It is meant to run as the
// single dedicated goroutine per transport: it pulls bytes, feeds them to
// a FrameDecoder, and publishes decoded frames to a ListenerRegistry. It
// never blocks on a subscriber and never retries a fatal transport error.
type Reader struct {
	transport Transport
	decoder   *FrameDecoder
	registry  *ListenerRegistry
	logger    *slog.Logger

	done chan struct{}
}

// NewReader creates a Reader for transport, decoding in the given escape
// mode and publishing to registry.
func NewReader(transport Transport, escaped bool, registry *ListenerRegistry, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		transport: transport,
		decoder:   NewFrameDecoder(escaped),
		registry:  registry,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Done returns a channel closed once the Reader has stopped, whether from
// transport EOF/close or a fatal I/O error.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Run drains the transport until it closes or a fatal read error occurs.
// Call it in its own goroutine; it returns when the reader stops.
func (r *Reader) Run() {
	defer close(r.done)

	buf := make([]byte, 512)
	for {
		n, err := r.transport.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("reader stopped: transport closed")
			} else {
				r.logger.Error("reader stopped: read error", "error", err)
			}
			return
		}
		for i := 0; i < n; i++ {
			frame, ferr := r.decoder.Feed(buf[i])
			if ferr != nil {
				var xerr *Error
				if errors.As(ferr, &xerr) {
					r.logger.Warn("dropping malformed frame", "kind", xerr.Kind.String())
				} else {
					r.logger.Warn("dropping malformed frame", "error", ferr)
				}
				continue
			}
			if frame != nil {
				r.registry.deliver(*frame)
			}
		}
	}
}
