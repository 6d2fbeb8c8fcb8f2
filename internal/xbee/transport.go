package xbee

import (
	"io"
	"sync"
)

// Transport is the abstract byte channel a Reader drains and a Correlator
// writes to. Implementations need not be safe for concurrent Write calls
// from multiple goroutines; the Correlator's write lock is what serializes
// writers in practice (spec: "writers serialize through a transport write
// lock").
type Transport interface {
	Open() error
	Close() error
	IsOpen() bool
	Read(buf []byte) (n int, err error)
	Write(data []byte) error
}

// PipeTransport is an in-memory Transport backed by io.Pipe, used by
// tests. Feed lets a test inject bytes as
// if they arrived over the wire; Sent drains bytes written by the code
// under test.
type PipeTransport struct {
	mu   sync.Mutex
	open bool

	inR *io.PipeReader
	inW *io.PipeWriter

	sent chan []byte
}

// NewPipeTransport creates an unopened PipeTransport.
func NewPipeTransport() *PipeTransport {
	r, w := io.Pipe()
	return &PipeTransport{inR: r, inW: w, sent: make(chan []byte, 256)}
}

func (p *PipeTransport) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	return nil
}

func (p *PipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	_ = p.inW.Close()
	return nil
}

func (p *PipeTransport) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *PipeTransport) Read(buf []byte) (int, error) {
	return p.inR.Read(buf)
}

func (p *PipeTransport) Write(data []byte) error {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if !open {
		return newErr(ErrInterfaceNotOpen, "write", "transport not open")
	}
	cp := append([]byte(nil), data...)
	select {
	case p.sent <- cp:
	default:
	}
	return nil
}

// Feed injects bytes as if they had just arrived over the wire.
func (p *PipeTransport) Feed(data []byte) {
	go func() {
		_, _ = p.inW.Write(data)
	}()
}

// Sent returns the channel of byte slices written via Write, for tests to
// assert against.
func (p *PipeTransport) Sent() <-chan []byte {
	return p.sent
}
