// Package monitor exposes a debug WebSocket stream of every decoded XBee
// frame, for watching traffic live without attaching a logic analyzer.
package monitor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"xbeelink/internal/xbee"
)

// frameMessage is the JSON shape pushed to each connected client.
type frameMessage struct {
	Type      string `json:"type"`
	FrameID   int    `json:"frame_id,omitempty"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// hub fans a stream of frameMessages out to every connected client,
// evicting any client that falls behind instead of blocking the
// publisher.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (h *hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
		}
		h.clients = make(map[*client]struct{})
		h.mu.Unlock()
	})
}

func (h *hub) register(c *client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// broadcast never blocks: a client whose send buffer is full is evicted.
func (h *hub) broadcast(msg frameMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("monitor marshal frame", "err", err)
		return
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
		h.logger.Warn("monitor client evicted (too slow)")
	}
	h.mu.Unlock()
}

// Server streams decoded frames over a single /ws WebSocket route.
type Server struct {
	hub      *hub
	logger   *slog.Logger
	unsub    func()
	http     *http.Server
	listen   string
}

// NewServer builds a Server and subscribes it to every frame the registry
// delivers globally right away. Call Start to begin serving.
func NewServer(registry *xbee.ListenerRegistry, listen string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: newHub(logger), logger: logger, listen: listen}

	id, ch := registry.Subscribe()
	s.unsub = func() { registry.Unsubscribe(id) }
	go s.pump(ch)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Addr: listen, Handler: mux}
	return s
}

// pump relays frames from the registry channel to the hub until Stop
// closes hub.done. Unsubscribing stops delivery but does not close the
// channel, so hub.done is what ends the loop.
func (s *Server) pump(ch <-chan xbee.Frame) {
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			s.hub.broadcast(frameMessage{
				Type:      xbee.TypeName(f.Type),
				FrameID:   int(f.FrameID()),
				Payload:   hex.EncodeToString(f.Body()),
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
		case <-s.hub.done:
			return
		}
	}
}

// Start begins serving. It returns once the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.logger.Info("frame monitor listening", "addr", s.listen)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop unsubscribes from the registry, closes every connected client,
// and shuts the HTTP server down.
func (s *Server) Stop() {
	s.unsub()
	s.hub.stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("monitor ws accept", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	if !s.hub.register(c) {
		conn.Close(websocket.StatusGoingAway, "monitor shutting down")
		return
	}

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) writePump(c *client) {
	for msg := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readPump(c *client) {
	defer s.hub.unregister(c)
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
		// Clients don't send anything meaningful; this just detects close.
	}
}
