package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/observability"
	"github.com/signalsfoundry/sysviz/internal/sim"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// streamMessage is what a renderer sends upstream. "complete" is the step
// completion signal; "run" and "reset" mirror the REST controls.
type streamMessage struct {
	Type string `json:"type"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans one simulator's snapshots out to every connected websocket.
// Connections are owned by the run goroutine; each client has its own
// writer so a slow reader only loses its own frames.
type hub struct {
	sim     sim.Simulator
	log     logging.Logger
	metrics *observability.TransportCollector

	upgrader  websocket.Upgrader
	clients   map[*client]bool
	register  chan *client
	remove    chan *client
	broadcast chan []byte
	done      chan struct{}
	stopped   chan struct{}

	unsubscribe func()
}

func newHub(s sim.Simulator, origins []string, log logging.Logger, metrics *observability.TransportCollector) *hub {
	h := &hub{
		sim:       s,
		log:       log.With(logging.String("scenario", string(s.Scenario()))),
		metrics:   metrics,
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(origins)},
		clients:   make(map[*client]bool),
		register:  make(chan *client),
		remove:    make(chan *client),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	h.unsubscribe = s.Subscribe(h.publish)
	go h.run(h.encode(s.Snapshot()))
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func (h *hub) encode(snap sim.Snapshot) []byte {
	data, err := json.Marshal(snap)
	if err != nil {
		h.log.Error(context.Background(), "encode snapshot", logging.Err(err))
		return nil
	}
	return data
}

// publish is the simulator observer.
func (h *hub) publish(snap sim.Snapshot) {
	data := h.encode(snap)
	if data == nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *hub) run(latest []byte) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.metrics.AddStreamClients(1)
			if latest != nil {
				c.send <- latest
			}
		case c := <-h.remove:
			h.drop(c)
		case msg := <-h.broadcast:
			latest = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn(context.Background(), "websocket client too slow, dropping")
					h.drop(c)
				}
			}
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *hub) drop(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	h.metrics.AddStreamClients(-1)
}

// serve upgrades the request and blocks reading renderer messages until the
// connection closes.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go h.write(c)
	h.read(r.Context(), c)
}

func (h *hub) write(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.leave(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.leave(c)
				return
			}
		}
	}
}

func (h *hub) read(ctx context.Context, c *client) {
	defer h.leave(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The request context is cancelled once the handler returns; commands
	// only need its values.
	ctx = context.WithoutCancel(ctx)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn(ctx, "websocket read failed", logging.Err(err))
			}
			return
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug(ctx, "ignoring malformed websocket message", logging.Err(err))
			continue
		}
		switch msg.Type {
		case "complete":
			h.sim.StepComplete(ctx)
		case "run":
			h.sim.Run(ctx)
		case "reset":
			h.sim.Reset(ctx)
		default:
			h.log.Debug(ctx, "ignoring websocket message", logging.String("type", msg.Type))
		}
	}
}

func (h *hub) leave(c *client) {
	select {
	case h.remove <- c:
	case <-h.stopped:
	}
}

func (h *hub) close() {
	select {
	case <-h.done:
		return
	default:
	}
	h.unsubscribe()
	close(h.done)
	<-h.stopped
}
