package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/interview"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

// Request is an intent sent by the browser.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Intent string          `json:"intent"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// SnapshotMessage pushes orchestrator state to the browser.
type SnapshotMessage struct {
	Type     string             `json:"type"` // "snapshot"
	Snapshot interview.Snapshot `json:"snapshot"`
}

// ResultMessage answers one Request.
type ResultMessage struct {
	Type   string `json:"type"` // "result"
	ID     string `json:"id,omitempty"`
	Intent string `json:"intent"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// client is one socket. Snapshots are latest-wins; results are queued.
type client struct {
	id      string
	conn    *websocket.Conn
	bus     *bus.Bus
	snaps   chan interview.Snapshot
	results chan ResultMessage
	done    chan struct{}
	once    sync.Once
	sent    uint64
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// offer replaces any queued snapshot with s. Never blocks; runs on the
// publisher's goroutine.
func (c *client) offer(s interview.Snapshot) {
	for {
		select {
		case c.snaps <- s:
			return
		default:
		}
		select {
		case old := <-c.snaps:
			if old.Version > s.Version {
				s = old
			}
		default:
		}
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("web: upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		bus:     s.bus,
		snaps:   make(chan interview.Snapshot, 1),
		results: make(chan ResultMessage, 16),
		done:    make(chan struct{}),
	}

	sub := s.bus.SubscribeSync(interview.TopicSnapshot, func(e bus.Event) {
		if snap, ok := e.Data.(interview.Snapshot); ok {
			c.offer(snap)
		}
	})

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	MetricInc("web", "connections")
	L_info("web: client connected", "conn", c.id, "remote", r.RemoteAddr)

	if res := s.bus.Send(interview.Component, interview.IntentSnapshot, nil, "web"); res.Data != nil {
		if snap, ok := res.Data.(interview.Snapshot); ok {
			c.offer(snap)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()

	c.readLoop()

	s.bus.Unsubscribe(sub)
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	c.close()
	L_info("web: client disconnected", "conn", c.id)
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				L_debug("web: read failed", "conn", c.id, "error", err)
			}
			return
		}
		res := c.dispatch(req)
		select {
		case c.results <- res:
		case <-c.done:
			return
		}
	}
}

// dispatch forwards one intent to the orchestrator over the bus.
func (c *client) dispatch(req Request) ResultMessage {
	out := ResultMessage{Type: "result", ID: req.ID, Intent: req.Intent}
	if req.Intent == "" {
		out.Error = "missing intent"
		return out
	}

	var payload any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &payload); err != nil {
			out.Error = "invalid value"
			return out
		}
	}

	L_debug("web: intent", "conn", c.id, "intent", req.Intent)
	res := c.bus.Send(interview.Component, req.Intent, payload, "web")
	out.OK = res.Success
	if !res.Success {
		out.Error = res.Message
		if out.Error == "" && res.Error != nil {
			out.Error = res.Error.Error()
		}
		MetricFailWithReason("web", "intent", req.Intent)
	} else {
		MetricSuccess("web", "intent")
	}
	return out
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		var msg any
		select {
		case <-c.done:
			return
		case snap := <-c.snaps:
			if snap.Version != 0 && snap.Version <= c.sent {
				continue
			}
			c.sent = snap.Version
			msg = SnapshotMessage{Type: "snapshot", Snapshot: snap}
		case res := <-c.results:
			msg = res
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			L_debug("web: write failed", "conn", c.id, "error", err)
			return
		}
	}
}
