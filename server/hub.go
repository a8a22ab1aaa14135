// Package server streams monitor statistics to websocket clients and accepts
// simulation control commands from them.
package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/clusters/kernel"
)

const writeTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling only
	},
}

// Controller is the control surface commands are forwarded to.
type Controller interface {
	Run()
	Stop()
	Step()
	RestrictRate(tps int)
}

// StatsMessage is broadcast for every monitor sample.
type StatsMessage struct {
	Type        string  `json:"type"`
	Timestep    uint64  `json:"timestep"`
	Running     bool    `json:"running"`
	Clusters    int     `json:"clusters"`
	Cells       int     `json:"cells"`
	Particles   int     `json:"particles"`
	Tokens      int     `json:"tokens"`
	TotalEnergy float64 `json:"totalEnergy"`
	Kinetic     float64 `json:"kinetic"`
}

// Command is sent by clients.
// Name is one of "run", "stop", "step" or "rate"; Rate applies to "rate".
type Command struct {
	Name string `json:"command"`
	Rate int    `json:"rate"`
}

// Hub keeps the connected clients.
type Hub struct {
	control Controller
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewHub creates a hub forwarding commands to c.
func NewHub(c Controller, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{control: c, logger: logger, clients: make(map[*websocket.Conn]*sync.Mutex)}
}

// Handler serves the websocket endpoint at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()
	defer h.remove(conn)
	h.logger.Debug("client connected", "remote", r.RemoteAddr)

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		h.dispatch(cmd)
	}
}

func (h *Hub) dispatch(cmd Command) {
	switch cmd.Name {
	case "run":
		h.control.Run()
	case "stop":
		h.control.Stop()
	case "step":
		h.control.Step()
	case "rate":
		h.control.RestrictRate(cmd.Rate)
	default:
		h.logger.Warn("unknown command", "command", cmd.Name)
		return
	}
	h.logger.Info("command received", "command", cmd.Name, "rate", cmd.Rate)
}

// Broadcast sends a stats message to every client. Clients that cannot be
// written to are dropped.
func (h *Hub) Broadcast(s kernel.Stats, running bool) {
	msg := StatsMessage{
		Type:        "stats",
		Timestep:    s.Timestep,
		Running:     running,
		Clusters:    s.Clusters,
		Cells:       s.Cells,
		Particles:   s.Particles,
		Tokens:      s.Tokens,
		TotalEnergy: s.TotalEnergy(),
		Kinetic:     s.KineticEnergy(),
	}

	h.mu.RLock()
	var failed []*websocket.Conn
	for conn, mu := range h.clients {
		mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(msg)
		mu.Unlock()
		if err != nil {
			h.logger.Warn("websocket write failed", "error", err)
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		h.remove(conn)
		conn.Close()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}
