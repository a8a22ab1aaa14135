package server

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/clusters/kernel"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	rate  int
}

func (r *recorder) record(c string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) Run()  { r.record("run") }
func (r *recorder) Stop() { r.record("stop") }
func (r *recorder) Step() { r.record("step") }
func (r *recorder) RestrictRate(tps int) {
	r.mu.Lock()
	r.rate = tps
	r.mu.Unlock()
	r.record("rate")
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestCommandsReachController(t *testing.T) {
	r := &recorder{}
	conn := dial(t, NewHub(r, nil))

	commands := []Command{{Name: "run"}, {Name: "bogus"}, {Name: "rate", Rate: 15}, {Name: "step"}, {Name: "stop"}}
	for _, c := range commands {
		if err := conn.WriteJSON(c); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"run", "rate", "step", "stop"}
	deadline := time.Now().Add(2 * time.Second)
	for len(r.Calls()) < len(want) {
		if time.Now().After(deadline) {
			t.Fatalf("calls = %v, want %v", r.Calls(), want)
		}
		time.Sleep(time.Millisecond)
	}
	got := r.Calls()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rate != 15 {
		t.Errorf("rate = %d, want 15", r.rate)
	}
}

func TestBroadcast(t *testing.T) {
	h := NewHub(&recorder{}, nil)
	conn := dial(t, h)

	h.Broadcast(kernel.Stats{Timestep: 12, Cells: 30, InternalEnergy: 100, LinearKinetic: 5}, true)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StatsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	want := StatsMessage{Type: "stats", Timestep: 12, Running: true, Cells: 30, TotalEnergy: 105, Kinetic: 5}
	if msg != want {
		t.Errorf("message = %+v, want %+v", msg, want)
	}
}
