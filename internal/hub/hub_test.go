package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"callsign/internal/api"
	"callsign/internal/match"
	"callsign/internal/mission"
	"callsign/internal/roster"
	"callsign/internal/script"
)

func newTestHub(t *testing.T) (*Hub, *mission.Engine, *roster.Registry, *httptest.Server) {
	t.Helper()
	s := &script.Script{
		Name:   "test",
		Roles:  script.Roles{Exclusive: []string{"alpha", "beta"}, Observer: "crowd"},
		Gauges: map[string]int{"cpu": 25},
		Steps: []script.Step{
			{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "bash mission"},
			{Index: 1, Trigger: script.TriggerVoice, Role: "beta", Expected: "Yes."},
		},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("script invalid: %v", err)
	}

	var h *Hub
	engine := mission.New(mission.Options{
		Script:    s,
		Matcher:   match.New(nil, []string{"yes", "yeah"}),
		Threshold: 50,
		Publisher: mission.PublisherFunc(func(ev api.Event) {
			if h != nil {
				h.Publish(ev)
			}
		}),
	})
	registry := roster.New(s.Roles, nil)
	h = New(engine, registry, s, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return h, engine, registry, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// awaitEvent reads until an event of the wanted type arrives.
func awaitEvent(t *testing.T, ws *websocket.Conn, eventType string) wireEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestConnectReceivesSnapshot(t *testing.T) {
	_, _, _, server := newTestHub(t)
	ws := dial(t, server)

	ev := awaitEvent(t, ws, api.EventSnapshot)
	var status api.MissionStatus
	if err := json.Unmarshal(ev.Payload, &status); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if status.State != "waiting" || status.Step != 0 || status.Total != 2 {
		t.Fatalf("snapshot = %+v", status)
	}
	if status.Expected == nil || status.Expected.Role != "alpha" {
		t.Fatalf("snapshot expected input = %+v", status.Expected)
	}
	awaitEvent(t, ws, api.EventRoleUpdate)
	awaitEvent(t, ws, api.EventParticipants)
}

func TestExclusiveRoleClaimFlow(t *testing.T) {
	_, _, _, server := newTestHub(t)
	ws1 := dial(t, server)
	ws2 := dial(t, server)

	send(t, ws1, msgSelectRole, map[string]string{"role": "alpha"})
	awaitEvent(t, ws1, api.EventRoleGranted)

	send(t, ws2, msgSelectRole, map[string]string{"role": "alpha"})
	awaitEvent(t, ws2, api.EventRoleDenied)

	// The observer role is always available.
	send(t, ws2, msgSelectRole, map[string]string{"role": "crowd"})
	awaitEvent(t, ws2, api.EventRoleGranted)
}

func TestTerminalCommandDrivesMission(t *testing.T) {
	_, engine, _, server := newTestHub(t)
	ws := dial(t, server)

	send(t, ws, msgSelectRole, map[string]string{"role": "alpha"})
	awaitEvent(t, ws, api.EventRoleGranted)

	send(t, ws, msgTerminalCommand, map[string]string{"command": "bash mission"})
	awaitEvent(t, ws, api.EventTerminalOutput)
	ev := awaitEvent(t, ws, api.EventStepAdvanced)

	var payload api.StepAdvancedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("decode stepAdvanced: %v", err)
	}
	if payload.Step != 1 {
		t.Fatalf("step = %d, want 1", payload.Step)
	}
	if got := engine.Snapshot().Step; got != 1 {
		t.Fatalf("engine step = %d, want 1", got)
	}
}

func TestObserverCannotDriveMission(t *testing.T) {
	_, engine, _, server := newTestHub(t)
	ws := dial(t, server)

	send(t, ws, msgSelectRole, map[string]string{"role": "crowd"})
	awaitEvent(t, ws, api.EventRoleGranted)

	send(t, ws, msgTerminalCommand, map[string]string{"command": "bash mission"})
	send(t, ws, msgAdvanceMission, nil)

	time.Sleep(50 * time.Millisecond)
	if got := engine.Snapshot().Step; got != 0 {
		t.Fatalf("observer advanced mission to step %d", got)
	}
}

func TestDisconnectKeepsRoleTaken(t *testing.T) {
	_, _, registry, server := newTestHub(t)
	ws := dial(t, server)

	send(t, ws, msgSelectRole, map[string]string{"role": "alpha"})
	awaitEvent(t, ws, api.EventRoleGranted)
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status := registry.Availability()["alpha"]
		if status.Taken && !status.Live {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("role not sticky after disconnect: %+v", registry.Availability()["alpha"])
}

func TestReclaimResyncsClient(t *testing.T) {
	_, _, _, server := newTestHub(t)
	ws1 := dial(t, server)
	send(t, ws1, msgSelectRole, map[string]string{"role": "beta"})
	awaitEvent(t, ws1, api.EventRoleGranted)
	ws1.Close()

	ws2 := dial(t, server)
	send(t, ws2, msgReclaimRole, map[string]string{"role": "beta"})
	awaitEvent(t, ws2, api.EventRoleGranted)
	// Reclaim is followed by a fresh state snapshot.
	awaitEvent(t, ws2, api.EventSnapshot)
}

func TestSendToDroppedConnectionIsSafe(t *testing.T) {
	h, _, _, _ := newTestHub(t)

	// A consumer whose send buffer is already full.
	conn := &connection{id: "stale", send: make(chan []byte, 1)}
	conn.send <- []byte("backlog")
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	// The broadcast cannot buffer another message, so the connection is
	// dropped and its send channel closed.
	h.Publish(api.Event{Type: api.EventMissionComplete})
	if got := h.ConnectionCount(); got != 0 {
		t.Fatalf("connections = %d after slow-consumer drop, want 0", got)
	}

	// A direct send racing the drop must be a no-op, not a panic on the
	// closed channel.
	h.sendTo(conn, api.Event{Type: api.EventSnapshot})
	h.sendSnapshot(conn)
}

func TestAudioEndedRelay(t *testing.T) {
	_, _, _, server := newTestHub(t)
	ws := dial(t, server)
	send(t, ws, msgAudioEnded, map[string]string{"audio": "intro.mp3"})

	ev := awaitEvent(t, ws, api.EventAudioEnded)
	var payload api.AudioEndedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("decode audioEnded: %v", err)
	}
	if payload.Audio != "intro.mp3" {
		t.Fatalf("audio = %q", payload.Audio)
	}
}
