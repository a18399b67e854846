package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"epiabm.ai/internal/observerproto"
	"epiabm.ai/internal/sim/abm"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("r1", observerproto.RunParams{Mode: "events", Dt: 0.25, Steps: 10, Agents: 3}, 0, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observe/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observe/ws", s.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server, every int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observe/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Every: every}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func waitSubscribers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers=%d want=%d", s.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestObserver_BootstrapReportsRunAndStep(t *testing.T) {
	s, hs := newTestServer(t)
	_ = s.WriteStep(abm.StepLogEntry{RunID: "r1", Step: 4})

	resp, err := http.Get(hs.URL + "/v1/observe/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.RunID != "r1" || b.Step != 5 || b.RunParams.Agents != 3 || b.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap=%+v", b)
	}
}

func TestObserver_StreamsDecimatedSteps(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs, 3)
	waitSubscribers(t, s, 1)

	for i := 0; i < 7; i++ {
		e := abm.StepLogEntry{RunID: "r1", Step: uint64(i)}
		e.Compartments.Susceptible = 100 - i
		_ = s.WriteStep(e)
	}
	s.Done("finished")

	var got []uint64
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(msg, &head)
		if head.Type == "DONE" {
			break
		}
		var m observerproto.StepMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m.Compartments.Susceptible != 100-int(m.Step) {
			t.Fatalf("step %d susceptible=%d", m.Step, m.Compartments.Susceptible)
		}
		got = append(got, m.Step)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 3 || got[2] != 6 {
		t.Fatalf("steps=%v want [0 3 6]", got)
	}
}

func TestObserver_RejectsWrongProtocol(t *testing.T) {
	_, hs := newTestServer(t)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observe/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: "9.9"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got=%v want=%v", addr, got, want)
		}
	}
}
