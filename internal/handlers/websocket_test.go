package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"conductbridge"
	"conductbridge/internal/service"
)

type wsTestEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialWS(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srvURL)
	u.Scheme = "ws"
	u.Path = "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsTestEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsTestEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestWebSocket_InitialSnapshotThenPush(t *testing.T) {
	p := &mockPoller{
		rooms: []conductbridge.Room{{ID: "r1", Label: "Control A", Panels: []conductbridge.Panel{
			{ID: "p1", Salvos: []conductbridge.Salvo{{ID: "s1"}}},
		}}},
		active: []string{"s1"},
	}
	st := &mockStatus{status: conductbridge.DeviceStatus{State: conductbridge.StateOk}}
	s := &service.Service{Poller: p, Status: st}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	hub := NewHub(nil)
	h := NewHandler(s, hub, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	// The first three frames describe the full bridge state.
	env := readEnvelope(t, conn)
	if env.Type != "status" {
		t.Fatalf("expected first frame type=status, got %+v", env)
	}
	var status conductbridge.DeviceStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.State != conductbridge.StateOk {
		t.Fatalf("unexpected status: %+v", status)
	}

	env = readEnvelope(t, conn)
	if env.Type != "definitions" {
		t.Fatalf("expected second frame type=definitions, got %+v", env)
	}
	var defs struct {
		Rooms []conductbridge.Room `json:"rooms"`
	}
	if err := json.Unmarshal(env.Data, &defs); err != nil {
		t.Fatalf("unmarshal definitions: %v", err)
	}
	if len(defs.Rooms) != 1 || defs.Rooms[0].ID != "r1" {
		t.Fatalf("unexpected rooms: %+v", defs.Rooms)
	}

	env = readEnvelope(t, conn)
	if env.Type != "feedback" {
		t.Fatalf("expected third frame type=feedback, got %+v", env)
	}

	// A change notification reaches the connected client.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.FeedbackChanged(context.Background(), []string{"s2"})
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var pushed wsTestEnvelope
		if err := conn.ReadJSON(&pushed); err == nil {
			var fb struct {
				ActiveSalvoIDs []string `json:"activeSalvoIds"`
			}
			if err := json.Unmarshal(pushed.Data, &fb); err != nil {
				t.Fatalf("unmarshal feedback: %v", err)
			}
			if pushed.Type != "feedback" || len(fb.ActiveSalvoIDs) != 1 || fb.ActiveSalvoIDs[0] != "s2" {
				t.Fatalf("unexpected push: %+v", pushed)
			}
			return
		}
		// The hub registers the client only after the initial frames; retry
		// the broadcast until the registration lands or we time out.
		if time.Now().After(deadline) {
			t.Fatal("no push received before timeout")
		}
	}
}

func TestWebSocket_KeepaliveDuringBroadcasts(t *testing.T) {
	p := &mockPoller{}
	st := &mockStatus{status: conductbridge.DeviceStatus{State: conductbridge.StateOk}}
	s := &service.Service{Poller: p, Status: st}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	hub := NewHub(nil)
	h := NewHandler(s, hub, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	// Keep draining so server-side writes never block on a full buffer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// The handler registers the connection after the initial frames.
	var serverConn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for serverConn == nil {
		hub.mu.Lock()
		for c := range hub.conns {
			serverConn = c
		}
		hub.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Keepalive pings and hub broadcasts target the same connection from
	// different goroutines. Pings go out as control frames, the only write
	// that may run next to a concurrent writer; anything else here panics
	// under load.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := pingConn(serverConn); err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hub.FeedbackChanged(context.Background(), []string{"s1"})
		}
	}()
	wg.Wait()

	hub.mu.Lock()
	n := len(hub.conns)
	hub.mu.Unlock()
	if n != 1 {
		t.Fatalf("connection dropped during keepalive/broadcast interleaving, registry holds %d", n)
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	p := &mockPoller{}
	st := &mockStatus{status: conductbridge.DeviceStatus{State: conductbridge.StateConnecting}}
	s := &service.Service{Poller: p, Status: st}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	hub := NewHub(nil)
	h := NewHandler(s, hub, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	for i := 0; i < 3; i++ {
		readEnvelope(t, conn)
	}
	conn.Close()

	// Broadcasting after the client left must not panic and should drop the
	// connection from the registry.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.StatusChanged(context.Background(), conductbridge.DeviceStatus{State: conductbridge.StateOk})
		hub.mu.Lock()
		n := len(hub.conns)
		hub.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected empty hub registry, still holds %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
