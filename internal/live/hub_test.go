package live_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamwarden/streamwarden/internal/live"
	"github.com/streamwarden/streamwarden/internal/profile"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// fakeSource is a TickSource whose tick the tests advance by hand.
type fakeSource struct {
	mu   sync.Mutex
	view profile.TickView
}

func (f *fakeSource) LatestTick() profile.TickView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeSource) set(view profile.TickView) {
	f.mu.Lock()
	f.view = view
	f.mu.Unlock()
}

func tickView(n int, pipelines ...string) profile.TickView {
	view := profile.TickView{Tick: n, Timestamp: time.Now()}
	for _, p := range pipelines {
		view.Samples = append(view.Samples, profile.Sample{Pipeline: p, MemoryMB: 100})
	}
	return view
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, src live.TickSource) (wsURL string, hub *live.Hub, cancel func()) {
	t.Helper()

	hub = live.New(src, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

func decode(t *testing.T, msg []byte) live.Message {
	t.Helper()
	var m live.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesCurrentTick(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "solar_agg"))
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	m := decode(t, readMessage(t, conn))

	if m.Event != "tick" {
		t.Errorf("event: got %q, want tick", m.Event)
	}
	if m.Data.Tick != 1 {
		t.Errorf("tick: got %d, want 1", m.Data.Tick)
	}
	if len(m.Data.Samples) != 1 || m.Data.Samples[0].Pipeline != "solar_agg" {
		t.Errorf("samples: got %+v, want one sample for solar_agg", m.Data.Samples)
	}
}

func TestHub_BroadcastsNewTicks(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "p"))
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	decode(t, readMessage(t, conn)) // immediate message

	src.set(tickView(2, "p", "q"))

	// The ticker may broadcast tick 1 once before it observes tick 2.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("never received tick 2")
		}
		m := decode(t, readMessage(t, conn))
		if m.Data.Tick < 2 {
			continue
		}
		if m.Data.Tick != 2 {
			t.Fatalf("tick: got %d, want 2", m.Data.Tick)
		}
		if len(m.Data.Samples) != 2 {
			t.Errorf("samples: got %d, want 2", len(m.Data.Samples))
		}
		return
	}
}

func TestHub_DoesNotResendUnchangedTick(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "p"))
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate message
	readMessage(t, conn) // first ticker broadcast of tick 1

	// Tick stays at 1; no further broadcasts should arrive.
	conn.SetReadDeadline(time.Now().Add(5 * testInterval))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected rebroadcast: %s", msg)
	}
}

func TestHub_CountClients(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "p"))
	wsURL, hub, _ := startHub(t, src)

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountDecreasesOnDisconnect(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "p"))
	wsURL, hub, _ := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	src := &fakeSource{}
	src.set(tickView(1, "p"))
	wsURL, hub, cancel := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := live.New(&fakeSource{}, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
