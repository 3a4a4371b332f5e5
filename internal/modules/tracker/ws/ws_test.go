package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tracker-server/internal/modules/tracker/types"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	cmds []types.DeviceCommand
	err  error
}

func (f *fakeDispatcher) Dispatch(cmd types.DeviceCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeDispatcher) dispatched() []types.DeviceCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.DeviceCommand(nil), f.cmds...)
}

func dialTestHub(t *testing.T, hub *Hub, disp *fakeDispatcher) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(Handler(hub, disp, slog.Default()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	waitForSessions(t, hub, 1)
	return conn
}

func waitForSessions(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SessionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("session count = %d, want %d", hub.SessionCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesViewer(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()
	conn := dialTestHub(t, hub, &fakeDispatcher{})

	hub.Broadcast(types.Fix{
		DeviceID:   "dev1",
		Latitude:   -7.25,
		Longitude:  112.75,
		DeviceTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type      string  `json:"type"`
		DeviceID  string  `json:"device_id"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Waktu     string  `json:"waktu"`
	}
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if got.Type != "newLocation" {
		t.Errorf("type = %q, want newLocation", got.Type)
	}
	if got.DeviceID != "dev1" || got.Latitude != -7.25 || got.Longitude != 112.75 {
		t.Errorf("frame = %+v", got)
	}
	if got.Waktu != "2025-06-01T12:00:00Z" {
		t.Errorf("waktu = %q", got.Waktu)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()
	disp := &fakeDispatcher{}
	conn := dialTestHub(t, hub, disp)

	err := conn.WriteJSON(map[string]any{
		"type":     "setIntervalToDevice",
		"deviceId": "dev1",
		"interval": 2000,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Type != "commandResponse" {
		t.Errorf("type = %q", resp.Type)
	}
	if !strings.Contains(resp.Message, "2 detik") {
		t.Errorf("message = %q", resp.Message)
	}

	cmds := disp.dispatched()
	if len(cmds) != 1 {
		t.Fatalf("dispatched %d commands, want 1", len(cmds))
	}
	want := types.DeviceCommand{Kind: types.CommandSetInterval, TargetDeviceID: "dev1", IntervalMs: 2000}
	if cmds[0] != want {
		t.Errorf("command = %+v, want %+v", cmds[0], want)
	}
}

func TestCommandRejectedBelowFloor(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()
	disp := &fakeDispatcher{}
	conn := dialTestHub(t, hub, disp)

	err := conn.WriteJSON(map[string]any{
		"type":     "setIntervalToDevice",
		"deviceId": "dev1",
		"interval": 500,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if !strings.Contains(resp.Message, "1000 ms") {
		t.Errorf("message = %q", resp.Message)
	}
	if len(disp.dispatched()) != 0 {
		t.Errorf("command below the interval floor reached the publisher")
	}
}

func TestLedControl(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()
	disp := &fakeDispatcher{}
	conn := dialTestHub(t, hub, disp)

	if err := conn.WriteJSON(map[string]any{"type": "ledControl", "deviceId": "dev1", "state": "on"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if !strings.Contains(resp.Message, "LED on") {
		t.Errorf("message = %q", resp.Message)
	}
	cmds := disp.dispatched()
	if len(cmds) != 1 || cmds[0].LedState != "on" || cmds[0].TargetDeviceID != "dev1" {
		t.Errorf("commands = %+v", cmds)
	}
}

func TestBroadcastNeverBlocksOnSlowViewer(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()

	// A session with an unbuffered queue and no write pump: every frame
	// must be dropped, not block the caller.
	stuck := &Session{hub: hub, send: make(chan []byte), done: make(chan struct{}), logger: slog.Default()}
	if !hub.register(stuck) {
		t.Fatal("register failed")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(types.Fix{DeviceID: "dev1", DeviceTime: time.Now()})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow session")
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub(slog.Default())
	conn := dialTestHub(t, hub, &fakeDispatcher{})

	hub.Close()
	waitForSessions(t, hub, 0)

	// The peer sees the connection go away.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if hub.register(&Session{hub: hub, send: make(chan []byte, 1), done: make(chan struct{})}) {
		t.Error("register succeeded on a closed hub")
	}

	// Broadcast after close is a no-op, not a panic.
	hub.Broadcast(types.Fix{DeviceID: "dev1", DeviceTime: time.Now()})
	hub.Close()
}

func TestCrossOriginUpgradeRefused(t *testing.T) {
	hub := NewHub(slog.Default())
	defer hub.Close()
	srv := httptest.NewServer(Handler(hub, &fakeDispatcher{}, slog.Default()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": {"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("upgrade succeeded for a foreign Origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v; want 403", resp)
	}
	if hub.SessionCount() != 0 {
		t.Errorf("session count = %d after refused upgrade", hub.SessionCount())
	}
}

func TestReplyDuringShutdown(t *testing.T) {
	hub := NewHub(slog.Default())
	disp := &fakeDispatcher{}

	s := &Session{
		hub:        hub,
		dispatcher: disp,
		logger:     slog.Default(),
		send:       make(chan []byte, 1),
		done:       make(chan struct{}),
	}
	if !hub.register(s) {
		t.Fatal("register failed")
	}

	// Fill the queue so a late reply cannot take the buffered slot.
	s.send <- []byte("queued")

	hub.Close()

	// A command that was already in flight when the hub shut down still
	// reaches handle(); its acknowledgement must be dropped, not panic.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("reply after hub close panicked: %v", r)
		}
	}()
	s.handle([]byte(`{"type":"ledControl","deviceId":"dev1","state":"on"}`))
	s.reply("late ack")

	select {
	case <-s.done:
	default:
		t.Error("session not marked done after hub close")
	}
}
