package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tracker-server/internal/modules/tracker/types"
)

// CommandDispatcher validates a viewer command and forwards it to the
// device control topic.
type CommandDispatcher interface {
	Dispatch(cmd types.DeviceCommand) error
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer bounds the per-session outbound queue. A full queue means
	// the viewer is not draining; frames are dropped rather than held.
	sendBuffer = 32
)

// The viewer pages are served from this process, so the package default
// same-origin check applies: browser pages from other origins are refused,
// non-browser clients (no Origin header) are allowed.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Session is one connected viewer: a write pump draining the outbound
// queue and a read pump decoding device commands.
type Session struct {
	hub        *Hub
	conn       *websocket.Conn
	dispatcher CommandDispatcher
	logger     *slog.Logger
	remote     string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Handler upgrades viewer connections and runs their pumps until the peer
// disconnects or the hub shuts down.
func Handler(hub *Hub, dispatcher CommandDispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s := &Session{
			hub:        hub,
			conn:       conn,
			dispatcher: dispatcher,
			logger:     logger,
			remote:     r.RemoteAddr,
			send:       make(chan []byte, sendBuffer),
			done:       make(chan struct{}),
		}
		if !hub.register(s) {
			_ = conn.Close()
			return
		}
		logger.Debug("viewer connected", "remote", s.remote)
		go s.writePump()
		go s.readPump()
	}
}

// clientRequest is the envelope viewers send for device commands.
type clientRequest struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Interval int    `json:"interval"`
	State    string `json:"state"`
}

// commandResponse is the session-scoped acknowledgement for a command.
// Only the issuing viewer sees it.
type commandResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("viewer read failed", "remote", s.remote, "error", err)
			} else {
				s.logger.Debug("viewer disconnected", "remote", s.remote)
			}
			return
		}
		s.handle(msg)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (s *Session) handle(msg []byte) {
	var req clientRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		s.logger.Warn("unreadable viewer message ignored", "remote", s.remote, "error", err)
		return
	}

	switch req.Type {
	case "setIntervalToDevice":
		err := s.dispatcher.Dispatch(types.DeviceCommand{
			Kind:           types.CommandSetInterval,
			TargetDeviceID: req.DeviceID,
			IntervalMs:     req.Interval,
		})
		switch {
		case isRejected(err):
			s.reply("❌ Interval minimal 1000 ms (1 detik).")
		case err != nil:
			s.reply("❌ Gagal kirim ke perangkat")
		default:
			s.reply(fmt.Sprintf("✅ Interval diatur ke %g detik", float64(req.Interval)/1000))
		}
	case "ledControl":
		err := s.dispatcher.Dispatch(types.DeviceCommand{
			Kind:           types.CommandLed,
			TargetDeviceID: req.DeviceID,
			LedState:       req.State,
		})
		switch {
		case isRejected(err):
			s.reply("❌ Perintah LED tidak valid.")
		case err != nil:
			s.reply(fmt.Sprintf("❌ Gagal kirim LED ke %s", req.DeviceID))
		default:
			s.reply(fmt.Sprintf("✅ LED %s untuk %s", req.State, req.DeviceID))
		}
	default:
		s.logger.Debug("unknown viewer message type ignored", "remote", s.remote, "type", req.Type)
	}
}

// reply queues a commandResponse on this session only. Dropped when the
// session is shutting down or the queue is full.
func (s *Session) reply(message string) {
	frame, err := json.Marshal(commandResponse{Type: "commandResponse", Message: message})
	if err != nil {
		return
	}
	select {
	case <-s.done:
	case s.send <- frame:
	default:
	}
}

// close signals shutdown; the write pump sends a close frame and tears
// down the connection. The send channel is never closed, so queueing a
// late frame is a drop, not a panic. Safe to call from the hub and from
// the read pump concurrently.
func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// isRejected separates command validation failures from broker publish
// failures; the two get different viewer-facing messages.
func isRejected(err error) bool {
	return errors.Is(err, types.ErrIntervalTooShort) ||
		errors.Is(err, types.ErrMissingTarget) ||
		errors.Is(err, types.ErrInvalidLedState) ||
		errors.Is(err, types.ErrUnknownCommand)
}
