package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notifico/dispatcher/interfaces"
)

// EventStream is a Recorder decorator that fans out pipeline and message
// outcomes to connected admin websocket clients, in addition to forwarding
// every call to the wrapped Recorder. A client that falls behind is
// disconnected rather than allowed to block delivery for everyone else.
type EventStream struct {
	next     interfaces.Recorder
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan streamEvent
	done chan struct{}
}

type streamEvent struct {
	Kind           string `json:"kind"`
	EventID        string `json:"event_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	PipelineID     string `json:"pipeline_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Error          string `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// NewEventStream builds an EventStream wrapping next, which may be nil.
func NewEventStream(next interfaces.Recorder, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		next:    next,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RecordPipelineResult implements interfaces.Recorder.
func (s *EventStream) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	s.broadcast(streamEvent{Kind: "pipeline_result", EventID: eventID, NotificationID: notificationID, PipelineID: pipelineID, Error: errString(err), At: time.Now()})
	if s.next != nil {
		s.next.RecordPipelineResult(ctx, eventID, notificationID, pipelineID, err)
	}
}

// RecordMessageResult implements interfaces.Recorder.
func (s *EventStream) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	s.broadcast(streamEvent{Kind: "message_result", EventID: eventID, NotificationID: notificationID, MessageID: messageID, Channel: channel, Error: errString(err), At: time.Now()})
	if s.next != nil {
		s.next.RecordMessageResult(ctx, eventID, notificationID, messageID, channel, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *EventStream) broadcast(evt streamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- evt:
		default:
			s.logger.Warn("dropping slow admin stream client")
			delete(s.clients, c)
			close(c.send)
			_ = c.conn.Close()
		}
	}
}

// ServeHTTP upgrades the connection and streams events to it until the
// client disconnects.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("admin stream upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan streamEvent, 32), done: make(chan struct{})}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	go s.readPump(c)
	s.writePump(c)
}

// readPump discards client input but detects client-initiated close, at
// which point it signals writePump to stop.
func (s *EventStream) readPump(c *client) {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
