package mpc

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// IterationEvent is the JSON payload published to every subscriber once
// per MPC iteration.
type IterationEvent struct {
	RunID            string    `json:"run_id"`
	Iteration        int       `json:"iteration"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	CommitUntil      time.Time `json:"commit_until"`
	Status           string    `json:"status"`
	ObjectiveValue   float64   `json:"objective_value"`
	RunningObjective float64   `json:"running_objective"`
}

// ProgressBus fans one JSON event per MPC iteration out to every registered
// websocket subscriber. It is a generic solve-progress stream; rendering it
// is the consumer's concern.
type ProgressBus struct {
	clients sync.Map // *websocket.Conn -> struct{}
	logger  *log.Logger
}

// NewProgressBus returns an empty bus ready to accept subscribers.
func NewProgressBus(logger *log.Logger) *ProgressBus {
	if logger == nil {
		logger = log.Default()
	}
	return &ProgressBus{logger: logger}
}

// Subscribe registers conn to receive every future Publish call. Callers
// own the connection's lifecycle; Unsubscribe (or a failed write, which
// self-evicts) removes it.
func (b *ProgressBus) Subscribe(conn *websocket.Conn) {
	b.clients.Store(conn, struct{}{})
}

// Unsubscribe removes conn from the broadcast set. Safe to call on an
// already-removed connection.
func (b *ProgressBus) Unsubscribe(conn *websocket.Conn) {
	b.clients.Delete(conn)
}

// Publish sends ev to every subscriber, writing to each connection in turn
// on the caller's goroutine. There is no per-subscriber buffer and no write
// deadline, so a slow subscriber delays the caller until its write returns.
// A subscriber whose write fails is closed and dropped.
func (b *ProgressBus) Publish(ev IterationEvent) {
	if b == nil {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		b.logger.Printf("mpc progress: failed to marshal event: %v", err)
		return
	}
	b.clients.Range(func(key, _ any) bool {
		conn, ok := key.(*websocket.Conn)
		if !ok {
			return true
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Printf("mpc progress: dropping subscriber after write error: %v", err)
			conn.Close() //nolint:gosec
			b.clients.Delete(conn)
		}
		return true
	})
}
