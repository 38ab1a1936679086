// Package ws streams the expansion construction countdown of a farm.
package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sflcompanion.app/internal/farm"
	"sflcompanion.app/internal/upstream"
)

// Source returns farm snapshots; *upstream.Provider satisfies it.
type Source interface {
	Snapshot(ctx context.Context, id uint64) (*farm.Snapshot, error)
}

type TickMsg struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
	ReadyAtMs        int64 `json:"ready_at_ms"`
}

type ReadyMsg struct {
	Ready bool `json:"ready"`
}

type Countdown struct {
	src Source
	log *log.Logger

	// Tick is the interval between countdown messages.
	Tick time.Duration
	now  func() time.Time

	upgrader websocket.Upgrader
}

func NewCountdown(src Source, logger *log.Logger) *Countdown {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Countdown{
		src:  src,
		log:  logger,
		Tick: time.Second,
		now:  time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// ServeHTTP resolves the farm before upgrading so that bad ids and
// upstream failures surface as plain HTTP errors.
func (c *Countdown) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	id, err := upstream.ParseFarmID(r.PathValue("farm_id"))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := c.src.Snapshot(r.Context(), id)
	if err != nil {
		c.log.Printf("countdown farm %d: %v", id, err)
		http.Error(rw, "upstream unavailable", http.StatusBadGateway)
		return
	}

	conn, err := c.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine; only notices the peer going away.
	go func() {
		defer cancel()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap.Building() {
		readyAt := snap.Construction.ReadyAt
		if !c.countdown(ctx, conn, readyAt) {
			return
		}
	}
	if err := writeJSON(conn, ReadyMsg{Ready: true}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "ready"), time.Now().Add(time.Second))
}

// countdown sends a TickMsg every Tick until readyAt. It reports false
// when the connection went away first.
func (c *Countdown) countdown(ctx context.Context, conn *websocket.Conn, readyAt time.Time) bool {
	t := time.NewTicker(c.Tick)
	defer t.Stop()
	for {
		left := readyAt.Sub(c.now())
		if left <= 0 {
			return true
		}
		msg := TickMsg{RemainingSeconds: int64((left + time.Second - 1) / time.Second), ReadyAtMs: readyAt.UnixMilli()}
		if err := writeJSON(conn, msg); err != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
