package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nexusauora-eng/Jade/state"
)

var upgrader = websocket.Upgrader{
	// the stream is read-only and carries no credentials
	CheckOrigin: func(r *http.Request) bool { return true },
}

const eventWriteTimeout = time.Second

type eventJSON struct {
	Type    string       `json:"type"`
	Warning bool         `json:"warning,omitempty"`
	Node    state.NodeId `json:"node"`
	Peer    state.NodeId `json:"peer,omitempty"`
	Message string       `json:"message,omitempty"`
	Desc    string       `json:"desc,omitempty"`
	Err     string       `json:"error,omitempty"`
	Time    time.Time    `json:"time"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	j := eventJSON{
		Type:    e.Type.String(),
		Warning: e.Type.IsWarning(),
		Node:    e.Node,
		Peer:    e.Peer,
		Desc:    e.Desc,
		Time:    e.Time,
	}
	if e.Message != uuid.Nil {
		j.Message = e.Message.String()
	}
	if e.Err != nil {
		j.Err = e.Err.Error()
	}
	return json.Marshal(j)
}

// EventStream serves bus over a websocket, one JSON object per event, until the client leaves or ctx ends.
func EventStream(ctx context.Context, bus *EventBus, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("event stream upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		sub := bus.Subscribe()
		defer bus.Unsubscribe(sub)

		// clients never send anything, reading only notices the close
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		log.Debug("event stream opened", "remote", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulation finished"),
					time.Now().Add(eventWriteTimeout))
				return
			case <-gone:
				return
			case ev := <-sub:
				_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					log.Debug("event stream closed", "remote", r.RemoteAddr, "error", err)
					return
				}
			}
		}
	})
}
