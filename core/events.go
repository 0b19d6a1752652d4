package core

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/state"
)

type NodeEvent int

// trace events

const (
	MessageDelivered NodeEvent = iota
	MessageForwarded
	MessageSent
	DuplicateDropped
	RouteAdded
	RouteImproved
	RouteWithdrawn
	StaleRouteDropped
)

// warn events

const (
	NoRoute NodeEvent = iota + 1000
	DecryptFailed
	MalformedEnvelope
	NeighbourUnreachable
	InconsistentState
)

func (e NodeEvent) String() string {
	switch e {
	case MessageDelivered:
		return "MessageDelivered"
	case MessageForwarded:
		return "MessageForwarded"
	case MessageSent:
		return "MessageSent"
	case DuplicateDropped:
		return "DuplicateDropped"
	case RouteAdded:
		return "RouteAdded"
	case RouteImproved:
		return "RouteImproved"
	case RouteWithdrawn:
		return "RouteWithdrawn"
	case StaleRouteDropped:
		return "StaleRouteDropped"
	case NoRoute:
		return "NoRoute"
	case DecryptFailed:
		return "DecryptFailed"
	case MalformedEnvelope:
		return "MalformedEnvelope"
	case NeighbourUnreachable:
		return "NeighbourUnreachable"
	case InconsistentState:
		return "InconsistentState"
	default:
		return fmt.Sprintf("NodeEvent(%d)", int(e))
	}
}

func (e NodeEvent) IsWarning() bool {
	return e >= NoRoute
}

// Event is a single observable occurrence at a node. Peer is the destination for route events and the
// neighbour for link events.
type Event struct {
	Type    NodeEvent
	Node    state.NodeId
	Peer    state.NodeId
	Message uuid.UUID
	Desc    string
	Err     error
	Time    time.Time
}

func (e Event) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Node, e.Type))
	if e.Peer != "" {
		sb.WriteString(fmt.Sprintf(" peer=%s", e.Peer))
	}
	if e.Message != uuid.Nil {
		sb.WriteString(fmt.Sprintf(" msg=%s", e.Message))
	}
	if e.Desc != "" {
		sb.WriteString(" " + e.Desc)
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(" err=%v", e.Err))
	}
	return sb.String()
}

// Emitter receives node events
type Emitter interface {
	Emit(ev Event)
}

// EventBus fans events out to subscribers. Publish never blocks; a full subscriber misses events.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
	dropped     int
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan Event, 0),
	}
}

func (eb *EventBus) Publish(e Event) {
	eb.mu.RLock()
	full := false
	for _, sub := range eb.subscribers {
		select {
		case sub <- e:
		default:
			full = true
		}
	}
	eb.mu.RUnlock()
	if full {
		eb.mu.Lock()
		eb.dropped++
		eb.mu.Unlock()
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, state.EventBuffer)
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Dropped is the number of publishes that at least one subscriber missed
func (eb *EventBus) Dropped() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.dropped
}

func logEvent(log *slog.Logger, ev Event) {
	args := make([]any, 0, 6)
	if ev.Peer != "" {
		args = append(args, "peer", ev.Peer)
	}
	if ev.Message != uuid.Nil {
		args = append(args, "msg", ev.Message)
	}
	if ev.Err != nil {
		args = append(args, "error", ev.Err)
	}
	msg := fmt.Sprintf("%s %s", ev.Type.String(), ev.Desc)
	if ev.Type.IsWarning() {
		log.Warn(msg, args...)
	} else {
		log.Debug(msg, args...)
	}
}
