package core

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nexusauora-eng/Jade/state"
)

type delivered struct {
	Node    state.NodeId
	Sender  state.NodeId
	Payload string
}

// testNodeCfg keeps background rounds out of the way unless a test asks for them
func testNodeCfg() NodeCfg {
	return NodeCfg{
		Key:            state.GenerateKey(),
		UpdateInterval: time.Hour,
		DeliveryPoll:   10 * time.Millisecond,
		Log:            slog.New(slog.DiscardHandler),
	}
}

// newTestTopology creates an empty topology that records every delivery
func newTestTopology(t *testing.T, mod func(cfg *NodeCfg)) (*Topology, chan delivered) {
	t.Helper()
	got := make(chan delivered, 256)
	ncfg := testNodeCfg()
	if mod != nil {
		mod(&ncfg)
	}
	topo := NewTopology(TopologyCfg{
		Node: ncfg,
		Deliver: func(node, sender state.NodeId, payload []byte) {
			got <- delivered{node, sender, string(payload)}
		},
	})
	return topo, got
}

func waitDelivery(t *testing.T, got chan delivered) delivered {
	t.Helper()
	select {
	case d := <-got:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return delivered{}
	}
}

// drainEvents returns whatever is buffered in sub right now
func drainEvents(sub chan Event) HarnessEvents {
	out := make(HarnessEvents, 0)
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// eventRecorder collects every event published on a bus until stopped
type eventRecorder struct {
	mu     sync.Mutex
	events HarnessEvents
	done   chan struct{}
	wg     sync.WaitGroup
}

func recordEvents(bus *EventBus) *eventRecorder {
	r := &eventRecorder{done: make(chan struct{})}
	sub := bus.Subscribe()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case ev := <-sub:
				r.mu.Lock()
				r.events = append(r.events, ev)
				r.mu.Unlock()
			case <-r.done:
				return
			}
		}
	}()
	return r
}

func (r *eventRecorder) Events() HarnessEvents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(HarnessEvents(nil), r.events...)
}

func (r *eventRecorder) Stop() HarnessEvents {
	close(r.done)
	r.wg.Wait()
	return r.Events()
}
