package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/nexusauora-eng/Jade/perf"
	"github.com/nexusauora-eng/Jade/state"
)

type deliveryAction int

const (
	actNone deliveryAction = iota
	actDeliver
	actForward
	actDuplicate
	actNoRoute
)

type delivery struct {
	action deliveryAction
	env    state.Envelope
	next   Link
}

type sendPlan struct {
	env   state.Envelope
	local bool
	links []Link
}

func (n *Node) seal(e state.Envelope) ([]byte, error) {
	b, err := n.cfg.Codec.Encode(e)
	if err != nil {
		return nil, err
	}
	perf.EnvelopeSize.Add(float64(len(b)))
	return state.Seal(n.cfg.Key, b)
}

// Send originates a message from this node. In routed mode it goes to the next hop towards target, or to
// every neighbour while no route is known. In flood mode it always goes to every neighbour.
func (n *Node) Send(target state.NodeId, payload []byte) error {
	if !n.running() {
		return state.ErrNodeStopped
	}
	plan, err := DispatchWait(n.Context, n.Env, func(n *Node) (sendPlan, error) {
		n.seq++
		e := state.Envelope{
			Id:      uuid.New(),
			Sender:  n.id,
			Target:  target,
			Seq:     n.seq,
			Payload: slices.Clone(payload),
		}
		if target == n.id {
			n.enqueue(e)
			return sendPlan{env: e, local: true}, nil
		}
		// echoes of our own message are duplicates
		n.seen.Set(e.Id, struct{}{}, ttlcache.DefaultTTL)
		if n.cfg.SendMode == state.SendRouted {
			if r, ok := n.table.Lookup(target); ok {
				if l, ok := n.links[r.NextHop]; ok {
					return sendPlan{env: e, links: []Link{l.link}}, nil
				}
			}
		}
		return sendPlan{env: e, links: n.linkList()}, nil
	})
	if err != nil {
		return err
	}
	perf.SendsPerSecond.Add(1)
	if n.metrics != nil {
		n.metrics.MessagesSent.WithLabelValues(string(n.id)).Inc()
	}
	n.emit(MessageSent, target, plan.env.Id, nil, "seq %d to %d link(s)", plan.env.Seq, len(plan.links))
	if plan.local {
		return nil
	}
	if len(plan.links) == 0 {
		n.emit(NoRoute, target, plan.env.Id, nil, "node has no neighbours")
		return fmt.Errorf("%w: %s has no neighbours", state.ErrNoRoute, n.id)
	}
	b, err := n.seal(plan.env)
	if err != nil {
		return err
	}
	for _, l := range plan.links {
		n.transmit(l, b, plan.env.Id)
	}
	return nil
}

func (n *Node) transmit(l Link, b []byte, msg uuid.UUID) {
	perf.SentBytesPerSecond.Add(float64(len(b)))
	if err := l.Receive(b); err != nil {
		n.emit(NeighbourUnreachable, l.Id(), msg, err, "failed to hand over envelope")
	}
}

// Receive accepts a sealed envelope from a neighbour. It may be called concurrently from any goroutine.
// Envelopes that do not open or decode are dropped and the error is returned.
func (n *Node) Receive(b []byte) error {
	if !n.running() {
		return state.ErrNodeStopped
	}
	perf.RecvsPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(b)))
	plain, err := state.Open(n.cfg.Key, b)
	if err != nil {
		n.emit(DecryptFailed, "", uuid.Nil, err, "dropping %d bytes", len(b))
		n.recordDrop("decrypt")
		return err
	}
	e, err := n.cfg.Codec.Decode(plain)
	if err != nil {
		n.emit(MalformedEnvelope, "", uuid.Nil, err, "dropping %d bytes", len(plain))
		n.recordDrop("malformed")
		return err
	}
	if !n.Dispatch(func(n *Node) error {
		n.enqueue(e)
		return nil
	}) {
		return state.ErrNodeStopped
	}
	return nil
}

func (n *Node) enqueue(e state.Envelope) {
	n.inbox = append(n.inbox, e)
	if n.metrics != nil {
		n.metrics.MessagesReceived.WithLabelValues(string(n.id)).Inc()
		n.metrics.UpdateInbox(string(n.id), len(n.inbox))
	}
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// popInbox removes the oldest envelope and decides what to do with it, all in one step on the main loop.
func popInbox(n *Node) (delivery, error) {
	if len(n.inbox) == 0 {
		return delivery{action: actNone}, nil
	}
	e := n.inbox[0]
	n.inbox[0] = state.Envelope{}
	n.inbox = n.inbox[1:]
	if n.metrics != nil {
		n.metrics.UpdateInbox(string(n.id), len(n.inbox))
	}

	if e.Target == n.id && e.Sender == n.id {
		return delivery{action: actDeliver, env: e}, nil
	}
	if n.seen.Has(e.Id) {
		return delivery{action: actDuplicate, env: e}, nil
	}
	n.seen.Set(e.Id, struct{}{}, ttlcache.DefaultTTL)
	if e.Target == n.id {
		return delivery{action: actDeliver, env: e}, nil
	}
	if r, ok := n.table.Lookup(e.Target); ok {
		if l, ok := n.links[r.NextHop]; ok {
			return delivery{action: actForward, env: e, next: l.link}, nil
		}
		n.emit(InconsistentState, r.NextHop, e.Id, nil, "route to %s uses a removed link", e.Target)
	}
	return delivery{action: actNoRoute, env: e}, nil
}

func (n *Node) deliveryLoop() {
	ticker := time.NewTicker(n.cfg.DeliveryPoll)
	defer ticker.Stop()
	for {
		select {
		case <-n.signal:
		case <-ticker.C:
		case <-n.Context.Done():
			return
		}
		n.drainInbox(n.Context)
	}
}

func (n *Node) drainInbox(ctx context.Context) {
	for ctx.Err() == nil {
		d, err := DispatchWait(ctx, n.Env, popInbox)
		if err != nil || d.action == actNone {
			return
		}
		n.perform(d)
	}
}

func (n *Node) perform(d delivery) {
	e := d.env
	switch d.action {
	case actDeliver:
		if n.cfg.Handler != nil {
			n.cfg.Handler(e.Sender, e.Payload)
		}
		perf.DeliveriesPerSecond.Add(1)
		if n.metrics != nil {
			n.metrics.MessagesDelivered.WithLabelValues(string(n.id)).Inc()
		}
		n.emit(MessageDelivered, e.Sender, e.Id, nil, "seq %d, %d bytes", e.Seq, len(e.Payload))
	case actForward:
		b, err := n.seal(e)
		if err != nil {
			n.emit(InconsistentState, e.Target, e.Id, err, "failed to re-seal envelope")
			return
		}
		perf.ForwardsPerSecond.Add(1)
		if n.metrics != nil {
			n.metrics.MessagesForwarded.WithLabelValues(string(n.id)).Inc()
		}
		n.emit(MessageForwarded, d.next.Id(), e.Id, nil, "towards %s", e.Target)
		n.transmit(d.next, b, e.Id)
	case actDuplicate:
		n.recordDrop("duplicate")
		n.emit(DuplicateDropped, e.Sender, e.Id, nil, "seq %d", e.Seq)
	case actNoRoute:
		n.recordDrop("no_route")
		n.emit(NoRoute, e.Target, e.Id, nil, "dropping message from %s", e.Sender)
	}
}

func (n *Node) recordDrop(reason string) {
	perf.DropsPerSecond.Add(1)
	if n.metrics != nil {
		n.metrics.RecordDrop(string(n.id), reason)
	}
}
