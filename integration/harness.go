//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusauora-eng/Jade/core"
	"github.com/nexusauora-eng/Jade/state"
)

var errLinkDown = errors.New("link is down")

// VirtualLink is one direction of a simulated link. It delays, jitters and drops what crosses it.
type VirtualLink struct {
	Edge       state.Pair[state.NodeId, state.NodeId]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64

	down atomic.Bool
	to   *core.Node
	h    *VirtualHarness
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

// SetDown makes the link swallow everything until it is brought back up
func (v *VirtualLink) SetDown(down bool) {
	v.down.Store(down)
}

func (v *VirtualLink) delay() time.Duration {
	if v.Latency == 0 {
		return 0
	}
	return v.Latency + time.Duration(rand.Float64()*float64(v.Jitter.Nanoseconds()))
}

func (v *VirtualLink) Id() state.NodeId {
	return v.Edge.V2
}

// Receive behaves like a datagram socket, a lost packet is not an error for the sender
func (v *VirtualLink) Receive(b []byte) error {
	if v.down.Load() {
		return errLinkDown
	}
	if rand.Float64() < v.PacketLoss {
		return nil
	}
	lat := v.delay()
	if lat == 0 {
		return v.to.Receive(b)
	}
	pkt := slices.Clone(b)
	v.h.wg.Add(1)
	go func() {
		defer v.h.wg.Done()
		select {
		case <-v.h.ctx.Done():
		case <-time.After(lat):
			_ = v.to.Receive(pkt)
		}
	}()
	return nil
}

func (v *VirtualLink) Snapshot(ctx context.Context) (state.Snapshot, error) {
	if v.down.Load() {
		return nil, errLinkDown
	}
	if rand.Float64() < v.PacketLoss {
		return nil, fmt.Errorf("snapshot from %s was lost", v.Edge.V2)
	}
	if lat := v.delay(); lat != 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lat):
		}
	}
	return v.to.Snapshot(ctx)
}

type Delivery struct {
	Node    state.NodeId
	Sender  state.NodeId
	Payload string
}

// VirtualHarness runs a set of nodes with their background loops, connected by virtual links
type VirtualHarness struct {
	Cfg   core.NodeCfg
	Bus   *core.EventBus
	Links []*VirtualLink

	nodes map[state.NodeId]*core.Node
	order []state.NodeId
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu        sync.Mutex
	delivered []Delivery
}

func NewVirtualHarness(interval time.Duration) *VirtualHarness {
	ctx, cancel := context.WithCancel(context.Background())
	bus := core.NewEventBus()
	return &VirtualHarness{
		Cfg: core.NodeCfg{
			Key:            state.GenerateKey(),
			UpdateInterval: interval,
			DeliveryPoll:   10 * time.Millisecond,
			Log:            slog.New(slog.DiscardHandler),
			Bus:            bus,
		},
		Bus:   bus,
		nodes: make(map[state.NodeId]*core.Node),
		ctx:   ctx,
		stop:  cancel,
	}
}

func (v *VirtualHarness) NewNode(id state.NodeId) *core.Node {
	cfg := v.Cfg
	cfg.Handler = func(sender state.NodeId, payload []byte) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.delivered = append(v.delivered, Delivery{id, sender, string(payload)})
	}
	n, err := core.NewNode(id, cfg)
	if err != nil {
		panic(err)
	}
	v.nodes[id] = n
	v.order = append(v.order, id)
	return n
}

func (v *VirtualHarness) Node(id state.NodeId) *core.Node {
	return v.nodes[id]
}

// AddLink gives from a link towards to
func (v *VirtualHarness) AddLink(from, to state.NodeId, cost uint32) *VirtualLink {
	link := &VirtualLink{
		Edge: state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to},
		to:   v.nodes[to],
		h:    v,
	}
	if err := v.nodes[from].AddNeighbor(link, cost); err != nil {
		panic(err)
	}
	v.Links = append(v.Links, link)
	return link
}

// Connect links a and b in both directions with the same conditions
func (v *VirtualHarness) Connect(a, b state.NodeId, cost uint32, lat, jitter time.Duration, loss float64) {
	v.AddLink(a, b, cost).WithLatency(lat, jitter).WithPacketLoss(loss)
	v.AddLink(b, a, cost).WithLatency(lat, jitter).WithPacketLoss(loss)
}

// Cut takes down both directions between a and b
func (v *VirtualHarness) Cut(a, b state.NodeId, down bool) {
	for _, l := range v.Links {
		if (l.Edge.V1 == a && l.Edge.V2 == b) || (l.Edge.V1 == b && l.Edge.V2 == a) {
			l.SetDown(down)
		}
	}
}

func (v *VirtualHarness) Start() {
	for _, id := range v.order {
		v.nodes[id].Start()
	}
}

// Stop stops every node, then drops whatever is still in flight
func (v *VirtualHarness) Stop() {
	for _, id := range v.order {
		v.nodes[id].Stop()
	}
	v.stop()
	v.wg.Wait()
}

func (v *VirtualHarness) Delivered() []Delivery {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.delivered)
}

// Route returns the route from src to dst, if src knows one
func (v *VirtualHarness) Route(src, dst state.NodeId) (state.RoutingEntry, bool) {
	entry, ok := v.nodes[src].Table()[dst]
	return entry, ok
}

// FullyConverged reports whether every node has a route to every other node
func (v *VirtualHarness) FullyConverged() bool {
	for _, src := range v.order {
		table := v.nodes[src].Table()
		for _, dst := range v.order {
			if _, ok := table[dst]; !ok && src != dst {
				return false
			}
		}
	}
	return true
}
