package core

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/nexusauora-eng/Jade/codec"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/nexusauora-eng/Jade/telemetry"
)

// Handler receives every message addressed to the node it is attached to
type Handler func(sender state.NodeId, payload []byte)

// Link is the view a node has of one of its neighbours. Both methods are safe to call from any goroutine.
type Link interface {
	Id() state.NodeId
	// Receive hands a sealed envelope to the neighbour
	Receive(b []byte) error
	// Snapshot returns a copy of the neighbour's routing table
	Snapshot(ctx context.Context) (state.Snapshot, error)
}

type Lifecycle int32

const (
	Created Lifecycle = iota
	Running
	Stopping
	Stopped
)

func (l Lifecycle) String() string {
	switch l {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int32(l))
	}
}

type NodeCfg struct {
	Key            state.MeshKey
	Codec          codec.Codec
	UpdateInterval time.Duration
	RouteExpiry    time.Duration
	DeliveryPoll   time.Duration
	MaxCost        uint32
	SendMode       state.SendMode
	Handler        Handler
	Log            *slog.Logger
	Bus            *EventBus
	Metrics        *telemetry.Metrics
}

func (c *NodeCfg) expand() error {
	if c.Key.IsZero() {
		return fmt.Errorf("%w: mesh key is missing", state.ErrInvalidConfig)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("%w: update interval must be positive, got %v", state.ErrInvalidConfig, c.UpdateInterval)
	}
	if c.Codec == nil {
		c.Codec = codec.Proto()
	}
	if c.RouteExpiry == 0 {
		c.RouteExpiry = c.UpdateInterval * time.Duration(state.RouteExpiryFactor)
	}
	if c.RouteExpiry < 0 {
		return fmt.Errorf("%w: route expiry must be positive, got %v", state.ErrInvalidConfig, c.RouteExpiry)
	}
	if c.DeliveryPoll == 0 {
		c.DeliveryPoll = state.DeliveryPollDelay
	}
	if c.DeliveryPoll < 0 {
		return fmt.Errorf("%w: delivery poll must be positive, got %v", state.ErrInvalidConfig, c.DeliveryPoll)
	}
	if c.MaxCost == 0 {
		c.MaxCost = state.DefaultMaxCost
	}
	if c.SendMode == "" {
		c.SendMode = state.SendRouted
	}
	if c.SendMode != state.SendRouted && c.SendMode != state.SendFlood {
		return fmt.Errorf("%w: unknown send mode %q", state.ErrInvalidConfig, c.SendMode)
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return nil
}

func (c *NodeCfg) maxCost() uint32 {
	if c.MaxCost == 0 {
		return state.DefaultMaxCost
	}
	return c.MaxCost
}

type neighbour struct {
	link Link
	cost uint32
}

// Node is a single mesh participant. Its routing table, inbox and links are only ever touched by
// functions running on its main loop, see Env.
type Node struct {
	id      state.NodeId
	cfg     NodeCfg
	log     *slog.Logger
	metrics *telemetry.Metrics

	lifeMu sync.Mutex
	life   atomic.Int32
	wg     sync.WaitGroup
	*Env

	// owned by the main loop, or by whoever holds lifeMu while the node is not running
	table  *RoutingTable
	engine *Engine
	links  map[state.NodeId]*neighbour
	inbox  []state.Envelope
	seen   *ttlcache.Cache[uuid.UUID, struct{}]
	seq    uint64
	signal chan struct{}
}

func NewNode(id state.NodeId, cfg NodeCfg) (*Node, error) {
	if err := state.NameValidator(string(id)); err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	n := &Node{
		id:      id,
		cfg:     cfg,
		log:     cfg.Log.With("node", id),
		metrics: cfg.Metrics,
		table:   NewRoutingTable(id),
		links:   make(map[state.NodeId]*neighbour),
		inbox:   make([]state.Envelope, 0),
		seen: ttlcache.New[uuid.UUID, struct{}](
			ttlcache.WithTTL[uuid.UUID, struct{}](state.DedupTTL),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, struct{}](),
		),
		signal: make(chan struct{}, 1),
	}
	n.engine = &Engine{
		Self:     id,
		LinkCost: n.linkCost,
		MaxCost:  cfg.MaxCost,
		Expiry:   cfg.RouteExpiry,
		Emitter:  n,
	}
	return n, nil
}

func (n *Node) Id() state.NodeId {
	return n.id
}

func (n *Node) State() Lifecycle {
	return Lifecycle(n.life.Load())
}

func (n *Node) running() bool {
	return n.State() == Running
}

// Start launches the node's loops. It only has an effect on a freshly created node.
func (n *Node) Start() {
	n.lifeMu.Lock()
	defer n.lifeMu.Unlock()
	if n.State() != Created {
		return
	}
	n.Env = newEnv(context.Background(), n.log)
	neighbours := len(n.links)
	n.life.Store(int32(Running))

	n.wg.Add(4)
	go func() {
		defer n.wg.Done()
		MainLoop(n)
	}()
	go func() {
		defer n.wg.Done()
		n.deliveryLoop()
	}()
	go func() {
		defer n.wg.Done()
		n.Env.RepeatTask(func() error {
			_, err := n.Advertise(n.Context)
			return err
		}, n.cfg.UpdateInterval)
	}()
	go func() {
		defer n.wg.Done()
		n.Env.RepeatTask(n.gc, state.GcDelay)
	}()
	n.log.Info("node started", "neighbours", neighbours)
}

// Stop cancels the node and waits for all of its goroutines to exit. It only has an effect on a running
// node, a stopped node can not be started again.
func (n *Node) Stop() {
	n.lifeMu.Lock()
	if n.State() != Running {
		n.lifeMu.Unlock()
		return
	}
	n.life.Store(int32(Stopping))
	n.Cancel(state.ErrNodeStopped)
	n.lifeMu.Unlock()

	n.wg.Wait()

	n.lifeMu.Lock()
	n.life.Store(int32(Stopped))
	n.lifeMu.Unlock()
	n.log.Info("node stopped", "pending", len(n.inbox))
}

// exec runs fun with exclusive access to the node's state, on the main loop if it is running.
func exec[T any](n *Node, fun func(n *Node) (T, error)) (T, error) {
	n.lifeMu.Lock()
	switch n.State() {
	case Created, Stopped:
		defer n.lifeMu.Unlock()
		return fun(n)
	case Stopping:
		n.lifeMu.Unlock()
		var zero T
		return zero, state.ErrNodeStopped
	}
	env := n.Env
	n.lifeMu.Unlock()
	return DispatchWait(context.Background(), env, fun)
}

// AddNeighbor links this node to another one. Links are one-directional, the topology adds the reverse.
func (n *Node) AddNeighbor(link Link, cost uint32) error {
	_, err := exec(n, func(n *Node) (struct{}, error) {
		if link.Id() == n.id {
			return struct{}{}, fmt.Errorf("%w: %s can not link to itself", state.ErrInvalidConfig, n.id)
		}
		if cost == 0 || cost >= n.cfg.MaxCost {
			return struct{}{}, fmt.Errorf("%w: link cost %d to %s must be in [1, %d)", state.ErrInvalidConfig, cost, link.Id(), n.cfg.MaxCost)
		}
		n.links[link.Id()] = &neighbour{link: link, cost: cost}
		return struct{}{}, nil
	})
	return err
}

// RemoveNeighbor drops the link to id and every route through it. The neighbour itself is unaffected.
func (n *Node) RemoveNeighbor(id state.NodeId) error {
	_, err := exec(n, func(n *Node) (struct{}, error) {
		if _, ok := n.links[id]; !ok {
			return struct{}{}, nil
		}
		delete(n.links, id)
		n.engine.WithdrawVia(n.table, id)
		n.recordTable()
		return struct{}{}, nil
	})
	return err
}

func (n *Node) Neighbours() []state.NodeId {
	ids, _ := exec(n, func(n *Node) ([]state.NodeId, error) {
		ids := make([]state.NodeId, 0, len(n.links))
		for id := range n.links {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return ids, nil
	})
	return ids
}

// Table returns a copy of the routing table, or nil while the node is stopping
func (n *Node) Table() state.Snapshot {
	snap, _ := exec(n, func(n *Node) (state.Snapshot, error) {
		return n.table.Snapshot(), nil
	})
	return snap
}

func (n *Node) InboxLen() int {
	l, _ := exec(n, func(n *Node) (int, error) {
		return len(n.inbox), nil
	})
	return l
}

// Emit logs the event and fans it out to the bus and metrics. Safe for concurrent use.
func (n *Node) Emit(ev Event) {
	if ev.Node == "" {
		ev.Node = n.id
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	logEvent(n.log, ev)
	if n.cfg.Bus != nil {
		n.cfg.Bus.Publish(ev)
	}
	if n.metrics != nil {
		n.metrics.RecordEvent(string(n.id), ev.Type.String())
	}
}

func (n *Node) emit(event NodeEvent, peer state.NodeId, msg uuid.UUID, err error, desc string, args ...any) {
	n.Emit(Event{
		Type:    event,
		Peer:    peer,
		Message: msg,
		Err:     err,
		Desc:    fmt.Sprintf(desc, args...),
	})
}

func (n *Node) linkCost(neigh state.NodeId) uint32 {
	l, ok := n.links[neigh]
	if !ok {
		return n.cfg.MaxCost
	}
	return l.cost
}

// linkList returns the current links in a stable order
func (n *Node) linkList() []Link {
	links := make([]Link, 0, len(n.links))
	for _, l := range n.links {
		links = append(links, l.link)
	}
	slices.SortFunc(links, func(a, b Link) int {
		return cmp.Compare(a.Id(), b.Id())
	})
	return links
}

func (n *Node) recordTable() {
	if n.metrics != nil {
		n.metrics.RoutingTable.WithLabelValues(string(n.id)).Set(float64(n.table.Len()))
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("node %s (%s)", n.id, n.State())
}
