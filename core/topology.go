package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/nexusauora-eng/Jade/codec"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/nexusauora-eng/Jade/telemetry"
)

// DeliverFunc is called whenever a message reaches its target node
type DeliverFunc func(node, sender state.NodeId, payload []byte)

type TopologyCfg struct {
	// Node is the template every node is created from, its Handler is replaced by Deliver
	Node     NodeCfg
	LinkCost uint32
	Deliver  DeliverFunc
}

// Topology owns a set of nodes and the symmetric links between them.
type Topology struct {
	cfg     TopologyCfg
	nodes   map[state.NodeId]*Node
	order   []state.NodeId
	edges   []state.Edge
	Bus     *EventBus
	Metrics *telemetry.Metrics
}

func NewTopology(cfg TopologyCfg) *Topology {
	if cfg.LinkCost == 0 {
		cfg.LinkCost = state.DefaultLinkCost
	}
	if cfg.Node.Bus == nil {
		cfg.Node.Bus = NewEventBus()
	}
	if cfg.Node.Metrics == nil {
		cfg.Node.Metrics = telemetry.NewMetrics("jade")
	}
	return &Topology{
		cfg:     cfg,
		nodes:   make(map[state.NodeId]*Node),
		order:   make([]state.NodeId, 0),
		edges:   make([]state.Edge, 0),
		Bus:     cfg.Node.Bus,
		Metrics: cfg.Node.Metrics,
	}
}

// FromConfig builds the topology described by a mesh configuration. Nothing is started.
func FromConfig(cfg *state.MeshCfg, log *slog.Logger, deliver DeliverFunc) (*Topology, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err)
	}
	edges, err := cfg.GetEdges()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err)
	}
	t := NewTopology(TopologyCfg{
		Node: NodeCfg{
			Key:            cfg.EncryptionKey,
			Codec:          c,
			UpdateInterval: cfg.UpdateInterval(),
			RouteExpiry:    cfg.RouteExpiry(),
			DeliveryPoll:   cfg.DeliveryPoll(),
			MaxCost:        cfg.MaxCost,
			SendMode:       cfg.SendMode,
			Log:            log,
		},
		LinkCost: cfg.LinkCost,
		Deliver:  deliver,
	})
	err = t.BuildGraph(cfg.Nodes, edges)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) addNode(id state.NodeId) (*Node, error) {
	if _, ok := t.nodes[id]; ok {
		return nil, fmt.Errorf("%w: duplicate node %s", state.ErrInvalidConfig, id)
	}
	ncfg := t.cfg.Node
	ncfg.Handler = nil
	if t.cfg.Deliver != nil {
		deliver := t.cfg.Deliver
		ncfg.Handler = func(sender state.NodeId, payload []byte) {
			deliver(id, sender, payload)
		}
	}
	n, err := NewNode(id, ncfg)
	if err != nil {
		return nil, err
	}
	t.nodes[id] = n
	t.order = append(t.order, id)
	return n, nil
}

// Link connects a and b in both directions
func (t *Topology) Link(a, b state.NodeId, cost uint32) error {
	na, nb := t.nodes[a], t.nodes[b]
	if na == nil || nb == nil {
		return fmt.Errorf("%w: can not link %s and %s, unknown node", state.ErrInvalidConfig, a, b)
	}
	if cost == 0 {
		cost = t.cfg.LinkCost
	}
	if err := na.AddNeighbor(nb, cost); err != nil {
		return err
	}
	if err := nb.AddNeighbor(na, cost); err != nil {
		return err
	}
	t.edges = slices.DeleteFunc(t.edges, func(e state.Edge) bool {
		return e.Pair == state.MakeSortedPair(a, b)
	})
	t.edges = append(t.edges, state.Edge{Pair: state.MakeSortedPair(a, b), Cost: cost})
	return nil
}

// BuildLine creates nodes "0" .. "n-1", each linked to the next one
func (t *Topology) BuildLine(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: node count must be positive, got %d", state.ErrInvalidConfig, n)
	}
	nodes := make([]state.NodeId, 0, n)
	edges := make([]state.Edge, 0, n)
	for i := range n {
		nodes = append(nodes, state.NodeId(strconv.Itoa(i)))
		if i > 0 {
			edges = append(edges, state.Edge{Pair: state.MakeSortedPair(nodes[i-1], nodes[i]), Cost: t.cfg.LinkCost})
		}
	}
	return t.BuildGraph(nodes, edges)
}

func (t *Topology) BuildGraph(nodes []state.NodeId, edges []state.Edge) error {
	for _, id := range nodes {
		if _, err := t.addNode(id); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := t.Link(e.V1, e.V2, e.Cost); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes the link between a and b in both directions. Both nodes keep running.
func (t *Topology) Disconnect(a, b state.NodeId) error {
	na, nb := t.nodes[a], t.nodes[b]
	if na == nil || nb == nil {
		return fmt.Errorf("can not disconnect %s and %s, unknown node", a, b)
	}
	if err := na.RemoveNeighbor(b); err != nil {
		return err
	}
	if err := nb.RemoveNeighbor(a); err != nil {
		return err
	}
	t.edges = slices.DeleteFunc(t.edges, func(e state.Edge) bool {
		return e.Pair == state.MakeSortedPair(a, b)
	})
	return nil
}

func (t *Topology) Node(id state.NodeId) *Node {
	return t.nodes[id]
}

// Nodes returns every node in creation order
func (t *Topology) Nodes() []*Node {
	nodes := make([]*Node, 0, len(t.order))
	for _, id := range t.order {
		nodes = append(nodes, t.nodes[id])
	}
	return nodes
}

func (t *Topology) Edges() []state.Edge {
	return slices.Clone(t.edges)
}

func (t *Topology) Send(src, dst state.NodeId, payload []byte) error {
	n := t.nodes[src]
	if n == nil {
		return fmt.Errorf("unknown node %s", src)
	}
	return n.Send(dst, payload)
}

func (t *Topology) StartAll() {
	for _, n := range t.Nodes() {
		n.Start()
	}
}

// StopAll stops every node concurrently and returns once all of them are stopped
func (t *Topology) StopAll() {
	wg := sync.WaitGroup{}
	for _, n := range t.Nodes() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Stop()
		}()
	}
	wg.Wait()
}

// HopDistances returns the number of hops from src to every node it can reach
func (t *Topology) HopDistances(src state.NodeId) map[state.NodeId]int {
	adj := make(map[state.NodeId][]state.NodeId)
	for _, e := range t.edges {
		adj[e.V1] = append(adj[e.V1], e.V2)
		adj[e.V2] = append(adj[e.V2], e.V1)
	}
	dist := map[state.NodeId]int{src: 0}
	queue := []state.NodeId{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, ok := dist[next]; !ok {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

// Diameter is the longest shortest hop path between any two connected nodes
func (t *Topology) Diameter() int {
	diameter := 0
	for _, id := range t.order {
		for _, d := range t.HopDistances(id) {
			diameter = max(diameter, d)
		}
	}
	return diameter
}

// Converge runs synchronous advertisement rounds over every node until a whole round changes nothing.
// It runs at least Diameter()+1 rounds and returns the number of rounds it took.
func (t *Topology) Converge(ctx context.Context) (int, error) {
	minRounds := t.Diameter() + 1
	maxRounds := max(minRounds, len(t.order)*int(t.cfg.Node.maxCost())) + 1
	for round := 1; round <= maxRounds; round++ {
		changed := false
		for _, n := range t.Nodes() {
			c, err := n.Advertise(ctx)
			if err != nil {
				return round, fmt.Errorf("advertise %s: %w", n.id, err)
			}
			changed = changed || c
		}
		if !changed && round >= minRounds {
			return round, nil
		}
	}
	return maxRounds, fmt.Errorf("routes did not settle after %d rounds", maxRounds)
}
