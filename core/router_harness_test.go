package core

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nexusauora-eng/Jade/state"
)

func init() {
	state.SnapshotTimeout = 200 * time.Millisecond
}

// RouterHarness records every event emitted through it
type RouterHarness struct {
	mu     sync.Mutex
	events []Event
}

func (h *RouterHarness) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

// GetActions returns and clears the recorded events
func (h *RouterHarness) GetActions() HarnessEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	x := h.events
	h.events = make([]Event, 0)
	return x
}

type HarnessEvents []Event

func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, ev := range e {
		out = append(out, fmt.Sprintf("%s %s %s", ev.Type, ev.Node, ev.Peer))
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (e HarnessEvents) contains(typ NodeEvent, peer state.NodeId) bool {
	for _, ev := range e {
		if ev.Type == typ && (peer == "" || ev.Peer == peer) {
			return true
		}
	}
	return false
}

func (e HarnessEvents) Count(typ NodeEvent) int {
	c := 0
	for _, ev := range e {
		if ev.Type == typ {
			c++
		}
	}
	return c
}

func (e HarnessEvents) AssertContains(t *testing.T, typ NodeEvent, peer state.NodeId) {
	t.Helper()
	if e.contains(typ, peer) {
		return
	}
	t.Fatal("Expected event not found: ", typ, " with peer: ", peer, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, typ NodeEvent, peer state.NodeId) {
	t.Helper()
	if e.contains(typ, peer) {
		t.Fatal("Unexpected event found: ", typ, " with peer: ", peer, " in ", e)
	}
}

// sim runs engines over plain tables, without any node goroutines
type sim struct {
	engines map[state.NodeId]*Engine
	tables  map[state.NodeId]*RoutingTable
	links   map[state.NodeId]map[state.NodeId]uint32
	order   []state.NodeId
}

func newSim(h *RouterHarness, nodes []state.NodeId, edges []state.Edge) *sim {
	s := &sim{
		engines: make(map[state.NodeId]*Engine),
		tables:  make(map[state.NodeId]*RoutingTable),
		links:   make(map[state.NodeId]map[state.NodeId]uint32),
		order:   nodes,
	}
	for _, id := range nodes {
		s.links[id] = make(map[state.NodeId]uint32)
		s.tables[id] = NewRoutingTable(id)
		s.engines[id] = &Engine{
			Self: id,
			LinkCost: func(neigh state.NodeId) uint32 {
				return s.links[id][neigh]
			},
			MaxCost: state.DefaultMaxCost,
			Expiry:  time.Hour,
			Emitter: h,
		}
	}
	for _, e := range edges {
		s.links[e.V1][e.V2] = e.Cost
		s.links[e.V2][e.V1] = e.Cost
	}
	return s
}

func (s *sim) disconnect(a, b state.NodeId) {
	delete(s.links[a], b)
	delete(s.links[b], a)
	s.engines[a].WithdrawVia(s.tables[a], b)
	s.engines[b].WithdrawVia(s.tables[b], a)
}

func (s *sim) round(now time.Time) bool {
	changed := false
	for _, id := range s.order {
		adverts := make(map[state.NodeId]state.Snapshot)
		for neigh := range s.links[id] {
			adverts[neigh] = s.tables[neigh].Snapshot()
		}
		changed = s.engines[id].Merge(s.tables[id], adverts, now) || changed
	}
	return changed
}

func (s *sim) converge(t *testing.T) int {
	t.Helper()
	now := time.Now()
	for i := 1; i <= len(s.order)*int(state.DefaultMaxCost); i++ {
		if !s.round(now) {
			return i
		}
	}
	t.Fatal("routes did not settle")
	return 0
}

// shortestCosts is a plain Dijkstra over the sim's links
func (s *sim) shortestCosts(src state.NodeId) map[state.NodeId]uint32 {
	dist := map[state.NodeId]uint32{src: 0}
	done := make(map[state.NodeId]bool)
	for {
		cur := state.NodeId("")
		for id, d := range dist {
			if !done[id] && (cur == "" || d < dist[cur]) {
				cur = id
			}
		}
		if cur == "" {
			return dist
		}
		done[cur] = true
		for neigh, c := range s.links[cur] {
			if old, ok := dist[neigh]; !ok || dist[cur]+c < old {
				dist[neigh] = dist[cur] + c
			}
		}
	}
}

func expectCosts(t *testing.T, self state.NodeId, expected map[state.NodeId]uint32, snap state.Snapshot) {
	t.Helper()
	got := make(map[state.NodeId]uint32)
	for dest, entry := range snap {
		got[dest] = entry.Cost
	}
	want := make(map[state.NodeId]uint32)
	for dest, c := range expected {
		if dest != self && c < state.DefaultMaxCost {
			want[dest] = c
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("routing table of %s mismatch (-want +got):\n%s", self, diff)
	}
}

func lineEdges(n int) ([]state.NodeId, []state.Edge) {
	nodes := make([]state.NodeId, 0, n)
	edges := make([]state.Edge, 0, n)
	for i := range n {
		nodes = append(nodes, state.NodeId(fmt.Sprint(i)))
		if i > 0 {
			edges = append(edges, state.Edge{Pair: state.MakeSortedPair(nodes[i-1], nodes[i]), Cost: 1})
		}
	}
	return nodes, edges
}

func ringEdges(n int) ([]state.NodeId, []state.Edge) {
	nodes, edges := lineEdges(n)
	edges = append(edges, state.Edge{Pair: state.MakeSortedPair(nodes[0], nodes[n-1]), Cost: 1})
	return nodes, edges
}

func gridEdges(w, h int) ([]state.NodeId, []state.Edge) {
	nodes := make([]state.NodeId, 0, w*h)
	edges := make([]state.Edge, 0)
	id := func(x, y int) state.NodeId {
		return state.NodeId(fmt.Sprintf("%d.%d", x, y))
	}
	for y := range h {
		for x := range w {
			nodes = append(nodes, id(x, y))
			if x > 0 {
				edges = append(edges, state.Edge{Pair: state.MakeSortedPair(id(x-1, y), id(x, y)), Cost: 1})
			}
			if y > 0 {
				edges = append(edges, state.Edge{Pair: state.MakeSortedPair(id(x, y-1), id(x, y)), Cost: 1})
			}
		}
	}
	return nodes, edges
}
