package core

import (
	"cmp"
	"slices"
	"time"

	"github.com/nexusauora-eng/Jade/state"
)

type tableRoute struct {
	state.RoutingEntry
	// zero means the route never goes stale
	deadline time.Time
}

// RoutingTable holds at most one route per destination and never a route to its owner.
// It is not synchronized, it must only be touched from the owning node's dispatch loop.
type RoutingTable struct {
	self   state.NodeId
	routes map[state.NodeId]tableRoute
}

func NewRoutingTable(self state.NodeId) *RoutingTable {
	return &RoutingTable{
		self:   self,
		routes: make(map[state.NodeId]tableRoute),
	}
}

func (t *RoutingTable) Lookup(dest state.NodeId) (state.RoutingEntry, bool) {
	r, ok := t.routes[dest]
	return r.RoutingEntry, ok
}

// Upsert stores entry if no route to its destination exists or if it is strictly cheaper than the current one.
func (t *RoutingTable) Upsert(entry state.RoutingEntry) bool {
	if entry.Destination == t.self {
		return false
	}
	cur, ok := t.routes[entry.Destination]
	if ok && entry.Cost >= cur.Cost {
		return false
	}
	t.routes[entry.Destination] = tableRoute{RoutingEntry: entry}
	return true
}

// Withdraw removes the route to dest. This is the only way the cost to a destination may rise.
func (t *RoutingTable) Withdraw(dest state.NodeId) bool {
	_, ok := t.routes[dest]
	delete(t.routes, dest)
	return ok
}

// Refresh pushes back the staleness deadline of the route to dest, as long as it still goes through nextHop.
func (t *RoutingTable) Refresh(dest, nextHop state.NodeId, deadline time.Time) bool {
	r, ok := t.routes[dest]
	if !ok || r.NextHop != nextHop {
		return false
	}
	r.deadline = deadline
	t.routes[dest] = r
	return true
}

// Expire removes every route whose deadline has passed
func (t *RoutingTable) Expire(now time.Time) []state.RoutingEntry {
	return t.removeIf(func(r tableRoute) bool {
		return !r.deadline.IsZero() && now.After(r.deadline)
	})
}

// WithdrawVia removes every route whose next hop is nextHop
func (t *RoutingTable) WithdrawVia(nextHop state.NodeId) []state.RoutingEntry {
	return t.removeIf(func(r tableRoute) bool {
		return r.NextHop == nextHop
	})
}

func (t *RoutingTable) removeIf(pred func(r tableRoute) bool) []state.RoutingEntry {
	removed := make([]state.RoutingEntry, 0)
	for dest, r := range t.routes {
		if pred(r) {
			removed = append(removed, r.RoutingEntry)
			delete(t.routes, dest)
		}
	}
	slices.SortFunc(removed, func(a, b state.RoutingEntry) int {
		return cmp.Compare(a.Destination, b.Destination)
	})
	return removed
}

// Snapshot returns a deep copy of the table
func (t *RoutingTable) Snapshot() state.Snapshot {
	snap := make(state.Snapshot, len(t.routes))
	for dest, r := range t.routes {
		snap[dest] = r.RoutingEntry
	}
	return snap
}

func (t *RoutingTable) Len() int {
	return len(t.routes)
}

func (t *RoutingTable) String() string {
	return t.Snapshot().String()
}
