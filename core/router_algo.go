package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nexusauora-eng/Jade/state"
)

// Engine is the distance-vector merge. It is stateless apart from its configuration, the table it
// operates on belongs to the caller.
type Engine struct {
	Self state.NodeId
	// LinkCost returns the cost of the direct link to a neighbour
	LinkCost func(neigh state.NodeId) uint32
	// MaxCost is infinity, a candidate at or above it is unreachable
	MaxCost uint32
	// Expiry is how long a route survives without being re-advertised
	Expiry  time.Duration
	Emitter Emitter
}

func (e *Engine) log(event NodeEvent, dest state.NodeId, desc string, args ...any) {
	if e.Emitter == nil {
		return
	}
	e.Emitter.Emit(Event{
		Type: event,
		Node: e.Self,
		Peer: dest,
		Desc: fmt.Sprintf(desc, args...),
		Time: time.Now(),
	})
}

func (e *Engine) addCost(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum >= uint64(e.MaxCost) {
		return e.MaxCost
	}
	return uint32(sum)
}

// Merge folds the snapshots of every neighbour that answered this round into table. A neighbour
// missing from adverts did not answer and its routes are left to age out. Merge reports whether
// any route was added, removed or changed cost, so merging the same adverts twice reports false the
// second time.
func (e *Engine) Merge(table *RoutingTable, adverts map[state.NodeId]state.Snapshot, now time.Time) bool {
	// candidates[dest][via] is the cost of reaching dest through neighbour via
	candidates := make(map[state.NodeId]map[state.NodeId]uint32)
	offer := func(dest, via state.NodeId, cost uint32) {
		if dest == e.Self {
			return
		}
		m, ok := candidates[dest]
		if !ok {
			m = make(map[state.NodeId]uint32)
			candidates[dest] = m
		}
		if old, ok := m[via]; !ok || cost < old {
			m[via] = cost
		}
	}

	for neigh, snap := range adverts {
		lc := e.LinkCost(neigh)
		offer(neigh, neigh, e.addCost(lc, 0))
		for dest, entry := range snap {
			cost := e.addCost(entry.Cost, lc)
			if entry.NextHop == e.Self {
				// poison reverse, the neighbour reaches dest through us
				cost = e.MaxCost
			}
			offer(dest, neigh, cost)
		}
	}

	dests := slices.Collect(maps.Keys(candidates))
	for _, entry := range table.Snapshot() {
		if _, ok := adverts[entry.NextHop]; ok {
			if _, ok := candidates[entry.Destination]; !ok {
				dests = append(dests, entry.Destination)
			}
		}
	}
	slices.Sort(dests)

	changed := false
	deadline := now.Add(e.Expiry)
	for _, dest := range dests {
		cur, hasCur := table.Lookup(dest)
		if hasCur {
			if _, answered := adverts[cur.NextHop]; answered {
				cost, offered := candidates[dest][cur.NextHop]
				switch {
				case !offered || cost >= e.MaxCost:
					table.Withdraw(dest)
					changed = true
					hasCur = false
					e.log(RouteWithdrawn, dest, "%s no longer advertises a route", cur.NextHop)
				case cost != cur.Cost:
					table.Withdraw(dest)
					changed = true
					hasCur = false
					e.log(RouteWithdrawn, dest, "cost via %s changed from %d to %d", cur.NextHop, cur.Cost, cost)
				default:
					table.Refresh(dest, cur.NextHop, deadline)
				}
			}
		}

		best, ok := e.bestCandidate(dest, candidates[dest])
		if !ok {
			continue
		}
		if table.Upsert(best) {
			table.Refresh(dest, best.NextHop, deadline)
			changed = true
			if hasCur {
				e.log(RouteImproved, dest, "%s -> %s", cur, best)
			} else {
				e.log(RouteAdded, dest, "%s", best)
			}
		}
	}
	return changed
}

// bestCandidate picks the cheapest finite candidate, ties go to the lowest neighbour id
func (e *Engine) bestCandidate(dest state.NodeId, vias map[state.NodeId]uint32) (state.RoutingEntry, bool) {
	best := state.RoutingEntry{Destination: dest, Cost: e.MaxCost}
	found := false
	for via, cost := range vias {
		if cost >= e.MaxCost {
			continue
		}
		if !found || cost < best.Cost || (cost == best.Cost && cmp.Less(via, best.NextHop)) {
			best.Cost = cost
			best.NextHop = via
			found = true
		}
	}
	return best, found
}

// Expire drops every route that has not been re-advertised in time
func (e *Engine) Expire(table *RoutingTable, now time.Time) bool {
	removed := table.Expire(now)
	for _, r := range removed {
		e.log(StaleRouteDropped, r.Destination, "%s", r)
	}
	return len(removed) > 0
}

// WithdrawVia drops every route through a neighbour that is no longer linked
func (e *Engine) WithdrawVia(table *RoutingTable, neigh state.NodeId) bool {
	removed := table.WithdrawVia(neigh)
	for _, r := range removed {
		e.log(RouteWithdrawn, r.Destination, "link to %s removed", neigh)
	}
	return len(removed) > 0
}
