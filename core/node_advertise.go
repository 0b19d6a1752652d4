package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/perf"
	"github.com/nexusauora-eng/Jade/state"
)

// Snapshot returns a copy of this node's routing table for a neighbour's advertisement round
func (n *Node) Snapshot(ctx context.Context) (state.Snapshot, error) {
	if !n.running() {
		return nil, state.ErrNodeStopped
	}
	return DispatchWait(ctx, n.Env, func(n *Node) (state.Snapshot, error) {
		return n.table.Snapshot(), nil
	})
}

// Advertise runs one advertisement round: every neighbour's table is fetched off the main loop, then all of
// them are merged at once on it. Neighbours that do not answer in time are skipped for this round.
func (n *Node) Advertise(ctx context.Context) (bool, error) {
	if !n.running() {
		return false, state.ErrNodeStopped
	}
	links, err := DispatchWait(ctx, n.Env, func(n *Node) ([]Link, error) {
		return n.linkList(), nil
	})
	if err != nil {
		return false, err
	}

	adverts := make(map[state.NodeId]state.Snapshot, len(links))
	for _, l := range links {
		sctx, cancel := context.WithTimeout(ctx, state.SnapshotTimeout)
		snap, err := l.Snapshot(sctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			n.emit(NeighbourUnreachable, l.Id(), uuid.Nil, err, "skipping advertisement")
			continue
		}
		adverts[l.Id()] = snap
	}
	perf.AdvertsPerSecond.Add(float64(len(adverts)))

	return DispatchWait(ctx, n.Env, func(n *Node) (bool, error) {
		start := time.Now()
		for id := range adverts {
			// the link may have been removed while we were waiting
			if _, ok := n.links[id]; !ok {
				delete(adverts, id)
			}
		}
		changed := n.engine.Merge(n.table, adverts, start)
		elapsed := time.Since(start)
		perf.MergeLatency.Add(float64(elapsed.Microseconds()))
		if n.metrics != nil {
			n.metrics.RecordMerge(string(n.id), n.table.Len(), elapsed)
		}
		if changed {
			perf.RouteChangesPerSecond.Add(1)
			n.log.Debug("routing table changed", "routes", n.table.Len())
		}
		return changed, nil
	})
}

func (n *Node) gc() error {
	_, err := DispatchWait(n.Context, n.Env, func(n *Node) (struct{}, error) {
		if n.engine.Expire(n.table, time.Now()) {
			perf.RouteChangesPerSecond.Add(1)
			n.recordTable()
		}
		n.seen.DeleteExpired()
		return struct{}{}, nil
	})
	return err
}
