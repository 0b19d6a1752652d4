//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/nexusauora-eng/Jade/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestOptimalConvergence(t *testing.T) {
	defer goleak.VerifyNone(t)

	vh := NewVirtualHarness(50 * time.Millisecond)
	vh.NewNode("a")
	vh.NewNode("b")
	vh.NewNode("c")
	// a <-1-> b <-1-> c, and a direct but expensive a <-5-> c
	vh.Connect("a", "b", 1, 10*time.Millisecond, 0, 0)
	vh.Connect("b", "c", 1, 10*time.Millisecond, 0, 0)
	vh.Connect("a", "c", 5, 50*time.Millisecond, 0, 0)
	vh.Start()
	defer vh.Stop()

	want := state.RoutingEntry{Destination: "c", Cost: 2, NextHop: "b"}
	require.Eventually(t, func() bool {
		r, ok := vh.Route("a", "c")
		return ok && r == want
	}, 5*time.Second, 20*time.Millisecond)

	r, ok := vh.Route("c", "a")
	require.True(t, ok)
	assert.Equal(t, state.NodeId("b"), r.NextHop)
	assert.Equal(t, uint32(2), r.Cost)
}

func TestLossyLinksConverge(t *testing.T) {
	defer goleak.VerifyNone(t)

	vh := NewVirtualHarness(30 * time.Millisecond)
	vh.Cfg.RouteExpiry = 2 * time.Second
	ids := []state.NodeId{"n0", "n1", "n2", "n3", "n4"}
	for _, id := range ids {
		vh.NewNode(id)
	}
	for i := 1; i < len(ids); i++ {
		vh.Connect(ids[i-1], ids[i], 1, 2*time.Millisecond, 3*time.Millisecond, 0.3)
	}
	vh.Start()
	defer vh.Stop()

	require.Eventually(t, vh.FullyConverged, 10*time.Second, 20*time.Millisecond)
	r, ok := vh.Route("n0", "n4")
	require.True(t, ok)
	assert.Equal(t, uint32(4), r.Cost)
	assert.Equal(t, state.NodeId("n1"), r.NextHop)
}
