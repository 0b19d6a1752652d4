package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

type NodeId string

// RoutingEntry is the best known way to reach Destination.
type RoutingEntry struct {
	Destination NodeId
	Cost        uint32
	NextHop     NodeId // a current or former neighbour
}

func (e RoutingEntry) String() string {
	return fmt.Sprintf("(dst: %s, nh: %s, cost: %d)", e.Destination, e.NextHop, e.Cost)
}

// Snapshot is a point-in-time copy of a routing table. It never aliases the table it was taken from.
type Snapshot map[NodeId]RoutingEntry

func (s Snapshot) String() string {
	out := make([]string, 0, len(s))
	for _, dst := range slices.Sorted(maps.Keys(s)) {
		out = append(out, s[dst].String())
	}
	return strings.Join(out, "\n")
}

// Envelope is the unit of application traffic. Payload must not be modified once the envelope is created.
type Envelope struct {
	Id      uuid.UUID
	Sender  NodeId
	Target  NodeId
	Seq     uint64 // per-sender, starts at 1
	Payload []byte
}

func (e Envelope) String() string {
	return fmt.Sprintf("(id: %s, %s -> %s, seq: %d, len: %d)", e.Id, e.Sender, e.Target, e.Seq, len(e.Payload))
}

type SendMode string

const (
	// SendRouted hands a new message to the next hop only, flooding while no route is known
	SendRouted SendMode = "routed"
	// SendFlood hands a new message to every neighbour
	SendFlood SendMode = "flood"
)
