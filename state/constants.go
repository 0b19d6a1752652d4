package state

import "time"

const (
	// INF is the largest representable cost, used when saturating additions
	INF = ^(uint32)(0)
	// KeySize is the length of the mesh-wide symmetric key
	KeySize = 32
)

var (
	DefaultPort        = uint16(57175)
	DefaultLinkCost    = uint32(1)
	DefaultMaxCost     = uint32(16) // a route at or above this cost is unreachable
	DefaultUpdateDelay = time.Second * 5
	// RouteExpiryFactor is the number of missed advertisement rounds before a route goes stale
	RouteExpiryFactor = 5
	DeliveryPollDelay = time.Millisecond * 50
	SnapshotTimeout   = time.Millisecond * 500
	GcDelay           = time.Millisecond * 1000
	DedupTTL          = time.Second * 30
	DispatchBuffer    = 128
	EventBuffer       = 1024

	SlowDispatchThreshold = time.Millisecond * 4
)
