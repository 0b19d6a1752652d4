package state

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// MeshCfg is the process-wide simulation configuration. It is read once at startup.
type MeshCfg struct {
	MeshPort                     uint16   `yaml:"mesh_port,omitempty"` // reserved for a real transport binding
	NodeCount                    int      `yaml:"node_count,omitempty"`
	Nodes                        []NodeId `yaml:"nodes,omitempty"` // explicit node names, overrides node_count naming
	RoutingUpdateIntervalSeconds float64  `yaml:"routing_update_interval_seconds"`
	EncryptionKey                MeshKey  `yaml:"encryption_key"`
	Graph                        []string `yaml:"graph,omitempty"` // empty means a line in node order
	LinkCost                     uint32   `yaml:"link_cost,omitempty"`
	MaxCost                      uint32   `yaml:"max_cost,omitempty"`
	RouteExpirySeconds           float64  `yaml:"route_expiry_seconds,omitempty"`
	DeliveryPollMs               int      `yaml:"delivery_poll_ms,omitempty"`
	SendMode                     SendMode `yaml:"send_mode,omitempty"`
	Codec                        string   `yaml:"codec,omitempty"`
	LogPath                      string   `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
}

// Edge is an undirected link between two nodes
type Edge struct {
	Pair[NodeId, NodeId]
	Cost uint32
}

func (e Edge) String() string {
	return fmt.Sprintf("%s <-%d-> %s", e.V1, e.Cost, e.V2)
}

func ReadConfig(path string) (*MeshCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &MeshCfg{}
	err = yaml.Unmarshal(file, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ExpandConfig(cfg)
	err = ConfigValidator(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandConfig fills in defaults for every optional field
func ExpandConfig(cfg *MeshCfg) {
	if cfg.MeshPort == 0 {
		cfg.MeshPort = DefaultPort
	}
	if len(cfg.Nodes) == 0 {
		for i := range cfg.NodeCount {
			cfg.Nodes = append(cfg.Nodes, NodeId(strconv.Itoa(i)))
		}
	}
	cfg.NodeCount = len(cfg.Nodes)
	if cfg.LinkCost == 0 {
		cfg.LinkCost = DefaultLinkCost
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = DefaultMaxCost
	}
	if cfg.RouteExpirySeconds == 0 {
		cfg.RouteExpirySeconds = cfg.RoutingUpdateIntervalSeconds * float64(RouteExpiryFactor)
	}
	if cfg.DeliveryPollMs == 0 {
		cfg.DeliveryPollMs = int(DeliveryPollDelay.Milliseconds())
	}
	if cfg.SendMode == "" {
		cfg.SendMode = SendRouted
	}
	if cfg.Codec == "" {
		cfg.Codec = "proto"
	}
}

func (c *MeshCfg) UpdateInterval() time.Duration {
	return time.Duration(c.RoutingUpdateIntervalSeconds * float64(time.Second))
}

func (c *MeshCfg) RouteExpiry() time.Duration {
	return time.Duration(c.RouteExpirySeconds * float64(time.Second))
}

func (c *MeshCfg) DeliveryPoll() time.Duration {
	return time.Duration(c.DeliveryPollMs) * time.Millisecond
}

// GetEdges expands the graph. An empty graph wires the nodes as a line, in declaration order.
func (c *MeshCfg) GetEdges() ([]Edge, error) {
	if len(c.Graph) == 0 {
		edges := make([]Edge, 0, len(c.Nodes))
		for i := 1; i < len(c.Nodes); i++ {
			edges = append(edges, Edge{MakeSortedPair(c.Nodes[i-1], c.Nodes[i]), c.LinkCost})
		}
		return edges, nil
	}
	names := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		names = append(names, string(n))
	}
	edges, err := ParseGraph(c.Graph, names)
	if err != nil {
		return nil, err
	}
	for i := range edges {
		if edges[i].Cost == 0 {
			edges[i].Cost = c.LinkCost
		}
	}
	return edges, nil
}

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	spl := strings.Split(strings.TrimSpace(s), ",")
	line := make([]string, 0)
	for _, s := range spl {
		x := strings.TrimSpace(s)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

// splitCost separates a trailing ": cost" from a pairing line. A cost of 0 means the default link cost.
func splitCost(line string) (string, uint32, error) {
	idx := strings.LastIndex(line, ":")
	if idx == -1 {
		return line, 0, nil
	}
	cost, err := strconv.ParseUint(strings.TrimSpace(line[idx+1:]), 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid link cost in %q: %w", line, err)
	}
	if cost == 0 {
		return "", 0, fmt.Errorf("link cost must be positive in %q", line)
	}
	return line[:idx], uint32(cost), nil
}

/*
ParseGraph Graph syntax is something like this:

Group1 = node1, node2, node3

Group2 = node4, node5

Group1, Group2, OtherNode // Group1, Group2, OtherNode will all be interconnected, but not within Group1 or Group2

Group1, Group1 // every node is connected to every other node

node8, node9 : 3 // node8 and node9 will be connected with a link cost of 3

nodes represents a set of unique terminal nodes that the graph will evaluate down to.
If the same edge appears more than once, the cheapest cost wins.
*/
func ParseGraph(graph []string, nodes []string) ([]Edge, error) {
	type pairing struct {
		Pair[string, string]
		cost uint32
	}
	parsedPairings := make([]pairing, 0)

	groups := make(map[string][]string)

	symbols := slices.Clone(nodes)

	// pass 0, collect all symbols

	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(line, "=") {
			// group definition
			spl := strings.Split(line, "=")
			if len(spl) != 2 {
				return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
			}
			grp := strings.TrimSpace(spl[0])
			if slices.Contains(nodes, grp) {
				return nil, fmt.Errorf("group name must not be a node name: %s", grp)
			}
			symbols = append(symbols, grp)
		}
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	// used for topological sorting
	// map: group -> []<groups that the group depends on>
	topo := make(map[string][]string)
	expansion := make(map[string][]string)

	// pass 1, parse graph
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		if strings.Contains(line, "=") {
			spl := strings.Split(line, "=")
			grp := strings.TrimSpace(spl[0])
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			if strings.Contains(spl[1], ":") {
				return nil, fmt.Errorf("group definition must not carry a link cost: %s", line)
			}
			lst, err := parseSymbolList(spl[1], symbols)
			if err != nil {
				return nil, err
			}
			// track dependencies
			deps := make([]string, 0)
			for _, l := range lst {
				if !slices.Contains(nodes, l) {
					// depends on a group
					deps = append(deps, l)
				} else {
					expansion[grp] = append(expansion[grp], l)
				}
			}
			slices.Sort(deps)
			deps = slices.Compact(deps)

			topo[grp] = deps
			groups[grp] = lst
		} else {
			body, cost, err := splitCost(line)
			if err != nil {
				return nil, err
			}
			names, err := parseSymbolList(body, symbols)
			if err != nil {
				return nil, err
			}
			if len(names) < 2 {
				return nil, fmt.Errorf("invalid pairing, %v", names)
			}
			interconnect := make([]string, 0)
			for _, name := range names {
				for _, other := range interconnect {
					parsedPairings = append(parsedPairings, pairing{MakeSortedPair(other, name), cost})
				}
				interconnect = append(interconnect, name)
			}
		}
	}

	// pass 2, expand group names
	// just topological sorting
	for len(topo) > 0 {
		// find free group
		var group string
		for k, v := range topo {
			if len(v) == 0 {
				group = k
				break
			}
		}
		if group == "" {
			cycleNodes := make([]string, 0)
			for node := range topo {
				cycleNodes = append(cycleNodes, node)
			}
			slices.Sort(cycleNodes)
			return nil, fmt.Errorf("cycle detected in graph: %v", cycleNodes)
		}
		delete(topo, group)

		// remove and expand the group for every dependent
		for k, deps := range topo {
			if slices.Contains(deps, group) {
				expansion[k] = append(expansion[k], expansion[group]...)
				slices.Sort(expansion[k])
				expansion[k] = slices.Compact(expansion[k])
				topo[k] = slices.DeleteFunc(deps, func(dep string) bool {
					return dep == group
				})
			}
		}
	}

	expand := func(sym string) []NodeId {
		if slices.Contains(nodes, sym) {
			return []NodeId{NodeId(sym)}
		}
		x := make([]NodeId, 0, len(expansion[sym]))
		for _, exp := range expansion[sym] {
			x = append(x, NodeId(exp))
		}
		return x
	}

	// pass 3, rewrite pairings
	edges := make([]Edge, 0)
	for _, p := range parsedPairings {
		for _, x := range expand(p.V1) {
			for _, y := range expand(p.V2) {
				if x != y {
					edges = append(edges, Edge{MakeSortedPair(x, y), p.cost})
				}
			}
		}
	}
	return compactEdges(edges), nil
}

// compactEdges sorts edges and keeps the cheapest copy of each one. A zero cost (default) loses to any explicit cost.
func compactEdges(edges []Edge) []Edge {
	rank := func(c uint32) uint32 {
		if c == 0 {
			return INF
		}
		return c
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.V1, b.V1); c != 0 {
			return c
		}
		if c := cmp.Compare(a.V2, b.V2); c != 0 {
			return c
		}
		return cmp.Compare(rank(a.Cost), rank(b.Cost))
	})
	return slices.CompactFunc(edges, func(a, b Edge) bool {
		return a.Pair == b.Pair
	})
}

// GetPeers returns the neighbours of curId in the expanded graph
func GetPeers(edges []Edge, curId NodeId) []NodeId {
	peers := make([]NodeId, 0)
	for _, edge := range edges {
		if edge.V1 == curId {
			peers = append(peers, edge.V2)
		} else if edge.V2 == curId {
			peers = append(peers, edge.V1)
		}
	}
	slices.Sort(peers)
	return peers
}
