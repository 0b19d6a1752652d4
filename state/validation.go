package state

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"slices"
)

var namePattern = regexp.MustCompile("^[0-9a-z._-]+$")

var supportedCodecs = []string{"proto", "cbor", "msgpack"}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	return err
}

// ConfigValidator rejects any configuration the mesh cannot safely run with
func ConfigValidator(cfg *MeshCfg) error {
	err := validate(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func validate(cfg *MeshCfg) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("node_count must be positive")
	}
	if cfg.RoutingUpdateIntervalSeconds <= 0 {
		return fmt.Errorf("routing_update_interval_seconds must be positive, got %v", cfg.RoutingUpdateIntervalSeconds)
	}
	if cfg.RouteExpirySeconds <= 0 {
		return fmt.Errorf("route_expiry_seconds must be positive, got %v", cfg.RouteExpirySeconds)
	}
	if cfg.DeliveryPollMs <= 0 {
		return fmt.Errorf("delivery_poll_ms must be positive, got %d", cfg.DeliveryPollMs)
	}
	if cfg.EncryptionKey.IsZero() {
		return fmt.Errorf("encryption_key is missing")
	}
	if cfg.LinkCost == 0 || cfg.MaxCost <= cfg.LinkCost {
		return fmt.Errorf("max_cost (%d) must exceed link_cost (%d)", cfg.MaxCost, cfg.LinkCost)
	}
	if cfg.SendMode != SendRouted && cfg.SendMode != SendFlood {
		return fmt.Errorf("unknown send_mode %q", cfg.SendMode)
	}
	if !slices.Contains(supportedCodecs, cfg.Codec) {
		return fmt.Errorf("unknown codec %q, expected one of %v", cfg.Codec, supportedCodecs)
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return err
		}
	}
	seen := make(map[NodeId]struct{})
	for _, n := range cfg.Nodes {
		if err := NameValidator(string(n)); err != nil {
			return err
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("duplicate node %s", n)
		}
		seen[n] = struct{}{}
	}
	edges, err := cfg.GetEdges()
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if edge.Cost >= cfg.MaxCost {
			return fmt.Errorf("link %s is at or above max_cost %d", edge, cfg.MaxCost)
		}
	}
	return nil
}
