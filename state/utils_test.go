package state

import "testing"

// SampleConfig returns a valid, expanded configuration for a line of n nodes
func SampleConfig(t *testing.T, n int) *MeshCfg {
	t.Helper()
	cfg := &MeshCfg{
		NodeCount:                    n,
		RoutingUpdateIntervalSeconds: 1,
		EncryptionKey:                GenerateKey(),
	}
	ExpandConfig(cfg)
	return cfg
}
