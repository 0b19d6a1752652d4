package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edge(a, b NodeId, cost uint32) Edge {
	return Edge{MakeSortedPair(a, b), cost}
}

func TestParseGraph_SimpleGraph(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5"}
	input := `1, 2
3, 4
1,3,5`
	edges, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.NoError(t, err)
	assert.ElementsMatch(t, edges, []Edge{
		edge("1", "2", 0),
		edge("3", "4", 0),
		edge("1", "3", 0),
		edge("3", "5", 0),
		edge("1", "5", 0),
	})
}

func TestParseGraph_Groups(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5", "6", "7"}
	input := `a = 1,2
b=3,,,4
c=5,6
d=a,b
d,d
7,d`
	edges, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.NoError(t, err)
	assert.ElementsMatch(t, edges, []Edge{
		// d,d
		edge("1", "2", 0),
		edge("1", "3", 0),
		edge("1", "4", 0),
		edge("2", "3", 0),
		edge("2", "4", 0),
		edge("3", "4", 0),
		// 7,d
		edge("1", "7", 0),
		edge("2", "7", 0),
		edge("3", "7", 0),
		edge("4", "7", 0),
	})
}

func TestParseGraph_Costs(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	input := `a, b
b, a : 4
b, c : 2
c, b : 7`
	edges, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.NoError(t, err)
	assert.Equal(t, []Edge{
		edge("a", "b", 4),
		edge("b", "c", 2),
	}, edges)
}

func TestParseGraph_InvalidCost(t *testing.T) {
	nodes := []string{"a", "b"}
	_, err := ParseGraph([]string{"a, b : 0"}, nodes)
	assert.ErrorContains(t, err, "link cost must be positive")
	_, err = ParseGraph([]string{"a, b : x"}, nodes)
	assert.ErrorContains(t, err, "invalid link cost")
	_, err = ParseGraph([]string{"g = a, b : 2"}, nodes)
	assert.ErrorContains(t, err, "must not carry a link cost")
}

func TestParseGraph_Cycle(t *testing.T) {
	nodes := []string{}
	input := `a = b
b = c
c = a`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "cycle detected in graph: [a b c]")
}

func TestParseGraph_DupGroupName(t *testing.T) {
	nodes := []string{}
	input := `a = b
a = b
b = b`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "duplicate group name: a")
}

func TestParseGraph_SymbolError(t *testing.T) {
	nodes := []string{"1"}
	input := `a = 1
b = 2`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "2 is not a valid node/group")
}

func TestParseGraph_SinglePairing(t *testing.T) {
	_, err := ParseGraph([]string{"1"}, []string{"1", "2"})
	assert.ErrorContains(t, err, "invalid pairing")
}

func TestGetEdges_DefaultLine(t *testing.T) {
	cfg := SampleConfig(t, 4)
	edges, err := cfg.GetEdges()
	assert.NoError(t, err)
	assert.Equal(t, []Edge{
		edge("0", "1", 1),
		edge("1", "2", 1),
		edge("2", "3", 1),
	}, edges)
	assert.Equal(t, []NodeId{"0", "2"}, GetPeers(edges, "1"))
}

func TestGetEdges_GraphUsesDefaultCost(t *testing.T) {
	cfg := SampleConfig(t, 3)
	cfg.LinkCost = 2
	cfg.Graph = []string{"all = 0, 1, 2", "all, all", "0, 2 : 5"}
	edges, err := cfg.GetEdges()
	assert.NoError(t, err)
	assert.Equal(t, []Edge{
		edge("0", "1", 2),
		edge("0", "2", 5),
		edge("1", "2", 2),
	}, edges)
}

func TestReadConfig(t *testing.T) {
	key := GenerateKey()
	keyText, err := key.MarshalText()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mesh.yaml")
	doc := `node_count: 5
routing_update_interval_seconds: 0.5
encryption_key: ` + string(keyText) + `
graph:
  - "0, 1, 2"
  - "2, 3"
  - "3, 4 : 2"
send_mode: flood
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, key, cfg.EncryptionKey)
	assert.Equal(t, []NodeId{"0", "1", "2", "3", "4"}, cfg.Nodes)
	assert.Equal(t, DefaultPort, cfg.MeshPort)
	assert.Equal(t, SendFlood, cfg.SendMode)
	assert.Equal(t, "proto", cfg.Codec)
	assert.Equal(t, 2.5, cfg.RouteExpirySeconds)
	assert.EqualValues(t, 500_000_000, cfg.UpdateInterval())
}

func TestReadConfig_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_count: 2\nrouting_update_interval_seconds: 1\n"), 0600))
	_, err := ReadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "encryption_key is missing")
}

func TestReadConfig_BadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_count: 2\nrouting_update_interval_seconds: 1\nencryption_key: c2hvcnQ=\n"), 0600))
	_, err := ReadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
