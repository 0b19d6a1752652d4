package state

import (
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
)

func TestKeyText(t *testing.T) {
	key := GenerateKey()
	txt, err := key.MarshalText()
	assert.NoError(t, err)
	other := MeshKey{}
	assert.NoError(t, other.UnmarshalText(txt))
	assert.Equal(t, key, other)

	assert.Error(t, other.UnmarshalText([]byte("c2hvcnQ=")))
	assert.Error(t, other.UnmarshalText([]byte("!!not base64")))
}

func TestSerialize(t *testing.T) {
	cfg := SampleConfig(t, 5)
	cfg.Graph = []string{"0, 1, 2", "2, 3, 4 : 3"}

	x, err := yaml.Marshal(cfg)
	assert.NoError(t, err)
	y := MeshCfg{}
	err = yaml.Unmarshal(x, &y)
	assert.NoError(t, err)
	assert.EqualValues(t, *cfg, y)
}

func TestDeserializeInvalid(t *testing.T) {
	x := `node_count: 3
mesh_port: abcd
`
	y := MeshCfg{}
	err := yaml.Unmarshal([]byte(x), &y)
	assert.Error(t, err)
}
