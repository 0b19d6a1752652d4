package state

import (
	"encoding/base64"
	"fmt"
	"strings"
)

func (k MeshKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}

func (k *MeshKey) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if len(data) != KeySize {
		return fmt.Errorf("mesh key must be %d bytes, got %d", KeySize, len(data))
	}
	*k = MeshKey(data)
	return nil
}
