package state

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// MeshKey is the symmetric secret shared by every node in the mesh
type MeshKey [KeySize]byte

func GenerateKey() MeshKey {
	key := MeshKey{}
	_, err := rand.Read(key[:])
	if err != nil {
		panic(err)
	}
	return key
}

func (k MeshKey) IsZero() bool {
	return k == MeshKey{}
}

// Seal encrypts data with XChaCha20-Poly1305. The random nonce is prepended to the ciphertext.
func Seal(key MeshKey, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	_, err = rand.Read(nonce)
	if err != nil {
		return nil, err
	}
	cipherText := aead.Seal(nil, nonce, data, nil)
	return append(nonce, cipherText...), nil
}

// Open reverses Seal. Any key mismatch or corruption yields ErrDecryption.
func Open(key MeshKey, data []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(data))
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce := data[:chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, data[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return plain, nil
}
