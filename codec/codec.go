package codec

import (
	"fmt"
	"slices"

	"github.com/nexusauora-eng/Jade/state"
)

// Codec turns envelopes into bytes and back. Implementations must be safe for concurrent use.
type Codec interface {
	Name() string
	Encode(e state.Envelope) ([]byte, error)
	// Decode fails with state.ErrMalformedEnvelope when the input is not a complete envelope
	Decode(data []byte) (state.Envelope, error)
}

// Registry maps codec names to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry constructs a registry preloaded with the built-in codecs.
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(Proto())
	r.Register(MsgPack())
	c, err := CBOR()
	if err != nil {
		return nil, err
	}
	r.Register(c)
	return r, nil
}

// Register adds a codec, replacing any codec with the same name.
func (r *Registry) Register(c Codec) { r.byName[c.Name()] = c }

// Get returns a codec by name.
func (r *Registry) Get(name string) (Codec, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ByName is a shorthand for looking up a built-in codec
func ByName(name string) (Codec, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return r.Get(name)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", state.ErrMalformedEnvelope, fmt.Sprintf(format, args...))
}
