package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/state"
)

type cborEnvelope struct {
	Id      []byte  `cbor:"1,keyasint"`
	Sender  *string `cbor:"2,keyasint,omitempty"`
	Target  *string `cbor:"3,keyasint,omitempty"`
	Seq     uint64  `cbor:"4,keyasint"`
	Payload *[]byte `cbor:"5,keyasint,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949 core profile).
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return "cbor" }

func (c cborCodec) Encode(e state.Envelope) ([]byte, error) {
	sender, target := string(e.Sender), string(e.Target)
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}
	return c.enc.Marshal(cborEnvelope{
		Id:      e.Id[:],
		Sender:  &sender,
		Target:  &target,
		Seq:     e.Seq,
		Payload: &payload,
	})
}

func (c cborCodec) Decode(data []byte) (state.Envelope, error) {
	w := cborEnvelope{}
	if err := c.dec.Unmarshal(data, &w); err != nil {
		return state.Envelope{}, malformed("%v", err)
	}
	if w.Id == nil {
		return state.Envelope{}, malformed("missing id")
	}
	id, err := uuid.FromBytes(w.Id)
	if err != nil {
		return state.Envelope{}, malformed("id: %v", err)
	}
	if w.Sender == nil || *w.Sender == "" {
		return state.Envelope{}, malformed("missing sender")
	}
	if w.Target == nil || *w.Target == "" {
		return state.Envelope{}, malformed("missing target")
	}
	if w.Payload == nil {
		return state.Envelope{}, malformed("missing payload")
	}
	return state.Envelope{
		Id:      id,
		Sender:  state.NodeId(*w.Sender),
		Target:  state.NodeId(*w.Target),
		Seq:     w.Seq,
		Payload: *w.Payload,
	}, nil
}
