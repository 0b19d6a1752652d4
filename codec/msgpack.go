package codec

import (
	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/vmihailenco/msgpack/v5"
)

type msgpackEnvelope struct {
	Id      []byte  `msgpack:"id"`
	Sender  *string `msgpack:"sender"`
	Target  *string `msgpack:"target"`
	Seq     uint64  `msgpack:"seq"`
	Payload *[]byte `msgpack:"payload"`
}

type msgpackCodec struct{}

// MsgPack encodes envelopes as a MessagePack map keyed by field name
func MsgPack() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(e state.Envelope) ([]byte, error) {
	sender, target := string(e.Sender), string(e.Target)
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}
	return msgpack.Marshal(&msgpackEnvelope{
		Id:      e.Id[:],
		Sender:  &sender,
		Target:  &target,
		Seq:     e.Seq,
		Payload: &payload,
	})
}

func (msgpackCodec) Decode(data []byte) (state.Envelope, error) {
	w := msgpackEnvelope{}
	if err := msgpack.Unmarshal(data, &w); err != nil {
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
