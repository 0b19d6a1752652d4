package codec

import (
	"slices"

	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// envelope field numbers, equivalent to
//
//	message Envelope {
//	  bytes id = 1;
//	  string sender = 2;
//	  string target = 3;
//	  uint64 seq = 4;
//	  bytes payload = 5;
//	}
const (
	fieldId      protowire.Number = 1
	fieldSender  protowire.Number = 2
	fieldTarget  protowire.Number = 3
	fieldSeq     protowire.Number = 4
	fieldPayload protowire.Number = 5
)

type protoCodec struct{}

// Proto returns the protobuf wire format codec. Every field is always written so that an empty payload
// can be told apart from a missing one.
func Proto() Codec {
	return protoCodec{}
}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Encode(e state.Envelope) ([]byte, error) {
	b := make([]byte, 0, 64+len(e.Sender)+len(e.Target)+len(e.Payload))
	b = protowire.AppendTag(b, fieldId, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Id[:])
	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Sender))
	b = protowire.AppendTag(b, fieldTarget, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Target))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Seq)
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Payload)
	return b, nil
}

func (protoCodec) Decode(b []byte) (state.Envelope, error) {
	e := state.Envelope{}
	var hasId, hasSender, hasTarget, hasPayload bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return state.Envelope{}, malformed("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldId, fieldSender, fieldTarget, fieldPayload:
			if typ != protowire.BytesType {
				return state.Envelope{}, malformed("field %d has wire type %d", num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.Envelope{}, malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldId:
				id, err := uuid.FromBytes(v)
				if err != nil {
					return state.Envelope{}, malformed("id: %v", err)
				}
				e.Id = id
				hasId = true
			case fieldSender:
				e.Sender = state.NodeId(v)
				hasSender = len(v) != 0
			case fieldTarget:
				e.Target = state.NodeId(v)
				hasTarget = len(v) != 0
			case fieldPayload:
				e.Payload = slices.Clone(v)
				hasPayload = true
			}
		case fieldSeq:
			if typ != protowire.VarintType {
				return state.Envelope{}, malformed("field %d has wire type %d", num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.Envelope{}, malformed("seq: %v", protowire.ParseError(n))
			}
			b = b[n:]
			e.Seq = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return state.Envelope{}, malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	switch {
	case !hasId:
		return state.Envelope{}, malformed("missing id")
	case !hasSender:
		return state.Envelope{}, malformed("missing sender")
	case !hasTarget:
		return state.Envelope{}, malformed("missing target")
	case !hasPayload:
		return state.Envelope{}, malformed("missing payload")
	}
	return e, nil
}
