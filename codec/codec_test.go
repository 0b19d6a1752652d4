package codec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleEnvelope() state.Envelope {
	return state.Envelope{
		Id:      uuid.New(),
		Sender:  "0",
		Target:  "4",
		Seq:     42,
		Payload: []byte("hello from 0"),
	}
}

func allCodecs(t *testing.T) []Codec {
	r, err := NewRegistry()
	require.NoError(t, err)
	codecs := make([]Codec, 0)
	for _, name := range r.Names() {
		c, err := r.Get(name)
		require.NoError(t, err)
		codecs = append(codecs, c)
	}
	return codecs
}

func TestRoundTrip(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			in := sampleEnvelope()
			b, err := c.Encode(in)
			require.NoError(t, err)
			out, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestRoundTripEmptyPayload(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			in := sampleEnvelope()
			in.Payload = nil
			b, err := c.Encode(in)
			require.NoError(t, err)
			out, err := c.Decode(b)
			require.NoError(t, err)
			assert.Empty(t, out.Payload)
			assert.Equal(t, in.Id, out.Id)
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			_, err := c.Decode([]byte{0xff, 0xff})
			assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
			_, err = c.Decode(nil)
			assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Encode(sampleEnvelope())
			require.NoError(t, err)
			_, err = c.Decode(b[:len(b)-3])
			assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
		})
	}
}

func TestDecodeMissingFields(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			e := sampleEnvelope()
			e.Sender = ""
			b, err := c.Encode(e)
			require.NoError(t, err)
			_, err = c.Decode(b)
			assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
			assert.ErrorContains(t, err, "missing sender")

			e = sampleEnvelope()
			e.Target = ""
			b, err = c.Encode(e)
			require.NoError(t, err)
			_, err = c.Decode(b)
			assert.ErrorContains(t, err, "missing target")
		})
	}
}

func TestProtoMissingPayload(t *testing.T) {
	e := sampleEnvelope()
	b := protowire.AppendTag(nil, fieldId, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Id[:])
	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendString(b, "0")
	b = protowire.AppendTag(b, fieldTarget, protowire.BytesType)
	b = protowire.AppendString(b, "1")
	_, err := Proto().Decode(b)
	assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
	assert.ErrorContains(t, err, "missing payload")
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	in := sampleEnvelope()
	b, err := Proto().Encode(in)
	require.NoError(t, err)
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	out, err := Proto().Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProtoWrongWireType(t *testing.T) {
	b := protowire.AppendTag(nil, fieldSender, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	_, err := Proto().Decode(b)
	assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cbor", "msgpack", "proto"}, r.Names())
	_, err = r.Get("xml")
	assert.Error(t, err)

	c, err := ByName("proto")
	require.NoError(t, err)
	assert.Equal(t, "proto", c.Name())
}

func TestMsgPackMissingPayload(t *testing.T) {
	e := sampleEnvelope()
	b, err := msgpack.Marshal(map[string]any{
		"id":     e.Id[:],
		"sender": "0",
		"target": "1",
		"seq":    1,
	})
	require.NoError(t, err)
	_, err = MsgPack().Decode(b)
	assert.ErrorIs(t, err, state.ErrMalformedEnvelope)
	assert.ErrorContains(t, err, "missing payload")
}
