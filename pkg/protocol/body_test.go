package protocol

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "google.golang.org/protobuf/types/known/structpb"

    "mavmesh/pkg/handshake"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/protocol/codec"
)

func TestEncodeDecodeAnnounceCBOR(t *testing.T) {
    reg, err := DefaultRegistry()
    require.NoError(t, err)
    in, err := handshake.BuildAnnounce(identity.FromName("gc"), "rns_mavlink", []string{"gc"}, []byte{1, 2})
    require.NoError(t, err)

    b, err := EncodeBody(reg, FormatCBOR, in)
    require.NoError(t, err)
    assert.Equal(t, byte(FormatCBOR), b[0])

    var out handshake.Announce
    f, err := DecodeBody(reg, b, &out)
    require.NoError(t, err)
    assert.Equal(t, FormatCBOR, f)
    assert.Equal(t, in.Dest, out.Dest)
    assert.Equal(t, in.Aspects, out.Aspects)
    require.NoError(t, handshake.VerifyAnnounce(out, 0))
}

func TestEncodeDecodeBodyProto(t *testing.T) {
    reg := codec.NewRegistry()
    s, err := structpb.NewStruct(map[string]any{"role": "gc"})
    require.NoError(t, err)
    b, err := EncodeBody(reg, FormatProto, s)
    require.NoError(t, err)
    var out structpb.Struct
    _, err = DecodeBody(reg, b, &out)
    require.NoError(t, err)
    assert.Equal(t, "gc", out.Fields["role"].GetStringValue())
}

func TestDecodeBodyErrors(t *testing.T) {
    var v map[string]any
    _, err := DecodeBody(nil, nil, &v)
    assert.Error(t, err)
    _, err = DecodeBody(nil, []byte{0x7f, 1}, &v)
    assert.Error(t, err)
}
