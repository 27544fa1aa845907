package codec

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "google.golang.org/protobuf/types/known/structpb"
)

func TestCBORDeterministic(t *testing.T) {
    c, err := CBOR()
    require.NoError(t, err)
    a, err := c.Marshal(map[string]any{"b": 1, "a": 2})
    require.NoError(t, err)
    b, err := c.Marshal(map[string]any{"a": 2, "b": 1})
    require.NoError(t, err)
    assert.Equal(t, a, b)

    var out map[string]int
    require.NoError(t, c.Unmarshal(a, &out))
    assert.Equal(t, 2, out["a"])
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    require.NoError(t, err)
    b, err := c.Marshal(s)
    require.NoError(t, err)
    var out structpb.Struct
    require.NoError(t, c.Unmarshal(b, &out))
    assert.Equal(t, "v", out.Fields["k"].GetStringValue())

    _, err = c.Marshal(map[string]any{})
    assert.ErrorIs(t, err, ErrNotMessage)
}

func TestRegistry(t *testing.T) {
    r := NewRegistry()
    assert.NotNil(t, r.Get("application/json"))
    assert.NotNil(t, r.Get("application/x-protobuf"))
    assert.Nil(t, r.Get("application/cbor"))
    c, err := CBOR()
    require.NoError(t, err)
    r.Register(c)
    assert.NotNil(t, r.Get("application/cbor"))
    assert.Equal(t, []string{"application/cbor", "application/json", "application/x-protobuf"}, r.ContentTypes())
}

func TestJSONCompact(t *testing.T) {
    b, err := JSON().Marshal(map[string]string{"z": "<a>", "a": "b"})
    require.NoError(t, err)
    assert.Equal(t, `{"a":"b","z":"<a>"}`, string(b))
}
