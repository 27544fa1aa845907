package protocol

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestHeaderRoundtrip(t *testing.T) {
    h := Header{Version: Version, Type: PktLinkKeepAlive, Hops: 3, Context: CtxKeepAliveReply, Flags: FlagTransport | FlagFromTarget, PayloadLen: 1234}
    for i := range h.Dest { h.Dest[i] = byte(i) }

    b, err := h.MarshalBinary()
    require.NoError(t, err)
    require.Len(t, b, HeaderSize)

    var h2 Header
    require.NoError(t, h2.UnmarshalBinary(b))
    assert.Equal(t, h, h2)
}

func TestHeaderRejects(t *testing.T) {
    var h Header
    assert.Error(t, h.UnmarshalBinary(make([]byte, HeaderSize-1)))
    assert.Error(t, h.UnmarshalBinary(make([]byte, HeaderSize)), "zero magic")
}
