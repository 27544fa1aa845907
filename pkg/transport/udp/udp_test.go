package udp

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/transport"
)

func TestUDPExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    tr := New()
    l, err := tr.Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)

    cli, err := tr.Dial(ctx, l.Addr().String(), transport.PeerInfo{ID: "x"})
    require.NoError(t, err)
    cs, _ := cli.OpenStream(ctx, transport.StreamControl)
    require.NoError(t, cs.SendBytes([]byte("hello")))

    srv, err := l.Accept(ctx)
    require.NoError(t, err)
    ss, _ := srv.OpenStream(ctx, transport.StreamControl)
    b, err := ss.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, "hello", string(b))

    require.NoError(t, ss.SendBytes([]byte("back")))
    b, err = cs.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, "back", string(b))

    require.NoError(t, srv.Close())
    _, err = ss.RecvBytes()
    assert.ErrorIs(t, err, ErrClosed)
    assert.ErrorIs(t, ss.SendBytes([]byte("x")), ErrClosed)
    require.NoError(t, cli.Close())
}
