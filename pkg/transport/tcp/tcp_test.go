package tcp

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/transport"
)

func TestTCPExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    tr := New()
    l, err := tr.Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)

    cli, err := tr.Dial(ctx, l.Addr().String(), transport.PeerInfo{ID: "x"})
    require.NoError(t, err)
    srv, err := l.Accept(ctx)
    require.NoError(t, err)
    assert.Equal(t, transport.KindTCP, srv.TransportKind())

    cs, _ := cli.OpenStream(ctx, transport.StreamControl)
    ss, _ := srv.OpenStream(ctx, transport.StreamControl)
    require.NoError(t, cs.SendBytes([]byte("one")))
    require.NoError(t, cs.SendBytes([]byte("two")))
    b, err := ss.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, "one", string(b))
    b, err = ss.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, "two", string(b))

    require.NoError(t, cli.Close())
    _, err = ss.RecvBytes()
    assert.Error(t, err)
}
