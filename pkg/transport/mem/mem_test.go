package mem

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/transport"
)

func TestDialAcceptExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    tr := New()
    l, err := tr.Listen(ctx, "gc")
    require.NoError(t, err)

    _, err = tr.Listen(ctx, "gc")
    assert.Error(t, err)

    cli, err := tr.Dial(ctx, "gc", transport.PeerInfo{ID: transport.DialPeerID(transport.KindMem, "gc")})
    require.NoError(t, err)
    srv, err := l.Accept(ctx)
    require.NoError(t, err)

    cs, _ := cli.OpenStream(ctx, transport.StreamControl)
    ss, _ := srv.OpenStream(ctx, transport.StreamControl)
    go func() { _ = cs.SendBytes([]byte("ping")) }()
    b, err := ss.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, []byte("ping"), b)

    // two dials to the same listener are distinct neighbors
    cli2, err := tr.Dial(ctx, "gc", transport.PeerInfo{})
    require.NoError(t, err)
    srv2, err := l.Accept(ctx)
    require.NoError(t, err)
    assert.NotEqual(t, srv.Peer().ID, srv2.Peer().ID)

    require.NoError(t, cli.Close())
    _, err = ss.RecvBytes()
    assert.Error(t, err)
    _ = cli2.Close()
}

func TestDialWithoutListener(t *testing.T) {
    _, err := New().Dial(context.Background(), "nope", transport.PeerInfo{})
    assert.Error(t, err)
}
