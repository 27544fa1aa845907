package router

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/memkv"
    "mavmesh/pkg/peers"
    "mavmesh/pkg/transport"
    "mavmesh/pkg/transport/mem"
)

func TestNextHopAndSend(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    kv := memkv.New(memkv.Options{Shards: 4})
    defer kv.Close()
    ps := peers.NewStore(kv)
    mgr := transport.NewManager()
    r := New(ps, mgr)

    tr := mem.New()
    l, err := tr.Listen(ctx, "b")
    require.NoError(t, err)
    cli, err := tr.Dial(ctx, "b", transport.PeerInfo{ID: "nb"})
    require.NoError(t, err)
    srv, err := l.Accept(ctx)
    require.NoError(t, err)

    _, _, ok := r.NextHopFor("aa")
    assert.False(t, ok)
    assert.ErrorIs(t, r.SendBytesToPeer(ctx, "nb", []byte("x")), ErrNoRoute)

    ps.LearnPath("aa", "nb", 2, time.Minute)
    _, _, ok = r.NextHopFor("aa")
    assert.False(t, ok, "path without a session is dropped")
    _, ok = ps.GetPath("aa")
    assert.False(t, ok)

    _, _, _, err = mgr.AddSession(ctx, cli)
    require.NoError(t, err)
    ps.LearnPath("aa", "nb", 2, time.Minute)
    nh, hops, ok := r.NextHopFor("aa")
    require.True(t, ok)
    assert.Equal(t, transport.PeerID("nb"), nh)
    assert.Equal(t, uint8(2), hops)
    assert.Equal(t, []transport.PeerID{"nb"}, r.Neighbors())

    st, _ := srv.OpenStream(ctx, transport.StreamControl)
    go func() { _ = r.SendBytesToPeer(ctx, "nb", []byte("frame")) }()
    b, err := st.RecvBytes()
    require.NoError(t, err)
    assert.Equal(t, "frame", string(b))
}
