package peers

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/memkv"
    "mavmesh/pkg/transport"
)

func newStore(t *testing.T) *Store {
    kv := memkv.New(memkv.Options{Shards: 8})
    t.Cleanup(kv.Close)
    return NewStore(kv)
}

func TestLearnPathPrefersShorter(t *testing.T) {
    s := newStore(t)
    dest := "00112233445566778899AABBCCDDEEFF"

    p, ok := s.LearnPath(dest, "n1", 3, time.Minute)
    require.True(t, ok)
    assert.Equal(t, "00112233445566778899aabbccddeeff", p.Dest)

    _, ok = s.LearnPath(dest, "n2", 5, time.Minute)
    assert.False(t, ok, "longer path from another neighbor is ignored")

    _, ok = s.LearnPath(dest, "n2", 2, time.Minute)
    assert.True(t, ok)
    got, ok := s.GetPath(dest)
    require.True(t, ok)
    assert.Equal(t, transport.PeerID("n2"), got.NextHop)
    assert.Equal(t, uint8(2), got.Hops)

    _, ok = s.LearnPath(dest, "n2", 4, time.Minute)
    assert.True(t, ok, "same neighbor always refreshes")
}

func TestDropPathsVia(t *testing.T) {
    s := newStore(t)
    s.LearnPath("aa", "n1", 1, time.Minute)
    s.LearnPath("bb", "n1", 2, time.Minute)
    s.LearnPath("cc", "n2", 1, time.Minute)

    assert.Equal(t, 2, s.DropPathsVia("n1"))
    paths := s.ListPaths()
    require.Len(t, paths, 1)
    assert.Equal(t, "cc", paths[0].Dest)
}

func TestNeighborLifecycle(t *testing.T) {
    s := newStore(t)
    s.UpsertNeighbor("n1", "tcp", "10.0.0.1:4242", transport.Quality{})
    s.RecordExchange("n1", 100, 50, 2, 1)
    nm, ok := s.Neighbor("n1")
    require.True(t, ok)
    assert.True(t, nm.Connected)
    assert.Equal(t, uint64(100), nm.BytesIn)
    assert.Equal(t, uint64(2), nm.MsgsIn)

    s.MarkDisconnected("n1")
    nm, _ = s.Neighbor("n1")
    assert.False(t, nm.Connected)

    s.LearnPath("aa", "n1", 1, time.Minute)
    assert.Equal(t, []transport.PeerID{"n1"}, s.ListNeighbors())
    assert.Equal(t, 1, s.DeleteNeighbor("n1"))
    assert.Empty(t, s.ListNeighbors())
    _, ok = s.Neighbor("n1")
    assert.False(t, ok)
}
