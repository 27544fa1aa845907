package mesh

import (
    "context"
    "testing"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/config"
    "mavmesh/pkg/core/netstack"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/transport"
    "mavmesh/pkg/transport/mem"
)

func testOptions() Options {
    return Options{TransportEnabled: true, LinkTimeout: 2 * time.Second, KeepAlive: 100 * time.Millisecond, StaleTime: time.Second}
}

// startNode runs a node listening on name (if set) and dialing the given
// names over the shared mem transport.
func startNode(t *testing.T, ctx context.Context, tr *mem.Transport, opts Options, name string, dial ...string) *Node {
    t.Helper()
    n, err := New(opts)
    require.NoError(t, err)
    tc := config.TransportConfig{Kind: "mem"}
    if name != "" { tc.Listen = []string{name} }
    for _, d := range dial { tc.Dial = append(tc.Dial, config.PeerDialConfig{Address: d}) }
    st, err := netstack.StartFromConfig(ctx, []config.TransportConfig{tc}, n, netstack.Options{
        BackoffInitial: 10 * time.Millisecond,
        BackoffMax:     50 * time.Millisecond,
        Transports:     map[string]transport.Transport{"mem": tr},
    })
    require.NoError(t, err)
    go func() { _ = n.Run(ctx) }()
    t.Cleanup(func() {
        _ = n.Close()
        st.Close()
    })
    return n
}

func recvKind(t *testing.T, s *Subscription[LinkEvent], kind LinkEventKind) LinkEvent {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    for {
        ev, err := s.Recv(ctx)
        require.NoError(t, err)
        if ev.Kind == kind { return ev }
    }
}

func TestTwoHopLink(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()

    // gc <- relay -> fc
    gc := startNode(t, ctx, tr, testOptions(), "gc")
    relay := startNode(t, ctx, tr, testOptions(), "relay", "gc")
    fc := startNode(t, ctx, tr, testOptions(), "", "relay")
    require.Eventually(t, func() bool {
        return len(gc.Neighbors()) == 1 && len(relay.Neighbors()) == 2 && len(fc.Neighbors()) == 1
    }, 3*time.Second, 5*time.Millisecond)

    dest := NewDestination(identity.FromName("mavlink-rns-gc"), NewDestinationName("rns_mavlink", "gc"))
    var err error
    dest.AppData, err = EncodeAppData(map[string]any{"role": "gc"})
    require.NoError(t, err)

    anns := fc.Announces()
    inEv := gc.InLinkEvents()
    outEv := fc.OutLinkEvents()
    require.NoError(t, gc.Announce(ctx, dest))

    actx, acancel := context.WithTimeout(ctx, 3*time.Second)
    defer acancel()
    ann, err := anns.Recv(actx)
    require.NoError(t, err)
    assert.Equal(t, dest.AddressHash(), ann.Destination.AddressHash)
    assert.Equal(t, uint8(2), ann.Hops)
    app, err := DecodeAppData(ann.AppData)
    require.NoError(t, err)
    assert.Equal(t, "gc", app["role"])

    l, err := fc.Link(ctx, ann.Destination)
    require.NoError(t, err)
    assert.Equal(t, LinkActive, l.Status())
    assert.Equal(t, dest.AddressHash(), l.Destination())

    // a second request reuses the active link
    l2, err := fc.Link(ctx, ann.Destination)
    require.NoError(t, err)
    assert.Same(t, l, l2)

    act := recvKind(t, inEv, LinkActivated)
    assert.Equal(t, l.ID(), act.Link)
    assert.Equal(t, dest.AddressHash(), act.Peer)
    recvKind(t, outEv, LinkActivated)

    require.NoError(t, fc.SendLink(ctx, l.ID(), []byte("heartbeat")))
    data := recvKind(t, inEv, LinkData)
    assert.Equal(t, []byte("heartbeat"), data.Payload)

    require.NoError(t, gc.SendLink(ctx, act.Link, []byte("param")))
    back := recvKind(t, outEv, LinkData)
    assert.Equal(t, []byte("param"), back.Payload)
    assert.Equal(t, dest.AddressHash(), back.Peer)

    require.NoError(t, fc.CloseLink(ctx, l.ID()))
    recvKind(t, outEv, LinkClosedEvent)
    closed := recvKind(t, inEv, LinkClosedEvent)
    assert.Equal(t, l.ID(), closed.Link)
    _, ok := gc.FindLink(l.ID())
    assert.False(t, ok)
}

func TestSendLinkErrors(t *testing.T) {
    n, err := New(Options{})
    require.NoError(t, err)
    defer n.Close()
    ctx := context.Background()

    assert.Equal(t, DefaultMTU-28, n.MDU())
    assert.ErrorIs(t, n.SendLink(ctx, NewLinkID(), make([]byte, n.MDU()+1)), ErrPayloadTooLarge)
    assert.ErrorIs(t, n.SendLink(ctx, NewLinkID(), []byte("x")), ErrUnknownLink)

    l := NewLink(NewLinkID(), AddressHash{1}, Outbound)
    n.links[l.ID()] = l
    assert.ErrorIs(t, n.SendLink(ctx, l.ID(), []byte("x")), ErrLinkNotActive)
    assert.NoError(t, n.SendToAllOutLinks(ctx, []byte("x")))
}

func TestLinkWithoutPath(t *testing.T) {
    n, err := New(Options{})
    require.NoError(t, err)
    defer n.Close()
    d := NewDestination(identity.FromName("x"), NewDestinationName("app", "x"))
    _, err = n.Link(context.Background(), d.Desc())
    assert.ErrorIs(t, err, ErrNoPath)
}

func TestSweepClosesStaleLinks(t *testing.T) {
    mock := clock.NewMock()
    opts := testOptions()
    opts.Clock = mock
    n, err := New(opts)
    require.NoError(t, err)
    defer n.Close()

    in := n.InLinkEvents()
    l := NewLink(NewLinkID(), AddressHash{7}, Inbound)
    l.neighbor = "addr:mem:x"
    n.links[l.ID()] = l
    require.True(t, l.activate(mock.Now()))

    mock.Add(opts.StaleTime / 2)
    n.sweep(mock.Now())
    assert.Equal(t, LinkActive, l.Status())

    mock.Add(opts.StaleTime)
    n.sweep(mock.Now())
    assert.Equal(t, LinkClosed, l.Status())
    ev, err := in.Recv(context.Background())
    require.NoError(t, err)
    assert.Equal(t, LinkClosedEvent, ev.Kind)
    assert.Equal(t, AddressHash{7}, ev.Peer)
}

func TestSweepSendsKeepAlives(t *testing.T) {
    mock := clock.NewMock()
    opts := testOptions()
    opts.Clock = mock
    n, err := New(opts)
    require.NoError(t, err)
    defer n.Close()

    l := NewLink(NewLinkID(), AddressHash{9}, Outbound)
    l.neighbor = "addr:mem:y"
    n.links[l.ID()] = l
    require.True(t, l.activate(mock.Now()))

    mock.Add(opts.KeepAlive)
    n.sweep(mock.Now())
    _, _, ka := l.snapshot()
    assert.Equal(t, mock.Now(), ka)
    assert.Equal(t, LinkActive, l.Status())
}

func TestNeighborLossClosesLinks(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    gc := startNode(t, ctx, tr, testOptions(), "gc2")

    fcCtx, fcCancel := context.WithCancel(ctx)
    fc := startNode(t, fcCtx, tr, testOptions(), "", "gc2")
    require.Eventually(t, func() bool { return len(gc.Neighbors()) == 1 && len(fc.Neighbors()) == 1 }, 3*time.Second, 5*time.Millisecond)

    dest := NewDestination(identity.FromName("gc2"), NewDestinationName("rns_mavlink", "gc"))
    anns := fc.Announces()
    inEv := gc.InLinkEvents()
    require.NoError(t, gc.Announce(ctx, dest))
    actx, acancel := context.WithTimeout(ctx, 3*time.Second)
    defer acancel()
    ann, err := anns.Recv(actx)
    require.NoError(t, err)
    assert.Equal(t, uint8(1), ann.Hops)
    _, err = fc.Link(ctx, ann.Destination)
    require.NoError(t, err)
    recvKind(t, inEv, LinkActivated)

    fcCancel()
    recvKind(t, inEv, LinkClosedEvent)
    require.Eventually(t, func() bool { return len(gc.Neighbors()) == 0 }, 3*time.Second, 5*time.Millisecond)
}
