package bridge

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "mavmesh/pkg/config"
    "mavmesh/pkg/core/netstack"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/mesh"
    "mavmesh/pkg/transport"
    "mavmesh/pkg/transport/mem"
)

func meshNode(t *testing.T, ctx context.Context, tr *mem.Transport, tc config.TransportConfig) *mesh.Node {
    t.Helper()
    n, err := mesh.New(mesh.Options{TransportEnabled: true, LinkTimeout: 2 * time.Second})
    require.NoError(t, err)
    st, err := netstack.StartFromConfig(ctx, []config.TransportConfig{tc}, n, netstack.Options{
        BackoffInitial: 10 * time.Millisecond,
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

func written(ep *fakeEndpoint, want string) bool {
    for _, w := range ep.written() {
        if string(w) == want { return true }
    }
    return false
}

func TestBridgesOverMesh(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    gcNode := meshNode(t, ctx, tr, config.TransportConfig{Kind: "mem", Listen: []string{"radio"}})
    fcNode := meshNode(t, ctx, tr, config.TransportConfig{Kind: "mem", Dial: []config.PeerDialConfig{{Address: "radio"}}})

    gcDest := mesh.NewDestination(identity.FromName("mavlink-rns-gc"), mesh.NewDestinationName("rns_mavlink", "gc"))
    gcEP, fcEP := newFakeEndpoint(), newFakeEndpoint()

    gc, err := New(gcNode, gcEP, Options{Mode: config.ModeResponder, Local: gcDest, IdleInterval: 5 * time.Millisecond, AnnounceInterval: 20 * time.Millisecond})
    require.NoError(t, err)
    fc, err := New(fcNode, fcEP, Options{Mode: config.ModeInitiator, Peer: gcDest.AddressHash().String(), IdleInterval: 5 * time.Millisecond})
    require.NoError(t, err)
    gcDone, fcDone := runBridge(ctx, gc), runBridge(ctx, fc)

    fcEP.reads <- []byte("HEARTBEAT from the vehicle, longer than one fragment? no, but close")
    gcEP.reads <- []byte("COMMAND_LONG")

    require.Eventually(t, func() bool {
        return written(gcEP, "HEARTBEAT from the vehicle, longer than one fragment? no, but close") && written(fcEP, "COMMAND_LONG")
    }, 5*time.Second, 10*time.Millisecond)

    cancel()
    require.NoError(t, <-gcDone)
    require.NoError(t, <-fcDone)
}
