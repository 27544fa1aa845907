// Package bridge forwards a local telemetry byte stream over a mesh link to
// one peer and writes the peer's bytes back to the local endpoint.
package bridge

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/benbjohnson/clock"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "mavmesh/pkg/config"
    "mavmesh/pkg/endpoint"
    "mavmesh/pkg/mesh"
    "mavmesh/pkg/observability"
)

// Mesh is the part of the mesh node the bridge drives. *mesh.Node implements it.
type Mesh interface {
    Announces() *mesh.Subscription[mesh.Announce]
    Link(ctx context.Context, desc mesh.DestinationDesc) (*mesh.Link, error)
    OutLinkEvents() *mesh.Subscription[mesh.LinkEvent]
    InLinkEvents() *mesh.Subscription[mesh.LinkEvent]
    SendLink(ctx context.Context, id mesh.LinkID, data []byte) error
    SendToAllOutLinks(ctx context.Context, data []byte) error
    Announce(ctx context.Context, dest *mesh.Destination) error
    MDU() int
}

var _ Mesh = (*mesh.Node)(nil)

type Options struct {
    // Mode is config.ModeInitiator (default) or config.ModeResponder.
    Mode string
    // Peer is the hex address hash of the target; initiator only.
    Peer string
    // Local is announced in responder mode and filters its in-link events.
    Local *mesh.Destination

    IdleInterval     time.Duration
    ReadBuffer       int
    FanOut           bool
    AnnounceInterval time.Duration

    Clock   clock.Clock
    Metrics *observability.Metrics
}

// OptionsFromConfig maps bridge config; Local is left to the caller.
func OptionsFromConfig(c config.BridgeConfig) Options {
    return Options{
        Mode:             c.Mode,
        Peer:             c.Peer,
        IdleInterval:     c.IdleInterval(),
        ReadBuffer:       c.ReadBuffer,
        FanOut:           c.FanOut,
        AnnounceInterval: c.AnnounceInterval(),
    }
}

// Bridge is one telemetry circuit between a local endpoint and a mesh peer.
type Bridge struct {
    mesh    Mesh
    ep      endpoint.Endpoint
    opts    Options
    clk     clock.Clock
    metrics *observability.Metrics
    filter  PeerFilter
    tracker LinkTracker
}

// New validates opts. A malformed peer or fan-out in responder mode yields
// *ConfigurationError.
func New(m Mesh, ep endpoint.Endpoint, opts Options) (*Bridge, error) {
    if opts.Mode == "" { opts.Mode = config.ModeInitiator }
    if opts.IdleInterval <= 0 { opts.IdleInterval = 100 * time.Millisecond }
    if opts.ReadBuffer <= 0 { opts.ReadBuffer = 64 * 1024 }
    if opts.AnnounceInterval <= 0 { opts.AnnounceInterval = time.Second }
    if opts.Clock == nil { opts.Clock = clock.New() }

    if err := checkSettings(opts.Mode, opts.Peer, opts.FanOut); err != nil { return nil, err }

    b := &Bridge{mesh: m, ep: ep, opts: opts, clk: opts.Clock, metrics: opts.Metrics}
    switch opts.Mode {
    case config.ModeInitiator:
        b.filter, _ = NewPeerFilter(opts.Peer)
    case config.ModeResponder:
        if opts.Local == nil {
            return nil, &ConfigurationError{Field: "bridge.local", Value: "", Err: errors.New("responder needs a local destination")}
        }
        b.filter = PeerFilterFor(opts.Local.AddressHash())
    default:
        return nil, &ConfigurationError{Field: "bridge.mode", Value: opts.Mode, Err: errors.New("unknown mode")}
    }
    return b, nil
}

// CheckConfig rejects bridge settings that New would refuse, so a caller can
// fail before opening the endpoint or joining the mesh.
func CheckConfig(c config.BridgeConfig) error {
    mode := c.Mode
    if mode == "" { mode = config.ModeInitiator }
    return checkSettings(mode, c.Peer, c.FanOut)
}

// checkSettings validates the peer in every mode it is given in. A responder
// only holds in-links, so fan-out over out-links would reach nobody.
func checkSettings(mode, peer string, fanOut bool) error {
    if mode == config.ModeInitiator || peer != "" {
        if _, err := NewPeerFilter(peer); err != nil { return err }
    }
    if mode == config.ModeResponder && fanOut {
        return &ConfigurationError{Field: "bridge.fanout", Value: "true", Err: errors.New("responder mode has no out-links")}
    }
    return nil
}

func (b *Bridge) responder() bool { return b.opts.Mode == config.ModeResponder }

// Tracker exposes the link slot for status reporting.
func (b *Bridge) Tracker() *LinkTracker { return &b.tracker }

const (
    unitDiscovery = "discovery"
    unitAnnounce  = "announce"
    unitInbound   = "inbound"
    unitOutbound  = "outbound"
    unitShutdown  = "shutdown"
)

type unitExit struct {
    unit string
    err  error
}

func (e *unitExit) Error() string {
    if e.err == nil { return e.unit + ": finished" }
    return e.unit + ": " + e.err.Error()
}
func (e *unitExit) Unwrap() error { return e.err }

// Run forwards until ctx is done or one unit ends. The first unit to finish
// cancels the others; bytes in flight at that moment are dropped. Run
// returns nil on shutdown through ctx, otherwise the first unit's error.
func (b *Bridge) Run(ctx context.Context) error {
    g, gctx := errgroup.WithContext(ctx)

    // subscribe before any unit runs so early events are not missed
    var events *mesh.Subscription[mesh.LinkEvent]
    if b.responder() {
        events = b.mesh.InLinkEvents()
    } else {
        events = b.mesh.OutLinkEvents()
    }
    defer events.Close()

    start := func(name string, fn func(context.Context) error) {
        g.Go(func() error {
            err := fn(gctx)
            if name != unitShutdown && gctx.Err() == nil {
                zap.L().Error("bridge unit stopped", zap.String("unit", name), zap.Error(err))
            } else {
                zap.L().Debug("bridge unit exit", zap.String("unit", name), zap.Error(err))
            }
            return &unitExit{unit: name, err: err}
        })
    }

    if b.responder() {
        start(unitAnnounce, b.announce)
    } else {
        anns := b.mesh.Announces()
        defer anns.Close()
        start(unitDiscovery, func(ctx context.Context) error { return b.discover(ctx, anns) })
    }
    start(unitInbound, b.inbound)
    start(unitOutbound, func(ctx context.Context) error { return b.outbound(ctx, events) })
    start(unitShutdown, func(context.Context) error {
        <-gctx.Done()
        return nil
    })

    // a pending endpoint read or write would otherwise outlive cancellation
    stop := context.AfterFunc(gctx, func() { _ = b.ep.Close() })
    defer stop()

    zap.L().Info("bridge running", zap.String("mode", b.opts.Mode), zap.String("peer", b.filter.Peer().String()), zap.Int("mdu", b.mesh.MDU()))
    err := g.Wait()
    b.metrics.SetLinkUp(false)

    var ue *unitExit
    if errors.As(err, &ue) && ue.unit == unitShutdown { return nil }
    if ctx.Err() != nil {
        zap.L().Info("bridge shut down")
        return nil
    }
    return fmt.Errorf("bridge %w", err)
}

// sleep waits one idle interval.
func (b *Bridge) sleep(ctx context.Context) error {
    t := b.clk.Timer(b.opts.IdleInterval)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
