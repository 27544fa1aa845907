package mesh

import (
    "context"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/golang-lru/v2/expirable"
    "go.uber.org/multierr"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"
    "golang.org/x/sync/singleflight"
    "golang.org/x/time/rate"

    "mavmesh/pkg/config"
    "mavmesh/pkg/handshake"
    "mavmesh/pkg/memkv"
    "mavmesh/pkg/observability"
    "mavmesh/pkg/peers"
    "mavmesh/pkg/pipeline"
    "mavmesh/pkg/protocol"
    "mavmesh/pkg/protocol/codec"
    "mavmesh/pkg/router"
    "mavmesh/pkg/transport"
)

// DefaultMTU is the largest frame handed to a neighbor session.
const DefaultMTU = 500

// announces older than the verification skew window are rejected anyway
const dedupTTL = 5 * time.Minute

type Options struct {
    MTU              int
    TransportEnabled bool
    MaxHops          int
    AnnounceRate     float64
    AnnounceBurst    int
    LinkTimeout      time.Duration
    KeepAlive        time.Duration
    StaleTime        time.Duration
    PathTTL          time.Duration
    EventBuffer      int
    DedupSize        int
    EgressRateBytes  int

    Metrics *observability.Metrics
    Clock   clock.Clock
}

// OptionsFromConfig maps mesh config onto node options.
func OptionsFromConfig(c config.MeshConfig) Options {
    return Options{
        MTU:              c.MTU,
        TransportEnabled: c.TransportEnabled,
        MaxHops:          c.MaxHops,
        AnnounceRate:     c.AnnounceRate,
        AnnounceBurst:    c.AnnounceBurst,
        LinkTimeout:      c.LinkTimeout(),
        KeepAlive:        c.KeepAlive(),
        StaleTime:        c.StaleTime(),
        PathTTL:          c.PathTTL(),
        EventBuffer:      c.EventBuffer,
        DedupSize:        c.DedupSize,
        EgressRateBytes:  c.EgressRateBytes,
    }
}

func (o Options) withDefaults() Options {
    if o.MTU <= protocol.HeaderSize { o.MTU = DefaultMTU }
    if o.MaxHops <= 0 { o.MaxHops = 32 }
    if o.AnnounceRate <= 0 { o.AnnounceRate = 20 }
    if o.AnnounceBurst <= 0 { o.AnnounceBurst = 40 }
    if o.LinkTimeout <= 0 { o.LinkTimeout = 10 * time.Second }
    if o.KeepAlive <= 0 { o.KeepAlive = 5 * time.Second }
    if o.StaleTime <= o.KeepAlive { o.StaleTime = 4 * o.KeepAlive }
    if o.PathTTL <= 0 { o.PathTTL = 10 * time.Minute }
    if o.EventBuffer <= 0 { o.EventBuffer = 256 }
    if o.DedupSize <= 0 { o.DedupSize = 4096 }
    if o.Clock == nil { o.Clock = clock.New() }
    return o
}

// Node is a mesh participant. Sessions handed to HandleSession become
// neighbors; Run drives egress and link maintenance.
type Node struct {
    opts    Options
    clk     clock.Clock
    metrics *observability.Metrics

    reg      *codec.Registry
    kv       *memkv.Store
    ps       *peers.Store
    mgr      *transport.Manager
    rt       *router.Router
    pl       *pipeline.Pipeline
    dedup    *expirable.LRU[[16]byte, struct{}]
    relayLim *rate.Limiter
    sf       singleflight.Group

    mu    sync.RWMutex
    dests map[AddressHash]*Destination
    links map[LinkID]*Link

    announces *Broadcast[Announce]
    outEvents *Broadcast[LinkEvent]
    inEvents  *Broadcast[LinkEvent]

    closed atomic.Bool
}

func New(opts Options) (*Node, error) {
    opts = opts.withDefaults()
    reg, err := protocol.DefaultRegistry()
    if err != nil { return nil, err }
    kv := memkv.New(memkv.Options{Now: opts.Clock.Now})
    ps := peers.NewStore(kv)
    mgr := transport.NewManager()
    rt := router.New(ps, mgr)
    n := &Node{
        opts:      opts,
        clk:       opts.Clock,
        metrics:   opts.Metrics,
        reg:       reg,
        kv:        kv,
        ps:        ps,
        mgr:       mgr,
        rt:        rt,
        pl:        pipeline.New(rt, ps, opts.Metrics, pipeline.Options{RateBytes: opts.EgressRateBytes}),
        dedup:     expirable.NewLRU[[16]byte, struct{}](opts.DedupSize, nil, dedupTTL),
        relayLim:  rate.NewLimiter(rate.Limit(opts.AnnounceRate), opts.AnnounceBurst),
        dests:     make(map[AddressHash]*Destination),
        links:     make(map[LinkID]*Link),
        announces: NewBroadcast[Announce](opts.EventBuffer),
        outEvents: NewBroadcast[LinkEvent](opts.EventBuffer),
        inEvents:  NewBroadcast[LinkEvent](opts.EventBuffer),
    }
    return n, nil
}

// MDU is the largest payload SendLink accepts.
func (n *Node) MDU() int { return n.opts.MTU - protocol.HeaderSize }

// Run drives the egress pipeline and the link janitor until ctx is done.
func (n *Node) Run(ctx context.Context) error {
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error { return n.pl.Run(gctx) })
    g.Go(func() error { return n.janitor(gctx) })
    return g.Wait()
}

// Close tears down local links, ends event streams and closes every session.
func (n *Node) Close() error {
    if n.closed.Swap(true) { return nil }
    for _, l := range n.snapshotLinks() { n.teardown(l, false) }
    n.announces.Close()
    n.outEvents.Close()
    n.inEvents.Close()
    err := n.mgr.CloseAll()
    n.kv.Close()
    return err
}

// AddDestination registers a local destination so links to it are accepted.
func (n *Node) AddDestination(d *Destination) {
    n.mu.Lock()
    _, known := n.dests[d.AddressHash()]
    n.dests[d.AddressHash()] = d
    n.mu.Unlock()
    if !known {
        zap.L().Info("destination registered", zap.String("dest", d.AddressHash().String()), zap.String("name", d.Desc().Name.String()))
    }
}

func (n *Node) localDestination(h AddressHash) *Destination {
    n.mu.RLock()
    defer n.mu.RUnlock()
    return n.dests[h]
}

// Announce floods a signed announce for dest to every neighbor.
func (n *Node) Announce(ctx context.Context, dest *Destination) error {
    if n.closed.Load() { return ErrClosed }
    if err := ctx.Err(); err != nil { return err }
    n.AddDestination(dest)
    name := dest.Desc().Name
    a, err := handshake.BuildAnnounce(dest.priv, name.App, name.Aspects, dest.AppData)
    if err != nil { return fmt.Errorf("build announce: %w", err) }
    pkt, err := n.packet(protocol.PktAnnounce, [16]byte(dest.AddressHash()), a)
    if err != nil { return err }
    // our own announce echoed back by a neighbor is a duplicate
    n.dedup.Add(pkt.Hash(), struct{}{})
    var errs error
    for _, nb := range n.rt.Neighbors() {
        errs = multierr.Append(errs, n.send(nb, pkt))
    }
    zap.L().Debug("announced", zap.String("dest", dest.AddressHash().String()))
    return errs
}

// Announces subscribes to verified announces heard from now on.
func (n *Node) Announces() *Subscription[Announce] { return n.announces.Subscribe() }

// OutLinkEvents subscribes to events of links this node opened.
func (n *Node) OutLinkEvents() *Subscription[LinkEvent] { return n.outEvents.Subscribe() }

// InLinkEvents subscribes to events of links opened towards local destinations.
func (n *Node) InLinkEvents() *Subscription[LinkEvent] { return n.inEvents.Subscribe() }

// Link returns an active outbound link to desc, opening one if needed.
// Concurrent calls for the same destination share one establishment.
func (n *Node) Link(ctx context.Context, desc DestinationDesc) (*Link, error) {
    if n.closed.Load() { return nil, ErrClosed }
    if l := n.activeOutLink(desc.AddressHash); l != nil { return l, nil }
    v, err, _ := n.sf.Do(desc.AddressHash.String(), func() (any, error) {
        if l := n.activeOutLink(desc.AddressHash); l != nil { return l, nil }
        return n.openLink(ctx, desc)
    })
    if err != nil { return nil, err }
    return v.(*Link), nil
}

func (n *Node) openLink(ctx context.Context, desc DestinationDesc) (*Link, error) {
    next, hops, ok := n.rt.NextHopFor(desc.AddressHash.String())
    if !ok { return nil, ErrNoPath }

    l := NewLink(NewLinkID(), desc.AddressHash, Outbound)
    l.neighbor = next
    l.pub = desc.Identity
    n.mu.Lock()
    n.links[l.id] = l
    n.mu.Unlock()

    req := handshake.BuildLinkRequest(l.id[:], desc.AddressHash[:])
    pkt, err := n.packet(protocol.PktLinkRequest, [16]byte(desc.AddressHash), req)
    if err == nil { err = n.send(next, pkt) }
    if err != nil {
        n.teardown(l, false)
        return nil, fmt.Errorf("link request: %w", err)
    }
    zap.L().Info("link requested", zap.String("link", l.id.String()), zap.String("dest", desc.AddressHash.String()), zap.String("via", string(next)), zap.Uint8("hops", hops))

    timer := n.clk.Timer(n.opts.LinkTimeout)
    defer timer.Stop()
    select {
    case <-l.activated:
        return l, nil
    case <-timer.C:
        n.teardown(l, false)
        return nil, ErrLinkTimeout
    case <-ctx.Done():
        n.teardown(l, false)
        return nil, ctx.Err()
    }
}

func (n *Node) activeOutLink(dest AddressHash) *Link {
    n.mu.RLock()
    defer n.mu.RUnlock()
    for _, l := range n.links {
        if l.dir == Outbound && l.dest == dest && l.Status() == LinkActive { return l }
    }
    return nil
}

// FindLink looks up a local link end.
func (n *Node) FindLink(id LinkID) (*Link, bool) {
    n.mu.RLock()
    defer n.mu.RUnlock()
    l, ok := n.links[id]
    return l, ok
}

func (n *Node) snapshotLinks() []*Link {
    n.mu.RLock()
    defer n.mu.RUnlock()
    out := make([]*Link, 0, len(n.links))
    for _, l := range n.links { out = append(out, l) }
    return out
}

// SendLink sends one payload of at most MDU bytes over an active link.
func (n *Node) SendLink(ctx context.Context, id LinkID, data []byte) error {
    if n.closed.Load() { return ErrClosed }
    if err := ctx.Err(); err != nil { return err }
    if len(data) > n.MDU() { return ErrPayloadTooLarge }
    l, ok := n.FindLink(id)
    if !ok { return ErrUnknownLink }
    if l.Status() != LinkActive { return ErrLinkNotActive }
    pkt := n.linkPacket(l, protocol.PktLinkData, protocol.CtxNone, data)
    return n.send(l.neighbor, pkt)
}

// SendToAllOutLinks sends data over every active outbound link.
func (n *Node) SendToAllOutLinks(ctx context.Context, data []byte) error {
    var errs error
    for _, l := range n.snapshotLinks() {
        if l.dir != Outbound || l.Status() != LinkActive { continue }
        if err := n.SendLink(ctx, l.id, data); err != nil {
            errs = multierr.Append(errs, fmt.Errorf("link %s: %w", l.id, err))
        }
    }
    return errs
}

// CloseLink tears a local link down and tells the other end.
func (n *Node) CloseLink(ctx context.Context, id LinkID) error {
    if err := ctx.Err(); err != nil { return err }
    l, ok := n.FindLink(id)
    if !ok { return ErrUnknownLink }
    n.teardown(l, true)
    return nil
}

// Neighbors lists neighbors with a live session.
func (n *Node) Neighbors() []transport.PeerID { return n.rt.Neighbors() }

// Paths lists the learned path table.
func (n *Node) Paths() []peers.Path { return n.ps.ListPaths() }

// teardown removes a link, optionally sending a close packet, and emits
// Closed if the link had been active.
func (n *Node) teardown(l *Link, notify bool) {
    prev, ok := l.close()
    if !ok { return }
    n.mu.Lock()
    delete(n.links, l.id)
    n.mu.Unlock()
    if prev != LinkActive { return }
    if notify {
        if err := n.send(l.neighbor, n.linkPacket(l, protocol.PktLinkClose, protocol.CtxNone, nil)); err != nil {
            zap.L().Debug("link close not sent", zap.String("link", l.id.String()), zap.Error(err))
        }
    }
    n.metrics.AddLinks(l.dir.String(), -1)
    zap.L().Info("link closed", zap.String("link", l.id.String()), zap.String("dest", l.dest.String()), zap.Stringer("direction", l.dir))
    n.events(l.dir).Send(LinkEvent{Kind: LinkClosedEvent, Link: l.id, Peer: l.dest})
}

func (n *Node) events(d Direction) *Broadcast[LinkEvent] {
    if d == Inbound { return n.inEvents }
    return n.outEvents
}

func (n *Node) packet(typ uint8, dest [16]byte, body any) (protocol.Packet, error) {
    h := protocol.Header{Version: protocol.Version, Type: typ, Dest: dest}
    pkt, err := protocol.NewPacketWithBody(h, protocol.FormatCBOR, body, n.reg)
    if err != nil { return pkt, fmt.Errorf("encode %s: %w", protocol.TypeName(typ), err) }
    return pkt, nil
}

func (n *Node) linkPacket(l *Link, typ, ctxByte uint8, payload []byte) protocol.Packet {
    pkt := protocol.Packet{
        Header:  protocol.Header{Version: protocol.Version, Type: typ, Context: ctxByte, Dest: [16]byte(l.id)},
        Payload: payload,
    }
    if l.dir == Inbound { pkt.SetFlag(protocol.FlagFromTarget, true) }
    return pkt
}

// send queues pkt for a neighbor on the egress pipeline.
func (n *Node) send(neighbor transport.PeerID, pkt protocol.Packet) error {
    frame, err := pkt.EncodeFrame()
    if err != nil { return err }
    if err := n.pl.Enqueue(neighbor, pkt.Header.Type, frame); err != nil {
        return fmt.Errorf("enqueue to %s: %w", neighbor, err)
    }
    n.metrics.IncPacket("tx", protocol.TypeName(pkt.Header.Type))
    return nil
}
