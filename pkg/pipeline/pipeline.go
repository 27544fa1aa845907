package pipeline

import (
    "context"
    "errors"
    "sync"
    "time"

    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "mavmesh/pkg/core/priocq"
    "mavmesh/pkg/observability"
    "mavmesh/pkg/peers"
    "mavmesh/pkg/protocol"
    "mavmesh/pkg/transport"
)

// Sender delivers a frame to a directly connected neighbor.
type Sender interface {
    SendBytesToPeer(ctx context.Context, neighbor transport.PeerID, b []byte) error
}

type Options struct {
    // RateBytes shapes egress per neighbor in bytes/s; 0 disables shaping.
    RateBytes int
    // MaxQueue bounds each priority class; 0 means 4096.
    MaxQueue int
}

// Pipeline wires classification → multi-level queue → a single egress worker.
// One worker keeps frames to the same neighbor in submission order within a class.
type Pipeline struct {
    q       *priocq.MultiLevelQueue
    snd     Sender
    ps      *peers.Store
    metrics *observability.Metrics
    opts    Options

    mu      sync.Mutex
    shapers map[string]*rate.Limiter
}

func New(snd Sender, ps *peers.Store, metrics *observability.Metrics, opts Options) *Pipeline {
    if opts.MaxQueue <= 0 { opts.MaxQueue = 4096 }
    return &Pipeline{
        q:       priocq.New(opts.MaxQueue),
        snd:     snd,
        ps:      ps,
        metrics: metrics,
        opts:    opts,
        shapers: make(map[string]*rate.Limiter),
    }
}

// Classify maps a mesh packet type to its priority class.
func Classify(pktType uint8) priocq.Class {
    switch pktType {
    case protocol.PktLinkRequest, protocol.PktLinkProof, protocol.PktLinkKeepAlive:
        return priocq.L0Control
    case protocol.PktLinkData, protocol.PktLinkClose:
        return priocq.L1Realtime
    default:
        return priocq.L2Bulk
    }
}

// Enqueue queues an encoded frame of the given packet type for neighbor.
func (p *Pipeline) Enqueue(neighbor transport.PeerID, pktType uint8, frame []byte) error {
    err := p.q.Enqueue(priocq.Item{
        Bytes:   frame,
        Dest:    string(neighbor),
        Size:    len(frame),
        Class:   Classify(pktType),
        Arrived: time.Now(),
    })
    if err != nil {
        p.metrics.IncDropped("queue_full")
        return err
    }
    return nil
}

// Run drains the queue until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
    for {
        it, err := p.q.Dequeue(ctx)
        if err != nil {
            if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) { return nil }
            return err
        }
        if lim := p.shaper(it.Dest); lim != nil {
            if err := lim.WaitN(ctx, min(it.Size, lim.Burst())); err != nil { return nil }
        }
        if err := p.snd.SendBytesToPeer(ctx, transport.PeerID(it.Dest), it.Bytes); err != nil {
            // no retry: a re-enqueued frame would overtake later ones
            zap.L().Debug("pipeline send failed", zap.String("peer", it.Dest), zap.String("class", it.Class.String()), zap.Error(err))
            p.metrics.IncDropped("send_failed")
            continue
        }
        if p.ps != nil { p.ps.RecordExchange(transport.PeerID(it.Dest), 0, uint64(it.Size), 0, 1) }
    }
}

// Forget drops shaping state for a neighbor that went away.
func (p *Pipeline) Forget(neighbor transport.PeerID) {
    p.mu.Lock()
    delete(p.shapers, string(neighbor))
    p.mu.Unlock()
}

func (p *Pipeline) shaper(dest string) *rate.Limiter {
    if p.opts.RateBytes <= 0 { return nil }
    p.mu.Lock()
    defer p.mu.Unlock()
    lim := p.shapers[dest]
    if lim == nil {
        lim = rate.NewLimiter(rate.Limit(p.opts.RateBytes), max(p.opts.RateBytes, 64*1024))
        p.shapers[dest] = lim
    }
    return lim
}
