package bridge

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "mavmesh/pkg/mesh"
)

// discover reacts to announces of the target peer. With no tracked link the
// loop is idle and a matching announce opens one; with a link it ignores
// announces. The state is read from the tracker on every announce, so a
// Closed event clearing the tracker re-arms discovery.
func (b *Bridge) discover(ctx context.Context, anns *mesh.Subscription[mesh.Announce]) error {
    for {
        ann, err := anns.Recv(ctx)
        if err != nil {
            var lag *mesh.LaggedError
            if errors.As(err, &lag) {
                b.metrics.AddLagged("announces", lag.Missed)
                zap.L().Warn("announce stream lagged", zap.Error(&ChannelLagError{Stream: "announces", Missed: lag.Missed}))
                continue
            }
            if errors.Is(err, mesh.ErrClosed) { return ErrStreamClosed }
            return err
        }
        peer := ann.Destination.AddressHash
        if !b.filter.Match(peer) { continue }
        if _, established := b.tracker.Get(); established { continue }

        zap.L().Info("peer announced", zap.String("peer", peer.String()), zap.Uint8("hops", ann.Hops))
        l, err := b.mesh.Link(ctx, ann.Destination)
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            zap.L().Warn("link establishment failed", zap.Error(&MeshLinkError{Op: "link", Peer: peer, Err: err}))
            continue
        }
        b.tracker.Set(LinkHandle{ID: l.ID(), Peer: l.Destination()})
        // closed before it was tracked: the Closed event may already be consumed
        if l.Status() == mesh.LinkClosed {
            b.tracker.ClearIf(l.ID())
            continue
        }
        b.metrics.SetLinkUp(true)
        zap.L().Info("link to peer tracked", zap.String("link", l.ID().String()), zap.String("peer", peer.String()))
    }
}

// announce advertises the local destination every announce interval.
func (b *Bridge) announce(ctx context.Context) error {
    t := b.clk.Ticker(b.opts.AnnounceInterval)
    defer t.Stop()
    for {
        if err := b.mesh.Announce(ctx, b.opts.Local); err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            if errors.Is(err, mesh.ErrClosed) { return ErrStreamClosed }
            zap.L().Warn("announce failed", zap.Error(err))
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
        }
    }
}
