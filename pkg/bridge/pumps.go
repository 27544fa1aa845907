package bridge

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "mavmesh/pkg/endpoint"
    "mavmesh/pkg/mesh"
    "mavmesh/pkg/observability"
    "mavmesh/pkg/protocol"
)

// maxZeroReads consecutive empty reads cost one idle interval.
const maxZeroReads = 3

// inbound reads the local endpoint and sends MDU sized fragments over the
// tracked link. Nothing is read while no link is tracked.
func (b *Bridge) inbound(ctx context.Context) error {
    buf := make([]byte, b.opts.ReadBuffer)
    zeros := 0
    for {
        if err := ctx.Err(); err != nil { return err }
        if _, ok := b.tracker.Get(); !ok {
            if err := b.sleep(ctx); err != nil { return err }
            continue
        }

        n, err := b.ep.Read(buf)
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            b.metrics.IncReadErrors()
            if endpoint.IsFatal(err) { return &EndpointIoError{Op: "read", Err: err} }
            zap.L().Warn("endpoint read failed", zap.Error(err))
            if err := b.sleep(ctx); err != nil { return err }
            continue
        }
        if n == 0 {
            // a short read timeout, or a driver that keeps returning nothing after a hang-up
            if zeros++; zeros >= maxZeroReads {
                zeros = 0
                if err := b.sleep(ctx); err != nil { return err }
            }
            continue
        }
        zeros = 0

        // the link may have closed while the read was pending
        h, ok := b.tracker.Get()
        if !ok {
            zap.L().Debug("no link, dropping read", zap.Int("bytes", n))
            continue
        }
        b.forward(ctx, h, buf[:n])
    }
}

func (b *Bridge) forward(ctx context.Context, h LinkHandle, data []byte) {
    frags := protocol.Chunks(data, b.mesh.MDU())
    for _, frag := range frags {
        var err error
        if b.opts.FanOut {
            err = b.mesh.SendToAllOutLinks(ctx, frag)
        } else {
            err = b.mesh.SendLink(ctx, h.ID, frag)
        }
        if err != nil {
            b.metrics.IncSendErrors()
            zap.L().Warn("fragment dropped", zap.Error(&MeshLinkError{Op: "send", Peer: h.Peer, Link: h.ID, Err: err}))
            if errors.Is(err, mesh.ErrUnknownLink) { b.tracker.ClearIf(h.ID) }
            continue
        }
        b.metrics.IncFragments()
        b.metrics.AddBytes(observability.DirInbound, len(frag))
    }
    zap.L().Debug("forwarded to mesh", zap.Int("bytes", len(data)), zap.Int("fragments", len(frags)), zap.String("link", h.ID.String()))
}

// outbound writes the peer's payloads to the local endpoint and follows the
// link lifecycle. A lag is logged; a write failure ends the pump.
func (b *Bridge) outbound(ctx context.Context, events *mesh.Subscription[mesh.LinkEvent]) error {
    for {
        ev, err := events.Recv(ctx)
        if err != nil {
            var lag *mesh.LaggedError
            if errors.As(err, &lag) {
                b.metrics.AddLagged("link_events", lag.Missed)
                zap.L().Warn("link event stream lagged", zap.Error(&ChannelLagError{Stream: "link_events", Missed: lag.Missed}))
                continue
            }
            if errors.Is(err, mesh.ErrClosed) { return ErrStreamClosed }
            return err
        }
        if !b.filter.Match(ev.Peer) { continue }

        switch ev.Kind {
        case mesh.LinkData:
            if _, err := b.ep.Write(ev.Payload); err != nil {
                if ctx.Err() != nil { return ctx.Err() }
                return &EndpointIoError{Op: "write", Err: err}
            }
            b.metrics.AddBytes(observability.DirOutbound, len(ev.Payload))
        case mesh.LinkActivated:
            zap.L().Info("link activated", zap.String("link", ev.Link.String()), zap.String("peer", ev.Peer.String()))
            if b.responder() {
                b.tracker.Set(LinkHandle{ID: ev.Link, Peer: ev.Peer})
                b.metrics.SetLinkUp(true)
            }
        case mesh.LinkClosedEvent:
            if b.tracker.ClearIf(ev.Link) {
                b.metrics.SetLinkUp(false)
                zap.L().Info("link closed, forwarding paused", zap.String("link", ev.Link.String()), zap.String("peer", ev.Peer.String()))
            }
        }
    }
}
