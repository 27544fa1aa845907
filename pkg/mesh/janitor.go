package mesh

import (
    "context"
    "time"

    "go.uber.org/zap"

    "mavmesh/pkg/protocol"
)

// janitor sends keepalives on outbound links and closes stale links.
func (n *Node) janitor(ctx context.Context) error {
    t := n.clk.Ticker(max(n.opts.KeepAlive/2, 10*time.Millisecond))
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-t.C:
            n.sweep(n.clk.Now())
        }
    }
}

func (n *Node) sweep(now time.Time) {
    for _, l := range n.snapshotLinks() {
        st, last, ka := l.snapshot()
        if st != LinkActive { continue }
        if now.Sub(last) > n.opts.StaleTime {
            zap.L().Warn("link stale", zap.String("link", l.id.String()), zap.String("dest", l.dest.String()), zap.Duration("silent", now.Sub(last)))
            n.teardown(l, true)
            continue
        }
        if l.dir == Outbound && now.Sub(ka) >= n.opts.KeepAlive {
            if err := n.send(l.neighbor, n.linkPacket(l, protocol.PktLinkKeepAlive, protocol.CtxKeepAliveRequest, nil)); err != nil {
                zap.L().Debug("keepalive failed", zap.String("link", l.id.String()), zap.Error(err))
            }
            l.keepAliveSent(now)
        }
    }
}
