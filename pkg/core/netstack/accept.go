package netstack

import (
    "context"

    "go.uber.org/zap"

    "mavmesh/pkg/transport"
)

func acceptLoop(ctx context.Context, l transport.Listener, h SessionHandler) {
    for {
        s, err := l.Accept(ctx)
        if err != nil {
            if ctx.Err() == nil {
                zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
            }
            return
        }
        zap.L().Info("inbound session", zap.String("peer", string(s.Peer().ID)), zap.String("kind", s.TransportKind().String()), zap.Stringer("raddr", s.RemoteAddr()))
        go func() {
            if err := h.HandleSession(ctx, s); err != nil && ctx.Err() == nil {
                zap.L().Info("inbound session ended", zap.String("peer", string(s.Peer().ID)), zap.Error(err))
            }
        }()
    }
}
