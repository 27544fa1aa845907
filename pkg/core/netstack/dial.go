package netstack

import (
    "context"
    "math/rand"
    "time"

    "go.uber.org/zap"

    "mavmesh/pkg/config"
    "mavmesh/pkg/transport"
)

// dialLoop keeps one session to d alive, redialing with exponential backoff.
func dialLoop(ctx context.Context, tr transport.Transport, h SessionHandler, d config.PeerDialConfig, opts Options) {
    pid := transport.PeerID(d.PeerID)
    if pid == "" { pid = transport.DialPeerID(tr.Kind(), d.Address) }
    peer := transport.PeerInfo{ID: pid, Addr: d.Address}

    initial := opts.BackoffInitial
    if initial <= 0 { initial = 500 * time.Millisecond }
    maxBackoff := opts.BackoffMax
    if maxBackoff <= 0 { maxBackoff = 30 * time.Second }
    backoff := initial

    for ctx.Err() == nil {
        sess, err := tr.Dial(ctx, d.Address, peer)
        if err != nil {
            zap.L().Warn("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", d.Address), zap.Duration("retry_in", backoff), zap.Error(err))
            if !sleep(ctx, withJitter(backoff, opts.BackoffJitter)) { return }
            backoff = min(backoff*2, maxBackoff)
            continue
        }
        backoff = initial
        zap.L().Info("dialed", zap.String("kind", tr.Kind().String()), zap.String("addr", d.Address), zap.String("peer", string(pid)))
        started := time.Now()
        err = h.HandleSession(ctx, sess)
        if ctx.Err() != nil { return }
        zap.L().Info("session ended, redialing", zap.String("addr", d.Address), zap.Duration("lifetime", time.Since(started)), zap.Error(err))
        // a session that died immediately counts as a failed dial
        if time.Since(started) < initial {
            if !sleep(ctx, withJitter(backoff, opts.BackoffJitter)) { return }
            backoff = min(backoff*2, maxBackoff)
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func withJitter(d, jitter time.Duration) time.Duration {
    if jitter <= 0 { return d }
    return d + time.Duration(rand.Int63n(int64(jitter)))
}
