package netstack

import (
    "context"
    "sync"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "mavmesh/pkg/config"
    "mavmesh/pkg/transport"
    "mavmesh/pkg/transport/mem"
    tquic "mavmesh/pkg/transport/quic"
    ttcp "mavmesh/pkg/transport/tcp"
    "mavmesh/pkg/transport/udp"
)

// SessionHandler takes ownership of an established session and returns when
// it has ended.
type SessionHandler interface {
    HandleSession(ctx context.Context, s transport.Session) error
}

type Options struct {
    BackoffInitial time.Duration
    BackoffMax     time.Duration
    BackoffJitter  time.Duration
    // Transports overrides kinds by name, e.g. a mem transport shared by
    // several in-process nodes.
    Transports map[string]transport.Transport
}

// OptionsFromConfig maps dialer tuning from config.
func OptionsFromConfig(n config.NetConfig) Options {
    return Options{BackoffInitial: n.BackoffInitial(), BackoffMax: n.BackoffMax(), BackoffJitter: n.BackoffJitter()}
}

// Stack tracks running listeners and dialers.
type Stack struct {
    mu              sync.Mutex
    closers         []func()
    activeDials     atomic.Int64
    activeListeners atomic.Int64
    wg              sync.WaitGroup
}

func (s *Stack) ActiveDials() int64     { return s.activeDials.Load() }
func (s *Stack) ActiveListeners() int64 { return s.activeListeners.Load() }

// Close stops listeners and waits for accept and dial loops; cancel the ctx
// passed to StartFromConfig first so dialers stop redialing.
func (s *Stack) Close() {
    s.mu.Lock()
    for i := len(s.closers) - 1; i >= 0; i-- { s.closers[i]() }
    s.closers = nil
    s.mu.Unlock()
    s.wg.Wait()
}

func (s *Stack) addCloser(f func()) { s.mu.Lock(); s.closers = append(s.closers, f); s.mu.Unlock() }

// StartFromConfig builds transports per config, starts listeners and dialers,
// and hands every session to h. Background loops stop when ctx is canceled.
func StartFromConfig(ctx context.Context, cfg []config.TransportConfig, h SessionHandler, opts Options) (*Stack, error) {
    st := &Stack{}
    for _, tc := range cfg {
        tr, err := opts.transportFor(tc.Kind)
        if err != nil {
            zap.L().Warn("transport kind not available", zap.String("kind", tc.Kind), zap.Error(err))
            continue
        }

        for _, addr := range tc.Listen {
            l, err := tr.Listen(ctx, addr)
            if err != nil {
                zap.L().Error("listen failed", zap.String("kind", tr.Kind().String()), zap.String("addr", addr), zap.Error(err))
                continue
            }
            zap.L().Info("listening", zap.String("kind", tr.Kind().String()), zap.String("addr", l.Addr().String()))
            st.addCloser(func() { _ = l.Close() })
            st.activeListeners.Add(1)
            st.wg.Add(1)
            go func() {
                defer st.wg.Done()
                defer st.activeListeners.Add(-1)
                acceptLoop(ctx, l, h)
            }()
        }

        for _, d := range tc.Dial {
            d := d
            st.activeDials.Add(1)
            st.wg.Add(1)
            go func() {
                defer st.wg.Done()
                defer st.activeDials.Add(-1)
                dialLoop(ctx, tr, h, d, opts)
            }()
        }
    }
    return st, nil
}

func (o Options) transportFor(kind string) (transport.Transport, error) {
    if tr, ok := o.Transports[kind]; ok { return tr, nil }
    return NewByKind(kind)
}

// NewByKind constructs a Transport by string kind.
func NewByKind(kind string) (transport.Transport, error) {
    switch kind {
    case "udp":
        return udp.New(), nil
    case "tcp":
        return ttcp.New(), nil
    case "quic":
        return tquic.New()
    case "mem", "inproc":
        return mem.New(), nil
    case "winpipe", "pipe":
        return newWinPipeTransport()
    default:
        return nil, ErrUnknownKind(kind)
    }
}

// ErrUnknownKind reports an unsupported transport kind.
type ErrUnknownKind string
func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
