package tcp

import (
    "bufio"
    "context"
    "errors"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "mavmesh/pkg/transport"
)

// Transport implements a stream-based TCP transport with length-prefixed frames (u32 LE).
type Transport struct {
    // KeepAlive is the TCP keepalive period; zero uses the OS default.
    KeepAlive time.Duration
}

func New() *Transport { return &Transport{KeepAlive: 15 * time.Second} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    lc := net.ListenConfig{KeepAlive: t.KeepAlive}
    l, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    tl := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    go tl.acceptLoop()
    go func() { <-ctx.Done(); _ = tl.Close() }()
    return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    d := &net.Dialer{KeepAlive: t.KeepAlive, Timeout: 10 * time.Second}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    s := newSession(peer, c)
    go func() { <-ctx.Done(); _ = s.Close() }()
    return s, nil
}

type listener struct {
    l       net.Listener
    newCh   chan *session
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("tcp listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() { close(l.closeCh) })
    return l.l.Close()
}

func (l *listener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil { return }
        peer := transport.PeerInfo{ID: transport.AddrPeerID(transport.KindTCP, c.RemoteAddr()), Addr: c.RemoteAddr().String(), Reachable: true}
        s := newSession(peer, c)
        select {
        case l.newCh <- s:
        case <-l.closeCh:
            _ = s.Close()
            return
        }
    }
}

type session struct {
    mu   sync.Mutex
    peer transport.PeerInfo
    c    net.Conn
    br   *bufio.Reader
    bw   *bufio.Writer
    establishedAt time.Time
    lastSeen      atomic.Int64
}

func newSession(peer transport.PeerInfo, c net.Conn) *session {
    return &session{peer: peer, c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c), establishedAt: time.Now()}
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindTCP }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func (s *session) OpenStream(_ context.Context, _ transport.StreamClass) (transport.Stream, error) { return s, nil }
func (s *session) Quality() transport.Quality {
    return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: time.Unix(0, s.lastSeen.Load())}
}
func (s *session) Close() error { return s.c.Close() }

func (s *session) SendBytes(b []byte) error {
    s.mu.Lock(); defer s.mu.Unlock()
    if err := transport.WriteFrame(s.bw, b); err != nil { return err }
    s.lastSeen.Store(time.Now().UnixNano())
    return nil
}

func (s *session) RecvBytes() ([]byte, error) {
    b, err := transport.ReadFrame(s.br)
    if err != nil { return nil, err }
    s.lastSeen.Store(time.Now().UnixNano())
    return b, nil
}
