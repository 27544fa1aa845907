package mem

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "mavmesh/pkg/transport"
)

// Transport is an in-process transport using net.Pipe. Several mesh nodes
// share one Transport to form a network inside a single process.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
    dials     atomic.Uint64
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok {
        return nil, fmt.Errorf("mem: listener %q already exists", name)
    }
    l := &listener{name: name, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    t.listeners[name] = l
    go func() {
        <-ctx.Done()
        _ = l.Close()
        t.mu.Lock(); delete(t.listeners, name); t.mu.Unlock()
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string, peer transport.PeerInfo) (transport.Session, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, fmt.Errorf("mem: no listener %q", name) }
    c1, c2 := net.Pipe()
    local := memAddr(fmt.Sprintf("%s#%d", name, t.dials.Add(1)))
    now := time.Now()
    srv := newSession(transport.PeerInfo{ID: transport.AddrPeerID(transport.KindMem, local), Addr: string(local)}, c1, memAddr(name), local, now)
    cli := newSession(peer, c2, local, memAddr(name), now)
    select {
    case l.newCh <- srv:
    case <-l.closeCh:
        _ = cli.Close(); _ = srv.Close()
        return nil, errors.New("mem listener closed")
    case <-ctx.Done():
        _ = cli.Close(); _ = srv.Close()
        return nil, ctx.Err()
    }
    go func() { <-ctx.Done(); _ = cli.Close() }()
    return cli, nil
}

type listener struct {
    name    string
    newCh   chan *session
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("mem listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() { close(l.closeCh) })
    return nil
}

type memAddr string
func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type session struct {
    mu    sync.Mutex
    peer  transport.PeerInfo
    c     net.Conn
    br    *bufio.Reader
    bw    *bufio.Writer
    laddr memAddr
    raddr memAddr
    establishedAt time.Time
    lastSeen      atomic.Int64
}

func newSession(peer transport.PeerInfo, c net.Conn, laddr, raddr memAddr, at time.Time) *session {
    return &session{peer: peer, c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c), laddr: laddr, raddr: raddr, establishedAt: at}
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindMem }
func (s *session) LocalAddr() net.Addr { return s.laddr }
func (s *session) RemoteAddr() net.Addr { return s.raddr }

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
