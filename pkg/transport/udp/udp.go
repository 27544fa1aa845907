package udp

import (
    "context"
    "errors"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "mavmesh/pkg/transport"
)

// ErrClosed is returned by streams of a closed session.
var ErrClosed = errors.New("udp session closed")

// maxDatagram is the receive buffer per datagram.
const maxDatagram = 64 * 1024

// Transport implements a datagram transport carrying one mesh packet per
// datagram. It has no multiplexing; one logical stream per remote address.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindUDP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    laddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.ListenUDP("udp", laddr)
    if err != nil { return nil, err }
    ul := &listener{
        conn:     c,
        sessions: make(map[string]*session),
        newCh:    make(chan *session, 8),
        closeCh:  make(chan struct{}),
    }
    go ul.readLoop()
    go func() { <-ctx.Done(); _ = ul.Close() }()
    return ul, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    raddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.DialUDP("udp", nil, raddr)
    if err != nil { return nil, err }
    s := newSession(peer, c, raddr, true)
    go s.recvLoop()
    go func() { <-ctx.Done(); _ = s.Close() }()
    return s, nil
}

// ---- Listener/demux ----

type listener struct {
    conn     *net.UDPConn
    mu       sync.Mutex
    sessions map[string]*session
    newCh    chan *session
    closeCh  chan struct{}
    once     sync.Once
}

func (l *listener) Addr() net.Addr { return l.conn.LocalAddr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("udp listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() { close(l.closeCh) })
    l.mu.Lock()
    for _, s := range l.sessions { s.markClosed() }
    l.sessions = map[string]*session{}
    l.mu.Unlock()
    return l.conn.Close()
}

func (l *listener) forget(key string, s *session) {
    l.mu.Lock()
    if l.sessions[key] == s { delete(l.sessions, key) }
    l.mu.Unlock()
}

func (l *listener) readLoop() {
    buf := make([]byte, maxDatagram)
    for {
        n, raddr, err := l.conn.ReadFromUDP(buf)
        if err != nil { return }
        key := raddr.String()
        l.mu.Lock()
        s, ok := l.sessions[key]
        if !ok {
            peer := transport.PeerInfo{ID: transport.AddrPeerID(transport.KindUDP, raddr), Addr: key, Reachable: true}
            s = newSession(peer, l.conn, raddr, false)
            s.onClose = func() { l.forget(key, s) }
            select {
            case l.newCh <- s:
                l.sessions[key] = s
            default:
                // accept backlog full; drop the datagram, the sender retries
                l.mu.Unlock()
                continue
            }
        }
        l.mu.Unlock()
        s.deliver(append([]byte(nil), buf[:n]...))
    }
}

// ---- Session/Stream ----

type session struct {
    peer     transport.PeerInfo
    conn     *net.UDPConn
    raddr    *net.UDPAddr
    outbound bool // owns the socket
    rxCh     chan []byte
    closed   chan struct{}
    once     sync.Once
    onClose  func()

    establishedAt time.Time
    lastSeen      atomic.Int64
}

func newSession(peer transport.PeerInfo, c *net.UDPConn, raddr *net.UDPAddr, outbound bool) *session {
    return &session{
        peer:          peer,
        conn:          c,
        raddr:         raddr,
        outbound:      outbound,
        rxCh:          make(chan []byte, 64),
        closed:        make(chan struct{}),
        establishedAt: time.Now(),
    }
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindUDP }
func (s *session) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.raddr }

func (s *session) OpenStream(_ context.Context, _ transport.StreamClass) (transport.Stream, error) { return s, nil }

func (s *session) Quality() transport.Quality {
    return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: time.Unix(0, s.lastSeen.Load())}
}

// deliver queues an inbound datagram; drops when the reader is behind.
func (s *session) deliver(pkt []byte) {
    select {
    case s.rxCh <- pkt:
    case <-s.closed:
    default:
    }
}

func (s *session) recvLoop() {
    buf := make([]byte, maxDatagram)
    for {
        n, err := s.conn.Read(buf)
        if err != nil {
            s.markClosed()
            return
        }
        s.deliver(append([]byte(nil), buf[:n]...))
    }
}

func (s *session) markClosed() { s.once.Do(func() { close(s.closed) }) }

func (s *session) Close() error {
    s.markClosed()
    if s.onClose != nil { s.onClose() }
    if s.outbound { return s.conn.Close() }
    return nil
}

func (s *session) SendBytes(b []byte) error {
    select {
    case <-s.closed:
        return ErrClosed
    default:
    }
    var err error
    if s.outbound {
        _, err = s.conn.Write(b)
    } else {
        _, err = s.conn.WriteToUDP(b, s.raddr)
    }
    if err == nil { s.lastSeen.Store(time.Now().UnixNano()) }
    return err
}

func (s *session) RecvBytes() ([]byte, error) {
    select {
    case pkt := <-s.rxCh:
        s.lastSeen.Store(time.Now().UnixNano())
        return pkt, nil
    case <-s.closed:
        return nil, ErrClosed
    }
}
