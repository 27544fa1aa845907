package quic

import (
    "bufio"
    "context"
    "crypto/ed25519"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "errors"
    "math/big"
    "net"
    "sync"
    "sync/atomic"
    "time"

    quicgo "github.com/quic-go/quic-go"

    "mavmesh/pkg/transport"
)

const alpn = "mavmesh"

// Transport implements QUIC-based sessions with length-prefixed frames on a
// single bidirectional stream (opened by the dialer, accepted by the listener).
// TLS only encrypts the hop; neighbor identity is not authenticated here.
type Transport struct {
    tlsConf  *tls.Config
    quicConf *quicgo.Config
}

func New() (*Transport, error) {
    cert, err := selfSignedCert()
    if err != nil { return nil, err }
    return &Transport{
        tlsConf: &tls.Config{
            Certificates: []tls.Certificate{cert},
            NextProtos:   []string{alpn},
            MinVersion:   tls.VersionTLS13,
        },
        quicConf: &quicgo.Config{
            KeepAlivePeriod: 10 * time.Second,
            MaxIdleTimeout:  30 * time.Second,
        },
    }, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
    if err != nil { return nil, err }
    ql := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    go ql.acceptLoop(ctx)
    go func() { <-ctx.Done(); _ = ql.Close() }()
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    tlsClient := &tls.Config{
        InsecureSkipVerify: true, // self-signed per process
        NextProtos:         []string{alpn},
        MinVersion:         tls.VersionTLS13,
    }
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil { return nil, err }
    s := &session{peer: peer, c: c, establishedAt: time.Now()}
    go func() { <-ctx.Done(); _ = s.Close() }()
    return s, nil
}

// ---- Listener ----

type listener struct {
    l       *quicgo.Listener
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
        return nil, errors.New("quic listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() { close(l.closeCh) })
    return l.l.Close()
}

func (l *listener) acceptLoop(ctx context.Context) {
    for {
        c, err := l.l.Accept(ctx)
        if err != nil { return }
        raddr := c.RemoteAddr()
        s := &session{
            peer:          transport.PeerInfo{ID: transport.AddrPeerID(transport.KindQUIC, raddr), Addr: raddr.String(), Reachable: true},
            c:             c,
            inbound:       true,
            establishedAt: time.Now(),
        }
        select {
        case l.newCh <- s:
        case <-l.closeCh:
            _ = s.Close()
            return
        }
    }
}

// ---- Session/Streams ----

type session struct {
    peer    transport.PeerInfo
    c       quicgo.Connection
    inbound bool

    establishedAt time.Time
    lastSeen      atomic.Int64

    mu   sync.Mutex
    ctrl *qstream
}

func (s *session) Peer() transport.PeerInfo { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindQUIC }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

// OpenStream returns the control stream. The dialer opens it and writes an
// empty frame so the listener side can accept it before any mesh traffic.
func (s *session) OpenStream(ctx context.Context, _ transport.StreamClass) (transport.Stream, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.ctrl != nil { return s.ctrl, nil }

    var (
        qs  quicgo.Stream
        err error
    )
    if s.inbound {
        qs, err = s.c.AcceptStream(ctx)
    } else {
        qs, err = s.c.OpenStreamSync(ctx)
    }
    if err != nil { return nil, err }
    st := &qstream{qs: qs, br: bufio.NewReader(qs), bw: bufio.NewWriter(qs), parent: s}
    if !s.inbound {
        if err := st.SendBytes(nil); err != nil { return nil, err }
    }
    s.ctrl = st
    return st, nil
}

func (s *session) Quality() transport.Quality {
    return transport.Quality{
        EstablishedAt: s.establishedAt,
        LastSeen:      time.Unix(0, s.lastSeen.Load()),
    }
}

func (s *session) Close() error { return s.c.CloseWithError(0, "") }

// qstream implements transport.Stream over a QUIC bidirectional stream with u32 LE framing.
type qstream struct {
    mu     sync.Mutex
    qs     quicgo.Stream
    br     *bufio.Reader
    bw     *bufio.Writer
    parent *session
}

func (st *qstream) SendBytes(b []byte) error {
    st.mu.Lock(); defer st.mu.Unlock()
    if err := transport.WriteFrame(st.bw, b); err != nil { return err }
    st.parent.lastSeen.Store(time.Now().UnixNano())
    return nil
}

// RecvBytes skips empty frames, which only open the stream.
func (st *qstream) RecvBytes() ([]byte, error) {
    for {
        b, err := transport.ReadFrame(st.br)
        if err != nil { return nil, err }
        if len(b) == 0 { continue }
        st.parent.lastSeen.Store(time.Now().UnixNano())
        return b, nil
    }
}

func (st *qstream) Close() error { return st.qs.Close() }

// ---- Helpers ----

// selfSignedCert generates a short-lived self-signed TLS certificate for QUIC.
func selfSignedCert() (tls.Certificate, error) {
    pub, priv, err := ed25519.GenerateKey(rand.Reader)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, pub, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
