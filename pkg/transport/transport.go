package transport

import (
    "context"
    "net"
    "time"
)

// Kind identifies transport/link type for policy decisions.
type Kind int

const (
    KindUnknown Kind = iota
    KindQUIC
    KindTCP
    KindUDP
    KindWinPipe
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindQUIC:
        return "quic"
    case KindTCP:
        return "tcp"
    case KindUDP:
        return "udp"
    case KindWinPipe:
        return "winpipe"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// StreamClass labels streams within a session. Mesh traffic uses a single
// control stream so packet order per neighbor is preserved.
type StreamClass int

const (
    StreamControl StreamClass = iota
)

// PeerID is an opaque stable neighbor identity (address based or key based).
type PeerID string

// PeerInfo bundles peer identity and addressing hints.
type PeerInfo struct {
    ID        PeerID
    Addr      string // transport-dependent address string
    Reachable bool   // best-effort reachability
}

// Quality captures link quality metrics used by the manager to rank sessions.
type Quality struct {
    RTT           time.Duration
    EstablishedAt time.Time
    LastSeen      time.Time
}

// Stream is a bidirectional frame stream.
// Exactly one reader and one writer goroutine are expected.
type Stream interface {
    // SendBytes sends one frame.
    SendBytes([]byte) error
    // RecvBytes receives the next frame.
    RecvBytes() ([]byte, error)
    Close() error
}

// Session represents a canonical connection to a neighbor.
type Session interface {
    Peer() PeerInfo
    TransportKind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr

    // OpenStream opens/returns the stream of the given class. Transports without
    // multiplexing return a single shared stream for all classes.
    OpenStream(ctx context.Context, cls StreamClass) (Stream, error)

    // Quality snapshot for ranking/monitoring.
    Quality() Quality

    // Close closes the entire session.
    Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    // Addr returns the local listening address.
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
    Kind() Kind
    // Listen starts accepting inbound sessions on address (transport-specific format).
    Listen(ctx context.Context, address string) (Listener, error)
    // Dial creates an outbound session to a peer/address.
    Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
