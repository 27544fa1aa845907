package mesh

import (
    "crypto/ed25519"
    "sync"
    "time"

    "mavmesh/pkg/transport"
)

// Direction tells whether a link was opened by this node or towards it.
type Direction uint8

const (
    Outbound Direction = iota + 1
    Inbound
)

func (d Direction) String() string {
    switch d {
    case Outbound:
        return "outbound"
    case Inbound:
        return "inbound"
    default:
        return "unknown"
    }
}

type LinkStatus uint8

const (
    LinkPending LinkStatus = iota
    LinkActive
    LinkClosed
)

func (s LinkStatus) String() string {
    switch s {
    case LinkPending:
        return "pending"
    case LinkActive:
        return "active"
    default:
        return "closed"
    }
}

// LinkEventKind tags a LinkEvent.
type LinkEventKind uint8

const (
    LinkActivated LinkEventKind = iota + 1
    LinkData
    LinkClosedEvent
)

func (k LinkEventKind) String() string {
    switch k {
    case LinkActivated:
        return "activated"
    case LinkData:
        return "data"
    case LinkClosedEvent:
        return "closed"
    default:
        return "unknown"
    }
}

// LinkEvent is emitted on the out-link or in-link stream. Peer is the
// destination the link was opened to: the remote one for outbound links and
// the local one for inbound links.
type LinkEvent struct {
    Kind    LinkEventKind
    Link    LinkID
    Peer    AddressHash
    Payload []byte
}

// Announce is a verified destination announce as seen by this node.
type Announce struct {
    Destination DestinationDesc
    Hops        uint8
    AppData     []byte
    Via         transport.PeerID
}

// Link is one end of a link. Handles are shared; the node owns the state.
type Link struct {
    id   LinkID
    dest AddressHash
    dir  Direction

    // fixed once registered with a node
    neighbor transport.PeerID
    pub      ed25519.PublicKey

    mu            sync.Mutex
    status        LinkStatus
    lastInbound   time.Time
    lastKeepAlive time.Time

    activated chan struct{}
    once      sync.Once
}

// NewLink returns a pending link handle.
func NewLink(id LinkID, dest AddressHash, dir Direction) *Link {
    return &Link{id: id, dest: dest, dir: dir, activated: make(chan struct{})}
}

func (l *Link) ID() LinkID                 { return l.id }
func (l *Link) Destination() AddressHash   { return l.dest }
func (l *Link) Direction() Direction       { return l.dir }
func (l *Link) Neighbor() transport.PeerID { return l.neighbor }

func (l *Link) Status() LinkStatus {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.status
}

// activate moves a pending link to active; it reports false if the link was
// not pending.
func (l *Link) activate(now time.Time) bool {
    l.mu.Lock()
    if l.status != LinkPending {
        l.mu.Unlock()
        return false
    }
    l.status = LinkActive
    l.lastInbound = now
    l.lastKeepAlive = now
    l.mu.Unlock()
    l.once.Do(func() { close(l.activated) })
    return true
}

// close marks the link closed and returns its previous status; ok is false
// if it already was closed.
func (l *Link) close() (prev LinkStatus, ok bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    prev = l.status
    if prev == LinkClosed { return prev, false }
    l.status = LinkClosed
    return prev, true
}

func (l *Link) touch(now time.Time) {
    l.mu.Lock()
    l.lastInbound = now
    l.mu.Unlock()
}

func (l *Link) snapshot() (LinkStatus, time.Time, time.Time) {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.status, l.lastInbound, l.lastKeepAlive
}

func (l *Link) keepAliveSent(now time.Time) {
    l.mu.Lock()
    l.lastKeepAlive = now
    l.mu.Unlock()
}
