package transport

import (
    "context"
    "sort"
    "sync"
    "time"

    "go.uber.org/multierr"
)

// Manager keeps at most one canonical Session per neighbor and applies a
// policy to deduplicate concurrent sessions.
type Manager struct {
    mu    sync.RWMutex
    peers map[PeerID]*peerEntry
}

type peerEntry struct {
    canonical Session
    // retired sessions are closed after a grace period
    retired []Session
}

func NewManager() *Manager { return &Manager{peers: make(map[PeerID]*peerEntry)} }

// AddSession registers a new session for a neighbor and applies the selection
// policy. If the session loses the election, it is closed and returns (false,false,nil).
// If it becomes canonical and replaced an existing one, returns (true,true,old).
// If it becomes canonical without replacement (first), returns (true,false,nil).
func (m *Manager) AddSession(ctx context.Context, s Session) (accepted bool, replaced bool, old Session, err error) {
    pid := s.Peer().ID
    m.mu.Lock()
    defer m.mu.Unlock()

    pe := m.peers[pid]
    if pe == nil {
        pe = &peerEntry{}
        m.peers[pid] = pe
    }

    if pe.canonical == nil {
        pe.canonical = s
        return true, false, nil, nil
    }

    cur := pe.canonical
    if better(s, cur) {
        pe.canonical = s
        pe.retired = append(pe.retired, cur)
        // soft close old after a grace period so in-flight frames drain
        go func(old Session) {
            select {
            case <-ctx.Done():
            case <-time.After(500 * time.Millisecond):
            }
            _ = old.Close()
        }(cur)
        return true, true, cur, nil
    }

    _ = s.Close()
    return false, false, nil, nil
}

// RemoveSession forgets s if it is still the canonical session for id.
// It reports whether anything was removed.
func (m *Manager) RemoveSession(id PeerID, s Session) bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    pe := m.peers[id]
    if pe == nil || pe.canonical != s { return false }
    delete(m.peers, id)
    return true
}

// GetSession returns the current canonical session for a neighbor (if any).
func (m *Manager) GetSession(id PeerID) Session {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if pe := m.peers[id]; pe != nil { return pe.canonical }
    return nil
}

// ClosePeer closes the canonical session for a neighbor and clears it.
func (m *Manager) ClosePeer(id PeerID) error {
    m.mu.Lock()
    pe := m.peers[id]
    delete(m.peers, id)
    m.mu.Unlock()
    return closeEntry(pe)
}

// CloseAll closes every session and empties the manager.
func (m *Manager) CloseAll() error {
    m.mu.Lock()
    peers := m.peers
    m.peers = make(map[PeerID]*peerEntry)
    m.mu.Unlock()
    var err error
    for _, pe := range peers { err = multierr.Append(err, closeEntry(pe)) }
    return err
}

func closeEntry(pe *peerEntry) error {
    if pe == nil { return nil }
    var err error
    if pe.canonical != nil { err = multierr.Append(err, pe.canonical.Close()) }
    for _, c := range pe.retired { _ = c.Close() }
    return err
}

// ListPeers returns all known neighbor IDs.
func (m *Manager) ListPeers() []PeerID {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := make([]PeerID, 0, len(m.peers))
    for id := range m.peers { out = append(out, id) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// Preference order across kinds; higher is better.
func baseRank(k Kind) int {
    switch k {
    case KindMem:
        return 120
    case KindQUIC:
        return 100
    case KindWinPipe:
        return 95
    case KindTCP:
        return 90
    case KindUDP:
        return 50
    default:
        return 0
    }
}

// better decides whether a should replace b as canonical.
func better(a, b Session) bool {
    ra := baseRank(a.TransportKind())
    rb := baseRank(b.TransportKind())
    if ra != rb { return ra > rb }

    qa := a.Quality()
    qb := b.Quality()
    if qa.RTT != qb.RTT { return qa.RTT < qb.RTT }
    // newer wins: a redial after a silent drop replaces the dead session
    return qa.EstablishedAt.After(qb.EstablishedAt)
}
