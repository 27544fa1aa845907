package peers

import (
    "encoding/json"
    "sort"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "mavmesh/pkg/memkv"
    "mavmesh/pkg/transport"
)

// Store persists neighbor metadata and the destination path table in the
// in-memory KV.
type Store struct {
    kv  *memkv.Store
    now func() time.Time
    // lightweight index of known neighbor IDs
    idxMu        sync.RWMutex
    neighborIdx  map[transport.PeerID]struct{}
    neighborTTL  time.Duration
}

func NewStore(kv *memkv.Store) *Store {
    return &Store{kv: kv, now: time.Now, neighborIdx: make(map[transport.PeerID]struct{}), neighborTTL: defaultNeighborTTL}
}

// NeighborMeta describes a directly connected mesh neighbor.
type NeighborMeta struct {
    ID        transport.PeerID `json:"id"`
    Kind      string           `json:"kind,omitempty"`
    Addr      string           `json:"addr,omitempty"`
    Connected bool             `json:"connected"`
    Since     int64            `json:"since_unix_ms"`
    LastSeen  int64            `json:"last_seen_unix_ms"`
    RTTms     uint32           `json:"rtt_ms"`
    // Counters
    MsgsIn   uint64 `json:"msgs_in"`
    MsgsOut  uint64 `json:"msgs_out"`
    BytesIn  uint64 `json:"bytes_in"`
    BytesOut uint64 `json:"bytes_out"`
}

// Path is the learned route to a destination: which neighbor the announce
// arrived through and how many hops away the destination is.
type Path struct {
    Dest     string           `json:"dest"` // destination hash, hex
    NextHop  transport.PeerID `json:"next_hop"`
    Hops     uint8            `json:"hops"`
    Updated  int64            `json:"updated_unix_ms"`
}

const (
    prefixNeighbor = "nb:"
    prefixPath     = "path:"
)

func keyNeighbor(id transport.PeerID) string { return prefixNeighbor + string(id) }
func keyPath(dest string) string             { return prefixPath + strings.ToLower(dest) }

// UpsertNeighbor records a connected neighbor session.
func (s *Store) UpsertNeighbor(id transport.PeerID, kind, addr string, q transport.Quality) {
    now := s.now()
    meta := NeighborMeta{ID: id, Kind: kind, Addr: addr, Connected: true, Since: now.UnixMilli(), LastSeen: now.UnixMilli()}
    if q.RTT > 0 { meta.RTTms = uint32(q.RTT / time.Millisecond) }
    if !q.EstablishedAt.IsZero() { meta.Since = q.EstablishedAt.UnixMilli() }
    b, _ := json.Marshal(meta)
    s.kv.Set(keyNeighbor(id), b, s.neighborTTL)
    s.idxMu.Lock(); s.neighborIdx[id] = struct{}{}; s.idxMu.Unlock()
    zap.L().Debug("neighbor upsert", zap.String("peer", string(id)), zap.String("kind", kind), zap.String("addr", addr))
}

func (s *Store) Neighbor(id transport.PeerID) (NeighborMeta, bool) {
    b, ok := s.kv.Get(keyNeighbor(id))
    if !ok { return NeighborMeta{}, false }
    var nm NeighborMeta
    if err := json.Unmarshal(b, &nm); err != nil { return NeighborMeta{}, false }
    return nm, true
}

// RecordExchange updates last-seen and message/byte counters for a neighbor.
func (s *Store) RecordExchange(id transport.PeerID, inBytes, outBytes, inMsgs, outMsgs uint64) {
    now := s.now().UnixMilli()
    ok := s.kv.Update(keyNeighbor(id), func(old []byte) []byte {
        var nm NeighborMeta
        _ = json.Unmarshal(old, &nm)
        nm.MsgsIn += inMsgs
        nm.MsgsOut += outMsgs
        nm.BytesIn += inBytes
        nm.BytesOut += outBytes
        if inMsgs > 0 { nm.LastSeen = now }
        b, _ := json.Marshal(nm)
        return b
    })
    if ok { _ = s.kv.Expire(keyNeighbor(id), s.neighborTTL) }
}

// MarkDisconnected keeps the neighbor entry for inspection until it expires.
func (s *Store) MarkDisconnected(id transport.PeerID) {
    _ = s.kv.Update(keyNeighbor(id), func(old []byte) []byte {
        var nm NeighborMeta
        _ = json.Unmarshal(old, &nm)
        nm.Connected = false
        b, _ := json.Marshal(nm)
        return b
    })
    zap.L().Info("neighbor disconnected", zap.String("peer", string(id)))
}

// DeleteNeighbor removes neighbor meta and every path through it.
func (s *Store) DeleteNeighbor(id transport.PeerID) int {
    _ = s.kv.Delete(keyNeighbor(id))
    s.idxMu.Lock(); delete(s.neighborIdx, id); s.idxMu.Unlock()
    return s.DropPathsVia(id)
}

// ListNeighbors returns a sorted snapshot of known neighbor IDs.
func (s *Store) ListNeighbors() []transport.PeerID {
    s.idxMu.RLock(); defer s.idxMu.RUnlock()
    out := make([]transport.PeerID, 0, len(s.neighborIdx))
    for id := range s.neighborIdx { out = append(out, id) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// LearnPath stores the route to dest via neighbor. An existing live path is
// replaced when the new one is not longer, or when it comes from the same
// neighbor (the destination moved further away on that branch).
func (s *Store) LearnPath(dest string, via transport.PeerID, hops uint8, ttl time.Duration) (Path, bool) {
    np := Path{Dest: strings.ToLower(dest), NextHop: via, Hops: hops, Updated: s.now().UnixMilli()}
    if cur, ok := s.GetPath(dest); ok && cur.NextHop != via && cur.Hops < hops {
        zap.L().Debug("path ignored (longer)", zap.String("dest", dest), zap.Uint8("hops", hops), zap.Uint8("have", cur.Hops))
        return cur, false
    }
    b, _ := json.Marshal(np)
    s.kv.Set(keyPath(dest), b, ttl)
    zap.L().Debug("path learned", zap.String("dest", dest), zap.String("via", string(via)), zap.Uint8("hops", hops))
    return np, true
}

// GetPath returns the live path for dest, if any.
func (s *Store) GetPath(dest string) (Path, bool) {
    b, ok := s.kv.Get(keyPath(dest))
    if !ok { return Path{}, false }
    var p Path
    if err := json.Unmarshal(b, &p); err != nil { return Path{}, false }
    return p, true
}

func (s *Store) DropPath(dest string) bool { return s.kv.Delete(keyPath(dest)) }

// DropPathsVia removes every path whose next hop is neighbor. Returns the count.
func (s *Store) DropPathsVia(neighbor transport.PeerID) int {
    var stale []string
    s.kv.Scan(prefixPath, func(key string, val []byte) bool {
        var p Path
        if json.Unmarshal(val, &p) == nil && p.NextHop == neighbor { stale = append(stale, key) }
        return true
    })
    for _, k := range stale { _ = s.kv.Delete(k) }
    if len(stale) > 0 {
        zap.L().Info("paths dropped", zap.String("via", string(neighbor)), zap.Int("count", len(stale)))
    }
    return len(stale)
}

// ListPaths returns every live path sorted by destination.
func (s *Store) ListPaths() []Path {
    var out []Path
    s.kv.Scan(prefixPath, func(_ string, val []byte) bool {
        var p Path
        if json.Unmarshal(val, &p) == nil { out = append(out, p) }
        return true
    })
    sort.Slice(out, func(i, j int) bool { return out[i].Dest < out[j].Dest })
    return out
}

// defaultNeighborTTL is the inactivity TTL for neighbor metadata.
const defaultNeighborTTL = 5 * time.Minute
