package bridge

import (
    "sync"

    "mavmesh/pkg/mesh"
)

// LinkHandle is a snapshot of the tracked link. The mesh owns the link.
type LinkHandle struct {
    ID   mesh.LinkID
    Peer mesh.AddressHash
}

// LinkTracker holds the one link the bridge forwards over. The lock is only
// held to copy or replace the handle, never across mesh or endpoint calls.
type LinkTracker struct {
    mu  sync.Mutex
    cur LinkHandle
    ok  bool
}

// Set installs h, replacing any previous handle.
func (t *LinkTracker) Set(h LinkHandle) {
    t.mu.Lock()
    t.cur, t.ok = h, true
    t.mu.Unlock()
}

// Get returns a copy of the tracked handle and whether one is set.
func (t *LinkTracker) Get() (LinkHandle, bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.cur, t.ok
}

// Clear drops the handle; it reports whether one was present.
func (t *LinkTracker) Clear() bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    was := t.ok
    t.cur, t.ok = LinkHandle{}, false
    return was
}

// ClearIf drops the handle only if it tracks link id.
func (t *LinkTracker) ClearIf(id mesh.LinkID) bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.ok || t.cur.ID != id { return false }
    t.cur, t.ok = LinkHandle{}, false
    return true
}
