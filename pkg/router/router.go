package router

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "mavmesh/pkg/peers"
    "mavmesh/pkg/transport"
)

// ErrNoRoute is returned when no live path or neighbor session exists.
var ErrNoRoute = errors.New("no route")

// Router resolves destination hashes to neighbors using the path table and
// writes frames to neighbor sessions.
type Router struct {
    ps  *peers.Store
    mgr *transport.Manager
}

func New(ps *peers.Store, mgr *transport.Manager) *Router {
    return &Router{ps: ps, mgr: mgr}
}

// NextHopFor returns the neighbor to forward towards dest (hex destination
// hash) and its hop distance.
func (r *Router) NextHopFor(dest string) (transport.PeerID, uint8, bool) {
    p, ok := r.ps.GetPath(dest)
    if !ok { return "", 0, false }
    if r.mgr.GetSession(p.NextHop) == nil {
        // path outlived its neighbor session
        r.ps.DropPath(dest)
        return "", 0, false
    }
    return p.NextHop, p.Hops, true
}

// Neighbors lists neighbors with a live session.
func (r *Router) Neighbors() []transport.PeerID { return r.mgr.ListPeers() }

// SendBytesToPeer writes b to the neighbor's control stream.
func (r *Router) SendBytesToPeer(ctx context.Context, neighbor transport.PeerID, b []byte) error {
    sess := r.mgr.GetSession(neighbor)
    if sess == nil { return ErrNoRoute }
    st, err := sess.OpenStream(ctx, transport.StreamControl)
    if err != nil { return err }
    zap.L().Debug("send via", zap.String("peer", string(neighbor)), zap.Int("bytes", len(b)))
    return st.SendBytes(b)
}
