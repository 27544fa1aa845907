package mesh

import (
    "encoding/json"

    "go.uber.org/zap"

    "mavmesh/pkg/protocol"
    "mavmesh/pkg/transport"
)

// relayEntry is the link table row of a link passing through this node.
type relayEntry struct {
    A transport.PeerID `json:"a"` // towards the initiator
    B transport.PeerID `json:"b"` // towards the destination
}

func relayKey(id LinkID) string { return "link:" + id.String() }

func (n *Node) forwardLinkRequest(from transport.PeerID, id LinkID, pkt protocol.Packet) {
    if !n.opts.TransportEnabled {
        n.metrics.IncDropped("not_transport")
        return
    }
    if n.kv.Exists(relayKey(id)) {
        n.metrics.IncDropped("duplicate")
        return
    }
    dest := AddressHash(pkt.Header.Dest)
    next, _, ok := n.rt.NextHopFor(dest.String())
    if !ok || next == from {
        n.metrics.IncDropped("no_path")
        zap.L().Debug("link request without path", zap.String("dest", dest.String()), zap.String("peer", string(from)))
        return
    }
    b, err := json.Marshal(relayEntry{A: from, B: next})
    if err != nil { return }
    n.kv.Set(relayKey(id), b, n.opts.StaleTime)
    n.forward(next, pkt)
    zap.L().Debug("link request forwarded", zap.String("link", id.String()), zap.String("dest", dest.String()), zap.String("from", string(from)), zap.String("to", string(next)))
}

// relay moves a link packet one hop along the link table. Each relayed
// packet refreshes the entry; a close removes it.
func (n *Node) relay(from transport.PeerID, pkt protocol.Packet) {
    id := LinkID(pkt.Header.Dest)
    key := relayKey(id)
    raw, ok := n.kv.Get(key)
    if !ok {
        n.metrics.IncDropped("unknown_link")
        return
    }
    var e relayEntry
    if err := json.Unmarshal(raw, &e); err != nil {
        n.kv.Delete(key)
        return
    }
    var next transport.PeerID
    switch from {
    case e.A:
        next = e.B
    case e.B:
        next = e.A
    default:
        n.metrics.IncDropped("unknown_link")
        return
    }
    if pkt.Header.Type == protocol.PktLinkClose {
        n.kv.Delete(key)
    } else {
        n.kv.Expire(key, n.opts.StaleTime)
    }
    n.forward(next, pkt)
}

func (n *Node) forward(next transport.PeerID, pkt protocol.Packet) {
    if pkt.Header.Hops < 255 { pkt.Header.Hops++ }
    pkt.SetFlag(protocol.FlagTransport, true)
    if err := n.send(next, pkt); err != nil {
        zap.L().Debug("forward failed", zap.String("peer", string(next)), zap.String("type", protocol.TypeName(pkt.Header.Type)), zap.Error(err))
    }
}
