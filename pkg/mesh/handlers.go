package mesh

import (
    "context"
    "fmt"

    "go.uber.org/zap"

    "mavmesh/pkg/handshake"
    "mavmesh/pkg/protocol"
    "mavmesh/pkg/transport"
)

// HandleSession makes s a neighbor and processes its packets until the
// session ends or ctx is done.
func (n *Node) HandleSession(ctx context.Context, s transport.Session) error {
    if n.closed.Load() {
        _ = s.Close()
        return ErrClosed
    }
    accepted, replaced, _, err := n.mgr.AddSession(ctx, s)
    if err != nil { return err }
    id := s.Peer().ID
    if !accepted {
        zap.L().Debug("duplicate session dropped", zap.String("peer", string(id)))
        return nil
    }
    n.ps.UpsertNeighbor(id, s.TransportKind().String(), s.RemoteAddr().String(), s.Quality())
    zap.L().Info("neighbor up", zap.String("peer", string(id)), zap.String("kind", s.TransportKind().String()), zap.Bool("replaced", replaced))
    defer n.sessionEnded(id, s)

    stop := context.AfterFunc(ctx, func() { _ = s.Close() })
    defer stop()

    st, err := s.OpenStream(ctx, transport.StreamControl)
    if err != nil { return fmt.Errorf("open stream: %w", err) }
    for {
        buf, err := st.RecvBytes()
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            return err
        }
        n.ps.RecordExchange(id, uint64(len(buf)), 0, 1, 0)
        var pkt protocol.Packet
        if err := pkt.DecodeFrame(buf); err != nil {
            n.metrics.IncDropped("malformed")
            zap.L().Debug("malformed frame", zap.String("peer", string(id)), zap.Error(err))
            continue
        }
        n.metrics.IncPacket("rx", protocol.TypeName(pkt.Header.Type))
        n.dispatch(id, pkt)
    }
}

func (n *Node) sessionEnded(id transport.PeerID, s transport.Session) {
    _ = s.Close()
    // a replaced session must not tear down what its successor carries
    if !n.mgr.RemoveSession(id, s) { return }
    dropped := n.ps.DropPathsVia(id)
    n.ps.MarkDisconnected(id)
    n.pl.Forget(id)
    for _, l := range n.snapshotLinks() {
        if l.neighbor == id { n.teardown(l, false) }
    }
    zap.L().Info("neighbor down", zap.String("peer", string(id)), zap.Int("paths_dropped", dropped))
}

func (n *Node) dispatch(from transport.PeerID, pkt protocol.Packet) {
    switch pkt.Header.Type {
    case protocol.PktAnnounce:
        n.handleAnnounce(from, pkt)
    case protocol.PktLinkRequest:
        n.handleLinkRequest(from, pkt)
    case protocol.PktLinkProof:
        n.handleLinkProof(from, pkt)
    case protocol.PktLinkData:
        n.handleLinkData(from, pkt)
    case protocol.PktLinkKeepAlive:
        n.handleKeepAlive(from, pkt)
    case protocol.PktLinkClose:
        n.handleLinkClose(from, pkt)
    default:
        n.metrics.IncDropped("unknown_type")
    }
}

func (n *Node) handleAnnounce(from transport.PeerID, pkt protocol.Packet) {
    h := pkt.Hash()
    if n.dedup.Contains(h) {
        n.metrics.IncDropped("duplicate")
        return
    }
    n.dedup.Add(h, struct{}{})

    var a handshake.Announce
    if _, err := protocol.DecodePacketBody(&pkt, &a, n.reg); err != nil {
        n.metrics.IncDropped("malformed")
        zap.L().Debug("bad announce body", zap.String("peer", string(from)), zap.Error(err))
        return
    }
    dest := AddressHash(pkt.Header.Dest)
    if string(a.Dest) != string(dest[:]) {
        n.metrics.IncDropped("bad_announce")
        return
    }
    if err := handshake.VerifyAnnounce(a, 0); err != nil {
        n.metrics.IncDropped("bad_announce")
        zap.L().Warn("announce rejected", zap.String("dest", dest.String()), zap.String("peer", string(from)), zap.Error(err))
        return
    }
    if n.localDestination(dest) != nil { return }
    if pkt.Header.Hops == 255 {
        n.metrics.IncDropped("max_hops")
        return
    }
    hops := pkt.Header.Hops + 1

    _, learned := n.ps.LearnPath(dest.String(), from, hops, n.opts.PathTTL)
    zap.L().Debug("announce", zap.String("dest", dest.String()), zap.String("name", a.FullName()), zap.Uint8("hops", hops), zap.String("via", string(from)), zap.Bool("path", learned))
    n.announces.Send(Announce{
        Destination: DestinationDesc{
            Identity:    append([]byte(nil), a.PubKey...),
            Name:        NewDestinationName(a.App, a.Aspects...),
            AddressHash: dest,
        },
        Hops:    hops,
        AppData: a.AppData,
        Via:     from,
    })

    if n.opts.TransportEnabled && learned && int(hops) < n.opts.MaxHops {
        n.rebroadcast(from, pkt, hops)
    }
}

func (n *Node) rebroadcast(from transport.PeerID, pkt protocol.Packet, hops uint8) {
    if !n.relayLim.Allow() {
        n.metrics.IncDropped("announce_rate")
        return
    }
    fwd := pkt
    fwd.Header.Hops = hops
    fwd.SetFlag(protocol.FlagTransport, true)
    for _, nb := range n.rt.Neighbors() {
        if nb == from { continue }
        if err := n.send(nb, fwd); err != nil {
            zap.L().Debug("announce rebroadcast failed", zap.String("peer", string(nb)), zap.Error(err))
        }
    }
}

func (n *Node) handleLinkRequest(from transport.PeerID, pkt protocol.Packet) {
    dest := AddressHash(pkt.Header.Dest)
    var req handshake.LinkRequest
    if _, err := protocol.DecodePacketBody(&pkt, &req, n.reg); err != nil {
        n.metrics.IncDropped("malformed")
        return
    }
    id, ok := linkIDFrom(req.LinkID)
    if !ok || string(req.Dest) != string(dest[:]) {
        n.metrics.IncDropped("malformed")
        return
    }
    if d := n.localDestination(dest); d != nil {
        n.acceptLink(from, id, d, req)
        return
    }
    n.forwardLinkRequest(from, id, pkt)
}

func (n *Node) acceptLink(from transport.PeerID, id LinkID, d *Destination, req handshake.LinkRequest) {
    l := NewLink(id, d.AddressHash(), Inbound)
    l.neighbor = from
    n.mu.Lock()
    if _, dup := n.links[id]; dup {
        n.mu.Unlock()
        return
    }
    n.links[id] = l
    n.mu.Unlock()

    proof := handshake.BuildLinkProof(d.priv, req)
    pkt, err := n.packet(protocol.PktLinkProof, [16]byte(id), proof)
    if err == nil {
        pkt.SetFlag(protocol.FlagFromTarget, true)
        err = n.send(from, pkt)
    }
    if err != nil {
        zap.L().Warn("link proof not sent", zap.String("link", id.String()), zap.Error(err))
        n.teardown(l, false)
        return
    }
    l.activate(n.clk.Now())
    n.metrics.AddLinks(Inbound.String(), 1)
    zap.L().Info("link accepted", zap.String("link", id.String()), zap.String("dest", l.dest.String()), zap.String("via", string(from)))
    n.inEvents.Send(LinkEvent{Kind: LinkActivated, Link: id, Peer: l.dest})
}

func (n *Node) handleLinkProof(from transport.PeerID, pkt protocol.Packet) {
    id := LinkID(pkt.Header.Dest)
    l, ok := n.FindLink(id)
    if !ok || l.dir != Outbound {
        n.relay(from, pkt)
        return
    }
    var p handshake.LinkProof
    if _, err := protocol.DecodePacketBody(&pkt, &p, n.reg); err != nil {
        n.metrics.IncDropped("malformed")
        return
    }
    if string(p.LinkID) != string(id[:]) || string(p.Dest) != string(l.dest[:]) {
        n.metrics.IncDropped("bad_proof")
        return
    }
    if err := handshake.VerifyLinkProof(l.pub, p, 0); err != nil {
        n.metrics.IncDropped("bad_proof")
        zap.L().Warn("link proof rejected", zap.String("link", id.String()), zap.Error(err))
        return
    }
    if !l.activate(n.clk.Now()) { return }
    n.metrics.AddLinks(Outbound.String(), 1)
    zap.L().Info("link established", zap.String("link", id.String()), zap.String("dest", l.dest.String()))
    n.outEvents.Send(LinkEvent{Kind: LinkActivated, Link: id, Peer: l.dest})
}

func (n *Node) handleLinkData(from transport.PeerID, pkt protocol.Packet) {
    id := LinkID(pkt.Header.Dest)
    l, ok := n.FindLink(id)
    if !ok {
        n.relay(from, pkt)
        return
    }
    if l.Status() != LinkActive {
        n.metrics.IncDropped("link_not_active")
        return
    }
    l.touch(n.clk.Now())
    n.events(l.dir).Send(LinkEvent{Kind: LinkData, Link: id, Peer: l.dest, Payload: pkt.Payload})
}

func (n *Node) handleKeepAlive(from transport.PeerID, pkt protocol.Packet) {
    id := LinkID(pkt.Header.Dest)
    l, ok := n.FindLink(id)
    if !ok {
        n.relay(from, pkt)
        return
    }
    if l.Status() != LinkActive { return }
    l.touch(n.clk.Now())
    if pkt.Header.Context == protocol.CtxKeepAliveRequest && l.dir == Inbound {
        if err := n.send(l.neighbor, n.linkPacket(l, protocol.PktLinkKeepAlive, protocol.CtxKeepAliveReply, nil)); err != nil {
            zap.L().Debug("keepalive reply failed", zap.String("link", id.String()), zap.Error(err))
        }
    }
}

func (n *Node) handleLinkClose(from transport.PeerID, pkt protocol.Packet) {
    id := LinkID(pkt.Header.Dest)
    l, ok := n.FindLink(id)
    if !ok {
        n.relay(from, pkt)
        return
    }
    n.teardown(l, false)
}
