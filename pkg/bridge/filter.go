package bridge

import (
    "mavmesh/pkg/mesh"
)

// PeerFilter matches events of the one peer this bridge serves. Discovery
// and the outbound pump share it.
type PeerFilter struct {
    peer mesh.AddressHash
}

// NewPeerFilter parses a hex address hash of the target peer.
func NewPeerFilter(hexAddr string) (PeerFilter, error) {
    h, err := mesh.ParseAddressHash(hexAddr)
    if err != nil {
        return PeerFilter{}, &ConfigurationError{Field: "bridge.peer", Value: hexAddr, Err: err}
    }
    return PeerFilter{peer: h}, nil
}

// PeerFilterFor matches an already parsed address hash.
func PeerFilterFor(h mesh.AddressHash) PeerFilter { return PeerFilter{peer: h} }

// Match reports whether h is the filtered peer.
func (f PeerFilter) Match(h mesh.AddressHash) bool { return h == f.peer }

// Peer returns the filtered address hash.
func (f PeerFilter) Peer() mesh.AddressHash { return f.peer }
