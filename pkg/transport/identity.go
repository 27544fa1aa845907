package transport

import (
    "encoding/base64"
    "fmt"
    "net"
    "strings"
)

// AddrPeerID builds a neighbor id from transport kind and remote address.
// Sessions are keyed by it in the Manager, so a redial to the same address
// replaces the stale session.
func AddrPeerID(kind Kind, addr net.Addr) PeerID {
    if addr == nil { return PeerID(fmt.Sprintf("addr:%s:unknown", kind)) }
    return PeerID(fmt.Sprintf("addr:%s:%s", kind, addr.String()))
}

// DialPeerID is the neighbor id used by dialers before a session exists.
func DialPeerID(kind Kind, address string) PeerID {
    return PeerID(fmt.Sprintf("addr:%s:%s", kind, address))
}

// CanonicalPeerIDFromPubKey constructs a canonical peer id from public key bytes.
// The format is: pk:<alg>:<base64url-nopad(pubkey)>
// Example: pk:ed25519:AbCd...
func CanonicalPeerIDFromPubKey(alg string, pub []byte) PeerID {
    alg = strings.ToLower(strings.TrimSpace(alg))
    enc := base64.RawURLEncoding.EncodeToString(pub)
    return PeerID("pk:" + alg + ":" + enc)
}
