package handshake

import (
    "crypto/ed25519"
    "errors"
    "fmt"
    "time"

    "mavmesh/pkg/crypto/sign"
)

// LinkRequest asks a destination to accept a link with the given id.
type LinkRequest struct {
    LinkID    []byte `cbor:"1,keyasint"`
    Dest      []byte `cbor:"2,keyasint"`
    Timestamp int64  `cbor:"3,keyasint"`
}

// LinkProof is returned by the destination owner; the signature proves it
// holds the private key behind the announced destination.
type LinkProof struct {
    LinkID    []byte `cbor:"1,keyasint"`
    Dest      []byte `cbor:"2,keyasint"`
    Timestamp int64  `cbor:"3,keyasint"`
    Sig       []byte `cbor:"4,keyasint"`
}

func BuildLinkRequest(linkID, dest []byte) LinkRequest {
    return LinkRequest{
        LinkID:    append([]byte(nil), linkID...),
        Dest:      append([]byte(nil), dest...),
        Timestamp: time.Now().UnixMilli(),
    }
}

// BuildLinkProof signs (link id, destination, timestamp) with the destination key.
func BuildLinkProof(priv ed25519.PrivateKey, req LinkRequest) LinkProof {
    p := LinkProof{
        LinkID:    append([]byte(nil), req.LinkID...),
        Dest:      append([]byte(nil), req.Dest...),
        Timestamp: time.Now().UnixMilli(),
    }
    p.Sig, _ = sign.SignEd25519(priv, sign.LinkProofTranscript(p.LinkID, p.Dest, p.Timestamp))
    return p
}

// VerifyLinkProof checks the proof against the public key learned from the
// destination's announce.
func VerifyLinkProof(pub ed25519.PublicKey, p LinkProof, maxSkew time.Duration) error {
    if len(pub) != ed25519.PublicKeySize { return errors.New("bad pubkey length") }
    if len(p.Sig) != ed25519.SignatureSize { return errors.New("bad signature length") }
    if err := checkSkew(p.Timestamp, maxSkew); err != nil { return fmt.Errorf("link proof: %w", err) }
    if !sign.VerifyEd25519(pub, sign.LinkProofTranscript(p.LinkID, p.Dest, p.Timestamp), p.Sig) {
        return errors.New("link proof signature invalid")
    }
    return nil
}
