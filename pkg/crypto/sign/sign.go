// Package sign builds signing transcripts for announces and link proofs and
// signs them with ed25519.
package sign

import (
    "crypto/ed25519"
    "fmt"
)

// SignEd25519 signs data. A key of the wrong length is reported rather than
// left to panic inside crypto/ed25519.
func SignEd25519(priv ed25519.PrivateKey, data []byte) ([]byte, error) {
    if len(priv) != ed25519.PrivateKeySize {
        return nil, fmt.Errorf("sign: private key is %d bytes", len(priv))
    }
    return ed25519.Sign(priv, data), nil
}

// VerifyEd25519 reports whether sig is valid. Malformed keys or signatures
// from the wire verify as false.
func VerifyEd25519(pub ed25519.PublicKey, data, sig []byte) bool {
    if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize { return false }
    return ed25519.Verify(pub, data, sig)
}
