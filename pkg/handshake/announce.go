package handshake

import (
    "crypto/ed25519"
    "crypto/rand"
    "errors"
    "fmt"
    "strings"
    "time"

    "mavmesh/pkg/crypto/sign"
    "mavmesh/pkg/identity"
)

// Announce is a signed advertisement of a destination. It binds the
// destination hash to a public key and a name, and carries opaque app data.
type Announce struct {
    Version   uint32   `cbor:"1,keyasint"`
    Dest      []byte   `cbor:"2,keyasint"`
    App       string   `cbor:"3,keyasint"`
    Aspects   []string `cbor:"4,keyasint,omitempty"`
    Alg       string   `cbor:"5,keyasint"`
    PubKey    []byte   `cbor:"6,keyasint"`
    Nonce     []byte   `cbor:"7,keyasint"`
    Timestamp int64    `cbor:"8,keyasint"`
    AppData   []byte   `cbor:"9,keyasint,omitempty"`
    Sig       []byte   `cbor:"10,keyasint"`
}

// FullName returns "app.aspect1.aspect2".
func (a Announce) FullName() string { return FullName(a.App, a.Aspects) }

// FullName joins an app name and its aspects with dots.
func FullName(app string, aspects []string) string {
    if len(aspects) == 0 { return app }
    return app + "." + strings.Join(aspects, ".")
}

// BuildAnnounce constructs an Announce for app/aspects and signs it with priv.
func BuildAnnounce(priv ed25519.PrivateKey, app string, aspects []string, appData []byte) (Announce, error) {
    pub := priv.Public().(ed25519.PublicKey)
    nonce := make([]byte, 16)
    if _, err := rand.Read(nonce); err != nil { return Announce{}, err }
    dest := identity.DestinationHash(pub, FullName(app, aspects))
    a := Announce{
        Version:   1,
        Dest:      dest[:],
        App:       app,
        Aspects:   append([]string(nil), aspects...),
        Alg:       "ed25519",
        PubKey:    append([]byte(nil), pub...),
        Nonce:     nonce,
        Timestamp: time.Now().UnixMilli(),
        AppData:   appData,
    }
    msg := sign.AnnounceTranscript(a.Dest, a.FullName(), a.PubKey, a.Nonce, a.Timestamp, a.AppData)
    sig, _ := sign.SignEd25519(priv, msg)
    a.Sig = sig
    return a, nil
}

// VerifyAnnounce checks the signature, that the destination hash matches the
// key and name, and timestamp freshness. maxSkew <= 0 uses 5 minutes.
func VerifyAnnounce(a Announce, maxSkew time.Duration) error {
    if a.Alg != "ed25519" { return fmt.Errorf("unsupported alg: %s", a.Alg) }
    if len(a.PubKey) != ed25519.PublicKeySize { return errors.New("bad pubkey length") }
    if len(a.Sig) != ed25519.SignatureSize { return errors.New("bad signature length") }
    if len(a.Dest) != identity.HashSize { return errors.New("bad destination length") }
    if err := checkSkew(a.Timestamp, maxSkew); err != nil { return fmt.Errorf("announce: %w", err) }
    want := identity.DestinationHash(ed25519.PublicKey(a.PubKey), a.FullName())
    if string(want[:]) != string(a.Dest) {
        return errors.New("announce destination does not match key and name")
    }
    msg := sign.AnnounceTranscript(a.Dest, a.FullName(), a.PubKey, a.Nonce, a.Timestamp, a.AppData)
    if !sign.VerifyEd25519(ed25519.PublicKey(a.PubKey), msg, a.Sig) {
        return errors.New("announce signature invalid")
    }
    return nil
}

func checkSkew(ts int64, maxSkew time.Duration) error {
    if maxSkew <= 0 { maxSkew = 5 * time.Minute }
    now := time.Now().UnixMilli()
    if dt := now - ts; dt > maxSkew.Milliseconds() || dt < -maxSkew.Milliseconds() {
        return errors.New("timestamp out of bounds")
    }
    return nil
}
