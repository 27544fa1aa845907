package identity

import (
    "crypto/ed25519"
    "crypto/rand"
    "crypto/sha256"
    "encoding/base64"
    "os"
    "strings"

    "go.uber.org/zap"

    "mavmesh/pkg/config"
    "mavmesh/pkg/transport"
)

const (
    // HashSize is the length of identity and destination hashes.
    HashSize = 16
    // NameHashSize is the length of the truncated "app.aspect" hash.
    NameHashSize = 10
)

// LoadOrGenEd25519 loads an ed25519 private key from config, derives one from
// identity.name, or generates a new one.
// Returns the private key and the canonical peer id (pk:ed25519:<b64(pub)>).
func LoadOrGenEd25519(c config.IdentityConfig) (ed25519.PrivateKey, transport.PeerID, error) {
    var pk ed25519.PrivateKey
    // From base64
    if s := strings.TrimSpace(c.PrivateKey); s != "" {
        if b, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(b) == ed25519.PrivateKeySize {
            pk = ed25519.PrivateKey(b)
        } else {
            zap.L().Warn("failed to decode identity.private_key", zap.Error(err), zap.Int("len", len(b)))
        }
    }
    // From file
    if pk == nil && strings.TrimSpace(c.PrivateKeyFile) != "" {
        if b, err := os.ReadFile(c.PrivateKeyFile); err == nil {
            txt := strings.TrimSpace(string(b))
            if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil && len(db) == ed25519.PrivateKeySize {
                pk = ed25519.PrivateKey(db)
            } else if len(b) == ed25519.PrivateKeySize {
                // assume raw bytes
                pk = ed25519.PrivateKey(b)
            } else {
                zap.L().Warn("identity.private_key_file has unexpected content", zap.String("path", c.PrivateKeyFile))
            }
        } else {
            zap.L().Warn("failed to read identity.private_key_file", zap.Error(err))
        }
    }
    // From name
    if pk == nil && strings.TrimSpace(c.Name) != "" {
        pk = FromName(c.Name)
        zap.L().Info("derived identity from name", zap.String("name", c.Name))
    }
    // Generate
    if pk == nil {
        _, gen, err := ed25519.GenerateKey(rand.Reader)
        if err != nil { return nil, "", err }
        pk = gen
        zap.L().Info("generated new ed25519 identity (persist to config.identity.private_key)",
            zap.String("pub_b64", base64.RawURLEncoding.EncodeToString(gen.Public().(ed25519.PublicKey))))
    }
    pub := pk.Public().(ed25519.PublicKey)
    pid := transport.CanonicalPeerIDFromPubKey("ed25519", pub)
    return pk, pid, nil
}

// FromName derives a deterministic identity from a human readable name, so
// both ends of a bridge can agree on destination hashes ahead of time.
func FromName(name string) ed25519.PrivateKey {
    seed := sha256.Sum256([]byte(name))
    return ed25519.NewKeyFromSeed(seed[:])
}

// Hash returns the truncated identity hash of a public key.
func Hash(pub ed25519.PublicKey) [HashSize]byte {
    sum := sha256.Sum256(pub)
    var out [HashSize]byte
    copy(out[:], sum[:HashSize])
    return out
}

// NameHash returns the truncated hash of a full destination name ("app.aspect").
func NameHash(fullName string) [NameHashSize]byte {
    sum := sha256.Sum256([]byte(fullName))
    var out [NameHashSize]byte
    copy(out[:], sum[:NameHashSize])
    return out
}

// DestinationHash computes sha256(nameHash || identityHash) truncated to 16 bytes.
func DestinationHash(pub ed25519.PublicKey, fullName string) [HashSize]byte {
    nh := NameHash(fullName)
    ih := Hash(pub)
    h := sha256.New()
    h.Write(nh[:])
    h.Write(ih[:])
    var out [HashSize]byte
    copy(out[:], h.Sum(nil)[:HashSize])
    return out
}
