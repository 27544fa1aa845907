package identity

import (
    "crypto/ed25519"
    "encoding/base64"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/config"
)

func TestFromNameDeterministic(t *testing.T) {
    a := FromName("mavlink-rns-fc")
    b := FromName("mavlink-rns-fc")
    c := FromName("mavlink-rns-gc")
    assert.Equal(t, a, b)
    assert.NotEqual(t, a, c)
}

func TestDestinationHash(t *testing.T) {
    pub := FromName("mavlink-rns-gc").Public().(ed25519.PublicKey)
    h1 := DestinationHash(pub, "rns_mavlink.gc")
    h2 := DestinationHash(pub, "rns_mavlink.gc")
    h3 := DestinationHash(pub, "rns_mavlink.fc")
    assert.Equal(t, h1, h2)
    assert.NotEqual(t, h1, h3)
}

func TestLoadPrecedence(t *testing.T) {
    named := FromName("other")
    enc := base64.RawURLEncoding.EncodeToString(named)

    pk, pid, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: enc, Name: "ignored"})
    require.NoError(t, err)
    assert.Equal(t, named, pk)
    assert.True(t, strings.HasPrefix(string(pid), "pk:ed25519:"))

    keyFile := filepath.Join(t.TempDir(), "id.key")
    require.NoError(t, os.WriteFile(keyFile, []byte(enc+"\n"), 0o600))
    pk, _, err = LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: keyFile})
    require.NoError(t, err)
    assert.Equal(t, named, pk)

    pk, _, err = LoadOrGenEd25519(config.IdentityConfig{Name: "mavlink-rns-fc"})
    require.NoError(t, err)
    assert.Equal(t, FromName("mavlink-rns-fc"), pk)

    pk, _, err = LoadOrGenEd25519(config.IdentityConfig{})
    require.NoError(t, err)
    assert.Len(t, pk, ed25519.PrivateKeySize)
}
