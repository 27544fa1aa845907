package main

import (
    "bytes"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "mavmesh/pkg/bridge"
    "mavmesh/pkg/config"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/mesh"
)

func execute(t *testing.T, args ...string) (string, error) {
    t.Helper()
    root := newRootCommand()
    var out bytes.Buffer
    root.SetOut(&out)
    root.SetErr(&out)
    root.SetArgs(args)
    err := root.Execute()
    return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), "mavmesh.yaml")
    require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
    return p
}

func TestRootCommandHasSubcommands(t *testing.T) {
    root := newRootCommand()
    var names []string
    for _, c := range root.Commands() {
        names = append(names, c.Name())
    }
    for _, want := range []string{"fc", "gc", "bridge", "node", "identity", "version"} {
        assert.Contains(t, names, want)
    }
    assert.NotNil(t, root.PersistentFlags().Lookup("config"))
    assert.NotNil(t, root.PersistentFlags().Lookup("address"))
}

func TestVersionCommand(t *testing.T) {
    out, err := execute(t, "version")
    require.NoError(t, err)
    assert.Equal(t, "mavmesh "+version+"\n", out)
}

func TestIdentityCommandIsDeterministic(t *testing.T) {
    p := writeConfig(t, "log:\n  level: warn\n")
    out, err := execute(t, "identity", "-c", p, "--role", config.RoleGC)
    require.NoError(t, err)

    cfg := config.DefaultFor(config.RoleGC)
    want := mesh.NewDestination(identity.FromName(cfg.Identity.Name), mesh.NewDestinationName(cfg.Bridge.App, cfg.Bridge.Aspect))
    assert.Contains(t, out, "destination: "+want.AddressHash().String())

    again, err := execute(t, "identity", "-c", p, "--role", config.RoleGC)
    require.NoError(t, err)
    assert.Equal(t, out, again)
}

func TestBridgeRejectsMalformedPeer(t *testing.T) {
    p := writeConfig(t, "log:\n  level: error\n  outputs: [stderr]\n")
    _, err := execute(t, "fc", "-c", p, "--peer", "not-hex")
    require.Error(t, err)
    var cerr *bridge.ConfigurationError
    assert.ErrorAs(t, err, &cerr)
}

func TestResponderRejectsMalformedPeer(t *testing.T) {
    p := writeConfig(t, "log:\n  level: error\n  outputs: [stderr]\n")
    _, err := execute(t, "gc", "-c", p, "--peer", "zz-not-hex")
    var cerr *bridge.ConfigurationError
    require.ErrorAs(t, err, &cerr)
    assert.Equal(t, "bridge.peer", cerr.Field)
}

func TestAddressFlagAddsDial(t *testing.T) {
    address = "10.0.0.7:4242"
    t.Cleanup(func() { address = "" })
    p := writeConfig(t, "log:\n  level: warn\n")
    configPath = p
    t.Cleanup(func() { configPath = "" })

    cfg, err := loadConfig("")
    require.NoError(t, err)
    var found bool
    for _, tc := range cfg.Transports {
        for _, d := range tc.Dial {
            if d.Address == "10.0.0.7:4242" { found = true }
        }
    }
    assert.True(t, found)
}
