package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), name)
    require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
    return p
}

func TestRolePresets(t *testing.T) {
    fc := DefaultFor(RoleFC)
    assert.Equal(t, ModeInitiator, fc.Bridge.Mode)
    assert.Equal(t, "serial", fc.Endpoint.Kind)
    assert.Equal(t, "mavlink-rns-fc", fc.Identity.Name)
    assert.Equal(t, "fc", fc.Bridge.Aspect)

    gc := DefaultFor(RoleGC)
    assert.Equal(t, ModeResponder, gc.Bridge.Mode)
    assert.Equal(t, "udp", gc.Endpoint.Kind)
    assert.Equal(t, "0.0.0.0:14551", gc.Endpoint.Listen)
    assert.Equal(t, "rns_mavlink", gc.Bridge.App)
}

func TestLoadYAML(t *testing.T) {
    p := writeFile(t, "fc.yaml", `
log:
  level: debug
bridge:
  peer: "0123456789abcdef0123456789abcdef"
  idle_interval_ms: 50
endpoint:
  kind: serial
  device: /dev/ttyUSB3
  baud: 115200
mesh:
  mtu: 300
transports:
  - kind: tcp
    dial:
      - address: "10.0.0.2:4242"
`)
    cfg, err := LoadRole(p, RoleFC)
    require.NoError(t, err)
    assert.Equal(t, "debug", cfg.Log.Level)
    assert.Equal(t, "/dev/ttyUSB3", cfg.Endpoint.Device)
    assert.Equal(t, 115200, cfg.Endpoint.Baud)
    assert.Equal(t, 50*time.Millisecond, cfg.Bridge.IdleInterval())
    assert.Equal(t, 300, cfg.Mesh.MTU)
    assert.Equal(t, ModeInitiator, cfg.Bridge.Mode)
    require.Len(t, cfg.Transports, 1)
    assert.Equal(t, "tcp", cfg.Transports[0].Kind)
    require.Len(t, cfg.Transports[0].Dial, 1)
    assert.Equal(t, "10.0.0.2:4242", cfg.Transports[0].Dial[0].Address)
    // untouched keys keep their preset
    assert.Equal(t, "mavlink-rns-fc", cfg.Identity.Name)
    assert.Equal(t, 64*1024, cfg.Bridge.ReadBuffer)
}

func TestLoadTOML(t *testing.T) {
    p := writeFile(t, "gc.toml", `
[endpoint]
kind = "udp"
listen = "0.0.0.0:15000"
target = "192.168.1.10:14550"

[bridge]
announce_interval_ms = 2500
`)
    cfg, err := LoadRole(p, RoleGC)
    require.NoError(t, err)
    assert.Equal(t, "0.0.0.0:15000", cfg.Endpoint.Listen)
    assert.Equal(t, "192.168.1.10:14550", cfg.Endpoint.Target)
    assert.Equal(t, 2500*time.Millisecond, cfg.Bridge.AnnounceInterval())
    assert.Equal(t, ModeResponder, cfg.Bridge.Mode)
}

func TestEnvOverride(t *testing.T) {
    t.Setenv("MAVMESH_LOG_LEVEL", "warn")
    t.Setenv("MAVMESH_BRIDGE_PEER", "ffeeddccbbaa99887766554433221100")
    p := writeFile(t, "empty.yaml", "app_name: test\n")
    cfg, err := Load(p)
    require.NoError(t, err)
    assert.Equal(t, "warn", cfg.Log.Level)
    assert.Equal(t, "ffeeddccbbaa99887766554433221100", cfg.Bridge.Peer)
    assert.Equal(t, "test", cfg.AppName)
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]string{
        "mode":     "bridge:\n  mode: sideways\n",
        "level":    "log:\n  level: loud\n",
        "endpoint": "endpoint:\n  kind: carrier-pigeon\n",
        "mtu":      "mesh:\n  mtu: 10\n",
        "stale":    "mesh:\n  keepalive_ms: 5000\n  stale_ms: 1000\n",
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            p := writeFile(t, "bad.yaml", body)
            _, err := Load(p)
            require.Error(t, err)
        })
    }
}

func TestAddDial(t *testing.T) {
    cfg := Default()
    cfg.AddDial("radio.local:4242")
    require.Len(t, cfg.Transports[0].Dial, 1)
    assert.Equal(t, "radio.local:4242", cfg.Transports[0].Dial[0].Address)

    empty := &Config{}
    empty.AddDial("x:1")
    require.Len(t, empty.Transports, 1)
    assert.Equal(t, "udp", empty.Transports[0].Kind)
}
