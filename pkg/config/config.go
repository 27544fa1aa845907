// Package config provides YAML/TOML configuration loading for mavmesh.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"
)

// Roles select a preset of defaults matching the two ends of a telemetry bridge.
const (
    RoleFC = "fc" // flight controller: serial endpoint, link initiator
    RoleGC = "gc" // ground control: udp endpoint, link responder
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name of the node/application
    AppName string `mapstructure:"app_name"`

    // Role is the preset this config was seeded from (fc, gc or empty)
    Role string `mapstructure:"role"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Transports list to configure multiple inbound/outbound links
    Transports []TransportConfig `mapstructure:"transports"`

    // Identity controls the node cryptographic identity.
    Identity IdentityConfig `mapstructure:"identity"`

    // Net holds dialer backoff options
    Net NetConfig `mapstructure:"net"`

    // Mesh tunes the mesh node (MTU, links, forwarding).
    Mesh MeshConfig `mapstructure:"mesh"`

    // Bridge configures the telemetry bridge core.
    Bridge BridgeConfig `mapstructure:"bridge"`

    // Endpoint is the local byte-stream endpoint.
    Endpoint EndpointConfig `mapstructure:"endpoint"`

    // Metrics exposes prometheus metrics over HTTP when Listen is set.
    Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the prometheus HTTP listener.
type MetricsConfig struct {
    Listen string `mapstructure:"listen"` // e.g. ":9464"; empty disables
    Path   string `mapstructure:"path"`
}

// Default returns a Config populated with role-neutral defaults.
func Default() *Config {
    return &Config{
        AppName: "mavmesh",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: false,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/mavmesh.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Transports: []TransportConfig{
            {
                Kind:   "udp",
                Listen: []string{":4242"},
            },
        },
        Identity: IdentityConfig{Alg: "ed25519"},
        Net:      NetConfig{DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000, DialBackoffJitterMS: 100},
        Mesh:     defaultMesh(),
        Bridge:   defaultBridge(),
        Endpoint: EndpointConfig{Kind: "serial", Device: "/dev/ttyACM0", Baud: 57600, ReadTimeoutMS: 100},
        Metrics:  MetricsConfig{Path: "/metrics"},
    }
}

// DefaultFor returns defaults with the given role preset applied.
func DefaultFor(role string) *Config {
    cfg := Default()
    switch role {
    case RoleFC:
        cfg.AppName = "mavmesh-fc"
        cfg.Role = RoleFC
        cfg.Identity.Name = "mavlink-rns-fc"
        cfg.Bridge.Mode = ModeInitiator
        cfg.Bridge.Aspect = "fc"
        cfg.Endpoint = EndpointConfig{Kind: "serial", Device: "/dev/ttyACM0", Baud: 57600, ReadTimeoutMS: 100}
    case RoleGC:
        cfg.AppName = "mavmesh-gc"
        cfg.Role = RoleGC
        cfg.Identity.Name = "mavlink-rns-gc"
        cfg.Bridge.Mode = ModeResponder
        cfg.Bridge.Aspect = "gc"
        cfg.Endpoint = EndpointConfig{Kind: "udp", Listen: "0.0.0.0:14551", Target: "127.0.0.1:14550"}
    }
    return cfg
}

// Load reads configuration without a role preset. See LoadRole.
func Load(path string) (*Config, error) { return LoadRole(path, "") }

// LoadRole reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// When path is empty the file base name is the role ("fc", "gc") or "mavmesh".
// Environment variables use the prefix MAVMESH and `.`/`-` are replaced with `_`.
// Example: MAVMESH_LOG_LEVEL=debug
func LoadRole(path, role string) (*Config, error) {
    cfg := DefaultFor(role)

    v := viper.New()
    v.SetEnvPrefix("MAVMESH")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()
    seedDefaults(v, cfg)

    // Choose config file
    if path == "" {
        if envPath := os.Getenv("MAVMESH_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        name := "mavmesh"
        if role != "" {
            name = role
        }
        v.SetConfigName(name)
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".mavmesh"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }
    if role != "" {
        cfg.Role = role
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// seedDefaults registers every key so env-only configs work.
func seedDefaults(v *viper.Viper, cfg *Config) {
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("role", cfg.Role)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("transports", cfg.Transports)
    v.SetDefault("identity.alg", cfg.Identity.Alg)
    v.SetDefault("identity.name", cfg.Identity.Name)
    v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
    v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
    v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
    v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
    v.SetDefault("net.dial_backoff_jitter_ms", cfg.Net.DialBackoffJitterMS)
    v.SetDefault("mesh.mtu", cfg.Mesh.MTU)
    v.SetDefault("mesh.transport_enabled", cfg.Mesh.TransportEnabled)
    v.SetDefault("mesh.max_hops", cfg.Mesh.MaxHops)
    v.SetDefault("mesh.announce_rate", cfg.Mesh.AnnounceRate)
    v.SetDefault("mesh.announce_burst", cfg.Mesh.AnnounceBurst)
    v.SetDefault("mesh.link_timeout_ms", cfg.Mesh.LinkTimeoutMS)
    v.SetDefault("mesh.keepalive_ms", cfg.Mesh.KeepAliveMS)
    v.SetDefault("mesh.stale_ms", cfg.Mesh.StaleMS)
    v.SetDefault("mesh.path_ttl_ms", cfg.Mesh.PathTTLMS)
    v.SetDefault("mesh.event_buffer", cfg.Mesh.EventBuffer)
    v.SetDefault("mesh.dedup_size", cfg.Mesh.DedupSize)
    v.SetDefault("mesh.egress_rate_bytes", cfg.Mesh.EgressRateBytes)
    v.SetDefault("bridge.mode", cfg.Bridge.Mode)
    v.SetDefault("bridge.app", cfg.Bridge.App)
    v.SetDefault("bridge.aspect", cfg.Bridge.Aspect)
    v.SetDefault("bridge.peer", cfg.Bridge.Peer)
    v.SetDefault("bridge.idle_interval_ms", cfg.Bridge.IdleIntervalMS)
    v.SetDefault("bridge.read_buffer", cfg.Bridge.ReadBuffer)
    v.SetDefault("bridge.fanout", cfg.Bridge.FanOut)
    v.SetDefault("bridge.announce_interval_ms", cfg.Bridge.AnnounceIntervalMS)
    v.SetDefault("endpoint.kind", cfg.Endpoint.Kind)
    v.SetDefault("endpoint.device", cfg.Endpoint.Device)
    v.SetDefault("endpoint.baud", cfg.Endpoint.Baud)
    v.SetDefault("endpoint.read_timeout_ms", cfg.Endpoint.ReadTimeoutMS)
    v.SetDefault("endpoint.listen", cfg.Endpoint.Listen)
    v.SetDefault("endpoint.target", cfg.Endpoint.Target)
    v.SetDefault("metrics.listen", cfg.Metrics.Listen)
    v.SetDefault("metrics.path", cfg.Metrics.Path)
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    for i := range c.Transports {
        c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
    }
    if c.Metrics.Path == "" {
        c.Metrics.Path = "/metrics"
    }
    if err := c.Mesh.validate(); err != nil {
        return err
    }
    if err := c.Bridge.validate(); err != nil {
        return err
    }
    return c.Endpoint.validate()
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
