package config

import (
    "fmt"
    "strings"
    "time"
)

// Bridge modes.
const (
    ModeInitiator = "initiator" // discovers the peer and opens the link
    ModeResponder = "responder" // announces itself and accepts the link
)

// BridgeConfig configures the telemetry bridge core.
type BridgeConfig struct {
    Mode string `mapstructure:"mode"`
    // App and Aspect name the local destination (app.aspect).
    App    string `mapstructure:"app"`
    Aspect string `mapstructure:"aspect"`
    // Peer is the hex address hash of the target peer destination.
    Peer string `mapstructure:"peer"`

    IdleIntervalMS     int  `mapstructure:"idle_interval_ms"`
    ReadBuffer         int  `mapstructure:"read_buffer"`
    FanOut             bool `mapstructure:"fanout"`
    AnnounceIntervalMS int  `mapstructure:"announce_interval_ms"`
}

func defaultBridge() BridgeConfig {
    return BridgeConfig{
        Mode:               ModeInitiator,
        App:                "rns_mavlink",
        Aspect:             "bridge",
        IdleIntervalMS:     100,
        ReadBuffer:         64 * 1024,
        AnnounceIntervalMS: 1000,
    }
}

func (b BridgeConfig) IdleInterval() time.Duration     { return ms(b.IdleIntervalMS) }
func (b BridgeConfig) AnnounceInterval() time.Duration { return ms(b.AnnounceIntervalMS) }

func (b *BridgeConfig) validate() error {
    b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
    switch b.Mode {
    case ModeInitiator, ModeResponder:
    case "":
        b.Mode = ModeInitiator
    default:
        return fmt.Errorf("invalid bridge.mode: %q", b.Mode)
    }
    b.Peer = strings.TrimSpace(b.Peer)
    if strings.TrimSpace(b.App) == "" {
        return fmt.Errorf("bridge.app must not be empty")
    }
    if b.IdleIntervalMS <= 0 {
        b.IdleIntervalMS = 100
    }
    if b.ReadBuffer <= 0 {
        b.ReadBuffer = 64 * 1024
    }
    if b.AnnounceIntervalMS <= 0 {
        b.AnnounceIntervalMS = 1000
    }
    return nil
}

// EndpointConfig describes the local byte-stream endpoint.
// Example YAML:
// endpoint:
//   kind: serial        # serial | udp | tcp
//   device: /dev/ttyACM0
//   baud: 57600
// endpoint:
//   kind: udp
//   listen: 0.0.0.0:14551  # reply port
//   target: 127.0.0.1:14550
type EndpointConfig struct {
    Kind          string `mapstructure:"kind"`
    Device        string `mapstructure:"device"`
    Baud          int    `mapstructure:"baud"`
    ReadTimeoutMS int    `mapstructure:"read_timeout_ms"`
    Listen        string `mapstructure:"listen"`
    Target        string `mapstructure:"target"`
}

func (e EndpointConfig) ReadTimeout() time.Duration { return ms(e.ReadTimeoutMS) }

func (e *EndpointConfig) validate() error {
    e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))
    switch e.Kind {
    case "serial":
        if e.Device == "" {
            return fmt.Errorf("endpoint.device is required for serial endpoints")
        }
        if e.Baud <= 0 {
            return fmt.Errorf("invalid endpoint.baud: %d", e.Baud)
        }
    case "udp":
        if e.Listen == "" {
            return fmt.Errorf("endpoint.listen is required for udp endpoints")
        }
    case "tcp":
        if e.Target == "" {
            return fmt.Errorf("endpoint.target is required for tcp endpoints")
        }
    default:
        return fmt.Errorf("invalid endpoint.kind: %q", e.Kind)
    }
    return nil
}
