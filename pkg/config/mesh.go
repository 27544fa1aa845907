package config

import (
    "fmt"
    "time"
)

// MeshConfig tunes the mesh node.
type MeshConfig struct {
    // MTU is the largest frame (header + payload) handed to a session.
    MTU int `mapstructure:"mtu"`
    // TransportEnabled makes the node forward announces and links for others.
    TransportEnabled bool `mapstructure:"transport_enabled"`
    MaxHops          int  `mapstructure:"max_hops"`
    // AnnounceRate caps rebroadcast announces per second; AnnounceBurst is the bucket size.
    AnnounceRate  float64 `mapstructure:"announce_rate"`
    AnnounceBurst int     `mapstructure:"announce_burst"`

    LinkTimeoutMS int `mapstructure:"link_timeout_ms"`
    KeepAliveMS   int `mapstructure:"keepalive_ms"`
    StaleMS       int `mapstructure:"stale_ms"`
    PathTTLMS     int `mapstructure:"path_ttl_ms"`

    // EventBuffer is the per-subscriber ring size of announce and link event streams.
    EventBuffer int `mapstructure:"event_buffer"`
    // DedupSize bounds the packet-hash cache used to drop looping announces.
    DedupSize int `mapstructure:"dedup_size"`
    // EgressRateBytes shapes traffic per neighbor (bytes/s); 0 disables shaping.
    EgressRateBytes int `mapstructure:"egress_rate_bytes"`
}

func defaultMesh() MeshConfig {
    return MeshConfig{
        MTU:              500,
        TransportEnabled: true,
        MaxHops:          32,
        AnnounceRate:     20,
        AnnounceBurst:    40,
        LinkTimeoutMS:    10000,
        KeepAliveMS:      5000,
        StaleMS:          20000,
        PathTTLMS:        600000,
        EventBuffer:      256,
        DedupSize:        4096,
    }
}

func (m MeshConfig) LinkTimeout() time.Duration { return ms(m.LinkTimeoutMS) }
func (m MeshConfig) KeepAlive() time.Duration   { return ms(m.KeepAliveMS) }
func (m MeshConfig) StaleTime() time.Duration   { return ms(m.StaleMS) }
func (m MeshConfig) PathTTL() time.Duration     { return ms(m.PathTTLMS) }

func (m *MeshConfig) validate() error {
    // header is 28 bytes; leave room for a useful payload
    if m.MTU < 64 || m.MTU > 65535 {
        return fmt.Errorf("invalid mesh.mtu: %d", m.MTU)
    }
    if m.MaxHops <= 0 || m.MaxHops > 255 {
        return fmt.Errorf("invalid mesh.max_hops: %d", m.MaxHops)
    }
    if m.KeepAliveMS <= 0 || m.StaleMS <= m.KeepAliveMS {
        return fmt.Errorf("mesh.stale_ms (%d) must exceed mesh.keepalive_ms (%d)", m.StaleMS, m.KeepAliveMS)
    }
    if m.LinkTimeoutMS <= 0 {
        m.LinkTimeoutMS = 10000
    }
    if m.PathTTLMS <= 0 {
        m.PathTTLMS = 600000
    }
    if m.EventBuffer <= 0 {
        m.EventBuffer = 256
    }
    if m.DedupSize <= 0 {
        m.DedupSize = 4096
    }
    if m.AnnounceRate <= 0 {
        m.AnnounceRate = 20
    }
    if m.AnnounceBurst <= 0 {
        m.AnnounceBurst = 1
    }
    return nil
}
