package config

// TransportConfig describes one transport kind and its endpoints.
// Example YAML:
// transports:
//   - kind: udp
//     listen: [":4242"]
//     dial:
//       - address: "10.0.0.2:4242"
//         peer_id: "relay-1"
//   - kind: quic
//     listen: [":4433"]
//   - kind: winpipe
//     listen: ["\\\\.\\pipe\\mavmesh"]
//   - kind: mem
//     listen: ["inproc://test"]
type TransportConfig struct {
    Kind   string           `mapstructure:"kind"`
    Listen []string         `mapstructure:"listen"`
    Dial   []PeerDialConfig `mapstructure:"dial"`
}

// PeerDialConfig describes a target to dial on startup.
type PeerDialConfig struct {
    Address string `mapstructure:"address"`
    PeerID  string `mapstructure:"peer_id"`
}

// AddDial appends a dial target to the first transport, creating a udp
// transport when none is configured.
func (c *Config) AddDial(address string) {
    if address == "" {
        return
    }
    if len(c.Transports) == 0 {
        c.Transports = append(c.Transports, TransportConfig{Kind: "udp"})
    }
    c.Transports[0].Dial = append(c.Transports[0].Dial, PeerDialConfig{Address: address})
}
