package mesh

import (
    "crypto/ed25519"
    "fmt"

    "google.golang.org/protobuf/types/known/structpb"

    "mavmesh/pkg/handshake"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/protocol/codec"
)

// DestinationName is an application name plus aspects, e.g. rns_mavlink.fc.
type DestinationName struct {
    App     string
    Aspects []string
}

func NewDestinationName(app string, aspects ...string) DestinationName {
    return DestinationName{App: app, Aspects: append([]string(nil), aspects...)}
}

func (n DestinationName) String() string { return handshake.FullName(n.App, n.Aspects) }

// DestinationDesc is the public half of a destination as learned from an announce.
type DestinationDesc struct {
    Identity    ed25519.PublicKey
    Name        DestinationName
    AddressHash AddressHash
}

// Destination is a locally owned, announceable endpoint.
type Destination struct {
    priv    ed25519.PrivateKey
    desc    DestinationDesc
    AppData []byte
}

// NewDestination binds a private identity to a name.
func NewDestination(priv ed25519.PrivateKey, name DestinationName) *Destination {
    pub := priv.Public().(ed25519.PublicKey)
    return &Destination{
        priv: priv,
        desc: DestinationDesc{
            Identity:    pub,
            Name:        name,
            AddressHash: AddressHash(identity.DestinationHash(pub, name.String())),
        },
    }
}

func (d *Destination) Desc() DestinationDesc     { return d.desc }
func (d *Destination) AddressHash() AddressHash { return d.desc.AddressHash }

// EncodeAppData packs announce app data as a protobuf Struct.
func EncodeAppData(fields map[string]any) ([]byte, error) {
    s, err := structpb.NewStruct(fields)
    if err != nil { return nil, fmt.Errorf("app data: %w", err) }
    return codec.Proto().Marshal(s)
}

// DecodeAppData is the inverse of EncodeAppData.
func DecodeAppData(b []byte) (map[string]any, error) {
    if len(b) == 0 { return nil, nil }
    var s structpb.Struct
    if err := codec.Proto().Unmarshal(b, &s); err != nil { return nil, fmt.Errorf("app data: %w", err) }
    return s.AsMap(), nil
}
