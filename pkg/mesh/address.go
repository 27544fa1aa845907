package mesh

import (
    "encoding/hex"
    "fmt"
    "strings"

    "github.com/google/uuid"

    "mavmesh/pkg/identity"
)

// AddressHash names a destination on the mesh.
type AddressHash [identity.HashSize]byte

// ParseAddressHash decodes a 32 character hex string.
func ParseAddressHash(s string) (AddressHash, error) {
    var a AddressHash
    b, err := hex.DecodeString(strings.TrimSpace(s))
    if err != nil { return a, fmt.Errorf("address hash: %w", err) }
    if len(b) != len(a) { return a, fmt.Errorf("address hash: want %d bytes, got %d", len(a), len(b)) }
    copy(a[:], b)
    return a, nil
}

func (a AddressHash) String() string { return hex.EncodeToString(a[:]) }
func (a AddressHash) IsZero() bool   { return a == AddressHash{} }

// LinkID identifies a link end to end. It travels in the header
// destination field of every link packet.
type LinkID [16]byte

// NewLinkID returns a random link id.
func NewLinkID() LinkID { return LinkID(uuid.New()) }

func (id LinkID) String() string { return hex.EncodeToString(id[:]) }

func linkIDFrom(b []byte) (LinkID, bool) {
    var id LinkID
    if len(b) != len(id) { return id, false }
    copy(id[:], b)
    return id, true
}
