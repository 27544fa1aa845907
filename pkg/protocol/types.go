package protocol

// Packet types (fits in uint8)
const (
    PktUnknown       uint8 = iota
    PktAnnounce             // signed destination announce
    PktLinkRequest          // link request towards a destination
    PktLinkProof            // signed link acceptance
    PktLinkData             // payload over an established link
    PktLinkKeepAlive        // keepalive request/reply
    PktLinkClose            // link teardown
)

// TypeName returns a short label for metrics and logs.
func TypeName(t uint8) string {
    switch t {
    case PktAnnounce:
        return "announce"
    case PktLinkRequest:
        return "link_request"
    case PktLinkProof:
        return "link_proof"
    case PktLinkData:
        return "link_data"
    case PktLinkKeepAlive:
        return "keepalive"
    case PktLinkClose:
        return "link_close"
    default:
        return "unknown"
    }
}

// Context values for keepalive packets.
const (
    CtxNone             uint8 = 0
    CtxKeepAliveRequest uint8 = 1
    CtxKeepAliveReply   uint8 = 2
)

// Flags bitmask (uint16)
const (
    FlagTransport  uint16 = 1 << 0 // forwarded by a transport node
    FlagFromTarget uint16 = 1 << 1 // link packet sent by the destination side
)

// ContentType is optional hint for payload decoding.
// Kept as constants to avoid coupling; not serialized in header.
const (
    ContentUnknown = "application/octet-stream"
    ContentCBOR    = "application/cbor"
    ContentJSON    = "application/json"
    ContentProto   = "application/x-protobuf"
)
