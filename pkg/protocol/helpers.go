package protocol

import "mavmesh/pkg/protocol/codec"

// NewPacketWithBody encodes v according to format and returns a Packet
// with header set to h and payload set to encoded body (with format prefix).
func NewPacketWithBody(h Header, format Format, v any, reg *codec.Registry) (Packet, error) {
    b, err := EncodeBody(reg, format, v)
    if err != nil { return Packet{}, err }
    p := Packet{Header: h, Payload: b}
    p.Header.PayloadLen = uint32(len(b))
    return p, nil
}

// DecodePacketBody decodes the payload of p into v using the embedded format
// marker. Returns the detected format.
func DecodePacketBody(p *Packet, v any, reg *codec.Registry) (Format, error) {
    return DecodeBody(reg, p.Payload, v)
}
