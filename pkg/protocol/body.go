package protocol

import (
    "fmt"

    "mavmesh/pkg/protocol/codec"
)

// Format is a compact on-wire indicator of payload encoding.
// It is carried as the first byte of announce and link control payloads.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return ContentJSON
    case FormatCBOR:
        return ContentCBOR
    case FormatProto:
        return ContentProto
    default:
        return ContentUnknown
    }
}

// DefaultRegistry returns a registry with JSON, protobuf and canonical CBOR.
func DefaultRegistry() (*codec.Registry, error) {
    c, err := codec.CBOR()
    if err != nil { return nil, fmt.Errorf("cbor codec: %w", err) }
    return codec.NewRegistry(c), nil
}

// CodecFor returns the codec registered for f, falling back to a fresh built-in.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
    if r != nil {
        if c := r.Get(f.String()); c != nil { return c, nil }
    }
    switch f {
    case FormatJSON:
        return codec.JSON(), nil
    case FormatCBOR:
        return codec.CBOR()
    case FormatProto:
        return codec.Proto(), nil
    default:
        return nil, fmt.Errorf("unknown format: %d", f)
    }
}

// EncodeBody serializes v using the codec for f and prefixes the payload
// with a single format byte.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
    c, err := CodecFor(r, f)
    if err != nil { return nil, err }
    b, err := c.Marshal(v)
    if err != nil { return nil, err }
    return append([]byte{byte(f)}, b...), nil
}

// DecodeBody decodes payload produced by EncodeBody into v.
func DecodeBody(r *codec.Registry, payload []byte, v any) (Format, error) {
    if len(payload) == 0 { return FormatUnknown, fmt.Errorf("empty payload") }
    f := Format(payload[0])
    c, err := CodecFor(r, f)
    if err != nil { return f, err }
    if err := c.Unmarshal(payload[1:], v); err != nil { return f, fmt.Errorf("decode %s body: %w", f, err) }
    return f, nil
}
