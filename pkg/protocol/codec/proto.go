package codec

import (
    "errors"
    "fmt"

    "google.golang.org/protobuf/proto"
)

// ErrNotMessage is returned when the protobuf codec gets a value that is not a proto.Message.
var ErrNotMessage = errors.New("protobuf: not a proto.Message")

type protoCodec struct{ mo proto.MarshalOptions }

// Proto returns a protobuf codec with deterministic map ordering.
func Proto() Codec { return protoCodec{mo: proto.MarshalOptions{Deterministic: true}} }

func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (c protoCodec) Marshal(v any) ([]byte, error) {
    m, ok := v.(proto.Message)
    if !ok { return nil, fmt.Errorf("%w: %T", ErrNotMessage, v) }
    return c.mo.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
    m, ok := v.(proto.Message)
    if !ok { return fmt.Errorf("%w: %T", ErrNotMessage, v) }
    return proto.Unmarshal(data, m)
}
