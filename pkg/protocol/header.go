package protocol

import (
    "encoding/binary"
    "errors"
)

// Fixed header layout (28 bytes) carried in front of every mesh packet.
// All integer fields are little-endian.
//
//  0  ..1   Magic      'M''M' (0x4d4d)
//  2        Version    u8
//  3        Type       u8
//  4        Hops       u8
//  5        Context    u8
//  6  ..7   Flags      u16
//  8  ..11  PayloadLen u32
//  12 ..27  Dest       [16]byte (destination hash or link id)
const (
    HeaderSize = 28
    magicWord  = uint16(0x4d4d) // 'M''M'

    // Version is the current wire version.
    Version = 1
)

// Header describes metadata for a packet.
type Header struct {
    Version    uint8
    Type       uint8
    Hops       uint8
    Context    uint8
    Flags      uint16
    PayloadLen uint32
    Dest       [16]byte
}

// MarshalBinary encodes header to a 28-byte buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
    buf := make([]byte, HeaderSize)
    h.put(buf)
    return buf, nil
}

func (h *Header) put(buf []byte) {
    binary.LittleEndian.PutUint16(buf[0:2], magicWord)
    buf[2] = h.Version
    buf[3] = h.Type
    buf[4] = h.Hops
    buf[5] = h.Context
    binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
    binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLen)
    copy(buf[12:28], h.Dest[:])
}

// UnmarshalBinary decodes header from a 28-byte buffer.
func (h *Header) UnmarshalBinary(buf []byte) error {
    if len(buf) < HeaderSize {
        return errors.New("short header")
    }
    if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
        return errors.New("bad magic")
    }
    h.Version = buf[2]
    h.Type = buf[3]
    h.Hops = buf[4]
    h.Context = buf[5]
    h.Flags = binary.LittleEndian.Uint16(buf[6:8])
    h.PayloadLen = binary.LittleEndian.Uint32(buf[8:12])
    copy(h.Dest[:], buf[12:28])
    return nil
}
