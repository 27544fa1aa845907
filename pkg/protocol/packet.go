package protocol

import (
    "crypto/sha256"
    "fmt"
    "io"
)

// maxPayload guards frame decoding against absurd sizes.
const maxPayload = 1 << 20

// Packet is a header + payload wrapper for a single mesh transfer.
type Packet struct {
    Header  Header
    Payload []byte
}

// HasFlag checks whether a flag is set.
func (p *Packet) HasFlag(flag uint16) bool { return (p.Header.Flags & flag) != 0 }

// SetFlag sets/unsets a flag.
func (p *Packet) SetFlag(flag uint16, on bool) {
    if on {
        p.Header.Flags |= flag
    } else {
        p.Header.Flags &^= flag
    }
}

// WriteTo writes header + payload to w.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
    b, err := p.EncodeFrame()
    if err != nil { return 0, err }
    n, err := w.Write(b)
    return int64(n), err
}

// ReadFrom reads header + payload from r.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
    hb := make([]byte, HeaderSize)
    if _, err := io.ReadFull(r, hb); err != nil {
        return 0, err
    }
    if err := p.Header.UnmarshalBinary(hb); err != nil {
        return 0, err
    }
    if p.Header.PayloadLen > maxPayload {
        return 0, fmt.Errorf("payload too large: %d", p.Header.PayloadLen)
    }
    p.Payload = nil
    if p.Header.PayloadLen > 0 {
        p.Payload = make([]byte, int(p.Header.PayloadLen))
        if _, err := io.ReadFull(r, p.Payload); err != nil {
            return 0, err
        }
    }
    return int64(HeaderSize + int(p.Header.PayloadLen)), nil
}

// EncodeFrame returns header+payload as a single byte slice.
func (p *Packet) EncodeFrame() ([]byte, error) {
    if len(p.Payload) > maxPayload {
        return nil, fmt.Errorf("payload too large: %d", len(p.Payload))
    }
    if p.Header.Version == 0 { p.Header.Version = Version }
    p.Header.PayloadLen = uint32(len(p.Payload))
    out := make([]byte, HeaderSize+len(p.Payload))
    p.Header.put(out)
    copy(out[HeaderSize:], p.Payload)
    return out, nil
}

// DecodeFrame parses a single frame from buf.
func (p *Packet) DecodeFrame(buf []byte) error {
    if len(buf) < HeaderSize {
        return io.ErrUnexpectedEOF
    }
    if err := p.Header.UnmarshalBinary(buf[:HeaderSize]); err != nil {
        return err
    }
    need := int(p.Header.PayloadLen)
    if HeaderSize+need > len(buf) {
        return io.ErrUnexpectedEOF
    }
    p.Payload = append(p.Payload[:0], buf[HeaderSize:HeaderSize+need]...)
    return nil
}

// Hash identifies a packet independently of the path it took: the hop count
// and transport flag are zeroed before hashing.
func (p *Packet) Hash() [16]byte {
    h := p.Header
    h.Hops = 0
    h.Flags &^= FlagTransport
    h.PayloadLen = uint32(len(p.Payload))
    var hb [HeaderSize]byte
    h.put(hb[:])
    s := sha256.New()
    s.Write(hb[:])
    s.Write(p.Payload)
    var out [16]byte
    copy(out[:], s.Sum(nil))
    return out
}

// Chunks splits data into consecutive slices of at most size bytes, in order.
// The slices alias data. Empty input yields no chunks.
func Chunks(data []byte, size int) [][]byte {
    if size <= 0 || len(data) == 0 {
        return nil
    }
    total := (len(data) + size - 1) / size
    out := make([][]byte, 0, total)
    for start := 0; start < len(data); start += size {
        end := min(start+size, len(data))
        out = append(out, data[start:end])
    }
    return out
}
