package transport

import (
    "bufio"
    "encoding/binary"
    "errors"
    "io"
)

// MaxFrame bounds a single length-prefixed frame.
const MaxFrame = 1 << 24

// ErrFrameSize is returned for frames larger than MaxFrame.
var ErrFrameSize = errors.New("invalid frame size")

// WriteFrame writes b with a u32 LE length prefix and flushes.
func WriteFrame(w *bufio.Writer, b []byte) error {
    if len(b) > MaxFrame { return ErrFrameSize }
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := w.Write(lenbuf[:]); err != nil { return err }
    if _, err := w.Write(b); err != nil { return err }
    return w.Flush()
}

// ReadFrame reads one u32 LE length-prefixed frame.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(r, lenbuf[:]); err != nil { return nil, err }
    n := binary.LittleEndian.Uint32(lenbuf[:])
    if n > MaxFrame { return nil, ErrFrameSize }
    buf := make([]byte, n)
    if _, err := io.ReadFull(r, buf); err != nil { return nil, err }
    return buf, nil
}
