// Package endpoint provides the local byte-stream side of a bridge: a serial
// device, a UDP socket pair or a TCP connection.
package endpoint

import (
    "errors"
    "fmt"
    "io"
    "net"
    "os"

    "go.bug.st/serial"

    "mavmesh/pkg/config"
)

// Endpoint is a local byte stream. Read returns whatever is available and
// may return zero bytes; Write writes the whole buffer or fails.
type Endpoint interface {
    io.ReadWriteCloser
}

// Error wraps endpoint I/O failures. Fatal errors mean the endpoint is gone.
type Error struct {
    Op    string
    Fatal bool
    Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("endpoint %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsFatal reports whether err means the endpoint can no longer be used.
func IsFatal(err error) bool {
    var e *Error
    if errors.As(err, &e) { return e.Fatal }
    return isClosedErr(err)
}

func wrap(op string, err error) error {
    if err == nil { return nil }
    return &Error{Op: op, Fatal: isClosedErr(err), Err: err}
}

func isClosedErr(err error) bool {
    if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
        return true
    }
    var pe *serial.PortError
    if errors.As(err, &pe) {
        switch pe.Code() {
        case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort:
            return true
        }
    }
    return false
}

// Open opens the endpoint described by cfg.
func Open(cfg config.EndpointConfig) (Endpoint, error) {
    switch cfg.Kind {
    case "serial":
        return OpenSerial(cfg.Device, cfg.Baud, cfg.ReadTimeout())
    case "udp":
        return OpenUDP(cfg.Listen, cfg.Target)
    case "tcp":
        return DialTCP(cfg.Target)
    default:
        return nil, fmt.Errorf("unknown endpoint kind %q", cfg.Kind)
    }
}

// writeFull loops until p is written; a short write without error is
// reported as io.ErrShortWrite.
func writeFull(w io.Writer, p []byte) (int, error) {
    total := 0
    for total < len(p) {
        n, err := w.Write(p[total:])
        total += n
        if err != nil { return total, err }
        if n == 0 { return total, io.ErrShortWrite }
    }
    return total, nil
}
