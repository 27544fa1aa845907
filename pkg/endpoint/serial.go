package endpoint

import (
    "fmt"
    "sync"
    "time"

    "go.bug.st/serial"
    "go.uber.org/zap"
)

// Serial is a tty endpoint, typically a flight controller on /dev/ttyACM0.
type Serial struct {
    device string
    port   serial.Port
    wmu    sync.Mutex
}

// OpenSerial opens device at baud 8N1. A positive readTimeout makes Read
// return zero bytes when the line is idle.
func OpenSerial(device string, baud int, readTimeout time.Duration) (*Serial, error) {
    port, err := serial.Open(device, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
    if err != nil { return nil, fmt.Errorf("open serial %s: %w", device, err) }
    if readTimeout > 0 {
        if err := port.SetReadTimeout(readTimeout); err != nil {
            _ = port.Close()
            return nil, fmt.Errorf("serial %s read timeout: %w", device, err)
        }
    }
    zap.L().Info("serial endpoint open", zap.String("device", device), zap.Int("baud", baud))
    return &Serial{device: device, port: port}, nil
}

func (s *Serial) Read(p []byte) (int, error) {
    n, err := s.port.Read(p)
    return n, wrap("read", err)
}

func (s *Serial) Write(p []byte) (int, error) {
    s.wmu.Lock()
    defer s.wmu.Unlock()
    n, err := writeFull(s.port, p)
    return n, wrap("write", err)
}

func (s *Serial) Close() error { return s.port.Close() }

func (s *Serial) String() string { return "serial:" + s.device }
