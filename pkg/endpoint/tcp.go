package endpoint

import (
    "fmt"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"
)

// TCP is a client connection to a telemetry server.
type TCP struct {
    conn net.Conn
    wmu  sync.Mutex
}

func DialTCP(target string) (*TCP, error) {
    c, err := net.DialTimeout("tcp", target, 5*time.Second)
    if err != nil { return nil, fmt.Errorf("dial %s: %w", target, err) }
    zap.L().Info("tcp endpoint connected", zap.String("target", target))
    return &TCP{conn: c}, nil
}

func (t *TCP) Read(p []byte) (int, error) {
    n, err := t.conn.Read(p)
    return n, wrap("read", err)
}

func (t *TCP) Write(p []byte) (int, error) {
    t.wmu.Lock()
    defer t.wmu.Unlock()
    n, err := writeFull(t.conn, p)
    return n, wrap("write", err)
}

func (t *TCP) Close() error { return t.conn.Close() }
