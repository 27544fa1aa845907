package endpoint

import (
    "fmt"
    "net"
    "sync"

    "go.uber.org/zap"
)

// UDP reads datagrams on a local port and writes each buffer as one datagram
// to a fixed target, or to the last sender when no target is set.
type UDP struct {
    conn   *net.UDPConn
    target *net.UDPAddr

    mu   sync.Mutex
    last *net.UDPAddr
}

func OpenUDP(listen, target string) (*UDP, error) {
    laddr, err := net.ResolveUDPAddr("udp", listen)
    if err != nil { return nil, fmt.Errorf("resolve %s: %w", listen, err) }
    u := &UDP{}
    if target != "" {
        if u.target, err = net.ResolveUDPAddr("udp", target); err != nil {
            return nil, fmt.Errorf("resolve %s: %w", target, err)
        }
    }
    if u.conn, err = net.ListenUDP("udp", laddr); err != nil {
        return nil, fmt.Errorf("bind %s: %w", listen, err)
    }
    zap.L().Info("udp endpoint open", zap.Stringer("listen", u.conn.LocalAddr()), zap.String("target", target))
    return u, nil
}

func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) Read(p []byte) (int, error) {
    n, addr, err := u.conn.ReadFromUDP(p)
    if err != nil { return n, wrap("read", err) }
    if u.target == nil {
        u.mu.Lock()
        u.last = addr
        u.mu.Unlock()
    }
    return n, nil
}

func (u *UDP) Write(p []byte) (int, error) {
    dst := u.target
    if dst == nil {
        u.mu.Lock()
        dst = u.last
        u.mu.Unlock()
    }
    if dst == nil {
        // nobody to reply to yet
        zap.L().Debug("udp endpoint has no peer, dropping", zap.Int("bytes", len(p)))
        return len(p), nil
    }
    n, err := u.conn.WriteToUDP(p, dst)
    if err == nil && n < len(p) {
        return n, &Error{Op: "write", Err: fmt.Errorf("short datagram %d/%d", n, len(p))}
    }
    return n, wrap("write", err)
}

func (u *UDP) Close() error { return u.conn.Close() }
