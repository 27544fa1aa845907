package endpoint

import (
    "errors"
    "io"
    "net"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.bug.st/serial"

    "mavmesh/pkg/config"
)

func TestIsFatal(t *testing.T) {
    assert.True(t, IsFatal(&Error{Op: "read", Fatal: true, Err: errors.New("gone")}))
    assert.False(t, IsFatal(&Error{Op: "read", Err: errors.New("framing")}))
    assert.True(t, IsFatal(wrap("read", io.EOF)))
    assert.True(t, IsFatal(wrap("write", net.ErrClosed)))
    assert.False(t, IsFatal(wrap("read", errors.New("timeout"))))
    assert.False(t, IsFatal(nil))
}

func TestUDPPair(t *testing.T) {
    gcs, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
    require.NoError(t, err)
    defer gcs.Close()

    ep, err := OpenUDP("127.0.0.1:0", gcs.LocalAddr().String())
    require.NoError(t, err)
    defer ep.Close()

    n, err := ep.Write([]byte("telemetry"))
    require.NoError(t, err)
    assert.Equal(t, 9, n)

    buf := make([]byte, 64)
    require.NoError(t, gcs.SetReadDeadline(time.Now().Add(2*time.Second)))
    n, _, err = gcs.ReadFromUDP(buf)
    require.NoError(t, err)
    assert.Equal(t, "telemetry", string(buf[:n]))

    _, err = gcs.WriteToUDP([]byte("command"), ep.LocalAddr().(*net.UDPAddr))
    require.NoError(t, err)
    n, err = ep.Read(buf)
    require.NoError(t, err)
    assert.Equal(t, "command", string(buf[:n]))

    require.NoError(t, ep.Close())
    _, err = ep.Read(buf)
    assert.True(t, IsFatal(err))
}

func TestUDPRepliesToLastSender(t *testing.T) {
    ep, err := OpenUDP("127.0.0.1:0", "")
    require.NoError(t, err)
    defer ep.Close()

    // no sender yet: dropped
    n, err := ep.Write([]byte("early"))
    require.NoError(t, err)
    assert.Equal(t, 5, n)

    peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
    require.NoError(t, err)
    defer peer.Close()
    _, err = peer.WriteToUDP([]byte("hi"), ep.LocalAddr().(*net.UDPAddr))
    require.NoError(t, err)
    buf := make([]byte, 16)
    _, err = ep.Read(buf)
    require.NoError(t, err)

    _, err = ep.Write([]byte("reply"))
    require.NoError(t, err)
    require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
    n, _, err = peer.ReadFromUDP(buf)
    require.NoError(t, err)
    assert.Equal(t, "reply", string(buf[:n]))
}

func TestTCPEndpoint(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    defer ln.Close()
    accepted := make(chan net.Conn, 1)
    go func() {
        c, err := ln.Accept()
        if err == nil { accepted <- c }
    }()

    ep, err := Open(config.EndpointConfig{Kind: "tcp", Target: ln.Addr().String()})
    require.NoError(t, err)
    defer ep.Close()
    srv := <-accepted
    defer srv.Close()

    _, err = ep.Write([]byte("abc"))
    require.NoError(t, err)
    buf := make([]byte, 8)
    n, err := io.ReadAtLeast(srv, buf, 3)
    require.NoError(t, err)
    assert.Equal(t, "abc", string(buf[:n]))

    require.NoError(t, srv.Close())
    _, err = ep.Read(buf)
    assert.True(t, IsFatal(err))
}

func TestOpenUnknownKind(t *testing.T) {
    _, err := Open(config.EndpointConfig{Kind: "carrier"})
    assert.Error(t, err)
}

// chunkyPort accepts at most 2 bytes per Write.
type chunkyPort struct {
    serial.Port
    written []byte
    closed  bool
}

func (p *chunkyPort) Write(b []byte) (int, error) {
    if p.closed { return 0, &serial.PortError{} }
    n := min(2, len(b))
    p.written = append(p.written, b[:n]...)
    return n, nil
}

func (p *chunkyPort) Read(b []byte) (int, error) {
    if p.closed { return 0, io.EOF }
    return 0, nil
}

func (p *chunkyPort) Close() error { p.closed = true; return nil }

func TestSerialWritesFully(t *testing.T) {
    port := &chunkyPort{}
    s := &Serial{device: "test", port: port}

    n, err := s.Write([]byte("mavlink"))
    require.NoError(t, err)
    assert.Equal(t, 7, n)
    assert.Equal(t, "mavlink", string(port.written))

    // idle line: zero bytes, no error
    n, err = s.Read(make([]byte, 4))
    require.NoError(t, err)
    assert.Zero(t, n)

    require.NoError(t, s.Close())
    _, err = s.Read(make([]byte, 4))
    assert.True(t, IsFatal(err))
}
