package bridge

import (
    "context"
    "errors"
    "io"
    "sync"

    "mavmesh/pkg/identity"
    "mavmesh/pkg/mesh"
)

type sent struct {
    link mesh.LinkID
    data []byte
}

type fakeMesh struct {
    anns *mesh.Broadcast[mesh.Announce]
    out  *mesh.Broadcast[mesh.LinkEvent]
    in   *mesh.Broadcast[mesh.LinkEvent]
    mdu  int

    mu        sync.Mutex
    sends     []sent
    linkCalls int
    linkErr   error
    sendErrs  []error // consumed one per SendLink call
    announced int
    lastLink  *mesh.Link
}

func newFakeMesh(mdu int) *fakeMesh {
    return &fakeMesh{
        anns: mesh.NewBroadcast[mesh.Announce](16),
        out:  mesh.NewBroadcast[mesh.LinkEvent](16),
        in:   mesh.NewBroadcast[mesh.LinkEvent](16),
        mdu:  mdu,
    }
}

func (m *fakeMesh) Announces() *mesh.Subscription[mesh.Announce]      { return m.anns.Subscribe() }
func (m *fakeMesh) OutLinkEvents() *mesh.Subscription[mesh.LinkEvent] { return m.out.Subscribe() }
func (m *fakeMesh) InLinkEvents() *mesh.Subscription[mesh.LinkEvent]  { return m.in.Subscribe() }
func (m *fakeMesh) MDU() int                                          { return m.mdu }

func (m *fakeMesh) Link(_ context.Context, desc mesh.DestinationDesc) (*mesh.Link, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.linkCalls++
    if m.linkErr != nil { return nil, m.linkErr }
    m.lastLink = mesh.NewLink(mesh.NewLinkID(), desc.AddressHash, mesh.Outbound)
    return m.lastLink, nil
}

func (m *fakeMesh) SendLink(_ context.Context, id mesh.LinkID, data []byte) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if len(m.sendErrs) > 0 {
        err := m.sendErrs[0]
        m.sendErrs = m.sendErrs[1:]
        if err != nil { return err }
    }
    m.sends = append(m.sends, sent{link: id, data: append([]byte(nil), data...)})
    return nil
}

func (m *fakeMesh) SendToAllOutLinks(ctx context.Context, data []byte) error {
    return m.SendLink(ctx, mesh.LinkID{}, data)
}

func (m *fakeMesh) Announce(context.Context, *mesh.Destination) error {
    m.mu.Lock()
    m.announced++
    m.mu.Unlock()
    return nil
}

func (m *fakeMesh) sent() []sent {
    m.mu.Lock()
    defer m.mu.Unlock()
    return append([]sent(nil), m.sends...)
}

func (m *fakeMesh) calls() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.linkCalls
}

func (m *fakeMesh) link() *mesh.Link {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.lastLink
}

// fakeEndpoint serves reads from a channel and records writes. Queued read
// errors are returned before any data.
type fakeEndpoint struct {
    reads    chan []byte
    readErrs chan error

    mu       sync.Mutex
    nreads   int
    nerrs    int
    writes   [][]byte
    writeErr error
    closed   chan struct{}
    once     sync.Once
}

func newFakeEndpoint() *fakeEndpoint {
    return &fakeEndpoint{reads: make(chan []byte, 16), readErrs: make(chan error, 16), closed: make(chan struct{})}
}

func (e *fakeEndpoint) Read(p []byte) (int, error) {
    select {
    case err := <-e.readErrs:
        return e.failRead(err)
    default:
    }
    select {
    case err := <-e.readErrs:
        return e.failRead(err)
    case b := <-e.reads:
        e.mu.Lock()
        e.nreads++
        e.mu.Unlock()
        return copy(p, b), nil
    case <-e.closed:
        return 0, io.EOF
    }
}

func (e *fakeEndpoint) failRead(err error) (int, error) {
    e.mu.Lock()
    e.nerrs++
    e.mu.Unlock()
    return 0, err
}

func (e *fakeEndpoint) errCount() int {
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.nerrs
}

func (e *fakeEndpoint) Write(p []byte) (int, error) {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.writeErr != nil { return 0, e.writeErr }
    e.writes = append(e.writes, append([]byte(nil), p...))
    return len(p), nil
}

func (e *fakeEndpoint) Close() error {
    e.once.Do(func() { close(e.closed) })
    return nil
}

func (e *fakeEndpoint) written() [][]byte {
    e.mu.Lock()
    defer e.mu.Unlock()
    return append([][]byte(nil), e.writes...)
}

func (e *fakeEndpoint) readCount() int {
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.nreads
}

var errWrite = errors.New("device unplugged")

func peerDest(name string) *mesh.Destination {
    return mesh.NewDestination(identity.FromName(name), mesh.NewDestinationName("rns_mavlink", "gc"))
}
