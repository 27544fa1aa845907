package bridge

import (
    "errors"
    "fmt"

    "mavmesh/pkg/mesh"
)

// ErrStreamClosed ends a unit whose event stream was closed by the mesh.
var ErrStreamClosed = errors.New("bridge: event stream closed")

// ConfigurationError rejects a bad setting before the bridge starts.
type ConfigurationError struct {
    Field string
    Value string
    Err   error
}

func (e *ConfigurationError) Error() string {
    return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}
func (e *ConfigurationError) Unwrap() error { return e.Err }

// EndpointOpenError means the local endpoint could not be opened.
type EndpointOpenError struct {
    Kind string
    Err  error
}

func (e *EndpointOpenError) Error() string { return fmt.Sprintf("open %s endpoint: %v", e.Kind, e.Err) }
func (e *EndpointOpenError) Unwrap() error { return e.Err }

// EndpointIoError is a read or write failure on the local endpoint.
type EndpointIoError struct {
    Op  string
    Err error
}

func (e *EndpointIoError) Error() string { return fmt.Sprintf("endpoint %s: %v", e.Op, e.Err) }
func (e *EndpointIoError) Unwrap() error { return e.Err }

// ChannelLagError records events a lossy stream dropped. It is logged, never returned.
type ChannelLagError struct {
    Stream string
    Missed uint64
}

func (e *ChannelLagError) Error() string {
    return fmt.Sprintf("%s lagged: %d events dropped", e.Stream, e.Missed)
}
func (e *ChannelLagError) Unwrap() error { return &mesh.LaggedError{Missed: e.Missed} }

// MeshLinkError is a failed link establishment or fragment submission.
type MeshLinkError struct {
    Op   string
    Peer mesh.AddressHash
    Link mesh.LinkID
    Err  error
}

func (e *MeshLinkError) Error() string {
    if e.Link == (mesh.LinkID{}) {
        return fmt.Sprintf("mesh %s to %s: %v", e.Op, e.Peer, e.Err)
    }
    return fmt.Sprintf("mesh %s on link %s: %v", e.Op, e.Link, e.Err)
}
func (e *MeshLinkError) Unwrap() error { return e.Err }
