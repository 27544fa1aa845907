// Package codec holds the body encodings that sit behind a packet's format byte.
package codec

import (
    "sort"
    "sync"
)

// Codec marshals typed bodies. Output must be deterministic: the same body
// has to hash the same on every node that relays it.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry resolves codecs by content type.
type Registry struct {
    mu     sync.RWMutex
    byType map[string]Codec
}

// NewRegistry returns a registry holding JSON, protobuf and any extra codecs.
// CBOR has an error path at construction, so callers pass it in.
func NewRegistry(extra ...Codec) *Registry {
    r := &Registry{byType: make(map[string]Codec, 2+len(extra))}
    r.Register(JSON())
    r.Register(Proto())
    for _, c := range extra {
        r.Register(c)
    }
    return r
}

func (r *Registry) Register(c Codec) {
    r.mu.Lock()
    r.byType[c.ContentType()] = c
    r.mu.Unlock()
}

// Get returns the codec for contentType, or nil.
func (r *Registry) Get(contentType string) Codec {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.byType[contentType]
}

// ContentTypes lists registered content types in sorted order.
func (r *Registry) ContentTypes() []string {
    r.mu.RLock()
    out := make([]string, 0, len(r.byType))
    for ct := range r.byType {
        out = append(out, ct)
    }
    r.mu.RUnlock()
    sort.Strings(out)
    return out
}
