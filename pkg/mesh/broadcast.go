package mesh

import (
    "context"
    "errors"
    "fmt"
    "sync"
)

// ErrClosed is returned by Subscription.Recv once the stream is closed and
// drained, and by Node operations after Close.
var ErrClosed = errors.New("mesh: closed")

// LaggedError reports events dropped because a subscriber fell behind.
type LaggedError struct{ Missed uint64 }

func (e *LaggedError) Error() string { return fmt.Sprintf("mesh: subscriber lagged, %d events dropped", e.Missed) }

// Broadcast fans events out to subscribers. Each subscriber has a bounded
// ring; Send never blocks and overwrites the oldest unread event when full.
type Broadcast[T any] struct {
    mu     sync.Mutex
    cap    int
    subs   map[*Subscription[T]]struct{}
    closed bool
}

func NewBroadcast[T any](capacity int) *Broadcast[T] {
    if capacity <= 0 { capacity = 1 }
    return &Broadcast[T]{cap: capacity, subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe returns a subscription receiving events sent from now on.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
    s := &Subscription[T]{b: b, buf: make([]T, b.cap), notify: make(chan struct{}, 1)}
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed {
        s.closed = true
        return s
    }
    b.subs[s] = struct{}{}
    return s
}

func (b *Broadcast[T]) Send(v T) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed { return }
    for s := range b.subs { s.push(v) }
}

// Close ends every subscription after its pending events are drained.
func (b *Broadcast[T]) Close() {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed { return }
    b.closed = true
    for s := range b.subs { s.markClosed() }
    b.subs = nil
}

func (b *Broadcast[T]) unsubscribe(s *Subscription[T]) {
    b.mu.Lock()
    if b.subs != nil { delete(b.subs, s) }
    b.mu.Unlock()
}

// Subscription is one consumer of a Broadcast. A single goroutine is expected
// to call Recv.
type Subscription[T any] struct {
    b *Broadcast[T]

    mu     sync.Mutex
    buf    []T
    head   int
    n      int
    missed uint64
    closed bool
    notify chan struct{}
}

func (s *Subscription[T]) push(v T) {
    s.mu.Lock()
    if s.n == len(s.buf) {
        var zero T
        s.buf[s.head] = zero
        s.head = (s.head + 1) % len(s.buf)
        s.n--
        s.missed++
    }
    s.buf[(s.head+s.n)%len(s.buf)] = v
    s.n++
    s.mu.Unlock()
    s.wake()
}

func (s *Subscription[T]) markClosed() {
    s.mu.Lock()
    s.closed = true
    s.mu.Unlock()
    s.wake()
}

func (s *Subscription[T]) wake() {
    select {
    case s.notify <- struct{}{}:
    default:
    }
}

// Recv returns the next event. If events were dropped since the last call it
// first returns a *LaggedError; the following call continues with the oldest
// retained event. After Close, remaining events are delivered, then ErrClosed.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
    var zero T
    for {
        s.mu.Lock()
        if s.missed > 0 {
            missed := s.missed
            s.missed = 0
            s.mu.Unlock()
            return zero, &LaggedError{Missed: missed}
        }
        if s.n > 0 {
            v := s.buf[s.head]
            s.buf[s.head] = zero
            s.head = (s.head + 1) % len(s.buf)
            s.n--
            s.mu.Unlock()
            return v, nil
        }
        closed := s.closed
        s.mu.Unlock()
        if closed { return zero, ErrClosed }

        select {
        case <-ctx.Done():
            return zero, ctx.Err()
        case <-s.notify:
        }
    }
}

// Close detaches the subscription. Pending events can still be drained.
func (s *Subscription[T]) Close() {
    s.b.unsubscribe(s)
    s.markClosed()
}
