package priocq

import (
    "context"
    "errors"
    "sync"
    "time"
)

// Class is a priority class: L0 control > L1 realtime > L2 bulk
type Class int

const (
    L0Control Class = iota
    L1Realtime
    L2Bulk
    numClasses
)

func (c Class) String() string {
    switch c {
    case L0Control:
        return "control"
    case L1Realtime:
        return "realtime"
    case L2Bulk:
        return "bulk"
    default:
        return "unknown"
    }
}

// ErrFull is returned by Enqueue when a class is at capacity.
var ErrFull = errors.New("priocq: class queue full")

type Item struct {
    Bytes   []byte
    Dest    string // neighbor id
    Size    int
    Class   Class
    Arrived time.Time
}

// flow implements a DRR queue per destination
type flow struct {
    q       []Item
    deficit int
    quantum int
}

type level struct {
    flows map[string]*flow
    order []string // round robin order
    idx   int
    n     int // queued items
}

// MultiLevelQueue: strict priority between levels, DRR within a level, FIFO
// within a flow.
type MultiLevelQueue struct {
    mu       sync.Mutex
    lvls     [numClasses]*level
    maxItems int
    notify   chan struct{}
}

// New creates a queue. maxItems bounds each class; <= 0 means unbounded.
func New(maxItems int) *MultiLevelQueue {
    q := &MultiLevelQueue{maxItems: maxItems, notify: make(chan struct{}, 1)}
    for i := range q.lvls {
        q.lvls[i] = &level{flows: make(map[string]*flow)}
    }
    return q
}

// Enqueue appends an item to its class/flow.
func (q *MultiLevelQueue) Enqueue(it Item) error {
    if it.Class < 0 || it.Class >= numClasses { it.Class = L2Bulk }
    if it.Size == 0 { it.Size = len(it.Bytes) }
    q.mu.Lock()
    lvl := q.lvls[it.Class]
    if q.maxItems > 0 && lvl.n >= q.maxItems {
        q.mu.Unlock()
        return ErrFull
    }
    f := lvl.flows[it.Dest]
    if f == nil {
        f = &flow{quantum: chooseQuantum(it.Class)}
        lvl.flows[it.Dest] = f
        lvl.order = append(lvl.order, it.Dest)
    }
    f.q = append(f.q, it)
    lvl.n++
    q.mu.Unlock()
    select {
    case q.notify <- struct{}{}:
    default:
    }
    return nil
}

// Len returns the number of queued items across classes.
func (q *MultiLevelQueue) Len() int {
    q.mu.Lock(); defer q.mu.Unlock()
    n := 0
    for _, l := range q.lvls { n += l.n }
    return n
}

func chooseQuantum(c Class) int {
    switch c {
    case L0Control:
        return 2048 // small packets, quick turn
    case L1Realtime:
        return 8192
    default:
        return 65536
    }
}

// Dequeue returns the next item using strict priority and DRR within a level.
// It blocks until an item is available or ctx is done.
func (q *MultiLevelQueue) Dequeue(ctx context.Context) (Item, error) {
    for {
        if it, ok := q.tryPop(); ok { return it, nil }
        select {
        case <-ctx.Done():
            return Item{}, ctx.Err()
        case <-q.notify:
        }
    }
}

func (q *MultiLevelQueue) tryPop() (Item, bool) {
    q.mu.Lock()
    defer q.mu.Unlock()
    for _, lvl := range q.lvls {
        if lvl.n == 0 { continue }
        // every non-empty flow gains a quantum per round, so this terminates
        for {
            n := len(lvl.order)
            for i := 0; i < n; i++ {
                j := (lvl.idx + i) % n
                f := lvl.flows[lvl.order[j]]
                if len(f.q) == 0 { continue }
                if f.q[0].Size > f.deficit {
                    f.deficit += f.quantum
                    continue
                }
                it := f.q[0]
                f.q[0] = Item{}
                f.q = f.q[1:]
                f.deficit -= it.Size
                lvl.n--
                if len(f.q) == 0 {
                    f.deficit = 0
                    q.dropFlow(lvl, j)
                } else {
                    lvl.idx = (j + 1) % len(lvl.order)
                }
                return it, true
            }
        }
    }
    return Item{}, false
}

// dropFlow removes an empty flow so idle neighbors do not accumulate.
func (q *MultiLevelQueue) dropFlow(lvl *level, j int) {
    delete(lvl.flows, lvl.order[j])
    lvl.order = append(lvl.order[:j], lvl.order[j+1:]...)
    if len(lvl.order) == 0 {
        lvl.idx = 0
        return
    }
    lvl.idx = j % len(lvl.order)
}
