package memkv

import (
    "container/heap"
    "strings"
    "sync"
    "sync/atomic"
    "time"
)

type Options struct {
    Shards   int              // number of shards (default 256)
    MaxBytes uint64           // cap on total value bytes (0 = unlimited)
    Now      func() time.Time // time source (default time.Now)
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 256 }
    if o.Now == nil { o.Now = time.Now }
    return o
}

type Store struct {
    opts    Options
    shards  []shard
    expq    expQueue
    wakeCh  chan struct{}
    closeCh chan struct{}
    once    sync.Once
    wg      sync.WaitGroup

    mKeys    atomic.Uint64
    mBytes   atomic.Uint64
    mSets    atomic.Uint64
    mGets    atomic.Uint64
    mHits    atomic.Uint64
    mMisses  atomic.Uint64
    mDels    atomic.Uint64
    mExpired atomic.Uint64
    mUpdates atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano; 0 = no expiry
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:    opts,
        shards:  make([]shard, opts.Shards),
        wakeCh:  make(chan struct{}, 1),
        closeCh: make(chan struct{}),
    }
    for i := range s.shards {
        s.shards[i].m = make(map[string]*entry)
    }
    s.wg.Add(1)
    go s.expirer()
    return s
}

// Close stops the expirer. It is safe to call more than once.
func (s *Store) Close() {
    s.once.Do(func() { close(s.closeCh) })
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    // FNV-1a 64
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[int(h%uint64(len(s.shards)))]
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// tryAddBytes reserves delta bytes against MaxBytes.
func (s *Store) tryAddBytes(delta uint64) bool {
    if s.opts.MaxBytes == 0 {
        s.mBytes.Add(delta)
        return true
    }
    for {
        cur := s.mBytes.Load()
        next := cur + delta
        if next > s.opts.MaxBytes { return false }
        if s.mBytes.CompareAndSwap(cur, next) { return true }
    }
}

func (s *Store) subBytes(n int) {
    if n <= 0 { return }
    for {
        cur := s.mBytes.Load()
        next := uint64(0)
        if uint64(n) < cur { next = cur - uint64(n) }
        if s.mBytes.CompareAndSwap(cur, next) { return }
    }
}

// removeLocked drops key from sh; caller holds sh.mu.
func (s *Store) removeLocked(sh *shard, key string, e *entry, expired bool) {
    delete(sh.m, key)
    s.mKeys.Add(^uint64(0))
    s.subBytes(len(e.val))
    if expired {
        s.mExpired.Add(1)
    } else {
        s.mDels.Add(1)
    }
}

// Set stores a copy of val. ttl <= 0 means no expiry. Returns false when the
// byte cap would be exceeded.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    expAt := int64(0)
    if ttl > 0 { expAt = s.opts.Now().Add(ttl).UnixNano() }
    v := clone(val)

    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    oldLen := 0
    if existed { oldLen = len(prev.val) }
    if delta := len(v) - oldLen; delta > 0 {
        if !s.tryAddBytes(uint64(delta)) {
            sh.mu.Unlock()
            return false
        }
    } else {
        s.subBytes(-delta)
    }
    sh.m[key] = &entry{val: v, expireAt: expAt}
    if !existed { s.mKeys.Add(1) }
    s.mSets.Add(1)
    sh.mu.Unlock()

    if expAt != 0 { s.enqueueExpire(key, expAt) }
    return true
}

// Get returns a copy of the value.
func (s *Store) Get(key string) ([]byte, bool) {
    s.mGets.Add(1)
    sh := s.shardFor(key)
    now := s.opts.Now().UnixNano()
    sh.mu.RLock()
    e, ok := sh.m[key]
    if ok && !e.expired(now) {
        v := clone(e.val)
        sh.mu.RUnlock()
        s.mHits.Add(1)
        return v, true
    }
    sh.mu.RUnlock()
    if ok {
        // lazy expiry
        sh.mu.Lock()
        if e2, ok2 := sh.m[key]; ok2 && e2.expired(now) { s.removeLocked(sh, key, e2, true) }
        sh.mu.Unlock()
    }
    s.mMisses.Add(1)
    return nil, false
}

// GetDel atomically returns and removes the value.
func (s *Store) GetDel(key string) ([]byte, bool) {
    s.mGets.Add(1)
    sh := s.shardFor(key)
    now := s.opts.Now().UnixNano()
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok {
        s.mMisses.Add(1)
        return nil, false
    }
    if e.expired(now) {
        s.removeLocked(sh, key, e, true)
        s.mMisses.Add(1)
        return nil, false
    }
    s.removeLocked(sh, key, e, false)
    s.mHits.Add(1)
    return e.val, true
}

// Update applies fn to the live value of key. Returns true if it was updated.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
    sh := s.shardFor(key)
    now := s.opts.Now().UnixNano()
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    if e.expired(now) {
        s.removeLocked(sh, key, e, true)
        return false
    }
    newVal := clone(fn(clone(e.val)))
    delta := len(newVal) - len(e.val)
    if delta > 0 && !s.tryAddBytes(uint64(delta)) { return false }
    if delta < 0 { s.subBytes(-delta) }
    e.val = newVal
    s.mUpdates.Add(1)
    return true
}

func (s *Store) Exists(key string) bool {
    _, ok := s.Get(key)
    return ok
}

func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if ok { s.removeLocked(sh, key, e, false) }
    return ok
}

// Expire sets a new TTL. Returns false if the key is missing or expired.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 { return s.Delete(key) }
    now := s.opts.Now()
    exp := now.Add(ttl).UnixNano()

    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if !ok {
        sh.mu.Unlock()
        return false
    }
    if e.expired(now.UnixNano()) {
        s.removeLocked(sh, key, e, true)
        sh.mu.Unlock()
        return false
    }
    e.expireAt = exp
    sh.mu.Unlock()
    s.enqueueExpire(key, exp)
    return true
}

// TTL returns the remaining lifetime. A key without expiry reports (0, true).
func (s *Store) TTL(key string) (time.Duration, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    if !ok {
        sh.mu.RUnlock()
        return 0, false
    }
    exp := e.expireAt
    sh.mu.RUnlock()

    if exp == 0 { return 0, true }
    now := s.opts.Now().UnixNano()
    if exp <= now {
        sh.mu.Lock()
        if e2, ok2 := sh.m[key]; ok2 && e2.expired(now) { s.removeLocked(sh, key, e2, true) }
        sh.mu.Unlock()
        return 0, false
    }
    return time.Duration(exp - now), true
}

// Scan calls fn with a copy of every live key/value whose key has prefix.
// Iteration stops when fn returns false. fn must not call back into the store.
func (s *Store) Scan(prefix string, fn func(key string, val []byte) bool) {
    now := s.opts.Now().UnixNano()
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if !strings.HasPrefix(k, prefix) || e.expired(now) { continue }
            if !fn(k, clone(e.val)) {
                sh.mu.RUnlock()
                return
            }
        }
        sh.mu.RUnlock()
    }
}

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
    Keys    uint64
    Bytes   uint64
    Sets    uint64
    Gets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
    Updates uint64
}

func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.mKeys.Load(),
        Bytes:   s.mBytes.Load(),
        Sets:    s.mSets.Load(),
        Gets:    s.mGets.Load(),
        Hits:    s.mHits.Load(),
        Misses:  s.mMisses.Load(),
        Dels:    s.mDels.Load(),
        Expired: s.mExpired.Load(),
        Updates: s.mUpdates.Load(),
    }
}

// ---- expiry heap ----

type expItem struct {
    when int64
    key  string
}

type expQueue struct {
    mu    sync.Mutex
    items []expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(expItem)) }
func (q *expQueue) Pop() any {
    n := len(q.items)
    it := q.items[n-1]
    q.items = q.items[:n-1]
    return it
}

func (s *Store) enqueueExpire(key string, when int64) {
    s.expq.mu.Lock()
    heap.Push(&s.expq, expItem{when: when, key: key})
    s.expq.mu.Unlock()
    select {
    case s.wakeCh <- struct{}{}:
    default:
    }
}

func (s *Store) expirer() {
    defer s.wg.Done()
    timer := time.NewTimer(time.Hour)
    defer timer.Stop()
    for {
        wait := time.Hour
        for {
            s.expq.mu.Lock()
            if s.expq.Len() == 0 {
                s.expq.mu.Unlock()
                break
            }
            it := s.expq.items[0]
            now := s.opts.Now().UnixNano()
            if it.when > now {
                s.expq.mu.Unlock()
                wait = time.Duration(it.when - now)
                break
            }
            heap.Pop(&s.expq)
            s.expq.mu.Unlock()

            // the key may have been refreshed since this item was queued
            sh := s.shardFor(it.key)
            sh.mu.Lock()
            if e := sh.m[it.key]; e != nil && e.expired(now) { s.removeLocked(sh, it.key, e, true) }
            sh.mu.Unlock()
        }
        if !timer.Stop() {
            select {
            case <-timer.C:
            default:
            }
        }
        timer.Reset(wait)
        select {
        case <-s.closeCh:
            return
        case <-s.wakeCh:
        case <-timer.C:
        }
    }
}
