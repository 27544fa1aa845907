package priocq

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func pop(t *testing.T, q *MultiLevelQueue) Item {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    it, err := q.Dequeue(ctx)
    require.NoError(t, err)
    return it
}

func TestStrictPriority(t *testing.T) {
    q := New(0)
    require.NoError(t, q.Enqueue(Item{Bytes: []byte("announce"), Dest: "a", Class: L2Bulk}))
    require.NoError(t, q.Enqueue(Item{Bytes: []byte("data"), Dest: "a", Class: L1Realtime}))
    require.NoError(t, q.Enqueue(Item{Bytes: []byte("proof"), Dest: "a", Class: L0Control}))

    assert.Equal(t, "proof", string(pop(t, q).Bytes))
    assert.Equal(t, "data", string(pop(t, q).Bytes))
    assert.Equal(t, "announce", string(pop(t, q).Bytes))
    assert.Equal(t, 0, q.Len())
}

func TestFIFOWithinFlow(t *testing.T) {
    q := New(0)
    for i := 0; i < 50; i++ {
        require.NoError(t, q.Enqueue(Item{Bytes: []byte{byte(i)}, Dest: "a", Class: L1Realtime}))
    }
    for i := 0; i < 50; i++ {
        assert.Equal(t, byte(i), pop(t, q).Bytes[0])
    }
}

func TestRoundRobinAcrossFlows(t *testing.T) {
    q := New(0)
    big := make([]byte, 8192)
    for i := 0; i < 3; i++ {
        require.NoError(t, q.Enqueue(Item{Bytes: big, Dest: "a", Class: L1Realtime}))
        require.NoError(t, q.Enqueue(Item{Bytes: big, Dest: "b", Class: L1Realtime}))
    }
    seen := map[string]int{}
    for i := 0; i < 4; i++ { seen[pop(t, q).Dest]++ }
    assert.Equal(t, 2, seen["a"])
    assert.Equal(t, 2, seen["b"])
}

func TestCapacity(t *testing.T) {
    q := New(1)
    require.NoError(t, q.Enqueue(Item{Bytes: []byte{1}, Dest: "a", Class: L1Realtime}))
    assert.ErrorIs(t, q.Enqueue(Item{Bytes: []byte{2}, Dest: "b", Class: L1Realtime}), ErrFull)
    require.NoError(t, q.Enqueue(Item{Bytes: []byte{3}, Dest: "a", Class: L0Control}))
}

func TestDequeueCancel(t *testing.T) {
    q := New(0)
    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { _, err := q.Dequeue(ctx); done <- err }()
    cancel()
    select {
    case err := <-done:
        assert.ErrorIs(t, err, context.Canceled)
    case <-time.After(time.Second):
        t.Fatal("Dequeue did not return on cancel")
    }
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
    q := New(0)
    got := make(chan Item, 1)
    go func() {
        it, err := q.Dequeue(context.Background())
        if err == nil { got <- it }
    }()
    time.Sleep(10 * time.Millisecond)
    require.NoError(t, q.Enqueue(Item{Bytes: []byte("x"), Dest: "a"}))
    select {
    case it := <-got:
        assert.Equal(t, "x", string(it.Bytes))
    case <-time.After(time.Second):
        t.Fatal("Dequeue not woken")
    }
}
