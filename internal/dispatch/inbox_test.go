package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdesk/botstream/internal/model"
)

func TestInbox_PutTake(t *testing.T) {
	b := NewInbox[int](10, 0)

	for i := 0; i < 5; i++ {
		require.True(t, b.Put(i))
	}
	assert.Equal(t, 5, b.Len())

	for i := 0; i < 5; i++ {
		v, ok := b.TryTake()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := b.TryTake()
	assert.False(t, ok)
}

func TestInbox_GrowAt70Percent(t *testing.T) {
	b := NewInbox[int](10, 0)
	for i := 0; i < 7; i++ {
		b.Put(i)
	}

	stats := b.Stats()
	assert.Greater(t, stats.Capacity, 10)
	assert.Equal(t, 1, stats.ResizeCount)

	for i := 0; i < 7; i++ {
		v, ok := b.TryTake()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestInbox_GrowPreservesOrderAfterWrap(t *testing.T) {
	b := NewInbox[int](10, 0)

	// Move head forward so the next fill wraps.
	for i := 0; i < 5; i++ {
		b.Put(i)
	}
	for i := 0; i < 5; i++ {
		b.TryTake()
	}
	for i := 100; i < 120; i++ {
		b.Put(i)
	}

	for i := 100; i < 120; i++ {
		v, ok := b.TryTake()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestInbox_LimitDropsOldest(t *testing.T) {
	b := NewInbox[int](2, 4)
	for i := 0; i < 10; i++ {
		require.True(t, b.Put(i))
	}

	stats := b.Stats()
	assert.Equal(t, 4, stats.Capacity)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, int64(6), stats.Dropped)

	for want := 6; want < 10; want++ {
		v, ok := b.TryTake()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestInbox_CloseDrains(t *testing.T) {
	b := NewInbox[int](4, 0)
	b.Put(1)
	b.Close()

	assert.False(t, b.Put(2))

	v, ok := b.Take(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = b.Take(context.Background())
	assert.False(t, ok)
}

func TestInbox_TakeBlocksUntilPut(t *testing.T) {
	b := NewInbox[int](4, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = b.Take(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	b.Put(42)
	wg.Wait()

	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestInbox_TakeHonoursContext(t *testing.T) {
	b := NewInbox[int](4, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := b.Take(ctx)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBuffered_AsSubscriber(t *testing.T) {
	r := NewRegistry(nil)
	buf := NewBuffered(8, 0)
	r.Subscribe(buf)
	r.Subscribe(buf)

	r.Dispatch(model.Message{Type: model.TypeBotUpdate, BotID: "b1"})
	r.Dispatch(model.Message{Type: model.TypeBotUpdate, BotID: "b2"})

	assert.Equal(t, 1, r.Len())
	require.Equal(t, 2, buf.Len())

	first, _ := buf.TryTake()
	second, _ := buf.TryTake()
	assert.Equal(t, "b1", first.BotID)
	assert.Equal(t, "b2", second.BotID)
}
