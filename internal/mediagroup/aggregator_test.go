package mediagroup

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	groups []Group
	done   chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{}, 16)}
}

func (c *collector) onFlush(g Group) {
	c.mu.Lock()
	c.groups = append(c.groups, g)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("group was not flushed")
	}
}

func TestAggregator_DebouncesAlbum(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: 30 * time.Millisecond, OnFlush: c.onFlush})

	assert.True(t, a.Add(Item{ChatID: 1, UserID: 2, MediaGroupID: "g", FileID: "a"}))
	assert.True(t, a.Add(Item{ChatID: 1, UserID: 2, MediaGroupID: "g", FileID: "b", Caption: "up 50 70"}))
	assert.True(t, a.Add(Item{ChatID: 1, UserID: 2, MediaGroupID: "g", FileID: "c", Caption: "ignored"}))
	assert.Equal(t, 1, a.Pending())

	c.wait(t)
	require.Len(t, c.groups, 1)
	assert.Equal(t, []string{"a", "b", "c"}, c.groups[0].FileIDs)
	assert.Equal(t, "up 50 70", c.groups[0].Caption)
	assert.Zero(t, a.Pending())
}

func TestAggregator_FullAlbumFlushesAtOnce(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: time.Hour, OnFlush: c.onFlush})

	for i := 0; i < MaxItems; i++ {
		a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: strconv.Itoa(i)})
	}

	c.wait(t)
	require.Len(t, c.groups, 1)
	assert.Len(t, c.groups[0].FileIDs, MaxItems)
}

func TestAggregator_StopFlushesPending(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: time.Hour, OnFlush: c.onFlush})

	a.Add(Item{ChatID: 1, MediaGroupID: "x", FileID: "a"})
	a.Add(Item{ChatID: 2, MediaGroupID: "x", FileID: "b"})
	a.Stop()

	assert.Len(t, c.groups, 2)
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "y", FileID: "c"}))
}

func TestAggregator_IgnoresNonAlbumItems(t *testing.T) {
	a := New(Options{})
	assert.False(t, a.Add(Item{ChatID: 1, FileID: "a"}))
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "g"}))
	assert.Zero(t, a.Pending())
}
