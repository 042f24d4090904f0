package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	reg := NewRegistry()

	a := reg.GetOrCreate("/show1")
	b := reg.GetOrCreate("/show1")
	c := reg.GetOrCreate("/show2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	reg := NewRegistry()

	const workers = 64
	got := make([]*Topic, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			got[i] = reg.GetOrCreate("/show1")
		}(i)
	}
	wg.Wait()

	for _, topic := range got {
		assert.Same(t, got[0], topic)
	}
}

func TestRegistry_RemoveIfEmpty(t *testing.T) {
	t.Run("fresh topic awaiting its first member stays", func(t *testing.T) {
		reg := NewRegistry()
		reg.GetOrCreate("/show1")

		assert.False(t, reg.RemoveIfEmpty("/show1"))
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("topic with members stays", func(t *testing.T) {
		reg := NewRegistry()
		topic := reg.GetOrCreate("/show1")
		topic.mu.Lock()
		_, _, ok := topic.addLocked(newConn(1, "/show1", 1))
		topic.mu.Unlock()
		require.True(t, ok)

		assert.False(t, reg.RemoveIfEmpty("/show1"))
		_, live := reg.Get("/show1")
		assert.True(t, live)
	})

	t.Run("emptied topic is removed", func(t *testing.T) {
		reg := NewRegistry()
		topic := reg.GetOrCreate("/show1")
		conn := newConn(1, "/show1", 1)

		topic.mu.Lock()
		topic.addLocked(conn)
		remaining, removed := topic.removeLocked(conn)
		topic.mu.Unlock()
		require.True(t, removed)
		require.Zero(t, remaining)

		assert.True(t, reg.RemoveIfEmpty("/show1"))
		assert.Zero(t, reg.Len())
	})

	t.Run("unknown key is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		assert.False(t, reg.RemoveIfEmpty("/nope"))
	})
}

func TestRegistry_RetiredTopicIsReplaced(t *testing.T) {
	reg := NewRegistry()
	old := reg.GetOrCreate("/show1")
	conn := newConn(1, "/show1", 1)

	old.mu.Lock()
	old.addLocked(conn)
	old.secret = "x"
	old.cached = []byte(`{}`)
	old.removeLocked(conn)
	old.mu.Unlock()

	_, live := reg.Get("/show1")
	assert.False(t, live, "retired topics are not returned")

	fresh := reg.GetOrCreate("/show1")
	assert.NotSame(t, old, fresh)
	assert.Empty(t, fresh.secret)
	assert.Nil(t, fresh.cached)

	old.mu.Lock()
	_, _, ok := old.addLocked(newConn(2, "/show1", 1))
	old.mu.Unlock()
	assert.False(t, ok, "a retired topic refuses new members")

	assert.False(t, reg.RemoveIfEmpty("/show1"), "the fresh replacement must not be removed")
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry()
	b := reg.GetOrCreate("/b")
	reg.GetOrCreate("/a")

	b.mu.Lock()
	b.addLocked(newConn(1, "/b", 1))
	b.secret = "x"
	b.mu.Unlock()

	infos := reg.Snapshot()
	require.Len(t, infos, 2)
	assert.Equal(t, TopicInfo{Key: "/a"}, infos[0])
	assert.Equal(t, TopicInfo{Key: "/b", Members: 1, Protected: true}, infos[1])
}
