package relay

import (
	"sync"
	"sync/atomic"
)

// Topic holds the shared state of one topic key. Every field below mu is guarded
// by it; gate evaluation, cache replacement and membership changes for a topic
// all happen while holding mu.
type Topic struct {
	key string

	// retired is set, under mu, when the last member leaves. A retired topic
	// accepts no further members and is dropped from the registry.
	retired atomic.Bool

	mu      sync.Mutex
	secret  string
	members map[uint64]*Conn
	cached  []byte
}

func newTopic(key string) *Topic {
	return &Topic{
		key:     key,
		members: make(map[uint64]*Conn),
	}
}

// Key returns the topic key.
func (t *Topic) Key() string { return t.key }

// Len returns the current member count.
func (t *Topic) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members)
}

// TopicInfo is a point-in-time view of a topic. The secret itself is never exposed.
type TopicInfo struct {
	Key       string `json:"path"`
	Members   int    `json:"members"`
	Protected bool   `json:"protected"`
	Cached    bool   `json:"cached"`
}

func (t *Topic) info() TopicInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TopicInfo{
		Key:       t.key,
		Members:   len(t.members),
		Protected: t.secret != "",
		Cached:    t.cached != nil,
	}
}

// addLocked registers c and queues the cached message for it, so the cache is
// the first thing the new member sees. It reports false if the topic retired
// before the caller got the lock.
func (t *Topic) addLocked(c *Conn) (members int, replayed bool, ok bool) {
	if t.retired.Load() {
		return 0, false, false
	}
	t.members[c.id] = c
	c.topic = t
	if t.cached != nil {
		replayed = c.enqueue(t.cached) == nil
	}
	return len(t.members), replayed, true
}

// removeLocked drops c from the member set. Emptying the topic retires it and
// discards its secret and cache.
func (t *Topic) removeLocked(c *Conn) (remaining int, removed bool) {
	if _, ok := t.members[c.id]; !ok {
		return len(t.members), false
	}
	delete(t.members, c.id)
	if len(t.members) == 0 {
		t.retired.Store(true)
		t.secret = ""
		t.cached = nil
	}
	return len(t.members), true
}

func (t *Topic) hasMemberLocked(c *Conn) bool {
	_, ok := t.members[c.id]
	return ok
}
