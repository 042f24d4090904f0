package relay

import (
	"sort"
	"sync"
)

// Registry maps topic keys to live topics. Its lock only covers the map; it is
// never held while a topic lock is taken, so registry operations cannot wait on
// traffic in some unrelated topic.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*Topic
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

// GetOrCreate returns the live topic for key, creating it if there is none or
// if the mapped one has retired.
func (r *Registry) GetOrCreate(key string) *Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[key]; ok && !t.retired.Load() {
		return t
	}
	t := newTopic(key)
	r.topics[key] = t
	return t
}

// Get returns the topic for key, if it is live.
func (r *Registry) Get(key string) (*Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[key]
	if !ok || t.retired.Load() {
		return nil, false
	}
	return t, true
}

// RemoveIfEmpty drops the topic for key if its member set has emptied. A topic
// that has just been created and not yet joined is left alone.
func (r *Registry) RemoveIfEmpty(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[key]
	if !ok || !t.retired.Load() {
		return false
	}
	delete(r.topics, key)
	return true
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// Snapshot describes every live topic, ordered by key.
func (r *Registry) Snapshot() []TopicInfo {
	r.mu.Lock()
	topics := make([]*Topic, 0, len(r.topics))
	for _, t := range r.topics {
		topics = append(topics, t)
	}
	r.mu.Unlock()

	infos := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		if t.retired.Load() {
			continue
		}
		infos = append(infos, t.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
