package smartdelay

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const registryShards = 32

// registry maps conversation keys to queues. Shard locks guard only lookup,
// create and delete; lock order is always shard then queue.
type registry struct {
	shards [registryShards]*registryShard
}

type registryShard struct {
	mu     sync.Mutex
	queues map[string]*conversationQueue
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{queues: make(map[string]*conversationQueue)}
	}
	return r
}

func (r *registry) shard(key string) *registryShard {
	return r.shards[xxhash.Sum64String(key)%registryShards]
}

// getOrCreate returns the live queue for key, replacing a retired one.
func (r *registry) getOrCreate(key string, create func(key string) *conversationQueue) *conversationQueue {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[key]; ok && !q.isRetired() {
		return q
	}
	q := create(key)
	s.queues[key] = q
	return q
}

func (r *registry) get(key string) (*conversationQueue, bool) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[key]
	return q, ok
}

// remove deletes key only if it still points at q.
func (r *registry) remove(key string, q *conversationQueue) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queues[key] == q {
		delete(s.queues, key)
	}
}

func (r *registry) all() []*conversationQueue {
	var queues []*conversationQueue
	for _, s := range r.shards {
		s.mu.Lock()
		for _, q := range s.queues {
			queues = append(queues, q)
		}
		s.mu.Unlock()
	}
	sort.Slice(queues, func(i, j int) bool {
		return queues[i].key < queues[j].key
	})
	return queues
}

func (r *registry) len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.queues)
		s.mu.Unlock()
	}
	return n
}
