package smartdelay

import (
	"errors"
	"sync"
	"time"
)

var errQueueRetired = errors.New("conversation queue retired")

// conversationQueue owns the pending fragments and the single timer of one
// conversation. Every mutation happens under mu.
//
// A queue is retired the moment it is flushed; the scheduler then drops it from
// the registry and routes later fragments to a fresh queue.
type conversationQueue struct {
	key    string
	onFire func(q *conversationQueue, generation uint64)

	mu         sync.Mutex
	fragments  []Fragment
	firstAt    time.Time
	deadline   time.Time
	capped     bool
	timer      *time.Timer
	generation uint64
	retired    bool
}

type acceptResult struct {
	// flushed is set when the fragment closed the batch immediately.
	flushed    []Fragment
	// capped is set when the maximum delay forced the flush.
	capped     bool
	deadline   time.Time
	generation uint64
}

func newConversationQueue(key string, onFire func(q *conversationQueue, generation uint64)) *conversationQueue {
	return &conversationQueue{
		key:    key,
		onFire: onFire,
	}
}

func (q *conversationQueue) accept(f Fragment, c Classification, maxDelay time.Duration, now time.Time) (acceptResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retired {
		return acceptResult{}, errQueueRetired
	}

	if len(q.fragments) == 0 {
		q.firstAt = now
	}
	q.fragments = append(q.fragments, f)

	if c.Delay <= 0 {
		return acceptResult{flushed: q.takeLocked()}, nil
	}

	deadline := now.Add(c.Delay)
	capped := false
	if limit := q.firstAt.Add(maxDelay); deadline.After(limit) {
		deadline = limit
		// A lone fragment is only clamped; the cap matters once the window was extended.
		capped = len(q.fragments) > 1
	}

	wait := deadline.Sub(now)
	if wait <= 0 {
		return acceptResult{flushed: q.takeLocked(), capped: capped}, nil
	}

	q.generation++
	generation := q.generation
	if q.timer != nil {
		// Stop may lose the race with an already running callback; the
		// generation check in fire covers that case.
		q.timer.Stop()
	}
	q.deadline = deadline
	q.capped = capped
	q.timer = time.AfterFunc(wait, func() {
		q.onFire(q, generation)
	})

	return acceptResult{deadline: deadline, generation: generation}, nil
}

// forceFlush takes the pending fragments regardless of the timer. Returns nil
// when there is nothing to dispatch.
func (q *conversationQueue) forceFlush() []Fragment {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retired {
		return nil
	}
	return q.takeLocked()
}

// fire is the timer path. A callback scheduled under an older generation is a
// no-op. capped reports whether the deadline was cut short by the maximum delay.
func (q *conversationQueue) fire(generation uint64) (fragments []Fragment, capped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retired || generation != q.generation {
		return nil, false
	}
	capped = q.capped
	return q.takeLocked(), capped
}

func (q *conversationQueue) isRetired() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retired
}

func (q *conversationQueue) snapshot() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Key:             q.key,
		Pending:         len(q.fragments),
		FirstReceivedAt: q.firstAt,
		Deadline:        q.deadline,
		Generation:      q.generation,
	}
}

// takeLocked must be called with mu held.
func (q *conversationQueue) takeLocked() []Fragment {
	fragments := q.fragments

	q.fragments = nil
	q.generation++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.firstAt = time.Time{}
	q.deadline = time.Time{}
	q.capped = false
	q.retired = true

	if len(fragments) == 0 {
		return nil
	}
	return fragments
}
