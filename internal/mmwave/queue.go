package mmwave

import "sync"

// DefaultQueueCapacity is the default bound on the ingest queue.
const DefaultQueueCapacity = 20000

// DetectionQueue is a bounded FIFO carrying Detections from the reader
// goroutine to consumers. It is safe for concurrent use.
//
// Overflow policy: evict-oldest. A push at capacity silently discards the
// oldest queued Detection to admit the new one, keeping the window fresh for
// live monitoring. The producer never blocks.
type DetectionQueue struct {
	mu       sync.Mutex
	items    []Detection
	head     int // index of oldest item
	count    int
	capacity int
	evicted  uint64
}

// NewDetectionQueue creates a queue with the given capacity, or
// DefaultQueueCapacity when capacity is not positive.
func NewDetectionQueue(capacity int) *DetectionQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &DetectionQueue{
		items:    make([]Detection, capacity),
		capacity: capacity,
	}
}

// Push enqueues one Detection, evicting the oldest entry when full.
func (q *DetectionQueue) Push(d Detection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.push(d)
}

// PushAll enqueues a batch under a single lock acquisition.
func (q *DetectionQueue) PushAll(ds []Detection) {
	if len(ds) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range ds {
		q.push(d)
	}
}

func (q *DetectionQueue) push(d Detection) {
	if q.count == q.capacity {
		// Evict the oldest to admit the newest.
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.evicted++
	}
	tail := (q.head + q.count) % q.capacity
	q.items[tail] = d
	q.count++
}

// Drain atomically removes and returns up to max Detections in enqueue
// order. A non-positive max drains nothing.
func (q *DetectionQueue) Drain(max int) []Detection {
	if max <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]Detection, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[(q.head+i)%q.capacity]
	}
	q.head = (q.head + n) % q.capacity
	q.count -= n
	return out
}

// Len returns the current queue depth.
func (q *DetectionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *DetectionQueue) Cap() int {
	return q.capacity
}

// Evicted returns how many Detections the overflow policy has discarded.
func (q *DetectionQueue) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
