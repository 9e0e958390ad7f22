package mmwave

import "sync"

// DefaultDisplayCap is the default size of the rolling display buffer.
const DefaultDisplayCap = 5000

// DisplayBuffer is a capped rolling window of classified points backing the
// live view: the newest points are kept, the oldest evicted past the cap.
// Safe for concurrent use.
type DisplayBuffer struct {
	mu    sync.Mutex
	items []ClassifiedPoint
	head  int
	count int
	cap   int
}

// NewDisplayBuffer creates a buffer holding up to capacity points, or
// DefaultDisplayCap when capacity is not positive.
func NewDisplayBuffer(capacity int) *DisplayBuffer {
	if capacity <= 0 {
		capacity = DefaultDisplayCap
	}
	return &DisplayBuffer{
		items: make([]ClassifiedPoint, capacity),
		cap:   capacity,
	}
}

// Add appends classified points, evicting the oldest past the cap.
func (b *DisplayBuffer) Add(points []ClassifiedPoint) {
	if len(points) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range points {
		if b.count == b.cap {
			b.head = (b.head + 1) % b.cap
			b.count--
		}
		b.items[(b.head+b.count)%b.cap] = p
		b.count++
	}
}

// Snapshot returns the buffered points oldest-first.
func (b *DisplayBuffer) Snapshot() []ClassifiedPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ClassifiedPoint, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%b.cap]
	}
	return out
}

// Tail returns the newest n buffered points, oldest-first.
func (b *DisplayBuffer) Tail(n int) []ClassifiedPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]ClassifiedPoint, n)
	start := b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+start+i)%b.cap]
	}
	return out
}

// Len returns the number of buffered points.
func (b *DisplayBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear empties the buffer.
func (b *DisplayBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
