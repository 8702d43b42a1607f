package audio

import "sync"

// Ring is a bounded PCM sample buffer between a decode path and the playback
// callback. When full, the oldest samples are dropped so queued latency stays
// bounded. Reads that underrun are padded with silence instead of blocking;
// the playback callback must never wait on the network.
type Ring struct {
	mu      sync.Mutex
	buf     []int16
	head    int // read position
	size    int // samples currently buffered
	dropped uint64
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Write appends samples, evicting the oldest on overflow.
func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		if r.size == len(r.buf) {
			// overwrite oldest
			r.head = (r.head + 1) % len(r.buf)
			r.size--
			r.dropped++
		}
		tail := (r.head + r.size) % len(r.buf)
		r.buf[tail] = s
		r.size++
	}
}

// Read fills out with buffered samples, zero-padding any shortfall.
// Returns the number of real samples copied.
func (r *Ring) Read(out []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(out)
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		out[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
	}
	r.size -= n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Dropped returns the total samples evicted by overflow.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
