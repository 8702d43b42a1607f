package client

import (
	"sync"
)

const (
	// maxJitterLookahead is how many later packets may exist before the
	// current gap is declared lost and handed to concealment.
	maxJitterLookahead = 10
)

// JitterBuffer reorders one remote user's voice packets and flags losses.
// Sequence numbers are monotonic per sender; arrival order is not.
type JitterBuffer struct {
	mu      sync.Mutex
	frames  map[uint32][]byte // seqNum -> opus payload
	depth   int               // target buffered frames before cleanup kicks in
	nextSeq uint32
	ready   bool
}

// NewJitterBuffer creates a jitter buffer with the given target depth in
// frames (5 frames is ~100ms at 20ms/frame).
func NewJitterBuffer(depth int) *JitterBuffer {
	if depth <= 0 {
		depth = 5
	}
	return &JitterBuffer{
		frames: make(map[uint32][]byte),
		depth:  depth,
	}
}

// Push adds a packet. The first pushed packet anchors the expected sequence.
func (jb *JitterBuffer) Push(seqNum uint32, payload []byte) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if !jb.ready {
		jb.nextSeq = seqNum
		jb.ready = true
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	jb.frames[seqNum] = data

	// Bound memory: drop frames too far from the read position.
	if len(jb.frames) > jb.depth*3 {
		for seq := range jb.frames {
			if seqDistance(seq, jb.nextSeq) > uint32(jb.depth*3) { //nolint:gosec // depth is small and positive
				delete(jb.frames, seq)
			}
		}
	}
}

// Pop returns the next frame in sequence order as (payload, seqNum, true).
// A nil payload with ok=true means the packet was declared lost and the
// caller should produce a concealment frame. ok=false means wait for more
// data; Pop never blocks.
func (jb *JitterBuffer) Pop() ([]byte, uint32, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if !jb.ready {
		return nil, 0, false
	}

	if frame, ok := jb.frames[jb.nextSeq]; ok {
		seq := jb.nextSeq
		delete(jb.frames, jb.nextSeq)
		jb.nextSeq++
		return frame, seq, true
	}

	// The expected frame is missing. If enough later packets already
	// arrived, it is not late but lost.
	for i := uint32(1); i <= maxJitterLookahead; i++ {
		if _, ok := jb.frames[jb.nextSeq+i]; ok {
			seq := jb.nextSeq
			jb.nextSeq++
			return nil, seq, true
		}
	}

	return nil, 0, false
}

// Reset clears the buffer and the sequence anchor.
func (jb *JitterBuffer) Reset() {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.frames = make(map[uint32][]byte)
	jb.ready = false
}

// seqDistance computes the distance between two sequence numbers, handling
// uint32 wraparound.
func seqDistance(a, b uint32) uint32 {
	if a >= b {
		return a - b
	}
	return b - a
}
