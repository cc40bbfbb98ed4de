package audio

import "sync"

// Ring is a fixed-size buffer holding the newest PCM samples of a track.
// It is safe for concurrent use; it implements Source.
type Ring struct {
	mu     sync.Mutex
	buf    []float64
	pos    int // next write index
	filled bool
}

// NewRing creates a ring holding size samples. Sizes below FFTSize are raised
// to FFTSize so a full analysis window is always available.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]float64, max(size, FFTSize))}
}

// Write appends samples, overwriting the oldest when full.
func (r *Ring) Write(samples []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.buf[r.pos] = s
		r.pos++
		if r.pos == len(r.buf) {
			r.pos = 0
			r.filled = true
		}
	}
}

// WritePCM16 appends signed 16-bit samples.
func (r *Ring) WritePCM16(pcm []int16) {
	r.Write(PCM16ToFloat(make([]float64, 0, len(pcm)), pcm))
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return len(r.buf)
	}
	return r.pos
}

// Latest implements Source.
func (r *Ring) Latest(dst []float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.pos
	if r.filled {
		avail = len(r.buf)
	}
	n := min(len(dst), avail)

	start := r.pos - n
	if start < 0 {
		start += len(r.buf)
	}
	first := copy(dst[:n], r.buf[start:min(start+n, len(r.buf))])
	copy(dst[first:n], r.buf[:n-first])
	return n
}

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.pos = 0
	r.filled = false
}
