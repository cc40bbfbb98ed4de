package audio

import (
	"context"
	"time"
)

// BandProcessor samples a Source on a fixed cadence and reduces each
// spectrum to a fixed number of volume bands in [0,1].
type BandProcessor struct {
	bands    int
	interval time.Duration
}

// NewBandProcessor creates a processor emitting bands values per sample.
// Non-positive band counts fall back to DefaultBands.
func NewBandProcessor(bands int, opts ...Option) *BandProcessor {
	if bands <= 0 {
		bands = DefaultBands
	}
	p := &BandProcessor{bands: bands, interval: DefaultInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bands returns the number of values per sample.
func (p *BandProcessor) Bands() int {
	return p.bands
}

// Sample starts sampling src and returns the stream of band vectors. The
// channel is closed when ctx is cancelled. A nil src yields a closed channel.
// Each call has its own smoothing state; a stream cannot be restarted.
func (p *BandProcessor) Sample(ctx context.Context, src Source) <-chan []float64 {
	out := make(chan []float64, 1)
	if src == nil {
		close(out)
		return out
	}

	go func() {
		defer close(out)

		a := newAnalyser()
		db := make([]float64, FFTSize/2)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			a.frequencyDB(src, db)
			sample := Reduce(db[LowBin:HighBin], p.bands)

			select {
			case out <- sample:
			case <-ctx.Done():
				return
			default:
				// Slow consumer: replace the pending sample with the newest.
				select {
				case <-out:
				default:
				}
				select {
				case out <- sample:
				default:
				}
			}
		}
	}()
	return out
}

// Reduce normalises each dB value and averages them in bands equal chunks.
// The chunk size is rounded up, so trailing chunks may be short or empty;
// an empty chunk yields 0.
func Reduce(db []float64, bands int) []float64 {
	out := make([]float64, bands)
	if len(db) == 0 || bands <= 0 {
		return out
	}
	chunk := (len(db) + bands - 1) / bands
	for i := range out {
		lo := i * chunk
		hi := min(lo+chunk, len(db))
		if lo >= hi {
			continue
		}
		var sum float64
		for _, v := range db[lo:hi] {
			sum += NormalizeDB(v)
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}
