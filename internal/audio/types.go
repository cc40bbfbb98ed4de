package audio

import "time"

const (
	// FFTSize is the analysis window length in samples.
	FFTSize = 2048
	// SmoothingTimeConstant blends each spectrum with the previous one.
	SmoothingTimeConstant = 0.8
	// LowBin is the first frequency bin included in the bands.
	LowBin = 100
	// HighBin is the first frequency bin excluded from the bands.
	HighBin = 600
	// DefaultBands is the band count used by the visualizer.
	DefaultBands = 5
	// DefaultInterval is the sampling cadence.
	DefaultInterval = 10 * time.Millisecond
)

// Source exposes the most recent PCM samples of an audio track.
type Source interface {
	// Latest copies up to len(dst) of the newest samples into dst, oldest
	// first, and returns how many were copied.
	Latest(dst []float64) int
}

// Option configures a BandProcessor.
type Option func(*BandProcessor)

// WithInterval sets the sampling cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *BandProcessor) {
		if d > 0 {
			p.interval = d
		}
	}
}
