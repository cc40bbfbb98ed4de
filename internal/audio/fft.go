package audio

import (
	"math"
	"math/cmplx"
)

// blackmanWindow returns the classic Blackman window (alpha 0.16) of length n.
func blackmanWindow(n int) []float64 {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

// fft performs an in-place iterative radix-2 transform. len(x) must be a
// power of two.
func fft(x []complex128) {
	n := len(x)

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := range half {
				w := cmplx.Rect(1, step*float64(k))
				a := x[start+k]
				b := w * x[start+k+half]
				x[start+k] = a + b
				x[start+k+half] = a - b
			}
		}
	}
}

// analyser keeps the smoothed spectrum between frames.
type analyser struct {
	window   []float64
	frame    []float64
	spectrum []complex128
	smoothed []float64
}

func newAnalyser() *analyser {
	return &analyser{
		window:   blackmanWindow(FFTSize),
		frame:    make([]float64, FFTSize),
		spectrum: make([]complex128, FFTSize),
		smoothed: make([]float64, FFTSize/2),
	}
}

// frequencyDB analyses the newest FFTSize samples of src and writes the
// smoothed per-bin level in dB to dst, which must hold FFTSize/2 values.
// Missing samples count as silence.
func (a *analyser) frequencyDB(src Source, dst []float64) {
	clear(a.frame)
	n := src.Latest(a.frame)
	// Right-align so the newest sample sits at the end of the window.
	if n < FFTSize {
		copy(a.frame[FFTSize-n:], a.frame[:n])
		clear(a.frame[:FFTSize-n])
	}

	for i, s := range a.frame {
		a.spectrum[i] = complex(s*a.window[i], 0)
	}
	fft(a.spectrum)

	for k := range a.smoothed {
		mag := cmplx.Abs(a.spectrum[k]) / FFTSize
		a.smoothed[k] = SmoothingTimeConstant*a.smoothed[k] + (1-SmoothingTimeConstant)*mag
		dst[k] = MagnitudeToDB(a.smoothed[k])
	}
}
