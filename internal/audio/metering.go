// Package audio turns decoded PCM into a fixed number of normalised volume
// bands for the visualizer.
package audio

import "math"

const (
	// MinDB is the level mapped to an empty band.
	MinDB = -100.0
	// MaxDB is the loudest level the bands distinguish.
	MaxDB = -10.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
)

// NormalizeDB maps a dB level onto [0,1]. Levels are clamped to
// [MinDB, MaxDB] first; -Inf and NaN map to 0.
func NormalizeDB(db float64) float64 {
	if math.IsNaN(db) || math.IsInf(db, -1) {
		return 0
	}
	clamped := max(MinDB, min(MaxDB, db))
	v := math.Sqrt(1 - (-clamped)/100)
	return max(0, min(1, v))
}

// MagnitudeToDB converts a linear magnitude to decibels. Zero gives -Inf.
func MagnitudeToDB(mag float64) float64 {
	return 20 * math.Log10(mag)
}

// PCM16ToFloat converts signed 16-bit samples to [-1,1) floats, appending to dst.
func PCM16ToFloat(dst []float64, pcm []int16) []float64 {
	for _, s := range pcm {
		dst = append(dst, float64(s)/MaxSampleValue)
	}
	return dst
}
