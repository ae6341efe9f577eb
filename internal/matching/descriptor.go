// Package matching scores query images against a corpus and ranks the results.
package matching

import (
	apperrors "github.com/your-org/mpr/internal/errors"
)

const (
	// SampleStride is the byte stride used when sampling image data.
	SampleStride = 100
	// HistogramBuckets is the fixed number of color histogram buckets.
	HistogramBuckets = 16
	// FingerprintSize is the fixed length of the structural fingerprint.
	FingerprintSize = 64
	// EdgeThreshold is the absolute successive-sample delta counted as an edge.
	EdgeThreshold = 30
)

// Descriptor is a compact summary of raw image bytes. It is computed per
// request and never stored.
type Descriptor struct {
	Brightness  float64                   // mean sampled byte value, [0,255]
	Contrast    float64                   // max - min sampled byte value
	Histogram   [HistogramBuckets]float64 // normalized, sums to 1
	Texture     float64                   // edges per sample
	Fingerprint [FingerprintSize]float64  // positional means in [0,1]
	Size        int                       // raw byte length
}

// Extract derives a Descriptor from raw image bytes, reading every
// SampleStride-th byte. The result is deterministic for identical input.
func Extract(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, apperrors.NewInvalidInputError("image data is empty", nil)
	}

	samples := sample(data)
	n := float64(len(samples))

	d := &Descriptor{Size: len(data)}

	var sum float64
	lo, hi := samples[0], samples[0]
	edges := 0
	for i, v := range samples {
		sum += float64(v)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		d.Histogram[v/16]++
		if i > 0 && absDiff(v, samples[i-1]) > EdgeThreshold {
			edges++
		}
	}

	d.Brightness = sum / n
	d.Contrast = float64(hi - lo)
	d.Texture = float64(edges) / n
	for i := range d.Histogram {
		d.Histogram[i] /= n
	}
	d.Fingerprint = fingerprint(samples)

	return d, nil
}

func sample(data []byte) []byte {
	out := make([]byte, 0, (len(data)+SampleStride-1)/SampleStride)
	for i := 0; i < len(data); i += SampleStride {
		out = append(out, data[i])
	}
	return out
}

// fingerprint splits the samples into FingerprintSize contiguous segments and
// takes each segment's mean. Short inputs repeat samples so the length stays fixed.
func fingerprint(samples []byte) [FingerprintSize]float64 {
	var fp [FingerprintSize]float64
	n := len(samples)

	for k := 0; k < FingerprintSize; k++ {
		start := k * n / FingerprintSize
		end := (k + 1) * n / FingerprintSize
		if end <= start {
			fp[k] = float64(samples[start]) / 255
			continue
		}
		var sum float64
		for _, v := range samples[start:end] {
			sum += float64(v)
		}
		fp[k] = sum / float64(end-start) / 255
	}
	return fp
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
