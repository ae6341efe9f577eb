package matching

import (
	"math"
)

// Scorer prepares a query image for comparison against corpus images.
type Scorer interface {
	Prepare(query []byte) (Comparator, error)
}

// Comparator scores one candidate image against a prepared query.
// Scores are confidence percentages in [0,100].
type Comparator interface {
	Compare(candidate []byte) (float64, error)
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(candidate []byte) (float64, error)

func (f ComparatorFunc) Compare(candidate []byte) (float64, error) { return f(candidate) }

const (
	sizeRatioExponent    = 0.3
	fingerprintTolerance = 0.2

	weightSize       = 0.2
	weightContent    = 0.5
	weightStructural = 0.3

	weightBrightness = 0.3
	weightContrast   = 0.2
	weightHistogram  = 0.3
	weightTexture    = 0.2
)

// Components holds the noise-free similarity signals between two images.
type Components struct {
	SizeRatio  float64
	Content    float64
	Structural float64
}

// Score combines the components into a percentage before noise and clamping.
func (c Components) Score() float64 {
	return (weightSize*c.SizeRatio + weightContent*c.Content + weightStructural*c.Structural) * 100
}

// Similarity compares two descriptors.
func Similarity(a, b *Descriptor) Components {
	return Components{
		SizeRatio:  sizeRatio(a.Size, b.Size),
		Content:    contentSimilarity(a, b),
		Structural: structuralSimilarity(a, b),
	}
}

func sizeRatio(a, b int) float64 {
	lo, hi := float64(min(a, b)), float64(max(a, b))
	if hi == 0 {
		return 0
	}
	return math.Pow(lo/hi, sizeRatioExponent)
}

func contentSimilarity(a, b *Descriptor) float64 {
	brightness := 1 - math.Abs(a.Brightness-b.Brightness)/255
	contrast := 1 - math.Abs(a.Contrast-b.Contrast)/255

	var hist float64
	for i := range a.Histogram {
		hist += 1 - math.Abs(a.Histogram[i]-b.Histogram[i])
	}
	hist /= HistogramBuckets

	texture := math.Max(0, 1-math.Abs(a.Texture-b.Texture))

	return weightBrightness*brightness + weightContrast*contrast + weightHistogram*hist + weightTexture*texture
}

func structuralSimilarity(a, b *Descriptor) float64 {
	within := 0
	for i := range a.Fingerprint {
		if math.Abs(a.Fingerprint[i]-b.Fingerprint[i]) < fingerprintTolerance {
			within++
		}
	}
	return float64(within) / FingerprintSize
}

// HeuristicScorer scores images by pixel statistics plus a noise term.
// It stands in for a real face model behind the Scorer interface.
type HeuristicScorer struct {
	noise Noise
}

// NewHeuristicScorer returns a scorer using the given noise source; nil disables noise.
func NewHeuristicScorer(noise Noise) *HeuristicScorer {
	if noise == nil {
		noise = NoNoise{}
	}
	return &HeuristicScorer{noise: noise}
}

func (s *HeuristicScorer) Prepare(query []byte) (Comparator, error) {
	q, err := Extract(query)
	if err != nil {
		return nil, err
	}
	return ComparatorFunc(func(candidate []byte) (float64, error) {
		c, err := Extract(candidate)
		if err != nil {
			return 0, err
		}
		return Clamp(Similarity(q, c).Score() + s.noise.Sample()), nil
	}), nil
}

// Clamp bounds a confidence to [0,100].
func Clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
