package ranking

import "math"

const (
	momentumFloor = -50.0
	momentumCap   = 50.0
	neutralScore  = 50.0
)

// bounds holds the observed range of one metric across the batch.
type bounds struct {
	min, max float64
}

func boundsOf(values []float64) bounds {
	if len(values) == 0 {
		return bounds{}
	}
	b := bounds{min: values[0], max: values[0]}
	for _, v := range values[1:] {
		b.min = math.Min(b.min, v)
		b.max = math.Max(b.max, v)
	}
	return b
}

// logScale normalises a heavy tailed metric into [0, 100] using log10 min-max.
// A degenerate raw range scores 0; a degenerate log range scores the midpoint.
func logScale(value float64, b bounds) float64 {
	if b.max <= b.min || value <= 0 {
		return 0
	}

	logValue := math.Log10(math.Max(value, 1))
	logMin := math.Log10(math.Max(b.min, 1))
	logMax := math.Log10(math.Max(b.max, 1))
	if logMax <= logMin {
		return neutralScore
	}

	return clamp((logValue-logMin)/(logMax-logMin)*100, 0, 100)
}

// momentum maps a 24h price change in percent onto [0, 100], saturating at +/-50%.
func momentum(priceChange float64) float64 {
	clamped := clamp(priceChange, momentumFloor, momentumCap)
	return clamp((clamped-momentumFloor)/(momentumCap-momentumFloor)*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// finite replaces NaN and infinities with 0 and reports whether it had to.
func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
