package ranking

import (
	"errors"
	"fmt"
	"math"
)

const weightSumTolerance = 1e-6

// Weights of the composite score. They must sum to 1.0.
type Weights struct {
	MarketCap        float64 `mapstructure:"market_cap" json:"marketCap"`
	Volume           float64 `mapstructure:"volume" json:"volume"`
	Momentum         float64 `mapstructure:"momentum" json:"momentum"`
	EngineConfidence float64 `mapstructure:"engine_confidence" json:"engineConfidence"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.MarketCap + w.Volume + w.Momentum + w.EngineConfidence
}

// Thresholds map composite scores onto buckets. Boundaries belong to the higher bucket.
type Thresholds struct {
	Buy   float64 `mapstructure:"buy" json:"buy"`
	Watch float64 `mapstructure:"watch" json:"watch"`
}

// Config is the immutable input of a ranking computation.
type Config struct {
	Weights          Weights    `mapstructure:"weights" json:"weights"`
	Thresholds       Thresholds `mapstructure:"thresholds" json:"thresholds"`
	EngineConfidence float64    `mapstructure:"engine_confidence" json:"engineConfidence"`
	EngineRisk       float64    `mapstructure:"engine_risk" json:"engineRisk"`
	MaxPerBucket     int        `mapstructure:"max_per_bucket" json:"maxPerBucket"`
}

// DefaultConfig returns the reference weights and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			MarketCap:        0.30,
			Volume:           0.25,
			Momentum:         0.25,
			EngineConfidence: 0.20,
		},
		Thresholds: Thresholds{
			Buy:   70,
			Watch: 40,
		},
		EngineConfidence: 50,
		EngineRisk:       50,
		MaxPerBucket:     50,
	}
}

// Validate rejects configurations that would produce non comparable scores.
func (c Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"market_cap":        w.MarketCap,
		"volume":            w.Volume,
		"momentum":          w.Momentum,
		"engine_confidence": w.EngineConfidence,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("ranking.weights.%s must be a non-negative number", name)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("ranking.weights must sum to 1.0, got %.6f", sum)
	}
	if c.Thresholds.Watch < 0 || c.Thresholds.Buy > 100 {
		return errors.New("ranking.thresholds must lie within [0, 100]")
	}
	if c.Thresholds.Watch > c.Thresholds.Buy {
		return errors.New("ranking.thresholds.watch cannot exceed ranking.thresholds.buy")
	}
	if c.EngineConfidence < 0 || c.EngineConfidence > 100 {
		return errors.New("ranking.engine_confidence must lie within [0, 100]")
	}
	if c.MaxPerBucket <= 0 {
		return errors.New("ranking.max_per_bucket must be greater than zero")
	}
	return nil
}
