package monitor

import (
	"math"
)

// SamplingStrategy decides what fraction of ordinary request metrics to
// record at the current load. Errors and slow requests bypass it entirely.
type SamplingStrategy interface {
	Name() string
	Rate(currentRPS float64) float64
}

// UniformSampling records a fixed fraction of requests regardless of load.
type UniformSampling struct {
	BaseRate float64
}

func (s UniformSampling) Name() string                    { return "uniform" }
func (s UniformSampling) Rate(currentRPS float64) float64 { return s.BaseRate }

// AdaptiveSampling scales the rate down proportionally once load exceeds
// the high-volume threshold, floored at 10%.
type AdaptiveSampling struct {
	BaseRate            float64
	HighVolumeThreshold float64 // RPS above which the rate starts shrinking
}

func (s AdaptiveSampling) Name() string { return "adaptive" }

func (s AdaptiveSampling) Rate(currentRPS float64) float64 {
	if currentRPS <= s.HighVolumeThreshold || currentRPS == 0 {
		return s.BaseRate
	}
	return math.Max(0.1, s.BaseRate*s.HighVolumeThreshold/currentRPS)
}

// TieredSampling steps the rate down through fixed load bands.
type TieredSampling struct {
	BaseRate float64
}

func (s TieredSampling) Name() string { return "tiered" }

func (s TieredSampling) Rate(currentRPS float64) float64 {
	switch {
	case currentRPS > 1000:
		return 0.01
	case currentRPS > 500:
		return 0.05
	case currentRPS > 100:
		return 0.10
	default:
		return s.BaseRate
	}
}

// StrategyFor resolves a configured strategy name. Unknown names fall back
// to uniform sampling.
func StrategyFor(name string, baseRate, highVolumeThreshold float64) SamplingStrategy {
	switch name {
	case "adaptive":
		return AdaptiveSampling{BaseRate: baseRate, HighVolumeThreshold: highVolumeThreshold}
	case "tiered":
		return TieredSampling{BaseRate: baseRate}
	default:
		return UniformSampling{BaseRate: baseRate}
	}
}
