// Package score folds a keyword's consecutive pairwise deltas into a single
// composite volatility score with sub-scores, and classifies keywords into
// regimes (by score) and maturities (by sample size).
//
// The weights, caps, and cut points below are part of the observable
// contract: identical inputs must reproduce bit-identical output across
// runs, so they are fixed named constants rather than tunables.
package score

import (
	"math"
	"sort"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/delta"
)

// Signal weights. Average rank shift is the dominant, most actionable
// signal; single-event spikes matter but must not dominate steady state;
// AI-answer-box flips are discrete and noisy; feature churn is the least
// directly actionable and often sparsely populated.
const (
	RankShiftWeight  = 0.40
	MaxShiftWeight   = 0.25
	AIChurnWeight    = 0.20
	FeatureVolWeight = 0.15
)

// Normalization caps for the capped linear scaling of each signal.
const (
	RankShiftCap         = 20.0
	MaxShiftCap          = 50.0
	FeatureVolPerPairCap = 5.0
)

// Regime cut points over the 0-100 score. A score of exactly zero is calm;
// the aggregate buckets (stable/low/medium/high) use the same cut points.
const (
	ShiftingFloor = 0.0
	UnstableFloor = 30.0
	ChaoticFloor  = 60.0
)

// Maturity floors over sample size.
const (
	DevelopingSampleFloor = 3
	StableSampleFloor     = 10
)

// Profile computes the volatility profile for one keyword's full ordered
// snapshot history. Fewer than two snapshots yield the all-zero profile.
// Only adjacent pairs contribute; the input order is re-established from
// (CapturedAt, ID) so the result is independent of caller iteration order.
func Profile(snapshots []serp.Snapshot) serp.VolatilityProfile {
	if len(snapshots) < 2 {
		return serp.VolatilityProfile{}
	}

	ordered := make([]serp.Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	pairs := len(ordered) - 1
	var (
		sumAvgShift float64
		maxShift    float64
		featureSum  int
		flipCount   int
	)
	for i := 1; i < len(ordered); i++ {
		d := delta.Compute(ordered[i-1], ordered[i])
		sumAvgShift += d.AverageRankShift
		if d.MaxRankShift > maxShift {
			maxShift = d.MaxRankShift
		}
		featureSum += d.FeatureChangeCount
		if d.AIOverviewFlipped {
			flipCount++
		}
	}

	avgShift := round4(sumAvgShift / float64(pairs))
	rankNorm := cappedRatio(avgShift, RankShiftCap)
	maxNorm := cappedRatio(maxShift, MaxShiftCap)
	aiNorm := float64(flipCount) / float64(pairs)
	featureNorm := cappedRatio(float64(featureSum)/float64(pairs), FeatureVolPerPairCap)

	return serp.VolatilityProfile{
		SampleSize:             pairs,
		AverageRankShift:       avgShift,
		MaxRankShift:           maxShift,
		FeatureVolatility:      featureSum,
		AIOverviewChurn:        flipCount,
		RankShiftScore:         round4(rankNorm),
		MaxShiftScore:          round4(maxNorm),
		AIChurnScore:           round4(aiNorm),
		FeatureVolatilityScore: round4(featureNorm),
		VolatilityScore:        composite(rankNorm, maxNorm, aiNorm, featureNorm),
	}
}

// PairScore applies the composite scoring formula to a single pairwise
// delta, treating the flip flag as a 0/1 churn ratio. The Alert Engine uses
// it for spike detection and pair-level regime classification.
func PairScore(d delta.Delta) float64 {
	aiNorm := 0.0
	if d.AIOverviewFlipped {
		aiNorm = 1.0
	}
	return composite(
		cappedRatio(d.AverageRankShift, RankShiftCap),
		cappedRatio(d.MaxRankShift, MaxShiftCap),
		aiNorm,
		cappedRatio(float64(d.FeatureChangeCount), FeatureVolPerPairCap),
	)
}

// RegimeFor classifies a volatility score into its stability regime.
func RegimeFor(score float64) serp.Regime {
	switch {
	case score >= ChaoticFloor:
		return serp.RegimeChaotic
	case score >= UnstableFloor:
		return serp.RegimeUnstable
	case score > ShiftingFloor:
		return serp.RegimeShifting
	default:
		return serp.RegimeCalm
	}
}

// MaturityFor classifies a sample size into its confidence maturity.
func MaturityFor(sampleSize int) serp.Maturity {
	switch {
	case sampleSize >= StableSampleFloor:
		return serp.MaturityStable
	case sampleSize >= DevelopingSampleFloor:
		return serp.MaturityDeveloping
	default:
		return serp.MaturityPreliminary
	}
}

func composite(rankNorm, maxNorm, aiNorm, featureNorm float64) float64 {
	weighted := RankShiftWeight*rankNorm +
		MaxShiftWeight*maxNorm +
		AIChurnWeight*aiNorm +
		FeatureVolWeight*featureNorm
	return Round2(100 * weighted)
}

func cappedRatio(value, limit float64) float64 {
	if value >= limit {
		return 1
	}
	if value <= 0 {
		return 0
	}
	return value / limit
}

// Round2 rounds to 2 decimal places. Exported because the aggregate layer
// applies the same rounding rule to project-level scores.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to 4 decimal places, the rule used for rank-shift averages,
// normalized sub-scores, and the concentration ratio.
func Round4(v float64) float64 {
	return round4(v)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
