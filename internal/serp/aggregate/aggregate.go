// Package aggregate runs the volatility scorer over every tracked keyword of
// a project and folds the per-keyword results into project-wide risk
// statistics: bucketed counts, a sample-weighted score, a concentration
// ratio, and the top risk keywords.
package aggregate

import (
	"sort"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/score"
)

// TopRiskKeywordCount is how many keywords the concentration ratio and the
// top-risk list consider.
const TopRiskKeywordCount = 3

// KeywordVolatility is one keyword target annotated with its computed
// profile and classifications.
type KeywordVolatility struct {
	Target                serp.KeywordTarget     `json:"target"`
	Profile               serp.VolatilityProfile `json:"profile"`
	Regime                serp.Regime            `json:"regime"`
	Maturity              serp.Maturity          `json:"maturity"`
	ExceedsAlertThreshold bool                   `json:"exceeds_alert_threshold"`
}

// Active reports whether the keyword has at least one consecutive snapshot
// pair and therefore contributes to weighted statistics.
func (k KeywordVolatility) Active() bool {
	return k.Profile.SampleSize >= 1
}

// VolatilityBuckets counts keywords per score band. The bands share the
// regime cut points: high >= 60, medium in [30,60), low in (0,30),
// stable == 0. The four counts always sum to the keyword count.
type VolatilityBuckets struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Stable int `json:"stable"`
}

// MaturityBuckets counts keywords per maturity class. The three counts
// always sum to the keyword count.
type MaturityBuckets struct {
	Preliminary int `json:"preliminary"`
	Developing  int `json:"developing"`
	Stable      int `json:"stable"`
}

// ProjectSummary is the project-wide aggregate view.
type ProjectSummary struct {
	KeywordCount            int                 `json:"keyword_count"`
	ActiveKeywordCount      int                 `json:"active_keyword_count"`
	AverageVolatility       float64             `json:"average_volatility"`
	MaxVolatility           float64             `json:"max_volatility"`
	VolatilityBuckets       VolatilityBuckets   `json:"volatility_buckets"`
	MaturityBuckets         MaturityBuckets     `json:"maturity_buckets"`
	WeightedVolatilityScore float64             `json:"weighted_volatility_score"`
	ConcentrationRatio      *float64            `json:"concentration_ratio"`
	TopRiskKeywords         []KeywordVolatility `json:"top_risk_keywords"`
}

// GroupByKey partitions snapshots by their natural tracking key in a single
// pass. Slice order within each group follows the input order, which the
// stores deliver as (captured_at asc, id asc).
func GroupByKey(snapshots []serp.Snapshot) map[serp.KeywordKey][]serp.Snapshot {
	grouped := make(map[serp.KeywordKey][]serp.Snapshot)
	for _, snap := range snapshots {
		key := snap.Key()
		grouped[key] = append(grouped[key], snap)
	}
	return grouped
}

// ScoreKeywords runs the scorer once per keyword target against the grouped
// snapshots and annotates each result with regime, maturity, and the alert
// threshold flag. The result preserves target order.
func ScoreKeywords(targets []serp.KeywordTarget, grouped map[serp.KeywordKey][]serp.Snapshot, alertThreshold float64) []KeywordVolatility {
	keywords := make([]KeywordVolatility, 0, len(targets))
	for _, target := range targets {
		profile := score.Profile(grouped[target.Key()])
		keywords = append(keywords, KeywordVolatility{
			Target:                target,
			Profile:               profile,
			Regime:                score.RegimeFor(profile.VolatilityScore),
			Maturity:              score.MaturityFor(profile.SampleSize),
			ExceedsAlertThreshold: profile.VolatilityScore > alertThreshold,
		})
	}
	return keywords
}

// Summarize computes the full project aggregate from scored keywords.
func Summarize(keywords []KeywordVolatility) ProjectSummary {
	summary := ProjectSummary{
		KeywordCount:    len(keywords),
		TopRiskKeywords: []KeywordVolatility{},
	}
	if len(keywords) == 0 {
		return summary
	}

	var (
		scoreSum    float64
		weightedSum float64
		weightTotal float64
	)
	for _, kw := range keywords {
		s := kw.Profile.VolatilityScore
		scoreSum += s
		if s > summary.MaxVolatility {
			summary.MaxVolatility = s
		}

		switch {
		case s >= score.ChaoticFloor:
			summary.VolatilityBuckets.High++
		case s >= score.UnstableFloor:
			summary.VolatilityBuckets.Medium++
		case s > 0:
			summary.VolatilityBuckets.Low++
		default:
			summary.VolatilityBuckets.Stable++
		}

		switch kw.Maturity {
		case serp.MaturityStable:
			summary.MaturityBuckets.Stable++
		case serp.MaturityDeveloping:
			summary.MaturityBuckets.Developing++
		default:
			summary.MaturityBuckets.Preliminary++
		}

		if kw.Active() {
			summary.ActiveKeywordCount++
			weight := float64(kw.Profile.SampleSize)
			weightedSum += s * weight
			weightTotal += weight
		}
	}

	// Inactive keywords stay in the mean: excluding them would inflate the
	// average and misrepresent project-wide stability.
	summary.AverageVolatility = score.Round2(scoreSum / float64(len(keywords)))
	if weightTotal > 0 {
		summary.WeightedVolatilityScore = score.Round2(weightedSum / weightTotal)
	}

	ranked := RankKeywords(keywords, serp.MaturityPreliminary)
	summary.ConcentrationRatio = ConcentrationRatio(ranked)
	for _, kw := range ranked {
		if !kw.Active() {
			continue
		}
		summary.TopRiskKeywords = append(summary.TopRiskKeywords, kw)
		if len(summary.TopRiskKeywords) == TopRiskKeywordCount {
			break
		}
	}
	return summary
}

// RankKeywords filters keywords below the minimum maturity and sorts the
// rest by volatility score descending, query ascending, keyword id
// ascending. The tie-break order is exact so identical inputs always rank
// identically.
func RankKeywords(keywords []KeywordVolatility, minMaturity serp.Maturity) []KeywordVolatility {
	ranked := make([]KeywordVolatility, 0, len(keywords))
	for _, kw := range keywords {
		if kw.Maturity >= minMaturity {
			ranked = append(ranked, kw)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Profile.VolatilityScore != b.Profile.VolatilityScore {
			return a.Profile.VolatilityScore > b.Profile.VolatilityScore
		}
		if a.Target.Query != b.Target.Query {
			return a.Target.Query < b.Target.Query
		}
		return a.Target.ID < b.Target.ID
	})
	return ranked
}

// ConcentrationRatio is the fraction of total active-keyword volatility
// attributable to the top-3 active keywords, rounded to 4 decimals. It is
// nil when the active score sum is zero. The input must already be ranked
// by RankKeywords.
func ConcentrationRatio(ranked []KeywordVolatility) *float64 {
	var topSum, totalSum float64
	active := 0
	for _, kw := range ranked {
		if !kw.Active() {
			continue
		}
		totalSum += kw.Profile.VolatilityScore
		if active < TopRiskKeywordCount {
			topSum += kw.Profile.VolatilityScore
		}
		active++
	}
	if totalSum == 0 {
		return nil
	}
	ratio := score.Round4(topSum / totalSum)
	return &ratio
}
