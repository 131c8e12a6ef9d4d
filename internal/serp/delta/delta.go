// Package delta computes the pairwise movement between two chronologically
// consecutive snapshots of the same tracked keyword: rank shift over the URL
// intersection, feature-set churn, and AI-answer-box presence flips.
package delta

import (
	"sort"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/extract"
)

// Delta describes the movement between a (from, to) snapshot pair.
//
// AverageRankShift and MaxRankShift are computed only over URLs present in
// both extracted result sets with a non-nil rank on both sides. URLs present
// on a single side are reported separately as Entered/Exited and do not
// contribute to shift.
type Delta struct {
	AverageRankShift   float64  `json:"average_rank_shift"`
	MaxRankShift       float64  `json:"max_rank_shift"`
	FeatureChangeCount int      `json:"feature_change_count"`
	AIOverviewFlipped  bool     `json:"ai_overview_flipped"`
	Entered            []string `json:"entered,omitempty"`
	Exited             []string `json:"exited,omitempty"`
}

// Compute derives the Delta for two snapshots in chronological order.
func Compute(from, to serp.Snapshot) Delta {
	fromResults, _ := extract.Parse(from.RawPayload)
	toResults, _ := extract.Parse(to.RawPayload)

	fromRanks := rankIndex(fromResults)
	toRanks := rankIndex(toResults)

	var (
		sumShift float64
		maxShift float64
		shared   int
	)
	for url, fromRank := range fromRanks {
		toRank, ok := toRanks[url]
		if !ok || fromRank == nil || toRank == nil {
			continue
		}
		shift := float64(*toRank - *fromRank)
		if shift < 0 {
			shift = -shift
		}
		sumShift += shift
		if shift > maxShift {
			maxShift = shift
		}
		shared++
	}

	d := Delta{
		FeatureChangeCount: symmetricDifferenceSize(
			extract.Features(from.RawPayload),
			extract.Features(to.RawPayload),
		),
		AIOverviewFlipped: from.AIOverviewStatus != to.AIOverviewStatus,
		Entered:           missingFrom(toRanks, fromRanks),
		Exited:            missingFrom(fromRanks, toRanks),
	}
	if shared > 0 {
		d.AverageRankShift = sumShift / float64(shared)
		d.MaxRankShift = maxShift
	}
	return d
}

// rankIndex maps each extracted URL to its rank (nil when unranked).
// Extraction has already collapsed duplicate URLs.
func rankIndex(results []serp.ExtractedResult) map[string]*int {
	idx := make(map[string]*int, len(results))
	for _, r := range results {
		idx[r.URL] = r.Rank
	}
	return idx
}

// missingFrom returns the URLs present in a but absent from b, sorted
// lexically for deterministic output.
func missingFrom(a, b map[string]*int) []string {
	var urls []string
	for url := range a {
		if _, ok := b[url]; !ok {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

func symmetricDifferenceSize(a, b map[string]struct{}) int {
	count := 0
	for label := range a {
		if _, ok := b[label]; !ok {
			count++
		}
	}
	for label := range b {
		if _, ok := a[label]; !ok {
			count++
		}
	}
	return count
}
