package benchmark

import (
	"fmt"
	"testing"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/aggregate"
	"github.com/rankpulse/rankpulse/internal/serp/delta"
	"github.com/rankpulse/rankpulse/internal/serp/score"
)

// syntheticHistory builds a snapshot sequence with urlsPerPage ranked
// results that reshuffle slightly between captures, plus periodic feature
// and AI-answer-box churn.
func syntheticHistory(keyword string, snapshots, urlsPerPage int) []serp.Snapshot {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]serp.Snapshot, 0, snapshots)
	for i := 0; i < snapshots; i++ {
		results := ""
		for j := 0; j < urlsPerPage; j++ {
			if results != "" {
				results += ","
			}
			rank := 1 + (j+i)%urlsPerPage
			results += fmt.Sprintf(`{"url": "https://site-%d.example/%s", "rank": %d}`, j, keyword, rank)
		}
		features := `"video"`
		if i%3 == 0 {
			features = `"video", "local_pack", "images"`
		}
		ai := serp.AIOverviewAbsent
		if i%4 == 0 {
			ai = serp.AIOverviewPresent
		}
		out = append(out, serp.Snapshot{
			ID:               fmt.Sprintf("%s-%04d", keyword, i),
			Query:            keyword,
			Locale:           "en-US",
			Device:           "desktop",
			CapturedAt:       base.Add(time.Duration(i) * 24 * time.Hour),
			AIOverviewStatus: ai,
			RawPayload:       []byte(fmt.Sprintf(`{"results": [%s], "features": [%s]}`, results, features)),
		})
	}
	return out
}

func BenchmarkProfile(b *testing.B) {
	for _, size := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("snapshots_%d", size), func(b *testing.B) {
			snaps := syntheticHistory("benchmark keyword", size, 10)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				profile := score.Profile(snaps)
				_ = profile
			}
		})
	}
}

func BenchmarkPairwiseDelta(b *testing.B) {
	snaps := syntheticHistory("benchmark keyword", 2, 10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := delta.Compute(snaps[0], snaps[1])
		_ = d
	}
}

func BenchmarkProjectSummary(b *testing.B) {
	for _, keywords := range []int{10, 100} {
		b.Run(fmt.Sprintf("keywords_%d", keywords), func(b *testing.B) {
			targets := make([]serp.KeywordTarget, 0, keywords)
			var snaps []serp.Snapshot
			for i := 0; i < keywords; i++ {
				query := fmt.Sprintf("keyword %03d", i)
				targets = append(targets, serp.KeywordTarget{
					ID: fmt.Sprintf("kw-%03d", i), Query: query, Locale: "en-US", Device: "desktop",
				})
				snaps = append(snaps, syntheticHistory(query, 8, 10)...)
			}
			grouped := aggregate.GroupByKey(snaps)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				summary := aggregate.Summarize(aggregate.ScoreKeywords(targets, grouped, 60))
				_ = summary
			}
		})
	}
}
