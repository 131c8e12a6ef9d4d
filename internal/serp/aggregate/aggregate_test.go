package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp"
)

func target(id, query string) serp.KeywordTarget {
	return serp.KeywordTarget{ID: id, Query: query, Locale: "en-US", Device: "desktop"}
}

// historyFor builds n snapshots for a target whose single URL moves by
// shiftPerPair positions between every consecutive capture.
func historyFor(tgt serp.KeywordTarget, n, shiftPerPair int) []serp.Snapshot {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	snaps := make([]serp.Snapshot, 0, n)
	rank := 1
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"results": [{"url": "https://site.example/%s", "rank": %d}]}`, tgt.ID, rank)
		snaps = append(snaps, serp.Snapshot{
			ID:               fmt.Sprintf("%s-s%02d", tgt.ID, i),
			Query:            tgt.Query,
			Locale:           tgt.Locale,
			Device:           tgt.Device,
			CapturedAt:       base.Add(time.Duration(i) * 24 * time.Hour),
			AIOverviewStatus: serp.AIOverviewAbsent,
			RawPayload:       []byte(payload),
		})
		rank += shiftPerPair
	}
	return snaps
}

func TestGroupByKey(t *testing.T) {
	a := target("kw-a", "coffee maker")
	b := target("kw-b", "espresso machine")
	snaps := append(historyFor(a, 3, 1), historyFor(b, 2, 1)...)

	grouped := GroupByKey(snaps)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(grouped))
	}
	if got := len(grouped[a.Key()]); got != 3 {
		t.Errorf("group a has %d snapshots, want 3", got)
	}
	if got := len(grouped[b.Key()]); got != 2 {
		t.Errorf("group b has %d snapshots, want 2", got)
	}
}

func TestScoreKeywordsThresholdFlag(t *testing.T) {
	// 60 positions per pair saturates both shift signals: score 65.
	volatile := target("kw-a", "flight deals")
	calm := target("kw-b", "timezone converter")
	grouped := GroupByKey(append(historyFor(volatile, 4, 60), historyFor(calm, 4, 0)...))

	keywords := ScoreKeywords([]serp.KeywordTarget{volatile, calm}, grouped, 60)
	if len(keywords) != 2 {
		t.Fatalf("expected 2 scored keywords, got %d", len(keywords))
	}
	if !keywords[0].ExceedsAlertThreshold {
		t.Errorf("score %v must exceed threshold 60", keywords[0].Profile.VolatilityScore)
	}
	if keywords[1].ExceedsAlertThreshold {
		t.Error("calm keyword must not exceed the threshold")
	}
	if keywords[1].Regime != serp.RegimeCalm {
		t.Errorf("zero-score keyword regime = %v, want calm", keywords[1].Regime)
	}
}

func TestScoreKeywordsThresholdStrict(t *testing.T) {
	tgt := target("kw-a", "running shoes")
	grouped := GroupByKey(historyFor(tgt, 2, 60))
	keywords := ScoreKeywords([]serp.KeywordTarget{tgt}, grouped, 65)
	s := keywords[0].Profile.VolatilityScore
	if s != 65 {
		t.Fatalf("setup: score = %v, want 65", s)
	}
	if keywords[0].ExceedsAlertThreshold {
		t.Error("score equal to the threshold must not count as exceeding")
	}
}

func TestSummarizeEmptyProject(t *testing.T) {
	summary := Summarize(nil)
	if summary.KeywordCount != 0 || summary.ActiveKeywordCount != 0 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if summary.ConcentrationRatio != nil {
		t.Error("concentration ratio must be nil for an empty project")
	}
	if len(summary.TopRiskKeywords) != 0 {
		t.Errorf("TopRiskKeywords = %v, want empty", summary.TopRiskKeywords)
	}
}

func TestSummarizeAllInactive(t *testing.T) {
	targets := make([]serp.KeywordTarget, 0, 5)
	for i := 0; i < 5; i++ {
		targets = append(targets, target(fmt.Sprintf("kw-%d", i), fmt.Sprintf("query %d", i)))
	}
	keywords := ScoreKeywords(targets, map[serp.KeywordKey][]serp.Snapshot{}, 60)
	summary := Summarize(keywords)

	if summary.KeywordCount != 5 || summary.ActiveKeywordCount != 0 {
		t.Errorf("counts = %d/%d, want 5/0", summary.KeywordCount, summary.ActiveKeywordCount)
	}
	if summary.AverageVolatility != 0 || summary.WeightedVolatilityScore != 0 {
		t.Errorf("scores = %v/%v, want 0/0", summary.AverageVolatility, summary.WeightedVolatilityScore)
	}
	if summary.ConcentrationRatio != nil {
		t.Error("concentration ratio must be nil when active score sum is 0")
	}
	if len(summary.TopRiskKeywords) != 0 {
		t.Errorf("inactive keywords must never appear in top risk, got %v", summary.TopRiskKeywords)
	}
	if summary.VolatilityBuckets.Stable != 5 {
		t.Errorf("all-zero keywords must bucket as stable, got %+v", summary.VolatilityBuckets)
	}
}

func TestSummarizeBucketsSumToKeywordCount(t *testing.T) {
	targets := []serp.KeywordTarget{
		target("kw-a", "a"), target("kw-b", "b"), target("kw-c", "c"),
		target("kw-d", "d"), target("kw-e", "e"),
	}
	var snaps []serp.Snapshot
	snaps = append(snaps, historyFor(targets[0], 12, 60)...) // high band, stable maturity
	snaps = append(snaps, historyFor(targets[1], 4, 15)...)  // medium band
	snaps = append(snaps, historyFor(targets[2], 2, 1)...)   // low band, preliminary
	snaps = append(snaps, historyFor(targets[3], 5, 0)...)   // stable score, developing
	// targets[4] has no snapshots at all.

	summary := Summarize(ScoreKeywords(targets, GroupByKey(snaps), 60))

	vb := summary.VolatilityBuckets
	if got := vb.High + vb.Medium + vb.Low + vb.Stable; got != summary.KeywordCount {
		t.Errorf("volatility buckets sum %d != keyword count %d (%+v)", got, summary.KeywordCount, vb)
	}
	mb := summary.MaturityBuckets
	if got := mb.Preliminary + mb.Developing + mb.Stable; got != summary.KeywordCount {
		t.Errorf("maturity buckets sum %d != keyword count %d (%+v)", got, summary.KeywordCount, mb)
	}
	if summary.ActiveKeywordCount != 4 {
		t.Errorf("ActiveKeywordCount = %d, want 4", summary.ActiveKeywordCount)
	}
	if summary.MaxVolatility != 65 {
		t.Errorf("MaxVolatility = %v, want 65", summary.MaxVolatility)
	}
	if summary.VolatilityBuckets.High != 1 || summary.VolatilityBuckets.Medium != 1 ||
		summary.VolatilityBuckets.Low != 1 || summary.VolatilityBuckets.Stable != 2 {
		t.Errorf("bucket distribution = %+v, want 1/1/1/2", summary.VolatilityBuckets)
	}
}

func TestRankKeywordsOrderAndMaturityGate(t *testing.T) {
	targets := []serp.KeywordTarget{
		target("kw-c", "zebra"),
		target("kw-a", "apple"),
		target("kw-b", "apple"),
		target("kw-d", "mango"),
	}
	var snaps []serp.Snapshot
	snaps = append(snaps, historyFor(targets[0], 4, 60)...) // developing
	snaps = append(snaps, historyFor(targets[1], 4, 60)...) // developing, same query as kw-b
	snaps = append(snaps, historyFor(targets[2], 4, 60)...) // developing
	snaps = append(snaps, historyFor(targets[3], 2, 60)...) // preliminary, filtered

	keywords := ScoreKeywords(targets, GroupByKey(snaps), 60)
	ranked := RankKeywords(keywords, serp.MaturityDeveloping)

	if len(ranked) != 3 {
		t.Fatalf("preliminary keyword must be filtered, got %d ranked", len(ranked))
	}
	// Equal scores: query asc then id asc.
	wantOrder := []string{"kw-a", "kw-b", "kw-c"}
	for i, id := range wantOrder {
		if ranked[i].Target.ID != id {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].Target.ID, id)
		}
	}
}

func TestConcentrationRatio(t *testing.T) {
	targets := []serp.KeywordTarget{
		target("kw-a", "a"), target("kw-b", "b"), target("kw-c", "c"), target("kw-d", "d"),
	}
	var snaps []serp.Snapshot
	for _, tgt := range targets {
		snaps = append(snaps, historyFor(tgt, 2, 60)...) // each scores 65
	}
	keywords := ScoreKeywords(targets, GroupByKey(snaps), 60)
	ranked := RankKeywords(keywords, serp.MaturityPreliminary)

	ratio := ConcentrationRatio(ranked)
	if ratio == nil {
		t.Fatal("ratio must be defined when active scores are positive")
	}
	// Top-3 of four equal scores: 195/260 = 0.75.
	if *ratio != 0.75 {
		t.Errorf("ratio = %v, want 0.75", *ratio)
	}
	if *ratio < 0 || *ratio > 1 {
		t.Errorf("ratio %v out of [0,1]", *ratio)
	}
}

func TestConcentrationRatioNilOnZeroScores(t *testing.T) {
	tgt := target("kw-a", "a")
	keywords := ScoreKeywords([]serp.KeywordTarget{tgt}, GroupByKey(historyFor(tgt, 4, 0)), 60)
	if ratio := ConcentrationRatio(RankKeywords(keywords, serp.MaturityPreliminary)); ratio != nil {
		t.Errorf("active keyword with zero score must yield nil ratio, got %v", *ratio)
	}
}

func TestTopRiskKeywordsCapAndActivity(t *testing.T) {
	targets := make([]serp.KeywordTarget, 0, 6)
	var snaps []serp.Snapshot
	for i := 0; i < 6; i++ {
		tgt := target(fmt.Sprintf("kw-%d", i), fmt.Sprintf("query %d", i))
		targets = append(targets, tgt)
		if i < 5 {
			snaps = append(snaps, historyFor(tgt, 3, 10+i)...)
		}
	}
	summary := Summarize(ScoreKeywords(targets, GroupByKey(snaps), 60))
	if len(summary.TopRiskKeywords) != TopRiskKeywordCount {
		t.Fatalf("TopRiskKeywords length = %d, want %d", len(summary.TopRiskKeywords), TopRiskKeywordCount)
	}
	for _, kw := range summary.TopRiskKeywords {
		if !kw.Active() {
			t.Errorf("inactive keyword %s in top risk list", kw.Target.ID)
		}
	}
	// Descending score across the list.
	for i := 1; i < len(summary.TopRiskKeywords); i++ {
		if summary.TopRiskKeywords[i].Profile.VolatilityScore > summary.TopRiskKeywords[i-1].Profile.VolatilityScore {
			t.Error("top risk keywords not sorted by score descending")
		}
	}
}
