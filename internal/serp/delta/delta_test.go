package delta

import (
	"fmt"
	"testing"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp"
)

func snapshot(id string, capturedAt time.Time, ai serp.AIOverviewStatus, payload string) serp.Snapshot {
	return serp.Snapshot{
		ID:               id,
		Query:            "running shoes",
		Locale:           "en-US",
		Device:           "desktop",
		CapturedAt:       capturedAt,
		AIOverviewStatus: ai,
		RawPayload:       []byte(payload),
	}
}

func simplePayload(ranks map[string]int, features ...string) string {
	results := ""
	for url, rank := range ranks {
		if results != "" {
			results += ","
		}
		results += fmt.Sprintf(`{"url": %q, "rank": %d}`, url, rank)
	}
	feats := ""
	for _, f := range features {
		if feats != "" {
			feats += ","
		}
		feats += fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf(`{"results": [%s], "features": [%s]}`, results, feats)
}

func TestComputeRankShiftOverIntersection(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	from := snapshot("s1", base, serp.AIOverviewAbsent,
		simplePayload(map[string]int{
			"https://a.example": 1,
			"https://b.example": 2,
			"https://gone.example": 3,
		}))
	to := snapshot("s2", base.Add(24*time.Hour), serp.AIOverviewAbsent,
		simplePayload(map[string]int{
			"https://a.example": 4,
			"https://b.example": 2,
			"https://new.example": 9,
		}))

	d := Compute(from, to)

	// Shared URLs: a moved |4-1|=3, b moved 0. Average 1.5, max 3.
	if d.AverageRankShift != 1.5 {
		t.Errorf("AverageRankShift = %v, want 1.5", d.AverageRankShift)
	}
	if d.MaxRankShift != 3 {
		t.Errorf("MaxRankShift = %v, want 3", d.MaxRankShift)
	}
	if len(d.Entered) != 1 || d.Entered[0] != "https://new.example" {
		t.Errorf("Entered = %v, want the new URL only", d.Entered)
	}
	if len(d.Exited) != 1 || d.Exited[0] != "https://gone.example" {
		t.Errorf("Exited = %v, want the dropped URL only", d.Exited)
	}
	if d.AIOverviewFlipped {
		t.Error("no AI answer-box flip expected")
	}
}

func TestComputeFeatureChurn(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	from := snapshot("s1", base, serp.AIOverviewAbsent,
		simplePayload(map[string]int{"https://a.example": 1}, "video", "images"))
	to := snapshot("s2", base.Add(24*time.Hour), serp.AIOverviewPresent,
		simplePayload(map[string]int{"https://a.example": 1}, "video", "local_pack", "shopping"))

	d := Compute(from, to)

	// Symmetric difference: images left, local_pack and shopping arrived.
	if d.FeatureChangeCount != 3 {
		t.Errorf("FeatureChangeCount = %d, want 3", d.FeatureChangeCount)
	}
	if !d.AIOverviewFlipped {
		t.Error("absent -> present must count as a flip")
	}
}

func TestComputeFlipMatrix(t *testing.T) {
	tests := []struct {
		from, to serp.AIOverviewStatus
		want     bool
	}{
		{serp.AIOverviewAbsent, serp.AIOverviewAbsent, false},
		{serp.AIOverviewPresent, serp.AIOverviewPresent, false},
		{serp.AIOverviewUnknown, serp.AIOverviewUnknown, false},
		{serp.AIOverviewAbsent, serp.AIOverviewPresent, true},
		{serp.AIOverviewPresent, serp.AIOverviewAbsent, true},
		{serp.AIOverviewUnknown, serp.AIOverviewPresent, true},
		{serp.AIOverviewAbsent, serp.AIOverviewUnknown, true},
	}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		name := fmt.Sprintf("%s->%s", tt.from, tt.to)
		t.Run(name, func(t *testing.T) {
			d := Compute(
				snapshot("s1", base, tt.from, `{"results": []}`),
				snapshot("s2", base.Add(time.Hour), tt.to, `{"results": []}`),
			)
			if d.AIOverviewFlipped != tt.want {
				t.Errorf("flipped = %v, want %v", d.AIOverviewFlipped, tt.want)
			}
		})
	}
}

func TestComputeNoSharedURLs(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d := Compute(
		snapshot("s1", base, serp.AIOverviewAbsent, simplePayload(map[string]int{"https://a.example": 1})),
		snapshot("s2", base.Add(time.Hour), serp.AIOverviewAbsent, simplePayload(map[string]int{"https://b.example": 1})),
	)
	if d.AverageRankShift != 0 || d.MaxRankShift != 0 {
		t.Errorf("disjoint result sets must yield zero shift, got avg=%v max=%v", d.AverageRankShift, d.MaxRankShift)
	}
	if len(d.Entered) != 1 || len(d.Exited) != 1 {
		t.Errorf("expected 1 entered and 1 exited, got %v / %v", d.Entered, d.Exited)
	}
}

func TestComputeUnparseablePayloadsDegradeToEmpty(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d := Compute(
		snapshot("s1", base, serp.AIOverviewAbsent, `not json at all`),
		snapshot("s2", base.Add(time.Hour), serp.AIOverviewAbsent, simplePayload(map[string]int{"https://a.example": 1})),
	)
	if d.AverageRankShift != 0 || d.MaxRankShift != 0 {
		t.Errorf("expected zero shift against unparseable side, got %+v", d)
	}
	if len(d.Entered) != 1 {
		t.Errorf("every URL of the parseable side counts as entered, got %v", d.Entered)
	}
}

func TestComputeEnteredExitedSorted(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d := Compute(
		snapshot("s1", base, serp.AIOverviewAbsent, simplePayload(map[string]int{})),
		snapshot("s2", base.Add(time.Hour), serp.AIOverviewAbsent, simplePayload(map[string]int{
			"https://z.example": 1,
			"https://a.example": 2,
			"https://m.example": 3,
		})),
	)
	want := []string{"https://a.example", "https://m.example", "https://z.example"}
	if len(d.Entered) != len(want) {
		t.Fatalf("Entered = %v, want %v", d.Entered, want)
	}
	for i, url := range want {
		if d.Entered[i] != url {
			t.Errorf("Entered[%d] = %q, want %q (lexical order)", i, d.Entered[i], url)
		}
	}
}
