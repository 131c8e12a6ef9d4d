package extract

import (
	"testing"
)

func TestParseProviderShape(t *testing.T) {
	payload := []byte(`{
		"items": [
			{"type": "organic", "rank_absolute": 3, "url": "https://a.example/page", "domain": "a.example", "title": "A"},
			{"type": "ai_overview", "position": 1},
			{"type": "organic", "position": 5, "url": "https://b.example/page", "domain": "b.example", "title": "B"},
			{"type": "people_also_ask", "position": 4}
		]
	}`)

	results, warned := Parse(payload)
	if warned {
		t.Fatal("expected no parse warning for recognized payload")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 organic results, got %d", len(results))
	}
	if results[0].URL != "https://a.example/page" || *results[0].Rank != 3 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].URL != "https://b.example/page" || *results[1].Rank != 5 {
		t.Errorf("expected position fallback for rank, got %+v", results[1])
	}
}

func TestParseSimpleShape(t *testing.T) {
	payload := []byte(`{
		"results": [
			{"url": "https://c.example", "rank": 2},
			{"url": "https://d.example", "position": 1},
			{"title": "no url, dropped"}
		],
		"features": ["ai_overview", "video"]
	}`)

	results, warned := Parse(payload)
	if warned {
		t.Fatal("expected no parse warning for recognized payload")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Sorted by rank ascending: position fallback 1 before rank 2.
	if results[0].URL != "https://d.example" {
		t.Errorf("expected rank-ordered results, got first %q", results[0].URL)
	}
}

func TestParseWarnings(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantResults int
		wantWarning bool
	}{
		{"unrecognized object", `{"organic_listings": []}`, 0, true},
		{"top-level array", `[1,2,3]`, 0, true},
		{"not json", `<html>`, 0, true},
		{"recognized but all filtered", `{"items": [{"type": "ad", "url": "https://x.example"}]}`, 0, true},
		{"empty items array", `{"items": []}`, 0, true},
		{"empty payload", ``, 0, false},
		{"whitespace payload", "  \n\t ", 0, false},
		{"null payload", `null`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, warned := Parse([]byte(tt.payload))
			if len(results) != tt.wantResults {
				t.Errorf("got %d results, want %d", len(results), tt.wantResults)
			}
			if warned != tt.wantWarning {
				t.Errorf("got warning=%v, want %v", warned, tt.wantWarning)
			}
		})
	}
}

func TestParseDeduplicatesURLsKeepingLowestRank(t *testing.T) {
	payload := []byte(`{
		"results": [
			{"url": "https://dup.example", "rank": 7},
			{"url": "https://dup.example", "rank": 2},
			{"url": "https://other.example", "rank": 4}
		]
	}`)

	results, warned := Parse(payload)
	if warned {
		t.Fatal("unexpected parse warning")
	}
	if len(results) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 results, got %d", len(results))
	}
	if results[0].URL != "https://dup.example" || *results[0].Rank != 2 {
		t.Errorf("expected lowest rank kept for duplicate URL, got %+v", results[0])
	}
}

func TestParseNilRanksSortLast(t *testing.T) {
	payload := []byte(`{
		"results": [
			{"url": "https://unranked-b.example"},
			{"url": "https://ranked.example", "rank": 9},
			{"url": "https://unranked-a.example"}
		]
	}`)

	results, _ := Parse(payload)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].URL != "https://ranked.example" {
		t.Errorf("ranked result should sort first, got %q", results[0].URL)
	}
	if results[1].URL != "https://unranked-a.example" || results[2].URL != "https://unranked-b.example" {
		t.Errorf("nil ranks should sort last, URL tie-broken: got %q then %q", results[1].URL, results[2].URL)
	}
	if results[1].Rank != nil {
		t.Errorf("expected nil rank preserved, got %v", *results[1].Rank)
	}
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			"provider non-organic type tags",
			`{"items": [
				{"type": "organic", "url": "https://a.example"},
				{"type": "ai_overview"},
				{"type": "video"},
				{"type": "video"}
			]}`,
			[]string{"ai_overview", "video"},
		},
		{
			"simple top-level features",
			`{"results": [{"url": "https://a.example"}], "features": ["local_pack", "images"]}`,
			[]string{"images", "local_pack"},
		},
		{"simple without features key", `{"results": []}`, nil},
		{"empty payload", ``, nil},
		{"unrecognized payload", `{"foo": 1}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Features([]byte(tt.payload))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d features %v, want %d", len(got), got, len(tt.want))
			}
			for _, label := range tt.want {
				if _, ok := got[label]; !ok {
					t.Errorf("missing feature %q in %v", label, got)
				}
			}
		})
	}
}

func TestProviderShapeTakesPriorityOverSimple(t *testing.T) {
	payload := []byte(`{
		"items": [{"type": "organic", "rank_absolute": 1, "url": "https://provider.example"}],
		"results": [{"url": "https://simple.example", "rank": 1}]
	}`)

	results, warned := Parse(payload)
	if warned {
		t.Fatal("unexpected parse warning")
	}
	if len(results) != 1 || results[0].URL != "https://provider.example" {
		t.Errorf("expected provider shape to win, got %+v", results)
	}
}

func TestRankAbsolutePreferredOverPosition(t *testing.T) {
	payload := []byte(`{
		"items": [{"type": "organic", "rank_absolute": 12, "position": 3, "url": "https://e.example"}]
	}`)
	results, _ := Parse(payload)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if got := results[0].Rank; got == nil || *got != 12 {
		t.Errorf("expected rank_absolute 12, got %v", got)
	}
}
