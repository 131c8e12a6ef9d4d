// Package extract parses opaque snapshot payloads into normalized ranked
// results and page-feature labels. Parsing is defensive: it never fails, it
// degrades to an empty result set and flags low-confidence parses instead.
//
// Two payload shapes are recognized, tried in order:
//
//  1. Provider item list: a top-level "items" array where only entries
//     tagged "organic" are kept, rank taken from rank_absolute falling back
//     to position.
//  2. Simplified list: a top-level "results" array where every entry with a
//     URL string is kept, rank taken from rank falling back to position.
//
// Anything else is the unrecognized variant.
package extract

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rankpulse/rankpulse/internal/serp"
)

const organicItemType = "organic"

// payloadProbe sniffs the top-level shape without committing to a full
// decode of either variant.
type payloadProbe struct {
	Items    json.RawMessage `json:"items"`
	Results  json.RawMessage `json:"results"`
	Features json.RawMessage `json:"features"`
}

type providerItem struct {
	Type         string `json:"type"`
	RankAbsolute *int   `json:"rank_absolute"`
	Position     *int   `json:"position"`
	URL          string `json:"url"`
	Domain       string `json:"domain"`
	Title        string `json:"title"`
}

type simpleResult struct {
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Rank     *int   `json:"rank"`
	Position *int   `json:"position"`
	Title    string `json:"title"`
}

// shape is the closed set of recognized payload variants.
type shape int

const (
	shapeUnrecognized shape = iota
	shapeProvider
	shapeSimple
)

// sniff classifies the payload into one of the tagged variants.
func sniff(raw []byte) (payloadProbe, shape) {
	var probe payloadProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return probe, shapeUnrecognized
	}
	if isJSONArray(probe.Items) {
		return probe, shapeProvider
	}
	if isJSONArray(probe.Results) {
		return probe, shapeSimple
	}
	return probe, shapeUnrecognized
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// isEmptyPayload reports whether the payload carries no data at all. An
// empty payload yields an empty result set without a parse warning.
func isEmptyPayload(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Parse extracts the ordered organic results from a snapshot payload. The
// boolean is the parse warning: it is set when the top-level shape is
// unrecognized, or when a recognized shape yields zero results despite
// non-empty input. Parse never returns an error.
func Parse(raw []byte) ([]serp.ExtractedResult, bool) {
	if isEmptyPayload(raw) {
		return nil, false
	}

	probe, sh := sniff(raw)
	var results []serp.ExtractedResult
	switch sh {
	case shapeProvider:
		results = parseProviderItems(probe.Items)
	case shapeSimple:
		results = parseSimpleResults(probe.Results)
	default:
		return nil, true
	}

	if len(results) == 0 {
		return nil, true
	}
	return normalizeResults(results), false
}

func parseProviderItems(raw json.RawMessage) []serp.ExtractedResult {
	var items []providerItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	results := make([]serp.ExtractedResult, 0, len(items))
	for _, item := range items {
		if item.Type != organicItemType || item.URL == "" {
			continue
		}
		rank := item.RankAbsolute
		if rank == nil {
			rank = item.Position
		}
		results = append(results, serp.ExtractedResult{
			URL:    item.URL,
			Domain: item.Domain,
			Rank:   rank,
			Title:  item.Title,
		})
	}
	return results
}

func parseSimpleResults(raw json.RawMessage) []serp.ExtractedResult {
	var entries []simpleResult
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	results := make([]serp.ExtractedResult, 0, len(entries))
	for _, entry := range entries {
		if entry.URL == "" {
			continue
		}
		rank := entry.Rank
		if rank == nil {
			rank = entry.Position
		}
		results = append(results, serp.ExtractedResult{
			URL:    entry.URL,
			Domain: entry.Domain,
			Rank:   rank,
			Title:  entry.Title,
		})
	}
	return results
}

// normalizeResults sorts by rank ascending with nil ranks last, ties broken
// by URL, then collapses duplicate URLs to their first (lowest-rank)
// occurrence.
func normalizeResults(results []serp.ExtractedResult) []serp.ExtractedResult {
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := results[i].Rank, results[j].Rank
		switch {
		case ri == nil && rj == nil:
			return results[i].URL < results[j].URL
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri < *rj
		default:
			return results[i].URL < results[j].URL
		}
	})

	seen := make(map[string]struct{}, len(results))
	deduped := results[:0]
	for _, r := range results {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		deduped = append(deduped, r)
	}
	return deduped
}

// Features extracts the set of page-feature labels present in a payload:
// the type tags of non-organic entries for the provider shape, or the
// top-level features array for the simplified shape. Absent feature data
// yields an empty set, never a warning.
func Features(raw []byte) map[string]struct{} {
	features := make(map[string]struct{})
	if isEmptyPayload(raw) {
		return features
	}

	probe, sh := sniff(raw)
	switch sh {
	case shapeProvider:
		var items []providerItem
		if err := json.Unmarshal(probe.Items, &items); err != nil {
			return features
		}
		for _, item := range items {
			if item.Type != "" && item.Type != organicItemType {
				features[item.Type] = struct{}{}
			}
		}
	case shapeSimple:
		var labels []string
		if err := json.Unmarshal(probe.Features, &labels); err != nil {
			return features
		}
		for _, label := range labels {
			if label != "" {
				features[label] = struct{}{}
			}
		}
	}
	return features
}
