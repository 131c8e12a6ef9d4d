// Package params parses and validates the caller-supplied query parameters
// of the volatility surfaces. Validation happens before any computation: an
// out-of-range value or unrecognized token yields a per-field error and the
// request is rejected without touching the stores.
package params

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rankpulse/rankpulse/internal/serp"
)

// Parameter ranges and defaults. These are part of the query contract and
// are surfaced by the config endpoint.
const (
	SummaryWindowMaxDays = 365
	AlertWindowMaxDays   = 30

	DefaultAlertThreshold         = 60.0
	DefaultSpikeThreshold         = 75.0
	DefaultConcentrationThreshold = 0.80

	KeywordFeedMaxLimit     = 50
	KeywordFeedDefaultLimit = 20
	AlertMaxLimit           = 200
	AlertDefaultLimit       = 100
)

// DefaultMinMaturity is the default maturity gate for the keyword feed and
// the alert feed.
const DefaultMinMaturity = serp.MaturityDeveloping

// ValidationError carries per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// SummaryQuery holds the validated parameters of the summary surface.
type SummaryQuery struct {
	WindowDays     int // 0 means no window
	AlertThreshold float64
}

// KeywordFeedQuery holds the validated parameters of the ranked keyword
// risk feed.
type KeywordFeedQuery struct {
	WindowDays  int
	MinMaturity serp.Maturity
	Limit       int
	Cursor      string
}

// KeywordQuery holds the validated parameters of the single-keyword
// surfaces (profile, pair report).
type KeywordQuery struct {
	Query      string
	Locale     string
	Device     string
	WindowDays int
}

// AlertQuery holds the validated parameters of the alerts feed.
type AlertQuery struct {
	WindowDays             int
	SpikeThreshold         float64
	ConcentrationThreshold float64
	MinMaturity            serp.Maturity
	Limit                  int
}

// ParseSummaryQuery validates the summary surface parameters.
func ParseSummaryQuery(values url.Values) (SummaryQuery, error) {
	errs := make(map[string]string)
	q := SummaryQuery{
		WindowDays:     parseIntField(values, "windowDays", 0, 1, SummaryWindowMaxDays, errs),
		AlertThreshold: parseFloatField(values, "alertThreshold", DefaultAlertThreshold, 0, 100, errs),
	}
	if len(errs) > 0 {
		return SummaryQuery{}, &ValidationError{Fields: errs}
	}
	return q, nil
}

// ParseKeywordFeedQuery validates the keyword feed parameters. The cursor
// is passed through opaque; a malformed cursor is handled downstream as "no
// cursor", never as an error.
func ParseKeywordFeedQuery(values url.Values) (KeywordFeedQuery, error) {
	errs := make(map[string]string)
	q := KeywordFeedQuery{
		WindowDays:  parseIntField(values, "windowDays", 0, 1, SummaryWindowMaxDays, errs),
		MinMaturity: parseMaturityField(values, "minMaturity", errs),
		Limit:       parseIntField(values, "limit", KeywordFeedDefaultLimit, 1, KeywordFeedMaxLimit, errs),
		Cursor:      values.Get("cursor"),
	}
	if len(errs) > 0 {
		return KeywordFeedQuery{}, &ValidationError{Fields: errs}
	}
	return q, nil
}

// ParseKeywordQuery validates the single-keyword surface parameters.
func ParseKeywordQuery(values url.Values) (KeywordQuery, error) {
	errs := make(map[string]string)
	q := KeywordQuery{
		Query:      strings.TrimSpace(values.Get("query")),
		Locale:     strings.TrimSpace(values.Get("locale")),
		Device:     strings.TrimSpace(values.Get("device")),
		WindowDays: parseIntField(values, "windowDays", 0, 1, SummaryWindowMaxDays, errs),
	}
	if q.Query == "" {
		errs["query"] = "query is required"
	}
	if q.Locale == "" {
		errs["locale"] = "locale is required"
	}
	if q.Device == "" {
		errs["device"] = "device is required"
	}
	if len(errs) > 0 {
		return KeywordQuery{}, &ValidationError{Fields: errs}
	}
	return q, nil
}

// ParseAlertQuery validates the alerts feed parameters. windowDays is
// required on this surface.
func ParseAlertQuery(values url.Values) (AlertQuery, error) {
	errs := make(map[string]string)
	q := AlertQuery{
		WindowDays:             parseIntField(values, "windowDays", 0, 1, AlertWindowMaxDays, errs),
		SpikeThreshold:         parseFloatField(values, "spikeThreshold", DefaultSpikeThreshold, 0, 100, errs),
		ConcentrationThreshold: parseFloatField(values, "concentrationThreshold", DefaultConcentrationThreshold, 0, 1, errs),
		MinMaturity:            parseMaturityField(values, "minMaturity", errs),
		Limit:                  parseIntField(values, "limit", AlertDefaultLimit, 1, AlertMaxLimit, errs),
	}
	if values.Get("windowDays") == "" {
		errs["windowDays"] = "windowDays is required"
	}
	if len(errs) > 0 {
		return AlertQuery{}, &ValidationError{Fields: errs}
	}
	return q, nil
}

func parseIntField(values url.Values, field string, fallback, min, max int, errs map[string]string) int {
	raw := values.Get(field)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		errs[field] = fmt.Sprintf("%s must be an integer", field)
		return fallback
	}
	if parsed < min || parsed > max {
		errs[field] = fmt.Sprintf("%s must be between %d and %d", field, min, max)
		return fallback
	}
	return parsed
}

func parseFloatField(values url.Values, field string, fallback, min, max float64, errs map[string]string) float64 {
	raw := values.Get(field)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		errs[field] = fmt.Sprintf("%s must be a number", field)
		return fallback
	}
	if parsed < min || parsed > max {
		errs[field] = fmt.Sprintf("%s must be between %g and %g", field, min, max)
		return fallback
	}
	return parsed
}

func parseMaturityField(values url.Values, field string, errs map[string]string) serp.Maturity {
	raw := values.Get(field)
	if raw == "" {
		return DefaultMinMaturity
	}
	maturity, ok := serp.ParseMaturity(raw)
	if !ok {
		errs[field] = fmt.Sprintf("%s must be one of preliminary, developing, stable", field)
		return DefaultMinMaturity
	}
	return maturity
}
