// Package serp defines the core value types of the SERP volatility engine:
// snapshots, keyword targets, extracted results, and the derived volatility
// profile with its regime and maturity classifications. Everything here is an
// immutable value; all derived structures are pure functions of snapshot
// sequences.
package serp

import "time"

// AIOverviewStatus records whether an AI answer box was observed on a
// result page. Missing data maps to StatusUnknown, which still participates
// in flip detection.
type AIOverviewStatus string

const (
	AIOverviewAbsent  AIOverviewStatus = "absent"
	AIOverviewPresent AIOverviewStatus = "present"
	AIOverviewUnknown AIOverviewStatus = "unknown"
)

// NormalizeAIOverviewStatus maps arbitrary stored values onto the closed
// status set, defaulting to unknown.
func NormalizeAIOverviewStatus(s string) AIOverviewStatus {
	switch AIOverviewStatus(s) {
	case AIOverviewAbsent, AIOverviewPresent:
		return AIOverviewStatus(s)
	default:
		return AIOverviewUnknown
	}
}

// KeywordKey is the natural tracking key of a keyword within a project.
type KeywordKey struct {
	Query  string
	Locale string
	Device string
}

// KeywordTarget is the unit of tracking identified by (query, locale,
// device) within a project.
type KeywordTarget struct {
	ID     string `json:"id"`
	Query  string `json:"query"`
	Locale string `json:"locale"`
	Device string `json:"device"`
}

// Key returns the target's natural tracking key.
func (t KeywordTarget) Key() KeywordKey {
	return KeywordKey{Query: t.Query, Locale: t.Locale, Device: t.Device}
}

// Snapshot is one timestamped observation of a search-result page for a
// tracked keyword. Snapshots are externally owned, immutable once captured,
// and totally ordered by (CapturedAt asc, ID asc).
type Snapshot struct {
	ID               string           `json:"id"`
	Query            string           `json:"query"`
	Locale           string           `json:"locale"`
	Device           string           `json:"device"`
	CapturedAt       time.Time        `json:"captured_at"`
	AIOverviewStatus AIOverviewStatus `json:"ai_overview_status"`
	RawPayload       []byte           `json:"-"`
}

// Key returns the snapshot's natural tracking key.
func (s Snapshot) Key() KeywordKey {
	return KeywordKey{Query: s.Query, Locale: s.Locale, Device: s.Device}
}

// Before reports whether s precedes other under the canonical snapshot
// order: CapturedAt ascending, then ID ascending.
func (s Snapshot) Before(other Snapshot) bool {
	if !s.CapturedAt.Equal(other.CapturedAt) {
		return s.CapturedAt.Before(other.CapturedAt)
	}
	return s.ID < other.ID
}

// ExtractedResult is one ranked organic result parsed from a snapshot
// payload. Rank is nil when the payload carried no usable rank.
type ExtractedResult struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
	Rank   *int   `json:"rank"`
	Title  string `json:"title,omitempty"`
}

// VolatilityProfile is the composite instability measure for one keyword
// over its snapshot history. It is a pure function of the snapshot sequence;
// fewer than two snapshots yield the all-zero profile.
type VolatilityProfile struct {
	SampleSize             int     `json:"sample_size"`
	AverageRankShift       float64 `json:"average_rank_shift"`
	MaxRankShift           float64 `json:"max_rank_shift"`
	FeatureVolatility      int     `json:"feature_volatility"`
	AIOverviewChurn        int     `json:"ai_overview_churn"`
	RankShiftScore         float64 `json:"rank_shift_score"`
	MaxShiftScore          float64 `json:"max_shift_score"`
	AIChurnScore           float64 `json:"ai_churn_score"`
	FeatureVolatilityScore float64 `json:"feature_volatility_score"`
	VolatilityScore        float64 `json:"volatility_score"`
}

// Regime is the ordered stability classification derived from the
// volatility score: calm < shifting < unstable < chaotic.
type Regime int

const (
	RegimeCalm Regime = iota
	RegimeShifting
	RegimeUnstable
	RegimeChaotic
)

func (r Regime) String() string {
	switch r {
	case RegimeCalm:
		return "calm"
	case RegimeShifting:
		return "shifting"
	case RegimeUnstable:
		return "unstable"
	case RegimeChaotic:
		return "chaotic"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the regime as its lowercase name.
func (r Regime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// Maturity is the ordered confidence classification derived from sample
// size: preliminary < developing < stable.
type Maturity int

const (
	MaturityPreliminary Maturity = iota
	MaturityDeveloping
	MaturityStable
)

func (m Maturity) String() string {
	switch m {
	case MaturityPreliminary:
		return "preliminary"
	case MaturityDeveloping:
		return "developing"
	case MaturityStable:
		return "stable"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the maturity as its lowercase name.
func (m Maturity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// ParseMaturity converts a caller-supplied maturity token to its ordered
// value. The boolean reports whether the token was recognized.
func ParseMaturity(s string) (Maturity, bool) {
	switch s {
	case "preliminary":
		return MaturityPreliminary, true
	case "developing":
		return MaturityDeveloping, true
	case "stable":
		return MaturityStable, true
	default:
		return MaturityPreliminary, false
	}
}
