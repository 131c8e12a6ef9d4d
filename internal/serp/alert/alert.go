// Package alert derives discrete, typed alert events from per-keyword
// pairwise computations: regime transitions, pair-score spikes, and
// project-level risk concentration. Alerts are transient; they are computed
// per request and ordered under a strict total order so identical inputs
// always produce the identical feed.
package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/aggregate"
	"github.com/rankpulse/rankpulse/internal/serp/delta"
	"github.com/rankpulse/rankpulse/internal/serp/score"
)

// TriggerType discriminates the alert variants.
type TriggerType string

const (
	TriggerConcentration    TriggerType = "concentration_exceedance"
	TriggerRegimeTransition TriggerType = "regime_transition"
	TriggerSpike            TriggerType = "spike_exceedance"
)

// Severity ranks. Concentration alerts are fixed highest, spikes next.
// Regime transitions rank by destination regime plus jump size; a recovery
// (any move toward a less severe regime) is a single flat low severity
// regardless of how large the jump is.
const (
	severityConcentration = 100
	severitySpike         = 90
	severityRecovery      = 10
)

// regimeSeverityBase maps an escalation's destination regime to its base
// severity. Landing in the most severe regime outranks every other
// escalation regardless of origin, since base gaps exceed the maximum jump
// bonus of 3.
var regimeSeverityBase = map[serp.Regime]int{
	serp.RegimeShifting: 30,
	serp.RegimeUnstable: 50,
	serp.RegimeChaotic:  70,
}

// Alert is one derived alert event. Type-specific fields are omitted when
// empty; the severity rank is used only for ordering and is never exposed
// to callers.
type Alert struct {
	Type           TriggerType  `json:"trigger_type"`
	KeywordID      string       `json:"keyword_id,omitempty"`
	Query          string       `json:"query,omitempty"`
	Locale         string       `json:"locale,omitempty"`
	Device         string       `json:"device,omitempty"`
	FromSnapshotID string       `json:"from_snapshot_id,omitempty"`
	ToSnapshotID   string       `json:"to_snapshot_id,omitempty"`
	PreviousRegime *serp.Regime `json:"previous_regime,omitempty"`
	CurrentRegime  *serp.Regime `json:"current_regime,omitempty"`
	PairScore      *float64     `json:"pair_score,omitempty"`
	Threshold      *float64     `json:"threshold,omitempty"`
	Ratio          *float64     `json:"ratio,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`

	severity int
}

// Params controls alert derivation for one request.
type Params struct {
	SpikeThreshold         float64
	ConcentrationThreshold float64
	MinMaturity            serp.Maturity
	RequestedAt            time.Time
}

// Build derives the full, ordered alert set for a project from its scored
// keywords and grouped snapshots. The caller applies any page limit.
func Build(keywords []aggregate.KeywordVolatility, grouped map[serp.KeywordKey][]serp.Snapshot, params Params) []Alert {
	alerts := make([]Alert, 0)
	seenSpikes := make(map[string]struct{})

	for _, kw := range keywords {
		if kw.Maturity < params.MinMaturity {
			continue
		}
		snaps := orderedCopy(grouped[kw.Target.Key()])
		alerts = append(alerts, keywordAlerts(kw, snaps, params, seenSpikes)...)
	}

	if concentration := concentrationAlert(keywords, params); concentration != nil {
		alerts = append(alerts, *concentration)
	}

	sortAlerts(alerts)
	return alerts
}

// keywordAlerts emits the spike and regime-transition alerts for a single
// keyword's ordered snapshot history.
func keywordAlerts(kw aggregate.KeywordVolatility, snaps []serp.Snapshot, params Params, seenSpikes map[string]struct{}) []Alert {
	if len(snaps) < 2 {
		return nil
	}

	var alerts []Alert
	pairScores := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		from, to := snaps[i-1], snaps[i]
		pairScore := score.PairScore(delta.Compute(from, to))
		pairScores = append(pairScores, pairScore)

		if pairScore <= params.SpikeThreshold {
			continue
		}
		// The same pair must never be emitted twice even if re-derived
		// through different traversal paths.
		dedupKey := fmt.Sprintf("%s|%s|%.2f", kw.Target.ID, to.ID, params.SpikeThreshold)
		if _, ok := seenSpikes[dedupKey]; ok {
			continue
		}
		seenSpikes[dedupKey] = struct{}{}

		ps := pairScore
		threshold := params.SpikeThreshold
		alerts = append(alerts, Alert{
			Type:           TriggerSpike,
			KeywordID:      kw.Target.ID,
			Query:          kw.Target.Query,
			Locale:         kw.Target.Locale,
			Device:         kw.Target.Device,
			FromSnapshotID: from.ID,
			ToSnapshotID:   to.ID,
			PairScore:      &ps,
			Threshold:      &threshold,
			OccurredAt:     to.CapturedAt,
			severity:       severitySpike,
		})
	}

	if transition := regimeTransitionAlert(kw, snaps, pairScores); transition != nil {
		alerts = append(alerts, *transition)
	}
	return alerts
}

// regimeTransitionAlert compares the regime of the last consecutive pair
// against the second-to-last pair and emits an alert only on change. It
// needs at least three snapshots (two pairs).
func regimeTransitionAlert(kw aggregate.KeywordVolatility, snaps []serp.Snapshot, pairScores []float64) *Alert {
	if len(pairScores) < 2 {
		return nil
	}
	previous := score.RegimeFor(pairScores[len(pairScores)-2])
	current := score.RegimeFor(pairScores[len(pairScores)-1])
	if previous == current {
		return nil
	}

	severity := severityRecovery
	if current > previous {
		severity = regimeSeverityBase[current] + int(current-previous)
	}

	last := snaps[len(snaps)-1]
	return &Alert{
		Type:           TriggerRegimeTransition,
		KeywordID:      kw.Target.ID,
		Query:          kw.Target.Query,
		Locale:         kw.Target.Locale,
		Device:         kw.Target.Device,
		FromSnapshotID: snaps[len(snaps)-2].ID,
		ToSnapshotID:   last.ID,
		PreviousRegime: &previous,
		CurrentRegime:  &current,
		OccurredAt:     last.CapturedAt,
		severity:       severity,
	}
}

// concentrationAlert emits at most one project-level alert per request,
// only when the concentration ratio is defined and exceeds the threshold.
func concentrationAlert(keywords []aggregate.KeywordVolatility, params Params) *Alert {
	ranked := aggregate.RankKeywords(keywords, serp.MaturityPreliminary)
	ratio := aggregate.ConcentrationRatio(ranked)
	if ratio == nil || *ratio <= params.ConcentrationThreshold {
		return nil
	}
	threshold := params.ConcentrationThreshold
	return &Alert{
		Type:       TriggerConcentration,
		Ratio:      ratio,
		Threshold:  &threshold,
		OccurredAt: params.RequestedAt,
		severity:   severityConcentration,
	}
}

// sortAlerts applies the strict total order: severity desc, most-recent
// timestamp desc, trigger type asc, keyword id asc with empties last, then
// to-snapshot id desc with empties last.
func sortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.severity != b.severity {
			return a.severity > b.severity
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.KeywordID != b.KeywordID {
			if a.KeywordID == "" {
				return false
			}
			if b.KeywordID == "" {
				return true
			}
			return a.KeywordID < b.KeywordID
		}
		if a.ToSnapshotID != b.ToSnapshotID {
			if a.ToSnapshotID == "" {
				return false
			}
			if b.ToSnapshotID == "" {
				return true
			}
			return a.ToSnapshotID > b.ToSnapshotID
		}
		return false
	})
}

func orderedCopy(snaps []serp.Snapshot) []serp.Snapshot {
	ordered := make([]serp.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })
	return ordered
}
