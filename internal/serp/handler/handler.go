// Package handler exposes the volatility and alerting surfaces over HTTP.
// Every surface is compute-on-read: a single request time is captured up
// front, at most two bulk loads run against the store, and everything after
// that is deterministic in-memory computation.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rankpulse/rankpulse/internal/serp"
	"github.com/rankpulse/rankpulse/internal/serp/aggregate"
	"github.com/rankpulse/rankpulse/internal/serp/alert"
	"github.com/rankpulse/rankpulse/internal/serp/cache"
	"github.com/rankpulse/rankpulse/internal/serp/cursor"
	"github.com/rankpulse/rankpulse/internal/serp/delta"
	"github.com/rankpulse/rankpulse/internal/serp/extract"
	"github.com/rankpulse/rankpulse/internal/serp/notify"
	"github.com/rankpulse/rankpulse/internal/serp/params"
	"github.com/rankpulse/rankpulse/internal/serp/score"
	apperrors "github.com/rankpulse/rankpulse/pkg/errors"
	"github.com/rankpulse/rankpulse/pkg/logger"
	"github.com/rankpulse/rankpulse/pkg/metrics"
)

// Store is the read-only collaborator owning keyword targets and snapshots.
type Store interface {
	ListTargets(ctx context.Context, projectID string) ([]serp.KeywordTarget, error)
	ListSnapshots(ctx context.Context, projectID string, from *time.Time) ([]serp.Snapshot, error)
}

// Handler serves the volatility surfaces. Cache and publisher are optional;
// a nil value disables the corresponding behavior.
type Handler struct {
	store     Store
	cache     *cache.SummaryCache
	publisher *notify.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler.
func New(store Store, summaryCache *cache.SummaryCache, publisher *notify.Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		store:     store,
		cache:     summaryCache,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithComponent("volatility-handler"),
	}
}

// Register wires the handler's routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/projects/{projectID}/volatility/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/projects/{projectID}/volatility/keywords", h.KeywordFeed)
	mux.HandleFunc("GET /api/v1/projects/{projectID}/volatility/keywords/profile", h.KeywordProfile)
	mux.HandleFunc("GET /api/v1/projects/{projectID}/volatility/pairs", h.PairReport)
	mux.HandleFunc("GET /api/v1/projects/{projectID}/alerts", h.Alerts)
	mux.HandleFunc("GET /api/v1/volatility/config", h.Config)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

type summaryResponse struct {
	ProjectID   string    `json:"project_id"`
	RequestedAt time.Time `json:"requested_at"`
	WindowDays  int       `json:"window_days,omitempty"`
	aggregate.ProjectSummary
}

// Summary serves the project-wide aggregate view.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestedAt := time.Now().UTC()

	projectID := r.PathValue("projectID")
	if projectID == "" {
		h.writeError(w, http.StatusBadRequest, "projectID is required")
		return
	}
	q, err := params.ParseSummaryQuery(r.URL.Query())
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	compute := func() ([]byte, error) {
		targets, snapshots, err := h.load(ctx, projectID, q.WindowDays, requestedAt)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		keywords := aggregate.ScoreKeywords(targets, aggregate.GroupByKey(snapshots), q.AlertThreshold)
		summary := aggregate.Summarize(keywords)
		h.observeComputation("summary", start, len(targets), len(snapshots))

		return json.Marshal(summaryResponse{
			ProjectID:      projectID,
			RequestedAt:    requestedAt,
			WindowDays:     q.WindowDays,
			ProjectSummary: summary,
		})
	}

	var (
		data     []byte
		cacheHit bool
	)
	if h.cache != nil {
		key := cache.BuildKey(projectID, "summary",
			strconv.Itoa(q.WindowDays),
			strconv.FormatFloat(q.AlertThreshold, 'f', 2, 64),
		)
		data, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
		h.observeCache(cacheHit)
	} else {
		data, err = compute()
	}
	if err != nil {
		log.Error("summary computation failed", "project_id", projectID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "summary computation failed")
		return
	}

	log.Info("summary served",
		"project_id", projectID,
		"window_days", q.WindowDays,
		"cache_hit", cacheHit,
	)
	h.writeRaw(w, http.StatusOK, data)
}

type keywordFeedResponse struct {
	ProjectID   string                        `json:"project_id"`
	RequestedAt time.Time                     `json:"requested_at"`
	WindowDays  int                           `json:"window_days,omitempty"`
	Keywords    []aggregate.KeywordVolatility `json:"keywords"`
	NextCursor  string                        `json:"next_cursor,omitempty"`
}

// KeywordFeed serves the ranked keyword risk feed with opaque cursor
// pagination over the (score desc, query asc, id asc) order.
func (h *Handler) KeywordFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestedAt := time.Now().UTC()

	projectID := r.PathValue("projectID")
	if projectID == "" {
		h.writeError(w, http.StatusBadRequest, "projectID is required")
		return
	}
	q, err := params.ParseKeywordFeedQuery(r.URL.Query())
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	targets, snapshots, err := h.load(ctx, projectID, q.WindowDays, requestedAt)
	if err != nil {
		log.Error("keyword feed load failed", "project_id", projectID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "keyword feed computation failed")
		return
	}

	start := time.Now()
	keywords := aggregate.ScoreKeywords(targets, aggregate.GroupByKey(snapshots), params.DefaultAlertThreshold)
	ranked := aggregate.RankKeywords(keywords, q.MinMaturity)
	page, nextCursor := paginate(ranked, q.Cursor, q.Limit)
	h.observeComputation("keywords", start, len(targets), len(snapshots))

	h.writeJSON(w, http.StatusOK, keywordFeedResponse{
		ProjectID:   projectID,
		RequestedAt: requestedAt,
		WindowDays:  q.WindowDays,
		Keywords:    page,
		NextCursor:  nextCursor,
	})
}

// paginate applies the cursor protocol to the ranked keyword list. A
// malformed cursor starts from the top; a next cursor is returned only when
// items remain past the page.
func paginate(ranked []aggregate.KeywordVolatility, rawCursor string, limit int) ([]aggregate.KeywordVolatility, string) {
	start := 0
	if pos, ok := cursor.Decode(rawCursor); ok {
		for start < len(ranked) {
			kw := ranked[start]
			if pos.After(kw.Profile.VolatilityScore, kw.Target.Query, kw.Target.ID) {
				break
			}
			start++
		}
	}

	end := start + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	page := ranked[start:end]

	next := ""
	if end < len(ranked) && len(page) > 0 {
		last := page[len(page)-1]
		next = cursor.Encode(cursor.Position{
			Score:     last.Profile.VolatilityScore,
			Query:     last.Target.Query,
			KeywordID: last.Target.ID,
		})
	}
	return page, next
}

type profileResponse struct {
	ProjectID     string                 `json:"project_id"`
	RequestedAt   time.Time              `json:"requested_at"`
	WindowDays    int                    `json:"window_days,omitempty"`
	Target        serp.KeywordTarget     `json:"target"`
	Profile       serp.VolatilityProfile `json:"profile"`
	Regime        serp.Regime            `json:"regime"`
	Maturity      serp.Maturity          `json:"maturity"`
	SnapshotCount int                    `json:"snapshot_count"`
	ParseWarnings int                    `json:"parse_warnings"`
}

// KeywordProfile serves one keyword's volatility profile.
func (h *Handler) KeywordProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestedAt := time.Now().UTC()

	projectID := r.PathValue("projectID")
	if projectID == "" {
		h.writeError(w, http.StatusBadRequest, "projectID is required")
		return
	}
	q, err := params.ParseKeywordQuery(r.URL.Query())
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	targets, snapshots, err := h.load(ctx, projectID, q.WindowDays, requestedAt)
	if err != nil {
		log.Error("profile load failed", "project_id", projectID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "profile computation failed")
		return
	}

	key := serp.KeywordKey{Query: q.Query, Locale: q.Locale, Device: q.Device}
	target, ok := findTarget(targets, key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "keyword target not found")
		return
	}

	start := time.Now()
	keywordSnaps := aggregate.GroupByKey(snapshots)[key]
	profile := score.Profile(keywordSnaps)

	warnings := 0
	for _, snap := range keywordSnaps {
		if _, warned := extract.Parse(snap.RawPayload); warned {
			warnings++
		}
	}
	h.observeComputation("profile", start, 1, len(keywordSnaps))
	h.observeParseWarnings(warnings)

	h.writeJSON(w, http.StatusOK, profileResponse{
		ProjectID:     projectID,
		RequestedAt:   requestedAt,
		WindowDays:    q.WindowDays,
		Target:        target,
		Profile:       profile,
		Regime:        score.RegimeFor(profile.VolatilityScore),
		Maturity:      score.MaturityFor(profile.SampleSize),
		SnapshotCount: len(keywordSnaps),
		ParseWarnings: warnings,
	})
}

type pairEntry struct {
	FromSnapshotID string      `json:"from_snapshot_id"`
	ToSnapshotID   string      `json:"to_snapshot_id"`
	FromCapturedAt time.Time   `json:"from_captured_at"`
	ToCapturedAt   time.Time   `json:"to_captured_at"`
	delta.Delta
	PairScore  float64     `json:"pair_score"`
	PairRegime serp.Regime `json:"pair_regime"`
}

type pairReportResponse struct {
	ProjectID   string             `json:"project_id"`
	RequestedAt time.Time          `json:"requested_at"`
	WindowDays  int                `json:"window_days,omitempty"`
	Target      serp.KeywordTarget `json:"target"`
	Pairs       []pairEntry        `json:"pairs"`
}

// PairReport serves the consecutive pairwise deltas for one keyword,
// including the entered/exited URL movement the scorer itself ignores.
func (h *Handler) PairReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestedAt := time.Now().UTC()

	projectID := r.PathValue("projectID")
	if projectID == "" {
		h.writeError(w, http.StatusBadRequest, "projectID is required")
		return
	}
	q, err := params.ParseKeywordQuery(r.URL.Query())
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	targets, snapshots, err := h.load(ctx, projectID, q.WindowDays, requestedAt)
	if err != nil {
		log.Error("pair report load failed", "project_id", projectID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "pair report computation failed")
		return
	}

	key := serp.KeywordKey{Query: q.Query, Locale: q.Locale, Device: q.Device}
	target, ok := findTarget(targets, key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "keyword target not found")
		return
	}

	start := time.Now()
	keywordSnaps := aggregate.GroupByKey(snapshots)[key]
	pairs := make([]pairEntry, 0)
	for i := 1; i < len(keywordSnaps); i++ {
		from, to := keywordSnaps[i-1], keywordSnaps[i]
		d := delta.Compute(from, to)
		pairScore := score.PairScore(d)
		pairs = append(pairs, pairEntry{
			FromSnapshotID: from.ID,
			ToSnapshotID:   to.ID,
			FromCapturedAt: from.CapturedAt,
			ToCapturedAt:   to.CapturedAt,
			Delta:          d,
			PairScore:      pairScore,
			PairRegime:     score.RegimeFor(pairScore),
		})
	}
	h.observeComputation("pairs", start, 1, len(keywordSnaps))

	h.writeJSON(w, http.StatusOK, pairReportResponse{
		ProjectID:   projectID,
		RequestedAt: requestedAt,
		WindowDays:  q.WindowDays,
		Target:      target,
		Pairs:       pairs,
	})
}

type alertsResponse struct {
	ProjectID   string        `json:"project_id"`
	RequestedAt time.Time     `json:"requested_at"`
	WindowDays  int           `json:"window_days"`
	AlertCount  int           `json:"alert_count"`
	Alerts      []alert.Alert `json:"alerts"`
}

// Alerts serves the ordered alert feed and publishes the returned alerts
// to the event topic.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestedAt := time.Now().UTC()

	projectID := r.PathValue("projectID")
	if projectID == "" {
		h.writeError(w, http.StatusBadRequest, "projectID is required")
		return
	}
	q, err := params.ParseAlertQuery(r.URL.Query())
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	targets, snapshots, err := h.load(ctx, projectID, q.WindowDays, requestedAt)
	if err != nil {
		log.Error("alerts load failed", "project_id", projectID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "alert computation failed")
		return
	}

	start := time.Now()
	grouped := aggregate.GroupByKey(snapshots)
	keywords := aggregate.ScoreKeywords(targets, grouped, params.DefaultAlertThreshold)
	alerts := alert.Build(keywords, grouped, alert.Params{
		SpikeThreshold:         q.SpikeThreshold,
		ConcentrationThreshold: q.ConcentrationThreshold,
		MinMaturity:            q.MinMaturity,
		RequestedAt:            requestedAt,
	})
	if len(alerts) > q.Limit {
		alerts = alerts[:q.Limit]
	}
	h.observeComputation("alerts", start, len(targets), len(snapshots))

	for _, a := range alerts {
		h.observeAlert(a)
		if h.publisher != nil {
			h.publisher.Track(notify.Event{
				ProjectID:   projectID,
				Alert:       a,
				RequestedAt: requestedAt,
			})
		}
	}

	log.Info("alerts served",
		"project_id", projectID,
		"window_days", q.WindowDays,
		"alert_count", len(alerts),
	)
	h.writeJSON(w, http.StatusOK, alertsResponse{
		ProjectID:   projectID,
		RequestedAt: requestedAt,
		WindowDays:  q.WindowDays,
		AlertCount:  len(alerts),
		Alerts:      alerts,
	})
}

// Config exposes the scoring contract constants and parameter defaults at
// the boundary.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"weights": map[string]float64{
			"rank_shift":         score.RankShiftWeight,
			"max_shift":          score.MaxShiftWeight,
			"ai_churn":           score.AIChurnWeight,
			"feature_volatility": score.FeatureVolWeight,
		},
		"caps": map[string]float64{
			"rank_shift":                 score.RankShiftCap,
			"max_shift":                  score.MaxShiftCap,
			"feature_volatility_per_pair": score.FeatureVolPerPairCap,
		},
		"regime_floors": map[string]float64{
			"unstable": score.UnstableFloor,
			"chaotic":  score.ChaoticFloor,
		},
		"maturity_floors": map[string]int{
			"developing": score.DevelopingSampleFloor,
			"stable":     score.StableSampleFloor,
		},
		"defaults": map[string]any{
			"alert_threshold":         params.DefaultAlertThreshold,
			"spike_threshold":         params.DefaultSpikeThreshold,
			"concentration_threshold": params.DefaultConcentrationThreshold,
			"min_maturity":            params.DefaultMinMaturity.String(),
		},
	})
}

// CacheStats reports summary cache hit rates.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

// load performs the request's two bulk reads concurrently. windowDays == 0
// loads the full history.
func (h *Handler) load(ctx context.Context, projectID string, windowDays int, requestedAt time.Time) ([]serp.KeywordTarget, []serp.Snapshot, error) {
	var from *time.Time
	if windowDays > 0 {
		t := requestedAt.AddDate(0, 0, -windowDays)
		from = &t
	}

	var (
		targets   []serp.KeywordTarget
		snapshots []serp.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		targets, err = h.store.ListTargets(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		snapshots, err = h.store.ListSnapshots(gctx, projectID, from)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return targets, snapshots, nil
}

func findTarget(targets []serp.KeywordTarget, key serp.KeywordKey) (serp.KeywordTarget, bool) {
	for _, t := range targets {
		if t.Key() == key {
			return t, true
		}
	}
	return serp.KeywordTarget{}, false
}

func (h *Handler) observeComputation(surface string, start time.Time, keywords, snapshots int) {
	if h.metrics == nil {
		return
	}
	h.metrics.ComputationsTotal.WithLabelValues(surface).Inc()
	h.metrics.ComputationDuration.WithLabelValues(surface).Observe(time.Since(start).Seconds())
	h.metrics.KeywordsScored.Observe(float64(keywords))
	h.metrics.SnapshotsLoaded.Observe(float64(snapshots))
}

func (h *Handler) observeAlert(a alert.Alert) {
	if h.metrics == nil {
		return
	}
	h.metrics.AlertsEmittedTotal.WithLabelValues(string(a.Type)).Inc()
}

func (h *Handler) observeParseWarnings(count int) {
	if h.metrics == nil || count == 0 {
		return
	}
	h.metrics.ParseWarningsTotal.Add(float64(count))
}

func (h *Handler) observeCache(hit bool) {
	if h.metrics == nil {
		return
	}
	if hit {
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	if verr, ok := err.(*params.ValidationError); ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid parameters",
			"fields": verr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}
