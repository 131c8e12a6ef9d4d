// Package store implements read-only PostgreSQL access to keyword targets
// and SERP snapshots. Both listings are returned in a deterministic total
// order — targets by (query asc, id asc), snapshots by (captured_at asc,
// id asc) — which the volatility core relies on and never re-derives from
// content.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp"
	apperrors "github.com/rankpulse/rankpulse/pkg/errors"
	"github.com/rankpulse/rankpulse/pkg/logger"
	"github.com/rankpulse/rankpulse/pkg/postgres"
)

// Store reads keyword targets and snapshots for the volatility surfaces.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// New creates a Store over the shared postgres client.
func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: logger.WithComponent("serp-store"),
	}
}

// ListTargets returns every keyword target of a project, ordered by query
// ascending then id ascending.
func (s *Store) ListTargets(ctx context.Context, projectID string) ([]serp.KeywordTarget, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT id, query, locale, device
		FROM keyword_targets
		WHERE project_id = $1
		ORDER BY query ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing keyword targets: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var targets []serp.KeywordTarget
	for rows.Next() {
		var t serp.KeywordTarget
		if err := rows.Scan(&t.ID, &t.Query, &t.Locale, &t.Device); err != nil {
			return nil, fmt.Errorf("scanning keyword target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword targets: %w", err)
	}
	return targets, nil
}

// ListSnapshots returns the project's snapshots, optionally restricted to
// captures at or after from, ordered by captured_at ascending then id
// ascending. A NULL or unexpected ai_overview_status degrades to unknown.
func (s *Store) ListSnapshots(ctx context.Context, projectID string, from *time.Time) ([]serp.Snapshot, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := `
		SELECT id, query, locale, device, captured_at, ai_overview_status, raw_payload
		FROM serp_snapshots
		WHERE project_id = $1`
	args := []any{projectID}
	if from != nil {
		query += ` AND captured_at >= $2`
		args = append(args, *from)
	}
	query += ` ORDER BY captured_at ASC, id ASC`

	rows, err := s.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing snapshots: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var snapshots []serp.Snapshot
	for rows.Next() {
		var (
			snap     serp.Snapshot
			aiStatus sql.NullString
			payload  []byte
		)
		if err := rows.Scan(&snap.ID, &snap.Query, &snap.Locale, &snap.Device, &snap.CapturedAt, &aiStatus, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.CapturedAt = snap.CapturedAt.UTC()
		snap.AIOverviewStatus = serp.NormalizeAIOverviewStatus(aiStatus.String)
		snap.RawPayload = payload
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	s.logger.Debug("snapshots loaded", "project_id", projectID, "count", len(snapshots))
	return snapshots, nil
}

// queryContext applies the configured per-query timeout around the full
// query-and-scan.
func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := s.client.QueryTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
