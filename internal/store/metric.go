package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertMetricParams represents parameters for upserting a metric row
type UpsertMetricParams struct {
	TenantID       uuid.UUID
	CampaignID     *uuid.UUID
	Date           time.Time
	Hour           *int
	Platform       string
	Source         string
	Impressions    int64
	Clicks         int64
	Conversions    int64
	Spend          float64
	Revenue        float64
	Orders         int64
	OrganicTraffic int64
	Metadata       JSONB
}

const sqlFindMetricByKey = `
SELECT id
FROM metrics
WHERE tenant_id = $1
  AND campaign_id IS NOT DISTINCT FROM $2
  AND date = $3
  AND hour IS NOT DISTINCT FROM $4
  AND platform = $5
  AND source = $6
`

const sqlInsertMetric = `
INSERT INTO metrics (tenant_id, campaign_id, date, hour, platform, source, impressions, clicks, conversions, spend, revenue, orders, organic_traffic, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, tenant_id, campaign_id, date, hour, platform, source, impressions, clicks, conversions, spend, revenue, orders, organic_traffic, metadata, created_at, updated_at
`

const sqlReplaceMetric = `
UPDATE metrics
SET impressions = $2,
    clicks = $3,
    conversions = $4,
    spend = $5,
    revenue = $6,
    orders = $7,
    organic_traffic = $8,
    metadata = $9,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING id, tenant_id, campaign_id, date, hour, platform, source, impressions, clicks, conversions, spend, revenue, orders, organic_traffic, metadata, created_at, updated_at
`

// UpsertMetric looks up the row identified by the six-part key
// (tenant_id, campaign_id, date, hour, platform, source) and either inserts
// it or overwrites its numeric and metadata fields. Replace semantics:
// callers supply the authoritative totals for the period, never deltas.
// The date is truncated to midnight UTC so intra-day re-syncs collapse to
// one row.
func (s *Store) UpsertMetric(ctx context.Context, params UpsertMetricParams) (Metric, error) {
	day := TruncateToDayUTC(params.Date)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return Metric{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var metric Metric
	var existingID uuid.UUID
	err = tx.GetContext(ctx, &existingID, sqlFindMetricByKey,
		params.TenantID, params.CampaignID, day, params.Hour, params.Platform, params.Source)
	switch {
	case err == nil:
		err = tx.GetContext(ctx, &metric, sqlReplaceMetric,
			existingID,
			params.Impressions,
			params.Clicks,
			params.Conversions,
			params.Spend,
			params.Revenue,
			params.Orders,
			params.OrganicTraffic,
			params.Metadata)
		if err != nil {
			s.logger.Error(ctx, "failed to replace metric", err)
			return Metric{}, fmt.Errorf("failed to replace metric: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		err = tx.GetContext(ctx, &metric, sqlInsertMetric,
			params.TenantID,
			params.CampaignID,
			day,
			params.Hour,
			params.Platform,
			params.Source,
			params.Impressions,
			params.Clicks,
			params.Conversions,
			params.Spend,
			params.Revenue,
			params.Orders,
			params.OrganicTraffic,
			params.Metadata)
		if err != nil {
			s.logger.Error(ctx, "failed to insert metric", err)
			return Metric{}, fmt.Errorf("failed to insert metric: %w", err)
		}
	default:
		s.logger.Error(ctx, "failed to look up metric by key", err)
		return Metric{}, fmt.Errorf("failed to look up metric by key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit transaction", err)
		return Metric{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return metric, nil
}

// AccumulateOrderParams represents parameters for adding one live order to a
// daily metric row
type AccumulateOrderParams struct {
	TenantID uuid.UUID
	Date     time.Time
	Platform string
	Source   string
	Orders   int64
	Revenue  float64
}

const sqlAccumulateOrder = `
UPDATE metrics
SET orders = orders + $2,
    revenue = revenue + $3,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING id, tenant_id, campaign_id, date, hour, platform, source, impressions, clicks, conversions, spend, revenue, orders, organic_traffic, metadata, created_at, updated_at
`

// AccumulateMetricOrder adds an order count and revenue delta onto the day's
// row, inserting it when absent. Unlike UpsertMetric this accumulates: each
// call carries one webhook-delivered order, not period totals. The next full
// sync replaces the row with authoritative numbers.
func (s *Store) AccumulateMetricOrder(ctx context.Context, params AccumulateOrderParams) (Metric, error) {
	day := TruncateToDayUTC(params.Date)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return Metric{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var metric Metric
	var existingID uuid.UUID
	err = tx.GetContext(ctx, &existingID, sqlFindMetricByKey,
		params.TenantID, nil, day, nil, params.Platform, params.Source)
	switch {
	case err == nil:
		err = tx.GetContext(ctx, &metric, sqlAccumulateOrder,
			existingID, params.Orders, params.Revenue)
		if err != nil {
			s.logger.Error(ctx, "failed to accumulate metric", err)
			return Metric{}, fmt.Errorf("failed to accumulate metric: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		err = tx.GetContext(ctx, &metric, sqlInsertMetric,
			params.TenantID,
			nil,
			day,
			nil,
			params.Platform,
			params.Source,
			int64(0),
			int64(0),
			int64(0),
			float64(0),
			params.Revenue,
			params.Orders,
			int64(0),
			nil)
		if err != nil {
			s.logger.Error(ctx, "failed to insert metric", err)
			return Metric{}, fmt.Errorf("failed to insert metric: %w", err)
		}
	default:
		s.logger.Error(ctx, "failed to look up metric by key", err)
		return Metric{}, fmt.Errorf("failed to look up metric by key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit transaction", err)
		return Metric{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return metric, nil
}

const sqlListMetrics = `
SELECT id, tenant_id, campaign_id, date, hour, platform, source, impressions, clicks, conversions, spend, revenue, orders, organic_traffic, metadata, created_at, updated_at
FROM metrics
WHERE tenant_id = $1 AND date >= $2 AND date <= $3
ORDER BY date, platform, source
`

// ListMetrics retrieves a tenant's metric rows in a date window
func (s *Store) ListMetrics(ctx context.Context, tenantID uuid.UUID, since, until time.Time) ([]Metric, error) {
	var metrics []Metric
	err := s.db.SelectContext(ctx, &metrics, sqlListMetrics,
		tenantID, TruncateToDayUTC(since), TruncateToDayUTC(until))
	if err != nil {
		s.logger.Error(ctx, "failed to list metrics", err)
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

// TruncateToDayUTC truncates a timestamp to midnight UTC. All metric dates
// pass through this before key comparison.
func TruncateToDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
