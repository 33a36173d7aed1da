package processor

import (
	"context"
	"fmt"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/store"
)

// MetricStore is the subset of the store the built-in event handlers write to
type MetricStore interface {
	AccumulateMetricOrder(ctx context.Context, params store.AccumulateOrderParams) (store.Metric, error)
}

// RegisterDefaultHandlers wires the built-in event handlers. Additional
// (platform, type) handlers can be registered on top at bootstrap.
func RegisterDefaultHandlers(d *Dispatcher, metrics MetricStore, logger *observability.Logger) {
	d.Register(store.PlatformShopee, "order_status_update", shopeeOrderHandler(metrics, logger))
	d.Register(store.PlatformLine, "follow", lineFollowHandler(logger))
	d.Register(store.PlatformLine, "unfollow", lineFollowHandler(logger))
}

// shopeeOrderHandler folds a completed order into the day's live metric row.
// The orders count accumulates per webhook; the next scheduled sync replaces
// the row with the platform's authoritative totals.
func shopeeOrderHandler(metrics MetricStore, logger *observability.Logger) EventHandler {
	return func(ctx context.Context, event store.WebhookEvent) error {
		if event.TenantID == nil {
			logger.Info(ctx, "shopee order event has no resolved tenant, skipping")
			return nil
		}

		data, _ := event.Data["data"].(map[string]interface{})
		status, _ := data["status"].(string)
		if status != "COMPLETED" {
			logger.Info(ctx, fmt.Sprintf("ignoring shopee order in status %q", status))
			return nil
		}

		day := event.ReceivedAt
		if ts, ok := event.Data["timestamp"].(float64); ok && ts > 0 {
			day = time.Unix(int64(ts), 0)
		}

		var revenue float64
		if amount, ok := data["total_amount"].(float64); ok {
			revenue = amount
		}

		_, err := metrics.AccumulateMetricOrder(ctx, store.AccumulateOrderParams{
			TenantID: *event.TenantID,
			Date:     day,
			Platform: store.PlatformShopee,
			Source:   "shopee_orders",
			Orders:   1,
			Revenue:  revenue,
		})
		return err
	}
}

// lineFollowHandler records follower changes. Follower totals come from the
// scheduled insight sync; the webhook only logs the event.
func lineFollowHandler(logger *observability.Logger) EventHandler {
	return func(ctx context.Context, event store.WebhookEvent) error {
		logger.Info(ctx, fmt.Sprintf("line %s event received", event.Type))
		return nil
	}
}
