package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medilink-health/medilink/internal/catalog"
)

// CatalogMaintainer is the slice of the catalog service the maintenance
// jobs need.
type CatalogMaintainer interface {
	SweepExpired(ctx context.Context, asOf time.Time) (int64, error)
	LowStock(ctx context.Context, threshold int64) ([]catalog.LowStockRow, error)
}

// IdempotencyCleaner purges stale idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// NewExpirySweepHandler returns the TaskTypeExpirySweep handler.
func NewExpirySweepHandler(svc CatalogMaintainer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ExpirySweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		asOf := payload.ScheduledFor
		if asOf.IsZero() {
			asOf = time.Now()
		}
		removed, err := svc.SweepExpired(ctx, asOf)
		if err != nil {
			logger.Error("expiry sweep failed", slog.Any("error", err))
			return err
		}
		logger.Info("expiry sweep done",
			slog.Time("as_of", asOf),
			slog.Int64("removed", removed))
		return nil
	}
}

// NewLowStockScanHandler returns the TaskTypeLowStockScan handler. The
// scan only logs its findings, alert delivery lives upstream.
func NewLowStockScanHandler(svc CatalogMaintainer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		rows, err := svc.LowStock(ctx, payload.Threshold)
		if err != nil {
			logger.Error("low stock scan failed", slog.Any("error", err))
			return err
		}
		for _, row := range rows {
			logger.Warn("low stock",
				slog.String("pharmacy_id", row.PharmacyID),
				slog.String("name", row.Name),
				slog.String("brand", row.Brand),
				slog.Int64("quantity", row.Quantity))
		}
		logger.Info("low stock scan done", slog.Int("flagged", len(rows)))
		return nil
	}
}

// NewIdempotencyCleanupHandler returns the TaskTypeIdempotencyCleanup
// handler.
func NewIdempotencyCleanupHandler(store IdempotencyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		maxAge := payload.MaxAge
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		purged, err := store.Cleanup(ctx, maxAge)
		if err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		logger.Info("idempotency cleanup done", slog.Int64("purged", purged))
		return nil
	}
}
