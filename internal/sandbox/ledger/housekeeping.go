package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Housekeeper periodically deletes ledger records older than Retention so
// a long-running sandbox does not grow without bound.
type Housekeeper struct {
	Store     *Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
}

// NewHousekeeper defaults interval to one hour and retention to a week.
func NewHousekeeper(store *Store, logger *slog.Logger, interval, retention time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Housekeeper{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
	}
}

// Run cleans once immediately, then every Interval until ctx is done.
func (h *Housekeeper) Run(ctx context.Context) error {
	h.Logger.Info("housekeeping started", "interval", h.Interval, "retention", h.Retention)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.cleanup(ctx)
	for {
		select {
		case <-ticker.C:
			h.cleanup(ctx)
		case <-ctx.Done():
			h.Logger.Info("housekeeping stopped")
			return nil
		}
	}
}

func (h *Housekeeper) cleanup(ctx context.Context) {
	deleted, err := h.Store.DeleteBefore(ctx, time.Now().Add(-h.Retention))
	if err != nil {
		h.Logger.Error("housekeeping cleanup failed", "error", err)
		return
	}
	h.Logger.Debug("housekeeping cleanup completed", "deleted", deleted)
}
