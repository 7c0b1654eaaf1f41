package circulation

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/knjiznica/internal/store"
)

// SweepSpec is the cron schedule for the daily overdue sweep.
const SweepSpec = "30 2 * * *"

// sweepTimeout bounds a single sweep run.
const sweepTimeout = time.Minute

// Sweep flips every issued entry whose return date is strictly before now to
// overdue. Both statuses consume an inventory unit, so the book counters are
// untouched; only the status column changes. Requested entries whose window
// lapsed unused are deliberately left alone.
//
// The update is idempotent: entries already overdue are excluded from the
// selection, so a crashed or repeated run changes nothing extra.
func Sweep(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	flipped, err := store.MarkOverdueEntries(ctx, db, now)
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		slog.Info("overdue sweep", "flipped", flipped)
	}
	return flipped, nil
}

// ScheduleSweep registers the daily sweep on c. A failed run only logs; the
// next scheduled run picks up whatever it missed.
func ScheduleSweep(c *cron.Cron, db *sql.DB) error {
	_, err := c.AddFunc(SweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if _, err := Sweep(ctx, db, time.Now()); err != nil {
			slog.Error("overdue sweep failed", "error", err)
		}
	})
	return err
}
