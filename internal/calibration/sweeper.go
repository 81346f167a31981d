// Package calibration drives the calibration-due transition, which lives
// outside the pairing engine: gauges whose next calibration date has passed
// are flipped to calibration_due on a periodic sweep.
package calibration

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/store"
)

// Sweeper periodically marks overdue gauges calibration_due.
type Sweeper struct {
	store    store.Store
	interval time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(s store.Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: s, interval: interval}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("calibration sweeper starting (interval %s)", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			log.Printf("calibration sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("calibration sweep marked %d gauge(s) calibration_due", n)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Println("calibration sweeper shutting down")
			return
		}
	}
}

// SweepOnce marks every available gauge with an overdue calibration date.
// Each gauge is re-checked under lock inside its own transaction so a sweep
// never races an operational status change.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var due []model.Gauge
	err := s.store.DB().WithContext(ctx).
		Where("next_calibration_at IS NOT NULL AND next_calibration_at <= ? AND status = ?",
			time.Now().UTC(), model.StatusAvailable).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, g := range due {
		updated := false
		err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
			locked, err := s.store.GetGaugesForUpdate([]int64{g.ID}, tx)
			if err != nil {
				return err
			}
			fresh := locked[g.ID]
			if fresh == nil || fresh.Status != model.StatusAvailable {
				return nil
			}
			if err := s.store.UpdateStatus(g.ID, model.StatusCalibrationDue, tx); err != nil {
				return err
			}
			updated = true
			return nil
		})
		if err != nil {
			log.Printf("failed to mark gauge %d calibration_due: %v", g.ID, err)
			continue
		}
		if updated {
			marked++
		}
	}
	return marked, nil
}
