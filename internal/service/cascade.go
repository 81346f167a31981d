package service

import (
	"context"
	"log"

	"gorm.io/gorm"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
	"gauge-tracking-backend/internal/store"
)

// Notifier is told when a gauge becomes available again so subscribers can
// be pushed a notice. Implemented by the notification worker pool.
type Notifier interface {
	GaugeAvailable(gaugeID int64)
}

// CascadeService propagates status, location and deletion changes across a
// companion pair. A gauge without a companion simply takes the change
// itself.
type CascadeService struct {
	store    store.Store
	notifier Notifier
}

// NewCascadeService creates a cascade service. notifier may be nil.
func NewCascadeService(s store.Store, notifier Notifier) *CascadeService {
	return &CascadeService{store: s, notifier: notifier}
}

// resolvePair locks gaugeID and, when it has one, its companion. A dangling
// or asymmetric companion reference is logged as a consistency warning and
// reported back; the operation is expected to continue against whatever is
// present rather than fail.
func (c *CascadeService) resolvePair(ctx context.Context, gaugeID int64, tx *gorm.DB) (g, companion *model.Gauge, warning string, err error) {
	// Snapshot read to learn the companion, then lock both rows in one
	// canonical acquisition and re-check the link under the lock. Locking
	// the target alone first would hold the higher id while waiting on the
	// lower for half the pairs.
	snap, err := c.store.GetGauge(ctx, gaugeID)
	if err != nil {
		return nil, nil, "", err
	}

	ids := []int64{gaugeID}
	if snap.CompanionID != nil {
		ids = append(ids, *snap.CompanionID)
	}
	locked, err := c.store.GetGaugesForUpdate(ids, tx)
	if err != nil {
		return nil, nil, "", err
	}
	g = locked[gaugeID]
	if g == nil {
		return nil, nil, "", &pair.NotFoundError{GaugeID: gaugeID}
	}
	if g.CompanionID == nil {
		if snap.CompanionID != nil {
			// Unpaired between snapshot and lock; retry from a fresh snapshot.
			return nil, nil, "", errStaleRead
		}
		return g, nil, "", nil
	}
	if snap.CompanionID == nil || *g.CompanionID != *snap.CompanionID {
		return nil, nil, "", errStaleRead
	}

	companionID := *g.CompanionID
	companion = locked[companionID]
	if companion == nil {
		warning = "companion_missing"
		log.Printf("consistency warning: gauge %d references missing companion %d", gaugeID, companionID)
		return g, nil, warning, nil
	}
	if companion.CompanionID == nil || *companion.CompanionID != gaugeID {
		warning = "companion_link_asymmetric"
		log.Printf("consistency warning: companion link %d<->%d is not mutual", gaugeID, companionID)
	}
	return g, companion, warning, nil
}

// CascadeStatusChange sets newStatus on the gauge and its companion in one
// transaction. Only out_of_service and available may be cascaded.
func (c *CascadeService) CascadeStatusChange(ctx context.Context, gaugeID int64, newStatus model.GaugeStatus, userID int64, reason string) error {
	if newStatus != model.StatusOutOfService && newStatus != model.StatusAvailable {
		return pair.NewDomainError(pair.CodeStatusNotCascadable, "only out_of_service and available cascade across a pair", map[string]any{
			"status": string(newStatus),
		})
	}

	var updated []int64
	err := withRetry(ctx, "cascadeStatusChange", func() error {
		updated = updated[:0]
		return c.store.Transaction(ctx, func(tx *gorm.DB) error {
			g, companion, warning, err := c.resolvePair(ctx, gaugeID, tx)
			if err != nil {
				return err
			}

			if err := c.store.UpdateStatus(g.ID, newStatus, tx); err != nil {
				return err
			}
			updated = append(updated, g.ID)

			entry := &model.CompanionHistory{
				GaugeID: g.ID,
				Action:  model.ActionCascadedStatus,
				UserID:  userID,
				Reason:  reason,
				Details: map[string]any{"new_status": string(newStatus)},
			}
			if companion != nil {
				if err := c.store.UpdateStatus(companion.ID, newStatus, tx); err != nil {
					return err
				}
				updated = append(updated, companion.ID)
				entry.CompanionID = &companion.ID
			}
			if warning != "" {
				entry.Details["consistency_warning"] = warning
			}
			return c.store.RecordHistory(entry, tx)
		})
	})
	if err != nil {
		return err
	}

	if newStatus == model.StatusAvailable && c.notifier != nil {
		for _, id := range updated {
			c.notifier.GaugeAvailable(id)
		}
	}
	return nil
}

// CascadeLocationChange moves the gauge and its companion to newLocation in
// one transaction.
func (c *CascadeService) CascadeLocationChange(ctx context.Context, gaugeID int64, newLocation string, userID int64, reason string) error {
	return withRetry(ctx, "cascadeLocationChange", func() error {
		return c.store.Transaction(ctx, func(tx *gorm.DB) error {
			g, companion, warning, err := c.resolvePair(ctx, gaugeID, tx)
			if err != nil {
				return err
			}

			if err := c.store.UpdateLocation(g.ID, newLocation, tx); err != nil {
				return err
			}

			entry := &model.CompanionHistory{
				GaugeID: g.ID,
				Action:  model.ActionCascadedLocation,
				UserID:  userID,
				Reason:  reason,
				Details: map[string]any{"new_location": newLocation},
			}
			if companion != nil {
				if err := c.store.UpdateLocation(companion.ID, newLocation, tx); err != nil {
					return err
				}
				entry.CompanionID = &companion.ID
			}
			if warning != "" {
				entry.Details["consistency_warning"] = warning
			}
			return c.store.RecordHistory(entry, tx)
		})
	})
}

// DeleteGaugeAndOrphanCompanion soft-deletes the gauge after turning its
// companion (if any) back into a spare. Refused outright while the
// companion is checked out: the set must come back first.
func (c *CascadeService) DeleteGaugeAndOrphanCompanion(ctx context.Context, gaugeID, userID int64, reason string) error {
	return withRetry(ctx, "deleteGaugeAndOrphanCompanion", func() error {
		return c.store.Transaction(ctx, func(tx *gorm.DB) error {
			g, companion, warning, err := c.resolvePair(ctx, gaugeID, tx)
			if err != nil {
				return err
			}

			if companion != nil {
				if companion.Status == model.StatusCheckedOut {
					return pair.NewDomainError(pair.CodeCompanionCheckedOut, "cannot delete a gauge while its companion is checked out", map[string]any{
						"companion_id":     companion.ID,
						"companion_status": string(companion.Status),
					})
				}
				if err := c.store.ClearCompanion(companion.ID, tx); err != nil {
					return err
				}
				entry := &model.CompanionHistory{
					GaugeID:     companion.ID,
					CompanionID: &g.ID,
					Action:      model.ActionOrphaned,
					UserID:      userID,
					Reason:      reason,
					Details:     map[string]any{"deleted_gauge_id": g.ID},
				}
				if warning != "" {
					entry.Details["consistency_warning"] = warning
				}
				if err := c.store.RecordHistory(entry, tx); err != nil {
					return err
				}
			}

			if g.CompanionID != nil {
				if err := c.store.ClearCompanion(g.ID, tx); err != nil {
					return err
				}
			}
			return c.store.SoftDeleteGauge(g.ID, tx)
		})
	})
}
