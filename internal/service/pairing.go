// Package service orchestrates the companion-pair workflows. Each exported
// operation runs its repository calls inside exactly one transaction and
// threads the handle explicitly through every write; transient lock
// failures are retried here, domain failures never are.
package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gauge-tracking-backend/internal/ident"
	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
	"gauge-tracking-backend/internal/store"
)

// GaugeInput carries the caller-supplied fields for a new gauge record.
// Identity (id, identifier, suffix) is assigned by the service.
type GaugeInput struct {
	EquipmentType     string
	Category          string
	ThreadSize        string
	ThreadClass       string
	ThreadForm        string
	GaugeType         string
	Location          string
	Sealed            bool
	OwnershipType     model.OwnershipType
	CustomerID        *int64
	NextCalibrationAt *time.Time
}

// PairingService owns the transaction boundaries for all pairing workflows.
type PairingService struct {
	store    store.Store
	alloc    ident.Allocator
	priority []model.GaugeStatus
}

// NewPairingService creates a pairing service. A nil priority uses
// pair.DefaultStatusPriority.
func NewPairingService(s store.Store, alloc ident.Allocator, priority []model.GaugeStatus) *PairingService {
	if priority == nil {
		priority = pair.DefaultStatusPriority
	}
	return &PairingService{store: s, alloc: alloc, priority: priority}
}

func buildGauge(in GaugeInput, suffix model.GaugeSuffix) *model.Gauge {
	ownership := in.OwnershipType
	if ownership == "" {
		ownership = model.OwnershipCompany
	}
	return &model.Gauge{
		EquipmentType:     in.EquipmentType,
		Category:          in.Category,
		Suffix:            suffix,
		ThreadSize:        in.ThreadSize,
		ThreadClass:       in.ThreadClass,
		ThreadForm:        in.ThreadForm,
		GaugeType:         in.GaugeType,
		Location:          in.Location,
		Sealed:            in.Sealed,
		Status:            model.StatusAvailable,
		OwnershipType:     ownership,
		CustomerID:        in.CustomerID,
		NextCalibrationAt: in.NextCalibrationAt,
	}
}

// CreateGaugeSet creates a GO/NOGO pair in one transaction: allocate
// identifiers, validate the candidates, persist both records, link them,
// and log created_together. Validation happens before any write.
func (p *PairingService) CreateGaugeSet(ctx context.Context, goData, noGoData GaugeInput, userID int64) (*model.Gauge, *model.Gauge, error) {
	goGauge := buildGauge(goData, model.SuffixGo)
	noGoGauge := buildGauge(noGoData, model.SuffixNoGo)

	if err := pair.ValidatePair(goGauge, noGoGauge); err != nil {
		return nil, nil, err
	}

	// One base number per set; both identifiers derive from it so the pair
	// shares its base even if the transaction below rolls back and retries.
	seq, err := p.alloc.NextBase(ctx, goData.Category)
	if err != nil {
		return nil, nil, err
	}
	goGauge.Identifier = ident.Format(goData.Category, seq, model.SuffixGo)
	noGoGauge.Identifier = ident.Format(goData.Category, seq, model.SuffixNoGo)

	err = withRetry(ctx, "createGaugeSet", func() error {
		return p.store.Transaction(ctx, func(tx *gorm.DB) error {
			if err := p.store.CreateGauge(goGauge, tx); err != nil {
				return err
			}
			if err := p.store.CreateGauge(noGoGauge, tx); err != nil {
				return err
			}
			if err := p.store.LinkCompanions(goGauge.ID, noGoGauge.ID, tx); err != nil {
				return err
			}
			return p.store.RecordHistory(&model.CompanionHistory{
				GaugeID:     goGauge.ID,
				CompanionID: &noGoGauge.ID,
				Action:      model.ActionCreatedTogether,
				UserID:      userID,
				Details: map[string]any{
					"go_identifier":   goGauge.Identifier,
					"nogo_identifier": noGoGauge.Identifier,
				},
			}, tx)
		})
	})
	if err != nil {
		return nil, nil, err
	}

	goGauge.CompanionID = &noGoGauge.ID
	noGoGauge.CompanionID = &goGauge.ID
	return goGauge, noGoGauge, nil
}

// PairSpareGauges links two existing spares as a set and moves both to
// setLocation. Either gauge already having a companion fails with
// NOT_A_SPARE.
func (p *PairingService) PairSpareGauges(ctx context.Context, idA, idB int64, userID int64, setLocation string) error {
	return withRetry(ctx, "pairSpareGauges", func() error {
		return p.store.Transaction(ctx, func(tx *gorm.DB) error {
			locked, err := p.store.GetGaugesForUpdate([]int64{idA, idB}, tx)
			if err != nil {
				return err
			}
			a, b := locked[idA], locked[idB]
			if a == nil {
				return &pair.NotFoundError{GaugeID: idA}
			}
			if b == nil {
				return &pair.NotFoundError{GaugeID: idB}
			}
			for _, g := range []*model.Gauge{a, b} {
				if g.CompanionID != nil {
					return pair.NewDomainError(pair.CodeNotASpare, "gauge already has a companion", map[string]any{
						"gauge_id":     g.ID,
						"companion_id": *g.CompanionID,
					})
				}
			}
			if err := pair.ValidatePair(a, b); err != nil {
				return err
			}
			if err := p.store.LinkCompanions(idA, idB, tx); err != nil {
				return err
			}
			if err := p.store.UpdateLocation(idA, setLocation, tx); err != nil {
				return err
			}
			if err := p.store.UpdateLocation(idB, setLocation, tx); err != nil {
				return err
			}
			return p.store.RecordHistory(&model.CompanionHistory{
				GaugeID:     idA,
				CompanionID: &idB,
				Action:      model.ActionPairedFromSpares,
				UserID:      userID,
				Details:     map[string]any{"location": setLocation},
			}, tx)
		})
	})
}

// UnpairSet breaks the pair containing gaugeID. A gauge without a companion
// needs no unpairing, so that case is a no-op success.
func (p *PairingService) UnpairSet(ctx context.Context, gaugeID, userID int64, reason string) error {
	return withRetry(ctx, "unpairSet", func() error {
		// Snapshot read to learn the companion, then lock both rows in one
		// canonical acquisition. Locking the target alone first would hold
		// the higher id while waiting on the lower for half the pairs.
		snap, err := p.store.GetGauge(ctx, gaugeID)
		if err != nil {
			return err
		}
		if snap.CompanionID == nil {
			return nil
		}
		companionID := *snap.CompanionID

		return p.store.Transaction(ctx, func(tx *gorm.DB) error {
			locked, err := p.store.GetGaugesForUpdate([]int64{gaugeID, companionID}, tx)
			if err != nil {
				return err
			}
			g := locked[gaugeID]
			if g == nil {
				return &pair.NotFoundError{GaugeID: gaugeID}
			}
			if g.CompanionID == nil {
				return nil
			}
			if *g.CompanionID != companionID {
				return errStaleRead
			}

			if err := p.store.UnlinkCompanions(gaugeID, companionID, tx); err != nil {
				return err
			}
			return p.store.RecordHistory(&model.CompanionHistory{
				GaugeID:     gaugeID,
				CompanionID: &companionID,
				Action:      model.ActionUnlinked,
				UserID:      userID,
				Reason:      reason,
			}, tx)
		})
	})
}

// ReplaceCompanion swaps the companion of an existing paired gauge for a
// spare replacement. Refused while either current member is checked out or
// while the replacement is still pending QC. The replacement inherits the
// set's location.
func (p *PairingService) ReplaceCompanion(ctx context.Context, existingID, replacementID, userID int64, reason string) error {
	return withRetry(ctx, "replaceCompanion", func() error {
		// Snapshot read to learn the current companion, then lock all three
		// rows in canonical order and re-check under lock.
		snap, err := p.store.GetGauge(ctx, existingID)
		if err != nil {
			return err
		}
		if snap.CompanionID == nil {
			return pair.NewDomainError(pair.CodeNotPaired, "gauge has no companion to replace", map[string]any{
				"gauge_id": existingID,
			})
		}
		oldCompanionID := *snap.CompanionID

		return p.store.Transaction(ctx, func(tx *gorm.DB) error {
			locked, err := p.store.GetGaugesForUpdate([]int64{existingID, oldCompanionID, replacementID}, tx)
			if err != nil {
				return err
			}
			existing := locked[existingID]
			oldCompanion := locked[oldCompanionID]
			replacement := locked[replacementID]
			if existing == nil {
				return &pair.NotFoundError{GaugeID: existingID}
			}
			if replacement == nil {
				return &pair.NotFoundError{GaugeID: replacementID}
			}
			if existing.CompanionID == nil || *existing.CompanionID != oldCompanionID {
				return errStaleRead
			}
			if oldCompanion == nil {
				return &pair.NotFoundError{GaugeID: oldCompanionID}
			}

			if existing.Status == model.StatusCheckedOut || oldCompanion.Status == model.StatusCheckedOut {
				return pair.NewDomainError(pair.CodeCompanionCheckedOut, "cannot replace a companion while the set is checked out", map[string]any{
					"gauge_status":     string(existing.Status),
					"companion_status": string(oldCompanion.Status),
				})
			}
			if replacement.Status == model.StatusPendingQC {
				return pair.NewDomainError(pair.CodeReplacementPendingQC, "replacement gauge has not cleared QC", map[string]any{
					"replacement_id": replacementID,
				})
			}
			if replacement.CompanionID != nil {
				return pair.NewDomainError(pair.CodeNotASpare, "replacement gauge already has a companion", map[string]any{
					"gauge_id":     replacementID,
					"companion_id": *replacement.CompanionID,
				})
			}

			// Validate against a copy with the old link cleared; the real
			// unlink only happens once the candidate pair is accepted.
			candidate := *existing
			candidate.CompanionID = nil
			if err := pair.ValidatePair(&candidate, replacement); err != nil {
				return err
			}

			if err := p.store.UnlinkCompanions(existingID, oldCompanionID, tx); err != nil {
				return err
			}
			if err := p.store.LinkCompanions(existingID, replacementID, tx); err != nil {
				return err
			}
			if err := p.store.UpdateLocation(replacementID, existing.Location, tx); err != nil {
				return err
			}
			return p.store.RecordHistory(&model.CompanionHistory{
				GaugeID:     existingID,
				CompanionID: &replacementID,
				Action:      model.ActionReplaced,
				UserID:      userID,
				Reason:      reason,
				Details: map[string]any{
					"old_companion_id": oldCompanionID,
					"new_companion_id": replacementID,
				},
			}, tx)
		})
	})
}

// CanCheckoutSet reports whether the set containing gaugeID may be checked
// out, with a human-readable reason when it may not. Read-only: no locks,
// no transaction.
func (p *PairingService) CanCheckoutSet(ctx context.Context, gaugeID int64) (bool, string, error) {
	g, err := p.store.GetGauge(ctx, gaugeID)
	if err != nil {
		return false, "", err
	}

	if g.CompanionID == nil {
		if g.Status != model.StatusAvailable {
			return false, fmt.Sprintf("gauge %s is %s", g.Identifier, g.Status), nil
		}
		return true, "", nil
	}

	companion, err := p.store.GetGauge(ctx, *g.CompanionID)
	if err != nil {
		if pair.IsNotFound(err) {
			return false, fmt.Sprintf("companion %d of gauge %s is missing", *g.CompanionID, g.Identifier), nil
		}
		return false, "", err
	}

	if pair.ComputeSetStatus(g.Status, companion.Status, p.priority) == model.StatusAvailable {
		return true, "", nil
	}
	if g.Status != model.StatusAvailable {
		return false, fmt.Sprintf("gauge %s is %s", g.Identifier, g.Status), nil
	}
	return false, fmt.Sprintf("companion %s is %s", companion.Identifier, companion.Status), nil
}
