package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
)

// ErrNoTxHandle is a programming error, not a domain error: a write
// primitive was invoked without a caller-supplied transaction handle.
// Every mutation in this engine must run inside a transaction owned by the
// pairing or cascade service; an ambient/default connection is never an
// acceptable fallback for a write.
var ErrNoTxHandle = errors.New("store: write primitive called without a transaction handle")

// Store defines the only persistence primitives the pairing and cascade
// services may use. All writes take the transaction handle as their last
// argument and fail fast with ErrNoTxHandle when it is missing.
type Store interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateGauge(g *model.Gauge, tx *gorm.DB) error
	GetGauge(ctx context.Context, id int64) (*model.Gauge, error)
	GetGaugeByIdentifier(ctx context.Context, identifier string) (*model.Gauge, error)
	// GetGaugesForUpdate locks the given rows FOR UPDATE in ascending id
	// order and returns them keyed by id. Locking in canonical order is what
	// keeps two concurrent pairing attempts from deadlocking each other.
	GetGaugesForUpdate(ids []int64, tx *gorm.DB) (map[int64]*model.Gauge, error)
	LinkCompanions(idA, idB int64, tx *gorm.DB) error
	UnlinkCompanions(idA, idB int64, tx *gorm.DB) error
	ClearCompanion(id int64, tx *gorm.DB) error
	UpdateStatus(id int64, status model.GaugeStatus, tx *gorm.DB) error
	UpdateLocation(id int64, location string, tx *gorm.DB) error
	SoftDeleteGauge(id int64, tx *gorm.DB) error
	RecordHistory(entry *model.CompanionHistory, tx *gorm.DB) error
	ListHistory(ctx context.Context, gaugeID int64) ([]model.CompanionHistory, error)
}

// gormStore implements Store using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside one database transaction. The services own the
// transaction boundary; the handle they receive here is what they thread
// into every write primitive of the operation.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func requireTx(tx *gorm.DB) error {
	if tx == nil {
		return ErrNoTxHandle
	}
	return nil
}

// forUpdate applies a row-level pessimistic lock. SQLite has no FOR UPDATE;
// its single-writer model already serializes the transaction, so the clause
// is skipped there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *gormStore) CreateGauge(g *model.Gauge, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if err := tx.Create(g).Error; err != nil {
		return fmt.Errorf("failed to create gauge %q: %w", g.Identifier, err)
	}
	return nil
}

func (s *gormStore) GetGauge(ctx context.Context, id int64) (*model.Gauge, error) {
	var g model.Gauge
	if err := s.db.WithContext(ctx).First(&g, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &pair.NotFoundError{GaugeID: id}
		}
		return nil, fmt.Errorf("failed to fetch gauge %d: %w", id, err)
	}
	return &g, nil
}

func (s *gormStore) GetGaugeByIdentifier(ctx context.Context, identifier string) (*model.Gauge, error) {
	var g model.Gauge
	if err := s.db.WithContext(ctx).First(&g, "identifier = ?", identifier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &pair.NotFoundError{}
		}
		return nil, fmt.Errorf("failed to fetch gauge %q: %w", identifier, err)
	}
	return &g, nil
}

func (s *gormStore) GetGaugesForUpdate(ids []int64, tx *gorm.DB) (map[int64]*model.Gauge, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var rows []model.Gauge
	if err := forUpdate(tx).Where("id IN ?", sorted).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock gauges %v: %w", sorted, err)
	}

	byID := make(map[int64]*model.Gauge, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	return byID, nil
}

func (s *gormStore) LinkCompanions(idA, idB int64, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	locked, err := s.GetGaugesForUpdate([]int64{idA, idB}, tx)
	if err != nil {
		return err
	}
	for _, id := range []int64{idA, idB} {
		if locked[id] == nil {
			return &pair.NotFoundError{GaugeID: id}
		}
	}
	if err := setCompanion(tx, idA, &idB); err != nil {
		return err
	}
	return setCompanion(tx, idB, &idA)
}

func (s *gormStore) UnlinkCompanions(idA, idB int64, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if _, err := s.GetGaugesForUpdate([]int64{idA, idB}, tx); err != nil {
		return err
	}
	if err := setCompanion(tx, idA, nil); err != nil {
		return err
	}
	return setCompanion(tx, idB, nil)
}

// ClearCompanion drops one side's companion reference. Used when orphaning:
// the surviving gauge becomes a spare.
func (s *gormStore) ClearCompanion(id int64, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return setCompanion(tx, id, nil)
}

func setCompanion(tx *gorm.DB, id int64, companionID *int64) error {
	res := tx.Model(&model.Gauge{}).Where("id = ?", id).Update("companion_id", companionID)
	if res.Error != nil {
		return fmt.Errorf("failed to update companion reference of gauge %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &pair.NotFoundError{GaugeID: id}
	}
	return nil
}

func (s *gormStore) UpdateStatus(id int64, status model.GaugeStatus, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return updateColumn(tx, id, "status", status)
}

func (s *gormStore) UpdateLocation(id int64, location string, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	return updateColumn(tx, id, "location", location)
}

func updateColumn(tx *gorm.DB, id int64, column string, value any) error {
	res := tx.Model(&model.Gauge{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s of gauge %d: %w", column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &pair.NotFoundError{GaugeID: id}
	}
	return nil
}

func (s *gormStore) SoftDeleteGauge(id int64, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	res := tx.Delete(&model.Gauge{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete gauge %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &pair.NotFoundError{GaugeID: id}
	}
	return nil
}

func (s *gormStore) RecordHistory(entry *model.CompanionHistory, tx *gorm.DB) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record %s history for gauge %d: %w", entry.Action, entry.GaugeID, err)
	}
	return nil
}

func (s *gormStore) ListHistory(ctx context.Context, gaugeID int64) ([]model.CompanionHistory, error) {
	var entries []model.CompanionHistory
	err := s.db.WithContext(ctx).
		Where("gauge_id = ? OR companion_id = ?", gaugeID, gaugeID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history for gauge %d: %w", gaugeID, err)
	}
	return entries, nil
}
