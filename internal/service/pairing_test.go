package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gauge-tracking-backend/internal/ident"
	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
	"gauge-tracking-backend/internal/store"
)

// newTestStore opens a per-test in-memory database with the full schema.
func newTestStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Gauge{}, &model.CompanionHistory{}, &model.PushSubscription{}))
	return store.NewGormStore(db), db
}

// fakeAllocator hands out sequential base numbers without touching the
// database.
type fakeAllocator struct {
	n int
}

func (f *fakeAllocator) NextBase(_ context.Context, category string) (int, error) {
	f.n++
	return f.n, nil
}

func newPairingService(t *testing.T) (*PairingService, store.Store, *gorm.DB) {
	t.Helper()
	s, db := newTestStore(t)
	return NewPairingService(s, &fakeAllocator{}, nil), s, db
}

func threadInput(location string) GaugeInput {
	return GaugeInput{
		EquipmentType: "thread_plug_gauge",
		Category:      "TPG",
		ThreadSize:    ".250-20",
		ThreadClass:   "2A",
		ThreadForm:    "UN",
		GaugeType:     "plug",
		Location:      location,
	}
}

// seedSpare inserts a gauge directly, bypassing the service, for test setup.
func seedSpare(t *testing.T, db *gorm.DB, id int64, suffix model.GaugeSuffix, mutate ...func(*model.Gauge)) *model.Gauge {
	t.Helper()
	g := &model.Gauge{
		ID:            id,
		Identifier:    fmt.Sprintf("TPG-%04d-%s", id, suffix),
		EquipmentType: "thread_plug_gauge",
		Category:      "TPG",
		Suffix:        suffix,
		ThreadSize:    ".250-20",
		ThreadClass:   "2A",
		ThreadForm:    "UN",
		GaugeType:     "plug",
		Status:        model.StatusAvailable,
		OwnershipType: model.OwnershipCompany,
	}
	for _, m := range mutate {
		m(g)
	}
	require.NoError(t, db.Create(g).Error)
	return g
}

func historyByAction(t *testing.T, db *gorm.DB, action model.HistoryAction) []model.CompanionHistory {
	t.Helper()
	var entries []model.CompanionHistory
	require.NoError(t, db.Where("action = ?", action).Find(&entries).Error)
	return entries
}

func TestCreateGaugeSet(t *testing.T) {
	svc, s, db := newPairingService(t)
	ctx := context.Background()

	goGauge, noGoGauge, err := svc.CreateGaugeSet(ctx, threadInput("Shelf A"), threadInput("Shelf A"), 7)
	require.NoError(t, err)

	assert.Equal(t, model.SuffixGo, goGauge.Suffix)
	assert.Equal(t, model.SuffixNoGo, noGoGauge.Suffix)
	assert.NotEmpty(t, goGauge.Identifier)
	assert.NotEmpty(t, noGoGauge.Identifier)

	// Companion references are symmetric after commit.
	storedGo, err := s.GetGauge(ctx, goGauge.ID)
	require.NoError(t, err)
	storedNoGo, err := s.GetGauge(ctx, noGoGauge.ID)
	require.NoError(t, err)
	require.NotNil(t, storedGo.CompanionID)
	require.NotNil(t, storedNoGo.CompanionID)
	assert.Equal(t, storedNoGo.ID, *storedGo.CompanionID)
	assert.Equal(t, storedGo.ID, *storedNoGo.CompanionID)
	assert.Equal(t, model.StatusAvailable, storedGo.Status)

	entries := historyByAction(t, db, model.ActionCreatedTogether)
	require.Len(t, entries, 1)
	assert.Equal(t, goGauge.ID, entries[0].GaugeID)
	require.NotNil(t, entries[0].CompanionID)
	assert.Equal(t, noGoGauge.ID, *entries[0].CompanionID)
	assert.Equal(t, int64(7), entries[0].UserID)
}

func TestCreateGaugeSetIdentifiersShareBase(t *testing.T) {
	svc, _, _ := newPairingService(t)

	goGauge, noGoGauge, err := svc.CreateGaugeSet(context.Background(), threadInput("Shelf A"), threadInput("Shelf A"), 7)
	require.NoError(t, err)

	parsedGo, err := ident.Parse(goGauge.Identifier)
	require.NoError(t, err)
	parsedNoGo, err := ident.Parse(noGoGauge.Identifier)
	require.NoError(t, err)

	// One claimed base per set: both halves render from it.
	assert.Equal(t, parsedGo.Base(), parsedNoGo.Base())
	assert.Equal(t, model.SuffixGo, parsedGo.Suffix)
	assert.Equal(t, model.SuffixNoGo, parsedNoGo.Suffix)

	// The next set claims a fresh base.
	goTwo, _, err := svc.CreateGaugeSet(context.Background(), threadInput("Shelf A"), threadInput("Shelf A"), 7)
	require.NoError(t, err)
	parsedTwo, err := ident.Parse(goTwo.Identifier)
	require.NoError(t, err)
	assert.NotEqual(t, parsedGo.Base(), parsedTwo.Base())
}

func TestCreateGaugeSetSpecMismatch(t *testing.T) {
	svc, _, db := newPairingService(t)

	noGoData := threadInput("Shelf A")
	noGoData.ThreadSize = ".375-16"

	_, _, err := svc.CreateGaugeSet(context.Background(), threadInput("Shelf A"), noGoData, 7)
	require.Error(t, err)
	assert.True(t, pair.IsDomainError(err, pair.CodeSpecMismatch), "got %v", err)

	// Construction-time validation means nothing was written.
	var count int64
	require.NoError(t, db.Model(&model.Gauge{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateGaugeSetNPTForbidden(t *testing.T) {
	svc, _, db := newPairingService(t)

	goData := threadInput("Shelf A")
	goData.GaugeType = "NPT"
	noGoData := threadInput("Shelf A")
	noGoData.GaugeType = "NPT"

	_, _, err := svc.CreateGaugeSet(context.Background(), goData, noGoData, 7)
	require.Error(t, err)
	assert.True(t, pair.IsDomainError(err, pair.CodeNPTCompanionForbidden), "got %v", err)

	var count int64
	require.NoError(t, db.Model(&model.Gauge{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPairSpareGauges(t *testing.T) {
	svc, s, db := newPairingService(t)
	ctx := context.Background()

	seedSpare(t, db, 1, model.SuffixGo)
	seedSpare(t, db, 2, model.SuffixNoGo)

	require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

	a, err := s.GetGauge(ctx, 1)
	require.NoError(t, err)
	b, err := s.GetGauge(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, a.CompanionID)
	require.NotNil(t, b.CompanionID)
	assert.Equal(t, int64(2), *a.CompanionID)
	assert.Equal(t, int64(1), *b.CompanionID)
	assert.Equal(t, "QC cage", a.Location)
	assert.Equal(t, "QC cage", b.Location)

	entries := historyByAction(t, db, model.ActionPairedFromSpares)
	require.Len(t, entries, 1)
}

func TestPairSpareGaugesRejectsTakenGauge(t *testing.T) {
	svc, _, db := newPairingService(t)
	ctx := context.Background()

	seedSpare(t, db, 1, model.SuffixGo)
	seedSpare(t, db, 2, model.SuffixNoGo)
	seedSpare(t, db, 3, model.SuffixNoGo)

	require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

	// A second pairing attempt against the same GO gauge loses: the link is
	// never silently overwritten.
	err := svc.PairSpareGauges(ctx, 1, 3, 7, "QC cage")
	require.Error(t, err)
	assert.True(t, pair.IsDomainError(err, pair.CodeNotASpare), "got %v", err)

	var g3 model.Gauge
	require.NoError(t, db.First(&g3, 3).Error)
	assert.Nil(t, g3.CompanionID)
}

func TestPairSpareGaugesValidates(t *testing.T) {
	svc, _, db := newPairingService(t)

	seedSpare(t, db, 1, model.SuffixGo)
	seedSpare(t, db, 2, model.SuffixNoGo, func(g *model.Gauge) {
		g.ThreadClass = "3A"
	})

	err := svc.PairSpareGauges(context.Background(), 1, 2, 7, "QC cage")
	require.Error(t, err)
	assert.True(t, pair.IsDomainError(err, pair.CodeSpecMismatch), "got %v", err)

	var a model.Gauge
	require.NoError(t, db.First(&a, 1).Error)
	assert.Nil(t, a.CompanionID)
}

func TestPairSpareGaugesMissingGauge(t *testing.T) {
	svc, _, db := newPairingService(t)
	seedSpare(t, db, 1, model.SuffixGo)

	err := svc.PairSpareGauges(context.Background(), 1, 99, 7, "QC cage")
	assert.True(t, pair.IsNotFound(err), "got %v", err)
}

func TestUnpairSet(t *testing.T) {
	svc, s, db := newPairingService(t)
	ctx := context.Background()

	seedSpare(t, db, 1, model.SuffixGo)
	seedSpare(t, db, 2, model.SuffixNoGo)
	require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

	require.NoError(t, svc.UnpairSet(ctx, 1, 7, "wear on NOGO member"))

	a, err := s.GetGauge(ctx, 1)
	require.NoError(t, err)
	b, err := s.GetGauge(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, a.CompanionID)
	assert.Nil(t, b.CompanionID)

	entries := historyByAction(t, db, model.ActionUnlinked)
	require.Len(t, entries, 1)
	assert.Equal(t, "wear on NOGO member", entries[0].Reason)

	// Unpairing an already-spare gauge is a no-op success.
	require.NoError(t, svc.UnpairSet(ctx, 1, 7, ""))
	assert.Len(t, historyByAction(t, db, model.ActionUnlinked), 1)
}

// Unpair takes both row locks in a single canonical acquisition, never the
// target alone first; see the matching cascade test for the deadlock this
// prevents.
func TestUnpairSetLocksPairInOneAcquisition(t *testing.T) {
	s, db := newTestStore(t)
	rec := &lockRecordingStore{Store: s}
	svc := NewPairingService(rec, &fakeAllocator{}, nil)

	seedPair(t, db, 1, 2)

	// Enter from the higher-id member.
	require.NoError(t, svc.UnpairSet(context.Background(), 2, 7, ""))

	require.Len(t, rec.lockCalls, 1)
	assert.ElementsMatch(t, []int64{1, 2}, rec.lockCalls[0])
}

func TestReplaceCompanion(t *testing.T) {
	ctx := context.Background()

	t.Run("refused while set is checked out", func(t *testing.T) {
		svc, _, db := newPairingService(t)
		seedSpare(t, db, 1, model.SuffixGo)
		seedSpare(t, db, 2, model.SuffixNoGo)
		seedSpare(t, db, 3, model.SuffixNoGo)
		require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))
		require.NoError(t, db.Model(&model.Gauge{}).Where("id = ?", 2).Update("status", model.StatusCheckedOut).Error)

		err := svc.ReplaceCompanion(ctx, 1, 3, 7, "")
		require.Error(t, err)
		assert.True(t, pair.IsDomainError(err, pair.CodeCompanionCheckedOut), "got %v", err)
	})

	t.Run("refused while replacement pends QC", func(t *testing.T) {
		svc, _, db := newPairingService(t)
		seedSpare(t, db, 1, model.SuffixGo)
		seedSpare(t, db, 2, model.SuffixNoGo)
		seedSpare(t, db, 3, model.SuffixNoGo, func(g *model.Gauge) {
			g.Status = model.StatusPendingQC
		})
		require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

		err := svc.ReplaceCompanion(ctx, 1, 3, 7, "")
		require.Error(t, err)
		assert.True(t, pair.IsDomainError(err, pair.CodeReplacementPendingQC), "got %v", err)
	})

	t.Run("refused without an existing pair", func(t *testing.T) {
		svc, _, db := newPairingService(t)
		seedSpare(t, db, 1, model.SuffixGo)
		seedSpare(t, db, 3, model.SuffixNoGo)

		err := svc.ReplaceCompanion(ctx, 1, 3, 7, "")
		require.Error(t, err)
		assert.True(t, pair.IsDomainError(err, pair.CodeNotPaired), "got %v", err)
	})

	t.Run("swaps the companion and inherits the set location", func(t *testing.T) {
		svc, s, db := newPairingService(t)
		seedSpare(t, db, 1, model.SuffixGo)
		seedSpare(t, db, 2, model.SuffixNoGo)
		seedSpare(t, db, 3, model.SuffixNoGo, func(g *model.Gauge) {
			g.Location = "Receiving"
		})
		require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

		require.NoError(t, svc.ReplaceCompanion(ctx, 1, 3, 7, "NOGO member worn out"))

		a, err := s.GetGauge(ctx, 1)
		require.NoError(t, err)
		old, err := s.GetGauge(ctx, 2)
		require.NoError(t, err)
		repl, err := s.GetGauge(ctx, 3)
		require.NoError(t, err)

		require.NotNil(t, a.CompanionID)
		assert.Equal(t, int64(3), *a.CompanionID)
		require.NotNil(t, repl.CompanionID)
		assert.Equal(t, int64(1), *repl.CompanionID)
		assert.Nil(t, old.CompanionID)
		assert.Equal(t, "QC cage", repl.Location)

		entries := historyByAction(t, db, model.ActionReplaced)
		require.Len(t, entries, 1)
		assert.Equal(t, "NOGO member worn out", entries[0].Reason)
	})
}

func TestCanCheckoutSet(t *testing.T) {
	svc, _, db := newPairingService(t)
	ctx := context.Background()

	seedSpare(t, db, 1, model.SuffixGo)
	seedSpare(t, db, 2, model.SuffixNoGo)
	require.NoError(t, svc.PairSpareGauges(ctx, 1, 2, 7, "QC cage"))

	ok, reason, err := svc.CanCheckoutSet(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)

	require.NoError(t, db.Model(&model.Gauge{}).Where("id = ?", 2).Update("status", model.StatusOutOfService).Error)

	ok, reason, err = svc.CanCheckoutSet(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "out_of_service")
	assert.Contains(t, reason, "TPG-0002-NOGO")

	// Single gauges only answer for themselves.
	seedSpare(t, db, 3, model.SuffixGo)
	ok, reason, err = svc.CanCheckoutSet(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.Model(&model.Gauge{}).Where("id = ?", 3).Update("status", model.StatusCalibrationDue).Error)
	ok, reason, err = svc.CanCheckoutSet(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "calibration_due")
}
