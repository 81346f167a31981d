package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
	"gauge-tracking-backend/internal/service"
	"gauge-tracking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	pairing  *service.PairingService
	cascade  *service.CascadeService
	webpush  *webpush.Options
	priority []model.GaugeStatus
}

// NewHandler creates a new API handler. A nil priority uses
// pair.DefaultStatusPriority.
func NewHandler(s store.Store, pairing *service.PairingService, cascade *service.CascadeService, webpushOptions *webpush.Options, priority []model.GaugeStatus) *Handler {
	if priority == nil {
		priority = pair.DefaultStatusPriority
	}
	return &Handler{
		store:    s,
		pairing:  pairing,
		cascade:  cascade,
		webpush:  webpushOptions,
		priority: priority,
	}
}
