package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/pair"
)

type gaugeResponse struct {
	ID                int64               `json:"id"`
	Identifier        string              `json:"identifier"`
	EquipmentType     string              `json:"equipment_type"`
	Category          string              `json:"category"`
	Suffix            model.GaugeSuffix   `json:"suffix"`
	ThreadSize        string              `json:"thread_size,omitempty"`
	ThreadClass       string              `json:"thread_class,omitempty"`
	ThreadForm        string              `json:"thread_form,omitempty"`
	GaugeType         string              `json:"gauge_type,omitempty"`
	CompanionID       *int64              `json:"companion_id"`
	Status            model.GaugeStatus   `json:"status"`
	Sealed            bool                `json:"sealed"`
	Location          string              `json:"location"`
	OwnershipType     model.OwnershipType `json:"ownership_type"`
	CustomerID        *int64              `json:"customer_id,omitempty"`
	NextCalibrationAt *time.Time          `json:"next_calibration_at,omitempty"`
}

func toGaugeResponse(g *model.Gauge) gaugeResponse {
	return gaugeResponse{
		ID:                g.ID,
		Identifier:        g.Identifier,
		EquipmentType:     g.EquipmentType,
		Category:          g.Category,
		Suffix:            g.Suffix,
		ThreadSize:        g.ThreadSize,
		ThreadClass:       g.ThreadClass,
		ThreadForm:        g.ThreadForm,
		GaugeType:         g.GaugeType,
		CompanionID:       g.CompanionID,
		Status:            g.Status,
		Sealed:            g.Sealed,
		Location:          g.Location,
		OwnershipType:     g.OwnershipType,
		CustomerID:        g.CustomerID,
		NextCalibrationAt: g.NextCalibrationAt,
	}
}

// GetGauge returns one gauge, its companion if present, and the aggregate
// set view computed on the fly. The set status is never persisted.
func (h *Handler) GetGauge(c *gin.Context) {
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	g, err := h.store.GetGauge(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{"gauge": toGaugeResponse(g)}

	if g.CompanionID != nil {
		companion, err := h.store.GetGauge(c.Request.Context(), *g.CompanionID)
		if err == nil {
			body["companion"] = toGaugeResponse(companion)
			body["set_status"] = pair.ComputeSetStatus(g.Status, companion.Status, h.priority)
			body["set_sealed"] = pair.ComputeSealStatus(g.Sealed, companion.Sealed)
		} else if pair.IsNotFound(err) {
			// Dangling reference: still serve the gauge itself.
			body["consistency_warning"] = "companion_missing"
		} else {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}

// GetGaugeHistory returns the companion audit trail for a gauge, newest first.
func (h *Handler) GetGaugeHistory(c *gin.Context) {
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	entries, err := h.store.ListHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// GetCanCheckout reports whether the whole set is checkout-ready and, if not,
// why.
func (h *Handler) GetCanCheckout(c *gin.Context) {
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	allowed, reason, err := h.pairing.CanCheckoutSet(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{"can_checkout": allowed}
	if reason != "" {
		body["reason"] = reason
	}
	c.JSON(http.StatusOK, body)
}
