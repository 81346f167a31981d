package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/service"
)

type gaugeInputRequest struct {
	EquipmentType     string     `json:"equipment_type" binding:"required"`
	Category          string     `json:"category" binding:"required"`
	ThreadSize        string     `json:"thread_size"`
	ThreadClass       string     `json:"thread_class"`
	ThreadForm        string     `json:"thread_form"`
	GaugeType         string     `json:"gauge_type"`
	Location          string     `json:"location"`
	Sealed            bool       `json:"sealed"`
	OwnershipType     string     `json:"ownership_type"`
	CustomerID        *int64     `json:"customer_id"`
	NextCalibrationAt *time.Time `json:"next_calibration_at"`
}

func (r gaugeInputRequest) toInput() service.GaugeInput {
	return service.GaugeInput{
		EquipmentType:     r.EquipmentType,
		Category:          r.Category,
		ThreadSize:        r.ThreadSize,
		ThreadClass:       r.ThreadClass,
		ThreadForm:        r.ThreadForm,
		GaugeType:         r.GaugeType,
		Location:          r.Location,
		Sealed:            r.Sealed,
		OwnershipType:     model.OwnershipType(r.OwnershipType),
		CustomerID:        r.CustomerID,
		NextCalibrationAt: r.NextCalibrationAt,
	}
}

type createGaugeSetRequest struct {
	Go   gaugeInputRequest `json:"go" binding:"required"`
	NoGo gaugeInputRequest `json:"nogo" binding:"required"`
}

// CreateGaugeSet creates a GO/NOGO pair atomically.
func (h *Handler) CreateGaugeSet(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createGaugeSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	goGauge, noGoGauge, err := h.pairing.CreateGaugeSet(c.Request.Context(), req.Go.toInput(), req.NoGo.toInput(), uid)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"go":   toGaugeResponse(goGauge),
		"nogo": toGaugeResponse(noGoGauge),
	})
}

type pairSparesRequest struct {
	GaugeA   int64  `json:"gauge_a" binding:"required"`
	GaugeB   int64  `json:"gauge_b" binding:"required"`
	Location string `json:"location"`
}

// PairSpares links two existing spare gauges into a set.
func (h *Handler) PairSpares(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req pairSparesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pairing.PairSpareGauges(c.Request.Context(), req.GaugeA, req.GaugeB, uid, req.Location); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// UnpairSet dissolves a set, leaving both gauges as spares. Unpairing an
// already unpaired gauge is a no-op.
func (h *Handler) UnpairSet(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pairing.UnpairSet(c.Request.Context(), id, uid, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type replaceCompanionRequest struct {
	ReplacementID int64  `json:"replacement_id" binding:"required"`
	Reason        string `json:"reason"`
}

// ReplaceCompanion swaps a gauge's companion for a spare replacement.
func (h *Handler) ReplaceCompanion(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	var req replaceCompanionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pairing.ReplaceCompanion(c.Request.Context(), id, req.ReplacementID, uid, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type cascadeStatusRequest struct {
	Status model.GaugeStatus `json:"status" binding:"required"`
	Reason string            `json:"reason"`
}

// CascadeStatus applies a status change to a gauge and its companion.
func (h *Handler) CascadeStatus(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	var req cascadeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.cascade.CascadeStatusChange(c.Request.Context(), id, req.Status, uid, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type cascadeLocationRequest struct {
	Location string `json:"location" binding:"required"`
	Reason   string `json:"reason"`
}

// CascadeLocation moves a gauge and its companion together.
func (h *Handler) CascadeLocation(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	var req cascadeLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.cascade.CascadeLocationChange(c.Request.Context(), id, req.Location, uid, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteGauge soft-deletes a gauge and orphans its companion into a spare.
func (h *Handler) DeleteGauge(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "gauge_id")
	if !ok {
		return
	}

	reason := c.Query("reason")
	if err := h.cascade.DeleteGaugeAndOrphanCompanion(c.Request.Context(), id, uid, reason); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
