package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/services"
	"github.com/facilityiq/survey-intel/internal/utils"
)

type handler struct {
	svc    *services.Service
	logger *slog.Logger
}

type mineRequest struct {
	State          string  `json:"state" binding:"required"`
	County         string  `json:"county"`
	MinOccurrences int     `json:"min_occurrences"`
	MinConfidence  float64 `json:"min_confidence"`
	LookbackYears  int     `json:"lookback_years"`
}

type signalUpdateRequest struct {
	LookbackDays int `json:"lookback_days"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) mineRelationships(c *gin.Context) {
	var req mineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	scope := models.MineScope{State: req.State, County: req.County}
	cfg := models.MineConfig{
		MinOccurrences: req.MinOccurrences,
		MinConfidence:  req.MinConfidence,
		LookbackYears:  req.LookbackYears,
	}

	report, err := h.svc.MineRelationships(c.Request.Context(), scope, cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) updateSignals(c *gin.Context) {
	// An empty body is fine; the engine falls back to its default window.
	var req signalUpdateRequest
	_ = c.ShouldBindJSON(&req)

	report, err := h.svc.UpdateSignals(c.Request.Context(), req.LookbackDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) getBellwethers(c *gin.Context) {
	set, err := h.svc.GetBellwethers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *handler) getActiveSignals(c *gin.Context) {
	report, err := h.svc.GetActiveSignals(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) getForecast(c *gin.Context) {
	result, err := h.svc.GetForecast(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getRiskProfile(c *gin.Context) {
	profile, err := h.svc.GetRiskProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "facility not found"})
	case errors.Is(err, utils.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request error", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
