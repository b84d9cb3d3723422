package handler

import (
	"net/http"
	"strconv"

	"github.com/aegis-relief/aegis/internal/relief"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReliefHandler serves the disaster-zone and evaluation endpoints.
type ReliefHandler struct {
	svc    *relief.Service
	logger *zap.Logger
}

// NewReliefHandler creates a ReliefHandler.
func NewReliefHandler(svc *relief.Service, logger *zap.Logger) *ReliefHandler {
	return &ReliefHandler{svc: svc, logger: logger}
}

// Register mounts the relief routes on the given router group.
func (h *ReliefHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/disasters", h.Disasters)
	rg.GET("/nearby", h.Nearby)
	rg.POST("/evaluate", h.Evaluate)
}

// Disasters handles GET /disasters.
func (h *ReliefHandler) Disasters(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Zones())
}

// Nearby handles GET /nearby?lat=&lng= — closest in-radius zone or safe
// status.
func (h *ReliefHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng query parameters are required"})
		return
	}

	prox, ok := h.svc.Nearby(lat, lng)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"safe": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"safe":        false,
		"disaster":    prox.Zone,
		"distance_km": prox.DistanceKM,
	})
}

// Evaluate handles POST /evaluate — spatial gate plus arbiter verdict.
func (h *ReliefHandler) Evaluate(c *gin.Context) {
	var req relief.AidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eval, err := h.svc.Evaluate(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eval)
}
