// Package handler exposes the oracle's HTTP surface: lifecycle triggers for
// the decision pipeline, on-ledger status reads, the activity feed, and the
// relief-domain queries. Thin wrappers only — every rule lives in the
// services underneath.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aegis-relief/aegis/internal/chain"
	"github.com/aegis-relief/aegis/internal/mission"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OracleHandler serves the request-lifecycle endpoints.
type OracleHandler struct {
	missions        *mission.Service
	defaultProvider common.Address
	logger          *zap.Logger
}

// NewOracleHandler creates an OracleHandler. defaultProvider is used when an
// approval carries no provider address; the zero address means no fallback.
func NewOracleHandler(missions *mission.Service, defaultProvider common.Address, logger *zap.Logger) *OracleHandler {
	return &OracleHandler{missions: missions, defaultProvider: defaultProvider, logger: logger}
}

// Register mounts the oracle routes on the given router group.
func (h *OracleHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/requests")
	{
		r.POST("/:id/verify", h.Verify)
		r.POST("/:id/approve", h.Approve)
		r.GET("/:id", h.Status)
	}
	rg.GET("/activity", h.Activity)
}

type verifyRequest struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Claim string  `json:"claim" binding:"required"`
}

// Verify handles POST /requests/:id/verify — triggers the verify stage.
func (h *OracleHandler) Verify(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txHash, ok := h.missions.VerifyEvent(c.Request.Context(), id, req.Lat, req.Lng, req.Claim)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "event verification was not submitted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": id, "tx_hash": txHash})
}

type approveRequest struct {
	Provider string `json:"provider"`
	CostUSD  uint64 `json:"cost_usd"`
}

// Approve handles POST /requests/:id/approve — submits the approval and
// schedules delivery in the background.
func (h *OracleHandler) Approve(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider := h.defaultProvider
	if req.Provider != "" {
		if !common.IsHexAddress(req.Provider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider address"})
			return
		}
		provider = common.HexToAddress(req.Provider)
	}
	if provider == (common.Address{}) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no provider address supplied or configured"})
		return
	}

	txHash, ok := h.missions.ApproveAid(c.Request.Context(), id, provider, req.CostUSD)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "approval was not submitted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": id, "tx_hash": txHash})
}

// Status handles GET /requests/:id — reads the on-ledger request view.
func (h *OracleHandler) Status(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	view, err := h.missions.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, chain.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chain not configured"})
			return
		}
		h.logger.Error("status read failed", zap.Uint64("request_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger read failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Activity handles GET /activity — the bounded feed, oldest first.
func (h *OracleHandler) Activity(c *gin.Context) {
	events := h.missions.Activity()
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// Health handles GET /healthz.
func (h *OracleHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"chain_configured": h.missions.Configured(),
	})
}

func requestID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request id must be a positive integer"})
		return 0, false
	}
	return id, true
}
