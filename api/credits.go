package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zsp-sports/gymbooking/internal/service/credits"
)

type CreditsHandler struct {
	service credits.CreditsUseCase
}

func NewCreditsHandler(service credits.CreditsUseCase) *CreditsHandler {
	return &CreditsHandler{service: service}
}

func (h *CreditsHandler) Register(router *gin.RouterGroup) {
	router.GET("/credits/:customerId", h.balances)
	router.POST("/credits/:usageId/consume", h.consume)
}

func (h *CreditsHandler) balances(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
		return
	}

	balances, err := h.service.Balances(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

type consumeRequest struct {
	Sessions int `json:"sessions"`
}

func (h *CreditsHandler) consume(c *gin.Context) {
	usageID, err := strconv.ParseInt(c.Param("usageId"), 10, 64)
	if err != nil || usageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid usage id"})
		return
	}

	req := consumeRequest{Sessions: 1}
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	remaining, err := h.service.Consume(c.Request.Context(), usageID, req.Sessions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions_remaining": remaining})
}
